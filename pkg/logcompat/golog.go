package logcompat

import (
	"bytes"
	golog "log"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// componentLog matches the `component: message` prefix used by net/http and friends.
var componentLog = regexp.MustCompile(`^(http|http2|tls): (.*)`)
var vanillaLog = regexp.MustCompile(`^(\d\d\d\d/\d\d/\d\d \d\d:\d\d:\d\d(.\d\d\d\d\d\d)?) (.*)`)

var goLogFlagsWarning sync.Once

func (l *LogWriter) Write(b []byte) (int, error) {
	msg := b
	if golog.Flags() != golog.LstdFlags {
		goLogFlagsWarning.Do(func() {
			l.log.Warn().Msg("non-standard go log flags mean stdlib go logging will not be parsed to zerolog")
		})
		return l.log.Write(b)
	}
	var e *zerolog.Event = l.log.Info()

	tsMatches := vanillaLog.FindSubmatch(b)
	if len(tsMatches) < 3 {
		// Provided the golog flags matches we shouldn't get here because the ts should exist. But
		// if we do, just pass through.
		return l.log.Write(b)
	}
	msg = tsMatches[len(tsMatches)-1]

	if matches := componentLog.FindSubmatch(msg); len(matches) == 3 {
		// Server side connection errors (TLS handshakes, broken scrapes) are worth a warning.
		e = l.log.Warn().Str("component", string(matches[1]))
		msg = matches[2]
	}

	// It'd makes sense to do this TS first, but it seems we can't change the level of a log
	// once it's been created. So we parse the TS first, pickup the level if possible, and then
	// apply the TS.
	if t, err := time.Parse("2006/01/02 15:04:05.999999", string(tsMatches[1])); err == nil {
		e = e.Time(zerolog.TimestampFieldName, t)
	} else if t, err := time.Parse("2006/01/02 15:04:05", string(tsMatches[1])); err == nil {
		e = e.Time(zerolog.TimestampFieldName, t)
	}
	e.Msg(string(bytes.TrimRight(msg, "\r\n")))
	return len(b), nil
}

