package logcompat

import (
	golog "log"

	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

type LogWriter struct {
	log *zerolog.Logger
}

// Init routes the stdlib go log and the OpenTelemetry SDK's internal logging into l.
func Init(l *zerolog.Logger) {
	// net/http logs server errors straight to go log when no ErrorLog is set.
	golog.SetOutput(&LogWriter{log: l})

	otelLogger := l.With().Str("component", "otel").Logger()
	otel.SetLogger(zerologr.New(&otelLogger))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		otelLogger.Err(err).Msg("opentelemetry")
	}))
}
