package logcompat

import (
	"bytes"
	golog "log"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWriter(t *testing.T) {
	tcs := []struct {
		name   string
		in     string
		expect string
	}{
		{
			name: "happy path",
			in:   "2023/12/27 22:40:53 listening\n",
			expect: `{
				"level": "info",
				"message": "listening",
				"time": "2023-12-27T22:40:53Z"
			}`,
		},
		{
			name: "net/http server error",
			in:   "2023/12/27 22:40:53 http: TLS handshake error from 10.0.0.4:51234: EOF\n",
			expect: `{
				"component": "http",
				"level": "warn",
				"message": "TLS handshake error from 10.0.0.4:51234: EOF",
				"time": "2023-12-27T22:40:53Z"
			}`,
		},
		{
			name: "happy path w/ TS",
			in:   "2023/12/27 22:40:53.123456 http: superfluous response.WriteHeader call\n",
			expect: `{
				"component": "http",
				"level": "warn",
				"message": "superfluous response.WriteHeader call",
				"time": "2023-12-27T22:40:53Z"
			}`,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var b bytes.Buffer
			l := zerolog.New(&b)
			lw := &LogWriter{log: &l}
			n, err := lw.Write([]byte(tc.in))
			require.NoError(t, err)
			assert.Equal(t, len(tc.in), n)
			assert.JSONEq(t, tc.expect, b.String())
		})
	}
}

func TestInit(t *testing.T) {
	var b bytes.Buffer
	l := zerolog.New(&b)
	orig := golog.Writer()
	t.Cleanup(func() { golog.SetOutput(orig) })

	Init(&l)
	golog.Print("http: Accept error: too many open files")
	assert.Contains(t, b.String(), `"component":"http"`)
	assert.Contains(t, b.String(), `"message":"Accept error: too many open files"`)
}
