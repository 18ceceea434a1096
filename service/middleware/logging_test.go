package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/digineo/purged/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newTestLogger(buf *bytes.Buffer) *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(buf),
		zap.DebugLevel,
	)
	return zap.New(core)
}

func TestLogging(t *testing.T) {
	t.Parallel()

	var h http.Handler
	h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("gone"))
	})

	var buf bytes.Buffer
	w := httptest.NewRecorder()
	WithLogging(newTestLogger(&buf))(h).ServeHTTP(w, httptest.NewRequest("PURGE", "/purge/x?y=1", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	msg := "INFO\t\t" + `{"method": "PURGE", "status": 404, "bytes": 4, "host": "192.0.2.1", "url": "/purge/x?y=1"}` + "\n"
	assert.Equal(t, msg, buf.String())
}

func TestLogging_requestID(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	var buf bytes.Buffer
	w := httptest.NewRecorder()
	requestid.Middleware(WithLogging(newTestLogger(&buf))(h)).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	id := w.Header().Get(requestid.HeaderKey)
	require.NotEmpty(t, id)
	assert.Contains(t, buf.String(), `"request-id": "`+id+`"`)
	assert.Contains(t, buf.String(), `"status": 200`)
}

func TestDiscardBody(t *testing.T) {
	t.Parallel()

	var seen []byte
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		seen, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	})

	var buf bytes.Buffer
	body := strings.NewReader("ignored payload")
	w := httptest.NewRecorder()
	DiscardBody(newTestLogger(&buf))(h).ServeHTTP(w, httptest.NewRequest("PURGE", "/purge/x", body))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, seen)
	assert.Equal(t, 0, body.Len())
	assert.Empty(t, buf.String())
}

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestDiscardBody_readError(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var buf bytes.Buffer
	w := httptest.NewRecorder()
	DiscardBody(newTestLogger(&buf))(h).ServeHTTP(w, httptest.NewRequest("PURGE", "/purge/x", failReader{}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, buf.String(), "failed to discard request body")
	assert.Contains(t, buf.String(), "unexpected EOF")
}
