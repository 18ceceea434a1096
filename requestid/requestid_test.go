package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var contextId string
	captureContextID := func(w http.ResponseWriter, r *http.Request) {
		t.Helper()

		val, ok := r.Context().Value(ContextKey).(string)
		require.True(t, ok)
		assert.NotEmpty(t, val)
		contextId = val

		w.WriteHeader(http.StatusOK)
	}

	w := httptest.NewRecorder()
	Middleware(http.HandlerFunc(captureContextID)).ServeHTTP(w,
		httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	headerId := w.Header().Get(HeaderKey)
	require.NotEmpty(t, headerId)

	assert.Equal(t, headerId, contextId)
	id, err := uuid.Parse(headerId)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())
}

func TestField(t *testing.T) {
	t.Parallel()

	var field zap.Field
	capture := func(w http.ResponseWriter, r *http.Request) {
		field = Field(r.Context())
		w.WriteHeader(http.StatusOK)
	}

	w := httptest.NewRecorder()
	Middleware(http.HandlerFunc(capture)).ServeHTTP(w,
		httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, zap.String("request-id", w.Header().Get(HeaderKey)), field)
}

func TestField_missing(t *testing.T) {
	t.Parallel()

	field := Field(context.Background())
	assert.Equal(t, zap.Skip(), field)

	_, ok := Get(context.Background())
	assert.False(t, ok)
}
