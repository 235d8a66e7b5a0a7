package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func serve(t *testing.T, checks map[string]Check) (int, Response) {
	t.Helper()
	r := chi.NewRouter()
	Mount(r, "conclave", checks, zap.NewNop())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealth_Liveness(t *testing.T) {
	code, body := serve(t, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "conclave", body.Service)
	assert.NotEmpty(t, body.Timestamp)
	assert.Empty(t, body.Checks)
}

func TestHealth_FailingCheck(t *testing.T) {
	code, body := serve(t, map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "error: connection refused", body.Checks["redis"])
}
