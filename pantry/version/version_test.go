package version

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountServesInfo(t *testing.T) {
	r := chi.NewRouter()
	Mount(r, "conclave")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "conclave", got.Service)
	assert.Equal(t, Version, got.Version)
	assert.NotEmpty(t, got.GoVersion)
}

func TestStringDev(t *testing.T) {
	v, c, b := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = v, c, b })

	Version = "dev"
	assert.Equal(t, "dev", String())

	Version, Commit, BuildTime = "1.2.0", "abc123", "2026-01-02T00:00:00Z"
	assert.Equal(t, "1.2.0 (abc123, built 2026-01-02T00:00:00Z)", String())
}
