package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contactBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func TestBindJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		strict  bool
		wantErr string
	}{
		{"valid", `{"name":"Ann","email":"a@b.com"}`, true, ""},
		{"empty", ``, true, "request body is empty"},
		{"truncated", `{"name":`, true, "malformed JSON: unexpected end of input"},
		{"syntax", `{"name" "Ann"}`, true, "malformed JSON at position"},
		{"type mismatch", `{"name":5}`, true, `invalid value for field "name"`},
		{"unknown strict", `{"name":"a","extra":1}`, true, `unknown field "extra"`},
		{"unknown lenient", `{"name":"a","extra":1}`, false, ""},
		{"trailing value", `{"name":"a"}{"name":"b"}`, true, "multiple JSON values"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst contactBody
			var err error
			if tt.strict {
				err = BindJSON(req, &dst)
			} else {
				err = BindJSONAllowUnknown(req, &dst)
			}
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBindJSON_TooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"`+strings.Repeat("x", 100)+`"}`))
	req.Body = http.MaxBytesReader(rec, req.Body, 16)

	var dst contactBody
	err := BindJSON(req, &dst)
	require.Error(t, err)
	assert.Equal(t, "request body too large", err.Error())
}

func TestValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationError(rec, []string{"title is required"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Validation failed", body["error"])
	assert.Equal(t, []any{"title is required"}, body["details"])
}

func TestWriteJSON_ClampsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, 42, map[string]bool{"ok": true})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBindJSONNumbers_KeepsSnowflakes(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"discordId":123456789012345678,"extra":true}`))
	var raw map[string]any
	require.NoError(t, BindJSONNumbers(req, &raw))
	assert.Equal(t, json.Number("123456789012345678"), raw["discordId"])
}
