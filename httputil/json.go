// httputil/json.go
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrorResponse is the JSON error envelope shared by every API route.
// Success is always false; it lets clients branch on one field for both
// success and error bodies.
type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

var encodeLogger atomic.Pointer[zap.Logger]

// SetLogger configures the logger used to report encoding failures that
// happen after the status line has been sent. Call once at startup.
func SetLogger(logger *zap.Logger) {
	encodeLogger.Store(logger)
}

// WriteJSON writes v as JSON with the given status. Status codes outside
// 100..599 are clamped to 500.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		if l := encodeLogger.Load(); l != nil {
			l.Error("json encoding failed after headers sent",
				zap.String("type", fmt.Sprintf("%T", v)), zap.Error(err))
		}
	}
}

// JSONError writes a structured JSON error with a machine code and a
// human-readable message.
func JSONError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// ValidationError writes a 400 with an itemized list of problems.
func ValidationError(w http.ResponseWriter, details []string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "Validation failed",
		Message: "Please correct the highlighted fields and try again",
		Details: details,
	})
}

// BindJSON decodes the request body into v, rejecting unknown fields,
// empty bodies and trailing data. Returned errors are safe to show clients.
func BindJSON(r *http.Request, v any) error {
	return bind(r, v, true, false)
}

// BindJSONAllowUnknown is BindJSON without the unknown-field check. Public
// forms use it so that extra client-side fields do not fail a submission.
func BindJSONAllowUnknown(r *http.Request, v any) error {
	return bind(r, v, false, false)
}

// BindJSONNumbers is BindJSONAllowUnknown that decodes numbers into
// interface values as json.Number, keeping snowflake ids exact.
func BindJSONNumbers(r *http.Request, v any) error {
	return bind(r, v, false, true)
}

func bind(r *http.Request, v any, strict, numbers bool) error {
	if r.Body == nil || r.ContentLength == 0 {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	if numbers {
		dec.UseNumber()
	}
	if err := dec.Decode(v); err != nil {
		return parseJSONError(err)
	}
	if dec.More() {
		return errors.New("request body contains multiple JSON values")
	}
	return nil
}

// parseJSONError converts json decoding errors into client-safe messages.
func parseJSONError(err error) error {
	if errors.Is(err, io.EOF) {
		return errors.New("request body is empty")
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.New("malformed JSON: unexpected end of input")
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Errorf("invalid value for field %q: expected %s", typeErr.Field, typeErr.Type.String())
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errors.New("request body too large")
	}

	if msg := err.Error(); strings.HasPrefix(msg, "json: unknown field") {
		field := strings.Trim(strings.TrimPrefix(msg, "json: unknown field "), "\"")
		return fmt.Errorf("unknown field %q", field)
	}

	return errors.New("invalid JSON in request body")
}
