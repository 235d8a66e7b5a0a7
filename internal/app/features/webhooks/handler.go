// Package webhooks exposes the public intake forms at /api/webhooks/{kind}.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/httputil"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/relay"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/middleware"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/ratelimit"
)

// Submitter is the intake pipeline.
type Submitter interface {
	Configured(kind models.Kind) bool
	Submit(ctx context.Context, kind models.Kind, input map[string]string, clientIP string) (relay.Receipt, error)
	Reject(ctx context.Context, kind models.Kind, clientIP, detail string)
}

type Handler struct {
	relay  Submitter
	logger *zap.Logger
}

func New(s Submitter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{relay: s, logger: logger}
}

// Routes mounts the intake endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.With(middleware.RequireJSON()).Post("/{kind}", h.submit)
	r.Get("/{kind}", h.status)
}

func kindParam(w http.ResponseWriter, r *http.Request) (models.Kind, bool) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.JSONError(w, http.StatusNotFound, "not_found", "unknown form")
		return "", false
	}
	return kind, true
}

// idFields names the per-kind copy of the correlation id in responses.
var idFields = map[models.Kind]string{
	models.KindContact:     "ticketId",
	models.KindAppeals:     "appealId",
	models.KindSubmissions: "submissionId",
	models.KindComplaints:  "reportId",
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	clientIP := ratelimit.ClientIP(r)
	var raw map[string]any
	if err := httputil.BindJSONNumbers(r, &raw); err != nil {
		h.relay.Reject(r.Context(), kind, clientIP, err.Error())
		httputil.ValidationError(w, []string{err.Error()})
		return
	}
	input, details := flatten(raw)
	if len(details) > 0 {
		h.relay.Reject(r.Context(), kind, clientIP, strings.Join(details, "; "))
		httputil.ValidationError(w, details)
		return
	}

	rec, err := h.relay.Submit(r.Context(), kind, input, clientIP)
	var (
		verr *relay.ValidationError
		rerr *relay.RateLimitError
	)
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"message":      rec.Message,
			"id":           rec.ID,
			idFields[kind]: rec.ID,
			"delivered":    rec.Delivered,
		})
	case errors.As(err, &verr):
		httputil.ValidationError(w, verr.Details)
	case errors.As(err, &rerr):
		secs := int(math.Ceil(rerr.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		httputil.JSONError(w, http.StatusTooManyRequests, "rate_limited",
			fmt.Sprintf("Too many submissions. Please try again in %d seconds.", secs))
	case errors.Is(err, relay.ErrNotConfigured):
		httputil.JSONError(w, http.StatusServiceUnavailable, "service_not_configured",
			"This form is temporarily unavailable")
	case errors.Is(err, relay.ErrUnavailable):
		httputil.JSONError(w, http.StatusServiceUnavailable, "service_unavailable",
			"We could not record your submission. Please try again later.")
	default:
		h.logger.Error("webhook submission failed", zap.String("kind", string(kind)), zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "server_error", "An unexpected error occurred")
	}
}

// flatten converts a decoded JSON object to string fields. Scalars are
// formatted, nulls dropped, and nested values rejected.
func flatten(raw map[string]any) (map[string]string, []string) {
	out := make(map[string]string, len(raw))
	var details []string
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			details = append(details, k+" must be a string")
		}
	}
	sort.Strings(details)
	return out, details
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	form := relay.Forms[kind]
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"kind":       kind,
		"configured": h.relay.Configured(kind),
		"rateLimit": map[string]any{
			"windowSeconds": int(form.Rule.Window.Seconds()),
			"max":           form.Rule.Max,
		},
	})
}
