package admin

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/httputil"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/relay"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/export"
)

// submissionTable lays submissions out with the form's fields in form
// order between the fixed columns.
func submissionTable(kind models.Kind, subs []models.Submission) export.Table {
	form := relay.Forms[kind]
	headers := []string{"ID", "Status", "Submitted", "Delivered", "Attempts"}
	for _, f := range form.Fields {
		headers = append(headers, f.Label)
	}
	headers = append(headers, "Reviewed By", "Reviewed At", "Review Note")

	t := export.Table{Name: string(kind), Headers: headers}
	for _, s := range subs {
		row := []any{s.ID, string(s.Status), s.SubmittedAt, s.Delivered, s.DeliveryAttempts}
		for _, f := range form.Fields {
			row = append(row, s.Fields[f.Name])
		}
		var reviewedAt any
		if s.ReviewedAt != nil {
			reviewedAt = *s.ReviewedAt
		}
		row = append(row, s.ReviewedBy, reviewedAt, s.ReviewNote)
		t.Append(row...)
	}
	return t
}

// exportSubmissions streams the kind's submissions as XLSX, or CSV with ?format=csv.
func (h *Handler) exportSubmissions(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	f, details := filterFrom(r, kind)
	format := r.URL.Query().Get("format")
	if format != "" && format != "xlsx" && format != "csv" {
		details = append(details, "format must be xlsx or csv")
	}
	if len(details) > 0 {
		httputil.ValidationError(w, details)
		return
	}
	if f.Limit == 0 {
		f.Limit = store.MaxListLimit
	}

	subs, err := h.store.ListSubmissions(r.Context(), f)
	if err != nil {
		h.logger.Error("export submissions", zap.String("kind", string(kind)), zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "server_error", "could not load submissions")
		return
	}

	t := submissionTable(kind, subs)
	name := fmt.Sprintf("%s-%s", kind, h.now().UTC().Format("20060102-150405"))
	if format == "csv" {
		err = export.ServeCSV(w, name+".csv", t)
	} else {
		err = export.ServeXLSX(w, name+".xlsx", t)
	}
	if err != nil {
		// Headers are already out; nothing left to tell the client.
		h.logger.Error("write export", zap.String("kind", string(kind)), zap.Error(err))
	}
}
