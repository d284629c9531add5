// Package apihttp exposes the station's local HTTP interface: data entry,
// the pending queue, manual sync, and audit exports.
package apihttp

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"fieldlog/internal/audit"
	"fieldlog/internal/auth"
	equipment "fieldlog/internal/equipment/domain"
	"fieldlog/internal/readings/application"
	readings "fieldlog/internal/readings/domain"
	"fieldlog/internal/syncqueue"
)

const timeLayout = time.RFC3339

// ReadingsHandler accepts operator submissions.
type ReadingsHandler struct {
	intake *application.IntakeService
}

// NewReadingsHandler constructs a ReadingsHandler.
func NewReadingsHandler(intake *application.IntakeService) *ReadingsHandler {
	return &ReadingsHandler{intake: intake}
}

type readingRequest struct {
	ProjectID    string                         `json:"project_id"`
	DateID       string                         `json:"date_id"`
	Hour         int                            `json:"hour"`
	BaseVersion  int64                          `json:"base_version"`
	Fields       map[string]readings.FieldValue `json:"fields"`
	EditedFields []string                       `json:"edited_fields"`
}

type readingResponse struct {
	Key      string            `json:"key,omitempty"`
	Queued   bool              `json:"queued"`
	Errors   map[string]string `json:"errors,omitempty"`
	Warnings map[string]string `json:"warnings,omitempty"`
}

// ServeHTTP handles POST /api/v1/readings.
func (h *ReadingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.intake == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	var req readingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	outcome, err := h.intake.Record(r.Context(), application.RecordInput{
		ProjectID:    req.ProjectID,
		DateID:       req.DateID,
		Hour:         req.Hour,
		BaseVersion:  req.BaseVersion,
		Fields:       req.Fields,
		EditedFields: req.EditedFields,
	})
	switch {
	case errors.Is(err, application.ErrValidationFailed):
		writeJSON(w, http.StatusUnprocessableEntity, readingResponse{
			Queued:   false,
			Errors:   outcome.Result.Errors,
			Warnings: outcome.Result.Warnings,
		})
		return
	case errors.Is(err, equipment.ErrUnknownProject),
		errors.Is(err, readings.ErrHourOutOfRange),
		errors.Is(err, readings.ErrMalformedDateID),
		errors.Is(err, readings.ErrEmptyProjectID):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, "record error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, readingResponse{
		Key:      string(outcome.Entry.Key()),
		Queued:   true,
		Warnings: outcome.Result.Warnings,
	})
}

// PendingHandler serves and discards queued entries.
type PendingHandler struct {
	intake *application.IntakeService
}

// NewPendingHandler constructs a PendingHandler.
func NewPendingHandler(intake *application.IntakeService) *PendingHandler {
	return &PendingHandler{intake: intake}
}

// ServeHTTP handles GET /api/v1/readings/pending and
// DELETE /api/v1/readings/pending/{key}.
func (h *PendingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.intake == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		entries, err := h.intake.Pending(r.Context())
		if err != nil {
			http.Error(w, "list pending error", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []readings.PendingEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodDelete:
		key := strings.TrimPrefix(r.URL.Path, "/api/v1/readings/pending/")
		if key == "" || strings.Contains(key, "/") {
			http.Error(w, "entry key is required", http.StatusBadRequest)
			return
		}
		err := h.intake.Discard(r.Context(), readings.EntryKey(key))
		if errors.Is(err, syncqueue.ErrNotFound) {
			http.Error(w, "no pending entry for key", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "discard error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SyncHandler triggers a queue drain through the intake service.
type SyncHandler struct {
	intake *application.IntakeService
}

// NewSyncHandler constructs a SyncHandler.
func NewSyncHandler(intake *application.IntakeService) *SyncHandler {
	return &SyncHandler{intake: intake}
}

type syncOutcomeView struct {
	Key        string `json:"key"`
	Status     string `json:"status"`
	NewVersion int64  `json:"new_version,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ServeHTTP handles POST /api/v1/sync.
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.intake == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	outcomes, err := h.intake.Flush(r.Context())
	if errors.Is(err, application.ErrNoDrainer) {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, "sync error", http.StatusInternalServerError)
		return
	}

	views := make([]syncOutcomeView, 0, len(outcomes))
	for _, outcome := range outcomes {
		view := syncOutcomeView{
			Key:        string(outcome.Key),
			Status:     string(outcome.Status),
			NewVersion: outcome.NewVersion,
		}
		if outcome.Err != nil {
			view.Error = outcome.Err.Error()
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

// AuditReportHandler exports the audit trail as a PDF.
type AuditReportHandler struct {
	repo *audit.Repository
}

// NewAuditReportHandler constructs an AuditReportHandler.
func NewAuditReportHandler(repo *audit.Repository) *AuditReportHandler {
	return &AuditReportHandler{repo: repo}
}

// ServeHTTP handles GET /api/v1/audit/report.pdf.
func (h *AuditReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.repo == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		http.Error(w, "project_id is required", http.StatusBadRequest)
		return
	}
	since := time.Time{}
	if value := r.URL.Query().Get("since"); value != "" {
		parsed, err := time.Parse(timeLayout, value)
		if err != nil {
			http.Error(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	entries, err := h.repo.ListSince(r.Context(), since)
	if err != nil {
		http.Error(w, "query audit trail error", http.StatusInternalServerError)
		return
	}
	filtered := entries[:0]
	for _, entry := range entries {
		if entry.ProjectID == projectID || entry.ProjectID == "" {
			filtered = append(filtered, entry)
		}
	}

	data, err := audit.BuildTrailPDF(projectID, filtered, time.Now().UTC())
	if err != nil {
		http.Error(w, "build report error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-trail.pdf"`)
	_, _ = w.Write(data)
}

// OperatorMiddleware resolves the acting operator from a bearer token and
// stores the claims on the request context. Requests without a token pass
// through anonymously; a present but invalid token is rejected.
func OperatorMiddleware(secret []byte, logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := auth.ParseOperatorToken(token, secret)
		if err != nil {
			if logger != nil {
				logger.Printf("api: rejected operator token: %v", err)
			}
			http.Error(w, "invalid operator token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithOperator(r.Context(), claims)))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
