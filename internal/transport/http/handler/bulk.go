package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-redemption-api/internal/application/bulk"
	"github.com/go-redemption-api/internal/transport/http/middleware"
)

// BulkHandler serves direct allocation uploads and their rejection reports.
type BulkHandler struct {
	svc bulk.Service
}

func NewBulkHandler(svc bulk.Service) *BulkHandler { return &BulkHandler{svc: svc} }

func (h *BulkHandler) Upload(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer f.Close()

	rows, err := bulk.ParseCSV(f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := h.svc.Allocate(r.Context(), bulk.Request{
		EventID:  chi.URLParam(r, "id"),
		Rows:     rows,
		Price:    r.FormValue("price"),
		Notes:    r.FormValue("notes"),
		IssuedBy: claims.Subject,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *BulkHandler) Report(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
