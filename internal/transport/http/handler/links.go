package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redemption-api/internal/application/catalog"
	"github.com/go-redemption-api/internal/application/redemption"
	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/transport/http/middleware"
)

// AdminHandler serves link issuance and event management for admins.
type AdminHandler struct {
	links      redemption.Service
	catalog    catalog.Service
	recoverAge time.Duration
}

// NewAdminHandler builds the handler. recoverAge is how long an attempt must have been idle
// before an on-demand recovery pass touches it.
func NewAdminHandler(links redemption.Service, cat catalog.Service, recoverAge time.Duration) *AdminHandler {
	return &AdminHandler{links: links, catalog: cat, recoverAge: recoverAge}
}

func (h *AdminHandler) IssueLink(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.IssueLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.IssuedBy = claims.Subject
	issued, err := h.links.Issue(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

func (h *AdminHandler) ResendLink(w http.ResponseWriter, r *http.Request) {
	issued, err := h.links.Resend(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, issued)
}

func (h *AdminHandler) RevokeLink(w http.ResponseWriter, r *http.Request) {
	if err := h.links.Revoke(r.Context(), chi.URLParam(r, "token")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "link revoked"})
}

func (h *AdminHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ev, err := h.catalog.CreateEvent(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (h *AdminHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.catalog.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *AdminHandler) Recover(w http.ResponseWriter, r *http.Request) {
	report, err := h.links.Recover(r.Context(), h.recoverAge)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
