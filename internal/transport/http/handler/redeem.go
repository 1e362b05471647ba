package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-redemption-api/internal/application/redemption"
	"github.com/go-redemption-api/internal/domain"
)

// RedeemHandler serves the public redemption form.
type RedeemHandler struct {
	svc redemption.Service
}

func NewRedeemHandler(svc redemption.Service) *RedeemHandler { return &RedeemHandler{svc: svc} }

func (h *RedeemHandler) Validate(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Validate(r.Context(), chi.URLParam(r, "phone"), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *RedeemHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.RedeemRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Phone = chi.URLParam(r, "phone")
	req.Token = chi.URLParam(r, "token")
	res, err := h.svc.Redeem(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
