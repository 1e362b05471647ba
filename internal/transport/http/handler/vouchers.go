package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-redemption-api/internal/application/catalog"
	"github.com/go-redemption-api/internal/application/voucher"
	"github.com/go-redemption-api/internal/domain"
)

// VoucherHandler serves voucher claims and the admin voucher endpoints.
type VoucherHandler struct {
	svc     voucher.Service
	catalog catalog.Service
}

func NewVoucherHandler(svc voucher.Service, cat catalog.Service) *VoucherHandler {
	return &VoucherHandler{svc: svc, catalog: cat}
}

type phoneBody struct {
	Phone string `json:"phone"`
}

func (h *VoucherHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var body phoneBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := h.svc.Claim(r.Context(), chi.URLParam(r, "code"), body.Phone)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ClaimEnvelope{Code: v.Code, Remaining: v.Remaining, Message: "voucher claimed"})
}

func (h *VoucherHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := h.catalog.CreateVoucher(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *VoucherHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *VoucherHandler) RedeemAtVenue(w http.ResponseWriter, r *http.Request) {
	var body phoneBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := h.svc.RedeemAtVenue(r.Context(), chi.URLParam(r, "code"), body.Phone)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
