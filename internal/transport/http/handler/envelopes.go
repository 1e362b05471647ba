package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-redemption-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// RejectionsEnvelope carries per-attendee reasons for a refused or rolled-back batch.
type RejectionsEnvelope struct {
	Error      string             `json:"error"`
	AttemptID  string             `json:"attempt_id,omitempty"`
	Rejections []domain.Rejection `json:"rejections"`
}

// LinkConflictEnvelope carries the live link that blocked a new issue.
type LinkConflictEnvelope struct {
	Error string                 `json:"error"`
	Link  *domain.RedemptionLink `json:"link,omitempty"`
}

// ClaimEnvelope answers a voucher claim without exposing the voucher's phone sets.
type ClaimEnvelope struct {
	Code      string `json:"code"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}
