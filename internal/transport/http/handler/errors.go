package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-redemption-api/internal/domain"
)

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAlreadyRedeemed):
		return http.StatusGone
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrSoldOut):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err with the structured body its type carries.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var br *domain.BatchRejectedError
	var cf *domain.CommitFailedError
	var lc *domain.LinkConflictError
	switch {
	case errors.As(err, &br):
		writeJSON(w, status, RejectionsEnvelope{Error: "attendees rejected", Rejections: br.Rejections})
		return
	case errors.As(err, &cf):
		writeJSON(w, status, RejectionsEnvelope{Error: "redemption rolled back", AttemptID: cf.AttemptID, Rejections: cf.Failures})
		return
	case errors.As(err, &lc):
		writeJSON(w, status, LinkConflictEnvelope{Error: lc.Reason, Link: lc.Link})
		return
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
