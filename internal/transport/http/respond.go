package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/document"
	"onboarding-gateway/internal/onboarding/otp"
	"onboarding-gateway/internal/statemachine"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("write response failed", zap.Error(err))
	}
}

// writeError translates domain errors into the JSON error envelope.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var processErr *onboarding.ProcessError
	switch {
	case errors.As(err, &processErr):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: processErr.Code, Message: processErr.Detail})
	case errors.Is(err, onboarding.ErrProcessNotFound),
		errors.Is(err, onboarding.ErrVerificationNotFound),
		errors.Is(err, onboarding.ErrOtpNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "notFound", Message: err.Error()})
	case errors.Is(err, otp.ErrResendTooSoon):
		h.writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "otpResendTooSoon"})
	case errors.Is(err, statemachine.ErrEventNotAccepted):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: "invalidState"})
	case errors.Is(err, document.ErrNotUploadStage):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: "invalidState"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internalError"})
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalidRequest", Message: err.Error()})
		return false
	}
	return true
}
