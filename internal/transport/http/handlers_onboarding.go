package httptransport

import (
	"net/http"

	"onboarding-gateway/internal/onboarding"
)

type startRequest struct {
	UserID       string `json:"userId"`
	ActivationID string `json:"activationId"`
}

type processResponse struct {
	ProcessID        string                   `json:"processId"`
	OnboardingStatus onboarding.ProcessStatus `json:"onboardingStatus"`
}

type processRequest struct {
	ProcessID string `json:"processId"`
}

type otpVerifyRequest struct {
	ProcessID string `json:"processId"`
	OtpCode   string `json:"otpCode"`
}

type otpVerifyResponse struct {
	ProcessID         string                   `json:"processId"`
	OnboardingStatus  onboarding.ProcessStatus `json:"onboardingStatus"`
	Verified          bool                     `json:"verified"`
	Expired           bool                     `json:"expired"`
	RemainingAttempts int                      `json:"remainingAttempts"`
}

// handleOnboardingStart creates or resumes the user's onboarding process and
// issues an activation code. The code itself travels out of band.
func (h *Handler) handleOnboardingStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.ActivationID == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalidRequest", Message: "userId and activationId are required"})
		return
	}

	p, err := h.processes.Start(r.Context(), req.UserID, req.ActivationID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if _, err := h.otps.Generate(r.Context(), p, onboarding.OtpTypeActivation); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, processResponse{ProcessID: p.ID, OnboardingStatus: p.Status})
}

func (h *Handler) handleOnboardingStatus(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.stores.Processes.FindByID(r.Context(), req.ProcessID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, processResponse{ProcessID: p.ID, OnboardingStatus: p.Status})
}

func (h *Handler) handleOnboardingOtpResend(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.stores.Processes.FindByID(r.Context(), req.ProcessID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if _, err := h.otps.Resend(r.Context(), p, onboarding.OtpTypeActivation); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, processResponse{ProcessID: p.ID, OnboardingStatus: p.Status})
}

func (h *Handler) handleOnboardingOtpVerify(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.otps.Verify(r.Context(), req.ProcessID, req.OtpCode, onboarding.OtpTypeActivation)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, otpVerifyResponse{
		ProcessID:         result.ProcessID,
		OnboardingStatus:  result.ProcessStatus,
		Verified:          result.Verified,
		Expired:           result.Expired,
		RemainingAttempts: result.RemainingAttempts,
	})
}

// handleOnboardingCleanup cancels the process on the user's request.
func (h *Handler) handleOnboardingCleanup(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.stores.Processes.FindByID(r.Context(), req.ProcessID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.otps.Cancel(r.Context(), p, onboarding.OtpTypeActivation); err != nil {
		h.writeError(w, err)
		return
	}
	if _, err := h.processes.Fail(r.Context(), p, onboarding.ErrorProcessCanceled, onboarding.OriginUserRequest); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, processResponse{ProcessID: p.ID, OnboardingStatus: onboarding.ProcessFailed})
}
