package httptransport

import (
	"errors"
	"net/http"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/document"
	"onboarding-gateway/internal/platform/middleware"
	"onboarding-gateway/internal/provider"
	"onboarding-gateway/internal/statemachine"
)

type identityStateResponse struct {
	ProcessID              string                        `json:"processId"`
	IdentityVerificationID string                        `json:"identityVerificationId,omitempty"`
	Phase                  onboarding.Phase              `json:"phase,omitempty"`
	Status                 onboarding.VerificationStatus `json:"status,omitempty"`
	State                  statemachine.State            `json:"state"`
}

type documentSubmitRequest struct {
	Documents []struct {
		Filename string                  `json:"filename"`
		Type     onboarding.DocumentType `json:"type"`
		Side     onboarding.CardSide     `json:"side,omitempty"`
		Data     []byte                  `json:"data"`
	} `json:"documents"`
}

type documentSubmitResponse struct {
	Documents []submittedDocument `json:"documents"`
}

type submittedDocument struct {
	ID       string                    `json:"id"`
	Type     onboarding.DocumentType   `json:"type"`
	Side     onboarding.CardSide       `json:"side,omitempty"`
	Status   onboarding.DocumentStatus `json:"status"`
	UploadID string                    `json:"uploadId,omitempty"`
}

type sdkInitRequest struct {
	Attributes map[string]string `json:"attributes"`
}

type sdkInitResponse struct {
	Attributes map[string]string `json:"attributes"`
}

type presenceSessionResponse struct {
	SessionAttributes provider.SessionInfo `json:"sessionAttributes"`
}

type identityOtpVerifyRequest struct {
	OtpCode string `json:"otpCode"`
}

// callerProcess resolves the process of the authenticated activation.
func (h *Handler) callerProcess(w http.ResponseWriter, r *http.Request) (onboarding.Process, bool) {
	activationID := middleware.GetActivationID(r.Context())
	p, err := h.stores.Processes.FindByActivationID(r.Context(), activationID)
	if err != nil {
		h.writeError(w, err)
		return onboarding.Process{}, false
	}
	return p, true
}

func ownerOf(p onboarding.Process) provider.Owner {
	return provider.Owner{ProcessID: p.ID, ActivationID: p.ActivationID, UserID: p.UserID}
}

func (h *Handler) handleIdentityInit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.callerProcess(w, r)
	if !ok {
		return
	}
	state, err := h.engine.Dispatch(r.Context(), p.ID, statemachine.EventIdentityVerificationInit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeIdentityState(w, r, p, state)
}

func (h *Handler) handleIdentityStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := h.callerProcess(w, r)
	if !ok {
		return
	}
	v, err := h.stores.Verifications.FindNewestByProcessID(r.Context(), p.ID)
	if errors.Is(err, onboarding.ErrVerificationNotFound) {
		h.writeJSON(w, http.StatusOK, identityStateResponse{ProcessID: p.ID, State: statemachine.StateInitial})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, identityStateResponse{
		ProcessID:              p.ID,
		IdentityVerificationID: v.ID,
		Phase:                  v.Phase,
		Status:                 v.Status,
		State:                  statemachine.StateFor(v.Phase, v.Status),
	})
}

func (h *Handler) handleDocumentSubmit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.callerProcess(w, r)
	if !ok {
		return
	}
	var req documentSubmitRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.stores.Verifications.FindNewestByProcessID(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	requests := make([]document.SubmitRequest, 0, len(req.Documents))
	for _, d := range req.Documents {
		requests = append(requests, document.SubmitRequest{
			Filename: d.Filename,
			Type:     d.Type,
			Side:     d.Side,
			Data:     d.Data,
		})
	}
	created, err := h.documents.Submit(r.Context(), ownerOf(p), v, requests)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Advance the machine in case the whole batch already cleared upload.
	if _, err := h.engine.Dispatch(r.Context(), p.ID, statemachine.EventNextState); err != nil {
		h.writeError(w, err)
		return
	}

	resp := documentSubmitResponse{}
	for _, d := range created {
		resp.Documents = append(resp.Documents, submittedDocument{
			ID:       d.ID,
			Type:     d.Type,
			Side:     d.Side,
			Status:   d.Status,
			UploadID: d.UploadID,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSdkInit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.callerProcess(w, r)
	if !ok {
		return
	}
	var req sdkInitRequest
	if !h.decode(w, r, &req) {
		return
	}
	info, err := h.docVendor.InitVerificationSDK(r.Context(), ownerOf(p), req.Attributes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sdkInitResponse{Attributes: info.Attributes})
}

func (h *Handler) handlePresenceCheckInit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.callerProcess(w, r)
	if !ok {
		return
	}
	if _, err := h.engine.Dispatch(r.Context(), p.ID, statemachine.EventPresenceCheckInit); err != nil {
		h.writeError(w, err)
		return
	}
	v, err := h.stores.Verifications.FindNewestByProcessID(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	session, err := provider.DecodeSession(v.SessionInfo)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, presenceSessionResponse{SessionAttributes: session})
}

func (h *Handler) handlePresenceCheckSubmit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.callerProcess(w, r)
	if !ok {
		return
	}
	state, err := h.engine.Dispatch(r.Context(), p.ID, statemachine.EventPresenceCheckSubmitted)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeIdentityState(w, r, p, state)
}

func (h *Handler) handleIdentityOtpSend(w http.ResponseWriter, r *http.Request) {
	h.dispatchOtpEvent(w, r, statemachine.EventOtpVerificationSend)
}

func (h *Handler) handleIdentityOtpResend(w http.ResponseWriter, r *http.Request) {
	h.dispatchOtpEvent(w, r, statemachine.EventOtpVerificationResend)
}

func (h *Handler) dispatchOtpEvent(w http.ResponseWriter, r *http.Request, event statemachine.Event) {
	p, ok := h.callerProcess(w, r)
	if !ok {
		return
	}
	state, err := h.engine.Dispatch(r.Context(), p.ID, event)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeIdentityState(w, r, p, state)
}

func (h *Handler) handleIdentityOtpVerify(w http.ResponseWriter, r *http.Request) {
	p, ok := h.callerProcess(w, r)
	if !ok {
		return
	}
	var req identityOtpVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.otps.Verify(r.Context(), p.ID, req.OtpCode, onboarding.OtpTypeUserVerification)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result.Verified {
		if _, err := h.engine.Dispatch(r.Context(), p.ID, statemachine.EventNextState); err != nil {
			h.writeError(w, err)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, otpVerifyResponse{
		ProcessID:         result.ProcessID,
		OnboardingStatus:  result.ProcessStatus,
		Verified:          result.Verified,
		Expired:           result.Expired,
		RemainingAttempts: result.RemainingAttempts,
	})
}

// handleIdentityCleanup disposes the uploaded documents and resets the
// current verification attempt, within the process retry limits.
func (h *Handler) handleIdentityCleanup(w http.ResponseWriter, r *http.Request) {
	p, ok := h.callerProcess(w, r)
	if !ok {
		return
	}
	v, err := h.stores.Verifications.FindNewestByProcessID(r.Context(), p.ID)
	if err != nil && !errors.Is(err, onboarding.ErrVerificationNotFound) {
		h.writeError(w, err)
		return
	}
	if err == nil {
		if err := h.documents.Cleanup(r.Context(), ownerOf(p), v.ID); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if err := h.processes.ResetIdentityVerification(r.Context(), p.ID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, processResponse{ProcessID: p.ID, OnboardingStatus: p.Status})
}

func (h *Handler) writeIdentityState(w http.ResponseWriter, r *http.Request, p onboarding.Process, state statemachine.State) {
	resp := identityStateResponse{ProcessID: p.ID, State: state}
	if v, err := h.stores.Verifications.FindNewestByProcessID(r.Context(), p.ID); err == nil {
		resp.IdentityVerificationID = v.ID
		resp.Phase = v.Phase
		resp.Status = v.Status
	}
	h.writeJSON(w, http.StatusOK, resp)
}
