// Package statemachine drives identity verifications through their lifecycle.
// The machine is stateless per invocation: the current state is derived from
// the persisted (phase, status) pair, transitions run as plain functions and
// the row is persisted after every state change.
package statemachine

import "onboarding-gateway/internal/onboarding"

// State is a named machine state backed by a persisted (phase, status) pair.
// Initial is the only state without a persisted row.
type State string

const (
	StateInitial State = "INITIAL"

	StateDocumentUploadInProgress         State = "DOCUMENT_UPLOAD_IN_PROGRESS"
	StateDocumentUploadVerificationPending State = "DOCUMENT_UPLOAD_VERIFICATION_PENDING"

	StateDocumentVerificationInProgress State = "DOCUMENT_VERIFICATION_IN_PROGRESS"
	StateDocumentVerificationAccepted   State = "DOCUMENT_VERIFICATION_ACCEPTED"
	StateDocumentVerificationRejected   State = "DOCUMENT_VERIFICATION_REJECTED"
	StateDocumentVerificationFailed     State = "DOCUMENT_VERIFICATION_FAILED"

	StateDocumentVerificationFinalInProgress State = "DOCUMENT_VERIFICATION_FINAL_IN_PROGRESS"
	StateDocumentVerificationFinalAccepted   State = "DOCUMENT_VERIFICATION_FINAL_ACCEPTED"
	StateDocumentVerificationFinalRejected   State = "DOCUMENT_VERIFICATION_FINAL_REJECTED"
	StateDocumentVerificationFinalFailed     State = "DOCUMENT_VERIFICATION_FINAL_FAILED"

	StateClientEvaluationInProgress State = "CLIENT_EVALUATION_IN_PROGRESS"
	StateClientEvaluationAccepted   State = "CLIENT_EVALUATION_ACCEPTED"
	StateClientEvaluationRejected   State = "CLIENT_EVALUATION_REJECTED"
	StateClientEvaluationFailed     State = "CLIENT_EVALUATION_FAILED"

	StatePresenceCheckNotInitialized      State = "PRESENCE_CHECK_NOT_INITIALIZED"
	StatePresenceCheckInProgress          State = "PRESENCE_CHECK_IN_PROGRESS"
	StatePresenceCheckVerificationPending State = "PRESENCE_CHECK_VERIFICATION_PENDING"
	StatePresenceCheckRejected            State = "PRESENCE_CHECK_REJECTED"
	StatePresenceCheckFailed              State = "PRESENCE_CHECK_FAILED"

	StateOtpVerificationPending State = "OTP_VERIFICATION_PENDING"

	StateCompletedAccepted State = "COMPLETED_ACCEPTED"
	StateCompletedRejected State = "COMPLETED_REJECTED"
	StateCompletedFailed   State = "COMPLETED_FAILED"

	// StateUnexpected is reported when a row carries a (phase, status) pair
	// outside the legal state set. It has no outgoing transitions.
	StateUnexpected State = "UNEXPECTED_STATE"
)

type pair struct {
	phase  onboarding.Phase
	status onboarding.VerificationStatus
}

var statePairs = map[State]pair{
	StateDocumentUploadInProgress:          {onboarding.PhaseDocumentUpload, onboarding.StatusInProgress},
	StateDocumentUploadVerificationPending: {onboarding.PhaseDocumentUpload, onboarding.StatusVerificationPending},

	StateDocumentVerificationInProgress: {onboarding.PhaseDocumentVerification, onboarding.StatusInProgress},
	StateDocumentVerificationAccepted:   {onboarding.PhaseDocumentVerification, onboarding.StatusAccepted},
	StateDocumentVerificationRejected:   {onboarding.PhaseDocumentVerification, onboarding.StatusRejected},
	StateDocumentVerificationFailed:     {onboarding.PhaseDocumentVerification, onboarding.StatusFailed},

	StateDocumentVerificationFinalInProgress: {onboarding.PhaseDocumentVerificationFinal, onboarding.StatusInProgress},
	StateDocumentVerificationFinalAccepted:   {onboarding.PhaseDocumentVerificationFinal, onboarding.StatusAccepted},
	StateDocumentVerificationFinalRejected:   {onboarding.PhaseDocumentVerificationFinal, onboarding.StatusRejected},
	StateDocumentVerificationFinalFailed:     {onboarding.PhaseDocumentVerificationFinal, onboarding.StatusFailed},

	StateClientEvaluationInProgress: {onboarding.PhaseClientEvaluation, onboarding.StatusInProgress},
	StateClientEvaluationAccepted:   {onboarding.PhaseClientEvaluation, onboarding.StatusAccepted},
	StateClientEvaluationRejected:   {onboarding.PhaseClientEvaluation, onboarding.StatusRejected},
	StateClientEvaluationFailed:     {onboarding.PhaseClientEvaluation, onboarding.StatusFailed},

	StatePresenceCheckNotInitialized:      {onboarding.PhasePresenceCheck, onboarding.StatusNotInitialized},
	StatePresenceCheckInProgress:          {onboarding.PhasePresenceCheck, onboarding.StatusInProgress},
	StatePresenceCheckVerificationPending: {onboarding.PhasePresenceCheck, onboarding.StatusVerificationPending},
	StatePresenceCheckRejected:            {onboarding.PhasePresenceCheck, onboarding.StatusRejected},
	StatePresenceCheckFailed:              {onboarding.PhasePresenceCheck, onboarding.StatusFailed},

	StateOtpVerificationPending: {onboarding.PhaseOtpVerification, onboarding.StatusVerificationPending},

	StateCompletedAccepted: {onboarding.PhaseCompleted, onboarding.StatusAccepted},
	StateCompletedRejected: {onboarding.PhaseCompleted, onboarding.StatusRejected},
	StateCompletedFailed:   {onboarding.PhaseCompleted, onboarding.StatusFailed},
}

var pairStates = func() map[pair]State {
	m := make(map[pair]State, len(statePairs))
	for s, p := range statePairs {
		m[p] = s
	}
	return m
}()

// StateFor derives the machine state from a persisted (phase, status) pair.
func StateFor(phase onboarding.Phase, status onboarding.VerificationStatus) State {
	if s, ok := pairStates[pair{phase, status}]; ok {
		return s
	}
	return StateUnexpected
}

// Pair returns the persisted (phase, status) pair of the state. The second
// return is false for states without a persisted pair.
func (s State) Pair() (onboarding.Phase, onboarding.VerificationStatus, bool) {
	p, ok := statePairs[s]
	return p.phase, p.status, ok
}

// IsTerminal reports whether the state has no outgoing transitions because the
// verification reached its end.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompletedAccepted, StateCompletedRejected, StateCompletedFailed:
		return true
	}
	return false
}

// Event triggers transitions. EventNextState is the reconciliation nudge sent
// by schedulers and re-dispatched internally after every state change.
type Event string

const (
	EventIdentityVerificationInit Event = "IDENTITY_VERIFICATION_INIT"
	EventPresenceCheckInit        Event = "PRESENCE_CHECK_INIT"
	EventPresenceCheckSubmitted   Event = "PRESENCE_CHECK_SUBMITTED"
	EventOtpVerificationSend      Event = "OTP_VERIFICATION_SEND"
	EventOtpVerificationResend    Event = "OTP_VERIFICATION_RESEND"
	EventNextState                Event = "EVENT_NEXT_STATE"
)
