package jobs

import (
	"context"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/store"
)

// nudgeablePairs are the states a verification can leave without external
// input once its pending work resolved.
var nudgeablePairs = []store.PhaseStatus{
	{Phase: onboarding.PhaseDocumentUpload, Status: onboarding.StatusInProgress},
	{Phase: onboarding.PhaseDocumentUpload, Status: onboarding.StatusVerificationPending},
	{Phase: onboarding.PhaseDocumentVerification, Status: onboarding.StatusAccepted},
	{Phase: onboarding.PhaseDocumentVerificationFinal, Status: onboarding.StatusAccepted},
	{Phase: onboarding.PhaseClientEvaluation, Status: onboarding.StatusAccepted},
	{Phase: onboarding.PhasePresenceCheck, Status: onboarding.StatusVerificationPending},
	{Phase: onboarding.PhaseOtpVerification, Status: onboarding.StatusVerificationPending},
}

// NudgeVerifications sweeps verifications that may be able to advance and
// pushes the next-state event into the engine. A machine that cannot move
// settles without effect, so the sweep is safe to repeat.
func (j *Jobs) NudgeVerifications(ctx context.Context) error {
	verifications, err := j.stores.Verifications.ListByPhaseStatus(ctx, nudgeablePairs)
	if err != nil {
		return err
	}
	for _, v := range verifications {
		j.nudge(ctx, v.ProcessID)
	}
	return nil
}
