package jobs

import (
	"context"

	"go.uber.org/zap"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/store"
	"onboarding-gateway/internal/provider"
)

// CheckDocumentVerifications resolves set-level document verifications that
// the provider left in progress, at identity verification granularity. A
// resolved result lands on the verification row, its documents and the
// result snapshots, then the engine is nudged forward.
func (j *Jobs) CheckDocumentVerifications(ctx context.Context) error {
	verifications, err := j.stores.Verifications.ListByPhaseStatus(ctx, []store.PhaseStatus{
		{Phase: onboarding.PhaseDocumentVerification, Status: onboarding.StatusInProgress},
		{Phase: onboarding.PhaseDocumentVerificationFinal, Status: onboarding.StatusInProgress},
	})
	if err != nil {
		return err
	}

	for _, v := range verifications {
		documents, err := j.stores.Documents.ListUsedForVerification(ctx, v.ID)
		if err != nil {
			j.rowFailed(LockDocumentVerifications, err, zap.String("identity_verification_id", v.ID))
			continue
		}
		verificationID := remoteVerificationID(documents)
		if verificationID == "" {
			// Verification was never started at the provider; the nudge job
			// will restart it through the engine.
			continue
		}

		result, err := j.documents.GetVerificationResult(ctx, ownerOf(v), verificationID)
		if err != nil {
			j.rowFailed(LockDocumentVerifications, err, zap.String("identity_verification_id", v.ID))
			continue
		}
		if result.Status == provider.ResultInProgress {
			continue
		}

		j.applyVerificationToBatch(ctx, documents, result, v.Phase)

		switch result.Status {
		case provider.ResultAccepted:
			v.Status = onboarding.StatusAccepted
		case provider.ResultRejected:
			v.Status = onboarding.StatusRejected
			v.RejectReason = joinReasons(result.RejectReasons)
			v.ErrorOrigin = onboarding.OriginDocumentVerification
		case provider.ResultFailed:
			v.Status = onboarding.StatusFailed
			v.ErrorDetail = result.ErrorDetail
			v.ErrorOrigin = onboarding.OriginDocumentVerification
		}
		v.UpdatedAt = j.now()
		if err := j.stores.Verifications.Update(ctx, v); err != nil {
			j.rowFailed(LockDocumentVerifications, err, zap.String("identity_verification_id", v.ID))
			continue
		}
		j.nudge(ctx, v.ProcessID)
	}
	return nil
}

// remoteVerificationID returns the provider correlation id shared by the
// used documents.
func remoteVerificationID(documents []onboarding.DocumentVerification) string {
	for _, d := range documents {
		if d.VerificationID != "" {
			return d.VerificationID
		}
	}
	return ""
}
