package jobs

import (
	"context"

	"go.uber.org/zap"

	"onboarding-gateway/internal/audit"
	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/store"
	"onboarding-gateway/internal/provider"
)

// EvaluateClients polls the fraud scoring of verifications parked in the
// client evaluation stage. Provider error scores accumulate on the process;
// crossing the limit fails the process and with it the verification.
func (j *Jobs) EvaluateClients(ctx context.Context) error {
	verifications, err := j.stores.Verifications.ListByPhaseStatus(ctx, []store.PhaseStatus{
		{Phase: onboarding.PhaseClientEvaluation, Status: onboarding.StatusInProgress},
	})
	if err != nil {
		return err
	}

	for _, v := range verifications {
		result, err := j.evaluation.EvaluateClient(ctx, ownerOf(v), v.ID)
		if err != nil {
			j.rowFailed(LockClientEvaluations, err, zap.String("identity_verification_id", v.ID))
			continue
		}
		if result.Status == provider.ResultInProgress {
			continue
		}
		if err := j.applyEvaluation(ctx, v, result); err != nil {
			j.rowFailed(LockClientEvaluations, err, zap.String("identity_verification_id", v.ID))
		}
	}
	return nil
}

func (j *Jobs) applyEvaluation(ctx context.Context, v onboarding.IdentityVerification, result provider.EvaluationResult) error {
	p, err := j.stores.Processes.FindByID(ctx, v.ProcessID)
	if err != nil {
		return err
	}
	if result.ErrorScore > 0 {
		if p, err = j.processes.IncrementErrorScore(ctx, p, result.ErrorScore); err != nil {
			return err
		}
		if p, err = j.processes.CheckErrorLimits(ctx, p); err != nil {
			return err
		}
	}

	switch {
	case p.Status == onboarding.ProcessFailed:
		v.Status = onboarding.StatusFailed
		v.ErrorDetail = p.ErrorDetail
		v.ErrorOrigin = onboarding.OriginProcessLimitCheck
	case result.Status == provider.ResultAccepted:
		v.Status = onboarding.StatusAccepted
	case result.Status == provider.ResultRejected:
		v.Status = onboarding.StatusRejected
		v.RejectReason = result.RejectReason
		v.ErrorOrigin = onboarding.OriginClientEvaluation
	default:
		v.Status = onboarding.StatusFailed
		v.ErrorOrigin = onboarding.OriginClientEvaluation
	}
	v.UpdatedAt = j.now()
	if err := j.stores.Verifications.Update(ctx, v); err != nil {
		return err
	}

	if v.Status != onboarding.StatusAccepted {
		j.auditor.Emit(ctx, audit.Event{
			ProcessID:              v.ProcessID,
			IdentityVerificationID: v.ID,
			UserID:                 v.UserID,
			Entity:                 audit.EntityIdentityVerification,
			Action:                 "client_evaluation_failed",
			Detail:                 firstNonEmpty(v.RejectReason, v.ErrorDetail),
		})
		return nil
	}
	j.nudge(ctx, v.ProcessID)
	return nil
}
