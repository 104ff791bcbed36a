// Package jobs holds the reconciliation work that resolves asynchronous
// provider outcomes and drives parked identity verifications forward. Every
// job processes rows independently: a transient provider failure leaves the
// row for the next tick, anything else is logged and the batch continues.
package jobs

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"onboarding-gateway/internal/audit"
	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/process"
	"onboarding-gateway/internal/onboarding/store"
	"onboarding-gateway/internal/provider"
	"onboarding-gateway/internal/statemachine"
)

// Lease names, one per job. Shared across instances, so the values are part
// of the deployment contract.
const (
	LockDocumentSubmitCheck         = "documentSubmitCheck"
	LockDocumentSubmitVerifications = "documentSubmitVerifications"
	LockDocumentVerifications       = "documentVerifications"
	LockClientEvaluations           = "processClientEvaluations"
	LockStateMachineNudge           = "stateMachineNudge"
)

// Jobs bundles the reconciliation jobs and their collaborators.
type Jobs struct {
	stores     store.Stores
	engine     *statemachine.Engine
	processes  *process.Service
	documents  provider.DocumentProvider
	evaluation provider.EvaluationProvider
	auditor    *audit.Publisher
	logger     *zap.Logger
	now        func() time.Time
}

func New(
	stores store.Stores,
	engine *statemachine.Engine,
	processes *process.Service,
	documents provider.DocumentProvider,
	evaluation provider.EvaluationProvider,
	auditor *audit.Publisher,
	logger *zap.Logger,
) *Jobs {
	return &Jobs{
		stores:     stores,
		engine:     engine,
		processes:  processes,
		documents:  documents,
		evaluation: evaluation,
		auditor:    auditor,
		logger:     logger,
		now:        time.Now,
	}
}

// rowFailed logs a per-row failure without aborting the batch. Transient
// provider errors are expected and stay at warn level.
func (j *Jobs) rowFailed(job string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("job", job), zap.Error(err))
	if provider.IsRemote(err) {
		j.logger.Warn("provider not reachable, row left for next tick", fields...)
		return
	}
	j.logger.Error("row processing failed", fields...)
}

// nudge pushes the engine forward after a reconciled result. A settled
// machine is not an error.
func (j *Jobs) nudge(ctx context.Context, processID string) {
	if _, err := j.engine.Dispatch(ctx, processID, statemachine.EventNextState); err != nil {
		j.logger.Error("state machine nudge failed",
			zap.String("process_id", processID), zap.Error(err))
	}
}

func joinReasons(reasons []string) string {
	return strings.Join(reasons, "; ")
}

func ownerOf(v onboarding.IdentityVerification) provider.Owner {
	return provider.Owner{
		ProcessID:    v.ProcessID,
		ActivationID: v.ActivationID,
		UserID:       v.UserID,
	}
}
