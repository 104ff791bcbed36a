package mock

import (
	"context"

	"go.uber.org/zap"

	"onboarding-gateway/internal/provider"
)

// EvaluationProvider simulates the client fraud/risk scoring vendor. Scores
// and outcome are fixed so tests can assert threshold behavior by adjusting
// process limits instead of vendor responses.
type EvaluationProvider struct {
	Score  int
	Reject bool
	logger *zap.Logger
}

func NewEvaluationProvider(logger *zap.Logger) *EvaluationProvider {
	logger.Warn("using mocked client evaluation provider")
	return &EvaluationProvider{logger: logger}
}

func (p *EvaluationProvider) EvaluateClient(_ context.Context, owner provider.Owner, verificationID string) (provider.EvaluationResult, error) {
	result := provider.EvaluationResult{
		Status:     provider.ResultAccepted,
		ErrorScore: p.Score,
	}
	if p.Reject {
		result.Status = provider.ResultRejected
		result.RejectReason = "client evaluation rejected"
	}
	p.logger.Info("mock evaluated client",
		zap.String("verification_id", verificationID), zap.String("owner", owner.String()))
	return result, nil
}
