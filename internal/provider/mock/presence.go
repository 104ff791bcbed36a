package mock

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"onboarding-gateway/internal/provider"
)

const verificationTokenKey = "mockVerificationToken"

// PresenceProvider simulates a liveness vendor that accepts everyone.
type PresenceProvider struct {
	logger *zap.Logger
}

func NewPresenceProvider(logger *zap.Logger) *PresenceProvider {
	logger.Warn("using mocked presence check provider")
	return &PresenceProvider{logger: logger}
}

func (p *PresenceProvider) InitPresenceCheck(_ context.Context, owner provider.Owner, _ provider.Image) error {
	p.logger.Info("mock initialized presence check with a photo", zap.String("owner", owner.String()))
	return nil
}

func (p *PresenceProvider) ShouldProvideTrustedPhoto() bool {
	return true
}

func (p *PresenceProvider) StartPresenceCheck(_ context.Context, owner provider.Owner) (provider.SessionInfo, error) {
	session := provider.SessionInfo{verificationTokenKey: uuid.NewString()}
	p.logger.Info("mock started presence check", zap.String("owner", owner.String()))
	return session, nil
}

func (p *PresenceProvider) GetPresenceCheckResult(_ context.Context, owner provider.Owner, _ provider.SessionInfo) (provider.PresenceCheckResult, error) {
	p.logger.Info("mock provided accepted presence result", zap.String("owner", owner.String()))
	return provider.PresenceCheckResult{
		Status: provider.ResultAccepted,
		Photo:  provider.Image{Filename: "person_photo_from_mock.jpg", Data: []byte("mock-photo")},
	}, nil
}

func (p *PresenceProvider) CleanupIdentityData(_ context.Context, owner provider.Owner) error {
	p.logger.Info("mock cleaned up identity data", zap.String("owner", owner.String()))
	return nil
}
