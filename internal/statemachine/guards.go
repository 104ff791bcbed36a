package statemachine

import (
	"context"
	"errors"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/policy"
	"onboarding-gateway/internal/onboarding/store"
)

// Features holds the flow-shaping feature flags. Disabling a stage routes the
// machine around it instead of through it.
type Features struct {
	PresenceCheckEnabled   bool
	OtpVerificationEnabled bool
}

// Guards bundles the transition guards and their dependencies.
type Guards struct {
	documents store.DocumentStore
	otps      store.OtpStore
	features  Features
}

func NewGuards(documents store.DocumentStore, otps store.OtpStore, features Features) *Guards {
	return &Guards{documents: documents, otps: otps, features: features}
}

// ProcessActive verifies the process still accepts verification work.
func (g *Guards) ProcessActive(_ context.Context, f *Flow) (bool, error) {
	if onboarding.ProcessIsTerminal(f.Process) {
		return false, nil
	}
	return true, nil
}

func (g *Guards) PresenceCheckEnabled(_ context.Context, _ *Flow) (bool, error) {
	return g.features.PresenceCheckEnabled, nil
}

func (g *Guards) PresenceCheckDisabled(_ context.Context, _ *Flow) (bool, error) {
	return !g.features.PresenceCheckEnabled, nil
}

func (g *Guards) OtpVerificationEnabled(_ context.Context, _ *Flow) (bool, error) {
	return g.features.OtpVerificationEnabled, nil
}

func (g *Guards) OtpVerificationDisabled(_ context.Context, _ *Flow) (bool, error) {
	return !g.features.OtpVerificationEnabled, nil
}

// DocumentsUploaded passes when the verification has documents and every used
// one finished uploading.
func (g *Guards) DocumentsUploaded(ctx context.Context, f *Flow) (bool, error) {
	documents, err := g.documents.ListUsedForVerification(ctx, f.Verification.ID)
	if err != nil {
		return false, err
	}
	if len(documents) == 0 {
		return false, nil
	}
	for _, d := range documents {
		if d.Status != onboarding.DocumentVerificationPending {
			return false, nil
		}
	}
	return true, nil
}

// RequiredDocumentsPresent passes when the accepted document set satisfies the
// required-document policy.
func (g *Guards) RequiredDocumentsPresent(ctx context.Context, f *Flow) (bool, error) {
	documents, err := g.documents.ListUsedForVerification(ctx, f.Verification.ID)
	if err != nil {
		return false, err
	}
	return policy.RequiredDocumentsPresent(documents), nil
}

// OtpPreconditions verifies the verification actually waits for an OTP.
func (g *Guards) OtpPreconditions(_ context.Context, f *Flow) (bool, error) {
	return f.Verification.Phase == onboarding.PhaseOtpVerification &&
		f.Verification.Status == onboarding.StatusVerificationPending &&
		f.Process.Status == onboarding.ProcessVerificationInProgress, nil
}

// OtpVerified passes once the newest user verification code was verified.
func (g *Guards) OtpVerified(ctx context.Context, f *Flow) (bool, error) {
	o, err := g.otps.FindNewestByProcessAndType(ctx, f.Process.ID, onboarding.OtpTypeUserVerification)
	if errors.Is(err, onboarding.ErrOtpNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return o.Status == onboarding.OtpVerified, nil
}
