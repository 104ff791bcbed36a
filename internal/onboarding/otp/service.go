// Package otp implements one-time-code challenges bound to onboarding
// processes. Codes are stored as bcrypt digests; the plain code only exists in
// the delivery path.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"onboarding-gateway/internal/audit"
	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/process"
	"onboarding-gateway/internal/onboarding/store"
)

// ErrResendTooSoon is returned when a resend is requested before the minimum
// resend period elapsed.
var ErrResendTooSoon = errors.New("otp resend period has not elapsed yet")

// Config holds the OTP tuning knobs.
type Config struct {
	Length            int
	Expiration        time.Duration
	ResendPeriod      time.Duration
	MaxFailedAttempts int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Length:            8,
		Expiration:        30 * time.Second,
		ResendPeriod:      30 * time.Second,
		MaxFailedAttempts: 5,
	}
}

// VerifyResult reports the outcome of one verification attempt.
type VerifyResult struct {
	ProcessID         string
	ProcessStatus     onboarding.ProcessStatus
	Verified          bool
	Expired           bool
	RemainingAttempts int
}

// Service manages OTP challenges.
type Service struct {
	otps          store.OtpStore
	processes     store.ProcessStore
	verifications store.VerificationStore
	limits        *process.Service
	cfg           Config
	weights       process.Limits
	auditor       *audit.Publisher
	logger        *zap.Logger
	now           func() time.Time
}

type Option func(*Service)

func WithAuditPublisher(publisher *audit.Publisher) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(stores store.Stores, limits *process.Service, weights process.Limits, cfg Config, opts ...Option) (*Service, error) {
	if stores.Otps == nil || stores.Processes == nil || stores.Verifications == nil {
		return nil, fmt.Errorf("otp, process and verification stores are required")
	}
	if limits == nil {
		return nil, fmt.Errorf("process service is required")
	}

	svc := &Service{
		otps:          stores.Otps,
		processes:     stores.Processes,
		verifications: stores.Verifications,
		limits:        limits,
		cfg:           cfg,
		weights:       weights,
		logger:        zap.NewNop(),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Generate creates a new ACTIVE code for the process and returns the plain
// code for delivery. Any previously active code of the same type stays as is;
// use Resend to invalidate it first.
func (s *Service) Generate(ctx context.Context, p onboarding.Process, t onboarding.OtpType) (string, error) {
	code, err := GenerateNumericCode(s.cfg.Length)
	if err != nil {
		return "", err
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("digest otp code: %w", err)
	}

	now := s.now()
	o := onboarding.Otp{
		ID:         uuid.NewString(),
		ProcessID:  p.ID,
		CodeDigest: digest,
		Status:     onboarding.OtpActive,
		Type:       t,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.Expiration),
		UpdatedAt:  now,
	}
	if t == onboarding.OtpTypeUserVerification {
		v, err := s.verifications.FindNewestByProcessID(ctx, p.ID)
		if err == nil {
			o.IdentityVerificationID = v.ID
		} else if !errors.Is(err, onboarding.ErrVerificationNotFound) {
			return "", err
		}
	}
	if err := s.otps.Create(ctx, o); err != nil {
		return "", err
	}
	s.auditor.Emit(ctx, audit.Event{
		ProcessID: p.ID,
		UserID:    p.UserID,
		Entity:    audit.EntityOtp,
		Action:    "otp_generated",
		Detail:    string(t),
	})
	return code, nil
}

// Resend invalidates the newest code of the type and issues a fresh one. The
// minimum resend period guards against OTP delivery spam.
func (s *Service) Resend(ctx context.Context, p onboarding.Process, t onboarding.OtpType) (string, error) {
	previous, err := s.otps.FindNewestByProcessAndType(ctx, p.ID, t)
	if err != nil {
		return "", err
	}

	now := s.now()
	if now.Sub(previous.CreatedAt) < s.cfg.ResendPeriod {
		s.logger.Warn("otp resend not available yet", zap.String("process_id", p.ID))
		return "", ErrResendTooSoon
	}

	if previous.Status != onboarding.OtpFailed {
		previous.Status = onboarding.OtpFailed
		previous.ErrorDetail = onboarding.ErrorOtpResend
		previous.ErrorOrigin = onboarding.OriginOtpVerification
		previous.UpdatedAt = now
		previous.FailedAt = &now
		if err := s.otps.Update(ctx, previous); err != nil {
			return "", err
		}
		s.auditor.Emit(ctx, audit.Event{
			ProcessID: p.ID,
			UserID:    p.UserID,
			Entity:    audit.EntityOtp,
			Action:    "otp_resent",
			Detail:    string(t),
		})
	}

	return s.Generate(ctx, p, t)
}

// Cancel fails the newest code of the type, if one is still pending.
func (s *Service) Cancel(ctx context.Context, p onboarding.Process, t onboarding.OtpType) error {
	o, err := s.otps.FindNewestByProcessAndType(ctx, p.ID, t)
	if errors.Is(err, onboarding.ErrOtpNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if o.Status == onboarding.OtpFailed {
		return nil
	}
	now := s.now()
	o.Status = onboarding.OtpFailed
	o.ErrorDetail = onboarding.ErrorOtpCanceled
	o.ErrorOrigin = onboarding.OriginOtpVerification
	o.UpdatedAt = now
	o.FailedAt = &now
	if err := s.otps.Update(ctx, o); err != nil {
		return err
	}
	s.auditor.Emit(ctx, audit.Event{
		ProcessID: p.ID,
		UserID:    p.UserID,
		Entity:    audit.EntityOtp,
		Action:    "otp_canceled",
		Detail:    string(t),
	})
	return nil
}

// Verify checks the submitted code against the newest challenge of the type.
// Failed attempts count in aggregate across all codes of the process and type;
// exhausting them fails the process (ACTIVATION) or resets the identity
// verification (USER_VERIFICATION).
func (s *Service) Verify(ctx context.Context, processID, code string, t onboarding.OtpType) (VerifyResult, error) {
	p, err := s.processes.FindByID(ctx, processID)
	if err != nil {
		return VerifyResult{}, err
	}
	o, err := s.otps.FindNewestByProcessAndType(ctx, processID, t)
	if err != nil {
		return VerifyResult{}, err
	}

	failedAttempts, err := s.otps.CountFailedAttempts(ctx, processID, t)
	if err != nil {
		return VerifyResult{}, err
	}

	now := s.now()
	result := VerifyResult{ProcessID: processID}

	switch {
	case o.Status != onboarding.OtpActive:
		s.logger.Warn("verification attempt on inactive otp",
			zap.String("process_id", processID), zap.String("otp_id", o.ID))

	case failedAttempts >= s.cfg.MaxFailedAttempts:
		s.logger.Warn("verification attempt after exhausted otp attempts",
			zap.String("process_id", processID))
		p, err = s.failProcessOrResetVerification(ctx, p, t)
		if err != nil {
			return VerifyResult{}, err
		}

	case onboarding.OtpHasExpired(o):
		result.Expired = true
		o.Status = onboarding.OtpFailed
		o.ErrorDetail = onboarding.ErrorOtpExpired
		o.ErrorOrigin = onboarding.OriginOtpVerification
		o.UpdatedAt = now
		o.FailedAt = &now
		if err := s.otps.Update(ctx, o); err != nil {
			return VerifyResult{}, err
		}
		s.auditor.Emit(ctx, audit.Event{
			ProcessID: processID,
			UserID:    p.UserID,
			Entity:    audit.EntityOtp,
			Action:    "otp_expired",
		})

	case bcrypt.CompareHashAndPassword(o.CodeDigest, []byte(code)) == nil:
		result.Verified = true
		o.Status = onboarding.OtpVerified
		o.TotalAttempts++
		o.UpdatedAt = now
		o.VerifiedAt = &now
		if err := s.otps.Update(ctx, o); err != nil {
			return VerifyResult{}, err
		}
		s.auditor.Emit(ctx, audit.Event{
			ProcessID: processID,
			UserID:    p.UserID,
			Entity:    audit.EntityOtp,
			Action:    "otp_verified",
			Detail:    string(t),
		})

	default:
		o, p, err = s.handleFailedAttempt(ctx, p, o, t)
		if err != nil {
			return VerifyResult{}, err
		}
	}

	result.ProcessStatus = p.Status
	if o.Status == onboarding.OtpActive {
		result.RemainingAttempts = s.cfg.MaxFailedAttempts - o.FailedAttempts
	}
	return result, nil
}

// handleFailedAttempt records one wrong code. Exhaustion fails the code and
// escalates per type; short of exhaustion the process error score grows and
// the process limit check may still end the process.
func (s *Service) handleFailedAttempt(ctx context.Context, p onboarding.Process, o onboarding.Otp, t onboarding.OtpType) (onboarding.Otp, onboarding.Process, error) {
	now := s.now()
	o.FailedAttempts++
	o.TotalAttempts++
	o.UpdatedAt = now
	if err := s.otps.Update(ctx, o); err != nil {
		return o, p, err
	}

	failedAttempts, err := s.otps.CountFailedAttempts(ctx, p.ID, t)
	if err != nil {
		return o, p, err
	}

	if failedAttempts >= s.cfg.MaxFailedAttempts {
		o.Status = onboarding.OtpFailed
		o.ErrorDetail = onboarding.ErrorOtpMaxFailedAttempts
		o.ErrorOrigin = onboarding.OriginOtpVerification
		o.FailedAt = &now
		if err := s.otps.Update(ctx, o); err != nil {
			return o, p, err
		}
		s.auditor.Emit(ctx, audit.Event{
			ProcessID: p.ID,
			UserID:    p.UserID,
			Entity:    audit.EntityOtp,
			Action:    "otp_attempts_exhausted",
			Detail:    string(t),
		})
		p, err = s.failProcessOrResetVerification(ctx, p, t)
		return o, p, err
	}

	points := s.weights.ScoreActivationOtpFailed
	if t == onboarding.OtpTypeUserVerification {
		points = s.weights.ScoreUserVerificationOtpFailed
	}
	p, err = s.limits.IncrementErrorScore(ctx, p, points)
	if err != nil {
		return o, p, err
	}
	p, err = s.limits.CheckErrorLimits(ctx, p)
	if err != nil {
		return o, p, err
	}

	// The process may have just failed on the error score; the pending code
	// must not stay usable.
	if p.Status == onboarding.ProcessFailed {
		o.Status = onboarding.OtpFailed
		o.ErrorDetail = p.ErrorDetail
		o.ErrorOrigin = onboarding.OriginOtpVerification
		o.FailedAt = &now
		if err := s.otps.Update(ctx, o); err != nil {
			return o, p, err
		}
	}
	return o, p, nil
}

// failProcessOrResetVerification escalates OTP exhaustion: activation codes
// fail the whole process, user verification codes reset the current identity
// verification so the user can retry within the process limits.
func (s *Service) failProcessOrResetVerification(ctx context.Context, p onboarding.Process, t onboarding.OtpType) (onboarding.Process, error) {
	if t == onboarding.OtpTypeUserVerification {
		if err := s.limits.ResetIdentityVerification(ctx, p.ID); err != nil {
			var procErr *onboarding.ProcessError
			if !errors.As(err, &procErr) {
				return p, err
			}
			s.logger.Warn("identity verification reset hit process limit",
				zap.String("process_id", p.ID), zap.String("code", procErr.Code))
		}
		// The reset may have failed the process; reload the current row.
		return s.processes.FindByID(ctx, p.ID)
	}
	return s.limits.Fail(ctx, p, onboarding.ErrorOtpMaxFailedAttempts, onboarding.OriginProcessLimitCheck)
}
