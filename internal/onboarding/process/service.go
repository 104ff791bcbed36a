// Package process owns the onboarding process lifecycle: starting processes,
// accumulating the error score and enforcing process-level limits.
package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"onboarding-gateway/internal/audit"
	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/store"
)

// Limits configures the process-level guard rails. Score weights express how
// strongly each failure kind counts towards the error score threshold.
type Limits struct {
	MaxErrorScore                  int
	MaxIdentityVerifications       int
	MaxProcessesPerDay             int
	ScoreActivationOtpFailed       int
	ScoreUserVerificationOtpFailed int
	ScoreIdentityVerificationReset int
	ScoreClientEvaluationFailed    int
}

// DefaultLimits returns the production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxErrorScore:                  15,
		MaxIdentityVerifications:       5,
		MaxProcessesPerDay:             5,
		ScoreActivationOtpFailed:       1,
		ScoreUserVerificationOtpFailed: 3,
		ScoreIdentityVerificationReset: 4,
		ScoreClientEvaluationFailed:    5,
	}
}

// Service manages onboarding processes.
type Service struct {
	processes     store.ProcessStore
	verifications store.VerificationStore
	limits        Limits
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

func New(processes store.ProcessStore, verifications store.VerificationStore, limits Limits, opts ...Option) (*Service, error) {
	if processes == nil {
		return nil, fmt.Errorf("process store is required")
	}
	if verifications == nil {
		return nil, fmt.Errorf("verification store is required")
	}

	svc := &Service{
		processes:     processes,
		verifications: verifications,
		limits:        limits,
		logger:        zap.NewNop(),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Start creates a new onboarding process for the user, or returns the existing
// non-terminal process bound to the activation.
func (s *Service) Start(ctx context.Context, userID, activationID string) (onboarding.Process, error) {
	existing, err := s.processes.FindByActivationID(ctx, activationID)
	switch {
	case err == nil:
		if !onboarding.ProcessIsTerminal(existing) {
			return existing, nil
		}
	case !errors.Is(err, onboarding.ErrProcessNotFound):
		return onboarding.Process{}, fmt.Errorf("find process by activation: %w", err)
	}

	now := s.now()
	if s.limits.MaxProcessesPerDay > 0 {
		count, err := s.processes.CountByUserCreatedAfter(ctx, userID, now.Add(-24*time.Hour))
		if err != nil {
			return onboarding.Process{}, fmt.Errorf("count processes for user: %w", err)
		}
		if count >= s.limits.MaxProcessesPerDay {
			return onboarding.Process{}, onboarding.NewProcessError(
				onboarding.ErrorTooManyProcesses, onboarding.OriginProcessLimitCheck, "")
		}
	}
	p := onboarding.Process{
		ID:           uuid.NewString(),
		UserID:       userID,
		ActivationID: activationID,
		Status:       onboarding.ProcessActivationInProgress,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.processes.Create(ctx, p); err != nil {
		return onboarding.Process{}, fmt.Errorf("create process: %w", err)
	}
	s.auditor.Emit(ctx, audit.Event{
		ProcessID: p.ID,
		UserID:    userID,
		Entity:    audit.EntityProcess,
		Action:    "process_started",
	})
	return p, nil
}

// MoveToVerification switches the process into the identity verification stage.
func (s *Service) MoveToVerification(ctx context.Context, p onboarding.Process) (onboarding.Process, error) {
	if p.Status == onboarding.ProcessVerificationInProgress {
		return p, nil
	}
	if onboarding.ProcessIsTerminal(p) {
		return p, fmt.Errorf("process %s is terminal", p.ID)
	}
	p.Status = onboarding.ProcessVerificationInProgress
	p.UpdatedAt = s.now()
	if err := s.processes.Update(ctx, p); err != nil {
		return p, fmt.Errorf("update process: %w", err)
	}
	return p, nil
}

// Finish marks the process as successfully completed.
func (s *Service) Finish(ctx context.Context, p onboarding.Process) (onboarding.Process, error) {
	if onboarding.ProcessIsTerminal(p) {
		return p, nil
	}
	now := s.now()
	p.Status = onboarding.ProcessFinished
	p.UpdatedAt = now
	p.FinishedAt = &now
	if err := s.processes.Update(ctx, p); err != nil {
		return p, fmt.Errorf("update process: %w", err)
	}
	s.auditor.Emit(ctx, audit.Event{
		ProcessID: p.ID,
		UserID:    p.UserID,
		Entity:    audit.EntityProcess,
		Action:    "process_finished",
	})
	return p, nil
}

// IncrementErrorScore adds points to the process error score and persists it.
// The score only ever grows.
func (s *Service) IncrementErrorScore(ctx context.Context, p onboarding.Process, points int) (onboarding.Process, error) {
	if points <= 0 {
		return p, nil
	}
	p.ErrorScore += points
	p.UpdatedAt = s.now()
	if err := s.processes.Update(ctx, p); err != nil {
		return p, fmt.Errorf("update process: %w", err)
	}
	return p, nil
}

// CheckErrorLimits fails the process when the error score crossed the
// configured threshold. Returns the possibly updated process.
func (s *Service) CheckErrorLimits(ctx context.Context, p onboarding.Process) (onboarding.Process, error) {
	if p.ErrorScore <= s.limits.MaxErrorScore {
		return p, nil
	}
	return s.Fail(ctx, p, onboarding.ErrorMaxErrorScoreExceeded, onboarding.OriginProcessLimitCheck)
}

// Fail marks the process as failed with the given error detail. Failing an
// already failed process is a no-op.
func (s *Service) Fail(ctx context.Context, p onboarding.Process, errorDetail string, origin onboarding.ErrorOrigin) (onboarding.Process, error) {
	if p.Status == onboarding.ProcessFailed {
		s.logger.Debug("not failing already failed process", zap.String("process_id", p.ID))
		return p, nil
	}
	now := s.now()
	p.Status = onboarding.ProcessFailed
	p.ErrorDetail = errorDetail
	p.ErrorOrigin = origin
	p.UpdatedAt = now
	p.FailedAt = &now
	if err := s.processes.Update(ctx, p); err != nil {
		return p, fmt.Errorf("update process: %w", err)
	}
	s.auditor.Emit(ctx, audit.Event{
		ProcessID: p.ID,
		UserID:    p.UserID,
		Entity:    audit.EntityProcess,
		Action:    "process_failed",
		Detail:    errorDetail,
	})
	return p, nil
}

// ResetIdentityVerification terminates the current identity verification so a
// fresh attempt can start. The reset itself raises the error score, and the
// number of verification attempts per process is capped; exceeding either
// limit fails the whole process and returns the terminal ProcessError.
func (s *Service) ResetIdentityVerification(ctx context.Context, processID string) error {
	p, err := s.processes.FindByID(ctx, processID)
	if err != nil {
		return err
	}

	p, err = s.IncrementErrorScore(ctx, p, s.limits.ScoreIdentityVerificationReset)
	if err != nil {
		return err
	}
	p, err = s.CheckErrorLimits(ctx, p)
	if err != nil {
		return err
	}
	if p.Status == onboarding.ProcessFailed {
		return onboarding.NewProcessError(onboarding.ErrorMaxErrorScoreExceeded, onboarding.OriginProcessLimitCheck, "")
	}

	if err := s.checkIdentityVerificationLimit(ctx, p); err != nil {
		return err
	}

	v, err := s.verifications.FindNewestByProcessID(ctx, processID)
	switch {
	case errors.Is(err, onboarding.ErrVerificationNotFound):
		return nil
	case err != nil:
		return err
	}
	if onboarding.VerificationIsCompleted(v) {
		return nil
	}
	if _, err := s.verifications.Terminate(ctx, []string{v.ID}, s.now(), onboarding.ErrorOtpMaxFailedAttempts, onboarding.OriginOtpVerification); err != nil {
		return fmt.Errorf("terminate identity verification: %w", err)
	}
	s.auditor.Emit(ctx, audit.Event{
		ProcessID:              p.ID,
		IdentityVerificationID: v.ID,
		UserID:                 p.UserID,
		Entity:                 audit.EntityIdentityVerification,
		Action:                 "identity_verification_reset",
	})
	return nil
}

// checkIdentityVerificationLimit fails the process when the number of
// verification attempts reached the cap. The row count itself is the counter,
// so terminated attempts keep counting.
func (s *Service) checkIdentityVerificationLimit(ctx context.Context, p onboarding.Process) error {
	attempts, err := s.verifications.ListByProcessID(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list identity verifications: %w", err)
	}
	if len(attempts) < s.limits.MaxIdentityVerifications {
		return nil
	}

	unfinished := make([]string, 0, len(attempts))
	for _, v := range attempts {
		if !onboarding.VerificationIsCompleted(v) {
			unfinished = append(unfinished, v.ID)
		}
	}
	now := s.now()
	if _, err := s.verifications.Terminate(ctx, unfinished, now, onboarding.ErrorMaxFailedAttemptsVerification, onboarding.OriginProcessLimitCheck); err != nil {
		return fmt.Errorf("terminate identity verifications: %w", err)
	}
	if _, err := s.Fail(ctx, p, onboarding.ErrorMaxFailedAttemptsVerification, onboarding.OriginProcessLimitCheck); err != nil {
		return err
	}
	s.logger.Warn("max identity verification attempts reached",
		zap.String("process_id", p.ID),
		zap.Int("attempts", len(attempts)))
	return onboarding.NewProcessError(onboarding.ErrorMaxFailedAttemptsVerification, onboarding.OriginProcessLimitCheck, "")
}
