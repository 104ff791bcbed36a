// Package cleaning terminates entities that outlived their configured
// windows. Every job is idempotent; the expired set is selected by creation
// cutoff and terminated in bounded chunks, so repeated or concurrent runs
// converge to the same state.
package cleaning

import (
	"context"
	"time"

	"go.uber.org/zap"

	"onboarding-gateway/internal/audit"
	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/store"
)

// batchSize caps the number of ids per bulk statement.
const batchSize = 1_000

// Lease names of the cleaning jobs.
const (
	LockProcessCleaning    = "onboardingProcessLock"
	LockOtpCleaning        = "onboardingOtpLock"
	LockDocumentCleaning   = "expireDocumentVerificationLock"
	LockLargeDocumentData  = "largeDocumentDataLock"
	LockActivationCleaning = "cleanupActivationsLock"
)

// Config holds the expiration windows. Cutoff is always now minus window.
type Config struct {
	// ActivationExpiration bounds how long a process may sit in activation.
	ActivationExpiration time.Duration
	// VerificationExpiration bounds identity and document verification age.
	VerificationExpiration time.Duration
	// ProcessExpiration is the absolute lifetime of a process in any state.
	ProcessExpiration time.Duration
	// OtpExpiration bounds how long an issued code stays active.
	OtpExpiration time.Duration
	// DataRetention bounds how long raw document payloads are kept.
	DataRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		ActivationExpiration:   5 * time.Minute,
		VerificationExpiration: time.Hour,
		ProcessExpiration:      time.Hour,
		OtpExpiration:          30 * time.Second,
		DataRetention:          time.Hour,
	}
}

// Service runs the cleaning jobs over the stores.
type Service struct {
	stores  store.Stores
	cfg     Config
	auditor *audit.Publisher
	logger  *zap.Logger
	now     func() time.Time
}

func New(stores store.Stores, cfg Config, auditor *audit.Publisher, logger *zap.Logger) *Service {
	return &Service{
		stores:  stores,
		cfg:     cfg,
		auditor: auditor,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// TerminateExpiredProcessActivations fails processes stuck in the activation
// stage past the activation window, cascading to their verifications.
func (s *Service) TerminateExpiredProcessActivations(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.ActivationExpiration)
	ids, err := s.stores.Processes.FindIDsByStatusCreatedBefore(ctx, onboarding.ProcessActivationInProgress, cutoff)
	if err != nil {
		return err
	}
	return s.terminateProcessesCascade(ctx, ids, onboarding.ErrorProcessExpiredActivation)
}

// TerminateExpiredProcessVerifications fails processes whose identity
// verification ran past the verification window, cascading down.
func (s *Service) TerminateExpiredProcessVerifications(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.VerificationExpiration)
	ids, err := s.stores.Processes.FindIDsByStatusCreatedBefore(ctx, onboarding.ProcessVerificationInProgress, cutoff)
	if err != nil {
		return err
	}
	return s.terminateProcessesCascade(ctx, ids, onboarding.ErrorProcessExpiredIdentityVerification)
}

// TerminateExpiredProcesses fails processes past their absolute lifetime,
// whatever their status. Related entities expire through their own jobs.
func (s *Service) TerminateExpiredProcesses(ctx context.Context) error {
	now := s.now()
	ids, err := s.stores.Processes.FindIDsCreatedBefore(ctx, now.Add(-s.cfg.ProcessExpiration))
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	s.logger.Info("terminating expired processes", zap.Int("count", len(ids)))
	for _, chunk := range chunkIDs(ids, batchSize) {
		if err := s.terminateProcessChunk(ctx, chunk, now, onboarding.ErrorProcessExpiredOnboarding); err != nil {
			return err
		}
	}
	return nil
}

// TerminateExpiredOtpCodes fails active codes past the OTP window.
func (s *Service) TerminateExpiredOtpCodes(ctx context.Context) error {
	now := s.now()
	ids, err := s.stores.Otps.FindActiveIDsCreatedBefore(ctx, now.Add(-s.cfg.OtpExpiration))
	if err != nil {
		return err
	}
	for _, chunk := range chunkIDs(ids, batchSize) {
		n, err := s.stores.Otps.Terminate(ctx, chunk, now)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("terminated expired otp codes", zap.Int64("count", n))
		}
	}
	return nil
}

// TerminateExpiredIdentityVerifications fails unfinished identity
// verifications past the verification window.
func (s *Service) TerminateExpiredIdentityVerifications(ctx context.Context) error {
	now := s.now()
	ids, err := s.stores.Verifications.FindUnfinishedIDsCreatedBefore(ctx, now.Add(-s.cfg.VerificationExpiration))
	if err != nil {
		return err
	}
	for _, chunk := range chunkIDs(ids, batchSize) {
		if _, err := s.stores.Verifications.Terminate(ctx, chunk, now, onboarding.ErrorProcessExpiredOnboarding, onboarding.OriginProcessLimitCheck); err != nil {
			return err
		}
		s.auditTerminated(ctx, audit.EntityIdentityVerification, chunk, onboarding.ErrorProcessExpiredOnboarding)
	}
	return nil
}

// TerminateExpiredDocumentVerifications fails unfinished document
// verifications past the verification window.
func (s *Service) TerminateExpiredDocumentVerifications(ctx context.Context) error {
	now := s.now()
	ids, err := s.stores.Documents.FindUnfinishedIDsCreatedBefore(ctx, now.Add(-s.cfg.VerificationExpiration))
	if err != nil {
		return err
	}
	for _, chunk := range chunkIDs(ids, batchSize) {
		s.logger.Info("terminating expired document verifications", zap.Int("count", len(chunk)))
		if _, err := s.stores.Documents.Terminate(ctx, chunk, now, onboarding.ErrorDocumentVerificationExpired, onboarding.OriginProcessLimitCheck); err != nil {
			return err
		}
		s.auditTerminated(ctx, audit.EntityDocumentVerification, chunk, onboarding.ErrorDocumentVerificationExpired)
	}
	return nil
}

// CleanupDocumentPayloads deletes raw document payloads past the retention
// window. Metadata rows stay for audit.
func (s *Service) CleanupDocumentPayloads(ctx context.Context) error {
	n, err := s.stores.DocumentData.DeleteCreatedBefore(ctx, s.now().Add(-s.cfg.DataRetention))
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("deleted retained document payloads", zap.Int64("count", n))
	}
	return nil
}

// CleanupActivations flags terminated processes whose activation has not
// been removed yet, in bounded batches.
func (s *Service) CleanupActivations(ctx context.Context) error {
	processes, err := s.stores.Processes.ListFailedWithActivation(ctx, batchSize)
	if err != nil {
		return err
	}
	if len(processes) == 0 {
		return nil
	}
	ids := make([]string, 0, len(processes))
	for _, p := range processes {
		s.logger.Info("removing activation of failed process",
			zap.String("process_id", p.ID), zap.String("activation_id", p.ActivationID))
		ids = append(ids, p.ID)
		s.auditor.Emit(ctx, audit.Event{
			ProcessID: p.ID,
			UserID:    p.UserID,
			Entity:    audit.EntityProcess,
			Action:    "activation_removed",
		})
	}
	return s.stores.Processes.MarkActivationRemoved(ctx, ids)
}

// terminateProcessesCascade terminates processes and their unfinished
// identity and document verifications, chunk by chunk.
func (s *Service) terminateProcessesCascade(ctx context.Context, ids []string, errorDetail string) error {
	if len(ids) == 0 {
		return nil
	}
	now := s.now()
	for _, chunk := range chunkIDs(ids, batchSize) {
		if err := s.terminateProcessChunk(ctx, chunk, now, errorDetail); err != nil {
			return err
		}

		verificationIDs, err := s.stores.Verifications.FindUnfinishedIDsByProcessIDs(ctx, chunk)
		if err != nil {
			return err
		}
		if len(verificationIDs) == 0 {
			continue
		}
		if _, err := s.stores.Verifications.Terminate(ctx, verificationIDs, now, errorDetail, onboarding.OriginProcessLimitCheck); err != nil {
			return err
		}
		s.auditTerminated(ctx, audit.EntityIdentityVerification, verificationIDs, errorDetail)

		documentIDs, err := s.stores.Documents.FindUnfinishedIDsByVerificationIDs(ctx, verificationIDs)
		if err != nil {
			return err
		}
		if len(documentIDs) == 0 {
			continue
		}
		if _, err := s.stores.Documents.Terminate(ctx, documentIDs, now, errorDetail, onboarding.OriginProcessLimitCheck); err != nil {
			return err
		}
		s.auditTerminated(ctx, audit.EntityDocumentVerification, documentIDs, errorDetail)
	}
	return nil
}

func (s *Service) terminateProcessChunk(ctx context.Context, ids []string, now time.Time, errorDetail string) error {
	n, err := s.stores.Processes.Terminate(ctx, ids, now, errorDetail, onboarding.OriginProcessLimitCheck)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("terminated processes", zap.Int64("count", n), zap.String("error_detail", errorDetail))
	}
	for _, id := range ids {
		s.auditor.Emit(ctx, audit.Event{
			ProcessID: id,
			Entity:    audit.EntityProcess,
			Action:    "process_expired",
			Detail:    errorDetail,
		})
	}
	return nil
}

func (s *Service) auditTerminated(ctx context.Context, entity string, ids []string, errorDetail string) {
	for _, id := range ids {
		event := audit.Event{
			Entity: entity,
			Action: "verification_expired",
			Detail: errorDetail,
		}
		if entity == audit.EntityIdentityVerification {
			event.IdentityVerificationID = id
		}
		s.auditor.Emit(ctx, event)
	}
}

func chunkIDs(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
