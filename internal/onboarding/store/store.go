package store

import (
	"context"
	"time"

	"onboarding-gateway/internal/onboarding"
)

// PhaseStatus is a (phase, status) pair used to select identity verifications
// in a specific machine state.
type PhaseStatus struct {
	Phase  onboarding.Phase
	Status onboarding.VerificationStatus
}

// ProcessStore persists onboarding processes. Terminate runs as a single bulk
// statement; callers chunk the id list to cap transaction size.
type ProcessStore interface {
	Create(ctx context.Context, p onboarding.Process) error
	Update(ctx context.Context, p onboarding.Process) error
	FindByID(ctx context.Context, id string) (onboarding.Process, error)
	FindByActivationID(ctx context.Context, activationID string) (onboarding.Process, error)
	// CountByUserCreatedAfter counts the user's processes created after the
	// given time. Backs the per-day process limit.
	CountByUserCreatedAfter(ctx context.Context, userID string, after time.Time) (int, error)
	// FindIDsByStatusCreatedBefore returns ids of processes in the given status
	// created before the cutoff, ordered by creation time.
	FindIDsByStatusCreatedBefore(ctx context.Context, status onboarding.ProcessStatus, cutoff time.Time) ([]string, error)
	// FindIDsCreatedBefore returns ids of non-terminal processes created before
	// the cutoff, regardless of status.
	FindIDsCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	Terminate(ctx context.Context, ids []string, now time.Time, errorDetail string, origin onboarding.ErrorOrigin) (int64, error)
	// ListFailedWithActivation returns terminated processes whose activation has
	// not been removed yet, oldest first, capped at limit.
	ListFailedWithActivation(ctx context.Context, limit int) ([]onboarding.Process, error)
	MarkActivationRemoved(ctx context.Context, ids []string) error
}

// VerificationStore persists identity verifications.
type VerificationStore interface {
	Create(ctx context.Context, v onboarding.IdentityVerification) error
	Update(ctx context.Context, v onboarding.IdentityVerification) error
	FindByID(ctx context.Context, id string) (onboarding.IdentityVerification, error)
	// FindNewestByProcessID returns the most recent identity verification of the
	// process.
	FindNewestByProcessID(ctx context.Context, processID string) (onboarding.IdentityVerification, error)
	// ListByProcessID returns every identity verification of the process, newest
	// first. Used for retry-limit checks.
	ListByProcessID(ctx context.Context, processID string) ([]onboarding.IdentityVerification, error)
	// ListByPhaseStatus returns identity verifications whose (phase, status) is
	// one of the given pairs, ordered by creation time.
	ListByPhaseStatus(ctx context.Context, pairs []PhaseStatus) ([]onboarding.IdentityVerification, error)
	FindUnfinishedIDsByProcessIDs(ctx context.Context, processIDs []string) ([]string, error)
	FindUnfinishedIDsCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	Terminate(ctx context.Context, ids []string, now time.Time, errorDetail string, origin onboarding.ErrorOrigin) (int64, error)
}

// DocumentStore persists document verifications.
type DocumentStore interface {
	Create(ctx context.Context, d onboarding.DocumentVerification) error
	Update(ctx context.Context, d onboarding.DocumentVerification) error
	FindByID(ctx context.Context, id string) (onboarding.DocumentVerification, error)
	// ListUsedForVerification returns the currently used documents of one
	// identity verification.
	ListUsedForVerification(ctx context.Context, verificationID string) ([]onboarding.DocumentVerification, error)
	// ListByStatus returns documents in the given status across all identity
	// verifications, ordered by creation time. Providers resolve uploads in FIFO
	// submission order, so callers rely on the ordering.
	ListByStatus(ctx context.Context, status onboarding.DocumentStatus) ([]onboarding.DocumentVerification, error)
	FindUnfinishedIDsByVerificationIDs(ctx context.Context, verificationIDs []string) ([]string, error)
	FindUnfinishedIDsCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	Terminate(ctx context.Context, ids []string, now time.Time, errorDetail string, origin onboarding.ErrorOrigin) (int64, error)
}

// OtpStore persists OTP challenges.
type OtpStore interface {
	Create(ctx context.Context, o onboarding.Otp) error
	Update(ctx context.Context, o onboarding.Otp) error
	FindNewestByProcessAndType(ctx context.Context, processID string, t onboarding.OtpType) (onboarding.Otp, error)
	// CountFailedAttempts aggregates failed attempts across all OTPs of the
	// process and type, not just the newest one.
	CountFailedAttempts(ctx context.Context, processID string, t onboarding.OtpType) (int, error)
	FindActiveIDsCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	Terminate(ctx context.Context, ids []string, now time.Time) (int64, error)
}

// ResultStore persists immutable provider verification result snapshots.
type ResultStore interface {
	Create(ctx context.Context, r onboarding.DocumentResult) error
	ListByDocument(ctx context.Context, documentVerificationID string) ([]onboarding.DocumentResult, error)
}

// DocumentDataStore persists raw document payloads. Content is deleted after
// the retention window; metadata rows stay for audit.
type DocumentDataStore interface {
	Save(ctx context.Context, documentVerificationID, filename string, data []byte) error
	Find(ctx context.Context, documentVerificationID string) (filename string, data []byte, err error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Stores bundles every store interface; the postgres and in-memory variants
// both satisfy it.
type Stores struct {
	Processes     ProcessStore
	Verifications VerificationStore
	Documents     DocumentStore
	Otps          OtpStore
	Results       ResultStore
	DocumentData  DocumentDataStore
}
