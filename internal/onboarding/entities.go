package onboarding

import "time"

// Process is one user's end-to-end attempt to be verified and activated.
// A process is never physically deleted; terminal rows are retained for audit.
type Process struct {
	ID                string
	UserID            string
	ActivationID      string
	Status            ProcessStatus
	ErrorDetail       string
	ErrorOrigin       ErrorOrigin
	ErrorScore        int
	ActivationRemoved bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	FinishedAt        *time.Time
	FailedAt          *time.Time
}

// IdentityVerification is one verification attempt tied to a process. A process
// may own several across retries; only the newest is active.
type IdentityVerification struct {
	ID           string
	ProcessID    string
	ActivationID string
	UserID       string
	Phase        Phase
	Status       VerificationStatus
	RejectReason string
	ErrorDetail  string
	ErrorOrigin  ErrorOrigin
	SessionInfo  string // opaque provider session blob, JSON
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DocumentVerification is one uploaded document side.
type DocumentVerification struct {
	ID                     string
	IdentityVerificationID string
	Type                   DocumentType
	Side                   CardSide
	Status                 DocumentStatus
	OtherSideID            string // links front/back of the same physical document
	UploadID               string // remote provider correlation id for the upload
	VerificationID         string // remote provider correlation id for the verification
	PhotoID                string
	VerificationScore      int
	RejectReason           string
	ErrorDetail            string
	ErrorOrigin            ErrorOrigin
	UsedForVerification    bool
	OriginalDocumentID     string // supersession pointer when re-uploaded
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// DocumentResult is an immutable snapshot of one provider verification result,
// one per document and phase (submission vs final verification).
type DocumentResult struct {
	ID                     string
	DocumentVerificationID string
	Phase                  Phase
	ExtractedData          string
	VerificationResult     string // raw provider payload, vendor-specific
	RejectReasons          []string
	ErrorDetail            string
	CreatedAt              time.Time
}

// Otp is one one-time-code challenge bound to a process. The plain code is never
// stored; CodeDigest holds a bcrypt hash.
type Otp struct {
	ID                     string
	ProcessID              string
	IdentityVerificationID string // empty unless the type counts per verification
	CodeDigest             []byte
	Status                 OtpStatus
	Type                   OtpType
	FailedAttempts         int
	TotalAttempts          int
	ErrorDetail            string
	ErrorOrigin            ErrorOrigin
	CreatedAt              time.Time
	ExpiresAt              time.Time
	UpdatedAt              time.Time
	VerifiedAt             *time.Time
	FailedAt               *time.Time
}

// OtpHasExpired reports whether the OTP is past its expiration. The original
// system compared the creation timestamp against the expiration timestamp
// instead of the current time; that comparison is preserved here, and the
// cleanup scheduler's created-before-cutoff scan remains the effective expiry
// path.
func OtpHasExpired(otp Otp) bool {
	return otp.CreatedAt.After(otp.ExpiresAt)
}

// ProcessIsTerminal reports whether the process reached a final status.
func ProcessIsTerminal(p Process) bool {
	return p.Status == ProcessFinished || p.Status == ProcessFailed
}

// DocumentIsFinished reports whether the document reached a final status.
func DocumentIsFinished(d DocumentVerification) bool {
	switch d.Status {
	case DocumentAccepted, DocumentRejected, DocumentFailed:
		return true
	}
	return false
}

// VerificationIsCompleted reports whether the identity verification reached the
// terminal phase.
func VerificationIsCompleted(v IdentityVerification) bool {
	return v.Phase == PhaseCompleted
}
