// Package provider defines the ports to external verification vendors. The
// engine and jobs only ever see these interfaces; concrete vendors live in
// subpackages and are selected by configuration.
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"onboarding-gateway/internal/onboarding"
)

// Owner identifies the subject of a provider call.
type Owner struct {
	ProcessID    string
	ActivationID string
	UserID       string
}

func (o Owner) String() string {
	return fmt.Sprintf("process=%s activation=%s", o.ProcessID, o.ActivationID)
}

// Image is a document photo payload.
type Image struct {
	Filename string
	Data     []byte
}

// ResultStatus is the provider-side outcome of a submission or verification.
type ResultStatus string

const (
	ResultAccepted   ResultStatus = "ACCEPTED"
	ResultInProgress ResultStatus = "IN_PROGRESS"
	ResultRejected   ResultStatus = "REJECTED"
	ResultFailed     ResultStatus = "FAILED"
)

// SubmittedDocument is one document side handed to the provider.
type SubmittedDocument struct {
	DocumentID string
	Type       onboarding.DocumentType
	Side       onboarding.CardSide
	Photo      Image
}

// DocumentSubmitResult is the per-document outcome of a submission.
type DocumentSubmitResult struct {
	DocumentID       string
	UploadID         string
	ValidationResult string
	ExtractedData    string
	RejectReason     string
	ErrorDetail      string
}

// DocumentsSubmitResult is the outcome of submitting a batch of documents.
type DocumentsSubmitResult struct {
	ExtractedPhotoID string
	Results          []DocumentSubmitResult
}

// DocumentVerificationResult is the per-document outcome of a verification.
type DocumentVerificationResult struct {
	UploadID           string
	ExtractedData      string
	VerificationResult string
	RejectReason       string
	ErrorDetail        string
}

// DocumentsVerificationResult is the outcome of verifying a document set.
type DocumentsVerificationResult struct {
	VerificationID string
	Status         ResultStatus
	Results        []DocumentVerificationResult
	RejectReasons  []string
	ErrorDetail    string
}

// SdkInfo carries vendor SDK initialization attributes back to the client.
type SdkInfo struct {
	Attributes map[string]string
}

// DocumentProvider verifies uploaded identity documents with a remote vendor.
type DocumentProvider interface {
	SubmitDocuments(ctx context.Context, owner Owner, documents []SubmittedDocument) (DocumentsSubmitResult, error)
	// CheckDocumentUpload polls the provider for the state of one earlier upload.
	CheckDocumentUpload(ctx context.Context, owner Owner, document onboarding.DocumentVerification) (DocumentsSubmitResult, error)
	// VerifyDocuments starts the overall verification of the uploaded set and
	// returns a verification correlation id.
	VerifyDocuments(ctx context.Context, owner Owner, uploadIDs []string) (DocumentsVerificationResult, error)
	GetVerificationResult(ctx context.Context, owner Owner, verificationID string) (DocumentsVerificationResult, error)
	GetPhoto(ctx context.Context, photoID string) (Image, error)
	CleanupDocuments(ctx context.Context, owner Owner, uploadIDs []string) error
	// ParseRejectionReasons extracts human-readable rejection reasons from the
	// raw payload of a stored result snapshot. The payload format is
	// vendor-specific, so only the provider can interpret it.
	ParseRejectionReasons(result onboarding.DocumentResult) ([]string, error)
	InitVerificationSDK(ctx context.Context, owner Owner, initAttributes map[string]string) (SdkInfo, error)
	// ShouldStoreSelfie reports whether the selfie captured during the presence
	// check is persisted as a document at this vendor.
	ShouldStoreSelfie() bool
}

// SessionInfo is the opaque per-session attribute bag of a presence check.
type SessionInfo map[string]string

// EncodeSession serializes the session for storage on the identity
// verification row.
func EncodeSession(s SessionInfo) (string, error) {
	if len(s) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode session info: %w", err)
	}
	return string(raw), nil
}

// DecodeSession restores a stored session blob.
func DecodeSession(raw string) (SessionInfo, error) {
	if raw == "" {
		return SessionInfo{}, nil
	}
	var s SessionInfo
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode session info: %w", err)
	}
	return s, nil
}

// PresenceCheckResult is the outcome of a liveness/presence check.
type PresenceCheckResult struct {
	Status       ResultStatus
	Photo        Image
	RejectReason string
	ErrorDetail  string
}

// PresenceProvider runs the liveness check with a remote vendor.
type PresenceProvider interface {
	InitPresenceCheck(ctx context.Context, owner Owner, photo Image) error
	// ShouldProvideTrustedPhoto reports whether InitPresenceCheck needs the
	// extracted document photo as the trusted reference image. Vendors that
	// source the reference themselves return false and get a zero Image.
	ShouldProvideTrustedPhoto() bool
	StartPresenceCheck(ctx context.Context, owner Owner) (SessionInfo, error)
	GetPresenceCheckResult(ctx context.Context, owner Owner, session SessionInfo) (PresenceCheckResult, error)
	CleanupIdentityData(ctx context.Context, owner Owner) error
}

// EvaluationResult is the outcome of a client fraud/risk evaluation.
type EvaluationResult struct {
	Status       ResultStatus
	ErrorScore   int
	RejectReason string
}

// EvaluationProvider scores the onboarded client against fraud/risk rules.
type EvaluationProvider interface {
	EvaluateClient(ctx context.Context, owner Owner, verificationID string) (EvaluationResult, error)
}
