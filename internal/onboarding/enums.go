package onboarding

// ProcessStatus is the coarse state of an onboarding process.
type ProcessStatus string

const (
	ProcessActivationInProgress   ProcessStatus = "ACTIVATION_IN_PROGRESS"
	ProcessVerificationInProgress ProcessStatus = "VERIFICATION_IN_PROGRESS"
	ProcessFinished               ProcessStatus = "FINISHED"
	ProcessFailed                 ProcessStatus = "FAILED"
)

// Phase is the coarse stage of an identity verification.
type Phase string

const (
	PhaseDocumentUpload            Phase = "DOCUMENT_UPLOAD"
	PhaseDocumentVerification      Phase = "DOCUMENT_VERIFICATION"
	PhaseDocumentVerificationFinal Phase = "DOCUMENT_VERIFICATION_FINAL"
	PhaseClientEvaluation          Phase = "CLIENT_EVALUATION"
	PhasePresenceCheck             Phase = "PRESENCE_CHECK"
	PhaseOtpVerification           Phase = "OTP_VERIFICATION"
	PhaseCompleted                 Phase = "COMPLETED"
)

// VerificationStatus is the fine-grained state within a phase.
type VerificationStatus string

const (
	StatusNotInitialized      VerificationStatus = "NOT_INITIALIZED"
	StatusInProgress          VerificationStatus = "IN_PROGRESS"
	StatusVerificationPending VerificationStatus = "VERIFICATION_PENDING"
	StatusAccepted            VerificationStatus = "ACCEPTED"
	StatusRejected            VerificationStatus = "REJECTED"
	StatusFailed              VerificationStatus = "FAILED"
)

// DocumentType enumerates the supported document kinds.
type DocumentType string

const (
	DocumentIDCard         DocumentType = "ID_CARD"
	DocumentPassport       DocumentType = "PASSPORT"
	DocumentDrivingLicense DocumentType = "DRIVING_LICENSE"
	DocumentSelfiePhoto    DocumentType = "SELFIE_PHOTO"
)

// CardSide distinguishes the two sides of a physical card. Empty for documents
// that have no sides (passport booklet page, selfie).
type CardSide string

const (
	SideFront CardSide = "FRONT"
	SideBack  CardSide = "BACK"
)

// DocumentStatus tracks one uploaded document side through provider processing.
type DocumentStatus string

const (
	DocumentUploadInProgress       DocumentStatus = "UPLOAD_IN_PROGRESS"
	DocumentVerificationPending    DocumentStatus = "VERIFICATION_PENDING"
	DocumentVerificationInProgress DocumentStatus = "VERIFICATION_IN_PROGRESS"
	DocumentAccepted               DocumentStatus = "ACCEPTED"
	DocumentRejected               DocumentStatus = "REJECTED"
	DocumentFailed                 DocumentStatus = "FAILED"
)

// DocumentStatusesNotFinished lists every document status that still needs work.
// External jobs key off these values by name, so the set is contractually stable.
var DocumentStatusesNotFinished = []DocumentStatus{
	DocumentUploadInProgress,
	DocumentVerificationPending,
	DocumentVerificationInProgress,
}

// OtpStatus is the lifecycle state of a one-time code.
type OtpStatus string

const (
	OtpActive   OtpStatus = "ACTIVE"
	OtpVerified OtpStatus = "VERIFIED"
	OtpFailed   OtpStatus = "FAILED"
)

// OtpType distinguishes activation codes from user-verification codes. The two
// types count failed attempts at different granularity.
type OtpType string

const (
	OtpTypeActivation       OtpType = "ACTIVATION"
	OtpTypeUserVerification OtpType = "USER_VERIFICATION"
)

// ErrorOrigin records which subsystem raised a terminal error.
type ErrorOrigin string

const (
	OriginProcessLimitCheck    ErrorOrigin = "PROCESS_LIMIT_CHECK"
	OriginUserRequest          ErrorOrigin = "USER_REQUEST"
	OriginOtpVerification      ErrorOrigin = "OTP_VERIFICATION"
	OriginDocumentVerification ErrorOrigin = "DOCUMENT_VERIFICATION"
	OriginPresenceCheck        ErrorOrigin = "PRESENCE_CHECK"
	OriginClientEvaluation     ErrorOrigin = "CLIENT_EVALUATION"
	OriginCleaning             ErrorOrigin = "CLEANING"
)
