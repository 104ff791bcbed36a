package audit

import "time"

// Entity names used in audit events.
const (
	EntityProcess              = "process"
	EntityIdentityVerification = "identity_verification"
	EntityDocumentVerification = "document_verification"
	EntityOtp                  = "otp"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp              time.Time `json:"timestamp"`
	ProcessID              string    `json:"process_id,omitempty"`
	IdentityVerificationID string    `json:"identity_verification_id,omitempty"`
	UserID                 string    `json:"user_id,omitempty"`
	Device                 string    `json:"device,omitempty"`
	Entity                 string    `json:"entity"`
	Action                 string    `json:"action"`
	Detail                 string    `json:"detail,omitempty"`
}
