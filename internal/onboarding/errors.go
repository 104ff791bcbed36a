package onboarding

import (
	"errors"
	"fmt"
)

// Stable machine-readable error details surfaced to clients and recorded on
// terminated entities. External jobs key off these values by name.
const (
	ErrorProcessExpiredActivation           = "expiredProcessActivation"
	ErrorProcessExpiredIdentityVerification = "expiredProcessIdentityVerification"
	ErrorProcessExpiredOnboarding           = "expiredProcessOnboarding"
	ErrorDocumentVerificationExpired        = "expired"
	ErrorOtpExpired                         = "expiredOtp"
	ErrorOtpResend                          = "resendOtp"
	ErrorOtpCanceled                        = "canceledOtp"
	ErrorOtpMaxFailedAttempts               = "maxFailedAttemptsOtp"
	ErrorProcessCanceled                    = "canceledProcess"
	ErrorTooManyProcesses                   = "tooManyProcessesPerUser"
	ErrorMaxFailedAttemptsVerification      = "maxFailedAttemptsIdentityVerification"
	ErrorMaxErrorScoreExceeded              = "maxProcessErrorScoreExceeded"
)

var (
	// ErrProcessNotFound is returned when a process id does not resolve.
	ErrProcessNotFound = errors.New("onboarding process not found")
	// ErrVerificationNotFound is returned when no identity verification exists
	// for the owner.
	ErrVerificationNotFound = errors.New("identity verification not found")
	// ErrOtpNotFound is returned when no OTP exists for the requested key.
	ErrOtpNotFound = errors.New("onboarding OTP not found")
)

// ProcessError is a terminal business failure: the entity moves to a FAILED or
// REJECTED state and the code is suitable for direct surfacing to a client.
type ProcessError struct {
	Code   string
	Origin ErrorOrigin
	Detail string
}

func (e *ProcessError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// NewProcessError builds a terminal domain error with a stable code.
func NewProcessError(code string, origin ErrorOrigin, detail string) *ProcessError {
	return &ProcessError{Code: code, Origin: origin, Detail: detail}
}
