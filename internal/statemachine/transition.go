package statemachine

import (
	"context"
	"errors"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/provider"
)

// ErrEventNotAccepted is returned when an explicit event does not apply to the
// current state or its guards rejected it. The persisted state is untouched.
var ErrEventNotAccepted = errors.New("event not accepted in current state")

// Flow is the machine context: the process, its newest identity verification
// and the owner identity, threaded through guards and actions. Actions mutate
// Verification; the engine persists it after each transition.
type Flow struct {
	Owner        provider.Owner
	Process      onboarding.Process
	Verification onboarding.IdentityVerification
	// HasVerification is false before identity verification init, when no row
	// exists yet.
	HasVerification bool
}

// State derives the current machine state of the flow.
func (f *Flow) State() State {
	if !f.HasVerification {
		return StateInitial
	}
	return StateFor(f.Verification.Phase, f.Verification.Status)
}

// Guard decides whether a transition applies. Returning an error aborts the
// dispatch; returning false moves on to the next candidate transition.
type Guard func(ctx context.Context, f *Flow) (bool, error)

// Action runs the transition's side effects and mutates the flow. An error
// leaves the last persisted state untouched.
type Action func(ctx context.Context, f *Flow) error

// Transition is one row of the machine table. When Target is empty the next
// state is derived from the (phase, status) pair the action left on the row;
// that is how the original model's choice pseudo-states resolve.
type Transition struct {
	Source State
	Event  Event
	Guards []Guard
	Action Action
	Target State
}
