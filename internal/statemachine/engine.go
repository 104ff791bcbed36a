package statemachine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/onboarding/store"
	"onboarding-gateway/internal/provider"
)

// maxChainedTransitions caps internal re-dispatching so a faulty table can
// never spin the engine.
const maxChainedTransitions = 10

// Engine executes the transition table. Every invocation loads the current
// rows, derives the state, runs transitions and persists the outcome; nothing
// is cached between invocations, so any instance may process any row.
type Engine struct {
	table   []Transition
	stores  store.Stores
	logger  *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

func NewEngine(table []Transition, stores store.Stores, logger *zap.Logger, metrics *Metrics) *Engine {
	return &Engine{
		table:   table,
		stores:  stores,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("onboarding-gateway/internal/statemachine"),
		now:     time.Now,
	}
}

// DefaultTable builds the production transition table over the given guards
// and actions.
func DefaultTable(g *Guards, a *Actions) []Transition {
	return []Transition{
		{
			Source: StateInitial,
			Event:  EventIdentityVerificationInit,
			Guards: []Guard{g.ProcessActive},
			Action: a.InitVerification,
			Target: StateDocumentUploadInProgress,
		},
		// A terminated verification is not the end of the process: a new init
		// starts a fresh attempt, bounded by the process attempt limits.
		{
			Source: StateCompletedFailed,
			Event:  EventIdentityVerificationInit,
			Guards: []Guard{g.ProcessActive},
			Action: a.InitVerification,
			Target: StateDocumentUploadInProgress,
		},
		{
			Source: StateCompletedRejected,
			Event:  EventIdentityVerificationInit,
			Guards: []Guard{g.ProcessActive},
			Action: a.InitVerification,
			Target: StateDocumentUploadInProgress,
		},
		{
			Source: StateDocumentUploadInProgress,
			Event:  EventNextState,
			Guards: []Guard{g.ProcessActive, g.DocumentsUploaded},
			Action: a.MoveToUploadVerificationPending,
			Target: StateDocumentUploadVerificationPending,
		},
		{
			Source: StateDocumentUploadVerificationPending,
			Event:  EventNextState,
			Guards: []Guard{g.ProcessActive},
			Action: a.StartDocumentVerification,
			// Target derived: the provider outcome decides the status.
		},
		{
			Source: StateDocumentVerificationAccepted,
			Event:  EventNextState,
			Guards: []Guard{g.ProcessActive, g.RequiredDocumentsPresent},
			Action: a.FinalizeDocumentVerification,
		},
		{
			Source: StateDocumentVerificationFinalAccepted,
			Event:  EventNextState,
			Guards: []Guard{g.ProcessActive},
			Action: a.InitClientEvaluation,
			Target: StateClientEvaluationInProgress,
		},
		{
			Source: StateClientEvaluationAccepted,
			Event:  EventNextState,
			Guards: []Guard{g.ProcessActive, g.PresenceCheckEnabled},
			Action: a.MoveToPresenceCheckNotInitialized,
			Target: StatePresenceCheckNotInitialized,
		},
		{
			Source: StateClientEvaluationAccepted,
			Event:  EventNextState,
			Guards: []Guard{g.ProcessActive, g.PresenceCheckDisabled, g.OtpVerificationEnabled},
			Action: a.SendOtp,
			Target: StateOtpVerificationPending,
		},
		{
			Source: StateClientEvaluationAccepted,
			Event:  EventNextState,
			Guards: []Guard{g.ProcessActive, g.PresenceCheckDisabled, g.OtpVerificationDisabled},
			Action: a.Finish,
			Target: StateCompletedAccepted,
		},
		{
			Source: StatePresenceCheckNotInitialized,
			Event:  EventPresenceCheckInit,
			Guards: []Guard{g.ProcessActive, g.PresenceCheckEnabled},
			Action: a.InitPresenceCheck,
			Target: StatePresenceCheckInProgress,
		},
		{
			Source: StatePresenceCheckInProgress,
			Event:  EventPresenceCheckSubmitted,
			Guards: []Guard{g.ProcessActive},
			Action: a.MoveToPresenceVerificationPending,
			Target: StatePresenceCheckVerificationPending,
		},
		{
			Source: StatePresenceCheckVerificationPending,
			Event:  EventNextState,
			Guards: []Guard{g.ProcessActive},
			Action: a.EvaluatePresenceResult,
			// Target derived: acceptance branches on the feature flags.
		},
		{
			Source: StateOtpVerificationPending,
			Event:  EventOtpVerificationSend,
			Guards: []Guard{g.ProcessActive, g.OtpVerificationEnabled, g.OtpPreconditions},
			Action: a.SendOtp,
			Target: StateOtpVerificationPending,
		},
		{
			Source: StateOtpVerificationPending,
			Event:  EventOtpVerificationResend,
			Guards: []Guard{g.ProcessActive, g.OtpVerificationEnabled, g.OtpPreconditions},
			Action: a.ResendOtp,
			Target: StateOtpVerificationPending,
		},
		{
			Source: StateOtpVerificationPending,
			Event:  EventNextState,
			Guards: []Guard{g.ProcessActive, g.OtpVerified},
			Action: a.Finish,
			Target: StateCompletedAccepted,
		},
	}
}

// Dispatch loads the process's flow and runs the event against the table.
// After each committed transition the engine re-dispatches the nudge event
// internally until the machine settles, which resolves the branching the
// original model expressed as choice pseudo-states.
func (e *Engine) Dispatch(ctx context.Context, processID string, event Event) (State, error) {
	started := e.now()
	ctx, span := e.tracer.Start(ctx, "statemachine.Dispatch", trace.WithAttributes(
		attribute.String("process_id", processID),
		attribute.String("event", string(event)),
	))
	defer span.End()
	defer func() {
		if e.metrics != nil {
			e.metrics.DispatchDuration.Observe(time.Since(started).Seconds())
		}
	}()

	flow, err := e.loadFlow(ctx, processID)
	if err != nil {
		return "", err
	}

	state := flow.State()
	accepted := false
	for i := 0; i < maxChainedTransitions; i++ {
		next, ok, err := e.step(ctx, flow, state, event)
		if err != nil {
			return state, err
		}
		if !ok {
			break
		}
		accepted = true
		state = next
		if state.IsTerminal() || state == StateUnexpected {
			break
		}
		event = EventNextState
	}

	if !accepted && event != EventNextState {
		if e.metrics != nil {
			e.metrics.EventsNotAccepted.WithLabelValues(string(event), string(state)).Inc()
		}
		e.logger.Warn("event not accepted",
			zap.String("process_id", processID),
			zap.String("event", string(event)),
			zap.String("state", string(state)))
		return state, ErrEventNotAccepted
	}
	span.SetAttributes(attribute.String("final_state", string(state)))
	return state, nil
}

// step runs at most one transition. It reports whether a transition committed.
func (e *Engine) step(ctx context.Context, flow *Flow, state State, event Event) (State, bool, error) {
	for _, t := range e.table {
		if t.Source != state || t.Event != event {
			continue
		}
		pass, err := e.evaluateGuards(ctx, t.Guards, flow)
		if err != nil {
			return state, false, err
		}
		if !pass {
			continue
		}

		before := flowPair(flow)
		if err := t.Action(ctx, flow); err != nil {
			return state, false, err
		}

		next := t.Target
		if next == "" {
			next = flow.State()
		}
		if err := e.persist(ctx, flow, before); err != nil {
			return state, false, err
		}
		if next == state && flowPair(flow) == before {
			// Self-transition without a row change (e.g. an unresolved poll);
			// the machine already settled.
			return next, event != EventNextState, nil
		}
		if e.metrics != nil {
			e.metrics.Transitions.WithLabelValues(string(event), string(state), string(next)).Inc()
		}
		e.logger.Info("state changed",
			zap.String("process_id", flow.Process.ID),
			zap.String("from", string(state)),
			zap.String("to", string(next)),
			zap.String("event", string(event)))
		return next, true, nil
	}
	return state, false, nil
}

func (e *Engine) evaluateGuards(ctx context.Context, guards []Guard, flow *Flow) (bool, error) {
	for _, guard := range guards {
		ok, err := guard(ctx, flow)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// persist writes the verification row when a transition changed its pair.
func (e *Engine) persist(ctx context.Context, flow *Flow, before pair) error {
	if !flow.HasVerification {
		return nil
	}
	if flowPair(flow) == before {
		return nil
	}
	flow.Verification.UpdatedAt = e.now()
	return e.stores.Verifications.Update(ctx, flow.Verification)
}

func (e *Engine) loadFlow(ctx context.Context, processID string) (*Flow, error) {
	p, err := e.stores.Processes.FindByID(ctx, processID)
	if err != nil {
		return nil, err
	}
	flow := &Flow{
		Owner: provider.Owner{
			ProcessID:    p.ID,
			ActivationID: p.ActivationID,
			UserID:       p.UserID,
		},
		Process: p,
	}
	v, err := e.stores.Verifications.FindNewestByProcessID(ctx, processID)
	switch {
	case err == nil:
		flow.Verification = v
		flow.HasVerification = true
	case errors.Is(err, onboarding.ErrVerificationNotFound):
		// No verification yet: the flow starts from the initial state.
	default:
		return nil, err
	}
	return flow, nil
}

func flowPair(f *Flow) pair {
	if !f.HasVerification {
		return pair{}
	}
	return pair{f.Verification.Phase, f.Verification.Status}
}
