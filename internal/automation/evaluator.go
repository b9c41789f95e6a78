package automation

import (
	"context"
	"sync/atomic"
	"time"
)

// Matcher returns the triggers that apply to an event.
// *Registry satisfies it.
type Matcher interface {
	Match(ev Event) []Trigger
}

// Executor runs a trigger that matched. Execution belongs to the host;
// the evaluator only decides which triggers fire.
type Executor interface {
	ExecuteTrigger(ctx context.Context, t Trigger, ev Event) error
}

// EvaluatorStats counts evaluations and fired triggers.
type EvaluatorStats struct {
	Evaluated uint64 `json:"evaluated"`
	Fired     uint64 `json:"fired"`
	Failed    uint64 `json:"failed"`
}

// Evaluator matches bridge events against the trigger registry and
// hands every match to the Executor.
//
// Thread Safety: all methods are safe for concurrent use.
type Evaluator struct {
	matcher  Matcher
	executor Executor
	logger   Logger
	now      func() time.Time

	evaluated atomic.Uint64
	fired     atomic.Uint64
	failed    atomic.Uint64
}

// NewEvaluator creates an evaluator.
//
// Parameters:
//   - matcher: Trigger lookup, usually the Registry
//   - executor: Runs matched triggers
//   - logger: Logger instance (may be nil)
func NewEvaluator(matcher Matcher, executor Executor, logger Logger) *Evaluator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Evaluator{
		matcher:  matcher,
		executor: executor,
		logger:   logger,
		now:      time.Now,
	}
}

// EvaluateButton fires button_event triggers for an exact address and
// event type match.
func (e *Evaluator) EvaluateButton(ctx context.Context, address, eventType string) {
	e.evaluate(ctx, Event{Type: TriggerButtonEvent, Address: address, EventType: eventType})
}

// EvaluateMultiPress fires multi_press triggers whose count equals the
// finalized gesture's count.
func (e *Evaluator) EvaluateMultiPress(ctx context.Context, address string, count int) {
	e.evaluate(ctx, Event{Type: TriggerMultiPress, Address: address, Count: count})
}

// EvaluateOccupancy fires occupancy triggers for the group and status.
func (e *Evaluator) EvaluateOccupancy(ctx context.Context, address, status string) {
	e.evaluate(ctx, Event{Type: TriggerOccupancy, Address: address, Status: status})
}

func (e *Evaluator) evaluate(ctx context.Context, ev Event) {
	e.evaluated.Add(1)
	ev.At = e.now()

	for _, t := range e.matcher.Match(ev) {
		if err := e.executor.ExecuteTrigger(ctx, t, ev); err != nil {
			e.failed.Add(1)
			e.logger.Warn("trigger execution failed",
				"trigger_id", t.ID,
				"name", t.Name,
				"address", ev.Address,
				"error", err,
			)
			continue
		}
		e.fired.Add(1)
		e.logger.Debug("trigger fired", "trigger_id", t.ID, "name", t.Name, "type", t.Type)
	}
}

// Stats returns evaluation counters.
func (e *Evaluator) Stats() EvaluatorStats {
	return EvaluatorStats{
		Evaluated: e.evaluated.Load(),
		Fired:     e.fired.Load(),
		Failed:    e.failed.Load(),
	}
}
