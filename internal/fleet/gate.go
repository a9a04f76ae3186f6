package fleet

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/snooz-gateway/internal/snooz"
)

// Gate is the fleet-wide operation serializer: a capacity-1 mutual-exclusion
// token that every radio command must hold while executing, regardless of
// which device it targets.
//
// Waiters acquire in FIFO order, so concurrent commands queue in arrival
// order rather than executing in parallel. The Gate is injectable so tests
// can assert serialisation without a real radio.
type Gate struct {
	sem    *semaphore.Weighted
	logger Logger
}

// NewGate creates the shared capacity-1 operation gate.
func NewGate() *Gate {
	return &Gate{
		sem:    semaphore.NewWeighted(1),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the gate.
func (g *Gate) SetLogger(logger Logger) {
	g.logger = logger
}

// Do runs fn while holding the gate. It blocks until the gate is free or ctx
// is cancelled; the gate is released on completion whether fn succeeds or
// fails. An in-flight fn is never force-aborted by another caller.
func (g *Gate) Do(ctx context.Context, deviceName string, op string, fn func(context.Context) (snooz.CommandResult, error)) (snooz.CommandResult, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return snooz.CommandResult{}, fmt.Errorf("acquiring operation gate: %w", err)
	}
	defer g.sem.Release(1)

	g.logger.Debug("radio op start", "device", deviceName, "op", op)
	defer g.logger.Debug("radio op end", "device", deviceName, "op", op)

	return fn(ctx)
}
