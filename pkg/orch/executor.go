package orch

import (
	"context"
	"sync"

	"github.com/lumenswitch/orchagent/pkg/util"
)

// Orch is what the Executor drains each pass: something with one or more
// Consumers holding pending rows and a DoTask that processes as much of the
// current batch as its dependencies allow, leaving the rest for next pass.
type Orch interface {
	Name() string
	Consumers() []*Consumer
	DoTask(ctx context.Context) error
}

// Executor round-robins DoTask over every registered Orch with pending
// Consumer data, draining higher-priority Orches first each pass, exactly
// the way the real event loop drains PortsOrch > IntfsOrch > NeighOrch >
// RouteOrch before lower-priority Orches.
type Executor struct {
	mu     sync.Mutex
	orches []Orch
	wake   chan struct{}
}

// NewExecutor returns an Executor with no registered Orches.
func NewExecutor() *Executor {
	return &Executor{wake: make(chan struct{}, 1)}
}

// Register adds an Orch. Registration order is priority order: Orches
// registered earlier are drained first within a pass.
func (e *Executor) Register(o Orch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orches = append(e.orches, o)
}

// Wake signals the Executor that new data may be available. Neither
// Subject.Notify nor Consumer.Push calls it; cmd/orchagent's bus bridge
// calls it after pushing each row.
func (e *Executor) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// RunOnce makes a single pass: it calls DoTask on every registered Orch
// that currently has pending rows, highest priority first, and returns
// after that pass. Rows still pending afterwards wait for the next call.
func (e *Executor) RunOnce(ctx context.Context) error {
	e.mu.Lock()
	orches := make([]Orch, len(e.orches))
	copy(orches, e.orches)
	e.mu.Unlock()

	for _, o := range orches {
		if !hasPending(o) {
			continue
		}
		log := util.WithOrch(o.Name())
		if err := o.DoTask(ctx); err != nil {
			log.WithField("error", err).Error("doTask failed")
			return err
		}
	}
	return nil
}

func hasPending(o Orch) bool {
	for _, c := range o.Consumers() {
		if c.Len() > 0 {
			return true
		}
	}
	return false
}

// Run loops RunOnce until ctx is cancelled, blocking on Wake between passes
// that found nothing to do. It is the daemon's main event loop.
func (e *Executor) Run(ctx context.Context) error {
	for {
		if err := e.RunOnce(ctx); err != nil {
			return err
		}
		if e.anyPending() {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.wake:
		}
	}
}

func (e *Executor) anyPending() bool {
	e.mu.Lock()
	orches := make([]Orch, len(e.orches))
	copy(orches, e.orches)
	e.mu.Unlock()

	for _, o := range orches {
		if hasPending(o) {
			return true
		}
	}
	return false
}
