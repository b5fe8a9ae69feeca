// Package worker implements the three long-lived per-device tasks (spec
// §4.G): receiver, asender, syncer, plus their shared lifecycle control.
//
// Grounded on the teacher's xact/xs worker-pool lifecycle (Running /
// quiescing / aborted state plus a "collect finished" reap step), here
// recast onto golang.org/x/sync/errgroup instead of hand-rolled
// WaitGroup+stop-channel plumbing, since errgroup already gives first-error
// propagation and coordinated cancellation for exactly three cooperating
// goroutines per device.
package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mirrorblock/replicad/cmn/nlog"
)

// State is a task's control state (spec §4.G).
type State int32

const (
	Running State = iota
	Restarting
	Exiting
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Restarting:
		return "Restarting"
	case Exiting:
		return "Exiting"
	default:
		return "Unknown"
	}
}

// Task is one of receiver/asender/syncer.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Group supervises a device's three worker tasks as one errgroup: a failure
// in any one task cancels the shared context for the others, and Stop
// blocks until every task has exited ("collect zombies" per spec §4.G).
type Group struct {
	mu     sync.Mutex
	states map[string]State

	eg     *errgroup.Group
	cancel context.CancelFunc
}

// NewGroup launches every task in its own goroutine under a shared,
// cancelable context.
func NewGroup(ctx context.Context, tasks ...Task) *Group {
	ctx, cancel := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	g := &Group{states: make(map[string]State), eg: eg, cancel: cancel}

	for _, t := range tasks {
		t := t
		g.setState(t.Name(), Running)
		eg.Go(func() error {
			err := t.Run(ctx)
			g.setState(t.Name(), Exiting)
			if err != nil {
				nlog.Errorf("worker %s: exited with error: %v", t.Name(), err)
			}
			return err
		})
	}
	return g
}

func (g *Group) setState(name string, s State) {
	g.mu.Lock()
	g.states[name] = s
	g.mu.Unlock()
}

// State reports a task's last known control state.
func (g *Group) State(name string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.states[name]
}

// Stop signals every task to exit and waits for all three to finish
// (the "collect zombies" reap), returning the first non-nil task error.
func (g *Group) Stop() error {
	for name := range g.states {
		g.setState(name, Exiting)
	}
	g.cancel()
	return g.eg.Wait()
}
