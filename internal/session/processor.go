package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RunFunc executes one run for a session.
type RunFunc func(ctx context.Context, runID string) error

// Processor serialises runs per session. A run requested while another one
// is active for the same session waits until it finishes.
type Processor struct {
	mu       sync.Mutex
	sessions map[string]*runState
}

// runState tracks the active run of a session.
type runState struct {
	runID   string
	started time.Time
	cancel  context.CancelFunc
	waiters []chan struct{}
}

// ActiveRun describes a run in progress.
type ActiveRun struct {
	SessionID string    `json:"sessionId"`
	RunID     string    `json:"runId"`
	Started   time.Time `json:"started"`
}

// NewProcessor creates a new processor.
func NewProcessor() *Processor {
	return &Processor{sessions: make(map[string]*runState)}
}

// Process runs fn once no other run is active for sessionID. The run
// context is cancelled by ctx or by Abort.
func (p *Processor) Process(ctx context.Context, sessionID string, fn RunFunc) error {
	p.mu.Lock()

	if state, ok := p.sessions[sessionID]; ok {
		waiter := make(chan struct{})
		state.waiters = append(state.waiters, waiter)
		p.mu.Unlock()

		select {
		case <-waiter:
			return p.Process(ctx, sessionID, fn)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	state := &runState{
		runID:   NewRunID(),
		started: time.Now(),
		cancel:  cancel,
	}
	p.sessions[sessionID] = state
	p.mu.Unlock()

	defer func() {
		cancel()
		p.mu.Lock()
		delete(p.sessions, sessionID)
		for _, waiter := range state.waiters {
			close(waiter)
		}
		p.mu.Unlock()
	}()

	return fn(runCtx, state.runID)
}

// Abort cancels the active run of a session.
func (p *Processor) Abort(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not processing: %s", sessionID)
	}

	state.cancel()
	return nil
}

// IsProcessing returns whether a session has an active run.
func (p *Processor) IsProcessing(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[sessionID]
	return ok
}

// Active lists the runs in progress, oldest first.
func (p *Processor) Active() []ActiveRun {
	p.mu.Lock()
	runs := make([]ActiveRun, 0, len(p.sessions))
	for id, state := range p.sessions {
		runs = append(runs, ActiveRun{SessionID: id, RunID: state.runID, Started: state.started})
	}
	p.mu.Unlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID < runs[j].RunID })
	return runs
}
