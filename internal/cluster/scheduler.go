package cluster

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler debounces clustering per scope. Every write triggers it; only
// after delay of quiet does a run start, and at most one run per scope is
// in flight. A trigger arriving mid-run re-arms the scope so the run that
// follows sees the newer records.
type Scheduler struct {
	engine *Engine
	delay  time.Duration
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	timers  map[string]*time.Timer
	running map[string]bool
	rearm   map[string]bool
	closed  bool
}

func NewScheduler(engine *Engine, delay time.Duration, opts Options, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		engine:  engine,
		delay:   delay,
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		timers:  map[string]*time.Timer{},
		running: map[string]bool{},
		rearm:   map[string]bool{},
	}
}

// Trigger notes that a scope changed. Rapid triggers for the same scope
// coalesce into a single run.
func (s *Scheduler) Trigger(scopeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.running[scopeID] {
		s.rearm[scopeID] = true
		return
	}
	if t, ok := s.timers[scopeID]; ok {
		t.Reset(s.delay)
		return
	}
	s.timers[scopeID] = time.AfterFunc(s.delay, func() {
		s.run(scopeID)
	})
}

func (s *Scheduler) run(scopeID string) {
	s.mu.Lock()
	delete(s.timers, scopeID)
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.running[scopeID] = true
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()

	if _, err := s.engine.Cluster(s.ctx, scopeID, s.opts); err != nil {
		if s.ctx.Err() == nil {
			s.logger.Error("background clustering failed", "scope", scopeID, "error", err)
		}
	}

	s.mu.Lock()
	s.running[scopeID] = false
	again := s.rearm[scopeID]
	delete(s.rearm, scopeID)
	if again && !s.closed {
		s.timers[scopeID] = time.AfterFunc(s.delay, func() {
			s.run(scopeID)
		})
	}
	s.mu.Unlock()
}

// Close stops pending timers, cancels in-flight runs and waits for them.
// Further triggers are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for scope, t := range s.timers {
		t.Stop()
		delete(s.timers, scope)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
