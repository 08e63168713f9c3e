package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Key identifies a polling task. At most one task runs per key.
type Key struct {
	Session string
	View    string
	Purpose string
	// Tab is one browser page showing View. Empty when the caller has none.
	Tab string
}

// Task is one poll. It should return promptly once ctx is done.
type Task func(ctx context.Context)

type entry struct {
	cancel  context.CancelFunc
	trigger chan struct{}
	done    chan struct{}
}

// Scheduler runs cancellable repeating tasks. Tasks for different keys are
// independent and uncorrelated.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[Key]*entry
	log   *zap.Logger
}

func New(log *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks: make(map[Key]*entry),
		log:   log,
	}
}

// Start runs fn immediately and then every interval until ctx is done or the
// task is stopped. A task already running under key is stopped first. The
// returned context is done when the task ends.
func (s *Scheduler) Start(ctx context.Context, key Key, interval time.Duration, fn Task) context.Context {
	taskCtx, cancel := context.WithCancel(ctx)
	e := &entry{
		cancel:  cancel,
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	old, replaced := s.tasks[key]
	s.tasks[key] = e
	s.mu.Unlock()
	if replaced {
		old.cancel()
		<-old.done
	}

	go s.run(taskCtx, key, e, interval, fn)
	return taskCtx
}

func (s *Scheduler) run(ctx context.Context, key Key, e *entry, interval time.Duration, fn Task) {
	defer func() {
		s.mu.Lock()
		if s.tasks[key] == e {
			delete(s.tasks, key)
		}
		s.mu.Unlock()
		e.cancel()
		close(e.done)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.poll(ctx, key, fn)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, key, fn)
		case <-e.trigger:
			s.poll(ctx, key, fn)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context, key Key, fn Task) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("poll task panicked",
				zap.String("view", key.View),
				zap.String("purpose", key.Purpose),
				zap.Any("panic", r))
		}
	}()
	fn(ctx)
}

// Trigger runs the task under key once more without waiting for its ticker.
// Reports false when no such task is running.
func (s *Scheduler) Trigger(key Key) bool {
	s.mu.Lock()
	e, ok := s.tasks[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case e.trigger <- struct{}{}:
	default:
	}
	return true
}

// TriggerAfter triggers key once after d, if it is still running by then.
func (s *Scheduler) TriggerAfter(key Key, d time.Duration) {
	time.AfterFunc(d, func() { s.Trigger(key) })
}

// TriggerView triggers the task of every tab showing key's view and purpose.
// key.Tab is ignored. Reports how many tasks were triggered.
func (s *Scheduler) TriggerView(key Key) int {
	keys := s.keys(func(k Key) bool {
		return k.Session == key.Session && k.View == key.View && k.Purpose == key.Purpose
	})
	n := 0
	for _, k := range keys {
		if s.Trigger(k) {
			n++
		}
	}
	return n
}

func (s *Scheduler) TriggerViewAfter(key Key, d time.Duration) {
	time.AfterFunc(d, func() { s.TriggerView(key) })
}

// Stop cancels the task under key and waits for it to exit.
func (s *Scheduler) Stop(key Key) {
	s.mu.Lock()
	e, ok := s.tasks[key]
	delete(s.tasks, key)
	s.mu.Unlock()
	if ok {
		e.cancel()
		<-e.done
	}
}

// StopSession stops every task of one session.
func (s *Scheduler) StopSession(sessionID string) {
	for _, key := range s.keys(func(k Key) bool { return k.Session == sessionID }) {
		s.Stop(key)
	}
}

// Running reports whether a task is registered under key.
func (s *Scheduler) Running(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Shutdown stops all tasks.
func (s *Scheduler) Shutdown() {
	for _, key := range s.keys(func(Key) bool { return true }) {
		s.Stop(key)
	}
}

func (s *Scheduler) keys(match func(Key) bool) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Key, 0, len(s.tasks))
	for k := range s.tasks {
		if match(k) {
			out = append(out, k)
		}
	}
	return out
}
