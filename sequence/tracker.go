package sequence

import (
	"context"
	"strings"
	"sync"
)

// Tracker issues monotonic sequence numbers per concern. Beginning a request
// for a concern cancels the one still in flight, so only the latest request's
// response is ever applied. A concern's slot lives only while a request for
// it is in flight.
type Tracker struct {
	mu      sync.Mutex
	next    uint64
	entries map[string]*slot
}

type slot struct {
	seq    uint64
	cancel context.CancelFunc
}

func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]*slot)}
}

// Ticket is one sequenced request.
type Ticket struct {
	Seq uint64
	key string
	t   *Tracker
}

// Begin starts a request for key. The returned context is cancelled when a
// newer request for the same key begins.
func (t *Tracker) Begin(parent context.Context, key string) (context.Context, Ticket) {
	ctx, cancel := context.WithCancel(parent)

	t.mu.Lock()
	s, ok := t.entries[key]
	if !ok {
		s = &slot{}
		t.entries[key] = s
	}
	if s.cancel != nil {
		s.cancel()
	}
	// numbers come from one counter so a recreated slot never reuses one
	t.next++
	s.seq = t.next
	s.cancel = cancel
	seq := s.seq
	t.mu.Unlock()

	return ctx, Ticket{Seq: seq, key: key, t: t}
}

// Current reports whether no newer request for the ticket's key has begun.
func (tk Ticket) Current() bool {
	tk.t.mu.Lock()
	defer tk.t.mu.Unlock()
	s, ok := tk.t.entries[tk.key]
	return ok && s.seq == tk.Seq
}

// Done releases the ticket's context. The latest ticket also frees its slot.
func (tk Ticket) Done() {
	tk.t.mu.Lock()
	defer tk.t.mu.Unlock()
	s, ok := tk.t.entries[tk.key]
	if ok && s.seq == tk.Seq {
		if s.cancel != nil {
			s.cancel()
		}
		delete(tk.t.entries, tk.key)
	}
}

// Len reports how many concerns have a request in flight.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Forget drops all keys starting with prefix, cancelling in-flight requests.
func (t *Tracker) Forget(prefix string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, s := range t.entries {
		if strings.HasPrefix(k, prefix) {
			if s.cancel != nil {
				s.cancel()
			}
			delete(t.entries, k)
		}
	}
}
