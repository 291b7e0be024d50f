// Package history keeps the short-term conversation context sent with every
// completion request. Nothing here is persisted.
package history

import (
	"sync"

	"xhiqi-bot/internal/domain"
)

const DefaultSize = 20

// Store is the conversation log consumed by the orchestrator. Implementations
// must be safe for concurrent use.
type Store interface {
	Append(key string, turn domain.Turn)
	Snapshot(key string) []domain.Turn
}

// Window is a fixed-size ring of turns. Appending beyond the bound evicts
// the oldest turn.
type Window struct {
	mu    sync.Mutex
	turns []domain.Turn
	start int
	count int
}

// NewWindow returns a Window holding at most size turns. Non-positive sizes
// use DefaultSize.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultSize
	}
	return &Window{turns: make([]domain.Turn, size)}
}

func (w *Window) Append(turn domain.Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	size := len(w.turns)
	if w.count < size {
		w.turns[(w.start+w.count)%size] = turn
		w.count++
		return
	}
	w.turns[w.start] = turn
	w.start = (w.start + 1) % size
}

// Snapshot returns the retained turns oldest-first. The slice is a copy.
func (w *Window) Snapshot() []domain.Turn {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]domain.Turn, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.turns[(w.start+i)%len(w.turns)]
	}
	return out
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *Window) Cap() int {
	return len(w.turns)
}

// Shared is one process-wide window; the key is ignored. Every sender and
// channel sees the same context.
type Shared struct {
	window *Window
}

func NewShared(size int) *Shared {
	return &Shared{window: NewWindow(size)}
}

func (s *Shared) Append(_ string, turn domain.Turn) {
	s.window.Append(turn)
}

func (s *Shared) Snapshot(_ string) []domain.Turn {
	return s.window.Snapshot()
}

// Partitioned keeps an independent window per key, created on first use.
type Partitioned struct {
	size int

	mu      sync.Mutex
	windows map[string]*Window
}

func NewPartitioned(size int) *Partitioned {
	if size <= 0 {
		size = DefaultSize
	}
	return &Partitioned{size: size, windows: make(map[string]*Window)}
}

func (p *Partitioned) Append(key string, turn domain.Turn) {
	p.window(key).Append(turn)
}

func (p *Partitioned) Snapshot(key string) []domain.Turn {
	p.mu.Lock()
	w, ok := p.windows[key]
	p.mu.Unlock()
	if !ok {
		return []domain.Turn{}
	}
	return w.Snapshot()
}

func (p *Partitioned) window(key string) *Window {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.windows[key]
	if !ok {
		w = NewWindow(p.size)
		p.windows[key] = w
	}
	return w
}

// Scope selects how history is partitioned.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeChannel Scope = "channel"
)

// New returns the Store for scope. Unknown scopes behave as ScopeGlobal.
func New(scope Scope, size int) Store {
	if scope == ScopeChannel {
		return NewPartitioned(size)
	}
	return NewShared(size)
}
