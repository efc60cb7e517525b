package router

import (
	"context"
	"sync"
)

// tokenMap holds one serialization token per session. Waiting honors the
// caller's context.
type tokenMap struct {
	mu      sync.Mutex
	entries map[string]*token
}

type token struct {
	ch   chan struct{}
	refs int
}

func newTokenMap() *tokenMap {
	return &tokenMap{entries: make(map[string]*token)}
}

func (m *tokenMap) acquire(ctx context.Context, id string) (func(), error) {
	m.mu.Lock()
	t, ok := m.entries[id]
	if !ok {
		t = &token{ch: make(chan struct{}, 1)}
		m.entries[id] = t
	}
	t.refs++
	m.mu.Unlock()

	select {
	case t.ch <- struct{}{}:
	case <-ctx.Done():
		m.drop(id, t)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-t.ch
			m.drop(id, t)
		})
	}, nil
}

func (m *tokenMap) drop(id string, t *token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.refs--
	if t.refs == 0 {
		delete(m.entries, id)
	}
}

func (m *tokenMap) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
