package catalog

import (
	"context"
	"errors"
	"sync"
)

// Memo remembers lookups for the lifetime of one aggregation so every delivery
// in a period is priced against the same catalog state.
type Memo struct {
	source Reader

	mu         sync.Mutex
	newspapers map[int64]memoEntry[Newspaper]
	booklets   map[int64]memoEntry[Booklet]
}

type memoEntry[T any] struct {
	value T
	err   error
}

// NewMemo wraps source.
func NewMemo(source Reader) *Memo {
	return &Memo{
		source:     source,
		newspapers: make(map[int64]memoEntry[Newspaper]),
		booklets:   make(map[int64]memoEntry[Booklet]),
	}
}

// Newspaper returns the remembered newspaper or loads it. Only ErrNotFound
// outcomes are remembered alongside hits.
func (m *Memo) Newspaper(ctx context.Context, id int64) (Newspaper, error) {
	m.mu.Lock()
	entry, ok := m.newspapers[id]
	m.mu.Unlock()
	if ok {
		return entry.value, entry.err
	}
	n, err := m.source.Newspaper(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Newspaper{}, err
	}
	m.mu.Lock()
	m.newspapers[id] = memoEntry[Newspaper]{value: n, err: err}
	m.mu.Unlock()
	return n, err
}

// Booklet returns the remembered booklet or loads it.
func (m *Memo) Booklet(ctx context.Context, id int64) (Booklet, error) {
	m.mu.Lock()
	entry, ok := m.booklets[id]
	m.mu.Unlock()
	if ok {
		return entry.value, entry.err
	}
	b, err := m.source.Booklet(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Booklet{}, err
	}
	m.mu.Lock()
	m.booklets[id] = memoEntry[Booklet]{value: b, err: err}
	m.mu.Unlock()
	return b, err
}
