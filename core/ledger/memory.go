package ledger

import (
	"context"
	"sync"

	"healthsnap/types/ids"
)

// Memory is an in-process Ledger.
type Memory struct {
	mu      sync.RWMutex
	anchors map[ids.ID]Anchor
}

func NewMemory() *Memory {
	return &Memory{anchors: make(map[ids.ID]Anchor)}
}

func (m *Memory) Put(ctx context.Context, a Anchor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := ids.FromString(a.Digest)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.anchors[key]; ok {
		if prev.sameAs(a) {
			return nil
		}
		return ErrConflict
	}
	m.anchors[key] = a
	return nil
}

func (m *Memory) Get(ctx context.Context, digest ids.ID) (Anchor, error) {
	if err := ctx.Err(); err != nil {
		return Anchor{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.anchors[digest]
	if !ok {
		return Anchor{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.anchors)
}

func (m *Memory) Count() (int, error) { return m.Len(), nil }
