package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// write is one normalized mutation. Update is expressed as several writes
// applied under one lock/transaction.
type write struct {
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// prepareSet validates and normalizes a Set.
func prepareSet(path string, value any, now time.Time) ([]write, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	v, err := normalize(value, now)
	if err != nil {
		return nil, fmt.Errorf("set %q: %w", p, err)
	}
	if p == "" && v != nil {
		if _, ok := v.(map[string]any); !ok {
			return nil, fmt.Errorf("%w: root must hold a map", ErrInvalidPath)
		}
	}
	return []write{{Path: p, Value: v}}, nil
}

// prepareUpdate validates and normalizes an Update into per-child writes.
func prepareUpdate(path string, children map[string]any, now time.Time) ([]write, error) {
	base, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	paths, vals, err := childPaths(base, children)
	if err != nil {
		return nil, err
	}
	out := make([]write, 0, len(paths))
	for _, p := range paths {
		v, err := normalize(vals[p], now)
		if err != nil {
			return nil, fmt.Errorf("update %q: %w", p, err)
		}
		out = append(out, write{Path: p, Value: v})
	}
	return out, nil
}

// memTree is the in-memory representation shared by the memory and file drivers.
type memTree struct {
	root map[string]any
}

func (t *memTree) get(p string) any {
	if p == "" {
		if len(t.root) == 0 {
			return nil
		}
		return deepCopy(t.root)
	}
	return deepCopy(getIn(t.root, splitPath(p)))
}

func (t *memTree) apply(ws []write) {
	for _, w := range ws {
		if w.Path == "" {
			t.root = map[string]any{}
			if m, ok := w.Value.(map[string]any); ok {
				for k, v := range m {
					t.root[k] = deepCopy(v)
				}
			}
			continue
		}
		setIn(t.root, splitPath(w.Path), deepCopy(w.Value))
	}
}

type memStore struct {
	mu     sync.Mutex
	tree   memTree
	closed bool
	now    func() time.Time
}

// NewMemory returns an empty process-local store.
func NewMemory() Store {
	return &memStore{tree: memTree{root: map[string]any{}}, now: time.Now}
}

func (s *memStore) Get(ctx context.Context, path string) (any, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.tree.get(p), nil
}

func (s *memStore) Set(ctx context.Context, path string, value any) error {
	ws, err := prepareSet(path, value, s.now())
	if err != nil {
		return err
	}
	return s.apply(ws)
}

func (s *memStore) Update(ctx context.Context, path string, children map[string]any) error {
	ws, err := prepareUpdate(path, children, s.now())
	if err != nil {
		return err
	}
	return s.apply(ws)
}

func (s *memStore) Remove(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}

func (s *memStore) apply(ws []write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.tree.apply(ws)
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
