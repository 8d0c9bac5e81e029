package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Push stores v under a new child of path and returns the child key.
// Keys are UUIDv7 strings, so lexical order is insertion order.
func Push(ctx context.Context, s Store, path string, v any) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("push key: %w", err)
	}
	key := id.String()
	if err := s.Set(ctx, Join(path, key), v); err != nil {
		return "", err
	}
	return key, nil
}

// GetInto decodes the subtree at path into dst. It reports false (and leaves
// dst untouched) when nothing is stored there.
func GetInto(ctx context.Context, s Store, path string, dst any) (bool, error) {
	v, err := s.Get(ctx, path)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode %q: %w", path, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode %q: %w", path, err)
	}
	return true, nil
}
