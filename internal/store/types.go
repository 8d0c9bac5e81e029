package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed      = errors.New("store closed")
	ErrInvalidPath = errors.New("invalid path")
)

// Config configures the store driver. See config.StoreConfig for the file format.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	Addr        string
	Password    string
	DB          int
	Prefix      string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the hierarchical key-value API.
type Store interface {
	// Get returns the subtree at path, or nil when nothing is stored there.
	Get(ctx context.Context, path string) (any, error)
	// Set replaces the subtree at path. A nil value deletes it.
	Set(ctx context.Context, path string, value any) error
	// Update merges the named children into path, leaving siblings untouched.
	// Keys may be relative sub-paths ("a/b"); a nil value deletes that child.
	Update(ctx context.Context, path string, children map[string]any) error
	// Remove deletes the subtree at path.
	Remove(ctx context.Context, path string) error
	Close() error
}

type serverValue struct{}

func (serverValue) MarshalJSON() ([]byte, error) { return []byte(`{".sv":"timestamp"}`), nil }

// ServerTimestamp is replaced by the write time (unix milliseconds) when stored.
var ServerTimestamp any = serverValue{}
