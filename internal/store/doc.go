// Package store is the hierarchical key-value state store used by every
// handler.
//
// Paths are slash-separated ("spaces/AAA/users"). Values are JSON trees:
// maps, strings, numbers and bools. A path that holds nothing reads as nil,
// and maps never exist empty: removing the last child removes the parent.
//
// Each primitive (Set, Update, Remove) is atomic for its own path. There is
// no cross-path atomicity; callers that write two paths must tolerate readers
// observing one write without the other.
//
// Drivers:
//   - memory: process-local tree
//   - file: memory tree + JSONL op journal, compacted into a snapshot
//   - sqlite / postgres: one row per leaf in table nodes(path, value)
//   - redis: one key per leaf plus a lexicographic index of leaf paths
package store
