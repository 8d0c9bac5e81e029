package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// normalize converts an arbitrary Go value into a JSON tree, resolving
// ServerTimestamp, dropping nil children and collapsing empty maps to nil.
// Arrays become maps keyed by index.
func normalize(v any, now time.Time) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var tree any
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return resolve(tree, float64(now.UnixMilli()))
}

func resolve(v any, nowMS float64) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if sv, ok := x[".sv"]; ok && len(x) == 1 {
			if sv == "timestamp" {
				return nowMS, nil
			}
			return nil, fmt.Errorf("unknown server value %v", sv)
		}
		out := make(map[string]any, len(x))
		for k, child := range x {
			if err := checkKey(k); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
			}
			r, err := resolve(child, nowMS)
			if err != nil {
				return nil, err
			}
			if r != nil {
				out[k] = r
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	case []any:
		m := make(map[string]any, len(x))
		for i, child := range x {
			m[strconv.Itoa(i)] = child
		}
		return resolve(m, nowMS)
	default:
		return v, nil
	}
}

// flatten appends the leaves of tree (rooted at prefix) to out.
func flatten(prefix string, tree any, out map[string]any) {
	m, ok := tree.(map[string]any)
	if !ok {
		if tree != nil {
			out[prefix] = tree
		}
		return
	}
	for k, child := range m {
		flatten(Join(prefix, k), child, out)
	}
}

// assemble rebuilds the subtree at base from leaves that all lie under base.
func assemble(base string, leaves map[string]any) any {
	if v, ok := leaves[base]; ok {
		return v
	}
	var root map[string]any
	for leaf, v := range leaves {
		if !under(leaf, base) {
			continue
		}
		rel := leaf
		if base != "" {
			rel = leaf[len(base)+1:]
		}
		if root == nil {
			root = map[string]any{}
		}
		setIn(root, splitPath(rel), v)
	}
	if root == nil {
		return nil
	}
	return root
}

// getIn walks the tree. It returns nil for missing nodes.
func getIn(node any, segs []string) any {
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[s]
	}
	return node
}

// setIn stores v at segs below root, creating (or replacing scalars with)
// intermediate maps. A nil v deletes the node and prunes emptied parents.
func setIn(root map[string]any, segs []string, v any) {
	if len(segs) == 0 {
		return
	}
	if v == nil {
		deleteIn(root, segs)
		return
	}
	node := root
	for _, s := range segs[:len(segs)-1] {
		next, ok := node[s].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[s] = next
		}
		node = next
	}
	node[segs[len(segs)-1]] = v
}

func deleteIn(node map[string]any, segs []string) {
	if len(segs) == 1 {
		delete(node, segs[0])
		return
	}
	child, ok := node[segs[0]].(map[string]any)
	if !ok {
		return
	}
	deleteIn(child, segs[1:])
	if len(child) == 0 {
		delete(node, segs[0])
	}
}

// deepCopy copies maps so callers can't mutate stored state.
func deepCopy(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, child := range m {
		out[k] = deepCopy(child)
	}
	return out
}
