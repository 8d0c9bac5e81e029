package store

import (
	"fmt"
	"slices"
	"strings"
)

// Join builds a path from segments, ignoring empty ones.
func Join(parts ...string) string {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			segs = append(segs, p)
		}
	}
	return strings.Join(segs, "/")
}

// cleanPath validates path and returns it without leading/trailing slashes.
// The empty string is the root.
func cleanPath(path string) (string, error) {
	p := strings.Trim(path, "/")
	if p == "" {
		return "", nil
	}
	for _, seg := range strings.Split(p, "/") {
		if err := checkKey(seg); err != nil {
			return "", fmt.Errorf("%w %q: %v", ErrInvalidPath, path, err)
		}
	}
	return p, nil
}

func checkKey(k string) error {
	if k == "" {
		return fmt.Errorf("empty segment")
	}
	if strings.ContainsAny(k, ".#$[]/") {
		return fmt.Errorf("segment %q contains one of . # $ [ ] /", k)
	}
	return nil
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// ancestors returns the proper ancestors of p, nearest last ("a", "a/b" for "a/b/c").
func ancestors(p string) []string {
	segs := splitPath(p)
	out := make([]string, 0, len(segs))
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}

// under reports whether leaf is p itself or lies below it.
func under(leaf, p string) bool {
	if p == "" {
		return true
	}
	return leaf == p || strings.HasPrefix(leaf, p+"/")
}

// childPaths resolves Update keys against base, sorted so parents apply before children.
func childPaths(base string, children map[string]any) ([]string, map[string]any, error) {
	paths := make([]string, 0, len(children))
	vals := make(map[string]any, len(children))
	for k, v := range children {
		rel, err := cleanPath(k)
		if err != nil {
			return nil, nil, err
		}
		if rel == "" {
			return nil, nil, fmt.Errorf("%w: empty update key", ErrInvalidPath)
		}
		full := Join(base, rel)
		paths = append(paths, full)
		vals[full] = v
	}
	slices.Sort(paths)
	for i := 1; i < len(paths); i++ {
		if under(paths[i], paths[i-1]) {
			return nil, nil, fmt.Errorf("%w: update keys %q and %q overlap", ErrInvalidPath, paths[i-1], paths[i])
		}
	}
	return paths, vals, nil
}
