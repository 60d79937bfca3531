// File: lixenwraith/config/helper.go
package config

import (
	"fmt"
	"strings"
)

// Entry is one dotted key and its value in a flat source.
type Entry struct {
	Key   string
	Value any
}

// Unflatten turns dotted keys into nested mappings, in entry order. Values
// are converted with FromValue, so slices and maps become sequences and
// mappings. A key that is both a leaf and a parent of another key (a.b = v1
// and a.b.c = v2) is a structural conflict reported as a *TypeMismatchError,
// unless allowConflict is set, in which case the later entry wins.
// Repeating the same key replaces the earlier value, except that two
// mapping values for one key are merged.
func Unflatten(entries []Entry, allowConflict bool) (*Node, error) {
	root := NewMapping()
	for _, entry := range entries {
		segments, err := splitPath(entry.Key)
		if err != nil {
			return nil, err
		}
		root, err = insertFlat(root, segments, FromValue(entry.Value), allowConflict)
		if err != nil {
			return nil, err
		}
	}
	return root, nil
}

// insertFlat returns root with leaf placed at segments. Values may carry
// shared nodes, so root is updated through With rather than in place.
func insertFlat(root *Node, segments []string, leaf *Node, allowConflict bool) (*Node, error) {
	if !allowConflict {
		for i := 1; i < len(segments); i++ {
			parent, exists := root.Lookup(segments[:i])
			if !exists {
				break
			}
			if parent.kind != KindMapping {
				return nil, &TypeMismatchError{
					Path:     strings.Join(segments[:i], "."),
					Expected: KindMapping.String(),
					Actual:   parent.Describe(),
					Err:      fmt.Errorf("key %q needs %q to be a mapping", strings.Join(segments, "."), strings.Join(segments[:i], ".")),
				}
			}
		}
	}

	if existing, exists := root.Lookup(segments); exists && existing.kind == KindMapping {
		switch {
		case leaf.kind == KindMapping:
			leaf = Merge(existing, leaf)
		case !allowConflict:
			return nil, &TypeMismatchError{
				Path:     strings.Join(segments, "."),
				Expected: leaf.Describe(),
				Actual:   KindMapping.String(),
				Err:      fmt.Errorf("key %q is already a parent of other keys", strings.Join(segments, ".")),
			}
		}
	}
	return root.With(segments, leaf), nil
}

// Flatten lists every leaf of the tree as a dotted key, depth-first.
func Flatten(n *Node) []Entry {
	var entries []Entry
	var walk func(node *Node, prefix string)
	walk = func(node *Node, prefix string) {
		if node.kind != KindMapping || len(node.keys) == 0 {
			if prefix != "" {
				entries = append(entries, Entry{Key: prefix, Value: node.Interface()})
			}
			return
		}
		for _, key := range node.keys {
			walk(node.children[key], joinPath(prefix, key))
		}
	}
	if n != nil {
		walk(n, "")
	}
	return entries
}

// splitPath validates a dot-separated path and returns its segments.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path cannot be empty", ErrInvalidPath)
	}
	segments := strings.Split(path, ".")
	for _, segment := range segments {
		if !isValidKeySegment(segment) {
			return nil, fmt.Errorf("%w: invalid path segment %q in path %q", ErrInvalidPath, segment, path)
		}
	}
	return segments, nil
}

// joinPath joins two path fragments, either of which may be empty.
func joinPath(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "." + name
	}
}

// isPathPrefix reports whether a equals b or is an ancestor path of b.
func isPathPrefix(a, b string) bool {
	return a == b || strings.HasPrefix(b, a+".")
}

// isValidKeySegment checks if a single path segment is a valid bare key part.
func isValidKeySegment(s string) bool {
	if len(s) == 0 {
		return false
	}
	// Bare keys are sequences of ASCII letters, ASCII digits, underscores, and dashes (A-Za-z0-9_-).
	for _, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isUnderscore := r == '_'
		isDash := r == '-'

		if !(isLetter || isDigit || isUnderscore || isDash) {
			return false
		}
	}
	return true
}
