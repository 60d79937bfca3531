// FILE: lixenwraith/config/tree.go
package config

import (
	"fmt"
	"reflect"
	"sort"
)

// Kind identifies the shape of a Node.
type Kind int

const (
	// KindScalar is a string, number, bool or null leaf.
	KindScalar Kind = iota
	// KindSequence is an ordered list of nodes.
	KindSequence
	// KindMapping is an ordered string-keyed map of nodes.
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node is the untyped intermediate form produced by every source.
// A Node is never mutated once it is reachable from a Config or returned by a
// Source; updates go through With, which copies only the nodes along the path.
type Node struct {
	kind     Kind
	value    any
	items    []*Node
	keys     []string
	children map[string]*Node
}

// Scalar returns a scalar leaf. A nil value is the null scalar.
func Scalar(v any) *Node {
	return &Node{kind: KindScalar, value: v}
}

// Sequence returns a sequence holding items in order.
func Sequence(items ...*Node) *Node {
	return &Node{kind: KindSequence, items: append([]*Node(nil), items...)}
}

// NewMapping returns an empty mapping.
func NewMapping() *Node {
	return &Node{kind: KindMapping, children: make(map[string]*Node)}
}

// Kind returns the node shape.
func (n *Node) Kind() Kind { return n.kind }

// Value returns the scalar value, or nil for sequences and mappings.
func (n *Node) Value() any { return n.value }

// IsNull reports whether n is the null scalar.
func (n *Node) IsNull() bool { return n.kind == KindScalar && n.value == nil }

// Items returns a copy of the sequence elements.
func (n *Node) Items() []*Node { return append([]*Node(nil), n.items...) }

// Keys returns the mapping keys in order.
func (n *Node) Keys() []string { return append([]string(nil), n.keys...) }

// Len returns the number of elements of a sequence or keys of a mapping.
func (n *Node) Len() int {
	switch n.kind {
	case KindSequence:
		return len(n.items)
	case KindMapping:
		return len(n.keys)
	default:
		return 0
	}
}

// Child returns the mapping entry for key.
func (n *Node) Child(key string) (*Node, bool) {
	if n == nil || n.kind != KindMapping {
		return nil, false
	}
	child, ok := n.children[key]
	return child, ok
}

// Lookup walks path through nested mappings. An empty path returns n itself.
func (n *Node) Lookup(path []string) (*Node, bool) {
	current := n
	for _, segment := range path {
		next, ok := current.Child(segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, current != nil
}

// Describe names the node shape for error messages, including the Go type of scalars.
func (n *Node) Describe() string {
	if n == nil {
		return "nothing"
	}
	if n.kind == KindScalar {
		if n.value == nil {
			return "null"
		}
		return fmt.Sprintf("scalar (%T)", n.value)
	}
	return n.kind.String()
}

// put appends or replaces a mapping entry in place. Only used while building
// a node that is not yet shared.
func (n *Node) put(key string, child *Node) {
	if _, exists := n.children[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.children[key] = child
}

// withChild returns a shallow copy of mapping n with key set to child.
func (n *Node) withChild(key string, child *Node) *Node {
	out := &Node{
		kind:     KindMapping,
		keys:     make([]string, 0, len(n.keys)+1),
		children: make(map[string]*Node, len(n.children)+1),
	}
	out.keys = append(out.keys, n.keys...)
	for k, v := range n.children {
		out.children[k] = v
	}
	out.put(key, child)
	return out
}

// With returns a tree equal to n except that path holds node. Intermediate
// mappings are created as needed and non-mapping nodes on the path are
// replaced. n itself is left untouched.
func (n *Node) With(path []string, node *Node) *Node {
	if len(path) == 0 {
		return node
	}
	base := n
	if base == nil || base.kind != KindMapping {
		base = NewMapping()
	}
	child, _ := base.Child(path[0])
	return base.withChild(path[0], child.With(path[1:], node))
}

// Paths returns every leaf path in depth-first order. Scalars, sequences and
// empty mappings are leaves.
func (n *Node) Paths() []string {
	var paths []string
	var walk func(node *Node, prefix string)
	walk = func(node *Node, prefix string) {
		if node.kind != KindMapping || len(node.keys) == 0 {
			if prefix != "" {
				paths = append(paths, prefix)
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
	return paths
}

// Interface converts the tree to plain Go values: map[string]any, []any and scalars.
func (n *Node) Interface() any {
	if n == nil {
		return nil
	}
	switch n.kind {
	case KindSequence:
		out := make([]any, len(n.items))
		for i, item := range n.items {
			out[i] = item.Interface()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(n.keys))
		for _, key := range n.keys {
			out[key] = n.children[key].Interface()
		}
		return out
	default:
		return n.value
	}
}

// Equal reports whether two trees have the same shape, key order and values.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.kind != other.kind {
		return false
	}
	switch n.kind {
	case KindSequence:
		if len(n.items) != len(other.items) {
			return false
		}
		for i := range n.items {
			if !n.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(n.keys) != len(other.keys) {
			return false
		}
		for i, key := range n.keys {
			if other.keys[i] != key || !n.children[key].Equal(other.children[key]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(n.value, other.value)
	}
}

// FromValue converts nested Go values (maps with string-like keys, slices and
// scalars) into a tree. Map keys are sorted since Go maps carry no order.
// Byte slices stay scalars.
func FromValue(v any) *Node {
	switch val := v.(type) {
	case nil:
		return Scalar(nil)
	case *Node:
		return val
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		node := NewMapping()
		for _, k := range keys {
			node.put(k, FromValue(val[k]))
		}
		return node
	case []any:
		node := &Node{kind: KindSequence, items: make([]*Node, len(val))}
		for i, item := range val {
			node.items[i] = FromValue(item)
		}
		return node
	case []byte:
		return Scalar(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		values := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())
			keys = append(keys, key)
			values[key] = iter.Value().Interface()
		}
		sort.Strings(keys)
		node := NewMapping()
		for _, k := range keys {
			node.put(k, FromValue(values[k]))
		}
		return node
	case reflect.Slice, reflect.Array:
		node := &Node{kind: KindSequence, items: make([]*Node, rv.Len())}
		for i := 0; i < rv.Len(); i++ {
			node.items[i] = FromValue(rv.Index(i).Interface())
		}
		return node
	default:
		return Scalar(v)
	}
}
