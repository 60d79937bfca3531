// FILE: lixenwraith/config/spec.go
package config

import (
	"fmt"
	"sync"
)

// Spec is a named, ordered group of items sharing a path prefix.
type Spec struct {
	prefix      string
	description string

	mu     sync.RWMutex
	items  []ItemDef
	byName map[string]ItemDef
	inner  []*Spec
}

// SpecOption customizes a spec at construction time.
type SpecOption func(*Spec)

// WithSpecDescription attaches a description to a spec.
func WithSpecDescription(description string) SpecOption {
	return func(s *Spec) { s.description = description }
}

// NewSpec creates an empty spec. An empty prefix leaves item names unqualified.
func NewSpec(prefix string, opts ...SpecOption) *Spec {
	s := &Spec{
		prefix: prefix,
		byName: make(map[string]ItemDef),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prefix returns the common prefix of the spec items.
func (s *Spec) Prefix() string { return s.prefix }

// Description returns the spec description.
func (s *Spec) Description() string { return s.description }

// AddItem appends item to the spec. It fails if the name is not a valid path,
// if the spec already holds an item of that name, or if the item belongs to
// another spec.
func (s *Spec) AddItem(item ItemDef) error {
	if _, err := splitPath(item.Name()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byName[item.Name()]; ok {
		if existing == item {
			return fmt.Errorf("item %s has already been added to spec %q", item.Name(), s.prefix)
		}
		return &NameConflictError{Name: joinPath(s.prefix, item.Name())}
	}
	if err := item.claim(s); err != nil {
		return err
	}
	s.items = append(s.items, item)
	s.byName[item.Name()] = item
	return nil
}

// AddItems adds items in order, stopping at the first failure.
func (s *Spec) AddItems(items ...ItemDef) error {
	for _, item := range items {
		if err := s.AddItem(item); err != nil {
			return err
		}
	}
	return nil
}

// AddInnerSpec nests inner under s. Its items are registered with the prefix
// of s prepended to the prefix of inner.
func (s *Spec) AddInnerSpec(inner *Spec) error {
	if inner == s {
		return fmt.Errorf("spec %q cannot contain itself", s.prefix)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.inner {
		if existing == inner {
			return fmt.Errorf("spec %q has already been added to spec %q", inner.prefix, s.prefix)
		}
	}
	s.inner = append(s.inner, inner)
	return nil
}

// Items returns the items of the spec in insertion order, excluding inner specs.
func (s *Spec) Items() []ItemDef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ItemDef(nil), s.items...)
}

// InnerSpecs returns the nested specs in insertion order.
func (s *Spec) InnerSpecs() []*Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Spec(nil), s.inner...)
}

// Qualify returns the effective name of item under this spec's prefix.
func (s *Spec) Qualify(item ItemDef) string {
	return joinPath(s.prefix, item.Name())
}

// WithPrefix returns a view of the same items with prefix prepended.
// The items keep their original owner.
func (s *Spec) WithPrefix(prefix string) *Spec {
	if prefix == "" {
		return s
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := &Spec{
		prefix:      joinPath(prefix, s.prefix),
		description: s.description,
		items:       append([]ItemDef(nil), s.items...),
		byName:      make(map[string]ItemDef, len(s.byName)),
		inner:       append([]*Spec(nil), s.inner...),
	}
	for name, item := range s.byName {
		view.byName[name] = item
	}
	return view
}

// qualifiedItems lists every item of s and its inner specs with effective names.
func (s *Spec) qualifiedItems() []qualifiedItem {
	var out []qualifiedItem
	for _, item := range s.Items() {
		out = append(out, qualifiedItem{name: s.Qualify(item), item: item})
	}
	for _, inner := range s.InnerSpecs() {
		out = append(out, inner.WithPrefix(s.prefix).qualifiedItems()...)
	}
	return out
}

type qualifiedItem struct {
	name string
	item ItemDef
}
