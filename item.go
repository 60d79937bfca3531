// FILE: lixenwraith/config/item.go
package config

import (
	"fmt"
	"reflect"
	"sync"
)

// Variant tells how an item obtains its value when no layer defines it.
type Variant int

const (
	// VariantRequired items have no default and must be supplied.
	VariantRequired Variant = iota
	// VariantOptional items fall back to a static default.
	VariantOptional
	// VariantLazy items are computed from other items on every read.
	VariantLazy
)

func (v Variant) String() string {
	switch v {
	case VariantRequired:
		return "required"
	case VariantOptional:
		return "optional"
	case VariantLazy:
		return "lazy"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Thunk computes a lazy value from a read-only view of the config it is read from.
type Thunk func(g Getter) (any, error)

// ItemDef is the untyped view of an *Item[T]. It is implemented only by this package.
type ItemDef interface {
	Name() string
	Description() string
	Variant() Variant
	Type() reflect.Type
	Spec() *Spec

	defaultValue() any
	thunk() Thunk
	claim(s *Spec) error
	notifySet(value any)
}

// Item is a typed configuration key. Items are immutable once constructed,
// apart from being claimed by exactly one Spec and carrying set listeners.
type Item[T any] struct {
	name        string
	description string
	variant     Variant
	def         T
	lazy        func(Getter) (T, error)
	typ         reflect.Type

	mu        sync.Mutex
	owner     *Spec
	listeners []setListener[T]
	nextID    int
}

type setListener[T any] struct {
	id int
	fn func(value T)
}

// ItemOption customizes an item at construction time.
type ItemOption func(*itemOptions)

type itemOptions struct {
	description string
}

// WithDescription attaches a human readable description to an item.
func WithDescription(description string) ItemOption {
	return func(o *itemOptions) { o.description = description }
}

func newItem[T any](name string, variant Variant, opts []ItemOption) *Item[T] {
	var o itemOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Item[T]{
		name:        name,
		description: o.description,
		variant:     variant,
		typ:         reflect.TypeOf((*T)(nil)).Elem(),
	}
}

// Required declares an item that must be supplied by some layer.
func Required[T any](name string, opts ...ItemOption) *Item[T] {
	return newItem[T](name, VariantRequired, opts)
}

// Optional declares an item that falls back to def.
func Optional[T any](name string, def T, opts ...ItemOption) *Item[T] {
	item := newItem[T](name, VariantOptional, opts)
	item.def = def
	return item
}

// Lazy declares an item computed by thunk each time it is read and no layer
// defines it. The thunk sees the config the read was made on.
func Lazy[T any](name string, thunk func(Getter) (T, error), opts ...ItemOption) *Item[T] {
	item := newItem[T](name, VariantLazy, opts)
	item.lazy = thunk
	return item
}

// Name returns the item name without its spec prefix.
func (i *Item[T]) Name() string { return i.name }

// Description returns the item description.
func (i *Item[T]) Description() string { return i.description }

// Variant returns how the item is resolved when no layer defines it.
func (i *Item[T]) Variant() Variant { return i.variant }

// Type returns the declared value type.
func (i *Item[T]) Type() reflect.Type { return i.typ }

// Default returns the static default of an optional item, or the zero value.
func (i *Item[T]) Default() T { return i.def }

// Spec returns the owning spec, or nil if the item has not been added to one.
func (i *Item[T]) Spec() *Spec {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.owner
}

func (i *Item[T]) String() string {
	return fmt.Sprintf("%s item %s (%s)", i.variant, i.name, i.typ)
}

func (i *Item[T]) defaultValue() any { return i.def }

func (i *Item[T]) thunk() Thunk {
	if i.lazy == nil {
		return nil
	}
	return func(g Getter) (any, error) {
		return i.lazy(g)
	}
}

func (i *Item[T]) claim(s *Spec) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.owner != nil && i.owner != s {
		return fmt.Errorf("item %s already belongs to spec %q", i.name, i.owner.Prefix())
	}
	i.owner = s
	return nil
}

// OnSet registers fn to run after a value for the item is stored with Set
// on any config. Listeners run in registration order, outside any config
// lock. Loading sources does not trigger them. The returned function removes
// the listener.
func (i *Item[T]) OnSet(fn func(value T)) (remove func()) {
	if fn == nil {
		return func() {}
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.nextID++
	id := i.nextID
	i.listeners = append(i.listeners, setListener[T]{id: id, fn: fn})

	return func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		for n, l := range i.listeners {
			if l.id == id {
				i.listeners = append(i.listeners[:n:n], i.listeners[n+1:]...)
				return
			}
		}
	}
}

func (i *Item[T]) notifySet(value any) {
	i.mu.Lock()
	listeners := i.listeners
	i.mu.Unlock()

	v, _ := value.(T)
	for _, l := range listeners {
		l.fn(v)
	}
}
