// FILE: lixenwraith/config/config.go
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Options configures a root Config. Child layers inherit the options of their root.
type Options struct {
	// Name identifies the layer in logs and debug output.
	Name string
	// TagName is the struct tag used when coercing mappings into structs. Default: "toml".
	TagName string
	// Logger receives debug events. Default: discard.
	Logger Logger
	// FailOnUnknownPath makes every load fail when a source holds paths
	// no registered item covers.
	FailOnUnknownPath bool
	// Security applies to file sources added through a Loader.
	Security *SecurityOptions
	// LoadKeysCaseInsensitively makes loaders match source keys to
	// registered item paths ignoring case.
	LoadKeysCaseInsensitively bool
}

// DefaultOptions returns the standard options.
func DefaultOptions() Options {
	return Options{
		TagName: "toml",
	}
}

// Config is one layer of the resolution tree. It owns its registered items
// and its local values; the parent is referenced and never written through.
type Config struct {
	name    string
	parent  *Config
	opts    Options
	log     Logger
	coercer *coercer

	mutex  sync.RWMutex
	items  map[string]ItemDef
	names  map[ItemDef]string
	order  []string
	specs  []*Spec
	tree   *Node
	lazy   map[string]Thunk
	unset  map[string]bool
	frozen bool
}

// New creates an empty root Config with default options.
func New() *Config {
	return NewWithOptions(DefaultOptions())
}

// NewWithOptions creates an empty root Config.
func NewWithOptions(opts Options) *Config {
	if opts.TagName == "" {
		opts.TagName = "toml"
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	return newLayer(opts.Name, nil, opts, nil)
}

func newLayer(name string, parent *Config, opts Options, tree *Node) *Config {
	if tree == nil {
		tree = NewMapping()
	}
	c := &Config{
		name:   name,
		parent: parent,
		opts:   opts,
		log:    opts.Logger,
		items:  make(map[string]ItemDef),
		names:  make(map[ItemDef]string),
		tree:   tree,
		lazy:   make(map[string]Thunk),
		unset:  make(map[string]bool),
	}
	if parent != nil {
		c.coercer = parent.coercer
	} else {
		c.coercer = newCoercer(opts)
	}
	return c
}

// Name returns the layer name.
func (c *Config) Name() string { return c.name }

// Parent returns the parent layer, or nil for a root.
func (c *Config) Parent() *Config { return c.parent }

// WithLayer returns an empty child layer. Once a config has children no more
// items can be added to it.
func (c *Config) WithLayer(name string) *Config {
	c.mutex.Lock()
	c.frozen = true
	c.mutex.Unlock()
	c.log.Debug("layer created", "layer", name, "parent", c.name)
	return newLayer(name, c, c.opts, nil)
}

// withTree creates a child layer whose local values are tree.
func (c *Config) withTree(name string, tree *Node) *Config {
	c.mutex.Lock()
	c.frozen = true
	c.mutex.Unlock()
	return newLayer(name, c, c.opts, tree)
}

// AddSpec registers every item of spec, and of its inner specs, under their
// effective names. If any name is invalid or conflicts with a name already
// registered in this layer or an ancestor, nothing is registered.
func (c *Config) AddSpec(spec *Spec) error {
	if err := c.register(spec.qualifiedItems()); err != nil {
		return err
	}
	c.mutex.Lock()
	c.specs = append(c.specs, spec)
	c.mutex.Unlock()
	c.log.Debug("spec registered", "layer", c.name, "prefix", spec.Prefix(), "items", len(spec.Items()))
	return nil
}

// AddItem registers a single item under prefix.
func (c *Config) AddItem(item ItemDef, prefix string) error {
	return c.register([]qualifiedItem{{name: joinPath(prefix, item.Name()), item: item}})
}

func (c *Config) register(batch []qualifiedItem) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.frozen {
		return fmt.Errorf("%w: layer %q", ErrLayerFrozen, c.name)
	}

	for i, q := range batch {
		if _, err := splitPath(q.name); err != nil {
			return err
		}
		if err := conflictIn(c.items, q); err != nil {
			return err
		}
		for layer := c.parent; layer != nil; layer = layer.parent {
			layer.mutex.RLock()
			err := conflictIn(layer.items, q)
			layer.mutex.RUnlock()
			if err != nil {
				return err
			}
		}
		for _, earlier := range batch[:i] {
			if earlier.item == q.item || isPathPrefix(earlier.name, q.name) || isPathPrefix(q.name, earlier.name) {
				return &NameConflictError{Name: q.name, Existing: earlier.name}
			}
		}
	}

	for _, q := range batch {
		c.items[q.name] = q.item
		c.names[q.item] = q.name
		c.order = append(c.order, q.name)
	}
	return nil
}

// conflictIn checks q against one layer's item table.
func conflictIn(items map[string]ItemDef, q qualifiedItem) error {
	for name, item := range items {
		if item == q.item || isPathPrefix(name, q.name) || isPathPrefix(q.name, name) {
			return &NameConflictError{Name: q.name, Existing: name}
		}
	}
	return nil
}

// lookupItem finds the item registered under name in the layer chain.
func (c *Config) lookupItem(name string) (ItemDef, bool) {
	for layer := c; layer != nil; layer = layer.parent {
		layer.mutex.RLock()
		item, ok := layer.items[name]
		layer.mutex.RUnlock()
		if ok {
			return item, true
		}
	}
	return nil, false
}

// NameOf returns the effective name item was registered under.
func (c *Config) NameOf(item ItemDef) (string, error) {
	for layer := c; layer != nil; layer = layer.parent {
		layer.mutex.RLock()
		name, ok := layer.names[item]
		layer.mutex.RUnlock()
		if ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: item %s", ErrNoSuchItem, item.Name())
}

// Contains reports whether item is registered in this layer or an ancestor.
func (c *Config) Contains(item ItemDef) bool {
	_, err := c.NameOf(item)
	return err == nil
}

// ContainsName reports whether an item with the effective name is registered.
func (c *Config) ContainsName(name string) bool {
	_, ok := c.lookupItem(name)
	return ok
}

// Items returns all registered items, innermost layer first, each layer in
// registration order.
func (c *Config) Items() []ItemDef {
	var out []ItemDef
	for layer := c; layer != nil; layer = layer.parent {
		layer.mutex.RLock()
		for _, name := range layer.order {
			out = append(out, layer.items[name])
		}
		layer.mutex.RUnlock()
	}
	return out
}

// Names returns the effective names of all registered items, in Items order.
func (c *Config) Names() []string {
	var out []string
	for layer := c; layer != nil; layer = layer.parent {
		layer.mutex.RLock()
		out = append(out, layer.order...)
		layer.mutex.RUnlock()
	}
	return out
}

// Specs returns the specs added to this layer and its ancestors.
func (c *Config) Specs() []*Spec {
	var out []*Spec
	for layer := c; layer != nil; layer = layer.parent {
		layer.mutex.RLock()
		out = append(out, layer.specs...)
		layer.mutex.RUnlock()
	}
	return out
}

// Tree returns the local values of this layer. The returned tree is immutable.
func (c *Config) Tree() *Node {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.tree
}

// GetItem resolves item to a value of its declared type.
func (c *Config) GetItem(item ItemDef) (any, error) {
	name, err := c.NameOf(item)
	if err != nil {
		return nil, err
	}
	return c.resolve(name, item, nil)
}

// Get resolves the item registered under name.
func (c *Config) Get(name string) (any, error) {
	item, ok := c.lookupItem(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchItem, name)
	}
	return c.resolve(name, item, nil)
}

// resolve walks the layers innermost first. The first layer that holds a
// lazy value, an unset marker or a node at the item path decides the result;
// otherwise the item variant does.
func (c *Config) resolve(name string, item ItemDef, view *lazyView) (any, error) {
	path := strings.Split(name, ".")
	for layer := c; layer != nil; layer = layer.parent {
		layer.mutex.RLock()
		thunk, isLazy := layer.lazy[name]
		isUnset := layer.unset[name]
		node, found := layer.tree.Lookup(path)
		layer.mutex.RUnlock()

		switch {
		case isLazy:
			return c.evalLazy(name, item, thunk, view)
		case isUnset:
			return nil, &UnsetValueError{Name: name}
		case found:
			return c.coercer.coerce(name, node, item.Type())
		}
	}

	switch item.Variant() {
	case VariantLazy:
		return c.evalLazy(name, item, item.thunk(), view)
	case VariantOptional:
		return item.defaultValue(), nil
	default:
		return nil, &UnsetValueError{Name: name}
	}
}

// supplies reports whether some layer holds a value or a lazy override for
// name. An unset marker ends the search.
func (c *Config) supplies(name string) bool {
	path := strings.Split(name, ".")
	for layer := c; layer != nil; layer = layer.parent {
		layer.mutex.RLock()
		_, isLazy := layer.lazy[name]
		isUnset := layer.unset[name]
		_, found := layer.tree.Lookup(path)
		layer.mutex.RUnlock()

		switch {
		case isLazy:
			return true
		case isUnset:
			return false
		case found:
			return true
		}
	}
	return false
}

// evalLazy runs thunk against a getter bound to c. Thunks run without any lock held.
func (c *Config) evalLazy(name string, item ItemDef, thunk Thunk, view *lazyView) (any, error) {
	if thunk == nil {
		return nil, &UnsetValueError{Name: name}
	}
	if view == nil {
		view = &lazyView{cfg: c}
	}
	next, err := view.enter(name)
	if err != nil {
		return nil, err
	}
	value, err := thunk(next)
	if err != nil {
		return nil, err
	}
	return checkValue(name, value, item.Type())
}

// Set stores value for the item registered under name in this layer only.
func (c *Config) Set(name string, value any) error {
	item, ok := c.lookupItem(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchItem, name)
	}
	return c.set(name, item, value)
}

// SetItem stores value for item in this layer only.
func (c *Config) SetItem(item ItemDef, value any) error {
	name, err := c.NameOf(item)
	if err != nil {
		return err
	}
	return c.set(name, item, value)
}

func (c *Config) set(name string, item ItemDef, value any) error {
	stored, err := checkValue(name, value, item.Type())
	if err != nil {
		return err
	}
	path := strings.Split(name, ".")

	c.mutex.Lock()
	c.tree = c.tree.With(path, Scalar(stored))
	delete(c.lazy, name)
	delete(c.unset, name)
	c.mutex.Unlock()

	c.log.Debug("value set", "layer", c.name, "item", name)
	item.notifySet(stored)
	return nil
}

// LazySet makes the item registered under name computed by thunk in this
// layer, until a plain Set overwrites it.
func (c *Config) LazySet(name string, thunk Thunk) error {
	if _, ok := c.lookupItem(name); !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchItem, name)
	}
	return c.lazySet(name, thunk)
}

// LazySetItem is LazySet addressed by item.
func (c *Config) LazySetItem(item ItemDef, thunk Thunk) error {
	name, err := c.NameOf(item)
	if err != nil {
		return err
	}
	return c.lazySet(name, thunk)
}

func (c *Config) lazySet(name string, thunk Thunk) error {
	if thunk == nil {
		return fmt.Errorf("lazy set of %s: thunk cannot be nil", name)
	}
	c.mutex.Lock()
	c.lazy[name] = thunk
	delete(c.unset, name)
	c.mutex.Unlock()

	c.log.Debug("lazy value set", "layer", c.name, "item", name)
	return nil
}

// Unset marks the item registered under name as having no value in this
// layer. Reads through this layer then fail with an *UnsetValueError, even if
// an ancestor or the item itself would supply a value.
func (c *Config) Unset(name string) error {
	if _, ok := c.lookupItem(name); !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchItem, name)
	}
	c.mutex.Lock()
	c.unset[name] = true
	delete(c.lazy, name)
	c.mutex.Unlock()
	return nil
}

// Clear drops every local value, lazy value and unset marker of this layer.
// Registered items and ancestors are untouched.
func (c *Config) Clear() {
	c.mutex.Lock()
	c.tree = NewMapping()
	c.lazy = make(map[string]Thunk)
	c.unset = make(map[string]bool)
	c.mutex.Unlock()
}

// ToMap resolves every registered item that has a value, keyed by effective name.
func (c *Config) ToMap() (map[string]any, error) {
	out := make(map[string]any)
	for _, item := range c.Items() {
		name, err := c.NameOf(item)
		if err != nil {
			return nil, err
		}
		value, err := c.resolve(name, item, nil)
		if err != nil {
			if errors.Is(err, ErrUnsetValue) {
				continue
			}
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

// checkValue verifies that value can be stored for an item of type t.
func checkValue(name string, value any, t reflect.Type) (any, error) {
	if value == nil {
		if isNilable(t) {
			return reflect.Zero(t).Interface(), nil
		}
		return nil, &TypeMismatchError{Path: name, Expected: t.String(), Actual: "null"}
	}
	vt := reflect.TypeOf(value)
	if !vt.AssignableTo(t) {
		return nil, &TypeMismatchError{Path: name, Expected: t.String(), Actual: vt.String()}
	}
	return value, nil
}

func isNilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	default:
		return false
	}
}
