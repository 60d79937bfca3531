// FILE: lixenwraith/config/compose.go
package config

import (
	"fmt"
	"strings"
)

// Fallback reads items from a facade and falls back to another reader.
// Items are matched by identity. An item registered in both comes from the
// facade only when some facade layer supplies a value for it; otherwise the
// fallback decides, including its defaults. Lazy thunks read through the
// composition.
type Fallback struct {
	facade   Reader
	fallback Reader
}

// WithFallback composes facade over fallback. Neither reader is modified,
// so later writes to either are visible through the composition.
func WithFallback(facade, fallback Reader) *Fallback {
	return &Fallback{facade: facade, fallback: fallback}
}

// WithFallback composes c over fallback.
func (c *Config) WithFallback(fallback Reader) *Fallback {
	return WithFallback(c, fallback)
}

func (f *Fallback) NameOf(item ItemDef) (string, error) {
	if name, err := f.facade.NameOf(item); err == nil {
		return name, nil
	}
	return f.fallback.NameOf(item)
}

func (f *Fallback) Contains(item ItemDef) bool {
	_, err := f.NameOf(item)
	return err == nil
}

func (f *Fallback) GetItem(item ItemDef) (any, error) {
	name, err := f.NameOf(item)
	if err != nil {
		return nil, err
	}
	return f.resolve(name, item, nil)
}

func (f *Fallback) Get(name string) (any, error) {
	item, ok := f.lookupItem(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchItem, name)
	}
	return f.resolve(name, item, nil)
}

func (f *Fallback) lookupItem(name string) (ItemDef, bool) {
	if item, ok := f.facade.lookupItem(name); ok {
		return item, true
	}
	return f.fallback.lookupItem(name)
}

func (f *Fallback) supplies(name string) bool {
	return f.facade.supplies(name) || f.fallback.supplies(name)
}

func (f *Fallback) resolve(name string, item ItemDef, view *lazyView) (any, error) {
	if view == nil {
		view = &lazyView{cfg: f}
	}
	facadeItem, inFacade := f.facade.lookupItem(name)
	fallbackItem, inFallback := f.fallback.lookupItem(name)
	inFacade = inFacade && facadeItem == item
	inFallback = inFallback && fallbackItem == item
	if inFacade && (!inFallback || f.facade.supplies(name)) {
		return f.facade.resolve(name, item, view)
	}
	return f.fallback.resolve(name, item, view)
}

// View exposes the items of a reader under relocated names. Lazy items read
// through a view are evaluated against the underlying reader.
type View struct {
	base   Reader
	at     string
	prefix string
}

// At returns a view of the items under path, named relative to path.
// Items outside path are not visible.
func At(r Reader, path string) (*View, error) {
	if _, err := splitPath(path); err != nil {
		return nil, err
	}
	return &View{base: r, at: path}, nil
}

// WithPrefix returns a view in which every item name of r gains prefix.
func WithPrefix(r Reader, prefix string) (*View, error) {
	if _, err := splitPath(prefix); err != nil {
		return nil, err
	}
	return &View{base: r, prefix: prefix}, nil
}

// At returns a view of the items of c under path.
func (c *Config) At(path string) (*View, error) { return At(c, path) }

// WithPrefix returns a view of c with every item name under prefix.
func (c *Config) WithPrefix(prefix string) (*View, error) { return WithPrefix(c, prefix) }

// Base returns the underlying reader.
func (v *View) Base() Reader { return v.base }

// toBase maps a view name to the underlying name.
func (v *View) toBase(name string) (string, bool) {
	rest := name
	if v.prefix != "" {
		if !strings.HasPrefix(name, v.prefix+".") {
			return "", false
		}
		rest = strings.TrimPrefix(name, v.prefix+".")
	}
	return joinPath(v.at, rest), true
}

// fromBase maps an underlying name to the view name.
func (v *View) fromBase(name string) (string, bool) {
	rest := name
	if v.at != "" {
		if !strings.HasPrefix(name, v.at+".") {
			return "", false
		}
		rest = strings.TrimPrefix(name, v.at+".")
	}
	return joinPath(v.prefix, rest), true
}

func (v *View) NameOf(item ItemDef) (string, error) {
	base, err := v.base.NameOf(item)
	if err != nil {
		return "", err
	}
	name, ok := v.fromBase(base)
	if !ok {
		return "", fmt.Errorf("%w: item %s is outside %s", ErrNoSuchItem, base, v.at)
	}
	return name, nil
}

func (v *View) Contains(item ItemDef) bool {
	_, err := v.NameOf(item)
	return err == nil
}

func (v *View) GetItem(item ItemDef) (any, error) {
	name, err := v.NameOf(item)
	if err != nil {
		return nil, err
	}
	return v.resolve(name, item, nil)
}

func (v *View) Get(name string) (any, error) {
	item, ok := v.lookupItem(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchItem, name)
	}
	return v.resolve(name, item, nil)
}

func (v *View) lookupItem(name string) (ItemDef, bool) {
	base, ok := v.toBase(name)
	if !ok {
		return nil, false
	}
	return v.base.lookupItem(base)
}

func (v *View) supplies(name string) bool {
	base, ok := v.toBase(name)
	return ok && v.base.supplies(base)
}

func (v *View) resolve(name string, item ItemDef, _ *lazyView) (any, error) {
	base, ok := v.toBase(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchItem, name)
	}
	return v.base.resolve(base, item, nil)
}
