// FILE: lixenwraith/config/getter.go
package config

import (
	"fmt"
	"strings"
)

// Getter is the read-only capability handed to lazy thunks. Reads made
// through it resolve against the config the original read was made on.
type Getter interface {
	// GetItem resolves item to a value of its declared type.
	GetItem(item ItemDef) (any, error)
	// Get resolves the registered item with the given effective name.
	Get(name string) (any, error)
	// Contains reports whether item is registered in the layer chain.
	Contains(item ItemDef) bool
}

// Reader is a Getter that can be composed with WithFallback, At and
// WithPrefix. It is implemented by *Config, *Fallback and *View.
type Reader interface {
	Getter
	// NameOf returns the name item is readable under.
	NameOf(item ItemDef) (string, error)

	lookupItem(name string) (ItemDef, bool)
	supplies(name string) bool
	resolve(name string, item ItemDef, view *lazyView) (any, error)
}

// lazyView is the Getter bound to one reader for the duration of a read.
// It tracks the names under evaluation so cyclic thunks fail instead of recursing forever.
type lazyView struct {
	cfg      Reader
	visiting []string
}

func (v *lazyView) GetItem(item ItemDef) (any, error) {
	name, err := v.cfg.NameOf(item)
	if err != nil {
		return nil, err
	}
	return v.cfg.resolve(name, item, v)
}

func (v *lazyView) Get(name string) (any, error) {
	item, ok := v.cfg.lookupItem(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchItem, name)
	}
	return v.cfg.resolve(name, item, v)
}

func (v *lazyView) Contains(item ItemDef) bool {
	return v.cfg.Contains(item)
}

// enter pushes name or fails if it is already being evaluated.
func (v *lazyView) enter(name string) (*lazyView, error) {
	for _, visiting := range v.visiting {
		if visiting == name {
			chain := append(append([]string(nil), v.visiting...), name)
			return nil, fmt.Errorf("%w: %s", ErrLazyCycle, strings.Join(chain, " -> "))
		}
	}
	return &lazyView{
		cfg:      v.cfg,
		visiting: append(append([]string(nil), v.visiting...), name),
	}, nil
}
