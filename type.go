// File: lixenwraith/config/type.go
package config

import (
	"fmt"
	"reflect"
)

// Get resolves item through g and returns it with its declared type.
func Get[T any](g Getter, item *Item[T]) (T, error) {
	var zero T
	value, err := g.GetItem(item)
	if err != nil {
		return zero, err
	}
	return typed[T](item.Name(), value)
}

// MustGet is like Get but panics on error. Intended for lazy thunks and
// initialization code where a missing value is a programming error.
func MustGet[T any](g Getter, item *Item[T]) T {
	value, err := Get(g, item)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return value
}

// GetAs resolves the item registered under name and asserts its type.
// It fails with a *TypeMismatchError when the item is not declared as T.
func GetAs[T any](g Getter, name string) (T, error) {
	var zero T
	value, err := g.Get(name)
	if err != nil {
		return zero, err
	}
	return typed[T](name, value)
}

// Set stores value for item in the local layer of c.
func Set[T any](c *Config, item *Item[T], value T) error {
	return c.SetItem(item, value)
}

// LazySet makes item computed by thunk in the local layer of c.
func LazySet[T any](c *Config, item *Item[T], thunk func(Getter) (T, error)) error {
	if thunk == nil {
		return fmt.Errorf("lazy set of %s: thunk cannot be nil", item.Name())
	}
	return c.LazySetItem(item, func(g Getter) (any, error) {
		return thunk(g)
	})
}

func typed[T any](name string, value any) (T, error) {
	var zero T
	if value == nil {
		return zero, nil
	}
	v, ok := value.(T)
	if !ok {
		return zero, &TypeMismatchError{
			Path:     name,
			Expected: reflect.TypeOf((*T)(nil)).Elem().String(),
			Actual:   fmt.Sprintf("%T", value),
		}
	}
	return v, nil
}
