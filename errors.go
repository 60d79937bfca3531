// FILE: lixenwraith/config/errors.go
package config

import (
	"errors"
	"fmt"
	"strings"
)

// MaxValueSize caps the length of a single value read from a flat source
// (environment variable, command-line argument or .env entry).
const MaxValueSize = 1 << 20

var (
	// ErrNameConflict is matched by every *NameConflictError.
	ErrNameConflict = errors.New("item name conflict")
	// ErrUnsetValue is matched by every *UnsetValueError.
	ErrUnsetValue = errors.New("value is unset")
	// ErrTypeMismatch is matched by every *TypeMismatchError.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrNoSuchItem is returned when a name or item is not registered in the layer chain.
	ErrNoSuchItem = errors.New("no such item")
	// ErrLayerFrozen is returned when items are added to a config that already has child layers.
	ErrLayerFrozen = errors.New("config has child layers, cannot add new items")
	// ErrInvalidPath is returned for malformed dot-separated paths.
	ErrInvalidPath = errors.New("invalid path")
	// ErrLazyCycle is returned when lazy values depend on each other in a cycle.
	ErrLazyCycle = errors.New("lazy evaluation cycle")
	// ErrUnknownPaths is matched by *UnknownPathsError during strict loading.
	ErrUnknownPaths = errors.New("unknown paths in source")
	// ErrConfigNotFound is wrapped by a *SourceError when a configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
	// ErrCLIParse is wrapped when command-line arguments are malformed.
	ErrCLIParse = errors.New("failed to parse command-line arguments")
	// ErrValueSize is wrapped when a flat source value exceeds MaxValueSize.
	ErrValueSize = errors.New("value exceeds maximum size")
)

// NameConflictError reports an effective item name that collides with an
// already registered name, either exactly or as a path prefix.
type NameConflictError struct {
	Name     string
	Existing string
}

func (e *NameConflictError) Error() string {
	if e.Existing == "" || e.Existing == e.Name {
		return fmt.Sprintf("item %s cannot be added: name already registered", e.Name)
	}
	return fmt.Sprintf("item %s cannot be added: conflicts with registered item %s", e.Name, e.Existing)
}

func (e *NameConflictError) Is(target error) bool { return target == ErrNameConflict }

// UnsetValueError reports a required item that has no value in any layer.
type UnsetValueError struct {
	Name string
}

func (e *UnsetValueError) Error() string {
	return fmt.Sprintf("item %s is unset", e.Name)
}

func (e *UnsetValueError) Is(target error) bool { return target == ErrUnsetValue }

// TypeMismatchError reports a node that cannot be coerced, or a value that
// cannot be stored, for the declared type of an item.
type TypeMismatchError struct {
	Path     string
	Expected string
	Actual   string
	Err      error
}

func (e *TypeMismatchError) Error() string {
	msg := fmt.Sprintf("type mismatch at %q: expected %s, got %s", e.Path, e.Expected, e.Actual)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

func (e *TypeMismatchError) Unwrap() error { return e.Err }

// SourceError is produced by a Source that failed to read or parse its input.
// Loading propagates it to the caller unchanged.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// UnknownPathsError lists leaf paths of a loaded tree that no registered item covers.
type UnknownPathsError struct {
	Paths []string
}

func (e *UnknownPathsError) Error() string {
	return fmt.Sprintf("unknown paths in source: %s", strings.Join(e.Paths, ", "))
}

func (e *UnknownPathsError) Is(target error) bool { return target == ErrUnknownPaths }
