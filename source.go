// FILE: lixenwraith/config/source.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Source produces a raw tree. Sources are read once per load, synchronously.
type Source interface {
	// Name identifies the source in errors and logs.
	Name() string
	// Tree reads and parses the source.
	Tree() (*Node, error)
}

// EnvTransformFunc maps an environment variable name, with the prefix
// already removed, to a dotted path. Returning "" skips the variable.
type EnvTransformFunc func(name string) string

// treeSource serves a tree that already exists.
type treeSource struct {
	name string
	tree *Node
}

// TreeSource wraps an existing tree.
func TreeSource(name string, tree *Node) Source {
	return &treeSource{name: name, tree: tree}
}

func (s *treeSource) Name() string { return s.name }

func (s *treeSource) Tree() (*Node, error) {
	if s.tree == nil {
		return NewMapping(), nil
	}
	return s.tree, nil
}

// mapSource converts nested Go maps.
type mapSource struct {
	name   string
	values map[string]any
}

// MapSource reads nested maps such as map[string]any{"db": map[string]any{"port": 5432}}.
func MapSource(name string, values map[string]any) Source {
	return &mapSource{name: name, values: values}
}

func (s *mapSource) Name() string { return s.name }

func (s *mapSource) Tree() (*Node, error) {
	return FromValue(s.values), nil
}

// flatSource un-flattens dotted keys. Keys are taken in sorted order.
type flatSource struct {
	name          string
	values        map[string]any
	allowConflict bool
}

// FlatMapSource reads dotted keys such as {"db.port": 5432}. A key that is
// both a value and a parent of another key is an error.
func FlatMapSource(name string, values map[string]any) Source {
	return &flatSource{name: name, values: values}
}

func (s *flatSource) Name() string { return s.name }

func (s *flatSource) Tree() (*Node, error) {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Key: k, Value: s.values[k]})
	}
	return Unflatten(entries, s.allowConflict)
}

// envSource reads prefixed environment variables.
type envSource struct {
	name      string
	prefix    string
	transform EnvTransformFunc
	read      func() (map[string]string, error)
}

// EnvSource reads environment variables starting with prefix. With the
// default transform, APP_SERVER_PORT under prefix "APP" becomes server.port.
// Variables that do not map to a valid path are ignored. When both a value
// and one of its children are set (APP_DB and APP_DB_HOST) the child wins.
func EnvSource(prefix string, transform EnvTransformFunc) Source {
	return &envSource{
		name:      "env",
		prefix:    normalizeEnvPrefix(prefix),
		transform: transform,
		read: func() (map[string]string, error) {
			return osEnviron(), nil
		},
	}
}

// DotEnvSource reads a .env file and maps its variables as EnvSource does.
func DotEnvSource(path, prefix string) Source {
	return &envSource{
		name:   path,
		prefix: normalizeEnvPrefix(prefix),
		read: func() (map[string]string, error) {
			vars, err := godotenv.Read(path)
			if errors.Is(err, fs.ErrNotExist) {
				return nil, ErrConfigNotFound
			}
			return vars, err
		},
	}
}

func (s *envSource) Name() string { return s.name }

func (s *envSource) Tree() (*Node, error) {
	vars, err := s.read()
	if err != nil {
		return nil, &SourceError{Source: s.name, Err: err}
	}

	transform := s.transform
	if transform == nil {
		transform = defaultEnvTransform
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		if strings.HasPrefix(name, s.prefix) && len(name) > len(s.prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		path := transform(strings.TrimPrefix(name, s.prefix))
		if path == "" {
			continue
		}
		if _, err := splitPath(path); err != nil {
			continue
		}
		value := vars[name]
		if len(value) > MaxValueSize {
			return nil, &SourceError{Source: s.name, Err: fmt.Errorf("%w: %s", ErrValueSize, name)}
		}
		entries = append(entries, Entry{Key: path, Value: value})
	}
	return Unflatten(entries, true)
}

func normalizeEnvPrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// defaultEnvTransform lower-cases the name and turns underscores into dots.
func defaultEnvTransform(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", ".")
}

func osEnviron() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars
}

// argsSource parses long command-line options.
type argsSource struct {
	args []string
}

// ArgsSource reads --key=value, --key value and bare --flag (true) options.
// Arguments that do not start with "--" are ignored.
func ArgsSource(args []string) Source {
	return &argsSource{args: args}
}

func (s *argsSource) Name() string { return "cli" }

func (s *argsSource) Tree() (*Node, error) {
	entries, err := parseArgs(s.args)
	if err != nil {
		return nil, &SourceError{Source: s.Name(), Err: fmt.Errorf("%w: %w", ErrCLIParse, err)}
	}
	return Unflatten(entries, true)
}

// flagSource reads flags that were set on a parsed FlagSet.
type flagSource struct {
	set *flag.FlagSet
}

// FlagSource reads the flags explicitly set on a parsed set. Flag names are
// used as dotted paths; flags whose names are not valid paths are skipped.
func FlagSource(set *flag.FlagSet) Source {
	return &flagSource{set: set}
}

func (s *flagSource) Name() string { return "flags" }

func (s *flagSource) Tree() (*Node, error) {
	var entries []Entry
	s.set.Visit(func(f *flag.Flag) {
		if _, err := splitPath(f.Name); err != nil {
			return
		}
		var value any = f.Value.String()
		if getter, ok := f.Value.(flag.Getter); ok {
			value = getter.Get()
		}
		entries = append(entries, Entry{Key: f.Name, Value: value})
	})
	return Unflatten(entries, false)
}

// providerSource adapts a koanf provider.
type providerSource struct {
	name     string
	provider koanf.Provider
	parser   koanf.Parser
}

// ProviderSource loads any koanf provider, optionally through a parser for
// providers that only return bytes. Key order is sorted.
func ProviderSource(name string, provider koanf.Provider, parser koanf.Parser) Source {
	return &providerSource{name: name, provider: provider, parser: parser}
}

// StructSource reads the fields of a struct value, named by tag. Nested structs become mappings.
func StructSource(v any, tag string) Source {
	if tag == "" {
		tag = "toml"
	}
	return ProviderSource("struct", structs.Provider(v, tag), nil)
}

func (s *providerSource) Name() string { return s.name }

func (s *providerSource) Tree() (*Node, error) {
	k := koanf.New(".")
	if err := k.Load(s.provider, s.parser); err != nil {
		return nil, &SourceError{Source: s.name, Err: err}
	}
	return FromValue(k.Raw()), nil
}

// parseArgs processes command-line arguments into flat entries.
func parseArgs(args []string) ([]Entry, error) {
	var entries []Entry
	i := 0
	for i < len(args) {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			// Skip non-flag arguments
			i++
			continue
		}

		argContent := strings.TrimPrefix(arg, "--")
		if argContent == "" {
			// Skip "--" argument if used as a separator
			i++
			continue
		}

		var keyPath string
		var valueStr string

		// Check for "--key=value" format
		if k, v, ok := strings.Cut(argContent, "="); ok {
			keyPath = k
			valueStr = v
			i++
		} else {
			// Handle "--key value" or "--booleanflag"
			keyPath = argContent
			if i+1 >= len(args) || strings.HasPrefix(args[i+1], "--") {
				valueStr = "true"
				i++
			} else {
				valueStr = args[i+1]
				i += 2
			}
		}

		if keyPath == "" {
			// Skip invalid flags like --=value
			continue
		}

		if _, err := splitPath(keyPath); err != nil {
			return nil, fmt.Errorf("invalid command-line key %q: %w", keyPath, err)
		}
		if len(valueStr) > MaxValueSize {
			return nil, fmt.Errorf("%w: --%s", ErrValueSize, keyPath)
		}

		entries = append(entries, Entry{Key: keyPath, Value: parseValue(valueStr)})
	}

	return entries, nil
}

// parseValue recognizes booleans and strips surrounding double quotes.
// Everything else stays a string for coercion to convert.
func parseValue(s string) any {
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}

	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}

	return s
}
