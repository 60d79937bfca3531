// FILE: lixenwraith/config/loader.go
package config

import (
	"errors"
	"flag"
	"strings"

	"github.com/knadh/koanf/v2"
)

// Loader collects sources and layers their merged tree onto a config.
// Sources are merged in the order they were added; later sources win.
type Loader struct {
	cfg     *Config
	name    string
	sources []Source
	strict  bool
	folding bool
}

// Loader starts a loading chain on c. c itself is never modified apart
// from being frozen against new items once the child layer exists.
func (c *Config) Loader() *Loader {
	return &Loader{
		cfg:     c,
		strict:  c.opts.FailOnUnknownPath,
		folding: c.opts.LoadKeysCaseInsensitively,
	}
}

// LoadFrom merges sources in order and returns the new child layer.
func (c *Config) LoadFrom(sources ...Source) (*Config, error) {
	return c.Loader().WithSource(sources...).Load()
}

// WithName names the resulting layer. By default the source names are joined with "+".
func (l *Loader) WithName(name string) *Loader {
	l.name = name
	return l
}

// WithSource appends arbitrary sources.
func (l *Loader) WithSource(sources ...Source) *Loader {
	for _, src := range sources {
		if src != nil {
			l.sources = append(l.sources, src)
		}
	}
	return l
}

// WithMap appends nested map values.
func (l *Loader) WithMap(values map[string]any) *Loader {
	return l.WithSource(MapSource("map", values))
}

// WithFlatMap appends dotted-key map values.
func (l *Loader) WithFlatMap(values map[string]any) *Loader {
	return l.WithSource(FlatMapSource("flat-map", values))
}

// WithEnv appends environment variables under prefix.
func (l *Loader) WithEnv(prefix string) *Loader {
	return l.WithSource(EnvSource(prefix, nil))
}

// WithEnvTransform appends environment variables under prefix, mapped to paths by fn.
func (l *Loader) WithEnvTransform(prefix string, fn EnvTransformFunc) *Loader {
	return l.WithSource(EnvSource(prefix, fn))
}

// WithArgs appends command-line arguments.
func (l *Loader) WithArgs(args []string) *Loader {
	return l.WithSource(ArgsSource(args))
}

// WithFlags appends the flags set on a parsed FlagSet.
func (l *Loader) WithFlags(set *flag.FlagSet) *Loader {
	return l.WithSource(FlagSource(set))
}

// WithFile appends a configuration file with auto-detected format.
// A missing file fails the load.
func (l *Loader) WithFile(path string) *Loader {
	return l.WithFileFormat(path, FormatAuto)
}

// WithFileFormat appends a configuration file in an explicit format.
func (l *Loader) WithFileFormat(path, format string) *Loader {
	return l.WithSource(&fileSource{path: path, format: format, security: l.cfg.opts.Security, log: l.cfg.log})
}

// WithOptionalFile appends a configuration file that may be missing.
func (l *Loader) WithOptionalFile(path string) *Loader {
	return l.WithSource(&fileSource{path: path, format: FormatAuto, optional: true, security: l.cfg.opts.Security, log: l.cfg.log})
}

// WithBytes appends an in-memory document.
func (l *Loader) WithBytes(name, format string, data []byte) *Loader {
	return l.WithSource(BytesSource(name, format, data))
}

// WithDotEnv appends a .env file, mapped as environment variables under prefix.
func (l *Loader) WithDotEnv(path, prefix string) *Loader {
	return l.WithSource(DotEnvSource(path, prefix))
}

// WithStruct appends the fields of a struct value, named by the config tag.
func (l *Loader) WithStruct(v any) *Loader {
	return l.WithSource(StructSource(v, l.cfg.opts.TagName))
}

// WithProvider appends a koanf provider.
func (l *Loader) WithProvider(name string, provider koanf.Provider, parser koanf.Parser) *Loader {
	return l.WithSource(ProviderSource(name, provider, parser))
}

// WithFileDiscovery appends the first configuration file found by opts, if
// any. args is searched for the discovery flag.
func (l *Loader) WithFileDiscovery(opts FileDiscoveryOptions, args []string) *Loader {
	if path, ok := DiscoverFile(opts, args); ok {
		l.cfg.log.Debug("config file discovered", "path", path)
		return l.WithFile(path)
	}
	return l
}

// WithStrict makes the load fail when the merged tree holds paths no registered item covers.
func (l *Loader) WithStrict(strict bool) *Loader {
	l.strict = strict
	return l
}

// WithCaseInsensitiveKeys makes source keys match registered item paths ignoring case.
func (l *Loader) WithCaseInsensitiveKeys(enabled bool) *Loader {
	l.folding = enabled
	return l
}

// Load reads every source, merges the trees and returns a new child layer
// of the loader's config. On any failure no layer is created.
func (l *Loader) Load() (*Config, error) {
	trees := make([]*Node, 0, len(l.sources))
	names := make([]string, 0, len(l.sources))

	for _, src := range l.sources {
		tree, err := src.Tree()
		if err != nil {
			var srcErr *SourceError
			if !errors.As(err, &srcErr) {
				err = &SourceError{Source: src.Name(), Err: err}
			}
			l.cfg.log.Debug("source failed", "source", src.Name(), "error", err)
			return nil, err
		}
		if tree == nil {
			tree = NewMapping()
		}
		if tree.Kind() != KindMapping {
			return nil, &SourceError{
				Source: src.Name(),
				Err:    &TypeMismatchError{Path: "", Expected: KindMapping.String(), Actual: tree.Describe()},
			}
		}
		if l.folding {
			tree = canonicalKeys(tree, l.cfg.Names())
		}
		l.cfg.log.Debug("source loaded", "source", src.Name(), "paths", len(tree.Paths()))
		trees = append(trees, tree)
		names = append(names, src.Name())
	}

	merged := MergeAll(trees...)
	if merged == nil {
		merged = NewMapping()
	}

	if l.strict {
		if err := l.cfg.checkUnknownPaths(merged); err != nil {
			return nil, err
		}
	}

	name := l.name
	if name == "" {
		name = strings.Join(names, "+")
	}
	child := l.cfg.withTree(name, merged)
	l.cfg.log.Debug("layer created", "layer", name, "parent", l.cfg.name, "sources", len(trees))
	return child, nil
}

// canonicalKeys renames mapping keys whose path matches a registered item
// path, or a parent of one, ignoring case. Exact matches and unrelated keys
// are kept as they are. Keys that fold onto the same name are merged in
// document order.
func canonicalKeys(tree *Node, names []string) *Node {
	exact := make(map[string]bool)
	folded := make(map[string]string)
	for _, name := range names {
		segments := strings.Split(name, ".")
		for i := range segments {
			path := strings.Join(segments[:i+1], ".")
			exact[path] = true
			if _, ok := folded[strings.ToLower(path)]; !ok {
				folded[strings.ToLower(path)] = path
			}
		}
	}
	return renameKeys(tree, "", exact, folded)
}

func renameKeys(n *Node, prefix string, exact map[string]bool, folded map[string]string) *Node {
	if n.kind != KindMapping {
		return n
	}
	out := NewMapping()
	for _, key := range n.keys {
		child := n.children[key]
		name, path := key, joinPath(prefix, key)
		if registered, ok := folded[strings.ToLower(path)]; ok && !exact[path] {
			path = registered
			name = path[strings.LastIndex(path, ".")+1:]
		}
		child = renameKeys(child, path, exact, folded)
		if existing, ok := out.children[name]; ok {
			child = Merge(existing, child)
		}
		out.put(name, child)
	}
	return out
}

// checkUnknownPaths reports leaf paths of tree not covered by a registered item name.
func (c *Config) checkUnknownPaths(tree *Node) error {
	names := c.Names()
	var unknown []string
	for _, path := range tree.Paths() {
		covered := false
		for _, name := range names {
			if isPathPrefix(name, path) || isPathPrefix(path, name) {
				covered = true
				break
			}
		}
		if !covered {
			unknown = append(unknown, path)
		}
	}
	if len(unknown) > 0 {
		return &UnknownPathsError{Paths: unknown}
	}
	return nil
}
