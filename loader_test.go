// FILE: lixenwraith/config/loader_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFile creates name under dir with content and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestFileFormats tests parsing each format with document key order preserved
func TestFileFormats(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "TOML",
			file: "order.toml",
			content: `
[zeta]
port = 1

[alpha]
b = "x"
a = "y"
`,
		},
		{
			name: "YAML",
			file: "order.yaml",
			content: `
zeta:
  port: 1
alpha:
  b: x
  a: "y"
`,
		},
		{
			name:    "JSON",
			file:    "order.json",
			content: `{"zeta": {"port": 1}, "alpha": {"b": "x", "a": "y"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			tree, err := FileSource(path, FormatAuto, nil).Tree()
			require.NoError(t, err)

			assert.Equal(t, []string{"zeta", "alpha"}, tree.Keys())
			alpha, _ := tree.Child("alpha")
			assert.Equal(t, []string{"b", "a"}, alpha.Keys())
			assert.Equal(t, []string{"zeta.port", "alpha.b", "alpha.a"}, tree.Paths())
		})
	}
}

// TestFormatDetails tests format specific behaviour
func TestFormatDetails(t *testing.T) {
	t.Run("TOMLInlineAndArrays", func(t *testing.T) {
		doc := `
name = "svc"
ports = [80, 443]
limits = { cpu = 2, mem = "1G" }

[[upstream]]
host = "a"

[[upstream]]
host = "b"
`
		tree, err := BytesSource("doc", FormatTOML, []byte(doc)).Tree()
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "ports", "limits", "upstream"}, tree.Keys())

		ports, _ := tree.Child("ports")
		assert.Equal(t, []any{int64(80), int64(443)}, ports.Interface())

		upstream, _ := tree.Child("upstream")
		require.Equal(t, KindSequence, upstream.Kind())
		assert.Equal(t, []any{
			map[string]any{"host": "a"},
			map[string]any{"host": "b"},
		}, upstream.Interface())
	})

	t.Run("YAMLMergeKeys", func(t *testing.T) {
		doc := `
base: &base
  host: h
  port: 1
prod:
  <<: *base
  port: 2
`
		tree, err := BytesSource("doc", FormatYAML, []byte(doc)).Tree()
		require.NoError(t, err)
		prod, _ := tree.Child("prod")
		assert.Equal(t, map[string]any{"host": "h", "port": 2}, prod.Interface())
		assert.Equal(t, []string{"host", "port"}, prod.Keys())
	})

	t.Run("YAMLMergeKeyList", func(t *testing.T) {
		doc := `
a: &a
  x: 1
  shared: a
b: &b
  y: 2
  shared: b
c:
  <<: [*a, *b]
  z: 3
`
		tree, err := BytesSource("doc", FormatYAML, []byte(doc)).Tree()
		require.NoError(t, err)
		c, _ := tree.Child("c")
		assert.Equal(t, map[string]any{"x": 1, "y": 2, "shared": "a", "z": 3}, c.Interface(), "earlier merge entries win")
	})

	t.Run("YAMLMergeKeyRejectsScalars", func(t *testing.T) {
		_, err := BytesSource("doc", FormatYAML, []byte("c:\n  <<: [1, 2]\n  z: 3\n")).Tree()
		assert.Error(t, err)
	})

	t.Run("YAMLTopLevelMustBeMapping", func(t *testing.T) {
		_, err := BytesSource("doc", FormatYAML, []byte("- a\n- b\n")).Tree()
		assert.Error(t, err)

		empty, err := BytesSource("doc", FormatYAML, []byte("")).Tree()
		require.NoError(t, err)
		assert.Equal(t, 0, empty.Len())
	})

	t.Run("JSONNumbers", func(t *testing.T) {
		tree, err := BytesSource("doc", FormatJSON, []byte(`{"i": 9007199254740993, "f": 1.5, "n": null}`)).Tree()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"i": int64(9007199254740993), "f": 1.5, "n": nil}, tree.Interface())
	})

	t.Run("JSONRejectsNonObjects", func(t *testing.T) {
		_, err := BytesSource("doc", FormatJSON, []byte(`[1, 2]`)).Tree()
		assert.Error(t, err)
		_, err = BytesSource("doc", FormatJSON, []byte(`{"a": 1} {"b": 2}`)).Tree()
		assert.Error(t, err)
	})

	t.Run("ContentDetection", func(t *testing.T) {
		assert.Equal(t, FormatJSON, detectFormatFromContent([]byte(`{"a": 1}`)))
		assert.Equal(t, FormatTOML, detectFormatFromContent([]byte("a = 1\n[b]\nc = 2\n")))
		assert.Equal(t, FormatYAML, detectFormatFromContent([]byte("a: 1\nb:\n  c: 2\n")))

		dir := t.TempDir()
		path := writeFile(t, dir, "app.conf", "port = 8080\n")
		tree, err := FileSource(path, "", nil).Tree()
		require.NoError(t, err)
		port, _ := tree.Child("port")
		assert.Equal(t, int64(8080), port.Value())
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		_, err := BytesSource("doc", "ini", []byte("a=1")).Tree()
		var srcErr *SourceError
		require.ErrorAs(t, err, &srcErr)
		assert.Contains(t, err.Error(), "unsupported config format")
	})
}

// TestFileSecurity tests the file read restrictions
func TestFileSecurity(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "big.toml", "value = \""+strings.Repeat("x", 100)+"\"\n")

	t.Run("MaxFileSize", func(t *testing.T) {
		_, err := FileSource(path, "", &SecurityOptions{MaxFileSize: 10}).Tree()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds maximum size")

		_, err = FileSource(path, "", &SecurityOptions{MaxFileSize: 1024}).Tree()
		assert.NoError(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := FileSource("../outside.toml", "", &SecurityOptions{PreventPathTraversal: true}).Tree()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "path traversal")
	})

	t.Run("Ownership", func(t *testing.T) {
		_, err := FileSource(path, "", &SecurityOptions{EnforceFileOwnership: true}).Tree()
		assert.NoError(t, err, "files created by the test process are owned by it")
	})

	t.Run("LoaderUsesConfigOptions", func(t *testing.T) {
		cfg := NewWithOptions(Options{Security: &SecurityOptions{MaxFileSize: 10}})
		_, err := cfg.Loader().WithFile(path).Load()
		assert.Error(t, err)
	})
}

// TestMissingFiles tests required and optional file sources
func TestMissingFiles(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.toml")

	t.Run("RequiredFileFails", func(t *testing.T) {
		cfg := New()
		_, err := cfg.Loader().WithFile(missing).Load()
		var srcErr *SourceError
		require.ErrorAs(t, err, &srcErr)
		assert.Equal(t, missing, srcErr.Source)
		assert.ErrorIs(t, err, ErrConfigNotFound)
	})

	t.Run("OptionalFileSkipped", func(t *testing.T) {
		port := Optional("port", 8080)
		cfg := New()
		require.NoError(t, cfg.AddItem(port, ""))
		child, err := cfg.Loader().WithOptionalFile(missing).Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, MustGet(child, port))
	})
}

// TestLoad tests merging sources into a new child layer
func TestLoad(t *testing.T) {
	newRoot := func(t *testing.T) (*Config, *Item[string], *Item[int]) {
		host := Optional("host", "localhost")
		port := Optional("port", 8080)
		root := New()
		require.NoError(t, root.AddSpec(newSpec(t, "server", host, port)))
		return root, host, port
	}

	t.Run("LaterSourcesWin", func(t *testing.T) {
		root, host, port := newRoot(t)
		child, err := root.Loader().
			WithMap(map[string]any{"server": map[string]any{"host": "a", "port": 1}}).
			WithFlatMap(map[string]any{"server.port": 2}).
			WithArgs([]string{"--server.port=3"}).
			Load()
		require.NoError(t, err)
		assert.Equal(t, "a", MustGet(child, host))
		assert.Equal(t, 3, MustGet(child, port))
		assert.Equal(t, "map+flat-map+cli", child.Name())
		assert.Same(t, root, child.Parent())
	})

	t.Run("ChainedEqualsPremerged", func(t *testing.T) {
		root, _, _ := newRoot(t)
		a := MapSource("a", map[string]any{"server": map[string]any{"host": "a", "port": 1}})
		b := FlatMapSource("b", map[string]any{"server.port": 2})

		chained, err := root.LoadFrom(a)
		require.NoError(t, err)
		chained, err = chained.LoadFrom(b)
		require.NoError(t, err)

		premerged, err := root.LoadFrom(a, b)
		require.NoError(t, err)

		chainedValues, err := chained.ToMap()
		require.NoError(t, err)
		premergedValues, err := premerged.ToMap()
		require.NoError(t, err)
		assert.Equal(t, premergedValues, chainedValues)
		assert.True(t, chained.Merged().Equal(premerged.Tree()))
	})

	t.Run("NamedLayer", func(t *testing.T) {
		root, _, _ := newRoot(t)
		child, err := root.Loader().WithName("defaults").WithMap(nil).Load()
		require.NoError(t, err)
		assert.Equal(t, "defaults", child.Name())
	})

	t.Run("FailedLoadCreatesNothing", func(t *testing.T) {
		root, _, _ := newRoot(t)
		_, err := root.Loader().
			WithMap(map[string]any{"server": map[string]any{"port": 1}}).
			WithBytes("broken", FormatTOML, []byte("not [valid")).
			Load()
		require.Error(t, err)
		var srcErr *SourceError
		require.ErrorAs(t, err, &srcErr)
		assert.Equal(t, "broken", srcErr.Source)

		assert.NoError(t, root.AddItem(Optional("debug", false), ""), "root is not frozen by a failed load")
	})

	t.Run("NonMappingTree", func(t *testing.T) {
		root, _, _ := newRoot(t)
		_, err := root.LoadFrom(TreeSource("scalar", Scalar(1)))
		var srcErr *SourceError
		require.ErrorAs(t, err, &srcErr)
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("PlainErrorsWrapped", func(t *testing.T) {
		root, _, _ := newRoot(t)
		_, err := root.LoadFrom(ProviderSource("koanf", &staticProvider{err: os.ErrPermission}, nil))
		var srcErr *SourceError
		require.ErrorAs(t, err, &srcErr)
		assert.ErrorIs(t, err, os.ErrPermission)
	})

	t.Run("StructValues", func(t *testing.T) {
		root, host, port := newRoot(t)
		type server struct {
			Host string `toml:"host"`
			Port int    `toml:"port"`
		}
		child, err := root.Loader().WithStruct(struct {
			Server server `toml:"server"`
		}{Server: server{Host: "s", Port: 99}}).Load()
		require.NoError(t, err)
		assert.Equal(t, "s", MustGet(child, host))
		assert.Equal(t, 99, MustGet(child, port))
	})
}

// TestStrictLoad tests rejection of paths no item covers
func TestStrictLoad(t *testing.T) {
	type smtp struct {
		Host string `toml:"host"`
	}
	mail := Optional("smtp", smtp{})

	newRoot := func(t *testing.T, opts Options) *Config {
		root := NewWithOptions(opts)
		require.NoError(t, root.AddSpec(newSpec(t, "server", Optional("port", 8080))))
		require.NoError(t, root.AddItem(mail, ""))
		return root
	}

	source := MapSource("m", map[string]any{
		"server": map[string]any{"port": 1, "extra": true},
		"smtp":   map[string]any{"host": "mail"},
		"stray":  "x",
	})

	t.Run("UnknownPathsReported", func(t *testing.T) {
		root := newRoot(t, DefaultOptions())
		_, err := root.Loader().WithSource(source).WithStrict(true).Load()
		var unknown *UnknownPathsError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, []string{"server.extra", "stray"}, unknown.Paths)
		assert.ErrorIs(t, err, ErrUnknownPaths)
		assert.NoError(t, root.AddItem(Optional("stray", ""), ""), "root is not frozen by a failed load")
	})

	t.Run("LenientByDefault", func(t *testing.T) {
		root := newRoot(t, DefaultOptions())
		child, err := root.LoadFrom(source)
		require.NoError(t, err)
		assert.Equal(t, smtp{Host: "mail"}, MustGet(child, mail))
	})

	t.Run("StrictFromOptions", func(t *testing.T) {
		root := newRoot(t, Options{FailOnUnknownPath: true})
		_, err := root.LoadFrom(source)
		assert.ErrorIs(t, err, ErrUnknownPaths)

		_, err = root.Loader().WithSource(source).WithStrict(false).Load()
		assert.NoError(t, err)
	})
}

// TestFileDiscovery tests locating a config file from flags, env and search paths
func TestFileDiscovery(t *testing.T) {
	dir := t.TempDir()
	found := writeFile(t, dir, "app.toml", "[server]\nport = 9090\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "app.yaml"), 0755))

	opts := FileDiscoveryOptions{
		Name:       "app",
		Extensions: []string{".yaml", ".toml"},
		Paths:      []string{dir},
		EnvVar:     "CFGTEST_APP_CONFIG",
		CLIFlag:    "--config",
	}

	t.Run("SearchPathsSkipDirectories", func(t *testing.T) {
		path, ok := DiscoverFile(opts, nil)
		require.True(t, ok)
		assert.Equal(t, found, path)
	})

	t.Run("FlagWins", func(t *testing.T) {
		t.Setenv("CFGTEST_APP_CONFIG", "/from/env.toml")
		path, ok := DiscoverFile(opts, []string{"--config", "/from/flag.toml"})
		require.True(t, ok)
		assert.Equal(t, "/from/flag.toml", path)

		path, ok = DiscoverFile(opts, []string{"--config=/from/eq.toml"})
		require.True(t, ok)
		assert.Equal(t, "/from/eq.toml", path)
	})

	t.Run("EnvBeforeSearch", func(t *testing.T) {
		t.Setenv("CFGTEST_APP_CONFIG", "/from/env.toml")
		path, ok := DiscoverFile(opts, nil)
		require.True(t, ok)
		assert.Equal(t, "/from/env.toml", path)
	})

	t.Run("NothingFound", func(t *testing.T) {
		_, ok := DiscoverFile(FileDiscoveryOptions{Name: "none", Extensions: []string{".toml"}, Paths: []string{dir}}, nil)
		assert.False(t, ok)
	})

	t.Run("Loader", func(t *testing.T) {
		port := Optional("port", 8080)
		root := New()
		require.NoError(t, root.AddSpec(newSpec(t, "server", port)))
		child, err := root.Loader().WithFileDiscovery(opts, nil).Load()
		require.NoError(t, err)
		assert.Equal(t, 9090, MustGet(child, port))
		assert.Equal(t, found, child.Name())
	})

	t.Run("SearchPathOrder", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/xdg/home")
		t.Setenv("XDG_CONFIG_DIRS", "/xdg/a:/xdg/b")
		paths := SearchPaths(FileDiscoveryOptions{Name: "app", Paths: []string{dir}, UseXDG: true})
		assert.Equal(t, []string{dir, "/xdg/home/app", "/xdg/a/app", "/xdg/b/app"}, paths)

		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("XDG_CONFIG_DIRS", "")
		t.Setenv("HOME", "/home/u")
		paths = SearchPaths(FileDiscoveryOptions{Name: "app", UseXDG: true})
		assert.Equal(t, []string{"/home/u/.config/app", "/etc/xdg/app", "/etc/app"}, paths)
	})

	t.Run("DefaultOptions", func(t *testing.T) {
		defaults := DefaultDiscoveryOptions("myapp")
		assert.Equal(t, "MYAPP_CONFIG", defaults.EnvVar)
		assert.Equal(t, "--config", defaults.CLIFlag)
		assert.Contains(t, defaults.Extensions, ".toml")
	})
}

// TestFlatAndNestedSources tests that dotted and nested forms load the same values
func TestFlatAndNestedSources(t *testing.T) {
	size := Optional("size", 0)
	hosts := Optional("hosts", []string(nil))
	root := New()
	require.NoError(t, root.AddSpec(newSpec(t, "network.buffer", size, hosts)))

	flat, err := root.LoadFrom(FlatMapSource("flat", map[string]any{
		"network.buffer.size":  1024,
		"network.buffer.hosts": []any{"a", "b"},
	}))
	require.NoError(t, err)
	nested, err := root.LoadFrom(MapSource("nested", map[string]any{
		"network": map[string]any{"buffer": map[string]any{"size": 1024, "hosts": []any{"a", "b"}}},
	}))
	require.NoError(t, err)

	assert.Equal(t, 1024, MustGet(flat, size))
	assert.Equal(t, MustGet(nested, size), MustGet(flat, size))
	assert.Equal(t, []string{"a", "b"}, MustGet(flat, hosts))
	assert.Equal(t, MustGet(nested, hosts), MustGet(flat, hosts))
	assert.True(t, flat.Tree().Equal(nested.Tree()))
}

// TestCaseInsensitiveKeys tests folding source keys onto registered item paths
func TestCaseInsensitiveKeys(t *testing.T) {
	host := Optional("host", "localhost")
	conns := Optional("maxConns", 10)
	spec := newSpec(t, "server", host, conns)
	doc := []byte("[Server]\nHOST = \"a\"\nmaxconns = 5\n[Other]\nKey = 1\n")

	newRoot := func(t *testing.T, opts Options) *Config {
		root := NewWithOptions(opts)
		require.NoError(t, root.AddSpec(spec))
		return root
	}

	t.Run("DisabledByDefault", func(t *testing.T) {
		child, err := newRoot(t, DefaultOptions()).LoadFrom(BytesSource("doc", FormatTOML, doc))
		require.NoError(t, err)
		assert.Equal(t, "localhost", MustGet(child, host))
		assert.Equal(t, 10, MustGet(child, conns))
	})

	t.Run("LoaderOption", func(t *testing.T) {
		child, err := newRoot(t, DefaultOptions()).Loader().
			WithBytes("doc", FormatTOML, doc).
			WithCaseInsensitiveKeys(true).
			Load()
		require.NoError(t, err)
		assert.Equal(t, "a", MustGet(child, host))
		assert.Equal(t, 5, MustGet(child, conns))
		assert.Equal(t, []string{"server", "Other"}, child.Tree().Keys(), "unregistered keys keep their spelling")
	})

	t.Run("RootOption", func(t *testing.T) {
		root := newRoot(t, Options{LoadKeysCaseInsensitively: true})
		child, err := root.LoadFrom(
			FlatMapSource("upper", map[string]any{"SERVER.HOST": "b", "Server.MaxConns": 1}),
			FlatMapSource("lower", map[string]any{"server.maxconns": 2}),
		)
		require.NoError(t, err)
		assert.Equal(t, "b", MustGet(child, host))
		assert.Equal(t, 2, MustGet(child, conns))
		assert.Equal(t, []string{"server.host", "server.maxConns"}, child.Tree().Paths())
	})

	t.Run("StrictAfterFolding", func(t *testing.T) {
		_, err := newRoot(t, DefaultOptions()).Loader().
			WithBytes("doc", FormatTOML, []byte("[SERVER]\nHost = \"a\"\n")).
			WithCaseInsensitiveKeys(true).
			WithStrict(true).
			Load()
		assert.NoError(t, err)
	})
}
