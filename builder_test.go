// FILE: lixenwraith/config/builder_test.go
package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serverItems returns a fresh server spec and its items.
func serverItems(t *testing.T) (*Spec, *Item[string], *Item[int], *Item[time.Duration]) {
	t.Helper()
	host := Optional("host", "localhost")
	port := Optional("port", 8080)
	timeout := Optional("timeout", 30*time.Second)
	return newSpec(t, "server", host, port, timeout), host, port, timeout
}

// TestBuilder tests the builder pattern and source precedence
func TestBuilder(t *testing.T) {
	t.Run("DefaultsOnly", func(t *testing.T) {
		spec, host, port, _ := serverItems(t)
		cfg, err := NewBuilder().WithSpec(spec).WithArgs(nil).Build()
		require.NoError(t, err)
		assert.Equal(t, "localhost", MustGet(cfg, host))
		assert.Equal(t, 8080, MustGet(cfg, port))
		assert.Equal(t, "builder", cfg.Name())
	})

	t.Run("Precedence", func(t *testing.T) {
		spec, host, port, timeout := serverItems(t)
		dir := t.TempDir()
		file := writeFile(t, dir, "app.toml", `
[server]
host = "file-host"
port = 1
timeout = "5s"
`)
		t.Setenv("CFGTEST_SERVER_PORT", "2")
		t.Setenv("CFGTEST_SERVER_TIMEOUT", "10s")

		cfg, err := NewBuilder().
			WithSpec(spec).
			WithFile(file).
			WithEnvPrefix("CFGTEST").
			WithArgs([]string{"--server.timeout=1m"}).
			Build()
		require.NoError(t, err)

		assert.Equal(t, "file-host", MustGet(cfg, host), "file over default")
		assert.Equal(t, 2, MustGet(cfg, port), "env over file")
		assert.Equal(t, time.Minute, MustGet(cfg, timeout), "cli over env")
	})

	t.Run("EnvIgnoredWithoutPrefix", func(t *testing.T) {
		host := Optional("home", "/nowhere")
		spec := newSpec(t, "", host)
		t.Setenv("HOME", "/somewhere")
		cfg, err := NewBuilder().WithSpec(spec).WithArgs(nil).Build()
		require.NoError(t, err)
		assert.Equal(t, "/nowhere", MustGet(cfg, host))
	})

	t.Run("MissingFileSkipped", func(t *testing.T) {
		spec, _, port, _ := serverItems(t)
		cfg, err := NewBuilder().
			WithSpec(spec).
			WithFile(filepath.Join(t.TempDir(), "missing.toml")).
			WithArgs(nil).
			Build()
		require.NoError(t, err)
		assert.Equal(t, 8080, MustGet(cfg, port))
	})

	t.Run("FileDiscovery", func(t *testing.T) {
		spec, _, port, _ := serverItems(t)
		dir := t.TempDir()
		writeFile(t, dir, "svc.yaml", "server:\n  port: 7070\n")
		cfg, err := NewBuilder().
			WithSpec(spec).
			WithFileDiscovery(FileDiscoveryOptions{Name: "svc", Extensions: []string{".yaml"}, Paths: []string{dir}}).
			WithArgs(nil).
			Build()
		require.NoError(t, err)
		assert.Equal(t, 7070, MustGet(cfg, port))
	})

	t.Run("ExtraSourcesLast", func(t *testing.T) {
		spec, _, port, _ := serverItems(t)
		cfg, err := NewBuilder().
			WithSpec(spec).
			WithArgs([]string{"--server.port=1"}).
			WithSource(FlatMapSource("override", map[string]any{"server.port": 2})).
			Build()
		require.NoError(t, err)
		assert.Equal(t, 2, MustGet(cfg, port))
	})

	t.Run("RequiredItemsChecked", func(t *testing.T) {
		token := Required[string]("token")
		secret := Required[string]("secret")
		spec := newSpec(t, "auth", token, secret)
		_, err := NewBuilder().WithSpec(spec).WithArgs([]string{"--auth.token=abc"}).Build()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsetValue)
		assert.Contains(t, err.Error(), "auth.secret")
		assert.NotContains(t, err.Error(), "auth.token")
	})

	t.Run("Validators", func(t *testing.T) {
		spec, _, port, _ := serverItems(t)
		errPrivileged := errors.New("privileged port")
		var order []string

		_, err := NewBuilder().
			WithSpec(spec).
			WithArgs([]string{"--server.port=80"}).
			WithValidator(func(c *Config) error {
				order = append(order, "first")
				return nil
			}).
			WithValidator(nil).
			WithValidator(func(c *Config) error {
				order = append(order, "second")
				if MustGet(c, port) < 1024 {
					return errPrivileged
				}
				return nil
			}).
			Build()
		assert.ErrorIs(t, err, errPrivileged)
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("SpecConflict", func(t *testing.T) {
		a := newSpec(t, "db", Optional("port", 1))
		b := newSpec(t, "db", Optional("port", 2))
		_, err := NewBuilder().WithSpec(a, b).WithArgs(nil).Build()
		assert.ErrorIs(t, err, ErrNameConflict)
	})

	t.Run("Strict", func(t *testing.T) {
		spec, _, _, _ := serverItems(t)
		_, err := NewBuilder().WithSpec(spec).WithStrict(true).WithArgs([]string{"--server.typo=1"}).Build()
		assert.ErrorIs(t, err, ErrUnknownPaths)
	})

	t.Run("OptionsReachRoot", func(t *testing.T) {
		type endpoint struct {
			Address string `json:"addr"`
		}
		ep := Optional("endpoint", endpoint{})
		cfg, err := NewBuilder().
			WithSpec(newSpec(t, "", ep)).
			WithTagName("json").
			WithLogger(discardLogger()).
			WithSecurityOptions(SecurityOptions{MaxFileSize: 1 << 20}).
			WithArgs([]string{"--endpoint.addr=:80"}).
			Build()
		require.NoError(t, err)
		assert.Equal(t, endpoint{Address: ":80"}, MustGet(cfg, ep))
		require.NotNil(t, cfg.Parent())
		assert.Equal(t, int64(1<<20), cfg.Parent().opts.Security.MaxFileSize)
	})
}

// TestBuildAndScan tests building and decoding into a struct in one step
func TestBuildAndScan(t *testing.T) {
	spec, _, _, _ := serverItems(t)
	var server struct {
		Host    string        `toml:"host"`
		Port    int           `toml:"port"`
		Timeout time.Duration `toml:"timeout"`
	}

	cfg, err := NewBuilder().WithSpec(spec).WithArgs([]string{"--server.port=9000"}).BuildAndScan("server", &server)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "localhost", server.Host)
	assert.Equal(t, 9000, server.Port)
	assert.Equal(t, 30*time.Second, server.Timeout)
}

// TestMustBuild tests panicking on build failures
func TestMustBuild(t *testing.T) {
	spec := newSpec(t, "", Required[int]("count"))
	assert.Panics(t, func() {
		NewBuilder().WithSpec(spec).WithArgs(nil).MustBuild()
	})
}
