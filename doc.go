// File: lixenwraith/config/doc.go

// Package config binds typed configuration items to layered, heterogeneous
// sources: TOML, YAML and JSON files, .env files, environment variables,
// command-line arguments, flag sets, Go maps, structs and koanf providers.
//
// Features:
//   - Typed items (Required, Optional, Lazy) grouped into prefixed specs
//   - Name conflict detection at registration time, including ancestor layers
//   - Raw trees (scalar, sequence, mapping) as the single intermediate form
//   - Ordered recursive merge: mappings merge, everything else is replaced
//   - Non-destructive loading: every load returns a new child layer
//   - Lazy values recomputed on every read against the layer being read
//   - Strict coercion into Go types, structs and slices via mapstructure
//   - Fallback composition (WithFallback) and relocated views (At, WithPrefix)
//   - Thread-safe reads and writes on each layer using sync.RWMutex
//
// Quick Start:
//
//	var (
//	    server = config.NewSpec("server")
//	    host   = config.Optional("host", "localhost")
//	    port   = config.Optional("port", 8080)
//	)
//
//	server.AddItems(host, port)
//
//	cfg, err := config.Quick("MYAPP", "config.toml", server)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	p, err := config.Get(cfg, port)
//
// Default Precedence (highest to lowest):
//  1. Command-line arguments (--server.port=9090)
//  2. Environment variables (MYAPP_SERVER_PORT=9090)
//  3. Configuration file (config.toml)
//  4. Item defaults
//
// Layering:
//
//	root := config.New()
//	root.AddSpec(server)
//
//	file, err := root.Loader().WithFile("base.toml").WithFile("local.yaml").Load()
//	prod, err := file.LoadFrom(config.EnvSource("MYAPP", nil))
//
// root, file and prod stay independent views: values set on prod with Set
// are not visible from file, and file still resolves the values it loaded.
//
// Lazy values:
//
//	size  := config.Optional("size", 10)
//	twice := config.Lazy("twice", func(g config.Getter) (int, error) {
//	    n, err := config.Get(g, size)
//	    return 2 * n, err
//	})
//
// Reading twice from a layer that sets size to 20 returns 40; cycles between
// lazy values fail with ErrLazyCycle.
package config
