// File: lixenwraith/config/builder.go
package config

import (
	"fmt"
	"os"
)

// ValidatorFunc defines the signature for a function that can validate a Config instance.
// It receives the fully loaded *Config object and should return an error if validation fails.
type ValidatorFunc func(c *Config) error

// Builder provides a fluent interface for building configurations.
// Precedence, lowest to highest: item defaults, file, environment, command line.
type Builder struct {
	opts       Options
	specs      []*Spec
	envPrefix  string
	file       string
	discovery  *FileDiscoveryOptions
	args       []string
	extra      []Source
	validators []ValidatorFunc
}

// NewBuilder creates a new configuration builder
func NewBuilder() *Builder {
	return &Builder{
		opts: DefaultOptions(),
		args: os.Args[1:],
	}
}

// WithOptions replaces the options of the root config.
func (b *Builder) WithOptions(opts Options) *Builder {
	b.opts = opts
	return b
}

// WithLogger sets the logger of the root config.
func (b *Builder) WithLogger(logger Logger) *Builder {
	b.opts.Logger = logger
	return b
}

// WithTagName sets the struct tag used when coercing mappings into structs.
func (b *Builder) WithTagName(tagName string) *Builder {
	b.opts.TagName = tagName
	return b
}

// WithSecurityOptions restricts file loading.
func (b *Builder) WithSecurityOptions(security SecurityOptions) *Builder {
	b.opts.Security = &security
	return b
}

// WithStrict rejects sources holding paths no registered item covers.
func (b *Builder) WithStrict(strict bool) *Builder {
	b.opts.FailOnUnknownPath = strict
	return b
}

// WithSpec registers specs on the root config.
func (b *Builder) WithSpec(specs ...*Spec) *Builder {
	b.specs = append(b.specs, specs...)
	return b
}

// WithEnvPrefix sets the environment variable prefix. Without a prefix the
// environment is not read.
func (b *Builder) WithEnvPrefix(prefix string) *Builder {
	b.envPrefix = prefix
	return b
}

// WithFile sets the configuration file path. A missing file is logged and skipped.
func (b *Builder) WithFile(path string) *Builder {
	b.file = path
	return b
}

// WithFileDiscovery searches for the configuration file when no explicit file is set.
func (b *Builder) WithFileDiscovery(opts FileDiscoveryOptions) *Builder {
	b.discovery = &opts
	return b
}

// WithArgs sets the command-line arguments
func (b *Builder) WithArgs(args []string) *Builder {
	b.args = args
	return b
}

// WithSource adds sources applied after the command line.
func (b *Builder) WithSource(sources ...Source) *Builder {
	b.extra = append(b.extra, sources...)
	return b
}

// WithValidator adds a validation function that runs at the end of the build process
// Multiple validators can be added and are executed in the order they are added
func (b *Builder) WithValidator(fn ValidatorFunc) *Builder {
	if fn != nil {
		b.validators = append(b.validators, fn)
	}
	return b
}

// Build creates the root config, loads every source into one child layer,
// checks that required items resolve and runs the validators.
func (b *Builder) Build() (*Config, error) {
	root := NewWithOptions(b.opts)
	for _, spec := range b.specs {
		if err := root.AddSpec(spec); err != nil {
			return nil, fmt.Errorf("failed to register spec %q: %w", spec.Prefix(), err)
		}
	}

	loader := root.Loader().WithName("builder")
	switch {
	case b.file != "":
		loader.WithOptionalFile(b.file)
	case b.discovery != nil:
		loader.WithFileDiscovery(*b.discovery, b.args)
	}
	if b.envPrefix != "" {
		loader.WithEnv(b.envPrefix)
	}
	loader.WithArgs(b.args).WithSource(b.extra...)

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	for _, validator := range b.validators {
		if err := validator(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return cfg, nil
}

// MustBuild is like Build but panics on error
func (b *Builder) MustBuild() *Config {
	cfg, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("config build failed: %v", err))
	}
	return cfg
}

// BuildAndScan builds and unmarshals the values under prefix into target.
func (b *Builder) BuildAndScan(prefix string, target any) (*Config, error) {
	cfg, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := cfg.Unmarshal(prefix, target); err != nil {
		return nil, fmt.Errorf("failed to scan final config into target: %w", err)
	}
	return cfg, nil
}
