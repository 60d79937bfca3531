// File: lixenwraith/config/convenience.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Quick registers specs on a fresh root and loads configFile, environment
// variables under envPrefix and os.Args with the standard precedence
// (CLI > Env > File > Default). A missing file is not an error.
func Quick(envPrefix, configFile string, specs ...*Spec) (*Config, error) {
	return NewBuilder().
		WithSpec(specs...).
		WithEnvPrefix(envPrefix).
		WithFile(configFile).
		Build()
}

// MustQuick is like Quick but panics on error
func MustQuick(envPrefix, configFile string, specs ...*Spec) *Config {
	cfg, err := Quick(envPrefix, configFile, specs...)
	if err != nil {
		panic(fmt.Sprintf("config initialization failed: %v", err))
	}
	return cfg
}

// GenerateFlags creates a flag for every registered item, named by its
// effective name. Optional items use their default as the flag default.
// Pass the parsed set to FlagSource or Loader.WithFlags.
func (c *Config) GenerateFlags() *flag.FlagSet {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)

	for _, item := range c.Items() {
		name, err := c.NameOf(item)
		if err != nil {
			continue
		}
		usage := item.Description()
		if usage == "" {
			usage = fmt.Sprintf("Config: %s", name)
		}

		var def reflect.Value
		if item.Variant() == VariantOptional && item.defaultValue() != nil {
			def = reflect.ValueOf(item.defaultValue())
		} else {
			def = reflect.Zero(item.Type())
		}

		t := item.Type()
		switch {
		case t == durationType:
			fs.Duration(name, time.Duration(def.Int()), usage)
		case t.Kind() == reflect.Bool:
			fs.Bool(name, def.Bool(), usage)
		case isIntKind(t.Kind()):
			fs.Int64(name, def.Int(), usage)
		case isUintKind(t.Kind()):
			fs.Uint64(name, def.Uint(), usage)
		case t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64:
			fs.Float64(name, def.Float(), usage)
		case t.Kind() == reflect.String:
			fs.String(name, def.String(), usage)
		default:
			// For other types, use string flag
			defStr := ""
			if item.Variant() == VariantOptional && item.defaultValue() != nil {
				defStr = fmt.Sprintf("%v", item.defaultValue())
			}
			fs.String(name, defStr, usage)
		}
	}

	return fs
}

// Validate checks that every required item resolves in c.
// All failures are reported together.
func (c *Config) Validate() error {
	var errs []error
	for _, item := range c.Items() {
		if item.Variant() != VariantRequired {
			continue
		}
		if _, err := c.GetItem(item); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Debug returns a formatted string showing the layer chain and every item
// value with the layer that supplies it.
func (c *Config) Debug() string {
	var b strings.Builder
	b.WriteString("Configuration Debug Info:\n")

	var layers []string
	for layer := c; layer != nil; layer = layer.parent {
		name := layer.name
		if name == "" {
			name = "(unnamed)"
		}
		layers = append(layers, name)
	}
	b.WriteString(fmt.Sprintf("Layers: %s\n", strings.Join(layers, " -> ")))
	b.WriteString("Current values:\n")

	for _, item := range c.Items() {
		name, err := c.NameOf(item)
		if err != nil {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s (%s %s):\n", name, item.Variant(), item.Type()))
		value, err := c.GetItem(item)
		if err != nil {
			b.WriteString(fmt.Sprintf("    Error: %v\n", err))
		} else {
			b.WriteString(fmt.Sprintf("    Current: %v\n", value))
		}
		b.WriteString(fmt.Sprintf("    From: %s\n", c.origin(name, item)))
	}

	return b.String()
}

// origin names the layer that decides the value of name.
func (c *Config) origin(name string, item ItemDef) string {
	path := strings.Split(name, ".")
	for layer := c; layer != nil; layer = layer.parent {
		layer.mutex.RLock()
		_, isLazy := layer.lazy[name]
		isUnset := layer.unset[name]
		_, found := layer.tree.Lookup(path)
		layer.mutex.RUnlock()

		switch {
		case isLazy:
			return fmt.Sprintf("lazy value in layer %q", layer.name)
		case isUnset:
			return fmt.Sprintf("unset in layer %q", layer.name)
		case found:
			return fmt.Sprintf("layer %q", layer.name)
		}
	}
	return item.Variant().String()
}

// envName is the environment variable that EnvSource maps to name under prefix.
func envName(prefix, name string) string {
	return normalizeEnvPrefix(prefix) + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

// EnvNames returns, for every registered item, the environment variable
// that sets it under prefix, keyed by effective name. Names with
// underscores do not round-trip through the default transform.
func (c *Config) EnvNames(prefix string) map[string]string {
	names := make(map[string]string)
	for _, name := range c.Names() {
		names[name] = envName(prefix, name)
	}
	return names
}

// DiscoverEnv returns the registered items that have a matching environment
// variable set, keyed by effective name.
func (c *Config) DiscoverEnv(prefix string) map[string]string {
	discovered := make(map[string]string)
	for name, env := range c.EnvNames(prefix) {
		if _, exists := os.LookupEnv(env); exists {
			discovered[name] = env
		}
	}
	return discovered
}
