// FILE: lixenwraith/config/discovery.go
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// FileDiscoveryOptions controls where DiscoverFile looks for a config file.
type FileDiscoveryOptions struct {
	// Name is the file name without extension.
	Name string
	// Extensions are tried in order within each directory.
	Extensions []string
	// Paths are searched before the working and XDG directories.
	Paths []string
	// EnvVar names a variable holding an explicit path.
	EnvVar string
	// CLIFlag is matched in args as "--config path" or "--config=path".
	CLIFlag string
	// UseXDG adds the XDG config home and config dirs.
	UseXDG bool
	// UseCurrentDir adds the working directory.
	UseCurrentDir bool
}

// DefaultDiscoveryOptions looks for appName with the common extensions,
// honours APPNAME_CONFIG and --config, and searches the working directory
// and the XDG directories.
func DefaultDiscoveryOptions(appName string) FileDiscoveryOptions {
	return FileDiscoveryOptions{
		Name:          appName,
		Extensions:    []string{".toml", ".yaml", ".yml", ".json", ".conf", ".config"},
		EnvVar:        strings.ToUpper(appName) + "_CONFIG",
		CLIFlag:       "--config",
		UseXDG:        true,
		UseCurrentDir: true,
	}
}

// DiscoverFile returns the config file path for opts. An explicit path from
// args or the environment is returned without checking that it exists;
// otherwise the first regular file in SearchPaths is. ok is false when
// nothing was found.
func DiscoverFile(opts FileDiscoveryOptions, args []string) (path string, ok bool) {
	if path, ok := explicitPath(opts, args); ok {
		return path, true
	}
	for _, dir := range SearchPaths(opts) {
		for _, ext := range opts.Extensions {
			candidate := filepath.Join(dir, opts.Name+ext)
			if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
				return candidate, true
			}
		}
	}
	return "", false
}

// explicitPath checks the CLI flag, then the environment variable.
func explicitPath(opts FileDiscoveryOptions, args []string) (string, bool) {
	if flagName := opts.CLIFlag; flagName != "" {
		for i, arg := range args {
			switch {
			case arg == flagName && i+1 < len(args):
				return args[i+1], true
			case strings.HasPrefix(arg, flagName+"="):
				return arg[len(flagName)+1:], true
			}
		}
	}
	if opts.EnvVar != "" {
		if value := os.Getenv(opts.EnvVar); value != "" {
			return value, true
		}
	}
	return "", false
}

// SearchPaths lists the directories DiscoverFile searches, in order.
func SearchPaths(opts FileDiscoveryOptions) []string {
	dirs := append([]string(nil), opts.Paths...)
	if opts.UseCurrentDir {
		if cwd, err := os.Getwd(); err == nil {
			dirs = append(dirs, cwd)
		}
	}
	if opts.UseXDG {
		dirs = append(dirs, xdgConfigDirs(opts.Name)...)
	}
	return dirs
}

// xdgConfigDirs follows the XDG base directory layout, falling back to
// ~/.config, /etc/xdg and /etc when the variables are unset.
func xdgConfigDirs(appName string) []string {
	var dirs []string
	switch home := os.Getenv("XDG_CONFIG_HOME"); {
	case home != "":
		dirs = append(dirs, filepath.Join(home, appName))
	case os.Getenv("HOME") != "":
		dirs = append(dirs, filepath.Join(os.Getenv("HOME"), ".config", appName))
	}

	system := filepath.SplitList(os.Getenv("XDG_CONFIG_DIRS"))
	if len(system) == 0 {
		system = []string{"/etc/xdg", "/etc"}
	}
	for _, dir := range system {
		if dir != "" {
			dirs = append(dirs, filepath.Join(dir, appName))
		}
	}
	return dirs
}
