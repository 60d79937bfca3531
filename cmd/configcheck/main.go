// FILE: lixenwraith/config/cmd/configcheck/main.go
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lixenwraith/config/v2"
)

func main() {
	if err := rootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

type checkOptions struct {
	files     []string
	optional  []string
	dotenv    []string
	envPrefix string
	logLevel  string
	args      bool
	strict    bool
	allow     []string
}

func rootCmd(out io.Writer) *cobra.Command {
	var opts checkOptions

	root := &cobra.Command{
		Use:   "configcheck [-- --key=value ...]",
		Short: "Merge configuration sources and print the resulting flat tree",
		Long: "Loads files, .env files, environment variables and command-line overrides in that order, " +
			"later sources overriding earlier ones, and prints every leaf as key = value.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(out, opts, args)
		},
	}

	flags := root.Flags()
	flags.StringArrayVarP(&opts.files, "file", "f", nil, "configuration file (TOML, YAML or JSON); repeatable")
	flags.StringArrayVar(&opts.optional, "optional-file", nil, "configuration file that may be missing; repeatable")
	flags.StringArrayVar(&opts.dotenv, "dotenv", nil, ".env file read with --env-prefix; repeatable")
	flags.StringVarP(&opts.envPrefix, "env-prefix", "e", "", "read environment variables with this prefix")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.args, "args", true, "apply positional --key=value arguments after --")
	flags.BoolVar(&opts.strict, "strict", false, "fail on paths not covered by an --allow prefix")
	flags.StringArrayVar(&opts.allow, "allow", nil, "known path prefix for --strict; repeatable")

	return root
}

func run(out io.Writer, opts checkOptions, args []string) error {
	logger := config.NewLogger(os.Stderr, opts.logLevel)
	root := config.NewWithOptions(config.Options{
		Name:   "configcheck",
		Logger: logger,
	})

	for _, name := range opts.allow {
		if err := root.AddItem(config.Optional[any](name, nil), ""); err != nil {
			return fmt.Errorf("invalid --allow %q: %w", name, err)
		}
	}

	loader := root.Loader().WithName("merged").WithStrict(opts.strict)
	for _, path := range opts.files {
		loader.WithFile(path)
	}
	for _, path := range opts.optional {
		loader.WithOptionalFile(path)
	}
	for _, path := range opts.dotenv {
		loader.WithDotEnv(path, opts.envPrefix)
	}
	if opts.envPrefix != "" {
		loader.WithEnv(opts.envPrefix)
	}
	if opts.args && len(args) > 0 {
		loader.WithArgs(args)
	}

	cfg, err := loader.Load()
	if err != nil {
		logger.Error("load failed", "error", err)
		return err
	}

	for _, entry := range config.Flatten(cfg.Tree()) {
		fmt.Fprintf(out, "%s = %v\n", entry.Key, entry.Value)
	}
	return nil
}
