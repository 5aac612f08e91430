package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"siskin/pkg/driver"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	noColor    bool
	features   []string
	debug      bool
	module     bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	g := &globalOptions{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "siskin [file [args...]]",
		Short: "An ECMAScript interpreter",
		Long: `siskin evaluates ECMAScript scripts and modules.

With a file argument it behaves like "siskin run", without one it starts
the REPL. Settings are read from ./siskin.yaml unless --config is given.`,
		Version:       driver.Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return g.repl()
			}
			return g.run(cmd, args)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("siskin {{.Version}}\n")
	root.Flags().SetInterspersed(false)

	flags := root.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "path to a siskin.yaml")
	flags.BoolVar(&g.noColor, "no-color", false, "disable coloured diagnostics")
	flags.StringSliceVar(&g.features, "feature", nil, "enable a feature, or disable it with no-<name> (repeatable)")
	flags.BoolVar(&g.debug, "debug", false, "print loader and GC summaries to stderr")
	flags.BoolVar(&g.module, "module", false, "evaluate the source as a module (default for .mjs)")

	root.AddCommand(newRunCmd(g), newEvalCmd(g), newReplCmd(g))
	return root
}

// loadConfig reads --config, or siskin.yaml in the working directory, and
// applies the flags on top.
func (g *globalOptions) loadConfig() (*driver.Config, error) {
	var (
		cfg *driver.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = driver.LoadConfig(g.configPath)
	} else {
		wd, werr := os.Getwd()
		if werr != nil {
			return nil, werr
		}
		cfg, err = driver.FindConfig(wd)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFeatureFlags(g.features); err != nil {
		return nil, err
	}
	if g.noColor {
		off := false
		cfg.Color = &off
	}
	return cfg, nil
}

func (g *globalOptions) newSession(argv []string) (*driver.Session, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	opts := driver.Options{
		Config: cfg,
		Stdout: g.stdout,
		Stderr: g.stderr,
		Args:   argv,
	}
	if g.debug {
		opts.Tracef = func(format string, args ...any) {
			fmt.Fprintf(g.stderr, "[siskin] "+format+"\n", args...)
		}
	}
	return driver.New(opts)
}
