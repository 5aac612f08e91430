package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"siskin/pkg/driver"
	"siskin/pkg/errors"
)

func newRunCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file> [args...]",
		Short: "Run a script or module file",
		Long: `Run a file as a script, or as a module with --module. Files ending
in .mjs are modules unless --module=false is given. Arguments after the
file are available as process.argv.`,
		Args: cobra.MinimumNArgs(1),
		RunE: g.run,
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func (g *globalOptions) run(cmd *cobra.Command, args []string) error {
	file := args[0]
	asModule := g.module
	if !cmd.Flags().Changed("module") && filepath.Ext(file) == ".mjs" {
		asModule = true
	}

	s, err := g.newSession(append([]string{"siskin"}, args...))
	if err != nil {
		return err
	}
	defer s.Close()

	var errs []errors.SiskinError
	if asModule {
		_, errs = s.RunModule(file)
	} else {
		_, errs = s.RunFile(file)
	}
	return report(s, errs)
}

func newEvalCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "eval <code>",
		Short: "Evaluate code and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.newSession([]string{"siskin"})
			if err != nil {
				return err
			}
			defer s.Close()

			if g.module {
				s.AddModule("eval.mjs", args[0])
				_, errs := s.RunModule("eval.mjs")
				return report(s, errs)
			}
			value, errs := s.RunString(args[0])
			if len(errs) > 0 {
				return report(s, errs)
			}
			s.DisplayResult(value, nil)
			return nil
		},
	}
}

// report prints errs and turns them into the matching exit code.
func report(s *driver.Session, errs []errors.SiskinError) error {
	if len(errs) == 0 {
		return nil
	}
	s.DisplayErrors(errs)
	return &exitError{code: driver.ExitCode(errs)}
}
