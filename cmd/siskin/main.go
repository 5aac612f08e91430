// Command siskin runs ECMAScript scripts and modules.
//
//	siskin run [--module] <file> [args...]
//	siskin eval <code>
//	siskin repl
//
// Without a subcommand, siskin runs the given file or starts the REPL.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"siskin/pkg/driver"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintf(stderr, "siskin: %s\n", err)
		return driver.ExitUsage
	}
	return driver.ExitOK
}
