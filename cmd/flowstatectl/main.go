// Command flowstatectl is an operator CLI for the durable-execution
// runtime: provisioning a function's system log tables, exercising the
// idempotence protocol against a target backend, and walking a stored
// Linked Row Chain.
//
// Usage:
//
//	flowstatectl <command> [subcommand] [options]
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "flowstatectl",
		Usage:          "Durable-execution runtime operator CLI",
		Version:        fmt.Sprintf("0.1.0 (commit: %s)", commit),
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to YAML config file (see flowconfig.Config)",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "kv.Store backend: memory or dynamodb",
				Value: "memory",
			},
		},
		Commands: []*cli.Command{
			registerCommand(),
			invokeCommand(),
			inspectCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes set via cli.Exit while printing
// unwrapped errors with a generic exit(1).
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
