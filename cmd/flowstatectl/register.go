package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/flowstate/log"
	"github.com/justapithecus/flowstate/registration"
)

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Provision a function's system log tables",
		ArgsUsage: "<function-id>",
		Action:    registerAction,
	}
}

func registerAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("function-id required", 1)
	}
	functionID := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("load config: %v", err), 1)
	}

	store, err := buildStore(c.Context, c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	logger := log.NewLogger(log.Context{LambdaID: functionID})
	if err := registration.Register(c.Context, store, functionID, logger); err != nil {
		return cli.Exit(fmt.Sprintf("register %s: %v", functionID, err), 1)
	}

	fmt.Printf("registered function %q\n", functionID)
	return nil
}
