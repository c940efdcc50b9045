package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/flowstate/durable"
	"github.com/justapithecus/flowstate/iox"
	"github.com/justapithecus/flowstate/metrics"
	"github.com/justapithecus/flowstate/types"
	"github.com/justapithecus/flowstate/wrapper"
)

func invokeCommand() *cli.Command {
	return &cli.Command{
		Name:      "invoke",
		Usage:     "Drive one physical invocation of a function through the wrapper",
		ArgsUsage: "<function-id>",
		Description: `invoke frames one physical invocation through wrapper.Invoke and echoes
the given --input back as the result. There is no handler code to load
here (flowstatectl is an operator tool, not a function host) so the user
function is an identity function: invoke exists to exercise and replay
the idempotence protocol against a target backend, e.g. to confirm that
re-running the same --instance twice does not double-record completion.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "instance", Usage: "Instance ID (random UUID if unset)"},
			&cli.StringFlag{Name: "input", Usage: "Input string passed to the invocation"},
			&cli.IntFlag{Name: "attempt", Usage: "Attempt number recorded in intent_log", Value: 1},
			&cli.StringFlag{Name: "caller-name", Usage: "Caller function id (defaults to the target function-id for a root invocation)"},
			&cli.StringFlag{Name: "caller-id", Usage: "Caller instance id, for a sync-invoked callee"},
			&cli.UintFlag{Name: "caller-step", Usage: "Caller step number, required when --caller-id is set"},
			&cli.BoolFlag{Name: "async", Usage: "Mark the invocation as async"},
		},
		Action: invokeAction,
	}
}

func invokeAction(c *cli.Context) error {
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

	sink, err := buildSink(cfg, functionID)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer iox.DiscardClose(sink)

	instanceID := c.String("instance")
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	callerName := c.String("caller-name")
	if callerName == "" {
		callerName = functionID
	}

	envelope := types.Envelope{
		CallerName: callerName,
		CallerID:   c.String("caller-id"),
		CallerStep: uint32(c.Uint("caller-step")),
		InstanceID: instanceID,
		Input:      c.String("input"),
		IsAsync:    c.Bool("async"),
	}
	if err := envelope.Validate(); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	w := wrapper.New(store, cfg.MaxLogSize, wrapper.WithMetrics(metrics.NewInMemory(functionID)), wrapper.WithTelemetry(sink))

	result, err := w.Invoke(c.Context, wrapper.Event{
		FunctionID: functionID,
		Envelope:   envelope,
		Attempt:    c.Int("attempt"),
	}, echoUserFunc)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invoke %s: %v", functionID, err), 1)
	}

	fmt.Printf("instance=%s result=%q\n", instanceID, result)
	return nil
}

func echoUserFunc(_ context.Context, _ *durable.Client, input string) (string, error) {
	return input, nil
}
