package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/flowstate/cmd/flowstatectl/tui"
	"github.com/justapithecus/flowstate/lrc"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Walk the Linked Row Chain stored for a key in a function's user table",
		ArgsUsage: "<function-id> <table> <key>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "tui", Usage: "Walk the chain interactively"},
		},
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() < 3 {
		return cli.Exit("usage: inspect <function-id> <table> <key>", 1)
	}
	functionID := c.Args().Get(0)
	table := c.Args().Get(1)
	key := c.Args().Get(2)

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("load config: %v", err), 1)
	}

	store, err := buildStore(c.Context, c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	chain := lrc.New(store, table, cfg.MaxLogSize)
	skeleton, err := chain.GetSkeleton(c.Context, key)
	if err != nil {
		return cli.Exit(fmt.Sprintf("inspect %s/%s: %v", table, key, err), 1)
	}

	value, committed, err := chain.GetTailValue(c.Context, key)
	if err != nil {
		return cli.Exit(fmt.Sprintf("read tail value for %s/%s: %v", table, key, err), 1)
	}

	view := tui.ChainView{
		FunctionID: functionID,
		Table:      table,
		Key:        key,
		Rows:       toRowViews(skeleton),
		Value:      value,
		Committed:  committed,
	}

	if c.Bool("tui") {
		return tui.RunInspectTUI(view)
	}

	renderChainTable(view)
	return nil
}

func toRowViews(skeleton []lrc.RowProjection) []tui.RowView {
	rows := make([]tui.RowView, 0, len(skeleton))
	for _, row := range skeleton {
		rows = append(rows, tui.RowView{
			RowHash:     row.RowHash,
			NextRowHash: row.NextRowHash,
			LogCount:    len(row.Logs),
		})
	}
	return rows
}

func renderChainTable(view tui.ChainView) {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintf(w, "function:\t%s\n", view.FunctionID)
	fmt.Fprintf(w, "table:\t%s\n", view.Table)
	fmt.Fprintf(w, "key:\t%s\n", view.Key)
	fmt.Fprintf(w, "committed:\t%v\n", view.Committed)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "ROW HASH\tNEXT ROW HASH\tLOGS ABSORBED\n")
	for _, row := range view.Rows {
		next := row.NextRowHash
		if next == "" {
			next = "(tail)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\n", row.RowHash, next, row.LogCount)
	}
	_ = w.Flush()
}
