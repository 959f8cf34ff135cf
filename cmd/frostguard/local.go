package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/f3rmion/frostguard/localsigner"
)

// LocalCommand exposes the local signing capability, one JSON request
// on stdin and one JSON response on stdout per invocation.
func LocalCommand() *cli.Command {
	ops := []struct{ name, usage string }{
		{localsigner.OpCommit, "Draw a nonce pair and its commitment"},
		{localsigner.OpSign, "Compute a partial signature"},
		{localsigner.OpAggregate, "Aggregate partial signatures and verify"},
		{localsigner.OpKeygen, "Generate a t-of-n share set"},
	}
	cmd := &cli.Command{
		Name:  "local",
		Usage: "Local signing capability (JSON on stdin/stdout)",
	}
	for _, op := range ops {
		cmd.Commands = append(cmd.Commands, &cli.Command{
			Name:   op.name,
			Usage:  op.usage,
			Action: runLocal(op.name),
		})
	}
	return cmd
}

func runLocal(op string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		root := cmd.Root()
		return localsigner.Serve(ctx, op, root.Reader, root.Writer, localsigner.NewEngine())
	}
}
