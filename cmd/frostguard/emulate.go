package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/urfave/cli/v3"

	"github.com/f3rmion/frostguard/emulator"
)

// EmulateCommand serves an emulated signing device.
func EmulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "emulate",
		Usage: "Run a signing device emulator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "TCP address to accept clients on",
				Value: defaultDevice,
			},
			&cli.BoolFlag{
				Name:  "legacy-binding",
				Usage: "Derive one binding factor shared by all signers",
			},
		},
		Action: runEmulate,
	}
}

func runEmulate(ctx context.Context, cmd *cli.Command) error {
	dev, err := emulator.New(emulator.Config{
		LegacyBinding: cmd.Bool("legacy-binding"),
		Logger:        slog.Default().With("component", "emulator"),
	})
	if err != nil {
		return err
	}
	defer dev.Wipe()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cmd.String("listen"))
	if err != nil {
		return fmt.Errorf("emulate: %w", err)
	}
	slog.Info("emulator listening", "addr", ln.Addr(), "legacy_binding", cmd.Bool("legacy-binding"))
	return dev.Serve(ctx, ln)
}
