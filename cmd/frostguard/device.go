package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/f3rmion/frostguard/apdu"
	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
	"github.com/f3rmion/frostguard/participant"
)

const defaultDevice = "127.0.0.1:9999"

func deviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "device",
			Usage:   "Device (or emulator) TCP address",
			Value:   defaultDevice,
			Sources: cli.EnvVars("FROSTGUARD_DEVICE"),
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Per-command read timeout",
			Value:   apdu.DefaultTimeout,
			Sources: cli.EnvVars("FROSTGUARD_TIMEOUT"),
		},
	}
}

func dialDevice(ctx context.Context, cmd *cli.Command) (*apdu.Conn, error) {
	return apdu.Dial(ctx, cmd.String("device"),
		apdu.WithTimeout(cmd.Duration("timeout")),
		apdu.WithLogger(slog.Default().With("component", "apdu")),
	)
}

// InfoCommand prints the device version and loaded group key.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:   "info",
		Usage:  "Show device version and group key",
		Flags:  deviceFlags(),
		Action: runInfo,
	}
}

func runInfo(ctx context.Context, cmd *cli.Command) error {
	conn, err := dialDevice(ctx, cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	dev := participant.NewDevice(conn, codec.ID{}, participant.DeviceOptions{})
	v, err := dev.Version(ctx)
	if err != nil {
		return err
	}
	out := cmd.Root().Writer
	fmt.Fprintf(out, "version   %s\n", v)

	key, err := dev.GroupKey(ctx)
	switch {
	case errors.Is(err, fault.ErrWrongState):
		fmt.Fprintln(out, "group key (no keys loaded)")
	case err != nil:
		return err
	default:
		fmt.Fprintf(out, "group key %s\n", key)
	}
	return nil
}

// ResetCommand clears the device session. Loaded keys stay.
func ResetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Reset the device session",
		Flags: deviceFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			conn, err := dialDevice(ctx, cmd)
			if err != nil {
				return err
			}
			defer conn.Close()
			start := time.Now()
			if err := participant.NewDevice(conn, codec.ID{}, participant.DeviceOptions{}).Reset(ctx); err != nil {
				return err
			}
			slog.Info("device reset", "elapsed", time.Since(start))
			return nil
		},
	}
}
