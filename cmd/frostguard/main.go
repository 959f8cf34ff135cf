// Command frostguard runs threshold signing ceremonies between a signing
// device and local signers, and packages the local signing capability
// and a device emulator.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/f3rmion/frostguard/fault"
	"github.com/f3rmion/frostguard/logging"
)

// Exit statuses by error kind.
const (
	exitFailure       = 1
	exitTransport     = 3
	exitProtocol      = 4
	exitEncoding      = 5
	exitCryptographic = 6
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp(os.Stdin, os.Stdout, os.Stderr).Run(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "frostguard:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	switch fault.KindOf(err) {
	case fault.KindTransport:
		return exitTransport
	case fault.KindProtocol:
		return exitProtocol
	case fault.KindEncoding:
		return exitEncoding
	case fault.KindCryptographic:
		return exitCryptographic
	default:
		return exitFailure
	}
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "frostguard",
		Usage:     "FROST threshold signing across a signing device and local signers",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		// Errors are reported by main with a kind-specific exit status.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn, or error",
				Value:   "info",
				Sources: cli.EnvVars("FROSTGUARD_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "text or json",
				Value:   logging.FormatText,
				Sources: cli.EnvVars("FROSTGUARD_LOG_FORMAT"),
			},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			KeygenCommand(),
			LocalCommand(),
			EmulateCommand(),
			InfoCommand(),
			ResetCommand(),
			SignCommand(),
		},
	}
}

// setupLogging installs the process logger. Logs go to stderr so that
// stdout carries only command output.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	level, err := logging.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return ctx, cli.Exit(err, exitFailure)
	}
	logger, err := logging.New(level, cmd.String("log-format"), cmd.Root().ErrWriter)
	if err != nil {
		return ctx, cli.Exit(err, exitFailure)
	}
	slog.SetDefault(logger)
	return ctx, nil
}
