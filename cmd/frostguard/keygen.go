package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/f3rmion/frostguard/keyfile"
	"github.com/f3rmion/frostguard/localsigner"
)

// KeygenCommand generates a share set without a dealer.
func KeygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate t-of-n key shares",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "threshold",
				Aliases: []string{"t"},
				Usage:   "Signers required",
				Value:   2,
			},
			&cli.IntFlag{
				Name:    "total",
				Aliases: []string{"n"},
				Usage:   "Shares to generate",
				Value:   3,
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Directory for one CBOR key file per share; JSON to stdout when empty",
			},
		},
		Action: runKeygen,
	}
}

func runKeygen(ctx context.Context, cmd *cli.Command) error {
	resp, err := localsigner.NewEngine().Keygen(ctx, &localsigner.KeygenRequest{
		Threshold: cmd.Int("threshold"),
		Total:     cmd.Int("total"),
	})
	if err != nil {
		return err
	}
	defer func() {
		for i := range resp.Shares {
			resp.Shares[i].SecretShare.Wipe()
		}
	}()

	dir := cmd.String("out")
	if dir == "" {
		enc := json.NewEncoder(cmd.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	for _, s := range resp.Shares {
		path := filepath.Join(dir, fmt.Sprintf("share-%d.cbor", s.Participant))
		f := &keyfile.File{
			Version:     keyfile.Version,
			Threshold:   resp.Threshold,
			Total:       resp.Total,
			Share:       s.KeyShare(),
			PublicShare: s.PublicShare,
		}
		err := keyfile.Write(path, f)
		f.Wipe()
		if err != nil {
			return err
		}
		slog.Info("key share written", "path", path, "id", s.ID)
	}
	fmt.Fprintf(cmd.Root().Writer, "group key %s\n", resp.Shares[0].GroupKey)
	return nil
}
