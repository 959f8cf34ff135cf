package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/f3rmion/frostguard/apdu"
	"github.com/f3rmion/frostguard/bjj"
	"github.com/f3rmion/frostguard/ceremony"
	"github.com/f3rmion/frostguard/codec"
	"github.com/f3rmion/frostguard/fault"
	"github.com/f3rmion/frostguard/frost"
	"github.com/f3rmion/frostguard/keyfile"
	"github.com/f3rmion/frostguard/localsigner"
	"github.com/f3rmion/frostguard/participant"
	"github.com/f3rmion/frostguard/session"
)

const inProcess = "inprocess"

// SignCommand runs one signing ceremony between the device and local
// key shares.
func SignCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "Sign a 32-byte message with the device and local shares",
		Flags: append(deviceFlags(),
			&cli.StringFlag{
				Name:     "device-share",
				Usage:    "Key file to load into the device",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "share",
				Usage: "Key file for a local signer (repeatable)",
			},
			&cli.StringFlag{
				Name:     "message",
				Usage:    "Hex-encoded 32-byte message",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "challenge",
				Usage: "Inject an externally derived challenge (mimc or poseidon)",
			},
			&cli.StringFlag{
				Name:  "transcript",
				Usage: "Write the Borsh-encoded transcript to this path",
			},
			&cli.StringFlag{
				Name:    "local-signer",
				Usage:   "inprocess, or the path of a binary serving `local`",
				Value:   inProcess,
				Sources: cli.EnvVars("FROSTGUARD_LOCAL_SIGNER"),
			},
		),
		Action: runSign,
	}
}

type signOutput struct {
	Message   codec.Digest             `json:"message"`
	GroupKey  codec.Point              `json:"group_key"`
	Signers   []codec.ID               `json:"signers"`
	Challenge *codec.Scalar            `json:"challenge,omitempty"`
	Partials  []codec.PartialSignature `json:"partials"`
	R         codec.Point              `json:"r"`
	Z         codec.Scalar             `json:"z"`
	Valid     bool                     `json:"valid"`
}

func capability(name string) localsigner.Capability {
	if name == inProcess {
		return localsigner.NewEngine()
	}
	return &localsigner.Exec{
		Path:   name,
		Logger: slog.Default().With("component", "local-signer"),
	}
}

// readShares loads the device share followed by the local shares and
// checks that they describe one group.
func readShares(devicePath string, localPaths []string) ([]*keyfile.File, error) {
	files := make([]*keyfile.File, 0, 1+len(localPaths))
	for _, p := range append([]string{devicePath}, localPaths...) {
		f, err := keyfile.Read(p)
		if err != nil {
			wipeFiles(files)
			return nil, err
		}
		files = append(files, f)
	}
	first := files[0]
	for _, f := range files[1:] {
		if f.Threshold != first.Threshold || f.Total != first.Total || f.Share.GroupKey != first.Share.GroupKey {
			wipeFiles(files)
			return nil, fault.E(fault.KindCryptographic, "read shares",
				fmt.Errorf("%w: key files belong to different groups", fault.ErrParticipantSetMismatch))
		}
	}
	return files, nil
}

func wipeFiles(files []*keyfile.File) {
	for _, f := range files {
		f.Wipe()
	}
}

func runSign(ctx context.Context, cmd *cli.Command) error {
	msg, err := codec.ParseDigest(cmd.String("message"))
	if err != nil {
		return fault.E(fault.KindEncoding, "sign", err)
	}
	files, err := readShares(cmd.String("device-share"), cmd.StringSlice("share"))
	if err != nil {
		return err
	}
	defer wipeFiles(files)

	dev := files[0]
	f, err := frost.NewWithHasher(&bjj.BJJ{}, dev.Threshold, dev.Total, frost.NewBlake2bHasher())
	if err != nil {
		return err
	}

	conn, err := dialDevice(ctx, cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	local := capability(cmd.String("local-signer"))
	signers := []participant.Participant{
		participant.NewDevice(conn, dev.Share.ID, participant.DeviceOptions{
			Curve:  apdu.CurveBabyJubjub,
			Logger: slog.Default().With("component", "device"),
		}),
	}
	for _, lf := range files[1:] {
		l := participant.NewLocal(local, lf.Share)
		defer l.Close()
		signers = append(signers, l)
	}

	// The coordinator wipes Keys; it gets its own copy of the device share.
	deviceShare := dev.Share
	coord := ceremony.New(f, local, ceremony.Config{
		Observer: ceremony.LogObserver{Logger: slog.Default().With("component", "ceremony")},
	})
	res, runErr := coord.Run(ctx, session.New(), ceremony.Request{
		Message:         msg,
		Signers:         signers,
		Keys:            map[codec.ID]*codec.KeyShare{deviceShare.ID: &deviceShare},
		ChallengeScheme: cmd.String("challenge"),
	})
	if res == nil {
		return runErr
	}

	if path := cmd.String("transcript"); path != "" {
		raw, err := res.Transcript.MarshalBinary()
		if err != nil {
			return errors.Join(runErr, err)
		}
		if err := os.WriteFile(path, raw, 0o600); err != nil {
			return errors.Join(runErr, fmt.Errorf("write transcript: %w", err))
		}
	}

	out := signOutput{
		Message:   msg,
		GroupKey:  dev.Share.GroupKey,
		Signers:   res.Commitments.IDs(),
		Challenge: res.Challenge,
		Partials:  res.Partials,
		R:         res.Signature.R,
		Z:         res.Signature.Z,
		Valid:     res.Valid,
	}
	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}
