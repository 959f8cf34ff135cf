package emulator

import (
	"context"
	"errors"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/f3rmion/frostguard/apdu"
	"github.com/f3rmion/frostguard/fault"
)

// ServeConn answers framed commands on conn until the peer hangs up or
// ctx is done. A command whose length byte disagrees with its payload is
// answered with 0x6700; any other framing error ends the connection.
func (d *Device) ServeConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		cmd, err := apdu.ReadCommand(conn)
		var resp apdu.Response
		switch {
		case err == nil:
			resp = d.Handle(cmd)
		case errors.Is(err, fault.ErrWrongLength):
			resp = apdu.Response{Status: apdu.StatusWrongLength}
		case errors.Is(err, fault.ErrTransportClosed), ctx.Err() != nil:
			return nil
		default:
			return err
		}
		if err := apdu.WriteResponse(conn, resp); err != nil {
			return err
		}
	}
}

// Serve accepts connections on ln and serves each until ctx is done.
// Commands from concurrent connections are interleaved on one device.
func (d *Device) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			d.logger.Info("client connected", "remote", conn.RemoteAddr())
			g.Go(func() error {
				if err := d.ServeConn(ctx, conn); err != nil {
					d.logger.Warn("connection ended", "remote", conn.RemoteAddr(), "err", err)
				}
				return nil
			})
		}
	})
	return g.Wait()
}
