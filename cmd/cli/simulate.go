package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"

	"go.viam.com/rdk/logging"
	"golang.org/x/sync/errgroup"

	"tse/channel/channeltest"
	"tse/ik"
)

// runSimulate serves the controller side of the handshake on TCP so that
// send and sweep can run against a tcp transport without hardware.
func runSimulate(ctx context.Context, args []string, logger logging.Logger) error {
	fs := newFlagSet("simulate", simulateUsage)
	listen := fs.String("listen", "127.0.0.1:9000", "address to accept host connections on")
	byteOrder := fs.String("byte-order", "little", "byte order of received doubles: little or big")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var order binary.ByteOrder
	switch *byteOrder {
	case "little":
		order = binary.LittleEndian
	case "big":
		order = binary.BigEndian
	default:
		return fmt.Errorf("byte-order must be 'little' or 'big', got '%s'", *byteOrder)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", *listen)
	if err != nil {
		return err
	}
	logger.Infof("simulated controller listening on %s", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			logger.Infof("host connected from %s", conn.RemoteAddr())
			g.Go(func() error {
				serveHost(gctx, conn, order, logger)
				return nil
			})
		}
	})
	return g.Wait()
}

func serveHost(ctx context.Context, conn net.Conn, order binary.ByteOrder, logger logging.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	ctrl := channeltest.NewController(conn, order)
	n := 0
	err := ctrl.Serve(ctx, ik.Actuators, func(values []float64) bool {
		n++
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				logger.Warnf("session %d: rejecting %v", n, values)
				return false
			}
		}
		logger.Debugf("session %d: %v", n, values)
		return true
	})
	if err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		logger.Warnf("host %s: %v", conn.RemoteAddr(), err)
	}
	logger.Infof("host %s disconnected after %d sessions", conn.RemoteAddr(), len(ctrl.Sessions()))
}
