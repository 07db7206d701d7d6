// Copyright 2023 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sigma

import (
	"time"

	"github.com/go-daq/tdaq"
	"golang.org/x/xerrors"
)

// Server adapts a Device to a TDAQ process: commands drive the
// acquisition, decoded samples are published on the output stream.
//
// Each published frame starts with a one-byte packet kind, followed by
// the packet payload (16-bit little-endian channel vectors for Logic).
type Server struct {
	freq time.Duration
	opts []Option

	dev  *Device
	data chan []byte
	done chan int
}

// NewServer creates a TDAQ server driving one SIGMA cable. freq is the
// polling period of the capture state machine.
func NewServer(freq time.Duration, opts ...Option) *Server {
	return &Server{
		freq: freq,
		opts: opts,
	}
}

// Emit implements Sink, publishing packets to the output stream.
func (srv *Server) Emit(kind PacketKind, unitSize int, data []byte) error {
	// The packet buffer is only valid for the duration of this call.
	frame := make([]byte, 1+len(data))
	frame[0] = uint8(kind)
	copy(frame[1:], data)

	select {
	case srv.data <- frame:
		return nil
	case <-srv.done:
		return xerrors.Errorf("sigma: server stopped")
	}
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	if srv.dev != nil {
		return nil
	}

	srv.data = make(chan []byte, 1024)
	srv.done = make(chan int)

	opts := append([]Option{WithSink(srv)}, srv.opts...)
	dev, err := Open(opts...)
	if err != nil {
		ctx.Msg.Errorf("could not open SIGMA device: %+v", err)
		return xerrors.Errorf("could not open SIGMA device: %w", err)
	}
	srv.dev = dev

	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	if srv.dev != nil {
		srv.dev.StopAcquisition()
	}
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if srv.dev == nil {
		return xerrors.Errorf("sigma: device not initialized")
	}
	err := srv.dev.StartAcquisition()
	if err != nil {
		ctx.Msg.Errorf("could not start acquisition: %+v", err)
		return xerrors.Errorf("could not start acquisition: %w", err)
	}
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	if srv.dev != nil {
		srv.dev.StopAcquisition()
	}
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	if srv.done != nil {
		close(srv.done)
	}
	if srv.dev == nil {
		return nil
	}
	err := srv.dev.Close()
	srv.dev = nil
	if err != nil {
		return xerrors.Errorf("could not close SIGMA device: %w", err)
	}
	return nil
}

// Samples is the output handler publishing decoded sample packets.
func (srv *Server) Samples(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.data:
		dst.Body = data
	}
	return nil
}

// Run polls the capture state machine.
func (srv *Server) Run(ctx tdaq.Context) error {
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
			if srv.dev != nil {
				done, err := srv.dev.Tick()
				if err != nil {
					ctx.Msg.Errorf("capture failed: %+v", err)
				}
				if done {
					ctx.Msg.Infof("capture complete")
				}
			}
			time.Sleep(srv.freq)
		}
	}
}
