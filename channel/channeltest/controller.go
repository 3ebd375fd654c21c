// Package channeltest provides a scripted actuator controller for exercising
// channel.Channel without hardware.
package channeltest

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"sync"

	"tse/channel"
)

// Controller plays the controller side of the handshake on a stream.
type Controller struct {
	rw    io.ReadWriter
	r     *bufio.Reader
	order binary.ByteOrder

	mu       sync.Mutex
	sessions [][]float64
}

// NewController wraps the controller end of a stream. A nil order means
// little-endian.
func NewController(rw io.ReadWriter, order binary.ByteOrder) *Controller {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Controller{rw: rw, r: bufio.NewReader(rw), order: order}
}

// Pipe returns the host end of an in-memory stream and a Controller on the
// other end.
func Pipe(order binary.ByteOrder) (io.ReadWriteCloser, *Controller) {
	host, ctrl := net.Pipe()
	return host, NewController(ctrl, order)
}

// Close hangs up the controller end if the stream can be closed.
func (c *Controller) Close() error {
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Emit writes one token line.
func (c *Controller) Emit(token string) error {
	_, err := io.WriteString(c.rw, token+"\n")
	return err
}

// ReadAck consumes the host acknowledgement byte.
func (c *Controller) ReadAck() error {
	b, err := c.r.ReadByte()
	if err != nil {
		return err
	}
	if b != channel.Ack {
		return fmt.Errorf("expected ack %q, got %q", channel.Ack, b)
	}
	return nil
}

// ReadValue consumes one transmitted double.
func (c *Controller) ReadValue() (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(c.r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(c.order.Uint64(buf[:])), nil
}

// Request runs RUN CHECK followed by n GIMME requests and returns the values
// received. It does not end the session.
func (c *Controller) Request(n int) ([]float64, error) {
	if err := c.Emit(channel.TokenCheck); err != nil {
		return nil, err
	}
	if err := c.ReadAck(); err != nil {
		return nil, err
	}
	values := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if err := c.Emit(channel.TokenGimme); err != nil {
			return values, err
		}
		v, err := c.ReadValue()
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
	return values, nil
}

// Accept runs a whole successful session of n values.
func (c *Controller) Accept(n int) ([]float64, error) {
	values, err := c.Request(n)
	if err != nil {
		return values, err
	}
	c.record(values)
	return values, c.Emit(channel.TokenGood)
}

// RejectAfter requests n values and then answers BAD Q.
func (c *Controller) RejectAfter(n int) ([]float64, error) {
	values, err := c.Request(n)
	if err != nil {
		return values, err
	}
	return values, c.Emit(channel.TokenBad)
}

// Serve answers sessions of n values until ctx is done or the stream fails.
// check, when set, decides whether a received command is accepted.
func (c *Controller) Serve(ctx context.Context, n int, check func([]float64) bool) error {
	for ctx.Err() == nil {
		values, err := c.Request(n)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if check != nil && !check(values) {
			if err := c.Emit(channel.TokenBad); err != nil {
				return err
			}
			continue
		}
		c.record(values)
		if err := c.Emit(channel.TokenGood); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (c *Controller) record(values []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = append(c.sessions, values)
}

// Sessions returns the values of every accepted session so far.
func (c *Controller) Sessions() [][]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]float64, len(c.sessions))
	copy(out, c.sessions)
	return out
}
