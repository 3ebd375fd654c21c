// Package channel speaks the actuator controller's handshake: the controller
// asks for values with newline-terminated text tokens and receives each value
// as a raw IEEE-754 double on the same stream.
package channel

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.viam.com/rdk/logging"
)

// Control tokens sent by the controller, one per line.
const (
	TokenCheck = "RUN CHECK"
	TokenGimme = "GIMME"
	TokenGood  = "GOOD Q"
	TokenBad   = "BAD Q"
)

// Ack is the byte written in answer to TokenCheck.
const Ack = '1'

// DefaultTimeout bounds each wait for the next controller token.
const DefaultTimeout = 5 * time.Second

// State is the position of a session in the handshake.
type State int

const (
	AwaitCheck State = iota
	AwaitGimme
	Sending
	Success
	Failure
)

func (s State) String() string {
	switch s {
	case AwaitCheck:
		return "AwaitCheck"
	case AwaitGimme:
		return "AwaitGimme"
	case Sending:
		return "Sending"
	case Success:
		return "Success"
	case Failure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Options configure a Channel. Zero fields take defaults.
type Options struct {
	// Timeout bounds each wait for a controller token.
	Timeout time.Duration
	// ByteOrder of transmitted doubles; little-endian when nil.
	ByteOrder binary.ByteOrder
}

// Report describes one finished session.
type Report struct {
	ID       string        `json:"id"`
	State    State         `json:"state"`
	Sent     int           `json:"sent"`
	Values   []float64     `json:"values"`
	Duration time.Duration `json:"duration"`
}

// Channel owns the byte stream to one controller and runs one session at a
// time. It is safe for concurrent use; sessions are serialized.
type Channel struct {
	rw      io.ReadWriteCloser
	logger  logging.Logger
	timeout time.Duration
	order   binary.ByteOrder

	sem    chan struct{}
	tokens chan string
	// dirty marks that the last session ended with the controller in an
	// unknown state. Guarded by sem.
	dirty bool

	// readerDone is closed once the reader goroutine exits; readErr is set
	// before that.
	readerDone chan struct{}
	readErr    error

	// stranded delivers the result of a write abandoned by an earlier
	// session. Guarded by sem.
	stranded chan error

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// New takes ownership of rw and starts reading controller tokens from it.
func New(rw io.ReadWriteCloser, opts Options, logger logging.Logger) *Channel {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ByteOrder == nil {
		opts.ByteOrder = binary.LittleEndian
	}
	c := &Channel{
		rw:         rw,
		logger:     logger,
		timeout:    opts.Timeout,
		order:      opts.ByteOrder,
		sem:        make(chan struct{}, 1),
		tokens:     make(chan string, 16),
		readerDone: make(chan struct{}),
		closed:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Channel) readLoop() {
	defer close(c.readerDone)

	r := bufio.NewReader(c.rw)
	for {
		line, err := r.ReadString('\n')
		if tok := strings.TrimSpace(line); tok != "" {
			select {
			case c.tokens <- tok:
			case <-c.closed:
				c.readErr = ErrClosed
				return
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

// Send runs one full session, transmitting values in order as the controller
// asks for them. It blocks until the controller answers GOOD Q or the session
// fails. Values go out verbatim; callers convert units beforehand.
//
// Every failure is a *SessionError. After a rejected, malformed, timed out or
// canceled session the channel can be used again.
func (c *Channel) Send(ctx context.Context, values []float64) (Report, error) {
	rep := Report{ID: uuid.New().String(), State: AwaitCheck}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return c.finish(rep, time.Now(), &SessionError{Kind: KindCanceled, Err: ctx.Err()})
	case <-c.closed:
		return c.finish(rep, time.Now(), &SessionError{Kind: KindClosed})
	}
	rep, err := c.session(ctx, rep, values)
	var serr *SessionError
	if errors.As(err, &serr) {
		switch serr.Kind {
		case KindMalformed, KindTimeout, KindCanceled:
			c.dirty = true
		}
	}
	<-c.sem
	return rep, err
}

func (c *Channel) session(ctx context.Context, rep Report, values []float64) (Report, error) {
	start := time.Now()
	var pending string
	if c.dirty {
		pending = c.discardStale(rep.ID)
		c.dirty = false
	}
	c.logger.Debugf("session %s: sending %d values", rep.ID, len(values))

	for {
		tok := pending
		pending = ""
		if tok == "" {
			var serr *SessionError
			if tok, serr = c.next(ctx); serr != nil {
				return c.finish(rep, start, serr)
			}
		}
		c.logger.Debugf("session %s: %s in %s", rep.ID, tok, rep.State)

		switch {
		case tok == TokenBad:
			return c.finish(rep, start, &SessionError{Kind: KindRejected, Token: tok})

		case tok == TokenCheck && rep.State == AwaitCheck:
			if serr := c.write(ctx, []byte{Ack}); serr != nil {
				return c.finish(rep, start, serr)
			}
			rep.State = AwaitGimme

		case tok == TokenGimme && rep.State != AwaitCheck && rep.Sent < len(values):
			var buf [8]byte
			c.order.PutUint64(buf[:], math.Float64bits(values[rep.Sent]))
			if serr := c.write(ctx, buf[:]); serr != nil {
				return c.finish(rep, start, serr)
			}
			rep.Values = append(rep.Values, values[rep.Sent])
			rep.Sent++
			rep.State = Sending

		case tok == TokenGood && rep.State != AwaitCheck:
			rep.State = Success
			return c.finish(rep, start, nil)

		default:
			return c.finish(rep, start, &SessionError{Kind: KindMalformed, Token: tok})
		}
	}
}

func (c *Channel) finish(rep Report, start time.Time, serr *SessionError) (Report, error) {
	rep.Duration = time.Since(start)
	if serr == nil {
		c.logger.Debugf("session %s: controller accepted %d values in %v", rep.ID, rep.Sent, rep.Duration)
		return rep, nil
	}
	serr.Session = rep.ID
	serr.Index = rep.Sent
	rep.State = Failure
	c.logger.Warnf("session %s aborted: %v", rep.ID, serr)
	return rep, serr
}

// next waits for the next token, bounded by the channel timeout.
func (c *Channel) next(ctx context.Context) (string, *SessionError) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case tok := <-c.tokens:
		return tok, nil
	case <-ctx.Done():
		return "", &SessionError{Kind: KindCanceled, Err: ctx.Err()}
	case <-timer.C:
		return "", &SessionError{Kind: KindTimeout, Err: fmt.Errorf("no token within %v", c.timeout)}
	case <-c.closed:
		return "", &SessionError{Kind: KindClosed}
	case <-c.readerDone:
		// tokens read before the stream ended still count
		select {
		case tok := <-c.tokens:
			return tok, nil
		case <-c.closed:
			return "", &SessionError{Kind: KindClosed}
		default:
		}
		if errors.Is(c.readErr, io.EOF) || errors.Is(c.readErr, ErrClosed) {
			return "", &SessionError{Kind: KindClosed, Err: c.readErr}
		}
		return "", &SessionError{Kind: KindIO, Err: c.readErr}
	}
}

// discardStale drops tokens queued while an aborted session was unwinding.
// A RUN CHECK among them means the controller restarted its handshake, so the
// last one is returned to start the new session.
func (c *Channel) discardStale(id string) string {
	var restart string
	for {
		select {
		case tok := <-c.tokens:
			if tok == TokenCheck {
				restart = tok
				continue
			}
			restart = ""
			c.logger.Debugf("session %s: discarding stale token %q", id, tok)
		default:
			return restart
		}
	}
}

// writeDeadliner is implemented by streams such as net.Conn whose blocked
// writes can be interrupted.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// write sends p, bounded by the channel timeout and ctx. A write that does
// not finish in time is left running; the next write waits for it first.
func (c *Channel) write(ctx context.Context, p []byte) *SessionError {
	if serr := c.awaitStranded(ctx); serr != nil {
		return serr
	}

	done := make(chan error, 1)
	go func() { done <- c.writeAll(p) }()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	var serr *SessionError
	select {
	case err := <-done:
		if err != nil {
			return &SessionError{Kind: KindIO, Err: err}
		}
		return nil
	case <-ctx.Done():
		serr = &SessionError{Kind: KindCanceled, Err: ctx.Err()}
	case <-timer.C:
		serr = &SessionError{Kind: KindTimeout, Err: fmt.Errorf("write blocked for %v", c.timeout)}
	case <-c.closed:
		return &SessionError{Kind: KindClosed}
	}

	c.stranded = done
	if d, ok := c.rw.(writeDeadliner); ok {
		if err := d.SetWriteDeadline(time.Now()); err != nil {
			c.logger.Debugf("cannot interrupt blocked write: %v", err)
		}
	}
	return serr
}

func (c *Channel) awaitStranded(ctx context.Context) *SessionError {
	if c.stranded == nil {
		return nil
	}
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case err := <-c.stranded:
		c.stranded = nil
		if err != nil {
			c.logger.Debugf("abandoned write ended: %v", err)
		}
		if d, ok := c.rw.(writeDeadliner); ok {
			if err := d.SetWriteDeadline(time.Time{}); err != nil {
				return &SessionError{Kind: KindIO, Err: err}
			}
		}
		return nil
	case <-ctx.Done():
		return &SessionError{Kind: KindCanceled, Err: ctx.Err()}
	case <-timer.C:
		return &SessionError{Kind: KindTimeout, Err: errors.New("earlier write still blocked")}
	case <-c.closed:
		return &SessionError{Kind: KindClosed}
	}
}

func (c *Channel) writeAll(p []byte) error {
	n, err := c.rw.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}

// Close releases the stream. A session in progress fails with KindClosed.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.rw.Close()
	})
	return c.closeErr
}
