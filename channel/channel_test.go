package channel_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"

	"tse/channel"
	"tse/channel/channeltest"
)

func newPipeChannel(t *testing.T, opts channel.Options) (*channel.Channel, *channeltest.Controller) {
	t.Helper()
	host, ctrl := channeltest.Pipe(opts.ByteOrder)
	ch := channel.New(host, opts, logging.NewTestLogger(t))
	t.Cleanup(func() { ch.Close() })
	return ch, ctrl
}

// controllerDo runs fn on the controller side and returns its error once done.
func controllerDo(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return done
}

func TestRoundTripBitExact(t *testing.T) {
	for _, order := range []binary.ByteOrder{nil, binary.BigEndian} {
		ch, ctrl := newPipeChannel(t, channel.Options{ByteOrder: order})
		values := []float64{15.941655017627113, math.Pi, math.Copysign(0, -1), 1e-300, math.MaxFloat64, 8.6}

		var got []float64
		done := controllerDo(func() error {
			var err error
			got, err = ctrl.Accept(len(values))
			return err
		})

		rep, err := ch.Send(context.Background(), values)
		require.NoError(t, err)
		require.NoError(t, <-done)

		assert.Equal(t, channel.Success, rep.State)
		assert.Equal(t, len(values), rep.Sent)
		assert.NotEmpty(t, rep.ID)
		require.Len(t, got, len(values))
		for i := range values {
			assert.Equal(t, math.Float64bits(values[i]), math.Float64bits(got[i]), "value %d", i)
		}
	}
}

func TestGoodQBeforeAllValues(t *testing.T) {
	ch, ctrl := newPipeChannel(t, channel.Options{})
	done := controllerDo(func() error {
		_, err := ctrl.Accept(4)
		return err
	})

	rep, err := ch.Send(context.Background(), []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, 4, rep.Sent)
	assert.Equal(t, []float64{1, 2, 3, 4}, rep.Values)
}

func TestRejectedThenReusable(t *testing.T) {
	ch, ctrl := newPipeChannel(t, channel.Options{})
	values := []float64{1, 2, 3, 4, 5, 6}

	done := controllerDo(func() error {
		_, err := ctrl.RejectAfter(2)
		return err
	})
	rep, err := ch.Send(context.Background(), values)
	require.NoError(t, <-done)

	require.Error(t, err)
	assert.True(t, errors.Is(err, channel.ErrRejected))
	var serr *channel.SessionError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, channel.KindRejected, serr.Kind)
	assert.Equal(t, 2, serr.Index)
	assert.Equal(t, rep.ID, serr.Session)
	assert.Equal(t, channel.Failure, rep.State)

	done = controllerDo(func() error {
		_, err := ctrl.Accept(6)
		return err
	})
	rep, err = ch.Send(context.Background(), values)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, channel.Success, rep.State)
	assert.Equal(t, [][]float64{values}, ctrl.Sessions())
}

func TestTimeoutThenReusable(t *testing.T) {
	timeout := 50 * time.Millisecond
	ch, ctrl := newPipeChannel(t, channel.Options{Timeout: timeout})

	start := time.Now()
	rep, err := ch.Send(context.Background(), []float64{1})
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), timeout)
	assert.True(t, errors.Is(err, channel.ErrTimeout))
	assert.Equal(t, channel.Failure, rep.State)

	done := controllerDo(func() error {
		_, err := ctrl.Accept(1)
		return err
	})
	_, err = ch.Send(context.Background(), []float64{1})
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestTimeoutMidSession(t *testing.T) {
	ch, ctrl := newPipeChannel(t, channel.Options{Timeout: 50 * time.Millisecond})
	done := controllerDo(func() error {
		_, err := ctrl.Request(1)
		return err
	})

	_, err := ch.Send(context.Background(), []float64{1, 2})
	require.NoError(t, <-done)
	var serr *channel.SessionError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, channel.KindTimeout, serr.Kind)
	assert.Equal(t, 1, serr.Index)
}

func TestBlockedWriteTimesOutThenReusable(t *testing.T) {
	timeout := 50 * time.Millisecond
	ch, ctrl := newPipeChannel(t, channel.Options{Timeout: timeout})

	// the controller asks for a check but never reads the acknowledgement
	require.NoError(t, <-controllerDo(func() error { return ctrl.Emit(channel.TokenCheck) }))

	start := time.Now()
	rep, err := ch.Send(context.Background(), []float64{1})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*timeout)
	assert.True(t, errors.Is(err, channel.ErrTimeout))
	var serr *channel.SessionError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, channel.KindTimeout, serr.Kind)
	assert.Equal(t, 0, serr.Index)
	assert.Equal(t, channel.Failure, rep.State)

	done := controllerDo(func() error {
		_, err := ctrl.Accept(1)
		return err
	})
	rep, err = ch.Send(context.Background(), []float64{2})
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, channel.Success, rep.State)
	assert.Equal(t, [][]float64{{2}}, ctrl.Sessions())
}

func TestBlockedWriteCanceled(t *testing.T) {
	ch, ctrl := newPipeChannel(t, channel.Options{})
	require.NoError(t, <-controllerDo(func() error { return ctrl.Emit(channel.TokenCheck) }))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := ch.Send(ctx, []float64{1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, channel.ErrCanceled))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCanceled(t *testing.T) {
	ch, _ := newPipeChannel(t, channel.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := ch.Send(ctx, []float64{1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, channel.ErrCanceled))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMalformedTokens(t *testing.T) {
	tests := []struct {
		name   string
		script func(*channeltest.Controller) error
		token  string
		index  int
	}{
		{
			name:   "gimme before run check",
			script: func(c *channeltest.Controller) error { return c.Emit(channel.TokenGimme) },
			token:  channel.TokenGimme,
		},
		{
			name:   "unknown token",
			script: func(c *channeltest.Controller) error { return c.Emit("HELLO") },
			token:  "HELLO",
		},
		{
			name:   "good before run check",
			script: func(c *channeltest.Controller) error { return c.Emit(channel.TokenGood) },
			token:  channel.TokenGood,
		},
		{
			name: "repeated run check",
			script: func(c *channeltest.Controller) error {
				if _, err := c.Request(0); err != nil {
					return err
				}
				return c.Emit(channel.TokenCheck)
			},
			token: channel.TokenCheck,
		},
		{
			name: "gimme past the last value",
			script: func(c *channeltest.Controller) error {
				if _, err := c.Request(2); err != nil {
					return err
				}
				return c.Emit(channel.TokenGimme)
			},
			token: channel.TokenGimme,
			index: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, ctrl := newPipeChannel(t, channel.Options{})
			done := controllerDo(func() error { return tt.script(ctrl) })

			_, err := ch.Send(context.Background(), []float64{1, 2})
			require.NoError(t, <-done)

			assert.True(t, errors.Is(err, channel.ErrMalformed))
			var serr *channel.SessionError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, tt.token, serr.Token)
			assert.Equal(t, tt.index, serr.Index)
		})
	}
}

func TestWhitespaceAroundTokens(t *testing.T) {
	ch, ctrl := newPipeChannel(t, channel.Options{})
	done := controllerDo(func() error {
		if err := ctrl.Emit("  RUN CHECK\r"); err != nil {
			return err
		}
		if err := ctrl.ReadAck(); err != nil {
			return err
		}
		if err := ctrl.Emit(""); err != nil {
			return err
		}
		if err := ctrl.Emit("GIMME\r"); err != nil {
			return err
		}
		if _, err := ctrl.ReadValue(); err != nil {
			return err
		}
		return ctrl.Emit("GOOD Q\r")
	})

	rep, err := ch.Send(context.Background(), []float64{3})
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, 1, rep.Sent)
}

func TestControllerHangsUp(t *testing.T) {
	host, ctrl := channeltest.Pipe(nil)
	ch := channel.New(host, channel.Options{}, logging.NewTestLogger(t))
	defer ch.Close()

	done := controllerDo(func() error {
		if err := ctrl.Emit(channel.TokenCheck); err != nil {
			return err
		}
		if err := ctrl.ReadAck(); err != nil {
			return err
		}
		return ctrl.Close()
	})

	_, err := ch.Send(context.Background(), []float64{1})
	require.NoError(t, <-done)
	assert.True(t, errors.Is(err, channel.ErrClosed))

	// the stream is gone for good
	_, err = ch.Send(context.Background(), []float64{1})
	assert.True(t, errors.Is(err, channel.ErrClosed))
}

func TestCloseDuringSession(t *testing.T) {
	ch, _ := newPipeChannel(t, channel.Options{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		ch.Close()
	}()

	_, err := ch.Send(context.Background(), []float64{1})
	assert.True(t, errors.Is(err, channel.ErrClosed))
}

func TestConcurrentSendsAreSerialized(t *testing.T) {
	ch, ctrl := newPipeChannel(t, channel.Options{})
	const sessions = 4

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := controllerDo(func() error { return ctrl.Serve(ctx, 6, nil) })

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(base float64) {
			defer wg.Done()
			values := []float64{base, base + 0.1, base + 0.2, base + 0.3, base + 0.4, base + 0.5}
			_, err := ch.Send(context.Background(), values)
			assert.NoError(t, err)
		}(float64(i * 10))
	}
	wg.Wait()

	got := ctrl.Sessions()
	require.Len(t, got, sessions)
	sort.Slice(got, func(i, j int) bool { return got[i][0] < got[j][0] })
	for i, values := range got {
		base := float64(i * 10)
		assert.Equal(t, []float64{base, base + 0.1, base + 0.2, base + 0.3, base + 0.4, base + 0.5}, values)
	}

	cancel()
	ch.Close()
	err := <-served
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "ProtocolRejected", channel.KindRejected.String())
	assert.Equal(t, "ChannelTimeout", channel.KindTimeout.String())
	assert.Equal(t, "Success", channel.Success.String())
}
