// Package transport opens the byte stream to an actuator controller.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.viam.com/rdk/logging"
)

// Supported stream kinds.
const (
	KindSerial = "serial"
	KindTCP    = "tcp"
	KindExec   = "exec"
)

const (
	defaultBaudrate    = 115200
	defaultDialTimeout = 5 * time.Second
)

// Config selects and parameterizes a stream.
type Config struct {
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	// serial
	Port     string `json:"port,omitempty" yaml:"port,omitempty"`
	Baudrate int    `json:"baudrate,omitempty" yaml:"baudrate,omitempty"`

	// tcp
	Address       string `json:"address,omitempty" yaml:"address,omitempty"`
	DialTimeoutMs int    `json:"dial_timeout_ms,omitempty" yaml:"dial_timeout_ms,omitempty"`

	// exec
	Command string   `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// Validate checks the fields the kind needs and fills defaults. An empty
// kind is inferred from whichever target field is set.
func (c *Config) Validate(path string) error {
	if c.Kind == "" {
		switch {
		case c.Port != "":
			c.Kind = KindSerial
		case c.Address != "":
			c.Kind = KindTCP
		case c.Command != "":
			c.Kind = KindExec
		}
	}

	switch c.Kind {
	case KindSerial:
		if c.Port == "" {
			return fmt.Errorf("%s: must specify port for serial transport", path)
		}
		if c.Baudrate == 0 {
			c.Baudrate = defaultBaudrate
		}
	case KindTCP:
		if c.Address == "" {
			return fmt.Errorf("%s: must specify address for tcp transport", path)
		}
		if _, _, err := net.SplitHostPort(c.Address); err != nil {
			return errors.Wrapf(err, "%s: bad tcp address", path)
		}
	case KindExec:
		if c.Command == "" {
			return fmt.Errorf("%s: must specify command for exec transport", path)
		}
	case "":
		return fmt.Errorf("%s: must specify a port, address or command", path)
	default:
		return fmt.Errorf("%s: unknown transport kind %q", path, c.Kind)
	}
	return nil
}

// Endpoint names the resource the stream attaches to. Two configs with the
// same endpoint would share one stream.
func (c Config) Endpoint() string {
	switch c.Kind {
	case KindSerial:
		return KindSerial + ":" + c.Port
	case KindTCP:
		return KindTCP + ":" + c.Address
	case KindExec:
		return KindExec + ":" + c.Command
	default:
		return c.Kind
	}
}

// Equal reports whether two configs would open identical streams.
func (c Config) Equal(o Config) bool {
	if c.Kind != o.Kind || c.Port != o.Port || c.Baudrate != o.Baudrate ||
		c.Address != o.Address || c.Command != o.Command || len(c.Args) != len(o.Args) {
		return false
	}
	for i := range c.Args {
		if c.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}

// Open connects the stream described by cfg. cfg must have been validated.
func Open(ctx context.Context, cfg Config, logger logging.Logger) (io.ReadWriteCloser, error) {
	switch cfg.Kind {
	case KindSerial:
		port, err := serial.Open(cfg.Port, &serial.Mode{
			BaudRate: cfg.Baudrate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "opening serial port %s", cfg.Port)
		}
		logger.Infof("opened serial port %s at %d baud", cfg.Port, cfg.Baudrate)
		return port, nil

	case KindTCP:
		timeout := defaultDialTimeout
		if cfg.DialTimeoutMs > 0 {
			timeout = time.Duration(cfg.DialTimeoutMs) * time.Millisecond
		}
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", cfg.Address)
		if err != nil {
			return nil, errors.Wrapf(err, "dialing controller at %s", cfg.Address)
		}
		logger.Infof("connected to controller at %s", cfg.Address)
		return conn, nil

	case KindExec:
		p, err := startProcess(cfg.Command, cfg.Args, logger)
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}
