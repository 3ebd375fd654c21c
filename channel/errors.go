package channel

import (
	"errors"
	"fmt"
)

// Kind classifies why a session failed.
type Kind int

const (
	KindRejected Kind = iota + 1
	KindMalformed
	KindTimeout
	KindCanceled
	KindClosed
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindRejected:
		return "ProtocolRejected"
	case KindMalformed:
		return "ProtocolMalformed"
	case KindTimeout:
		return "ChannelTimeout"
	case KindCanceled:
		return "Canceled"
	case KindClosed:
		return "ChannelClosed"
	case KindIO:
		return "IO"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinels matched by errors.Is against a *SessionError of the same kind.
var (
	ErrRejected  = errors.New("controller rejected the command")
	ErrMalformed = errors.New("unexpected controller token")
	ErrTimeout   = errors.New("timed out waiting for the controller")
	ErrCanceled  = errors.New("session canceled")
	ErrClosed    = errors.New("channel closed")
	ErrIO        = errors.New("channel i/o failed")
)

var kindErrors = map[Kind]error{
	KindRejected:  ErrRejected,
	KindMalformed: ErrMalformed,
	KindTimeout:   ErrTimeout,
	KindCanceled:  ErrCanceled,
	KindClosed:    ErrClosed,
	KindIO:        ErrIO,
}

// SessionError is returned by Send for every failed session.
type SessionError struct {
	Kind    Kind
	Session string
	// Index is the number of values written before the failure.
	Index int
	// Token is the offending token for KindMalformed and KindRejected.
	Token string
	Err   error
}

func (e *SessionError) Error() string {
	msg := fmt.Sprintf("session %s failed after %d values: %v", e.Session, e.Index, kindErrors[e.Kind])
	if e.Token != "" {
		msg += fmt.Sprintf(" (token %q)", e.Token)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SessionError) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *SessionError) Is(target error) bool {
	return kindErrors[e.Kind] == target
}
