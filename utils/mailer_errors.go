package utils

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
)

// SendErrorKind classifies transport failures into a small set of actionable
// causes, independent of how any one SMTP library shapes its errors.
type SendErrorKind string

const (
	SendErrorAuth     SendErrorKind = "auth"
	SendErrorTimeout  SendErrorKind = "timeout"
	SendErrorRejected SendErrorKind = "rejected"
	SendErrorUnknown  SendErrorKind = "unknown"
)

// SendError wraps a transport failure with its classified kind.
type SendError struct {
	Kind SendErrorKind
	Err  error
}

func (e *SendError) Error() string {
	switch e.Kind {
	case SendErrorAuth:
		return fmt.Sprintf("SMTP authentication failed: %v", e.Err)
	case SendErrorTimeout:
		return fmt.Sprintf("SMTP connection timed out: %v", e.Err)
	case SendErrorRejected:
		return fmt.Sprintf("message rejected by SMTP server: %v", e.Err)
	default:
		return fmt.Sprintf("SMTP send failed: %v", e.Err)
	}
}

func (e *SendError) Unwrap() error { return e.Err }

// ClassifySendError translates an error from the transport boundary into a
// SendError. Already-classified errors pass through unchanged.
func ClassifySendError(err error) *SendError {
	if err == nil {
		return nil
	}

	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &SendError{Kind: SendErrorTimeout, Err: err}
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		switch {
		case protoErr.Code == 530 || protoErr.Code == 534 || protoErr.Code == 535:
			return &SendError{Kind: SendErrorAuth, Err: err}
		case protoErr.Code >= 400:
			return &SendError{Kind: SendErrorRejected, Err: err}
		}
	}

	// Not every SMTP server failure surfaces as a typed error; fall back to
	// the recognizable phrases.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "auth") || strings.Contains(msg, "535"):
		return &SendError{Kind: SendErrorAuth, Err: err}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return &SendError{Kind: SendErrorTimeout, Err: err}
	case strings.Contains(msg, "rejected") || strings.Contains(msg, "refused"):
		return &SendError{Kind: SendErrorRejected, Err: err}
	}

	return &SendError{Kind: SendErrorUnknown, Err: err}
}
