package dhcp

import (
	"errors"
	"fmt"
)

// Structural decode failures. Every decode error is a *FormatError wrapping one of these.
var (
	ErrShortPacket     = errors.New("packet too short")
	ErrBadMagicCookie  = errors.New("invalid DHCP magic cookie")
	ErrTruncatedOption = errors.New("truncated option")
)

// FormatError reports a packet that failed structural decoding. Callers on
// the receive path treat it as a discard, not a fault.
type FormatError struct {
	Err    error
	Detail string
}

func (e *FormatError) Error() string {
	if e.Detail == "" {
		return "malformed DHCP packet: " + e.Err.Error()
	}
	return fmt.Sprintf("malformed DHCP packet: %s: %s", e.Err, e.Detail)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func formatErrorf(err error, format string, args ...interface{}) *FormatError {
	return &FormatError{Err: err, Detail: fmt.Sprintf(format, args...)}
}
