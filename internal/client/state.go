package client

import "fmt"

// State is the position of a session in the DORA exchange.
type State int

const (
	StateInitializing State = iota
	StateReady
	StateBindError
	StateSendingDiscover
	StateWaitingOffer
	StateOfferReceived
	StateSendingRequest
	StateWaitingAck
	StateSuccess
	StateNak
	StateTimedOut
	StateFailed
	StateReleased
)

var stateNames = [...]string{
	StateInitializing:    "initializing",
	StateReady:           "ready",
	StateBindError:       "bind_error",
	StateSendingDiscover: "sending_discover",
	StateWaitingOffer:    "waiting_offer",
	StateOfferReceived:   "offer_received",
	StateSendingRequest:  "sending_request",
	StateWaitingAck:      "waiting_ack",
	StateSuccess:         "success",
	StateNak:             "nak",
	StateTimedOut:        "timed_out",
	StateFailed:          "failed",
	StateReleased:        "released",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name for JSON polling responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case StateBindError, StateSuccess, StateNak, StateTimedOut, StateFailed, StateReleased:
		return true
	}
	return false
}
