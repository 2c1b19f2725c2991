// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package qhttp

// State tracks a single connection's lifecycle. Transitions are monotonic
// along a fixed edge set; no state is re-entered once left. StateError and
// StateClosed are terminal: a new Conn must be dialed to go again.
type State uint8

const (
	StateIdle State = iota
	StateResolving
	StateResolved
	StateConnecting
	StateConnected
	StateHandshaking
	StateReady
	StateError
	StateClosed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Terminal reports whether no further transition except re-initialization is
// possible from s.
func (s State) Terminal() bool { return s == StateError || s == StateClosed }

// canEnter is the legal edge set. StateError is reachable from every
// non-terminal state; StateClosed from every state (Close is idempotent).
func canEnter(from, to State) bool {
	switch to {
	case StateClosed:
		return true
	case StateError:
		return !from.Terminal()
	case StateResolving:
		return from == StateIdle
	case StateResolved:
		return from == StateIdle || from == StateResolving
	case StateConnecting:
		return from == StateResolved
	case StateConnected:
		return from == StateConnecting
	case StateHandshaking:
		return from == StateConnected
	case StateReady:
		return from == StateHandshaking
	default:
		return false
	}
}
