package session

// State is the cached lifecycle state of the single outbound session.
type State string

const (
	StateDisconnected    State = "disconnected"
	StateInitializing    State = "initializing"
	StateAwaitingPairing State = "awaiting_pairing"
	StateConnected       State = "connected"
	StateError           State = "error"
)

// Wire states reported by the browser-automation gateway.
const (
	wireStarting     = "STARTING"
	wireQRCode       = "QRCODE"
	wireConnected    = "CONNECTED"
	wireDisconnected = "DISCONNECTED"
	wireAuthFailure  = "AUTH_FAILURE"
	wireError        = "ERROR"
)

type EventKind int

const (
	EventPairingCode EventKind = iota
	EventReady
	EventAuthFailure
	EventDisconnected
)

// Event is a closed tagged variant of the transport lifecycle notifications.
type Event struct {
	Kind        EventKind
	PairingCode string // EventPairingCode only
	Reason      string // EventAuthFailure / EventDisconnected
}

// nextState maps {current state, event} to the next state. Pairing codes are
// ignored once the session is past pairing; a stale poll must not demote a
// connected session.
func nextState(cur State, kind EventKind) State {
	switch kind {
	case EventPairingCode:
		if cur == StateInitializing || cur == StateAwaitingPairing {
			return StateAwaitingPairing
		}
		return cur
	case EventReady:
		return StateConnected
	case EventAuthFailure:
		return StateError
	case EventDisconnected:
		return StateDisconnected
	}
	return cur
}
