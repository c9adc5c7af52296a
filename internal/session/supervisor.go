package session

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrNotConnected is returned by Send when no connected session is available.
var ErrNotConnected = errors.New("whatsapp session is not connected")

// Transport is the capability surface of the outbound session. The production
// implementation is the HTTP client for the browser-automation gateway.
type Transport interface {
	StartSession(ctx context.Context, fresh bool) error
	Logout(ctx context.Context) error
	PurgeCredentials(ctx context.Context) error
	SessionState(ctx context.Context) (state string, pairingCode string, err error)
	SendText(ctx context.Context, phoneNumber, message string) (remoteMessageID string, err error)
}

// Status is the polling clients' view of the session.
type Status struct {
	State        State  `json:"status"`
	PairingImage string `json:"qrCode,omitempty"`
}

// Supervisor owns the lifecycle of the single outbound session. All state
// mutation funnels through it; the dispatch worker only sees Send and
// Connected.
type Supervisor struct {
	transport Transport
	poll      time.Duration

	mu          sync.Mutex
	state       State
	pairingPNG  string
	pairingRaw  string
	active      bool
	cancelWatch context.CancelFunc
}

func NewSupervisor(t Transport, pollInterval time.Duration) *Supervisor {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Supervisor{
		transport: t,
		poll:      pollInterval,
		state:     StateDisconnected,
	}
}

// Connect begins session setup when the current state allows it. It returns
// false without error when a connection is already in progress or
// established. With fresh=true the stored credentials are purged first,
// forcing a full re-pairing.
func (s *Supervisor) Connect(ctx context.Context, fresh bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateDisconnected && s.state != StateError {
		return false, nil
	}

	s.stopWatchLocked()
	s.active = false
	s.pairingPNG = ""
	s.pairingRaw = ""

	if fresh {
		if err := s.transport.PurgeCredentials(ctx); err != nil {
			slog.Warn("failed to purge session credentials", "error", err)
		}
	}

	s.state = StateInitializing
	slog.Info("session state", "state", s.state)

	if err := s.transport.StartSession(ctx, fresh); err != nil {
		s.state = StateError
		slog.Error("session start failed", "error", err)
		return false, err
	}

	s.active = true

	watchCtx, cancel := context.WithCancel(context.Background())
	s.cancelWatch = cancel
	go s.watch(watchCtx)

	return true, nil
}

// Disconnect logs out the session if one exists and always leaves the state
// Disconnected with credentials purged. Safe to call repeatedly.
func (s *Supervisor) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		if err := s.transport.Logout(ctx); err != nil {
			slog.Warn("session logout failed", "error", err)
		}
	}

	s.stopWatchLocked()
	s.active = false
	s.state = StateDisconnected
	s.pairingPNG = ""
	s.pairingRaw = ""

	if err := s.transport.PurgeCredentials(ctx); err != nil {
		slog.Warn("failed to purge session credentials", "error", err)
	}

	slog.Info("session state", "state", s.state)
	return nil
}

// Status returns the cached state, reconciled opportunistically against the
// live transport: promoted to Connected when the gateway reports connected
// even though no ready event was observed, demoted to Disconnected when the
// gateway cannot be queried at all.
func (s *Supervisor) Status(ctx context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		wire, _, err := s.transport.SessionState(ctx)
		switch {
		case err != nil:
			slog.Warn("session state query failed, dropping session handle", "error", err)
			s.stopWatchLocked()
			s.active = false
			s.state = StateDisconnected
			s.pairingPNG = ""
			s.pairingRaw = ""
		case wire == wireConnected:
			s.state = StateConnected
			s.pairingPNG = ""
			s.pairingRaw = ""
		}
	}

	return Status{State: s.state, PairingImage: s.pairingPNG}
}

// Reconcile refreshes the cached state; used by the periodic reconciler.
func (s *Supervisor) Reconcile(ctx context.Context) {
	_ = s.Status(ctx)
}

// CurrentState returns the cached state without touching the transport.
func (s *Supervisor) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether a send may be attempted right now.
func (s *Supervisor) Connected() bool {
	return s.CurrentState() == StateConnected
}

// Send delivers one message through the session. Only valid while Connected.
func (s *Supervisor) Send(ctx context.Context, phoneNumber, message string) (string, error) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return "", ErrNotConnected
	}
	t := s.transport
	s.mu.Unlock()

	return t.SendText(ctx, phoneNumber, message)
}

// watch polls the gateway and translates wire-state transitions into
// lifecycle events. It stops on a terminal event or when cancelled.
func (s *Supervisor) watch(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	const maxMisses = 5
	misses := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		wire, code, err := s.transport.SessionState(ctx)
		if err != nil {
			misses++
			if misses < maxMisses {
				continue
			}
			s.handleEvent(Event{Kind: EventDisconnected, Reason: err.Error()})
			return
		}
		misses = 0

		switch wire {
		case wireStarting:
			// still initializing
		case wireQRCode:
			if code != "" {
				s.handleEvent(Event{Kind: EventPairingCode, PairingCode: code})
			}
		case wireConnected:
			s.handleEvent(Event{Kind: EventReady})
		case wireAuthFailure, wireError:
			s.handleEvent(Event{Kind: EventAuthFailure, Reason: wire})
			return
		case wireDisconnected:
			s.handleEvent(Event{Kind: EventDisconnected, Reason: wire})
			return
		default:
			slog.Warn("unknown gateway session state", "state", wire)
		}
	}
}

func (s *Supervisor) handleEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state = nextState(prev, ev.Kind)

	switch ev.Kind {
	case EventPairingCode:
		if s.state != StateAwaitingPairing || ev.PairingCode == s.pairingRaw {
			break
		}
		png, err := renderPairingImage(ev.PairingCode)
		if err != nil {
			slog.Error("failed to render pairing code", "error", err)
			s.state = StateError
			break
		}
		s.pairingRaw = ev.PairingCode
		s.pairingPNG = png
	case EventReady:
		s.pairingPNG = ""
		s.pairingRaw = ""
	case EventAuthFailure:
		slog.Error("session auth failure", "reason", ev.Reason)
	case EventDisconnected:
		s.stopWatchLocked()
		s.active = false
		s.pairingPNG = ""
		s.pairingRaw = ""
		if err := s.transport.PurgeCredentials(context.Background()); err != nil {
			slog.Warn("failed to purge session credentials", "error", err)
		}
	}

	if s.state != prev {
		slog.Info("session state", "state", s.state)
	}
}

func (s *Supervisor) stopWatchLocked() {
	if s.cancelWatch != nil {
		s.cancelWatch()
		s.cancelWatch = nil
	}
}

// renderPairingImage encodes the raw pairing code into a scannable PNG,
// returned as a data URL so the dashboard can drop it into an <img> tag.
func renderPairingImage(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
