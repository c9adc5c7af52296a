package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeTransport struct {
	mu sync.Mutex

	stateFn  func() (string, string, error)
	startErr error
	sendErr  error

	starts   int
	freshes  []bool
	logouts  int
	purges   int
	sent     []string
	remoteID string
}

func (f *fakeTransport) StartSession(ctx context.Context, fresh bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.freshes = append(f.freshes, fresh)
	return f.startErr
}

func (f *fakeTransport) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return nil
}

func (f *fakeTransport) PurgeCredentials(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purges++
	return nil
}

func (f *fakeTransport) SessionState(ctx context.Context) (string, string, error) {
	f.mu.Lock()
	fn := f.stateFn
	f.mu.Unlock()
	if fn == nil {
		return wireStarting, "", nil
	}
	return fn()
}

func (f *fakeTransport) SendText(ctx context.Context, phone, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, phone)
	if f.remoteID == "" {
		return "remote-1", nil
	}
	return f.remoteID, nil
}

func (f *fakeTransport) setState(fn func() (string, string, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateFn = fn
}

func (f *fakeTransport) counts() (starts, logouts, purges int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.logouts, f.purges
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestNextState(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cur  State
		kind EventKind
		want State
	}{
		{"pairing while initializing", StateInitializing, EventPairingCode, StateAwaitingPairing},
		{"pairing refresh while pairing", StateAwaitingPairing, EventPairingCode, StateAwaitingPairing},
		{"stale pairing while connected", StateConnected, EventPairingCode, StateConnected},
		{"stale pairing while disconnected", StateDisconnected, EventPairingCode, StateDisconnected},
		{"ready from pairing", StateAwaitingPairing, EventReady, StateConnected},
		{"ready from initializing", StateInitializing, EventReady, StateConnected},
		{"auth failure", StateAwaitingPairing, EventAuthFailure, StateError},
		{"auth failure while connected", StateConnected, EventAuthFailure, StateError},
		{"disconnected from connected", StateConnected, EventDisconnected, StateDisconnected},
		{"disconnected while disconnected", StateDisconnected, EventDisconnected, StateDisconnected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := nextState(tc.cur, tc.kind); got != tc.want {
				t.Fatalf("nextState(%q, %d) = %q, want %q", tc.cur, tc.kind, got, tc.want)
			}
		})
	}
}

func TestConnect_StartsOnlyFromDisconnectedOrError(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSupervisor(ft, time.Hour)

	started, err := s.Connect(context.Background(), false)
	if err != nil || !started {
		t.Fatalf("expected started=true err=nil, got started=%v err=%v", started, err)
	}
	if got := s.CurrentState(); got != StateInitializing {
		t.Fatalf("expected state %q, got %q", StateInitializing, got)
	}

	// A second connect while initializing is a no-op.
	started, err = s.Connect(context.Background(), false)
	if err != nil || started {
		t.Fatalf("expected no-op, got started=%v err=%v", started, err)
	}

	if starts, _, _ := ft.counts(); starts != 1 {
		t.Fatalf("expected 1 session start, got %d", starts)
	}
}

func TestConnect_StartFailureMapsToError(t *testing.T) {
	ft := &fakeTransport{startErr: errors.New("browser crashed")}
	s := NewSupervisor(ft, time.Hour)

	started, err := s.Connect(context.Background(), false)
	if err == nil || started {
		t.Fatalf("expected failure, got started=%v err=%v", started, err)
	}
	if got := s.CurrentState(); got != StateError {
		t.Fatalf("expected state %q, got %q", StateError, got)
	}

	// Error state allows a manual retry.
	ft.mu.Lock()
	ft.startErr = nil
	ft.mu.Unlock()

	started, err = s.Connect(context.Background(), false)
	if err != nil || !started {
		t.Fatalf("expected retry to start, got started=%v err=%v", started, err)
	}
}

func TestConnect_FreshSessionPurgesCredentials(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSupervisor(ft, time.Hour)

	if _, err := s.Connect(context.Background(), true); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	if _, _, purges := ft.counts(); purges != 1 {
		t.Fatalf("expected 1 credential purge for fresh connect, got %d", purges)
	}
	if got := ft.freshes[0]; !got {
		t.Fatalf("expected fresh=true passed to transport")
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSupervisor(ft, time.Hour)

	if _, err := s.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatalf("first Disconnect returned error: %v", err)
	}
	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatalf("second Disconnect returned error: %v", err)
	}

	if got := s.CurrentState(); got != StateDisconnected {
		t.Fatalf("expected state %q, got %q", StateDisconnected, got)
	}

	_, logouts, purges := ft.counts()
	if logouts != 1 {
		t.Fatalf("expected 1 logout (only while a session existed), got %d", logouts)
	}
	if purges != 2 {
		t.Fatalf("expected credentials purged on every disconnect, got %d", purges)
	}
}

func TestWatch_PairingCodeRendersImage(t *testing.T) {
	ft := &fakeTransport{}
	ft.setState(func() (string, string, error) { return wireQRCode, "pairing-payload", nil })
	s := NewSupervisor(ft, 5*time.Millisecond)

	if _, err := s.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return s.CurrentState() == StateAwaitingPairing })

	st := s.Status(context.Background())
	if st.State != StateAwaitingPairing {
		t.Fatalf("expected state %q, got %q", StateAwaitingPairing, st.State)
	}
	if !strings.HasPrefix(st.PairingImage, "data:image/png;base64,") {
		t.Fatalf("expected PNG data URL, got %q", st.PairingImage)
	}

	// Pairing completes; the image must be discarded.
	ft.setState(func() (string, string, error) { return wireConnected, "", nil })

	waitFor(t, 2*time.Second, func() bool { return s.CurrentState() == StateConnected })

	if st := s.Status(context.Background()); st.PairingImage != "" {
		t.Fatalf("expected pairing image cleared after ready, got %q", st.PairingImage)
	}
}

func TestStatus_PromotesWhenTransportReportsConnected(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSupervisor(ft, time.Hour)

	if _, err := s.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if got := s.CurrentState(); got != StateInitializing {
		t.Fatalf("expected cached state %q, got %q", StateInitializing, got)
	}

	// The transport is connected even though no ready event fired yet.
	ft.setState(func() (string, string, error) { return wireConnected, "", nil })

	st := s.Status(context.Background())
	if st.State != StateConnected {
		t.Fatalf("expected reconciled state %q, got %q", StateConnected, st.State)
	}
	if st.PairingImage != "" {
		t.Fatalf("expected no pairing image, got %q", st.PairingImage)
	}

	if st := s.Status(context.Background()); st.State != StateConnected {
		t.Fatalf("expected state to stay %q, got %q", StateConnected, st.State)
	}
}

func TestStatus_DemotesWhenTransportQueryFails(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSupervisor(ft, time.Hour)

	if _, err := s.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	ft.setState(func() (string, string, error) { return "", "", errors.New("gateway down") })

	st := s.Status(context.Background())
	if st.State != StateDisconnected {
		t.Fatalf("expected demotion to %q, got %q", StateDisconnected, st.State)
	}

	// Session handle was dropped; no further transport queries happen.
	ft.setState(func() (string, string, error) {
		t.Fatalf("did not expect another state query")
		return "", "", nil
	})
	if st := s.Status(context.Background()); st.State != StateDisconnected {
		t.Fatalf("expected state to stay %q, got %q", StateDisconnected, st.State)
	}
}

func TestWatch_AuthFailureSetsError(t *testing.T) {
	ft := &fakeTransport{}
	ft.setState(func() (string, string, error) { return wireAuthFailure, "", nil })
	s := NewSupervisor(ft, 5*time.Millisecond)

	if _, err := s.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return s.CurrentState() == StateError })
}

func TestWatch_DisconnectPurgesCredentials(t *testing.T) {
	ft := &fakeTransport{}
	ft.setState(func() (string, string, error) { return wireDisconnected, "", nil })
	s := NewSupervisor(ft, 5*time.Millisecond)

	if _, err := s.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return s.CurrentState() == StateDisconnected })
	waitFor(t, 2*time.Second, func() bool {
		_, _, purges := ft.counts()
		return purges >= 1
	})
}

func TestSend_RequiresConnectedState(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSupervisor(ft, time.Hour)

	if _, err := s.Send(context.Background(), "5511999999999", "hi"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	if _, err := s.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	ft.setState(func() (string, string, error) { return wireConnected, "", nil })
	s.Reconcile(context.Background())

	remoteID, err := s.Send(context.Background(), "5511999999999", "hi")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if remoteID != "remote-1" {
		t.Fatalf("expected remote id, got %q", remoteID)
	}
	if !s.Connected() {
		t.Fatalf("expected Connected()=true")
	}
}
