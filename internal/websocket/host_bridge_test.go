package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quizlock/quizlock-backend/internal/lockdown"
	"github.com/quizlock/quizlock-backend/internal/logger"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// newTestBridge upgrades a loopback connection and returns the bridge on
// the server side plus the raw client socket playing the kiosk shell.
func newTestBridge(t *testing.T) (*HostBridge, *websocket.Conn) {
	t.Helper()
	done := make(chan struct{})
	bridgeCh := make(chan *HostBridge, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		bridgeCh <- NewHostBridge(NewConn(sock), logger.Nop())
		<-done
		sock.Close()
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(done) })

	shell, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { shell.Close() })

	select {
	case b := <-bridgeCh:
		return b, shell
	case <-time.After(2 * time.Second):
		t.Fatal("server never upgraded")
		return nil, nil
	}
}

func readCommand(t *testing.T, shell *websocket.Conn) CommandResponse {
	t.Helper()
	var cmd CommandResponse
	shell.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := shell.ReadJSON(&cmd); err != nil {
		t.Fatalf("read command: %v", err)
	}
	return cmd
}

func TestBridgeCommandAckRoundTrip(t *testing.T) {
	bridge, shell := newTestBridge(t)

	result := make(chan error, 1)
	go func() { result <- bridge.OpenRestrictedWindow(context.Background(), "quiz-1") }()

	cmd := readCommand(t, shell)
	if cmd.Event != EventCommand || cmd.Command != CommandOpenWindow || cmd.QuizID != "quiz-1" {
		t.Fatalf("command frame = %+v", cmd)
	}

	bridge.HandleAck(CommandOpenWindow, true, "")

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("OpenRestrictedWindow: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command did not resolve after ack")
	}
}

func TestBridgeRejectionAck(t *testing.T) {
	bridge, shell := newTestBridge(t)

	result := make(chan error, 1)
	go func() { result <- bridge.ReleaseRestrictions(context.Background()) }()
	readCommand(t, shell)

	bridge.HandleAck(CommandReleaseRestrictions, false, "kiosk busy")

	select {
	case err := <-result:
		if err == nil || !strings.Contains(err.Error(), "kiosk busy") {
			t.Fatalf("ReleaseRestrictions error = %v, want shell rejection", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command did not resolve after rejection")
	}
}

func TestBridgeAckForUnknownCommandIgnored(t *testing.T) {
	bridge, shell := newTestBridge(t)

	bridge.HandleAck(CommandCloseWindow, true, "")

	// The stray ack must not have poisoned the pending-command state.
	result := make(chan error, 1)
	go func() { result <- bridge.CloseRestrictedWindow(context.Background()) }()
	readCommand(t, shell)
	bridge.HandleAck(CommandCloseWindow, true, "")

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("CloseRestrictedWindow: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command did not resolve")
	}
}

func TestBridgeCloseFailsPendingCommand(t *testing.T) {
	bridge, shell := newTestBridge(t)

	result := make(chan error, 1)
	go func() { result <- bridge.OpenRestrictedWindow(context.Background(), "quiz-1") }()
	readCommand(t, shell)

	bridge.Close()

	select {
	case err := <-result:
		if !errors.Is(err, ErrBridgeClosed) {
			t.Fatalf("pending command error = %v, want ErrBridgeClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending command survived Close")
	}

	if err := bridge.ReleaseRestrictions(context.Background()); !errors.Is(err, ErrBridgeClosed) {
		t.Errorf("command after Close = %v, want ErrBridgeClosed", err)
	}
}

func TestBridgeAbandonedAckNeverBlocks(t *testing.T) {
	bridge, _ := newTestBridge(t)

	// A waiter that left through its timeout branch leaves a buffered
	// ack channel behind until its deferred cleanup runs. Acks landing
	// in that window fill the buffer; nothing may block on it.
	abandoned := make(chan error, 1)
	bridge.mu.Lock()
	bridge.acks[CommandCloseWindow] = abandoned
	bridge.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		bridge.HandleAck(CommandCloseWindow, true, "")
		bridge.HandleAck(CommandCloseWindow, true, "")
		bridge.Close()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("ack resolution blocked on a full buffer")
	}
}

func TestBridgeHostEventFanOut(t *testing.T) {
	bridge, _ := newTestBridge(t)

	blurs := 0
	var chords []string
	blurSub := bridge.OnBlur(func() { blurs++ })
	bridge.OnForbiddenKeyChord(func(chord string) { chords = append(chords, chord) })

	bridge.DispatchHostEvent(string(lockdown.EventBlur), "")
	bridge.DispatchHostEvent(string(lockdown.EventKeyChord), "Alt+Tab")

	if blurs != 1 {
		t.Errorf("blur callbacks = %d, want 1", blurs)
	}
	if len(chords) != 1 || chords[0] != "Alt+Tab" {
		t.Errorf("chords = %v, want [Alt+Tab]", chords)
	}

	blurSub.Unsubscribe()
	bridge.DispatchHostEvent(string(lockdown.EventBlur), "")
	if blurs != 1 {
		t.Errorf("blur fired after Unsubscribe, count = %d", blurs)
	}
}
