package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quizlock/quizlock-backend/internal/lockdown"
	"github.com/quizlock/quizlock-backend/internal/logger"
	"github.com/quizlock/quizlock-backend/internal/service"
	ws "github.com/quizlock/quizlock-backend/internal/websocket"
	"github.com/redis/go-redis/v9"
)

func newCacheOnlyWSHandler(t *testing.T) *WSHandler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	quizService := service.NewQuizService(nil, nil, rdb, logger.Nop())
	return NewWSHandler(
		service.NewAttemptService(nil, nil, quizService, rdb, logger.Nop()),
		quizService,
		service.NewSubmissionService(nil, quizService, rdb, logger.Nop()),
		logger.Nop(),
		nil,
	)
}

// The restricted window opens over the same socket the student is
// connected on: the open command blocks on the shell's ack, and that ack
// arrives through this connection's read loop. The session must come up
// with a shell that acks only when asked.
func TestServeAttemptOpensWindowOverOwnSocket(t *testing.T) {
	h := newCacheOnlyWSHandler(t)
	quizID := uuid.New()
	attemptID := uuid.New()

	served := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := ws.NewConn(sock)
		defer conn.Close()

		bridge := ws.NewHostBridge(conn, logger.Nop())
		session := lockdown.NewSession(lockdown.Config{
			QuizID:          quizID,
			StudentID:       7,
			Lockdown:        true,
			DurationSeconds: 600,
			QuestionCount:   1,
		}, bridge, liveSubmitter{inner: h.submissionService}, logger.Nop())

		h.serveAttempt(r.Context(), conn, session, bridge, attemptID, quizID, 7, logger.Nop())
		close(served)
	}))
	defer srv.Close()

	shell, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer shell.Close()

	// Play the kiosk shell: ack the open command, then wait for the
	// first state push proving the session started.
	sawState := false
	for !sawState {
		var msg map[string]interface{}
		shell.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := shell.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch msg["event"] {
		case string(ws.EventCommand):
			if msg["command"] != ws.CommandOpenWindow {
				t.Fatalf("unexpected command %v", msg["command"])
			}
			if err := shell.WriteJSON(ws.HostAckRequest{
				Action:  ws.ActionHostAck,
				Command: ws.CommandOpenWindow,
				OK:      true,
			}); err != nil {
				t.Fatalf("write ack: %v", err)
			}
		case string(ws.EventError):
			t.Fatalf("session failed to start: %v", msg["error"])
		case string(ws.EventState):
			sawState = true
		}
	}

	shell.Close()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("serveAttempt did not return after disconnect")
	}
}
