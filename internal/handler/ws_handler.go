package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quizlock/quizlock-backend/internal/lockdown"
	"github.com/quizlock/quizlock-backend/internal/middleware"
	"github.com/quizlock/quizlock-backend/internal/model"
	"github.com/quizlock/quizlock-backend/internal/service"
	ws "github.com/quizlock/quizlock-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs the live quiz channel: one websocket per attempt, backed
// by an in-process lockdown session that owns the countdown, the violation
// escalation, and the exactly-once submission.
type WSHandler struct {
	attemptService    *service.AttemptService
	quizService       *service.QuizService
	submissionService *service.SubmissionService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	attemptService *service.AttemptService,
	quizService *service.QuizService,
	submissionService *service.SubmissionService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		attemptService:    attemptService,
		quizService:       quizService,
		submissionService: submissionService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// liveSubmitter strips the violation log from the live session's submit
// request. Violations reach the persistence queue one at a time as they
// are classified, so re-sending the full log at submit would duplicate
// every row.
type liveSubmitter struct {
	inner lockdown.Submitter
}

func (w liveSubmitter) Submit(ctx context.Context, req lockdown.SubmitRequest) (lockdown.SubmitResult, error) {
	req.Violations = nil
	return w.inner.Submit(ctx, req)
}

// QuizSocket godoc
// WS /ws/v1/student/quizzes/:quiz_id?token=...
// Upgrades to WebSocket and drives the attempt until submission or
// disconnect. The student must have joined the quiz first.
func (h *WSHandler) QuizSocket(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quiz ID"})
		return
	}

	sock, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(sock)
	defer conn.Close()

	studentID := claims.UserID
	ctx := c.Request.Context()

	attempt, err := h.attemptService.Get(ctx, quizID, studentID)
	if err != nil {
		conn.SendError("no attempt for this quiz, join first")
		return
	}
	if attempt.Status != model.AttemptStatusInProgress {
		conn.SendError("attempt already submitted")
		return
	}

	payload, err := h.quizService.GetQuizPayload(ctx, quizID)
	if err != nil {
		conn.SendError("quiz is not available")
		return
	}

	remaining := payload.Duration*60 - int(time.Since(attempt.StartedAt).Seconds())
	if remaining <= 0 {
		// The timeout sweeper finalizes this attempt from the autosave buffer.
		conn.SendError("quiz time has expired")
		return
	}

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("quiz_id", quizID.String()).
		Logger()

	var host lockdown.HostController
	var bridge *ws.HostBridge
	if payload.LockdownMode {
		bridge = ws.NewHostBridge(conn, wsLog)
		host = bridge
	}

	session := lockdown.NewSession(lockdown.Config{
		QuizID:          quizID,
		StudentID:       studentID,
		Lockdown:        payload.LockdownMode,
		DurationSeconds: remaining,
		QuestionCount:   len(payload.Questions),
	}, host, liveSubmitter{inner: h.submissionService}, wsLog)

	h.serveAttempt(ctx, conn, session, bridge, attempt.ID, quizID, studentID, wsLog)
}

// serveAttempt drives one connected attempt until submission or
// disconnect. The read pump starts before the session does: opening the
// restricted window blocks on a host ack, and that ack arrives over this
// same connection.
func (h *WSHandler) serveAttempt(
	ctx context.Context,
	conn *ws.Conn,
	session *lockdown.Session,
	bridge *ws.HostBridge,
	attemptID, quizID uuid.UUID,
	studentID int,
	log zerolog.Logger,
) {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		h.readLoop(ctx, conn, session, bridge, quizID, studentID, log)
	}()

	if err := session.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start lockdown session")
		conn.SendError("could not open restricted window")
		if bridge != nil {
			bridge.Close()
		}
		conn.Close()
		<-readDone
		return
	}

	// Replay the autosave buffer so a resumed attempt starts with its
	// previous answers.
	saved, err := h.attemptService.AutosavedAnswers(ctx, quizID, studentID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load autosaved answers")
	}
	for _, a := range saved {
		_ = session.RecordAnswer(lockdown.Answer{
			QuestionID:   a.QuestionID,
			OptionID:     a.OptionID,
			TextResponse: a.TextResponse,
		})
	}

	snapshots, unsubscribe := session.Subscribe()
	defer unsubscribe()

	go h.pumpSnapshots(conn, snapshots, attemptID, log)

	<-readDone

	// Disconnect or terminal state. The server-side attempt survives; a
	// reconnect resumes it from the autosave buffer.
	if bridge != nil {
		bridge.Close()
	}
	session.Stop()
	log.Debug().Msg("WebSocket closed")
}

// pumpSnapshots pushes every session snapshot to the client and persists
// newly classified violations as they appear. The channel closes when the
// session terminates.
func (h *WSHandler) pumpSnapshots(conn *ws.Conn, snapshots <-chan lockdown.Snapshot, attemptID uuid.UUID, log zerolog.Logger) {
	persisted := 0
	for snap := range snapshots {
		if n := len(snap.Violations); n > persisted {
			h.submissionService.EnqueueViolations(context.Background(), attemptID, snap.Violations[persisted:n])
			persisted = n
		}
		if err := conn.Send(ws.StateResponse{Event: ws.EventState, State: snap}); err != nil {
			log.Debug().Err(err).Msg("Snapshot push failed, client gone")
			return
		}
	}
}

func (h *WSHandler) readLoop(
	ctx context.Context,
	conn *ws.Conn,
	session *lockdown.Session,
	bridge *ws.HostBridge,
	quizID uuid.UUID,
	studentID int,
	log zerolog.Logger,
) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			conn.SendError("malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAnswer:
			h.handleAnswer(ctx, conn, session, data, quizID, studentID, log)

		case ws.ActionPageEvent:
			var req ws.PageEventRequest
			if err := json.Unmarshal(data, &req); err != nil {
				conn.SendError("malformed page event")
				continue
			}
			session.ReportRaw(lockdown.RawEvent{
				Source: lockdown.SourcePage,
				Type:   lockdown.EventType(req.Type),
				Chord:  req.Chord,
			})

		case ws.ActionHostEvent:
			var req ws.HostEventRequest
			if err := json.Unmarshal(data, &req); err != nil {
				conn.SendError("malformed host event")
				continue
			}
			if bridge != nil {
				bridge.DispatchHostEvent(req.Type, req.Chord)
			}

		case ws.ActionHostAck:
			var req ws.HostAckRequest
			if err := json.Unmarshal(data, &req); err != nil {
				conn.SendError("malformed host ack")
				continue
			}
			if bridge != nil {
				bridge.HandleAck(req.Command, req.OK, req.Error)
			}

		case ws.ActionSubmit:
			var req ws.SubmitRequest
			if err := json.Unmarshal(data, &req); err != nil {
				conn.SendError("malformed submit request")
				continue
			}
			if err := session.Submit(lockdown.ReasonManual, req.Confirmed); err != nil {
				switch {
				case errors.Is(err, lockdown.ErrConfirmationRequired):
					conn.SendError("unanswered questions, confirmation required")
				case errors.Is(err, lockdown.ErrSubmitInFlight):
					conn.SendError("submission already in flight")
				default:
					conn.SendError("attempt already finished")
				}
			}

		case ws.ActionPing:
			conn.Send(ws.PongResponse{Event: ws.EventPong})

		default:
			conn.SendError("unknown action")
		}
	}
}

// handleAnswer records the answer in the live session and mirrors it into
// the Redis autosave buffer, so a reload or a sweeper finalization sees
// the same state the session held.
func (h *WSHandler) handleAnswer(
	ctx context.Context,
	conn *ws.Conn,
	session *lockdown.Session,
	data []byte,
	quizID uuid.UUID,
	studentID int,
	log zerolog.Logger,
) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.SendError("malformed answer")
		return
	}

	if err := session.RecordAnswer(lockdown.Answer{
		QuestionID:   req.QuestionID,
		OptionID:     req.OptionID,
		TextResponse: req.TextResponse,
	}); err != nil {
		conn.SendError("attempt already finished")
		return
	}

	if err := h.attemptService.AutosaveAnswer(ctx, quizID, studentID, model.AnswerPayload{
		QuestionID:   req.QuestionID,
		OptionID:     req.OptionID,
		TextResponse: req.TextResponse,
	}); err != nil {
		log.Warn().Err(err).Str("question_id", req.QuestionID).Msg("Autosave failed")
	}
}
