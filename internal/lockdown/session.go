package lockdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Phase is the escalation state of one quiz attempt.
type Phase string

const (
	PhaseActive     Phase = "ACTIVE"
	PhaseWarning    Phase = "WARNING"
	PhaseEscalating Phase = "ESCALATING"
	PhaseSubmitting Phase = "SUBMITTING"
	PhaseTerminated Phase = "TERMINATED"
)

const (
	// MaxWarnings is the violation threshold that forces submission.
	MaxWarnings = 3
	// WarningDisplay is how long a transient warning stays up before the
	// phase reverts to Active. The warning counter is never reset.
	WarningDisplay = 4 * time.Second
	// EscalationGrace is the delay between crossing the threshold and the
	// forced submission, so the student sees the terminal notification.
	EscalationGrace = 2 * time.Second
	// ConfirmDisplay is the post-submission confirmation time before the
	// restricted window is closed (or the client navigates away).
	ConfirmDisplay = 4 * time.Second

	submitTimeout = 30 * time.Second
)

var (
	// ErrConfirmationRequired is returned for a manual submit with
	// unanswered questions that was not explicitly confirmed. The timeout
	// path never asks for confirmation.
	ErrConfirmationRequired = errors.New("unanswered questions, confirmation required")

	// ErrAttemptFinished is returned for mutations after the attempt
	// reached Submitting or Terminated.
	ErrAttemptFinished = errors.New("attempt already finished")
)

// Snapshot is the observable state pushed to subscribers on every change.
type Snapshot struct {
	Phase         Phase         `json:"phase"`
	WarningCount  int           `json:"warning_count"`
	MaxWarnings   int           `json:"max_warnings"`
	LastWarning   string        `json:"last_warning,omitempty"`
	TimeRemaining int           `json:"time_remaining"`
	Violations    []Violation   `json:"violations"`
	Result        *SubmitResult `json:"result,omitempty"`
	SubmitError   string        `json:"submit_error,omitempty"`
}

// Config fixes the identity and rules of one attempt at session creation.
// Lockdown cannot be toggled afterwards.
type Config struct {
	QuizID          uuid.UUID
	StudentID       int
	Lockdown        bool
	DurationSeconds int
	QuestionCount   int
}

// Session owns one quiz attempt: the answers, the append-only violation
// log, the countdown, and the escalation state machine.
//
// All mutable state is confined to a single goroutine. External calls post
// closures into the mailbox; the countdown timer and the violation stream
// are just two more producers into the same queue, which makes the
// submit-at-most-once invariant structural rather than lock-based.
type Session struct {
	cfg     Config
	host    HostController
	coord   *Coordinator
	release *ReleaseProtocol
	log     zerolog.Logger

	// Injectable time hooks for deterministic tests.
	now   func() time.Time
	after func(time.Duration, func()) *time.Timer
	sleep func(time.Duration)

	mailbox  chan func()
	done     chan struct{}
	stopOnce sync.Once

	// Actor-owned state. Touched only from the run loop.
	phase        Phase
	warningCount int
	lastWarning  string
	remaining    int
	answers      map[string]Answer
	violations   []Violation
	warningSeq   int
	warningTimer *time.Timer
	graceTimer   *time.Timer
	tickTimer    *time.Timer
	pendingReq   *SubmitRequest
	result       *SubmitResult
	submitErr    error
	hostSubs     []Subscription

	subsMu sync.Mutex
	subs   map[chan Snapshot]struct{}
}

// NewSession builds a session for one attempt. host may be nil when the
// quiz does not run in lockdown mode.
func NewSession(cfg Config, host HostController, submitter Submitter, log zerolog.Logger) *Session {
	s := &Session{
		cfg:     cfg,
		host:    host,
		coord:   NewCoordinator(submitter, log),
		log:     log.With().Str("component", "lockdown_session").Str("quiz_id", cfg.QuizID.String()).Int("student_id", cfg.StudentID).Logger(),
		now:     time.Now,
		after:   time.AfterFunc,
		sleep:   time.Sleep,
		mailbox: make(chan func(), 64),
		done:    make(chan struct{}),
		phase:   PhaseActive,
		answers: make(map[string]Answer),
		subs:    make(map[chan Snapshot]struct{}),
	}
	s.remaining = cfg.DurationSeconds
	if host != nil {
		s.release = NewReleaseProtocol(host, ConfirmDisplay, log)
	}
	return s
}

// Start launches the actor loop, opens the restricted window (lockdown
// mode only), registers host event callbacks, and begins the countdown.
// The loop is live before the open command goes out: host transports
// resolve that command's ack from a concurrent reader, and that reader
// may be posting into the session at the same time. A failed open tears
// the session down.
func (s *Session) Start(ctx context.Context) error {
	go s.run()

	if s.cfg.Lockdown && s.host != nil {
		if err := s.host.OpenRestrictedWindow(ctx, s.cfg.QuizID.String()); err != nil {
			s.Stop()
			return fmt.Errorf("open restricted window: %w", err)
		}
		s.post(func() {
			s.hostSubs = []Subscription{
				s.host.OnBlur(func() { s.ReportRaw(RawEvent{Source: SourceHost, Type: EventBlur}) }),
				s.host.OnLeaveFullscreen(func() { s.ReportRaw(RawEvent{Source: SourceHost, Type: EventLeaveFullscreen}) }),
				s.host.OnMinimizeAttempt(func() { s.ReportRaw(RawEvent{Source: SourceHost, Type: EventMinimize}) }),
				s.host.OnCloseAttempt(func() { s.ReportRaw(RawEvent{Source: SourceHost, Type: EventCloseAttempt}) }),
				s.host.OnForbiddenKeyChord(func(chord string) {
					s.ReportRaw(RawEvent{Source: SourceHost, Type: EventKeyChord, Chord: chord})
				}),
			}
		})
	}

	s.post(func() { s.scheduleTick() })
	return nil
}

func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.mailbox:
			fn()
		}
	}
}

// post enqueues fn for the actor loop. Returns false once the session is
// terminated; the closure is then dropped. A closure still queued when
// teardown lands is dropped too, so anyone waiting on a reply channel
// must also select on done.
func (s *Session) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	case s.mailbox <- fn:
		return true
	}
}

// RecordAnswer stores or clears one answer. Answers stay mutable until the
// attempt reaches Submitting.
func (s *Session) RecordAnswer(a Answer) error {
	errCh := make(chan error, 1)
	posted := s.post(func() {
		if s.phase == PhaseSubmitting || s.phase == PhaseTerminated {
			errCh <- ErrAttemptFinished
			return
		}
		if a.OptionID == "" && a.TextResponse == "" {
			delete(s.answers, a.QuestionID)
		} else {
			s.answers[a.QuestionID] = a
		}
		errCh <- nil
	})
	if !posted {
		return ErrAttemptFinished
	}
	select {
	case err := <-errCh:
		return err
	case <-s.done:
		return ErrAttemptFinished
	}
}

// ReportRaw classifies a raw event and feeds it to the state machine.
// Malformed events are dropped silently; classification never suspends.
func (s *Session) ReportRaw(ev RawEvent) {
	if !s.cfg.Lockdown {
		return
	}
	v, err := Classify(ev, s.now())
	if err != nil {
		s.log.Debug().Str("type", string(ev.Type)).Str("chord", ev.Chord).Msg("Dropping unclassifiable raw event")
		return
	}
	s.post(func() { s.handleViolation(v) })
}

// Submit requests a manual submission, or retries a failed one.
// A manual submit with unanswered questions requires confirmed=true.
func (s *Session) Submit(reason SubmitReason, confirmed bool) error {
	errCh := make(chan error, 1)
	posted := s.post(func() {
		switch s.phase {
		case PhaseActive, PhaseWarning:
			if reason == ReasonManual && !confirmed && len(s.answers) < s.cfg.QuestionCount {
				errCh <- ErrConfirmationRequired
				return
			}
			s.beginSubmit(reason)
			errCh <- nil
		case PhaseSubmitting:
			if s.submitErr != nil {
				s.retrySubmit()
				errCh <- nil
				return
			}
			errCh <- ErrSubmitInFlight
		default:
			errCh <- ErrAttemptFinished
		}
	})
	if !posted {
		return ErrAttemptFinished
	}
	select {
	case err := <-errCh:
		return err
	case <-s.done:
		return ErrAttemptFinished
	}
}

// Subscribe returns a channel receiving a snapshot on every state change,
// starting with the current one. The cancel func must be called at
// teardown; no snapshot is delivered after it returns.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	cancel := func() {
		s.subsMu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.subsMu.Unlock()
	}
	posted := s.post(func() {
		s.subsMu.Lock()
		s.subs[ch] = struct{}{}
		s.deliverLocked(ch, s.snapshot())
		s.subsMu.Unlock()
	})
	if !posted {
		close(ch)
		return ch, func() {}
	}
	return ch, cancel
}

// Stop tears the session down: host callbacks unsubscribed, timers
// cancelled, subscribers closed. Safe to call more than once.
func (s *Session) Stop() {
	s.post(func() { s.teardown() })
}

func (s *Session) handleViolation(v Violation) {
	// Always logged for audit, even after escalation began.
	s.violations = append(s.violations, v)

	if s.phase != PhaseActive && s.phase != PhaseWarning {
		// Already being force-submitted. Must not re-trigger.
		return
	}

	s.warningCount++

	if s.warningCount >= MaxWarnings {
		s.phase = PhaseEscalating
		s.lastWarning = fmt.Sprintf("Violation limit reached (%d/%d). Your quiz will be submitted automatically.", s.warningCount, MaxWarnings)
		s.stopTimer(&s.warningTimer)
		s.graceTimer = s.after(EscalationGrace, func() {
			s.post(func() { s.beginSubmit(ReasonAuto) })
		})
		s.log.Warn().Str("kind", string(v.Kind)).Int("count", s.warningCount).Msg("Violation threshold crossed, escalating")
		s.broadcast()
		return
	}

	s.phase = PhaseWarning
	s.lastWarning = fmt.Sprintf("%s (warning %d/%d)", v.Message, s.warningCount, MaxWarnings)
	s.warningSeq++
	seq := s.warningSeq
	s.stopTimer(&s.warningTimer)
	s.warningTimer = s.after(WarningDisplay, func() {
		s.post(func() {
			// A newer warning or a phase change supersedes this revert.
			if s.phase == PhaseWarning && s.warningSeq == seq {
				s.phase = PhaseActive
				s.broadcast()
			}
		})
	})
	s.log.Info().Str("kind", string(v.Kind)).Int("count", s.warningCount).Msg("Violation recorded")
	s.broadcast()
}

func (s *Session) scheduleTick() {
	s.tickTimer = s.after(time.Second, func() {
		s.post(func() { s.tick() })
	})
}

func (s *Session) tick() {
	if s.phase == PhaseSubmitting || s.phase == PhaseTerminated {
		return
	}
	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining <= 0 {
		// Timer expiry forces submission directly, with no grace delay and
		// no unanswered-questions confirmation. A no-op if escalation
		// already claimed the submission.
		if s.phase == PhaseActive || s.phase == PhaseWarning {
			s.beginSubmit(ReasonTimeout)
		}
		return
	}
	s.scheduleTick()
}

// beginSubmit is the single atomic check-and-set into Submitting. Both the
// threshold path and the timeout path land here on the actor goroutine, so
// a second entrant observes the phase change made by the first.
func (s *Session) beginSubmit(reason SubmitReason) {
	if s.phase == PhaseSubmitting || s.phase == PhaseTerminated {
		return
	}
	s.phase = PhaseSubmitting
	s.stopTimers()

	req := SubmitRequest{
		QuizID:     s.cfg.QuizID,
		StudentID:  s.cfg.StudentID,
		Answers:    s.answerList(),
		Violations: append([]Violation(nil), s.violations...),
		Reason:     reason,
	}
	s.pendingReq = &req
	s.broadcast()
	s.dispatchSubmit()
}

// retrySubmit re-invokes the coordinator after a retryable failure. The
// phase never left Submitting, so the attempt cannot slide back into a
// cheating-tolerant state.
func (s *Session) retrySubmit() {
	s.submitErr = nil
	s.broadcast()
	s.dispatchSubmit()
}

func (s *Session) dispatchSubmit() {
	req := *s.pendingReq
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		res, err := s.coord.Submit(ctx, req)
		s.post(func() { s.finishSubmit(res, err) })
	}()
}

func (s *Session) finishSubmit(res SubmitResult, err error) {
	if s.phase == PhaseTerminated {
		return
	}

	if err != nil {
		s.submitErr = err
		if errors.Is(err, ErrAlreadyAttempted) {
			// Resubmitting cannot succeed. Terminal failure.
			s.log.Error().Err(err).Msg("Duplicate attempt rejected by scoring service")
			s.teardown()
			return
		}
		// Retryable: stay in Submitting so a manual retry can re-invoke
		// the coordinator.
		s.log.Warn().Err(err).Msg("Submission failed, awaiting retry")
		s.broadcast()
		return
	}

	s.result = &res
	s.submitErr = nil
	s.broadcast()
	go s.unwind()
}

// unwind runs the lockdown release protocol (or just the confirmation
// delay outside lockdown mode) and then terminates the session.
func (s *Session) unwind() {
	if s.cfg.Lockdown && s.release != nil {
		if err := s.release.Run(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("Lockdown release failed")
		}
	} else {
		s.sleep(ConfirmDisplay)
	}
	s.Stop()
}

func (s *Session) teardown() {
	s.phase = PhaseTerminated
	for _, sub := range s.hostSubs {
		sub.Unsubscribe()
	}
	s.hostSubs = nil
	s.stopTimers()
	s.broadcast()

	s.subsMu.Lock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	s.subsMu.Unlock()

	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Session) stopTimers() {
	s.stopTimer(&s.warningTimer)
	s.stopTimer(&s.graceTimer)
	s.stopTimer(&s.tickTimer)
}

func (s *Session) stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (s *Session) answerList() []Answer {
	out := make([]Answer, 0, len(s.answers))
	for _, a := range s.answers {
		out = append(out, a)
	}
	return out
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		Phase:         s.phase,
		WarningCount:  s.warningCount,
		MaxWarnings:   MaxWarnings,
		LastWarning:   s.lastWarning,
		TimeRemaining: s.remaining,
		Violations:    append([]Violation(nil), s.violations...),
		Result:        s.result,
	}
	if s.submitErr != nil {
		snap.SubmitError = s.submitErr.Error()
	}
	return snap
}

func (s *Session) broadcast() {
	snap := s.snapshot()
	s.subsMu.Lock()
	for ch := range s.subs {
		s.deliverLocked(ch, snap)
	}
	s.subsMu.Unlock()
}

// deliverLocked sends without blocking; a slow subscriber loses its oldest
// snapshot rather than stalling the state machine.
func (s *Session) deliverLocked(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
