package lockdown

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// fakeScheduler captures timer registrations so tests can fire them
// deterministically. Timers are matched by duration: ticks run at 1s,
// the escalation grace at 2s, the warning display at 4s.
type fakeScheduler struct {
	mu      sync.Mutex
	pending []scheduledCall
}

type scheduledCall struct {
	d  time.Duration
	fn func()
}

func (s *fakeScheduler) after(d time.Duration, fn func()) *time.Timer {
	s.mu.Lock()
	s.pending = append(s.pending, scheduledCall{d, fn})
	s.mu.Unlock()
	return time.NewTimer(time.Hour)
}

func (s *fakeScheduler) fire(t *testing.T, d time.Duration) {
	t.Helper()
	s.mu.Lock()
	var fn func()
	for i, sc := range s.pending {
		if sc.d == d {
			fn = sc.fn
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if fn == nil {
		t.Fatalf("no pending timer with duration %v", d)
	}
	fn()
}

func (s *fakeScheduler) pendingCount(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sc := range s.pending {
		if sc.d == d {
			n++
		}
	}
	return n
}

func newTestSession(t *testing.T, cfg Config, host *fakeHost, sub *stubSubmitter) (*Session, *fakeScheduler) {
	t.Helper()
	var hc HostController
	if host != nil {
		hc = host
	}
	s := NewSession(cfg, hc, sub, zerolog.Nop())
	sched := &fakeScheduler{}
	s.after = sched.after
	s.sleep = func(time.Duration) {}
	if s.release != nil {
		s.release.sleep = func(time.Duration) {}
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	drain(s)
	return s, sched
}

func lockdownConfig() Config {
	return Config{
		QuizID:          uuid.New(),
		StudentID:       42,
		Lockdown:        true,
		DurationSeconds: 600,
		QuestionCount:   3,
	}
}

// drain waits for the actor loop to process everything enqueued so far.
func drain(s *Session) {
	done := make(chan struct{})
	if s.post(func() { close(done) }) {
		<-done
	}
}

func currentSnapshot(s *Session) Snapshot {
	ch := make(chan Snapshot, 1)
	if !s.post(func() { ch <- s.snapshot() }) {
		return Snapshot{Phase: PhaseTerminated}
	}
	return <-ch
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func waitTerminated(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
}

func reportBlur(s *Session) {
	s.ReportRaw(RawEvent{Source: SourcePage, Type: EventBlur})
}

func (s *stubSubmitter) lastCall() SubmitRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func TestSessionWarningFlow(t *testing.T) {
	sub := &stubSubmitter{}
	s, sched := newTestSession(t, lockdownConfig(), &fakeHost{}, sub)

	reportBlur(s)
	drain(s)

	snap := currentSnapshot(s)
	if snap.Phase != PhaseWarning {
		t.Fatalf("Phase = %q, want WARNING", snap.Phase)
	}
	if snap.WarningCount != 1 {
		t.Errorf("WarningCount = %d, want 1", snap.WarningCount)
	}
	if !strings.Contains(snap.LastWarning, "(warning 1/3)") {
		t.Errorf("LastWarning = %q, want counter 1/3", snap.LastWarning)
	}

	// Display window elapses: phase reverts, counter does not.
	sched.fire(t, WarningDisplay)
	drain(s)
	snap = currentSnapshot(s)
	if snap.Phase != PhaseActive {
		t.Errorf("Phase after display window = %q, want ACTIVE", snap.Phase)
	}
	if snap.WarningCount != 1 {
		t.Errorf("WarningCount reset to %d", snap.WarningCount)
	}

	reportBlur(s)
	drain(s)
	snap = currentSnapshot(s)
	if snap.WarningCount != 2 || !strings.Contains(snap.LastWarning, "(warning 2/3)") {
		t.Errorf("second warning: count=%d msg=%q", snap.WarningCount, snap.LastWarning)
	}
	if sub.callCount() != 0 {
		t.Errorf("submitter called before threshold")
	}
}

func TestSessionSecondViolationSupersedesRevert(t *testing.T) {
	sub := &stubSubmitter{}
	s, sched := newTestSession(t, lockdownConfig(), &fakeHost{}, sub)

	reportBlur(s)
	drain(s)
	reportBlur(s)
	drain(s)

	// The first warning's display timer is stale now; firing it must not
	// revert the newer warning.
	sched.fire(t, WarningDisplay)
	drain(s)

	snap := currentSnapshot(s)
	if snap.Phase != PhaseWarning || snap.WarningCount != 2 {
		t.Errorf("phase=%q count=%d, want WARNING/2", snap.Phase, snap.WarningCount)
	}
}

func TestSessionEscalatesOnThirdViolation(t *testing.T) {
	host := &fakeHost{}
	sub := &stubSubmitter{}
	s, sched := newTestSession(t, lockdownConfig(), host, sub)

	for i := 0; i < MaxWarnings; i++ {
		reportBlur(s)
	}
	drain(s)

	snap := currentSnapshot(s)
	if snap.Phase != PhaseEscalating {
		t.Fatalf("Phase = %q, want ESCALATING", snap.Phase)
	}
	if !strings.Contains(snap.LastWarning, "submitted automatically") {
		t.Errorf("terminal notification missing: %q", snap.LastWarning)
	}
	if sub.callCount() != 0 {
		t.Fatal("submitted before the grace delay")
	}

	sched.fire(t, EscalationGrace)
	waitTerminated(t, s)

	if got := sub.callCount(); got != 1 {
		t.Fatalf("submitter called %d times, want 1", got)
	}
	req := sub.lastCall()
	if req.Reason != ReasonAuto {
		t.Errorf("Reason = %q, want %q", req.Reason, ReasonAuto)
	}
	if len(req.Violations) != MaxWarnings {
		t.Errorf("violation log has %d entries, want %d", len(req.Violations), MaxWarnings)
	}

	// Kiosk unwind: restrictions released before the window closed,
	// every host callback unsubscribed.
	cmds := host.commands()
	relIdx, closeIdx := -1, -1
	for i, c := range cmds {
		switch c {
		case "release":
			if relIdx == -1 {
				relIdx = i
			}
		case "close":
			closeIdx = i
		}
	}
	if relIdx == -1 || closeIdx == -1 || relIdx > closeIdx {
		t.Errorf("unwind order %v, want release before close", cmds)
	}
	host.mu.Lock()
	unsubs := host.unsubs
	host.mu.Unlock()
	if unsubs != 5 {
		t.Errorf("unsubscribed %d callbacks, want 5", unsubs)
	}
}

func TestSessionSubmitsOnceUnderViolationBurst(t *testing.T) {
	sub := &stubSubmitter{}
	s, sched := newTestSession(t, lockdownConfig(), &fakeHost{}, sub)

	// Five violations in one burst. Only the third escalates; the rest are
	// logged for audit without re-triggering.
	for i := 0; i < 5; i++ {
		reportBlur(s)
	}
	drain(s)

	if n := sched.pendingCount(EscalationGrace); n != 1 {
		t.Fatalf("%d grace timers scheduled, want 1", n)
	}
	snap := currentSnapshot(s)
	if snap.WarningCount != MaxWarnings {
		t.Errorf("WarningCount = %d, want %d", snap.WarningCount, MaxWarnings)
	}
	if len(snap.Violations) != 5 {
		t.Errorf("violation log has %d entries, want all 5", len(snap.Violations))
	}

	sched.fire(t, EscalationGrace)
	waitTerminated(t, s)

	if got := sub.callCount(); got != 1 {
		t.Errorf("submitter called %d times, want 1", got)
	}
}

func TestSessionTimerExpiryForcesSubmit(t *testing.T) {
	cfg := lockdownConfig()
	cfg.DurationSeconds = 2
	sub := &stubSubmitter{}
	s, sched := newTestSession(t, cfg, &fakeHost{}, sub)

	sched.fire(t, time.Second)
	drain(s)
	if snap := currentSnapshot(s); snap.TimeRemaining != 1 {
		t.Fatalf("TimeRemaining = %d, want 1", snap.TimeRemaining)
	}

	// Expiry submits directly: no grace delay, no unanswered-questions
	// confirmation even though nothing was answered.
	sched.fire(t, time.Second)
	waitTerminated(t, s)

	if got := sub.callCount(); got != 1 {
		t.Fatalf("submitter called %d times, want 1", got)
	}
	if req := sub.lastCall(); req.Reason != ReasonTimeout {
		t.Errorf("Reason = %q, want %q", req.Reason, ReasonTimeout)
	}
}

func TestSessionTimerExpiryDuringEscalationIsNoop(t *testing.T) {
	cfg := lockdownConfig()
	cfg.DurationSeconds = 1
	sub := &stubSubmitter{}
	s, sched := newTestSession(t, cfg, &fakeHost{}, sub)

	for i := 0; i < MaxWarnings; i++ {
		reportBlur(s)
	}
	drain(s)

	// The clock runs out while the escalation grace is pending. The
	// escalation already claimed the submission, so expiry yields.
	sched.fire(t, time.Second)
	drain(s)
	if sub.callCount() != 0 {
		t.Fatal("timer expiry submitted during escalation")
	}

	sched.fire(t, EscalationGrace)
	waitTerminated(t, s)

	if got := sub.callCount(); got != 1 {
		t.Fatalf("submitter called %d times, want 1", got)
	}
	if req := sub.lastCall(); req.Reason != ReasonAuto {
		t.Errorf("Reason = %q, want %q", req.Reason, ReasonAuto)
	}
}

func TestSessionManualSubmitNeedsConfirmation(t *testing.T) {
	sub := &stubSubmitter{}
	s, _ := newTestSession(t, lockdownConfig(), &fakeHost{}, sub)

	if err := s.RecordAnswer(Answer{QuestionID: "q1", OptionID: "a"}); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	if err := s.Submit(ReasonManual, false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("unconfirmed Submit error = %v, want ErrConfirmationRequired", err)
	}
	if snap := currentSnapshot(s); snap.Phase != PhaseActive {
		t.Fatalf("Phase = %q after rejected submit, want ACTIVE", snap.Phase)
	}

	if err := s.Submit(ReasonManual, true); err != nil {
		t.Fatalf("confirmed Submit: %v", err)
	}
	waitTerminated(t, s)

	req := sub.lastCall()
	if req.Reason != ReasonManual {
		t.Errorf("Reason = %q, want %q", req.Reason, ReasonManual)
	}
	if len(req.Answers) != 1 || req.Answers[0].QuestionID != "q1" {
		t.Errorf("Answers = %+v, want the single recorded answer", req.Answers)
	}
}

func TestSessionManualSubmitAllAnswered(t *testing.T) {
	cfg := lockdownConfig()
	cfg.QuestionCount = 2
	sub := &stubSubmitter{}
	s, _ := newTestSession(t, cfg, &fakeHost{}, sub)

	for i := 1; i <= 2; i++ {
		q := fmt.Sprintf("q%d", i)
		if err := s.RecordAnswer(Answer{QuestionID: q, OptionID: "a"}); err != nil {
			t.Fatalf("RecordAnswer(%s): %v", q, err)
		}
	}

	// Nothing unanswered: no confirmation needed.
	if err := s.Submit(ReasonManual, false); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminated(t, s)
}

func TestSessionRetryAfterSubmitFailure(t *testing.T) {
	fail := true
	sub := &stubSubmitter{fn: func(SubmitRequest) (SubmitResult, error) {
		if fail {
			fail = false
			return SubmitResult{}, errors.New("scoring service unavailable")
		}
		return SubmitResult{Score: 3, MaxScore: 5, AttemptID: "att-9"}, nil
	}}
	s, _ := newTestSession(t, lockdownConfig(), &fakeHost{}, sub)

	if err := s.Submit(ReasonManual, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, "failed submit to settle", func() bool {
		snap := currentSnapshot(s)
		return snap.Phase == PhaseSubmitting && snap.SubmitError != ""
	})

	// Answers are frozen once submitting, even while awaiting retry.
	if err := s.RecordAnswer(Answer{QuestionID: "q1", OptionID: "a"}); !errors.Is(err, ErrAttemptFinished) {
		t.Errorf("RecordAnswer while submitting: %v, want ErrAttemptFinished", err)
	}

	if err := s.Submit(ReasonManual, false); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	waitTerminated(t, s)

	if got := sub.callCount(); got != 2 {
		t.Errorf("submitter called %d times, want 2", got)
	}
}

func TestSessionDuplicateAttemptIsTerminal(t *testing.T) {
	host := &fakeHost{}
	sub := &stubSubmitter{fn: func(SubmitRequest) (SubmitResult, error) {
		return SubmitResult{}, fmt.Errorf("scoring service: %w", ErrAlreadyAttempted)
	}}
	s, _ := newTestSession(t, lockdownConfig(), host, sub)

	updates, cancel := s.Subscribe()
	defer cancel()

	if err := s.Submit(ReasonManual, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminated(t, s)

	var last Snapshot
	for snap := range updates {
		last = snap
	}
	if last.Phase != PhaseTerminated {
		t.Errorf("final Phase = %q, want TERMINATED", last.Phase)
	}
	if !strings.Contains(last.SubmitError, "already attempted") {
		t.Errorf("SubmitError = %q, want duplicate-attempt message", last.SubmitError)
	}

	// Explicit failure, not silent success: no release, no close.
	for _, cmd := range host.commands() {
		if cmd == "release" || cmd == "close" {
			t.Fatalf("unwind command %q after duplicate rejection", cmd)
		}
	}
}

func TestSessionWithoutLockdownIgnoresEvents(t *testing.T) {
	cfg := lockdownConfig()
	cfg.Lockdown = false
	sub := &stubSubmitter{}
	s, _ := newTestSession(t, cfg, nil, sub)

	reportBlur(s)
	drain(s)

	snap := currentSnapshot(s)
	if snap.Phase != PhaseActive || snap.WarningCount != 0 || len(snap.Violations) != 0 {
		t.Errorf("event escalated outside lockdown mode: %+v", snap)
	}

	if err := s.Submit(ReasonManual, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminated(t, s)
}

func TestSessionSubscribe(t *testing.T) {
	sub := &stubSubmitter{}
	s, _ := newTestSession(t, lockdownConfig(), &fakeHost{}, sub)

	updates, cancel := s.Subscribe()
	defer cancel()

	first := <-updates
	if first.Phase != PhaseActive {
		t.Fatalf("initial snapshot Phase = %q, want ACTIVE", first.Phase)
	}

	reportBlur(s)
	waitFor(t, "warning snapshot", func() bool {
		select {
		case snap, ok := <-updates:
			return ok && snap.Phase == PhaseWarning
		default:
			return false
		}
	})
}

// gatedHost holds the open command in flight until the gate channel is
// closed, the way a websocket transport does while waiting for the
// shell's ack.
type gatedHost struct {
	fakeHost
	gate chan struct{}
}

func (h *gatedHost) OpenRestrictedWindow(_ context.Context, _ string) error {
	select {
	case <-h.gate:
		return nil
	case <-time.After(2 * time.Second):
		return errors.New("gate never opened")
	}
}

type failingOpenHost struct {
	fakeHost
}

func (h *failingOpenHost) OpenRestrictedWindow(_ context.Context, _ string) error {
	return errors.New("shell rejected open_window")
}

func TestSessionLiveWhileWindowOpens(t *testing.T) {
	host := &gatedHost{gate: make(chan struct{})}
	sub := &stubSubmitter{}
	s := NewSession(lockdownConfig(), host, sub, zerolog.Nop())
	sched := &fakeScheduler{}
	s.after = sched.after
	s.sleep = func(time.Duration) {}
	if s.release != nil {
		s.release.sleep = func(time.Duration) {}
	}

	// The open command only resolves after a session call succeeds, so
	// Start can return at all only if the actor serves calls while the
	// command is still in flight.
	go func() {
		if err := s.RecordAnswer(Answer{QuestionID: "q1", OptionID: "a"}); err != nil {
			t.Errorf("RecordAnswer while window opens: %v", err)
		}
		close(host.gate)
	}()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)

	drain(s)
	got := make(chan int, 1)
	s.post(func() { got <- len(s.answers) })
	if n := <-got; n != 1 {
		t.Errorf("answers recorded during startup = %d, want 1", n)
	}
}

func TestSessionStartFailureTearsDown(t *testing.T) {
	sub := &stubSubmitter{}
	s := NewSession(lockdownConfig(), &failingOpenHost{}, sub, zerolog.Nop())
	sched := &fakeScheduler{}
	s.after = sched.after
	s.sleep = func(time.Duration) {}
	if s.release != nil {
		s.release.sleep = func(time.Duration) {}
	}

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded with a rejecting host")
	}
	waitTerminated(t, s)

	if err := s.RecordAnswer(Answer{QuestionID: "q1", OptionID: "a"}); !errors.Is(err, ErrAttemptFinished) {
		t.Errorf("RecordAnswer after failed Start = %v, want ErrAttemptFinished", err)
	}
	if err := s.Submit(ReasonManual, true); !errors.Is(err, ErrAttemptFinished) {
		t.Errorf("Submit after failed Start = %v, want ErrAttemptFinished", err)
	}
}
