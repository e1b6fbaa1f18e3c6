package lockdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stubSubmitter struct {
	mu    sync.Mutex
	calls []SubmitRequest
	fn    func(SubmitRequest) (SubmitResult, error)
}

func (s *stubSubmitter) Submit(_ context.Context, req SubmitRequest) (SubmitResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return SubmitResult{Score: 2, MaxScore: 5, AttemptID: "att-1"}, nil
	}
	return fn(req)
}

func (s *stubSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func testRequest() SubmitRequest {
	return SubmitRequest{
		QuizID:    uuid.New(),
		StudentID: 7,
		Answers: []Answer{
			{QuestionID: "q2", OptionID: "b"},
			{QuestionID: "q1", OptionID: "a"},
		},
		Reason: ReasonManual,
	}
}

func TestCoordinatorSubmitOnce(t *testing.T) {
	sub := &stubSubmitter{}
	c := NewCoordinator(sub, zerolog.Nop())

	res, err := c.Submit(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if res.AttemptID != "att-1" || res.Score != 2 || res.MaxScore != 5 {
		t.Fatalf("unexpected result: %+v", res)
	}

	// Repeat returns the cached result, no second network call.
	res2, err := c.Submit(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if res2 != res {
		t.Errorf("second result %+v, want cached %+v", res2, res)
	}
	if got := sub.callCount(); got != 1 {
		t.Errorf("submitter called %d times, want 1", got)
	}
	if !c.submitted() {
		t.Error("submitted() = false after success")
	}
}

func TestCoordinatorRejectsConcurrent(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	sub := &stubSubmitter{fn: func(SubmitRequest) (SubmitResult, error) {
		close(entered)
		<-release
		return SubmitResult{AttemptID: "att-1"}, nil
	}}
	c := NewCoordinator(sub, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), testRequest())
		done <- err
	}()

	<-entered
	if _, err := c.Submit(context.Background(), testRequest()); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("concurrent Submit error = %v, want ErrSubmitInFlight", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}
}

func TestCoordinatorRetryAfterFailure(t *testing.T) {
	fail := true
	sub := &stubSubmitter{fn: func(SubmitRequest) (SubmitResult, error) {
		if fail {
			fail = false
			return SubmitResult{}, errors.New("scoring service unavailable")
		}
		return SubmitResult{Score: 4, MaxScore: 4, AttemptID: "att-2"}, nil
	}}
	c := NewCoordinator(sub, zerolog.Nop())

	if _, err := c.Submit(context.Background(), testRequest()); err == nil {
		t.Fatal("first Submit succeeded, want failure")
	}
	if c.submitted() {
		t.Fatal("submitted() = true after failure")
	}

	res, err := c.Submit(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if res.AttemptID != "att-2" {
		t.Errorf("AttemptID = %q, want att-2", res.AttemptID)
	}
	if got := sub.callCount(); got != 2 {
		t.Errorf("submitter called %d times, want 2", got)
	}
}

func TestCoordinatorSortsAnswers(t *testing.T) {
	sub := &stubSubmitter{}
	c := NewCoordinator(sub, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := c.Submit(ctx, testRequest()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	sent := sub.calls[0].Answers
	if sent[0].QuestionID != "q1" || sent[1].QuestionID != "q2" {
		t.Errorf("answers not sorted: %+v", sent)
	}
}
