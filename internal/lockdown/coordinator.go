package lockdown

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SubmitReason tags why an attempt was submitted.
type SubmitReason string

const (
	ReasonManual  SubmitReason = "manual"
	ReasonTimeout SubmitReason = "timeout"
	ReasonAuto    SubmitReason = "auto-submitted"
)

// Answer is one recorded response: an option reference for multiple-choice
// or a free-text response. Mutable in the session until submission.
type Answer struct {
	QuestionID   string `json:"question_id"`
	OptionID     string `json:"option_id,omitempty"`
	TextResponse string `json:"text_response,omitempty"`
}

// SubmitRequest is the final payload for the scoring service: all non-empty
// answers plus the full violation log and the reason tag.
type SubmitRequest struct {
	QuizID     uuid.UUID    `json:"quiz_id"`
	StudentID  int          `json:"student_id"`
	Answers    []Answer     `json:"answers"`
	Violations []Violation  `json:"violations"`
	Reason     SubmitReason `json:"reason"`
}

// SubmitResult is the scoring service's acknowledgement.
type SubmitResult struct {
	Score     float64 `json:"score"`
	MaxScore  float64 `json:"max_score"`
	AttemptID string  `json:"attempt_id"`
}

// Submitter is the scoring service seen from the session core.
// ErrAlreadyAttempted must be returned (wrapped is fine) when the backend
// rejects a second attempt for the same student+quiz pair.
type Submitter interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
}

var (
	// ErrAlreadyAttempted is the terminal duplicate-attempt rejection.
	// Retrying cannot succeed, so the session ends in explicit failure.
	ErrAlreadyAttempted = errors.New("quiz already attempted by this student")

	// ErrSubmitInFlight is returned when a submission is already being sent.
	ErrSubmitInFlight = errors.New("submission already in flight")
)

// Coordinator serializes the session's answers and violation log into one
// idempotent submit call. The client-side guard is a latency optimization:
// the backend independently rejects duplicate attempts, so the guard here
// only prevents redundant requests from a single session.
type Coordinator struct {
	submitter Submitter
	log       zerolog.Logger

	mu       sync.Mutex
	inFlight bool
	result   *SubmitResult
}

// NewCoordinator wires a coordinator to the scoring service client.
func NewCoordinator(submitter Submitter, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		submitter: submitter,
		log:       log.With().Str("component", "submit_coordinator").Logger(),
	}
}

// Submit sends the final payload once. A second call after success returns
// the cached result without touching the network; a call while another is
// in flight fails with ErrSubmitInFlight. A failed call leaves the
// coordinator ready for an identical retry.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	c.mu.Lock()
	if c.result != nil {
		res := *c.result
		c.mu.Unlock()
		return res, nil
	}
	if c.inFlight {
		c.mu.Unlock()
		return SubmitResult{}, ErrSubmitInFlight
	}
	c.inFlight = true
	c.mu.Unlock()

	sortAnswers(req.Answers)

	res, err := c.submitter.Submit(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if err != nil {
		c.log.Error().Err(err).
			Str("quiz_id", req.QuizID.String()).
			Int("student_id", req.StudentID).
			Str("reason", string(req.Reason)).
			Msg("Submission failed")
		return SubmitResult{}, err
	}

	c.result = &res
	c.log.Info().
		Str("attempt_id", res.AttemptID).
		Float64("score", res.Score).
		Float64("max_score", res.MaxScore).
		Str("reason", string(req.Reason)).
		Msg("Attempt submitted")
	return res, nil
}

// submitted reports whether a submission has completed successfully.
func (c *Coordinator) submitted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result != nil
}

// sortAnswers orders the payload deterministically; answers come out of a
// map and the scoring service logs payloads for audit.
func sortAnswers(answers []Answer) {
	sort.Slice(answers, func(i, j int) bool {
		return answers[i].QuestionID < answers[j].QuestionID
	})
}
