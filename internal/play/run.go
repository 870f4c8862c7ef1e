package play

import (
	"sync"

	"github.com/khojney/quiz/internal/domain"
	"github.com/khojney/quiz/internal/session"
)

type UpdateType string

const (
	UpdateQuestion         UpdateType = "question"
	UpdateTick             UpdateType = "tick"
	UpdateAnswerLocked     UpdateType = "answer_locked"
	UpdateCompleted        UpdateType = "completed"
	UpdateSubmitted        UpdateType = "submitted"
	UpdateSubmissionFailed UpdateType = "submission_failed"
)

// Update is one live event of a quiz run, pushed to subscribers.
type Update struct {
	Type             UpdateType     `json:"type"`
	QuestionIndex    int            `json:"question_index,omitempty"`
	QuestionID       string         `json:"question_id,omitempty"`
	ChosenOptionID   string         `json:"chosen_option_id,omitempty"`
	RemainingSeconds int            `json:"remaining_seconds,omitempty"`
	Result           *domain.Result `json:"result,omitempty"`
}

type SubmissionState string

const (
	// SubmissionNone: the run has not completed yet.
	SubmissionNone SubmissionState = ""
	// SubmissionPending: finalize is in flight.
	SubmissionPending   SubmissionState = "pending"
	SubmissionSubmitted SubmissionState = "submitted"
	SubmissionFailed    SubmissionState = "failed"
)

const subscriberBuffer = 16

// Run binds one live session to its attempt row and its subscribers.
// The score is computed locally when the session completes, so a failed
// submission never takes the result away from the learner.
type Run struct {
	attemptID string
	userID    string
	category  domain.Category
	sess      *session.Session

	mu            sync.Mutex
	completed     bool
	result        domain.Result
	submission    SubmissionState
	submissionErr error
	subscribers   map[chan Update]struct{}
	closed        bool
}

func newRun(attemptID, userID string, category domain.Category) *Run {
	return &Run{
		attemptID:   attemptID,
		userID:      userID,
		category:    category,
		subscribers: make(map[chan Update]struct{}),
	}
}

// Subscribe returns a channel of live updates and a cancel function.
// Slow consumers lose updates rather than stalling the run.
func (r *Run) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	r.subscribers[ch] = struct{}{}
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
}

// broadcast fans an update out to every subscriber, dropping it for
// subscribers whose buffer is full. Called from session hooks, so it
// must never call back into the session.
func (r *Run) broadcast(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ch := range r.subscribers {
		select {
		case ch <- u:
		default:
		}
	}
}

func (r *Run) setCompleted(result domain.Result) {
	r.mu.Lock()
	r.completed = true
	r.result = result
	r.submission = SubmissionPending
	r.mu.Unlock()
}

func (r *Run) setSubmission(state SubmissionState, err error) {
	r.mu.Lock()
	r.submission = state
	r.submissionErr = err
	r.mu.Unlock()
}

func (r *Run) submissionStatus() (SubmissionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submission, r.submissionErr
}

func (r *Run) finalResult() (domain.Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.completed
}

// close shuts down all subscriber channels. The run is done afterwards.
func (r *Run) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for ch := range r.subscribers {
		delete(r.subscribers, ch)
		close(ch)
	}
}
