// Package play orchestrates quiz runs: it opens the attempt row, loads
// the question set, drives the session and submits the final result.
package play

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/khojney/quiz/internal/attempt"
	"github.com/khojney/quiz/internal/domain"
	"github.com/khojney/quiz/internal/errors"
	"github.com/khojney/quiz/internal/questionbank"
	"github.com/khojney/quiz/internal/session"
	"github.com/khojney/quiz/internal/telemetry"
)

const submitTimeout = 10 * time.Second

// AttemptStore persists attempts. Satisfied by *attempt.Service.
type AttemptStore interface {
	Create(ctx context.Context, req attempt.CreateRequest) (domain.Attempt, error)
	Finalize(ctx context.Context, req attempt.FinalizeRequest) (domain.Attempt, error)
}

// QuestionSource provides question sets. Satisfied by *questionbank.Repository.
type QuestionSource interface {
	GetQuestionSet(ctx context.Context, categorySlug string) (questionbank.QuestionSet, error)
}

type Config struct {
	Attempts  AttemptStore
	Questions QuestionSource

	// BudgetSeconds is the per-question countdown for every run started
	// by this service. session.DefaultBudgetSeconds when zero.
	BudgetSeconds int

	// CompletedRetention is how long a submitted run stays readable in
	// the registry before it is evicted. Defaults to 5 minutes.
	CompletedRetention time.Duration

	// NewTickerFunc, Clock and Rand override time and randomness
	// sources, for tests.
	NewTickerFunc session.NewTickerFunc
	Clock         func() time.Time
	Rand          *rand.Rand
}

type Service struct {
	attempts  AttemptStore
	questions QuestionSource
	budget    int
	retain    time.Duration
	newTicker session.NewTickerFunc
	clock     func() time.Time
	runs      *registry

	randMu sync.Mutex
	rnd    *rand.Rand
}

func NewService(c Config) *Service {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = 5 * time.Minute
	}
	return &Service{
		attempts:  c.Attempts,
		questions: c.Questions,
		budget:    c.BudgetSeconds,
		retain:    c.CompletedRetention,
		newTicker: c.NewTickerFunc,
		clock:     c.Clock,
		runs:      newRegistry(),
		rnd:       c.Rand,
	}
}

// newRand derives an independent randomness source for one run. Sessions
// shuffle under their own locks, so sharing one *rand.Rand across runs
// would race.
func (s *Service) newRand() *rand.Rand {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return rand.New(rand.NewSource(s.rnd.Int63()))
}

type StartQuizRequest struct {
	UserID       string
	CategorySlug string
	QuizMode     string
	// QuestionCount limits the run to a random subset of the category's
	// questions. Zero means the whole set.
	QuestionCount int
}

type StartQuizResponse struct {
	AttemptID string
	Category  domain.Category
	View      session.View
}

// StartQuiz opens the attempt row first, then constructs the session;
// a run that never completes is still visible as a started attempt.
func (s *Service) StartQuiz(ctx context.Context, req StartQuizRequest) (StartQuizResponse, error) {
	if req.UserID == "" {
		return StartQuizResponse{}, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("play: user id is required"))
	}

	set, err := s.questions.GetQuestionSet(ctx, req.CategorySlug)
	if err != nil {
		return StartQuizResponse{}, err
	}

	rnd := s.newRand()
	questions := pickQuestions(rnd, set.Questions, req.QuestionCount)

	att, err := s.attempts.Create(ctx, attempt.CreateRequest{
		UserID:         req.UserID,
		CategoryID:     set.Category.CategoryID,
		QuizMode:       req.QuizMode,
		TotalQuestions: len(questions),
	})
	if err != nil {
		return StartQuizResponse{}, err
	}

	run := newRun(att.AttemptID, req.UserID, set.Category)

	sess, err := session.New(session.Config{
		Questions:     questions,
		BudgetSeconds: s.budget,
		NewTickerFunc: s.newTicker,
		Clock:         s.clock,
		Rand:          rnd,
		Hooks: session.Hooks{
			OnQuestion: func(index int, questionID string) {
				run.broadcast(Update{Type: UpdateQuestion, QuestionIndex: index, QuestionID: questionID})
			},
			OnTick: func(remaining int) {
				run.broadcast(Update{Type: UpdateTick, RemainingSeconds: remaining})
			},
			OnLocked: func(questionID, chosenOptionID string) {
				run.broadcast(Update{Type: UpdateAnswerLocked, QuestionID: questionID, ChosenOptionID: chosenOptionID})
			},
			OnCompleted: func(result domain.Result) {
				run.setCompleted(result)
				run.broadcast(Update{Type: UpdateCompleted, Result: &result})
				telemetry.QuizRunsCompleted.Inc()
				telemetry.ActiveQuizRuns.Dec()
				// Submission leaves the session's lock scope; the result
				// above is already final whether or not it succeeds.
				go s.submit(run, result)
			},
		},
	})
	if err != nil {
		return StartQuizResponse{}, err
	}
	run.sess = sess

	s.runs.add(run)
	telemetry.QuizRunsStarted.Inc()
	telemetry.ActiveQuizRuns.Inc()

	return StartQuizResponse{
		AttemptID: att.AttemptID,
		Category:  set.Category,
		View:      sess.Snapshot(),
	}, nil
}

// pickQuestions returns up to n questions sampled without replacement.
func pickQuestions(rnd *rand.Rand, questions []domain.Question, n int) []domain.Question {
	if n <= 0 || n >= len(questions) {
		return questions
	}

	picked := make([]domain.Question, len(questions))
	copy(picked, questions)
	rnd.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:n]
}

func (s *Service) submit(run *Run, result domain.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	_, err := s.attempts.Finalize(ctx, attempt.FinalizeRequest{
		AttemptID: run.attemptID,
		Result:    result,
	})
	if err != nil {
		telemetry.SubmissionFailures.Inc()
		slog.ErrorContext(ctx, "play: submit attempt failed",
			"attempt_id", run.attemptID,
			"error", err,
		)
		run.setSubmission(SubmissionFailed, err)
		run.broadcast(Update{Type: UpdateSubmissionFailed})
		return
	}

	run.setSubmission(SubmissionSubmitted, nil)
	run.broadcast(Update{Type: UpdateSubmitted})
	s.scheduleEviction(run)
}

// scheduleEviction drops a submitted run from the registry once the
// retention window passes. The attempt row is the durable record; the
// registry only has to keep the result readable long enough for the
// results view to pick it up.
func (s *Service) scheduleEviction(run *Run) {
	time.AfterFunc(s.retain, func() {
		run.close()
		s.runs.remove(run.attemptID)
	})
}

// SelectOption locks an answer by option ID.
func (s *Service) SelectOption(attemptID, optionID string) error {
	run, err := s.runs.get(attemptID)
	if err != nil {
		return err
	}
	return run.sess.SelectOption(optionID)
}

// SelectPosition locks an answer by its 1-based on-screen position.
func (s *Service) SelectPosition(attemptID string, pos int) error {
	run, err := s.runs.get(attemptID)
	if err != nil {
		return err
	}
	return run.sess.SelectPosition(pos)
}

// Advance moves a locked run to the next question or to completion.
func (s *Service) Advance(attemptID string) error {
	run, err := s.runs.get(attemptID)
	if err != nil {
		return err
	}
	return run.sess.Advance()
}

// RunView is a snapshot of a live run for rendering.
type RunView struct {
	AttemptID  string
	Category   domain.Category
	View       session.View
	Submission SubmissionState
	// SubmissionError is set when Submission is SubmissionFailed.
	SubmissionError string
}

func (s *Service) Snapshot(attemptID string) (RunView, error) {
	run, err := s.runs.get(attemptID)
	if err != nil {
		return RunView{}, err
	}

	v := RunView{
		AttemptID: run.attemptID,
		Category:  run.category,
		View:      run.sess.Snapshot(),
	}
	state, subErr := run.submissionStatus()
	v.Submission = state
	if subErr != nil {
		v.SubmissionError = subErr.Error()
	}
	return v, nil
}

// Result returns the final tally of a completed run. It is available
// even when submission failed, so the learner always sees the score.
func (s *Service) Result(attemptID string) (domain.Result, error) {
	run, err := s.runs.get(attemptID)
	if err != nil {
		return domain.Result{}, err
	}

	result, ok := run.finalResult()
	if !ok {
		return domain.Result{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("play: run is not completed: %s", attemptID))
	}
	return result, nil
}

// RetrySubmission re-runs a failed finalize with the same payload.
func (s *Service) RetrySubmission(ctx context.Context, attemptID string) error {
	run, err := s.runs.get(attemptID)
	if err != nil {
		return err
	}

	result, ok := run.finalResult()
	if !ok {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("play: run is not completed: %s", attemptID))
	}

	state, _ := run.submissionStatus()
	if state == SubmissionSubmitted {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("play: attempt already submitted: %s", attemptID))
	}

	_, err = s.attempts.Finalize(ctx, attempt.FinalizeRequest{
		AttemptID: run.attemptID,
		Result:    result,
	})
	if err != nil {
		telemetry.SubmissionFailures.Inc()
		run.setSubmission(SubmissionFailed, err)
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("play: submit attempt failed"),
			errors.WithCause(err),
		)
	}

	run.setSubmission(SubmissionSubmitted, nil)
	run.broadcast(Update{Type: UpdateSubmitted})
	s.scheduleEviction(run)
	return nil
}

// Subscribe attaches a live update stream to a run.
func (s *Service) Subscribe(attemptID string) (<-chan Update, func(), error) {
	run, err := s.runs.get(attemptID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := run.Subscribe()
	return ch, cancel, nil
}

// Abandon tears a run down without completing it. The attempt row stays
// in status "started".
func (s *Service) Abandon(attemptID string) error {
	run, err := s.runs.get(attemptID)
	if err != nil {
		return err
	}

	run.sess.Close()
	run.close()
	s.runs.remove(attemptID)

	if _, completed := run.finalResult(); !completed {
		telemetry.QuizRunsAbandoned.Inc()
		telemetry.ActiveQuizRuns.Dec()
	}
	return nil
}
