// Package attempt persists quiz attempts and their locked-in answers.
package attempt

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khojney/quiz/internal/domain"
	"github.com/khojney/quiz/internal/errors"
	"github.com/khojney/quiz/internal/event"
)

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus
}

type Service struct {
	db *pgxpool.Pool
	eb *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
		eb: c.EventBus,
	}
}

type CreateRequest struct {
	UserID         string
	CategoryID     string
	QuizMode       string
	TotalQuestions int
}

// Create opens a new attempt in status "started". The row exists before
// the first question is shown, so an abandoned run is still visible.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Attempt, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Attempt{}, errors.Internal(err)
	}

	a := domain.Attempt{
		AttemptID:      id.String(),
		UserID:         req.UserID,
		CategoryID:     req.CategoryID,
		QuizMode:       req.QuizMode,
		Status:         domain.AttemptStatusStarted,
		TotalQuestions: req.TotalQuestions,
		StartedAt:      time.Now(),
	}

	const stmt = `
INSERT INTO quiz_attempts (attempt_id, user_id, category_id, quiz_mode, status, total_questions, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err = s.db.Exec(ctx, stmt,
		a.AttemptID, a.UserID, a.CategoryID, a.QuizMode, a.Status, a.TotalQuestions, a.StartedAt,
	)
	if err != nil {
		return domain.Attempt{}, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("attempt: create failed"),
			errors.WithCause(err),
		)
	}

	return a, nil
}

type FinalizeRequest struct {
	AttemptID string
	Result    domain.Result
}

// Finalize writes the answers and closes the attempt in one transaction.
// Finalizing an already-completed attempt returns CodeAlreadyExists and
// leaves the stored row untouched.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (domain.Attempt, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.Attempt{}, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("attempt: begin finalize"),
			errors.WithCause(err),
		)
	}
	defer tx.Rollback(ctx)

	completedAt := time.Now()

	const updateStmt = `
UPDATE quiz_attempts
SET score = $2, status = $3, completed_at = $4, time_taken_seconds = $5
WHERE attempt_id = $1 AND status = $6
RETURNING user_id, category_id, quiz_mode, total_questions, started_at;`

	var a domain.Attempt
	a.AttemptID = req.AttemptID
	a.Status = domain.AttemptStatusCompleted
	a.Score = req.Result.Score
	a.TimeTakenSeconds = req.Result.ElapsedSeconds
	a.CompletedAt = completedAt

	err = tx.QueryRow(ctx, updateStmt,
		req.AttemptID, req.Result.Score, domain.AttemptStatusCompleted,
		completedAt, req.Result.ElapsedSeconds, domain.AttemptStatusStarted,
	).Scan(&a.UserID, &a.CategoryID, &a.QuizMode, &a.TotalQuestions, &a.StartedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, s.finalizeConflict(ctx, req.AttemptID)
	}
	if err != nil {
		return domain.Attempt{}, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("attempt: finalize failed"),
			errors.WithCause(err),
		)
	}

	const answerStmt = `
INSERT INTO user_answers (attempt_id, question_id, selected_option_id, is_correct)
VALUES ($1, $2, $3, $4);`

	batch := new(pgx.Batch)
	for _, ans := range req.Result.Answers {
		batch.Queue(answerStmt, req.AttemptID, ans.QuestionID, ans.OptionID, ans.Correct)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return domain.Attempt{}, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("attempt: record answers"),
			errors.WithCause(err),
		)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Attempt{}, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("attempt: commit finalize"),
			errors.WithCause(err),
		)
	}

	s.eb.Publish(ctx, domain.EventAttemptCompleted{Attempt: a})

	return a, nil
}

// finalizeConflict distinguishes a double finalize from an unknown ID.
func (s *Service) finalizeConflict(ctx context.Context, attemptID string) error {
	_, err := s.Get(ctx, attemptID)
	if err != nil {
		return err
	}
	return errors.New(errors.CodeAlreadyExists,
		errors.WithMessagef("attempt: already finalized: %s", attemptID))
}

func (s *Service) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	const stmt = `
SELECT attempt_id, user_id, category_id, quiz_mode, status, score, total_questions,
       time_taken_seconds, started_at, completed_at
FROM quiz_attempts
WHERE attempt_id = $1;`

	var (
		a           domain.Attempt
		completedAt *time.Time
	)
	err := s.db.QueryRow(ctx, stmt, attemptID).Scan(
		&a.AttemptID, &a.UserID, &a.CategoryID, &a.QuizMode, &a.Status,
		&a.Score, &a.TotalQuestions, &a.TimeTakenSeconds, &a.StartedAt, &completedAt,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("attempt: not found: %s", attemptID))
	}
	if err != nil {
		return domain.Attempt{}, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("attempt: get failed"),
			errors.WithCause(err),
		)
	}
	if completedAt != nil {
		a.CompletedAt = *completedAt
	}

	return a, nil
}

// GetAnswers returns the locked-in answers of an attempt in the order
// they were recorded. Timed-out questions have no row.
func (s *Service) GetAnswers(ctx context.Context, attemptID string) ([]domain.RecordedAnswer, error) {
	const stmt = `
SELECT question_id, selected_option_id, is_correct
FROM user_answers
WHERE attempt_id = $1
ORDER BY answer_id;`

	rows, err := s.db.Query(ctx, stmt, attemptID)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("attempt: get answers"),
			errors.WithCause(err),
		)
	}

	answers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RecordedAnswer, error) {
		var ans domain.RecordedAnswer
		err := row.Scan(&ans.QuestionID, &ans.OptionID, &ans.Correct)
		return ans, err
	})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("attempt: collect answers: %w", err))
	}

	return answers, nil
}

// List returns a user's attempts, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Attempt, error) {
	const stmt = `
SELECT attempt_id, user_id, category_id, quiz_mode, status, score, total_questions,
       time_taken_seconds, started_at, completed_at
FROM quiz_attempts
WHERE user_id = $1
ORDER BY started_at DESC;`

	rows, err := s.db.Query(ctx, stmt, userID)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("attempt: list failed"),
			errors.WithCause(err),
		)
	}

	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Attempt, error) {
		var (
			a           domain.Attempt
			completedAt *time.Time
		)
		err := row.Scan(
			&a.AttemptID, &a.UserID, &a.CategoryID, &a.QuizMode, &a.Status,
			&a.Score, &a.TotalQuestions, &a.TimeTakenSeconds, &a.StartedAt, &completedAt,
		)
		if completedAt != nil {
			a.CompletedAt = *completedAt
		}
		return a, err
	})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("attempt: collect attempts: %w", err))
	}

	return attempts, nil
}
