// Package analytics aggregates completed attempts into summary figures
// for the dashboard.
package analytics

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/khojney/quiz/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

type SummarizeRequest struct {
	// UserID limits the summary to one user. Empty means all users.
	UserID string
}

type Summary struct {
	TotalAttempts int
	AverageScore  decimal.Decimal
	Categories    []CategorySummary
}

type CategorySummary struct {
	CategoryID   string
	CategoryName string
	Attempts     int
	AverageScore decimal.Decimal
}

// Summarize reports completed attempts only; started-but-abandoned runs
// are excluded from every figure.
func (s *Service) Summarize(ctx context.Context, req SummarizeRequest) (Summary, error) {
	const totalsStmt = `
SELECT count(*), coalesce(avg(score), 0)::text
FROM quiz_attempts
WHERE status = 'completed' AND ($1 = '' OR user_id = $1);`

	var (
		summary  Summary
		avgScore string
	)
	err := s.db.QueryRow(ctx, totalsStmt, req.UserID).Scan(&summary.TotalAttempts, &avgScore)
	if err != nil {
		return Summary{}, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("analytics: summarize failed"),
			errors.WithCause(err),
		)
	}
	summary.AverageScore, err = decimal.NewFromString(avgScore)
	if err != nil {
		return Summary{}, errors.Internal(fmt.Errorf("analytics: parse average score: %w", err))
	}

	summary.Categories, err = s.summarizeCategories(ctx, req.UserID)
	if err != nil {
		return Summary{}, err
	}

	return summary, nil
}

func (s *Service) summarizeCategories(ctx context.Context, userID string) ([]CategorySummary, error) {
	const stmt = `
SELECT a.category_id, c.name, count(*), avg(a.score)::text
FROM quiz_attempts a
JOIN categories c ON c.category_id = a.category_id
WHERE a.status = 'completed' AND ($1 = '' OR a.user_id = $1)
GROUP BY a.category_id, c.name
ORDER BY count(*) DESC, c.name;`

	rows, err := s.db.Query(ctx, stmt, userID)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("analytics: summarize categories"),
			errors.WithCause(err),
		)
	}

	categories, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CategorySummary, error) {
		var (
			cs  CategorySummary
			avg string
		)
		if err := row.Scan(&cs.CategoryID, &cs.CategoryName, &cs.Attempts, &avg); err != nil {
			return CategorySummary{}, err
		}
		cs.AverageScore, err = decimal.NewFromString(avg)
		return cs, err
	})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("analytics: collect categories: %w", err))
	}

	return categories, nil
}
