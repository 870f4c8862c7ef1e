package questionbank

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khojney/quiz/internal/domain"
	"github.com/khojney/quiz/internal/errors"
)

// PostgresLoader reads published categories and their questions.
type PostgresLoader struct {
	db *pgxpool.Pool
}

func NewPostgresLoader(db *pgxpool.Pool) *PostgresLoader {
	return &PostgresLoader{db: db}
}

func (l *PostgresLoader) LoadQuestionSet(ctx context.Context, categorySlug string) (QuestionSet, error) {
	category, err := l.loadCategory(ctx, categorySlug)
	if err != nil {
		return QuestionSet{}, err
	}

	questions, err := l.loadQuestions(ctx, category.CategoryID)
	if err != nil {
		return QuestionSet{}, err
	}

	return QuestionSet{Category: category, Questions: questions}, nil
}

func (l *PostgresLoader) loadCategory(ctx context.Context, slug string) (domain.Category, error) {
	const stmt = `
SELECT category_id, slug, name, description
FROM categories
WHERE slug = $1 AND is_published;`

	var c domain.Category
	err := l.db.QueryRow(ctx, stmt, slug).Scan(&c.CategoryID, &c.Slug, &c.Name, &c.Description)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Category{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("question bank: category not found: %s", slug))
	}
	if err != nil {
		return domain.Category{}, fmt.Errorf("load category: %w", err)
	}

	return c, nil
}

func (l *PostgresLoader) loadQuestions(ctx context.Context, categoryID string) ([]domain.Question, error) {
	const stmt = `
SELECT q.question_id, q.question_text, o.option_id, o.option_text, o.is_correct
FROM questions q
JOIN question_categories qc ON qc.question_id = q.question_id
JOIN options o ON o.question_id = q.question_id
WHERE qc.category_id = $1 AND q.is_published
ORDER BY q.question_id, o.option_id;`

	rows, err := l.db.Query(ctx, stmt, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var (
		questions []domain.Question
		current   *domain.Question
	)
	for rows.Next() {
		var (
			questionID, questionText string
			o                        domain.Option
		)
		if err := rows.Scan(&questionID, &questionText, &o.OptionID, &o.OptionText, &o.Correct); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}

		if current == nil || current.QuestionID != questionID {
			questions = append(questions, domain.Question{
				QuestionID:   questionID,
				QuestionText: questionText,
			})
			current = &questions[len(questions)-1]
		}
		current.Options = append(current.Options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question rows: %w", err)
	}

	return questions, nil
}
