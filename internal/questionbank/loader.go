// Package questionbank loads immutable question sets for a category.
// A set is fetched once per run, before the session is constructed, and
// never re-fetched mid-session.
package questionbank

import (
	"context"

	"github.com/khojney/quiz/internal/domain"
	"github.com/khojney/quiz/internal/errors"
)

// QuestionSet is a category together with its published questions.
type QuestionSet struct {
	Category  domain.Category
	Questions []domain.Question
}

// Loader fetches question sets from a backing store.
type Loader interface {
	LoadQuestionSet(ctx context.Context, categorySlug string) (QuestionSet, error)
}

// StaticLoader serves question sets from an in-memory map, keyed by
// category slug. Used in tests and demos.
type StaticLoader struct {
	sets map[string]QuestionSet
}

func NewStaticLoader(sets map[string]QuestionSet) *StaticLoader {
	return &StaticLoader{sets: sets}
}

func (l *StaticLoader) LoadQuestionSet(_ context.Context, categorySlug string) (QuestionSet, error) {
	if set, ok := l.sets[categorySlug]; ok {
		return set, nil
	}
	return QuestionSet{}, errors.New(errors.CodeNotFound,
		errors.WithMessagef("question bank: category not found: %s", categorySlug))
}
