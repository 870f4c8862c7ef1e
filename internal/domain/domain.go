package domain

import "time"

// Category groups questions under a public slug, e.g. "general-knowledge".
type Category struct {
	CategoryID  string
	Slug        string
	Name        string
	Description string
}

type Question struct {
	QuestionID   string
	QuestionText string
	Options      []Option
}

// CorrectOptionID returns the ID of the correct option, or "" when the
// question carries none. A well-formed question has exactly one.
func (q Question) CorrectOptionID() string {
	for _, o := range q.Options {
		if o.Correct {
			return o.OptionID
		}
	}
	return ""
}

type Option struct {
	OptionID   string
	OptionText string
	Correct    bool
}

type AttemptStatus string

const (
	AttemptStatusStarted   AttemptStatus = "started"
	AttemptStatusCompleted AttemptStatus = "completed"
)

// Attempt is one run through a category's question set by one user.
type Attempt struct {
	AttemptID        string
	UserID           string
	CategoryID       string
	QuizMode         string
	Status           AttemptStatus
	Score            int
	TotalQuestions   int
	TimeTakenSeconds int
	StartedAt        time.Time
	CompletedAt      time.Time
}

// Result is the final tally of a completed run, computed locally before
// it is handed to attempt persistence.
type Result struct {
	Score          int
	TotalQuestions int
	ElapsedSeconds int
	Answers        []RecordedAnswer
}

// RecordedAnswer is one locked-in choice. Questions that timed out with
// no selection have no RecordedAnswer at all.
type RecordedAnswer struct {
	QuestionID string
	OptionID   string
	Correct    bool
}

// Leaderboard represents the best scores within a category.
// The list is sorted by score in descending order.
type Leaderboard struct {
	CategoryID string
	Entries    []LeaderboardEntry
}

type LeaderboardEntry struct {
	UserID string
	Score  float64
}
