package session

import "github.com/khojney/quiz/internal/errors"

// Ledger is the insertion-ordered record of locked-in answers for one
// run. Entries are appended exactly once per question and read once at
// scoring time.
type Ledger struct {
	order  []string
	chosen map[string]string
}

func NewLedger() *Ledger {
	return &Ledger{chosen: make(map[string]string)}
}

// Record stores the chosen option for a question. Recording the same
// question twice is a caller bug, not a user-facing condition.
func (l *Ledger) Record(questionID, optionID string) error {
	if _, ok := l.chosen[questionID]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("ledger: question %s already answered", questionID))
	}
	l.order = append(l.order, questionID)
	l.chosen[questionID] = optionID
	return nil
}

// Get returns the recorded option for a question, if any.
func (l *Ledger) Get(questionID string) (string, bool) {
	optionID, ok := l.chosen[questionID]
	return optionID, ok
}

func (l *Ledger) Size() int {
	return len(l.order)
}

type LedgerEntry struct {
	QuestionID string
	OptionID   string
}

// Entries returns the recorded answers in the order they were locked in.
func (l *Ledger) Entries() []LedgerEntry {
	entries := make([]LedgerEntry, 0, len(l.order))
	for _, q := range l.order {
		entries = append(entries, LedgerEntry{QuestionID: q, OptionID: l.chosen[q]})
	}
	return entries
}
