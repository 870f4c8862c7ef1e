package session

import "github.com/khojney/quiz/internal/domain"

// tally computes the final score for a run: one point per recorded
// answer that matches its question's correct option. Questions absent
// from the ledger contribute nothing.
func tally(questions []domain.Question, ledger *Ledger) (int, []domain.RecordedAnswer) {
	correctByQuestion := make(map[string]string, len(questions))
	for _, q := range questions {
		correctByQuestion[q.QuestionID] = q.CorrectOptionID()
	}

	score := 0
	answers := make([]domain.RecordedAnswer, 0, ledger.Size())
	for _, e := range ledger.Entries() {
		correct := e.OptionID == correctByQuestion[e.QuestionID]
		if correct {
			score++
		}
		answers = append(answers, domain.RecordedAnswer{
			QuestionID: e.QuestionID,
			OptionID:   e.OptionID,
			Correct:    correct,
		})
	}
	return score, answers
}
