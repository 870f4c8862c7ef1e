// Package session implements the timed quiz run: question sequencing,
// per-question countdown, answer locking and scoring. It owns no I/O;
// persistence and transport live with the callers.
package session

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/khojney/quiz/internal/domain"
	"github.com/khojney/quiz/internal/errors"
)

// DefaultBudgetSeconds is the per-question time budget used when the
// config leaves it unset.
const DefaultBudgetSeconds = 15

type Phase string

const (
	// PhaseAwaitingAnswer is entered for each new current question.
	PhaseAwaitingAnswer Phase = "awaiting_answer"
	// PhaseAnswerLocked means the current question's answer is fixed,
	// by explicit choice or by timeout, and the run can advance.
	PhaseAnswerLocked Phase = "answer_locked"
	// PhaseCompleted is terminal; the tally is final.
	PhaseCompleted Phase = "completed"
)

// Hooks receive run lifecycle notifications. They are invoked with the
// session's internal lock held and must not call back into the session;
// hand work off to a channel or goroutine instead.
type Hooks struct {
	// OnTick fires once per countdown second with the new remaining value.
	OnTick func(remaining int)
	// OnLocked fires when the current question's answer is fixed.
	// chosenOptionID is "" when the countdown expired with no choice.
	OnLocked func(questionID, chosenOptionID string)
	// OnQuestion fires when a new question becomes current.
	OnQuestion func(index int, questionID string)
	// OnCompleted fires exactly once, when the final question is advanced
	// past and the tally is computed.
	OnCompleted func(result domain.Result)
}

type Config struct {
	// Questions is the immutable question set for the run. Must be
	// non-empty and every question must carry exactly one correct option.
	Questions []domain.Question
	// BudgetSeconds is the per-question countdown; DefaultBudgetSeconds
	// when zero.
	BudgetSeconds int
	// NewTickerFunc overrides the tick source, for deterministic tests.
	NewTickerFunc NewTickerFunc
	// Clock overrides the time source used for elapsed-time accounting.
	Clock func() time.Time
	// Rand overrides the randomness used for shuffling.
	Rand *rand.Rand

	Hooks Hooks
}

// Session is a single quiz run. It is owned by one logical caller;
// user input and timer expiry are linearized on an internal mutex, so
// for any question exactly one of {selection, timeout} locks the answer.
type Session struct {
	budget int
	clock  func() time.Time
	rnd    *rand.Rand
	hooks  Hooks
	cd     *countdown

	mu           sync.Mutex
	questions    []domain.Question // shuffled once at construction
	currentIndex int
	gen          int             // countdown generation, bumped per question
	options      []domain.Option // current question's shuffled option order
	chosen       string          // option locked for the current question, "" on timeout
	ledger       *Ledger
	phase        Phase
	remaining    int
	startedAt    time.Time
	result       domain.Result
}

// New validates the question set, shuffles the question order, enters
// the first question and starts its countdown.
func New(c Config) (*Session, error) {
	if len(c.Questions) == 0 {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session: empty question set"))
	}
	for _, q := range c.Questions {
		if err := validateQuestion(q); err != nil {
			return nil, err
		}
	}

	if c.BudgetSeconds <= 0 {
		c.BudgetSeconds = DefaultBudgetSeconds
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(c.Clock().UnixNano()))
	}

	s := &Session{
		budget:    c.BudgetSeconds,
		clock:     c.Clock,
		rnd:       c.Rand,
		hooks:     c.Hooks,
		cd:        newCountdown(c.NewTickerFunc),
		questions: shuffled(c.Rand, c.Questions),
		ledger:    NewLedger(),
		startedAt: c.Clock(),
	}

	s.mu.Lock()
	s.enterQuestionLocked(0)
	s.mu.Unlock()

	return s, nil
}

func validateQuestion(q domain.Question) error {
	if len(q.Options) == 0 {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session: question %s has no options", q.QuestionID))
	}
	correct := 0
	for _, o := range q.Options {
		if o.Correct {
			correct++
		}
	}
	if correct != 1 {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session: question %s has %d correct options, want 1", q.QuestionID, correct))
	}
	return nil
}

// enterQuestionLocked makes questions[i] current: fresh option order,
// full budget, countdown running.
func (s *Session) enterQuestionLocked(i int) {
	s.currentIndex = i
	s.options = shuffled(s.rnd, s.questions[i].Options)
	s.chosen = ""
	s.remaining = s.budget
	s.phase = PhaseAwaitingAnswer
	s.gen++
	gen := s.gen
	if s.hooks.OnQuestion != nil {
		s.hooks.OnQuestion(i, s.questions[i].QuestionID)
	}
	s.cd.start(func() { s.onTick(gen) })
}

// onTick runs on the countdown goroutine, serialized by s.mu. gen names
// the countdown the tick belongs to; a tick from a cancelled countdown
// can still arrive here after the next question started, and must never
// touch the new question's budget.
func (s *Session) onTick(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.phase != PhaseAwaitingAnswer {
		// The tick lost a race: the answer was locked, or a new question
		// (with its own countdown) became current before we took the lock.
		return
	}

	s.remaining--
	if s.hooks.OnTick != nil {
		s.hooks.OnTick(s.remaining)
	}
	if s.remaining > 0 {
		return
	}

	// Expiry is an implicit lock with no ledger entry: the ledger only
	// ever holds genuine user choices.
	s.lockLocked("", false)
}

// SelectOption locks the given option for the current question. Outside
// PhaseAwaitingAnswer it is a no-op, which makes double-clicks and
// input-vs-expiry races safe: whichever transition lands first wins.
// An option that does not belong to the current question is rejected.
func (s *Session) SelectOption(optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseAwaitingAnswer {
		return nil
	}

	found := false
	for _, o := range s.options {
		if o.OptionID == optionID {
			found = true
			break
		}
	}
	if !found {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("session: option %s does not belong to the current question", optionID))
	}

	s.lockLocked(optionID, true)
	return nil
}

// SelectPosition locks the option at the given 1-based position in the
// current shuffled option order. Positions always resolve against the
// live order, so digit-key shortcuts can never hit a stale layout.
func (s *Session) SelectPosition(pos int) error {
	s.mu.Lock()
	if s.phase != PhaseAwaitingAnswer {
		s.mu.Unlock()
		return nil
	}
	if pos < 1 || pos > len(s.options) {
		s.mu.Unlock()
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("session: position %d out of range [1, %d]", pos, len(s.options)))
	}
	optionID := s.options[pos-1].OptionID
	s.lockLocked(optionID, true)
	s.mu.Unlock()
	return nil
}

func (s *Session) lockLocked(optionID string, record bool) {
	q := s.questions[s.currentIndex]
	if record {
		// The phase guard guarantees at most one record per question, so
		// a duplicate here would be a bug in this file.
		if err := s.ledger.Record(q.QuestionID, optionID); err != nil {
			panic(err)
		}
		s.chosen = optionID
	}
	s.phase = PhaseAnswerLocked
	s.cd.cancel()
	if s.hooks.OnLocked != nil {
		s.hooks.OnLocked(q.QuestionID, optionID)
	}
}

// Advance moves past a locked question: to the next question, or to the
// final tally when the last question is locked. In PhaseAwaitingAnswer
// it is a no-op, guarding against "next" arriving before a lock.
func (s *Session) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseAnswerLocked {
		return nil
	}

	if s.currentIndex+1 < len(s.questions) {
		s.enterQuestionLocked(s.currentIndex + 1)
		return nil
	}

	s.completeLocked()
	return nil
}

func (s *Session) completeLocked() {
	s.phase = PhaseCompleted
	s.cd.cancel()

	score, answers := tally(s.questions, s.ledger)
	elapsed := int(math.Round(s.clock().Sub(s.startedAt).Seconds()))
	s.result = domain.Result{
		Score:          score,
		TotalQuestions: len(s.questions),
		ElapsedSeconds: elapsed,
		Answers:        answers,
	}

	if s.hooks.OnCompleted != nil {
		s.hooks.OnCompleted(s.result)
	}
}

// Result returns the final tally of a completed run.
func (s *Session) Result() (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseCompleted {
		return domain.Result{}, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session: run is not completed"))
	}
	return s.result, nil
}

// Close stops the countdown without completing the run. Used when the
// owner abandons the session; the run is unrecoverable afterwards.
func (s *Session) Close() {
	s.cd.cancel()
}

// ViewOption is an option as shown to the learner: correctness stays
// server-side until the answer is locked.
type ViewOption struct {
	OptionID   string
	OptionText string
}

// View is a read-only snapshot of the run for rendering.
type View struct {
	Phase            Phase
	QuestionIndex    int
	TotalQuestions   int
	QuestionID       string
	QuestionText     string
	Options          []ViewOption
	RemainingSeconds int
	ChosenOptionID   string
	// CorrectOptionID is revealed only once the answer is locked.
	CorrectOptionID string
	AnsweredCount   int
	StartedAt       time.Time
}

func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.questions[s.currentIndex]
	v := View{
		Phase:            s.phase,
		QuestionIndex:    s.currentIndex,
		TotalQuestions:   len(s.questions),
		QuestionID:       q.QuestionID,
		QuestionText:     q.QuestionText,
		Options:          make([]ViewOption, 0, len(s.options)),
		RemainingSeconds: s.remaining,
		ChosenOptionID:   s.chosen,
		AnsweredCount:    s.ledger.Size(),
		StartedAt:        s.startedAt,
	}
	for _, o := range s.options {
		v.Options = append(v.Options, ViewOption{OptionID: o.OptionID, OptionText: o.OptionText})
	}
	if s.phase != PhaseAwaitingAnswer {
		v.CorrectOptionID = q.CorrectOptionID()
	}
	return v
}
