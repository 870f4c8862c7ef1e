package session_test

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/khojney/quiz/internal/domain"
	"github.com/khojney/quiz/internal/errors"
	"github.com/khojney/quiz/internal/session"
)

func TestNew_RejectsMalformedQuestionSets(t *testing.T) {
	tests := map[string]struct {
		questions []domain.Question
	}{
		"empty question set": {
			questions: nil,
		},
		"question with no correct option": {
			questions: []domain.Question{
				q("q1", "o1", "o2", ""),
			},
		},
		"question with two correct options": {
			questions: []domain.Question{
				{
					QuestionID: "q1",
					Options: []domain.Option{
						{OptionID: "o1", Correct: true},
						{OptionID: "o2", Correct: true},
					},
				},
			},
		},
		"question with no options": {
			questions: []domain.Question{
				{QuestionID: "q1"},
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			_, err := session.New(session.Config{Questions: tt.questions})
			require.Error(t, err)
			require.True(t, errors.Is(err, errors.CodeFailedPrecondition))
		})
	}
}

func TestSession_QuestionOrderIsAPermutation(t *testing.T) {
	var (
		ids       []string
		seen      []string
		questions []domain.Question
	)
	for _, id := range []string{"q1", "q2", "q3", "q4", "q5", "q6", "q7", "q8"} {
		ids = append(ids, id)
		questions = append(questions, q(id, id+"-right", id+"-wrong", id+"-right"))
	}

	h := newHarness(t, questions, 15, session.Hooks{
		OnQuestion: func(_ int, questionID string) {
			seen = append(seen, questionID)
		},
	})

	for range questions {
		require.NoError(t, h.s.SelectPosition(1))
		require.NoError(t, h.s.Advance())
	}

	require.ElementsMatch(t, ids, seen, "every question appears exactly once")
	require.Equal(t, session.PhaseCompleted, h.s.Snapshot().Phase)
}

func TestSession_AnsweredCountTracksCurrentIndex(t *testing.T) {
	h := newHarness(t, threeQuestions(), 15, session.Hooks{})

	for i := 0; i < 3; i++ {
		v := h.s.Snapshot()
		require.Equal(t, i, v.QuestionIndex)
		require.Equal(t, i, v.AnsweredCount, "ledger size equals current index before answering")
		require.NoError(t, h.s.SelectPosition(1))
		require.NoError(t, h.s.Advance())
	}

	res, err := h.s.Result()
	require.NoError(t, err)
	require.Len(t, res.Answers, 3)
}

func TestSession_SelectOptionIsIdempotent(t *testing.T) {
	h := newHarness(t, threeQuestions(), 15, session.Hooks{})

	v := h.s.Snapshot()
	first := v.Options[0].OptionID
	second := v.Options[1].OptionID

	require.NoError(t, h.s.SelectOption(first))
	// A rapid duplicate input must not change the recorded answer.
	require.NoError(t, h.s.SelectOption(second))

	v = h.s.Snapshot()
	require.Equal(t, session.PhaseAnswerLocked, v.Phase)
	require.Equal(t, first, v.ChosenOptionID)
}

func TestSession_SelectUnknownOption(t *testing.T) {
	h := newHarness(t, threeQuestions(), 15, session.Hooks{})

	err := h.s.SelectOption("not-an-option")
	require.True(t, errors.Is(err, errors.CodeInvalidArgument))
	require.Equal(t, session.PhaseAwaitingAnswer, h.s.Snapshot().Phase)

	err = h.s.SelectPosition(99)
	require.True(t, errors.Is(err, errors.CodeInvalidArgument))
}

func TestSession_AdvanceBeforeLockIsNoop(t *testing.T) {
	h := newHarness(t, threeQuestions(), 15, session.Hooks{})

	require.NoError(t, h.s.Advance())
	v := h.s.Snapshot()
	require.Equal(t, session.PhaseAwaitingAnswer, v.Phase)
	require.Equal(t, 0, v.QuestionIndex)
}

func TestSession_TimeoutLocksWithoutLedgerEntry(t *testing.T) {
	var locked []string
	h := newHarness(t, threeQuestions(), 2, session.Hooks{
		OnLocked: func(_, chosenOptionID string) {
			locked = append(locked, chosenOptionID)
		},
	})

	require.Equal(t, 1, h.tick())
	require.Equal(t, 0, h.tick())

	v := h.s.Snapshot()
	require.Equal(t, session.PhaseAnswerLocked, v.Phase)
	require.Equal(t, "", v.ChosenOptionID)
	require.Equal(t, 0, v.AnsweredCount, "timed-out question leaves no ledger entry")
	require.Equal(t, []string{""}, locked)

	// Input after expiry is discarded, never a double transition.
	require.NoError(t, h.s.SelectOption(v.Options[0].OptionID))
	require.Equal(t, 0, h.s.Snapshot().AnsweredCount)
}

func TestSession_ExpiryAndSelectionRace(t *testing.T) {
	h := newHarness(t, threeQuestions(), 1, session.Hooks{})
	opt := h.s.Snapshot().Options[0].OptionID

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.cur.ch <- time.Time{}
	}()
	go func() {
		defer wg.Done()
		_ = h.s.SelectOption(opt)
	}()
	wg.Wait()

	// Whichever transition was applied first won; the loser was a no-op.
	v := h.s.Snapshot()
	require.Equal(t, session.PhaseAnswerLocked, v.Phase)
	if v.ChosenOptionID == "" {
		require.Equal(t, 0, v.AnsweredCount)
	} else {
		require.Equal(t, opt, v.ChosenOptionID)
		require.Equal(t, 1, v.AnsweredCount)
	}
}

func TestSession_SingleQuestionCorrectAnswer(t *testing.T) {
	var completed []domain.Result
	h := newHarness(t, []domain.Question{q("q1", "right", "wrong", "right")}, 15, session.Hooks{
		OnCompleted: func(r domain.Result) {
			completed = append(completed, r)
		},
	})

	h.advanceClock(3 * time.Second)
	require.NoError(t, h.s.SelectOption("right"))
	require.NoError(t, h.s.Advance())

	res, err := h.s.Result()
	require.NoError(t, err)
	require.Equal(t, 1, res.Score)
	require.Equal(t, 1, res.TotalQuestions)
	require.Equal(t, 3, res.ElapsedSeconds)
	require.Equal(t, completed, []domain.Result{res}, "completion hook fires exactly once with the final tally")
}

func TestSession_TimedOutQuestionScoresZero(t *testing.T) {
	h := newHarness(t, threeQuestions(), 2, session.Hooks{})

	// Question 1: answer correctly.
	h.selectCorrect(t)
	require.NoError(t, h.s.Advance())

	// Question 2: let the countdown run out.
	h.tick()
	h.tick()
	require.NoError(t, h.s.Advance())

	// Question 3: answer incorrectly.
	h.selectIncorrect(t)
	require.NoError(t, h.s.Advance())

	res, err := h.s.Result()
	require.NoError(t, err)
	require.Len(t, res.Answers, 2, "only locked choices reach the ledger")
	require.Equal(t, 1, res.Score)
	require.Equal(t, 3, res.TotalQuestions)
}

func TestSession_OptionOrderResolvesPositionsLive(t *testing.T) {
	h := newHarness(t, threeQuestions(), 15, session.Hooks{})

	v := h.s.Snapshot()
	want := v.Options[1].OptionID
	require.NoError(t, h.s.SelectPosition(2))
	require.Equal(t, want, h.s.Snapshot().ChosenOptionID)
}

func TestSession_CancelledCountdownTickIsDiscarded(t *testing.T) {
	// The in-flight tick races the lock-and-advance; repeat so both
	// interleavings are exercised.
	for i := 0; i < 10; i++ {
		h := newHarness(t, threeQuestions(), 5, session.Hooks{})

		// Leave a tick queued on the first question's ticker, then lock
		// and advance before the countdown goroutine settles.
		h.cur.ch <- time.Time{}
		require.NoError(t, h.s.SelectPosition(1))
		require.NoError(t, h.s.Advance())

		v := h.s.Snapshot()
		require.Equal(t, 1, v.QuestionIndex)
		require.Equal(t, 5, v.RemainingSeconds, "a cancelled countdown's tick must not touch the next question's budget")

		// The queued tick may have landed on the first question before the
		// lock; drop that report so the next read is the second question's
		// first tick.
		for len(h.ticks) > 0 {
			<-h.ticks
		}
		require.Equal(t, 4, h.tick())
	}
}

func TestSession_CountdownResetsPerQuestion(t *testing.T) {
	h := newHarness(t, threeQuestions(), 5, session.Hooks{})

	require.Equal(t, 4, h.tick())
	require.Equal(t, 3, h.tick())
	require.NoError(t, h.s.SelectPosition(1))
	require.NoError(t, h.s.Advance())

	v := h.s.Snapshot()
	require.Equal(t, 1, v.QuestionIndex)
	require.Equal(t, 5, v.RemainingSeconds, "budget resets when a new question becomes current")
}

func TestSession_ResultBeforeCompletion(t *testing.T) {
	h := newHarness(t, threeQuestions(), 15, session.Hooks{})

	_, err := h.s.Result()
	require.True(t, errors.Is(err, errors.CodeFailedPrecondition))
}

// --- harness ---

type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

type harness struct {
	t   *testing.T
	s   *session.Session
	cur *manualTicker

	mu  sync.Mutex
	now time.Time

	tickers chan *manualTicker
	ticks   chan int
}

func newHarness(t *testing.T, questions []domain.Question, budget int, hooks Hooks) *harness {
	t.Helper()

	h := &harness{
		t:       t,
		now:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		tickers: make(chan *manualTicker, 16),
		ticks:   make(chan int, 64),
	}

	userTick := hooks.OnTick
	hooks.OnTick = func(remaining int) {
		h.ticks <- remaining
		if userTick != nil {
			userTick(remaining)
		}
	}

	s, err := session.New(session.Config{
		Questions:     questions,
		BudgetSeconds: budget,
		NewTickerFunc: func(time.Duration) session.Ticker {
			// Buffered so a tick raced with cancellation never blocks the
			// sender.
			m := &manualTicker{ch: make(chan time.Time, 1)}
			h.tickers <- m
			return m
		},
		Clock: func() time.Time {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.now
		},
		Rand:  rand.New(rand.NewSource(42)),
		Hooks: hooks,
	})
	require.NoError(t, err)
	h.s = s
	h.cur = <-h.tickers
	return h
}

// Hooks aliases the session type so harness call sites read naturally.
type Hooks = session.Hooks

// tick drives one countdown second and returns the remaining value the
// session reported for it.
func (h *harness) tick() int {
	h.t.Helper()
	// A new ticker appears whenever a new question became current; always
	// drive the newest one.
	h.refreshTicker()
	h.cur.ch <- time.Time{}
	select {
	case remaining := <-h.ticks:
		return remaining
	case <-time.After(5 * time.Second):
		h.t.Fatal("timed out waiting for countdown tick")
		return 0
	}
}

func (h *harness) advanceClock(d time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()
}

func (h *harness) selectCorrect(t *testing.T) {
	t.Helper()
	v := h.s.Snapshot()
	require.NoError(t, h.s.SelectOption(correctOf(v.QuestionID)))
	h.refreshTicker()
}

func (h *harness) selectIncorrect(t *testing.T) {
	t.Helper()
	v := h.s.Snapshot()
	for _, o := range v.Options {
		if o.OptionID != correctOf(v.QuestionID) {
			require.NoError(t, h.s.SelectOption(o.OptionID))
			h.refreshTicker()
			return
		}
	}
	t.Fatal("no incorrect option found")
}

func (h *harness) refreshTicker() {
	for {
		select {
		case h.cur = <-h.tickers:
		default:
			return
		}
	}
}

// --- fixtures ---

// q builds a two-option question; correctID may be "" for an invalid one.
func q(id, optA, optB, correctID string) domain.Question {
	return domain.Question{
		QuestionID:   id,
		QuestionText: "question " + id,
		Options: []domain.Option{
			{OptionID: optA, OptionText: "option " + optA, Correct: optA == correctID},
			{OptionID: optB, OptionText: "option " + optB, Correct: optB == correctID},
		},
	}
}

func correctOf(questionID string) string {
	return questionID + "-right"
}

func threeQuestions() []domain.Question {
	return []domain.Question{
		q("q1", "q1-right", "q1-wrong", "q1-right"),
		q("q2", "q2-right", "q2-wrong", "q2-right"),
		q("q3", "q3-right", "q3-wrong", "q3-right"),
	}
}
