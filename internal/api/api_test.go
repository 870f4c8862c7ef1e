package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/khojney/quiz/internal/api"
	"github.com/khojney/quiz/internal/attempt"
	"github.com/khojney/quiz/internal/domain"
	"github.com/khojney/quiz/internal/play"
	"github.com/khojney/quiz/internal/questionbank"
	"github.com/khojney/quiz/internal/session"
)

func TestAPI_QuizFlow(t *testing.T) {
	srv := makeServer(t)

	// Start a run.
	resp := postJSON(t, srv, "/v1/quizzes", map[string]any{
		"user_id":       "u1",
		"category_slug": "general-knowledge",
		"quiz_mode":     "timed",
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	var started struct {
		AttemptID string `json:"AttemptID"`
		View      struct {
			Phase          session.Phase `json:"Phase"`
			TotalQuestions int           `json:"TotalQuestions"`
			Options        []struct {
				OptionID string `json:"OptionID"`
			} `json:"Options"`
		} `json:"View"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &started))
	require.NotEmpty(t, started.AttemptID)
	require.Equal(t, session.PhaseAwaitingAnswer, started.View.Phase)
	require.Equal(t, 2, started.View.TotalQuestions)

	// Answer by position and advance through both questions.
	base := "/v1/quizzes/" + started.AttemptID
	for i := 0; i < 2; i++ {
		resp = postJSON(t, srv, base+"/answers", map[string]any{"position": 1})
		require.Equal(t, http.StatusOK, resp.Code)

		resp = postJSON(t, srv, base+"/next", nil)
		require.Equal(t, http.StatusOK, resp.Code)
	}

	// The final tally is readable immediately, independent of submission.
	resp = get(t, srv, base+"/result")
	require.Equal(t, http.StatusOK, resp.Code)

	var result domain.Result
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, 2, result.TotalQuestions)
	require.Len(t, result.Answers, 2)
}

func TestAPI_AnswerValidation(t *testing.T) {
	srv := makeServer(t)

	resp := postJSON(t, srv, "/v1/quizzes", map[string]any{
		"user_id":       "u1",
		"category_slug": "general-knowledge",
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	var started struct {
		AttemptID string `json:"AttemptID"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &started))

	// Neither option_id nor position.
	resp = postJSON(t, srv, "/v1/quizzes/"+started.AttemptID+"/answers", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	// Foreign option.
	resp = postJSON(t, srv, "/v1/quizzes/"+started.AttemptID+"/answers", map[string]any{
		"option_id": "not-an-option",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAPI_UnknownQuiz(t *testing.T) {
	srv := makeServer(t)

	resp := get(t, srv, "/v1/quizzes/nope")
	require.Equal(t, http.StatusNotFound, resp.Code)
}

// --- helpers ---

func makeServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	questions := questionbank.NewRepository(questionbank.NewStaticLoader(testSets()), time.Minute)

	p := play.NewService(play.Config{
		Attempts:  &stubAttempts{},
		Questions: questions,
		NewTickerFunc: func(time.Duration) session.Ticker {
			return quietTicker{ch: make(chan time.Time)}
		},
	})

	r := gin.New()
	api.New(api.Config{
		Router:    r,
		Play:      p,
		Questions: questions,
	})

	return r
}

func postJSON(t *testing.T, srv *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, srv *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

type quietTicker struct {
	ch chan time.Time
}

func (q quietTicker) C() <-chan time.Time { return q.ch }
func (q quietTicker) Stop()               {}

type stubAttempts struct {
	seq int64
}

func (s *stubAttempts) Create(_ context.Context, req attempt.CreateRequest) (domain.Attempt, error) {
	return domain.Attempt{
		AttemptID:      fmt.Sprintf("a%d", atomic.AddInt64(&s.seq, 1)),
		UserID:         req.UserID,
		CategoryID:     req.CategoryID,
		Status:         domain.AttemptStatusStarted,
		TotalQuestions: req.TotalQuestions,
		StartedAt:      time.Now(),
	}, nil
}

func (s *stubAttempts) Finalize(_ context.Context, req attempt.FinalizeRequest) (domain.Attempt, error) {
	return domain.Attempt{
		AttemptID: req.AttemptID,
		Status:    domain.AttemptStatusCompleted,
		Score:     req.Result.Score,
	}, nil
}

func testSets() map[string]questionbank.QuestionSet {
	return map[string]questionbank.QuestionSet{
		"general-knowledge": {
			Category: domain.Category{CategoryID: "c1", Slug: "general-knowledge", Name: "General Knowledge"},
			Questions: []domain.Question{
				{
					QuestionID:   "q1",
					QuestionText: "question q1",
					Options: []domain.Option{
						{OptionID: "q1-right", OptionText: "right", Correct: true},
						{OptionID: "q1-wrong", OptionText: "wrong"},
					},
				},
				{
					QuestionID:   "q2",
					QuestionText: "question q2",
					Options: []domain.Option{
						{OptionID: "q2-right", OptionText: "right", Correct: true},
						{OptionID: "q2-wrong", OptionText: "wrong"},
					},
				},
			},
		},
	}
}
