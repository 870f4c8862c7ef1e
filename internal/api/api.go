// Package api exposes the quiz engine over HTTP and websockets.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khojney/quiz/internal/analytics"
	"github.com/khojney/quiz/internal/attempt"
	"github.com/khojney/quiz/internal/errors"
	"github.com/khojney/quiz/internal/leaderboard"
	"github.com/khojney/quiz/internal/play"
)

type Config struct {
	Router      *gin.Engine
	Play        *play.Service
	Attempts    *attempt.Service
	Leaderboard *leaderboard.Service
	Analytics   *analytics.Service
	Questions   play.QuestionSource
}

type API struct {
	play        *play.Service
	attempts    *attempt.Service
	leaderboard *leaderboard.Service
	analytics   *analytics.Service
	questions   play.QuestionSource
	ws          *wsHandler
}

func New(c Config) *API {
	a := &API{
		play:        c.Play,
		attempts:    c.Attempts,
		leaderboard: c.Leaderboard,
		analytics:   c.Analytics,
		questions:   c.Questions,
		ws:          newWSHandler(c.Play),
	}
	a.register(c.Router)
	return a
}

func (a *API) register(r *gin.Engine) {
	v1 := r.Group("/v1")

	v1.POST("/quizzes", a.startQuiz)
	v1.GET("/quizzes/:id", a.getQuiz)
	v1.POST("/quizzes/:id/answers", a.answer)
	v1.POST("/quizzes/:id/next", a.next)
	v1.GET("/quizzes/:id/result", a.getResult)
	v1.POST("/quizzes/:id/submission", a.retrySubmission)
	v1.DELETE("/quizzes/:id", a.abandonQuiz)
	v1.GET("/quizzes/:id/events", a.ws.serve)

	v1.GET("/attempts", a.listAttempts)
	v1.GET("/attempts/:id", a.getAttempt)

	v1.GET("/categories/:slug/leaderboard", a.getLeaderboard)
	v1.GET("/analytics", a.getAnalytics)
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}

type startQuizRequest struct {
	UserID        string `json:"user_id"`
	CategorySlug  string `json:"category_slug"`
	QuizMode      string `json:"quiz_mode"`
	QuestionCount int    `json:"question_count"`
}

func (a *API) startQuiz(c *gin.Context) {
	var req startQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.play.StartQuiz(c.Request.Context(), play.StartQuizRequest{
		UserID:        req.UserID,
		CategorySlug:  req.CategorySlug,
		QuizMode:      req.QuizMode,
		QuestionCount: req.QuestionCount,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a *API) getQuiz(c *gin.Context) {
	v, err := a.play.Snapshot(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

type answerRequest struct {
	OptionID string `json:"option_id"`
	// Position is the 1-based on-screen slot, for digit-key shortcuts.
	// Used only when OptionID is empty.
	Position int `json:"position"`
}

func (a *API) answer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	id := c.Param("id")
	var err error
	switch {
	case req.OptionID != "":
		err = a.play.SelectOption(id, req.OptionID)
	case req.Position > 0:
		err = a.play.SelectPosition(id, req.Position)
	default:
		err = errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("api: either option_id or position is required"))
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	v, err := a.play.Snapshot(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (a *API) next(c *gin.Context) {
	id := c.Param("id")
	if err := a.play.Advance(id); err != nil {
		abortWithError(c, err)
		return
	}

	v, err := a.play.Snapshot(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (a *API) getResult(c *gin.Context) {
	res, err := a.play.Result(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) retrySubmission(c *gin.Context) {
	if err := a.play.RetrySubmission(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "submitted"})
}

func (a *API) abandonQuiz(c *gin.Context) {
	if err := a.play.Abandon(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) listAttempts(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		abortWithError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("api: user_id is required")))
		return
	}

	attempts, err := a.attempts.List(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

func (a *API) getAttempt(c *gin.Context) {
	id := c.Param("id")

	att, err := a.attempts.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	answers, err := a.attempts.GetAnswers(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempt": att,
		"answers": answers,
	})
}

func (a *API) getLeaderboard(c *gin.Context) {
	set, err := a.questions.GetQuestionSet(c.Request.Context(), c.Param("slug"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	lb, err := a.leaderboard.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		CategoryID: set.Category.CategoryID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

func (a *API) getAnalytics(c *gin.Context) {
	summary, err := a.analytics.Summarize(c.Request.Context(), analytics.SummarizeRequest{
		UserID: c.Query("user_id"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
