package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/khojney/quiz/internal/domain"
	"github.com/khojney/quiz/internal/errors"
	"github.com/khojney/quiz/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameAttemptCompleted, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventAttemptCompleted))
	})

	return s
}

type GetLeaderboardRequest struct {
	CategoryID string
}

// GetLeaderboard returns the best score per user within a category,
// highest first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.CategoryID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: category=%s", req.CategoryID))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			UserID: z.Member.(string),
			Score:  z.Score,
		})
	}

	return &domain.Leaderboard{
		CategoryID: req.CategoryID,
		Entries:    entries,
	}, nil
}

// UpdateLeaderboard records a completed attempt. Only a new personal
// best changes the stored score (ZADD GT), so a worse re-run never
// lowers a user's position.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventAttemptCompleted) error {
	a := e.Attempt

	if err := s.redis.ZAddGT(ctx, s.getLeaderboardKey(a.CategoryID), redis.Z{
		Score:  float64(a.Score),
		Member: a.UserID,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, a)
}

// schedulePublishLeaderboard publishes the leaderboard changes after a certain interval.
// Instead of publishing leaderboard changes immediately, publishes them after a certain interval.
// Because many attempts can complete in a short time, this reduces the number of published events.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, a domain.Attempt) error {
	// This is a simple way to prevent multiple instances of the service from publishing the leaderboard.
	// But it's not perfect and can be improved.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(a.CategoryID), a.CompletedAt.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, a)
}

func (s *Service) publishLeaderboard(ctx context.Context, a domain.Attempt) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		CategoryID: a.CategoryID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: category=%s: %w", a.CategoryID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return s.redis.Set(ctx, s.getLeaderboardTimeKey(a.CategoryID), a.CompletedAt.UnixMilli(), publishInterval).Err()
}

func (s *Service) getLeaderboardKey(categoryID string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, categoryID)
}

func (s *Service) getLeaderboardTimeKey(categoryID string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, categoryID)
}
