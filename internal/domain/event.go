package domain

const (
	EventNameAttemptCompleted   = "attempt.completed"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventAttemptCompleted struct {
	Attempt Attempt
}

func (EventAttemptCompleted) Name() string { return EventNameAttemptCompleted }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
