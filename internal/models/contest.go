package models

import "time"

const (
	ContestUpcoming = "UPCOMING"
	ContestOngoing  = "ONGOING"
	ContestEnded    = "ENDED"
)

type Contest struct {
	ID       int       `db:"id" json:"id"`
	Title    string    `db:"title" json:"title"`
	Status   string    `db:"status" json:"status"`
	StartsAt time.Time `db:"starts_at" json:"starts_at"`
	EndsAt   time.Time `db:"ends_at" json:"ends_at"`
}

// ContestChallenge links a challenge into a contest with its own point
// value.
type ContestChallenge struct {
	ID          int `db:"id" json:"id"`
	ContestID   int `db:"contest_id" json:"contest_id"`
	ChallengeID int `db:"challenge_id" json:"challenge_id"`
	Points      int `db:"points" json:"points"`
}

type ContestParticipant struct {
	ID        int `db:"id" json:"id"`
	ContestID int `db:"contest_id" json:"contest_id"`
	UserID    int `db:"user_id" json:"user_id"`
	Score     int `db:"score" json:"score"`
}

// ContestSubmission holds the latest attempt for a (participant,
// contest challenge) pair. At most one row per pair; resubmissions
// replace it.
type ContestSubmission struct {
	ID                 int       `db:"id" json:"id"`
	ParticipantID      int       `db:"participant_id" json:"participant_id"`
	ContestChallengeID int       `db:"contest_challenge_id" json:"contest_challenge_id"`
	SourceCode         string    `db:"source_code" json:"source_code"`
	Language           string    `db:"language" json:"language"`
	Status             string    `db:"status" json:"status"`
	RuntimeMs          int       `db:"runtime_ms" json:"runtime_ms"`
	MemoryMb           int       `db:"memory_mb" json:"memory_mb"`
	Score              int       `db:"score" json:"score"`
	TestResults        string    `db:"test_results" json:"-"`
	SubmittedAt        time.Time `db:"submitted_at" json:"submitted_at"`
}

type StandingsRow struct {
	UserID   int    `db:"user_id" json:"user_id"`
	Username string `db:"username" json:"username"`
	Score    int    `db:"score" json:"score"`
}
