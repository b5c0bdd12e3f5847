package models

import "time"

const (
	ActivityChallengeSolved   = "CHALLENGE_SOLVED"
	ActivityChallengeResolved = "CHALLENGE_RESOLVED"
	ActivitySubmissionFailed  = "SUBMISSION_FAILED"
	ActivityStreakMilestone   = "STREAK_MILESTONE"
	ActivityContestSolved     = "CONTEST_SOLVED"
	ActivityContestResolved   = "CONTEST_RESOLVED"
	ActivityContestFailed     = "CONTEST_FAILED"
)

// Activity is an append-only audit entry; one row per evaluation
// attempt or milestone award.
type Activity struct {
	ID            int       `db:"id" json:"id"`
	UserID        int       `db:"user_id" json:"user_id"`
	Type          string    `db:"type" json:"type"`
	ChallengeID   *int      `db:"challenge_id" json:"challenge_id,omitempty"`
	ContestID     *int      `db:"contest_id" json:"contest_id,omitempty"`
	PointsAwarded int       `db:"points_awarded" json:"points_awarded"`
	Detail        string    `db:"detail" json:"detail"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
