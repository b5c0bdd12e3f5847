package models

// TestCase belongs to a challenge and is read-only to the evaluation
// engine. Hidden cases never run in "run" mode.
type TestCase struct {
	ID             int     `db:"id" json:"id"`
	ChallengeID    int     `db:"challenge_id" json:"challenge_id"`
	Input          string  `db:"input" json:"input"`
	ExpectedOutput string  `db:"expected_output" json:"expected_output"`
	IsHidden       bool    `db:"is_hidden" json:"is_hidden"`
	Explanation    *string `db:"explanation" json:"explanation,omitempty"`
}

type Challenge struct {
	ID            int    `db:"id" json:"id"`
	Title         string `db:"title" json:"title"`
	Description   string `db:"description" json:"description"`
	Difficulty    string `db:"difficulty" json:"difficulty"`
	Points        int    `db:"points" json:"points"`
	TimeLimitMs   int    `db:"time_limit_ms" json:"time_limit_ms"`
	MemoryLimitMb int    `db:"memory_limit_mb" json:"memory_limit_mb"`

	TestCases []TestCase `db:"-" json:"test_cases,omitempty"`
}

type ChallengeListItem struct {
	ID         int    `db:"id" json:"id"`
	Title      string `db:"title" json:"title"`
	Difficulty string `db:"difficulty" json:"difficulty"`
	Points     int    `db:"points" json:"points"`
	IsSolved   bool   `db:"-" json:"is_solved"`
}

type ChallengeDetail struct {
	Challenge
	TotalSubmissions    int     `db:"-" json:"total_submissions"`
	AcceptedSubmissions int     `db:"-" json:"accepted_submissions"`
	AcceptanceRate      float64 `db:"-" json:"acceptance_rate"`
	IsSolved            bool    `db:"-" json:"is_solved"`
}
