package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"codearena/internal/apperrors"
	"codearena/internal/models"
	"codearena/internal/services"

	"github.com/jmoiron/sqlx"
)

type ChallengeRepository interface {
	GetChallenges(ctx context.Context) ([]models.ChallengeListItem, error)
	GetChallengeByID(ctx context.Context, challengeID int) (*models.ChallengeDetail, error)
	GetChallengeWithTestCases(ctx context.Context, challengeID int) (*models.Challenge, error)
	GetSolvedChallengeIDs(ctx context.Context, userID int) (map[int]bool, error)
}

type challengeRepository struct {
	db    *sqlx.DB
	cache services.Cache
}

func NewChallengeRepository(db *sqlx.DB, cache services.Cache) ChallengeRepository {
	return &challengeRepository{db: db, cache: cache}
}

func (r *challengeRepository) GetChallenges(ctx context.Context) ([]models.ChallengeListItem, error) {
	query := `SELECT id, title, difficulty, points FROM challenges`

	var challenges []models.ChallengeListItem
	if err := r.db.SelectContext(ctx, &challenges, query); err != nil {
		return nil, fmt.Errorf("failed to get challenges: %w", err)
	}

	return challenges, nil
}

func (r *challengeRepository) GetChallengeByID(ctx context.Context, challengeID int) (*models.ChallengeDetail, error) {
	query := `SELECT id, title, description, difficulty, points, time_limit_ms, memory_limit_mb
              FROM challenges WHERE id = ?`

	var detail models.ChallengeDetail
	if err := r.db.GetContext(ctx, &detail, query, challengeID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Newf(apperrors.NotFound, "challenge not found: %d", challengeID)
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	statsQuery := `
        SELECT
            COUNT(*) as total_submissions,
            COUNT(CASE WHEN status = 'ACCEPTED' THEN 1 END) as accepted_submissions
        FROM submissions
        WHERE challenge_id = ?`

	var stats struct {
		TotalSubmissions    int `db:"total_submissions"`
		AcceptedSubmissions int `db:"accepted_submissions"`
	}
	if err := r.db.GetContext(ctx, &stats, statsQuery, challengeID); err != nil {
		return nil, fmt.Errorf("failed to get submission stats: %w", err)
	}

	detail.TotalSubmissions = stats.TotalSubmissions
	detail.AcceptedSubmissions = stats.AcceptedSubmissions
	if stats.TotalSubmissions > 0 {
		detail.AcceptanceRate = (float64(stats.AcceptedSubmissions) / float64(stats.TotalSubmissions)) * 100
	}

	return &detail, nil
}

// GetChallengeWithTestCases loads the full challenge the evaluation
// engine needs, cached for an hour since test cases are read-only here.
func (r *challengeRepository) GetChallengeWithTestCases(ctx context.Context, challengeID int) (*models.Challenge, error) {
	cacheKey := fmt.Sprintf("challenge:%d:full", challengeID)

	return services.Remember(ctx, r.cache, cacheKey, 1*time.Hour, func() (*models.Challenge, error) {
		query := `SELECT id, title, description, difficulty, points, time_limit_ms, memory_limit_mb
                  FROM challenges WHERE id = ?`

		var challenge models.Challenge
		if err := r.db.GetContext(ctx, &challenge, query, challengeID); err != nil {
			if err == sql.ErrNoRows {
				return nil, apperrors.Newf(apperrors.NotFound, "challenge not found: %d", challengeID)
			}
			return nil, fmt.Errorf("failed to get challenge: %w", err)
		}

		casesQuery := `SELECT id, challenge_id, input, expected_output, is_hidden, explanation
                       FROM test_cases WHERE challenge_id = ? ORDER BY id`

		if err := r.db.SelectContext(ctx, &challenge.TestCases, casesQuery, challengeID); err != nil {
			return nil, fmt.Errorf("failed to get test cases: %w", err)
		}

		return &challenge, nil
	})
}

func (r *challengeRepository) GetSolvedChallengeIDs(ctx context.Context, userID int) (map[int]bool, error) {
	query := `SELECT DISTINCT challenge_id FROM submissions WHERE user_id = ? AND status = 'ACCEPTED'`

	var challengeIDs []int
	if err := r.db.SelectContext(ctx, &challengeIDs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get solved challenge IDs: %w", err)
	}

	solved := make(map[int]bool, len(challengeIDs))
	for _, id := range challengeIDs {
		solved[id] = true
	}

	return solved, nil
}
