package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"codearena/internal/apperrors"
	"codearena/internal/models"

	"github.com/jmoiron/sqlx"
)

type ContestRepository interface {
	GetContest(ctx context.Context, contestID int) (*models.Contest, error)
	GetStandings(ctx context.Context, contestID int) ([]models.StandingsRow, error)
}

type contestRepository struct {
	db *sqlx.DB
}

func NewContestRepository(db *sqlx.DB) ContestRepository {
	return &contestRepository{db: db}
}

func (r *contestRepository) GetContest(ctx context.Context, contestID int) (*models.Contest, error) {
	query := `SELECT id, title, status, starts_at, ends_at FROM contests WHERE id = ?`

	var contest models.Contest
	if err := r.db.GetContext(ctx, &contest, query, contestID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Newf(apperrors.NotFound, "contest not found: %d", contestID)
		}
		return nil, fmt.Errorf("failed to get contest: %w", err)
	}
	return &contest, nil
}

func (r *contestRepository) GetStandings(ctx context.Context, contestID int) ([]models.StandingsRow, error) {
	query := `SELECT p.user_id, u.username, p.score
              FROM contest_participants p
              JOIN users u ON u.id = p.user_id
              WHERE p.contest_id = ?
              ORDER BY p.score DESC, u.username ASC`

	var rows []models.StandingsRow
	if err := r.db.SelectContext(ctx, &rows, query, contestID); err != nil {
		return nil, fmt.Errorf("failed to get standings: %w", err)
	}
	return rows, nil
}
