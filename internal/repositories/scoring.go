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

// scoringRepository backs the scoring pipeline. Writes run inside a
// serializable transaction so the acceptance check and the award
// cannot interleave with a concurrent submission for the same pair.
type scoringRepository struct {
	db *sqlx.DB
}

func NewScoringRepository(db *sqlx.DB) services.ScoringStore {
	return &scoringRepository{db: db}
}

func (r *scoringRepository) HasAcceptedSubmission(ctx context.Context, userID, challengeID int) (bool, error) {
	return hasAccepted(ctx, r.db, userID, challengeID)
}

func (r *scoringRepository) AcceptedDates(ctx context.Context, userID int) ([]time.Time, error) {
	// Contest acceptances count toward daily activity as well.
	query := `
        SELECT DISTINCT DATE(created_at) FROM submissions
            WHERE user_id = ? AND status = 'ACCEPTED'
        UNION
        SELECT DISTINCT DATE(cs.submitted_at) FROM contest_submissions cs
            JOIN contest_participants p ON p.id = cs.participant_id
            WHERE p.user_id = ? AND cs.status = 'ACCEPTED'`

	var dates []time.Time
	if err := r.db.SelectContext(ctx, &dates, query, userID, userID); err != nil {
		return nil, fmt.Errorf("failed to get accepted dates: %w", err)
	}
	return dates, nil
}

func (r *scoringRepository) GetContest(ctx context.Context, contestID int) (*models.Contest, error) {
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

func (r *scoringRepository) GetContestChallenge(ctx context.Context, contestID, challengeID int) (*models.ContestChallenge, error) {
	query := `SELECT id, contest_id, challenge_id, points FROM contest_challenges
              WHERE contest_id = ? AND challenge_id = ?`

	var cc models.ContestChallenge
	if err := r.db.GetContext(ctx, &cc, query, contestID, challengeID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Newf(apperrors.NotFound, "challenge %d does not belong to contest %d", challengeID, contestID)
		}
		return nil, fmt.Errorf("failed to get contest challenge: %w", err)
	}
	return &cc, nil
}

func (r *scoringRepository) GetParticipant(ctx context.Context, contestID, userID int) (*models.ContestParticipant, error) {
	query := `SELECT id, contest_id, user_id, score FROM contest_participants
              WHERE contest_id = ? AND user_id = ?`

	var p models.ContestParticipant
	if err := r.db.GetContext(ctx, &p, query, contestID, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Newf(apperrors.NotFound, "participant not found for contest %d", contestID)
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return &p, nil
}

func (r *scoringRepository) InTx(ctx context.Context, fn func(tx services.ScoringTx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&scoringTx{tx: tx, ctx: ctx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type scoringTx struct {
	tx  *sqlx.Tx
	ctx context.Context
}

func (t *scoringTx) HasAcceptedSubmission(userID, challengeID int) (bool, error) {
	return hasAccepted(t.ctx, t.tx, userID, challengeID)
}

func (t *scoringTx) InsertSubmission(s *models.Submission) error {
	query := `INSERT INTO submissions (user_id, challenge_id, source_code, language, status,
                  runtime_ms, memory_mb, test_results, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := t.tx.ExecContext(t.ctx, query,
		s.UserID, s.ChallengeID, s.SourceCode, s.Language, s.Status,
		s.RuntimeMs, s.MemoryMb, s.TestResults, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	s.ID = int(id)
	return nil
}

func (t *scoringTx) PriorContestSubmission(participantID, contestChallengeID int) (*models.ContestSubmission, error) {
	// FOR UPDATE locks the pair row so two concurrent resubmissions
	// serialize on the award decision.
	query := `SELECT id, participant_id, contest_challenge_id, source_code, language,
                  status, runtime_ms, memory_mb, score, test_results, submitted_at
              FROM contest_submissions
              WHERE participant_id = ? AND contest_challenge_id = ?
              FOR UPDATE`

	var cs models.ContestSubmission
	if err := t.tx.GetContext(t.ctx, &cs, query, participantID, contestChallengeID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get prior contest submission: %w", err)
	}
	return &cs, nil
}

func (t *scoringTx) UpsertContestSubmission(cs *models.ContestSubmission) error {
	// (participant_id, contest_challenge_id) carries a unique key, so
	// a resubmission replaces the record instead of duplicating it.
	query := `INSERT INTO contest_submissions
                  (participant_id, contest_challenge_id, source_code, language, status,
                   runtime_ms, memory_mb, score, test_results, submitted_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON DUPLICATE KEY UPDATE
                  source_code = VALUES(source_code),
                  language = VALUES(language),
                  status = VALUES(status),
                  runtime_ms = VALUES(runtime_ms),
                  memory_mb = VALUES(memory_mb),
                  score = VALUES(score),
                  test_results = VALUES(test_results),
                  submitted_at = VALUES(submitted_at)`

	result, err := t.tx.ExecContext(t.ctx, query,
		cs.ParticipantID, cs.ContestChallengeID, cs.SourceCode, cs.Language, cs.Status,
		cs.RuntimeMs, cs.MemoryMb, cs.Score, cs.TestResults, cs.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert contest submission: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil && id > 0 {
		cs.ID = int(id)
	}
	return nil
}

func (t *scoringTx) AddParticipantScore(participantID, delta int) error {
	query := `UPDATE contest_participants SET score = score + ? WHERE id = ?`
	if _, err := t.tx.ExecContext(t.ctx, query, delta, participantID); err != nil {
		return fmt.Errorf("failed to add participant score: %w", err)
	}
	return nil
}

func (t *scoringTx) MarkSolved(userID, points int) error {
	query := `UPDATE user_profiles SET points = points + ?, solved = solved + 1 WHERE user_id = ?`
	if _, err := t.tx.ExecContext(t.ctx, query, points, userID); err != nil {
		return fmt.Errorf("failed to mark challenge solved: %w", err)
	}
	return nil
}

func (t *scoringTx) AwardPoints(userID, points int) error {
	query := `UPDATE user_profiles SET points = points + ? WHERE user_id = ?`
	if _, err := t.tx.ExecContext(t.ctx, query, points, userID); err != nil {
		return fmt.Errorf("failed to award points: %w", err)
	}
	return nil
}

func (t *scoringTx) SetStreak(userID, days int) error {
	query := `UPDATE user_profiles SET streak_days = ? WHERE user_id = ?`
	if _, err := t.tx.ExecContext(t.ctx, query, days, userID); err != nil {
		return fmt.Errorf("failed to set streak: %w", err)
	}
	return nil
}

func (t *scoringTx) ClaimMilestone(userID, threshold int) (bool, error) {
	// The primary key on (user_id, threshold) makes the claim a
	// one-shot: zero affected rows means someone already holds it.
	query := `INSERT IGNORE INTO user_milestones (user_id, threshold) VALUES (?, ?)`

	result, err := t.tx.ExecContext(t.ctx, query, userID, threshold)
	if err != nil {
		return false, fmt.Errorf("failed to claim milestone: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return affected == 1, nil
}

func (t *scoringTx) InsertActivity(a *models.Activity) error {
	query := `INSERT INTO activities (user_id, type, challenge_id, contest_id, points_awarded, detail, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`

	if _, err := t.tx.ExecContext(t.ctx, query,
		a.UserID, a.Type, a.ChallengeID, a.ContestID, a.PointsAwarded, a.Detail, a.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

func hasAccepted(ctx context.Context, q sqlx.QueryerContext, userID, challengeID int) (bool, error) {
	query := `SELECT EXISTS(
                  SELECT 1 FROM submissions
                  WHERE user_id = ? AND challenge_id = ? AND status = 'ACCEPTED')`

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, query, userID, challengeID); err != nil {
		return false, fmt.Errorf("failed to check prior acceptance: %w", err)
	}
	return exists, nil
}
