package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"codearena/internal/apperrors"
	"codearena/internal/models"
	"codearena/internal/services"
	"codearena/internal/utils"

	"github.com/jmoiron/sqlx"
)

type UserRepository interface {
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserInfo(ctx context.Context, userID int) (*models.UserInfo, error)
	StoreRefreshToken(ctx context.Context, userID int, token string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, token string) (int, error)
	RevokeToken(ctx context.Context, token string) error
	RecomputeRank(ctx context.Context, userID int) (rank, points int, err error)
}

type userRepository struct {
	db    *sqlx.DB
	cache services.Cache
}

func NewUserRepository(db *sqlx.DB, cache services.Cache) UserRepository {
	return &userRepository{db: db, cache: cache}
}

func (r *userRepository) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query, req.Username, req.Email, hashedPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	// Every user starts with an empty scoring aggregate.
	profileQuery := `INSERT INTO user_profiles (user_id, points, solved, streak_days, global_rank)
                     VALUES (?, 0, 0, 0, 0)`
	if _, err := r.db.ExecContext(ctx, profileQuery, id); err != nil {
		return nil, fmt.Errorf("failed to create user profile: %w", err)
	}

	return &models.User{
		ID:       int(id),
		Username: req.Username,
		Email:    req.Email,
	}, nil
}

func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?`
	err := r.db.GetContext(ctx, &user, query, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.New(apperrors.NotFound, "user not found")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (r *userRepository) GetUserInfo(ctx context.Context, userID int) (*models.UserInfo, error) {
	var info models.UserInfo
	userQuery := `SELECT username, email, created_at FROM users WHERE id = ?`
	if err := r.db.GetContext(ctx, &info, userQuery, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Newf(apperrors.NotFound, "user not found: %d", userID)
		}
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}

	profileQuery := `SELECT user_id, points, solved, streak_days, global_rank
                     FROM user_profiles WHERE user_id = ?`
	if err := r.db.GetContext(ctx, &info.Profile, profileQuery, userID); err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	activityQuery := `SELECT id, user_id, type, challenge_id, contest_id, points_awarded, detail, created_at
                      FROM activities
                      WHERE user_id = ?
                      ORDER BY created_at DESC
                      LIMIT 20`
	if err := r.db.SelectContext(ctx, &info.Recent, activityQuery, userID); err != nil {
		return nil, fmt.Errorf("failed to get user activities: %w", err)
	}

	return &info, nil
}

func (r *userRepository) StoreRefreshToken(ctx context.Context, userID int, token string, expiresAt time.Time) error {
	key := fmt.Sprintf("refresh_token:%s", token)
	ttl := time.Until(expiresAt)

	if ttl <= 0 {
		return fmt.Errorf("token expiration is in the past")
	}

	if err := r.cache.Set(ctx, key, userID, ttl); err != nil {
		return fmt.Errorf("failed to store refresh token in cache: %w", err)
	}
	return nil
}

func (r *userRepository) GetRefreshToken(ctx context.Context, token string) (int, error) {
	key := fmt.Sprintf("refresh_token:%s", token)
	var userID int

	if err := r.cache.Get(ctx, key, &userID); err != nil {
		return 0, fmt.Errorf("refresh token not found in cache: %w", err)
	}
	return userID, nil
}

func (r *userRepository) RevokeToken(ctx context.Context, token string) error {
	key := fmt.Sprintf("refresh_token:%s", token)
	if err := r.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to revoke token from cache: %w", err)
	}
	return nil
}

// RecomputeRank derives the user's global rank from the points
// ordering and writes it back. Runs outside any scoring transaction.
func (r *userRepository) RecomputeRank(ctx context.Context, userID int) (int, int, error) {
	var points int
	pointsQuery := `SELECT points FROM user_profiles WHERE user_id = ?`
	if err := r.db.GetContext(ctx, &points, pointsQuery, userID); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, apperrors.Newf(apperrors.NotFound, "user profile not found: %d", userID)
		}
		return 0, 0, fmt.Errorf("failed to get user points: %w", err)
	}

	var rank int
	rankQuery := `SELECT COUNT(*) + 1 FROM user_profiles WHERE points > ?`
	if err := r.db.GetContext(ctx, &rank, rankQuery, points); err != nil {
		return 0, 0, fmt.Errorf("failed to compute rank: %w", err)
	}

	updateQuery := `UPDATE user_profiles SET global_rank = ? WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, updateQuery, rank, userID); err != nil {
		return 0, 0, fmt.Errorf("failed to update rank: %w", err)
	}

	return rank, points, nil
}
