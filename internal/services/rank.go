package services

import (
	"context"
	"strconv"

	"codearena/internal/logger"
	"codearena/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// RankStream receives one message per committed accepted
	// submission; the rank worker pool consumes it.
	RankStream = "rank_updates"
	// RankGroup is the consumer group the workers read under.
	RankGroup = "rankers"

	leaderboardKey = "leaderboard"
)

// RankStore recomputes a user's global rank in the durable store and
// reports the points backing it.
type RankStore interface {
	RecomputeRank(ctx context.Context, userID int) (rank, points int, err error)
}

// RankService decouples rank maintenance from the scoring transaction.
// Enqueue runs post-commit and is best-effort; Recompute runs on the
// worker side and additionally mirrors points into a Redis sorted set
// serving the leaderboard.
type RankService struct {
	rdb   *redis.Client
	store RankStore
}

func NewRankService(rdb *redis.Client, store RankStore) *RankService {
	return &RankService{rdb: rdb, store: store}
}

func (s *RankService) EnqueueRankUpdate(ctx context.Context, userID int) error {
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: RankStream,
		ID:     "*",
		Values: map[string]interface{}{
			"user_id": userID,
		},
	}).Err()
}

func (s *RankService) Recompute(ctx context.Context, userID int) error {
	rank, points, err := s.store.RecomputeRank(ctx, userID)
	if err != nil {
		return err
	}

	logger.Log.Debug("Rank recomputed",
		zap.Int("user_id", userID),
		zap.Int("rank", rank),
		zap.Int("points", points))

	return s.rdb.ZAdd(ctx, leaderboardKey, redis.Z{
		Score:  float64(points),
		Member: strconv.Itoa(userID),
	}).Err()
}

// Top returns the highest-scoring users from the leaderboard set.
func (s *RankService) Top(ctx context.Context, n int) ([]models.LeaderboardRow, error) {
	entries, err := s.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}

	rows := make([]models.LeaderboardRow, 0, len(entries))
	for i, e := range entries {
		userID, err := strconv.Atoi(e.Member.(string))
		if err != nil {
			continue
		}
		rows = append(rows, models.LeaderboardRow{
			UserID: userID,
			Points: int(e.Score),
			Rank:   i + 1,
		})
	}
	return rows, nil
}
