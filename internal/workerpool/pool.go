package workerpool

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"codearena/internal/logger"
	"codearena/internal/services"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RankWorker consumes rank update messages from the stream and
// recomputes one user's global rank per message. Failures are logged
// and the message is still acknowledged: rank maintenance is
// best-effort and a later accepted submission re-enqueues the user.
type RankWorker struct {
	id          string
	quit        chan bool
	rdb         *redis.Client
	rankService *services.RankService
}

func NewRankWorker(id string, rdb *redis.Client, rankService *services.RankService) *RankWorker {
	return &RankWorker{
		id:          id,
		quit:        make(chan bool),
		rdb:         rdb,
		rankService: rankService,
	}
}

func (w *RankWorker) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-w.quit:
				return
			default:
				entries, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
					Group:    services.RankGroup,
					Consumer: w.id,
					Streams:  []string{services.RankStream, ">"},
					Count:    1,
					Block:    5 * time.Second,
				}).Result()

				if err != nil {
					if err != redis.Nil {
						logger.Log.Error("Redis operation failed",
							zap.String("worker_id", w.id),
							zap.Error(err))
					}
					continue
				}

				for _, stream := range entries {
					for _, msg := range stream.Messages {
						w.processRankUpdate(ctx, msg)
					}
				}
			}
		}
	}()
}

func (w *RankWorker) Stop() {
	logger.Log.Info("Closing rank worker",
		zap.String("worker_id", w.id))
	w.quit <- true
	close(w.quit)
}

func (w *RankWorker) processRankUpdate(ctx context.Context, msg redis.XMessage) {
	if err := w.rdb.XAck(ctx, services.RankStream, services.RankGroup, msg.ID).Err(); err != nil {
		logger.Log.Error("Failed to acknowledge rank update",
			zap.String("worker_id", w.id),
			zap.Error(err))
	}

	userIDStr, ok := msg.Values["user_id"].(string)
	if !ok {
		logger.Log.Error("Invalid user ID in rank update message",
			zap.String("worker_id", w.id),
			zap.Any("values", msg.Values))
		return
	}

	userID, err := strconv.Atoi(userIDStr)
	if err != nil {
		logger.Log.Error("Failed to parse user ID",
			zap.String("worker_id", w.id),
			zap.String("user_id", userIDStr),
			zap.Error(err))
		return
	}

	if err := w.rankService.Recompute(ctx, userID); err != nil {
		logger.Log.Error("Rank recomputation failed",
			zap.String("worker_id", w.id),
			zap.Int("user_id", userID),
			zap.Error(err))
		return
	}

	logger.Log.Info("Rank updated",
		zap.String("worker_id", w.id),
		zap.Int("user_id", userID))
}

type RankWorkerPool struct {
	workers     []*RankWorker
	numWorkers  int
	rdb         *redis.Client
	rankService *services.RankService
}

func NewRankWorkerPool(numWorkers int, rdb *redis.Client, rankService *services.RankService) *RankWorkerPool {
	return &RankWorkerPool{
		workers:     make([]*RankWorker, numWorkers),
		numWorkers:  numWorkers,
		rdb:         rdb,
		rankService: rankService,
	}
}

func (p *RankWorkerPool) Start(ctx context.Context) error {
	_, err := p.rdb.XGroupCreateMkStream(ctx, services.RankStream, services.RankGroup, "$").Result()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	for i := 0; i < p.numWorkers; i++ {
		worker := NewRankWorker(
			fmt.Sprintf("RankWorker-%d", i+1),
			p.rdb,
			p.rankService,
		)

		worker.Start(ctx)
		p.workers[i] = worker

		logger.Log.Info("Starting rank worker",
			zap.String("worker_id", worker.id))
	}

	logger.Log.Info("Rank worker pool started",
		zap.Int("num_workers", p.numWorkers))

	return nil
}

func (p *RankWorkerPool) Stop() {
	for _, worker := range p.workers {
		worker.Stop()
	}
}
