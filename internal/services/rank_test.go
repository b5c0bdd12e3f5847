package services

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeRankStore struct {
	rank   int
	points int
	err    error
}

func (f *fakeRankStore) RecomputeRank(ctx context.Context, userID int) (int, int, error) {
	return f.rank, f.points, f.err
}

func newTestRank(t *testing.T, store RankStore) (*RankService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRankService(rdb, store), mr
}

func TestEnqueueRankUpdate(t *testing.T) {
	svc, mr := newTestRank(t, nil)

	if err := svc.EnqueueRankUpdate(context.Background(), 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := mr.Stream(RankStream)
	if err != nil {
		t.Fatalf("stream not created: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 stream entry, got %d", len(entries))
	}
	if got := entries[0].Values[1]; got != "42" {
		t.Errorf("user_id = %q, want 42", got)
	}
}

func TestRecomputeUpdatesLeaderboard(t *testing.T) {
	svc, mr := newTestRank(t, &fakeRankStore{rank: 3, points: 450})

	if err := svc.Recompute(context.Background(), 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	score, err := mr.ZScore("leaderboard", "42")
	if err != nil {
		t.Fatalf("leaderboard member missing: %v", err)
	}
	if score != 450 {
		t.Errorf("leaderboard score = %v, want 450", score)
	}
}

func TestRecomputeStoreFailure(t *testing.T) {
	svc, mr := newTestRank(t, &fakeRankStore{err: errors.New("db down")})

	if err := svc.Recompute(context.Background(), 42); err == nil {
		t.Fatal("expected error from store")
	}
	if mr.Exists("leaderboard") {
		t.Error("leaderboard written despite store failure")
	}
}

func TestTopOrdersByScore(t *testing.T) {
	svc, mr := newTestRank(t, nil)

	mr.ZAdd("leaderboard", 100, "1")
	mr.ZAdd("leaderboard", 300, "2")
	mr.ZAdd("leaderboard", 200, "3")

	rows, err := svc.Top(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].UserID != 2 || rows[0].Points != 300 || rows[0].Rank != 1 {
		t.Errorf("row 0 = %+v, want user 2 with 300 points at rank 1", rows[0])
	}
	if rows[1].UserID != 3 || rows[1].Points != 200 || rows[1].Rank != 2 {
		t.Errorf("row 1 = %+v, want user 3 with 200 points at rank 2", rows[1])
	}
}
