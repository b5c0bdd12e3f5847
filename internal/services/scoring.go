package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codearena/internal/apperrors"
	"codearena/internal/logger"
	"codearena/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ScoringStore is the durable side of the pipeline. Reads outside a
// transaction use the Store directly; every write goes through InTx.
type ScoringStore interface {
	HasAcceptedSubmission(ctx context.Context, userID, challengeID int) (bool, error)
	AcceptedDates(ctx context.Context, userID int) ([]time.Time, error)

	GetContest(ctx context.Context, contestID int) (*models.Contest, error)
	GetContestChallenge(ctx context.Context, contestID, challengeID int) (*models.ContestChallenge, error)
	GetParticipant(ctx context.Context, contestID, userID int) (*models.ContestParticipant, error)

	InTx(ctx context.Context, fn func(tx ScoringTx) error) error
}

// ScoringTx is the unit of work inside one atomic transaction. All
// writes either commit together or roll back together.
type ScoringTx interface {
	HasAcceptedSubmission(userID, challengeID int) (bool, error)
	InsertSubmission(s *models.Submission) error

	PriorContestSubmission(participantID, contestChallengeID int) (*models.ContestSubmission, error)
	UpsertContestSubmission(cs *models.ContestSubmission) error
	AddParticipantScore(participantID, delta int) error

	MarkSolved(userID, points int) error
	AwardPoints(userID, points int) error
	SetStreak(userID, days int) error
	ClaimMilestone(userID, threshold int) (bool, error)

	InsertActivity(a *models.Activity) error
}

// RankNotifier hands a user off for asynchronous rank recomputation.
type RankNotifier interface {
	EnqueueRankUpdate(ctx context.Context, userID int) error
}

// SubmissionRecord reports what the pipeline actually did.
type SubmissionRecord struct {
	SubmissionID    int
	PointsAwarded   int
	FirstAcceptance bool
	StreakDays      int
	MilestonesFired []int
}

// ContestContext is the validated state a contest submission runs
// under. Built before any sandbox work begins.
type ContestContext struct {
	Contest          *models.Contest
	ContestChallenge *models.ContestChallenge
	Participant      *models.ContestParticipant
}

type ScoringService struct {
	store   ScoringStore
	rank    RankNotifier
	timeout time.Duration
	now     func() time.Time
}

func NewScoringService(store ScoringStore, rank RankNotifier, timeout time.Duration) *ScoringService {
	return &ScoringService{
		store:   store,
		rank:    rank,
		timeout: timeout,
		now:     time.Now,
	}
}

// ValidateContest checks every precondition of a contest submission.
// Callers must run it before dispatching anything to the sandbox.
func (s *ScoringService) ValidateContest(ctx context.Context, contestID, challengeID, userID int) (*ContestContext, error) {
	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if contest.Status != models.ContestOngoing {
		return nil, apperrors.Newf(apperrors.ContestState, "contest %d is not ongoing", contestID)
	}
	if now.Before(contest.StartsAt) || now.After(contest.EndsAt) {
		return nil, apperrors.Newf(apperrors.ContestState, "contest %d is outside its submission window", contestID)
	}

	participant, err := s.store.GetParticipant(ctx, contestID, userID)
	if err != nil {
		if apperrors.Is(err, apperrors.NotFound) {
			return nil, apperrors.Newf(apperrors.ContestState, "user %d is not registered for contest %d", userID, contestID)
		}
		return nil, err
	}

	contestChallenge, err := s.store.GetContestChallenge(ctx, contestID, challengeID)
	if err != nil {
		return nil, err
	}

	return &ContestContext{
		Contest:          contest,
		ContestChallenge: contestChallenge,
		Participant:      participant,
	}, nil
}

// Record turns a verdict into durable state. Invoked only for submit
// requests carrying a user; everything it writes commits atomically.
func (s *ScoringService) Record(ctx context.Context, verdict models.Verdict, req models.ExecutionRequest, challenge *models.Challenge, contestCtx *ContestContext, outcomes []models.ExecutionOutcome) (*SubmissionRecord, error) {
	if req.Mode != models.ModeSubmit || req.UserID == 0 {
		return nil, apperrors.New(apperrors.Validation, "scoring requires a submit request with a user")
	}

	if contestCtx != nil {
		return s.recordContest(ctx, verdict, req, contestCtx, outcomes)
	}
	return s.recordPractice(ctx, verdict, req, challenge, outcomes)
}

func (s *ScoringService) recordPractice(ctx context.Context, verdict models.Verdict, req models.ExecutionRequest, challenge *models.Challenge, outcomes []models.ExecutionOutcome) (*SubmissionRecord, error) {
	// Idempotency baseline and streak history are independent reads;
	// fetch them in parallel before opening the transaction. The
	// acceptance check is re-run inside the transaction, which is the
	// authoritative answer under concurrency.
	var (
		alreadyAccepted bool
		acceptedDates   []time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		alreadyAccepted, err = s.store.HasAcceptedSubmission(gctx, req.UserID, req.ChallengeID)
		return err
	})
	g.Go(func() error {
		var err error
		acceptedDates, err = s.store.AcceptedDates(gctx, req.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Persistence, "failed to load scoring baseline")
	}

	snapshot, err := json.Marshal(outcomes)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Persistence, "failed to encode test results")
	}

	now := s.now()
	oldStreak := ComputeStreak(acceptedDates, now)
	newStreak := oldStreak
	if verdict.OverallStatus == models.StatusAccepted {
		newStreak = ComputeStreak(append(acceptedDates, now), now)
	}

	record := &SubmissionRecord{StreakDays: newStreak}

	txCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.store.InTx(txCtx, func(tx ScoringTx) error {
		// The acceptance check must precede the insert of this
		// attempt, or the new row would count against itself. The
		// prefetched answer short-circuits the query: an acceptance
		// on record can never be undone.
		firstAcceptance := false
		if !alreadyAccepted && verdict.OverallStatus == models.StatusAccepted {
			hasAccepted, err := tx.HasAcceptedSubmission(req.UserID, req.ChallengeID)
			if err != nil {
				return err
			}
			firstAcceptance = !hasAccepted
		}

		submission := &models.Submission{
			UserID:      req.UserID,
			ChallengeID: req.ChallengeID,
			SourceCode:  req.SourceCode,
			Language:    req.Language,
			Status:      verdict.OverallStatus,
			RuntimeMs:   verdict.AvgRuntimeMs,
			MemoryMb:    verdict.AvgMemoryMb,
			TestResults: string(snapshot),
			CreatedAt:   now,
		}
		if err := tx.InsertSubmission(submission); err != nil {
			return err
		}
		record.SubmissionID = submission.ID

		if verdict.OverallStatus != models.StatusAccepted {
			return tx.InsertActivity(&models.Activity{
				UserID:      req.UserID,
				Type:        models.ActivitySubmissionFailed,
				ChallengeID: &req.ChallengeID,
				Detail:      fmt.Sprintf("%s on %s (%d/%d tests passed)", verdict.OverallStatus, challenge.Title, verdict.PassedCount, verdict.TotalCount),
				CreatedAt:   now,
			})
		}

		if firstAcceptance {
			if err := tx.MarkSolved(req.UserID, challenge.Points); err != nil {
				return err
			}
			record.FirstAcceptance = true
			record.PointsAwarded = challenge.Points

			if err := tx.InsertActivity(&models.Activity{
				UserID:        req.UserID,
				Type:          models.ActivityChallengeSolved,
				ChallengeID:   &req.ChallengeID,
				PointsAwarded: challenge.Points,
				Detail:        fmt.Sprintf("Solved %s (+%d points)", challenge.Title, challenge.Points),
				CreatedAt:     now,
			}); err != nil {
				return err
			}
		} else {
			if err := tx.InsertActivity(&models.Activity{
				UserID:      req.UserID,
				Type:        models.ActivityChallengeResolved,
				ChallengeID: &req.ChallengeID,
				Detail:      fmt.Sprintf("Re-solved %s, no additional points", challenge.Title),
				CreatedAt:   now,
			}); err != nil {
				return err
			}
		}

		if err := tx.SetStreak(req.UserID, newStreak); err != nil {
			return err
		}

		fired, err := s.awardMilestones(tx, req.UserID, oldStreak, newStreak, now)
		if err != nil {
			return err
		}
		record.MilestonesFired = fired
		record.PointsAwarded += milestonePoints(fired)

		return nil
	})
	if err != nil {
		return nil, txError(err)
	}

	if verdict.OverallStatus == models.StatusAccepted {
		s.notifyRank(ctx, req.UserID)
	}

	return record, nil
}

func (s *ScoringService) recordContest(ctx context.Context, verdict models.Verdict, req models.ExecutionRequest, cc *ContestContext, outcomes []models.ExecutionOutcome) (*SubmissionRecord, error) {
	snapshot, err := json.Marshal(outcomes)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Persistence, "failed to encode test results")
	}

	now := s.now()
	record := &SubmissionRecord{}

	txCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.store.InTx(txCtx, func(tx ScoringTx) error {
		prior, err := tx.PriorContestSubmission(cc.Participant.ID, cc.ContestChallenge.ID)
		if err != nil {
			return err
		}
		wasAccepted := prior != nil && prior.Status == models.StatusAccepted

		accepted := verdict.OverallStatus == models.StatusAccepted
		firstAcceptance := accepted && !wasAccepted

		// Latest attempt wins for the record; points stay with the
		// pair once earned, even if a later attempt fails.
		score := 0
		if prior != nil {
			score = prior.Score
		}
		if firstAcceptance {
			score = cc.ContestChallenge.Points
		}

		sub := &models.ContestSubmission{
			ParticipantID:      cc.Participant.ID,
			ContestChallengeID: cc.ContestChallenge.ID,
			SourceCode:         req.SourceCode,
			Language:           req.Language,
			Status:             verdict.OverallStatus,
			RuntimeMs:          verdict.AvgRuntimeMs,
			MemoryMb:           verdict.AvgMemoryMb,
			Score:              score,
			TestResults:        string(snapshot),
			SubmittedAt:        now,
		}
		if err := tx.UpsertContestSubmission(sub); err != nil {
			return err
		}
		record.SubmissionID = sub.ID

		activityType := models.ActivityContestFailed
		detail := fmt.Sprintf("%s in contest %s", verdict.OverallStatus, cc.Contest.Title)

		if firstAcceptance {
			if err := tx.AddParticipantScore(cc.Participant.ID, cc.ContestChallenge.Points); err != nil {
				return err
			}
			if err := tx.AwardPoints(req.UserID, cc.ContestChallenge.Points); err != nil {
				return err
			}
			record.FirstAcceptance = true
			record.PointsAwarded = cc.ContestChallenge.Points
			activityType = models.ActivityContestSolved
			detail = fmt.Sprintf("Solved challenge %d in contest %s (+%d points)", cc.ContestChallenge.ChallengeID, cc.Contest.Title, cc.ContestChallenge.Points)
		} else if accepted {
			activityType = models.ActivityContestResolved
			detail = fmt.Sprintf("Re-solved challenge %d in contest %s, no additional points", cc.ContestChallenge.ChallengeID, cc.Contest.Title)
		}

		return tx.InsertActivity(&models.Activity{
			UserID:        req.UserID,
			Type:          activityType,
			ChallengeID:   &cc.ContestChallenge.ChallengeID,
			ContestID:     &cc.Contest.ID,
			PointsAwarded: record.PointsAwarded,
			Detail:        detail,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, txError(err)
	}

	if verdict.OverallStatus == models.StatusAccepted {
		s.notifyRank(ctx, req.UserID)
	}

	return record, nil
}

// awardMilestones claims each threshold the streak climbed past. The
// claim is a unique-key insert, so a threshold pays out exactly once
// per user even across streak resets and concurrent submissions.
func (s *ScoringService) awardMilestones(tx ScoringTx, userID, oldStreak, newStreak int, now time.Time) ([]int, error) {
	var fired []int
	for _, threshold := range CrossedMilestones(oldStreak, newStreak) {
		claimed, err := tx.ClaimMilestone(userID, threshold)
		if err != nil {
			return nil, err
		}
		if !claimed {
			continue
		}

		bonus := MilestoneBonus(threshold)
		if err := tx.AwardPoints(userID, bonus); err != nil {
			return nil, err
		}
		if err := tx.InsertActivity(&models.Activity{
			UserID:        userID,
			Type:          models.ActivityStreakMilestone,
			PointsAwarded: bonus,
			Detail:        fmt.Sprintf("%d-day streak milestone (+%d bonus points)", threshold, bonus),
			CreatedAt:     now,
		}); err != nil {
			return nil, err
		}
		fired = append(fired, threshold)
	}
	return fired, nil
}

// notifyRank is fire-and-forget: a failure is logged and the committed
// transaction stands.
func (s *ScoringService) notifyRank(ctx context.Context, userID int) {
	if s.rank == nil {
		return
	}
	if err := s.rank.EnqueueRankUpdate(ctx, userID); err != nil {
		logger.Log.Warn("Failed to enqueue rank update",
			zap.Int("user_id", userID),
			zap.Error(err))
	}
}

func milestonePoints(thresholds []int) int {
	total := 0
	for _, t := range thresholds {
		total += MilestoneBonus(t)
	}
	return total
}

// txError keeps typed errors intact and maps everything else onto the
// persistence taxonomy, with timeouts marked retryable.
func txError(err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.PersistenceTimeout, "scoring transaction timed out")
	}
	return apperrors.Wrap(err, apperrors.Persistence, "scoring transaction failed")
}
