package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"codearena/internal/apperrors"
	"codearena/internal/models"
)

type fakeScoringStore struct {
	dates             []time.Time
	contest           *models.Contest
	contestChallenge  *models.ContestChallenge
	participant       *models.ContestParticipant
	priorContestSub   *models.ContestSubmission
	claimedMilestones map[int]bool
	txErr             error

	submissions      []*models.Submission
	contestSubs      []*models.ContestSubmission
	activities       []*models.Activity
	pointsAdded      int
	solvedAdded      int
	streakSet        int
	participantScore int
}

func (f *fakeScoringStore) HasAcceptedSubmission(ctx context.Context, userID, challengeID int) (bool, error) {
	return f.hasAccepted(userID, challengeID), nil
}

func (f *fakeScoringStore) hasAccepted(userID, challengeID int) bool {
	for _, s := range f.submissions {
		if s.UserID == userID && s.ChallengeID == challengeID && s.Status == models.StatusAccepted {
			return true
		}
	}
	return false
}

func (f *fakeScoringStore) AcceptedDates(ctx context.Context, userID int) ([]time.Time, error) {
	return f.dates, nil
}

func (f *fakeScoringStore) GetContest(ctx context.Context, contestID int) (*models.Contest, error) {
	if f.contest == nil || f.contest.ID != contestID {
		return nil, apperrors.Newf(apperrors.NotFound, "contest not found: %d", contestID)
	}
	return f.contest, nil
}

func (f *fakeScoringStore) GetContestChallenge(ctx context.Context, contestID, challengeID int) (*models.ContestChallenge, error) {
	if f.contestChallenge == nil || f.contestChallenge.ChallengeID != challengeID {
		return nil, apperrors.Newf(apperrors.NotFound, "challenge %d does not belong to contest %d", challengeID, contestID)
	}
	return f.contestChallenge, nil
}

func (f *fakeScoringStore) GetParticipant(ctx context.Context, contestID, userID int) (*models.ContestParticipant, error) {
	if f.participant == nil || f.participant.UserID != userID {
		return nil, apperrors.Newf(apperrors.NotFound, "participant not found for contest %d", contestID)
	}
	return f.participant, nil
}

func (f *fakeScoringStore) InTx(ctx context.Context, fn func(tx ScoringTx) error) error {
	if f.txErr != nil {
		return f.txErr
	}
	return fn(&fakeScoringTx{store: f})
}

type fakeScoringTx struct {
	store *fakeScoringStore
}

func (t *fakeScoringTx) HasAcceptedSubmission(userID, challengeID int) (bool, error) {
	return t.store.hasAccepted(userID, challengeID), nil
}

func (t *fakeScoringTx) InsertSubmission(s *models.Submission) error {
	s.ID = len(t.store.submissions) + 1
	t.store.submissions = append(t.store.submissions, s)
	return nil
}

func (t *fakeScoringTx) PriorContestSubmission(participantID, contestChallengeID int) (*models.ContestSubmission, error) {
	return t.store.priorContestSub, nil
}

func (t *fakeScoringTx) UpsertContestSubmission(cs *models.ContestSubmission) error {
	cs.ID = 1
	t.store.priorContestSub = cs
	t.store.contestSubs = append(t.store.contestSubs, cs)
	return nil
}

func (t *fakeScoringTx) AddParticipantScore(participantID, delta int) error {
	t.store.participantScore += delta
	return nil
}

func (t *fakeScoringTx) MarkSolved(userID, points int) error {
	t.store.pointsAdded += points
	t.store.solvedAdded++
	return nil
}

func (t *fakeScoringTx) AwardPoints(userID, points int) error {
	t.store.pointsAdded += points
	return nil
}

func (t *fakeScoringTx) SetStreak(userID, days int) error {
	t.store.streakSet = days
	return nil
}

func (t *fakeScoringTx) ClaimMilestone(userID, threshold int) (bool, error) {
	if t.store.claimedMilestones == nil {
		t.store.claimedMilestones = make(map[int]bool)
	}
	if t.store.claimedMilestones[threshold] {
		return false, nil
	}
	t.store.claimedMilestones[threshold] = true
	return true, nil
}

func (t *fakeScoringTx) InsertActivity(a *models.Activity) error {
	t.store.activities = append(t.store.activities, a)
	return nil
}

type fakeRankNotifier struct {
	enqueued []int
	err      error
}

func (f *fakeRankNotifier) EnqueueRankUpdate(ctx context.Context, userID int) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, userID)
	return nil
}

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	return day(t, "2025-06-10").Add(12 * time.Hour)
}

func newTestScoring(store *fakeScoringStore, rank *fakeRankNotifier, now time.Time) *ScoringService {
	s := NewScoringService(store, rank, time.Second)
	s.now = func() time.Time { return now }
	return s
}

func acceptedVerdict(n int) models.Verdict {
	return models.Verdict{OverallStatus: models.StatusAccepted, PassedCount: n, TotalCount: n, AvgRuntimeMs: 120, AvgMemoryMb: 16}
}

func submitReq() models.ExecutionRequest {
	return models.ExecutionRequest{
		SourceCode:  "code",
		Language:    "go",
		ChallengeID: 7,
		Mode:        models.ModeSubmit,
		UserID:      42,
	}
}

func activityTypes(store *fakeScoringStore) []string {
	var types []string
	for _, a := range store.activities {
		types = append(types, a.Type)
	}
	return types
}

func hasActivity(store *fakeScoringStore, typ string) bool {
	for _, a := range store.activities {
		if a.Type == typ {
			return true
		}
	}
	return false
}

func TestRecordFirstAcceptanceAwardsOnce(t *testing.T) {
	store := &fakeScoringStore{}
	rank := &fakeRankNotifier{}
	svc := newTestScoring(store, rank, fixedNow(t))
	challenge := &models.Challenge{ID: 7, Title: "Sum", Points: 100}

	record, err := svc.Record(context.Background(), acceptedVerdict(4), submitReq(), challenge, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !record.FirstAcceptance {
		t.Error("expected first acceptance")
	}
	if store.pointsAdded != 100 {
		t.Errorf("points added = %d, want 100", store.pointsAdded)
	}
	if store.solvedAdded != 1 {
		t.Errorf("solved added = %d, want 1", store.solvedAdded)
	}
	if len(store.submissions) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(store.submissions))
	}
	if !hasActivity(store, models.ActivityChallengeSolved) {
		t.Errorf("missing solved activity, got %v", activityTypes(store))
	}
	if len(rank.enqueued) != 1 || rank.enqueued[0] != 42 {
		t.Errorf("rank update not enqueued: %v", rank.enqueued)
	}
}

func TestRecordResubmitIsIdempotent(t *testing.T) {
	store := &fakeScoringStore{}
	rank := &fakeRankNotifier{}
	svc := newTestScoring(store, rank, fixedNow(t))
	challenge := &models.Challenge{ID: 7, Title: "Sum", Points: 100}

	if _, err := svc.Record(context.Background(), acceptedVerdict(4), submitReq(), challenge, nil, nil); err != nil {
		t.Fatalf("first record: %v", err)
	}

	pointsAfterFirst := store.pointsAdded
	record, err := svc.Record(context.Background(), acceptedVerdict(4), submitReq(), challenge, nil, nil)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}

	if record.FirstAcceptance {
		t.Error("resubmit must not be a first acceptance")
	}
	if store.pointsAdded != pointsAfterFirst {
		t.Errorf("points grew on resubmit: %d -> %d", pointsAfterFirst, store.pointsAdded)
	}
	if store.solvedAdded != 1 {
		t.Errorf("solved counted twice: %d", store.solvedAdded)
	}
	if len(store.submissions) != 2 {
		t.Errorf("expected 2 immutable submissions, got %d", len(store.submissions))
	}
	if !hasActivity(store, models.ActivityChallengeResolved) {
		t.Errorf("missing re-solved activity, got %v", activityTypes(store))
	}
}

func TestRecordFailedVerdict(t *testing.T) {
	store := &fakeScoringStore{}
	rank := &fakeRankNotifier{}
	svc := newTestScoring(store, rank, fixedNow(t))
	challenge := &models.Challenge{ID: 7, Title: "Sum", Points: 100}

	verdict := models.Verdict{OverallStatus: models.StatusWrongAnswer, PassedCount: 2, TotalCount: 4}
	if _, err := svc.Record(context.Background(), verdict, submitReq(), challenge, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.pointsAdded != 0 || store.solvedAdded != 0 {
		t.Errorf("failed verdict mutated profile: points=%d solved=%d", store.pointsAdded, store.solvedAdded)
	}
	if len(store.submissions) != 1 {
		t.Errorf("failed attempt must still persist a submission, got %d", len(store.submissions))
	}
	if !hasActivity(store, models.ActivitySubmissionFailed) {
		t.Errorf("missing failure activity, got %v", activityTypes(store))
	}
	if len(rank.enqueued) != 0 {
		t.Errorf("rank update enqueued for failed verdict: %v", rank.enqueued)
	}
}

func TestRecordMilestoneFiresOnCrossing(t *testing.T) {
	now := fixedNow(t)
	store := &fakeScoringStore{
		dates: []time.Time{
			day(t, "2025-06-09"),
			day(t, "2025-06-08"),
		},
	}
	svc := newTestScoring(store, &fakeRankNotifier{}, now)
	challenge := &models.Challenge{ID: 7, Title: "Sum", Points: 100}

	record, err := svc.Record(context.Background(), acceptedVerdict(4), submitReq(), challenge, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Streak climbs 2 -> 3 and crosses the first threshold.
	if record.StreakDays != 3 {
		t.Errorf("streak = %d, want 3", record.StreakDays)
	}
	if store.streakSet != 3 {
		t.Errorf("stored streak = %d, want 3", store.streakSet)
	}
	if len(record.MilestonesFired) != 1 || record.MilestonesFired[0] != 3 {
		t.Errorf("milestones fired = %v, want [3]", record.MilestonesFired)
	}
	if store.pointsAdded != 100+25 {
		t.Errorf("points = %d, want 125 (100 base + 25 bonus)", store.pointsAdded)
	}
	if !hasActivity(store, models.ActivityStreakMilestone) {
		t.Errorf("missing milestone activity, got %v", activityTypes(store))
	}
}

func TestRecordMilestoneNeverRefires(t *testing.T) {
	now := fixedNow(t)
	store := &fakeScoringStore{
		dates: []time.Time{
			day(t, "2025-06-09"),
			day(t, "2025-06-08"),
		},
		claimedMilestones: map[int]bool{3: true},
	}
	svc := newTestScoring(store, &fakeRankNotifier{}, now)
	challenge := &models.Challenge{ID: 7, Title: "Sum", Points: 100}

	record, err := svc.Record(context.Background(), acceptedVerdict(4), submitReq(), challenge, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(record.MilestonesFired) != 0 {
		t.Errorf("milestone re-fired: %v", record.MilestonesFired)
	}
	if store.pointsAdded != 100 {
		t.Errorf("points = %d, want 100 (no bonus)", store.pointsAdded)
	}
}

func TestRecordRankFailureDoesNotFailCommit(t *testing.T) {
	store := &fakeScoringStore{}
	rank := &fakeRankNotifier{err: errors.New("redis down")}
	svc := newTestScoring(store, rank, fixedNow(t))
	challenge := &models.Challenge{ID: 7, Title: "Sum", Points: 100}

	if _, err := svc.Record(context.Background(), acceptedVerdict(4), submitReq(), challenge, nil, nil); err != nil {
		t.Fatalf("rank failure leaked into record result: %v", err)
	}
	if len(store.submissions) != 1 {
		t.Error("submission missing despite committed transaction")
	}
}

func TestRecordRejectsNonSubmit(t *testing.T) {
	svc := newTestScoring(&fakeScoringStore{}, &fakeRankNotifier{}, fixedNow(t))
	challenge := &models.Challenge{ID: 7, Points: 100}

	req := submitReq()
	req.Mode = models.ModeRun
	if _, err := svc.Record(context.Background(), acceptedVerdict(1), req, challenge, nil, nil); !apperrors.Is(err, apperrors.Validation) {
		t.Fatalf("expected Validation error, got %v", err)
	}

	req = submitReq()
	req.UserID = 0
	if _, err := svc.Record(context.Background(), acceptedVerdict(1), req, challenge, nil, nil); !apperrors.Is(err, apperrors.Validation) {
		t.Fatalf("expected Validation error, got %v", err)
	}
}

func TestRecordTimeoutIsRetryable(t *testing.T) {
	store := &fakeScoringStore{txErr: context.DeadlineExceeded}
	svc := newTestScoring(store, &fakeRankNotifier{}, fixedNow(t))
	challenge := &models.Challenge{ID: 7, Points: 100}

	_, err := svc.Record(context.Background(), acceptedVerdict(1), submitReq(), challenge, nil, nil)
	if !apperrors.Is(err, apperrors.PersistenceTimeout) {
		t.Fatalf("expected PersistenceTimeout, got %v", err)
	}
	if !apperrors.Retryable(err) {
		t.Error("timeout must be retryable")
	}
}

func contestFixture() (*fakeScoringStore, *ContestContext) {
	contest := &models.Contest{
		ID:       3,
		Title:    "Weekly",
		Status:   models.ContestOngoing,
		StartsAt: time.Now().Add(-time.Hour),
		EndsAt:   time.Now().Add(time.Hour),
	}
	cc := &models.ContestChallenge{ID: 11, ContestID: 3, ChallengeID: 7, Points: 250}
	participant := &models.ContestParticipant{ID: 5, ContestID: 3, UserID: 42}

	store := &fakeScoringStore{
		contest:          contest,
		contestChallenge: cc,
		participant:      participant,
	}
	return store, &ContestContext{Contest: contest, ContestChallenge: cc, Participant: participant}
}

func TestRecordContestFirstAcceptance(t *testing.T) {
	store, contestCtx := contestFixture()
	rank := &fakeRankNotifier{}
	svc := newTestScoring(store, rank, fixedNow(t))

	req := submitReq()
	req.ContestID = 3

	record, err := svc.Record(context.Background(), acceptedVerdict(4), req, nil, contestCtx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.PointsAwarded != 250 {
		t.Errorf("points awarded = %d, want 250", record.PointsAwarded)
	}
	if store.participantScore != 250 {
		t.Errorf("participant score = %d, want 250", store.participantScore)
	}
	if store.pointsAdded != 250 {
		t.Errorf("profile points = %d, want 250", store.pointsAdded)
	}
	if len(rank.enqueued) != 1 {
		t.Errorf("rank update not enqueued")
	}
}

func TestRecordContestResubmitAwardsOnceKeepsLatest(t *testing.T) {
	store, contestCtx := contestFixture()
	svc := newTestScoring(store, &fakeRankNotifier{}, fixedNow(t))

	req := submitReq()
	req.ContestID = 3
	req.SourceCode = "first attempt"

	if _, err := svc.Record(context.Background(), acceptedVerdict(4), req, nil, contestCtx, nil); err != nil {
		t.Fatalf("first record: %v", err)
	}

	req.SourceCode = "second attempt"
	better := acceptedVerdict(4)
	better.AvgRuntimeMs = 50

	record, err := svc.Record(context.Background(), better, req, nil, contestCtx, nil)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}

	if record.PointsAwarded != 0 {
		t.Errorf("resubmit awarded %d points", record.PointsAwarded)
	}
	if store.participantScore != 250 {
		t.Errorf("participant score = %d, want 250", store.participantScore)
	}

	latest := store.priorContestSub
	if latest.SourceCode != "second attempt" {
		t.Errorf("stored code = %q, want latest attempt", latest.SourceCode)
	}
	if latest.RuntimeMs != 50 {
		t.Errorf("stored runtime = %d, want 50", latest.RuntimeMs)
	}
	if latest.Score != 250 {
		t.Errorf("stored score = %d, points earned must stay with the pair", latest.Score)
	}
}

func TestRecordContestKeepsResultSnapshot(t *testing.T) {
	store, contestCtx := contestFixture()
	svc := newTestScoring(store, &fakeRankNotifier{}, fixedNow(t))

	req := submitReq()
	req.ContestID = 3

	outcomes := []models.ExecutionOutcome{
		{TestCaseID: 1, Passed: true, Status: models.StatusAccepted, ActualOutput: "3"},
	}
	if _, err := svc.Record(context.Background(), acceptedVerdict(1), req, nil, contestCtx, outcomes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(store.priorContestSub.TestResults, `"test_case_id":1`) {
		t.Errorf("contest record lost the per-case snapshot: %q", store.priorContestSub.TestResults)
	}
}

func TestRecordContestFailedAfterAcceptKeepsScore(t *testing.T) {
	store, contestCtx := contestFixture()
	svc := newTestScoring(store, &fakeRankNotifier{}, fixedNow(t))

	req := submitReq()
	req.ContestID = 3

	if _, err := svc.Record(context.Background(), acceptedVerdict(4), req, nil, contestCtx, nil); err != nil {
		t.Fatalf("first record: %v", err)
	}

	failed := models.Verdict{OverallStatus: models.StatusWrongAnswer, PassedCount: 1, TotalCount: 4}
	if _, err := svc.Record(context.Background(), failed, req, nil, contestCtx, nil); err != nil {
		t.Fatalf("second record: %v", err)
	}

	latest := store.priorContestSub
	if latest.Status != models.StatusWrongAnswer {
		t.Errorf("latest status = %s, want WRONG_ANSWER", latest.Status)
	}
	if latest.Score != 250 {
		t.Errorf("score lost on failed resubmit: %d", latest.Score)
	}
	if store.participantScore != 250 {
		t.Errorf("participant score changed: %d", store.participantScore)
	}
}

func TestValidateContest(t *testing.T) {
	now := fixedNow(t)

	t.Run("happy path", func(t *testing.T) {
		store, _ := contestFixture()
		store.contest.StartsAt = now.Add(-time.Hour)
		store.contest.EndsAt = now.Add(time.Hour)
		svc := newTestScoring(store, nil, now)

		cc, err := svc.ValidateContest(context.Background(), 3, 7, 42)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cc.Participant.ID != 5 {
			t.Errorf("wrong participant: %+v", cc.Participant)
		}
	})

	t.Run("unknown contest", func(t *testing.T) {
		store, _ := contestFixture()
		svc := newTestScoring(store, nil, now)

		if _, err := svc.ValidateContest(context.Background(), 99, 7, 42); !apperrors.Is(err, apperrors.NotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})

	t.Run("contest not ongoing", func(t *testing.T) {
		store, _ := contestFixture()
		store.contest.Status = models.ContestEnded
		svc := newTestScoring(store, nil, now)

		if _, err := svc.ValidateContest(context.Background(), 3, 7, 42); !apperrors.Is(err, apperrors.ContestState) {
			t.Fatalf("expected ContestState, got %v", err)
		}
	})

	t.Run("outside window", func(t *testing.T) {
		store, _ := contestFixture()
		store.contest.StartsAt = now.Add(time.Hour)
		store.contest.EndsAt = now.Add(2 * time.Hour)
		svc := newTestScoring(store, nil, now)

		if _, err := svc.ValidateContest(context.Background(), 3, 7, 42); !apperrors.Is(err, apperrors.ContestState) {
			t.Fatalf("expected ContestState, got %v", err)
		}
	})

	t.Run("not registered", func(t *testing.T) {
		store, _ := contestFixture()
		store.contest.StartsAt = now.Add(-time.Hour)
		store.contest.EndsAt = now.Add(time.Hour)
		store.participant = nil
		svc := newTestScoring(store, nil, now)

		if _, err := svc.ValidateContest(context.Background(), 3, 7, 42); !apperrors.Is(err, apperrors.ContestState) {
			t.Fatalf("expected ContestState, got %v", err)
		}
	})

	t.Run("challenge not in contest", func(t *testing.T) {
		store, _ := contestFixture()
		store.contest.StartsAt = now.Add(-time.Hour)
		store.contest.EndsAt = now.Add(time.Hour)
		svc := newTestScoring(store, nil, now)

		if _, err := svc.ValidateContest(context.Background(), 3, 99, 42); !apperrors.Is(err, apperrors.NotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}
