package services

import (
	"context"
	"strconv"
	"testing"

	"codearena/internal/apperrors"
	"codearena/internal/models"
)

type fakeExecutor struct {
	executeFn func(ctx context.Context, spec ExecutionSpec) CaseResult
}

func (f *fakeExecutor) Execute(ctx context.Context, spec ExecutionSpec) CaseResult {
	if f.executeFn == nil {
		return CaseResult{Passed: true, Status: models.StatusAccepted, Output: spec.ExpectedOutput}
	}
	return f.executeFn(ctx, spec)
}

func testChallenge(numCases int, hidden ...int) *models.Challenge {
	hiddenSet := make(map[int]bool)
	for _, h := range hidden {
		hiddenSet[h] = true
	}

	c := &models.Challenge{ID: 1, Title: "Sum", Points: 100, TimeLimitMs: 1000, MemoryLimitMb: 128}
	for i := 1; i <= numCases; i++ {
		c.TestCases = append(c.TestCases, models.TestCase{
			ID:             i,
			ChallengeID:    1,
			Input:          strconv.Itoa(i),
			ExpectedOutput: strconv.Itoa(i * 2),
			IsHidden:       hiddenSet[i],
		})
	}
	return c
}

func TestEvaluateSubmitRunsAllCases(t *testing.T) {
	t.Parallel()

	h := NewTestHarness(&fakeExecutor{})
	req := models.ExecutionRequest{Mode: models.ModeSubmit, SourceCode: "x", Language: "go"}

	outcomes, err := h.Evaluate(context.Background(), req, testChallenge(4, 3, 4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(outcomes))
	}
	// Order must follow the selection order regardless of scheduling.
	for i, o := range outcomes {
		if o.TestCaseID != i+1 {
			t.Errorf("outcome %d has test case ID %d", i, o.TestCaseID)
		}
	}
}

func TestEvaluateRunUsesFirstVisibleCase(t *testing.T) {
	t.Parallel()

	h := NewTestHarness(&fakeExecutor{})
	req := models.ExecutionRequest{Mode: models.ModeRun}

	challenge := testChallenge(3, 1) // case 1 hidden
	outcomes, err := h.Evaluate(context.Background(), req, challenge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0].TestCaseID != 2 {
		t.Errorf("expected first visible case 2, got %d", outcomes[0].TestCaseID)
	}
}

func TestEvaluateRunUsesExplicitCase(t *testing.T) {
	t.Parallel()

	h := NewTestHarness(&fakeExecutor{})
	req := models.ExecutionRequest{Mode: models.ModeRun, TestCaseID: 3}

	outcomes, err := h.Evaluate(context.Background(), req, testChallenge(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].TestCaseID != 3 {
		t.Fatalf("expected only case 3, got %+v", outcomes)
	}
}

func TestEvaluateRunUnknownExplicitCase(t *testing.T) {
	t.Parallel()

	h := NewTestHarness(&fakeExecutor{})
	req := models.ExecutionRequest{Mode: models.ModeRun, TestCaseID: 99}

	_, err := h.Evaluate(context.Background(), req, testChallenge(2))
	if !apperrors.Is(err, apperrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestEvaluateNoTestCases(t *testing.T) {
	t.Parallel()

	h := NewTestHarness(&fakeExecutor{})

	_, err := h.Evaluate(context.Background(), models.ExecutionRequest{Mode: models.ModeSubmit}, testChallenge(0))
	if !apperrors.Is(err, apperrors.NoTestCases) {
		t.Fatalf("expected NoTestCases, got %v", err)
	}

	// All hidden: nothing to run in run mode.
	_, err = h.Evaluate(context.Background(), models.ExecutionRequest{Mode: models.ModeRun}, testChallenge(2, 1, 2))
	if !apperrors.Is(err, apperrors.NoTestCases) {
		t.Fatalf("expected NoTestCases, got %v", err)
	}
}

func TestEvaluatePanicIsolatedToOneCase(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{
		executeFn: func(ctx context.Context, spec ExecutionSpec) CaseResult {
			if spec.Input == "2" {
				panic("sandbox blew up")
			}
			return CaseResult{Passed: true, Status: models.StatusAccepted}
		},
	}
	h := NewTestHarness(executor)
	req := models.ExecutionRequest{Mode: models.ModeSubmit}

	outcomes, err := h.Evaluate(context.Background(), req, testChallenge(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(outcomes))
	}

	for i, o := range outcomes {
		if o.TestCaseID == 2 {
			if o.Passed {
				t.Error("crashed case must not pass")
			}
			if o.Status != models.StatusRuntimeError {
				t.Errorf("crashed case status = %s, want RUNTIME_ERROR", o.Status)
			}
			if o.ErrorMessage == "" {
				t.Error("crashed case must keep the error text")
			}
			continue
		}
		if !o.Passed {
			t.Errorf("sibling case %d affected by crash", i+1)
		}
	}
}

func TestEvaluatePassesLimitsToSandbox(t *testing.T) {
	t.Parallel()

	var gotSpec ExecutionSpec
	executor := &fakeExecutor{
		executeFn: func(ctx context.Context, spec ExecutionSpec) CaseResult {
			gotSpec = spec
			return CaseResult{Passed: true, Status: models.StatusAccepted}
		},
	}
	h := NewTestHarness(executor)
	req := models.ExecutionRequest{Mode: models.ModeRun, SourceCode: "code", Language: "python"}

	if _, err := h.Evaluate(context.Background(), req, testChallenge(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotSpec.TimeLimitMs != 1000 || gotSpec.MemoryLimitMb != 128 {
		t.Errorf("limits not forwarded: %+v", gotSpec)
	}
	if gotSpec.Code != "code" || gotSpec.Language != "python" {
		t.Errorf("code/language not forwarded: %+v", gotSpec)
	}
}
