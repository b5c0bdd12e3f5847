package services

import (
	"context"
	"fmt"
	"sync"

	"codearena/internal/apperrors"
	"codearena/internal/logger"
	"codearena/internal/models"

	"go.uber.org/zap"
)

// TestHarness selects the test cases an execution request should run
// and dispatches them to the sandbox, one independent call per case.
type TestHarness struct {
	executor SandboxExecutor
}

func NewTestHarness(executor SandboxExecutor) *TestHarness {
	return &TestHarness{executor: executor}
}

// Evaluate runs the request against the challenge's test cases and
// returns one outcome per selected case, in selection order. A sandbox
// fault on one case never shrinks the result list or aborts siblings.
func (h *TestHarness) Evaluate(ctx context.Context, req models.ExecutionRequest, challenge *models.Challenge) ([]models.ExecutionOutcome, error) {
	cases, err := selectTestCases(req, challenge)
	if err != nil {
		return nil, err
	}

	outcomes := make([]models.ExecutionOutcome, len(cases))

	var wg sync.WaitGroup
	for i, tc := range cases {
		wg.Add(1)
		go func(i int, tc models.TestCase) {
			defer wg.Done()
			outcomes[i] = h.runCase(ctx, req, challenge, tc)
		}(i, tc)
	}
	wg.Wait()

	return outcomes, nil
}

func (h *TestHarness) runCase(ctx context.Context, req models.ExecutionRequest, challenge *models.Challenge, tc models.TestCase) (outcome models.ExecutionOutcome) {
	// A sandbox implementation should never panic, but a case that
	// does must still yield a failing outcome for its slot.
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Sandbox call panicked",
				zap.Int("test_case_id", tc.ID),
				zap.Any("panic", r))
			outcome = models.ExecutionOutcome{
				TestCaseID:     tc.ID,
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
				Passed:         false,
				Status:         models.StatusRuntimeError,
				ErrorMessage:   fmt.Sprintf("sandbox failure: %v", r),
			}
		}
	}()

	result := h.executor.Execute(ctx, ExecutionSpec{
		Code:           req.SourceCode,
		Language:       req.Language,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		TimeLimitMs:    challenge.TimeLimitMs,
		MemoryLimitMb:  challenge.MemoryLimitMb,
	})

	return models.ExecutionOutcome{
		TestCaseID:     tc.ID,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		ActualOutput:   result.Output,
		Passed:         result.Passed,
		RuntimeMs:      result.RuntimeMs,
		MemoryMb:       result.MemoryMb,
		ErrorMessage:   result.Error,
		Status:         result.Status,
	}
}

// selectTestCases applies the run/submit selection policy: submit runs
// everything, run uses the named case or the first visible one.
func selectTestCases(req models.ExecutionRequest, challenge *models.Challenge) ([]models.TestCase, error) {
	if req.Mode == models.ModeSubmit {
		if len(challenge.TestCases) == 0 {
			return nil, apperrors.Newf(apperrors.NoTestCases, "challenge %d has no test cases", challenge.ID)
		}
		return challenge.TestCases, nil
	}

	if req.TestCaseID > 0 {
		for _, tc := range challenge.TestCases {
			if tc.ID == req.TestCaseID {
				return []models.TestCase{tc}, nil
			}
		}
		return nil, apperrors.Newf(apperrors.NotFound, "test case %d not found", req.TestCaseID)
	}

	for _, tc := range challenge.TestCases {
		if !tc.IsHidden {
			return []models.TestCase{tc}, nil
		}
	}
	return nil, apperrors.Newf(apperrors.NoTestCases, "challenge %d has no visible test cases", challenge.ID)
}
