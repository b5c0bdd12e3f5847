package handlers

import (
	"net/http"

	"codearena/internal/apperrors"
	"codearena/internal/logger"
	"codearena/internal/middlewares"
	"codearena/internal/models"
	"codearena/internal/repositories"
	"codearena/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ExecutionHandler struct {
	challengeRepo repositories.ChallengeRepository
	harness       *services.TestHarness
	scoring       *services.ScoringService
}

func NewExecutionHandler(challengeRepo repositories.ChallengeRepository, harness *services.TestHarness, scoring *services.ScoringService) *ExecutionHandler {
	return &ExecutionHandler{
		challengeRepo: challengeRepo,
		harness:       harness,
		scoring:       scoring,
	}
}

// ExecuteCode evaluates submitted code against a challenge's test
// cases and, for submissions, records the verdict.
func (h *ExecutionHandler) ExecuteCode(c *gin.Context) {
	var req models.ExecuteCodeRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := req.ValidateRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !services.SupportedLanguage(req.Language) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported language: " + req.Language})
		return
	}

	userID := c.GetInt(middlewares.UserIDKey)
	if req.IsSubmission && userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required to submit"})
		return
	}

	challenge, err := h.challengeRepo.GetChallengeWithTestCases(c.Request.Context(), req.ChallengeID)
	if err != nil {
		logger.Log.Error("Failed to load challenge",
			zap.Int("challenge_id", req.ChallengeID),
			zap.Error(err))
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": "Failed to load challenge"})
		return
	}

	execReq := models.ExecutionRequest{
		SourceCode:  req.Code,
		Language:    req.Language,
		ChallengeID: req.ChallengeID,
		Mode:        models.ModeRun,
		TestCaseID:  req.TestCaseID,
		UserID:      userID,
		ContestID:   req.ContestID,
	}
	if req.IsSubmission {
		execReq.Mode = models.ModeSubmit
	}

	// Contest preconditions are checked before any sandbox work.
	var contestCtx *services.ContestContext
	if req.IsSubmission && req.ContestID > 0 {
		contestCtx, err = h.scoring.ValidateContest(c.Request.Context(), req.ContestID, req.ChallengeID, userID)
		if err != nil {
			c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
	}

	outcomes, err := h.harness.Evaluate(c.Request.Context(), execReq, challenge)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	verdict := services.Aggregate(outcomes)
	resp := buildExecuteResponse(verdict, outcomes, challenge)

	if !req.IsSubmission || userID == 0 {
		c.JSON(http.StatusOK, resp)
		return
	}

	record, err := h.scoring.Record(c.Request.Context(), verdict, execReq, challenge, contestCtx, outcomes)
	if err != nil {
		logger.Log.Error("Failed to record submission",
			zap.Int("user_id", userID),
			zap.Int("challenge_id", req.ChallengeID),
			zap.Error(err))

		// Test-level results still go back to the caller, clearly
		// marked as unrecorded.
		c.JSON(apperrors.HTTPStatus(err), gin.H{
			"error":     "Submission evaluated but the score could not be recorded",
			"retryable": apperrors.Retryable(err),
			"result":    resp,
		})
		return
	}

	resp.ScoreRecorded = true
	resp.SubmissionID = record.SubmissionID
	c.JSON(http.StatusOK, resp)
}

func buildExecuteResponse(verdict models.Verdict, outcomes []models.ExecutionOutcome, challenge *models.Challenge) models.ExecuteCodeResponse {
	resp := models.ExecuteCodeResponse{
		Success:     verdict.OverallStatus == models.StatusAccepted,
		TestResults: redactHidden(outcomes, challenge),
		RuntimeMs:   verdict.AvgRuntimeMs,
		MemoryMb:    verdict.AvgMemoryMb,
		AllPassed:   verdict.AllPassed(),
		PassedTests: verdict.PassedCount,
		TotalTests:  verdict.TotalCount,
		Status:      verdict.OverallStatus,
	}

	if verdict.OverallStatus == models.StatusCompilationError {
		for _, o := range outcomes {
			if o.Status == models.StatusCompilationError {
				resp.CompilationError = o.ErrorMessage
				break
			}
		}
	}

	return resp
}

// redactHidden strips test data from hidden cases in the response;
// the stored snapshot keeps the full outcome.
func redactHidden(outcomes []models.ExecutionOutcome, challenge *models.Challenge) []models.ExecutionOutcome {
	hidden := make(map[int]bool)
	for _, tc := range challenge.TestCases {
		if tc.IsHidden {
			hidden[tc.ID] = true
		}
	}

	redacted := make([]models.ExecutionOutcome, len(outcomes))
	for i, o := range outcomes {
		if hidden[o.TestCaseID] {
			o.Input = ""
			o.ExpectedOutput = ""
			o.ActualOutput = ""
		}
		redacted[i] = o
	}
	return redacted
}

func (h *ExecutionHandler) RegisterRoutes(router *gin.Engine, tokenService *services.TokenService) {
	router.POST("/executions", middlewares.OptionalAuthMiddleware(tokenService), h.ExecuteCode)
}
