package handlers

import (
	"net/http"
	"strconv"

	"codearena/internal/apperrors"
	"codearena/internal/logger"
	"codearena/internal/middlewares"
	"codearena/internal/repositories"
	"codearena/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ChallengeHandler struct {
	challengeRepo repositories.ChallengeRepository
}

func NewChallengeHandler(challengeRepo repositories.ChallengeRepository) *ChallengeHandler {
	return &ChallengeHandler{challengeRepo: challengeRepo}
}

// GetChallenges returns the challenge catalog, with solved flags when
// the caller is authenticated.
func (h *ChallengeHandler) GetChallenges(c *gin.Context) {
	challenges, err := h.challengeRepo.GetChallenges(c.Request.Context())
	if err != nil {
		logger.Log.Error("Failed to get challenges", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve challenges"})
		return
	}

	if userID := c.GetInt(middlewares.UserIDKey); userID > 0 {
		solved, err := h.challengeRepo.GetSolvedChallengeIDs(c.Request.Context(), userID)
		if err != nil {
			logger.Log.Error("Failed to get solved challenges",
				zap.Int("user_id", userID),
				zap.Error(err))
		} else {
			for i := range challenges {
				challenges[i].IsSolved = solved[challenges[i].ID]
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"challenges": challenges})
}

func (h *ChallengeHandler) GetChallengeByID(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid challenge ID"})
		return
	}

	challenge, err := h.challengeRepo.GetChallengeByID(c.Request.Context(), id)
	if err != nil {
		logger.Log.Error("Failed to get challenge",
			zap.Int("challenge_id", id),
			zap.Error(err))

		if apperrors.Is(err, apperrors.NotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Challenge not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve challenge details"})
		return
	}

	if userID := c.GetInt(middlewares.UserIDKey); userID > 0 {
		solved, err := h.challengeRepo.GetSolvedChallengeIDs(c.Request.Context(), userID)
		if err == nil {
			challenge.IsSolved = solved[id]
		}
	}

	c.JSON(http.StatusOK, challenge)
}

func (h *ChallengeHandler) RegisterRoutes(router *gin.Engine, tokenService *services.TokenService) {
	challengeGroup := router.Group("/challenges", middlewares.OptionalAuthMiddleware(tokenService))
	{
		challengeGroup.GET("", h.GetChallenges)
		challengeGroup.GET("/:id", h.GetChallengeByID)
	}
}
