package handlers

import (
	"net/http"
	"strconv"

	"codearena/internal/apperrors"
	"codearena/internal/logger"
	"codearena/internal/repositories"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ContestHandler struct {
	contestRepo repositories.ContestRepository
}

func NewContestHandler(contestRepo repositories.ContestRepository) *ContestHandler {
	return &ContestHandler{contestRepo: contestRepo}
}

func (h *ContestHandler) GetStandings(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid contest ID"})
		return
	}

	contest, err := h.contestRepo.GetContest(c.Request.Context(), id)
	if err != nil {
		if apperrors.Is(err, apperrors.NotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contest not found"})
			return
		}
		logger.Log.Error("Failed to get contest",
			zap.Int("contest_id", id),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve contest"})
		return
	}

	standings, err := h.contestRepo.GetStandings(c.Request.Context(), id)
	if err != nil {
		logger.Log.Error("Failed to get standings",
			zap.Int("contest_id", id),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve standings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contest":   contest,
		"standings": standings,
	})
}

func (h *ContestHandler) RegisterRoutes(router *gin.Engine) {
	contestGroup := router.Group("/contests")
	{
		contestGroup.GET("/:id/standings", h.GetStandings)
	}
}
