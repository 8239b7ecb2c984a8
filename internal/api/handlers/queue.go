package handlers

import (
	"net/http"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/Gamechiefx/flashmath-backend/internal/service"
	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	queueService *service.QueueService
}

func NewQueueHandler(queueService *service.QueueService) *QueueHandler {
	return &QueueHandler{
		queueService: queueService,
	}
}

// JoinTeammateQueue 팀원 탐색 시작 (리더 전용)
func (h *QueueHandler) JoinTeammateQueue(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.queueService.StartTeammateSearch(c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Teammate search started",
	})
}

// CheckForTeammates 팀원 탐색 폴링. 조립이 성사되면 팀 정보를 담는다.
func (h *QueueHandler) CheckForTeammates(c *gin.Context) {
	status, err := h.queueService.CheckForTeammates(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

type opponentQueueRequest struct {
	MatchType models.MatchType `json:"matchType" binding:"required"`
}

// JoinTeamQueue 상대 팀 탐색 시작 (리더 전용)
func (h *QueueHandler) JoinTeamQueue(c *gin.Context) {
	var req opponentQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.queueService.StartOpponentSearch(c.Param("id"), userID, req.MatchType); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Opponent search started",
	})
}

// CheckTeamMatch 상대 탐색 폴링. 성사되면 매치 정보를 담는다.
func (h *QueueHandler) CheckTeamMatch(c *gin.Context) {
	status, err := h.queueService.CheckTeamMatch(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// CancelQueue 큐 취소 (리더 전용, 멱등)
func (h *QueueHandler) CancelQueue(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.queueService.CancelQueue(c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Queue cancelled",
	})
}

// AcknowledgeMatch 매치 확인. 단말 단계를 none으로 되돌린다.
func (h *QueueHandler) AcknowledgeMatch(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.queueService.AcknowledgeMatch(c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Match acknowledged",
	})
}
