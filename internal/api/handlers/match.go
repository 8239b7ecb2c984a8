package handlers

import (
	"net/http"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/Gamechiefx/flashmath-backend/internal/service"
	"github.com/gin-gonic/gin"
)

type MatchHandler struct {
	matchService *service.MatchService
}

func NewMatchHandler(matchService *service.MatchService) *MatchHandler {
	return &MatchHandler{
		matchService: matchService,
	}
}

// GetMatch 매치 조회
func (h *MatchHandler) GetMatch(c *gin.Context) {
	match, err := h.matchService.GetMatch(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"match": match,
	})
}

// ListMatchesByParty 파티의 매치 이력 조회
func (h *MatchHandler) ListMatchesByParty(c *gin.Context) {
	matches := h.matchService.ListByParty(c.Param("partyId"))

	c.JSON(http.StatusOK, gin.H{
		"matches": matches,
		"total":   len(matches),
	})
}

type aiMatchRequest struct {
	PartyID    string            `json:"partyId" binding:"required"`
	Difficulty models.Difficulty `json:"difficulty" binding:"required"`
}

// CreateAIMatch AI 상대와의 캐주얼 매치 생성 (리더 전용)
func (h *MatchHandler) CreateAIMatch(c *gin.Context) {
	var req aiMatchRequest
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

	match, err := h.matchService.CreateAIMatch(req.PartyID, userID, req.Difficulty)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"match": match,
	})
}
