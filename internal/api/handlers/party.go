package handlers

import (
	"net/http"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/Gamechiefx/flashmath-backend/internal/service"
	"github.com/gin-gonic/gin"
)

type PartyHandler struct {
	partyService *service.PartyService
}

func NewPartyHandler(partyService *service.PartyService) *PartyHandler {
	return &PartyHandler{
		partyService: partyService,
	}
}

type createPartyRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
	SkillRating int    `json:"skillRating"`
}

// CreateParty 새 파티 생성. 생성자가 리더가 된다.
func (h *PartyHandler) CreateParty(c *gin.Context) {
	var req createPartyRequest
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

	party, err := h.partyService.CreateParty(userID, req.DisplayName, req.SkillRating)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"party": party,
	})
}

// GetMyParty 내가 속한 파티 조회. 폴링의 정답 경로. 푸시를 놓쳐도
// 이 응답의 queuePhase가 항상 현재 상태다.
func (h *PartyHandler) GetMyParty(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	party, err := h.partyService.GetPartyData(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"party": party,
	})
}

// GetParty 특정 파티 조회
func (h *PartyHandler) GetParty(c *gin.Context) {
	party, err := h.partyService.GetParty(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"party": party,
	})
}

type joinPartyRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
	SkillRating int    `json:"skillRating"`
}

// JoinParty 파티 참가. 검색 중이던 파티는 검색이 취소된다.
func (h *PartyHandler) JoinParty(c *gin.Context) {
	var req joinPartyRequest
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

	party, err := h.partyService.JoinParty(c.Param("id"), userID, req.DisplayName, req.SkillRating)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"party": party,
	})
}

// LeaveParty 파티 탈퇴. 리더가 나가면 파티가 해체된다.
func (h *PartyHandler) LeaveParty(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.partyService.LeaveParty(c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Left party",
	})
}

type setModeRequest struct {
	MatchType models.MatchType `json:"matchType" binding:"required"`
}

// SetTargetMode 목표 매치 종류 설정 (리더 전용, 큐 밖에서만)
func (h *PartyHandler) SetTargetMode(c *gin.Context) {
	var req setModeRequest
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

	if err := h.partyService.SetTargetMode(c.Param("id"), userID, req.MatchType); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Target mode updated",
	})
}

type assignRoleRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// AssignIGL 파티 내 IGL 지정 (리더 전용)
func (h *PartyHandler) AssignIGL(c *gin.Context) {
	h.assignRole(c, service.RoleIGL)
}

// AssignAnchor 파티 내 Anchor 지정 (리더 전용)
func (h *PartyHandler) AssignAnchor(c *gin.Context) {
	h.assignRole(c, service.RoleAnchor)
}

func (h *PartyHandler) assignRole(c *gin.Context, role service.Role) {
	var req assignRoleRequest
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

	if err := h.partyService.AssignRole(c.Param("id"), userID, req.UserID, role); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Role assigned",
	})
}

// ToggleReady 준비 상태 토글. 검색 중 준비 해제는 파티 전체의
// 검색을 취소시킨다.
func (h *PartyHandler) ToggleReady(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	cancelled, err := h.partyService.ToggleReady(c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Ready state updated",
		"cancelled": cancelled,
	})
}
