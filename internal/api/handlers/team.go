package handlers

import (
	"net/http"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/Gamechiefx/flashmath-backend/internal/service"
	"github.com/gin-gonic/gin"
)

type TeamHandler struct {
	roleService *service.RoleService
}

func NewTeamHandler(roleService *service.RoleService) *TeamHandler {
	return &TeamHandler{
		roleService: roleService,
	}
}

// GetTeam 조립된 팀 조회 (구성원 전용)
func (h *TeamHandler) GetTeam(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	team, err := h.roleService.GetTeam(c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"team": team,
	})
}

type selectRoleRequest struct {
	CandidateID string `json:"candidateId" binding:"required"`
}

// SelectIGL IGL 지명/투표
func (h *TeamHandler) SelectIGL(c *gin.Context) {
	h.selectRole(c, h.roleService.SelectIGL)
}

// SelectAnchor Anchor 지명/투표
func (h *TeamHandler) SelectAnchor(c *gin.Context) {
	h.selectRole(c, h.roleService.SelectAnchor)
}

func (h *TeamHandler) selectRole(
	c *gin.Context,
	selectFn func(teamID, callerID, candidateID string) (*models.AssembledTeam, error),
) {
	var req selectRoleRequest
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

	team, err := selectFn(c.Param("id"), userID, req.CandidateID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"team": team,
	})
}

// ConfirmSelection 역할 확정 (대표 리더 전용). 확정되면 팀이 합쳐진
// 파티로 전환되어 상대 탐색에 들어간다.
func (h *TeamHandler) ConfirmSelection(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	party, err := h.roleService.ConfirmIGLSelection(c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Roles confirmed",
		"party":   party,
	})
}
