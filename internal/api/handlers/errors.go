package handlers

import (
	"errors"
	"net/http"

	"github.com/Gamechiefx/flashmath-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// 서비스 sentinel 에러 -> HTTP 상태 매핑. 핸들러마다 같은 분기를
// 반복하지 않기 위한 공통 테이블.
var errorStatus = map[error]int{
	service.ErrPartyNotFound:            http.StatusNotFound,
	service.ErrTeamNotFound:             http.StatusNotFound,
	service.ErrTeamDissolved:            http.StatusConflict,
	service.ErrMatchNotFound:            http.StatusNotFound,
	service.ErrNotLeader:                http.StatusForbidden,
	service.ErrNotMember:                http.StatusForbidden,
	service.ErrNotPickAuthority:         http.StatusForbidden,
	service.ErrAlreadyInParty:           http.StatusConflict,
	service.ErrPartyFull:                http.StatusConflict,
	service.ErrAlreadyQueued:            http.StatusConflict,
	service.ErrAlreadyConfirmed:         http.StatusConflict,
	service.ErrLeaderNotReady:           http.StatusBadRequest,
	service.ErrInvalidRole:              http.StatusBadRequest,
	service.ErrDualRoleNotAllowed:       http.StatusBadRequest,
	service.ErrInvalidPartySize:         http.StatusBadRequest,
	service.ErrIncompletePartyForRanked: http.StatusBadRequest,
	service.ErrMembersNotReady:          http.StatusBadRequest,
	service.ErrInvalidMatchType:         http.StatusBadRequest,
	service.ErrRolesIncomplete:          http.StatusBadRequest,
	service.ErrInvalidDifficulty:        http.StatusBadRequest,
	service.ErrRolesNotAssigned:         http.StatusBadRequest,
}

// respondError 서비스 에러를 HTTP 응답으로 변환
func respondError(c *gin.Context, err error) {
	for sentinel, status := range errorStatus {
		if errors.Is(err, sentinel) {
			c.JSON(status, gin.H{
				"error": sentinel.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Internal server error",
	})
}

// currentUserID 인증 미들웨어가 실어둔 userId
func currentUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("userId")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return "", false
	}
	return userID.(string), true
}
