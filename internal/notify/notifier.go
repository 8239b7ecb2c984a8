package notify

import (
	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/Gamechiefx/flashmath-backend/internal/websocket"
)

// Notifier 파티 구성원에게 이벤트를 푸시하는 fan-out 계약.
// 전달은 best-effort이며, 코어의 정합성은 푸시 전달에 의존하지 않는다.
type Notifier interface {
	PublishToUsers(userIDs []string, event models.PartyEvent)
}

// HubNotifier 로컬 WebSocket Hub로 전달하는 Notifier
type HubNotifier struct {
	hub *websocket.Hub
}

// NewHubNotifier Hub 기반 Notifier 생성
func NewHubNotifier(hub *websocket.Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) PublishToUsers(userIDs []string, event models.PartyEvent) {
	for _, id := range userIDs {
		n.hub.SendToUser(id, event.Type, event)
	}
}

// NopNotifier 아무것도 하지 않는 Notifier (테스트용)
type NopNotifier struct{}

func (NopNotifier) PublishToUsers([]string, models.PartyEvent) {}
