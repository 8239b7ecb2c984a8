package models

import "time"

// 클라이언트 푸시 이벤트 타입. 전달은 best-effort이며
// 폴링(getPartyData)이 항상 정답 경로다.
const (
	EventPhaseChanged   = "phase_changed"
	EventQueueCancelled = "queue_cancelled"
	EventTeamAssembled  = "team_assembled"
	EventRolesConfirmed = "roles_confirmed"
	EventMatchFound     = "match_found"
)

// 큐 취소 사유
const (
	CancelReasonLeader        = "leader_cancelled"
	CancelReasonMemberUnready = "member_unready"
	CancelReasonPartyChanged  = "party_changed"
)

// PartyEvent 파티 구성원에게 푸시되는 단계 변경 이벤트
type PartyEvent struct {
	Type      string     `json:"type"`
	PartyID   string     `json:"partyId"`
	Phase     QueuePhase `json:"phase,omitempty"`
	TeamID    string     `json:"teamId,omitempty"`
	MatchID   string     `json:"matchId,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
