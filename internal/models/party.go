package models

import (
	"strings"
	"time"
)

// MatchType 매치 종류 (큐 시작 시 고정)
type MatchType string

const (
	MatchTypeRanked MatchType = "ranked"
	MatchTypeCasual MatchType = "casual"
)

// Valid 지원하는 매치 종류인지 확인
func (t MatchType) Valid() bool {
	return t == MatchTypeRanked || t == MatchTypeCasual
}

// QueuePhase 파티의 현재 큐 단계. 단말 단계(match_found, ai_match)는
// "<phase>:<matchId>" 형태로 매치 ID를 함께 담는다.
type QueuePhase string

const (
	PhaseNone             QueuePhase = "none"
	PhaseFindingTeammates QueuePhase = "finding_teammates"
	PhaseIGLSelection     QueuePhase = "igl_selection"
	PhaseFindingOpponents QueuePhase = "finding_opponents"

	phaseMatchFoundPrefix = "match_found:"
	phaseAIMatchPrefix    = "ai_match:"
)

// MatchFoundPhase 매치 성사 단계 생성
func MatchFoundPhase(matchID string) QueuePhase {
	return QueuePhase(phaseMatchFoundPrefix + matchID)
}

// AIMatchPhase AI 매치 단계 생성
func AIMatchPhase(matchID string) QueuePhase {
	return QueuePhase(phaseAIMatchPrefix + matchID)
}

// IsSearching 검색 중인 단계인지 (finding_teammates / finding_opponents)
func (p QueuePhase) IsSearching() bool {
	return p == PhaseFindingTeammates || p == PhaseFindingOpponents
}

// IsTerminal 단말 단계인지 (클라이언트 ack 대기)
func (p QueuePhase) IsTerminal() bool {
	return strings.HasPrefix(string(p), phaseMatchFoundPrefix) ||
		strings.HasPrefix(string(p), phaseAIMatchPrefix)
}

// MatchID 단말 단계에 담긴 매치 ID. 단말이 아니면 빈 문자열.
func (p QueuePhase) MatchID() string {
	s := string(p)
	if strings.HasPrefix(s, phaseMatchFoundPrefix) {
		return s[len(phaseMatchFoundPrefix):]
	}
	if strings.HasPrefix(s, phaseAIMatchPrefix) {
		return s[len(phaseAIMatchPrefix):]
	}
	return ""
}

// Member 파티 구성원
type Member struct {
	UserID      string `json:"userId" db:"user_id"`
	DisplayName string `json:"displayName" db:"display_name"`
	SkillRating int    `json:"skillRating" db:"skill_rating"`
	IsReady     bool   `json:"isReady" db:"is_ready"`
	IsLeader    bool   `json:"isLeader" db:"is_leader"`
	IsAI        bool   `json:"isAi,omitempty" db:"is_ai"`
	Online      bool   `json:"online" db:"online"`
}

// Party 함께 큐를 도는 플레이어 그룹. queuePhase 계열 필드는
// QueueService만 변경할 수 있다.
type Party struct {
	ID             string     `json:"id" db:"id"`
	LeaderID       string     `json:"leaderId" db:"leader_id"`
	Members        []Member   `json:"members"`
	IGLID          string     `json:"iglId,omitempty" db:"igl_id"`
	AnchorID       string     `json:"anchorId,omitempty" db:"anchor_id"`
	QueuePhase     QueuePhase `json:"queuePhase" db:"queue_phase"`
	MatchType      MatchType  `json:"matchType,omitempty" db:"match_type"`
	TeamID         string     `json:"teamId,omitempty" db:"team_id"`
	QueueStartedAt *time.Time `json:"queueStartedAt,omitempty" db:"queue_started_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}

// FindMember 구성원 조회. 없으면 nil. igl/anchor 같은 약한 참조는
// 항상 이 함수를 거쳐 재해석한다.
func (p *Party) FindMember(userID string) *Member {
	for i := range p.Members {
		if p.Members[i].UserID == userID {
			return &p.Members[i]
		}
	}
	return nil
}

// ResolveRoles igl/anchor 참조가 현재 구성원을 가리키지 않으면 비운다.
func (p *Party) ResolveRoles() {
	if p.IGLID != "" && p.FindMember(p.IGLID) == nil {
		p.IGLID = ""
	}
	if p.AnchorID != "" && p.FindMember(p.AnchorID) == nil {
		p.AnchorID = ""
	}
}

// AllReady 모든 구성원이 준비 상태인지 (리더는 항상 준비 상태로 간주)
func (p *Party) AllReady() bool {
	for _, m := range p.Members {
		if m.IsLeader || m.IsAI {
			continue
		}
		if !m.IsReady {
			return false
		}
	}
	return true
}

// AverageRating 구성원 평균 레이팅 (반올림)
func (p *Party) AverageRating() int {
	if len(p.Members) == 0 {
		return 0
	}
	sum := 0
	for _, m := range p.Members {
		sum += m.SkillRating
	}
	return (sum + len(p.Members)/2) / len(p.Members)
}
