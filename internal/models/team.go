package models

import "time"

// RoleVote 역할 후보별 투표 현황 (후보 userID -> 투표자 userID 집합)
type RoleVote map[string]map[string]bool

// Cast 투표 기록. 같은 투표자의 기존 표는 제거된다.
func (v RoleVote) Cast(candidateID, voterID string) {
	for _, voters := range v {
		delete(voters, voterID)
	}
	if v[candidateID] == nil {
		v[candidateID] = make(map[string]bool)
	}
	v[candidateID][voterID] = true
}

// Clone 투표 현황 깊은 복사
func (v RoleVote) Clone() RoleVote {
	if v == nil {
		return nil
	}
	cv := make(RoleVote, len(v))
	for candidate, voters := range v {
		cvoters := make(map[string]bool, len(voters))
		for id := range voters {
			cvoters[id] = true
		}
		cv[candidate] = cvoters
	}
	return cv
}

// Count 전체 투표 수
func (v RoleVote) Count() int {
	total := 0
	for _, voters := range v {
		total += len(voters)
	}
	return total
}

// AssembledTeam 부분 파티들을 합쳐 목표 인원에 도달한 임시 팀.
// 역할 확정 전까지만 존재하며, 확정되면 새 파티로 전환된다.
type AssembledTeam struct {
	ID                   string    `json:"id"`
	PartyIDs             []string  `json:"partyIds"`
	Members              []Member  `json:"members"`
	LargestPartyLeaderID string    `json:"largestPartyLeaderId"`
	MatchType            MatchType `json:"matchType,omitempty"`

	IGLID       string   `json:"iglId,omitempty"`
	AnchorID    string   `json:"anchorId,omitempty"`
	IGLVotes    RoleVote `json:"iglVotes"`
	AnchorVotes RoleVote `json:"anchorVotes"`

	SelectionStartedAt time.Time `json:"selectionStartedAt"`
	Confirmed          bool      `json:"confirmed"`
}

// SinglePartyOrigin 단일 파티에서 만들어진 팀인지 (leader-pick 모드)
func (t *AssembledTeam) SinglePartyOrigin() bool {
	return len(t.PartyIDs) == 1
}

// FindMember 구성원 조회. 없으면 nil.
func (t *AssembledTeam) FindMember(userID string) *Member {
	for i := range t.Members {
		if t.Members[i].UserID == userID {
			return &t.Members[i]
		}
	}
	return nil
}

// MemberIDs 구성원 userID 목록
func (t *AssembledTeam) MemberIDs() []string {
	ids := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}
