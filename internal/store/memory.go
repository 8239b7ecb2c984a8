package store

import (
	"sync"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
)

// MemoryPartyStore 인메모리 PartyStore 구현
type MemoryPartyStore struct {
	mu      sync.RWMutex
	parties map[string]*models.Party
}

// NewMemoryPartyStore 인메모리 파티 저장소 생성
func NewMemoryPartyStore() *MemoryPartyStore {
	return &MemoryPartyStore{parties: make(map[string]*models.Party)}
}

func (s *MemoryPartyStore) Create(party *models.Party) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parties[party.ID] = CloneParty(party)
	return nil
}

func (s *MemoryPartyStore) Get(id string) (*models.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneParty(s.parties[id]), nil
}

func (s *MemoryPartyStore) GetByMember(userID string) (*models.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.parties {
		for _, m := range p.Members {
			if m.UserID == userID {
				return CloneParty(p), nil
			}
		}
	}
	return nil, nil
}

func (s *MemoryPartyStore) Update(party *models.Party) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parties[party.ID] = CloneParty(party)
	return nil
}

func (s *MemoryPartyStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.parties, id)
	return nil
}

// TeamStore 역할 확정 전의 AssembledTeam을 담는 휘발성 저장소.
// 팀은 확정되거나 해산되면 바로 사라지므로 인메모리로만 유지한다.
type TeamStore struct {
	mu          sync.RWMutex
	teams       map[string]*models.AssembledTeam
	teamByParty map[string]string
}

// NewTeamStore 팀 저장소 생성
func NewTeamStore() *TeamStore {
	return &TeamStore{
		teams:       make(map[string]*models.AssembledTeam),
		teamByParty: make(map[string]string),
	}
}

// Put 팀 저장 (기여 파티 인덱스 갱신 포함)
func (s *TeamStore) Put(team *models.AssembledTeam) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[team.ID] = CloneTeam(team)
	for _, pid := range team.PartyIDs {
		s.teamByParty[pid] = team.ID
	}
}

// Get 팀 조회. 없으면 nil.
func (s *TeamStore) Get(id string) *models.AssembledTeam {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneTeam(s.teams[id])
}

// GetByParty 파티가 기여한 팀 조회. 없으면 nil.
func (s *TeamStore) GetByParty(partyID string) *models.AssembledTeam {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if teamID, ok := s.teamByParty[partyID]; ok {
		return CloneTeam(s.teams[teamID])
	}
	return nil
}

// Delete 팀 제거
func (s *TeamStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[id]
	if !ok {
		return
	}
	delete(s.teams, id)
	for _, pid := range team.PartyIDs {
		delete(s.teamByParty, pid)
	}
}

// All 현재 팀 스냅샷 (타임아웃 sweep용)
func (s *TeamStore) All() []*models.AssembledTeam {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AssembledTeam, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, CloneTeam(t))
	}
	return out
}

// MatchStore 생성된 매치 저장소. 같은 파티 쌍에 대한 중복 생성을
// 막기 위해 정렬된 파티 쌍 키로도 인덱싱한다.
type MatchStore struct {
	mu        sync.RWMutex
	matches   map[string]*models.Match
	byPairKey map[string]string
}

// NewMatchStore 매치 저장소 생성
func NewMatchStore() *MatchStore {
	return &MatchStore{
		matches:   make(map[string]*models.Match),
		byPairKey: make(map[string]string),
	}
}

// PairKey 파티 쌍의 순서 무관 키
func PairKey(partyA, partyB string) string {
	if partyA > partyB {
		partyA, partyB = partyB, partyA
	}
	return partyA + "|" + partyB
}

// PutIfAbsent 파티 쌍 키로 멱등 저장. 이미 같은 쌍의 매치가 있으면
// 기존 매치를 반환한다.
func (s *MatchStore) PutIfAbsent(pairKey string, match *models.Match) *models.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pairKey != "" {
		if existingID, ok := s.byPairKey[pairKey]; ok {
			return s.matches[existingID]
		}
		s.byPairKey[pairKey] = match.ID
	}
	s.matches[match.ID] = match
	return match
}

// Get 매치 조회. 없으면 nil.
func (s *MatchStore) Get(id string) *models.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matches[id]
}

// ListByParty 파티가 참가한 매치 목록
func (s *MatchStore) ListByParty(partyID string) []*models.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Match
	for _, m := range s.matches {
		if m.Team1.PartyID == partyID || m.Team2.PartyID == partyID {
			out = append(out, m)
		}
	}
	return out
}
