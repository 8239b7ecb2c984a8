package store

import "github.com/Gamechiefx/flashmath-backend/internal/models"

// PartyStore 파티 영속 저장소. Postgres 구현은 internal/repository,
// 인메모리 구현은 이 패키지에 있다 (DATABASE_URL 미설정 시 / 테스트용).
// Get은 없는 파티에 대해 (nil, nil)을 반환한다.
type PartyStore interface {
	Create(party *models.Party) error
	Get(id string) (*models.Party, error)
	GetByMember(userID string) (*models.Party, error)
	Update(party *models.Party) error
	Delete(id string) error
}

// CloneParty 호출자 간 공유를 막기 위한 파티 깊은 복사
func CloneParty(p *models.Party) *models.Party {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Members = append([]models.Member(nil), p.Members...)
	if p.QueueStartedAt != nil {
		t := *p.QueueStartedAt
		cp.QueueStartedAt = &t
	}
	return &cp
}

// CloneTeam 팀 깊은 복사. 투표 맵이 읽기 경로(폴링 응답 직렬화)와
// 공유되면 안 되므로 저장소 경계에서 항상 복사한다.
func CloneTeam(t *models.AssembledTeam) *models.AssembledTeam {
	if t == nil {
		return nil
	}
	ct := *t
	ct.PartyIDs = append([]string(nil), t.PartyIDs...)
	ct.Members = append([]models.Member(nil), t.Members...)
	ct.IGLVotes = t.IGLVotes.Clone()
	ct.AnchorVotes = t.AnchorVotes.Clone()
	return &ct
}
