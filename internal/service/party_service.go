package service

import (
	"fmt"
	"time"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/Gamechiefx/flashmath-backend/internal/notify"
	"github.com/Gamechiefx/flashmath-backend/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Role 파티 내 지정 역할
type Role string

const (
	RoleIGL    Role = "igl"
	RoleAnchor Role = "anchor"
)

// PartyService 파티 생성/구성원/역할/준비 상태를 관리한다.
// 큐 단계 전이는 QueueService를 거친다.
type PartyService struct {
	parties  store.PartyStore
	locks    *partyLocks
	notifier notify.Notifier
	queue    *QueueService
	role     *RoleService
	logger   *zap.Logger
	opts     Options
}

func NewPartyService(parties store.PartyStore, locks *partyLocks, notifier notify.Notifier, logger *zap.Logger, opts Options) *PartyService {
	return &PartyService{
		parties:  parties,
		locks:    locks,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
}

// SetQueueService 순환 참조 회피용 setter
func (s *PartyService) SetQueueService(queue *QueueService) {
	s.queue = queue
}

// SetRoleService 순환 참조 회피용 setter
func (s *PartyService) SetRoleService(role *RoleService) {
	s.role = role
}

// CreateParty 새 파티 생성. 리더는 항상 준비 상태다.
func (s *PartyService) CreateParty(leaderID, displayName string, skillRating int) (*models.Party, error) {
	existing, err := s.parties.GetByMember(leaderID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing party: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyInParty
	}

	now := time.Now()
	party := &models.Party{
		ID:       uuid.New().String(),
		LeaderID: leaderID,
		Members: []models.Member{{
			UserID:      leaderID,
			DisplayName: displayName,
			SkillRating: skillRating,
			IsReady:     true,
			IsLeader:    true,
			Online:      true,
		}},
		QueuePhase: models.PhaseNone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.parties.Create(party); err != nil {
		return nil, fmt.Errorf("failed to create party: %w", err)
	}

	s.logger.Info("Party created",
		zap.String("partyId", party.ID),
		zap.String("leaderId", leaderID))

	return party, nil
}

// GetPartyData 호출자가 속한 파티의 현재 권위 있는 스냅샷.
// 역할 참조는 읽을 때마다 재검증한다.
func (s *PartyService) GetPartyData(userID string) (*models.Party, error) {
	party, err := s.parties.GetByMember(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get party: %w", err)
	}
	if party == nil {
		return nil, ErrPartyNotFound
	}
	party.ResolveRoles()
	return party, nil
}

// GetParty ID로 파티 조회
func (s *PartyService) GetParty(partyID string) (*models.Party, error) {
	party, err := s.parties.Get(partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get party: %w", err)
	}
	if party == nil {
		return nil, ErrPartyNotFound
	}
	party.ResolveRoles()
	return party, nil
}

// JoinParty 파티 합류
func (s *PartyService) JoinParty(partyID, userID, displayName string, skillRating int) (*models.Party, error) {
	existing, err := s.parties.GetByMember(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing party: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyInParty
	}

	s.locks.Lock(partyID)
	defer s.locks.Unlock(partyID)

	party, err := s.parties.Get(partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get party: %w", err)
	}
	if party == nil {
		return nil, ErrPartyNotFound
	}
	if len(party.Members) >= s.opts.TeamSize {
		return nil, ErrPartyFull
	}

	// 구성이 바뀌면 진행 중인 검색은 취소된다
	if party.QueuePhase.IsSearching() {
		s.queue.cancelLocked(party, models.CancelReasonPartyChanged)
	}

	party.Members = append(party.Members, models.Member{
		UserID:      userID,
		DisplayName: displayName,
		SkillRating: skillRating,
		Online:      true,
	})

	if err := s.parties.Update(party); err != nil {
		return nil, fmt.Errorf("failed to update party: %w", err)
	}

	s.notifyParty(party, models.PartyEvent{
		Type:    models.EventPhaseChanged,
		PartyID: party.ID,
		Phase:   party.QueuePhase,
	})
	return party, nil
}

// LeaveParty 파티 탈퇴. 리더가 나가면 파티는 해산된다.
func (s *PartyService) LeaveParty(partyID, userID string) error {
	var dissolveTeam string

	s.locks.Lock(partyID)
	party, err := s.parties.Get(partyID)
	if err != nil {
		s.locks.Unlock(partyID)
		return fmt.Errorf("failed to get party: %w", err)
	}
	if party == nil {
		s.locks.Unlock(partyID)
		return ErrPartyNotFound
	}
	if party.FindMember(userID) == nil {
		s.locks.Unlock(partyID)
		return ErrNotMember
	}

	if party.QueuePhase == models.PhaseIGLSelection {
		dissolveTeam = party.TeamID
	}

	if userID == party.LeaderID {
		// 리더 탈퇴 = 해산
		s.queue.cancelLocked(party, models.CancelReasonPartyChanged)
		if err := s.parties.Delete(partyID); err != nil {
			s.locks.Unlock(partyID)
			return fmt.Errorf("failed to delete party: %w", err)
		}
		s.notifyParty(party, models.PartyEvent{
			Type:    models.EventQueueCancelled,
			PartyID: party.ID,
			Reason:  models.CancelReasonPartyChanged,
		})
	} else {
		if party.QueuePhase.IsSearching() {
			s.queue.cancelLocked(party, models.CancelReasonPartyChanged)
		}
		members := party.Members[:0]
		for _, m := range party.Members {
			if m.UserID != userID {
				members = append(members, m)
			}
		}
		party.Members = members
		party.ResolveRoles()

		if err := s.parties.Update(party); err != nil {
			s.locks.Unlock(partyID)
			return fmt.Errorf("failed to update party: %w", err)
		}
		s.notifyParty(party, models.PartyEvent{
			Type:    models.EventPhaseChanged,
			PartyID: party.ID,
			Phase:   party.QueuePhase,
		})
	}
	s.locks.Unlock(partyID)

	// 역할 선택 중이던 팀은 기여 파티가 빠지면 해산된다
	if dissolveTeam != "" {
		s.role.DissolveTeam(dissolveTeam, partyID)
	}

	s.logger.Info("Member left party",
		zap.String("partyId", partyID),
		zap.String("userId", userID))
	return nil
}

// SetTargetMode 큐 시작 전 매치 종류 선택 (리더 전용)
func (s *PartyService) SetTargetMode(partyID, callerID string, matchType models.MatchType) error {
	if !matchType.Valid() {
		return ErrInvalidMatchType
	}

	s.locks.Lock(partyID)
	defer s.locks.Unlock(partyID)

	party, err := s.parties.Get(partyID)
	if err != nil {
		return fmt.Errorf("failed to get party: %w", err)
	}
	if party == nil {
		return ErrPartyNotFound
	}
	if callerID != party.LeaderID {
		return ErrNotLeader
	}
	if party.QueuePhase != models.PhaseNone {
		// 큐 세션이 시작되면 matchType은 고정이다
		return ErrAlreadyQueued
	}

	party.MatchType = matchType
	if err := s.parties.Update(party); err != nil {
		return fmt.Errorf("failed to update party: %w", err)
	}
	return nil
}

// AssignRole IGL/Anchor 직접 지정 (리더 전용, 비투표 경로).
// 재지정하면 기존 보유자의 역할은 해제된다.
func (s *PartyService) AssignRole(partyID, callerID, targetID string, role Role) error {
	s.locks.Lock(partyID)
	defer s.locks.Unlock(partyID)

	party, err := s.parties.Get(partyID)
	if err != nil {
		return fmt.Errorf("failed to get party: %w", err)
	}
	if party == nil {
		return ErrPartyNotFound
	}
	if callerID != party.LeaderID {
		return ErrNotLeader
	}
	if party.FindMember(targetID) == nil {
		return ErrNotMember
	}

	switch role {
	case RoleIGL:
		if !s.opts.AllowDualRole && party.AnchorID == targetID {
			return ErrDualRoleNotAllowed
		}
		party.IGLID = targetID
	case RoleAnchor:
		if !s.opts.AllowDualRole && party.IGLID == targetID {
			return ErrDualRoleNotAllowed
		}
		party.AnchorID = targetID
	default:
		return ErrInvalidRole
	}

	if err := s.parties.Update(party); err != nil {
		return fmt.Errorf("failed to update party: %w", err)
	}

	s.notifyParty(party, models.PartyEvent{
		Type:    models.EventRolesConfirmed,
		PartyID: party.ID,
	})
	return nil
}

// ToggleReady 준비 상태 토글 (리더 제외. 리더는 항상 준비 상태).
// 검색 중에 전원 준비가 깨지면 큐를 자동 취소하고 cancelled=true를
// 반환한다. 취소는 삼켜지지 않고 호출자에게 구분된 신호로 전달된다.
func (s *PartyService) ToggleReady(partyID, userID string) (cancelled bool, err error) {
	s.locks.Lock(partyID)
	defer s.locks.Unlock(partyID)

	party, err := s.parties.Get(partyID)
	if err != nil {
		return false, fmt.Errorf("failed to get party: %w", err)
	}
	if party == nil {
		return false, ErrPartyNotFound
	}

	member := party.FindMember(userID)
	if member == nil {
		return false, ErrNotMember
	}
	if member.IsLeader {
		return false, ErrLeaderNotReady
	}

	member.IsReady = !member.IsReady

	if party.QueuePhase.IsSearching() && !party.AllReady() {
		s.queue.cancelLocked(party, models.CancelReasonMemberUnready)
		cancelled = true
	}

	if err := s.parties.Update(party); err != nil {
		return false, fmt.Errorf("failed to update party: %w", err)
	}

	if cancelled {
		s.notifyParty(party, models.PartyEvent{
			Type:    models.EventQueueCancelled,
			PartyID: party.ID,
			Phase:   party.QueuePhase,
			Reason:  models.CancelReasonMemberUnready,
		})
	} else {
		s.notifyParty(party, models.PartyEvent{
			Type:    models.EventPhaseChanged,
			PartyID: party.ID,
			Phase:   party.QueuePhase,
		})
	}
	return cancelled, nil
}

func (s *PartyService) notifyParty(party *models.Party, event models.PartyEvent) {
	event.Timestamp = time.Now()
	ids := make([]string, 0, len(party.Members))
	for _, m := range party.Members {
		if !m.IsAI {
			ids = append(ids, m.UserID)
		}
	}
	s.notifier.PublishToUsers(ids, event)
}
