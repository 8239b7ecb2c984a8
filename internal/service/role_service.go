package service

import (
	"fmt"
	"sort"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/Gamechiefx/flashmath-backend/internal/notify"
	"github.com/Gamechiefx/flashmath-backend/internal/registry"
	"github.com/Gamechiefx/flashmath-backend/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// RoleService 조립된 팀의 IGL/Anchor 선택을 관장한다. 단일 파티
// 출신 팀은 리더 지명, 여러 파티가 합쳐진 팀은 구성원 투표로
// 역할을 정한다.
type RoleService struct {
	teams    *store.TeamStore
	parties  store.PartyStore
	locks    *partyLocks
	notifier notify.Notifier
	queue    *QueueService
	clock    clockwork.Clock
	logger   *zap.Logger
	opts     Options
}

func NewRoleService(
	teams *store.TeamStore,
	parties store.PartyStore,
	locks *partyLocks,
	notifier notify.Notifier,
	clock clockwork.Clock,
	logger *zap.Logger,
	opts Options,
) *RoleService {
	return &RoleService{
		teams:    teams,
		parties:  parties,
		locks:    locks,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		opts:     opts,
	}
}

// SetQueueService 순환 참조 해소용 설정자
func (s *RoleService) SetQueueService(queue *QueueService) {
	s.queue = queue
}

func (s *RoleService) teamLockKey(teamID string) string {
	return "team:" + teamID
}

// BeginSelection 클레임된 파티 조합으로 AssembledTeam을 만든다.
// 호출자(조립 sweep)가 파티 락을 모두 쥔 상태에서 불린다.
// 대표 리더는 가장 큰 파티의 리더이며 동률이면 먼저 큐에 든 파티가
// 이긴다.
func (s *RoleService) BeginSelection(parties []*models.Party, entries []registry.Entry) *models.AssembledTeam {
	enqueuedAt := make(map[string]int64, len(entries))
	for _, e := range entries {
		enqueuedAt[e.PartyID] = e.EnqueuedAt.UnixNano()
	}

	var largest *models.Party
	for _, p := range parties {
		if largest == nil ||
			len(p.Members) > len(largest.Members) ||
			(len(p.Members) == len(largest.Members) && enqueuedAt[p.ID] < enqueuedAt[largest.ID]) {
			largest = p
		}
	}

	team := &models.AssembledTeam{
		ID:                   uuid.New().String(),
		LargestPartyLeaderID: largest.LeaderID,
		MatchType:            largest.MatchType,
		IGLVotes:             make(models.RoleVote),
		AnchorVotes:          make(models.RoleVote),
		SelectionStartedAt:   s.clock.Now(),
	}
	for _, p := range parties {
		team.PartyIDs = append(team.PartyIDs, p.ID)
		team.Members = append(team.Members, p.Members...)
	}

	s.teams.Put(team)
	return team
}

// GetTeam 팀 조회. 구성원만 볼 수 있다.
func (s *RoleService) GetTeam(teamID, callerID string) (*models.AssembledTeam, error) {
	team := s.teams.Get(teamID)
	if team == nil {
		return nil, ErrTeamNotFound
	}
	if team.FindMember(callerID) == nil {
		return nil, ErrNotMember
	}
	return team, nil
}

// SelectIGL IGL 지명 또는 투표
func (s *RoleService) SelectIGL(teamID, callerID, candidateID string) (*models.AssembledTeam, error) {
	return s.selectRole(teamID, callerID, candidateID, RoleIGL)
}

// SelectAnchor Anchor 지명 또는 투표
func (s *RoleService) SelectAnchor(teamID, callerID, candidateID string) (*models.AssembledTeam, error) {
	return s.selectRole(teamID, callerID, candidateID, RoleAnchor)
}

// selectRole 역할 선택 공통 경로. 단일 파티 출신 팀은 대표 리더의
// 직접 지명만 허용하고, 합성 팀은 구성원 투표를 집계한다.
// 과반을 넘거나 전원이 투표하면 그 시점에 확정된다.
func (s *RoleService) selectRole(teamID, callerID, candidateID string, role Role) (*models.AssembledTeam, error) {
	key := s.teamLockKey(teamID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	team := s.teams.Get(teamID)
	if team == nil {
		return nil, ErrTeamNotFound
	}
	if team.Confirmed {
		return nil, ErrAlreadyConfirmed
	}
	if team.FindMember(callerID) == nil {
		return nil, ErrNotMember
	}
	if team.FindMember(candidateID) == nil {
		return nil, ErrInvalidRole
	}
	if !s.opts.AllowDualRole {
		if role == RoleIGL && candidateID == team.AnchorID {
			return nil, ErrDualRoleNotAllowed
		}
		if role == RoleAnchor && candidateID == team.IGLID {
			return nil, ErrDualRoleNotAllowed
		}
	}

	if team.SinglePartyOrigin() {
		if callerID != team.LargestPartyLeaderID {
			return nil, ErrNotPickAuthority
		}
		switch role {
		case RoleIGL:
			team.IGLID = candidateID
		case RoleAnchor:
			team.AnchorID = candidateID
		}
		s.teams.Put(team)
		s.notifyTeam(team)
		return team, nil
	}

	votes := team.IGLVotes
	if role == RoleAnchor {
		votes = team.AnchorVotes
	}
	votes.Cast(candidateID, callerID)

	if winner := s.tallyWinner(team, votes); winner != "" {
		switch role {
		case RoleIGL:
			team.IGLID = winner
		case RoleAnchor:
			team.AnchorID = winner
		}
		s.logger.Info("Role decided by vote",
			zap.String("teamId", team.ID),
			zap.String("role", string(role)),
			zap.String("userId", winner))
	}

	s.teams.Put(team)
	s.notifyTeam(team)
	return team, nil
}

// tallyWinner 확정 조건 판정. 남은 표로 뒤집을 수 없는 과반이거나
// 전원이 투표를 마친 경우에만 승자를 반환한다. 전원 투표 시 동률은
// 실력 높은 후보가 이긴다.
func (s *RoleService) tallyWinner(team *models.AssembledTeam, votes models.RoleVote) string {
	total := len(team.Members)

	var winner string
	best := -1
	for candidate, voters := range votes {
		n := len(voters)
		if n > total/2 {
			return candidate
		}
		if n > best {
			best, winner = n, candidate
			continue
		}
		if n == best && s.skill(team, candidate) > s.skill(team, winner) {
			winner = candidate
		}
	}

	if votes.Count() == total {
		return winner
	}
	return ""
}

func (s *RoleService) skill(team *models.AssembledTeam, userID string) int {
	if m := team.FindMember(userID); m != nil {
		return m.SkillRating
	}
	return 0
}

// ConfirmIGLSelection 역할 확정. 두 역할이 모두 정해져 있어야 하며
// 대표 리더만 호출할 수 있다. 확정되면 팀이 합쳐진 파티로 전환되어
// 상대 탐색에 들어간다.
func (s *RoleService) ConfirmIGLSelection(teamID, callerID string) (*models.Party, error) {
	key := s.teamLockKey(teamID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	team := s.teams.Get(teamID)
	if team == nil {
		return nil, ErrTeamNotFound
	}
	if team.Confirmed {
		return nil, ErrAlreadyConfirmed
	}
	if callerID != team.LargestPartyLeaderID {
		return nil, ErrNotPickAuthority
	}
	if team.IGLID == "" || team.AnchorID == "" {
		return nil, ErrRolesIncomplete
	}

	return s.activateLocked(team)
}

// activateLocked 확정 표시 후 합쳐진 파티로 전환. 팀 락은 호출자가
// 쥐고 있다.
func (s *RoleService) activateLocked(team *models.AssembledTeam) (*models.Party, error) {
	team.Confirmed = true
	s.teams.Put(team)

	party, err := s.queue.activateMergedParty(team)
	if err != nil {
		team.Confirmed = false
		s.teams.Put(team)
		return nil, fmt.Errorf("failed to activate team: %w", err)
	}

	s.teams.Delete(team.ID)
	return party, nil
}

// ResolveDeadlines 선택 제한 시간이 지난 팀을 자동 확정한다.
// 비어 있는 역할은 실력순으로 채운다. 최고 실력자가 IGL, 그
// 다음이 Anchor. 멱등이며 이미 정해진 역할은 건드리지 않는다.
func (s *RoleService) ResolveDeadlines() {
	now := s.clock.Now()
	for _, team := range s.teams.All() {
		if team.Confirmed || now.Sub(team.SelectionStartedAt) < s.opts.SelectionTimeout {
			continue
		}
		s.resolveTimeout(team.ID)
	}
}

func (s *RoleService) resolveTimeout(teamID string) {
	key := s.teamLockKey(teamID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	team := s.teams.Get(teamID)
	if team == nil || team.Confirmed {
		return
	}

	bySkill := make([]models.Member, len(team.Members))
	copy(bySkill, team.Members)
	sort.SliceStable(bySkill, func(i, j int) bool {
		return bySkill[i].SkillRating > bySkill[j].SkillRating
	})

	if team.IGLID == "" {
		team.IGLID = bySkill[0].UserID
	}
	if team.AnchorID == "" {
		for _, m := range bySkill {
			if m.UserID != team.IGLID {
				team.AnchorID = m.UserID
				break
			}
		}
		if team.AnchorID == "" {
			// 구성원이 한 명뿐인 경우
			team.AnchorID = team.IGLID
		}
	}

	s.logger.Info("Role selection timed out, auto-resolved",
		zap.String("teamId", team.ID),
		zap.String("iglId", team.IGLID),
		zap.String("anchorId", team.AnchorID))

	if _, err := s.activateLocked(team); err != nil {
		s.logger.Error("Failed to auto-activate team",
			zap.String("teamId", team.ID),
			zap.Error(err))
	}
}

// DissolveTeam 선택 중 구성원 이탈로 팀을 해산한다. 떠나는 파티는
// 큐에서 빠지고 나머지 파티들은 팀원 탐색으로 되돌아간다.
func (s *RoleService) DissolveTeam(teamID, leavingPartyID string) {
	key := s.teamLockKey(teamID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	team := s.teams.Get(teamID)
	if team == nil || team.Confirmed {
		return
	}
	s.teams.Delete(team.ID)

	s.logger.Info("Team dissolved",
		zap.String("teamId", team.ID),
		zap.String("leavingPartyId", leavingPartyID))

	for _, pid := range team.PartyIDs {
		s.locks.Lock(pid)
		party, err := s.parties.Get(pid)
		if err != nil || party == nil {
			s.locks.Unlock(pid)
			continue
		}
		party.TeamID = ""
		if pid == leavingPartyID {
			// 이탈을 일으킨 파티는 큐 밖으로 돌아간다
			party.QueuePhase = models.PhaseNone
			party.QueueStartedAt = nil
			if err := s.parties.Update(party); err != nil {
				s.logger.Error("Failed to reset leaving party",
					zap.String("partyId", pid),
					zap.Error(err))
			}
		} else {
			s.queue.requeueParty(party)
		}
		s.locks.Unlock(pid)
	}
}

func (s *RoleService) notifyTeam(team *models.AssembledTeam) {
	ids := make([]string, 0, len(team.Members))
	for _, m := range team.Members {
		if !m.IsAI {
			ids = append(ids, m.UserID)
		}
	}
	s.notifier.PublishToUsers(ids, models.PartyEvent{
		Type:      models.EventTeamAssembled,
		TeamID:    team.ID,
		Phase:     models.PhaseIGLSelection,
		Timestamp: s.clock.Now(),
	})
}
