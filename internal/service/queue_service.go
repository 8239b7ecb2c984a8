package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/Gamechiefx/flashmath-backend/internal/notify"
	"github.com/Gamechiefx/flashmath-backend/internal/registry"
	"github.com/Gamechiefx/flashmath-backend/internal/store"
	"github.com/Gamechiefx/flashmath-backend/pkg/distributed"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// 팀원 탐색 상태 (checkForTeammates 응답)
const (
	QueueStatusIdle          = "idle"
	QueueStatusSearching     = "searching"
	QueueStatusTeamAssembled = "team_assembled"
	QueueStatusMatchFound    = "match_found"
)

// TeammateStatus checkForTeammates 결과
type TeammateStatus struct {
	Status string                `json:"status"`
	Team   *models.AssembledTeam `json:"assembledTeam,omitempty"`
}

// MatchStatus checkTeamMatch 결과
type MatchStatus struct {
	Status string        `json:"status"`
	Match  *models.Match `json:"match,omitempty"`
}

// QueueService 파티를 큐 생애주기로 이끄는 오케스트레이터.
// queuePhase를 변경할 수 있는 유일한 주체다. 백그라운드 sweep 루프가
// 팀 조립, 상대 매칭, 역할 선택 타임아웃, 고아 엔트리 정리를 담당한다.
type QueueService struct {
	parties     store.PartyStore
	teams       *store.TeamStore
	teammateReg *registry.Registry
	opponentReg *registry.Registry
	locks       *partyLocks
	notifier    notify.Notifier
	role        *RoleService
	match       *MatchService
	clock       clockwork.Clock
	logger      *zap.Logger
	opts        Options

	// 다중 인스턴스에서 sweep을 직렬화하는 분산 락 (없으면 로컬 전용)
	lockMgr    *distributed.LockManager
	instanceID string

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewQueueService(
	parties store.PartyStore,
	teams *store.TeamStore,
	teammateReg, opponentReg *registry.Registry,
	locks *partyLocks,
	notifier notify.Notifier,
	role *RoleService,
	match *MatchService,
	clock clockwork.Clock,
	logger *zap.Logger,
	opts Options,
) *QueueService {
	return &QueueService{
		parties:     parties,
		teams:       teams,
		teammateReg: teammateReg,
		opponentReg: opponentReg,
		locks:       locks,
		notifier:    notifier,
		role:        role,
		match:       match,
		clock:       clock,
		logger:      logger,
		opts:        opts,
		instanceID:  uuid.New().String(),
		stopChan:    make(chan struct{}),
	}
}

// SetLockManager sweep 직렬화용 분산 락 설정 (선택)
func (s *QueueService) SetLockManager(mgr *distributed.LockManager) {
	s.lockMgr = mgr
}

// StartTeammateSearch 팀원 탐색 시작. 리더 전용이며 파티 인원은
// [1, TeamSize-1] 범위여야 한다.
func (s *QueueService) StartTeammateSearch(partyID, callerID string) error {
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
		return ErrAlreadyQueued
	}
	if len(party.Members) < 1 || len(party.Members) >= s.opts.TeamSize {
		return ErrInvalidPartySize
	}

	entry := registry.Entry{
		PartyID:     party.ID,
		MatchType:   party.MatchType,
		Size:        len(party.Members),
		SkillRating: party.AverageRating(),
	}
	if err := s.teammateReg.Enqueue(entry); err != nil {
		if errors.Is(err, registry.ErrDuplicateEntry) {
			return ErrAlreadyQueued
		}
		return err
	}

	now := s.clock.Now()
	party.QueuePhase = models.PhaseFindingTeammates
	party.QueueStartedAt = &now
	if err := s.parties.Update(party); err != nil {
		// 저장 실패 시 레지스트리 등록도 되돌린다. 부분 전이 금지
		s.teammateReg.Dequeue(party.ID)
		return fmt.Errorf("failed to update party: %w", err)
	}

	s.logger.Info("Teammate search started",
		zap.String("partyId", party.ID),
		zap.Int("size", len(party.Members)))
	s.publish(party, models.PartyEvent{
		Type:    models.EventPhaseChanged,
		PartyID: party.ID,
		Phase:   party.QueuePhase,
	})
	return nil
}

// StartOpponentSearch 상대 팀 탐색 시작. 랭크는 풀 파티만, 캐주얼은
// 아무 인원이나 가능하다 (부족분은 AI가 채운다).
func (s *QueueService) StartOpponentSearch(partyID, callerID string, matchType models.MatchType) error {
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
		return ErrAlreadyQueued
	}
	if matchType == models.MatchTypeRanked && len(party.Members) != s.opts.TeamSize {
		return ErrIncompletePartyForRanked
	}
	if len(party.Members) < 1 {
		return ErrInvalidPartySize
	}
	if !party.AllReady() {
		return ErrMembersNotReady
	}

	entry := registry.Entry{
		PartyID:     party.ID,
		MatchType:   matchType,
		Size:        len(party.Members),
		SkillRating: party.AverageRating(),
	}
	if err := s.opponentReg.Enqueue(entry); err != nil {
		if errors.Is(err, registry.ErrDuplicateEntry) {
			return ErrAlreadyQueued
		}
		return err
	}

	now := s.clock.Now()
	party.MatchType = matchType
	party.QueuePhase = models.PhaseFindingOpponents
	party.QueueStartedAt = &now
	if err := s.parties.Update(party); err != nil {
		s.opponentReg.Dequeue(party.ID)
		return fmt.Errorf("failed to update party: %w", err)
	}

	s.logger.Info("Opponent search started",
		zap.String("partyId", party.ID),
		zap.String("matchType", string(matchType)))
	s.publish(party, models.PartyEvent{
		Type:    models.EventPhaseChanged,
		PartyID: party.ID,
		Phase:   party.QueuePhase,
	})
	return nil
}

// CancelQueue 큐 취소. 멱등. 활성 큐가 없어도 no-op으로 성공한다.
// 역할 선택 중이던 파티가 취소하면 팀은 해산되고 나머지 파티들은
// 팀원 탐색으로 되돌아간다.
func (s *QueueService) CancelQueue(partyID, callerID string) error {
	var dissolveTeam string

	err := func() error {
		s.locks.Lock(partyID)
		defer s.locks.Unlock(partyID)

		party, err := s.parties.Get(partyID)
		if err != nil {
			return fmt.Errorf("failed to get party: %w", err)
		}
		if party == nil {
			return ErrPartyNotFound
		}
		if callerID != "" && callerID != party.LeaderID {
			return ErrNotLeader
		}

		if party.QueuePhase == models.PhaseIGLSelection {
			dissolveTeam = party.TeamID
		}
		if !s.cancelLocked(party, models.CancelReasonLeader) && dissolveTeam == "" {
			// 활성 큐 없음. 에러가 아니다
			return nil
		}
		party.QueuePhase = models.PhaseNone
		party.QueueStartedAt = nil
		party.TeamID = ""

		if err := s.parties.Update(party); err != nil {
			return fmt.Errorf("failed to update party: %w", err)
		}

		s.publish(party, models.PartyEvent{
			Type:    models.EventQueueCancelled,
			PartyID: party.ID,
			Phase:   party.QueuePhase,
			Reason:  models.CancelReasonLeader,
		})
		return nil
	}()
	if err != nil {
		return err
	}

	// 팀 락은 파티 락보다 먼저 잡아야 하므로 파티 락을 푼 뒤 해산한다
	if dissolveTeam != "" {
		s.role.DissolveTeam(dissolveTeam, partyID)
	}
	return nil
}

// cancelLocked 파티 락을 쥔 호출자용 내부 취소. 양쪽 레지스트리에서
// 제거하고 단계를 none으로 되돌린다. 스토어 기록은 호출자 몫이다.
// 바꾼 것이 있으면 true.
func (s *QueueService) cancelLocked(party *models.Party, reason string) bool {
	changed := false
	if s.teammateReg.Contains(party.ID) {
		s.teammateReg.Dequeue(party.ID)
		changed = true
	}
	if s.opponentReg.Contains(party.ID) {
		s.opponentReg.Dequeue(party.ID)
		changed = true
	}
	if party.QueuePhase.IsSearching() {
		changed = true
	}
	if !changed {
		return false
	}

	party.QueuePhase = models.PhaseNone
	party.QueueStartedAt = nil
	party.TeamID = ""

	s.logger.Info("Queue cancelled",
		zap.String("partyId", party.ID),
		zap.String("reason", reason))
	return true
}

// CheckForTeammates 팀원 탐색 폴링. 조립을 한 번 시도하고 현재
// 상태를 반환한다.
func (s *QueueService) CheckForTeammates(partyID string) (*TeammateStatus, error) {
	party, err := s.parties.Get(partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get party: %w", err)
	}
	if party == nil {
		return nil, ErrPartyNotFound
	}

	if party.QueuePhase == models.PhaseFindingTeammates {
		s.runAssembly()
		party, err = s.parties.Get(partyID)
		if err != nil {
			return nil, fmt.Errorf("failed to get party: %w", err)
		}
		if party == nil {
			return nil, ErrPartyNotFound
		}
	}

	switch party.QueuePhase {
	case models.PhaseIGLSelection:
		return &TeammateStatus{
			Status: QueueStatusTeamAssembled,
			Team:   s.teams.GetByParty(partyID),
		}, nil
	case models.PhaseFindingTeammates:
		return &TeammateStatus{Status: QueueStatusSearching}, nil
	default:
		return &TeammateStatus{Status: QueueStatusIdle}, nil
	}
}

// CheckTeamMatch 상대 탐색 폴링. 매칭을 한 번 시도하고 현재 상태를
// 반환한다. 동시 폴링으로 양쪽이 동시에 발견해도 매치는 한 번만
// 생성된다 (레지스트리 클레임이 직렬화 지점).
func (s *QueueService) CheckTeamMatch(partyID string) (*MatchStatus, error) {
	party, err := s.parties.Get(partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get party: %w", err)
	}
	if party == nil {
		return nil, ErrPartyNotFound
	}

	if party.QueuePhase == models.PhaseFindingOpponents {
		// Contention은 상대 스캔이 이미 우리를 집었다는 뜻. 한 번만
		// 재시도하고, 그래도 밀리면 다음 폴에 수렴한다.
		if _, err := s.match.TryPair(partyID); errors.Is(err, registry.ErrContention) {
			_, _ = s.match.TryPair(partyID)
		}
		party, err = s.parties.Get(partyID)
		if err != nil {
			return nil, fmt.Errorf("failed to get party: %w", err)
		}
		if party == nil {
			return nil, ErrPartyNotFound
		}
	}

	if matchID := party.QueuePhase.MatchID(); matchID != "" {
		match, err := s.match.GetMatch(matchID)
		if err != nil {
			return nil, fmt.Errorf("failed to get match %s: %w", matchID, err)
		}
		return &MatchStatus{
			Status: QueueStatusMatchFound,
			Match:  match,
		}, nil
	}
	if party.QueuePhase == models.PhaseFindingOpponents {
		return &MatchStatus{Status: QueueStatusSearching}, nil
	}
	return &MatchStatus{Status: QueueStatusIdle}, nil
}

// AcknowledgeMatch 매치 확인. 단말 단계를 none으로 되돌린다. 멱등.
func (s *QueueService) AcknowledgeMatch(partyID, callerID string) error {
	s.locks.Lock(partyID)
	defer s.locks.Unlock(partyID)

	party, err := s.parties.Get(partyID)
	if err != nil {
		return fmt.Errorf("failed to get party: %w", err)
	}
	if party == nil {
		return ErrPartyNotFound
	}
	if party.FindMember(callerID) == nil {
		return ErrNotMember
	}
	if !party.QueuePhase.IsTerminal() {
		return nil
	}

	party.QueuePhase = models.PhaseNone
	party.QueueStartedAt = nil
	party.TeamID = ""
	party.MatchType = ""
	if err := s.parties.Update(party); err != nil {
		return fmt.Errorf("failed to update party: %w", err)
	}
	return nil
}

// Start 백그라운드 sweep 시작
func (s *QueueService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting QueueService sweep", zap.Duration("interval", s.opts.SweepInterval))

	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop 백그라운드 sweep 중지
func (s *QueueService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("QueueService sweep stopped")
}

func (s *QueueService) sweepLoop() {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	// 시작 시 한 번 실행
	s.Sweep()

	for {
		select {
		case <-ticker.Chan():
			s.Sweep()
		case <-s.stopChan:
			return
		}
	}
}

// Sweep 조립/매칭/타임아웃/정리 1회 실행
func (s *QueueService) Sweep() {
	if s.lockMgr != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		lock, err := s.lockMgr.Acquire(ctx, "matchmaking:sweep", s.instanceID, s.opts.SweepInterval)
		if errors.Is(err, distributed.ErrLockNotAcquired) {
			// 다른 인스턴스가 이번 주기를 담당한다
			return
		}
		if err != nil {
			s.logger.Error("Failed to acquire sweep lock", zap.Error(err))
			return
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				s.logger.Error("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	s.heal()
	s.runAssembly()
	s.runPairing()
	s.role.ResolveDeadlines()
}

// runAssembly 팀원 레지스트리에서 목표 인원 조합을 찾아 팀을 만든다
func (s *QueueService) runAssembly() {
	for {
		claim := s.teammateReg.FindAssemblyCandidates(s.opts.TeamSize)
		if claim == nil {
			return
		}
		if !s.assembleFromClaim(claim) {
			// 무효 엔트리가 섞여 있었음. 정리 후 재시도
			continue
		}
	}
}

// assembleFromClaim 클레임된 조합으로 AssembledTeam을 만든다.
// 파티 검증에 실패하면 해당 엔트리를 정리하고 false를 반환한다.
func (s *QueueService) assembleFromClaim(claim *registry.Claim) bool {
	ids := make([]string, 0, len(claim.Entries))
	for _, e := range claim.Entries {
		ids = append(ids, e.PartyID)
	}
	locked := s.locks.LockMany(ids)
	defer s.locks.UnlockMany(locked)

	parties := make([]*models.Party, 0, len(ids))
	valid := true
	for _, e := range claim.Entries {
		party, err := s.parties.Get(e.PartyID)
		if err != nil || party == nil || party.QueuePhase != models.PhaseFindingTeammates {
			// 파티 레코드가 권위다. 고아 엔트리는 바로 정리한다
			s.teammateReg.Dequeue(e.PartyID)
			valid = false
			continue
		}
		parties = append(parties, party)
	}
	if !valid {
		claim.Release()
		return false
	}

	team := s.role.BeginSelection(parties, claim.Entries)

	for _, party := range parties {
		party.QueuePhase = models.PhaseIGLSelection
		party.QueueStartedAt = nil
		party.TeamID = team.ID
		if err := s.parties.Update(party); err != nil {
			s.logger.Error("Failed to move party into selection",
				zap.String("partyId", party.ID),
				zap.Error(err))
		}
	}
	claim.Commit()

	s.logger.Info("Team assembled",
		zap.String("teamId", team.ID),
		zap.Int("parties", len(parties)),
		zap.Int("members", len(team.Members)))

	event := models.PartyEvent{
		Type:   models.EventTeamAssembled,
		TeamID: team.ID,
		Phase:  models.PhaseIGLSelection,
	}
	for _, party := range parties {
		event.PartyID = party.ID
		s.publish(party, event)
	}
	return true
}

// runPairing 상대 레지스트리의 모든 엔트리에 대해 매칭을 시도한다
func (s *QueueService) runPairing() {
	for _, entry := range s.opponentReg.Entries() {
		if _, err := s.match.TryPair(entry.PartyID); err != nil && !errors.Is(err, registry.ErrContention) {
			s.logger.Error("Pairing attempt failed",
				zap.String("partyId", entry.PartyID),
				zap.Error(err))
		}
	}
}

// heal 파티 레코드와 어긋난 레지스트리 엔트리를 정리한다.
// 파티 레코드가 항상 권위다.
func (s *QueueService) heal() {
	for _, e := range s.teammateReg.Entries() {
		party, err := s.parties.Get(e.PartyID)
		if err != nil {
			continue
		}
		if party == nil || party.QueuePhase != models.PhaseFindingTeammates {
			s.teammateReg.Dequeue(e.PartyID)
			s.logger.Debug("Healed orphan teammate entry", zap.String("partyId", e.PartyID))
		}
	}
	for _, e := range s.opponentReg.Entries() {
		party, err := s.parties.Get(e.PartyID)
		if err != nil {
			continue
		}
		if party == nil || party.QueuePhase != models.PhaseFindingOpponents {
			s.opponentReg.Dequeue(e.PartyID)
			s.logger.Debug("Healed orphan opponent entry", zap.String("partyId", e.PartyID))
		}
	}
}

// activateMergedParty 역할이 확정된 팀을 새 파티로 전환하고 곧바로
// 상대 탐색 큐에 올린다. 기여 파티들은 해산된다. 호출자는 팀 락을
// 쥐고 있어야 하며, 파티 락은 여기서 잡는다.
func (s *QueueService) activateMergedParty(team *models.AssembledTeam) (*models.Party, error) {
	locked := s.locks.LockMany(team.PartyIDs)
	defer s.locks.UnlockMany(locked)

	// 락을 기다리는 사이 취소나 이탈이 끝났을 수 있다. 기여 파티가
	// 전부 아직 이 팀의 역할 선택 중인지 확인하고, 아니면 전환을
	// 포기한다 (호출자가 Confirmed를 되돌린다).
	for _, pid := range team.PartyIDs {
		party, err := s.parties.Get(pid)
		if err != nil {
			return nil, fmt.Errorf("failed to get party %s: %w", pid, err)
		}
		if party == nil || party.QueuePhase != models.PhaseIGLSelection || party.TeamID != team.ID {
			s.logger.Info("Team activation aborted, party no longer in selection",
				zap.String("teamId", team.ID),
				zap.String("partyId", pid))
			return nil, ErrTeamDissolved
		}
	}

	now := s.clock.Now()
	matchType := team.MatchType
	if matchType == "" {
		matchType = models.MatchTypeRanked
	}

	members := make([]models.Member, 0, len(team.Members))
	for _, m := range team.Members {
		m.IsLeader = m.UserID == team.LargestPartyLeaderID
		if m.IsLeader {
			m.IsReady = true
		}
		members = append(members, m)
	}

	party := &models.Party{
		ID:             uuid.New().String(),
		LeaderID:       team.LargestPartyLeaderID,
		Members:        members,
		IGLID:          team.IGLID,
		AnchorID:       team.AnchorID,
		QueuePhase:     models.PhaseFindingOpponents,
		MatchType:      matchType,
		QueueStartedAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// 합쳐진 파티 생성 전에 기여 파티부터 지워 한 사용자가 두 파티에
	// 걸치지 않게 한다
	for _, pid := range team.PartyIDs {
		if err := s.parties.Delete(pid); err != nil {
			return nil, fmt.Errorf("failed to dissolve party %s: %w", pid, err)
		}
	}
	if err := s.parties.Create(party); err != nil {
		return nil, fmt.Errorf("failed to create merged party: %w", err)
	}

	if err := s.opponentReg.Enqueue(registry.Entry{
		PartyID:     party.ID,
		MatchType:   matchType,
		Size:        len(party.Members),
		SkillRating: party.AverageRating(),
	}); err != nil {
		return nil, fmt.Errorf("failed to enqueue merged party: %w", err)
	}

	s.logger.Info("Merged party activated",
		zap.String("partyId", party.ID),
		zap.String("teamId", team.ID),
		zap.String("matchType", string(matchType)))

	s.publish(party, models.PartyEvent{
		Type:    models.EventRolesConfirmed,
		PartyID: party.ID,
		TeamID:  team.ID,
		Phase:   party.QueuePhase,
	})
	return party, nil
}

// requeueParty 팀 해산 시 파티를 팀원 탐색 상태로 되돌린다.
// 호출자는 파티 락을 쥐고 있어야 한다.
func (s *QueueService) requeueParty(party *models.Party) {
	now := s.clock.Now()
	party.QueuePhase = models.PhaseFindingTeammates
	party.QueueStartedAt = &now
	party.TeamID = ""

	if err := s.teammateReg.Enqueue(registry.Entry{
		PartyID:     party.ID,
		MatchType:   party.MatchType,
		Size:        len(party.Members),
		SkillRating: party.AverageRating(),
	}); err != nil && !errors.Is(err, registry.ErrDuplicateEntry) {
		s.logger.Error("Failed to requeue party", zap.String("partyId", party.ID), zap.Error(err))
	}

	if err := s.parties.Update(party); err != nil {
		s.logger.Error("Failed to update requeued party", zap.String("partyId", party.ID), zap.Error(err))
	}

	s.publish(party, models.PartyEvent{
		Type:    models.EventPhaseChanged,
		PartyID: party.ID,
		Phase:   party.QueuePhase,
	})
}

func (s *QueueService) publish(party *models.Party, event models.PartyEvent) {
	event.Timestamp = s.clock.Now()
	ids := make([]string, 0, len(party.Members))
	for _, m := range party.Members {
		if !m.IsAI {
			ids = append(ids, m.UserID)
		}
	}
	s.notifier.PublishToUsers(ids, event)
}
