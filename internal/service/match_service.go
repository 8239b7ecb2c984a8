package service

import (
	"context"
	"fmt"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/Gamechiefx/flashmath-backend/internal/notify"
	"github.com/Gamechiefx/flashmath-backend/internal/registry"
	"github.com/Gamechiefx/flashmath-backend/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// MatchService 상대 레지스트리에서 팀 매치를 성립시키고, 캐주얼
// 파티의 부족 인원과 AI 매치의 상대 팀을 봇으로 채운다.
type MatchService struct {
	matches     *store.MatchStore
	parties     store.PartyStore
	opponentReg *registry.Registry
	locks       *partyLocks
	notifier    notify.Notifier
	producer    *notify.MatchProducer
	clock       clockwork.Clock
	logger      *zap.Logger
	opts        Options
}

func NewMatchService(
	matches *store.MatchStore,
	parties store.PartyStore,
	opponentReg *registry.Registry,
	locks *partyLocks,
	notifier notify.Notifier,
	producer *notify.MatchProducer,
	clock clockwork.Clock,
	logger *zap.Logger,
	opts Options,
) *MatchService {
	return &MatchService{
		matches:     matches,
		parties:     parties,
		opponentReg: opponentReg,
		locks:       locks,
		notifier:    notifier,
		producer:    producer,
		clock:       clock,
		logger:      logger,
		opts:        opts,
	}
}

// TryPair 요청 파티의 허용 폭 안에서 상대를 찾아 매치를 만든다.
// 상대가 없으면 (nil, nil). 요청 엔트리가 다른 스캔에 잡혀 있으면
// registry.ErrContention. 호출자가 재시도를 결정한다.
// 같은 파티 쌍을 두 스캔이 동시에 발견해도 레지스트리 클레임과
// 쌍 키 멱등 저장이 매치를 하나로 보장한다.
func (s *MatchService) TryPair(partyID string) (*models.Match, error) {
	claim, err := s.opponentReg.FindOpponentMatch(partyID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, nil
	}

	selfID := claim.Entries[0].PartyID
	oppID := claim.Entries[1].PartyID
	s.locks.LockPair(selfID, oppID)
	defer s.locks.UnlockPair(selfID, oppID)

	// 클레임과 락 사이에 상태가 변했을 수 있다. 커밋 전 재검증
	self, err := s.validateSearching(selfID)
	if err != nil {
		claim.Release()
		return nil, err
	}
	opp, _ := s.validateSearching(oppID)
	if self == nil || opp == nil {
		// 무효해진 쪽은 레지스트리에서 정리하고 물러난다
		if self == nil {
			s.opponentReg.Dequeue(selfID)
		}
		if opp == nil {
			s.opponentReg.Dequeue(oppID)
		}
		claim.Release()
		return nil, nil
	}

	match := s.buildMatch(self, opp)
	match = s.matches.PutIfAbsent(store.PairKey(selfID, oppID), match)

	for _, party := range []*models.Party{self, opp} {
		party.QueuePhase = models.MatchFoundPhase(match.ID)
		party.QueueStartedAt = nil
		if err := s.parties.Update(party); err != nil {
			s.logger.Error("Failed to move party into match",
				zap.String("partyId", party.ID),
				zap.Error(err))
		}
	}
	claim.Commit()

	s.logger.Info("Match found",
		zap.String("matchId", match.ID),
		zap.String("team1PartyId", selfID),
		zap.String("team2PartyId", oppID),
		zap.String("matchType", string(match.Type)))

	for _, party := range []*models.Party{self, opp} {
		s.notifyMatch(party, match)
	}
	s.producer.PublishMatchFound(context.Background(), match)
	return match, nil
}

// validateSearching 파티가 여전히 상대 탐색 중인지 확인.
// 유효하지 않으면 (nil, nil). 스토어 오류만 에러로 올린다.
func (s *MatchService) validateSearching(partyID string) (*models.Party, error) {
	party, err := s.parties.Get(partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get party: %w", err)
	}
	if party == nil || party.QueuePhase != models.PhaseFindingOpponents {
		return nil, nil
	}
	return party, nil
}

func (s *MatchService) buildMatch(team1, team2 *models.Party) *models.Match {
	matchType := team1.MatchType
	if matchType == "" {
		matchType = models.MatchTypeCasual
	}

	match := &models.Match{
		ID:        uuid.New().String(),
		Type:      matchType,
		CreatedAt: s.clock.Now(),
	}
	match.Team1 = models.MatchTeam{
		TeamName: "Team 1",
		PartyID:  team1.ID,
		Members:  FillWithBots(team1.ID, team1.Members, s.opts.TeamSize, models.DifficultyNormal),
	}
	match.Team2 = models.MatchTeam{
		TeamName: "Team 2",
		PartyID:  team2.ID,
		Members:  FillWithBots(team2.ID, team2.Members, s.opts.TeamSize, models.DifficultyNormal),
	}
	return match
}

// CreateAIMatch 전원 AI 상대와의 캐주얼 매치 생성. 리더 전용이며
// 전원 준비 완료 + 역할 확정이 조건이다. 진행 중이던 상대 탐색은
// 취소된다. 인원 부족분은 아군도 봇으로 채운다.
func (s *MatchService) CreateAIMatch(partyID, callerID string, difficulty models.Difficulty) (*models.Match, error) {
	if !difficulty.Valid() {
		return nil, ErrInvalidDifficulty
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
	if callerID != party.LeaderID {
		return nil, ErrNotLeader
	}
	if party.QueuePhase != models.PhaseNone && party.QueuePhase != models.PhaseFindingOpponents {
		return nil, ErrAlreadyQueued
	}
	if !party.AllReady() {
		return nil, ErrMembersNotReady
	}
	if party.IGLID == "" || party.AnchorID == "" {
		return nil, ErrRolesNotAssigned
	}

	botTeamID := "ai-" + uuid.New().String()
	match := &models.Match{
		ID:        uuid.New().String(),
		Type:      models.MatchTypeCasual,
		IsAIMatch: true,
		CreatedAt: s.clock.Now(),
	}
	match.Team1 = models.MatchTeam{
		TeamName: "Team 1",
		PartyID:  party.ID,
		Members:  FillWithBots(party.ID, party.Members, s.opts.TeamSize, models.DifficultyNormal),
	}
	match.Team2 = models.MatchTeam{
		TeamName: "Team 2",
		Members:  FillWithBots(botTeamID, nil, s.opts.TeamSize, difficulty),
	}
	s.matches.PutIfAbsent("", match)

	s.opponentReg.Dequeue(party.ID)
	party.QueuePhase = models.AIMatchPhase(match.ID)
	party.QueueStartedAt = nil
	party.MatchType = models.MatchTypeCasual
	if err := s.parties.Update(party); err != nil {
		return nil, fmt.Errorf("failed to update party: %w", err)
	}

	s.logger.Info("AI match created",
		zap.String("matchId", match.ID),
		zap.String("partyId", party.ID),
		zap.String("difficulty", string(difficulty)))

	s.notifyMatch(party, match)
	s.producer.PublishMatchFound(context.Background(), match)
	return match, nil
}

// GetMatch 매치 조회
func (s *MatchService) GetMatch(matchID string) (*models.Match, error) {
	match := s.matches.Get(matchID)
	if match == nil {
		return nil, ErrMatchNotFound
	}
	return match, nil
}

// ListByParty 파티의 매치 이력
func (s *MatchService) ListByParty(partyID string) []*models.Match {
	return s.matches.ListByParty(partyID)
}

// FillWithBots 부족 인원을 봇으로 채운 명단을 반환한다. 입력은
// 바꾸지 않는다. 봇 이름과 ID는 팀 내 순번으로 결정적이다.
func FillWithBots(teamID string, members []models.Member, targetSize int, difficulty models.Difficulty) []models.Member {
	out := make([]models.Member, 0, targetSize)
	out = append(out, members...)
	for n := 1; len(out) < targetSize; n++ {
		out = append(out, models.Member{
			UserID:      fmt.Sprintf("ai-%s-%d", teamID, n),
			DisplayName: fmt.Sprintf("Bot-%d", n),
			SkillRating: difficulty.Rating(),
			IsReady:     true,
			IsAI:        true,
			Online:      true,
		})
	}
	return out
}

func (s *MatchService) notifyMatch(party *models.Party, match *models.Match) {
	ids := make([]string, 0, len(party.Members))
	for _, m := range party.Members {
		if !m.IsAI {
			ids = append(ids, m.UserID)
		}
	}
	s.notifier.PublishToUsers(ids, models.PartyEvent{
		Type:      models.EventMatchFound,
		PartyID:   party.ID,
		Phase:     party.QueuePhase,
		MatchID:   match.ID,
		Timestamp: s.clock.Now(),
	})
}
