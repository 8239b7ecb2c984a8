package service

import (
	"sync"
	"testing"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/Gamechiefx/flashmath-backend/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartTeammateSearch_Validation(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())

	trio := makeParty(t, svcs, "trio", 3, 1000)

	// 리더만 시작할 수 있다
	err := svcs.Queue.StartTeammateSearch(trio.ID, "trio-m1")
	assert.ErrorIs(t, err, ErrNotLeader)

	// 풀 파티는 팀원 탐색이 필요 없다
	full := makeParty(t, svcs, "full", 5, 1000)
	err = svcs.Queue.StartTeammateSearch(full.ID, "full-leader")
	assert.ErrorIs(t, err, ErrInvalidPartySize)

	// 정상 시작 후 중복 시작은 거부된다
	require.NoError(t, svcs.Queue.StartTeammateSearch(trio.ID, "trio-leader"))
	err = svcs.Queue.StartTeammateSearch(trio.ID, "trio-leader")
	assert.ErrorIs(t, err, ErrAlreadyQueued)

	got := getParty(t, svcs, trio.ID)
	assert.Equal(t, models.PhaseFindingTeammates, got.QueuePhase)
	assert.NotNil(t, got.QueueStartedAt)
}

func TestSweep_AssemblesExactTeam(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())

	trio := makeParty(t, svcs, "trio", 3, 1000)
	duo := makeParty(t, svcs, "duo", 2, 1040)
	solo := makeParty(t, svcs, "solo", 1, 1020)

	require.NoError(t, svcs.Queue.StartTeammateSearch(trio.ID, "trio-leader"))
	require.NoError(t, svcs.Queue.StartTeammateSearch(duo.ID, "duo-leader"))
	require.NoError(t, svcs.Queue.StartTeammateSearch(solo.ID, "solo-leader"))

	svcs.Queue.Sweep()

	// 3+2가 정확히 5를 만든다. 솔로는 남는다.
	gotTrio := getParty(t, svcs, trio.ID)
	gotDuo := getParty(t, svcs, duo.ID)
	gotSolo := getParty(t, svcs, solo.ID)

	assert.Equal(t, models.PhaseIGLSelection, gotTrio.QueuePhase)
	assert.Equal(t, models.PhaseIGLSelection, gotDuo.QueuePhase)
	assert.Equal(t, models.PhaseFindingTeammates, gotSolo.QueuePhase)

	require.NotEmpty(t, gotTrio.TeamID)
	assert.Equal(t, gotTrio.TeamID, gotDuo.TeamID)

	team := svcs.Role.teams.Get(gotTrio.TeamID)
	require.NotNil(t, team)
	assert.Len(t, team.Members, 5)
	// 대표 리더는 가장 큰 기여 파티의 리더
	assert.Equal(t, "trio-leader", team.LargestPartyLeaderID)

	// 폴링 응답에도 팀이 실린다
	status, err := svcs.Queue.CheckForTeammates(trio.ID)
	require.NoError(t, err)
	assert.Equal(t, QueueStatusTeamAssembled, status.Status)
	require.NotNil(t, status.Team)
	assert.Equal(t, team.ID, status.Team.ID)
}

func TestStartOpponentSearch_RankedRequiresFullParty(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())

	trio := makeParty(t, svcs, "trio", 3, 1000)

	err := svcs.Queue.StartOpponentSearch(trio.ID, "trio-leader", models.MatchTypeRanked)
	assert.ErrorIs(t, err, ErrIncompletePartyForRanked)

	// 같은 파티라도 캐주얼은 허용된다 (부족분은 AI가 채운다)
	err = svcs.Queue.StartOpponentSearch(trio.ID, "trio-leader", models.MatchTypeCasual)
	assert.NoError(t, err)
}

func TestStartOpponentSearch_RequiresAllReady(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())

	party, err := svcs.Party.CreateParty("lead", "lead", 1000)
	require.NoError(t, err)
	_, err = svcs.Party.JoinParty(party.ID, "m1", "m1", 1000)
	require.NoError(t, err)
	// m1은 준비하지 않았다

	err = svcs.Queue.StartOpponentSearch(party.ID, "lead", models.MatchTypeCasual)
	assert.ErrorIs(t, err, ErrMembersNotReady)
}

func TestCasualPairing_FillsBothSidesWithBots(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())

	trio := makeParty(t, svcs, "trio", 3, 1000)
	duo := makeParty(t, svcs, "duo", 2, 1030)

	require.NoError(t, svcs.Queue.StartOpponentSearch(trio.ID, "trio-leader", models.MatchTypeCasual))
	require.NoError(t, svcs.Queue.StartOpponentSearch(duo.ID, "duo-leader", models.MatchTypeCasual))

	svcs.Queue.Sweep()

	status, err := svcs.Queue.CheckTeamMatch(trio.ID)
	require.NoError(t, err)
	require.Equal(t, QueueStatusMatchFound, status.Status)
	require.NotNil(t, status.Match)

	match := status.Match
	assert.Len(t, match.Team1.Members, 5)
	assert.Len(t, match.Team2.Members, 5)
	assert.False(t, match.IsAIMatch)

	bots := 0
	for _, m := range append(match.Team1.Members, match.Team2.Members...) {
		if m.IsAI {
			bots++
			assert.True(t, m.IsReady)
		}
	}
	// 3인 파티에 2봇, 2인 파티에 3봇
	assert.Equal(t, 5, bots)

	// 양쪽 모두 같은 매치를 가리킨다
	other, err := svcs.Queue.CheckTeamMatch(duo.ID)
	require.NoError(t, err)
	require.Equal(t, QueueStatusMatchFound, other.Status)
	assert.Equal(t, match.ID, other.Match.ID)
}

func TestConcurrentPolling_ProducesSingleMatch(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())

	a := makeParty(t, svcs, "a", 5, 1000)
	b := makeParty(t, svcs, "b", 5, 1050)

	require.NoError(t, svcs.Queue.StartOpponentSearch(a.ID, "a-leader", models.MatchTypeRanked))
	require.NoError(t, svcs.Queue.StartOpponentSearch(b.ID, "b-leader", models.MatchTypeRanked))

	// 양쪽이 동시에 폴링해도 매치는 하나만 만들어져야 한다
	var wg sync.WaitGroup
	for _, id := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func(partyID string) {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				_, _ = svcs.Queue.CheckTeamMatch(partyID)
			}
		}(id)
	}
	wg.Wait()

	gotA := getParty(t, svcs, a.ID)
	gotB := getParty(t, svcs, b.ID)

	require.True(t, gotA.QueuePhase.IsTerminal(), "party a phase = %s", gotA.QueuePhase)
	require.True(t, gotB.QueuePhase.IsTerminal(), "party b phase = %s", gotB.QueuePhase)
	assert.Equal(t, gotA.QueuePhase.MatchID(), gotB.QueuePhase.MatchID())

	assert.Len(t, svcs.Match.ListByParty(a.ID), 1)
	assert.Len(t, svcs.Match.ListByParty(b.ID), 1)
}

func TestCancelQueue_Idempotent(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())

	trio := makeParty(t, svcs, "trio", 3, 1000)

	// 큐에 없는 상태의 취소도 성공한다
	require.NoError(t, svcs.Queue.CancelQueue(trio.ID, "trio-leader"))

	require.NoError(t, svcs.Queue.StartTeammateSearch(trio.ID, "trio-leader"))
	require.NoError(t, svcs.Queue.CancelQueue(trio.ID, "trio-leader"))
	require.NoError(t, svcs.Queue.CancelQueue(trio.ID, "trio-leader"))

	got := getParty(t, svcs, trio.ID)
	assert.Equal(t, models.PhaseNone, got.QueuePhase)
	assert.Nil(t, got.QueueStartedAt)
	assert.Equal(t, 0, svcs.Queue.teammateReg.Len())

	// 리더가 아니면 취소할 수 없다
	require.NoError(t, svcs.Queue.StartTeammateSearch(trio.ID, "trio-leader"))
	err := svcs.Queue.CancelQueue(trio.ID, "trio-m1")
	assert.ErrorIs(t, err, ErrNotLeader)
}

func TestToggleReady_CancelsActiveSearch(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())

	duo := makeParty(t, svcs, "duo", 2, 1000)
	require.NoError(t, svcs.Queue.StartOpponentSearch(duo.ID, "duo-leader", models.MatchTypeCasual))

	cancelled, err := svcs.Party.ToggleReady(duo.ID, "duo-m1")
	require.NoError(t, err)
	assert.True(t, cancelled)

	got := getParty(t, svcs, duo.ID)
	assert.Equal(t, models.PhaseNone, got.QueuePhase)
	assert.Equal(t, 0, svcs.Queue.opponentReg.Len())

	// 다시 준비하면 새 검색을 시작할 수 있다
	cancelled, err = svcs.Party.ToggleReady(duo.ID, "duo-m1")
	require.NoError(t, err)
	assert.False(t, cancelled)
	require.NoError(t, svcs.Queue.StartOpponentSearch(duo.ID, "duo-leader", models.MatchTypeCasual))
}

func TestAcknowledgeMatch_ReturnsPartyToIdle(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())

	a := makeParty(t, svcs, "a", 5, 1000)
	b := makeParty(t, svcs, "b", 5, 1000)
	require.NoError(t, svcs.Queue.StartOpponentSearch(a.ID, "a-leader", models.MatchTypeRanked))
	require.NoError(t, svcs.Queue.StartOpponentSearch(b.ID, "b-leader", models.MatchTypeRanked))
	svcs.Queue.Sweep()

	require.True(t, getParty(t, svcs, a.ID).QueuePhase.IsTerminal())

	// 구성원이 아니면 거부
	err := svcs.Queue.AcknowledgeMatch(a.ID, "stranger")
	assert.ErrorIs(t, err, ErrNotMember)

	require.NoError(t, svcs.Queue.AcknowledgeMatch(a.ID, "a-m1"))
	got := getParty(t, svcs, a.ID)
	assert.Equal(t, models.PhaseNone, got.QueuePhase)
	assert.Empty(t, got.MatchType)

	// 멱등
	require.NoError(t, svcs.Queue.AcknowledgeMatch(a.ID, "a-m1"))
}

func TestSweep_HealsOrphanEntries(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())

	// 파티 레코드가 없는 고아 엔트리
	require.NoError(t, svcs.Queue.teammateReg.Enqueue(registry.Entry{
		PartyID: "ghost", MatchType: models.MatchTypeRanked, Size: 2, SkillRating: 1000,
	}))
	// 단계가 어긋난 엔트리 (파티는 큐 밖인데 레지스트리에 남아 있음)
	idle := makeParty(t, svcs, "idle", 2, 1000)
	require.NoError(t, svcs.Queue.opponentReg.Enqueue(registry.Entry{
		PartyID: idle.ID, MatchType: models.MatchTypeCasual, Size: 2, SkillRating: 1000,
	}))

	svcs.Queue.Sweep()

	assert.Equal(t, 0, svcs.Queue.teammateReg.Len())
	assert.Equal(t, 0, svcs.Queue.opponentReg.Len())
}

func TestJoinParty_CancelsActiveSearch(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())

	trio := makeParty(t, svcs, "trio", 3, 1000)
	require.NoError(t, svcs.Queue.StartTeammateSearch(trio.ID, "trio-leader"))

	_, err := svcs.Party.JoinParty(trio.ID, "newcomer", "newcomer", 1000)
	require.NoError(t, err)

	got := getParty(t, svcs, trio.ID)
	assert.Equal(t, models.PhaseNone, got.QueuePhase)
	assert.Equal(t, 0, svcs.Queue.teammateReg.Len())
	assert.Len(t, got.Members, 4)
}
