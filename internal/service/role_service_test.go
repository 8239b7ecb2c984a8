package service

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/Gamechiefx/flashmath-backend/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assembleTeam 3인+2인 파티를 팀원 탐색으로 합쳐 역할 선택 단계의
// 팀을 만든다.
func assembleTeam(t *testing.T, svcs *Services) (team *models.AssembledTeam, trioID, duoID string) {
	t.Helper()

	trio := makeParty(t, svcs, "trio", 3, 1000)
	duo := makeParty(t, svcs, "duo", 2, 1040)
	require.NoError(t, svcs.Queue.StartTeammateSearch(trio.ID, "trio-leader"))
	require.NoError(t, svcs.Queue.StartTeammateSearch(duo.ID, "duo-leader"))
	svcs.Queue.Sweep()

	teamID := getParty(t, svcs, trio.ID).TeamID
	require.NotEmpty(t, teamID)
	team = svcs.Role.teams.Get(teamID)
	require.NotNil(t, team)
	return team, trio.ID, duo.ID
}

func TestSelectRole_VoteConfirmsOnMajority(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())
	team, _, _ := assembleTeam(t, svcs)

	// 5인 팀: 2표까지는 미확정, 3표째에 과반으로 확정
	for i, voter := range []string{"trio-leader", "trio-m1"} {
		got, err := svcs.Role.SelectIGL(team.ID, voter, "duo-leader")
		require.NoError(t, err)
		assert.Empty(t, got.IGLID, "IGL must not be set after %d votes", i+1)
	}

	got, err := svcs.Role.SelectIGL(team.ID, "trio-m2", "duo-leader")
	require.NoError(t, err)
	assert.Equal(t, "duo-leader", got.IGLID)
}

func TestSelectRole_AllVotedPluralityWithSkillTieBreak(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())

	// 서로 다른 레이팅으로 동률 타이브레이크를 확인한다
	trio := makeParty(t, svcs, "trio", 3, 1000)
	duo := makeParty(t, svcs, "duo", 2, 1040)
	require.NoError(t, svcs.Queue.StartTeammateSearch(trio.ID, "trio-leader"))
	require.NoError(t, svcs.Queue.StartTeammateSearch(duo.ID, "duo-leader"))
	svcs.Queue.Sweep()
	teamID := getParty(t, svcs, trio.ID).TeamID
	team := svcs.Role.teams.Get(teamID)
	require.NotNil(t, team)

	// 2표 대 2표 대 1표: 전원 투표 시 동률은 레이팅 높은 후보가 이긴다.
	// duo 쪽 후보(1040)가 trio 쪽 후보(1000)를 이겨야 한다.
	votes := map[string]string{
		"trio-leader": "trio-m1",
		"trio-m1":     "trio-m1",
		"duo-leader":  "duo-m1",
		"duo-m1":      "duo-m1",
	}
	for voter, candidate := range votes {
		got, err := svcs.Role.SelectAnchor(teamID, voter, candidate)
		require.NoError(t, err)
		assert.Empty(t, got.AnchorID)
	}

	// 마지막 투표자가 제3 후보를 찍어도 전원 투표가 성립한다
	got, err := svcs.Role.SelectAnchor(teamID, "trio-m2", "trio-leader")
	require.NoError(t, err)
	assert.Equal(t, "duo-m1", got.AnchorID)
}

func TestSelectRole_RevoteReplacesPriorVote(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())
	team, _, _ := assembleTeam(t, svcs)

	_, err := svcs.Role.SelectIGL(team.ID, "trio-leader", "trio-m1")
	require.NoError(t, err)
	_, err = svcs.Role.SelectIGL(team.ID, "trio-m1", "trio-m1")
	require.NoError(t, err)

	// trio-leader가 표를 옮긴다. trio-m1은 과반에 도달하지 못한다
	got, err := svcs.Role.SelectIGL(team.ID, "trio-leader", "duo-leader")
	require.NoError(t, err)
	assert.Empty(t, got.IGLID)
	assert.Equal(t, 1, len(got.IGLVotes["trio-m1"]))
	assert.Equal(t, 1, len(got.IGLVotes["duo-leader"]))
}

func TestSelectRole_Validation(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())
	team, _, _ := assembleTeam(t, svcs)

	// 팀 밖 사용자
	_, err := svcs.Role.SelectIGL(team.ID, "stranger", "trio-m1")
	assert.ErrorIs(t, err, ErrNotMember)

	// 팀 밖 후보
	_, err = svcs.Role.SelectIGL(team.ID, "trio-leader", "stranger")
	assert.ErrorIs(t, err, ErrInvalidRole)

	// 없는 팀
	_, err = svcs.Role.SelectIGL("nope", "trio-leader", "trio-m1")
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestSelectRole_DualRoleDisallowed(t *testing.T) {
	opts := DefaultOptions()
	opts.AllowDualRole = false
	svcs, _ := newTestServices(opts)
	team, _, _ := assembleTeam(t, svcs)

	// IGL을 과반으로 확정
	for _, voter := range []string{"trio-leader", "trio-m1", "trio-m2"} {
		_, err := svcs.Role.SelectIGL(team.ID, voter, "duo-leader")
		require.NoError(t, err)
	}

	// 같은 사람을 Anchor 후보로 올릴 수 없다
	_, err := svcs.Role.SelectAnchor(team.ID, "trio-leader", "duo-leader")
	assert.ErrorIs(t, err, ErrDualRoleNotAllowed)
}

func TestLeaderPick_SinglePartyOrigin(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())

	party := makeParty(t, svcs, "solo", 3, 1000)
	entries := []registry.Entry{{PartyID: party.ID, Size: 3, SkillRating: 1000}}
	team := svcs.Role.BeginSelection([]*models.Party{party}, entries)

	// 단일 파티 팀은 리더 지명만 허용된다
	_, err := svcs.Role.SelectIGL(team.ID, "solo-m1", "solo-m2")
	assert.ErrorIs(t, err, ErrNotPickAuthority)

	got, err := svcs.Role.SelectIGL(team.ID, "solo-leader", "solo-m1")
	require.NoError(t, err)
	assert.Equal(t, "solo-m1", got.IGLID)

	// 재지명은 덮어쓴다
	got, err = svcs.Role.SelectIGL(team.ID, "solo-leader", "solo-m2")
	require.NoError(t, err)
	assert.Equal(t, "solo-m2", got.IGLID)
}

func TestConfirmSelection_ActivatesMergedParty(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())
	team, trioID, duoID := assembleTeam(t, svcs)

	// 확정 전에는 역할이 모두 있어야 한다
	_, err := svcs.Role.ConfirmIGLSelection(team.ID, "trio-leader")
	assert.ErrorIs(t, err, ErrRolesIncomplete)

	for _, voter := range []string{"trio-leader", "trio-m1", "trio-m2"} {
		_, err := svcs.Role.SelectIGL(team.ID, voter, "duo-leader")
		require.NoError(t, err)
	}
	for _, voter := range []string{"trio-leader", "trio-m1", "trio-m2"} {
		_, err := svcs.Role.SelectAnchor(team.ID, voter, "trio-m1")
		require.NoError(t, err)
	}

	// 대표 리더만 확정할 수 있다
	_, err = svcs.Role.ConfirmIGLSelection(team.ID, "duo-leader")
	assert.ErrorIs(t, err, ErrNotPickAuthority)

	merged, err := svcs.Role.ConfirmIGLSelection(team.ID, "trio-leader")
	require.NoError(t, err)

	// 합쳐진 파티: 5인, 역할 유지, 곧바로 상대 탐색
	assert.Len(t, merged.Members, 5)
	assert.Equal(t, "trio-leader", merged.LeaderID)
	assert.Equal(t, "duo-leader", merged.IGLID)
	assert.Equal(t, "trio-m1", merged.AnchorID)
	assert.Equal(t, models.PhaseFindingOpponents, merged.QueuePhase)

	// 기여 파티들은 해산되었다
	_, err = svcs.Party.GetParty(trioID)
	assert.ErrorIs(t, err, ErrPartyNotFound)
	_, err = svcs.Party.GetParty(duoID)
	assert.ErrorIs(t, err, ErrPartyNotFound)

	// 구성원 폴링은 합쳐진 파티를 본다
	data, err := svcs.Party.GetPartyData("duo-m1")
	require.NoError(t, err)
	assert.Equal(t, merged.ID, data.ID)

	// 팀은 소비되었다
	_, err = svcs.Role.GetTeam(team.ID, "trio-leader")
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestSelectionTimeout_AutoResolvesBySkill(t *testing.T) {
	svcs, clock := newTestServices(DefaultOptions())

	// 레이팅이 갈리도록 구성: duo(1200) > trio(1000)
	trio := makeParty(t, svcs, "trio", 3, 1000)
	duo := makeParty(t, svcs, "duo", 2, 1200)
	require.NoError(t, svcs.Queue.StartTeammateSearch(trio.ID, "trio-leader"))
	require.NoError(t, svcs.Queue.StartTeammateSearch(duo.ID, "duo-leader"))
	svcs.Queue.Sweep()

	teamID := getParty(t, svcs, trio.ID).TeamID
	require.NotEmpty(t, teamID)

	// 제한 시간 전에는 아무 일도 없다
	clock.Advance(10 * time.Second)
	svcs.Role.ResolveDeadlines()
	require.NotNil(t, svcs.Role.teams.Get(teamID))

	// 제한 시간 경과. 최고 실력자 IGL, 차순위 Anchor로 자동 확정
	clock.Advance(20 * time.Second)
	svcs.Role.ResolveDeadlines()

	assert.Nil(t, svcs.Role.teams.Get(teamID))

	merged, err := svcs.Party.GetPartyData("duo-leader")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFindingOpponents, merged.QueuePhase)
	// duo 두 명(1200)이 역할을 나눠 갖는다
	assert.Contains(t, []string{"duo-leader", "duo-m1"}, merged.IGLID)
	assert.Contains(t, []string{"duo-leader", "duo-m1"}, merged.AnchorID)
	assert.NotEqual(t, merged.IGLID, merged.AnchorID)
}

func TestMemberLeave_DissolvesTeamAndRequeuesOthers(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())
	team, trioID, duoID := assembleTeam(t, svcs)

	require.NoError(t, svcs.Party.LeaveParty(duoID, "duo-m1"))

	// 팀은 해산되었다
	assert.Nil(t, svcs.Role.teams.Get(team.ID))

	// 남은 기여 파티는 팀원 탐색으로 돌아간다
	gotTrio := getParty(t, svcs, trioID)
	assert.Equal(t, models.PhaseFindingTeammates, gotTrio.QueuePhase)
	assert.Empty(t, gotTrio.TeamID)
	assert.True(t, svcs.Queue.teammateReg.Contains(trioID))

	// 이탈이 발생한 파티는 큐 밖으로
	gotDuo := getParty(t, svcs, duoID)
	assert.Equal(t, models.PhaseNone, gotDuo.QueuePhase)
	assert.Len(t, gotDuo.Members, 1)
	assert.False(t, svcs.Queue.teammateReg.Contains(duoID))
}

func TestLeaderCancel_DuringSelectionDissolvesTeam(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())
	team, trioID, duoID := assembleTeam(t, svcs)

	require.NoError(t, svcs.Queue.CancelQueue(duoID, "duo-leader"))

	assert.Nil(t, svcs.Role.teams.Get(team.ID))
	assert.Equal(t, models.PhaseNone, getParty(t, svcs, duoID).QueuePhase)
	assert.Equal(t, models.PhaseFindingTeammates, getParty(t, svcs, trioID).QueuePhase)
}

func TestTeamPolling_SafeDuringVoting(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())
	team, trioID, _ := assembleTeam(t, svcs)

	// 한 명이 표를 계속 옮기는 동안 다른 구성원들이 팀 상태를
	// 폴링하고 직렬화한다. 조회가 투표 맵을 공유하면 여기서 깨진다.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		candidates := []string{"duo-leader", "duo-m1"}
		for i := 0; i < 200; i++ {
			if _, err := svcs.Role.SelectAnchor(team.ID, "trio-leader", candidates[i%2]); err != nil {
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		status, err := svcs.Queue.CheckForTeammates(trioID)
		require.NoError(t, err)
		if status.Team != nil {
			_, err := json.Marshal(status.Team)
			require.NoError(t, err)
		}
	}
	wg.Wait()
}

func TestConfirmSelection_AbortsWhenCancelWins(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())
	team, trioID, duoID := assembleTeam(t, svcs)

	team.IGLID = "trio-leader"
	team.AnchorID = "duo-leader"
	svcs.Role.teams.Put(team)

	// 확정이 팀 락을 쥔 사이에 리더의 취소가 파티 구간을 끝내는
	// 교차를 재현한다. 취소의 해산 단계는 팀 락에 막혀 대기한다.
	key := svcs.Role.teamLockKey(team.ID)
	svcs.Role.locks.Lock(key)

	cancelDone := make(chan error, 1)
	go func() {
		cancelDone <- svcs.Queue.CancelQueue(trioID, "trio-leader")
	}()

	require.Eventually(t, func() bool {
		p, err := svcs.Party.GetParty(trioID)
		return err == nil && p.QueuePhase == models.PhaseNone
	}, time.Second, time.Millisecond)

	// 취소가 반영된 파티를 합쳐진 파티로 끌고 가면 안 된다
	_, err := svcs.Queue.activateMergedParty(team)
	require.ErrorIs(t, err, ErrTeamDissolved)

	svcs.Role.locks.Unlock(key)
	require.NoError(t, <-cancelDone)

	trio := getParty(t, svcs, trioID)
	assert.Equal(t, models.PhaseNone, trio.QueuePhase)
	assert.Empty(t, trio.TeamID)
	assert.Equal(t, models.PhaseFindingTeammates, getParty(t, svcs, duoID).QueuePhase)
	assert.Nil(t, svcs.Role.teams.Get(team.ID))
}

func TestConfirmSelection_RollsBackWhenPartyLeft(t *testing.T) {
	svcs, _ := newTestServices(DefaultOptions())
	team, trioID, _ := assembleTeam(t, svcs)

	team.IGLID = "trio-leader"
	team.AnchorID = "duo-leader"
	svcs.Role.teams.Put(team)

	// 취소의 파티 구간만 끝난 저장소 상태를 만든다
	trio := getParty(t, svcs, trioID)
	trio.QueuePhase = models.PhaseNone
	trio.TeamID = ""
	trio.QueueStartedAt = nil
	require.NoError(t, svcs.Party.parties.Update(trio))

	_, err := svcs.Role.ConfirmIGLSelection(team.ID, "trio-leader")
	require.ErrorIs(t, err, ErrTeamDissolved)

	// Confirmed가 되돌려져 해산 경로가 팀을 이어받을 수 있다
	got := svcs.Role.teams.Get(team.ID)
	require.NotNil(t, got)
	assert.False(t, got.Confirmed)
}
