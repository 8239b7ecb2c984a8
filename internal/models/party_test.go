package models

import "testing"

func TestQueuePhase_TerminalAndMatchID(t *testing.T) {
	tests := []struct {
		phase    QueuePhase
		terminal bool
		matchID  string
	}{
		{PhaseNone, false, ""},
		{PhaseFindingTeammates, false, ""},
		{PhaseIGLSelection, false, ""},
		{PhaseFindingOpponents, false, ""},
		{MatchFoundPhase("m-1"), true, "m-1"},
		{AIMatchPhase("m-2"), true, "m-2"},
	}

	for _, tt := range tests {
		if got := tt.phase.IsTerminal(); got != tt.terminal {
			t.Errorf("%q IsTerminal() = %v, want %v", tt.phase, got, tt.terminal)
		}
		if got := tt.phase.MatchID(); got != tt.matchID {
			t.Errorf("%q MatchID() = %q, want %q", tt.phase, got, tt.matchID)
		}
	}
}

func TestParty_AllReady(t *testing.T) {
	party := &Party{
		LeaderID: "u1",
		Members: []Member{
			{UserID: "u1", IsLeader: true}, // 리더는 준비 여부와 무관
			{UserID: "u2", IsReady: true},
			{UserID: "bot", IsAI: true},
		},
	}
	if !party.AllReady() {
		t.Error("party with ready members should be AllReady")
	}

	party.Members[1].IsReady = false
	if party.AllReady() {
		t.Error("party with an unready member must not be AllReady")
	}
}

func TestParty_ResolveRoles(t *testing.T) {
	party := &Party{
		IGLID:    "gone",
		AnchorID: "u1",
		Members:  []Member{{UserID: "u1"}},
	}
	party.ResolveRoles()

	if party.IGLID != "" {
		t.Errorf("dangling IGL ref should be cleared, got %q", party.IGLID)
	}
	if party.AnchorID != "u1" {
		t.Errorf("valid anchor ref should survive, got %q", party.AnchorID)
	}
}

func TestParty_AverageRating(t *testing.T) {
	party := &Party{Members: []Member{
		{SkillRating: 1000},
		{SkillRating: 1001},
	}}
	// 반올림
	if got := party.AverageRating(); got != 1001 {
		t.Errorf("AverageRating() = %d, want 1001", got)
	}

	empty := &Party{}
	if got := empty.AverageRating(); got != 0 {
		t.Errorf("empty party AverageRating() = %d, want 0", got)
	}
}

func TestRoleVote_CastReplacesPriorVote(t *testing.T) {
	votes := make(RoleVote)
	votes.Cast("a", "voter1")
	votes.Cast("b", "voter1")

	if len(votes["a"]) != 0 {
		t.Error("prior vote should be removed on re-vote")
	}
	if len(votes["b"]) != 1 || votes.Count() != 1 {
		t.Error("re-vote should count exactly once")
	}
}
