package service

import (
	"fmt"
	"testing"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/Gamechiefx/flashmath-backend/internal/notify"
	"github.com/Gamechiefx/flashmath-backend/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServices(opts Options) (*Services, clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	svcs := NewServices(Deps{
		Parties:  store.NewMemoryPartyStore(),
		Teams:    store.NewTeamStore(),
		Matches:  store.NewMatchStore(),
		Notifier: notify.NopNotifier{},
		Clock:    clock,
		Logger:   zap.NewNop(),
	}, opts)
	return svcs, clock
}

// makeParty prefix-leader가 이끄는 size명 파티를 만들고 전원 준비
// 상태로 맞춘다.
func makeParty(t *testing.T, svcs *Services, prefix string, size, rating int) *models.Party {
	t.Helper()

	party, err := svcs.Party.CreateParty(prefix+"-leader", prefix+" leader", rating)
	require.NoError(t, err)

	for i := 1; i < size; i++ {
		uid := fmt.Sprintf("%s-m%d", prefix, i)
		_, err := svcs.Party.JoinParty(party.ID, uid, uid, rating)
		require.NoError(t, err)
		_, err = svcs.Party.ToggleReady(party.ID, uid)
		require.NoError(t, err)
	}

	party, err = svcs.Party.GetParty(party.ID)
	require.NoError(t, err)
	return party
}

func getParty(t *testing.T, svcs *Services, partyID string) *models.Party {
	t.Helper()
	party, err := svcs.Party.GetParty(partyID)
	require.NoError(t, err)
	return party
}
