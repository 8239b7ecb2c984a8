package service

import (
	"github.com/Gamechiefx/flashmath-backend/internal/notify"
	"github.com/Gamechiefx/flashmath-backend/internal/registry"
	"github.com/Gamechiefx/flashmath-backend/internal/store"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Services 서비스 계층 전체. 파티 락과 레지스트리는 서비스들이
// 공유해야 하므로 여기서 한 번만 만들어 배선한다.
type Services struct {
	Party *PartyService
	Role  *RoleService
	Match *MatchService
	Queue *QueueService
}

// Deps 서비스 계층 외부 의존성
type Deps struct {
	Parties  store.PartyStore
	Teams    *store.TeamStore
	Matches  *store.MatchStore
	Notifier notify.Notifier
	Producer *notify.MatchProducer
	Clock    clockwork.Clock
	Logger   *zap.Logger
}

// NewServices 서비스 계층 생성 및 상호 배선
func NewServices(deps Deps, opts Options) *Services {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	locks := newPartyLocks()
	teammateReg := registry.New(deps.Clock)
	opponentReg := registry.New(deps.Clock)

	party := NewPartyService(deps.Parties, locks, deps.Notifier, deps.Logger, opts)
	role := NewRoleService(deps.Teams, deps.Parties, locks, deps.Notifier, deps.Clock, deps.Logger, opts)
	match := NewMatchService(deps.Matches, deps.Parties, opponentReg, locks, deps.Notifier, deps.Producer, deps.Clock, deps.Logger, opts)
	queue := NewQueueService(deps.Parties, deps.Teams, teammateReg, opponentReg, locks, deps.Notifier, role, match, deps.Clock, deps.Logger, opts)

	// 순환 참조는 설정자로 해소한다
	role.SetQueueService(queue)
	party.SetQueueService(queue)
	party.SetRoleService(role)

	return &Services{
		Party: party,
		Role:  role,
		Match: match,
		Queue: queue,
	}
}
