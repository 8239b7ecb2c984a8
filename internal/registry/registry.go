package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/jonboulle/clockwork"
)

var (
	ErrDuplicateEntry = errors.New("party already queued in this registry")
	ErrContention     = errors.New("entry claimed by a concurrent scan")
)

// 레이팅 범위 확장 스케줄. 대기 시간에 따라 단조 증가한다.
const (
	BaseRangeWidth = 100
	RangeWidthStep = 100
	MaxRangeWidth  = 500
	WidenEvery     = 10 * time.Second
)

// Entry 큐 등록 레코드
type Entry struct {
	PartyID     string
	MatchType   models.MatchType
	Size        int
	SkillRating int
	EnqueuedAt  time.Time
}

type slot struct {
	entry   Entry
	claimed bool
}

// Registry 검색 중인 파티를 담는 휘발성 레지스트리. 팀원 검색과
// 상대 검색에 각각 하나씩 쓴다. 모든 연산은 단일 뮤텍스로 직렬화되어
// 두 스캔이 같은 엔트리를 동시에 가져가는 일이 없다.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*slot
	clock   clockwork.Clock
}

// New 레지스트리 생성
func New(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		entries: make(map[string]*slot),
		clock:   clock,
	}
}

// Enqueue 엔트리 추가. 이미 있으면 ErrDuplicateEntry.
func (r *Registry) Enqueue(entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.PartyID]; exists {
		return ErrDuplicateEntry
	}
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = r.clock.Now()
	}
	r.entries[entry.PartyID] = &slot{entry: entry}
	return nil
}

// Dequeue 엔트리 제거. 없으면 no-op. 클레임 중이어도 즉시 제거된다 .
// 클레임 보유자는 커밋 전에 파티 상태를 재검증한다.
func (r *Registry) Dequeue(partyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, partyID)
}

// Contains 해당 파티가 등록되어 있는지
func (r *Registry) Contains(partyID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[partyID]
	return ok
}

// Len 등록된 엔트리 수
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Entries 스냅샷 (sweep 루프의 고아 엔트리 정리용)
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, s := range r.entries {
		out = append(out, s.entry)
	}
	return out
}

// CurrentRangeWidth 대기 시간 기반 허용 레이팅 폭
func (r *Registry) CurrentRangeWidth(partyID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.entries[partyID]
	if !ok {
		return 0
	}
	return r.widthLocked(s.entry)
}

func (r *Registry) widthLocked(e Entry) int {
	waited := r.clock.Now().Sub(e.EnqueuedAt)
	width := BaseRangeWidth + RangeWidthStep*int(waited/WidenEvery)
	if width > MaxRangeWidth {
		width = MaxRangeWidth
	}
	return width
}

// Claim 스캔이 선택한 엔트리들에 대한 단기 독점 점유.
// 결과가 커밋될 때까지 다른 스캔은 같은 엔트리를 선택할 수 없다.
type Claim struct {
	registry *Registry
	Entries  []Entry
	done     bool
}

// Commit 클레임한 엔트리를 레지스트리에서 제거
func (c *Claim) Commit() {
	c.registry.mu.Lock()
	defer c.registry.mu.Unlock()
	if c.done {
		return
	}
	c.done = true
	for _, e := range c.Entries {
		delete(c.registry.entries, e.PartyID)
	}
}

// Release 클레임 해제. 엔트리는 다시 스캔 대상이 된다.
func (c *Claim) Release() {
	c.registry.mu.Lock()
	defer c.registry.mu.Unlock()
	if c.done {
		return
	}
	c.done = true
	for _, e := range c.Entries {
		if s, ok := c.registry.entries[e.PartyID]; ok {
			s.claimed = false
		}
	}
}

// FindOpponentMatch 요청 파티의 현재 허용 폭 안에서 상대를 찾는다.
// 동률이면 가장 오래 기다린 쪽을 고른다. 찾으면 두 엔트리를 클레임해
// 반환하고, 없으면 (nil, nil). 요청 엔트리가 다른 스캔에 잡혀 있으면
// ErrContention.
func (r *Registry) FindOpponentMatch(partyID string) (*Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	self, ok := r.entries[partyID]
	if !ok {
		return nil, nil
	}
	if self.claimed {
		return nil, ErrContention
	}

	width := r.widthLocked(self.entry)
	var best *slot
	for id, s := range r.entries {
		if id == partyID || s.claimed {
			continue
		}
		if s.entry.MatchType != self.entry.MatchType {
			continue
		}
		if abs(s.entry.SkillRating-self.entry.SkillRating) > width {
			continue
		}
		if best == nil || s.entry.EnqueuedAt.Before(best.entry.EnqueuedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}

	self.claimed = true
	best.claimed = true
	return &Claim{
		registry: r,
		Entries:  []Entry{self.entry, best.entry},
	}, nil
}

// FindAssemblyCandidates 팀원 레지스트리에서 합산 인원이 정확히
// targetSize가 되는 조합을 찾는다. 가장 오래 기다린 엔트리를 우선
// 시드로 삼고(FIFO), 가능한 완성 조합 중 레이팅 편차가 가장 작은
// 것을 고른다. 찾으면 조합 전체를 클레임해 반환한다.
func (r *Registry) FindAssemblyCandidates(targetSize int) *Claim {
	r.mu.Lock()
	defer r.mu.Unlock()

	free := make([]*slot, 0, len(r.entries))
	for _, s := range r.entries {
		if !s.claimed {
			free = append(free, s)
		}
	}
	sort.Slice(free, func(i, j int) bool {
		return free[i].entry.EnqueuedAt.Before(free[j].entry.EnqueuedAt)
	})

	for seedIdx, seed := range free {
		rest := free[seedIdx+1:]
		combo := bestCompletion(seed, rest, targetSize-seed.entry.Size)
		if combo == nil {
			continue
		}
		chosen := append([]*slot{seed}, combo...)
		entries := make([]Entry, 0, len(chosen))
		for _, s := range chosen {
			s.claimed = true
			entries = append(entries, s.entry)
		}
		return &Claim{registry: r, Entries: entries}
	}
	return nil
}

// bestCompletion rest에서 인원 합이 정확히 need가 되는 조합 중
// 시드를 포함한 레이팅 편차(max-min)가 최소인 것을 찾는다.
// 엔트리 수가 작아(파티당 1~4명) 단순 탐색으로 충분하다.
func bestCompletion(seed *slot, rest []*slot, need int) []*slot {
	if need == 0 {
		return []*slot{}
	}
	if need < 0 {
		return nil
	}

	var best []*slot
	bestSpread := -1

	var dfs func(start int, remaining int, picked []*slot)
	dfs = func(start, remaining int, picked []*slot) {
		if remaining == 0 {
			lo, hi := seed.entry.SkillRating, seed.entry.SkillRating
			for _, s := range picked {
				if s.entry.SkillRating < lo {
					lo = s.entry.SkillRating
				}
				if s.entry.SkillRating > hi {
					hi = s.entry.SkillRating
				}
			}
			if spread := hi - lo; bestSpread < 0 || spread < bestSpread {
				bestSpread = spread
				best = append([]*slot(nil), picked...)
			}
			return
		}
		for i := start; i < len(rest); i++ {
			if rest[i].entry.Size > remaining {
				continue
			}
			dfs(i+1, remaining-rest[i].entry.Size, append(picked, rest[i]))
		}
	}
	dfs(0, need, nil)

	return best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
