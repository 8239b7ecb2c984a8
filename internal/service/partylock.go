package service

import (
	"sort"
	"sync"
)

// partyLocks 파티 단위 상호 배제. 같은 파티에 대한 변경 연산은
// 반드시 해당 파티의 락 안에서 수행되고, 서로 다른 파티는 독립적으로
// 진행된다. 두 파티를 함께 잠글 때는 ID 순서로 잠가 교착을 피한다.
type partyLocks struct {
	mu    sync.Mutex
	locks map[string]*partyLock
}

type partyLock struct {
	mu   sync.Mutex
	refs int
}

func newPartyLocks() *partyLocks {
	return &partyLocks{locks: make(map[string]*partyLock)}
}

// Lock 파티 락 획득
func (l *partyLocks) Lock(partyID string) {
	l.mu.Lock()
	pl, ok := l.locks[partyID]
	if !ok {
		pl = &partyLock{}
		l.locks[partyID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
}

// Unlock 파티 락 해제. 대기자가 없으면 엔트리를 정리한다.
func (l *partyLocks) Unlock(partyID string) {
	l.mu.Lock()
	pl := l.locks[partyID]
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, partyID)
	}
	l.mu.Unlock()

	pl.mu.Unlock()
}

// LockMany 여러 파티를 ID 순서로 잠근다 (중복 제거)
func (l *partyLocks) LockMany(ids []string) []string {
	sorted := uniqueSorted(ids)
	for _, id := range sorted {
		l.Lock(id)
	}
	return sorted
}

// UnlockMany LockMany가 반환한 목록의 역순 해제
func (l *partyLocks) UnlockMany(sorted []string) {
	for i := len(sorted) - 1; i >= 0; i-- {
		l.Unlock(sorted[i])
	}
}

func uniqueSorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	n := 0
	for i, id := range out {
		if i == 0 || id != out[i-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}

// LockPair 두 파티를 ID 순서로 잠근다
func (l *partyLocks) LockPair(a, b string) {
	if b < a {
		a, b = b, a
	}
	l.Lock(a)
	if a != b {
		l.Lock(b)
	}
}

// UnlockPair LockPair의 역순 해제
func (l *partyLocks) UnlockPair(a, b string) {
	if b < a {
		a, b = b, a
	}
	if a != b {
		l.Unlock(b)
	}
	l.Unlock(a)
}
