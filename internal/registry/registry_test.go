package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/jonboulle/clockwork"
)

func entry(partyID string, size, rating int) Entry {
	return Entry{
		PartyID:     partyID,
		MatchType:   models.MatchTypeRanked,
		Size:        size,
		SkillRating: rating,
	}
}

func TestRegistry_DuplicateEnqueue(t *testing.T) {
	r := New(clockwork.NewFakeClock())

	if err := r.Enqueue(entry("p1", 2, 1000)); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if err := r.Enqueue(entry("p1", 2, 1000)); !errors.Is(err, ErrDuplicateEntry) {
		t.Errorf("second enqueue = %v, want ErrDuplicateEntry", err)
	}

	// Dequeue 후에는 다시 등록 가능
	r.Dequeue("p1")
	if err := r.Enqueue(entry("p1", 2, 1000)); err != nil {
		t.Errorf("enqueue after dequeue failed: %v", err)
	}
}

func TestRegistry_RangeWidening(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(clock)

	if err := r.Enqueue(entry("p1", 2, 1000)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		advance time.Duration
		want    int
	}{
		{0, 100},
		{10 * time.Second, 200},   // 첫 확장
		{10 * time.Second, 300},   // 둘째 확장
		{100 * time.Second, 500},  // 상한
	}

	for _, tt := range tests {
		clock.Advance(tt.advance)
		if got := r.CurrentRangeWidth("p1"); got != tt.want {
			t.Errorf("after advancing, width = %d, want %d", got, tt.want)
		}
	}

	// 미등록 파티의 폭은 0
	if got := r.CurrentRangeWidth("missing"); got != 0 {
		t.Errorf("width for missing party = %d, want 0", got)
	}
}

func TestFindOpponentMatch_OldestWithinWidth(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(clock)

	// self 1000, 폭 100: 1090은 후보, 1250은 아님
	if err := r.Enqueue(entry("self", 5, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := r.Enqueue(entry("near", 5, 1090)); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if err := r.Enqueue(entry("nearer", 5, 1010)); err != nil {
		t.Fatal(err)
	}
	if err := r.Enqueue(entry("far", 5, 1250)); err != nil {
		t.Fatal(err)
	}

	claim, err := r.FindOpponentMatch("self")
	if err != nil {
		t.Fatalf("FindOpponentMatch failed: %v", err)
	}
	if claim == nil {
		t.Fatal("expected a match within base width")
	}
	// 레이팅이 더 가까운 쪽이 아니라 더 오래 기다린 쪽이 뽑힌다
	if got := claim.Entries[1].PartyID; got != "near" {
		t.Errorf("matched %q, want oldest-waiting %q", got, "near")
	}
	claim.Release()
}

func TestFindOpponentMatch_WidthExpandsOverTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(clock)

	if err := r.Enqueue(entry("self", 5, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := r.Enqueue(entry("far", 5, 1250)); err != nil {
		t.Fatal(err)
	}

	claim, err := r.FindOpponentMatch("self")
	if err != nil || claim != nil {
		t.Fatalf("expected no match at base width, got claim=%v err=%v", claim, err)
	}

	// 20초 대기 후 폭 300. 250 차이는 이제 허용된다
	clock.Advance(20 * time.Second)
	claim, err = r.FindOpponentMatch("self")
	if err != nil {
		t.Fatal(err)
	}
	if claim == nil {
		t.Fatal("expected a match after range widened")
	}
	claim.Commit()

	if r.Len() != 0 {
		t.Errorf("registry should be empty after commit, has %d entries", r.Len())
	}
}

func TestFindOpponentMatch_MatchTypeSeparation(t *testing.T) {
	r := New(clockwork.NewFakeClock())

	if err := r.Enqueue(entry("self", 5, 1000)); err != nil {
		t.Fatal(err)
	}
	casual := entry("other", 5, 1000)
	casual.MatchType = models.MatchTypeCasual
	if err := r.Enqueue(casual); err != nil {
		t.Fatal(err)
	}

	claim, err := r.FindOpponentMatch("self")
	if err != nil {
		t.Fatal(err)
	}
	if claim != nil {
		t.Error("ranked party must not match a casual party")
	}
}

func TestFindOpponentMatch_Contention(t *testing.T) {
	r := New(clockwork.NewFakeClock())

	if err := r.Enqueue(entry("a", 5, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := r.Enqueue(entry("b", 5, 1020)); err != nil {
		t.Fatal(err)
	}

	claim, err := r.FindOpponentMatch("a")
	if err != nil || claim == nil {
		t.Fatalf("first scan should claim the pair, got claim=%v err=%v", claim, err)
	}

	// 클레임된 엔트리를 요청하는 스캔은 물러나야 한다
	if _, err := r.FindOpponentMatch("b"); !errors.Is(err, ErrContention) {
		t.Errorf("second scan = %v, want ErrContention", err)
	}

	// Release 후에는 다시 매칭 가능
	claim.Release()
	claim2, err := r.FindOpponentMatch("b")
	if err != nil {
		t.Fatal(err)
	}
	if claim2 == nil {
		t.Fatal("expected a match after release")
	}
}

func TestFindOpponentMatch_ConcurrentScansProduceOnePair(t *testing.T) {
	r := New(clockwork.NewFakeClock())

	if err := r.Enqueue(entry("a", 5, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := r.Enqueue(entry("b", 5, 1050)); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var claims []*Claim
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(partyID string) {
			defer wg.Done()
			claim, err := r.FindOpponentMatch(partyID)
			if err != nil || claim == nil {
				return
			}
			mu.Lock()
			claims = append(claims, claim)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	// 두 엔트리뿐이므로 정확히 한 스캔만 쌍을 얻는다
	if len(claims) != 1 {
		t.Fatalf("got %d claims, want exactly 1", len(claims))
	}
}

func TestFindAssemblyCandidates_ExactSumMinimalSpread(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(clock)

	// 시드(가장 오래 대기)는 3인 파티. 완성 후보는 2인 파티 둘 .
	// 편차가 작은 쪽이 뽑혀야 한다.
	if err := r.Enqueue(entry("trio", 3, 1000)); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if err := r.Enqueue(entry("duo-far", 2, 1500)); err != nil {
		t.Fatal(err)
	}
	if err := r.Enqueue(entry("duo-near", 2, 1050)); err != nil {
		t.Fatal(err)
	}

	claim := r.FindAssemblyCandidates(5)
	if claim == nil {
		t.Fatal("expected an assembly combination")
	}

	got := map[string]bool{}
	total := 0
	for _, e := range claim.Entries {
		got[e.PartyID] = true
		total += e.Size
	}
	if total != 5 {
		t.Errorf("combined size = %d, want 5", total)
	}
	if !got["trio"] || !got["duo-near"] {
		t.Errorf("combination = %v, want trio+duo-near", got)
	}
	claim.Commit()

	// 남은 duo-far 혼자로는 조합 불가
	if claim := r.FindAssemblyCandidates(5); claim != nil {
		t.Error("leftover party must not form a team alone")
	}
}

func TestFindAssemblyCandidates_MultiPartyCompletion(t *testing.T) {
	r := New(clockwork.NewFakeClock())

	// 2+1+1+1 = 5
	for _, e := range []Entry{
		entry("duo", 2, 1000),
		entry("s1", 1, 980),
		entry("s2", 1, 1020),
		entry("s3", 1, 1040),
	} {
		if err := r.Enqueue(e); err != nil {
			t.Fatal(err)
		}
	}

	claim := r.FindAssemblyCandidates(5)
	if claim == nil {
		t.Fatal("expected 2+1+1+1 combination")
	}
	if len(claim.Entries) != 4 {
		t.Errorf("got %d parties, want 4", len(claim.Entries))
	}
}
