package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket 토큰 버킷 알고리즘.
// 폴링 엔드포인트(getPartyData, checkForTeammates, checkTeamMatch)의
// 과도한 호출을 제한하는 데 쓴다.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64 // 초당 충전 토큰 수
	lastRefill time.Time
}

// NewTokenBucket 토큰 버킷 생성
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow 요청 1건 허용 여부 확인 및 토큰 소비
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN 요청 n건 허용 여부 확인 및 토큰 소비
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}
	return false
}

// refill 경과 시간만큼 토큰 충전
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	tokensToAdd := int64(elapsed.Seconds()) * tb.refillRate
	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}
}

// RateLimiter 키(userId)별 토큰 버킷 모음
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*TokenBucket
	capacity   int64
	refillRate int64
}

// NewRateLimiter 키별 리미터 생성
func NewRateLimiter(capacity, refillRate int64) *RateLimiter {
	return &RateLimiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   capacity,
		refillRate: refillRate,
	}
}

// Allow 해당 키의 요청 허용 여부
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	bucket, exists := rl.buckets[key]
	if !exists {
		bucket = NewTokenBucket(rl.capacity, rl.refillRate)
		rl.buckets[key] = bucket
	}
	rl.mu.Unlock()

	return bucket.Allow()
}

// Cleanup 오래 쓰지 않은 버킷 제거 (간단한 전체 초기화)
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.buckets = make(map[string]*TokenBucket)
}
