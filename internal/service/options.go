package service

import "time"

// Options 매치메이킹 코어 정책
type Options struct {
	// TeamSize 팀 목표 인원
	TeamSize int

	// AllowDualRole 한 명이 IGL과 Anchor를 겸임할 수 있는지
	AllowDualRole bool

	// SelectionTimeout 역할 선택 제한 시간. 초과 시 서버가 강제 배정한다.
	SelectionTimeout time.Duration

	// SweepInterval 백그라운드 매칭/타임아웃 sweep 주기
	SweepInterval time.Duration
}

// DefaultOptions 기본 정책
func DefaultOptions() Options {
	return Options{
		TeamSize:         5,
		AllowDualRole:    true,
		SelectionTimeout: 25 * time.Second,
		SweepInterval:    2 * time.Second,
	}
}
