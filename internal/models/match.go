package models

import "time"

// Difficulty AI 상대 난이도
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
)

// Valid 지원하는 난이도인지 확인
func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyNormal || d == DifficultyHard
}

// Rating 난이도별 AI 레이팅
func (d Difficulty) Rating() int {
	switch d {
	case DifficultyEasy:
		return 800
	case DifficultyHard:
		return 1200
	default:
		return 1000
	}
}

// MatchTeam 매치에 참가하는 한 쪽 팀
type MatchTeam struct {
	TeamName string   `json:"teamName"`
	PartyID  string   `json:"partyId,omitempty"`
	Members  []Member `json:"members"`
}

// Match 매치메이킹의 최종 산출물. 이후 진행은 게임 엔진 소관이다.
// 같은 파티 쌍에 대해 정확히 한 번만 생성된다.
type Match struct {
	ID        string    `json:"id"`
	Type      MatchType `json:"type"`
	Team1     MatchTeam `json:"team1"`
	Team2     MatchTeam `json:"team2"`
	IsAIMatch bool      `json:"isAiMatch,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
