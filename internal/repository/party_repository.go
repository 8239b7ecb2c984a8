package repository

import (
	"database/sql"
	"fmt"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/Gamechiefx/flashmath-backend/pkg/database"
)

// PartyRepository Postgres 기반 파티 저장소 (store.PartyStore 구현).
// 파티 본문과 구성원을 한 트랜잭션으로 기록해 부분 전이가 남지 않게 한다.
type PartyRepository struct {
	db *database.DB
}

func NewPartyRepository(db *database.DB) *PartyRepository {
	return &PartyRepository{db: db}
}

// Create 파티 생성
func (r *PartyRepository) Create(party *models.Party) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO parties (id, leader_id, igl_id, anchor_id, queue_phase, match_type, team_id, queue_started_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), $8)
	`
	if _, err := tx.Exec(query,
		party.ID, party.LeaderID, party.IGLID, party.AnchorID,
		string(party.QueuePhase), string(party.MatchType), party.TeamID, party.QueueStartedAt,
	); err != nil {
		return fmt.Errorf("failed to insert party: %w", err)
	}

	if err := r.writeMembers(tx, party); err != nil {
		return err
	}
	return tx.Commit()
}

// Get ID로 파티 조회. 없으면 (nil, nil).
func (r *PartyRepository) Get(id string) (*models.Party, error) {
	query := `
		SELECT id, leader_id, COALESCE(igl_id, ''), COALESCE(anchor_id, ''),
		       queue_phase, COALESCE(match_type, ''), COALESCE(team_id, ''),
		       queue_started_at, created_at, updated_at
		FROM parties
		WHERE id = $1
	`
	party := &models.Party{}
	err := r.db.QueryRow(query, id).Scan(
		&party.ID, &party.LeaderID, &party.IGLID, &party.AnchorID,
		(*string)(&party.QueuePhase), (*string)(&party.MatchType), &party.TeamID,
		&party.QueueStartedAt, &party.CreatedAt, &party.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get party: %w", err)
	}

	if err := r.loadMembers(party); err != nil {
		return nil, err
	}
	return party, nil
}

// GetByMember 구성원이 속한 파티 조회. 없으면 (nil, nil).
func (r *PartyRepository) GetByMember(userID string) (*models.Party, error) {
	query := `SELECT party_id FROM party_members WHERE user_id = $1 LIMIT 1`

	var partyID string
	err := r.db.QueryRow(query, userID).Scan(&partyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up member party: %w", err)
	}
	return r.Get(partyID)
}

// Update 파티 전체 갱신 (본문 + 구성원 재기록)
func (r *PartyRepository) Update(party *models.Party) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE parties
		SET leader_id = $2,
		    igl_id = NULLIF($3, ''),
		    anchor_id = NULLIF($4, ''),
		    queue_phase = $5,
		    match_type = NULLIF($6, ''),
		    team_id = NULLIF($7, ''),
		    queue_started_at = $8,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := tx.Exec(query,
		party.ID, party.LeaderID, party.IGLID, party.AnchorID,
		string(party.QueuePhase), string(party.MatchType), party.TeamID, party.QueueStartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update party: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.Exec(`DELETE FROM party_members WHERE party_id = $1`, party.ID); err != nil {
		return fmt.Errorf("failed to clear members: %w", err)
	}
	if err := r.writeMembers(tx, party); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete 파티 삭제 (구성원은 FK cascade)
func (r *PartyRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM parties WHERE id = $1`, id)
	return err
}

func (r *PartyRepository) writeMembers(tx *sql.Tx, party *models.Party) error {
	query := `
		INSERT INTO party_members (party_id, user_id, display_name, skill_rating, is_ready, is_leader, is_ai, online, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for i, m := range party.Members {
		if _, err := tx.Exec(query,
			party.ID, m.UserID, m.DisplayName, m.SkillRating, m.IsReady, m.IsLeader, m.IsAI, m.Online, i,
		); err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}
	}
	return nil
}

func (r *PartyRepository) loadMembers(party *models.Party) error {
	query := `
		SELECT user_id, display_name, skill_rating, is_ready, is_leader, is_ai, online
		FROM party_members
		WHERE party_id = $1
		ORDER BY position ASC
	`
	rows, err := r.db.Query(query, party.ID)
	if err != nil {
		return fmt.Errorf("failed to load members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.UserID, &m.DisplayName, &m.SkillRating, &m.IsReady, &m.IsLeader, &m.IsAI, &m.Online); err != nil {
			return fmt.Errorf("failed to scan member: %w", err)
		}
		party.Members = append(party.Members, m)
	}
	return rows.Err()
}
