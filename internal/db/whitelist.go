package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wyhuang/scholarship-engine/internal/engine"
	"github.com/wyhuang/scholarship-engine/internal/models"
)

// GrantWhitelist appends an exemption entry. The log is append-only: a later
// revoke writes a tombstone on the same row, so the full grant/revoke
// history stays reconstructable.
func (s *Store) GrantWhitelist(ctx context.Context, code, studentID string, ruleIDs []uuid.UUID, justification, grantedBy string) (*models.WhitelistEntry, error) {
	if err := engine.ValidateGrant(studentID, ruleIDs, justification); err != nil {
		return nil, err
	}

	entry := models.WhitelistEntry{
		ID:              uuid.New(),
		ScholarshipCode: code,
		StudentID:       studentID,
		ExemptedRuleIDs: ruleIDs,
		Justification:   justification,
		GrantedBy:       grantedBy,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO whitelist_entries (id, scholarship_code, student_id, exempted_rule_ids, justification, granted_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING granted_at
	`, entry.ID, code, studentID, ruleIDs, justification, grantedBy).Scan(&entry.GrantedAt)
	if err != nil {
		return nil, fmt.Errorf("grant whitelist entry: %w", err)
	}
	return &entry, nil
}

// RevokeWhitelist tombstones an entry. Revoking twice is a no-op failure so
// the first revocation's audit trail is never overwritten.
func (s *Store) RevokeWhitelist(ctx context.Context, entryID uuid.UUID, revokedBy string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE whitelist_entries
		SET revoked_by = $2, revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`, entryID, revokedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWhitelist returns every entry (active and revoked) for the student
// within the scholarship type; callers filter by ActiveAt for evaluation
// and keep the rest for audit.
func (s *Store) ListWhitelist(ctx context.Context, code, studentID string) ([]models.WhitelistEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, scholarship_code, student_id, exempted_rule_ids, justification, granted_by, granted_at, revoked_by, revoked_at
		FROM whitelist_entries
		WHERE scholarship_code = $1 AND student_id = $2
		ORDER BY granted_at
	`, code, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWhitelistRows(rows)
}

// ListWhitelistForScholarship returns all entries of a type for the
// administrative view.
func (s *Store) ListWhitelistForScholarship(ctx context.Context, code string) ([]models.WhitelistEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, scholarship_code, student_id, exempted_rule_ids, justification, granted_by, granted_at, revoked_by, revoked_at
		FROM whitelist_entries
		WHERE scholarship_code = $1
		ORDER BY granted_at
	`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWhitelistRows(rows)
}

type whitelistRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanWhitelistRows(rows whitelistRows) ([]models.WhitelistEntry, error) {
	var entries []models.WhitelistEntry
	for rows.Next() {
		var e models.WhitelistEntry
		var revokedAt *time.Time
		if err := rows.Scan(&e.ID, &e.ScholarshipCode, &e.StudentID, &e.ExemptedRuleIDs,
			&e.Justification, &e.GrantedBy, &e.GrantedAt, &e.RevokedBy, &revokedAt); err != nil {
			return nil, err
		}
		e.RevokedAt = revokedAt
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
