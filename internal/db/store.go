package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wyhuang/scholarship-engine/internal/engine"
	"github.com/wyhuang/scholarship-engine/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const applicationCols = `id, student_id, advisor_id, scholarship_code, sub_code, status,
	field_values, documents, warnings, status_times, version, created_at, updated_at`

func scanApplication(scan func(dest ...interface{}) error) (*models.Application, error) {
	var a models.Application
	var status string
	var fieldValuesRaw, documentsRaw, warningsRaw, statusTimesRaw []byte

	err := scan(
		&a.ID, &a.StudentID, &a.AdvisorID, &a.ScholarshipCode, &a.SubCode, &status,
		&fieldValuesRaw, &documentsRaw, &warningsRaw, &statusTimesRaw,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = models.Status(status)
	if err := json.Unmarshal(fieldValuesRaw, &a.FieldValues); err != nil {
		return nil, fmt.Errorf("decode field_values: %w", err)
	}
	if err := json.Unmarshal(documentsRaw, &a.Documents); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	if len(warningsRaw) > 0 {
		_ = json.Unmarshal(warningsRaw, &a.Warnings)
	}
	if err := json.Unmarshal(statusTimesRaw, &a.StatusTimes); err != nil {
		return nil, fmt.Errorf("decode status_times: %w", err)
	}
	if a.FieldValues == nil {
		a.FieldValues = map[string]string{}
	}
	if a.StatusTimes == nil {
		a.StatusTimes = map[models.Status]time.Time{}
	}
	return &a, nil
}

func (s *Store) CreateApplication(ctx context.Context, app *models.Application) error {
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	app.Status = models.StatusDraft
	app.Version = 1

	fieldValues, documents, warnings, statusTimes, err := encodeApplication(app)
	if err != nil {
		return err
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO applications (id, student_id, advisor_id, scholarship_code, sub_code, status, field_values, documents, warnings, status_times, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, app.ID, app.StudentID, app.AdvisorID, app.ScholarshipCode, app.SubCode, string(app.Status),
		fieldValues, documents, warnings, statusTimes, app.Version,
	).Scan(&app.CreatedAt, &app.UpdatedAt)
}

// GetApplication loads the aggregate: the row plus its full decision list.
func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM applications WHERE id = $1", applicationCols), id)
	app, err := scanApplication(row.Scan)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, application_id, stage, actor_id, actor_role, verdict, comment, decided_at
		FROM review_decisions
		WHERE application_id = $1
		ORDER BY decided_at, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d models.ReviewDecision
		var stage, role, verdict string
		if err := rows.Scan(&d.ID, &d.ApplicationID, &stage, &d.ActorID, &role, &verdict, &d.Comment, &d.DecidedAt); err != nil {
			return nil, err
		}
		d.Stage = models.Stage(stage)
		d.ActorRole = models.Role(role)
		d.Verdict = models.Verdict(verdict)
		app.Decisions = append(app.Decisions, d)
	}
	return app, rows.Err()
}

// SaveApplication persists a transition atomically: the status write is
// guarded by the version the transition was computed against, and the new
// decisions insert in the same transaction. A stale version means another
// transition won the race; the caller gets ConcurrentModificationError and
// nothing is persisted.
func (s *Store) SaveApplication(ctx context.Context, app *models.Application, expectedVersion int, newDecisions []models.ReviewDecision) error {
	fieldValues, documents, warnings, statusTimes, err := encodeApplication(app)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE applications
		SET status = $2, field_values = $3, documents = $4, warnings = $5,
		    status_times = $6, version = version + 1, updated_at = $7
		WHERE id = $1 AND version = $8
	`, app.ID, string(app.Status), fieldValues, documents, warnings, statusTimes,
		app.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &engine.ConcurrentModificationError{ApplicationID: app.ID.String(), Expected: expectedVersion}
	}

	for _, d := range newDecisions {
		_, err := tx.Exec(ctx, `
			INSERT INTO review_decisions (id, application_id, stage, actor_id, actor_role, verdict, comment, decided_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, d.ID, d.ApplicationID, string(d.Stage), d.ActorID, string(d.ActorRole), string(d.Verdict), d.Comment, d.DecidedAt)
		if err != nil {
			return fmt.Errorf("append decision: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	app.Version = expectedVersion + 1
	return nil
}

// UpdateDraft replaces the applicant-owned field values and document
// references. Only legal while the application is with the applicant.
func (s *Store) UpdateDraft(ctx context.Context, app *models.Application) error {
	if app.Status != models.StatusDraft && app.Status != models.StatusReturned {
		return &engine.IllegalTransitionError{
			Intent: "", State: app.Status,
			Reason: "field values may only change while draft or returned",
		}
	}
	fieldValues, documents, _, _, err := encodeApplication(app)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE applications
		SET field_values = $2, documents = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $4
	`, app.ID, fieldValues, documents, app.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &engine.ConcurrentModificationError{ApplicationID: app.ID.String(), Expected: app.Version}
	}
	app.Version++
	return nil
}

type ListParams struct {
	StudentID       string
	ScholarshipCode string
	Status          string
	Limit           int
	Offset          int
}

type ListResult struct {
	Applications []models.Application `json:"applications"`
	Total        int                  `json:"total"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

func (s *Store) ListApplications(ctx context.Context, params ListParams) (*ListResult, error) {
	where, args := buildApplicationWhere(params)
	argIdx := len(args) + 1

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM applications "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 20
	}
	sql := fmt.Sprintf("SELECT %s FROM applications %s ORDER BY updated_at DESC, created_at DESC LIMIT $%d OFFSET $%d",
		applicationCols, where, argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	apps := []models.Application{}
	for rows.Next() {
		a, err := scanApplication(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		apps = append(apps, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return &ListResult{Applications: apps, Total: total, Limit: params.Limit, Offset: params.Offset}, nil
}

func buildApplicationWhere(params ListParams) (string, []interface{}) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if params.StudentID != "" {
		where += fmt.Sprintf(" AND student_id = $%d", argIdx)
		args = append(args, params.StudentID)
		argIdx++
	}
	if params.ScholarshipCode != "" {
		where += fmt.Sprintf(" AND scholarship_code = $%d", argIdx)
		args = append(args, params.ScholarshipCode)
		argIdx++
	}
	if params.Status != "" && params.Status != "all" {
		if params.Status == "in_review" {
			where += " AND status IN ('submitted','under_review','pending_recommendation','recommended','college_review')"
		} else {
			where += fmt.Sprintf(" AND status = $%d", argIdx)
			args = append(args, params.Status)
			argIdx++
		}
	}

	return where, args
}

func (s *Store) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM applications").Scan(&total)
	stats["total"] = total

	statusCounts := map[string]int{}
	rows, err := s.pool.Query(ctx, "SELECT status, COUNT(*) FROM applications GROUP BY status")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var status string
			var count int
			if scanErr := rows.Scan(&status, &count); scanErr == nil {
				statusCounts[status] = count
			}
		}
	}
	stats["status_counts"] = statusCounts

	typeCounts := map[string]int{}
	typeRows, err := s.pool.Query(ctx, "SELECT scholarship_code, COUNT(*) FROM applications GROUP BY scholarship_code")
	if err == nil {
		defer typeRows.Close()
		for typeRows.Next() {
			var code string
			var count int
			if scanErr := typeRows.Scan(&code, &count); scanErr == nil {
				typeCounts[code] = count
			}
		}
	}
	stats["scholarship_counts"] = typeCounts

	return stats, nil
}

func encodeApplication(app *models.Application) (fieldValues, documents, warnings, statusTimes []byte, err error) {
	if fieldValues, err = json.Marshal(app.FieldValues); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode field_values: %w", err)
	}
	if app.Documents == nil {
		app.Documents = []models.DocumentRef{}
	}
	if documents, err = json.Marshal(app.Documents); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode documents: %w", err)
	}
	if app.Warnings == nil {
		app.Warnings = []models.RuleResult{}
	}
	if warnings, err = json.Marshal(app.Warnings); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode warnings: %w", err)
	}
	if statusTimes, err = json.Marshal(app.StatusTimes); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode status_times: %w", err)
	}
	return fieldValues, documents, warnings, statusTimes, nil
}
