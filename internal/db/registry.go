package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wyhuang/scholarship-engine/internal/engine"
	"github.com/wyhuang/scholarship-engine/internal/models"
)

var ErrNotFound = errors.New("not found")

// SyncCatalog upserts the embedded catalog into the registry tables.
// Scholarship types only refresh their window dates on conflict; schema
// entries and rules insert-if-absent. Nothing is ever deleted here, so a
// catalog edit cannot retroactively invalidate submitted data.
func (s *Store) SyncCatalog(ctx context.Context, types []models.ScholarshipType, fields []models.ApplicationField, docs []models.ApplicationDocument, rules []models.EligibilityRule) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin catalog sync: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range types {
		_, err := tx.Exec(ctx, `
			INSERT INTO scholarship_types (code, name_en, name_zh, amount, currency, window_open, window_close, combined, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
			ON CONFLICT (code) DO UPDATE SET
				window_open = EXCLUDED.window_open,
				window_close = EXCLUDED.window_close
		`, t.Code, t.NameEn, t.NameZh, t.Amount, t.Currency, t.WindowOpen, t.WindowClose, t.Combined)
		if err != nil {
			return fmt.Errorf("sync scholarship %s: %w", t.Code, err)
		}

		for _, sub := range t.SubScholarships {
			_, err := tx.Exec(ctx, `
				INSERT INTO sub_scholarships (code, scholarship_code, name_en, name_zh, amount, active)
				VALUES ($1, $2, $3, $4, $5, TRUE)
				ON CONFLICT (scholarship_code, code) DO NOTHING
			`, sub.Code, sub.ScholarshipCode, sub.NameEn, sub.NameZh, sub.Amount)
			if err != nil {
				return fmt.Errorf("sync sub-scholarship %s/%s: %w", t.Code, sub.Code, err)
			}
		}

		for _, st := range t.Stages {
			roles := make([]string, 0, len(st.RequiredRoles))
			for _, r := range st.RequiredRoles {
				roles = append(roles, string(r))
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO review_stages (scholarship_code, stage, stage_order, required_roles)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (scholarship_code, stage) DO UPDATE SET
					stage_order = EXCLUDED.stage_order,
					required_roles = EXCLUDED.required_roles
			`, t.Code, string(st.Stage), st.Order, roles)
			if err != nil {
				return fmt.Errorf("sync stage %s/%s: %w", t.Code, st.Stage, err)
			}
		}
	}

	for _, f := range fields {
		_, err := tx.Exec(ctx, `
			INSERT INTO application_fields (id, scholarship_code, sub_code, name, label, field_type, required, min_value, max_value, max_length, options, display_order, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE)
			ON CONFLICT (id) DO NOTHING
		`, f.ID, f.ScholarshipCode, f.SubCode, f.Name, f.Label, string(f.Type), f.Required, f.Min, f.Max, f.MaxLength, f.Options, f.DisplayOrder)
		if err != nil {
			return fmt.Errorf("sync field %s/%s: %w", f.ScholarshipCode, f.Name, err)
		}
	}
	for _, d := range docs {
		_, err := tx.Exec(ctx, `
			INSERT INTO application_documents (id, scholarship_code, sub_code, name, label, required, display_order, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
			ON CONFLICT (id) DO NOTHING
		`, d.ID, d.ScholarshipCode, d.SubCode, d.Name, d.Label, d.Required, d.DisplayOrder)
		if err != nil {
			return fmt.Errorf("sync document %s/%s: %w", d.ScholarshipCode, d.Name, err)
		}
	}
	for _, r := range rules {
		_, err := tx.Exec(ctx, `
			INSERT INTO eligibility_rules (id, scholarship_code, sub_code, field, operator, expected_number, expected_text, expected_list, severity, priority, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.ScholarshipCode, r.SubCode, r.Field, string(r.Operator), r.Expected.Number, r.Expected.Text, r.Expected.List, string(r.Severity), r.Priority)
		if err != nil {
			return fmt.Errorf("sync rule %s/%s: %w", r.ScholarshipCode, r.Field, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) ListScholarshipTypes(ctx context.Context) ([]models.ScholarshipType, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, name_en, name_zh, amount, currency, window_open, window_close, combined, active, created_at
		FROM scholarship_types
		WHERE active = TRUE
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []models.ScholarshipType
	for rows.Next() {
		var t models.ScholarshipType
		if err := rows.Scan(&t.Code, &t.NameEn, &t.NameZh, &t.Amount, &t.Currency,
			&t.WindowOpen, &t.WindowClose, &t.Combined, &t.Active, &t.CreatedAt); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// GetScholarshipType loads one type with its sub-scholarships and review
// stage plan.
func (s *Store) GetScholarshipType(ctx context.Context, code string) (*models.ScholarshipType, error) {
	var t models.ScholarshipType
	err := s.pool.QueryRow(ctx, `
		SELECT code, name_en, name_zh, amount, currency, window_open, window_close, combined, active, created_at
		FROM scholarship_types WHERE code = $1
	`, code).Scan(&t.Code, &t.NameEn, &t.NameZh, &t.Amount, &t.Currency,
		&t.WindowOpen, &t.WindowClose, &t.Combined, &t.Active, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	subRows, err := s.pool.Query(ctx, `
		SELECT code, scholarship_code, name_en, name_zh, amount, active
		FROM sub_scholarships WHERE scholarship_code = $1 ORDER BY code
	`, code)
	if err != nil {
		return nil, err
	}
	defer subRows.Close()
	for subRows.Next() {
		var sub models.SubScholarship
		if err := subRows.Scan(&sub.Code, &sub.ScholarshipCode, &sub.NameEn, &sub.NameZh, &sub.Amount, &sub.Active); err != nil {
			return nil, err
		}
		t.SubScholarships = append(t.SubScholarships, sub)
	}
	if err := subRows.Err(); err != nil {
		return nil, err
	}

	stageRows, err := s.pool.Query(ctx, `
		SELECT stage, stage_order, required_roles
		FROM review_stages WHERE scholarship_code = $1 ORDER BY stage_order
	`, code)
	if err != nil {
		return nil, err
	}
	defer stageRows.Close()
	for stageRows.Next() {
		var stage string
		var order int
		var roles []string
		if err := stageRows.Scan(&stage, &order, &roles); err != nil {
			return nil, err
		}
		st := models.ReviewStage{Stage: models.Stage(stage), Order: order}
		for _, r := range roles {
			st.RequiredRoles = append(st.RequiredRoles, models.Role(r))
		}
		t.Stages = append(t.Stages, st)
	}
	return &t, stageRows.Err()
}

// GetSchema resolves the field/document schema for a scholarship and
// optional sub-scholarship. Entries scoped to a different sub are excluded;
// inactive entries only appear when explicitly requested by administrative
// editing views.
func (s *Store) GetSchema(ctx context.Context, code, sub string, includeInactive bool) (engine.Schema, error) {
	var schema engine.Schema

	fieldRows, err := s.pool.Query(ctx, `
		SELECT id, scholarship_code, sub_code, name, label, field_type, required,
		       min_value, max_value, max_length, options, display_order, active
		FROM application_fields
		WHERE scholarship_code = $1 AND (sub_code = '' OR sub_code = $2) AND (active OR $3)
		ORDER BY display_order, name
	`, code, sub, includeInactive)
	if err != nil {
		return schema, err
	}
	defer fieldRows.Close()
	for fieldRows.Next() {
		var f models.ApplicationField
		var ftype string
		if err := fieldRows.Scan(&f.ID, &f.ScholarshipCode, &f.SubCode, &f.Name, &f.Label, &ftype,
			&f.Required, &f.Min, &f.Max, &f.MaxLength, &f.Options, &f.DisplayOrder, &f.Active); err != nil {
			return schema, err
		}
		f.Type = models.FieldType(ftype)
		schema.Fields = append(schema.Fields, f)
	}
	if err := fieldRows.Err(); err != nil {
		return schema, err
	}

	docRows, err := s.pool.Query(ctx, `
		SELECT id, scholarship_code, sub_code, name, label, required, display_order, active
		FROM application_documents
		WHERE scholarship_code = $1 AND (sub_code = '' OR sub_code = $2) AND (active OR $3)
		ORDER BY display_order, name
	`, code, sub, includeInactive)
	if err != nil {
		return schema, err
	}
	defer docRows.Close()
	for docRows.Next() {
		var d models.ApplicationDocument
		if err := docRows.Scan(&d.ID, &d.ScholarshipCode, &d.SubCode, &d.Name, &d.Label,
			&d.Required, &d.DisplayOrder, &d.Active); err != nil {
			return schema, err
		}
		schema.Documents = append(schema.Documents, d)
	}
	return schema, docRows.Err()
}

func (s *Store) GetRules(ctx context.Context, code, sub string) ([]models.EligibilityRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, scholarship_code, sub_code, field, operator, expected_number, expected_text, expected_list, severity, priority, active
		FROM eligibility_rules
		WHERE scholarship_code = $1 AND (sub_code = '' OR sub_code = $2)
		ORDER BY priority, id
	`, code, sub)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.EligibilityRule
	for rows.Next() {
		var r models.EligibilityRule
		var op, severity string
		if err := rows.Scan(&r.ID, &r.ScholarshipCode, &r.SubCode, &r.Field, &op,
			&r.Expected.Number, &r.Expected.Text, &r.Expected.List, &severity, &r.Priority, &r.Active); err != nil {
			return nil, err
		}
		r.Operator = models.Operator(op)
		r.Severity = models.Severity(severity)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// CreateField adds a new schema field. Additions are always legal; the
// uniqueness invariant is enforced against current active entries.
func (s *Store) CreateField(ctx context.Context, f models.ApplicationField) error {
	schema, err := s.GetSchema(ctx, f.ScholarshipCode, f.SubCode, false)
	if err != nil {
		return err
	}
	if err := engine.ValidateNewFieldName(schema.Fields, f.Name); err != nil {
		return err
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO application_fields (id, scholarship_code, sub_code, name, label, field_type, required, min_value, max_value, max_length, options, display_order, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE)
	`, f.ID, f.ScholarshipCode, f.SubCode, f.Name, f.Label, string(f.Type), f.Required, f.Min, f.Max, f.MaxLength, f.Options, f.DisplayOrder)
	return err
}

// UpdateField applies a field change, rejecting structural changes on
// fields that submitted applications already reference.
func (s *Store) UpdateField(ctx context.Context, updated models.ApplicationField) error {
	var current models.ApplicationField
	var ftype string
	err := s.pool.QueryRow(ctx, `
		SELECT id, scholarship_code, sub_code, name, label, field_type, required, min_value, max_value, max_length, options, display_order, active
		FROM application_fields WHERE id = $1
	`, updated.ID).Scan(&current.ID, &current.ScholarshipCode, &current.SubCode, &current.Name, &current.Label,
		&ftype, &current.Required, &current.Min, &current.Max, &current.MaxLength, &current.Options,
		&current.DisplayOrder, &current.Active)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	current.Type = models.FieldType(ftype)

	inUse, err := s.fieldInUse(ctx, current.ScholarshipCode, current.Name)
	if err != nil {
		return err
	}
	if err := engine.ValidateFieldUpdate(current, updated, inUse); err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE application_fields
		SET name = $2, label = $3, field_type = $4, required = $5, min_value = $6,
		    max_value = $7, max_length = $8, options = $9, display_order = $10, active = $11
		WHERE id = $1
	`, updated.ID, updated.Name, updated.Label, string(updated.Type), updated.Required,
		updated.Min, updated.Max, updated.MaxLength, updated.Options, updated.DisplayOrder, updated.Active)
	return err
}

func (s *Store) DeactivateField(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "UPDATE application_fields SET active = FALSE WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CreateDocument(ctx context.Context, d models.ApplicationDocument) error {
	schema, err := s.GetSchema(ctx, d.ScholarshipCode, d.SubCode, false)
	if err != nil {
		return err
	}
	if err := engine.ValidateNewDocumentName(schema.Documents, d.Name); err != nil {
		return err
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO application_documents (id, scholarship_code, sub_code, name, label, required, display_order, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
	`, d.ID, d.ScholarshipCode, d.SubCode, d.Name, d.Label, d.Required, d.DisplayOrder)
	return err
}

func (s *Store) UpdateDocument(ctx context.Context, updated models.ApplicationDocument) error {
	var current models.ApplicationDocument
	err := s.pool.QueryRow(ctx, `
		SELECT id, scholarship_code, sub_code, name, label, required, display_order, active
		FROM application_documents WHERE id = $1
	`, updated.ID).Scan(&current.ID, &current.ScholarshipCode, &current.SubCode, &current.Name,
		&current.Label, &current.Required, &current.DisplayOrder, &current.Active)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	inUse, err := s.documentInUse(ctx, current.ScholarshipCode, current.Name)
	if err != nil {
		return err
	}
	if err := engine.ValidateDocumentUpdate(current, updated, inUse); err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE application_documents
		SET name = $2, label = $3, required = $4, display_order = $5, active = $6
		WHERE id = $1
	`, updated.ID, updated.Name, updated.Label, updated.Required, updated.DisplayOrder, updated.Active)
	return err
}

func (s *Store) DeactivateDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "UPDATE application_documents SET active = FALSE WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRuleActive toggles a rule's activation flag, the only rule mutation
// allowed once applications exist.
func (s *Store) SetRuleActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx, "UPDATE eligibility_rules SET active = $2 WHERE id = $1", id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// fieldInUse reports whether any non-draft application under the type has
// submitted a value for the named field.
func (s *Store) fieldInUse(ctx context.Context, code, name string) (bool, error) {
	var inUse bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM applications
			WHERE scholarship_code = $1 AND status <> 'draft' AND field_values ? $2
		)
	`, code, name).Scan(&inUse)
	return inUse, err
}

func (s *Store) documentInUse(ctx context.Context, code, name string) (bool, error) {
	var inUse bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM applications
			WHERE scholarship_code = $1 AND status <> 'draft'
			  AND documents @> jsonb_build_array(jsonb_build_object('requirement', $2::text))
		)
	`, code, name).Scan(&inUse)
	return inUse, err
}
