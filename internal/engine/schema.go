package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wyhuang/scholarship-engine/internal/models"
)

// Schema is the resolved set of active (or, for administrative views, all)
// entries an application under one scholarship/sub-scholarship must satisfy.
type Schema struct {
	Fields    []models.ApplicationField    `json:"fields"`
	Documents []models.ApplicationDocument `json:"documents"`
}

// CheckCompleteness verifies every active required field has a non-empty
// value and every active required document has at least one attached
// reference. All missing items are reported together, not just the first.
// Returns nil when the submission is complete.
func CheckCompleteness(schema Schema, app *models.Application) *IncompleteSubmissionError {
	var missing IncompleteSubmissionError

	for _, f := range schema.Fields {
		if !f.Active || !f.Required {
			continue
		}
		if strings.TrimSpace(app.FieldValues[f.Name]) == "" {
			missing.MissingFields = append(missing.MissingFields, f.Name)
		}
	}
	for _, d := range schema.Documents {
		if !d.Active || !d.Required {
			continue
		}
		if app.AttachedCount(d.Name) == 0 {
			missing.MissingDocuments = append(missing.MissingDocuments, d.Name)
		}
	}

	if len(missing.MissingFields) == 0 && len(missing.MissingDocuments) == 0 {
		return nil
	}
	return &missing
}

// ValidateFieldValues checks submitted values against the schema's declared
// constraints. Unknown field names and constraint violations are
// ValidationErrors; emptiness is CheckCompleteness's concern, not this one's.
func ValidateFieldValues(schema Schema, values map[string]string) error {
	byName := make(map[string]models.ApplicationField, len(schema.Fields))
	for _, f := range schema.Fields {
		if f.Active {
			byName[f.Name] = f
		}
	}

	for name, raw := range values {
		f, ok := byName[name]
		if !ok {
			return &ValidationError{Field: name, Value: raw, Reason: "not a declared field"}
		}
		if raw == "" {
			continue
		}

		switch f.Type {
		case models.FieldNumber:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return &ValidationError{Field: name, Value: raw, Reason: "not a number"}
			}
			if f.Min != nil && v < *f.Min {
				return &ValidationError{Field: name, Value: raw, Reason: fmt.Sprintf("below minimum %g", *f.Min)}
			}
			if f.Max != nil && v > *f.Max {
				return &ValidationError{Field: name, Value: raw, Reason: fmt.Sprintf("above maximum %g", *f.Max)}
			}
		case models.FieldSelect:
			found := false
			for _, opt := range f.Options {
				if opt == raw {
					found = true
					break
				}
			}
			if !found {
				return &ValidationError{Field: name, Value: raw, Reason: "not one of the declared options"}
			}
		case models.FieldText, models.FieldTextarea:
			if f.MaxLength > 0 && len([]rune(raw)) > f.MaxLength {
				return &ValidationError{Field: name, Value: raw, Reason: fmt.Sprintf("longer than %d characters", f.MaxLength)}
			}
		case models.FieldCheckbox:
			if raw != "true" && raw != "false" {
				return &ValidationError{Field: name, Value: raw, Reason: "must be true or false"}
			}
		}
	}
	return nil
}

// ValidateNewFieldName enforces name uniqueness among active entries of one
// scholarship type.
func ValidateNewFieldName(existing []models.ApplicationField, name string) error {
	for _, f := range existing {
		if f.Active && f.Name == name {
			return &ValidationError{Field: name, Value: name, Reason: "an active field with this name already exists"}
		}
	}
	return nil
}

// ValidateNewDocumentName is the document counterpart of
// ValidateNewFieldName.
func ValidateNewDocumentName(existing []models.ApplicationDocument, name string) error {
	for _, d := range existing {
		if d.Active && d.Name == name {
			return &ValidationError{Field: name, Value: name, Reason: "an active document with this name already exists"}
		}
	}
	return nil
}

// ValidateFieldUpdate rejects structural changes to a field that live
// applications reference. Once a cycle has begun only additive changes and
// deactivation are allowed; label, bounds, option additions and display
// order remain editable.
func ValidateFieldUpdate(current, updated models.ApplicationField, inUse bool) error {
	if !inUse {
		return nil
	}
	if updated.Type != current.Type {
		return &SchemaLockedError{Entry: current.Name, Change: "type change on a field with submitted values"}
	}
	if updated.Required != current.Required {
		return &SchemaLockedError{Entry: current.Name, Change: "requiredness change on a field with submitted values"}
	}
	if updated.Name != current.Name {
		return &SchemaLockedError{Entry: current.Name, Change: "rename of a field with submitted values"}
	}
	return nil
}

// ValidateDocumentUpdate mirrors ValidateFieldUpdate for documents.
func ValidateDocumentUpdate(current, updated models.ApplicationDocument, inUse bool) error {
	if !inUse {
		return nil
	}
	if updated.Required != current.Required {
		return &SchemaLockedError{Entry: current.Name, Change: "requiredness change on a document with attached references"}
	}
	if updated.Name != current.Name {
		return &SchemaLockedError{Entry: current.Name, Change: "rename of a document with attached references"}
	}
	return nil
}
