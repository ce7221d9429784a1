package catalog

import (
	"embed"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/wyhuang/scholarship-engine/internal/models"
)

//go:embed config/scholarships.yaml
var catalogYAML embed.FS

// Catalog is the administered scholarship programme definitions loaded at
// boot and synced into the registry tables. The sync is additive-only:
// entries live applications reference are never structurally rewritten.
type Catalog struct {
	Scholarships []ScholarshipConfig `yaml:"scholarships"`
}

type ScholarshipConfig struct {
	Code        string  `yaml:"code"`
	NameEn      string  `yaml:"name_en"`
	NameZh      string  `yaml:"name_zh"`
	Amount      float64 `yaml:"amount"`
	Currency    string  `yaml:"currency,omitempty"`
	WindowOpen  string  `yaml:"window_open,omitempty"`
	WindowClose string  `yaml:"window_close,omitempty"`
	Combined    bool    `yaml:"combined,omitempty"`

	SubScholarships []SubConfig      `yaml:"sub_scholarships,omitempty"`
	Stages          []StageConfig    `yaml:"stages"`
	Fields          []FieldConfig    `yaml:"fields,omitempty"`
	Documents       []DocumentConfig `yaml:"documents,omitempty"`
	Rules           []RuleConfig     `yaml:"rules,omitempty"`
}

type SubConfig struct {
	Code   string  `yaml:"code"`
	NameEn string  `yaml:"name_en"`
	NameZh string  `yaml:"name_zh"`
	Amount float64 `yaml:"amount"`
}

type StageConfig struct {
	Stage         string   `yaml:"stage"`
	RequiredRoles []string `yaml:"required_roles"`
}

type FieldConfig struct {
	Name      string   `yaml:"name"`
	Label     string   `yaml:"label"`
	Type      string   `yaml:"type"`
	Required  bool     `yaml:"required,omitempty"`
	Min       *float64 `yaml:"min,omitempty"`
	Max       *float64 `yaml:"max,omitempty"`
	MaxLength int      `yaml:"max_length,omitempty"`
	Options   []string `yaml:"options,omitempty"`
	Sub       string   `yaml:"sub,omitempty"`
}

type DocumentConfig struct {
	Name     string `yaml:"name"`
	Label    string `yaml:"label"`
	Required bool   `yaml:"required,omitempty"`
	Sub      string `yaml:"sub,omitempty"`
}

type RuleConfig struct {
	Field    string   `yaml:"field"`
	Operator string   `yaml:"operator"`
	Number   *float64 `yaml:"number,omitempty"`
	Text     string   `yaml:"text,omitempty"`
	List     []string `yaml:"list,omitempty"`
	Severity string   `yaml:"severity"`
	Priority int      `yaml:"priority"`
	Sub      string   `yaml:"sub,omitempty"`
}

// Load reads the embedded catalog. The path is a filesystem fallback for
// local development; environment variables inside the YAML are expanded.
func Load(path string) (*Catalog, error) {
	data, err := catalogYAML.ReadFile("config/scholarships.yaml")
	if err != nil {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	expanded := os.ExpandEnv(string(data))

	var cat Catalog
	if err := yaml.Unmarshal([]byte(expanded), &cat); err != nil {
		return nil, err
	}

	if err := cat.validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// validate rejects unknown operators, severities, stages and field types at
// authoring time so evaluation downstream is total.
func (c *Catalog) validate() error {
	for _, s := range c.Scholarships {
		if s.Code == "" {
			return fmt.Errorf("catalog: scholarship with empty code")
		}
		for _, st := range s.Stages {
			if _, err := models.ParseStage(st.Stage); err != nil {
				return fmt.Errorf("catalog %s: %w", s.Code, err)
			}
			for _, r := range st.RequiredRoles {
				if _, err := models.ParseRole(r); err != nil {
					return fmt.Errorf("catalog %s stage %s: %w", s.Code, st.Stage, err)
				}
			}
		}
		seenFields := map[string]bool{}
		for _, f := range s.Fields {
			if _, err := models.ParseFieldType(f.Type); err != nil {
				return fmt.Errorf("catalog %s field %s: %w", s.Code, f.Name, err)
			}
			key := f.Sub + "/" + f.Name
			if seenFields[key] {
				return fmt.Errorf("catalog %s: duplicate field name %s", s.Code, f.Name)
			}
			seenFields[key] = true
		}
		seenDocs := map[string]bool{}
		for _, d := range s.Documents {
			key := d.Sub + "/" + d.Name
			if seenDocs[key] {
				return fmt.Errorf("catalog %s: duplicate document name %s", s.Code, d.Name)
			}
			seenDocs[key] = true
		}
		seenRules := map[string]bool{}
		for _, r := range s.Rules {
			if _, err := models.ParseOperator(r.Operator); err != nil {
				return fmt.Errorf("catalog %s rule on %s: %w", s.Code, r.Field, err)
			}
			if _, err := models.ParseSeverity(r.Severity); err != nil {
				return fmt.Errorf("catalog %s rule on %s: %w", s.Code, r.Field, err)
			}
			// Rule IDs derive from (sub, field, priority); two rules sharing
			// that key would collapse to one row on sync.
			key := fmt.Sprintf("%s/%s#%d", r.Sub, r.Field, r.Priority)
			if seenRules[key] {
				return fmt.Errorf("catalog %s: duplicate rule on %s with priority %d", s.Code, r.Field, r.Priority)
			}
			seenRules[key] = true
		}
		if s.Combined && len(s.SubScholarships) == 0 {
			return fmt.Errorf("catalog %s: combined type declares no sub-scholarships", s.Code)
		}
	}
	return nil
}

// Types converts the config into domain models. Schema entry and rule IDs
// are derived deterministically from their natural keys so repeated syncs
// and whitelist references stay stable across restarts.
func (c *Catalog) Types() ([]models.ScholarshipType, []models.ApplicationField, []models.ApplicationDocument, []models.EligibilityRule, error) {
	var types []models.ScholarshipType
	var fields []models.ApplicationField
	var docs []models.ApplicationDocument
	var rules []models.EligibilityRule

	for _, s := range c.Scholarships {
		t := models.ScholarshipType{
			Code:     s.Code,
			NameEn:   s.NameEn,
			NameZh:   s.NameZh,
			Amount:   s.Amount,
			Currency: s.Currency,
			Combined: s.Combined,
			Active:   true,
		}
		if t.Currency == "" {
			t.Currency = "TWD"
		}

		var err error
		if t.WindowOpen, err = parseWindow(s.WindowOpen); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("catalog %s window_open: %w", s.Code, err)
		}
		if t.WindowClose, err = parseWindow(s.WindowClose); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("catalog %s window_close: %w", s.Code, err)
		}

		for _, sub := range s.SubScholarships {
			t.SubScholarships = append(t.SubScholarships, models.SubScholarship{
				Code:            sub.Code,
				ScholarshipCode: s.Code,
				NameEn:          sub.NameEn,
				NameZh:          sub.NameZh,
				Amount:          sub.Amount,
				Active:          true,
			})
		}
		for i, st := range s.Stages {
			stage, _ := models.ParseStage(st.Stage)
			var roles []models.Role
			for _, r := range st.RequiredRoles {
				role, _ := models.ParseRole(r)
				roles = append(roles, role)
			}
			t.Stages = append(t.Stages, models.ReviewStage{Stage: stage, Order: i, RequiredRoles: roles})
		}
		types = append(types, t)

		for i, f := range s.Fields {
			ftype, _ := models.ParseFieldType(f.Type)
			fields = append(fields, models.ApplicationField{
				ID:              entryID("field", s.Code, f.Sub, f.Name),
				ScholarshipCode: s.Code,
				SubCode:         f.Sub,
				Name:            f.Name,
				Label:           f.Label,
				Type:            ftype,
				Required:        f.Required,
				Min:             f.Min,
				Max:             f.Max,
				MaxLength:       f.MaxLength,
				Options:         f.Options,
				DisplayOrder:    i,
				Active:          true,
			})
		}
		for i, d := range s.Documents {
			docs = append(docs, models.ApplicationDocument{
				ID:              entryID("document", s.Code, d.Sub, d.Name),
				ScholarshipCode: s.Code,
				SubCode:         d.Sub,
				Name:            d.Name,
				Label:           d.Label,
				Required:        d.Required,
				DisplayOrder:    i,
				Active:          true,
			})
		}
		for _, r := range s.Rules {
			op, _ := models.ParseOperator(r.Operator)
			sev, _ := models.ParseSeverity(r.Severity)
			rules = append(rules, models.EligibilityRule{
				ID:              entryID("rule", s.Code, r.Sub, fmt.Sprintf("%s#%d", r.Field, r.Priority)),
				ScholarshipCode: s.Code,
				SubCode:         r.Sub,
				Field:           r.Field,
				Operator:        op,
				Expected:        models.RuleValue{Number: r.Number, Text: r.Text, List: r.List},
				Severity:        sev,
				Priority:        r.Priority,
				Active:          true,
			})
		}
	}

	return types, fields, docs, rules, nil
}

func parseWindow(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, format := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(format, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unparseable date %q", raw)
}

func entryID(kind, code, sub, name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(kind+"/"+code+"/"+sub+"/"+name))
}
