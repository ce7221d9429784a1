package catalog

import (
	"strings"
	"testing"

	"github.com/wyhuang/scholarship-engine/internal/models"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cat.Scholarships) == 0 {
		t.Fatal("embedded catalog is empty")
	}

	types, fields, docs, rules, err := cat.Types()
	if err != nil {
		t.Fatalf("Types failed: %v", err)
	}
	if len(types) != len(cat.Scholarships) {
		t.Fatalf("types = %d, want %d", len(types), len(cat.Scholarships))
	}
	if len(fields) == 0 || len(docs) == 0 || len(rules) == 0 {
		t.Fatalf("catalog conversion lost entries: %d fields, %d docs, %d rules", len(fields), len(docs), len(rules))
	}

	byCode := map[string]models.ScholarshipType{}
	for _, st := range types {
		byCode[st.Code] = st
	}

	freshman, ok := byCode["undergraduate_freshman"]
	if !ok {
		t.Fatal("undergraduate_freshman missing")
	}
	if freshman.Combined {
		t.Fatal("undergraduate_freshman should not be combined")
	}
	if len(freshman.Stages) != 2 {
		t.Fatalf("freshman stages = %d, want 2", len(freshman.Stages))
	}

	phd, ok := byCode["phd_combined"]
	if !ok {
		t.Fatal("phd_combined missing")
	}
	if !phd.Combined || len(phd.SubScholarships) != 2 {
		t.Fatalf("phd_combined subs = %d, combined = %v", len(phd.SubScholarships), phd.Combined)
	}

	grad, ok := byCode["graduate_research"]
	if !ok {
		t.Fatal("graduate_research missing")
	}
	gated := false
	for _, st := range grad.Stages {
		if st.Stage == models.StageProfessorRecommendation {
			gated = true
		}
	}
	if !gated {
		t.Fatal("graduate_research must include a professor_recommendation stage")
	}
}

// Schema entry IDs are derived from natural keys; two loads of the same
// catalog must produce identical IDs or whitelist rule references would break
// across restarts.
func TestCatalogIDsAreDeterministic(t *testing.T) {
	first, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	second, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	_, fields1, docs1, rules1, _ := first.Types()
	_, fields2, docs2, rules2, _ := second.Types()

	for i := range fields1 {
		if fields1[i].ID != fields2[i].ID {
			t.Fatalf("field %s ID drifted across loads", fields1[i].Name)
		}
	}
	for i := range docs1 {
		if docs1[i].ID != docs2[i].ID {
			t.Fatalf("document %s ID drifted across loads", docs1[i].Name)
		}
	}
	seen := map[string]bool{}
	for i := range rules1 {
		if rules1[i].ID != rules2[i].ID {
			t.Fatalf("rule on %s ID drifted across loads", rules1[i].Field)
		}
		if seen[rules1[i].ID.String()] {
			t.Fatalf("rule ID collision at %s", rules1[i].Field)
		}
		seen[rules1[i].ID.String()] = true
	}
}

func TestValidateRejectsBadAuthoring(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Catalog)
		wantErr string
	}{
		{
			name:    "unknown stage",
			mutate:  func(c *Catalog) { c.Scholarships[0].Stages[0].Stage = "dean_review" },
			wantErr: "unknown review stage",
		},
		{
			name:    "unknown role",
			mutate:  func(c *Catalog) { c.Scholarships[0].Stages[0].RequiredRoles = []string{"registrar"} },
			wantErr: "unknown role",
		},
		{
			name:    "unknown operator",
			mutate:  func(c *Catalog) { c.Scholarships[0].Rules[0].Operator = "~=" },
			wantErr: "unknown operator",
		},
		{
			name:    "unknown severity",
			mutate:  func(c *Catalog) { c.Scholarships[0].Rules[0].Severity = "fatal" },
			wantErr: "unknown severity",
		},
		{
			name:    "unknown field type",
			mutate:  func(c *Catalog) { c.Scholarships[0].Fields[0].Type = "richtext" },
			wantErr: "unknown field type",
		},
		{
			name: "duplicate field name",
			mutate: func(c *Catalog) {
				c.Scholarships[0].Fields = append(c.Scholarships[0].Fields, c.Scholarships[0].Fields[0])
			},
			wantErr: "duplicate field name",
		},
		{
			name: "duplicate rule key",
			mutate: func(c *Catalog) {
				c.Scholarships[0].Rules = append(c.Scholarships[0].Rules, c.Scholarships[0].Rules[0])
			},
			wantErr: "duplicate rule",
		},
		{
			name: "combined without subs",
			mutate: func(c *Catalog) {
				c.Scholarships[0].Combined = true
				c.Scholarships[0].SubScholarships = nil
			},
			wantErr: "no sub-scholarships",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cat, err := Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tc.mutate(cat)
			err = cat.validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseWindow(t *testing.T) {
	if w, err := parseWindow(""); err != nil || w != nil {
		t.Fatalf("empty window: %v, %v", w, err)
	}
	if w, err := parseWindow("2026-03-01"); err != nil || w == nil {
		t.Fatalf("date-only window: %v, %v", w, err)
	}
	if w, err := parseWindow("2026-03-01T09:00:00Z"); err != nil || w == nil {
		t.Fatalf("RFC3339 window: %v, %v", w, err)
	}
	if _, err := parseWindow("March 1st"); err == nil {
		t.Fatal("expected unparseable date error")
	}
}
