package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wyhuang/scholarship-engine/internal/auth"
	"github.com/wyhuang/scholarship-engine/internal/db"
	"github.com/wyhuang/scholarship-engine/internal/engine"
	"github.com/wyhuang/scholarship-engine/internal/models"
)

func (s *Server) handleListScholarships(c echo.Context) error {
	types, err := s.Store.ListScholarshipTypes(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if types == nil {
		types = []models.ScholarshipType{}
	}
	return c.JSON(http.StatusOK, types)
}

func (s *Server) handleGetScholarship(c echo.Context) error {
	stype, err := s.Store.GetScholarshipType(c.Request().Context(), c.Param("code"))
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, stype)
}

func (s *Server) handleGetSchema(c echo.Context) error {
	role, err := auth.GetRoleFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	includeInactive := false
	if c.QueryParam("include_inactive") == "true" {
		// Inactive entries only surface in administrative editing views.
		if role != models.RoleAdmin && role != models.RoleSuperAdmin {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "include_inactive requires an administrator role"})
		}
		includeInactive = true
	}

	schema, err := s.Store.GetSchema(c.Request().Context(), c.Param("code"), c.QueryParam("sub"), includeInactive)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, schema)
}

type previewRequest struct {
	SubCode   string            `json:"sub_code"`
	StudentID string            `json:"student_id"`
	Values    map[string]string `json:"values"`
}

// handlePreviewEligibility runs the rule evaluator without touching any
// application. Students preview themselves; staff may preview any student.
func (s *Server) handlePreviewEligibility(c echo.Context) error {
	actor, err := auth.GetActorFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	var req previewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	studentID := actor.ID
	if actor.Role != models.RoleStudent && req.StudentID != "" {
		studentID = req.StudentID
	}

	probe := &models.Application{StudentID: studentID, FieldValues: req.Values}
	evaluation, err := s.Orchestrator.Preview(c.Request().Context(),
		c.Param("code"), req.SubCode, studentID, engine.ApplicantDataFrom(probe))
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, evaluation)
}

type createApplicationRequest struct {
	ScholarshipCode string `json:"scholarship_code"`
	SubCode         string `json:"sub_code"`
	AdvisorID       string `json:"advisor_id"`
}

func (s *Server) handleCreateApplication(c echo.Context) error {
	actor, err := auth.GetActorFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	if actor.Role != models.RoleStudent {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "only students open applications"})
	}

	var req createApplicationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.ScholarshipCode == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "scholarship_code is required"})
	}

	stype, err := s.Store.GetScholarshipType(c.Request().Context(), req.ScholarshipCode)
	if err != nil {
		return writeEngineError(c, err)
	}
	if !stype.Active {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "scholarship is not accepting applications"})
	}

	app := &models.Application{
		StudentID:       actor.ID,
		AdvisorID:       req.AdvisorID,
		ScholarshipCode: req.ScholarshipCode,
		SubCode:         req.SubCode,
		FieldValues:     map[string]string{},
		StatusTimes:     map[models.Status]time.Time{models.StatusDraft: time.Now().UTC()},
	}
	if err := s.Store.CreateApplication(c.Request().Context(), app); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, newApplicationView(app, actor.Role))
}

type updateDraftRequest struct {
	FieldValues map[string]string `json:"field_values"`
	Documents   []documentRefBody `json:"documents"`
	Version     int               `json:"version"`
}

type documentRefBody struct {
	Requirement string `json:"requirement"`
	FileID      string `json:"file_id"`
}

func (s *Server) handleUpdateDraft(c echo.Context) error {
	actor, err := auth.GetActorFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	appID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid application ID"})
	}

	var req updateDraftRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	app, err := s.Store.GetApplication(c.Request().Context(), appID)
	if err != nil {
		return writeEngineError(c, err)
	}
	if actor.Role != models.RoleStudent || actor.ID != app.StudentID {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "only the applicant edits a draft"})
	}

	if req.FieldValues != nil {
		cleaned := make(map[string]string, len(req.FieldValues))
		for name, value := range req.FieldValues {
			cleaned[name] = s.sanitizer.Sanitize(value)
		}
		app.FieldValues = cleaned
	}
	if req.Documents != nil {
		now := time.Now().UTC()
		refs := make([]models.DocumentRef, 0, len(req.Documents))
		for _, d := range req.Documents {
			refs = append(refs, models.DocumentRef{Requirement: d.Requirement, FileID: d.FileID, AttachedAt: now})
		}
		app.Documents = refs
	}
	if req.Version > 0 {
		app.Version = req.Version
	}

	if err := s.Store.UpdateDraft(c.Request().Context(), app); err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, newApplicationView(app, actor.Role))
}

func (s *Server) handleGetApplication(c echo.Context) error {
	actor, err := auth.GetActorFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	appID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid application ID"})
	}

	app, err := s.Store.GetApplication(c.Request().Context(), appID)
	if err != nil {
		return writeEngineError(c, err)
	}
	if actor.Role == models.RoleStudent && actor.ID != app.StudentID {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "not your application"})
	}
	return c.JSON(http.StatusOK, newApplicationView(app, actor.Role))
}

func (s *Server) handleListApplications(c echo.Context) error {
	actor, err := auth.GetActorFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	params := db.ListParams{
		ScholarshipCode: c.QueryParam("scholarship_code"),
		Status:          c.QueryParam("status"),
	}
	if v := c.QueryParam("limit"); v != "" {
		params.Limit, _ = strconv.Atoi(v)
	}
	if v := c.QueryParam("offset"); v != "" {
		params.Offset, _ = strconv.Atoi(v)
	}

	// Students only ever see their own applications.
	if actor.Role == models.RoleStudent {
		params.StudentID = actor.ID
	} else {
		params.StudentID = c.QueryParam("student_id")
	}

	result, err := s.Store.ListApplications(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	views := make([]applicationView, 0, len(result.Applications))
	for i := range result.Applications {
		views = append(views, newApplicationView(&result.Applications[i], actor.Role))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"applications": views,
		"total":        result.Total,
		"limit":        result.Limit,
		"offset":       result.Offset,
	})
}

type intentRequest struct {
	Intent  string `json:"intent"`
	Comment string `json:"comment"`
}

func (s *Server) handleIntent(c echo.Context) error {
	actor, err := auth.GetActorFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	appID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid application ID"})
	}

	var req intentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	intent, err := models.ParseIntent(req.Intent)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	app, event, err := s.Orchestrator.Handle(c.Request().Context(), engine.IntentRequest{
		ApplicationID: appID,
		Intent:        intent,
		Actor:         actor,
		Comment:       s.sanitizer.Sanitize(req.Comment),
	})
	if err != nil {
		return writeEngineError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"application": newApplicationView(app, actor.Role),
		"event":       event,
	})
}

type fieldRequest struct {
	SubCode      string   `json:"sub_code"`
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	Type         string   `json:"type"`
	Required     bool     `json:"required"`
	Min          *float64 `json:"min"`
	Max          *float64 `json:"max"`
	MaxLength    int      `json:"max_length"`
	Options      []string `json:"options"`
	DisplayOrder int      `json:"display_order"`
	Active       *bool    `json:"active"`
}

func fieldFromRequest(req fieldRequest) (models.ApplicationField, error) {
	ftype, err := models.ParseFieldType(req.Type)
	if err != nil {
		return models.ApplicationField{}, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return models.ApplicationField{
		SubCode:      req.SubCode,
		Name:         req.Name,
		Label:        req.Label,
		Type:         ftype,
		Required:     req.Required,
		Min:          req.Min,
		Max:          req.Max,
		MaxLength:    req.MaxLength,
		Options:      req.Options,
		DisplayOrder: req.DisplayOrder,
		Active:       active,
	}, nil
}

func (s *Server) handleCreateField(c echo.Context) error {
	var req fieldRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	field, err := fieldFromRequest(req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	field.ScholarshipCode = c.Param("code")

	if err := s.Store.CreateField(c.Request().Context(), field); err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusCreated, field)
}

func (s *Server) handleUpdateField(c echo.Context) error {
	fieldID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid field ID"})
	}

	var req fieldRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	field, err := fieldFromRequest(req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	field.ID = fieldID

	if err := s.Store.UpdateField(c.Request().Context(), field); err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, field)
}

func (s *Server) handleDeactivateField(c echo.Context) error {
	fieldID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid field ID"})
	}
	if err := s.Store.DeactivateField(c.Request().Context(), fieldID); err != nil {
		return writeEngineError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type documentRequest struct {
	SubCode      string `json:"sub_code"`
	Name         string `json:"name"`
	Label        string `json:"label"`
	Required     bool   `json:"required"`
	DisplayOrder int    `json:"display_order"`
	Active       *bool  `json:"active"`
}

func (s *Server) handleCreateDocument(c echo.Context) error {
	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	doc := models.ApplicationDocument{
		ScholarshipCode: c.Param("code"),
		SubCode:         req.SubCode,
		Name:            req.Name,
		Label:           req.Label,
		Required:        req.Required,
		DisplayOrder:    req.DisplayOrder,
		Active:          true,
	}
	if err := s.Store.CreateDocument(c.Request().Context(), doc); err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusCreated, doc)
}

func (s *Server) handleUpdateDocument(c echo.Context) error {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid document ID"})
	}

	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	doc := models.ApplicationDocument{
		ID:           docID,
		SubCode:      req.SubCode,
		Name:         req.Name,
		Label:        req.Label,
		Required:     req.Required,
		DisplayOrder: req.DisplayOrder,
		Active:       active,
	}
	if err := s.Store.UpdateDocument(c.Request().Context(), doc); err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDeactivateDocument(c echo.Context) error {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid document ID"})
	}
	if err := s.Store.DeactivateDocument(c.Request().Context(), docID); err != nil {
		return writeEngineError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type ruleActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetRuleActive(c echo.Context) error {
	ruleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	var req ruleActiveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := s.Store.SetRuleActive(c.Request().Context(), ruleID, req.Active); err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"id": ruleID, "active": req.Active})
}

type grantWhitelistRequest struct {
	StudentID     string   `json:"student_id"`
	RuleIDs       []string `json:"rule_ids"`
	Justification string   `json:"justification"`
}

func (s *Server) handleGrantWhitelist(c echo.Context) error {
	actor, err := auth.GetActorFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	var req grantWhitelistRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	ruleIDs := make([]uuid.UUID, 0, len(req.RuleIDs))
	for _, raw := range req.RuleIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID: " + raw})
		}
		ruleIDs = append(ruleIDs, id)
	}

	entry, err := s.Store.GrantWhitelist(c.Request().Context(), c.Param("code"),
		req.StudentID, ruleIDs, s.sanitizer.Sanitize(req.Justification), actor.ID)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleRevokeWhitelist(c echo.Context) error {
	actor, err := auth.GetActorFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid entry ID"})
	}
	if err := s.Store.RevokeWhitelist(c.Request().Context(), entryID, actor.ID); err != nil {
		return writeEngineError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListWhitelist(c echo.Context) error {
	var entries []models.WhitelistEntry
	var err error
	if studentID := c.QueryParam("student_id"); studentID != "" {
		entries, err = s.Store.ListWhitelist(c.Request().Context(), c.Param("code"), studentID)
	} else {
		entries, err = s.Store.ListWhitelistForScholarship(c.Request().Context(), c.Param("code"))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if entries == nil {
		entries = []models.WhitelistEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}
