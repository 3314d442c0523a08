package analytics

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inquiro/backend/internal/middleware"
	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/response"
)

// Surveys is the survey surface analytics needs.
type Surveys interface {
	AssertOwnership(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (*models.Survey, error)
	Load(ctx context.Context, surveyID uuid.UUID) (*models.Survey, error)
}

// Responses lists a survey's responses with their answers.
type Responses interface {
	ListBySurvey(ctx context.Context, surveyID uuid.UUID) ([]*models.SurveyResponse, error)
}

// Handler handles GET /surveys/:id/analytics.
type Handler struct {
	surveys   Surveys
	responses Responses
}

// NewHandler creates an analytics handler.
func NewHandler(surveys Surveys, responses Responses) *Handler {
	return &Handler{surveys: surveys, responses: responses}
}

// Build returns the summary of a survey owned by identity.
func (h *Handler) Build(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (*Summary, error) {
	if _, err := h.surveys.AssertOwnership(ctx, surveyID, identity); err != nil {
		return nil, err
	}
	survey, err := h.surveys.Load(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	list, err := h.responses.ListBySurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	return Summarize(survey, list), nil
}

// GetBySurvey handles GET /surveys/:id/analytics. Survey owner only.
func (h *Handler) GetBySurvey(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid survey id")
		return
	}
	out, err := h.Build(c.Request.Context(), id, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}
