package emaillogs

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inquiro/backend/internal/middleware"
	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/response"
)

// SurveyAccess is the ownership check guarding a survey's email log.
type SurveyAccess interface {
	AssertOwnership(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (*models.Survey, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	store   Store
	surveys SurveyAccess
}

// NewHandler creates an email logs handler.
func NewHandler(store Store, surveys SurveyAccess) *Handler {
	return &Handler{store: store, surveys: surveys}
}

// ListBySurvey handles GET /surveys/:id/emails. Survey owner only.
func (h *Handler) ListBySurvey(c *gin.Context) {
	surveyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid survey id")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.surveys.AssertOwnership(ctx, surveyID, middleware.Identity(c)); err != nil {
		response.Error(c, err)
		return
	}
	logs, err := h.store.ListBySurvey(ctx, surveyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, logs)
}
