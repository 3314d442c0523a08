package surveys

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inquiro/backend/internal/middleware"
	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/response"
)

// CreateRequest is the body for POST /surveys.
type CreateRequest struct {
	Title          string     `json:"title" binding:"required"`
	Description    *string    `json:"description"`
	Status         string     `json:"status" binding:"omitempty,survey_status"`
	IsPublic       bool       `json:"is_public"`
	AllowAnonymous bool       `json:"allow_anonymous"`
	MaxResponses   *int       `json:"max_responses" binding:"omitempty,min=1"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
}

// UpdateRequest is the body for PUT /surveys/:id. Absent keys are left unchanged.
type UpdateRequest struct {
	Title          *string             `json:"title" binding:"omitempty,min=1"`
	Description    Optional[string]    `json:"description"`
	Status         *string             `json:"status" binding:"omitempty,survey_status"`
	IsPublic       *bool               `json:"is_public"`
	AllowAnonymous *bool               `json:"allow_anonymous"`
	MaxResponses   Optional[int]       `json:"max_responses"`
	StartDate      Optional[time.Time] `json:"start_date"`
	EndDate        Optional[time.Time] `json:"end_date"`
}

// Handler handles survey HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a survey handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ListPublic handles GET /surveys.
func (h *Handler) ListPublic(c *gin.Context) {
	list, err := h.svc.ListPublic(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// ListMine handles GET /surveys/my.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.svc.ListByOwner(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Count handles GET /surveys/count.
func (h *Handler) Count(c *gin.Context) {
	n, err := h.svc.CountByOwner(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"count": n})
}

// Create handles POST /surveys.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	survey, err := h.svc.Create(c.Request.Context(), CreateInput{
		Title:          req.Title,
		Description:    req.Description,
		Status:         models.SurveyStatus(req.Status),
		IsPublic:       req.IsPublic,
		AllowAnonymous: req.AllowAnonymous,
		MaxResponses:   req.MaxResponses,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
	}, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, survey)
}

// GetByID handles GET /surveys/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid survey id")
		return
	}
	survey, err := h.svc.Get(c.Request.Context(), id, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, survey)
}

// GetPublic handles GET /surveys/:id/public. No authentication is required.
func (h *Handler) GetPublic(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, ErrSurveyNotActive)
		return
	}
	survey, err := h.svc.GetActive(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, survey)
}

// Update handles PUT /surveys/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid survey id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	patch := Patch{
		Title:          req.Title,
		Description:    req.Description,
		IsPublic:       req.IsPublic,
		AllowAnonymous: req.AllowAnonymous,
		MaxResponses:   req.MaxResponses,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
	}
	if req.Status != nil {
		st := models.SurveyStatus(*req.Status)
		patch.Status = &st
	}
	survey, err := h.svc.Update(c.Request.Context(), id, patch, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, survey)
}

// Publish handles POST /surveys/:id/publish.
func (h *Handler) Publish(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid survey id")
		return
	}
	survey, err := h.svc.Publish(c.Request.Context(), id, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, survey)
}

// Delete handles DELETE /surveys/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid survey id")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, middleware.Identity(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "Survey deleted"})
}
