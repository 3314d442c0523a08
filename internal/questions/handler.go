package questions

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inquiro/backend/internal/middleware"
	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/response"
)

// OptionRequest is one option in a question body.
type OptionRequest struct {
	Text  string  `json:"text" binding:"required"`
	Value *string `json:"value"`
}

// CreateRequest is the body for POST /questions/survey/:surveyId.
type CreateRequest struct {
	Text        string          `json:"text" binding:"required"`
	Description *string         `json:"description"`
	Type        string          `json:"type" binding:"required,question_type"`
	IsRequired  bool            `json:"is_required"`
	Order       *int            `json:"order" binding:"omitempty,min=0"`
	Options     []OptionRequest `json:"options" binding:"omitempty,dive"`
}

// UpdateRequest is the body for PUT /questions/:id. Options replace the whole option set.
type UpdateRequest struct {
	Text        *string         `json:"text" binding:"omitempty,min=1"`
	Description *string         `json:"description"`
	Type        *string         `json:"type" binding:"omitempty,question_type"`
	IsRequired  *bool           `json:"is_required"`
	Order       *int            `json:"order" binding:"omitempty,min=0"`
	Options     []OptionRequest `json:"options" binding:"omitempty,dive"`
}

// AddOptionRequest is the body for POST /questions/:id/options.
type AddOptionRequest struct {
	Text  string  `json:"text" binding:"required"`
	Value *string `json:"value"`
}

// Handler handles question HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a question handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func toOptions(reqs []OptionRequest) []OptionInput {
	out := make([]OptionInput, 0, len(reqs))
	for _, o := range reqs {
		out = append(out, OptionInput{Text: o.Text, Value: o.Value})
	}
	return out
}

// ListBySurvey handles GET /questions/survey/:surveyId.
func (h *Handler) ListBySurvey(c *gin.Context) {
	surveyID, err := uuid.Parse(c.Param("surveyId"))
	if err != nil {
		response.BadRequest(c, "invalid survey id")
		return
	}
	list, err := h.svc.ListBySurvey(c.Request.Context(), surveyID, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Create handles POST /questions/survey/:surveyId.
func (h *Handler) Create(c *gin.Context) {
	surveyID, err := uuid.Parse(c.Param("surveyId"))
	if err != nil {
		response.BadRequest(c, "invalid survey id")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q, err := h.svc.Add(c.Request.Context(), surveyID, Input{
		Text:        req.Text,
		Description: req.Description,
		Type:        models.QuestionType(req.Type),
		IsRequired:  req.IsRequired,
		Order:       req.Order,
		Options:     toOptions(req.Options),
	}, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, q)
}

// GetByID handles GET /questions/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	q, err := h.svc.Get(c.Request.Context(), id, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, q)
}

// Update handles PUT /questions/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	in := UpdateInput{
		Text:        req.Text,
		Description: req.Description,
		IsRequired:  req.IsRequired,
		Order:       req.Order,
		Options:     toOptions(req.Options),
	}
	if req.Type != nil {
		t := models.QuestionType(*req.Type)
		in.Type = &t
	}
	q, err := h.svc.Update(c.Request.Context(), id, in, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, q)
}

// Delete handles DELETE /questions/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, middleware.Identity(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "Question deleted"})
}

// AddOption handles POST /questions/:id/options.
func (h *Handler) AddOption(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	var req AddOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	opt, err := h.svc.AddOption(c.Request.Context(), id, req.Text, req.Value, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, opt)
}
