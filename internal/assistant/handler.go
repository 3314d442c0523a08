package assistant

import (
	"github.com/gin-gonic/gin"

	"github.com/inquiro/backend/pkg/response"
)

// GenerateRequest is the body of POST /ai/generate-survey.
type GenerateRequest struct {
	Topic             string `json:"topic" binding:"required"`
	NumberOfQuestions int    `json:"number_of_questions" binding:"omitempty,min=1,max=20"`
	TargetAudience    string `json:"target_audience" binding:"omitempty,max=200"`
	AdditionalContext string `json:"additional_context" binding:"omitempty,max=2000"`
}

// Handler serves AI survey drafts.
type Handler struct {
	svc *Service
}

// NewHandler creates an assistant handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Generate handles POST /ai/generate-survey. Creator role is enforced by middleware.
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	draft, err := h.svc.Generate(c.Request.Context(), GenerateInput{
		Topic:             req.Topic,
		NumberOfQuestions: req.NumberOfQuestions,
		TargetAudience:    req.TargetAudience,
		AdditionalContext: req.AdditionalContext,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, draft)
}
