package tokens

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inquiro/backend/internal/middleware"
	"github.com/inquiro/backend/internal/responses"
	"github.com/inquiro/backend/pkg/response"
)

// IssueRequest is the optional body for POST /survey-tokens/survey/:surveyId.
type IssueRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
	MaxUses   *int       `json:"max_uses" binding:"omitempty,min=1"`
}

// Handler handles survey token HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a token handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Issue handles POST /survey-tokens/survey/:surveyId. The body may be empty.
func (h *Handler) Issue(c *gin.Context) {
	surveyID, err := uuid.Parse(c.Param("surveyId"))
	if err != nil {
		response.BadRequest(c, "invalid survey id")
		return
	}
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	t, err := h.svc.Issue(c.Request.Context(), surveyID, IssueInput{ExpiresAt: req.ExpiresAt, MaxUses: req.MaxUses}, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, t)
}

// ListBySurvey handles GET /survey-tokens/survey/:surveyId.
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

func tokenParam(c *gin.Context) (string, bool) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.BadRequest(c, "Token is required")
		return "", false
	}
	return token, true
}

// Resolve handles GET /survey-tokens/:token/survey.
func (h *Handler) Resolve(c *gin.Context) {
	token, ok := tokenParam(c)
	if !ok {
		return
	}
	survey, err := h.svc.Resolve(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, survey)
}

// Respond handles POST /survey-tokens/:token/respond.
func (h *Handler) Respond(c *gin.Context) {
	token, ok := tokenParam(c)
	if !ok {
		return
	}
	var req responses.AnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	answers, err := req.Inputs()
	if err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	resp, err := h.svc.SubmitViaToken(c.Request.Context(), token, responses.Submission{
		Answers:     answers,
		IsAnonymous: req.IsAnonymous,
		IPAddress:   responses.ClientIP(c),
		UserAgent:   c.Request.UserAgent(),
	}, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// Deactivate handles PATCH /survey-tokens/:token/deactivate. The path segment shares the :token
// wildcard with the routes above but carries the token id here.
func (h *Handler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("token"))
	if err != nil {
		response.BadRequest(c, "invalid token id")
		return
	}
	t, err := h.svc.Deactivate(c.Request.Context(), id, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, t)
}
