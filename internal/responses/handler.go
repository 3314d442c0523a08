package responses

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inquiro/backend/internal/middleware"
	"github.com/inquiro/backend/pkg/response"
)

// AnswerRequest is one answer in a submission body. date_value accepts RFC 3339 or YYYY-MM-DD.
type AnswerRequest struct {
	QuestionID       uuid.UUID  `json:"question_id" binding:"required"`
	TextValue        *string    `json:"text_value"`
	NumberValue      *float64   `json:"number_value"`
	DateValue        *string    `json:"date_value"`
	BooleanValue     *bool      `json:"boolean_value"`
	SelectedOptionID *uuid.UUID `json:"selected_option_id"`
}

// AnswersRequest is the part of a submission shared by direct and token submissions.
type AnswersRequest struct {
	Answers     []AnswerRequest `json:"answers" binding:"omitempty,dive"`
	IsAnonymous bool            `json:"is_anonymous"`
}

// SubmitRequest is the body for POST /responses/submit.
type SubmitRequest struct {
	SurveyID uuid.UUID `json:"survey_id" binding:"required"`
	AnswersRequest
}

// Inputs converts the request answers, parsing date values.
func (r AnswersRequest) Inputs() ([]AnswerInput, error) {
	out := make([]AnswerInput, 0, len(r.Answers))
	for i, a := range r.Answers {
		in := AnswerInput{
			QuestionID:       a.QuestionID,
			TextValue:        a.TextValue,
			NumberValue:      a.NumberValue,
			BooleanValue:     a.BooleanValue,
			SelectedOptionID: a.SelectedOptionID,
		}
		if a.DateValue != nil {
			d, err := parseDate(*a.DateValue)
			if err != nil {
				return nil, fmt.Errorf("answers[%d].date_value: %w", i, err)
			}
			in.DateValue = &d
		}
		out = append(out, in)
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// ClientIP returns the first X-Forwarded-For entry, else X-Real-IP, else "unknown".
func ClientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(c.GetHeader("X-Real-IP")); real != "" {
		return real
	}
	return "unknown"
}

// Handler handles response HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a response handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Submit handles POST /responses/submit.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if len(req.Answers) == 0 {
		response.Error(c, ErrNoAnswers)
		return
	}
	answers, err := req.Inputs()
	if err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	resp, err := h.svc.Submit(c.Request.Context(), Submission{
		SurveyID:    req.SurveyID,
		Answers:     answers,
		IsAnonymous: req.IsAnonymous,
		IPAddress:   ClientIP(c),
		UserAgent:   c.Request.UserAgent(),
	}, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

func surveyParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("surveyId"))
	if err != nil {
		response.BadRequest(c, "invalid survey id")
		return uuid.Nil, false
	}
	return id, true
}

// ListBySurvey handles GET /responses/survey/:surveyId.
func (h *Handler) ListBySurvey(c *gin.Context) {
	surveyID, ok := surveyParam(c)
	if !ok {
		return
	}
	list, err := h.svc.ListBySurvey(c.Request.Context(), surveyID, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Count handles GET /responses/survey/:surveyId/count.
func (h *Handler) Count(c *gin.Context) {
	surveyID, ok := surveyParam(c)
	if !ok {
		return
	}
	n, err := h.svc.Count(c.Request.Context(), surveyID, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"count": n})
}

// HasResponded handles GET /responses/survey/:surveyId/has-responded. Anonymous callers get false.
func (h *Handler) HasResponded(c *gin.Context) {
	surveyID, ok := surveyParam(c)
	if !ok {
		return
	}
	ok, err := h.svc.HasResponded(c.Request.Context(), surveyID, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"has_responded": ok})
}

// GetByID handles GET /responses/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid response id")
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), id, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, resp)
}

// ListAnswersByQuestion handles GET /responses/question/:questionId/answers.
func (h *Handler) ListAnswersByQuestion(c *gin.Context) {
	questionID, err := uuid.Parse(c.Param("questionId"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	list, err := h.svc.ListAnswersByQuestion(c.Request.Context(), questionID, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
