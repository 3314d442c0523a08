package responses

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquiro/backend/internal/middleware"
	"github.com/inquiro/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(svc *Service) *gin.Engine {
	h := NewHandler(svc)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		switch c.GetHeader("X-Test-As") {
		case "owner":
			c.Set(middleware.ContextUserID, owner.UserID)
			c.Set(middleware.ContextUserRole, string(owner.Role))
		case "responder":
			c.Set(middleware.ContextUserID, responder.UserID)
			c.Set(middleware.ContextUserRole, string(responder.Role))
		}
		c.Next()
	})
	r.POST("/responses/submit", h.Submit)
	r.GET("/responses/survey/:surveyId", h.ListBySurvey)
	r.GET("/responses/survey/:surveyId/count", h.Count)
	r.GET("/responses/survey/:surveyId/has-responded", h.HasResponded)
	r.GET("/responses/question/:questionId/answers", h.ListAnswersByQuestion)
	r.GET("/responses/:id", h.GetByID)
	return r
}

func do(r http.Handler, method, path, body, as string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("X-Test-As", as)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		headers map[string]string
		want    string
	}{
		{map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "203.0.113.7"},
		{map[string]string{"X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{map[string]string{"X-Forwarded-For": " , 10.0.0.1", "X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{map[string]string{}, "unknown"},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		for k, v := range tc.headers {
			c.Request.Header.Set(k, v)
		}
		assert.Equal(t, tc.want, ClientIP(c))
	}
}

func TestHandlerSubmit(t *testing.T) {
	s := publishedSurvey()
	svc, store, _ := setup(s)
	r := newTestRouter(svc)

	body := fmt.Sprintf(`{"survey_id":%q,"answers":[{"question_id":%q,"text_value":"Ada"},{"question_id":%q,"date_value":"2026-02-01"}]}`,
		s.ID, s.Questions[0].ID, s.Questions[1].ID)
	w := do(r, http.MethodPost, "/responses/submit", body, "", "X-Forwarded-For", "203.0.113.7", "User-Agent", "test-agent")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got struct {
		Data models.SurveyResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Data.IsAnonymous)
	assert.Equal(t, "203.0.113.7", got.Data.IPAddress)
	require.Len(t, store.responses, 1)
	assert.Equal(t, "test-agent", store.responses[0].UserAgent)
	require.NotNil(t, store.responses[0].Answers[1].DateValue)
	assert.Equal(t, 2026, store.responses[0].Answers[1].DateValue.Year())

	w = do(r, http.MethodPost, "/responses/submit", fmt.Sprintf(`{"survey_id":%q,"answers":[{"question_id":%q,"date_value":"yesterday"}]}`, s.ID, s.Questions[0].ID), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/responses/submit", `{"answers":[]}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/responses/submit", fmt.Sprintf(`{"survey_id":%q,"answers":[{"question_id":%q,"selected_option_id":%q}]}`,
		s.ID, s.Questions[1].ID, s.Questions[1].Options[0].ID), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `Required question \"Name\" must be answered`)
}

func TestHandlerSubmitRequiresAnAnswer(t *testing.T) {
	s := publishedSurvey()
	s.Questions[0].IsRequired = false
	svc, store, _ := setup(s)
	r := newTestRouter(svc)

	for _, body := range []string{
		fmt.Sprintf(`{"survey_id":%q,"answers":[]}`, s.ID),
		fmt.Sprintf(`{"survey_id":%q}`, s.ID),
	} {
		w := do(r, http.MethodPost, "/responses/submit", body, "responder")
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), "At least one answer is required")
	}
	assert.Empty(t, store.responses)
}

func TestHandlerSubmitStatusCodes(t *testing.T) {
	s := publishedSurvey()
	s.AllowAnonymous = false
	svc, _, _ := setup(s)
	r := newTestRouter(svc)
	body := fmt.Sprintf(`{"survey_id":%q,"answers":[{"question_id":%q,"text_value":"x"}]}`, s.ID, s.Questions[0].ID)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/responses/submit", body, "").Code)
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/responses/submit", body, "responder").Code)

	s.Status = models.SurveyStatusClosed
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/responses/submit", body, "responder").Code)
}

func TestHandlerReadRoutes(t *testing.T) {
	s := publishedSurvey()
	svc, store, _ := setup(s)
	r := newTestRouter(svc)
	body := fmt.Sprintf(`{"survey_id":%q,"answers":[{"question_id":%q,"text_value":"x"}]}`, s.ID, s.Questions[0].ID)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/responses/submit", body, "responder").Code)

	w := do(r, http.MethodGet, "/responses/survey/"+s.ID.String()+"/has-responded", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"has_responded":false}}`, w.Body.String())

	w = do(r, http.MethodGet, "/responses/survey/"+s.ID.String()+"/has-responded", "", "responder")
	assert.JSONEq(t, `{"success":true,"data":{"has_responded":true}}`, w.Body.String())

	w = do(r, http.MethodGet, "/responses/survey/"+s.ID.String()+"/count", "", "owner")
	assert.JSONEq(t, `{"success":true,"data":{"count":1}}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/responses/survey/"+s.ID.String(), "", "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/responses/survey/"+s.ID.String(), "", "responder").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/responses/survey/"+s.ID.String(), "", "owner").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/responses/survey/nope", "", "owner").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/responses/question/"+s.Questions[0].ID.String()+"/answers", "", "owner").Code)

	store.failHas = true
	w = do(r, http.MethodGet, "/responses/survey/"+s.ID.String()+"/has-responded", "", "responder")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal server error"}`, w.Body.String())
	w = do(r, http.MethodGet, "/responses/survey/"+s.ID.String()+"/has-responded", "", "")
	assert.JSONEq(t, `{"success":true,"data":{"has_responded":false}}`, w.Body.String())
}
