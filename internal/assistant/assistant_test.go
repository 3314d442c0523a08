package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquiro/backend/internal/models"
)

const draftJSON = `{"title":"Coffee habits","description":"How you drink coffee","questions":[
 {"text":"How many cups a day?","type":"NUMBER","is_required":true,"options":[{"text":"ignored"}]},
 {"text":"Favourite brew","type":"radio","is_required":false,"options":[{"text":"Espresso"},{"text":"Filter"}]},
 {"text":"Draw your mug","type":"SKETCH","is_required":false},
 {"text":"  ","type":"TEXT","is_required":false}
]}`

func completionServer(t *testing.T, status int, body string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func TestGenerateSanitizesDraft(t *testing.T) {
	var seen chatRequest
	srv := completionServer(t, http.StatusOK, completion(draftJSON), &seen)
	svc := NewService(NewClient(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "gpt-4o-mini"}, nil), nil)

	draft, err := svc.Generate(context.Background(), GenerateInput{Topic: "coffee"})
	require.NoError(t, err)
	assert.Equal(t, "Coffee habits", draft.Title)
	require.Len(t, draft.Questions, 2)
	assert.Equal(t, models.QuestionTypeNumber, draft.Questions[0].Type)
	assert.Nil(t, draft.Questions[0].Options)
	assert.Equal(t, models.QuestionTypeRadio, draft.Questions[1].Type)
	assert.Len(t, draft.Questions[1].Options, 2)

	assert.Equal(t, "gpt-4o-mini", seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Contains(t, seen.Messages[1].Content, "with 5 questions for general public")
	assert.Equal(t, "json_object", seen.ResponseFormat["type"])
}

func TestPromptIncludesContext(t *testing.T) {
	p := Prompt(GenerateInput{Topic: "remote work", NumberOfQuestions: 3, TargetAudience: "engineers", AdditionalContext: "EU only"})
	assert.Contains(t, p, `"remote work" with 3 questions for engineers`)
	assert.Contains(t, p, "Additional Context: EU only")
	assert.NotContains(t, Prompt(GenerateInput{Topic: "x", NumberOfQuestions: 1, TargetAudience: "y"}), "Additional Context")
}

func TestCompletionsURL(t *testing.T) {
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", completionsURL(""))
	assert.Equal(t, "http://llm.local/v1/chat/completions", completionsURL("http://llm.local/v1/"))
	assert.Equal(t, "http://llm.local/v1/chat/completions", completionsURL("http://llm.local/v1/chat/completions"))
	assert.Equal(t, "http://llm.local/v1/chat/completions", completionsURL("http://llm.local"))
}

func TestCompleteErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ClientConfig{}, nil).Complete(ctx, "s", "u")
	assert.ErrorIs(t, err, ErrNotConfigured)

	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, ErrQuotaExceeded},
		{"quota", http.StatusForbidden, `{"error":{"message":"no credit","code":"insufficient_quota"}}`, ErrQuotaExceeded},
		{"gateway timeout", http.StatusGatewayTimeout, ``, ErrTimeout},
		{"server error", http.StatusInternalServerError, `oops`, ErrUpstream},
		{"no choices", http.StatusOK, `{"choices":[]}`, ErrUpstream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := completionServer(t, tc.status, tc.body, nil)
			_, err := NewClient(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL}, nil).Complete(ctx, "s", "u")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCompleteTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	_, err := NewClient(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil).
		Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrTimeout)
}

type stubCompleter struct {
	content string
	err     error
}

func (s stubCompleter) Complete(context.Context, string, string) (string, error) {
	return s.content, s.err
}

func TestGenerateRejectsMalformedCompletion(t *testing.T) {
	_, err := NewService(stubCompleter{content: "not json"}, nil).Generate(context.Background(), GenerateInput{Topic: "x"})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestHandlerGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	post := func(llm Completer, body string) *httptest.ResponseRecorder {
		r := gin.New()
		r.POST("/ai/generate-survey", NewHandler(NewService(llm, nil)).Generate)
		req := httptest.NewRequest(http.MethodPost, "/ai/generate-survey", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	ok := stubCompleter{content: draftJSON}

	assert.Equal(t, http.StatusOK, post(ok, `{"topic":"coffee"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(ok, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(ok, `{"topic":"coffee","number_of_questions":21}`).Code)

	w := post(stubCompleter{err: ErrNotConfigured}, `{"topic":"coffee"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "AI service is not configured")
	assert.Equal(t, http.StatusTooManyRequests, post(stubCompleter{err: ErrQuotaExceeded}, `{"topic":"coffee"}`).Code)
	assert.Equal(t, http.StatusRequestTimeout, post(stubCompleter{err: ErrTimeout}, `{"topic":"coffee"}`).Code)

	w = post(stubCompleter{err: errors.Join(ErrUpstream, errors.New("boom"))}, `{"topic":"coffee"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to generate survey. Please try again later.")
}
