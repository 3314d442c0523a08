package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/inquiro/backend/internal/models"
)

const (
	defaultQuestions = 5
	defaultAudience  = "general public"
)

const systemPrompt = `You design professional surveys. Reply with a single JSON object of the form
{"title": string, "description": string, "questions": [{"text": string, "description": string,
"type": one of TEXT, MULTIPLE_CHOICE, RADIO, CHECKBOX, RATING, DATE, EMAIL, NUMBER,
"is_required": boolean, "options": [{"text": string}]}]}. Only choice questions
(MULTIPLE_CHOICE, RADIO, CHECKBOX) carry options.`

// Completer returns a JSON completion for a prompt. *Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// GenerateInput describes the survey to draft.
type GenerateInput struct {
	Topic             string
	NumberOfQuestions int
	TargetAudience    string
	AdditionalContext string
}

// DraftOption is an option of a drafted choice question.
type DraftOption struct {
	Text string `json:"text"`
}

// DraftQuestion is one drafted question.
type DraftQuestion struct {
	Text        string              `json:"text"`
	Description string              `json:"description,omitempty"`
	Type        models.QuestionType `json:"type"`
	IsRequired  bool                `json:"is_required"`
	Options     []DraftOption       `json:"options,omitempty"`
}

// Draft is a generated survey. It is never persisted; the creator edits and saves it.
type Draft struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Questions   []DraftQuestion `json:"questions"`
}

// Service drafts surveys with a language model.
type Service struct {
	llm    Completer
	logger *zap.Logger
}

// NewService creates a drafting service.
func NewService(llm Completer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{llm: llm, logger: logger}
}

// Prompt renders the user prompt for in.
func Prompt(in GenerateInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a comprehensive survey about %q with %d questions for %s.\n\n", in.Topic, in.NumberOfQuestions, in.TargetAudience)
	b.WriteString("Requirements:\n")
	b.WriteString("- Generate a compelling title and description for the survey\n")
	fmt.Fprintf(&b, "- Create %d diverse, well-crafted questions\n", in.NumberOfQuestions)
	b.WriteString("- Use different question types appropriately\n")
	b.WriteString("- For choice-based questions (MULTIPLE_CHOICE, RADIO, CHECKBOX), provide 3-5 relevant options\n")
	b.WriteString("- Mix required and optional questions\n")
	b.WriteString("- Keep questions clear, unbiased and relevant to the topic, in a logical order\n\n")
	fmt.Fprintf(&b, "Topic: %s\nTarget Audience: %s\nNumber of Questions: %d\n", in.Topic, in.TargetAudience, in.NumberOfQuestions)
	if in.AdditionalContext != "" {
		fmt.Fprintf(&b, "Additional Context: %s\n", in.AdditionalContext)
	}
	return b.String()
}

// Generate drafts a survey. Defaults fill in a zero question count and an empty audience.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (*Draft, error) {
	if in.NumberOfQuestions == 0 {
		in.NumberOfQuestions = defaultQuestions
	}
	if strings.TrimSpace(in.TargetAudience) == "" {
		in.TargetAudience = defaultAudience
	}
	content, err := s.llm.Complete(ctx, systemPrompt, Prompt(in))
	if err != nil {
		s.logger.Warn("survey generation failed", zap.String("topic", in.Topic), zap.Error(err))
		return nil, err
	}
	var draft Draft
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		s.logger.Warn("survey generation returned invalid JSON", zap.String("topic", in.Topic), zap.Error(err))
		return nil, fmt.Errorf("%w: decode draft: %v", ErrUpstream, err)
	}
	return sanitize(&draft), nil
}

// sanitize drops questions with unknown types or empty text and strips options from non-choice questions.
func sanitize(d *Draft) *Draft {
	kept := make([]DraftQuestion, 0, len(d.Questions))
	for _, q := range d.Questions {
		q.Type = models.QuestionType(strings.ToUpper(strings.TrimSpace(string(q.Type))))
		if !q.Type.Valid() || strings.TrimSpace(q.Text) == "" {
			continue
		}
		if !q.Type.HasOptions() {
			q.Options = nil
		}
		kept = append(kept, q)
	}
	d.Questions = kept
	return d
}
