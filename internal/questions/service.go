package questions

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/apperr"
)

var (
	ErrQuestionNotFound   = apperr.New(apperr.KindNotFound, "question_not_found", "Question not found")
	ErrTextRequired       = apperr.New(apperr.KindInvalid, "question_text_required", "Question text is required")
	ErrInvalidType        = apperr.New(apperr.KindInvalid, "invalid_question_type", "Invalid question type")
	ErrOptionsNotAllowed  = apperr.New(apperr.KindInvalid, "options_not_allowed", "Options are only allowed for MULTIPLE_CHOICE, CHECKBOX and RADIO questions")
	ErrOptionTextRequired = apperr.New(apperr.KindInvalid, "option_text_required", "Option text is required")
)

// SurveyAccess is the survey visibility and ownership surface questions depend on.
type SurveyAccess interface {
	Get(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (*models.Survey, error)
	AssertOwnership(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (*models.Survey, error)
}

// UpdateInput is a question update. Nil scalars keep their current value; Options always replaces the
// full option set, so omitting it removes every option.
type UpdateInput struct {
	Text        *string
	Description *string
	Type        *models.QuestionType
	IsRequired  *bool
	Order       *int
	Options     []OptionInput
}

// Service applies ownership rules to question operations.
type Service struct {
	store   Store
	surveys SurveyAccess
	logger  *zap.Logger
}

// NewService creates a question service.
func NewService(store Store, surveys SurveyAccess, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, surveys: surveys, logger: logger}
}

// Add creates a question with its options under a survey owned by identity.
func (s *Service) Add(ctx context.Context, surveyID uuid.UUID, in Input, identity *models.Identity) (*models.Question, error) {
	if _, err := s.surveys.AssertOwnership(ctx, surveyID, identity); err != nil {
		return nil, err
	}
	in.Text = strings.TrimSpace(in.Text)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	q, err := s.store.Create(ctx, surveyID, in)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("question added", zap.String("survey_id", surveyID.String()), zap.String("question_id", q.ID.String()), zap.Int("options", len(q.Options)))
	return q, nil
}

// Update overwrites the question's scalars and replaces its option set.
func (s *Service) Update(ctx context.Context, questionID uuid.UUID, in UpdateInput, identity *models.Identity) (*models.Question, error) {
	current, err := s.owned(ctx, questionID, identity)
	if err != nil {
		return nil, err
	}
	next := Input{
		Text:        current.Text,
		Description: current.Description,
		Type:        current.Type,
		IsRequired:  current.IsRequired,
		Order:       in.Order,
		Options:     in.Options,
	}
	if in.Text != nil {
		next.Text = strings.TrimSpace(*in.Text)
	}
	if in.Description != nil {
		next.Description = in.Description
	}
	if in.Type != nil {
		next.Type = *in.Type
	}
	if in.IsRequired != nil {
		next.IsRequired = *in.IsRequired
	}
	if err := validateInput(next); err != nil {
		return nil, err
	}
	q, err := s.store.Replace(ctx, questionID, next)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, ErrQuestionNotFound
	}
	return q, nil
}

// Delete removes a question of a survey owned by identity.
func (s *Service) Delete(ctx context.Context, questionID uuid.UUID, identity *models.Identity) error {
	if _, err := s.owned(ctx, questionID, identity); err != nil {
		return err
	}
	return s.store.Delete(ctx, questionID)
}

// Get returns a question when its survey is visible to identity.
func (s *Service) Get(ctx context.Context, questionID uuid.UUID, identity *models.Identity) (*models.Question, error) {
	if identity == nil {
		return nil, apperr.ErrUnauthorized
	}
	q, err := s.store.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, ErrQuestionNotFound
	}
	if _, err := s.surveys.Get(ctx, q.SurveyID, identity); err != nil {
		return nil, err
	}
	return q, nil
}

// ListBySurvey returns the questions of a survey visible to identity, ordered by position.
func (s *Service) ListBySurvey(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) ([]*models.Question, error) {
	if _, err := s.surveys.Get(ctx, surveyID, identity); err != nil {
		return nil, err
	}
	return s.store.ListBySurvey(ctx, surveyID)
}

// AddOption appends an option to a choice question.
func (s *Service) AddOption(ctx context.Context, questionID uuid.UUID, text string, value *string, identity *models.Identity) (*models.QuestionOption, error) {
	q, err := s.owned(ctx, questionID, identity)
	if err != nil {
		return nil, err
	}
	if !q.Type.HasOptions() {
		return nil, ErrOptionsNotAllowed
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrOptionTextRequired
	}
	return s.store.AddOption(ctx, questionID, text, value)
}

// owned resolves a question and asserts identity owns its survey.
func (s *Service) owned(ctx context.Context, questionID uuid.UUID, identity *models.Identity) (*models.Question, error) {
	if identity == nil {
		return nil, apperr.ErrUnauthorized
	}
	q, err := s.store.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, ErrQuestionNotFound
	}
	if _, err := s.surveys.AssertOwnership(ctx, q.SurveyID, identity); err != nil {
		return nil, err
	}
	return q, nil
}

func validateInput(in Input) error {
	if in.Text == "" {
		return ErrTextRequired
	}
	if !in.Type.Valid() {
		return ErrInvalidType
	}
	if len(in.Options) > 0 && !in.Type.HasOptions() {
		return ErrOptionsNotAllowed
	}
	for _, o := range in.Options {
		if strings.TrimSpace(o.Text) == "" {
			return ErrOptionTextRequired
		}
	}
	return nil
}
