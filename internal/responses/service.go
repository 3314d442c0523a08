package responses

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/apperr"
)

var (
	ErrResponseNotFound = apperr.New(apperr.KindNotFound, "response_not_found", "Response not found")
	ErrQuestionNotFound = apperr.New(apperr.KindNotFound, "question_not_found", "Question not found")
	ErrNoAnswers        = apperr.New(apperr.KindInvalid, "no_answers", "At least one answer is required")
)

// SurveyAccess is the ownership check response read paths depend on.
type SurveyAccess interface {
	AssertOwnership(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (*models.Survey, error)
}

// Notifier receives every committed submission. Failures are its own concern and never fail the submission.
type Notifier interface {
	ResponseSubmitted(ctx context.Context, receipt *Receipt)
}

// Submission is one response as received from a respondent.
type Submission struct {
	SurveyID    uuid.UUID
	Answers     []AnswerInput
	IsAnonymous bool
	IPAddress   string
	UserAgent   string

	// Set when redeeming a survey token; Claim runs inside the submission transaction.
	TokenID *uuid.UUID
	Claim   ClaimFunc
}

// Service runs the admission gate and the owner-scoped read paths.
type Service struct {
	store    Store
	surveys  SurveyAccess
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a response service. notifier may be nil.
func NewService(store Store, surveys SurveyAccess, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, surveys: surveys, notifier: notifier, logger: logger, now: time.Now}
}

// Submit admits and stores one response. identity may be nil for anonymous callers.
func (s *Service) Submit(ctx context.Context, sub Submission, identity *models.Identity) (*models.SurveyResponse, error) {
	receipt, err := s.store.Submit(ctx, SubmitParams{
		SurveyID:    sub.SurveyID,
		Identity:    identity,
		IsAnonymous: sub.IsAnonymous,
		IPAddress:   sub.IPAddress,
		UserAgent:   sub.UserAgent,
		Answers:     sub.Answers,
		TokenID:     sub.TokenID,
		Claim:       sub.Claim,
		Now:         s.now(),
	})
	if err != nil {
		return nil, err
	}
	resp := receipt.Response
	s.logger.Info("response submitted",
		zap.String("survey_id", resp.SurveyID.String()),
		zap.String("response_id", resp.ID.String()),
		zap.Bool("anonymous", resp.IsAnonymous),
		zap.Int("answers", len(resp.Answers)),
		zap.Int("response_count", receipt.ResponseCount),
	)
	if s.notifier != nil {
		s.notifier.ResponseSubmitted(ctx, receipt)
	}
	return resp, nil
}

// ListBySurvey returns the survey's responses, newest first. Owner only.
func (s *Service) ListBySurvey(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) ([]*models.SurveyResponse, error) {
	if _, err := s.surveys.AssertOwnership(ctx, surveyID, identity); err != nil {
		return nil, err
	}
	return s.store.ListBySurvey(ctx, surveyID)
}

// Get returns one response when identity owns its survey.
func (s *Service) Get(ctx context.Context, id uuid.UUID, identity *models.Identity) (*models.SurveyResponse, error) {
	if identity == nil {
		return nil, apperr.ErrUnauthorized
	}
	resp, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrResponseNotFound
	}
	if _, err := s.surveys.AssertOwnership(ctx, resp.SurveyID, identity); err != nil {
		return nil, err
	}
	return resp, nil
}

// Count returns the number of responses to a survey. Owner only.
func (s *Service) Count(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (int, error) {
	if _, err := s.surveys.AssertOwnership(ctx, surveyID, identity); err != nil {
		return 0, err
	}
	return s.store.CountBySurvey(ctx, surveyID)
}

// ListAnswersByQuestion returns every answer to a question, newest first. Requires ownership of its survey.
func (s *Service) ListAnswersByQuestion(ctx context.Context, questionID uuid.UUID, identity *models.Identity) ([]*models.ResponseAnswer, error) {
	if identity == nil {
		return nil, apperr.ErrUnauthorized
	}
	surveyID, err := s.store.SurveyIDForQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if surveyID == nil {
		return nil, ErrQuestionNotFound
	}
	if _, err := s.surveys.AssertOwnership(ctx, *surveyID, identity); err != nil {
		return nil, err
	}
	return s.store.ListAnswersByQuestion(ctx, questionID)
}

// HasResponded reports whether identity already responded to the survey. An absent identity reads as
// false; store failures are returned.
func (s *Service) HasResponded(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (bool, error) {
	if identity == nil {
		return false, nil
	}
	ok, err := s.store.HasResponded(ctx, surveyID, identity.UserID)
	if err != nil {
		return false, fmt.Errorf("has responded: %w", err)
	}
	return ok, nil
}
