package tokens

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/internal/responses"
	"github.com/inquiro/backend/pkg/apperr"
	"github.com/inquiro/backend/pkg/database"
	"github.com/inquiro/backend/pkg/utils"
)

var (
	ErrInvalidToken   = apperr.New(apperr.KindNotFound, "invalid_token", "Invalid or inactive token")
	ErrTokenExpired   = apperr.New(apperr.KindGone, "token_expired", "Token has expired")
	ErrTokenExhausted = apperr.New(apperr.KindGone, "token_exhausted", "Token has reached maximum uses")
	ErrTokenNotFound  = apperr.New(apperr.KindNotFound, "token_not_found", "Token not found")
	ErrExpiryInPast   = apperr.New(apperr.KindInvalid, "token_expiry_past", "Token expiry must be in the future")
	ErrInvalidMaxUses = apperr.New(apperr.KindInvalid, "invalid_max_uses", "Max uses must be at least 1")
	ErrNoAnswers      = responses.ErrNoAnswers
)

// SurveyAccess is the survey surface tokens depend on.
type SurveyAccess interface {
	AssertOwnership(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (*models.Survey, error)
	Load(ctx context.Context, surveyID uuid.UUID) (*models.Survey, error)
}

// Submitter stores a response through the admission gate.
type Submitter interface {
	Submit(ctx context.Context, sub responses.Submission, identity *models.Identity) (*models.SurveyResponse, error)
}

// IssueInput holds the optional limits of a new token.
type IssueInput struct {
	ExpiresAt *time.Time
	MaxUses   *int
}

// Service issues, resolves and redeems survey tokens.
type Service struct {
	store     Store
	surveys   SurveyAccess
	responses Submitter
	logger    *zap.Logger
	now       func() time.Time
	generate  func() (string, error)
}

// NewService creates a token service.
func NewService(store Store, surveys SurveyAccess, submitter Submitter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		surveys:   surveys,
		responses: submitter,
		logger:    logger,
		now:       time.Now,
		generate:  utils.GenerateToken,
	}
}

// check applies the three redemption rules in order.
func check(t *models.SurveyToken, now time.Time) error {
	if t == nil || !t.IsActive {
		return ErrInvalidToken
	}
	if t.Expired(now) {
		return ErrTokenExpired
	}
	if t.Exhausted() {
		return ErrTokenExhausted
	}
	return nil
}

// Issue creates a new active token for a survey owned by identity.
func (s *Service) Issue(ctx context.Context, surveyID uuid.UUID, in IssueInput, identity *models.Identity) (*models.SurveyToken, error) {
	if _, err := s.surveys.AssertOwnership(ctx, surveyID, identity); err != nil {
		return nil, err
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return nil, ErrExpiryInPast
	}
	if in.MaxUses != nil && *in.MaxUses < 1 {
		return nil, ErrInvalidMaxUses
	}
	value, err := s.generate()
	if err != nil {
		return nil, err
	}
	t, err := s.store.Create(ctx, surveyID, value, in.ExpiresAt, in.MaxUses)
	if err != nil {
		return nil, err
	}
	s.logger.Info("survey token issued", zap.String("survey_id", surveyID.String()), zap.String("token_id", t.ID.String()))
	return t, nil
}

// Resolve validates a token and returns its survey with questions and options.
func (s *Service) Resolve(ctx context.Context, token string) (*models.Survey, error) {
	t, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := check(t, s.now()); err != nil {
		return nil, err
	}
	return s.surveys.Load(ctx, t.SurveyID)
}

// SubmitViaToken stores a response to the token's survey and records one use of the token in the
// same transaction. sub.SurveyID is ignored.
func (s *Service) SubmitViaToken(ctx context.Context, token string, sub responses.Submission, identity *models.Identity) (*models.SurveyResponse, error) {
	if len(sub.Answers) == 0 {
		return nil, ErrNoAnswers
	}
	t, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := check(t, now); err != nil {
		return nil, err
	}

	tokenID := t.ID
	sub.SurveyID = t.SurveyID
	sub.TokenID = &tokenID
	sub.Claim = func(ctx context.Context, db database.Querier) error {
		ok, err := s.store.Claim(ctx, db, tokenID, now)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		current, err := s.store.GetByID(ctx, tokenID)
		if err != nil {
			return err
		}
		if err := check(current, now); err != nil {
			return err
		}
		return ErrTokenExhausted
	}
	return s.responses.Submit(ctx, sub, identity)
}

// ListBySurvey returns the survey's tokens, newest first. Owner only.
func (s *Service) ListBySurvey(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) ([]*models.SurveyToken, error) {
	if _, err := s.surveys.AssertOwnership(ctx, surveyID, identity); err != nil {
		return nil, err
	}
	return s.store.ListBySurvey(ctx, surveyID)
}

// Deactivate disables a token of a survey owned by identity.
func (s *Service) Deactivate(ctx context.Context, tokenID uuid.UUID, identity *models.Identity) (*models.SurveyToken, error) {
	if identity == nil {
		return nil, apperr.ErrUnauthorized
	}
	t, err := s.store.GetByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTokenNotFound
	}
	if _, err := s.surveys.AssertOwnership(ctx, t.SurveyID, identity); err != nil {
		return nil, err
	}
	t, err = s.store.Deactivate(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTokenNotFound
	}
	return t, nil
}
