package surveys

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/apperr"
)

var (
	ErrSurveyNotFound   = apperr.New(apperr.KindNotFound, "survey_not_found", "Survey not found")
	ErrSurveyNotActive  = apperr.New(apperr.KindNotFound, "survey_not_active", "Survey not found or not active")
	ErrNoQuestions      = apperr.New(apperr.KindInvalid, "no_questions", "Cannot publish survey without questions")
	ErrPublishViaUpdate = apperr.New(apperr.KindInvalid, "publish_via_update", "Use publish to publish a survey")
	ErrTitleRequired    = apperr.New(apperr.KindInvalid, "title_required", "Title is required")
	ErrInvalidWindow    = apperr.New(apperr.KindInvalid, "invalid_window", "End date must be after start date")
	ErrInvalidStatus    = apperr.New(apperr.KindInvalid, "invalid_status", "Status must be DRAFT or CLOSED")
	ErrInvalidMaxResp   = apperr.New(apperr.KindInvalid, "invalid_max_responses", "Max responses must be at least 1")
)

// CreateInput is the data for a new survey. Status defaults to DRAFT.
type CreateInput struct {
	Title          string
	Description    *string
	Status         models.SurveyStatus
	IsPublic       bool
	AllowAnonymous bool
	MaxResponses   *int
	StartDate      *time.Time
	EndDate        *time.Time
}

// Patch is a partial survey update. Nil scalar pointers leave a field unchanged; the nullable
// columns use Optional so an explicit null clears them.
type Patch struct {
	Title          *string
	Description    Optional[string]
	Status         *models.SurveyStatus
	IsPublic       *bool
	AllowAnonymous *bool
	MaxResponses   Optional[int]
	StartDate      Optional[time.Time]
	EndDate        Optional[time.Time]
}

// Service applies visibility and ownership rules on top of a Store.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a survey service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// AssertOwnership is the single ownership predicate: it loads the survey and fails unless identity created it.
func (s *Service) AssertOwnership(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (*models.Survey, error) {
	if identity == nil {
		return nil, apperr.ErrUnauthorized
	}
	survey, err := s.store.GetByID(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if survey == nil {
		return nil, ErrSurveyNotFound
	}
	if survey.CreatorID != identity.UserID {
		return nil, apperr.ErrNotOwner
	}
	return survey, nil
}

// ListPublic returns published, public surveys currently inside their availability window.
func (s *Service) ListPublic(ctx context.Context) ([]*models.Survey, error) {
	return s.store.ListPublic(ctx, s.now())
}

// ListByOwner returns all surveys created by identity.
func (s *Service) ListByOwner(ctx context.Context, identity *models.Identity) ([]*models.Survey, error) {
	if err := requireCreator(identity); err != nil {
		return nil, err
	}
	return s.store.ListByCreator(ctx, identity.UserID)
}

// CountByOwner returns how many surveys identity has created.
func (s *Service) CountByOwner(ctx context.Context, identity *models.Identity) (int, error) {
	if err := requireCreator(identity); err != nil {
		return 0, err
	}
	return s.store.CountByCreator(ctx, identity.UserID)
}

// Get returns a survey with its questions. Non-owners may read only published surveys.
func (s *Service) Get(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (*models.Survey, error) {
	if identity == nil {
		return nil, apperr.ErrUnauthorized
	}
	survey, err := s.store.GetWithQuestions(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if survey == nil {
		return nil, ErrSurveyNotFound
	}
	if survey.CreatorID != identity.UserID && survey.Status != models.SurveyStatusPublished {
		return nil, apperr.ErrAccessDenied
	}
	return survey, nil
}

// GetActive returns a published survey inside its availability window, ignoring ownership.
func (s *Service) GetActive(ctx context.Context, surveyID uuid.UUID) (*models.Survey, error) {
	survey, err := s.store.GetWithQuestions(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if survey == nil || survey.Status != models.SurveyStatusPublished || !survey.InWindow(s.now()) {
		return nil, ErrSurveyNotActive
	}
	return survey, nil
}

// Load returns a survey with its questions without any visibility rule. Callers must already have
// authorized access some other way, e.g. a survey token.
func (s *Service) Load(ctx context.Context, surveyID uuid.UUID) (*models.Survey, error) {
	survey, err := s.store.GetWithQuestions(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if survey == nil {
		return nil, ErrSurveyNotFound
	}
	return survey, nil
}

// Create inserts a survey owned by identity.
func (s *Service) Create(ctx context.Context, in CreateInput, identity *models.Identity) (*models.Survey, error) {
	if err := requireCreator(identity); err != nil {
		return nil, err
	}
	f := Fields{
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Status:         in.Status,
		IsPublic:       in.IsPublic,
		AllowAnonymous: in.AllowAnonymous,
		MaxResponses:   in.MaxResponses,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
	}
	if f.Status == "" {
		f.Status = models.SurveyStatusDraft
	}
	if f.Status == models.SurveyStatusPublished {
		return nil, ErrPublishViaUpdate
	}
	if err := validateFields(f); err != nil {
		return nil, err
	}
	survey, err := s.store.Create(ctx, identity.UserID, f)
	if err != nil {
		return nil, err
	}
	s.logger.Info("survey created", zap.String("survey_id", survey.ID.String()), zap.String("creator_id", identity.UserID.String()))
	return survey, nil
}

// Update applies a partial update. Publishing must go through Publish.
func (s *Service) Update(ctx context.Context, surveyID uuid.UUID, patch Patch, identity *models.Identity) (*models.Survey, error) {
	current, err := s.AssertOwnership(ctx, surveyID, identity)
	if err != nil {
		return nil, err
	}
	f := Fields{
		Title:          current.Title,
		Description:    current.Description,
		Status:         current.Status,
		IsPublic:       current.IsPublic,
		AllowAnonymous: current.AllowAnonymous,
		MaxResponses:   current.MaxResponses,
		StartDate:      current.StartDate,
		EndDate:        current.EndDate,
	}
	if patch.Title != nil {
		f.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Status != nil {
		switch *patch.Status {
		case models.SurveyStatusPublished:
			return nil, ErrPublishViaUpdate
		case models.SurveyStatusDraft, models.SurveyStatusClosed:
			f.Status = *patch.Status
		default:
			return nil, ErrInvalidStatus
		}
	}
	if patch.IsPublic != nil {
		f.IsPublic = *patch.IsPublic
	}
	if patch.AllowAnonymous != nil {
		f.AllowAnonymous = *patch.AllowAnonymous
	}
	patch.Description.apply(&f.Description)
	patch.MaxResponses.apply(&f.MaxResponses)
	patch.StartDate.apply(&f.StartDate)
	patch.EndDate.apply(&f.EndDate)
	if err := validateFields(f); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, surveyID, f)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrSurveyNotFound
	}
	return updated, nil
}

// Publish moves a survey to PUBLISHED. It fails when the survey has no questions.
func (s *Service) Publish(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (*models.Survey, error) {
	if _, err := s.AssertOwnership(ctx, surveyID, identity); err != nil {
		return nil, err
	}
	survey, err := s.store.Publish(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if survey == nil {
		return nil, ErrNoQuestions
	}
	s.logger.Info("survey published", zap.String("survey_id", surveyID.String()))
	return survey, nil
}

// Delete removes a survey and everything under it.
func (s *Service) Delete(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) error {
	if _, err := s.AssertOwnership(ctx, surveyID, identity); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, surveyID); err != nil {
		return err
	}
	s.logger.Info("survey deleted", zap.String("survey_id", surveyID.String()))
	return nil
}

func requireCreator(identity *models.Identity) error {
	if identity == nil {
		return apperr.ErrUnauthorized
	}
	if !identity.IsCreator() {
		return apperr.ErrCreatorOnly
	}
	return nil
}

func validateFields(f Fields) error {
	if f.Title == "" {
		return ErrTitleRequired
	}
	if f.MaxResponses != nil && *f.MaxResponses < 1 {
		return ErrInvalidMaxResp
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return ErrInvalidWindow
	}
	return nil
}
