package surveys

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/apperr"
)

// memStore is an in-memory Store. Questions are attached directly to the survey for publish checks.
type memStore struct {
	mu      sync.Mutex
	surveys map[uuid.UUID]*models.Survey
	seq     int
}

func newMemStore() *memStore {
	return &memStore{surveys: make(map[uuid.UUID]*models.Survey)}
}

func (m *memStore) copyOf(s *models.Survey) *models.Survey {
	c := *s
	return &c
}

func (m *memStore) sorted(keep func(*models.Survey) bool) []*models.Survey {
	list := make([]*models.Survey, 0)
	for _, s := range m.surveys {
		if keep(s) {
			list = append(list, m.copyOf(s))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list
}

func (m *memStore) ListPublic(_ context.Context, now time.Time) ([]*models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(s *models.Survey) bool {
		return s.Status == models.SurveyStatusPublished && s.IsPublic && s.InWindow(now)
	}), nil
}

func (m *memStore) ListByCreator(_ context.Context, creatorID uuid.UUID) ([]*models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(s *models.Survey) bool { return s.CreatorID == creatorID }), nil
}

func (m *memStore) CountByCreator(ctx context.Context, creatorID uuid.UUID) (int, error) {
	list, _ := m.ListByCreator(ctx, creatorID)
	return len(list), nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[id]
	if !ok {
		return nil, nil
	}
	c := m.copyOf(s)
	c.Questions = nil
	return c, nil
}

func (m *memStore) GetWithQuestions(_ context.Context, id uuid.UUID) (*models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[id]
	if !ok {
		return nil, nil
	}
	return m.copyOf(s), nil
}

func (m *memStore) Create(_ context.Context, creatorID uuid.UUID, f Fields) (*models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	s := &models.Survey{ID: uuid.New(), CreatorID: creatorID, CreatedAt: time.Unix(int64(m.seq), 0)}
	applyFields(s, f)
	m.surveys[s.ID] = s
	return m.copyOf(s), nil
}

func (m *memStore) Update(_ context.Context, id uuid.UUID, f Fields) (*models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[id]
	if !ok {
		return nil, nil
	}
	applyFields(s, f)
	return m.copyOf(s), nil
}

func (m *memStore) Publish(_ context.Context, id uuid.UUID) (*models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[id]
	if !ok || len(s.Questions) == 0 {
		return nil, nil
	}
	s.Status = models.SurveyStatusPublished
	return m.copyOf(s), nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.surveys, id)
	return nil
}

func (m *memStore) addQuestion(surveyID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.surveys[surveyID]
	s.Questions = append(s.Questions, &models.Question{ID: uuid.New(), SurveyID: surveyID, Text: "Q", Type: models.QuestionTypeText})
}

func applyFields(s *models.Survey, f Fields) {
	s.Title, s.Description, s.Status = f.Title, f.Description, f.Status
	s.IsPublic, s.AllowAnonymous, s.MaxResponses = f.IsPublic, f.AllowAnonymous, f.MaxResponses
	s.StartDate, s.EndDate = f.StartDate, f.EndDate
}

var (
	now       = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	creator   = &models.Identity{UserID: uuid.New(), Role: models.RoleCreator}
	other     = &models.Identity{UserID: uuid.New(), Role: models.RoleCreator}
	responder = &models.Identity{UserID: uuid.New(), Role: models.RoleRespondent}
)

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	svc := NewService(store, nil)
	svc.now = func() time.Time { return now }
	return svc, store
}

func mustCreate(t *testing.T, svc *Service, in CreateInput) *models.Survey {
	t.Helper()
	if in.Title == "" {
		in.Title = "Customer feedback"
	}
	s, err := svc.Create(context.Background(), in, creator)
	require.NoError(t, err)
	return s
}

func TestCreateDefaultsToDraftAndRequiresCreator(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	s := mustCreate(t, svc, CreateInput{Title: "  Feedback  "})
	assert.Equal(t, models.SurveyStatusDraft, s.Status)
	assert.Equal(t, "Feedback", s.Title)
	assert.Equal(t, creator.UserID, s.CreatorID)

	_, err := svc.Create(ctx, CreateInput{Title: "x"}, nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.Create(ctx, CreateInput{Title: "x"}, responder)
	assert.ErrorIs(t, err, apperr.ErrCreatorOnly)
	_, err = svc.Create(ctx, CreateInput{Title: "   "}, creator)
	assert.ErrorIs(t, err, ErrTitleRequired)
	_, err = svc.Create(ctx, CreateInput{Title: "x", Status: models.SurveyStatusPublished}, creator)
	assert.ErrorIs(t, err, ErrPublishViaUpdate)
}

func TestCreateRejectsInvertedWindow(t *testing.T) {
	svc, _ := newTestService()
	start, end := now.Add(48*time.Hour), now.Add(24*time.Hour)
	_, err := svc.Create(context.Background(), CreateInput{Title: "x", StartDate: &start, EndDate: &end}, creator)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestListPublicExcludesUnpublishedAndOutOfWindow(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	tomorrow, yesterday := now.Add(24*time.Hour), now.Add(-24*time.Hour)

	draft := mustCreate(t, svc, CreateInput{IsPublic: true})
	closed := mustCreate(t, svc, CreateInput{IsPublic: true, Status: models.SurveyStatusClosed})
	private := mustCreate(t, svc, CreateInput{})
	future := mustCreate(t, svc, CreateInput{IsPublic: true, StartDate: &tomorrow})
	past := mustCreate(t, svc, CreateInput{IsPublic: true, EndDate: &yesterday})
	live := mustCreate(t, svc, CreateInput{IsPublic: true, StartDate: &yesterday, EndDate: &tomorrow})
	for _, s := range []*models.Survey{private, future, past, live} {
		store.addQuestion(s.ID)
		_, err := svc.Publish(ctx, s.ID, creator)
		require.NoError(t, err)
	}

	list, err := svc.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, live.ID, list[0].ID)
	for _, s := range list {
		assert.NotEqual(t, draft.ID, s.ID)
		assert.NotEqual(t, closed.ID, s.ID)
	}
}

func TestListByOwnerAndCount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	mustCreate(t, svc, CreateInput{})
	mustCreate(t, svc, CreateInput{Status: models.SurveyStatusClosed})

	list, err := svc.ListByOwner(ctx, creator)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := svc.CountByOwner(ctx, creator)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.CountByOwner(ctx, other)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = svc.ListByOwner(ctx, responder)
	assert.ErrorIs(t, err, apperr.ErrCreatorOnly)
	_, err = svc.CountByOwner(ctx, nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestGetVisibility(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	s := mustCreate(t, svc, CreateInput{})

	_, err := svc.Get(ctx, s.ID, creator)
	assert.NoError(t, err)

	_, err = svc.Get(ctx, s.ID, other)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)

	_, err = svc.Get(ctx, uuid.New(), creator)
	assert.ErrorIs(t, err, ErrSurveyNotFound)

	_, err = svc.Get(ctx, s.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	store.addQuestion(s.ID)
	_, err = svc.Publish(ctx, s.ID, creator)
	require.NoError(t, err)
	got, err := svc.Get(ctx, s.ID, responder)
	require.NoError(t, err)
	assert.Len(t, got.Questions, 1)
}

func TestGetActive(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	tomorrow := now.Add(24 * time.Hour)

	draft := mustCreate(t, svc, CreateInput{})
	_, err := svc.GetActive(ctx, draft.ID)
	assert.ErrorIs(t, err, ErrSurveyNotActive)

	future := mustCreate(t, svc, CreateInput{StartDate: &tomorrow})
	store.addQuestion(future.ID)
	_, err = svc.Publish(ctx, future.ID, creator)
	require.NoError(t, err)
	_, err = svc.GetActive(ctx, future.ID)
	assert.ErrorIs(t, err, ErrSurveyNotActive)

	svc.now = func() time.Time { return tomorrow.Add(time.Minute) }
	got, err := svc.GetActive(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, future.ID, got.ID)
}

func TestLoadIgnoresVisibility(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	draft := mustCreate(t, svc, CreateInput{})
	store.addQuestion(draft.ID)
	got, err := svc.Load(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SurveyStatusDraft, got.Status)
	assert.Len(t, got.Questions, 1)

	_, err = svc.Load(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrSurveyNotFound)
}

func TestPublishRequiresQuestions(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	s := mustCreate(t, svc, CreateInput{})

	_, err := svc.Publish(ctx, s.ID, creator)
	assert.ErrorIs(t, err, ErrNoQuestions)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = svc.Publish(ctx, s.ID, other)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)

	store.addQuestion(s.ID)
	published, err := svc.Publish(ctx, s.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, models.SurveyStatusPublished, published.Status)

	got, err := svc.Get(ctx, s.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, models.SurveyStatusPublished, got.Status)

	again := models.SurveyStatusPublished
	_, err = svc.Update(ctx, s.ID, Patch{Status: &again}, creator)
	assert.ErrorIs(t, err, ErrPublishViaUpdate, "already published surveys still refuse status=PUBLISHED")
}

func TestUpdatePartialAndStatusRules(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	limit := 10
	desc := "old"
	s := mustCreate(t, svc, CreateInput{Title: "Before", Description: &desc, MaxResponses: &limit})

	title := "After"
	updated, err := svc.Update(ctx, s.ID, Patch{Title: &title}, creator)
	require.NoError(t, err)
	assert.Equal(t, "After", updated.Title)
	require.NotNil(t, updated.MaxResponses)
	assert.Equal(t, 10, *updated.MaxResponses)
	require.NotNil(t, updated.Description)

	updated, err = svc.Update(ctx, s.ID, Patch{MaxResponses: Optional[int]{Set: true}, Description: Optional[string]{Set: true}}, creator)
	require.NoError(t, err)
	assert.Nil(t, updated.MaxResponses)
	assert.Nil(t, updated.Description)

	published := models.SurveyStatusPublished
	_, err = svc.Update(ctx, s.ID, Patch{Status: &published}, creator)
	assert.ErrorIs(t, err, ErrPublishViaUpdate)

	closed := models.SurveyStatusClosed
	updated, err = svc.Update(ctx, s.ID, Patch{Status: &closed}, creator)
	require.NoError(t, err)
	assert.Equal(t, models.SurveyStatusClosed, updated.Status)

	zero := 0
	_, err = svc.Update(ctx, s.ID, Patch{MaxResponses: Optional[int]{Set: true, Value: &zero}}, creator)
	assert.ErrorIs(t, err, ErrInvalidMaxResp)

	_, err = svc.Update(ctx, s.ID, Patch{Title: &title}, other)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)
}

func TestDeleteRequiresOwnership(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	s := mustCreate(t, svc, CreateInput{})

	assert.ErrorIs(t, svc.Delete(ctx, s.ID, other), apperr.ErrNotOwner)
	assert.ErrorIs(t, svc.Delete(ctx, s.ID, nil), apperr.ErrUnauthorized)
	require.NoError(t, svc.Delete(ctx, s.ID, creator))

	got, _ := store.GetByID(ctx, s.ID)
	assert.Nil(t, got)
	assert.ErrorIs(t, svc.Delete(ctx, s.ID, creator), ErrSurveyNotFound)
}

func TestStoreErrorsPropagate(t *testing.T) {
	boom := errors.New("connection reset")
	svc := NewService(failingStore{err: boom}, nil)
	_, err := svc.ListPublic(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = svc.AssertOwnership(context.Background(), uuid.New(), creator)
	assert.ErrorIs(t, err, boom)
}

type failingStore struct {
	Store
	err error
}

func (f failingStore) ListPublic(context.Context, time.Time) ([]*models.Survey, error) { return nil, f.err }
func (f failingStore) GetByID(context.Context, uuid.UUID) (*models.Survey, error)     { return nil, f.err }
