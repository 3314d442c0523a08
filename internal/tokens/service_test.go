package tokens

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
	"github.com/inquiro/backend/internal/responses"
	"github.com/inquiro/backend/pkg/apperr"
	"github.com/inquiro/backend/pkg/database"
)

type memStore struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*models.SurveyToken
	seq    int
}

func newMemStore() *memStore {
	return &memStore{tokens: make(map[uuid.UUID]*models.SurveyToken)}
}

func (m *memStore) Create(_ context.Context, surveyID uuid.UUID, token string, expiresAt *time.Time, maxUses *int) (*models.SurveyToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &models.SurveyToken{ID: uuid.New(), SurveyID: surveyID, Token: token, IsActive: true, ExpiresAt: expiresAt,
		MaxUses: maxUses, CreatedAt: time.Unix(int64(m.seq), 0)}
	m.tokens[t.ID] = t
	return t, nil
}

func (m *memStore) copyOf(t *models.SurveyToken) *models.SurveyToken {
	c := *t
	return &c
}

func (m *memStore) GetByToken(_ context.Context, token string) (*models.SurveyToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.Token == token {
			return m.copyOf(t), nil
		}
	}
	return nil, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.SurveyToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[id]; ok {
		return m.copyOf(t), nil
	}
	return nil, nil
}

func (m *memStore) ListBySurvey(_ context.Context, surveyID uuid.UUID) ([]*models.SurveyToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*models.SurveyToken, 0)
	for _, t := range m.tokens {
		if t.SurveyID == surveyID {
			list = append(list, m.copyOf(t))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (m *memStore) Deactivate(_ context.Context, id uuid.UUID) (*models.SurveyToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, nil
	}
	t.IsActive = false
	return m.copyOf(t), nil
}

func (m *memStore) Claim(_ context.Context, _ database.Querier, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || !t.IsActive || t.Exhausted() || t.Expired(now) {
		return false, nil
	}
	t.CurrentUses++
	return true, nil
}

type fakeSurveys struct {
	surveys map[uuid.UUID]*models.Survey
}

func (f fakeSurveys) AssertOwnership(_ context.Context, id uuid.UUID, identity *models.Identity) (*models.Survey, error) {
	if identity == nil {
		return nil, apperr.ErrUnauthorized
	}
	s, ok := f.surveys[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "survey_not_found", "Survey not found")
	}
	if s.CreatorID != identity.UserID {
		return nil, apperr.ErrNotOwner
	}
	return s, nil
}

func (f fakeSurveys) Load(_ context.Context, id uuid.UUID) (*models.Survey, error) {
	s, ok := f.surveys[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "survey_not_found", "Survey not found")
	}
	return s, nil
}

// lockingSubmitter stands in for the response store: one submission at a time, with Claim run
// before the response counts as stored.
type lockingSubmitter struct {
	mu     sync.Mutex
	stored []responses.Submission
}

func (l *lockingSubmitter) Submit(ctx context.Context, sub responses.Submission, _ *models.Identity) (*models.SurveyResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sub.Claim != nil {
		if err := sub.Claim(ctx, nil); err != nil {
			return nil, err
		}
	}
	l.stored = append(l.stored, sub)
	return &models.SurveyResponse{ID: uuid.New(), SurveyID: sub.SurveyID, TokenID: sub.TokenID}, nil
}

var (
	owner    = &models.Identity{UserID: uuid.New(), Role: models.RoleCreator}
	stranger = &models.Identity{UserID: uuid.New(), Role: models.RoleCreator}
	now      = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
)

func setup() (*Service, *memStore, *lockingSubmitter, *models.Survey) {
	survey := &models.Survey{ID: uuid.New(), CreatorID: owner.UserID, Status: models.SurveyStatusPublished}
	store := newMemStore()
	sub := &lockingSubmitter{}
	svc := NewService(store, fakeSurveys{surveys: map[uuid.UUID]*models.Survey{survey.ID: survey}}, sub, nil)
	svc.now = func() time.Time { return now }
	return svc, store, sub, survey
}

func oneAnswer() responses.Submission {
	text := "yes"
	return responses.Submission{Answers: []responses.AnswerInput{{QuestionID: uuid.New(), TextValue: &text}}}
}

func TestIssue(t *testing.T) {
	svc, _, _, survey := setup()
	ctx := context.Background()

	tok, err := svc.Issue(ctx, survey.ID, IssueInput{}, owner)
	require.NoError(t, err)
	assert.True(t, tok.IsActive)
	assert.Zero(t, tok.CurrentUses)
	assert.Len(t, tok.Token, 43)

	other, err := svc.Issue(ctx, survey.ID, IssueInput{}, owner)
	require.NoError(t, err)
	assert.NotEqual(t, tok.Token, other.Token)

	_, err = svc.Issue(ctx, survey.ID, IssueInput{}, stranger)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)
	_, err = svc.Issue(ctx, survey.ID, IssueInput{}, nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	past := now.Add(-time.Second)
	_, err = svc.Issue(ctx, survey.ID, IssueInput{ExpiresAt: &past}, owner)
	assert.ErrorIs(t, err, ErrExpiryInPast)
	zero := 0
	_, err = svc.Issue(ctx, survey.ID, IssueInput{MaxUses: &zero}, owner)
	assert.ErrorIs(t, err, ErrInvalidMaxUses)

	svc.generate = func() (string, error) { return "", errors.New("entropy exhausted") }
	_, err = svc.Issue(ctx, survey.ID, IssueInput{}, owner)
	assert.Error(t, err)
}

func TestResolveChecksInOrder(t *testing.T) {
	svc, store, _, survey := setup()
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, ErrInvalidToken)

	soon := now.Add(time.Hour)
	one := 1
	tok, err := svc.Issue(ctx, survey.ID, IssueInput{ExpiresAt: &soon, MaxUses: &one}, owner)
	require.NoError(t, err)

	got, err := svc.Resolve(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, survey.ID, got.ID)

	store.tokens[tok.ID].CurrentUses = 1
	_, err = svc.Resolve(ctx, tok.Token)
	assert.ErrorIs(t, err, ErrTokenExhausted)

	svc.now = func() time.Time { return soon.Add(time.Minute) }
	_, err = svc.Resolve(ctx, tok.Token)
	assert.ErrorIs(t, err, ErrTokenExpired, "expiry is checked before the use cap")

	store.tokens[tok.ID].IsActive = false
	_, err = svc.Resolve(ctx, tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSubmitViaTokenLinksAndCounts(t *testing.T) {
	svc, store, sub, survey := setup()
	ctx := context.Background()

	tok, err := svc.Issue(ctx, survey.ID, IssueInput{}, owner)
	require.NoError(t, err)

	wrong := oneAnswer()
	wrong.SurveyID = uuid.New()
	resp, err := svc.SubmitViaToken(ctx, tok.Token, wrong, nil)
	require.NoError(t, err)
	assert.Equal(t, survey.ID, resp.SurveyID)
	require.NotNil(t, resp.TokenID)
	assert.Equal(t, tok.ID, *resp.TokenID)
	assert.Equal(t, 1, store.tokens[tok.ID].CurrentUses)
	require.Len(t, sub.stored, 1)

	_, err = svc.SubmitViaToken(ctx, tok.Token, responses.Submission{}, nil)
	assert.ErrorIs(t, err, ErrNoAnswers)
	_, err = svc.SubmitViaToken(ctx, "nope", oneAnswer(), nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSubmitViaTokenFailedSubmissionDoesNotCount(t *testing.T) {
	svc, store, _, survey := setup()
	ctx := context.Background()
	limit := 1
	tok, err := svc.Issue(ctx, survey.ID, IssueInput{MaxUses: &limit}, owner)
	require.NoError(t, err)

	refused := responses.ErrResponseLimitReached
	svc.responses = submitterFunc(func(context.Context, responses.Submission, *models.Identity) (*models.SurveyResponse, error) {
		return nil, refused
	})
	_, err = svc.SubmitViaToken(ctx, tok.Token, oneAnswer(), nil)
	assert.ErrorIs(t, err, refused)
	assert.Zero(t, store.tokens[tok.ID].CurrentUses)
}

type submitterFunc func(context.Context, responses.Submission, *models.Identity) (*models.SurveyResponse, error)

func (f submitterFunc) Submit(ctx context.Context, sub responses.Submission, identity *models.Identity) (*models.SurveyResponse, error) {
	return f(ctx, sub, identity)
}

func TestConcurrentRedemptionOfSingleUseToken(t *testing.T) {
	svc, store, sub, survey := setup()
	ctx := context.Background()
	limit := 1
	tok, err := svc.Issue(ctx, survey.ID, IssueInput{MaxUses: &limit}, owner)
	require.NoError(t, err)

	const callers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		exhausted int
		start     = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.SubmitViaToken(ctx, tok.Token, oneAnswer(), nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrTokenExhausted):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, exhausted)
	assert.Equal(t, 1, store.tokens[tok.ID].CurrentUses)
	assert.Len(t, sub.stored, 1)
}

func TestClaimFailureReportsExpiry(t *testing.T) {
	svc, store, _, survey := setup()
	ctx := context.Background()
	soon := now.Add(time.Minute)
	tok, err := svc.Issue(ctx, survey.ID, IssueInput{ExpiresAt: &soon}, owner)
	require.NoError(t, err)

	// The token expires between the pre-check and the claim.
	svc.responses = submitterFunc(func(ctx context.Context, s responses.Submission, _ *models.Identity) (*models.SurveyResponse, error) {
		store.mu.Lock()
		past := now.Add(-time.Minute)
		store.tokens[tok.ID].ExpiresAt = &past
		store.mu.Unlock()
		return nil, s.Claim(ctx, nil)
	})
	_, err = svc.SubmitViaToken(ctx, tok.Token, oneAnswer(), nil)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestListAndDeactivate(t *testing.T) {
	svc, _, _, survey := setup()
	ctx := context.Background()

	first, err := svc.Issue(ctx, survey.ID, IssueInput{}, owner)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, survey.ID, IssueInput{}, owner)
	require.NoError(t, err)

	list, err := svc.ListBySurvey(ctx, survey.ID, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	_, err = svc.ListBySurvey(ctx, survey.ID, stranger)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)

	_, err = svc.Deactivate(ctx, first.ID, stranger)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)
	_, err = svc.Deactivate(ctx, uuid.New(), owner)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, err = svc.Deactivate(ctx, first.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	off, err := svc.Deactivate(ctx, first.ID, owner)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
	_, err = svc.SubmitViaToken(ctx, first.Token, oneAnswer(), nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
