package responses_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/internal/responses"
	"github.com/inquiro/backend/pkg/database"
)

// testPool connects to INQUIRO_TEST_DATABASE_URL and applies migrations, or skips.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("INQUIRO_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("INQUIRO_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool))
	return pool
}

// seedSurvey creates a creator and a published anonymous-friendly survey with one required text question.
func seedSurvey(t *testing.T, pool *pgxpool.Pool, maxResponses int) (surveyID, questionID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	var creator uuid.UUID
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO users (email, password_hash, name, role)
		VALUES ($1, 'x', 'Creator', 'CREATOR') RETURNING id`, uuid.NewString()+"@example.com").Scan(&creator))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO surveys (title, status, is_public, allow_anonymous, max_responses, creator_id)
		VALUES ('Race', 'PUBLISHED', TRUE, TRUE, $1, $2) RETURNING id`, maxResponses, creator).Scan(&surveyID))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO questions (survey_id, text, type, is_required, sort_order)
		VALUES ($1, 'Why?', 'TEXT', TRUE, 1) RETURNING id`, surveyID).Scan(&questionID))
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, creator)
	})
	return surveyID, questionID
}

func TestSubmitNeverExceedsResponseCap(t *testing.T) {
	pool := testPool(t)
	repo := responses.NewRepository(pool)
	const limit, callers = 3, 20
	surveyID, questionID := seedSurvey(t, pool, limit)
	text := "because"

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, rejected := 0, 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Submit(context.Background(), responses.SubmitParams{
				SurveyID:    surveyID,
				IsAnonymous: true,
				IPAddress:   "127.0.0.1",
				Answers:     []responses.AnswerInput{{QuestionID: questionID, TextValue: &text}},
				Now:         time.Now(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, responses.ErrResponseLimitReached):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, accepted)
	assert.Equal(t, callers-limit, rejected)
	n, err := repo.CountBySurvey(context.Background(), surveyID)
	require.NoError(t, err)
	assert.Equal(t, limit, n)
}

func TestSubmitPersistsAnswersAndHidesAnonymousRespondent(t *testing.T) {
	pool := testPool(t)
	repo := responses.NewRepository(pool)
	surveyID, questionID := seedSurvey(t, pool, 10)
	ctx := context.Background()

	var respondent uuid.UUID
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO users (email, password_hash, name, role)
		VALUES ($1, 'x', 'Resp', 'RESPONDENT') RETURNING id`, uuid.NewString()+"@example.com").Scan(&respondent))
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, respondent) })

	text := "hidden"
	receipt, err := repo.Submit(ctx, responses.SubmitParams{
		SurveyID:    surveyID,
		Identity:    &models.Identity{UserID: respondent, Role: models.RoleRespondent},
		IsAnonymous: true,
		Answers:     []responses.AnswerInput{{QuestionID: questionID, TextValue: &text}},
		Now:         time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.ResponseCount)

	got, err := repo.GetByID(ctx, receipt.Response.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsAnonymous)
	assert.Nil(t, got.RespondentID)
	assert.Nil(t, got.Respondent)
	require.Len(t, got.Answers, 1)
	assert.Equal(t, "hidden", *got.Answers[0].TextValue)

	has, err := repo.HasResponded(ctx, surveyID, respondent)
	require.NoError(t, err)
	assert.True(t, has)
}
