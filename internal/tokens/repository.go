package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/database"
)

// Store is the survey token persistence used by Service. Lookups return nil, nil when absent.
type Store interface {
	Create(ctx context.Context, surveyID uuid.UUID, token string, expiresAt *time.Time, maxUses *int) (*models.SurveyToken, error)
	GetByToken(ctx context.Context, token string) (*models.SurveyToken, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.SurveyToken, error)
	ListBySurvey(ctx context.Context, surveyID uuid.UUID) ([]*models.SurveyToken, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*models.SurveyToken, error)
	// Claim records one use of the token if it is still active, unexpired and under its cap at now.
	// It runs on db, the caller's transaction, and reports false when the token no longer qualifies.
	Claim(ctx context.Context, db database.Querier, id uuid.UUID, now time.Time) (bool, error)
}

// Repository handles survey token persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a token repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const tokenColumns = `id, survey_id, token, is_active, expires_at, max_uses, current_uses, created_at, updated_at`

func scanToken(row pgx.Row) (*models.SurveyToken, error) {
	var t models.SurveyToken
	if err := row.Scan(&t.ID, &t.SurveyID, &t.Token, &t.IsActive, &t.ExpiresAt, &t.MaxUses, &t.CurrentUses,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts an active token with no uses.
func (r *Repository) Create(ctx context.Context, surveyID uuid.UUID, token string, expiresAt *time.Time, maxUses *int) (*models.SurveyToken, error) {
	const q = `INSERT INTO survey_tokens (survey_id, token, expires_at, max_uses)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + tokenColumns
	t, err := scanToken(r.pool.QueryRow(ctx, q, surveyID, token, expiresAt, maxUses))
	if err != nil {
		return nil, fmt.Errorf("insert token: %w", err)
	}
	return t, nil
}

func (r *Repository) getOne(ctx context.Context, where string, arg interface{}) (*models.SurveyToken, error) {
	t, err := scanToken(r.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM survey_tokens WHERE `+where, arg))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// GetByToken looks a token up by its opaque value, active or not.
func (r *Repository) GetByToken(ctx context.Context, token string) (*models.SurveyToken, error) {
	return r.getOne(ctx, `token = $1`, token)
}

// GetByID looks a token up by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.SurveyToken, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// ListBySurvey returns the survey's tokens, newest first.
func (r *Repository) ListBySurvey(ctx context.Context, surveyID uuid.UUID) ([]*models.SurveyToken, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tokenColumns+` FROM survey_tokens WHERE survey_id = $1 ORDER BY created_at DESC`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()
	list := make([]*models.SurveyToken, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Deactivate clears is_active. Returns nil when the token does not exist.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) (*models.SurveyToken, error) {
	const q = `UPDATE survey_tokens SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + tokenColumns
	t, err := scanToken(r.pool.QueryRow(ctx, q, id))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("deactivate token: %w", err)
	}
	return t, nil
}

// Claim is a single conditional increment, so two transactions redeeming the last use of a token
// cannot both succeed: the second waits on the row lock and then matches zero rows.
func (r *Repository) Claim(ctx context.Context, db database.Querier, id uuid.UUID, now time.Time) (bool, error) {
	if db == nil {
		db = r.pool
	}
	const q = `UPDATE survey_tokens SET current_uses = current_uses + 1, updated_at = NOW()
		WHERE id = $1 AND is_active
			AND (max_uses IS NULL OR current_uses < max_uses)
			AND (expires_at IS NULL OR expires_at >= $2)`
	tag, err := db.Exec(ctx, q, id, now)
	if err != nil {
		return false, fmt.Errorf("claim token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
