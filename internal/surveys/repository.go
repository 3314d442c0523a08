package surveys

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

// Fields are the mutable survey columns written by Create and Update.
type Fields struct {
	Title          string
	Description    *string
	Status         models.SurveyStatus
	IsPublic       bool
	AllowAnonymous bool
	MaxResponses   *int
	StartDate      *time.Time
	EndDate        *time.Time
}

// Store is the survey persistence used by Service. Lookups return nil, nil when the survey does not exist.
type Store interface {
	ListPublic(ctx context.Context, now time.Time) ([]*models.Survey, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]*models.Survey, error)
	CountByCreator(ctx context.Context, creatorID uuid.UUID) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Survey, error)
	GetWithQuestions(ctx context.Context, id uuid.UUID) (*models.Survey, error)
	Create(ctx context.Context, creatorID uuid.UUID, f Fields) (*models.Survey, error)
	Update(ctx context.Context, id uuid.UUID, f Fields) (*models.Survey, error)
	Publish(ctx context.Context, id uuid.UUID) (*models.Survey, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Repository handles survey persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a survey repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SurveyColumns selects a survey row aliased as s, including its response count.
const SurveyColumns = `s.id, s.title, s.description, s.status, s.is_public, s.allow_anonymous, s.max_responses,
	s.start_date, s.end_date, s.creator_id, s.created_at, s.updated_at,
	(SELECT COUNT(*) FROM survey_responses sr WHERE sr.survey_id = s.id)`

// ScanSurvey scans one row selected with SurveyColumns.
func ScanSurvey(row pgx.Row) (*models.Survey, error) {
	var s models.Survey
	if err := row.Scan(&s.ID, &s.Title, &s.Description, &s.Status, &s.IsPublic, &s.AllowAnonymous, &s.MaxResponses,
		&s.StartDate, &s.EndDate, &s.CreatorID, &s.CreatedAt, &s.UpdatedAt, &s.ResponseCount); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) list(ctx context.Context, q string, args ...interface{}) ([]*models.Survey, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	defer rows.Close()
	list := make([]*models.Survey, 0)
	for rows.Next() {
		s, err := ScanSurvey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan survey: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ListPublic returns published public surveys whose availability window contains now, newest first.
func (r *Repository) ListPublic(ctx context.Context, now time.Time) ([]*models.Survey, error) {
	const q = `SELECT ` + SurveyColumns + ` FROM surveys s
		WHERE s.status = 'PUBLISHED' AND s.is_public
		AND (s.start_date IS NULL OR s.start_date <= $1)
		AND (s.end_date IS NULL OR s.end_date >= $1)
		ORDER BY s.created_at DESC`
	return r.list(ctx, q, now)
}

// ListByCreator returns every survey owned by creatorID regardless of status, newest first.
func (r *Repository) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]*models.Survey, error) {
	const q = `SELECT ` + SurveyColumns + ` FROM surveys s WHERE s.creator_id = $1 ORDER BY s.created_at DESC`
	return r.list(ctx, q, creatorID)
}

// CountByCreator returns how many surveys creatorID owns.
func (r *Repository) CountByCreator(ctx context.Context, creatorID uuid.UUID) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM surveys WHERE creator_id = $1`, creatorID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count surveys: %w", err)
	}
	return n, nil
}

// GetByID returns a survey without its questions.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Survey, error) {
	s, err := ScanSurvey(r.pool.QueryRow(ctx, `SELECT `+SurveyColumns+` FROM surveys s WHERE s.id = $1`, id))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}
	return s, nil
}

// GetWithQuestions returns a survey with its questions and their options, both in ascending order.
func (r *Repository) GetWithQuestions(ctx context.Context, id uuid.UUID) (*models.Survey, error) {
	s, err := r.GetByID(ctx, id)
	if err != nil || s == nil {
		return s, err
	}
	if s.Questions, err = LoadQuestions(ctx, r.pool, id); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadQuestions returns the questions of a survey ordered by position, each with its options ordered by position.
func LoadQuestions(ctx context.Context, db database.Querier, surveyID uuid.UUID) ([]*models.Question, error) {
	const qq = `SELECT id, survey_id, text, description, type, is_required, sort_order, created_at, updated_at
		FROM questions WHERE survey_id = $1
		ORDER BY sort_order ASC, created_at ASC`
	rows, err := db.Query(ctx, qq, surveyID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	questions := make([]*models.Question, 0)
	byID := make(map[uuid.UUID]*models.Question)
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.SurveyID, &q.Text, &q.Description, &q.Type, &q.IsRequired, &q.Order, &q.CreatedAt, &q.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Options = make([]*models.QuestionOption, 0)
		questions = append(questions, &q)
		byID[q.ID] = &q
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return questions, nil
	}

	const qo = `SELECT o.id, o.question_id, o.text, o.value, o.sort_order
		FROM question_options o
		JOIN questions q ON q.id = o.question_id
		WHERE q.survey_id = $1
		ORDER BY o.sort_order ASC, o.created_at ASC`
	rows, err = db.Query(ctx, qo, surveyID)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var o models.QuestionOption
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.Value, &o.Order); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if q := byID[o.QuestionID]; q != nil {
			q.Options = append(q.Options, &o)
		}
	}
	return questions, rows.Err()
}

// Create inserts a survey owned by creatorID.
func (r *Repository) Create(ctx context.Context, creatorID uuid.UUID, f Fields) (*models.Survey, error) {
	const q = `WITH s AS (
			INSERT INTO surveys (title, description, status, is_public, allow_anonymous, max_responses, start_date, end_date, creator_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING *
		)
		SELECT ` + SurveyColumns + ` FROM s`
	s, err := ScanSurvey(r.pool.QueryRow(ctx, q, f.Title, f.Description, string(f.Status), f.IsPublic, f.AllowAnonymous,
		f.MaxResponses, f.StartDate, f.EndDate, creatorID))
	if err != nil {
		return nil, fmt.Errorf("insert survey: %w", err)
	}
	return s, nil
}

// Update overwrites the mutable columns of a survey. Returns nil when the survey does not exist.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, f Fields) (*models.Survey, error) {
	const q = `WITH s AS (
			UPDATE surveys SET title = $1, description = $2, status = $3, is_public = $4, allow_anonymous = $5,
				max_responses = $6, start_date = $7, end_date = $8, updated_at = NOW()
			WHERE id = $9
			RETURNING *
		)
		SELECT ` + SurveyColumns + ` FROM s`
	s, err := ScanSurvey(r.pool.QueryRow(ctx, q, f.Title, f.Description, string(f.Status), f.IsPublic, f.AllowAnonymous,
		f.MaxResponses, f.StartDate, f.EndDate, id))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update survey: %w", err)
	}
	return s, nil
}

// Publish sets status to PUBLISHED only if the survey has at least one question.
// Returns nil when the survey is missing or has no questions.
func (r *Repository) Publish(ctx context.Context, id uuid.UUID) (*models.Survey, error) {
	const q = `WITH s AS (
			UPDATE surveys SET status = 'PUBLISHED', updated_at = NOW()
			WHERE id = $1 AND EXISTS (SELECT 1 FROM questions WHERE survey_id = $1)
			RETURNING *
		)
		SELECT ` + SurveyColumns + ` FROM s`
	s, err := ScanSurvey(r.pool.QueryRow(ctx, q, id))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("publish survey: %w", err)
	}
	return s, nil
}

// Delete removes a survey; questions, options, responses, answers and tokens cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM surveys WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete survey: %w", err)
	}
	return nil
}
