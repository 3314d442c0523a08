package questions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/internal/surveys"
	"github.com/inquiro/backend/pkg/database"
)

// OptionInput is one option of a choice question. Options are positioned in slice order starting at 1.
type OptionInput struct {
	Text  string
	Value *string
}

// Input is the complete state written for a question.
type Input struct {
	Text        string
	Description *string
	Type        models.QuestionType
	IsRequired  bool
	Order       *int // nil appends after the last question
	Options     []OptionInput
}

// Store is the question persistence used by Service. Lookups return nil, nil when absent.
type Store interface {
	Create(ctx context.Context, surveyID uuid.UUID, in Input) (*models.Question, error)
	Replace(ctx context.Context, questionID uuid.UUID, in Input) (*models.Question, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListBySurvey(ctx context.Context, surveyID uuid.UUID) ([]*models.Question, error)
	AddOption(ctx context.Context, questionID uuid.UUID, text string, value *string) (*models.QuestionOption, error)
}

// Repository handles question and option persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a question repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const questionColumns = `id, survey_id, text, description, type, is_required, sort_order, created_at, updated_at`

func scanQuestion(row pgx.Row) (*models.Question, error) {
	var q models.Question
	if err := row.Scan(&q.ID, &q.SurveyID, &q.Text, &q.Description, &q.Type, &q.IsRequired, &q.Order, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	q.Options = make([]*models.QuestionOption, 0)
	return &q, nil
}

// Create inserts a question and its options in one transaction.
func (r *Repository) Create(ctx context.Context, surveyID uuid.UUID, in Input) (*models.Question, error) {
	const q = `INSERT INTO questions (survey_id, text, description, type, is_required, sort_order)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, (SELECT COALESCE(MAX(sort_order), 0) + 1 FROM questions WHERE survey_id = $1)))
		RETURNING ` + questionColumns
	var question *models.Question
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		question, err = scanQuestion(tx.QueryRow(ctx, q, surveyID, in.Text, in.Description, string(in.Type), in.IsRequired, in.Order))
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		question.Options, err = insertOptions(ctx, tx, question.ID, in.Options)
		return err
	})
	if err != nil {
		return nil, err
	}
	return question, nil
}

// Replace updates the scalar columns and replaces the whole option set: every existing option is deleted
// and the given ones are inserted. Returns nil when the question does not exist.
func (r *Repository) Replace(ctx context.Context, questionID uuid.UUID, in Input) (*models.Question, error) {
	const q = `UPDATE questions SET text = $1, description = $2, type = $3, is_required = $4,
			sort_order = COALESCE($5, sort_order), updated_at = NOW()
		WHERE id = $6
		RETURNING ` + questionColumns
	var question *models.Question
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		question, err = scanQuestion(tx.QueryRow(ctx, q, in.Text, in.Description, string(in.Type), in.IsRequired, in.Order, questionID))
		if database.IsNoRows(err) {
			question = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("update question: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM question_options WHERE question_id = $1`, questionID); err != nil {
			return fmt.Errorf("delete options: %w", err)
		}
		question.Options, err = insertOptions(ctx, tx, questionID, in.Options)
		return err
	})
	if err != nil {
		return nil, err
	}
	return question, nil
}

func insertOptions(ctx context.Context, tx pgx.Tx, questionID uuid.UUID, opts []OptionInput) ([]*models.QuestionOption, error) {
	out := make([]*models.QuestionOption, 0, len(opts))
	if len(opts) == 0 {
		return out, nil
	}
	const q = `INSERT INTO question_options (question_id, text, value, sort_order)
		VALUES ($1, $2, $3, $4)
		RETURNING id, question_id, text, value, sort_order`
	batch := &pgx.Batch{}
	for i, o := range opts {
		batch.Queue(q, questionID, o.Text, o.Value, i+1)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range opts {
		var o models.QuestionOption
		if err := br.QueryRow().Scan(&o.ID, &o.QuestionID, &o.Text, &o.Value, &o.Order); err != nil {
			return nil, fmt.Errorf("insert option: %w", err)
		}
		out = append(out, &o)
	}
	return out, nil
}

// GetByID returns a question with its options ordered by position.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	question, err := scanQuestion(r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT id, question_id, text, value, sort_order
		FROM question_options WHERE question_id = $1
		ORDER BY sort_order ASC, created_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("get options: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var o models.QuestionOption
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.Value, &o.Order); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		question.Options = append(question.Options, &o)
	}
	return question, rows.Err()
}

// Delete removes a question; its options and any answers to it cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

// ListBySurvey returns the survey's questions with options, both ordered by position.
func (r *Repository) ListBySurvey(ctx context.Context, surveyID uuid.UUID) ([]*models.Question, error) {
	return surveys.LoadQuestions(ctx, r.pool, surveyID)
}

// AddOption appends one option after the question's current last option.
func (r *Repository) AddOption(ctx context.Context, questionID uuid.UUID, text string, value *string) (*models.QuestionOption, error) {
	const q = `INSERT INTO question_options (question_id, text, value, sort_order)
		SELECT $1, $2, $3, COALESCE(MAX(sort_order), 0) + 1 FROM question_options WHERE question_id = $1
		RETURNING id, question_id, text, value, sort_order`
	var o models.QuestionOption
	if err := r.pool.QueryRow(ctx, q, questionID, text, value).Scan(&o.ID, &o.QuestionID, &o.Text, &o.Value, &o.Order); err != nil {
		return nil, fmt.Errorf("add option: %w", err)
	}
	return &o, nil
}
