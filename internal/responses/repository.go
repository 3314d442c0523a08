package responses

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/internal/surveys"
	"github.com/inquiro/backend/pkg/database"
)

// Receipt is a persisted submission and the survey it was admitted against.
type Receipt struct {
	Response      *models.SurveyResponse
	Survey        *models.Survey
	ResponseCount int // including this response
}

// Store is the response persistence used by Service. Lookups return nil, nil when absent.
type Store interface {
	// Submit admits and persists one submission atomically. Concurrent submissions to the same
	// survey are serialized so the response cap cannot be exceeded.
	Submit(ctx context.Context, p SubmitParams) (*Receipt, error)
	ListBySurvey(ctx context.Context, surveyID uuid.UUID) ([]*models.SurveyResponse, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.SurveyResponse, error)
	CountBySurvey(ctx context.Context, surveyID uuid.UUID) (int, error)
	ListAnswersByQuestion(ctx context.Context, questionID uuid.UUID) ([]*models.ResponseAnswer, error)
	SurveyIDForQuestion(ctx context.Context, questionID uuid.UUID) (*uuid.UUID, error)
	HasResponded(ctx context.Context, surveyID, userID uuid.UUID) (bool, error)
}

// Repository handles response and answer persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a response repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Submit locks the survey row, judges the submission against the locked state, then inserts the
// response, its answers, and runs p.Claim, all in one transaction.
func (r *Repository) Submit(ctx context.Context, p SubmitParams) (*Receipt, error) {
	var receipt *Receipt
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		snap, err := lockSnapshot(ctx, tx, p.SurveyID)
		if err != nil {
			return err
		}
		if err := Admit(snap, p); err != nil {
			return err
		}

		resp, err := insertResponse(ctx, tx, p)
		if err != nil {
			return err
		}
		if resp.Answers, err = insertAnswers(ctx, tx, resp.ID, p.Answers); err != nil {
			return err
		}
		if p.Claim != nil {
			if err := p.Claim(ctx, tx); err != nil {
				return err
			}
		}
		receipt = &Receipt{Response: resp, Survey: snap.Survey, ResponseCount: snap.ResponseCount + 1}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// lockSnapshot takes the survey row lock first and reads the count in a later statement, so under
// READ COMMITTED the count reflects every submission committed before the lock was granted.
func lockSnapshot(ctx context.Context, tx pgx.Tx, surveyID uuid.UUID) (Snapshot, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM surveys WHERE id = $1 AND status = 'PUBLISHED' FOR UPDATE`, surveyID).Scan(&id)
	if database.IsNoRows(err) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("lock survey: %w", err)
	}
	s, err := surveys.ScanSurvey(tx.QueryRow(ctx, `SELECT `+surveys.SurveyColumns+` FROM surveys s WHERE s.id = $1`, surveyID))
	if err != nil {
		return Snapshot{}, fmt.Errorf("load survey: %w", err)
	}
	if s.Questions, err = surveys.LoadQuestions(ctx, tx, surveyID); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Survey: s, ResponseCount: s.ResponseCount}, nil
}

func insertResponse(ctx context.Context, tx pgx.Tx, p SubmitParams) (*models.SurveyResponse, error) {
	const q = `INSERT INTO survey_responses (survey_id, respondent_id, token_id, is_anonymous, ip_address, user_agent, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	resp := &models.SurveyResponse{
		SurveyID:    p.SurveyID,
		TokenID:     p.TokenID,
		IsAnonymous: p.Anonymous(),
		IPAddress:   p.IPAddress,
		UserAgent:   p.UserAgent,
	}
	if p.Identity != nil {
		id := p.Identity.UserID
		resp.RespondentID = &id
	}
	completed := p.Now
	resp.CompletedAt = &completed
	err := tx.QueryRow(ctx, q, p.SurveyID, resp.RespondentID, p.TokenID, resp.IsAnonymous, p.IPAddress, p.UserAgent, completed).
		Scan(&resp.ID, &resp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert response: %w", err)
	}
	return resp, nil
}

func insertAnswers(ctx context.Context, tx pgx.Tx, responseID uuid.UUID, answers []AnswerInput) ([]*models.ResponseAnswer, error) {
	out := make([]*models.ResponseAnswer, 0, len(answers))
	if len(answers) == 0 {
		return out, nil
	}
	const q = `INSERT INTO response_answers (response_id, question_id, text_value, number_value, date_value, boolean_value, selected_option_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	batch := &pgx.Batch{}
	for _, a := range answers {
		batch.Queue(q, responseID, a.QuestionID, a.TextValue, a.NumberValue, a.DateValue, a.BooleanValue, a.SelectedOptionID)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for _, a := range answers {
		ans := &models.ResponseAnswer{
			ResponseID:       responseID,
			QuestionID:       a.QuestionID,
			TextValue:        a.TextValue,
			NumberValue:      a.NumberValue,
			DateValue:        a.DateValue,
			BooleanValue:     a.BooleanValue,
			SelectedOptionID: a.SelectedOptionID,
		}
		if err := br.QueryRow().Scan(&ans.ID, &ans.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert answer: %w", err)
		}
		out = append(out, ans)
	}
	return out, nil
}

const responseColumns = `r.id, r.survey_id, r.respondent_id, r.token_id, r.is_anonymous,
	COALESCE(r.ip_address, ''), COALESCE(r.user_agent, ''), r.completed_at, r.created_at,
	u.id, u.email, u.name, u.role, u.created_at`

// scanResponse scans responseColumns. The respondent is withheld from anonymous responses.
func scanResponse(row pgx.Row) (*models.SurveyResponse, error) {
	var (
		resp      models.SurveyResponse
		userID    *uuid.UUID
		email     *string
		name      *string
		role      *string
		userSince *time.Time
	)
	if err := row.Scan(&resp.ID, &resp.SurveyID, &resp.RespondentID, &resp.TokenID, &resp.IsAnonymous,
		&resp.IPAddress, &resp.UserAgent, &resp.CompletedAt, &resp.CreatedAt,
		&userID, &email, &name, &role, &userSince); err != nil {
		return nil, err
	}
	resp.Answers = make([]*models.ResponseAnswer, 0)
	if resp.IsAnonymous {
		resp.RespondentID = nil
		return &resp, nil
	}
	if userID != nil {
		resp.Respondent = &models.UserPublic{ID: *userID, Email: deref(email), Name: deref(name), Role: models.Role(deref(role))}
		if userSince != nil {
			resp.Respondent.CreatedAt = *userSince
		}
	}
	return &resp, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ListBySurvey returns every response of a survey, newest first, each with its answers.
func (r *Repository) ListBySurvey(ctx context.Context, surveyID uuid.UUID) ([]*models.SurveyResponse, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+responseColumns+`
		FROM survey_responses r
		LEFT JOIN users u ON u.id = r.respondent_id
		WHERE r.survey_id = $1
		ORDER BY r.created_at DESC`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	list := make([]*models.SurveyResponse, 0)
	byID := make(map[uuid.UUID]*models.SurveyResponse)
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan response: %w", err)
		}
		list = append(list, resp)
		byID[resp.ID] = resp
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	if len(list) == 0 {
		return list, nil
	}

	answers, err := r.loadAnswers(ctx, `r.survey_id = $1`, surveyID)
	if err != nil {
		return nil, err
	}
	for _, a := range answers {
		if resp := byID[a.ResponseID]; resp != nil {
			resp.Answers = append(resp.Answers, a)
		}
	}
	return list, nil
}

// GetByID returns one response with its answers.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.SurveyResponse, error) {
	resp, err := scanResponse(r.pool.QueryRow(ctx, `SELECT `+responseColumns+`
		FROM survey_responses r
		LEFT JOIN users u ON u.id = r.respondent_id
		WHERE r.id = $1`, id))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}
	answers, err := r.loadAnswers(ctx, `r.id = $1`, id)
	if err != nil {
		return nil, err
	}
	resp.Answers = append(resp.Answers, answers...)
	return resp, nil
}

const answerColumns = `a.id, a.response_id, a.question_id, a.text_value, a.number_value, a.date_value, a.boolean_value,
	a.selected_option_id, a.created_at,
	o.id, o.question_id, o.text, o.value, o.sort_order`

func scanAnswer(row pgx.Row, extra ...interface{}) (*models.ResponseAnswer, error) {
	var (
		a        models.ResponseAnswer
		optID    *uuid.UUID
		optQID   *uuid.UUID
		optText  *string
		optValue *string
		optOrder *int
	)
	dest := []interface{}{&a.ID, &a.ResponseID, &a.QuestionID, &a.TextValue, &a.NumberValue, &a.DateValue, &a.BooleanValue,
		&a.SelectedOptionID, &a.CreatedAt, &optID, &optQID, &optText, &optValue, &optOrder}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if optID != nil {
		a.SelectedOption = &models.QuestionOption{ID: *optID, Text: deref(optText), Value: optValue}
		if optQID != nil {
			a.SelectedOption.QuestionID = *optQID
		}
		if optOrder != nil {
			a.SelectedOption.Order = *optOrder
		}
	}
	return &a, nil
}

// loadAnswers returns answers with their question and selected option, ordered by question position.
func (r *Repository) loadAnswers(ctx context.Context, where string, arg interface{}) ([]*models.ResponseAnswer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+answerColumns+`,
			q.id, q.survey_id, q.text, q.description, q.type, q.is_required, q.sort_order, q.created_at, q.updated_at
		FROM response_answers a
		JOIN survey_responses r ON r.id = a.response_id
		JOIN questions q ON q.id = a.question_id
		LEFT JOIN question_options o ON o.id = a.selected_option_id
		WHERE `+where+`
		ORDER BY q.sort_order ASC, a.created_at ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()
	out := make([]*models.ResponseAnswer, 0)
	for rows.Next() {
		var q models.Question
		a, err := scanAnswer(rows, &q.ID, &q.SurveyID, &q.Text, &q.Description, &q.Type, &q.IsRequired, &q.Order, &q.CreatedAt, &q.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.Question = &q
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountBySurvey returns the number of responses recorded for a survey.
func (r *Repository) CountBySurvey(ctx context.Context, surveyID uuid.UUID) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM survey_responses WHERE survey_id = $1`, surveyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return n, nil
}

// ListAnswersByQuestion returns every answer to a question, newest first, with its selected option
// and a summary of the owning response.
func (r *Repository) ListAnswersByQuestion(ctx context.Context, questionID uuid.UUID) ([]*models.ResponseAnswer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+answerColumns+`,
			r.id, r.survey_id, r.is_anonymous, r.completed_at, r.created_at
		FROM response_answers a
		JOIN survey_responses r ON r.id = a.response_id
		LEFT JOIN question_options o ON o.id = a.selected_option_id
		WHERE a.question_id = $1
		ORDER BY a.created_at DESC`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()
	out := make([]*models.ResponseAnswer, 0)
	for rows.Next() {
		var resp models.SurveyResponse
		a, err := scanAnswer(rows, &resp.ID, &resp.SurveyID, &resp.IsAnonymous, &resp.CompletedAt, &resp.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.Response = &resp
		out = append(out, a)
	}
	return out, rows.Err()
}

// SurveyIDForQuestion returns the survey owning a question, or nil when the question does not exist.
func (r *Repository) SurveyIDForQuestion(ctx context.Context, questionID uuid.UUID) (*uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT survey_id FROM questions WHERE id = $1`, questionID).Scan(&id)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("question survey: %w", err)
	}
	return &id, nil
}

// HasResponded reports whether userID has any response recorded for the survey.
func (r *Repository) HasResponded(ctx context.Context, surveyID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM survey_responses WHERE survey_id = $1 AND respondent_id = $2)`,
		surveyID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("has responded: %w", err)
	}
	return ok, nil
}
