package responses

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/apperr"
	"github.com/inquiro/backend/pkg/database"
)

var (
	ErrSurveyNotFound          = apperr.New(apperr.KindNotFound, "survey_not_published", "Survey not found or not published")
	ErrAnonymousNotAllowed     = apperr.New(apperr.KindForbidden, "anonymous_not_allowed", "Anonymous responses not allowed for this survey")
	ErrNotStarted              = apperr.New(apperr.KindInvalid, "survey_not_started", "Survey has not started yet")
	ErrEnded                   = apperr.New(apperr.KindInvalid, "survey_ended", "Survey has ended")
	ErrResponseLimitReached    = apperr.New(apperr.KindInvalid, "response_limit_reached", "Survey has reached maximum responses")
	ErrRequiredQuestionMissing = apperr.New(apperr.KindInvalid, "required_question_missing", "Required question must be answered")
	ErrUnknownQuestion         = apperr.New(apperr.KindInvalid, "unknown_question", "Answer references a question that is not part of this survey")
	ErrUnknownOption           = apperr.New(apperr.KindInvalid, "unknown_option", "Selected option does not belong to the answered question")
)

// AnswerInput is one submitted answer. Whichever value field is set is stored as-is.
type AnswerInput struct {
	QuestionID       uuid.UUID
	TextValue        *string
	NumberValue      *float64
	DateValue        *time.Time
	BooleanValue     *bool
	SelectedOptionID *uuid.UUID
}

// ClaimFunc runs inside the submission transaction after the response is inserted.
// Returning an error rolls the whole submission back.
type ClaimFunc func(ctx context.Context, db database.Querier) error

// SubmitParams is everything the store needs to admit and persist one submission.
type SubmitParams struct {
	SurveyID    uuid.UUID
	Identity    *models.Identity
	IsAnonymous bool
	IPAddress   string
	UserAgent   string
	Answers     []AnswerInput
	TokenID     *uuid.UUID
	Claim       ClaimFunc
	Now         time.Time
}

// Anonymous reports whether the stored response is anonymous: requested, or no identity at all.
func (p SubmitParams) Anonymous() bool {
	return p.IsAnonymous || p.Identity == nil
}

// Snapshot is the survey state the admission checks judge. It is read while the survey row is locked,
// so no other submission can change ResponseCount until the transaction ends.
type Snapshot struct {
	Survey        *models.Survey // nil when the survey does not exist or is not published
	ResponseCount int
}

// Admit runs the ordered admission checks and returns the first failure.
func Admit(snap Snapshot, p SubmitParams) error {
	s := snap.Survey
	if s == nil || s.Status != models.SurveyStatusPublished {
		return ErrSurveyNotFound
	}
	if p.Identity == nil && !s.AllowAnonymous {
		return ErrAnonymousNotAllowed
	}
	if s.StartDate != nil && s.StartDate.After(p.Now) {
		return ErrNotStarted
	}
	if s.EndDate != nil && s.EndDate.Before(p.Now) {
		return ErrEnded
	}
	if s.MaxResponses != nil && snap.ResponseCount >= *s.MaxResponses {
		return ErrResponseLimitReached
	}

	answered := make(map[uuid.UUID]struct{}, len(p.Answers))
	for _, a := range p.Answers {
		answered[a.QuestionID] = struct{}{}
	}
	for _, q := range s.Questions {
		if !q.IsRequired {
			continue
		}
		if _, ok := answered[q.ID]; !ok {
			return ErrRequiredQuestionMissing.WithMessage("Required question %q must be answered", q.Text)
		}
	}

	byID := make(map[uuid.UUID]*models.Question, len(s.Questions))
	for _, q := range s.Questions {
		byID[q.ID] = q
	}
	for _, a := range p.Answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return ErrUnknownQuestion
		}
		if a.SelectedOptionID != nil && !hasOption(q, *a.SelectedOptionID) {
			return ErrUnknownOption
		}
	}
	return nil
}

func hasOption(q *models.Question, id uuid.UUID) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}
