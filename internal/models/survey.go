package models

import (
	"time"

	"github.com/google/uuid"
)

// SurveyStatus is the publish lifecycle state of a survey.
type SurveyStatus string

const (
	SurveyStatusDraft     SurveyStatus = "DRAFT"
	SurveyStatusPublished SurveyStatus = "PUBLISHED"
	SurveyStatusClosed    SurveyStatus = "CLOSED"
)

// Survey is the aggregate root owning questions, responses and tokens.
type Survey struct {
	ID             uuid.UUID    `json:"id"`
	Title          string       `json:"title"`
	Description    *string      `json:"description,omitempty"`
	Status         SurveyStatus `json:"status"`
	IsPublic       bool         `json:"is_public"`
	AllowAnonymous bool         `json:"allow_anonymous"`
	MaxResponses   *int         `json:"max_responses,omitempty"`
	StartDate      *time.Time   `json:"start_date,omitempty"`
	EndDate        *time.Time   `json:"end_date,omitempty"`
	CreatorID      uuid.UUID    `json:"creator_id"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	ResponseCount  int          `json:"response_count"`
	Questions      []*Question  `json:"questions,omitempty"`
}

// InWindow reports whether now falls inside the survey's optional availability window.
func (s *Survey) InWindow(now time.Time) bool {
	if s.StartDate != nil && s.StartDate.After(now) {
		return false
	}
	if s.EndDate != nil && s.EndDate.Before(now) {
		return false
	}
	return true
}

// QuestionType is the answer shape a question expects.
type QuestionType string

const (
	QuestionTypeText           QuestionType = "TEXT"
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeCheckbox       QuestionType = "CHECKBOX"
	QuestionTypeRadio          QuestionType = "RADIO"
	QuestionTypeRating         QuestionType = "RATING"
	QuestionTypeDate           QuestionType = "DATE"
	QuestionTypeEmail          QuestionType = "EMAIL"
	QuestionTypeNumber         QuestionType = "NUMBER"
)

// QuestionTypes lists every supported question type.
var QuestionTypes = []QuestionType{
	QuestionTypeText, QuestionTypeMultipleChoice, QuestionTypeCheckbox, QuestionTypeRadio,
	QuestionTypeRating, QuestionTypeDate, QuestionTypeEmail, QuestionTypeNumber,
}

// Valid reports whether t is a supported question type.
func (t QuestionType) Valid() bool {
	for _, v := range QuestionTypes {
		if v == t {
			return true
		}
	}
	return false
}

// HasOptions reports whether questions of this type carry a fixed option set.
func (t QuestionType) HasOptions() bool {
	return t == QuestionTypeMultipleChoice || t == QuestionTypeCheckbox || t == QuestionTypeRadio
}

// Question belongs to exactly one survey. Order is a position within the survey.
type Question struct {
	ID          uuid.UUID         `json:"id"`
	SurveyID    uuid.UUID         `json:"survey_id"`
	Text        string            `json:"text"`
	Description *string           `json:"description,omitempty"`
	Type        QuestionType      `json:"type"`
	IsRequired  bool              `json:"is_required"`
	Order       int               `json:"order"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Options     []*QuestionOption `json:"options"`
}

// QuestionOption is one choice of a choice-type question.
type QuestionOption struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Text       string    `json:"text"`
	Value      *string   `json:"value,omitempty"`
	Order      int       `json:"order"`
}
