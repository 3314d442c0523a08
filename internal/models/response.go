package models

import (
	"time"

	"github.com/google/uuid"
)

// SurveyResponse is one immutable submission to a survey.
type SurveyResponse struct {
	ID           uuid.UUID         `json:"id"`
	SurveyID     uuid.UUID         `json:"survey_id"`
	RespondentID *uuid.UUID        `json:"respondent_id,omitempty"`
	TokenID      *uuid.UUID        `json:"token_id,omitempty"`
	IsAnonymous  bool              `json:"is_anonymous"`
	IPAddress    string            `json:"ip_address,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	Respondent   *UserPublic       `json:"respondent,omitempty"`
	Answers      []*ResponseAnswer `json:"answers,omitempty"`
}

// ResponseAnswer holds whichever value field the caller supplied for a question.
type ResponseAnswer struct {
	ID               uuid.UUID       `json:"id"`
	ResponseID       uuid.UUID       `json:"response_id"`
	QuestionID       uuid.UUID       `json:"question_id"`
	TextValue        *string         `json:"text_value,omitempty"`
	NumberValue      *float64        `json:"number_value,omitempty"`
	DateValue        *time.Time      `json:"date_value,omitempty"`
	BooleanValue     *bool           `json:"boolean_value,omitempty"`
	SelectedOptionID *uuid.UUID      `json:"selected_option_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	Question         *Question       `json:"question,omitempty"`
	SelectedOption   *QuestionOption `json:"selected_option,omitempty"`
	Response         *SurveyResponse `json:"response,omitempty"`
}

// SurveyToken grants out-of-band access to one survey.
type SurveyToken struct {
	ID          uuid.UUID  `json:"id"`
	SurveyID    uuid.UUID  `json:"survey_id"`
	Token       string     `json:"token"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	MaxUses     *int       `json:"max_uses,omitempty"`
	CurrentUses int        `json:"current_uses"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Expired reports whether the token's expiry is set and already past.
func (t *SurveyToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// Exhausted reports whether the token has a use cap and reached it.
func (t *SurveyToken) Exhausted() bool {
	return t.MaxUses != nil && t.CurrentUses >= *t.MaxUses
}
