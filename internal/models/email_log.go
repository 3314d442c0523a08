package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailType for notifications.
const (
	EmailTypeNewResponse = "new_response"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusSent   = "sent"
	EmailLogStatusFailed = "failed"
)

// EmailLog records sent notification emails.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	SurveyID       *uuid.UUID `json:"survey_id,omitempty"`
	ResponseID     *uuid.UUID `json:"response_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
