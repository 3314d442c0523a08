// Package notify fans a committed submission out to live watchers and, optionally, the survey creator's inbox.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/internal/realtime"
	"github.com/inquiro/backend/internal/responses"
	"github.com/inquiro/backend/pkg/queue"
)

// Broadcaster delivers live events. *realtime.Hub satisfies it.
type Broadcaster interface {
	PublishResponseSubmitted(ev realtime.ResponseSubmitted)
}

// EmailQueue accepts email jobs for the worker. *queue.Queue satisfies it.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Users looks up the survey creator. Returns nil, nil when absent.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Config controls the email side effect.
type Config struct {
	EmailCreator bool
	AppBaseURL   string
}

// Notifier implements responses.Notifier.
type Notifier struct {
	hub    Broadcaster
	emails EmailQueue
	users  Users
	cfg    Config
	logger *zap.Logger
}

var _ responses.Notifier = (*Notifier)(nil)

// New creates a notifier. hub and emails may be nil to disable the corresponding side effect.
func New(hub Broadcaster, emails EmailQueue, users Users, cfg Config, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{hub: hub, emails: emails, users: users, cfg: cfg, logger: logger}
}

// ResponseSubmitted broadcasts the submission and queues the creator email. Errors are logged only.
func (n *Notifier) ResponseSubmitted(ctx context.Context, receipt *responses.Receipt) {
	r := receipt.Response
	if n.hub != nil {
		n.hub.PublishResponseSubmitted(realtime.ResponseSubmitted{
			SurveyID:      r.SurveyID,
			ResponseID:    r.ID,
			IsAnonymous:   r.IsAnonymous,
			CompletedAt:   r.CompletedAt,
			ResponseCount: receipt.ResponseCount,
		})
	}
	if !n.cfg.EmailCreator || n.emails == nil || n.users == nil {
		return
	}
	if err := n.enqueueCreatorEmail(ctx, receipt); err != nil {
		n.logger.Warn("queue creator email failed",
			zap.String("survey_id", r.SurveyID.String()), zap.String("response_id", r.ID.String()), zap.Error(err))
	}
}

func (n *Notifier) enqueueCreatorEmail(ctx context.Context, receipt *responses.Receipt) error {
	creator, err := n.users.GetByID(ctx, receipt.Survey.CreatorID)
	if err != nil {
		return fmt.Errorf("load creator: %w", err)
	}
	if creator == nil {
		return fmt.Errorf("creator %s not found", receipt.Survey.CreatorID)
	}
	body, err := n.render(creator, receipt)
	if err != nil {
		return err
	}
	return n.emails.EnqueueEmail(ctx, queue.EmailPayload{
		EmailType:      models.EmailTypeNewResponse,
		SurveyID:       receipt.Survey.ID,
		ResponseID:     receipt.Response.ID,
		RecipientEmail: creator.Email,
		Subject:        fmt.Sprintf("New response to %q", receipt.Survey.Title),
		BodyHTML:       body,
	})
}

var newResponseTmpl = template.Must(template.New("new_response").Parse(`<p>Hi {{.Name}},</p>
<p>Your survey <strong>{{.Title}}</strong> received a new {{if .Anonymous}}anonymous {{end}}response.
It now has {{.Count}} response{{if ne .Count 1}}s{{end}}.</p>
<p><a href="{{.Link}}">View responses</a></p>`))

func (n *Notifier) render(creator *models.User, receipt *responses.Receipt) (string, error) {
	var b bytes.Buffer
	err := newResponseTmpl.Execute(&b, struct {
		Name, Title, Link string
		Anonymous         bool
		Count             int
	}{
		Name:      creator.Name,
		Title:     receipt.Survey.Title,
		Link:      fmt.Sprintf("%s/surveys/%s/responses", n.cfg.AppBaseURL, receipt.Survey.ID),
		Anonymous: receipt.Response.IsAnonymous,
		Count:     receipt.ResponseCount,
	})
	if err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return b.String(), nil
}
