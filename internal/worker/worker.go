package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/mailer"
	"github.com/inquiro/backend/pkg/queue"
)

// dequeueTimeout bounds each blocking pop so the loop notices shutdown.
const dequeueTimeout = 5 * time.Second

// Sender delivers one email. *mailer.SMTP satisfies it.
type Sender interface {
	Send(msg mailer.Message) error
}

// Logs records delivery outcomes. *emaillogs.Repository satisfies it.
type Logs interface {
	Insert(ctx context.Context, el *models.EmailLog) error
}

// Jobs is the queue surface the processor consumes. *queue.Queue satisfies it.
type Jobs interface {
	Dequeue(ctx context.Context, timeout time.Duration, keys ...string) (*queue.Job, string, error)
	Retry(ctx context.Context, key string, job *queue.Job) error
}

// EmailProcessor processes email jobs: send over SMTP, record the outcome in email_logs.
type EmailProcessor struct {
	sender  Sender
	logs    Logs
	queue   Jobs
	logger  *zap.Logger
	backoff time.Duration
	now     func() time.Time
}

// NewEmailProcessor creates an email job processor.
func NewEmailProcessor(sender Sender, logs Logs, q Jobs, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{sender: sender, logs: logs, queue: q, logger: logger, backoff: queue.RetryBackoff, now: time.Now}
}

// Process executes one email job. A sent email is always logged; a failure is logged only on the
// final attempt, when the job is about to move to the dead-letter queue.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	el := &models.EmailLog{
		SurveyID:       &payload.SurveyID,
		ResponseID:     &payload.ResponseID,
		EmailType:      payload.EmailType,
		RecipientEmail: payload.RecipientEmail,
		Subject:        payload.Subject,
	}
	sendErr := p.sender.Send(mailer.Message{To: payload.RecipientEmail, Subject: payload.Subject, BodyHTML: payload.BodyHTML})
	if sendErr == nil {
		sent := p.now()
		el.Status = models.EmailLogStatusSent
		el.SentAt = &sent
	} else if job.Attempt+1 >= queue.MaxRetries {
		el.Status = models.EmailLogStatusFailed
		el.ErrorMessage = sendErr.Error()
	} else {
		return sendErr
	}

	if err := p.logs.Insert(ctx, el); err != nil {
		p.logger.Error("insert email log failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	if sendErr != nil {
		return sendErr
	}
	p.logger.Info("email sent", zap.String("job_id", job.ID), zap.String("survey_id", payload.SurveyID.String()), zap.String("email_type", payload.EmailType))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. Returns when ctx is done.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, key, err := p.queue.Dequeue(ctx, dequeueTimeout, queue.QueueEmails)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, key, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
