package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inquiro/backend/internal/models"
	"github.com/inquiro/backend/pkg/apperr"
	"github.com/inquiro/backend/pkg/storage"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	valueSeparator  = "; "
)

// ErrNothingToExport is returned when a survey has no responses yet.
var ErrNothingToExport = apperr.New(apperr.KindInvalid, "nothing_to_export", "No responses to export")

// Surveys is the survey surface an export needs.
type Surveys interface {
	AssertOwnership(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (*models.Survey, error)
	Load(ctx context.Context, surveyID uuid.UUID) (*models.Survey, error)
}

// Responses lists a survey's responses with their answers.
type Responses interface {
	ListBySurvey(ctx context.Context, surveyID uuid.UUID) ([]*models.SurveyResponse, error)
}

// Uploader stores a finished export and hands out a download link. *storage.S3 satisfies it.
type Uploader interface {
	PutExport(ctx context.Context, key, contentType string, body io.Reader) error
	PresignExportURL(ctx context.Context, key, filename string) (string, time.Time, error)
	DeleteObject(ctx context.Context, key string) error
}

// File is a rendered export.
type File struct {
	Filename string
	Rows     int
	Data     []byte
}

// Link is returned instead of the file body when exports are stored in S3.
type Link struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Filename  string    `json:"filename"`
	Rows      int       `json:"rows"`
}

// Service renders response exports.
type Service struct {
	surveys   Surveys
	responses Responses
	uploader  Uploader
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates an export service. uploader may be nil, in which case exports are streamed.
func NewService(surveys Surveys, responses Responses, uploader Uploader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{surveys: surveys, responses: responses, uploader: uploader, logger: logger, now: time.Now}
}

// Filename returns the download name for an export generated at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("survey-responses-%s.csv", t.Format(time.DateOnly))
}

// Render builds the CSV export of a survey owned by identity.
func (s *Service) Render(ctx context.Context, surveyID uuid.UUID, identity *models.Identity) (*File, error) {
	if _, err := s.surveys.AssertOwnership(ctx, surveyID, identity); err != nil {
		return nil, err
	}
	survey, err := s.surveys.Load(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	list, err := s.responses.ListBySurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNothingToExport
	}
	data, err := BuildCSV(survey, list)
	if err != nil {
		return nil, err
	}
	return &File{Filename: Filename(s.now()), Rows: len(list), Data: data}, nil
}

// Uploading reports whether exports go to S3.
func (s *Service) Uploading() bool {
	return s.uploader != nil
}

// Publish uploads f and returns a pre-signed link to it.
func (s *Service) Publish(ctx context.Context, surveyID uuid.UUID, f *File) (*Link, error) {
	key := storage.ExportKey(surveyID.String(), s.now())
	if err := s.uploader.PutExport(ctx, key, storage.ContentTypeCSV, bytes.NewReader(f.Data)); err != nil {
		s.logger.Error("export upload failed", zap.String("survey_id", surveyID.String()), zap.String("key", key), zap.Error(err))
		return nil, err
	}
	url, expires, err := s.uploader.PresignExportURL(ctx, key, f.Filename)
	if err != nil {
		s.logger.Error("export presign failed", zap.String("key", key), zap.Error(err))
		// The object is unreachable without a link.
		if derr := s.uploader.DeleteObject(ctx, key); derr != nil {
			s.logger.Warn("orphaned export not removed", zap.String("key", key), zap.Error(derr))
		}
		return nil, err
	}
	s.logger.Info("export published", zap.String("survey_id", surveyID.String()), zap.String("key", key), zap.Int("rows", f.Rows))
	return &Link{URL: url, ExpiresAt: expires, Filename: f.Filename, Rows: f.Rows}, nil
}

// BuildCSV renders one row per response with one column per question, in survey order.
// Questions answered more than once in a response (checkboxes) join their values with "; ".
func BuildCSV(survey *models.Survey, responses []*models.SurveyResponse) ([]byte, error) {
	options := make(map[uuid.UUID]string)
	header := []string{"Response ID", "Survey", "Respondent", "Email", "Type", "Submitted At", "IP Address"}
	for _, q := range survey.Questions {
		header = append(header, q.Text)
		for _, o := range q.Options {
			options[o.ID] = o.Text
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range responses {
		respondent, email, kind := "Anonymous", "", "Anonymous"
		if !r.IsAnonymous {
			kind = "Registered"
			if r.Respondent != nil {
				respondent, email = r.Respondent.Name, r.Respondent.Email
			}
		}
		at := r.CreatedAt
		if r.CompletedAt != nil {
			at = *r.CompletedAt
		}
		row := []string{r.ID.String(), survey.Title, respondent, email, kind, at.UTC().Format(timestampLayout), r.IPAddress}

		values := make(map[uuid.UUID][]string)
		for _, a := range r.Answers {
			if v := answerValue(a, options); v != "" {
				values[a.QuestionID] = append(values[a.QuestionID], v)
			}
		}
		for _, q := range survey.Questions {
			row = append(row, strings.Join(values[q.ID], valueSeparator))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func answerValue(a *models.ResponseAnswer, options map[uuid.UUID]string) string {
	switch {
	case a.SelectedOptionID != nil:
		if a.SelectedOption != nil {
			return a.SelectedOption.Text
		}
		return options[*a.SelectedOptionID]
	case a.TextValue != nil:
		return *a.TextValue
	case a.NumberValue != nil:
		return strconv.FormatFloat(*a.NumberValue, 'f', -1, 64)
	case a.DateValue != nil:
		return a.DateValue.Format(time.DateOnly)
	case a.BooleanValue != nil:
		return strconv.FormatBool(*a.BooleanValue)
	}
	return ""
}
