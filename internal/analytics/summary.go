package analytics

import (
	"time"

	"github.com/google/uuid"

	"github.com/inquiro/backend/internal/models"
)

// Summary is the analytics view of one survey.
type Summary struct {
	SurveyID            uuid.UUID          `json:"survey_id"`
	TotalResponses      int                `json:"total_responses"`
	AnonymousResponses  int                `json:"anonymous_responses"`
	RegisteredResponses int                `json:"registered_responses"`
	UniqueIPs           int                `json:"unique_ips"`
	FirstResponseAt     *time.Time         `json:"first_response_at,omitempty"`
	LastResponseAt      *time.Time         `json:"last_response_at,omitempty"`
	Questions           []*QuestionSummary `json:"questions"`
}

// QuestionSummary aggregates the answers to one question.
type QuestionSummary struct {
	QuestionID  uuid.UUID           `json:"question_id"`
	Text        string              `json:"text"`
	Type        models.QuestionType `json:"type"`
	Order       int                 `json:"order"`
	AnswerCount int                 `json:"answer_count"`
	SkipRate    float64             `json:"skip_rate"`
	Options     []*OptionCount      `json:"options,omitempty"`
	Average     *float64            `json:"average,omitempty"`
}

// OptionCount is how often a choice option was selected.
type OptionCount struct {
	OptionID uuid.UUID `json:"option_id"`
	Text     string    `json:"text"`
	Count    int       `json:"count"`
	Percent  float64   `json:"percent"`
}

// Summarize computes the summary of a survey (with questions and options) from its responses
// (with answers). A question counts as answered once per response no matter how many answer rows
// the response holds for it.
func Summarize(survey *models.Survey, responses []*models.SurveyResponse) *Summary {
	out := &Summary{SurveyID: survey.ID, TotalResponses: len(responses), Questions: make([]*QuestionSummary, 0, len(survey.Questions))}

	ips := make(map[string]struct{})
	answered := make(map[uuid.UUID]map[uuid.UUID]struct{})
	selections := make(map[uuid.UUID]int)
	sums := make(map[uuid.UUID]float64)
	numbers := make(map[uuid.UUID]int)

	for _, r := range responses {
		if r.IsAnonymous {
			out.AnonymousResponses++
		} else {
			out.RegisteredResponses++
		}
		if r.IPAddress != "" && r.IPAddress != "unknown" {
			ips[r.IPAddress] = struct{}{}
		}
		at := r.CreatedAt
		if r.CompletedAt != nil {
			at = *r.CompletedAt
		}
		if out.FirstResponseAt == nil || at.Before(*out.FirstResponseAt) {
			first := at
			out.FirstResponseAt = &first
		}
		if out.LastResponseAt == nil || at.After(*out.LastResponseAt) {
			last := at
			out.LastResponseAt = &last
		}

		for _, a := range r.Answers {
			if answered[a.QuestionID] == nil {
				answered[a.QuestionID] = make(map[uuid.UUID]struct{})
			}
			answered[a.QuestionID][r.ID] = struct{}{}
			if a.SelectedOptionID != nil {
				selections[*a.SelectedOptionID]++
			}
			if a.NumberValue != nil {
				sums[a.QuestionID] += *a.NumberValue
				numbers[a.QuestionID]++
			}
		}
	}
	out.UniqueIPs = len(ips)

	for _, q := range survey.Questions {
		qs := &QuestionSummary{QuestionID: q.ID, Text: q.Text, Type: q.Type, Order: q.Order, AnswerCount: len(answered[q.ID])}
		if out.TotalResponses > 0 {
			qs.SkipRate = float64(out.TotalResponses-qs.AnswerCount) / float64(out.TotalResponses)
		}
		if q.Type.HasOptions() {
			total := 0
			for _, o := range q.Options {
				total += selections[o.ID]
			}
			qs.Options = make([]*OptionCount, 0, len(q.Options))
			for _, o := range q.Options {
				oc := &OptionCount{OptionID: o.ID, Text: o.Text, Count: selections[o.ID]}
				if total > 0 {
					oc.Percent = float64(oc.Count) / float64(total) * 100
				}
				qs.Options = append(qs.Options, oc)
			}
		}
		if (q.Type == models.QuestionTypeRating || q.Type == models.QuestionTypeNumber) && numbers[q.ID] > 0 {
			avg := sums[q.ID] / float64(numbers[q.ID])
			qs.Average = &avg
		}
		out.Questions = append(out.Questions, qs)
	}
	return out
}
