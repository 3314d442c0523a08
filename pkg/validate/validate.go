// Package validate registers domain binding tags on gin's validator engine.
package validate

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/inquiro/backend/internal/models"
)

// Register adds the question_type and survey_status tags to gin's default validator.
// It must run before the router serves requests.
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return RegisterOn(v)
}

// RegisterOn adds the domain tags to v.
func RegisterOn(v *validator.Validate) error {
	if err := v.RegisterValidation("question_type", questionType); err != nil {
		return fmt.Errorf("register question_type: %w", err)
	}
	if err := v.RegisterValidation("survey_status", surveyStatus); err != nil {
		return fmt.Errorf("register survey_status: %w", err)
	}
	return nil
}

func questionType(fl validator.FieldLevel) bool {
	return models.QuestionType(fl.Field().String()).Valid()
}

func surveyStatus(fl validator.FieldLevel) bool {
	switch models.SurveyStatus(fl.Field().String()) {
	case models.SurveyStatusDraft, models.SurveyStatusPublished, models.SurveyStatusClosed:
		return true
	}
	return false
}
