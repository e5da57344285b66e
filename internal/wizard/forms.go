package wizard

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/parish-camps/camp-api/internal/apperr"
)

type ParticipantForm struct {
	Name       string    `json:"name" validate:"required,max=120"`
	NationalID string    `json:"national_id" validate:"required,alphanum,min=5,max=20"`
	Email      string    `json:"email" validate:"required,email"`
	Phone      string    `json:"phone" validate:"required,min=8,max=20"`
	BirthDate  time.Time `json:"birth_date" validate:"required"`
}

type SpouseForm struct {
	SpouseNationalID string `json:"spouse_national_id" validate:"required,alphanum,min=5,max=20"`
}

type HealthForm struct {
	Allergies   string            `json:"allergies,omitempty" validate:"max=500"`
	Medications string            `json:"medications,omitempty" validate:"max=500"`
	Conditions  string            `json:"conditions,omitempty" validate:"max=500"`
	Dietary     string            `json:"dietary,omitempty" validate:"max=500"`
	Answers     map[string]string `json:"answers,omitempty" validate:"dive,keys,required,endkeys,max=500"`
}

type GuardianForm struct {
	Name         string `json:"name" validate:"required,max=120"`
	Phone        string `json:"phone" validate:"required,min=8,max=20"`
	Relationship string `json:"relationship" validate:"required,max=60"`
}

type EmergencyForm struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"required,min=8,max=20"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a step form and reports failures as an apperr.ValidationError.
func Validate(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &apperr.ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		verr.Fields[fe.Field()] = describe(fe)
	}
	return verr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "alphanum":
		return "must contain only letters and digits"
	case "min":
		return "must have at least " + fe.Param() + " characters"
	case "max":
		return "must have at most " + fe.Param() + " characters"
	}
	return "is invalid"
}
