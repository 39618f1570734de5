package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/andressep95/nfc-access-service/internal/domain"
)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()

	// Use JSON tag names instead of struct field names for error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})

	_ = v.RegisterValidation("entity_id", func(fl validator.FieldLevel) bool {
		return domain.ValidEntityID(fl.Field().String())
	})
	_ = v.RegisterValidation("entity_type", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseEntityType(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("token_kind", func(fl validator.FieldLevel) bool {
		return domain.TokenKind(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("action_type", func(fl validator.FieldLevel) bool {
		return domain.ActionType(fl.Field().String()).Valid()
	})

	return &Validator{
		validate: v,
	}
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return formatValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func formatValidationErrors(errs validator.ValidationErrors) error {
	var messages []string
	for _, err := range errs {
		var message string
		field := strings.ToLower(err.Field())

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", field, err.Param())
		case "gte":
			message = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		case "lte":
			message = fmt.Sprintf("%s must be less than or equal to %s", field, err.Param())
		case "entity_id":
			message = fmt.Sprintf("%s must be 1-64 letters, digits, '-' or '_'", field)
		case "entity_type":
			message = fmt.Sprintf("%s must be one of: student, artist", field)
		case "token_kind":
			message = fmt.Sprintf("%s must be one of: permanent, temporary, one-time", field)
		case "action_type":
			message = fmt.Sprintf("%s must be one of: view, call, share, download, print", field)
		default:
			message = fmt.Sprintf("%s failed validation for %s", field, err.Tag())
		}
		messages = append(messages, message)
	}

	return errors.New(strings.Join(messages, "; "))
}
