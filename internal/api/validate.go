package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Zubariev/quarantine/internal/game"
	"github.com/go-playground/validator/v10"
)

type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("stat", func(fl validator.FieldLevel) bool {
		_, err := game.ParseStat(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("activity_id", func(fl validator.FieldLevel) bool {
		return game.ValidateActivityID(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("activity_type", func(fl validator.FieldLevel) bool {
		_, err := game.ParseActivityType(fl.Field().String())
		return err == nil
	})
	return &requestValidator{validate: v}
}

// Struct validates dst and flattens field errors into one readable message.
func (v *requestValidator) Struct(dst any) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "email":
		return field + " must be a valid email"
	case "stat":
		return fmt.Sprintf("invalid stat type: %v", fe.Value())
	case "activity_id":
		return field + " must be a lowercase slug"
	case "activity_type":
		return fmt.Sprintf("invalid activity type: %v", fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
