package handlers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/calendar"
)

var validationMessages = map[string]string{
	"required": "is required",
	"datetime": "must match %s",
	"oneof":    "must be one of %s",
	"slot":     "must be a bookable slot between 09:00 and 16:30 on the half hour",
	"max":      "must be at most %s",
	"gt":       "must be greater than %s",
	"lte":      "must be at most %s",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("slot", func(fl validator.FieldLevel) bool {
		return calendar.OnGrid(fl.Field().String())
	})
	return v
}

// formatValidation renders every failed field as "<json name> <message>".
func formatValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := validationMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		if strings.Contains(msg, "%s") {
			param := fe.Param()
			if fe.Tag() == "oneof" {
				param = strings.Join(strings.Fields(param), ", ")
			}
			msg = strings.Replace(msg, "%s", param, 1)
		}
		parts = append(parts, fe.Field()+" "+msg)
	}
	return strings.Join(parts, ", ")
}
