package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/example/church-pickups/internal/application"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names so field errors match the request payload.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a JSON body into dst and validates its struct tags.
// A malformed body yields errBadRequestBody; tag failures yield a *application.ValidationError.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequestBody, err)
	}
	if vErr := validateStruct(dst); vErr != nil {
		return vErr
	}
	return nil
}

func validateStruct(value any) *application.ValidationError {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return &application.ValidationError{FieldErrors: map[string]string{"body": err.Error()}}
	}

	vErr := &application.ValidationError{FieldErrors: make(map[string]string, len(fieldErrors))}
	for _, fe := range fieldErrors {
		vErr.FieldErrors[fe.Field()] = describeFieldError(fe)
	}
	return vErr
}

func describeFieldError(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return name + " must be a valid email address"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", name, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", name, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must use the %s format", name, fe.Param())
	default:
		return name + " is invalid"
	}
}

// parseDate reads a YYYY-MM-DD calendar date as midnight in loc.
func parseDate(field, value string, loc *time.Location) (time.Time, *application.ValidationError) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, &application.ValidationError{FieldErrors: map[string]string{field: field + " must use the 2006-01-02 format"}}
	}
	return t, nil
}

func parseOptionalDate(field, value string, loc *time.Location) (*time.Time, *application.ValidationError) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, vErr := parseDate(field, value, loc)
	if vErr != nil {
		return nil, vErr
	}
	return &t, nil
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
