package collection

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/herbtrace/herbtrace/pkg/geo"
)

// requestValidate checks create payloads. Field names in messages are the
// JSON names.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	requestValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = requestValidate.RegisterValidation("notblank", validateNotBlank)
}

// validateNotBlank rejects strings that are empty after trimming.
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// requestErrors returns one message per violated struct rule, in field
// order. A non-nil error means validation itself could not run.
func requestErrors(req *CreateRequest) ([]string, error) {
	err := requestValidate.Struct(req)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, fmt.Errorf("validate request: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return msgs, nil
}

// validateCreate checks req as a whole and returns a *ValidationError
// holding every problem found: struct rules first, then the collection date,
// then the coordinates. The parsed collection date is returned on success.
func validateCreate(req *CreateRequest, now time.Time) (time.Time, error) {
	if req == nil {
		return time.Time{}, invalid("request body is required")
	}
	msgs, err := requestErrors(req)
	if err != nil {
		return time.Time{}, err
	}

	date, perr := time.ParseInLocation("2006-01-02", req.CollectionDate, time.Local)
	if perr == nil && date.After(now) {
		msgs = append(msgs, "collectionDate cannot be in the future")
	}

	if req.Latitude != nil && req.Longitude != nil {
		p := req.Point()
		switch {
		case !geo.IsValidCoordinate(p):
			msgs = append(msgs, geo.ErrInvalidCoordinate)
		case !geo.IsValidCountryCoordinate(p):
			msgs = append(msgs, geo.ErrOutsideCountry)
		}
	}

	if len(msgs) > 0 {
		return time.Time{}, invalid(msgs...)
	}
	return date, nil
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		return fmt.Sprintf("%s must match layout %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func hasGeoError(e *ValidationError) bool {
	return slices.Contains(e.Errors, geo.ErrInvalidCoordinate) || slices.Contains(e.Errors, geo.ErrOutsideCountry)
}
