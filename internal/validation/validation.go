// Package validation configures the struct validator shared by the
// incident store and the alert dispatcher.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mr1hm/go-wildfire-alerts/internal/apperr"
	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

// New returns a validator that reports JSON field names and knows the
// lat, lng and latlng rules.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Validate the value of a nullable patch field; null and absent both pass.
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		n, _ := f.Interface().(models.NullableString)
		return n.Value
	}, models.NullableString{})
	v.RegisterValidation("lat", func(fl validator.FieldLevel) bool {
		lat := fl.Field().Float()
		return lat >= -90 && lat <= 90
	})
	v.RegisterValidation("lng", func(fl validator.FieldLevel) bool {
		lng := fl.Field().Float()
		return lng >= -180 && lng <= 180
	})
	v.RegisterValidation("latlng", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		if f.Kind() != reflect.Array || f.Len() != 2 {
			return false
		}
		lat, lng := f.Index(0).Float(), f.Index(1).Float()
		return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
	})
	return v
}

// ToError converts the first validator failure into an
// apperr.ValidationError naming the JSON field.
func ToError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return err
	}
	fe := ve[0]
	return &apperr.ValidationError{Field: fe.Field(), Message: describe(fe)}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "lat":
		return fmt.Sprintf("must be between -90 and 90, got %v", fe.Value())
	case "lng":
		return fmt.Sprintf("must be between -180 and 180, got %v", fe.Value())
	case "latlng":
		return fmt.Sprintf("must be a [latitude, longitude] pair within bounds, got %v", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return "failed " + fe.Tag() + " check"
	}
}
