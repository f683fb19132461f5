package grading

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names so API clients and form labels line up.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError lists human-readable problems per field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid grading request: " + strings.Join(parts, "; ")
}

// FieldErrors implements the interface httputil uses to render 400s.
func (e *ValidationError) FieldErrors() map[string]string {
	return e.Fields
}

// Limits caps the size of free text sent to the model. Zero means unlimited.
type Limits struct {
	MaxRubricChars int
	MaxWorkChars   int
}

// Validate checks a normalised request.
func Validate(req Request, limits Limits) error {
	fields := map[string]string{}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields[fe.Field()] = describe(fe)
		}
	}
	if limits.MaxRubricChars > 0 && len([]rune(req.Rubric)) > limits.MaxRubricChars {
		fields["rubric"] = fmt.Sprintf("must be at most %d characters", limits.MaxRubricChars)
	}
	if limits.MaxWorkChars > 0 && len([]rune(req.StudentWork)) > limits.MaxWorkChars {
		fields["student_work"] = fmt.Sprintf("must be at most %d characters", limits.MaxWorkChars)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "paste a rubric or choose a preset"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}
