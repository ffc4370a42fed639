package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/hyperengineering/cinelines/internal/types"
)

// MaxLineTextLength is the maximum length of a line's text, in runes.
const MaxLineTextLength = 10000

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// AddAll appends every error in errs.
func (c *Collector) AddAll(errs []ValidationError) {
	c.errors = append(c.errors, errs...)
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

var structValidator = newStructValidator()

// newStructValidator reports fields by their JSON names.
func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct checks the `validate` tags of s and returns one error per
// failing field. Field paths omit the struct name, e.g. "lines[0].character_id".
func ValidateStruct(s any) []ValidationError {
	err := structValidator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Field: "", Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		out = append(out, ValidationError{Field: field, Message: tagMessage(fe)})
	}
	return out
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		switch fe.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		case reflect.String:
			return fmt.Sprintf("exceeds maximum length of %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// ValidateCreateConversation checks the shape of a create-conversation
// request. It does not consult the store; referential checks happen at
// ingest.
func ValidateCreateConversation(req *types.CreateConversationRequest) []ValidationError {
	var c Collector
	c.AddAll(ValidateStruct(req))

	for i, l := range req.Lines {
		field := fmt.Sprintf("lines[%d].line_text", i)
		c.Add(ValidateUTF8(field, l.LineText))
		c.Add(ValidateNoNullBytes(field, l.LineText))
		c.Add(ValidateMaxLength(field, l.LineText, MaxLineTextLength))
	}
	return c.Errors()
}
