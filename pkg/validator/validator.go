package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// agentIDPattern covers human handles and the bot naming convention
// (bot:random, bot:greedy, bot:gnubg:<plies>).
var agentIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._:-]*$`)

// IsAgentID reports whether s is a well-formed agent identifier.
func IsAgentID(s string) bool {
	return agentIDPattern.MatchString(s)
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// Message renders the failure as a client-facing sentence.
func (e ValidationError) Message() string {
	field := e.Field
	if field == "" {
		field = "field"
	}
	field = strings.ToLower(strings.ReplaceAll(field, "_", " "))

	switch e.Tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, e.Param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param)
	case "agentid":
		return fmt.Sprintf("%s contains invalid characters", field)
	default:
		if e.Param != "" {
			return fmt.Sprintf("%s failed validation: %s=%s", field, e.Tag, e.Param)
		}
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag)
	}
}

// ValidationErrors collects multiple validation failures.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(v))
	for i, err := range v {
		parts[i] = err.Message()
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct validates a struct using registered rules.
func ValidateStruct(s interface{}) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	if ve, ok := err.(validator.ValidationErrors); ok {
		failures := make(ValidationErrors, 0, len(ve))
		for _, fe := range ve {
			failures = append(failures, ValidationError{
				Field: fe.Field(),
				Tag:   fe.Tag(),
				Param: fe.Param(),
			})
		}
		return failures
	}

	return err
}

// RegisterValidation exposes underlying validator custom rules.
func RegisterValidation(tag string, fn validator.Func) error {
	return getValidator().RegisterValidation(tag, fn)
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := fld.Tag.Get("json")
			if name == "" {
				return fld.Name
			}

			comma := strings.Index(name, ",")
			if comma != -1 {
				name = name[:comma]
			}

			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		// Domain rules available to every request struct.
		if err := validate.RegisterValidation("agentid", func(fl validator.FieldLevel) bool {
			return IsAgentID(fl.Field().String())
		}); err != nil {
			panic(err)
		}
	})
	return validate
}
