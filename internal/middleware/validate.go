package middleware

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/bilgisen/kafkaesque/internal/logger"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// QueryKey is the Locals key holding the parsed query of ValidateQuery
const QueryKey = "query"

var basicEmail = regexp.MustCompile(`\S+@\S+\.\S+`)

// Validator is a struct that holds the validator instance
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance with the custom tags registered:
//
//	basic_email  something@something.something, nothing stricter
func NewValidator() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("basic_email", func(fl validator.FieldLevel) bool {
		return basicEmail.MatchString(fl.Field().String())
	})
	return &Validator{validate: v}
}

// Validate validates the struct against its validate tags
func (v *Validator) Validate(s interface{}) error {
	return v.validate.Struct(s)
}

// Fields maps each failing field to the tag it failed
func Fields(err error) map[string]string {
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
	}
	return fields
}

// ValidateQuery parses the query string into a fresh T per request, validates
// it and stores it under QueryKey. Failures answer 400.
func ValidateQuery[T any](v *Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		params := new(T)
		if err := c.QueryParser(params); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid query parameters",
				"msg":   err.Error(),
			})
		}

		if err := v.Validate(params); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "Invalid query parameters",
				"fields": Fields(err),
			})
		}

		c.Locals(QueryKey, params)
		return c.Next()
	}
}

// ErrorHandler renders errors that escape handlers as JSON
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := statusOf(err)

	event := logger.Get().Warn()
	if code >= fiber.StatusInternalServerError {
		event = logger.Get().Error()
	}
	event.
		Err(err).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", code).
		Msg("HTTP error")

	message := http.StatusText(code)
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Message != "" {
		message = fe.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}

func statusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
