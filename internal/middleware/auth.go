package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/bilgisen/kafkaesque/internal/logger"
	"github.com/gofiber/fiber/v2"
)

var (
	errMissingKey = errors.New("missing API key")
	errInvalidKey = errors.New("invalid API key")
)

// AuthConfig defines the config for the auth middleware
type AuthConfig struct {
	// Next defines a function to skip middleware.
	// Optional. Default: nil
	Next func(c *fiber.Ctx) bool

	// Validator is a function to validate the API key.
	// Required.
	Validator func(key string) (bool, error)

	// ErrorHandler defines a function which is executed for a missing or invalid API key.
	// Optional. Default: 401 for a missing key, 403 otherwise
	ErrorHandler fiber.ErrorHandler

	// ContextKey is the key used to store the API key in the context.
	// Optional. Default: "apiKey"
	ContextKey string

	// Header is the header key where to get the API key from.
	// "Authorization: Bearer <key>" is always accepted as well.
	// Optional. Default: "X-API-Key"
	Header string
}

// ConfigDefault is the default config
var ConfigDefault = AuthConfig{
	ErrorHandler: func(c *fiber.Ctx, err error) error {
		status := fiber.StatusForbidden
		message := "Admin access required"
		if errors.Is(err, errMissingKey) {
			status = fiber.StatusUnauthorized
			message = "API key is required"
		}

		logger.Get().Warn().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Err(err).
			Msg("Authentication failed")

		return c.Status(status).JSON(fiber.Map{
			"error": message,
		})
	},
	ContextKey: "apiKey",
	Header:     "X-API-Key",
}

// NewAuth creates a new API key middleware handler
func NewAuth(config ...AuthConfig) fiber.Handler {
	cfg := ConfigDefault

	if len(config) > 0 {
		cfg = config[0]

		if cfg.ErrorHandler == nil {
			cfg.ErrorHandler = ConfigDefault.ErrorHandler
		}
		if cfg.ContextKey == "" {
			cfg.ContextKey = ConfigDefault.ContextKey
		}
		if cfg.Header == "" {
			cfg.Header = ConfigDefault.Header
		}
	}
	if cfg.Validator == nil {
		panic("middleware: auth requires a Validator")
	}

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		key := apiKey(c, cfg.Header)
		if key == "" {
			return cfg.ErrorHandler(c, errMissingKey)
		}

		valid, err := cfg.Validator(key)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}
		if !valid {
			return cfg.ErrorHandler(c, errInvalidKey)
		}

		c.Locals(cfg.ContextKey, key)
		return c.Next()
	}
}

// AdminOnly guards admin routes with a single shared key.
// An empty adminKey disables the routes entirely (404).
func AdminOnly(adminKey string) fiber.Handler {
	if adminKey == "" {
		return func(c *fiber.Ctx) error {
			return fiber.ErrNotFound
		}
	}

	expected := []byte(adminKey)
	return NewAuth(AuthConfig{
		Validator: func(key string) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), expected) == 1, nil
		},
	})
}

func apiKey(c *fiber.Ctx, header string) string {
	if key := strings.TrimSpace(c.Get(header)); key != "" {
		return key
	}
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
