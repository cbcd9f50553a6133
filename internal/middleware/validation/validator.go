package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxBodySize         int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects structurally invalid anomaly-API requests before they
// reach the handlers: wrong content type, unparseable JSON, missing or
// mistyped userId, and negative consumption values.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := c.Get("Content-Type")
		if contentType != "" {
			allowed := false
			for _, allowedType := range cfg.AllowedContentTypes {
				if strings.Contains(contentType, allowedType) {
					allowed = true
					break
				}
			}
			if !allowed {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		if len(c.Body()) > cfg.MaxBodySize {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Request body exceeds maximum size",
			})
		}

		if !strings.Contains(c.Path(), "/api/anomaly") {
			return c.Next()
		}

		var req map[string]interface{}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		userID, ok := req["userId"].(string)
		if !ok || userID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "userId is required and must be a string",
			})
		}

		for _, field := range []string{"hourlyConsumption", "consumptionValue"} {
			raw, present := req[field]
			if !present {
				continue
			}
			value, numeric := raw.(float64)
			if !numeric {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": field + " must be a number",
				})
			}
			if value < 0 {
				if cfg.Logger != nil {
					cfg.Logger.Warn("Rejected negative consumption value",
						zap.String("ip", c.IP()),
						zap.String("field", field),
						zap.Float64("value", value),
					)
				}
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": field + " must not be negative",
				})
			}
		}

		return c.Next()
	}
}
