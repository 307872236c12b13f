package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postqueue/internal/api/middleware"
	"github.com/maheshrc27/postqueue/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func GetActor(c *fiber.Ctx) string {
	actor, _ := c.Locals(middleware.ActorKey).(string)
	return actor
}

// parseBody decodes the JSON body into dst and runs its validate tags.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return models.NewValidationError("body", "unable to parse json")
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return models.NewValidationError(fe.Field(), fmt.Sprintf("failed on %q", fe.Tag()))
		}
		return models.NewValidationError("body", err.Error())
	}
	return nil
}

// queryTime parses an RFC 3339 query parameter, falling back to def when it
// is absent.
func queryTime(c *fiber.Ctx, key string, def time.Time) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, models.NewValidationError(key, "must be an RFC 3339 timestamp")
	}
	return t, nil
}

// errorResponse maps a service error to its HTTP status.
func errorResponse(c *fiber.Ctx, err error) error {
	var (
		valErr *models.ValidationError
		extErr *models.ExternalError
	)
	switch {
	case errors.As(err, &valErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": valErr.Error()})
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &extErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": extErr.Error()})
	}
	return err
}
