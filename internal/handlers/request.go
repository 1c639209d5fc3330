package handlers

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/saeid-a/MentorHubBack/internal/apperrors"
	"github.com/saeid-a/MentorHubBack/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest reports the first failing field of a request body as a
// client readable message.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required", "required_without":
		return apperrors.Validation(fe.Field(), "is required")
	case "gt", "gte", "min":
		return apperrors.Validation(fe.Field(), "must be at least "+fe.Param())
	case "max":
		return apperrors.Validation(fe.Field(), "must be at most "+fe.Param())
	case "oneof":
		return apperrors.Validation(fe.Field(), "must be one of "+fe.Param())
	case "uuid":
		return apperrors.Validation(fe.Field(), "must be a valid id")
	default:
		return apperrors.Validation(fe.Field(), "is invalid")
	}
}

func parseUserID(c *fiber.Ctx) (int64, error) {
	userIDValue := c.Locals("user_id")
	userIDStr, ok := userIDValue.(string)
	if !ok {
		return 0, strconv.ErrSyntax
	}
	return parseInt64(userIDStr)
}

func parseInt64(raw string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
}

func parseActor(c *fiber.Ctx) (models.Actor, error) {
	userID, err := parseUserID(c)
	if err != nil {
		return models.Actor{}, err
	}
	role, _ := c.Locals("role").(string)
	return models.Actor{ID: userID, Role: role}, nil
}

func parseIDParam(c *fiber.Ctx) (string, bool) {
	id := strings.TrimSpace(c.Params("id"))
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func mapSessionError(c *fiber.Ctx, err error) error {
	var conflict *apperrors.StateConflictError
	var gatewayErr *apperrors.GatewayError

	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, apperrors.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, apperrors.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &conflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  apperrors.ErrStateConflict.Error(),
			"status": conflict.Current,
		})
	case errors.As(err, &gatewayErr):
		log.Error().Err(err).Str("op", gatewayErr.Op).Str("code", gatewayErr.Code).Msg("payment gateway failure")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": apperrors.ErrGateway.Error()})
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process session request"})
	}
}
