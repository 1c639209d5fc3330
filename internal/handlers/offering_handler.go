package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/pricing"
	"github.com/saeid-a/MentorHubBack/internal/services"
)

type offeringService interface {
	CreateOffering(ctx context.Context, mentorID int64, input services.CreateOfferingInput) (*models.Session, error)
	ListOfferings(ctx context.Context, mentorID int64) ([]models.Session, error)
	DeleteOffering(ctx context.Context, mentorID int64, offeringID string) error
	QuotePrice(ctx context.Context, mentorID int64, durationMinutes int, packageCode string) (*pricing.Quote, error)
}

type OfferingHandler struct {
	service offeringService
}

func NewOfferingHandler(service offeringService) *OfferingHandler {
	return &OfferingHandler{service: service}
}

type createOfferingRequest struct {
	Title           string  `json:"title" validate:"required,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=2000"`
	DurationMinutes int     `json:"duration_minutes" validate:"required,gt=0"`
	BookingMode     string  `json:"booking_mode" validate:"omitempty,oneof=INSTANT REQUEST instant request"`
	CourseID        *string `json:"course_id" validate:"omitempty,max=64"`
}

func (h *OfferingHandler) CreateOffering(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleMentor {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	mentorID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createOfferingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validateRequest(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	offering, err := h.service.CreateOffering(c.Context(), mentorID, services.CreateOfferingInput{
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		BookingMode:     models.BookingMode(strings.ToUpper(req.BookingMode)),
		CourseID:        req.CourseID,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"offering": offering})
}

// ListOfferings lists a mentor's offerings. Mentors default to their own.
func (h *OfferingHandler) ListOfferings(c *fiber.Ctx) error {
	actor, err := parseActor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	mentorID := int64(0)
	if raw := strings.TrimSpace(c.Query("mentor_id")); raw != "" {
		mentorID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || mentorID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mentor_id"})
		}
	} else if actor.Role == models.RoleMentor {
		mentorID = actor.ID
	}

	offerings, err := h.service.ListOfferings(c.Context(), mentorID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"offerings": offerings})
}

func (h *OfferingHandler) DeleteOffering(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleMentor {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	mentorID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	offeringID, ok := parseIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offering id"})
	}

	if err := h.service.DeleteOffering(c.Context(), mentorID, offeringID); err != nil {
		return mapSessionError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *OfferingHandler) QuotePrice(c *fiber.Ctx) error {
	mentorID, err := strconv.ParseInt(strings.TrimSpace(c.Query("mentor_id")), 10, 64)
	if err != nil || mentorID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mentor_id"})
	}

	duration, err := strconv.Atoi(strings.TrimSpace(c.Query("duration_minutes", "60")))
	if err != nil || duration <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duration_minutes must be greater than 0"})
	}

	quote, err := h.service.QuotePrice(c.Context(), mentorID, duration, c.Query("package_code"))
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"quote": quote, "packages": pricing.Packages()})
}
