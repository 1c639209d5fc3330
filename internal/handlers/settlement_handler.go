package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/repository"
)

type settlementReporter interface {
	Report(ctx context.Context, actor models.Actor, filter repository.SettlementFilter) (*models.SettlementReport, error)
}

type SettlementHandler struct {
	service settlementReporter
}

func NewSettlementHandler(service settlementReporter) *SettlementHandler {
	return &SettlementHandler{service: service}
}

// Report accepts from/to as RFC3339 timestamps or YYYY-MM-DD dates. A date
// in "to" is exclusive, so to=2026-02-01 covers all of January.
func (h *SettlementHandler) Report(c *fiber.Ctx) error {
	actor, err := parseActor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	from, err := parseReportTime(c.Query("from"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "from must be an RFC3339 timestamp or YYYY-MM-DD date"})
	}
	to, err := parseReportTime(c.Query("to"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "to must be an RFC3339 timestamp or YYYY-MM-DD date"})
	}

	filter := repository.SettlementFilter{
		From:        from,
		To:          to,
		ProductType: strings.TrimSpace(c.Query("product_type")),
	}
	if raw := strings.TrimSpace(c.Query("mentor_id")); raw != "" {
		mentorID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || mentorID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mentor_id"})
		}
		filter.MentorID = &mentorID
	}

	report, err := h.service.Report(c.Context(), actor, filter)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"report": report})
}

func parseReportTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
