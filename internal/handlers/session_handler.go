package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/repository"
	"github.com/saeid-a/MentorHubBack/internal/services"
)

type SessionHandler struct {
	service   sessionApplicationService
	approvals sessionReviewService
	payments  paymentInitiator
}

type sessionApplicationService interface {
	BookSession(ctx context.Context, studentID int64, input services.BookSessionInput) (*models.SessionDetail, error)
	ListSessions(ctx context.Context, actor models.Actor, filter repository.SessionListFilter) ([]models.SessionDetail, error)
	GetSession(ctx context.Context, actor models.Actor, sessionID string) (*models.SessionDetail, error)
	StartSession(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error)
	CompleteSession(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error)
	CancelSession(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error)
	MarkNoShow(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error)
}

type sessionReviewService interface {
	Approve(ctx context.Context, sessionID string, mentorID int64) (*models.Session, error)
	Reject(ctx context.Context, sessionID string, mentorID int64, reason string) (*models.Session, error)
}

type paymentInitiator interface {
	InitiatePayment(ctx context.Context, actorID int64, sessionID string) (*models.PaymentInitiation, error)
}

func NewSessionHandler(
	service sessionApplicationService,
	approvals sessionReviewService,
	payments paymentInitiator,
) *SessionHandler {
	return &SessionHandler{service: service, approvals: approvals, payments: payments}
}

type bookSessionRequest struct {
	MentorID        int64   `json:"mentor_id" validate:"required,gt=0"`
	Title           string  `json:"title" validate:"required_without=OfferingID,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=2000"`
	DurationMinutes int     `json:"duration_minutes" validate:"required_without=OfferingID,gte=0"`
	PackageCode     string  `json:"package_code"`
	BookingMode     string  `json:"booking_mode" validate:"omitempty,oneof=INSTANT REQUEST instant request"`
	ScheduledAt     string  `json:"scheduled_at" validate:"required"`
	OfferingID      *string `json:"offering_id" validate:"omitempty,uuid"`
}

type rejectSessionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *SessionHandler) BookSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleStudent {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req bookSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validateRequest(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_at must be a valid RFC3339 timestamp"})
	}

	detail, err := h.service.BookSession(c.Context(), userID, services.BookSessionInput{
		MentorID:        req.MentorID,
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		PackageCode:     req.PackageCode,
		BookingMode:     models.BookingMode(strings.ToUpper(req.BookingMode)),
		ScheduledAt:     scheduledAt,
		OfferingID:      req.OfferingID,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": detail})
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	actor, err := parseActor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	timeframe := strings.TrimSpace(c.Query("timeframe"))
	if timeframe != "" && timeframe != "upcoming" && timeframe != "past" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "timeframe must be upcoming or past"})
	}

	sessions, err := h.service.ListSessions(c.Context(), actor, repository.SessionListFilter{
		Status:    strings.ToUpper(strings.TrimSpace(c.Query("status"))),
		Timeframe: timeframe,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"sessions": sessions})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	actor, err := parseActor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, ok := parseIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.GetSession(c.Context(), actor, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) ApproveSession(c *fiber.Ctx) error {
	return h.review(c, func(ctx context.Context, sessionID string, mentorID int64) (*models.Session, error) {
		return h.approvals.Approve(ctx, sessionID, mentorID)
	})
}

func (h *SessionHandler) RejectSession(c *fiber.Ctx) error {
	var req rejectSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if err := validateRequest(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	return h.review(c, func(ctx context.Context, sessionID string, mentorID int64) (*models.Session, error) {
		return h.approvals.Reject(ctx, sessionID, mentorID, req.Reason)
	})
}

func (h *SessionHandler) review(
	c *fiber.Ctx,
	decide func(ctx context.Context, sessionID string, mentorID int64) (*models.Session, error),
) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleMentor {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	mentorID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, ok := parseIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := decide(c.Context(), sessionID, mentorID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) StartSession(c *fiber.Ctx) error {
	return h.transition(c, h.service.StartSession)
}

func (h *SessionHandler) CompleteSession(c *fiber.Ctx) error {
	return h.transition(c, h.service.CompleteSession)
}

func (h *SessionHandler) CancelSession(c *fiber.Ctx) error {
	return h.transition(c, h.service.CancelSession)
}

func (h *SessionHandler) MarkNoShow(c *fiber.Ctx) error {
	return h.transition(c, h.service.MarkNoShow)
}

func (h *SessionHandler) transition(
	c *fiber.Ctx,
	apply func(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error),
) error {
	actor, err := parseActor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, ok := parseIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := apply(c.Context(), actor, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) PayForSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleStudent {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, ok := parseIDParam(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	payment, err := h.payments.InitiatePayment(c.Context(), userID, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payment": payment})
}
