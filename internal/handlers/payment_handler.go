package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/saeid-a/MentorHubBack/internal/apperrors"
	"github.com/saeid-a/MentorHubBack/internal/gateway"
	"github.com/saeid-a/MentorHubBack/internal/models"
)

type paymentVerifier interface {
	GetTransaction(ctx context.Context, reference string) (*models.Transaction, error)
	VerifyPayment(ctx context.Context, reference string) (*models.Transaction, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*models.Transaction, error)
}

type PaymentHandler struct {
	service paymentVerifier
}

func NewPaymentHandler(service paymentVerifier) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	actor, err := parseActor(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	reference := strings.TrimSpace(c.Params("reference"))
	if reference == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reference is required"})
	}

	existing, err := h.service.GetTransaction(c.Context(), reference)
	if err != nil {
		return mapSessionError(c, err)
	}
	if !actor.IsAdmin() && actor.ID != existing.PayerID && actor.ID != existing.Metadata.MentorID {
		return mapSessionError(c, apperrors.NotFound("transaction", reference))
	}

	txn, err := h.service.VerifyPayment(c.Context(), reference)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"transaction": txn})
}

// PaymentCallback is where the gateway redirects the payer after checkout.
// The query string is untrusted; the reference is verified server to server.
func (h *PaymentHandler) PaymentCallback(c *fiber.Ctx) error {
	reference := strings.TrimSpace(c.Query("reference"))
	if reference == "" {
		reference = strings.TrimSpace(c.Query("trxref"))
	}
	if reference == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reference is required"})
	}

	txn, err := h.service.VerifyPayment(c.Context(), reference)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{
		"reference":  txn.Reference,
		"session_id": txn.SessionID,
		"status":     txn.Status,
	})
}

func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	signature := c.Get(gateway.SignatureHeader)

	txn, err := h.service.HandleWebhook(c.Context(), body, signature)
	if err != nil {
		log.Warn().Err(err).Msg("webhook rejected")
		return mapSessionError(c, err)
	}
	if txn == nil {
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	return c.JSON(fiber.Map{"status": "ok", "reference": txn.Reference, "transaction_status": txn.Status})
}
