package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/saeid-a/MentorHubBack/internal/apperrors"
	"github.com/saeid-a/MentorHubBack/internal/gateway"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/pricing"
	"github.com/saeid-a/MentorHubBack/internal/repository"
	"github.com/tidwall/gjson"
)

const (
	reconcileBatchSize = 100
	// maxReconcileAttempts bounds how often one stale transaction is re-verified
	// before it is left for manual review.
	maxReconcileAttempts = 20
)

type paymentGateway interface {
	Initialize(ctx context.Context, input gateway.InitializeRequest) (*gateway.InitializeResult, error)
	Verify(ctx context.Context, reference string) (*gateway.VerifyResult, error)
	VerifyWebhookSignature(body []byte, signature string) bool
}

// errSettledConcurrently marks a verification that lost the conditional
// update to another caller.
var errSettledConcurrently = errors.New("transaction settled concurrently")

type PaymentService struct {
	store       repository.Store
	users       userReader
	gateway     paymentGateway
	notifier    notifier
	callbackURL string
	now         func() time.Time
}

func NewPaymentService(
	store repository.Store,
	users userReader,
	gw paymentGateway,
	n notifier,
	callbackURL string,
) *PaymentService {
	return &PaymentService{
		store:       store,
		users:       users,
		gateway:     gw,
		notifier:    notifierOrNop(n),
		callbackURL: callbackURL,
		now:         utcNow,
	}
}

// InitiatePayment opens a PENDING transaction for the session and asks the
// gateway for a hosted checkout URL.
func (s *PaymentService) InitiatePayment(
	ctx context.Context,
	actorID int64,
	sessionID string,
) (*models.PaymentInitiation, error) {
	payer, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return nil, notFoundOr(err, "user", fmt.Sprint(actorID))
	}

	var txn *models.Transaction
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		session, err := tx.Sessions().GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return notFoundOr(err, "session", sessionID)
		}
		if session.StudentID != actorID {
			return apperrors.Forbidden("session", sessionID, actorID, "pay")
		}
		if !session.Payable() {
			current := string(session.Status)
			if session.PaymentStatus == models.PaymentStatusPaid {
				current = string(models.PaymentStatusPaid)
			}
			return apperrors.StateConflict(sessionID, "pay", current)
		}

		if _, err := tx.Transactions().GetOpenBySessionID(ctx, sessionID); err == nil {
			return apperrors.StateConflict(sessionID, "pay", "PAYMENT_PENDING")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load open transaction: %w", err)
		}

		platform, provider := pricing.Split(session.Price)
		created, err := tx.Transactions().Create(ctx, repository.CreateTransactionInput{
			Reference:     models.ReferencePrefix + "-" + uuid.NewString(),
			SessionID:     session.ID,
			PayerID:       actorID,
			Amount:        session.Price,
			PaymentMethod: models.PaymentMethodCard,
			PlatformShare: platform,
			ProviderShare: provider,
			Metadata: models.TransactionMetadata{
				SessionID:   session.ID,
				PayerID:     actorID,
				PayerEmail:  payer.Email,
				MentorID:    session.MentorID,
				ProductType: models.ProductTypeMentorship,
				PackageCode: session.PackageCode,
			},
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.StateConflict(sessionID, "pay", "PAYMENT_PENDING")
			}
			return fmt.Errorf("create transaction: %w", err)
		}
		txn = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:       payer.Email,
		AmountMinor: pricing.MinorUnits(txn.Amount),
		Reference:   txn.Reference,
		CallbackURL: s.callbackURL,
		Metadata:    txn.Metadata,
	})
	if err != nil {
		code := gateway.ErrorCode(err)
		log.Error().Err(err).
			Str("reference", txn.Reference).
			Str("session_id", sessionID).
			Str("gateway_code", code).
			Msg("gateway initialize failed")
		s.abandonTransaction(context.WithoutCancel(ctx), txn, code)
		return nil, apperrors.Gateway("initialize", code, err)
	}

	log.Info().
		Str("reference", txn.Reference).
		Str("session_id", sessionID).
		Int64("payer_id", actorID).
		Msg("payment initiated")

	return &models.PaymentInitiation{
		AuthorizationURL: result.AuthorizationURL,
		Reference:        txn.Reference,
	}, nil
}

// abandonTransaction fails a transaction the gateway never accepted so the
// student can start a new attempt.
func (s *PaymentService) abandonTransaction(ctx context.Context, txn *models.Transaction, code string) {
	metadata := txn.Metadata
	metadata.GatewayErrorCode = code
	_, err := s.store.Transactions().UpdateStatusIfCurrent(ctx, repository.TransactionStatusUpdate{
		Reference: txn.Reference,
		From:      models.TransactionStatusPending,
		To:        models.TransactionStatusFailed,
		Metadata:  &metadata,
	})
	if err != nil {
		log.Error().Err(err).Str("reference", txn.Reference).Msg("failed to mark transaction failed")
	}
}

// GetTransaction loads a transaction without contacting the gateway.
func (s *PaymentService) GetTransaction(ctx context.Context, reference string) (*models.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperrors.Validation("reference", "is required")
	}
	return s.reload(ctx, reference)
}

// VerifyPayment reconciles a transaction with the gateway. Terminal
// transactions are returned unchanged.
func (s *PaymentService) VerifyPayment(ctx context.Context, reference string) (*models.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperrors.Validation("reference", "is required")
	}

	txn, err := s.store.Transactions().GetByReference(ctx, reference)
	if err != nil {
		return nil, notFoundOr(err, "transaction", reference)
	}
	if txn.Status.Terminal() {
		return txn, nil
	}

	result, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		code := gateway.ErrorCode(err)
		log.Warn().Err(err).Str("reference", reference).Str("gateway_code", code).Msg("gateway verify failed")
		return nil, apperrors.Gateway("verify", code, err)
	}

	amountMatches := result.AmountMinor == pricing.MinorUnits(txn.Amount)
	switch result.Status {
	case gateway.StatusSuccess:
		if amountMatches {
			return s.completeTransaction(ctx, txn, result)
		}
		log.Warn().
			Str("reference", reference).
			Int64("expected_minor", pricing.MinorUnits(txn.Amount)).
			Int64("received_minor", result.AmountMinor).
			Msg("gateway amount mismatch")
		return s.failTransaction(ctx, txn, result, "amount_mismatch")
	case gateway.StatusFailed, gateway.StatusAbandoned, gateway.StatusReversed:
		return s.failTransaction(ctx, txn, result, "")
	default:
		log.Debug().Str("reference", reference).Str("gateway_status", result.Status).Msg("payment still in flight")
		return txn, nil
	}
}

func (s *PaymentService) completeTransaction(
	ctx context.Context,
	txn *models.Transaction,
	result *gateway.VerifyResult,
) (*models.Transaction, error) {
	metadata := txn.Metadata
	metadata.GatewayStatus = result.Status
	metadata.Channel = result.Channel
	completedAt := s.now()
	if result.PaidAt != nil {
		completedAt = result.PaidAt.UTC()
	}

	var completed *models.Transaction
	var session *models.Session
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		updated, err := tx.Transactions().UpdateStatusIfCurrent(ctx, repository.TransactionStatusUpdate{
			Reference:   txn.Reference,
			From:        models.TransactionStatusPending,
			To:          models.TransactionStatusCompleted,
			Metadata:    &metadata,
			CompletedAt: &completedAt,
		})
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return errSettledConcurrently
			}
			return fmt.Errorf("complete transaction: %w", err)
		}

		paid, err := tx.Sessions().MarkPaidIfPending(ctx, txn.SessionID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("mark session paid: %w", err)
		}
		if err != nil {
			log.Warn().Str("reference", txn.Reference).Str("session_id", txn.SessionID).
				Msg("session was already paid")
		}

		completed = updated
		session = paid
		return nil
	})
	if errors.Is(err, errSettledConcurrently) {
		return s.reload(ctx, txn.Reference)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("reference", completed.Reference).
		Str("session_id", completed.SessionID).
		Str("amount", completed.Amount.StringFixed(pricing.MinorUnitPlaces)).
		Msg("payment completed")

	if session != nil {
		s.notifier.NotifyUser(ctx, completed.PayerID, models.Notification{
			Type:        models.NotificationPaymentReceived,
			Title:       "Payment confirmed",
			Message:     fmt.Sprintf("Your payment for %q was received.", session.Title),
			ActionURL:   sessionActionURL(session.ID),
			ActionLabel: "View session",
			CreatedAt:   s.now(),
		})
		s.notifier.NotifyUser(ctx, session.MentorID, models.Notification{
			Type:        models.NotificationPaymentReceived,
			Title:       "Session paid",
			Message:     fmt.Sprintf("The student paid for %q.", session.Title),
			ActionURL:   sessionActionURL(session.ID),
			ActionLabel: "View session",
			CreatedAt:   s.now(),
		})
	}
	return completed, nil
}

func (s *PaymentService) failTransaction(
	ctx context.Context,
	txn *models.Transaction,
	result *gateway.VerifyResult,
	errorCode string,
) (*models.Transaction, error) {
	metadata := txn.Metadata
	metadata.GatewayStatus = result.Status
	metadata.Channel = result.Channel
	if errorCode != "" {
		metadata.GatewayErrorCode = errorCode
	}

	failed, err := s.store.Transactions().UpdateStatusIfCurrent(ctx, repository.TransactionStatusUpdate{
		Reference: txn.Reference,
		From:      models.TransactionStatusPending,
		To:        models.TransactionStatusFailed,
		Metadata:  &metadata,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.reload(ctx, txn.Reference)
		}
		return nil, fmt.Errorf("fail transaction: %w", err)
	}

	log.Info().
		Str("reference", failed.Reference).
		Str("session_id", failed.SessionID).
		Str("gateway_status", result.Status).
		Msg("payment failed")

	s.notifier.NotifyUser(ctx, failed.PayerID, models.Notification{
		Type:        models.NotificationPaymentFailed,
		Title:       "Payment not completed",
		Message:     "Your payment did not go through. You can try again from the session page.",
		ActionURL:   sessionActionURL(failed.SessionID),
		ActionLabel: "Try again",
		CreatedAt:   s.now(),
	})
	return failed, nil
}

func (s *PaymentService) reload(ctx context.Context, reference string) (*models.Transaction, error) {
	txn, err := s.store.Transactions().GetByReference(ctx, reference)
	if err != nil {
		return nil, notFoundOr(err, "transaction", reference)
	}
	return txn, nil
}

// HandleWebhook authenticates a gateway event and re-verifies the referenced
// transaction. Events that are not charge events are ignored and return nil.
func (s *PaymentService) HandleWebhook(
	ctx context.Context,
	body []byte,
	signature string,
) (*models.Transaction, error) {
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		return nil, apperrors.Forbidden("webhook", "", 0, "deliver")
	}
	if !gjson.ValidBytes(body) {
		return nil, apperrors.Validation("body", "malformed JSON")
	}

	event := gjson.GetBytes(body, "event").String()
	if !strings.HasPrefix(event, "charge.") {
		log.Debug().Str("event", event).Msg("ignoring webhook event")
		return nil, nil
	}

	reference := gjson.GetBytes(body, "data.reference").String()
	if reference == "" {
		return nil, apperrors.Validation("data.reference", "is required")
	}
	if !strings.HasPrefix(reference, models.ReferencePrefix+"-") {
		log.Debug().Str("reference", reference).Msg("ignoring webhook for foreign reference")
		return nil, nil
	}

	log.Info().Str("event", event).Str("reference", reference).Msg("webhook received")
	return s.VerifyPayment(ctx, reference)
}

// ReconcileStale re-verifies PENDING transactions created more than olderThan
// ago and returns how many reached a terminal state. Each tick starts with the
// transactions checked least recently, so rows that stay in flight cannot
// starve newer ones.
func (s *PaymentService) ReconcileStale(ctx context.Context, olderThan time.Duration) (int, error) {
	now := s.now()
	pending, err := s.store.Transactions().ListStalePending(ctx, repository.StalePendingFilter{
		CreatedBefore: now.Add(-olderThan),
		MaxAttempts:   maxReconcileAttempts,
		Limit:         reconcileBatchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("list stale transactions: %w", err)
	}

	settled := 0
	for _, txn := range pending {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		updated, err := s.VerifyPayment(ctx, txn.Reference)
		if err == nil && updated.Status.Terminal() {
			settled++
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("reference", txn.Reference).Msg("stale payment re-verification failed")
		}
		if markErr := s.store.Transactions().RecordReconcileAttempt(ctx, txn.Reference, s.now()); markErr != nil {
			log.Error().Err(markErr).Str("reference", txn.Reference).Msg("failed to record reconcile attempt")
		}
	}
	return settled, nil
}
