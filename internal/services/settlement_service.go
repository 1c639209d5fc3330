package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/saeid-a/MentorHubBack/internal/apperrors"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/repository"
	"github.com/shopspring/decimal"
)

// SettlementService aggregates the transaction ledger. It never writes.
type SettlementService struct {
	store repository.Store
}

func NewSettlementService(store repository.Store) *SettlementService {
	return &SettlementService{store: store}
}

func (s *SettlementService) Report(
	ctx context.Context,
	actor models.Actor,
	filter repository.SettlementFilter,
) (*models.SettlementReport, error) {
	if filter.From.IsZero() || filter.To.IsZero() {
		return nil, apperrors.Validation("range", "from and to are required")
	}
	if !filter.From.Before(filter.To) {
		return nil, apperrors.Validation("range", "from must be before to")
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleMentor:
		if filter.MentorID == nil {
			mentorID := actor.ID
			filter.MentorID = &mentorID
		} else if *filter.MentorID != actor.ID {
			return nil, apperrors.Forbidden("settlement", fmt.Sprint(*filter.MentorID), actor.ID, "view")
		}
	default:
		return nil, apperrors.Forbidden("settlement", "", actor.ID, "view")
	}

	filter.ProductType = strings.TrimSpace(filter.ProductType)
	filter.From = filter.From.UTC()
	filter.To = filter.To.UTC()

	totals, err := s.store.Transactions().Summarize(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("summarize transactions: %w", err)
	}

	return &models.SettlementReport{
		From:        filter.From,
		To:          filter.To,
		ProductType: filter.ProductType,
		MentorID:    filter.MentorID,
		Completed:   totalsOrZero(totals, models.TransactionStatusCompleted),
		Pending:     totalsOrZero(totals, models.TransactionStatusPending),
	}, nil
}

func totalsOrZero(
	totals map[models.TransactionStatus]models.SettlementTotals,
	status models.TransactionStatus,
) models.SettlementTotals {
	if row, ok := totals[status]; ok {
		return row
	}
	return models.SettlementTotals{
		Amount:        decimal.Zero,
		PlatformShare: decimal.Zero,
		ProviderShare: decimal.Zero,
	}
}
