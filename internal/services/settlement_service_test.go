package services

import (
	"context"
	"testing"
	"time"

	"github.com/saeid-a/MentorHubBack/internal/apperrors"
	"github.com/saeid-a/MentorHubBack/internal/gateway"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementReportSeparatesCompletedAndPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.book(t, models.BookingModeInstant)
	open := f.book(t, models.BookingModeInstant)
	f.expectInitialize("https://checkout.test/s")
	paidInit, err := f.payments.InitiatePayment(ctx, studentID, paid.ID)
	require.NoError(t, err)
	_, err = f.payments.InitiatePayment(ctx, studentID, open.ID)
	require.NoError(t, err)

	f.expectVerify(paidInit.Reference, gateway.StatusSuccess, 1500000).Once()
	_, err = f.payments.VerifyPayment(ctx, paidInit.Reference)
	require.NoError(t, err)

	window := repository.SettlementFilter{From: time.Now().Add(-time.Hour), To: time.Now().Add(time.Hour)}

	report, err := f.settlements.Report(ctx, models.Actor{ID: mentorID, Role: models.RoleMentor}, window)
	require.NoError(t, err)
	require.NotNil(t, report.MentorID)
	assert.Equal(t, mentorID, *report.MentorID)
	assert.EqualValues(t, 1, report.Completed.Count)
	assert.EqualValues(t, 1, report.Pending.Count)
	assertMoney(t, "15000.00", report.Pending.Amount)

	other, err := f.settlements.Report(ctx, models.Actor{ID: adminID, Role: models.RoleAdmin}, repository.SettlementFilter{
		From:     window.From,
		To:       window.To,
		MentorID: ptrInt64(otherMentorID),
	})
	require.NoError(t, err)
	assert.Zero(t, other.Completed.Count)
	assertMoney(t, "0.00", other.Completed.Amount)

	byProduct, err := f.settlements.Report(ctx, models.Actor{ID: adminID, Role: models.RoleAdmin}, repository.SettlementFilter{
		From:        window.From,
		To:          window.To,
		ProductType: "COURSE",
	})
	require.NoError(t, err)
	assert.Zero(t, byProduct.Completed.Count)
	assert.Zero(t, byProduct.Pending.Count)

	outside, err := f.settlements.Report(ctx, models.Actor{ID: adminID, Role: models.RoleAdmin}, repository.SettlementFilter{
		From: time.Now().Add(time.Hour),
		To:   time.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Zero(t, outside.Completed.Count)
}

func TestSettlementReportAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	window := repository.SettlementFilter{From: time.Now().Add(-time.Hour), To: time.Now()}

	_, err := f.settlements.Report(ctx, models.Actor{ID: studentID, Role: models.RoleStudent}, window)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	foreign := window
	foreign.MentorID = ptrInt64(otherMentorID)
	_, err = f.settlements.Report(ctx, models.Actor{ID: mentorID, Role: models.RoleMentor}, foreign)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	inverted := repository.SettlementFilter{From: window.To, To: window.From}
	_, err = f.settlements.Report(ctx, models.Actor{ID: adminID, Role: models.RoleAdmin}, inverted)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	empty := repository.SettlementFilter{From: window.From, To: window.From}
	_, err = f.settlements.Report(ctx, models.Actor{ID: adminID, Role: models.RoleAdmin}, empty)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func ptrInt64(v int64) *int64 {
	return &v
}
