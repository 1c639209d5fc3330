package services

import (
	"context"
	"testing"
	"time"

	"github.com/saeid-a/MentorHubBack/internal/apperrors"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookSessionInstantStartsScheduled(t *testing.T) {
	f := newFixture(t)
	session := f.book(t, models.BookingModeInstant)

	assert.Equal(t, models.SessionStatusScheduled, session.Status)
	assert.Equal(t, models.PaymentStatusPending, session.PaymentStatus)
	assertMoney(t, "15000.00", session.Price)
	assert.Equal(t, 1, session.SessionsCount)
	assert.Nil(t, session.ApprovalDeadline)
	assert.Equal(t, []string{models.NotificationBookingCreated}, f.notifier.typesFor(mentorID))
}

func TestBookSessionRequestSetsDeadline(t *testing.T) {
	f := newFixture(t)
	before := time.Now()
	session := f.book(t, models.BookingModeRequest)

	assert.Equal(t, models.SessionStatusPendingMentorReview, session.Status)
	require.NotNil(t, session.ApprovalDeadline)
	assert.WithinDuration(t, before.Add(72*time.Hour), *session.ApprovalDeadline, time.Minute)
	assert.Equal(t, []string{models.NotificationBookingRequested}, f.notifier.typesFor(mentorID))
}

func TestBookSessionAppliesPackageAndClamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pack, err := f.sessions.BookSession(ctx, studentID, BookSessionInput{
		MentorID:        mentorID,
		Title:           "Starter",
		DurationMinutes: 60,
		PackageCode:     "starter_3",
		ScheduledAt:     time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assertMoney(t, "40500.00", pack.Price)
	assert.Equal(t, 3, pack.SessionsCount)
	assert.Equal(t, "STARTER_3", pack.PackageCode)

	short, err := f.sessions.BookSession(ctx, studentID, BookSessionInput{
		MentorID:        mentorID,
		Title:           "Quick chat",
		DurationMinutes: 10,
		ScheduledAt:     time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 30, short.DurationMinutes)
	assertMoney(t, "7500.00", short.Price)
}

func TestBookSessionValidation(t *testing.T) {
	future := time.Now().Add(time.Hour)

	cases := []struct {
		name    string
		student int64
		input   BookSessionInput
		want    error
	}{
		{"missing mentor", studentID, BookSessionInput{Title: "x", DurationMinutes: 60, ScheduledAt: future}, apperrors.ErrValidation},
		{"self booking", mentorID, BookSessionInput{MentorID: mentorID, Title: "x", DurationMinutes: 60, ScheduledAt: future}, apperrors.ErrValidation},
		{"past time", studentID, BookSessionInput{MentorID: mentorID, Title: "x", DurationMinutes: 60, ScheduledAt: time.Now().Add(-time.Hour)}, apperrors.ErrValidation},
		{"blank title", studentID, BookSessionInput{MentorID: mentorID, Title: "  ", DurationMinutes: 60, ScheduledAt: future}, apperrors.ErrValidation},
		{"bad mode", studentID, BookSessionInput{MentorID: mentorID, Title: "x", DurationMinutes: 60, BookingMode: "LATER", ScheduledAt: future}, apperrors.ErrValidation},
		{"zero duration", studentID, BookSessionInput{MentorID: mentorID, Title: "x", ScheduledAt: future}, apperrors.ErrValidation},
		{"unknown package", studentID, BookSessionInput{MentorID: mentorID, Title: "x", DurationMinutes: 60, PackageCode: "MEGA", ScheduledAt: future}, apperrors.ErrValidation},
		{"not a mentor", studentID, BookSessionInput{MentorID: adminID, Title: "x", DurationMinutes: 60, ScheduledAt: future}, apperrors.ErrValidation},
		{"mentor not onboarded", studentID, BookSessionInput{MentorID: idleMentorID, Title: "x", DurationMinutes: 60, ScheduledAt: future}, apperrors.ErrValidation},
		{"unknown mentor", studentID, BookSessionInput{MentorID: 404, Title: "x", DurationMinutes: 60, ScheduledAt: future}, apperrors.ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.sessions.BookSession(context.Background(), tc.student, tc.input)
			assert.ErrorIs(t, err, tc.want)

			sessions, listErr := f.store.Sessions().List(context.Background(), repository.SessionListFilter{Role: models.RoleAdmin})
			require.NoError(t, listErr)
			assert.Empty(t, sessions)
		})
	}
}

func TestPriceIsFixedAtCreation(t *testing.T) {
	users := stubUsers{
		studentID: {ID: studentID, Email: "student@example.com", Role: models.RoleStudent},
		mentorID:  {ID: mentorID, Role: models.RoleMentor},
	}
	profile := &models.MentorProfile{UserID: mentorID, OnboardingComplete: true}
	profile.HourlyRate.Valid = true
	profile.HourlyRate.Decimal = mustDecimal(t, "15000")

	f := newFixture(t)
	service := NewSessionService(f.store, users, stubProfiles{mentorID: profile}, stubCourses{}, nil)
	detail, err := service.BookSession(context.Background(), studentID, BookSessionInput{
		MentorID: mentorID, Title: "Rate change", DurationMinutes: 60, ScheduledAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	profile.HourlyRate.Decimal = mustDecimal(t, "99999")
	stored := f.reloadSession(t, detail.ID)
	assertMoney(t, "15000.00", stored.Price)
}

func TestGetSessionAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.book(t, models.BookingModeInstant)

	for _, actor := range []models.Actor{
		{ID: studentID, Role: models.RoleStudent},
		{ID: mentorID, Role: models.RoleMentor},
		{ID: adminID, Role: models.RoleAdmin},
	} {
		detail, err := f.sessions.GetSession(ctx, actor, session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.ID, detail.ID)
		assert.Nil(t, detail.Transaction)
	}

	_, err := f.sessions.GetSession(ctx, models.Actor{ID: otherMentorID, Role: models.RoleMentor}, session.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.sessions.GetSession(ctx, models.Actor{ID: adminID, Role: models.RoleAdmin}, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListSessionsScopesByRoleAndAttachesTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.book(t, models.BookingModeInstant)
	f.book(t, models.BookingModeRequest)

	f.expectInitialize("https://checkout.test/a")
	initiation, err := f.payments.InitiatePayment(ctx, studentID, paid.ID)
	require.NoError(t, err)

	student := models.Actor{ID: studentID, Role: models.RoleStudent}
	all, err := f.sessions.ListSessions(ctx, student, repository.SessionListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	var withTxn int
	for _, detail := range all {
		if detail.Transaction != nil {
			withTxn++
			assert.Equal(t, initiation.Reference, detail.Transaction.Reference)
		}
	}
	assert.Equal(t, 1, withTxn)

	pending, err := f.sessions.ListSessions(ctx, student, repository.SessionListFilter{
		Status: string(models.SessionStatusPendingMentorReview),
	})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	other, err := f.sessions.ListSessions(ctx, models.Actor{ID: otherMentorID, Role: models.RoleMentor}, repository.SessionListFilter{})
	require.NoError(t, err)
	assert.Empty(t, other)

	_, err = f.sessions.ListSessions(ctx, student, repository.SessionListFilter{Status: "UNKNOWN"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = f.sessions.ListSessions(ctx, student, repository.SessionListFilter{Timeframe: "soon"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestOfferingLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	courseID := "course-go"

	_, err := f.sessions.CreateOffering(ctx, otherMentorID, CreateOfferingInput{
		Title: "Borrowed course", DurationMinutes: 60, CourseID: &courseID,
	})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	offering, err := f.sessions.CreateOffering(ctx, mentorID, CreateOfferingInput{
		Title:           "Go office hours",
		DurationMinutes: 90,
		BookingMode:     models.BookingModeRequest,
		CourseID:        &courseID,
	})
	require.NoError(t, err)
	assert.True(t, offering.IsOffering)
	assert.Equal(t, offering.MentorID, offering.StudentID)
	assert.Equal(t, models.SessionStatusScheduled, offering.Status)
	assertMoney(t, "22500.00", offering.Price)

	offerings, err := f.sessions.ListOfferings(ctx, mentorID)
	require.NoError(t, err)
	require.Len(t, offerings, 1)

	mentor := models.Actor{ID: mentorID, Role: models.RoleMentor}
	_, err = f.sessions.StartSession(ctx, mentor, offering.ID)
	assert.ErrorIs(t, err, apperrors.ErrStateConflict)

	_, err = f.payments.InitiatePayment(ctx, mentorID, offering.ID)
	assert.ErrorIs(t, err, apperrors.ErrStateConflict)

	booked, err := f.sessions.BookSession(ctx, studentID, BookSessionInput{
		MentorID:    mentorID,
		OfferingID:  &offering.ID,
		ScheduledAt: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "Go office hours", booked.Title)
	assert.Equal(t, 90, booked.DurationMinutes)
	assert.Equal(t, models.SessionStatusPendingMentorReview, booked.Status)
	require.NotNil(t, booked.OfferingID)
	assert.Equal(t, offering.ID, *booked.OfferingID)
	require.NotNil(t, booked.CourseID)
	assert.Equal(t, courseID, *booked.CourseID)

	all, err := f.sessions.ListSessions(ctx, mentor, repository.SessionListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "offerings are not listed as bookings")

	err = f.sessions.DeleteOffering(ctx, otherMentorID, offering.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	err = f.sessions.DeleteOffering(ctx, mentorID, offering.ID)
	assert.ErrorIs(t, err, apperrors.ErrStateConflict)

	err = f.sessions.DeleteOffering(ctx, mentorID, booked.ID)
	assert.ErrorIs(t, err, apperrors.ErrStateConflict, "bookings are not offerings")
}

func TestDeleteUnbookedOffering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offering, err := f.sessions.CreateOffering(ctx, mentorID, CreateOfferingInput{Title: "Pairing", DurationMinutes: 60})
	require.NoError(t, err)

	require.NoError(t, f.sessions.DeleteOffering(ctx, mentorID, offering.ID))

	offerings, err := f.sessions.ListOfferings(ctx, mentorID)
	require.NoError(t, err)
	assert.Empty(t, offerings)

	err = f.sessions.DeleteOffering(ctx, mentorID, offering.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestBookFromForeignOfferingFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offering, err := f.sessions.CreateOffering(ctx, otherMentorID, CreateOfferingInput{Title: "Other", DurationMinutes: 60})
	require.NoError(t, err)

	_, err = f.sessions.BookSession(ctx, studentID, BookSessionInput{
		MentorID:    mentorID,
		OfferingID:  &offering.ID,
		ScheduledAt: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestQuotePrice(t *testing.T) {
	f := newFixture(t)

	quote, err := f.sessions.QuotePrice(context.Background(), mentorID, 60, "GROWTH_5")
	require.NoError(t, err)
	assertMoney(t, "63750.00", quote.TotalAmount)
	assert.Equal(t, 5, quote.SessionsCount)

	_, err = f.sessions.QuotePrice(context.Background(), idleMentorID, 60, "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
