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
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/pricing"
	"github.com/saeid-a/MentorHubBack/internal/repository"
	"github.com/shopspring/decimal"
)

const maxTitleLength = 200

type mentorProfileReader interface {
	GetByUserID(ctx context.Context, userID int64) (*models.MentorProfile, error)
}

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type courseOwnershipChecker interface {
	IsInstructor(ctx context.Context, courseID string, mentorID int64) (bool, error)
}

type SessionService struct {
	store          repository.Store
	users          userReader
	mentorProfiles mentorProfileReader
	courses        courseOwnershipChecker
	notifier       notifier
	machine        *sessionMachine
	now            func() time.Time
}

func NewSessionService(
	store repository.Store,
	users userReader,
	mentorProfiles mentorProfileReader,
	courses courseOwnershipChecker,
	n notifier,
) *SessionService {
	n = notifierOrNop(n)
	return &SessionService{
		store:          store,
		users:          users,
		mentorProfiles: mentorProfiles,
		courses:        courses,
		notifier:       n,
		machine:        &sessionMachine{store: store, notifier: n, now: utcNow},
		now:            utcNow,
	}
}

type BookSessionInput struct {
	MentorID        int64
	Title           string
	Description     *string
	DurationMinutes int
	PackageCode     string
	BookingMode     models.BookingMode
	ScheduledAt     time.Time
	OfferingID      *string
}

type CreateOfferingInput struct {
	Title           string
	Description     *string
	DurationMinutes int
	BookingMode     models.BookingMode
	CourseID        *string
}

func (s *SessionService) BookSession(
	ctx context.Context,
	studentID int64,
	input BookSessionInput,
) (*models.SessionDetail, error) {
	if input.MentorID <= 0 {
		return nil, apperrors.Validation("mentor_id", "is required")
	}
	if studentID == input.MentorID {
		return nil, apperrors.Validation("mentor_id", "cannot book a session with yourself")
	}
	now := s.now()
	if input.ScheduledAt.IsZero() || input.ScheduledAt.Before(now.Add(-1*time.Minute)) {
		return nil, apperrors.Validation("scheduled_at", "must be in the future")
	}

	var courseID *string
	if input.OfferingID != nil {
		offering, err := s.store.Sessions().GetByID(ctx, *input.OfferingID)
		if err != nil {
			return nil, notFoundOr(err, "offering", *input.OfferingID)
		}
		if !offering.IsOffering || offering.MentorID != input.MentorID {
			return nil, apperrors.Validation("offering_id", "is not an offering of this mentor")
		}
		if strings.TrimSpace(input.Title) == "" {
			input.Title = offering.Title
		}
		if input.Description == nil {
			input.Description = offering.Description
		}
		if input.DurationMinutes == 0 {
			input.DurationMinutes = offering.DurationMinutes
		}
		if input.BookingMode == "" {
			input.BookingMode = offering.BookingMode
		}
		courseID = offering.CourseID
	}

	title, err := normalizeTitle(input.Title)
	if err != nil {
		return nil, err
	}
	mode, err := normalizeBookingMode(input.BookingMode)
	if err != nil {
		return nil, err
	}

	mentor, err := s.users.GetByID(ctx, input.MentorID)
	if err != nil {
		return nil, notFoundOr(err, "mentor", fmt.Sprint(input.MentorID))
	}
	if mentor.Role != models.RoleMentor {
		return nil, apperrors.Validation("mentor_id", "user is not a mentor")
	}
	rate, err := s.bookableRate(ctx, input.MentorID)
	if err != nil {
		return nil, err
	}

	quote, err := pricing.Compute(rate, input.DurationMinutes, input.PackageCode)
	if err != nil {
		return nil, err
	}

	status := models.SessionStatusScheduled
	var deadline *time.Time
	if mode == models.BookingModeRequest {
		status = models.SessionStatusPendingMentorReview
		due := now.Add(models.ApprovalWindow)
		deadline = &due
	}

	session, err := s.store.Sessions().Create(ctx, repository.CreateSessionInput{
		ID:               uuid.NewString(),
		MentorID:         input.MentorID,
		StudentID:        studentID,
		Title:            title,
		Description:      trimOptional(input.Description),
		DurationMinutes:  quote.DurationMinutes,
		Price:            quote.TotalAmount,
		PackageCode:      quote.PackageCode,
		SessionsCount:    quote.SessionsCount,
		BookingMode:      mode,
		Status:           status,
		ScheduledAt:      input.ScheduledAt.UTC(),
		ApprovalDeadline: deadline,
		CourseID:         courseID,
		OfferingID:       input.OfferingID,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	log.Info().
		Str("session_id", session.ID).
		Int64("student_id", studentID).
		Int64("mentor_id", session.MentorID).
		Str("booking_mode", string(mode)).
		Str("price", session.Price.StringFixed(pricing.MinorUnitPlaces)).
		Msg("session booked")

	notification := models.Notification{
		Type:        models.NotificationBookingCreated,
		Title:       "New session booked",
		Message:     fmt.Sprintf("A student booked %q.", session.Title),
		ActionURL:   sessionActionURL(session.ID),
		ActionLabel: "View session",
		CreatedAt:   now,
	}
	if mode == models.BookingModeRequest {
		notification.Type = models.NotificationBookingRequested
		notification.Title = "New booking request"
		notification.Message = fmt.Sprintf("A student requested %q. Please review it before %s.",
			session.Title, deadline.Format(time.RFC1123))
		notification.ActionLabel = "Review request"
	}
	s.notifier.NotifyUser(ctx, session.MentorID, notification)

	return &models.SessionDetail{Session: *session}, nil
}

// QuotePrice prices a prospective booking at the mentor's current rate.
func (s *SessionService) QuotePrice(
	ctx context.Context,
	mentorID int64,
	durationMinutes int,
	packageCode string,
) (*pricing.Quote, error) {
	rate, err := s.bookableRate(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	quote, err := pricing.Compute(rate, durationMinutes, packageCode)
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (s *SessionService) CreateOffering(
	ctx context.Context,
	mentorID int64,
	input CreateOfferingInput,
) (*models.Session, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return nil, err
	}
	mode, err := normalizeBookingMode(input.BookingMode)
	if err != nil {
		return nil, err
	}

	courseID := trimOptional(input.CourseID)
	if courseID != nil {
		owns, err := s.courses.IsInstructor(ctx, *courseID, mentorID)
		if err != nil {
			return nil, fmt.Errorf("check course ownership: %w", err)
		}
		if !owns {
			return nil, apperrors.Forbidden("course", *courseID, mentorID, "link")
		}
	}

	rate, err := s.bookableRate(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	quote, err := pricing.Compute(rate, input.DurationMinutes, pricing.PackageNone)
	if err != nil {
		return nil, err
	}

	offering, err := s.store.Sessions().Create(ctx, repository.CreateSessionInput{
		ID:              uuid.NewString(),
		MentorID:        mentorID,
		StudentID:       mentorID,
		Title:           title,
		Description:     trimOptional(input.Description),
		DurationMinutes: quote.DurationMinutes,
		Price:           quote.TotalAmount,
		PackageCode:     quote.PackageCode,
		SessionsCount:   quote.SessionsCount,
		BookingMode:     mode,
		Status:          models.SessionStatusScheduled,
		ScheduledAt:     s.now(),
		CourseID:        courseID,
		IsOffering:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("create offering: %w", err)
	}

	log.Info().Str("offering_id", offering.ID).Int64("mentor_id", mentorID).Msg("offering created")
	return offering, nil
}

func (s *SessionService) ListOfferings(ctx context.Context, mentorID int64) ([]models.Session, error) {
	if mentorID <= 0 {
		return nil, apperrors.Validation("mentor_id", "is required")
	}
	return s.store.Sessions().ListOfferings(ctx, mentorID)
}

func (s *SessionService) DeleteOffering(ctx context.Context, mentorID int64, offeringID string) error {
	offering, err := s.store.Sessions().GetByID(ctx, offeringID)
	if err != nil {
		return notFoundOr(err, "offering", offeringID)
	}
	if offering.MentorID != mentorID {
		return apperrors.Forbidden("offering", offeringID, mentorID, "delete")
	}
	if !offering.IsOffering {
		return apperrors.StateConflict(offeringID, "delete", string(offering.Status))
	}

	booked, err := s.store.Sessions().HasBookingsForOffering(ctx, offeringID)
	if err != nil {
		return fmt.Errorf("check offering bookings: %w", err)
	}
	if booked {
		return apperrors.StateConflict(offeringID, "delete", "BOOKED")
	}

	if err := s.store.Sessions().DeleteOffering(ctx, offeringID, mentorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.StateConflict(offeringID, "delete", "BOOKED")
		}
		return fmt.Errorf("delete offering: %w", err)
	}

	log.Info().Str("offering_id", offeringID).Int64("mentor_id", mentorID).Msg("offering deleted")
	return nil
}

func (s *SessionService) ListSessions(
	ctx context.Context,
	actor models.Actor,
	filter repository.SessionListFilter,
) ([]models.SessionDetail, error) {
	if status := strings.TrimSpace(filter.Status); status != "" && !models.SessionStatus(status).Valid() {
		return nil, apperrors.Validation("status", "unknown status "+status)
	}
	switch strings.TrimSpace(filter.Timeframe) {
	case "", "upcoming", "past":
	default:
		return nil, apperrors.Validation("timeframe", "must be upcoming or past")
	}

	sessions, err := s.store.Sessions().List(ctx, repository.SessionListFilter{
		ActorID:   actor.ID,
		Role:      actor.Role,
		Status:    filter.Status,
		Timeframe: filter.Timeframe,
	})
	if err != nil {
		return nil, err
	}

	sessionIDs := make([]string, 0, len(sessions))
	for _, session := range sessions {
		sessionIDs = append(sessionIDs, session.ID)
	}

	transactionsBySession, err := s.store.Transactions().ListLatestBySessionIDs(ctx, sessionIDs)
	if err != nil {
		return nil, err
	}

	details := make([]models.SessionDetail, 0, len(sessions))
	for _, session := range sessions {
		detail := models.SessionDetail{Session: session}
		if txn, ok := transactionsBySession[session.ID]; ok {
			txnCopy := txn
			detail.Transaction = &txnCopy
		}
		details = append(details, detail)
	}

	return details, nil
}

func (s *SessionService) GetSession(
	ctx context.Context,
	actor models.Actor,
	sessionID string,
) (*models.SessionDetail, error) {
	session, err := s.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		return nil, notFoundOr(err, "session", sessionID)
	}
	if !canViewSession(actor, session) {
		return nil, apperrors.Forbidden("session", sessionID, actor.ID, "view")
	}

	detail := &models.SessionDetail{Session: *session}
	txn, err := s.store.Transactions().GetLatestBySessionID(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err == nil {
		detail.Transaction = txn
	}
	return detail, nil
}

func (s *SessionService) StartSession(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error) {
	return s.machine.apply(ctx, transitionRequest{actor: actor, sessionID: sessionID, event: eventStart})
}

func (s *SessionService) CompleteSession(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error) {
	return s.machine.apply(ctx, transitionRequest{actor: actor, sessionID: sessionID, event: eventComplete})
}

func (s *SessionService) CancelSession(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error) {
	return s.machine.apply(ctx, transitionRequest{actor: actor, sessionID: sessionID, event: eventCancel})
}

func (s *SessionService) MarkNoShow(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error) {
	return s.machine.apply(ctx, transitionRequest{actor: actor, sessionID: sessionID, event: eventNoShow})
}

// bookableRate returns the hourly rate of an onboarded mentor.
func (s *SessionService) bookableRate(ctx context.Context, mentorID int64) (decimal.Decimal, error) {
	profile, err := s.mentorProfiles.GetByUserID(ctx, mentorID)
	if err != nil {
		return decimal.Zero, notFoundOr(err, "mentor", fmt.Sprint(mentorID))
	}
	if !profile.OnboardingComplete || !profile.HourlyRate.Valid || !profile.HourlyRate.Decimal.IsPositive() {
		return decimal.Zero, apperrors.Validation("mentor_id", "mentor is not accepting bookings")
	}
	return profile.HourlyRate.Decimal, nil
}

func canViewSession(actor models.Actor, session *models.Session) bool {
	if actor.IsAdmin() || session.IsOffering {
		return true
	}
	return session.StudentID == actor.ID || session.MentorID == actor.ID
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperrors.Validation("title", "is required")
	}
	if len(title) > maxTitleLength {
		return "", apperrors.Validation("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}
	return title, nil
}

func normalizeBookingMode(mode models.BookingMode) (models.BookingMode, error) {
	if mode == "" {
		return models.BookingModeInstant, nil
	}
	mode = models.BookingMode(strings.ToUpper(strings.TrimSpace(string(mode))))
	if !mode.Valid() {
		return "", apperrors.Validation("booking_mode", "must be INSTANT or REQUEST")
	}
	return mode, nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
