package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saeid-a/MentorHubBack/internal/gateway"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/repository"
	"github.com/saeid-a/MentorHubBack/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	studentID     int64 = 1
	mentorID      int64 = 2
	otherMentorID int64 = 3
	adminID       int64 = 9
	idleMentorID  int64 = 4

	webhookSecret = "sk_test_secret"
)

type stubUsers map[int64]*models.User

func (s stubUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	if user, ok := s[id]; ok {
		return user, nil
	}
	return nil, repository.ErrNotFound
}

type stubProfiles map[int64]*models.MentorProfile

func (s stubProfiles) GetByUserID(_ context.Context, userID int64) (*models.MentorProfile, error) {
	if profile, ok := s[userID]; ok {
		return profile, nil
	}
	return nil, repository.ErrNotFound
}

type stubCourses map[string]int64

func (s stubCourses) IsInstructor(_ context.Context, courseID string, mentorID int64) (bool, error) {
	instructor, ok := s[courseID]
	return ok && instructor == mentorID, nil
}

type sentNotification struct {
	UserID       int64
	Notification models.Notification
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) NotifyUser(_ context.Context, userID int64, notification models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Notification: notification})
}

func (n *recordingNotifier) typesFor(userID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]string, 0)
	for _, sent := range n.sent {
		if sent.UserID == userID {
			types = append(types, sent.Notification.Type)
		}
	}
	return types
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Initialize(ctx context.Context, input gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	args := m.Called(ctx, input)
	result, _ := args.Get(0).(*gateway.InitializeResult)
	return result, args.Error(1)
}

func (m *mockGateway) Verify(ctx context.Context, reference string) (*gateway.VerifyResult, error) {
	args := m.Called(ctx, reference)
	result, _ := args.Get(0).(*gateway.VerifyResult)
	return result, args.Error(1)
}

func (m *mockGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return gateway.VerifySignature(webhookSecret, body, signature)
}

type fixture struct {
	store       *memory.Store
	sessions    *SessionService
	approvals   *ApprovalService
	payments    *PaymentService
	settlements *SettlementService
	gateway     *mockGateway
	notifier    *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := stubUsers{
		studentID:     {ID: studentID, Email: "student@example.com", Role: models.RoleStudent},
		mentorID:      {ID: mentorID, Email: "mentor@example.com", Role: models.RoleMentor},
		otherMentorID: {ID: otherMentorID, Email: "other@example.com", Role: models.RoleMentor},
		idleMentorID:  {ID: idleMentorID, Email: "idle@example.com", Role: models.RoleMentor},
		adminID:       {ID: adminID, Email: "admin@example.com", Role: models.RoleAdmin},
	}
	profiles := stubProfiles{
		mentorID: {
			UserID:             mentorID,
			HourlyRate:         decimal.NewNullDecimal(decimal.NewFromInt(15000)),
			OnboardingComplete: true,
		},
		otherMentorID: {
			UserID:             otherMentorID,
			HourlyRate:         decimal.NewNullDecimal(decimal.NewFromInt(9000)),
			OnboardingComplete: true,
		},
		idleMentorID: {UserID: idleMentorID},
	}
	courses := stubCourses{"course-go": mentorID}

	store := memory.NewStore()
	gw := &mockGateway{}
	notifier := &recordingNotifier{}

	f := &fixture{
		store:       store,
		sessions:    NewSessionService(store, users, profiles, courses, notifier),
		approvals:   NewApprovalService(store, notifier),
		payments:    NewPaymentService(store, users, gw, notifier, "https://app.test/payments/callback"),
		settlements: NewSettlementService(store),
		gateway:     gw,
		notifier:    notifier,
	}
	t.Cleanup(func() { gw.AssertExpectations(t) })
	return f
}

func (f *fixture) book(t *testing.T, mode models.BookingMode) *models.Session {
	t.Helper()
	detail, err := f.sessions.BookSession(context.Background(), studentID, BookSessionInput{
		MentorID:        mentorID,
		Title:           "Go code review",
		DurationMinutes: 60,
		BookingMode:     mode,
		ScheduledAt:     time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	return &detail.Session
}

// seed stores a session directly in the given status.
func (f *fixture) seed(t *testing.T, status models.SessionStatus) *models.Session {
	t.Helper()
	input := repository.CreateSessionInput{
		ID:              uuid.NewString(),
		MentorID:        mentorID,
		StudentID:       studentID,
		Title:           "Seeded session",
		DurationMinutes: 60,
		Price:           decimal.NewFromInt(15000),
		PackageCode:     "NONE",
		SessionsCount:   1,
		BookingMode:     models.BookingModeInstant,
		Status:          status,
		ScheduledAt:     time.Now().Add(24 * time.Hour).UTC(),
	}
	if status == models.SessionStatusPendingMentorReview {
		deadline := time.Now().Add(models.ApprovalWindow).UTC()
		input.BookingMode = models.BookingModeRequest
		input.ApprovalDeadline = &deadline
	}
	session, err := f.store.Sessions().Create(context.Background(), input)
	require.NoError(t, err)
	return session
}

func (f *fixture) expectInitialize(authorizationURL string) {
	f.gateway.On("Initialize", mock.Anything, mock.AnythingOfType("gateway.InitializeRequest")).
		Return(&gateway.InitializeResult{AuthorizationURL: authorizationURL}, nil)
}

func (f *fixture) expectVerify(reference, status string, amountMinor int64) *mock.Call {
	return f.gateway.On("Verify", mock.Anything, reference).
		Return(&gateway.VerifyResult{Reference: reference, Status: status, AmountMinor: amountMinor, Channel: "card"}, nil)
}

func (f *fixture) reloadSession(t *testing.T, id string) *models.Session {
	t.Helper()
	session, err := f.store.Sessions().GetByID(context.Background(), id)
	require.NoError(t, err)
	return session
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}

func mustDecimal(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}
