package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionStatusPendingMentorReview SessionStatus = "PENDING_MENTOR_REVIEW"
	SessionStatusScheduled           SessionStatus = "SCHEDULED"
	SessionStatusInProgress          SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted           SessionStatus = "COMPLETED"
	SessionStatusCancelled           SessionStatus = "CANCELLED"
	SessionStatusNoShow              SessionStatus = "NO_SHOW"
	SessionStatusRejected            SessionStatus = "REJECTED"
)

// AllSessionStatuses lists every lifecycle state in declaration order.
var AllSessionStatuses = []SessionStatus{
	SessionStatusPendingMentorReview,
	SessionStatusScheduled,
	SessionStatusInProgress,
	SessionStatusCompleted,
	SessionStatusCancelled,
	SessionStatusNoShow,
	SessionStatusRejected,
}

// Terminal reports whether no further status transition is allowed.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusCancelled, SessionStatusNoShow, SessionStatusRejected:
		return true
	default:
		return false
	}
}

func (s SessionStatus) Valid() bool {
	for _, status := range AllSessionStatuses {
		if s == status {
			return true
		}
	}
	return false
}

type BookingMode string

const (
	BookingModeInstant BookingMode = "INSTANT"
	BookingModeRequest BookingMode = "REQUEST"
)

func (m BookingMode) Valid() bool {
	return m == BookingModeInstant || m == BookingModeRequest
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// ApprovalWindow is how long a mentor has to review a REQUEST booking.
const ApprovalWindow = 72 * time.Hour

type Session struct {
	ID               string          `json:"id"`
	MentorID         int64           `json:"mentor_id"`
	StudentID        int64           `json:"student_id"`
	Title            string          `json:"title"`
	Description      *string         `json:"description"`
	DurationMinutes  int             `json:"duration_minutes"`
	Price            decimal.Decimal `json:"price"`
	PackageCode      string          `json:"package_code"`
	SessionsCount    int             `json:"sessions_count"`
	BookingMode      BookingMode     `json:"booking_mode"`
	Status           SessionStatus   `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	ScheduledAt      time.Time       `json:"scheduled_at"`
	ApprovalDeadline *time.Time      `json:"approval_deadline,omitempty"`
	ApprovalNotes    *string         `json:"approval_notes,omitempty"`
	ReviewedAt       *time.Time      `json:"reviewed_at,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	EndedAt          *time.Time      `json:"ended_at,omitempty"`
	CourseID         *string         `json:"course_id,omitempty"`
	IsOffering       bool            `json:"is_offering"`
	OfferingID       *string         `json:"offering_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Payable reports whether a new payment attempt may be started for the session.
func (s *Session) Payable() bool {
	return !s.IsOffering &&
		s.Status == SessionStatusScheduled &&
		s.PaymentStatus == PaymentStatusPending
}

type SessionDetail struct {
	Session
	Transaction *Transaction `json:"transaction,omitempty"`
}
