package models

import "time"

const (
	NotificationBookingRequested = "BOOKING_REQUESTED"
	NotificationBookingCreated   = "BOOKING_CREATED"
	NotificationBookingApproved  = "BOOKING_APPROVED"
	NotificationBookingRejected  = "BOOKING_REJECTED"
	NotificationBookingExpired   = "BOOKING_EXPIRED"
	NotificationSessionStarted   = "SESSION_STARTED"
	NotificationSessionCompleted = "SESSION_COMPLETED"
	NotificationSessionCancelled = "SESSION_CANCELLED"
	NotificationSessionNoShow    = "SESSION_NO_SHOW"
	NotificationPaymentReceived  = "PAYMENT_RECEIVED"
	NotificationPaymentFailed    = "PAYMENT_FAILED"
)

type Notification struct {
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	ActionURL   string    `json:"action_url,omitempty"`
	ActionLabel string    `json:"action_label,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
