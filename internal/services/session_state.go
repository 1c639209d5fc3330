package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saeid-a/MentorHubBack/internal/apperrors"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/repository"
)

type sessionEvent string

const (
	eventApprove  sessionEvent = "approve"
	eventReject   sessionEvent = "reject"
	eventStart    sessionEvent = "start"
	eventComplete sessionEvent = "complete"
	eventCancel   sessionEvent = "cancel"
	eventNoShow   sessionEvent = "no_show"
)

var allSessionEvents = []sessionEvent{
	eventApprove,
	eventReject,
	eventStart,
	eventComplete,
	eventCancel,
	eventNoShow,
}

// sessionTransitions is the complete set of legal lifecycle moves. Payment
// completion is not listed because it only flips payment_status.
var sessionTransitions = map[sessionEvent]map[models.SessionStatus]models.SessionStatus{
	eventApprove: {
		models.SessionStatusPendingMentorReview: models.SessionStatusScheduled,
	},
	eventReject: {
		models.SessionStatusPendingMentorReview: models.SessionStatusRejected,
	},
	eventStart: {
		models.SessionStatusScheduled: models.SessionStatusInProgress,
	},
	eventComplete: {
		models.SessionStatusInProgress: models.SessionStatusCompleted,
	},
	eventCancel: {
		models.SessionStatusPendingMentorReview: models.SessionStatusCancelled,
		models.SessionStatusScheduled:           models.SessionStatusCancelled,
		models.SessionStatusInProgress:          models.SessionStatusCancelled,
	},
	eventNoShow: {
		models.SessionStatusPendingMentorReview: models.SessionStatusNoShow,
		models.SessionStatusScheduled:           models.SessionStatusNoShow,
		models.SessionStatusInProgress:          models.SessionStatusNoShow,
	},
}

func nextStatus(session *models.Session, event sessionEvent) (models.SessionStatus, bool) {
	if session.IsOffering {
		return "", false
	}
	next, ok := sessionTransitions[event][session.Status]
	return next, ok
}

// canTrigger reports whether actor may fire event on session. Review
// decisions belong to the session's mentor alone.
func canTrigger(actor models.Actor, session *models.Session, event sessionEvent) bool {
	switch event {
	case eventApprove, eventReject:
		return actor.ID == session.MentorID
	default:
		return actor.IsAdmin() || actor.ID == session.MentorID
	}
}

type notifier interface {
	NotifyUser(ctx context.Context, userID int64, notification models.Notification)
}

type nopNotifier struct{}

func (nopNotifier) NotifyUser(context.Context, int64, models.Notification) {}

func notifierOrNop(n notifier) notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// sessionMachine applies lifecycle events. The conditional update in the
// store is the serialization point; a miss is reported as a state conflict.
type sessionMachine struct {
	store    repository.Store
	notifier notifier
	now      func() time.Time
}

type transitionRequest struct {
	actor     models.Actor
	sessionID string
	event     sessionEvent
	notes     *string
}

func (m *sessionMachine) apply(ctx context.Context, req transitionRequest) (*models.Session, error) {
	session, err := m.store.Sessions().GetByID(ctx, req.sessionID)
	if err != nil {
		return nil, notFoundOr(err, "session", req.sessionID)
	}
	if !canTrigger(req.actor, session, req.event) {
		return nil, apperrors.Forbidden("session", session.ID, req.actor.ID, string(req.event))
	}
	next, ok := nextStatus(session, req.event)
	if !ok {
		return nil, apperrors.StateConflict(session.ID, string(req.event), string(session.Status))
	}

	now := m.now()
	update := repository.SessionStatusUpdate{
		SessionID:     session.ID,
		From:          session.Status,
		To:            next,
		ClearDeadline: session.Status == models.SessionStatusPendingMentorReview,
	}
	switch req.event {
	case eventApprove:
		update.ReviewedAt = &now
	case eventReject:
		update.ReviewedAt = &now
		update.ApprovalNotes = req.notes
	case eventStart:
		update.StartedAt = &now
	case eventComplete:
		update.EndedAt = &now
	}

	updated, err := m.store.Sessions().UpdateStatusIfCurrent(ctx, update)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			current := session.Status
			if latest, getErr := m.store.Sessions().GetByID(ctx, session.ID); getErr == nil {
				current = latest.Status
			}
			return nil, apperrors.StateConflict(session.ID, string(req.event), string(current))
		}
		return nil, fmt.Errorf("update session status: %w", err)
	}

	log.Info().
		Str("session_id", updated.ID).
		Str("event", string(req.event)).
		Str("from", string(session.Status)).
		Str("to", string(updated.Status)).
		Int64("actor_id", req.actor.ID).
		Msg("session transition")

	m.announce(ctx, req.actor, updated, req.event)
	return updated, nil
}

func (m *sessionMachine) announce(
	ctx context.Context,
	actor models.Actor,
	session *models.Session,
	event sessionEvent,
) {
	notification := models.Notification{
		ActionURL:   sessionActionURL(session.ID),
		ActionLabel: "View session",
		CreatedAt:   m.now(),
	}
	switch event {
	case eventApprove:
		notification.Type = models.NotificationBookingApproved
		notification.Title = "Booking approved"
		notification.Message = fmt.Sprintf("Your request for %q was approved. You can now pay for the session.", session.Title)
		notification.ActionLabel = "Pay now"
	case eventReject:
		notification.Type = models.NotificationBookingRejected
		notification.Title = "Booking declined"
		notification.Message = fmt.Sprintf("Your request for %q was declined.", session.Title)
		if session.ApprovalNotes != nil && *session.ApprovalNotes != "" {
			notification.Message += " Reason: " + *session.ApprovalNotes
		}
	case eventStart:
		notification.Type = models.NotificationSessionStarted
		notification.Title = "Session started"
		notification.Message = fmt.Sprintf("%q has started.", session.Title)
	case eventComplete:
		notification.Type = models.NotificationSessionCompleted
		notification.Title = "Session completed"
		notification.Message = fmt.Sprintf("%q was marked as completed.", session.Title)
	case eventCancel:
		notification.Type = models.NotificationSessionCancelled
		notification.Title = "Session cancelled"
		notification.Message = fmt.Sprintf("%q was cancelled.", session.Title)
	case eventNoShow:
		notification.Type = models.NotificationSessionNoShow
		notification.Title = "Session marked as no-show"
		notification.Message = fmt.Sprintf("%q was marked as a no-show.", session.Title)
	default:
		return
	}

	for _, userID := range otherParties(actor, session) {
		m.notifier.NotifyUser(ctx, userID, notification)
	}
}

// otherParties returns the session participants other than the actor.
func otherParties(actor models.Actor, session *models.Session) []int64 {
	parties := make([]int64, 0, 2)
	for _, id := range []int64{session.StudentID, session.MentorID} {
		if id == actor.ID {
			continue
		}
		if len(parties) > 0 && parties[0] == id {
			continue
		}
		parties = append(parties, id)
	}
	return parties
}

func sessionActionURL(sessionID string) string {
	return "/sessions/" + sessionID
}

func notFoundOr(err error, resource, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, id)
	}
	return err
}
