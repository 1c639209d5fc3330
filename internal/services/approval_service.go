package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saeid-a/MentorHubBack/internal/apperrors"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/repository"
)

const (
	// ExpiredApprovalNote is stored on requests the mentor never reviewed.
	ExpiredApprovalNote = "approval deadline elapsed"

	maxRejectReasonLength = 500
)

// ApprovalService handles the mentor's decision on REQUEST-mode bookings.
type ApprovalService struct {
	store    repository.Store
	notifier notifier
	machine  *sessionMachine
}

func NewApprovalService(store repository.Store, n notifier) *ApprovalService {
	n = notifierOrNop(n)
	return &ApprovalService{
		store:    store,
		notifier: n,
		machine:  &sessionMachine{store: store, notifier: n, now: utcNow},
	}
}

func (s *ApprovalService) Approve(ctx context.Context, sessionID string, mentorID int64) (*models.Session, error) {
	return s.machine.apply(ctx, transitionRequest{
		actor:     models.Actor{ID: mentorID, Role: models.RoleMentor},
		sessionID: sessionID,
		event:     eventApprove,
	})
}

func (s *ApprovalService) Reject(
	ctx context.Context,
	sessionID string,
	mentorID int64,
	reason string,
) (*models.Session, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxRejectReasonLength {
		return nil, apperrors.Validation("reason", fmt.Sprintf("must be at most %d characters", maxRejectReasonLength))
	}
	var notes *string
	if reason != "" {
		notes = &reason
	}
	return s.machine.apply(ctx, transitionRequest{
		actor:     models.Actor{ID: mentorID, Role: models.RoleMentor},
		sessionID: sessionID,
		event:     eventReject,
		notes:     notes,
	})
}

// ExpireOverdue rejects every request whose approval deadline is before now
// and returns how many were closed.
func (s *ApprovalService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.store.Sessions().ExpirePendingReview(ctx, now.UTC(), ExpiredApprovalNote)
	if err != nil {
		return 0, fmt.Errorf("expire pending reviews: %w", err)
	}

	for i := range expired {
		session := expired[i]
		log.Info().
			Str("session_id", session.ID).
			Int64("mentor_id", session.MentorID).
			Msg("booking request expired")

		s.notifier.NotifyUser(ctx, session.StudentID, models.Notification{
			Type:        models.NotificationBookingExpired,
			Title:       "Booking request expired",
			Message:     fmt.Sprintf("The mentor did not respond to your request for %q in time.", session.Title),
			ActionURL:   sessionActionURL(session.ID),
			ActionLabel: "Find another time",
			CreatedAt:   now,
		})
	}
	return len(expired), nil
}
