package services

import (
	"context"
	"sync"
	"testing"

	"github.com/saeid-a/MentorHubBack/internal/apperrors"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) fire(
	ctx context.Context,
	event sessionEvent,
	actor models.Actor,
	sessionID string,
) (*models.Session, error) {
	switch event {
	case eventApprove:
		return f.approvals.Approve(ctx, sessionID, actor.ID)
	case eventReject:
		return f.approvals.Reject(ctx, sessionID, actor.ID, "not available")
	case eventStart:
		return f.sessions.StartSession(ctx, actor, sessionID)
	case eventComplete:
		return f.sessions.CompleteSession(ctx, actor, sessionID)
	case eventCancel:
		return f.sessions.CancelSession(ctx, actor, sessionID)
	case eventNoShow:
		return f.sessions.MarkNoShow(ctx, actor, sessionID)
	}
	panic("unknown event " + string(event))
}

func TestTransitionTableLegality(t *testing.T) {
	mentor := models.Actor{ID: mentorID, Role: models.RoleMentor}

	for _, status := range models.AllSessionStatuses {
		for _, event := range allSessionEvents {
			status, event := status, event
			want, legal := sessionTransitions[event][status]

			t.Run(string(status)+"/"+string(event), func(t *testing.T) {
				f := newFixture(t)
				seeded := f.seed(t, status)

				updated, err := f.fire(context.Background(), event, mentor, seeded.ID)
				if !legal {
					require.ErrorIs(t, err, apperrors.ErrStateConflict)
					assert.Nil(t, updated)
					assert.Equal(t, seeded, f.reloadSession(t, seeded.ID))
					return
				}

				require.NoError(t, err)
				assert.Equal(t, want, updated.Status)
				if status == models.SessionStatusPendingMentorReview {
					assert.Nil(t, updated.ApprovalDeadline)
				}
			})
		}
	}
}

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	for _, status := range models.AllSessionStatuses {
		for _, event := range allSessionEvents {
			_, ok := sessionTransitions[event][status]
			if status.Terminal() {
				assert.False(t, ok, "%s should not leave %s", event, status)
			}
		}
	}
}

func TestTransitionStampsTimestamps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mentor := models.Actor{ID: mentorID, Role: models.RoleMentor}
	session := f.seed(t, models.SessionStatusScheduled)

	started, err := f.sessions.StartSession(ctx, mentor, session.ID)
	require.NoError(t, err)
	require.NotNil(t, started.StartedAt)
	assert.Nil(t, started.EndedAt)

	completed, err := f.sessions.CompleteSession(ctx, models.Actor{ID: adminID, Role: models.RoleAdmin}, session.ID)
	require.NoError(t, err)
	require.NotNil(t, completed.EndedAt)
	assert.Equal(t, models.SessionStatusCompleted, completed.Status)
	assert.Equal(t, []string{models.NotificationSessionStarted, models.NotificationSessionCompleted},
		f.notifier.typesFor(studentID))
	assert.Equal(t, []string{models.NotificationSessionCompleted}, f.notifier.typesFor(mentorID))
}

func TestStudentCannotDriveLifecycle(t *testing.T) {
	f := newFixture(t)
	session := f.seed(t, models.SessionStatusScheduled)
	student := models.Actor{ID: studentID, Role: models.RoleStudent}

	for _, event := range []sessionEvent{eventStart, eventCancel, eventNoShow} {
		_, err := f.fire(context.Background(), event, student, session.ID)
		assert.ErrorIs(t, err, apperrors.ErrForbidden, string(event))
	}
	assert.Equal(t, session, f.reloadSession(t, session.ID))
}

func TestAuthorizationIsCheckedBeforeState(t *testing.T) {
	f := newFixture(t)
	session := f.seed(t, models.SessionStatusCompleted)

	_, err := f.sessions.CancelSession(context.Background(), models.Actor{ID: otherMentorID, Role: models.RoleMentor}, session.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.sessions.StartSession(context.Background(), models.Actor{ID: adminID, Role: models.RoleAdmin}, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConcurrentReviewDecisionsLinearize(t *testing.T) {
	f := newFixture(t)
	session := f.seed(t, models.SessionStatusPendingMentorReview)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.approvals.Approve(context.Background(), session.ID, mentorID)
			} else {
				_, err = f.approvals.Reject(context.Background(), session.ID, mentorID, "busy")
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrStateConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestOtherPartiesSkipsActorAndDuplicates(t *testing.T) {
	session := &models.Session{StudentID: 1, MentorID: 2}
	assert.Equal(t, []int64{2}, otherParties(models.Actor{ID: 1}, session))
	assert.Equal(t, []int64{1}, otherParties(models.Actor{ID: 2}, session))
	assert.Equal(t, []int64{1, 2}, otherParties(models.Actor{ID: 9, Role: models.RoleAdmin}, session))

	offering := &models.Session{StudentID: 2, MentorID: 2}
	assert.Equal(t, []int64{2}, otherParties(models.Actor{ID: 9}, offering))
}
