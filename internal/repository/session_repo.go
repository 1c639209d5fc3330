package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/shopspring/decimal"
)

const sessionColumns = `
	id, mentor_id, student_id, title, description, duration_min, price, package_code, sessions_count,
	booking_mode, status, payment_status, scheduled_at, approval_deadline, approval_notes, reviewed_at,
	started_at, ended_at, course_id, is_offering, offering_id, created_at, updated_at`

type CreateSessionInput struct {
	ID               string
	MentorID         int64
	StudentID        int64
	Title            string
	Description      *string
	DurationMinutes  int
	Price            decimal.Decimal
	PackageCode      string
	SessionsCount    int
	BookingMode      models.BookingMode
	Status           models.SessionStatus
	ScheduledAt      time.Time
	ApprovalDeadline *time.Time
	CourseID         *string
	IsOffering       bool
	OfferingID       *string
}

type SessionListFilter struct {
	ActorID   int64
	Role      string
	Status    string
	Timeframe string
}

// SessionStatusUpdate moves a session from From to To. Nil stamps leave the
// stored value untouched.
type SessionStatusUpdate struct {
	SessionID     string
	From          models.SessionStatus
	To            models.SessionStatus
	ApprovalNotes *string
	ClearDeadline bool
	ReviewedAt    *time.Time
	StartedAt     *time.Time
	EndedAt       *time.Time
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.MentorID,
		&session.StudentID,
		&session.Title,
		&session.Description,
		&session.DurationMinutes,
		&session.Price,
		&session.PackageCode,
		&session.SessionsCount,
		&session.BookingMode,
		&session.Status,
		&session.PaymentStatus,
		&session.ScheduledAt,
		&session.ApprovalDeadline,
		&session.ApprovalNotes,
		&session.ReviewedAt,
		&session.StartedAt,
		&session.EndedAt,
		&session.CourseID,
		&session.IsOffering,
		&session.OfferingID,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return &session, nil
}

func collectSessions(rows pgx.Rows) ([]models.Session, error) {
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) Create(
	ctx context.Context,
	input CreateSessionInput,
) (*models.Session, error) {
	query := `
		INSERT INTO sessions (
			id, mentor_id, student_id, title, description, duration_min, price, package_code, sessions_count,
			booking_mode, status, payment_status, scheduled_at, approval_deadline, course_id, is_offering, offering_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'PENDING', $12, $13, $14, $15, $16)
		RETURNING` + sessionColumns

	return scanSession(r.db.QueryRow(
		ctx,
		query,
		input.ID,
		input.MentorID,
		input.StudentID,
		input.Title,
		input.Description,
		input.DurationMinutes,
		input.Price,
		input.PackageCode,
		input.SessionsCount,
		input.BookingMode,
		input.Status,
		input.ScheduledAt,
		input.ApprovalDeadline,
		input.CourseID,
		input.IsOffering,
		input.OfferingID,
	))
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `SELECT` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

func (r *SessionRepository) GetByIDForUpdate(
	ctx context.Context,
	sessionID string,
) (*models.Session, error) {
	query := `SELECT` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE`
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

func (r *SessionRepository) List(
	ctx context.Context,
	filter SessionListFilter,
) ([]models.Session, error) {
	args := []any{}
	whereParts := []string{"is_offering = FALSE"}

	switch filter.Role {
	case models.RoleMentor:
		args = append(args, filter.ActorID)
		whereParts = append(whereParts, fmt.Sprintf("mentor_id = $%d", len(args)))
	case models.RoleStudent:
		args = append(args, filter.ActorID)
		whereParts = append(whereParts, fmt.Sprintf("student_id = $%d", len(args)))
	}

	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	switch strings.TrimSpace(filter.Timeframe) {
	case "upcoming":
		whereParts = append(
			whereParts,
			"(scheduled_at + (duration_min * INTERVAL '1 minute')) > NOW()",
		)
	case "past":
		whereParts = append(
			whereParts,
			"(scheduled_at + (duration_min * INTERVAL '1 minute')) <= NOW()",
		)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE %s
		ORDER BY scheduled_at ASC, created_at ASC
	`, sessionColumns, strings.Join(whereParts, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *SessionRepository) ListOfferings(ctx context.Context, mentorID int64) ([]models.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM sessions
		WHERE mentor_id = $1 AND is_offering = TRUE
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, mentorID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *SessionRepository) HasBookingsForOffering(ctx context.Context, offeringID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM sessions WHERE offering_id = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, offeringID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *SessionRepository) DeleteOffering(ctx context.Context, offeringID string, mentorID int64) error {
	query := `
		DELETE FROM sessions
		WHERE id = $1
		  AND mentor_id = $2
		  AND is_offering = TRUE
		  AND NOT EXISTS (SELECT 1 FROM sessions booked WHERE booked.offering_id = $1)
	`
	tag, err := r.db.Exec(ctx, query, offeringID, mentorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SessionRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	input SessionStatusUpdate,
) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET status = $3,
			approval_notes = COALESCE($4::text, approval_notes),
			approval_deadline = CASE WHEN $5::boolean THEN NULL ELSE approval_deadline END,
			reviewed_at = COALESCE($6::timestamptz, reviewed_at),
			started_at = COALESCE($7::timestamptz, started_at),
			ended_at = COALESCE($8::timestamptz, ended_at),
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING` + sessionColumns

	return scanSession(r.db.QueryRow(
		ctx,
		query,
		input.SessionID,
		input.From,
		input.To,
		input.ApprovalNotes,
		input.ClearDeadline,
		input.ReviewedAt,
		input.StartedAt,
		input.EndedAt,
	))
}

func (r *SessionRepository) MarkPaidIfPending(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET payment_status = 'PAID', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'PENDING'
		RETURNING` + sessionColumns

	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

func (r *SessionRepository) ExpirePendingReview(
	ctx context.Context,
	now time.Time,
	notes string,
) ([]models.Session, error) {
	query := `
		UPDATE sessions
		SET status = 'REJECTED',
			approval_notes = $2,
			approval_deadline = NULL,
			reviewed_at = $1,
			updated_at = NOW()
		WHERE status = 'PENDING_MENTOR_REVIEW'
		  AND approval_deadline IS NOT NULL
		  AND approval_deadline < $1
		RETURNING` + sessionColumns

	rows, err := r.db.Query(ctx, query, now, notes)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}
