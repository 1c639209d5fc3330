package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/saeid-a/MentorHubBack/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

const uniqueViolationCode = "23505"

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SessionStore persists sessions. Every status change is conditional on the
// current status, so a miss returns ErrNotFound and the caller decides whether
// that was a lost race or a missing row.
type SessionStore interface {
	Create(ctx context.Context, input CreateSessionInput) (*models.Session, error)
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
	GetByIDForUpdate(ctx context.Context, sessionID string) (*models.Session, error)
	List(ctx context.Context, filter SessionListFilter) ([]models.Session, error)
	ListOfferings(ctx context.Context, mentorID int64) ([]models.Session, error)
	HasBookingsForOffering(ctx context.Context, offeringID string) (bool, error)
	DeleteOffering(ctx context.Context, offeringID string, mentorID int64) error
	UpdateStatusIfCurrent(ctx context.Context, input SessionStatusUpdate) (*models.Session, error)
	MarkPaidIfPending(ctx context.Context, sessionID string) (*models.Session, error)
	ExpirePendingReview(ctx context.Context, now time.Time, notes string) ([]models.Session, error)
}

type TransactionStore interface {
	Create(ctx context.Context, input CreateTransactionInput) (*models.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)
	GetOpenBySessionID(ctx context.Context, sessionID string) (*models.Transaction, error)
	GetLatestBySessionID(ctx context.Context, sessionID string) (*models.Transaction, error)
	ListLatestBySessionIDs(ctx context.Context, sessionIDs []string) (map[string]models.Transaction, error)
	ListStalePending(ctx context.Context, filter StalePendingFilter) ([]models.Transaction, error)
	RecordReconcileAttempt(ctx context.Context, reference string, at time.Time) error
	UpdateStatusIfCurrent(ctx context.Context, input TransactionStatusUpdate) (*models.Transaction, error)
	Summarize(ctx context.Context, filter SettlementFilter) (map[models.TransactionStatus]models.SettlementTotals, error)
}

// Store groups the booking repositories behind one handle. WithinTx runs fn
// against a Store bound to a single database transaction.
type Store interface {
	Sessions() SessionStore
	Transactions() TransactionStore
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

type PgStore struct {
	pool *pgxpool.Pool
	db   DBTX
	tx   pgx.Tx
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, db: pool}
}

func (s *PgStore) Sessions() SessionStore {
	return NewSessionRepository(s.db)
}

func (s *PgStore) Transactions() TransactionStore {
	return NewTransactionRepository(s.db)
}

func (s *PgStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&PgStore{pool: s.pool, db: tx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return errors.Join(ErrDuplicate, err)
	}
	return err
}
