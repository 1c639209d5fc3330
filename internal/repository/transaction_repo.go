package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/shopspring/decimal"
)

const transactionColumns = `
	reference, session_id, payer_id, amount, status, payment_method, platform_share, provider_share,
	metadata, created_at, updated_at, completed_at`

type CreateTransactionInput struct {
	Reference     string
	SessionID     string
	PayerID       int64
	Amount        decimal.Decimal
	PaymentMethod string
	PlatformShare decimal.Decimal
	ProviderShare decimal.Decimal
	Metadata      models.TransactionMetadata
}

// TransactionStatusUpdate moves a transaction from From to To. A non-nil
// Metadata replaces the stored document.
type TransactionStatusUpdate struct {
	Reference   string
	From        models.TransactionStatus
	To          models.TransactionStatus
	Metadata    *models.TransactionMetadata
	CompletedAt *time.Time
}

// StalePendingFilter selects PENDING transactions for re-verification. Rows
// checked least recently come first and rows at MaxAttempts are skipped.
type StalePendingFilter struct {
	CreatedBefore time.Time
	MaxAttempts   int
	Limit         int
}

type SettlementFilter struct {
	From        time.Time
	To          time.Time
	ProductType string
	MentorID    *int64
}

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var txn models.Transaction
	err := row.Scan(
		&txn.Reference,
		&txn.SessionID,
		&txn.PayerID,
		&txn.Amount,
		&txn.Status,
		&txn.PaymentMethod,
		&txn.PlatformShare,
		&txn.ProviderShare,
		&txn.Metadata,
		&txn.CreatedAt,
		&txn.UpdatedAt,
		&txn.CompletedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return &txn, nil
}

// Create inserts a PENDING transaction. A second open transaction for the same
// session violates transactions_one_open_per_session and yields ErrDuplicate.
func (r *TransactionRepository) Create(ctx context.Context, input CreateTransactionInput) (*models.Transaction, error) {
	query := `
		INSERT INTO transactions (
			reference, session_id, payer_id, amount, status, payment_method, platform_share, provider_share, metadata
		)
		VALUES ($1, $2, $3, $4, 'PENDING', $5, $6, $7, $8)
		RETURNING` + transactionColumns

	return scanTransaction(r.db.QueryRow(
		ctx,
		query,
		input.Reference,
		input.SessionID,
		input.PayerID,
		input.Amount,
		input.PaymentMethod,
		input.PlatformShare,
		input.ProviderShare,
		input.Metadata,
	))
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	query := `SELECT` + transactionColumns + ` FROM transactions WHERE reference = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, reference))
}

func (r *TransactionRepository) GetOpenBySessionID(ctx context.Context, sessionID string) (*models.Transaction, error) {
	query := `SELECT` + transactionColumns + `
		FROM transactions
		WHERE session_id = $1 AND status = 'PENDING'
		LIMIT 1`
	return scanTransaction(r.db.QueryRow(ctx, query, sessionID))
}

func (r *TransactionRepository) GetLatestBySessionID(ctx context.Context, sessionID string) (*models.Transaction, error) {
	query := `SELECT` + transactionColumns + `
		FROM transactions
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return scanTransaction(r.db.QueryRow(ctx, query, sessionID))
}

func (r *TransactionRepository) ListLatestBySessionIDs(
	ctx context.Context,
	sessionIDs []string,
) (map[string]models.Transaction, error) {
	transactions := make(map[string]models.Transaction, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return transactions, nil
	}

	query := `
		SELECT DISTINCT ON (session_id)` + transactionColumns + `
		FROM transactions
		WHERE session_id = ANY($1)
		ORDER BY session_id, created_at DESC
	`

	rows, err := r.db.Query(ctx, query, sessionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions[txn.SessionID] = *txn
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return transactions, nil
}

func (r *TransactionRepository) ListStalePending(
	ctx context.Context,
	filter StalePendingFilter,
) ([]models.Transaction, error) {
	query := `SELECT` + transactionColumns + `
		FROM transactions
		WHERE status = 'PENDING' AND created_at < $1 AND reconcile_attempts < $2
		ORDER BY last_checked_at ASC NULLS FIRST, created_at ASC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, filter.CreatedBefore, filter.MaxAttempts, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]models.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

// RecordReconcileAttempt stamps a PENDING transaction as checked. Rows that
// settled in the meantime are left alone.
func (r *TransactionRepository) RecordReconcileAttempt(ctx context.Context, reference string, at time.Time) error {
	query := `
		UPDATE transactions
		SET reconcile_attempts = reconcile_attempts + 1,
			last_checked_at = $2
		WHERE reference = $1 AND status = 'PENDING'`

	_, err := r.db.Exec(ctx, query, reference, at)
	return err
}

func (r *TransactionRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	input TransactionStatusUpdate,
) (*models.Transaction, error) {
	query := `
		UPDATE transactions
		SET status = $3,
			metadata = COALESCE($4::jsonb, metadata),
			completed_at = COALESCE($5::timestamptz, completed_at),
			updated_at = NOW()
		WHERE reference = $1 AND status = $2
		RETURNING` + transactionColumns

	var metadata any
	if input.Metadata != nil {
		metadata = *input.Metadata
	}

	return scanTransaction(r.db.QueryRow(
		ctx,
		query,
		input.Reference,
		input.From,
		input.To,
		metadata,
		input.CompletedAt,
	))
}

// Summarize aggregates COMPLETED and PENDING transactions created within
// [From, To). It only reads the ledger.
func (r *TransactionRepository) Summarize(
	ctx context.Context,
	filter SettlementFilter,
) (map[models.TransactionStatus]models.SettlementTotals, error) {
	query := `
		SELECT t.status,
			   COUNT(*),
			   COALESCE(SUM(t.amount), 0),
			   COALESCE(SUM(t.platform_share), 0),
			   COALESCE(SUM(t.provider_share), 0)
		FROM transactions t
		JOIN sessions s ON s.id = t.session_id
		WHERE t.status IN ('COMPLETED', 'PENDING')
		  AND t.created_at >= $1
		  AND t.created_at < $2
		  AND ($3::text = '' OR t.metadata->>'product_type' = $3::text)
		  AND ($4::bigint IS NULL OR s.mentor_id = $4::bigint)
		GROUP BY t.status
	`

	rows, err := r.db.Query(ctx, query, filter.From, filter.To, filter.ProductType, filter.MentorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[models.TransactionStatus]models.SettlementTotals, 2)
	for rows.Next() {
		var status models.TransactionStatus
		var row models.SettlementTotals
		if err := rows.Scan(
			&status,
			&row.Count,
			&row.Amount,
			&row.PlatformShare,
			&row.ProviderShare,
		); err != nil {
			return nil, err
		}
		totals[status] = row
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}
