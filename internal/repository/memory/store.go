// Package memory is an in-process implementation of repository.Store. It
// mirrors the conditional-update and one-open-transaction rules of the
// Postgres schema so services can be exercised without a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/repository"
	"github.com/shopspring/decimal"
)

type state struct {
	sessions     map[string]models.Session
	transactions map[string]models.Transaction
	checks       map[string]reconcileCheck
	last         time.Time
}

type reconcileCheck struct {
	attempts  int
	checkedAt time.Time
}

func (s *state) clone() *state {
	cp := &state{
		sessions:     make(map[string]models.Session, len(s.sessions)),
		transactions: make(map[string]models.Transaction, len(s.transactions)),
		checks:       make(map[string]reconcileCheck, len(s.checks)),
		last:         s.last,
	}
	for id, session := range s.sessions {
		cp.sessions[id] = session
	}
	for ref, txn := range s.transactions {
		cp.transactions[ref] = txn
	}
	for ref, check := range s.checks {
		cp.checks[ref] = check
	}
	return cp
}

// tick returns a strictly increasing timestamp so insertion order is stable.
func (s *state) tick() time.Time {
	now := time.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

type Store struct {
	mu   *sync.Mutex
	txMu *sync.Mutex
	data **state
	inTx bool
}

func NewStore() *Store {
	data := &state{
		sessions:     make(map[string]models.Session),
		transactions: make(map[string]models.Transaction),
		checks:       make(map[string]reconcileCheck),
	}
	return &Store{mu: &sync.Mutex{}, txMu: &sync.Mutex{}, data: &data}
}

func (s *Store) Sessions() repository.SessionStore {
	return &sessionStore{store: s}
}

func (s *Store) Transactions() repository.TransactionStore {
	return &transactionStore{store: s}
}

// WithinTx serializes transactional callbacks and restores the previous state
// when fn fails. Operations outside a transaction wait for it to finish, so the
// restore can never discard their writes.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := (*s.data).clone()
	s.mu.Unlock()

	if err := fn(&Store{mu: s.mu, txMu: s.txMu, data: s.data, inTx: true}); err != nil {
		s.mu.Lock()
		*s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) with(fn func(data *state)) {
	if !s.inTx {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(*s.data)
}

type sessionStore struct {
	store *Store
}

func (r *sessionStore) Create(_ context.Context, input repository.CreateSessionInput) (*models.Session, error) {
	var out *models.Session
	var err error
	r.store.with(func(data *state) {
		if _, exists := data.sessions[input.ID]; exists {
			err = repository.ErrDuplicate
			return
		}
		now := data.tick()
		session := models.Session{
			ID:               input.ID,
			MentorID:         input.MentorID,
			StudentID:        input.StudentID,
			Title:            input.Title,
			Description:      input.Description,
			DurationMinutes:  input.DurationMinutes,
			Price:            input.Price,
			PackageCode:      input.PackageCode,
			SessionsCount:    input.SessionsCount,
			BookingMode:      input.BookingMode,
			Status:           input.Status,
			PaymentStatus:    models.PaymentStatusPending,
			ScheduledAt:      input.ScheduledAt,
			ApprovalDeadline: input.ApprovalDeadline,
			CourseID:         input.CourseID,
			IsOffering:       input.IsOffering,
			OfferingID:       input.OfferingID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		data.sessions[session.ID] = session
		out = &session
	})
	return out, err
}

func (r *sessionStore) GetByID(_ context.Context, sessionID string) (*models.Session, error) {
	var out *models.Session
	r.store.with(func(data *state) {
		if session, ok := data.sessions[sessionID]; ok {
			out = &session
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r *sessionStore) GetByIDForUpdate(ctx context.Context, sessionID string) (*models.Session, error) {
	return r.GetByID(ctx, sessionID)
}

func (r *sessionStore) List(_ context.Context, filter repository.SessionListFilter) ([]models.Session, error) {
	now := time.Now()
	sessions := make([]models.Session, 0)
	r.store.with(func(data *state) {
		for _, session := range data.sessions {
			if session.IsOffering {
				continue
			}
			switch filter.Role {
			case models.RoleMentor:
				if session.MentorID != filter.ActorID {
					continue
				}
			case models.RoleStudent:
				if session.StudentID != filter.ActorID {
					continue
				}
			}
			if status := strings.TrimSpace(filter.Status); status != "" && string(session.Status) != status {
				continue
			}
			end := session.ScheduledAt.Add(time.Duration(session.DurationMinutes) * time.Minute)
			switch strings.TrimSpace(filter.Timeframe) {
			case "upcoming":
				if !end.After(now) {
					continue
				}
			case "past":
				if end.After(now) {
					continue
				}
			}
			sessions = append(sessions, session)
		}
	})
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].ScheduledAt.Equal(sessions[j].ScheduledAt) {
			return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		}
		return sessions[i].ScheduledAt.Before(sessions[j].ScheduledAt)
	})
	return sessions, nil
}

func (r *sessionStore) ListOfferings(_ context.Context, mentorID int64) ([]models.Session, error) {
	offerings := make([]models.Session, 0)
	r.store.with(func(data *state) {
		for _, session := range data.sessions {
			if session.IsOffering && session.MentorID == mentorID {
				offerings = append(offerings, session)
			}
		}
	})
	sort.Slice(offerings, func(i, j int) bool {
		return offerings[i].CreatedAt.After(offerings[j].CreatedAt)
	})
	return offerings, nil
}

func (r *sessionStore) HasBookingsForOffering(_ context.Context, offeringID string) (bool, error) {
	var found bool
	r.store.with(func(data *state) {
		found = hasBookings(data, offeringID)
	})
	return found, nil
}

func hasBookings(data *state, offeringID string) bool {
	for _, session := range data.sessions {
		if session.OfferingID != nil && *session.OfferingID == offeringID {
			return true
		}
	}
	return false
}

func (r *sessionStore) DeleteOffering(_ context.Context, offeringID string, mentorID int64) error {
	var err error
	r.store.with(func(data *state) {
		session, ok := data.sessions[offeringID]
		if !ok || !session.IsOffering || session.MentorID != mentorID || hasBookings(data, offeringID) {
			err = repository.ErrNotFound
			return
		}
		delete(data.sessions, offeringID)
	})
	return err
}

func (r *sessionStore) UpdateStatusIfCurrent(
	_ context.Context,
	input repository.SessionStatusUpdate,
) (*models.Session, error) {
	var out *models.Session
	r.store.with(func(data *state) {
		session, ok := data.sessions[input.SessionID]
		if !ok || session.Status != input.From {
			return
		}
		session.Status = input.To
		if input.ApprovalNotes != nil {
			session.ApprovalNotes = input.ApprovalNotes
		}
		if input.ClearDeadline {
			session.ApprovalDeadline = nil
		}
		if input.ReviewedAt != nil {
			session.ReviewedAt = input.ReviewedAt
		}
		if input.StartedAt != nil {
			session.StartedAt = input.StartedAt
		}
		if input.EndedAt != nil {
			session.EndedAt = input.EndedAt
		}
		session.UpdatedAt = data.tick()
		data.sessions[session.ID] = session
		out = &session
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r *sessionStore) MarkPaidIfPending(_ context.Context, sessionID string) (*models.Session, error) {
	var out *models.Session
	r.store.with(func(data *state) {
		session, ok := data.sessions[sessionID]
		if !ok || session.PaymentStatus != models.PaymentStatusPending {
			return
		}
		session.PaymentStatus = models.PaymentStatusPaid
		session.UpdatedAt = data.tick()
		data.sessions[session.ID] = session
		out = &session
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r *sessionStore) ExpirePendingReview(
	_ context.Context,
	now time.Time,
	notes string,
) ([]models.Session, error) {
	expired := make([]models.Session, 0)
	r.store.with(func(data *state) {
		for id, session := range data.sessions {
			if session.Status != models.SessionStatusPendingMentorReview ||
				session.ApprovalDeadline == nil ||
				!session.ApprovalDeadline.Before(now) {
				continue
			}
			reviewedAt := now
			reason := notes
			session.Status = models.SessionStatusRejected
			session.ApprovalNotes = &reason
			session.ApprovalDeadline = nil
			session.ReviewedAt = &reviewedAt
			session.UpdatedAt = data.tick()
			data.sessions[id] = session
			expired = append(expired, session)
		}
	})
	return expired, nil
}

type transactionStore struct {
	store *Store
}

func (r *transactionStore) Create(
	_ context.Context,
	input repository.CreateTransactionInput,
) (*models.Transaction, error) {
	var out *models.Transaction
	var err error
	r.store.with(func(data *state) {
		if _, exists := data.transactions[input.Reference]; exists {
			err = repository.ErrDuplicate
			return
		}
		for _, txn := range data.transactions {
			if txn.SessionID == input.SessionID && txn.Status == models.TransactionStatusPending {
				err = repository.ErrDuplicate
				return
			}
		}
		now := data.tick()
		txn := models.Transaction{
			Reference:     input.Reference,
			SessionID:     input.SessionID,
			PayerID:       input.PayerID,
			Amount:        input.Amount,
			Status:        models.TransactionStatusPending,
			PaymentMethod: input.PaymentMethod,
			PlatformShare: input.PlatformShare,
			ProviderShare: input.ProviderShare,
			Metadata:      input.Metadata,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		data.transactions[txn.Reference] = txn
		out = &txn
	})
	return out, err
}

func (r *transactionStore) GetByReference(_ context.Context, reference string) (*models.Transaction, error) {
	var out *models.Transaction
	r.store.with(func(data *state) {
		if txn, ok := data.transactions[reference]; ok {
			out = &txn
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r *transactionStore) GetOpenBySessionID(_ context.Context, sessionID string) (*models.Transaction, error) {
	var out *models.Transaction
	r.store.with(func(data *state) {
		for _, txn := range data.transactions {
			if txn.SessionID == sessionID && txn.Status == models.TransactionStatusPending {
				found := txn
				out = &found
				return
			}
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r *transactionStore) GetLatestBySessionID(_ context.Context, sessionID string) (*models.Transaction, error) {
	var out *models.Transaction
	r.store.with(func(data *state) {
		for _, txn := range data.transactions {
			if txn.SessionID != sessionID {
				continue
			}
			if out == nil || txn.CreatedAt.After(out.CreatedAt) {
				found := txn
				out = &found
			}
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r *transactionStore) ListLatestBySessionIDs(
	_ context.Context,
	sessionIDs []string,
) (map[string]models.Transaction, error) {
	wanted := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		wanted[id] = struct{}{}
	}

	latest := make(map[string]models.Transaction, len(sessionIDs))
	r.store.with(func(data *state) {
		for _, txn := range data.transactions {
			if _, ok := wanted[txn.SessionID]; !ok {
				continue
			}
			if current, ok := latest[txn.SessionID]; !ok || txn.CreatedAt.After(current.CreatedAt) {
				latest[txn.SessionID] = txn
			}
		}
	})
	return latest, nil
}

func (r *transactionStore) ListStalePending(
	_ context.Context,
	filter repository.StalePendingFilter,
) ([]models.Transaction, error) {
	type candidate struct {
		txn   models.Transaction
		check reconcileCheck
	}
	candidates := make([]candidate, 0)
	r.store.with(func(data *state) {
		for ref, txn := range data.transactions {
			if txn.Status != models.TransactionStatusPending || !txn.CreatedAt.Before(filter.CreatedBefore) {
				continue
			}
			check := data.checks[ref]
			if check.attempts >= filter.MaxAttempts {
				continue
			}
			candidates = append(candidates, candidate{txn: txn, check: check})
		}
	})
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].check.checkedAt, candidates[j].check.checkedAt
		if !a.Equal(b) {
			// Zero time sorts first, matching NULLS FIRST.
			return a.Before(b)
		}
		return candidates[i].txn.CreatedAt.Before(candidates[j].txn.CreatedAt)
	})
	if filter.Limit > 0 && len(candidates) > filter.Limit {
		candidates = candidates[:filter.Limit]
	}

	pending := make([]models.Transaction, len(candidates))
	for i, c := range candidates {
		pending[i] = c.txn
	}
	return pending, nil
}

func (r *transactionStore) RecordReconcileAttempt(_ context.Context, reference string, at time.Time) error {
	r.store.with(func(data *state) {
		txn, ok := data.transactions[reference]
		if !ok || txn.Status != models.TransactionStatusPending {
			return
		}
		check := data.checks[reference]
		check.attempts++
		check.checkedAt = at
		data.checks[reference] = check
	})
	return nil
}

func (r *transactionStore) UpdateStatusIfCurrent(
	_ context.Context,
	input repository.TransactionStatusUpdate,
) (*models.Transaction, error) {
	var out *models.Transaction
	r.store.with(func(data *state) {
		txn, ok := data.transactions[input.Reference]
		if !ok || txn.Status != input.From {
			return
		}
		txn.Status = input.To
		if input.Metadata != nil {
			txn.Metadata = *input.Metadata
		}
		if input.CompletedAt != nil {
			txn.CompletedAt = input.CompletedAt
		}
		txn.UpdatedAt = data.tick()
		data.transactions[txn.Reference] = txn
		out = &txn
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (r *transactionStore) Summarize(
	_ context.Context,
	filter repository.SettlementFilter,
) (map[models.TransactionStatus]models.SettlementTotals, error) {
	totals := make(map[models.TransactionStatus]models.SettlementTotals, 2)
	r.store.with(func(data *state) {
		for _, txn := range data.transactions {
			if txn.Status != models.TransactionStatusCompleted && txn.Status != models.TransactionStatusPending {
				continue
			}
			if txn.CreatedAt.Before(filter.From) || !txn.CreatedAt.Before(filter.To) {
				continue
			}
			if filter.ProductType != "" && txn.Metadata.ProductType != filter.ProductType {
				continue
			}
			if filter.MentorID != nil {
				session, ok := data.sessions[txn.SessionID]
				if !ok || session.MentorID != *filter.MentorID {
					continue
				}
			}
			row, ok := totals[txn.Status]
			if !ok {
				row = models.SettlementTotals{
					Amount:        decimal.Zero,
					PlatformShare: decimal.Zero,
					ProviderShare: decimal.Zero,
				}
			}
			row.Count++
			row.Amount = row.Amount.Add(txn.Amount)
			row.PlatformShare = row.PlatformShare.Add(txn.PlatformShare)
			row.ProviderShare = row.ProviderShare.Add(txn.ProviderShare)
			totals[txn.Status] = row
		}
	})
	return totals, nil
}
