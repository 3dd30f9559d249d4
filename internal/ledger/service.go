package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/ledger/entity"
	ledgerrepo "github.com/ovaphlow/pitchfork/service-reputation-go/internal/ledger/repo"
	"github.com/ovaphlow/pitchfork/service-reputation-go/pkg/utilities"
)

// Repo is the data access surface the ledger service needs.
type Repo interface {
	Insert(ctx context.Context, tx *entity.Transaction) (*entity.Transaction, bool, error)
	SumBalance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string, limit int, beforeSeq int64) ([]*entity.Transaction, error)
}

// sentinel errors for common failure modes
var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
)

const defaultPageSize = 50
const maxPageSize = 200

// Service is the append-only point ledger. Balance is always a derived
// aggregate over the transactions, never a mutable counter, so
// concurrent awards for the same user cannot lose updates.
type Service struct {
	repo Repo
}

func NewService(db *sqlx.DB, r Repo) *Service {
	if r == nil {
		r = ledgerrepo.NewLedgerRepo(db)
	}
	return &Service{repo: r}
}

// Award appends a point transaction for the canonical user. amount may
// be negative (deduction / reversal) but never zero. When an
// idempotency key is supplied and a transaction with that key already
// exists for the user, the existing transaction is returned unchanged.
// A retried award is a no-op, not an error.
func (s *Service) Award(ctx context.Context, userID string, amount int64, reason, category, idempotencyKey string) (*entity.Transaction, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if !entity.ValidCategory(category) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	tx := &entity.Transaction{
		ID:       utilities.NewKSUID(),
		UserID:   userID,
		Amount:   amount,
		Reason:   strings.TrimSpace(reason),
		Category: category,
	}
	if k := strings.TrimSpace(idempotencyKey); k != "" {
		tx.IdempotencyKey = &k
	}
	applied, _, err := s.repo.Insert(ctx, tx)
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// Balance returns the sum of all transactions for the user; zero when
// the user has no ledger activity.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.repo.SumBalance(ctx, userID)
}

// HistoryPage is one page of a user's transaction history, newest
// first. NextBefore is the cursor for the following page; zero when the
// history is exhausted.
type HistoryPage struct {
	Transactions []*entity.Transaction `json:"transactions"`
	NextBefore   int64                 `json:"next_before"`
}

// History returns a page of the user's transactions ordered by the
// monotonic sequence number, newest first. The before cursor rather
// than a page offset keeps pagination stable under concurrent appends:
// a row is never skipped or returned twice because a new transaction
// landed between two page reads.
func (s *Service) History(ctx context.Context, userID string, pageSize int, beforeSeq int64) (*HistoryPage, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if beforeSeq < 0 {
		// a malformed cursor reads from the head, same as absent
		beforeSeq = 0
	}
	txs, err := s.repo.History(ctx, userID, pageSize, beforeSeq)
	if err != nil {
		return nil, err
	}
	page := &HistoryPage{Transactions: txs}
	if len(txs) == pageSize {
		page.NextBefore = txs[len(txs)-1].Seq
	}
	return page, nil
}

// VerifyBalance recomputes the balance by full replay of the history
// pages and compares it with the aggregate query. Both derive from the
// same append-only rows, so for a quiescent user the two always agree;
// an award landing mid-replay can produce a transient mismatch. Used
// for audit and repair, not on request paths.
func (s *Service) VerifyBalance(ctx context.Context, userID string) (int64, bool, error) {
	aggregate, err := s.repo.SumBalance(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	var replayed int64
	var before int64
	for {
		txs, err := s.repo.History(ctx, userID, maxPageSize, before)
		if err != nil {
			return 0, false, err
		}
		for _, tx := range txs {
			replayed += tx.Amount
		}
		if len(txs) < maxPageSize {
			break
		}
		before = txs[len(txs)-1].Seq
	}
	return aggregate, aggregate == replayed, nil
}
