package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/identity/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-reputation-go/internal/identity/repo"
	"github.com/ovaphlow/pitchfork/service-reputation-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-reputation-go/pkg/utilities"
)

// Repo is the data access surface the identity service needs. The sqlx
// implementation lives in internal/identity/repo; tests substitute an
// in-memory fake.
type Repo interface {
	Create(ctx context.Context, u *entity.User) error
	GetByAnyID(ctx context.Context, anyID string) (*entity.User, error)
	GetByPrimaryID(ctx context.Context, primaryID string) (*entity.User, error)
	ListMergedInto(ctx context.Context, survivorPrimaryID string) ([]*entity.User, error)
	Merge(ctx context.Context, rec *entity.MergeRecord) error
}

// sentinel errors for common failure modes
var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrDuplicateAuthID  = errors.New("external auth id already bound")
	ErrMergeConflict    = errors.New("merge conflict")
)

// Service resolves any known identifier for a user to the canonical
// primary id, and expands a primary id to the full set of identifiers
// activity producers may have written against. Every aggregation read
// in the system routes through Expand; a caller that skips it silently
// undercounts activity recorded under the other identifier.
type Service struct {
	repo Repo
}

func NewService(db *sqlx.DB, r Repo) *Service {
	if r == nil {
		r = userrepo.NewUserRepo(db)
	}
	return &Service{repo: r}
}

// Resolve maps a primary id or external auth id to the canonical
// primary id. Identifiers of users retired by a merge resolve to the
// survivor. Pure lookup, no side effects.
func (s *Service) Resolve(ctx context.Context, anyID string) (string, error) {
	anyID = strings.TrimSpace(anyID)
	if anyID == "" {
		return "", ErrIdentityNotFound
	}
	u, err := s.repo.GetByAnyID(ctx, anyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrIdentityNotFound
		}
		return "", err
	}
	if u.Status == "merged" && u.MergedInto != nil {
		return *u.MergedInto, nil
	}
	return u.PrimaryID, nil
}

// Expand returns every identifier known for the canonical user: the
// primary id, the external auth id when present, and the identifiers of
// any rows merged into this user. The result is the identity-union
// filter used by activity aggregation.
func (s *Service) Expand(ctx context.Context, primaryID string) ([]string, error) {
	u, err := s.repo.GetByPrimaryID(ctx, primaryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	ids := []string{u.PrimaryID}
	if u.ExternalAuthID != nil && *u.ExternalAuthID != "" {
		ids = append(ids, *u.ExternalAuthID)
	}
	merged, err := s.repo.ListMergedInto(ctx, u.PrimaryID)
	if err != nil {
		return nil, err
	}
	for _, m := range merged {
		ids = append(ids, m.PrimaryID)
		if m.ExternalAuthID != nil && *m.ExternalAuthID != "" {
			ids = append(ids, *m.ExternalAuthID)
		}
	}
	return ids, nil
}

// Provision creates a canonical user row, binding the external auth id
// at creation. externalAuthID may be empty for service accounts.
func (s *Service) Provision(ctx context.Context, externalAuthID, displayName string) (*entity.User, error) {
	var ext *string
	if e := strings.TrimSpace(externalAuthID); e != "" {
		ext = &e
	}
	u := &entity.User{
		PrimaryID:      utilities.NewKSUID(),
		ExternalAuthID: ext,
		DisplayName:    strings.TrimSpace(displayName),
		Status:         "active",
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateAuthID
		}
		return nil, err
	}
	return u, nil
}

// Merge retires duplicatePrimaryID in favour of survivorPrimaryID and
// records the operation in the audit log. Both arguments must be
// distinct, active primary ids. Historical ledger rows written under
// the duplicate id are left in place for an offline reconciliation
// pass; from this point on, resolution and expansion treat the two as
// one equivalence class.
func (s *Service) Merge(ctx context.Context, survivorPrimaryID, duplicatePrimaryID, operator, note string) (*entity.MergeRecord, error) {
	if survivorPrimaryID == duplicatePrimaryID {
		return nil, ErrMergeConflict
	}
	survivor, err := s.repo.GetByPrimaryID(ctx, survivorPrimaryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	if survivor.Status != "active" {
		return nil, ErrMergeConflict
	}
	rec := &entity.MergeRecord{
		ID:                 utilities.NewSnowflakeID(),
		SurvivorPrimaryID:  survivorPrimaryID,
		DuplicatePrimaryID: duplicatePrimaryID,
		Operator:           operator,
		Note:               note,
	}
	if err := s.repo.Merge(ctx, rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// duplicate row missing or already merged
			return nil, ErrMergeConflict
		}
		return nil, err
	}
	return rec, nil
}
