package identity

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/identity/entity"
)

// fakeRepo is an in-memory Repo. It mirrors the storage constraints the
// real table enforces: primary_id is the key, external_auth_id is
// unique across rows.
type fakeRepo struct {
	mu    sync.Mutex
	users map[string]*entity.User
	log   []*entity.MergeRecord
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[string]*entity.User{}}
}

func (f *fakeRepo) Create(_ context.Context, u *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ExternalAuthID != nil {
		for _, existing := range f.users {
			if existing.ExternalAuthID != nil && *existing.ExternalAuthID == *u.ExternalAuthID {
				return &pq.Error{Code: "23505"}
			}
		}
	}
	stored := *u
	f.users[u.PrimaryID] = &stored
	return nil
}

func (f *fakeRepo) GetByAnyID(_ context.Context, anyID string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.PrimaryID == anyID || (u.ExternalAuthID != nil && *u.ExternalAuthID == anyID) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRepo) GetByPrimaryID(_ context.Context, primaryID string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[primaryID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) ListMergedInto(_ context.Context, survivor string) ([]*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*entity.User{}
	for _, u := range f.users {
		if u.MergedInto != nil && *u.MergedInto == survivor {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) Merge(_ context.Context, rec *entity.MergeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dup, ok := f.users[rec.DuplicatePrimaryID]
	if !ok || dup.Status != "active" {
		return sql.ErrNoRows
	}
	dup.Status = "merged"
	survivor := rec.SurvivorPrimaryID
	dup.MergedInto = &survivor
	for _, u := range f.users {
		if u.MergedInto != nil && *u.MergedInto == rec.DuplicatePrimaryID {
			u.MergedInto = &survivor
		}
	}
	f.log = append(f.log, rec)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	return NewService(nil, repo), repo
}

func TestProvisionAndResolve(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Provision(ctx, "auth0|alice", "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, u.PrimaryID)
	require.NotNil(t, u.ExternalAuthID)

	// both identifier schemes resolve to the same canonical id
	got, err := svc.Resolve(ctx, u.PrimaryID)
	require.NoError(t, err)
	assert.Equal(t, u.PrimaryID, got)

	got, err = svc.Resolve(ctx, "auth0|alice")
	require.NoError(t, err)
	assert.Equal(t, u.PrimaryID, got)
}

func TestResolveNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	_, err = svc.Resolve(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestProvisionServiceAccount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Provision(ctx, "", "nightly-job")
	require.NoError(t, err)
	assert.Nil(t, u.ExternalAuthID)

	ids, err := svc.Expand(ctx, u.PrimaryID)
	require.NoError(t, err)
	assert.Equal(t, []string{u.PrimaryID}, ids)
}

func TestProvisionDuplicateAuthID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Provision(ctx, "auth0|bob", "Bob")
	require.NoError(t, err)

	_, err = svc.Provision(ctx, "auth0|bob", "Impostor")
	assert.ErrorIs(t, err, ErrDuplicateAuthID)
}

func TestExpandIncludesExternalID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Provision(ctx, "auth0|carol", "Carol")
	require.NoError(t, err)

	ids, err := svc.Expand(ctx, u.PrimaryID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{u.PrimaryID, "auth0|carol"}, ids)
}

func TestExpandUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Expand(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestMergeRedirectsResolutionAndExpansion(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	survivor, err := svc.Provision(ctx, "auth0|dave", "Dave")
	require.NoError(t, err)
	dup, err := svc.Provision(ctx, "auth0|dave-old", "Dave (old)")
	require.NoError(t, err)

	rec, err := svc.Merge(ctx, survivor.PrimaryID, dup.PrimaryID, "ops@example", "duplicate signup")
	require.NoError(t, err)
	require.Len(t, repo.log, 1)
	assert.NotEmpty(t, rec.ID)

	// the retired identifiers now resolve to the survivor
	got, err := svc.Resolve(ctx, dup.PrimaryID)
	require.NoError(t, err)
	assert.Equal(t, survivor.PrimaryID, got)

	got, err = svc.Resolve(ctx, "auth0|dave-old")
	require.NoError(t, err)
	assert.Equal(t, survivor.PrimaryID, got)

	// and expansion covers the whole equivalence class
	ids, err := svc.Expand(ctx, survivor.PrimaryID)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{survivor.PrimaryID, "auth0|dave", dup.PrimaryID, "auth0|dave-old"}, ids)
}

func TestMergeChainKeepsClassFlat(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Provision(ctx, "auth0|a", "A")
	require.NoError(t, err)
	b, err := svc.Provision(ctx, "auth0|b", "B")
	require.NoError(t, err)
	c, err := svc.Provision(ctx, "auth0|c", "C")
	require.NoError(t, err)

	// A merged into B, then B merged into C: A must follow B to the
	// final survivor, never resolve to the retired B
	_, err = svc.Merge(ctx, b.PrimaryID, a.PrimaryID, "ops", "")
	require.NoError(t, err)
	_, err = svc.Merge(ctx, c.PrimaryID, b.PrimaryID, "ops", "")
	require.NoError(t, err)

	for _, ref := range []string{a.PrimaryID, "auth0|a", b.PrimaryID, "auth0|b"} {
		got, err := svc.Resolve(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, c.PrimaryID, got, "ref %s", ref)
	}

	ids, err := svc.Expand(ctx, c.PrimaryID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		a.PrimaryID, "auth0|a", b.PrimaryID, "auth0|b", c.PrimaryID, "auth0|c",
	}, ids)
}

func TestMergeConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Provision(ctx, "auth0|erin", "Erin")
	require.NoError(t, err)

	_, err = svc.Merge(ctx, u.PrimaryID, u.PrimaryID, "ops", "")
	assert.ErrorIs(t, err, ErrMergeConflict)

	_, err = svc.Merge(ctx, "ghost", u.PrimaryID, "ops", "")
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	_, err = svc.Merge(ctx, u.PrimaryID, "ghost", "ops", "")
	assert.ErrorIs(t, err, ErrMergeConflict)
}
