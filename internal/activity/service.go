package activity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/activity/entity"
	activityrepo "github.com/ovaphlow/pitchfork/service-reputation-go/internal/activity/repo"
	"github.com/ovaphlow/pitchfork/service-reputation-go/pkg/utilities"
)

// Store is the data access surface the activity service needs.
type Store interface {
	InsertEventCheckin(ctx context.Context, c *entity.EventCheckin) error
	InsertVenueVisit(ctx context.Context, v *entity.VenueVisit) error
	InsertQuizResult(ctx context.Context, qr *entity.QuizResult) error
	InsertAIMessage(ctx context.Context, m *entity.AIMessage) error
	InsertPurchase(ctx context.Context, p *entity.Purchase) error
	CountEventCheckins(ctx context.Context, ids []string) (int64, error)
	CountVenueVisits(ctx context.Context, ids []string) (int64, error)
	CountQuizResults(ctx context.Context, ids []string) (int64, error)
	CountPerfectQuizResults(ctx context.Context, ids []string) (int64, error)
	CountAIMessages(ctx context.Context, ids []string) (int64, error)
	CountPurchases(ctx context.Context, ids []string) (int64, error)
}

// Expander resolves a canonical user to every identifier activity
// producers may have written against. Implemented by the identity
// service.
type Expander interface {
	Expand(ctx context.Context, primaryID string) ([]string, error)
}

// Source is one activity source adapter: a name and a count over an
// identifier set. Adding a source to the system means adding an adapter
// here, not touching the aggregation logic.
type Source interface {
	Name() string
	Count(ctx context.Context, ids []string) (int64, error)
}

type funcSource struct {
	name string
	fn   func(ctx context.Context, ids []string) (int64, error)
}

func (s funcSource) Name() string { return s.name }
func (s funcSource) Count(ctx context.Context, ids []string) (int64, error) {
	return s.fn(ctx, ids)
}

// sentinel errors for common failure modes
var ErrUnknownSource = errors.New("unknown activity source")

// Built-in source names.
const (
	SourceCheckins       = "checkins"
	SourceQuizzes        = "quizzes"
	SourceQuizzesPerfect = "quizzes_perfect"
	SourceAIMessages     = "ai_messages"
	SourcePurchases      = "purchases"
)

// Service aggregates per-user activity counts across heterogeneous
// sources and records raw activity rows on behalf of producers. Every
// count expands the user to the full identifier set first. Records the
// same physical event left under both identifiers count twice: the
// aggregator cannot tell a double-write from two distinct events, so
// deduplication stays the producer's problem.
type Service struct {
	store    Store
	expander Expander
	sources  map[string]Source
}

func NewService(db *sqlx.DB, store Store, expander Expander) *Service {
	if store == nil {
		store = activityrepo.NewActivityRepo(db)
	}
	s := &Service{store: store, expander: expander, sources: map[string]Source{}}
	s.register(funcSource{SourceCheckins, s.countCheckins})
	s.register(funcSource{SourceQuizzes, store.CountQuizResults})
	s.register(funcSource{SourceQuizzesPerfect, store.CountPerfectQuizResults})
	s.register(funcSource{SourceAIMessages, store.CountAIMessages})
	s.register(funcSource{SourcePurchases, store.CountPurchases})
	return s
}

func (s *Service) register(src Source) { s.sources[src.Name()] = src }

// SourceNames returns the registered source names, sorted.
func (s *Service) SourceNames() []string {
	names := make([]string, 0, len(s.sources))
	for n := range s.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// countCheckins is the one composite source: check-ins live in two
// differently-shaped tables written by two producers under different
// identifier schemes, and both count.
func (s *Service) countCheckins(ctx context.Context, ids []string) (int64, error) {
	events, err := s.store.CountEventCheckins(ctx, ids)
	if err != nil {
		return 0, err
	}
	venues, err := s.store.CountVenueVisits(ctx, ids)
	if err != nil {
		return 0, err
	}
	return events + venues, nil
}

// Count returns the number of records in one source attributable to the
// canonical user under any of their identifiers.
func (s *Service) Count(ctx context.Context, source, primaryID string) (int64, error) {
	src, ok := s.sources[source]
	if !ok {
		return 0, ErrUnknownSource
	}
	ids, err := s.expander.Expand(ctx, primaryID)
	if err != nil {
		return 0, err
	}
	return src.Count(ctx, ids)
}

// CountMany counts several sources for the user as one batch: a single
// identifier expansion, sources fanned out concurrently. A source that
// fails contributes an error marker instead of failing the whole batch.
func (s *Service) CountMany(ctx context.Context, sources []string, primaryID string) (map[string]entity.SourceCount, error) {
	ids, err := s.expander.Expand(ctx, primaryID)
	if err != nil {
		return nil, err
	}
	results := make(map[string]entity.SourceCount, len(sources))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range sources {
		mu.Lock()
		if _, dup := results[name]; dup {
			mu.Unlock()
			continue
		}
		results[name] = entity.SourceCount{}
		mu.Unlock()

		src, ok := s.sources[name]
		if !ok {
			mu.Lock()
			results[name] = entity.SourceCount{Err: ErrUnknownSource.Error()}
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			n, err := src.Count(gctx, ids)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// partial results beat an all-or-nothing failure
				results[src.Name()] = entity.SourceCount{Err: "source unavailable"}
				return nil
			}
			results[src.Name()] = entity.SourceCount{Count: n}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// RecordCheckin appends an event check-in exactly as the producer
// reported it; userRef may be either identifier scheme.
func (s *Service) RecordCheckin(ctx context.Context, userRef, eventID string) (*entity.EventCheckin, error) {
	userRef = strings.TrimSpace(userRef)
	if userRef == "" {
		return nil, errors.New("user ref required")
	}
	c := &entity.EventCheckin{
		ID:              utilities.NewSnowflakeID(),
		EventID:         eventID,
		ProducerUserRef: userRef,
		CheckedInAt:     time.Now().UTC(),
	}
	if err := s.store.InsertEventCheckin(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RecordVenueVisit appends a legacy venue check-in. That producer keys
// on the external auth id.
func (s *Service) RecordVenueVisit(ctx context.Context, authRef, venue string) (*entity.VenueVisit, error) {
	authRef = strings.TrimSpace(authRef)
	if authRef == "" {
		return nil, errors.New("auth ref required")
	}
	v := &entity.VenueVisit{Venue: venue, AuthRef: authRef, VisitedAt: time.Now().UTC()}
	if err := s.store.InsertVenueVisit(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// RecordQuizResult appends a completed quiz attempt.
func (s *Service) RecordQuizResult(ctx context.Context, userRef, quizID string, score, maxScore int) (*entity.QuizResult, error) {
	userRef = strings.TrimSpace(userRef)
	if userRef == "" {
		return nil, errors.New("user ref required")
	}
	if score < 0 || maxScore < 0 || score > maxScore {
		return nil, errors.New("invalid score")
	}
	qr := &entity.QuizResult{
		ID:              utilities.NewSnowflakeID(),
		QuizID:          quizID,
		ProducerUserRef: userRef,
		Score:           score,
		MaxScore:        maxScore,
		TakenAt:         time.Now().UTC(),
	}
	if err := s.store.InsertQuizResult(ctx, qr); err != nil {
		return nil, err
	}
	return qr, nil
}

// RecordAIMessage appends one AI chat log row.
func (s *Service) RecordAIMessage(ctx context.Context, userRef string) (*entity.AIMessage, error) {
	userRef = strings.TrimSpace(userRef)
	if userRef == "" {
		return nil, errors.New("user ref required")
	}
	m := &entity.AIMessage{
		ID:              utilities.NewSnowflakeID(),
		ProducerUserRef: userRef,
		SentAt:          time.Now().UTC(),
	}
	if err := s.store.InsertAIMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordPurchase appends one completed store order.
func (s *Service) RecordPurchase(ctx context.Context, userRef string, totalCents int64) (*entity.Purchase, error) {
	userRef = strings.TrimSpace(userRef)
	if userRef == "" {
		return nil, errors.New("user ref required")
	}
	p := &entity.Purchase{
		ID:              utilities.NewSnowflakeID(),
		ProducerUserRef: userRef,
		TotalCents:      totalCents,
		PlacedAt:        time.Now().UTC(),
	}
	if err := s.store.InsertPurchase(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
