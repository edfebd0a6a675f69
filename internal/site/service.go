// internal/site/service.go
//
// SiteService: the four site operations over a Store.
//
// Context
// -------
// The service validates input, owns the custom-id format, and decides how
// deep to expand references.  It never maps errors to HTTP status codes;
// callers switch on the sentinels in errors.go.
//
// Workflow
// --------
//   - Register  → validate → Store.Create → counter.
//   - Search    → normalise page/limit → Store.Search → Expand(managers).
//   - Get       → ParseID → singleflight → Store.FindByID → Expand.
//   - Update    → ParseID → validate patch → Store.Update → Expand.
//
// Notes
// -----
//   - Get results may be served from a short-lived LRU (WithGetCache).
//     A load that overlaps an Update is returned but not cached.
//   - Get lookups for the same id share one storage round trip.  The shared
//     call runs detached from the first caller's cancellation so a client
//     that hangs up does not fail the others.
//   - Oxford commas, two spaces after periods.
package site

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/sites/internal/cache"
	"github.com/yanizio/sites/internal/metrics"
)

// Store is the persistence contract the service needs.  *Repository
// implements it.
type Store interface {
	Counter
	Create(ctx context.Context, s *Site, gen CustomIDGenerator) error
	FindByID(ctx context.Context, id string) (*Site, error)
	Search(ctx context.Context, q Query) ([]Site, int64, error)
	Update(ctx context.Context, id string, p Patch) (*Site, error)
	Expand(ctx context.Context, sites []Site, opt ExpandOptions) ([]View, error)
}

// Service implements the site operations.
type Service struct {
	store        Store
	ids          CustomIDGenerator
	defaultLimit int
	log          *zap.Logger

	sfg singleflight.Group
	hot *cache.LRU[string, View] // nil when disabled

	// epoch is bumped by every Update.  A Get load that started in an
	// older epoch does not populate hot.
	epochMu sync.Mutex
	epoch   uint64
}

// Option configures a Service.
type Option func(*Service)

// WithCustomIDs overrides the custom-id prefix, offset, and width.
func WithCustomIDs(g CustomIDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithDefaultLimit sets the page size used when a search sends none.
func WithDefaultLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// WithLogger sets the logger.  The default is zap.L() at construction.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithGetCache keeps up to size Get results for ttl.  Update evicts the
// entry it changes; writes through other processes are seen after ttl.
// size or ttl <= 0 disables the cache.
func WithGetCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size > 0 && ttl > 0 {
			s.hot = cache.New[string, View](size, ttl)
		}
	}
}

// NewService returns a Service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		ids:          DefaultCustomIDs,
		defaultLimit: DefaultLimit,
		log:          zap.L(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.Named("site")
	return s
}

// ParseID returns the canonical form of a site id, or ErrInvalidID.
func ParseID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrInvalidID
	}
	return id.String(), nil
}

// GenerateCustomID previews the id the next register would receive.  The
// value is advisory; Register allocates under a lock.
func (s *Service) GenerateCustomID(ctx context.Context) (string, error) {
	return s.ids.Generate(ctx, s.store)
}

// Register validates in and stores a new site.
func (s *Service) Register(ctx context.Context, in Input) (*Site, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	site := &Site{
		Name:       in.Name,
		Landlords:  dedupe(in.Landlords),
		Investors:  in.Investors,
		CreatedBy:  in.CreatedBy,
		IsDeleted:  in.IsDeleted,
		Attributes: in.Attributes,
	}
	if site.Landlords == nil {
		site.Landlords = []string{}
	}
	if site.Investors == nil {
		site.Investors = []Investment{}
	}

	if err := s.store.Create(ctx, site, s.ids); err != nil {
		return nil, err
	}
	metrics.SitesRegisteredTotal.Inc()
	s.log.Info("site registered",
		zap.String("id", site.ID),
		zap.String("custom_id", site.CustomID),
	)
	return site, nil
}

// Search returns one page of live sites with references expanded,
// including the creator's managers.
func (s *Service) Search(ctx context.Context, q Query) (*Page, error) {
	q.normalize(s.defaultLimit)

	sites, total, err := s.store.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	views, err := s.store.Expand(ctx, sites, ExpandOptions{Managers: true})
	if err != nil {
		return nil, err
	}
	return &Page{
		Sites:      views,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: TotalPages(total, q.Limit),
		TotalItems: total,
	}, nil
}

// Get returns the live site with id.  Managers are left as ids.
func (s *Service) Get(ctx context.Context, rawID string) (*View, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}

	if s.hot != nil {
		if v, ok := s.hot.Get(id); ok {
			return &v, nil
		}
	}

	detached := context.WithoutCancel(ctx)
	ch := s.sfg.DoChan(id, func() (any, error) {
		epoch := s.currentEpoch()
		site, err := s.store.FindByID(detached, id)
		if err != nil {
			return nil, err
		}
		views, err := s.store.Expand(detached, []Site{*site}, ExpandOptions{})
		if err != nil {
			return nil, err
		}
		s.remember(id, views[0], epoch)
		return views[0], nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		v := res.Val.(View)
		return &v, nil
	}
}

// Update applies p to the live site with id.  customId and id are never
// changed.
func (s *Service) Update(ctx context.Context, rawID string, p Patch) (*View, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return nil, err
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	site, err := s.store.Update(ctx, id, p)
	s.invalidate(id)
	if err != nil {
		return nil, err
	}
	s.log.Info("site updated", zap.String("id", site.ID))

	views, err := s.store.Expand(ctx, []Site{*site}, ExpandOptions{})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

//
// Get cache
//

func (s *Service) currentEpoch() uint64 {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	return s.epoch
}

// remember caches v unless an Update finished after the load began.
func (s *Service) remember(id string, v View, loadedAt uint64) {
	if s.hot == nil {
		return
	}
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	if s.epoch == loadedAt {
		s.hot.Add(id, v)
	}
}

// invalidate drops id from the cache and detaches later Gets from any
// load already in flight.
func (s *Service) invalidate(id string) {
	s.epochMu.Lock()
	s.epoch++
	if s.hot != nil {
		s.hot.Remove(id)
	}
	s.epochMu.Unlock()
	s.sfg.Forget(id)
}
