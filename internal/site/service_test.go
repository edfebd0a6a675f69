package site

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

// memStore is an in-memory Store.  It honours the same rules as the MySQL
// repository: soft-deleted rows are invisible and names are unique.
type memStore struct {
	mu    sync.Mutex
	rows  []Site
	calls int
}

func (m *memStore) CountAll(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

func (m *memStore) Create(ctx context.Context, s *Site, gen CustomIDGenerator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for _, r := range m.rows {
		if r.Name == s.Name {
			return ErrNameTaken
		}
	}
	s.ID = uuid.NewString()
	s.CustomID = gen.Format(int64(len(m.rows)))
	m.rows = append(m.rows, *s)
	return nil
}

func (m *memStore) live(id string) (int, bool) {
	for i, r := range m.rows {
		if r.ID == id && !r.IsDeleted {
			return i, true
		}
	}
	return 0, false
}

func (m *memStore) FindByID(_ context.Context, id string) (*Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	i, ok := m.live(id)
	if !ok {
		return nil, ErrNotFound
	}
	s := m.rows[i]
	return &s, nil
}

func (m *memStore) Search(_ context.Context, q Query) ([]Site, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var match []Site
	for _, r := range m.rows {
		if r.IsDeleted {
			continue
		}
		term := strings.ToLower(q.SearchTerm)
		if term != "" && !strings.Contains(strings.ToLower(r.Name), term) &&
			!strings.Contains(strings.ToLower(r.CustomID), term) {
			continue
		}
		match = append(match, r)
	}
	total := int64(len(match))
	from := q.Offset()
	if from > total {
		from = total
	}
	to := from + int64(q.Limit)
	if to > total {
		to = total
	}
	return match[from:to], total, nil
}

func (m *memStore) Update(_ context.Context, id string, p Patch) (*Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	i, ok := m.live(id)
	if !ok {
		return nil, ErrNotFound
	}
	if p.Name != nil {
		for j, r := range m.rows {
			if j != i && r.Name == strings.TrimSpace(*p.Name) {
				return nil, ErrNameTaken
			}
		}
	}
	p.Apply(&m.rows[i])
	s := m.rows[i]
	return &s, nil
}

func (m *memStore) Expand(_ context.Context, sites []Site, _ ExpandOptions) ([]View, error) {
	out := make([]View, len(sites))
	for i, s := range sites {
		out[i] = View{ID: s.ID, CustomID: s.CustomID, Name: s.Name, IsDeleted: s.IsDeleted, Attributes: s.Attributes}
	}
	return out, nil
}

// pausingStore reads a row and then, when armed, waits before returning
// it, so a test can commit an update while a Get holds the old row.
type pausingStore struct {
	*memStore
	armed   bool
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) FindByID(ctx context.Context, id string) (*Site, error) {
	site, err := p.memStore.FindByID(ctx, id)
	if p.armed {
		p.armed = false
		close(p.read)
		<-p.release
	}
	return site, err
}

type ServiceSuite struct {
	suite.Suite
	store *memStore
	svc   *Service
	ctx   context.Context
}

func (s *ServiceSuite) SetupTest() {
	s.store = &memStore{}
	s.svc = NewService(s.store, WithLogger(zap.NewNop()), WithDefaultLimit(50))
	s.ctx = context.Background()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) seed(n int) []*Site {
	out := make([]*Site, n)
	for i := range out {
		site, err := s.svc.Register(s.ctx, Input{Name: fmt.Sprintf("site-%02d", i)})
		s.Require().NoError(err)
		out[i] = site
	}
	return out
}

func (s *ServiceSuite) TestRegister() {
	s.Run("first site gets SITE0021", func() {
		site, err := s.svc.Register(s.ctx, Input{Name: "  First  "})
		s.Require().NoError(err)
		s.Equal("SITE0021", site.CustomID)
		s.Equal("First", site.Name)
		s.NotNil(site.Landlords)
	})

	s.Run("rejects a taken name", func() {
		_, err := s.svc.Register(s.ctx, Input{Name: "First"})
		s.ErrorIs(err, ErrNameTaken)
	})

	s.Run("reports validation errors before storage", func() {
		calls := s.store.calls
		_, err := s.svc.Register(s.ctx, Input{Name: " "})
		var ve *ValidationError
		s.Require().ErrorAs(err, &ve)
		s.Equal("name", ve.Fields[0].Field)
		s.Equal(calls, s.store.calls)
	})
}

func (s *ServiceSuite) TestRegister_AfterTwentySites() {
	s.seed(20)
	site, err := s.svc.Register(s.ctx, Input{Name: "Acme"})
	s.Require().NoError(err)
	s.Equal("SITE0041", site.CustomID)

	next, err := s.svc.GenerateCustomID(s.ctx)
	s.Require().NoError(err)
	s.Equal("SITE0042", next)
}

func (s *ServiceSuite) TestSearchPagination() {
	s.seed(25)

	for _, c := range []struct{ page, want int }{{1, 10}, {3, 5}, {4, 0}} {
		p, err := s.svc.Search(s.ctx, Query{Page: c.page, Limit: 10})
		s.Require().NoError(err)
		s.Len(p.Sites, c.want, "page %d", c.page)
		s.Equal(int64(25), p.TotalItems)
		s.Equal(int64(3), p.TotalPages)
	}

	p, err := s.svc.Search(s.ctx, Query{})
	s.Require().NoError(err)
	s.Equal(1, p.Page)
	s.Equal(50, p.Limit)
	s.Len(p.Sites, 25)
}

func (s *ServiceSuite) TestSearchExcludesDeleted() {
	sites := s.seed(3)
	deleted := true
	_, err := s.svc.Update(s.ctx, sites[1].ID, Patch{IsDeleted: &deleted})
	s.Require().NoError(err)

	p, err := s.svc.Search(s.ctx, Query{})
	s.Require().NoError(err)
	s.Equal(int64(2), p.TotalItems)
	for _, v := range p.Sites {
		s.NotEqual(sites[1].ID, v.ID)
	}

	_, err = s.svc.Get(s.ctx, sites[1].ID)
	s.ErrorIs(err, ErrNotFound)
}

func (s *ServiceSuite) TestGet() {
	sites := s.seed(1)

	s.Run("found", func() {
		v, err := s.svc.Get(s.ctx, strings.ToUpper(sites[0].ID))
		s.Require().NoError(err)
		s.Equal(sites[0].CustomID, v.CustomID)
	})

	s.Run("malformed id never reaches storage", func() {
		calls := s.store.calls
		_, err := s.svc.Get(s.ctx, "not-an-id")
		s.ErrorIs(err, ErrInvalidID)
		s.Equal(calls, s.store.calls)
	})

	s.Run("unknown id", func() {
		_, err := s.svc.Get(s.ctx, uuid.NewString())
		s.ErrorIs(err, ErrNotFound)
	})
}

func (s *ServiceSuite) TestUpdateKeepsIdentity() {
	site := s.seed(1)[0]

	var p Patch
	s.Require().NoError(json.Unmarshal([]byte(`{"name":"Renamed","customId":"SITE9999","_id":"x","id":"y"}`), &p))

	v, err := s.svc.Update(s.ctx, site.ID, p)
	s.Require().NoError(err)
	s.Equal("Renamed", v.Name)
	s.Equal(site.CustomID, v.CustomID)
	s.Equal(site.ID, v.ID)
}

func (s *ServiceSuite) TestUpdateErrors() {
	sites := s.seed(2)

	_, err := s.svc.Update(s.ctx, "bad", Patch{})
	s.ErrorIs(err, ErrInvalidID)

	_, err = s.svc.Update(s.ctx, uuid.NewString(), Patch{})
	s.ErrorIs(err, ErrNotFound)

	taken := sites[0].Name
	_, err = s.svc.Update(s.ctx, sites[1].ID, Patch{Name: &taken})
	s.ErrorIs(err, ErrNameTaken)

	blank := "   "
	_, err = s.svc.Update(s.ctx, sites[1].ID, Patch{Name: &blank})
	var ve *ValidationError
	s.ErrorAs(err, &ve)
}

func (s *ServiceSuite) TestGetCache() {
	svc := NewService(s.store, WithLogger(zap.NewNop()), WithGetCache(8, time.Minute))
	site, err := svc.Register(s.ctx, Input{Name: "Cached"})
	s.Require().NoError(err)

	_, err = svc.Get(s.ctx, site.ID)
	s.Require().NoError(err)
	calls := s.store.calls
	_, err = svc.Get(s.ctx, site.ID)
	s.Require().NoError(err)
	s.Equal(calls, s.store.calls, "second Get should be served from cache")

	name := "Renamed"
	_, err = svc.Update(s.ctx, site.ID, Patch{Name: &name})
	s.Require().NoError(err)

	v, err := svc.Get(s.ctx, site.ID)
	s.Require().NoError(err)
	s.Equal("Renamed", v.Name)
}

func (s *ServiceSuite) TestGetCacheIgnoresLoadOverlappingUpdate() {
	store := &pausingStore{memStore: s.store, read: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(store, WithLogger(zap.NewNop()), WithGetCache(8, time.Minute))
	site, err := svc.Register(s.ctx, Input{Name: "Before"})
	s.Require().NoError(err)

	store.armed = true
	done := make(chan *View, 1)
	go func() {
		v, err := svc.Get(s.ctx, site.ID)
		s.NoError(err)
		done <- v
	}()
	<-store.read

	name := "After"
	_, err = svc.Update(s.ctx, site.ID, Patch{Name: &name})
	s.Require().NoError(err)
	close(store.release)

	s.Equal("Before", (<-done).Name, "the overlapping Get returns what it read")

	v, err := svc.Get(s.ctx, site.ID)
	s.Require().NoError(err)
	s.Equal("After", v.Name, "the overlapping read must not be cached")
}

func (s *ServiceSuite) TestRegisterAcceptsUpperCaseReferences() {
	by := strings.ToUpper(uuid.NewString())
	site, err := s.svc.Register(s.ctx, Input{
		Name:      "Refs",
		Landlords: []string{strings.ToUpper(uuid.NewString())},
		CreatedBy: &by,
	})
	s.Require().NoError(err)
	s.Equal(strings.ToLower(by), *site.CreatedBy)
	s.Equal(strings.ToLower(site.Landlords[0]), site.Landlords[0])
}
