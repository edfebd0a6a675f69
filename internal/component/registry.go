// internal/component/registry.go
//
// Component registry (cycle-free).
//
// Each concrete component lives under components/<name> and calls
// component.Register() in an init() function.  cmd/web blank-imports the
// components it serves, then for every registered component runs its
// Migrations() (when enabled), calls Init(deps), and mounts Routes() at
// "/<Name()>".

package component

import (
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/sites/internal/config"
)

// Deps are the process-wide resources handed to components during Init.
type Deps struct {
	DB     *sqlx.DB
	Config *config.Config
	Log    *zap.Logger
}

// Initializer builds a component's services from Deps.  It runs once,
// before Routes().
type Initializer interface {
	Init(Deps) error
}

// Component contract.
//
// Migrations() may return nil if the component has no schema.
// Routes() returns a router mounted at "/<Name()>", with paths relative
// to that prefix, e.g:
//
//	r := chi.NewRouter()
//	r.Get("/", list)
//	r.Get("/{id}", show)
//	return r
type Component interface {
	Name() string
	Routes() chi.Router
	Migrations() []string
	Initializer
}

var (
	mu       sync.RWMutex
	registry = map[string]Component{}
)

// Register is invoked from component init() functions.  A second
// registration under the same name replaces the first.
func Register(c Component) {
	mu.Lock()
	registry[c.Name()] = c
	mu.Unlock()
}

// All returns every registered component ordered by name, so migrations
// and mounts run in a stable order.
func All() []Component {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Component, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
