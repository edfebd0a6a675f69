// components/sites/sites.go
//
// Sites component: JSON endpoints for the site registry.
//
// Context
// -------
// Routes, mounted at "/sites" by cmd/web:
//
//	POST       /sites        register
//	GET        /sites        search (filter in body, paging in query)
//	GET        /sites/{id}   fetch one
//	PATCH/PUT  /sites/{id}   update
//
// Every response is a JSON object with a boolean `status`.  Status codes
// and messages are part of the public contract and are chosen here, never
// in internal/site.
//
// Notes
// -----
//   - Internal errors are logged with the route and id and answered with an
//     opaque message.
//   - Bodies are capped at maxBody bytes.
//   - Oxford commas, two spaces after periods.
//
//------------------------------------------------------------------------------

package sites

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/sites/internal/component"
	"github.com/yanizio/sites/internal/site"
)

const maxBody = 1 << 20

// Compile-time assertion: *Component satisfies component.Component.
var _ component.Component = (*Component)(nil)

// Service is the subset of *site.Service the handlers call.
type Service interface {
	Register(ctx context.Context, in site.Input) (*site.Site, error)
	Search(ctx context.Context, q site.Query) (*site.Page, error)
	Get(ctx context.Context, id string) (*site.View, error)
	Update(ctx context.Context, id string, p site.Patch) (*site.View, error)
}

// Component serves the site endpoints.
type Component struct {
	svc Service
	log *zap.Logger
}

// New returns a Component over svc.  Used by tests and by callers that
// build the service themselves.
func New(svc Service, log *zap.Logger) *Component {
	if log == nil {
		log = zap.NewNop()
	}
	return &Component{svc: svc, log: log.Named("sites")}
}

/*────────────────── component.Component methods ───────────────────────────*/

// Name returns the canonical component key.
func (c *Component) Name() string { return "sites" }

// Migrations returns the site schema.
func (c *Component) Migrations() []string { return site.Migrations() }

// Init builds the repository and service from the shared pool and config.
func (c *Component) Init(d component.Deps) error {
	cfg := d.Config.Sites
	repo := site.NewRepository(d.DB, cfg.MaxIDRetries)
	c.log = d.Log.Named("sites")
	c.svc = site.NewService(repo,
		site.WithCustomIDs(site.CustomIDGenerator{
			Prefix: cfg.IDPrefix,
			Offset: cfg.IDOffset,
			Width:  cfg.IDWidth,
		}),
		site.WithDefaultLimit(cfg.DefaultLimit),
		site.WithGetCache(cfg.CacheSize, cfg.CacheTTL),
		site.WithLogger(d.Log),
	)
	return nil
}

// Routes builds the router mounted at "/sites".
func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", c.handleRegister)
	r.Get("/", c.handleSearch)
	r.Get("/{id}", c.handleGet)
	r.Patch("/{id}", c.handleUpdate)
	r.Put("/{id}", c.handleUpdate)
	return r
}

// Register component at program start.
func init() { component.Register(&Component{log: zap.NewNop()}) }

/*──────────────────────────── Handlers ─────────────────────────────────────*/

func (c *Component) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in site.Input
	if err := decode(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, body{"status": false, "message": "Invalid request body"})
		return
	}

	created, err := c.svc.Register(r.Context(), in)
	if err != nil {
		c.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, body{
		"status":  true,
		"message": "Site created successfully!",
		"site":    created,
	})
}

func (c *Component) handleSearch(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, body{"status": false, "message": "Invalid request body"})
		return
	}
	filter, err := site.ParseFilter(raw)
	if err != nil {
		c.fail(w, r, err, "")
		return
	}

	qs := r.URL.Query()
	page, err := c.svc.Search(r.Context(), site.Query{
		Filter:     filter,
		Page:       site.ParsePositive(qs.Get("page"), 1),
		Limit:      site.ParsePositive(qs.Get("limit"), 0),
		SearchTerm: qs.Get("searchTerm"),
	})
	if err != nil {
		c.fail(w, r, err, "")
		return
	}

	if len(page.Sites) == 0 {
		writeJSON(w, http.StatusNotFound, body{
			"status":  false,
			"message": "Nothing found",
			"sites":   []site.View{},
		})
		return
	}
	writeJSON(w, http.StatusOK, body{
		"status":     true,
		"sites":      page.Sites,
		"page":       page.Page,
		"limit":      page.Limit,
		"totalPages": page.TotalPages,
		"totalItems": page.TotalItems,
	})
}

func (c *Component) handleGet(w http.ResponseWriter, r *http.Request) {
	v, err := c.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, site.ErrInvalidID) {
		writeJSON(w, http.StatusNotFound, body{"status": false, "message": "Site Object Id Incorrect"})
		return
	}
	if err != nil {
		c.fail(w, r, err, "Site not found")
		return
	}
	writeJSON(w, http.StatusOK, body{"status": true, "site": v})
}

func (c *Component) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := site.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, body{"status": false, "message": "Site Id incorrect"})
		return
	}

	var p site.Patch
	if err := decode(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, body{"status": false, "message": "Invalid request body"})
		return
	}

	v, err := c.svc.Update(r.Context(), id, p)
	if err != nil {
		c.fail(w, r, err, "Site doesn't exist")
		return
	}
	writeJSON(w, http.StatusCreated, body{
		"status":  true,
		"message": "Site updated successfully",
		"site":    v,
	})
}

/*──────────────────────────── Helpers ──────────────────────────────────────*/

type body map[string]any

// fail maps service errors to responses.  notFound overrides the 404
// message for routes that have their own wording.
func (c *Component) fail(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var ve *site.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, body{
			"status":  false,
			"message": "Validation failed",
			"errors":  ve.Fields,
		})
	case errors.Is(err, site.ErrInvalidFilter):
		writeJSON(w, http.StatusBadRequest, body{
			"status":  false,
			"message": strings.TrimPrefix(err.Error(), "site: "),
		})
	case errors.Is(err, site.ErrNameTaken):
		writeJSON(w, http.StatusConflict, body{"status": false, "message": "Site name already exists"})
	case errors.Is(err, site.ErrNotFound):
		if notFound == "" {
			notFound = "Site not found"
		}
		writeJSON(w, http.StatusNotFound, body{"status": false, "message": notFound})
	default:
		c.log.Error("request failed",
			zap.String("route", r.Method+" "+r.URL.Path),
			zap.String("id", chi.URLParam(r, "id")),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, body{"status": false, "message": "internal server error"})
	}
}

// decode reads one JSON object from the capped body.  An empty body
// decodes as {}.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}
	return json.Unmarshal(raw, dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
