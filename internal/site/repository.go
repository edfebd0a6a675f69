// internal/site/repository.go
//
// MySQL-backed site repository.
//
// Context
// -------
// The repository owns three rules that callers must not be able to skip:
//
//   - Every read adds `is_deleted = FALSE`.  Soft-deleted rows are
//     invisible to Search, FindByID, and Update alike.
//   - Create allocates the custom id inside the insert transaction, behind
//     a locking COUNT, and retries when uk_site_custom_id still collides.
//   - Names are unique across all rows, deleted ones included.
//
// Workflow
// --------
//  1. Create  → tx { name guard, locked count, INSERT site, relation rows }.
//  2. Search  → page SELECT, COUNT, then one batched load of relation ids.
//  3. Update  → tx { SELECT … FOR UPDATE, Patch.Apply, UPDATE, relations }.
//
// Notes
// -----
//   - Errors are returned verbatim or wrapped with the failing step; the
//     repository never logs.
//   - IN lists go through sqlx.In; multi-row VALUES are built by hand.
//   - Oxford commas, two spaces after periods.
package site

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/sites/internal/database"
	"github.com/yanizio/sites/internal/metrics"
)

const siteColumns = `s.id, s.custom_id, s.name, s.created_by, s.is_deleted,
               s.attributes, s.created_at, s.updated_at`

const (
	keyCustomID = "uk_site_custom_id"
	keyName     = "uk_site_name"
)

// Repository implements Store over a *sqlx.DB.
type Repository struct {
	db         *sqlx.DB
	maxRetries int
	now        func() time.Time
}

// NewRepository wires a pool.  maxRetries bounds custom-id collisions per
// Create; values below 1 mean a single attempt.
func NewRepository(db *sqlx.DB, maxRetries int) *Repository {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Repository{
		db:         db,
		maxRetries: maxRetries,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

//
// Counting
//

// CountAll counts every row, soft-deleted included.  Outside a transaction
// the value is advisory; Create uses a locked count instead.
func (r *Repository) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM site`)
	return n, err
}

// lockedCounter counts under FOR UPDATE so concurrent Creates serialise on
// the site index until the surrounding transaction ends.
type lockedCounter struct{ tx *sqlx.Tx }

func (c lockedCounter) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := c.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM site FOR UPDATE`)
	return n, err
}

//
// Create
//

// Create assigns ID, CustomID, and timestamps, then persists s with its
// relations.  ErrNameTaken is returned when the name is in use.
func (r *Repository) Create(ctx context.Context, s *Site, gen CustomIDGenerator) error {
	s.Landlords = dedupe(s.Landlords)

	for attempt := 1; ; attempt++ {
		err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
			return r.insert(ctx, tx, s, gen)
		})
		if err == nil {
			return nil
		}

		key, dup := database.DuplicateKey(err)
		switch {
		case dup && key == keyName:
			return ErrNameTaken
		case dup && key == keyCustomID:
			if attempt >= r.maxRetries {
				return fmt.Errorf("%w after %d attempt(s)", ErrCustomIDExhausted, attempt)
			}
			metrics.CustomIDRetriesTotal.Inc()
			continue
		default:
			return err
		}
	}
}

func (r *Repository) insert(ctx context.Context, tx *sqlx.Tx, s *Site, gen CustomIDGenerator) error {
	var exists int
	err := tx.GetContext(ctx, &exists, `SELECT 1 FROM site WHERE name = ? LIMIT 1`, s.Name)
	switch {
	case err == nil:
		return ErrNameTaken
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("name guard: %w", err)
	}

	customID, err := gen.Generate(ctx, lockedCounter{tx})
	if err != nil {
		return err
	}

	now := r.now()
	s.ID = uuid.NewString()
	s.CustomID = customID
	s.CreatedAt, s.UpdatedAt = now, now

	const q = `
	    INSERT INTO site (id, custom_id, name, created_by, is_deleted,
	                      attributes, created_at, updated_at)
	    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q,
		s.ID, s.CustomID, s.Name, s.CreatedBy, s.IsDeleted,
		s.Attributes, s.CreatedAt, s.UpdatedAt,
	); err != nil {
		return err
	}

	if err := insertLandlords(ctx, tx, s.ID, s.Landlords); err != nil {
		return err
	}
	return insertInvestors(ctx, tx, s.ID, s.Investors)
}

func insertLandlords(ctx context.Context, tx *sqlx.Tx, siteID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)*2)
	for _, id := range ids {
		args = append(args, siteID, id)
	}
	q := `INSERT INTO site_landlord (site_id, landlord_id) VALUES ` + tuples(len(ids), 2)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert landlords: %w", err)
	}
	return nil
}

func insertInvestors(ctx context.Context, tx *sqlx.Tx, siteID string, inv []Investment) error {
	if len(inv) == 0 {
		return nil
	}
	args := make([]any, 0, len(inv)*4)
	for i, e := range inv {
		args = append(args, siteID, i, e.InvestorID, e.Share)
	}
	q := `INSERT INTO site_investor (site_id, position, investor_id, share) VALUES ` + tuples(len(inv), 4)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert investors: %w", err)
	}
	return nil
}

// tuples renders n groups of width placeholders: (?, ?), (?, ?).
func tuples(n, width int) string {
	one := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"
	return strings.TrimSuffix(strings.Repeat(one+", ", n), ", ")
}

//
// Reads
//

// FindByID returns the live site with id, or ErrNotFound.
func (r *Repository) FindByID(ctx context.Context, id string) (*Site, error) {
	var s Site
	err := r.db.GetContext(ctx, &s, `
	    SELECT `+siteColumns+`
	    FROM   site s
	    WHERE  s.id = ? AND s.is_deleted = FALSE
	    LIMIT  1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sites := []Site{s}
	if err := loadRelations(ctx, r.db, sites); err != nil {
		return nil, err
	}
	return &sites[0], nil
}

// Search returns one page of live sites and the total match count.
func (r *Repository) Search(ctx context.Context, q Query) ([]Site, int64, error) {
	where, args := q.where()

	var sites []Site
	pageArgs := append(append([]any{}, args...), q.Limit, q.Offset())
	if err := r.db.SelectContext(ctx, &sites, `
	    SELECT `+siteColumns+`
	    FROM   site s
	    WHERE  `+where+`
	    ORDER  BY s.created_at, s.id
	    LIMIT  ? OFFSET ?`, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("search page: %w", err)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM site s WHERE `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("search count: %w", err)
	}

	if err := loadRelations(ctx, r.db, sites); err != nil {
		return nil, 0, err
	}
	return sites, total, nil
}

// loadRelations fills Landlords and Investors for every site in one query
// per relation.
func loadRelations(ctx context.Context, db sqlx.ExtContext, sites []Site) error {
	if len(sites) == 0 {
		return nil
	}
	ids := make([]string, len(sites))
	index := make(map[string]int, len(sites))
	for i := range sites {
		ids[i] = sites[i].ID
		index[sites[i].ID] = i
		sites[i].Landlords = []string{}
		sites[i].Investors = []Investment{}
	}

	var links []struct {
		SiteID     string `db:"site_id"`
		LandlordID string `db:"landlord_id"`
	}
	q, args, err := sqlx.In(`
	    SELECT site_id, landlord_id
	    FROM   site_landlord
	    WHERE  site_id IN (?)
	    ORDER  BY site_id, landlord_id`, ids)
	if err != nil {
		return err
	}
	if err := sqlx.SelectContext(ctx, db, &links, db.Rebind(q), args...); err != nil {
		return fmt.Errorf("load landlords: %w", err)
	}
	for _, l := range links {
		i := index[l.SiteID]
		sites[i].Landlords = append(sites[i].Landlords, l.LandlordID)
	}

	var rows []struct {
		SiteID string `db:"site_id"`
		Investment
	}
	q, args, err = sqlx.In(`
	    SELECT site_id, investor_id, share
	    FROM   site_investor
	    WHERE  site_id IN (?)
	    ORDER  BY site_id, position`, ids)
	if err != nil {
		return err
	}
	if err := sqlx.SelectContext(ctx, db, &rows, db.Rebind(q), args...); err != nil {
		return fmt.Errorf("load investors: %w", err)
	}
	for _, row := range rows {
		i := index[row.SiteID]
		sites[i].Investors = append(sites[i].Investors, row.Investment)
	}
	return nil
}

//
// Update
//

// Update applies p to the live site with id under a row lock.
func (r *Repository) Update(ctx context.Context, id string, p Patch) (*Site, error) {
	var out Site
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var s Site
		err := tx.GetContext(ctx, &s, `
		    SELECT `+siteColumns+`
		    FROM   site s
		    WHERE  s.id = ? AND s.is_deleted = FALSE
		    FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		sites := []Site{s}
		if err := loadRelations(ctx, tx, sites); err != nil {
			return err
		}
		s = sites[0]

		p.Apply(&s)
		s.UpdatedAt = r.now()

		if _, err := tx.ExecContext(ctx, `
		    UPDATE site
		    SET    name = ?, created_by = ?, is_deleted = ?, attributes = ?, updated_at = ?
		    WHERE  id = ?`,
			s.Name, s.CreatedBy, s.IsDeleted, s.Attributes, s.UpdatedAt, s.ID,
		); err != nil {
			return err
		}

		if p.LandlordsSet() {
			if _, err := tx.ExecContext(ctx, `DELETE FROM site_landlord WHERE site_id = ?`, s.ID); err != nil {
				return fmt.Errorf("clear landlords: %w", err)
			}
			if err := insertLandlords(ctx, tx, s.ID, s.Landlords); err != nil {
				return err
			}
		}
		if p.InvestorsSet() {
			if _, err := tx.ExecContext(ctx, `DELETE FROM site_investor WHERE site_id = ?`, s.ID); err != nil {
				return fmt.Errorf("clear investors: %w", err)
			}
			if err := insertInvestors(ctx, tx, s.ID, s.Investors); err != nil {
				return err
			}
		}

		out = s
		return nil
	})
	if key, dup := database.DuplicateKey(err); dup && key == keyName {
		return nil, ErrNameTaken
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
