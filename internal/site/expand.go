// internal/site/expand.go
//
// Reference expansion for the read model.
//
// Each referenced table is read once per call with an IN list built from
// every site in the batch, so a page of N sites costs at most four extra
// queries regardless of N.  Missing references degrade quietly: a landlord
// that no longer exists is dropped, a missing investor renders as
// `investorId: null`, and a missing creator as `createdBy: null`.

package site

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ExpandOptions selects optional second-level expansion.
type ExpandOptions struct {
	// Managers replaces the creator's manager ids with manager records.
	Managers bool
}

// Expand resolves references for sites, preserving order.
func (r *Repository) Expand(ctx context.Context, sites []Site, opt ExpandOptions) ([]View, error) {
	views := make([]View, len(sites))
	if len(sites) == 0 {
		return views, nil
	}

	var landlordIDs, investorIDs, userIDs []string
	for _, s := range sites {
		landlordIDs = append(landlordIDs, s.Landlords...)
		for _, inv := range s.Investors {
			investorIDs = append(investorIDs, inv.InvestorID)
		}
		if s.CreatedBy != nil {
			userIDs = append(userIDs, *s.CreatedBy)
		}
	}

	var landlords []Landlord
	if err := selectIn(ctx, r.db, &landlords,
		`SELECT id, name, email, phone FROM landlord WHERE id IN (?)`, landlordIDs); err != nil {
		return nil, fmt.Errorf("expand landlords: %w", err)
	}
	var investors []Investor
	if err := selectIn(ctx, r.db, &investors,
		`SELECT id, name, email FROM investor WHERE id IN (?)`, investorIDs); err != nil {
		return nil, fmt.Errorf("expand investors: %w", err)
	}
	var users []User
	if err := selectIn(ctx, r.db, &users,
		"SELECT id, name, email FROM `user` WHERE id IN (?)", userIDs); err != nil {
		return nil, fmt.Errorf("expand users: %w", err)
	}
	managers, err := r.managersOf(ctx, userIDs, opt.Managers)
	if err != nil {
		return nil, fmt.Errorf("expand managers: %w", err)
	}

	landlordByID := make(map[string]Landlord, len(landlords))
	for _, l := range landlords {
		landlordByID[l.ID] = l
	}
	investorByID := make(map[string]Investor, len(investors))
	for _, i := range investors {
		investorByID[i.ID] = i
	}
	userByID := make(map[string]User, len(users))
	for _, u := range users {
		u.Managers = managers[u.ID]
		if u.Managers == nil {
			u.Managers = []Manager{}
		}
		userByID[u.ID] = u
	}

	for i, s := range sites {
		v := View{
			ID:         s.ID,
			CustomID:   s.CustomID,
			Name:       s.Name,
			Landlords:  make([]Landlord, 0, len(s.Landlords)),
			Investors:  make([]ExpandedInvestor, 0, len(s.Investors)),
			IsDeleted:  s.IsDeleted,
			Attributes: s.Attributes,
			CreatedAt:  s.CreatedAt,
			UpdatedAt:  s.UpdatedAt,
		}
		for _, id := range s.Landlords {
			if l, ok := landlordByID[id]; ok {
				v.Landlords = append(v.Landlords, l)
			}
		}
		for _, inv := range s.Investors {
			e := ExpandedInvestor{Share: inv.Share}
			if rec, ok := investorByID[inv.InvestorID]; ok {
				e.InvestorID = &rec
			}
			v.Investors = append(v.Investors, e)
		}
		if s.CreatedBy != nil {
			if u, ok := userByID[*s.CreatedBy]; ok {
				v.CreatedBy = &u
			}
		}
		views[i] = v
	}
	return views, nil
}

// managersOf returns each user's managers in stored order.  Without full
// expansion only the ids are read.
func (r *Repository) managersOf(ctx context.Context, userIDs []string, full bool) (map[string][]Manager, error) {
	var rows []struct {
		UserID string `db:"user_id"`
		Manager
	}
	q := `SELECT um.user_id, um.manager_id AS id
	      FROM   user_manager um
	      WHERE  um.user_id IN (?)
	      ORDER  BY um.user_id, um.position`
	if full {
		q = `SELECT um.user_id, m.id, m.name, m.email
		     FROM   user_manager um
		     JOIN   manager m ON m.id = um.manager_id
		     WHERE  um.user_id IN (?)
		     ORDER  BY um.user_id, um.position`
	}
	if err := selectIn(ctx, r.db, &rows, q, userIDs); err != nil {
		return nil, err
	}
	out := make(map[string][]Manager, len(userIDs))
	for _, row := range rows {
		out[row.UserID] = append(out[row.UserID], row.Manager)
	}
	return out, nil
}

// selectIn expands the single `IN (?)` in q over ids and scans into dest.
// Empty or duplicate-only input skips the round trip.
func selectIn(ctx context.Context, db sqlx.ExtContext, dest any, q string, ids []string) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(q, ids)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, db, dest, db.Rebind(query), args...)
}
