// internal/site/query.go
//
// Search criteria and their SQL rendering.
//
// Context
// -------
// Clients send the filter as a JSON object.  A small set of keys map onto
// columns or relation tables; every other key is an equality match on the
// attributes document, with dotted keys walking nested objects.  `id` and
// `_id` both match the primary key.  The timestamps are never stored as
// attributes and cannot be filtered on.  Operator
// objects, arrays, and `$`-prefixed keys are rejected rather than guessed.
//
// Workflow
// --------
//  1. `ParseFilter` turns the body into a `Filter`.
//  2. `Query.normalize` applies page and limit defaults.
//  3. `Query.where` renders the WHERE clause.  It always starts with the
//     soft-delete predicate, so no caller can list deleted sites.
//
// Notes
// -----
//   - searchTerm is a case-insensitive substring match on name and customId
//     with LIKE wildcards escaped.
//   - Oxford commas, two spaces after periods.

package site

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultLimit is the page size used when the client sends none.
const DefaultLimit = 100000

// Filter holds parsed equality criteria.  Nil fields do not constrain.
type Filter struct {
	ID         *string
	Name       *string
	CustomID   *string
	CreatedBy  *string
	Landlord   *string
	Investor   *string
	Attributes map[string]json.RawMessage // dotted key → JSON scalar
}

// Query is one search request.
type Query struct {
	Filter     Filter
	Page       int
	Limit      int
	SearchTerm string
}

// ParseFilter validates a raw JSON filter body.  An empty body is an empty
// filter.
func ParseFilter(body []byte) (Filter, error) {
	var f Filter
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return f, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return f, fmt.Errorf("%w: body must be a JSON object", ErrInvalidFilter)
	}

	for key, raw := range doc {
		switch key {
		case "isDeleted":
			// Always forced to false by the repository.
			continue
		case "id", "_id":
			s, err := stringValue(key, raw)
			if err != nil {
				return f, err
			}
			id, err := ParseID(s)
			if err != nil {
				return f, fmt.Errorf("%w: %q must be a site id", ErrInvalidFilter, key)
			}
			f.ID = &id
		case "createdAt", "updatedAt":
			return f, fmt.Errorf("%w: %q is not filterable", ErrInvalidFilter, key)
		case "name":
			s, err := stringValue(key, raw)
			if err != nil {
				return f, err
			}
			f.Name = &s
		case "customId":
			s, err := stringValue(key, raw)
			if err != nil {
				return f, err
			}
			f.CustomID = &s
		case "createdBy":
			s, err := stringValue(key, raw)
			if err != nil {
				return f, err
			}
			s = canonicalRef(s)
			f.CreatedBy = &s
		case "landlords":
			s, err := stringValue(key, raw)
			if err != nil {
				return f, err
			}
			s = canonicalRef(s)
			f.Landlord = &s
		case "investors.investorId":
			s, err := stringValue(key, raw)
			if err != nil {
				return f, err
			}
			s = canonicalRef(s)
			f.Investor = &s
		default:
			if err := checkAttrKey(key); err != nil {
				return f, err
			}
			v, err := scalarValue(key, raw)
			if err != nil {
				return f, err
			}
			if f.Attributes == nil {
				f.Attributes = make(map[string]json.RawMessage)
			}
			f.Attributes[key] = v
		}
	}
	return f, nil
}

func stringValue(key string, raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %q must be a string", ErrInvalidFilter, key)
	}
	return s, nil
}

// scalarValue accepts strings, numbers, and booleans, compacted.
func scalarValue(key string, raw json.RawMessage) (json.RawMessage, error) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || t[0] == '{' || t[0] == '[' || bytes.Equal(t, []byte("null")) {
		return nil, fmt.Errorf("%w: %q must be a string, number, or boolean", ErrInvalidFilter, key)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, t); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, key, err)
	}
	return buf.Bytes(), nil
}

func checkAttrKey(key string) error {
	if strings.HasPrefix(key, "$") {
		return fmt.Errorf("%w: operator %q is not supported", ErrInvalidFilter, key)
	}
	for _, seg := range strings.Split(key, ".") {
		if seg == "" || strings.ContainsAny(seg, `"\`) {
			return fmt.Errorf("%w: invalid key %q", ErrInvalidFilter, key)
		}
	}
	return nil
}

// jsonPath renders address.city as $."address"."city".
func jsonPath(key string) string {
	var b strings.Builder
	b.WriteByte('$')
	for _, seg := range strings.Split(key, ".") {
		b.WriteString(`."`)
		b.WriteString(seg)
		b.WriteByte('"')
	}
	return b.String()
}

// ParsePositive reads a query-string integer, falling back to def for
// empty, malformed, or non-positive input.
func ParsePositive(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func (q *Query) normalize(defaultLimit int) {
	if defaultLimit < 1 {
		defaultLimit = DefaultLimit
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}
	q.SearchTerm = strings.TrimSpace(q.SearchTerm)
}

// Offset is (Page-1)*Limit, saturating instead of overflowing.
func (q Query) Offset() int64 {
	p, l := int64(q.Page-1), int64(q.Limit)
	if p <= 0 || l <= 0 {
		return 0
	}
	if p > math.MaxInt64/l {
		return math.MaxInt64
	}
	return p * l
}

// TotalPages is ceil(total/limit).
func TotalPages(total int64, limit int) int64 {
	if limit < 1 || total <= 0 {
		return 0
	}
	l := int64(limit)
	return (total + l - 1) / l
}

// where renders the WHERE clause for the `site s` alias.
func (q Query) where() (string, []any) {
	clauses := []string{"s.is_deleted = FALSE"}
	var args []any

	f := q.Filter
	if f.ID != nil {
		clauses = append(clauses, "s.id = ?")
		args = append(args, *f.ID)
	}
	if f.Name != nil {
		clauses = append(clauses, "s.name = ?")
		args = append(args, *f.Name)
	}
	if f.CustomID != nil {
		clauses = append(clauses, "s.custom_id = ?")
		args = append(args, *f.CustomID)
	}
	if f.CreatedBy != nil {
		clauses = append(clauses, "s.created_by = ?")
		args = append(args, *f.CreatedBy)
	}
	if f.Landlord != nil {
		clauses = append(clauses,
			"EXISTS (SELECT 1 FROM site_landlord sl WHERE sl.site_id = s.id AND sl.landlord_id = ?)")
		args = append(args, *f.Landlord)
	}
	if f.Investor != nil {
		clauses = append(clauses,
			"EXISTS (SELECT 1 FROM site_investor si WHERE si.site_id = s.id AND si.investor_id = ?)")
		args = append(args, *f.Investor)
	}

	keys := make([]string, 0, len(f.Attributes))
	for k := range f.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		clauses = append(clauses, "JSON_EXTRACT(s.attributes, ?) = CAST(? AS JSON)")
		args = append(args, jsonPath(k), string(f.Attributes[k]))
	}

	if q.SearchTerm != "" {
		pattern := "%" + escapeLike(strings.ToLower(q.SearchTerm)) + "%"
		clauses = append(clauses, "(LOWER(s.custom_id) LIKE ? OR LOWER(s.name) LIKE ?)")
		args = append(args, pattern, pattern)
	}

	return strings.Join(clauses, " AND "), args
}

// escapeLike makes % and _ literal under MySQL's default `\` escape.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
