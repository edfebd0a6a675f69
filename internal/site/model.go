// internal/site/model.go
//
// Site record and the related records it references.
//
// Context
// -------
// `Site` mirrors one row in the `site` table plus its two relation tables:
//
//   - site_landlord  (site_id, landlord_id)               – set of landlords.
//   - site_investor  (site_id, position, investor_id, share) – ordered list.
//
// Keys a client sends that are not part of the schema are kept in the JSON
// `attributes` column and rendered back at the top level of the record, so
// the resource behaves like a document.  `View` is the read model with
// every reference replaced by the referenced record.
//
// Notes
// -----
//   - `CustomID` is written once by the repository at insert.
//   - User rows are read without the password column.
//   - Oxford commas, two spaces after periods.
package site

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Site is the stored form: references are ids.
type Site struct {
	ID         string       `db:"id"         json:"id"`
	CustomID   string       `db:"custom_id"  json:"customId"`
	Name       string       `db:"name"       json:"name"`
	Landlords  []string     `db:"-"          json:"landlords"`
	Investors  []Investment `db:"-"          json:"investors"`
	CreatedBy  *string      `db:"created_by" json:"createdBy"`
	IsDeleted  bool         `db:"is_deleted" json:"isDeleted"`
	Attributes Attributes   `db:"attributes" json:"-"`
	CreatedAt  time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updatedAt"`
}

// Investment is one entry of Site.Investors.
type Investment struct {
	InvestorID string  `db:"investor_id" json:"investorId" validate:"required,uuid"`
	Share      float64 `db:"share"       json:"share"      validate:"gte=0,lte=100"`
}

// MarshalJSON flattens Attributes next to the schema fields.
func (s Site) MarshalJSON() ([]byte, error) {
	type plain Site
	return withAttributes(plain(s), s.Attributes)
}

//
// Related records
//

type Landlord struct {
	ID    string `db:"id"    json:"id"`
	Name  string `db:"name"  json:"name"`
	Email string `db:"email" json:"email,omitempty"`
	Phone string `db:"phone" json:"phone,omitempty"`
}

type Investor struct {
	ID    string `db:"id"    json:"id"`
	Name  string `db:"name"  json:"name"`
	Email string `db:"email" json:"email,omitempty"`
}

// Manager carries only ID when the user's managers were not expanded.
type Manager struct {
	ID    string `db:"id"    json:"id"`
	Name  string `db:"name"  json:"name,omitempty"`
	Email string `db:"email" json:"email,omitempty"`
}

// User is the creator of a site.  There is deliberately no password field.
type User struct {
	ID       string    `db:"id"    json:"id"`
	Name     string    `db:"name"  json:"name"`
	Email    string    `db:"email" json:"email"`
	Managers []Manager `db:"-"     json:"managers"`
}

//
// Read model
//

// View is a Site with landlords, investors, and creator expanded.
type View struct {
	ID         string             `json:"id"`
	CustomID   string             `json:"customId"`
	Name       string             `json:"name"`
	Landlords  []Landlord         `json:"landlords"`
	Investors  []ExpandedInvestor `json:"investors"`
	CreatedBy  *User              `json:"createdBy"`
	IsDeleted  bool               `json:"isDeleted"`
	Attributes Attributes         `json:"-"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// ExpandedInvestor keeps the stored key name; InvestorID is nil when the
// referenced investor no longer exists.
type ExpandedInvestor struct {
	InvestorID *Investor `json:"investorId"`
	Share      float64   `json:"share"`
}

func (v View) MarshalJSON() ([]byte, error) {
	type plain View
	return withAttributes(plain(v), v.Attributes)
}

// Page is one page of search results.
type Page struct {
	Sites      []View
	Page       int
	Limit      int
	TotalPages int64
	TotalItems int64
}

//
// Attributes
//

// Attributes holds free-form keys.  It is stored as a JSON object.
type Attributes map[string]any

// Scan implements sql.Scanner.
func (a *Attributes) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("attributes: unsupported type %T", src)
	}
	if len(b) == 0 {
		*a = nil
		return nil
	}
	m := Attributes{}
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	*a = m
	return nil
}

// Value implements driver.Valuer.  Empty maps are stored as `{}`.
func (a Attributes) Value() (driver.Value, error) {
	if len(a) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(a))
}

// withAttributes encodes known and adds every attribute whose key does not
// collide with a schema field.
func withAttributes(known any, attrs Attributes) ([]byte, error) {
	b, err := json.Marshal(known)
	if err != nil || len(attrs) == 0 {
		return b, err
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	for k, v := range attrs {
		if _, taken := doc[k]; taken {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		doc[k] = raw
	}
	return json.Marshal(doc)
}
