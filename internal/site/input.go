// internal/site/input.go
//
// Register and update payloads.
//
// Context
// -------
// Both payloads arrive as JSON objects.  Schema keys decode into typed
// fields; every other key becomes an attribute.  Identity keys (`id`, `_id`,
// `customId`) and the timestamps are owned by the repository and are dropped
// on decode, which is what keeps `customId` immutable across updates.
//
// Validation uses go-playground/validator with JSON field names, so error
// paths read like the request body (e.g. `investors[0].share`).

package site

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ownedKeys are never accepted from clients.
var ownedKeys = map[string]struct{}{
	"id":        {},
	"_id":       {},
	"customId":  {},
	"createdAt": {},
	"updatedAt": {},
}

// schemaKeys are decoded into typed fields.
var schemaKeys = map[string]struct{}{
	"name":      {},
	"landlords": {},
	"investors": {},
	"createdBy": {},
	"isDeleted": {},
}

//
// Register payload
//

// Input is the register payload.
type Input struct {
	Name       string       `json:"name"      validate:"required,max=128"`
	Landlords  []string     `json:"landlords" validate:"dive,uuid"`
	Investors  []Investment `json:"investors" validate:"dive"`
	CreatedBy  *string      `json:"createdBy" validate:"omitempty,uuid"`
	IsDeleted  bool         `json:"isDeleted"`
	Attributes Attributes   `json:"-"`
}

// UnmarshalJSON splits schema keys from attributes.
func (in *Input) UnmarshalJSON(b []byte) error {
	known, attrs, err := splitDocument(b)
	if err != nil {
		return err
	}
	type plain Input
	var p plain
	if err := json.Unmarshal(known, &p); err != nil {
		return err
	}
	*in = Input(p)
	in.Attributes = attrs
	return nil
}

// normalize trims the name and rewrites reference ids in canonical form.
func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Landlords, in.Investors, in.CreatedBy = canonicalRefs(in.Landlords, in.Investors, in.CreatedBy)
}

// Validate reports every invalid field as a *ValidationError.
func (in Input) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fromValidator(err)
	}
	return nil
}

//
// Update payload
//

// Patch is a partial update.  Absent keys leave the stored value alone.
// For `landlords`, `investors`, and `createdBy` the presence flags
// distinguish "absent" from an explicit empty value or null.
type Patch struct {
	Name       *string      `json:"name"      validate:"omitempty,min=1,max=128"`
	Landlords  []string     `json:"landlords" validate:"dive,uuid"`
	Investors  []Investment `json:"investors" validate:"dive"`
	CreatedBy  *string      `json:"createdBy" validate:"omitempty,uuid"`
	IsDeleted  *bool        `json:"isDeleted"`
	Attributes Attributes   `json:"-"` // nil value removes the key

	landlordsSet bool
	investorsSet bool
	createdBySet bool
}

// UnmarshalJSON splits schema keys from attributes and records presence.
func (p *Patch) UnmarshalJSON(b []byte) error {
	known, attrs, err := splitDocument(b)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return err
	}

	type plain Patch
	var out plain
	if err := json.Unmarshal(known, &out); err != nil {
		return err
	}
	*p = Patch(out)
	_, p.landlordsSet = fields["landlords"]
	_, p.investorsSet = fields["investors"]
	_, p.createdBySet = fields["createdBy"]
	p.Attributes = attrs
	return nil
}

// SetLandlords replaces the landlord set on apply.
func (p *Patch) SetLandlords(ids []string) { p.Landlords, p.landlordsSet = ids, true }

// SetInvestors replaces the investor list on apply.
func (p *Patch) SetInvestors(inv []Investment) { p.Investors, p.investorsSet = inv, true }

// SetCreatedBy replaces or, with nil, clears the creator on apply.
func (p *Patch) SetCreatedBy(id *string) { p.CreatedBy, p.createdBySet = id, true }

func (p Patch) LandlordsSet() bool { return p.landlordsSet }
func (p Patch) InvestorsSet() bool { return p.investorsSet }

// normalize trims the name and rewrites reference ids in canonical form.
func (p *Patch) normalize() {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		p.Name = &name
	}
	p.Landlords, p.Investors, p.CreatedBy = canonicalRefs(p.Landlords, p.Investors, p.CreatedBy)
}

// Validate reports every invalid field as a *ValidationError.
func (p Patch) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fromValidator(err)
	}
	return nil
}

// Apply writes the patch onto s.  ID and CustomID are never touched.
func (p Patch) Apply(s *Site) {
	if p.Name != nil {
		s.Name = strings.TrimSpace(*p.Name)
	}
	if p.landlordsSet {
		s.Landlords = dedupe(p.Landlords)
	}
	if p.investorsSet {
		s.Investors = append([]Investment(nil), p.Investors...)
	}
	if p.createdBySet {
		s.CreatedBy = p.CreatedBy
	}
	if p.IsDeleted != nil {
		s.IsDeleted = *p.IsDeleted
	}
	if len(p.Attributes) > 0 {
		merged := make(Attributes, len(s.Attributes)+len(p.Attributes))
		for k, v := range s.Attributes {
			merged[k] = v
		}
		for k, v := range p.Attributes {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		s.Attributes = merged
	}
}

//
// helpers
//

// splitDocument returns the schema keys re-encoded as an object and the
// remaining keys as attributes.  Owned keys are dropped.
func splitDocument(b []byte) ([]byte, Attributes, error) {
	if len(bytes.TrimSpace(b)) == 0 || bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return []byte("{}"), nil, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, nil, fmt.Errorf("body must be a JSON object: %w", err)
	}

	known := make(map[string]json.RawMessage, len(schemaKeys))
	var attrs Attributes
	for k, raw := range doc {
		if _, ok := ownedKeys[k]; ok {
			continue
		}
		if _, ok := schemaKeys[k]; ok {
			known[k] = raw
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		if attrs == nil {
			attrs = Attributes{}
		}
		attrs[k] = v
	}
	out, err := json.Marshal(known)
	return out, attrs, err
}

// dedupe keeps the first occurrence of each id.
func dedupe(ids []string) []string {
	if ids == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// canonicalRef returns the lower-case hyphenated form of a UUID, or raw
// unchanged when it does not parse.
func canonicalRef(raw string) string {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return id.String()
}

// canonicalRefs returns copies of the reference fields with every
// parseable id in canonical form.  Unparseable values are kept for the
// validator to report.
func canonicalRefs(landlords []string, investors []Investment, createdBy *string) ([]string, []Investment, *string) {
	var ll []string
	if landlords != nil {
		ll = make([]string, len(landlords))
		for i, id := range landlords {
			ll[i] = canonicalRef(id)
		}
	}
	var inv []Investment
	if investors != nil {
		inv = make([]Investment, len(investors))
		for i, e := range investors {
			e.InvestorID = canonicalRef(e.InvestorID)
			inv[i] = e
		}
	}
	var by *string
	if createdBy != nil {
		id := canonicalRef(*createdBy)
		by = &id
	}
	return ll, inv, by
}
