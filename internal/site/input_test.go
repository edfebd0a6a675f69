package site

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const (
	landlordA = "a0000000-0000-0000-0000-00000000000a"
	investorB = "b0000000-0000-0000-0000-00000000000b"
	userC     = "c0000000-0000-0000-0000-00000000000c"
)

func TestInput_SplitsAttributesAndDropsOwnedKeys(t *testing.T) {
	var in Input
	body := `{
		"_id": "x", "id": "y", "customId": "SITE9999",
		"name": "Acme",
		"landlords": ["` + landlordA + `"],
		"createdBy": "` + userC + `",
		"address": {"city": "Oslo"},
		"floors": 3
	}`
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if in.Name != "Acme" || len(in.Landlords) != 1 || in.CreatedBy == nil {
		t.Fatalf("schema fields = %+v", in)
	}
	for _, k := range []string{"_id", "id", "customId", "name"} {
		if _, ok := in.Attributes[k]; ok {
			t.Errorf("attribute %q should not be kept", k)
		}
	}
	if in.Attributes["floors"] != float64(3) {
		t.Errorf("floors = %v", in.Attributes["floors"])
	}
	if err := in.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestInput_ValidationFields(t *testing.T) {
	in := Input{
		Landlords: []string{"nope"},
		Investors: []Investment{{InvestorID: investorB, Share: 120}},
	}
	err := in.Validate()

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	got := map[string]bool{}
	for _, f := range ve.Fields {
		got[f.Field] = true
	}
	for _, want := range []string{"name", "landlords[0]", "investors[0].share"} {
		if !got[want] {
			t.Errorf("missing field error %q in %+v", want, ve.Fields)
		}
	}
}

func TestNormalize_CanonicalReferences(t *testing.T) {
	upper := strings.ToUpper
	by := upper(userC)
	landlords := []string{upper(landlordA)}
	in := Input{
		Name:      "  Acme ",
		Landlords: landlords,
		Investors: []Investment{{InvestorID: upper(investorB), Share: 10}},
		CreatedBy: &by,
	}
	in.normalize()
	if err := in.Validate(); err != nil {
		t.Fatalf("Validate after normalize: %v", err)
	}
	if in.Name != "Acme" || in.Landlords[0] != landlordA ||
		in.Investors[0].InvestorID != investorB || *in.CreatedBy != userC {
		t.Fatalf("normalize = %+v", in)
	}
	if landlords[0] != upper(landlordA) || by != upper(userC) {
		t.Fatal("normalize modified the caller's values")
	}

	bad := Input{Name: "x", Landlords: []string{"NOT-AN-ID"}}
	bad.normalize()
	if bad.Landlords[0] != "NOT-AN-ID" {
		t.Fatalf("unparseable id rewritten to %q", bad.Landlords[0])
	}
	var ve *ValidationError
	if !errors.As(bad.Validate(), &ve) {
		t.Fatal("unparseable landlord id passed validation")
	}

	var p Patch
	if err := json.Unmarshal([]byte(`{"createdBy":null,"landlords":["`+upper(landlordA)+`"]}`), &p); err != nil {
		t.Fatal(err)
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		t.Fatalf("patch Validate: %v", err)
	}
	if p.Landlords[0] != landlordA || p.CreatedBy != nil || !p.createdBySet {
		t.Fatalf("patch normalize = %+v", p)
	}
}

func TestPatch_PresenceAndApply(t *testing.T) {
	var p Patch
	body := `{"customId":"HACK","id":"other","name":" Renamed ","landlords":[],"createdBy":null,"color":"red","floors":null}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !p.LandlordsSet() || p.InvestorsSet() {
		t.Fatalf("presence flags wrong: landlords=%v investors=%v", p.LandlordsSet(), p.InvestorsSet())
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	creator := userC
	s := Site{
		ID:         "keep-id",
		CustomID:   "SITE0021",
		Name:       "Acme",
		Landlords:  []string{landlordA},
		Investors:  []Investment{{InvestorID: investorB, Share: 10}},
		CreatedBy:  &creator,
		Attributes: Attributes{"floors": float64(3), "zone": "b"},
	}
	p.Apply(&s)

	if s.ID != "keep-id" || s.CustomID != "SITE0021" {
		t.Errorf("identity changed: %q %q", s.ID, s.CustomID)
	}
	if s.Name != "Renamed" {
		t.Errorf("Name = %q", s.Name)
	}
	if len(s.Landlords) != 0 {
		t.Errorf("Landlords = %v, want cleared", s.Landlords)
	}
	if len(s.Investors) != 1 {
		t.Errorf("Investors changed: %v", s.Investors)
	}
	if s.CreatedBy != nil {
		t.Errorf("CreatedBy = %v, want nil", *s.CreatedBy)
	}
	if _, ok := s.Attributes["floors"]; ok {
		t.Errorf("floors should be removed")
	}
	if s.Attributes["zone"] != "b" || s.Attributes["color"] != "red" {
		t.Errorf("Attributes = %v", s.Attributes)
	}
}

func TestSiteJSON_FlattensAttributes(t *testing.T) {
	s := Site{
		ID: "1", CustomID: "SITE0021", Name: "Acme",
		Landlords: []string{}, Investors: []Investment{},
		Attributes: Attributes{"floors": 3, "name": "shadowed"},
	}
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["floors"] != float64(3) {
		t.Errorf("floors = %v", doc["floors"])
	}
	if doc["name"] != "Acme" {
		t.Errorf("schema field was overwritten: %v", doc["name"])
	}
	if doc["customId"] != "SITE0021" {
		t.Errorf("customId = %v", doc["customId"])
	}
}

func TestAttributesScanValue(t *testing.T) {
	var a Attributes
	if err := a.Scan([]byte(`{"x":1}`)); err != nil {
		t.Fatal(err)
	}
	if a["x"] != float64(1) {
		t.Fatalf("Scan = %v", a)
	}
	v, err := Attributes(nil).Value()
	if err != nil || string(v.([]byte)) != "{}" {
		t.Fatalf("Value(nil) = %v, %v", v, err)
	}
	if err := a.Scan(42); err == nil {
		t.Fatal("Scan(int) should fail")
	}
}
