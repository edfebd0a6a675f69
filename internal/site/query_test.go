package site

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestParseFilter_KnownKeysAndAttributes(t *testing.T) {
	f, err := ParseFilter([]byte(`{
		"name": "Acme",
		"landlords": "a0000000-0000-0000-0000-000000000001",
		"investors.investorId": "b0000000-0000-0000-0000-000000000001",
		"isDeleted": true,
		"address.city": "Oslo",
		"floors": 3
	}`))
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	if f.Name == nil || *f.Name != "Acme" {
		t.Errorf("Name = %v", f.Name)
	}
	if f.Landlord == nil || f.Investor == nil {
		t.Errorf("relation filters not set: %+v", f)
	}
	if len(f.Attributes) != 2 {
		t.Fatalf("attributes = %v, want 2 keys (isDeleted ignored)", f.Attributes)
	}
	if string(f.Attributes["floors"]) != "3" {
		t.Errorf("floors = %s", f.Attributes["floors"])
	}
}

func TestParseFilter_Empty(t *testing.T) {
	for _, body := range []string{"", "  ", "null", "{}"} {
		f, err := ParseFilter([]byte(body))
		if err != nil {
			t.Fatalf("ParseFilter(%q): %v", body, err)
		}
		if !reflect.DeepEqual(f, Filter{}) {
			t.Errorf("ParseFilter(%q) = %+v, want empty", body, f)
		}
	}
}

func TestParseFilter_Rejects(t *testing.T) {
	bad := []string{
		`[1,2]`,
		`{"$where": "1"}`,
		`{"name": {"$ne": "x"}}`,
		`{"floors": {"$gt": 2}}`,
		`{"tags": ["a"]}`,
		`{"city": null}`,
		`{"a..b": 1}`,
		`{"a\"b": 1}`,
	}
	for _, body := range bad {
		if _, err := ParseFilter([]byte(body)); !errors.Is(err, ErrInvalidFilter) {
			t.Errorf("ParseFilter(%s) err = %v, want ErrInvalidFilter", body, err)
		}
	}
}

func TestParseFilter_IdentityKeys(t *testing.T) {
	const id = "0b6c2f4e-9a1d-4c3b-8e7f-123456789abc"

	for _, key := range []string{"id", "_id"} {
		t.Run(key, func(t *testing.T) {
			f, err := ParseFilter([]byte(`{"` + key + `":"` + strings.ToUpper(id) + `"}`))
			if err != nil {
				t.Fatalf("ParseFilter: %v", err)
			}
			if f.ID == nil || *f.ID != id {
				t.Fatalf("ID = %v, want %s", f.ID, id)
			}
			if len(f.Attributes) != 0 {
				t.Fatalf("%s leaked into attributes: %v", key, f.Attributes)
			}
			sql, args := Query{Filter: f}.where()
			if sql != "s.is_deleted = FALSE AND s.id = ?" {
				t.Fatalf("where = %q", sql)
			}
			if !reflect.DeepEqual(args, []any{id}) {
				t.Fatalf("args = %#v", args)
			}
		})
	}

	for _, body := range []string{
		`{"_id":"12345"}`,
		`{"id":7}`,
		`{"createdAt":"2024-01-01T00:00:00Z"}`,
		`{"updatedAt":"2024-01-01T00:00:00Z"}`,
	} {
		if _, err := ParseFilter([]byte(body)); !errors.Is(err, ErrInvalidFilter) {
			t.Errorf("ParseFilter(%s) err = %v, want ErrInvalidFilter", body, err)
		}
	}
}

func TestParseFilter_CanonicalReferences(t *testing.T) {
	f, err := ParseFilter([]byte(`{
		"createdBy": "C0000000-0000-0000-0000-00000000000C",
		"landlords": "A0000000-0000-0000-0000-00000000000A",
		"investors.investorId": "B0000000-0000-0000-0000-00000000000B"
	}`))
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	if *f.CreatedBy != userC || *f.Landlord != landlordA || *f.Investor != investorB {
		t.Fatalf("references not canonical: %s %s %s", *f.CreatedBy, *f.Landlord, *f.Investor)
	}
}

func TestWhere_AlwaysExcludesDeleted(t *testing.T) {
	sql, args := Query{}.where()
	if sql != "s.is_deleted = FALSE" || len(args) != 0 {
		t.Fatalf("where = %q %v", sql, args)
	}
}

func TestWhere_FullQuery(t *testing.T) {
	f, err := ParseFilter([]byte(`{"name":"Acme","zone":"b","address.city":"Oslo"}`))
	if err != nil {
		t.Fatal(err)
	}
	sql, args := Query{Filter: f, SearchTerm: "50%_Off"}.where()

	want := "s.is_deleted = FALSE AND s.name = ?" +
		" AND JSON_EXTRACT(s.attributes, ?) = CAST(? AS JSON)" +
		" AND JSON_EXTRACT(s.attributes, ?) = CAST(? AS JSON)" +
		" AND (LOWER(s.custom_id) LIKE ? OR LOWER(s.name) LIKE ?)"
	if sql != want {
		t.Fatalf("where =\n%s\nwant\n%s", sql, want)
	}
	wantArgs := []any{
		"Acme",
		`$."address"."city"`, `"Oslo"`,
		`$."zone"`, `"b"`,
		`%50\%\_off%`, `%50\%\_off%`,
	}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("args = %#v\nwant %#v", args, wantArgs)
	}
}

func TestParsePositive(t *testing.T) {
	cases := map[string]int{"": 7, "abc": 7, "0": 7, "-2": 7, "3": 3, " 12 ": 12}
	for in, want := range cases {
		if got := ParsePositive(in, 7); got != want {
			t.Errorf("ParsePositive(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestPaginationMath(t *testing.T) {
	q := Query{Page: 3, Limit: 10}
	if q.Offset() != 20 {
		t.Errorf("Offset = %d", q.Offset())
	}
	if (Query{Page: math.MaxInt, Limit: math.MaxInt}).Offset() != math.MaxInt64 {
		t.Errorf("Offset did not saturate")
	}

	cases := []struct {
		total int64
		limit int
		want  int64
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{25, 10, 3},
		{5, DefaultLimit, 1},
	}
	for _, c := range cases {
		if got := TotalPages(c.total, c.limit); got != c.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", c.total, c.limit, got, c.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	q := Query{SearchTerm: "  acme "}
	q.normalize(0)
	if q.Page != 1 || q.Limit != DefaultLimit || q.SearchTerm != "acme" {
		t.Fatalf("normalize = %+v", q)
	}
}
