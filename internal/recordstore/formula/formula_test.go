package formula

import "testing"

func TestSearch(t *testing.T) {
	if got := Search("projects", "data4coolcities"); got != "SEARCH('data4coolcities', {projects})" {
		t.Fatalf("got %q", got)
	}
	if got := Search("theme", ""); got != "" {
		t.Fatalf("empty value: got %q want empty", got)
	}
}

func TestSearchAny(t *testing.T) {
	got := SearchAny("theme", []string{"Biodiversity", "Climate Change"})
	want := "OR(SEARCH('Biodiversity', {theme}), SEARCH('Climate Change', {theme}))"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := SearchAny("theme", nil); got != "" {
		t.Fatalf("empty list: got %q", got)
	}
}

func TestBuild(t *testing.T) {
	if got := Build(Filters{}); got != "" {
		t.Fatalf("empty filters: got %q", got)
	}

	got := Build(Filters{
		"projects":          Any("p1", "p2"),
		"country_code_iso3": One("BRA"),
		"application_id":    One(""),
	})
	want := "AND(SEARCH('BRA', {country_code_iso3}), OR(SEARCH('p1', {projects}), SEARCH('p2', {projects})))"
	if got != want {
		t.Fatalf("got  %q\nwant %q", got, want)
	}

	if got := Build(Filters{"status": One("Active")}); got != "AND(SEARCH('Active', {status}))" {
		t.Fatalf("single field: got %q", got)
	}
	if got := Build(Filters{"a": One(""), "b": Any()}); got != "" {
		t.Fatalf("only empty values: got %q", got)
	}
}

func TestAnd(t *testing.T) {
	if got := And("", Equals("id", "x"), ""); got != "{id} = 'x'" {
		t.Fatalf("got %q", got)
	}
	if got := And("A", "B"); got != "AND(A, B)" {
		t.Fatalf("got %q", got)
	}
	if got := And(); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestSafe(t *testing.T) {
	for _, v := range []string{"BRA-Salvador", "ADM4union", "Climate Change"} {
		if !Safe(v) {
			t.Fatalf("%q should be safe", v)
		}
	}
	for _, v := range []string{"x') , TRUE()", "{id}", `a\b`} {
		if Safe(v) {
			t.Fatalf("%q should be rejected", v)
		}
	}
}
