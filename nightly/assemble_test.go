package nightly

import (
	"errors"
	"testing"
)

func assemble(t *testing.T, typ string, lines ...string) *ParsedRecord {
	t.Helper()
	all := append([]string{"<" + typ + ">"}, lines...)
	all = append(all, "</"+typ+">")
	rec, err := AssembleRecord(RawRecord{Type: typ, Lines: all})
	if err != nil {
		t.Fatalf("AssembleRecord: %v", err)
	}
	return rec
}

func wantField(t *testing.T, rec *ParsedRecord, key, want string) {
	t.Helper()
	got, ok := rec.Fields.Get(key)
	if !ok {
		t.Fatalf("field %q missing", key)
	}
	if got != want {
		t.Fatalf("field %q = %q, want %q", key, got, want)
	}
}

func wantNoField(t *testing.T, rec *ParsedRecord, key string) {
	t.Helper()
	if v, ok := rec.Fields.Get(key); ok {
		t.Fatalf("field %q = %q, want absent", key, v)
	}
}

func TestAssembleRecord_Basic(t *testing.T) {
	rec := assemble(t, "PRESOL",
		"<DATE>0115",
		"<YEAR>23",
		"<SOLNBR>FA8773-23-R-0001",
		"<OFFADD>Bldg 1, Somewhere AFB",
		"<SUBJECT>Road grading",
		"<DESC>Grade the access roads",
	)
	wantField(t, rec, "date", "2023-01-15")
	wantField(t, rec, "solicitation_number", "FA8773-23-R-0001")
	wantField(t, rec, "office_address", "Bldg 1, Somewhere AFB")
	wantField(t, rec, "subject", "Road grading")
	wantField(t, rec, "desc", "Grade the access roads")
	wantNoField(t, rec, "year")
	wantNoField(t, rec, "solnbr")
	wantNoField(t, rec, "offadd")
}

func TestAssembleRecord_DescAfterLink(t *testing.T) {
	rec := assemble(t, "COMBINE",
		"<DATE>0301",
		"<YEAR>24",
		"<LINK>",
		"<URL>https://sam.example.gov/opp/123",
		"<DESC>Link to notice",
	)
	wantField(t, rec, "url_desc", "Link to notice")
	wantField(t, rec, "url", "https://sam.example.gov/opp/123")
	wantNoField(t, rec, "desc")
	wantNoField(t, rec, "link")
}

func TestAssembleRecord_DescAfterEmail(t *testing.T) {
	rec := assemble(t, "COMBINE",
		"<DATE>0301",
		"<YEAR>24",
		"<EMAIL>",
		"<ADDRESS>contracting@example.gov",
		"<DESC>Contracting officer",
	)
	wantField(t, rec, "email_desc", "Contracting officer")
	wantField(t, rec, "email", "contracting@example.gov")
	wantNoField(t, rec, "desc")
	wantNoField(t, rec, "address")
}

func TestAssembleRecord_DescHistoryNotAdvanced(t *testing.T) {
	// The DESC that answers a LINK does not enter the tag history, so a
	// later plain DESC still lands in desc.
	rec := assemble(t, "COMBINE",
		"<DATE>0301",
		"<YEAR>24",
		"<LINK>",
		"<URL>https://sam.example.gov/opp/123",
		"<DESC>Link to notice",
		"<SUBJECT>Paving",
		"<CONTACT>J. Smith",
		"<DESC>Full description",
	)
	wantField(t, rec, "url_desc", "Link to notice")
	wantField(t, rec, "desc", "Full description")
}

func TestAssembleRecord_Continuations(t *testing.T) {
	rec := assemble(t, "PRESOL",
		"<DATE>0115",
		"<YEAR>23",
		"<DESC>First line",
		" second line, no tag",
		"<p>an embedded paragraph",
		"third line\r",
	)
	wantField(t, rec, "desc", "First line second line, no tag\n<p>an embedded paragraphthird line\r")
}

func TestAssembleRecord_ContinuationWithNoOpenField(t *testing.T) {
	_, err := AssembleRecord(RawRecord{Type: "PRESOL", Lines: []string{
		"<PRESOL>",
		"orphan line",
		"</PRESOL>",
	}})
	if err == nil {
		t.Fatal("expected error for continuation before any field")
	}
}

func TestAssembleRecord_RepeatedTagLastWins(t *testing.T) {
	rec := assemble(t, "PRESOL",
		"<DATE>0115",
		"<YEAR>23",
		"<SUBJECT>first",
		"<SUBJECT>second",
	)
	wantField(t, rec, "subject", "second")
}

func TestAssembleRecord_RespDate(t *testing.T) {
	rec := assemble(t, "PRESOL",
		"<DATE>0115",
		"<YEAR>23",
		"<RESPDATE>021525",
	)
	wantField(t, rec, "response_date", "2025-02-15")
	wantNoField(t, rec, "respdate")
}

func TestAssembleRecord_MissingYear(t *testing.T) {
	_, err := AssembleRecord(RawRecord{Type: "PRESOL", Lines: []string{
		"<PRESOL>",
		"<DATE>0115",
		"</PRESOL>",
	}})
	var missing *MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingFieldError", err)
	}
	if missing.Field != "year" {
		t.Fatalf("missing field = %q, want year", missing.Field)
	}
}

func TestComposeDate(t *testing.T) {
	cases := []struct {
		mmdd, year, want string
	}{
		{"0115", "23", "2023-01-15"},
		{"0115", "05", "2005-01-15"},
		{"0115", "99", "1999-01-15"},
		{"1231", "89", "2089-12-31"},
	}
	for _, c := range cases {
		got, err := composeDate(c.mmdd, c.year)
		if err != nil {
			t.Fatalf("composeDate(%q, %q): %v", c.mmdd, c.year, err)
		}
		if got != c.want {
			t.Fatalf("composeDate(%q, %q) = %q, want %q", c.mmdd, c.year, got, c.want)
		}
	}
}

func TestComposeDate_Invalid(t *testing.T) {
	for _, c := range [][2]string{{"1301", "23"}, {"0230", "23"}, {"01", "23"}, {"0115", "xx"}} {
		if _, err := composeDate(c[0], c[1]); err == nil {
			t.Fatalf("composeDate(%q, %q) succeeded, want error", c[0], c[1])
		}
	}
}

func TestContentHash_Stable(t *testing.T) {
	raw := RawRecord{Type: "PRESOL", Lines: []string{
		"<PRESOL>", "<DATE>0115", "<YEAR>23", "<SUBJECT>Road grading", "</PRESOL>",
	}}
	a, err := AssembleRecord(raw)
	if err != nil {
		t.Fatal(err)
	}
	b, err := AssembleRecord(raw)
	if err != nil {
		t.Fatal(err)
	}
	if ContentHash(a) != ContentHash(b) {
		t.Fatal("hash differs across identical assemblies")
	}
	if len(ContentHash(a)) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(ContentHash(a)))
	}
}
