package nightly

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ParsedRecord is a record's flat field map. Fields keep the order the
// assembler first stored them, and the content hash is computed over
// values in that order, so the hash is stable run to run for a given
// record type.
type ParsedRecord struct {
	Type   string
	Fields *orderedmap.OrderedMap[string, string]
}

// ignoredTags are markup tags that show up embedded inside a still-open
// field, mostly HTML. Lines bearing them fold into the current field
// instead of starting a new one.
var ignoredTags = map[string]bool{
	"a": true, "br": true, "div": true, "em": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"hr": true, "html": true, "label": true, "ol": true,
	"p": true, "span": true, "strong": true, "table": true,
	"tbody": true, "ul": true,
}

func isIgnoredTag(tag string) bool {
	return ignoredTags[strings.TrimPrefix(tag, "/")]
}

// AssembleRecord turns one RawRecord's lines into a ParsedRecord,
// resolving repeated tags, folding continuation lines into the field they
// belong to, and applying post-parse cleanup.
func AssembleRecord(raw RawRecord) (*ParsedRecord, error) {
	fields := orderedmap.New[string, string]()

	// Two-deep tag history. DESC's meaning depends on the tag that
	// appeared two lines back, so one level of lookback is not enough.
	prev, prevPrev := "", ""

	appendTo := func(key, suffix string) error {
		if key == "" {
			return fmt.Errorf("record type %s: continuation line with no open field", raw.Type)
		}
		key = strings.ToLower(key)
		v, ok := fields.Get(key)
		if !ok {
			return fmt.Errorf("record type %s: continuation targets unknown field %q", raw.Type, key)
		}
		fields.Set(key, v+suffix)
		return nil
	}

	for _, line := range raw.Lines {
		// A trailing carriage return marks the line as part of the
		// previous field's value.
		if strings.HasSuffix(line, "\r") {
			if err := appendTo(prev, line); err != nil {
				return nil, err
			}
			continue
		}

		tag, val, err := SplitTagLine(line)
		if err != nil {
			// No tag: free text continuing the previous field.
			if err := appendTo(prev, line); err != nil {
				return nil, err
			}
			continue
		}

		// The record's own open/close markers carry no data.
		if tag == raw.Type || tag == "/"+raw.Type {
			continue
		}

		switch {
		case tag == "DESC":
			// DESC describes whatever came two lines back: a LINK's URL,
			// an EMAIL address, or the record itself.
			switch prevPrev {
			case "LINK":
				fields.Set("url_desc", val)
				prev = "url_desc"
				continue
			case "EMAIL":
				fields.Set("email_desc", val)
				prev = "email_desc"
				continue
			default:
				fields.Set("desc", val)
			}
		case isIgnoredTag(tag):
			// Embedded markup belongs to the still-open field, raw line
			// and all.
			if err := appendTo(prev, "\n"+line); err != nil {
				return nil, err
			}
			continue
		default:
			// Last write wins for a repeated tag within one record.
			fields.Set(strings.ToLower(tag), val)
		}
		prevPrev = prev
		prev = tag
	}

	rec := &ParsedRecord{Type: raw.Type, Fields: fields}
	if err := rec.cleanup(); err != nil {
		return nil, err
	}
	return rec, nil
}

// fieldRenames maps raw feed tags to their canonical column names.
var fieldRenames = [][2]string{
	{"address", "email"},
	{"awdamt", "award_amount"},
	{"awddate", "award_date"},
	{"awdnbr", "award_number"},
	{"archdate", "archive_date"},
	{"classcod", "class_code"},
	{"linenbr", "line_number"},
	{"offadd", "office_address"},
	{"popcountry", "pop_country"},
	{"popzip", "pop_zip"},
	{"popaddress", "pop_address"},
	{"solnbr", "solicitation_number"},
}

// cleanup normalizes an assembled field map in place: positional
// scaffolding is dropped, split date fields are composed, and raw tag
// names become canonical column names. Every record type requires date
// and year.
func (r *ParsedRecord) cleanup() error {
	r.Fields.Delete("link")

	if v, ok := r.Fields.Get("respdate"); ok {
		r.Fields.Delete("respdate")
		if len(v) < 6 {
			return fmt.Errorf("record type %s: malformed respdate %q", r.Type, v)
		}
		d, err := composeDate(v[0:4], v[4:6])
		if err != nil {
			return fmt.Errorf("record type %s: respdate: %w", r.Type, err)
		}
		r.Fields.Set("response_date", d)
	}

	for _, ren := range fieldRenames {
		if v, ok := r.Fields.Get(ren[0]); ok {
			r.Fields.Delete(ren[0])
			r.Fields.Set(ren[1], v)
		}
	}

	date, ok := r.Fields.Get("date")
	if !ok {
		return &MissingFieldError{RecordType: r.Type, Field: "date"}
	}
	year, ok := r.Fields.Get("year")
	if !ok {
		return &MissingFieldError{RecordType: r.Type, Field: "year"}
	}
	r.Fields.Delete("year")
	d, err := composeDate(date, year)
	if err != nil {
		return fmt.Errorf("record type %s: date: %w", r.Type, err)
	}
	r.Fields.Set("date", d)
	return nil
}

// composeDate combines a 4-digit MMDD string and a 2-digit year into
// YYYY-MM-DD. Two-digit years below 90 land in the 2000s, 90 through 99
// in the 1900s.
func composeDate(mmdd, year string) (string, error) {
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return "", fmt.Errorf("bad year %q", year)
	}
	if y < 90 {
		y += 2000
	} else if y <= 99 {
		y += 1900
	}
	if len(mmdd) < 4 {
		return "", fmt.Errorf("bad month/day %q", mmdd)
	}
	m, err := strconv.Atoi(mmdd[0:2])
	if err != nil {
		return "", fmt.Errorf("bad month %q", mmdd[0:2])
	}
	d, err := strconv.Atoi(mmdd[2:4])
	if err != nil {
		return "", fmt.Errorf("bad day %q", mmdd[2:4])
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || t.Month() != time.Month(m) || t.Day() != d {
		return "", fmt.Errorf("no such date: year %d month %d day %d", y, m, d)
	}
	return t.Format("2006-01-02"), nil
}
