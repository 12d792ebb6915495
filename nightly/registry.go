package nightly

import (
	"fmt"
	"strings"
)

// RecordType describes one known record type from the nightly feed: the
// tag that opens it, its column list in schema order, and where its rows
// land.
type RecordType struct {
	Tag         string   // uppercase opening tag, e.g. "PRESOL"
	Table       string   // destination table name
	Fields      []string // column order, post-cleanup names
	MigrationID string   // numeric prefix of the goose migration file
}

// Field lists shared between families of record types. The families grew
// historically: presolicitation-style notices carry the base set, award
// actions add award data, archive-style notices add the modification
// bookkeeping columns.
const (
	baseFields = "date solicitation_number response_date setaside agency office location office_address zip class_code naics subject desc url url_desc email email_desc archive_date contact pop_address pop_zip pop_country"

	ntypeFields = baseFields + " ntype"

	awardFields = "date solicitation_number award_number award_amount award_date awardee line_number response_date setaside agency office location office_address zip class_code naics subject desc url url_desc email email_desc archive_date contact pop_address pop_zip pop_country ntype correction"

	jaFields = "date solicitation_number award_number award_amount award_date response_date setaside agency office location office_address zip class_code naics subject desc url url_desc email email_desc archive_date contact pop_address pop_zip pop_country ntype stauth correction modnbr"

	noticeFields = "date solicitation_number award_number award_amount award_date response_date setaside agency office location office_address zip class_code naics subject desc url url_desc email email_desc archive_date contact pop_address pop_zip pop_country ntype foja donbr correction modnbr"
)

// RecordTypes is the full catalog of record types the nightly feed is
// known to carry. Registration is static; new tags show up in the feed
// from time to time and are skipped with a warning until added here.
var RecordTypes = []RecordType{
	{Tag: "PRESOL", Table: "presol", Fields: strings.Fields(baseFields), MigrationID: "002"},
	{Tag: "SRCSGT", Table: "srcsgt", Fields: strings.Fields(baseFields), MigrationID: "003"},
	{Tag: "SNOTE", Table: "snote", Fields: strings.Fields(baseFields), MigrationID: "004"},
	{Tag: "COMBINE", Table: "combine", Fields: strings.Fields(baseFields), MigrationID: "005"},
	{Tag: "AMDCSS", Table: "amdcss", Fields: strings.Fields(ntypeFields), MigrationID: "006"},
	{Tag: "MOD", Table: "mod", Fields: strings.Fields(ntypeFields), MigrationID: "007"},
	{Tag: "AWARD", Table: "award", Fields: strings.Fields(awardFields), MigrationID: "008"},
	{Tag: "JA", Table: "ja", Fields: strings.Fields(jaFields), MigrationID: "009"},
	{Tag: "FAIROPP", Table: "fairopp", Fields: strings.Fields(noticeFields), MigrationID: "010"},
	{Tag: "ARCHIVE", Table: "archive", Fields: strings.Fields(noticeFields), MigrationID: "011"},
	{Tag: "UNARCHIVE", Table: "unarchive", Fields: strings.Fields(noticeFields), MigrationID: "012"},
	{Tag: "SSALE", Table: "ssale", Fields: strings.Fields(baseFields), MigrationID: "013"},
	{Tag: "FSTD", Table: "fstd", Fields: strings.Fields(noticeFields), MigrationID: "014"},
	{Tag: "ITB", Table: "itb", Fields: strings.Fields(baseFields), MigrationID: "015"},
}

var recordTypesByTag = func() map[string]*RecordType {
	m := make(map[string]*RecordType, len(RecordTypes))
	for i := range RecordTypes {
		m[strings.ToLower(RecordTypes[i].Tag)] = &RecordTypes[i]
	}
	return m
}()

// LookupRecordType finds the definition for tag (any case). The second
// return is false for tags the catalog does not know.
func LookupRecordType(tag string) (*RecordType, bool) {
	rt, ok := recordTypesByTag[strings.ToLower(tag)]
	return rt, ok
}

// CreateTableSQL renders the schema for this record type's table. naics is
// the lone integer column. sha256 carries the content-hash uniqueness
// constraint that makes loads insert-or-ignore safe; nightly_id is a
// free-form ingestion identifier.
func (rt *RecordType) CreateTableSQL() string {
	cols := make([]string, 0, len(rt.Fields)+2)
	for _, f := range rt.Fields {
		typ := "text"
		if f == "naics" {
			typ = "integer"
		}
		cols = append(cols, f+" "+typ)
	}
	cols = append(cols, "sha256 text", "nightly_id text")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, UNIQUE (sha256));\n", rt.Table, strings.Join(cols, ", "))
}

// Migration returns the goose migration that creates this record type's
// table.
func (rt *RecordType) Migration() Migration {
	return Migration{
		Filename: fmt.Sprintf("%s_%s_table.sql", rt.MigrationID, rt.Table),
		Up:       rt.CreateTableSQL(),
		Down:     fmt.Sprintf("DROP TABLE %s;", rt.Table),
	}
}
