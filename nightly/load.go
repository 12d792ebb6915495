package nightly

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// Engine drives the idempotent load pipeline: split a feed file into
// records, assemble them, and write them insert-or-ignore keyed on content
// hash. Re-ingesting a file (or an overlapping one) is a committed no-op
// for every record already seen.
type Engine struct {
	store  *Store
	logger *log.Logger

	// unhandled tracks record tags with no registry entry so each one
	// warns once per run.
	unhandled map[string]bool
}

func NewEngine(store *Store, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{store: store, logger: logger, unhandled: make(map[string]bool)}
}

// ContentHash digests the record's field values in map order. Two records
// with identical content hash to the same key no matter which feed file
// they came from.
func ContentHash(rec *ParsedRecord) string {
	vals := make([]string, 0, rec.Fields.Len())
	for pair := rec.Fields.Oldest(); pair != nil; pair = pair.Next() {
		vals = append(vals, pair.Value)
	}
	sum := sha256.Sum256([]byte(strings.Join(vals, "|")))
	return hex.EncodeToString(sum[:])
}

// insertStatement renders the insert-or-ignore statement for one record's
// column set, with the content hash appended as the sha256 column.
func insertStatement(table string, rec *ParsedRecord) (string, []any) {
	cols := make([]string, 0, rec.Fields.Len()+1)
	args := make([]any, 0, rec.Fields.Len()+1)
	for pair := rec.Fields.Oldest(); pair != nil; pair = pair.Next() {
		cols = append(cols, pair.Key)
		args = append(args, pair.Value)
	}
	cols = append(cols, "sha256")
	args = append(args, ContentHash(rec))

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s);",
		table, strings.Join(cols, ", "), placeholders)
	return stmt, args
}

// writeGroup executes one statement group as a single transaction.
// Per-record transactions are unusably slow at feed volume; grouping all
// of a table's rows under one commit is what makes nightly loads finish.
// Any failure rolls the whole group back and surfaces the statement.
func (e *Engine) writeGroup(stmt string, rows [][]any) error {
	err := e.store.db.Transaction(func(tx *gorm.DB) error {
		for _, args := range rows {
			if err := tx.Exec(stmt, args...).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &StorageError{Stmt: stmt, Err: err}
	}
	return nil
}

// IngestFile parses and loads one nightly feed file, returning the number
// of records routed to their tables (rows already present by hash count
// too; the insert is an ignore for them). Any parse or storage error
// aborts the whole file with nothing newly committed. Callers are
// responsible for the "Parsed <fname>" activity entry; IngestDir writes
// it.
func (e *Engine) IngestFile(path string) (int, error) {
	e.logger.Printf("Parsing and loading %s", path)

	text, err := SlurpLatin1(path)
	if err != nil {
		return 0, err
	}

	// Group rows by their insert statement so each table's records go
	// through in one transaction, and gather everything before writing
	// anything so a mid-file parse error commits nothing.
	groups := make(map[string][][]any)
	var order []string
	tables := make(map[string]bool)
	count := 0

	sc := NewRecordScanner(text)
	for sc.Scan() {
		raw := sc.Record()
		rt, ok := LookupRecordType(raw.Type)
		if !ok {
			if !e.unhandled[raw.Type] {
				e.unhandled[raw.Type] = true
				e.logger.Printf("warning: unhandled record type: %s", raw.Type)
			}
			continue
		}

		rec, err := AssembleRecord(raw)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}

		stmt, args := insertStatement(rt.Table, rec)
		if _, ok := groups[stmt]; !ok {
			order = append(order, stmt)
		}
		groups[stmt] = append(groups[stmt], args)
		tables[rt.Table] = true
		count++
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	for table := range tables {
		ok, err := e.store.TableExists(table)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, &SchemaNotReadyError{Table: table}
		}
	}

	for _, stmt := range order {
		if err := e.writeGroup(stmt, groups[stmt]); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// IngestDir ingests every nightly feed file in dir in name order. Files
// with a "Parsed" activity entry are skipped outright unless reparse is
// set. It returns the names of the files it processed; the first fatal
// error stops the run, leaving earlier files' commits intact.
func (e *Engine) IngestDir(dir string, reparse bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasPrefix(name, "FBO") || strings.HasSuffix(name, ".sql") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var processed []string
	for _, name := range names {
		if !reparse {
			t, err := e.store.ParsedTime(name)
			if err != nil {
				return processed, err
			}
			if t != nil {
				continue
			}
		}
		if _, err := e.IngestFile(filepath.Join(dir, name)); err != nil {
			return processed, err
		}
		if err := e.store.Log("nightly", "Parsed "+name); err != nil {
			return processed, err
		}
		processed = append(processed, name)
	}
	return processed, nil
}
