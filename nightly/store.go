package nightly

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// Store owns the one database connection a pipeline run uses. Record
// tables are driven by the schema registry rather than mapped structs, so
// everything here goes through raw SQL.
type Store struct {
	db     *gorm.DB
	logger *log.Logger
}

// OpenStore opens (creating if needed) the sqlite database described by
// cfg. Only the sqlite3 driver is supported.
func OpenStore(cfg DBConfig, logger *log.Logger) (*Store, error) {
	if cfg.Driver != "sqlite3" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if logger == nil {
		logger = log.Default()
	}
	db, err := gorm.Open(sqlite.Open(cfg.Open), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LogEntry is one row of the append-only activity log. Entries double as
// the pipeline's resumability oracle: "Parsed <fname>" gates reparsing and
// "Downloaded <fname>" gates re-downloading.
type LogEntry struct {
	RowID    int64
	Datetime string
	Datatype string
	Msg      string
}

// Time parses the entry's timestamp.
func (e LogEntry) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.Datetime)
}

// Map returns the entry keyed by column name, rowid included as "id".
func (e LogEntry) Map() map[string]any {
	return map[string]any{"id": e.RowID, "datetime": e.Datetime, "datatype": e.Datatype, "msg": e.Msg}
}

// Log appends an activity entry stamped with the current time.
func (s *Store) Log(category, message string) error {
	return s.LogAt(category, message, time.Now())
}

// LogAt appends an activity entry with an explicit timestamp. The log is
// append-only; nothing updates or deletes entries.
func (s *Store) LogAt(category, message string, at time.Time) error {
	s.logger.Printf("%s: %s", category, message)
	return s.db.Exec("INSERT INTO log VALUES(?,?,?)",
		at.Format(time.RFC3339Nano), category, message).Error
}

func (s *Store) lastLogTime(msg string) (*time.Time, error) {
	var stamps []string
	err := s.db.Raw("SELECT datetime FROM log WHERE msg=? ORDER BY rowid", msg).Scan(&stamps).Error
	if err != nil {
		return nil, err
	}
	if len(stamps) == 0 {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, stamps[len(stamps)-1])
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DownloadTime returns when fname was last logged as downloaded, or nil if
// it never was.
func (s *Store) DownloadTime(fname string) (*time.Time, error) {
	return s.lastLogTime("Downloaded " + fname)
}

// ParsedTime returns when fname was last logged as parsed, or nil if it
// never was.
func (s *Store) ParsedTime(fname string) (*time.Time, error) {
	return s.lastLogTime("Parsed " + fname)
}

// LogByRowID returns the single entry with the given rowid, or nil.
func (s *Store) LogByRowID(id int64) (*LogEntry, error) {
	var rows []LogEntry
	err := s.db.Raw("SELECT rowid AS row_id, datetime, datatype, msg FROM log WHERE rowid=?", id).Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// Logs returns up to limit entries, newest first, skipping offset rows.
func (s *Store) Logs(limit, offset int) ([]LogEntry, error) {
	var rows []LogEntry
	err := s.db.Raw("SELECT rowid AS row_id, datetime, datatype, msg FROM log ORDER BY datetime DESC LIMIT ? OFFSET ?",
		limit, offset).Scan(&rows).Error
	return rows, err
}

// TableExists reports whether table is present in the schema.
func (s *Store) TableExists(table string) (bool, error) {
	var n int64
	err := s.db.Raw("SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n).Error
	return n > 0, err
}

// Header returns table's column names in schema order.
func (s *Store) Header(table string) ([]string, error) {
	var cols []string
	err := s.db.Raw("SELECT name FROM pragma_table_info(?)", table).Scan(&cols).Error
	return cols, err
}

// TableLen returns the table's total row count.
func (s *Store) TableLen(table string) (int64, error) {
	var n int64
	err := s.db.Raw(fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&n).Error
	return n, err
}

// ColumnCounts returns, for each named column (every column when names is
// empty), how many rows hold a non-null value.
func (s *Store) ColumnCounts(table string, columns []string) (map[string]int64, error) {
	if len(columns) == 0 {
		var err error
		columns, err = s.Header(table)
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string]int64, len(columns))
	for _, col := range columns {
		var n int64
		err := s.db.Raw(fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS NOT NULL", table, col)).Scan(&n).Error
		if err != nil {
			return nil, err
		}
		out[col] = n
	}
	return out, nil
}

// UnusedColumns lists columns of table that are empty in every row.
func (s *Store) UnusedColumns(table string) ([]string, error) {
	counts, err := s.ColumnCounts(table, nil)
	if err != nil {
		return nil, err
	}
	cols, err := s.Header(table)
	if err != nil {
		return nil, err
	}
	var unused []string
	for _, col := range cols {
		if counts[col] == 0 {
			unused = append(unused, col)
		}
	}
	return unused, nil
}

// LatestDate returns the latest date found in table.field, formatted
// YYYY-MM-DD, or "" when the table is empty.
func (s *Store) LatestDate(table, field string) (string, error) {
	var dates []string
	err := s.db.Raw(fmt.Sprintf("SELECT %s FROM %s ORDER BY date(%s) DESC LIMIT 1", field, table, field)).Scan(&dates).Error
	if err != nil || len(dates) == 0 {
		return "", err
	}
	d := dates[0]
	if len(d) > 10 {
		d = d[:10]
	}
	return d, nil
}

// Dedupe removes exact-duplicate rows from table, keeping the copy with
// the greatest rowid. Duplicates predate the sha256 uniqueness constraint;
// this is corrective maintenance, not part of the nightly pipeline.
func (s *Store) Dedupe(table string) error {
	var total, distinct int64
	if err := s.db.Raw(fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&total).Error; err != nil {
		return err
	}
	if err := s.db.Raw(fmt.Sprintf("SELECT count(*) FROM (SELECT DISTINCT * FROM %s)", table)).Scan(&distinct).Error; err != nil {
		return err
	}
	if total == distinct {
		return nil
	}

	s.logger.Printf("warning: duplicate rows found in %s", table)
	s.logger.Printf("cleaning duplicate rows from %s", table)
	cols, err := s.Header(table)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE rowid NOT IN (SELECT max(rowid) FROM %s GROUP BY %s)",
		table, table, strings.Join(cols, ", "))
	return s.db.Exec(stmt).Error
}
