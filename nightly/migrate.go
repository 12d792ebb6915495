package nightly

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Migration is one goose migration: forward and backward SQL under a
// sequence-numbered filename.
type Migration struct {
	Filename string
	Up       string
	Down     string
}

const logTableSQL = `CREATE TABLE IF NOT EXISTS log (
datetime text,
datatype text,
msg text);
`

// Migrations returns the full migration set: the activity log table plus
// one table per registry record type.
func Migrations() []Migration {
	out := make([]Migration, 0, len(RecordTypes)+1)
	out = append(out, Migration{Filename: "001_create_log.sql", Up: logTableSQL, Down: "DROP TABLE log;"})
	for i := range RecordTypes {
		out = append(out, RecordTypes[i].Migration())
	}
	return out
}

// Render returns the migration as goose file content.
func (m Migration) Render() string {
	return fmt.Sprintf("-- +goose Up\n%s\n-- +goose Down\n%s\n", m.Up, m.Down)
}

// WriteMigrations renders every migration into dir, skipping files whose
// content is already current. It returns the paths it wrote.
func WriteMigrations(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, m := range Migrations() {
		p := filepath.Join(dir, m.Filename)
		content := m.Render()
		if old, err := os.ReadFile(p); err == nil && string(old) == content {
			continue
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return nil, err
		}
		written = append(written, p)
	}
	return written, nil
}

// RunGoose brings dbPath's schema up to date by invoking the external
// goose binary against the migrations in dir. The combined output is
// returned either way so callers can surface goose's complaints.
func RunGoose(dbPath, dir string) ([]byte, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("db %s does not exist, cannot migrate: %w", dbPath, err)
	}
	cmd := exec.Command("goose", "-dir", dir, "sqlite3", dbPath, "up")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("goose up: %w", err)
	}
	return out, nil
}

// EnsureSchema applies every migration's forward SQL directly, for setups
// (and tests) that do not delegate to the goose binary. The migration
// files written by WriteMigrations remain the source of truth for
// deployments that do.
func (s *Store) EnsureSchema() error {
	for _, m := range Migrations() {
		if err := s.db.Exec(m.Up).Error; err != nil {
			return fmt.Errorf("apply %s: %w", m.Filename, err)
		}
	}
	return nil
}
