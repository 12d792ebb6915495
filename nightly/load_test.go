package nightly

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleFeed = `<PRESOL>
<DATE>0115
<YEAR>24
<SOLNBR>FA8773-24-R-0001
<SUBJECT>Road grading
<DESC>Grade the access roads
</PRESOL>
<PRESOL>
<DATE>0115
<YEAR>24
<SOLNBR>FA8773-24-R-0002
<SUBJECT>Snow removal
</PRESOL>
<AWARD>
<DATE>0115
<YEAR>24
<AWDNBR>W912-24-C-0007
<AWDAMT>150000
</AWARD>
`

func writeFeed(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestEngine_IngestFile(t *testing.T) {
	store, buf := newTestStore(t)
	eng := NewEngine(store, store.logger)
	path := writeFeed(t, t.TempDir(), "FBOFeed20240115", sampleFeed)

	n, err := eng.IngestFile(path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if n != 3 {
		t.Fatalf("routed %d records, want 3", n)
	}
	if n, _ := store.TableLen("presol"); n != 2 {
		t.Fatalf("presol rows = %d, want 2", n)
	}
	if n, _ := store.TableLen("award"); n != 1 {
		t.Fatalf("award rows = %d, want 1", n)
	}

	var amounts []string
	if err := store.db.Raw("SELECT award_amount FROM award").Scan(&amounts).Error; err != nil {
		t.Fatal(err)
	}
	if len(amounts) != 1 || amounts[0] != "150000" {
		t.Fatalf("award_amount = %v", amounts)
	}
	if strings.Contains(buf.String(), "warning") {
		t.Fatalf("unexpected warning: %q", buf.String())
	}
}

func TestEngine_IngestFileIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	eng := NewEngine(store, store.logger)
	dir := t.TempDir()
	path := writeFeed(t, dir, "FBOFeed20240115", sampleFeed)

	if _, err := eng.IngestFile(path); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.IngestFile(path); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.TableLen("presol"); n != 2 {
		t.Fatalf("presol rows after re-ingest = %d, want 2", n)
	}

	// The same record arriving in a different file is also ignored.
	overlap := writeFeed(t, dir, "FBOFeed20240116", strings.SplitAfter(sampleFeed, "</PRESOL>\n")[0])
	if _, err := eng.IngestFile(overlap); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.TableLen("presol"); n != 2 {
		t.Fatalf("presol rows after overlapping file = %d, want 2", n)
	}
}

func TestEngine_UnknownRecordTypeWarnsOnce(t *testing.T) {
	store, buf := newTestStore(t)
	eng := NewEngine(store, store.logger)
	feed := "<NEWFANGLED>\n<DATE>0115\n<YEAR>24\n</NEWFANGLED>\n" +
		"<NEWFANGLED>\n<DATE>0116\n<YEAR>24\n</NEWFANGLED>\n" + sampleFeed
	path := writeFeed(t, t.TempDir(), "FBOFeed20240115", feed)

	n, err := eng.IngestFile(path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if n != 3 {
		t.Fatalf("routed %d records, want 3 (unknown type skipped)", n)
	}
	if got := strings.Count(buf.String(), "unhandled record type: NEWFANGLED"); got != 1 {
		t.Fatalf("warned %d times, want once:\n%s", got, buf.String())
	}
}

func TestEngine_ParseErrorCommitsNothing(t *testing.T) {
	store, _ := newTestStore(t)
	eng := NewEngine(store, store.logger)

	// Valid records followed by a record missing its year: the whole file
	// must abort with no partial commit.
	feed := sampleFeed + "<PRESOL>\n<DATE>0117\n</PRESOL>\n"
	path := writeFeed(t, t.TempDir(), "FBOFeed20240115", feed)

	if _, err := eng.IngestFile(path); err == nil {
		t.Fatal("expected error for record missing year")
	}
	if n, _ := store.TableLen("presol"); n != 0 {
		t.Fatalf("presol rows after aborted file = %d, want 0", n)
	}
}

func TestEngine_SchemaNotReady(t *testing.T) {
	store, _ := newTestStore(t)
	eng := NewEngine(store, store.logger)
	if err := store.db.Exec("DROP TABLE presol").Error; err != nil {
		t.Fatal(err)
	}
	path := writeFeed(t, t.TempDir(), "FBOFeed20240115", sampleFeed)

	_, err := eng.IngestFile(path)
	var notReady *SchemaNotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("err = %v, want SchemaNotReadyError", err)
	}
	if notReady.Table != "presol" {
		t.Fatalf("table = %q, want presol", notReady.Table)
	}
}

func TestEngine_IngestDir(t *testing.T) {
	store, _ := newTestStore(t)
	eng := NewEngine(store, store.logger)
	dir := t.TempDir()
	writeFeed(t, dir, "FBOFeed20240115", sampleFeed)
	writeFeed(t, dir, "FBOFeed20240115.sql", "-- marker, not a feed")
	writeFeed(t, dir, "notafeed.txt", "ignore me")

	processed, err := eng.IngestDir(dir, false)
	if err != nil {
		t.Fatalf("IngestDir: %v", err)
	}
	if len(processed) != 1 || processed[0] != "FBOFeed20240115" {
		t.Fatalf("processed = %v", processed)
	}

	// Second run skips the already-parsed file.
	processed, err = eng.IngestDir(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(processed) != 0 {
		t.Fatalf("reprocessed %v without reparse", processed)
	}

	// reparse forces it through again, still without duplicating rows.
	processed, err = eng.IngestDir(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(processed) != 1 {
		t.Fatalf("reparse processed = %v", processed)
	}
	if n, _ := store.TableLen("presol"); n != 2 {
		t.Fatalf("presol rows after reparse = %d, want 2", n)
	}
}

func TestEngine_IngestDirNameOrder(t *testing.T) {
	store, _ := newTestStore(t)
	eng := NewEngine(store, store.logger)
	dir := t.TempDir()
	writeFeed(t, dir, "FBOFeed20240116", sampleFeed)
	writeFeed(t, dir, "FBOFeed20240115", sampleFeed)

	processed, err := eng.IngestDir(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(processed) != 2 || processed[0] != "FBOFeed20240115" || processed[1] != "FBOFeed20240116" {
		t.Fatalf("processed = %v, want name order", processed)
	}
}
