package nightly

import (
	"fmt"
	"strings"
)

// RawRecord is one record's worth of feed lines, opening tag line through
// closing tag line inclusive.
type RawRecord struct {
	Type  string
	Lines []string
}

// RecordScanner walks a feed file's text record by record. The feed has no
// reliable blank-line separation between records, so the scanner keys off
// each record's opening tag and its exact closing tag instead.
type RecordScanner struct {
	lines []string
	pos   int
	rec   RawRecord
	err   error
}

func NewRecordScanner(text string) *RecordScanner {
	return &RecordScanner{lines: strings.Split(text, "\n")}
}

// Scan advances to the next record. It returns false at end of input or on
// a malformed file; Err distinguishes the two.
func (s *RecordScanner) Scan() bool {
	if s.err != nil {
		return false
	}
	var rec []string
	currType := ""
	for ; s.pos < len(s.lines); s.pos++ {
		line := s.lines[s.pos]
		if currType == "" {
			if strings.TrimSpace(line) == "" {
				continue
			}
			tag, _, err := SplitTagLine(line)
			if err != nil {
				s.err = fmt.Errorf("line %d: expected a record tag, got %q: %w", s.pos+1, line, err)
				return false
			}
			currType = tag
			rec = append(rec, line)
			continue
		}
		rec = append(rec, line)
		if line == "</"+currType+">" {
			s.rec = RawRecord{Type: currType, Lines: rec}
			s.pos++
			return true
		}
	}
	// A record still open at EOF is dropped.
	return false
}

// Record returns the record produced by the last successful Scan.
func (s *RecordScanner) Record() RawRecord { return s.rec }

// Err returns the fatal parse error that stopped the scanner, if any.
func (s *RecordScanner) Err() error { return s.err }

// Reset rewinds the scanner to the start of its input.
func (s *RecordScanner) Reset() {
	s.pos = 0
	s.rec = RawRecord{}
	s.err = nil
}
