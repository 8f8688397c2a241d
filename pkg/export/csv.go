package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// DefaultSeparator is the CSV field separator.
const DefaultSeparator = ","

// ParseSeparator validates a one-character separator. Empty selects the
// default and the string "\t" selects a tab.
func ParseSeparator(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("invalid csv separator %q", s)
	}
	return r, nil
}

// WriteCSV renders table with a header row.
func WriteCSV(w io.Writer, table *Table, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep
	if err := cw.Write(table.ColumnNames()); err != nil {
		return err
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = FormatCell(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderCSV returns the table as CSV bytes.
func RenderCSV(table *Table, sep rune) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, table, sep); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the file a table of a run is written to.
func FileName(run RunInfo, table *Table) string {
	return fmt.Sprintf("%s_%s.csv", run.Label(), table.Name)
}

// CSVSink writes one CSV file per table into a directory.
type CSVSink struct {
	dir string
	sep rune
}

// NewCSVSink creates dir if needed.
func NewCSVSink(dir string, sep rune) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	if sep == 0 {
		sep = ','
	}
	return &CSVSink{dir: dir, sep: sep}, nil
}

func (s *CSVSink) Name() string { return "csv" }

// Path returns where a table of run is written.
func (s *CSVSink) Path(run RunInfo, table *Table) string {
	return filepath.Join(s.dir, FileName(run, table))
}

// Export writes the table to a temporary file and renames it into place.
func (s *CSVSink) Export(ctx context.Context, run RunInfo, table *Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, table, s.sep); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path(run, table))
}

func (s *CSVSink) Close() error { return nil }
