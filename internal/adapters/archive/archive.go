// Package archive implements the archive file format (spec.md §6, §9
// "Archived ranges are load-bearing for audit-gap detection"): a text file
// whose first line is a JSON header, followed by TABLE:/COLUMNS:/DATA:
// lines per table, with an optional gzip wrapper.
package archive

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Header is the first line of an archive file.
type Header struct {
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	Options   map[string]any `json:"options"`
	Tables    []string       `json:"tables"`
}

// Table is one table's archived rows, written as COLUMNS: once and one
// DATA: line per row.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Write serializes header and tables to path, applying gzip when gz is
// true (adding the .gz suffix the caller is responsible for using in
// path).
func Write(path string, header Header, tables []Table, gz bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f

	var gzw *gzip.Writer

	if gz {
		gzw = gzip.NewWriter(f)
		defer gzw.Close()

		w = gzw
	}

	bw := bufio.NewWriter(w)
	defer bw.Flush()

	header.Version = 1
	header.Tables = tableNames(tables)

	headerLine, err := json.Marshal(header)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(bw, string(headerLine)); err != nil {
		return err
	}

	for _, t := range tables {
		if err := writeTable(bw, t); err != nil {
			return err
		}
	}

	return nil
}

func writeTable(bw *bufio.Writer, t Table) error {
	if _, err := fmt.Fprintln(bw, "TABLE:"+t.Name); err != nil {
		return err
	}

	cols, err := json.Marshal(t.Columns)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(bw, "COLUMNS:"+string(cols)); err != nil {
		return err
	}

	for _, row := range t.Rows {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}

		if _, err := fmt.Fprintln(bw, "DATA:"+string(data)); err != nil {
			return err
		}
	}

	return nil
}

func tableNames(tables []Table) []string {
	out := make([]string, len(tables))
	for i, t := range tables {
		out[i] = t.Name
	}

	return out
}

// Read parses an archive file back into its header and tables. gz must
// match how the file was written — callers typically decide this from the
// path's .gz suffix.
func Read(path string, gz bool) (Header, []Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()

	var r io.Reader = f

	if gz {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return Header{}, nil, err
		}
		defer gzr.Close()

		r = gzr
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var header Header

	var tables []Table

	var current *Table

	first := true

	for scanner.Scan() {
		line := scanner.Text()

		if first {
			if err := json.Unmarshal([]byte(line), &header); err != nil {
				return Header{}, nil, err
			}

			first = false

			continue
		}

		switch {
		case strings.HasPrefix(line, "TABLE:"):
			if current != nil {
				tables = append(tables, *current)
			}

			current = &Table{Name: strings.TrimPrefix(line, "TABLE:")}
		case strings.HasPrefix(line, "COLUMNS:"):
			if current == nil {
				return Header{}, nil, fmt.Errorf("archive: COLUMNS line before any TABLE line")
			}

			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "COLUMNS:")), &current.Columns); err != nil {
				return Header{}, nil, err
			}
		case strings.HasPrefix(line, "DATA:"):
			if current == nil {
				return Header{}, nil, fmt.Errorf("archive: DATA line before any TABLE line")
			}

			var row []any
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "DATA:")), &row); err != nil {
				return Header{}, nil, err
			}

			current.Rows = append(current.Rows, row)
		}
	}

	if current != nil {
		tables = append(tables, *current)
	}

	if err := scanner.Err(); err != nil {
		return Header{}, nil, err
	}

	return header, tables, nil
}
