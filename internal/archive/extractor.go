// Package archive extracts URL lines from uploaded ZIP archives.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoCSVMember signals that the archive contains no CSV file to ingest.
var ErrNoCSVMember = errors.New("no csv file found in the zip archive")

// Reader streams URL lines out of the first CSV member of a ZIP archive.
// It is a single-use, forward-only reader.
type Reader struct {
	member io.ReadCloser
	csv    *csv.Reader
	err    error
}

// Open locates the first member (in archive order) whose name ends in .csv
// and prepares it for line-by-line reading. Archives with several CSV members
// use only the first; archives with none fail with ErrNoCSVMember.
func Open(archive []byte) (*Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open zip archive: %w", err)
	}

	var member *zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			member = f
			break
		}
	}
	if member == nil {
		return nil, ErrNoCSVMember
	}

	rc, err := member.Open()
	if err != nil {
		return nil, fmt.Errorf("open csv member %q: %w", member.Name, err)
	}

	cr := csv.NewReader(rc)
	cr.FieldsPerRecord = -1

	return &Reader{member: rc, csv: cr}, nil
}

// Next returns the first field of the next row. One URL per row; any further
// fields are ignored. It returns false at end of input or on a read error,
// which is then available via Err.
func (r *Reader) Next() (string, bool) {
	if r.err != nil {
		return "", false
	}
	for {
		record, err := r.csv.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = fmt.Errorf("read csv row: %w", err)
			}
			return "", false
		}
		if len(record) == 0 {
			continue
		}
		return record[0], true
	}
}

// Err reports the first read error encountered by Next, if any.
func (r *Reader) Err() error {
	return r.err
}

// Close releases the underlying archive member.
func (r *Reader) Close() error {
	if r.member == nil {
		return nil
	}
	if err := r.member.Close(); err != nil {
		return fmt.Errorf("close csv member: %w", err)
	}
	return nil
}

// Lines reads every URL line from the archive in one pass. The ingestion
// runner needs the total up front, so it materializes the sequence anyway.
func Lines(archive []byte) ([]string, error) {
	r, err := Open(archive)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var lines []string
	for {
		line, ok := r.Next()
		if !ok {
			break
		}
		lines = append(lines, line)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
