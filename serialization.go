// ═══════════════════════════════════════════════════════════════════════════════
// SIDECAR CACHES: optional gzipped text files that short-circuit index lookups
// ═══════════════════════════════════════════════════════════════════════════════
// Two files live alongside the index directory (spec §6):
//
//   field_lengths.csv.gz
//     line 1: comma-separated field names, in column order
//     line 2: corpus size (N)
//     lines 3..N+2: one per docid, comma-separated integer lengths in the
//                   same field-name order as line 1
//
//   external_ids.txt.gz
//     line 1: discarded (header)
//     lines 2..: external ids, indexed by internal docid
//
// Both are read once by OpenEngine and never mutated, matching the spec's
// "read-only cache ... populated once at index open" (§5). Length-prefixed
// binary framing was the teacher's choice for its skip-list snapshot; these
// sidecars are plain delimited text instead, because that's the wire format
// the spec actually names.
// ═══════════════════════════════════════════════════════════════════════════════

package qryeval

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// fieldLengthMatrix is the parsed form of field_lengths.csv.gz: a dense
// per-field, per-docid length table.
type fieldLengthMatrix struct {
	fieldIndex map[string]int
	lengths    [][]int // lengths[docID][fieldIndex]
}

func (m *fieldLengthMatrix) length(field string, docID int) (int, bool) {
	col, ok := m.fieldIndex[field]
	if !ok || docID < 0 || docID >= len(m.lengths) {
		return 0, false
	}
	return m.lengths[docID][col], true
}

// loadFieldLengthMatrix reads and parses a gzipped field-length sidecar. It
// returns an error (not a panic) on any malformed line — callers treat a
// failed load as "no sidecar" and fall back to the live IndexReader.
func loadFieldLengthMatrix(path string) (*fieldLengthMatrix, error) {
	lines, err := readGzipLines(path)
	if err != nil {
		return nil, err
	}
	if len(lines) < 2 {
		return nil, fmt.Errorf("field-length sidecar %s: truncated header", path)
	}

	fieldNames := strings.Split(lines[0], ",")
	fieldIndex := make(map[string]int, len(fieldNames))
	for i, name := range fieldNames {
		fieldIndex[strings.TrimSpace(name)] = i
	}

	corpusSize, err := strconv.Atoi(strings.TrimSpace(lines[1]))
	if err != nil {
		return nil, fmt.Errorf("field-length sidecar %s: bad corpus size: %w", path, err)
	}
	if len(lines)-2 < corpusSize {
		return nil, fmt.Errorf("field-length sidecar %s: declared %d docs, found %d", path, corpusSize, len(lines)-2)
	}

	lengths := make([][]int, corpusSize)
	for docID := 0; docID < corpusSize; docID++ {
		cols := strings.Split(lines[2+docID], ",")
		if len(cols) != len(fieldNames) {
			return nil, fmt.Errorf("field-length sidecar %s: docid %d has %d columns, want %d", path, docID, len(cols), len(fieldNames))
		}
		row := make([]int, len(cols))
		for i, col := range cols {
			v, err := strconv.Atoi(strings.TrimSpace(col))
			if err != nil {
				return nil, fmt.Errorf("field-length sidecar %s: docid %d: %w", path, docID, err)
			}
			row[i] = v
		}
		lengths[docID] = row
	}

	return &fieldLengthMatrix{fieldIndex: fieldIndex, lengths: lengths}, nil
}

// loadExternalIDs reads and parses a gzipped external-id sidecar: a header
// line (discarded) followed by one external id per docid.
func loadExternalIDs(path string) ([]string, error) {
	lines, err := readGzipLines(path)
	if err != nil {
		return nil, err
	}
	if len(lines) < 1 {
		return nil, fmt.Errorf("external-id sidecar %s: missing header", path)
	}
	return lines[1:], nil
}

// readGzipLines decompresses path and splits it into lines, trimming the
// final empty line a trailing newline produces.
func readGzipLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var lines []string
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// writeFieldLengthMatrix and writeExternalIDs are the encode side of the
// sidecar format — used by index-build tooling (not the query engine itself)
// to produce the caches OpenEngine later reads. Kept here to keep the wire
// format's encode/decode halves next to each other, mirroring the teacher's
// Encode/Decode pairing in this same file.

func writeFieldLengthMatrix(path string, fieldNames []string, lengths [][]int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()

	w := bufio.NewWriter(gz)
	defer w.Flush()

	if _, err := fmt.Fprintln(w, strings.Join(fieldNames, ",")); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, len(lengths)); err != nil {
		return err
	}
	for _, row := range lengths {
		cols := make([]string, len(row))
		for i, v := range row {
			cols[i] = strconv.Itoa(v)
		}
		if _, err := fmt.Fprintln(w, strings.Join(cols, ",")); err != nil {
			return err
		}
	}
	return nil
}

// WriteSidecars materializes both gzipped sidecars for a frozen MemoryIndex
// next to the rest of the index at dir, in the same field-name order every
// time (knownFields sorted), so a later loadFieldLengthMatrix's column
// lookup lines up with what was written here. Intended for index-build
// tooling (e.g. cmd/blazequery with its buildSidecars run parameter set),
// not the query path
// itself — OpenEngine only ever reads what this produces.
func WriteSidecars(dir string, mi *MemoryIndex) error {
	mi.mu.Lock()
	numDocs := mi.numDocs
	externalIDs := append([]string(nil), mi.externalIDs...)
	fieldLen := mi.fieldLen
	mi.mu.Unlock()

	fieldNames := make([]string, 0, len(knownFields))
	for field := range knownFields {
		fieldNames = append(fieldNames, field)
	}
	sort.Strings(fieldNames)

	lengths := make([][]int, numDocs)
	for docID := 0; docID < numDocs; docID++ {
		row := make([]int, len(fieldNames))
		for i, field := range fieldNames {
			if lens := fieldLen[field]; docID < len(lens) {
				row[i] = lens[docID]
			}
		}
		lengths[docID] = row
	}

	if err := writeFieldLengthMatrix(filepath.Join(dir, "field_lengths.csv.gz"), fieldNames, lengths); err != nil {
		return fmt.Errorf("writing field-length sidecar: %w", err)
	}
	if err := writeExternalIDs(filepath.Join(dir, "external_ids.txt.gz"), externalIDs); err != nil {
		return fmt.Errorf("writing external-id sidecar: %w", err)
	}
	return nil
}

func writeExternalIDs(path string, externalIDs []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()

	w := bufio.NewWriter(gz)
	defer w.Flush()

	if _, err := fmt.Fprintln(w, "external_id"); err != nil {
		return err
	}
	for _, id := range externalIDs {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return err
		}
	}
	return nil
}
