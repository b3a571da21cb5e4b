// Package parser turns an attachment's raw bytes into row maps keyed by raw
// header strings, handling CSV encoding detection and XLSX sheet detection
// (§4.2).
package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"useruploadagent/pkg/agenterr"
	"useruploadagent/pkg/aiadapter"
	"useruploadagent/pkg/normalizer"

	"github.com/xuri/excelize/v2"
)

// DefaultMaxAttachmentBytes is the per-attachment size ceiling (§4.2).
const DefaultMaxAttachmentBytes = 30 * 1024 * 1024

// MaxSheetPreviewRows is how many leading rows of each candidate sheet are
// shown to the AI Adapter for sheet detection (§4.2).
const MaxSheetPreviewRows = 10

// Result is one parsed dataset: raw header strings, row maps keyed by those
// headers, and the provenance metadata spec.md §4.2 requires.
type Result struct {
	Headers           []string
	Rows              []map[string]string
	RowNumbers        []int // 1-based source row number for each entry in Rows, preserved across dropped blank rows
	Encoding          string
	SheetName         string
	HeaderRowIndex    int
	DataStartRowIndex int
}

// Parse dispatches on the attachment's file extension. ai may be nil, in
// which case XLSX sheet-detection ambiguity is always a parse failure
// (there is no fallback to consult).
func Parse(ctx context.Context, ai aiadapter.Client, filename string, content []byte, maxBytes int64) (*Result, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAttachmentBytes
	}
	if int64(len(content)) > maxBytes {
		return nil, agenterr.NewParseError(filename, fmt.Sprintf("attachment exceeds %d byte limit", maxBytes))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		return parseCSV(filename, content)
	case ".xlsx":
		return parseXLSX(ctx, ai, filename, content)
	default:
		return nil, agenterr.NewParseError(filename, fmt.Sprintf("unrecognized file extension %q", ext))
	}
}

// candidateEncodings are tried in the order spec.md §4.2 mandates.
var candidateEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"utf-8", nil}, // nil = bytes already valid UTF-8, no transform needed
	{"utf-16be", unicode.UTF16(unicode.BigEndian, unicode.UseBOM)},
	{"utf-16le", unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)},
	{"iso-8859-1", charmap.ISO8859_1},
	{"windows-1252", charmap.Windows1252},
}

func parseCSV(filename string, content []byte) (*Result, error) {
	for _, cand := range candidateEncodings {
		decoded, err := decodeBytes(content, cand.enc)
		if err != nil {
			continue
		}
		if _, err := readFirstLines(decoded, 3); err != nil {
			continue
		}

		// This encoding's first three lines decode cleanly — §4.2 says it
		// wins; a later parse failure deeper in the file is reported as a
		// genuine parse error rather than a reason to try another encoding.
		reader := csv.NewReader(bytes.NewReader(decoded))
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		allRows, err := reader.ReadAll()
		if err != nil {
			return nil, agenterr.NewParseError(filename, fmt.Sprintf("csv parse error after selecting %s encoding: %v", cand.name, err))
		}
		return buildResultFromRows(filename, cand.name, allRows)
	}
	return nil, agenterr.NewParseError(filename, "could not decode file with any supported encoding")
}

func decodeBytes(content []byte, enc encoding.Encoding) ([]byte, error) {
	if enc == nil {
		if !isValidUTF8(content) {
			return nil, fmt.Errorf("not valid utf-8")
		}
		return content, nil
	}
	reader := transform.NewReader(bytes.NewReader(content), enc.NewDecoder())
	return io.ReadAll(reader)
}

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}

// readFirstLines reads up to n lines from a CSV reader without erroring,
// implementing §4.2's "first that reads the first three lines without
// error wins" encoding probe. Fewer than n lines (io.EOF) still counts as a
// clean read.
func readFirstLines(decoded []byte, n int) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	var rows [][]string
	for i := 0; i < n; i++ {
		row, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// buildResultFromRows trims every cell, drops entirely-blank rows, and
// splits the header row from the data rows.
func buildResultFromRows(filename, encodingName string, rows [][]string) (*Result, error) {
	trimmed := make([][]string, 0, len(rows))
	origIndex := make([]int, 0, len(rows))
	for i, row := range rows {
		if isBlankRow(row) {
			continue
		}
		out := make([]string, len(row))
		for j, cell := range row {
			out[j] = strings.TrimSpace(cell)
		}
		trimmed = append(trimmed, out)
		origIndex = append(origIndex, i)
	}
	if len(trimmed) == 0 {
		return nil, agenterr.NewParseError(filename, "no non-blank rows found")
	}

	headers := trimmed[0]
	rowMaps := make([]map[string]string, 0, len(trimmed)-1)
	rowNumbers := make([]int, 0, len(trimmed)-1)
	for k, row := range trimmed[1:] {
		m := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				m[h] = row[i]
			} else {
				m[h] = ""
			}
		}
		rowMaps = append(rowMaps, m)
		// 1-based source row number, preserved across dropped blank rows.
		rowNumbers = append(rowNumbers, origIndex[k+1]+1)
	}

	return &Result{
		Headers:           headers,
		Rows:              rowMaps,
		RowNumbers:        rowNumbers,
		Encoding:          encodingName,
		HeaderRowIndex:    0,
		DataStartRowIndex: 1,
	}, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseXLSX(ctx context.Context, ai aiadapter.Client, filename string, content []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, agenterr.NewParseError(filename, fmt.Sprintf("not a valid xlsx workbook: %v", err))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, agenterr.NewParseError(filename, "workbook has no sheets")
	}

	if len(sheets) == 1 {
		rows, err := f.GetRows(sheets[0])
		if err == nil && len(rows) > 0 && normalizer.HasCanonicalHeader(rows[0]) {
			return buildResultFromRows(filename, "xlsx", rows)
		}
	}

	sheetName, headerRow, dataStartRow, err := detectSheet(ctx, ai, f, sheets)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, agenterr.NewParseError(filename, fmt.Sprintf("reading sheet %q: %v", sheetName, err))
	}
	if headerRow >= len(rows) {
		return nil, agenterr.NewParseError(filename, "detected header row is beyond sheet bounds")
	}

	// Reconstruct a CSV-shaped 2D slice starting at the detected header row
	// so buildResultFromRows' blank-row and header/data-split logic applies
	// uniformly to both formats.
	relevant := rows[headerRow:]
	result, err := buildResultFromRows(filename, "xlsx", relevant)
	if err != nil {
		return nil, err
	}
	for i := range result.RowNumbers {
		result.RowNumbers[i] += headerRow
	}
	result.SheetName = sheetName
	result.HeaderRowIndex = headerRow
	result.DataStartRowIndex = dataStartRow
	return result, nil
}

// detectSheet invokes the AI Adapter with a preview of each sheet and
// requires a non-"low" confidence verdict (§4.2).
func detectSheet(ctx context.Context, ai aiadapter.Client, f *excelize.File, sheets []string) (sheetName string, headerRow, dataStartRow int, err error) {
	if ai == nil {
		return "", 0, 0, agenterr.NewParseError("", "multiple sheets and no canonical header row found; AI Adapter unavailable to disambiguate")
	}

	previews := make([]aiadapter.SheetPreview, 0, len(sheets))
	for _, name := range sheets {
		rows, ferr := f.GetRows(name)
		if ferr != nil {
			continue
		}
		if len(rows) > MaxSheetPreviewRows {
			rows = rows[:MaxSheetPreviewRows]
		}
		previews = append(previews, aiadapter.SheetPreview{SheetName: name, Rows: rows})
	}

	detection, derr := ai.DetectSheet(ctx, previews)
	if derr != nil {
		return "", 0, 0, agenterr.NewParseError("", fmt.Sprintf("AI Adapter sheet detection failed: %v", derr))
	}
	if detection.Confidence == aiadapter.ConfidenceLow {
		return "", 0, 0, agenterr.NewParseError("", "AI Adapter sheet detection returned low confidence")
	}
	if detection.SheetName == "" {
		return "", 0, 0, agenterr.NewParseError("", "AI Adapter did not identify a sheet")
	}
	return detection.SheetName, detection.HeaderRow, detection.DataStartRow, nil
}
