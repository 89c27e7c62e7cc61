package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Row is one data row of the source file. Line is the 1-based line number in
// the original file, header row included, so error reports point at the file
// the operator uploaded rather than a batch offset.
type Row struct {
	Line   int
	Values []string
}

// Table is a fully parsed source file.
type Table struct {
	Headers []string
	Rows    []Row
}

// ParseTable reads an entire uploaded file into memory. Used for small files
// and for xlsx, which the reader library materializes anyway.
func ParseTable(filename string, payload []byte) (Table, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return Table{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (Table, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	var records []rawRecord
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("failed to read csv: %w", err)
		}
		line, _ := csvReader.FieldPos(0)
		records = append(records, rawRecord{line: line, values: record})
	}

	return normalizeTable(records)
}

func parseExcel(payload []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return Table{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	records := make([]rawRecord, len(rows))
	for idx, values := range rows {
		records[idx] = rawRecord{line: idx + 1, values: values}
	}
	return normalizeTable(records)
}

// rawRecord pairs a parsed record with its 1-based line number in the
// original file. CSV blank lines never surface as records, so the line
// number has to be carried explicitly rather than derived from the index.
type rawRecord struct {
	line   int
	values []string
}

// normalizeTable treats the first non-empty record as the header, pads
// ragged rows, and drops rows with no values at all.
func normalizeTable(records []rawRecord) (Table, error) {
	if len(records) == 0 {
		return Table{}, errors.New("no rows found in file")
	}

	var table Table
	headerSeen := false

	for _, record := range records {
		if isEmptyRow(record.values) {
			continue
		}
		if !headerSeen {
			table.Headers = trimHeaders(record.values)
			headerSeen = true
			continue
		}
		table.Rows = append(table.Rows, Row{
			Line:   record.line,
			Values: padRow(record.values, len(table.Headers)),
		})
	}

	if !headerSeen {
		return Table{}, errors.New("header row could not be detected")
	}

	return table, nil
}

func trimHeaders(record []string) []string {
	headers := make([]string, len(record))
	for i, value := range record {
		headers[i] = strings.TrimSpace(value)
	}
	return headers
}

func isEmptyRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func padRow(record []string, length int) []string {
	if len(record) >= length {
		if len(record) > length {
			slog.Debug("dropping trailing cells beyond header width",
				"cells", len(record), "headers", length)
		}
		return record[:length]
	}
	padded := make([]string, length)
	copy(padded, record)
	return padded
}

func readFile(path string) ([]byte, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return payload, nil
}

// csvStream reads a CSV file incrementally. It backs the streaming row source
// so memory stays bounded for arbitrarily large uploads.
type csvStream struct {
	file    *os.File
	reader  *csv.Reader
	headers []string
}

func openCSVStream(path string) (*csvStream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	buffered := bufio.NewReader(file)
	if prefix, err := buffered.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = buffered.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(buffered)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	stream := &csvStream{file: file, reader: csvReader}
	if err := stream.readHeader(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return stream, nil
}

func (s *csvStream) readHeader() error {
	for {
		record, err := s.reader.Read()
		if err == io.EOF {
			return errors.New("header row could not be detected")
		}
		if err != nil {
			return fmt.Errorf("failed to read csv header: %w", err)
		}
		if isEmptyRow(record) {
			continue
		}
		s.headers = trimHeaders(record)
		return nil
	}
}

// Next returns the next non-empty data row, or ok=false at end of file.
func (s *csvStream) Next() (Row, bool, error) {
	for {
		record, err := s.reader.Read()
		if err == io.EOF {
			return Row{}, false, nil
		}
		if err != nil {
			return Row{}, false, fmt.Errorf("failed to read csv row: %w", err)
		}
		if isEmptyRow(record) {
			continue
		}
		line, _ := s.reader.FieldPos(0)
		return Row{Line: line, Values: padRow(record, len(s.headers))}, true, nil
	}
}

func (s *csvStream) Close() error {
	return s.file.Close()
}

// countCSVRows scans the file once and returns the number of non-empty data
// rows, so the job can report totals and batch counts before streaming.
func countCSVRows(path string) (int, error) {
	stream, err := openCSVStream(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stream.Close() }()

	count := 0
	for {
		_, ok, err := stream.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return count, nil
		}
		count++
	}
}
