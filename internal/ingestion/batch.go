package ingestion

import (
	"context"
	"path/filepath"
	"strings"
)

// Batch is one bounded slice of source rows plus its sequence index. Batches
// are ephemeral; only the counts they contribute outlive them.
type Batch struct {
	Index int
	Rows  []Row
}

// RowSource yields the file's data rows in fixed-size batches. It is the
// seam between the orchestrator and the two reading strategies: a buffered
// source that holds the parsed table, and a streaming source that reads
// incrementally and bounds memory to one batch. Every batch holds exactly
// batchSize rows except possibly the last.
type RowSource interface {
	Headers() []string
	// TotalRows is the number of data rows the source will yield in total.
	TotalRows() int
	// Next returns the next batch; ok is false after the final batch.
	Next(ctx context.Context) (batch Batch, ok bool, err error)
	Close() error
}

// TotalBatches returns ceil(totalRows / batchSize).
func TotalBatches(totalRows, batchSize int) int {
	if totalRows <= 0 || batchSize <= 0 {
		return 0
	}
	return (totalRows + batchSize - 1) / batchSize
}

// bufferedRowSource serves batches from an already-parsed table.
type bufferedRowSource struct {
	table     Table
	batchSize int
	next      int
	index     int
}

// NewBufferedRowSource wraps a parsed table as a row source.
func NewBufferedRowSource(table Table, batchSize int) RowSource {
	return &bufferedRowSource{table: table, batchSize: batchSize}
}

func (s *bufferedRowSource) Headers() []string { return s.table.Headers }

func (s *bufferedRowSource) TotalRows() int { return len(s.table.Rows) }

func (s *bufferedRowSource) Next(ctx context.Context) (Batch, bool, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, false, err
	}
	if s.next >= len(s.table.Rows) {
		return Batch{}, false, nil
	}

	end := s.next + s.batchSize
	if end > len(s.table.Rows) {
		end = len(s.table.Rows)
	}

	batch := Batch{Index: s.index, Rows: s.table.Rows[s.next:end]}
	s.next = end
	s.index++
	return batch, true, nil
}

func (s *bufferedRowSource) Close() error { return nil }

// streamingRowSource reads a CSV file twice: a counting pass for totals,
// then an incremental pass that never holds more than one batch in memory.
type streamingRowSource struct {
	stream    *csvStream
	totalRows int
	batchSize int
	index     int
	done      bool
}

// NewStreamingRowSource opens a CSV file for batch-at-a-time reading.
func NewStreamingRowSource(path string, batchSize int) (RowSource, error) {
	totalRows, err := countCSVRows(path)
	if err != nil {
		return nil, err
	}

	stream, err := openCSVStream(path)
	if err != nil {
		return nil, err
	}

	return &streamingRowSource{
		stream:    stream,
		totalRows: totalRows,
		batchSize: batchSize,
	}, nil
}

func (s *streamingRowSource) Headers() []string { return s.stream.headers }

func (s *streamingRowSource) TotalRows() int { return s.totalRows }

func (s *streamingRowSource) Next(ctx context.Context) (Batch, bool, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, false, err
	}
	if s.done {
		return Batch{}, false, nil
	}

	rows := make([]Row, 0, s.batchSize)
	for len(rows) < s.batchSize {
		row, ok, err := s.stream.Next()
		if err != nil {
			return Batch{}, false, err
		}
		if !ok {
			s.done = true
			break
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return Batch{}, false, nil
	}

	batch := Batch{Index: s.index, Rows: rows}
	s.index++
	return batch, true, nil
}

func (s *streamingRowSource) Close() error { return s.stream.Close() }

// OpenRowSource selects the reading strategy for a spooled upload: CSV files
// at or above streamThreshold bytes stream, everything else is buffered.
// xlsx is always buffered since the format cannot be read incrementally.
func OpenRowSource(path, filename string, fileSize int64, batchSize int, streamThreshold int64) (RowSource, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".csv" && streamThreshold > 0 && fileSize >= streamThreshold {
		return NewStreamingRowSource(path, batchSize)
	}

	payload, err := readFile(path)
	if err != nil {
		return nil, err
	}
	table, err := ParseTable(filename, payload)
	if err != nil {
		return nil, err
	}
	return NewBufferedRowSource(table, batchSize), nil
}
