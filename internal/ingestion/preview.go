package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/contactkit/importer/internal/domain"
)

// PreviewRequest describes a dry run over the head of a file. Nothing is
// persisted; the result shows what a real import would do.
type PreviewRequest struct {
	Filename string
	Mapping  domain.ColumnMapping
	Data     io.Reader
	Limit    int
}

// PreviewColumn reports how one source header would be handled.
type PreviewColumn struct {
	Header string           `json:"header"`
	Field  string           `json:"field,omitempty"`
	Type   domain.FieldType `json:"type,omitempty"`
	Mapped bool             `json:"mapped"`
}

// PreviewRow carries one sample row with its validation feedback.
type PreviewRow struct {
	RowNumber int               `json:"rowNumber"`
	Values    map[string]string `json:"values"`
	Errors    []string          `json:"errors,omitempty"`
}

// PreviewResult summarizes the dry run.
type PreviewResult struct {
	TotalRows   int                  `json:"totalRows"`
	InvalidRows int                  `json:"invalidRows"`
	Mapping     domain.ColumnMapping `json:"mapping"`
	Conflicts   []string             `json:"conflicts,omitempty"`
	Columns     []PreviewColumn      `json:"columns"`
	Rows        []PreviewRow         `json:"rows"`
}

// Preview parses the file, resolves the mapping, and validates every row
// without touching the store. Sample rows are capped at Limit (default 10).
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (PreviewResult, error) {
	result := PreviewResult{Columns: []PreviewColumn{}, Rows: []PreviewRow{}}

	if strings.TrimSpace(req.Filename) == "" {
		return result, errors.New("filename is required")
	}
	if req.Data == nil {
		return result, errors.New("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return result, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return result, errors.New("file is empty")
	}

	table, err := ParseTable(req.Filename, payload)
	if err != nil {
		return result, err
	}

	mapping := req.Mapping
	if len(mapping) == 0 {
		mapping = AutoDetect(table.Headers)
	}
	result.Mapping = mapping
	result.Conflicts = mapping.Conflicts()

	fields := mappedFields(table.Headers, mapping)
	for i, header := range table.Headers {
		column := PreviewColumn{Header: header, Field: fields[i], Mapped: fields[i] != ""}
		if column.Mapped {
			column.Type = domain.FieldTypeOf(fields[i])
		}
		result.Columns = append(result.Columns, column)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	result.TotalRows = len(table.Rows)
	dedup := NewDeduplicator()

	for idx, row := range table.Rows {
		raw := make(map[string]string)
		display := make(map[string]string, len(table.Headers))
		for i, header := range table.Headers {
			if i < len(row.Values) {
				display[header] = strings.TrimSpace(row.Values[i])
			}
			if fields[i] != "" && i < len(row.Values) {
				raw[fields[i]] = row.Values[i]
			}
		}

		var rowErrors []string
		values, issues := ConvertRow(raw)
		for _, issue := range issues {
			rowErrors = append(rowErrors, fmt.Sprintf("%s: %s", issue.Column, issue.Message))
		}
		MergeFullName(values)

		problems := ValidateRow(values)
		for _, p := range problems {
			rowErrors = append(rowErrors, fmt.Sprintf("%s: %s", p.Column, p.Message))
		}

		if len(problems) == 0 {
			if email, ok := values[domain.FieldEmail].(string); ok {
				if dedup.Seen(email) {
					rowErrors = append(rowErrors, fmt.Sprintf("email: duplicate email: %s", email))
				} else {
					dedup.Mark(email)
				}
			}
		}

		if len(problems) > 0 {
			result.InvalidRows++
		}

		if idx < limit {
			previewRow := PreviewRow{RowNumber: row.Line, Values: display}
			if len(rowErrors) > 0 {
				previewRow.Errors = rowErrors
			}
			result.Rows = append(result.Rows, previewRow)
		}
	}

	return result, nil
}
