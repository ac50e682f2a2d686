package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/halcyard/fuselage/core"
)

// rowsPerUnit bounds how many data rows one table unit carries.
const rowsPerUnit = 50

// tableParser handles .csv and .tsv files. The header row names the
// columns; data rows are rendered as "column: value" pairs and grouped
// into row-batch units tagged with their 1-based row range.
type tableParser struct {
	separator rune
}

func (p *tableParser) Parse(ctx context.Context, data []byte) ([]Unit, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = p.separator
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed table: %v: %w", err, core.ErrParseFailure)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no text content: %w", core.ErrParseFailure)
	}

	header := rows[0]
	dataRows := rows[1:]
	if len(dataRows) == 0 {
		// Header-only file still carries the column names.
		text := normalizeText(strings.Join(header, " | "))
		if text == "" {
			return nil, fmt.Errorf("no text content: %w", core.ErrParseFailure)
		}
		return []Unit{{Text: text, Tags: map[string]string{"row": "1"}}}, nil
	}

	var units []Unit
	for start := 0; start < len(dataRows); start += rowsPerUnit {
		end := min(start+rowsPerUnit, len(dataRows))

		var b strings.Builder
		for _, row := range dataRows[start:end] {
			b.WriteString(renderRow(header, row))
			b.WriteByte('\n')
		}
		text := normalizeText(b.String())
		if text == "" {
			continue
		}

		// Row numbers count data rows, 1-based.
		units = append(units, Unit{
			Text: text,
			Tags: map[string]string{"row": fmt.Sprintf("%d-%d", start+1, end)},
		})
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("no text content: %w", core.ErrParseFailure)
	}
	return units, nil
}

// renderRow pairs column names with values, falling back to bare values
// when the row is wider than the header.
func renderRow(header, row []string) string {
	parts := make([]string, 0, len(row))
	for i, value := range row {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", strings.TrimSpace(header[i]), value))
		} else {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, " | ")
}
