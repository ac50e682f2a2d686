package parser

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/ledongthuc/pdf"

	"github.com/halcyard/fuselage/core"
)

// pdfParser handles .pdf files, one unit per page.
type pdfParser struct{}

func (p *pdfParser) Parse(ctx context.Context, data []byte) ([]Unit, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("malformed pdf: %v: %w", err, core.ErrParseFailure)
	}

	var units []Unit
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		// Pages that fail text extraction are skipped rather than
		// failing the whole document; scanned pages have no text layer.
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		text := normalizeText(pageText)
		if text == "" {
			continue
		}
		units = append(units, Unit{
			Text: text,
			Tags: map[string]string{"page": strconv.Itoa(pageNum)},
		})
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("no text content: %w", core.ErrParseFailure)
	}
	return units, nil
}
