package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/halcyard/fuselage/core"
)

// xlsxParser handles .xlsx files via the OOXML zip container, one unit per
// worksheet. Shared strings are resolved; formatting and formulas are
// ignored, only cached cell values are read.
type xlsxParser struct{}

// workbookXML mirrors the sheet list in xl/workbook.xml.
type workbookXML struct {
	Sheets struct {
		Sheets []struct {
			Name string `xml:"name,attr"`
		} `xml:"sheet"`
	} `xml:"sheets"`
}

// sharedStringsXML mirrors xl/sharedStrings.xml.
type sharedStringsXML struct {
	Items []struct {
		Text     string `xml:"t"`
		RichRuns []struct {
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"si"`
}

// worksheetXML mirrors the row/cell structure of a worksheet part.
type worksheetXML struct {
	SheetData struct {
		Rows []struct {
			Cells []struct {
				Type   string `xml:"t,attr"`
				Value  string `xml:"v"`
				Inline struct {
					Text string `xml:"t"`
				} `xml:"is"`
			} `xml:"c"`
		} `xml:"row"`
	} `xml:"sheetData"`
}

func (p *xlsxParser) Parse(ctx context.Context, data []byte) ([]Unit, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("not a zip container: %w", core.ErrParseFailure)
	}

	sheetNames := readSheetNames(reader)
	shared := readSharedStrings(reader)

	var units []Unit
	for i := 1; ; i++ {
		content, err := readZipFile(reader, fmt.Sprintf("xl/worksheets/sheet%d.xml", i))
		if err != nil {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text := renderWorksheet(content, shared)
		if text == "" {
			continue
		}

		name := fmt.Sprintf("sheet%d", i)
		if i-1 < len(sheetNames) && sheetNames[i-1] != "" {
			name = sheetNames[i-1]
		}
		units = append(units, Unit{
			Text: text,
			Tags: map[string]string{"sheet": name},
		})
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("no text content: %w", core.ErrParseFailure)
	}
	return units, nil
}

// readSheetNames lists worksheet names in workbook order.
// A missing or malformed workbook part degrades to positional names.
func readSheetNames(reader *zip.Reader) []string {
	content, err := readZipFile(reader, "xl/workbook.xml")
	if err != nil {
		return nil
	}
	var wb workbookXML
	if err := xml.Unmarshal(content, &wb); err != nil {
		return nil
	}
	names := make([]string, len(wb.Sheets.Sheets))
	for i, sheet := range wb.Sheets.Sheets {
		names[i] = sheet.Name
	}
	return names
}

// readSharedStrings loads the shared string table, if present.
func readSharedStrings(reader *zip.Reader) []string {
	content, err := readZipFile(reader, "xl/sharedStrings.xml")
	if err != nil {
		return nil
	}
	var ss sharedStringsXML
	if err := xml.Unmarshal(content, &ss); err != nil {
		return nil
	}
	strs := make([]string, len(ss.Items))
	for i, item := range ss.Items {
		if item.Text != "" {
			strs[i] = item.Text
			continue
		}
		var b strings.Builder
		for _, run := range item.RichRuns {
			b.WriteString(run.Text)
		}
		strs[i] = b.String()
	}
	return strs
}

// renderWorksheet flattens a worksheet to one line per row.
func renderWorksheet(content []byte, shared []string) string {
	var ws worksheetXML
	if err := xml.Unmarshal(content, &ws); err != nil {
		return ""
	}

	var b strings.Builder
	for _, row := range ws.SheetData.Rows {
		var cells []string
		for _, cell := range row.Cells {
			value := cell.Value
			switch cell.Type {
			case "s":
				idx, err := strconv.Atoi(cell.Value)
				if err != nil || idx < 0 || idx >= len(shared) {
					continue
				}
				value = shared[idx]
			case "inlineStr":
				value = cell.Inline.Text
			}
			value = strings.TrimSpace(value)
			if value != "" {
				cells = append(cells, value)
			}
		}
		if len(cells) > 0 {
			b.WriteString(strings.Join(cells, " | "))
			b.WriteByte('\n')
		}
	}
	return normalizeText(b.String())
}
