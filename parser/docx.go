package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/halcyard/fuselage/core"
)

// docxParser handles .docx files via the OOXML zip container.
// Text comes from word/document.xml; everything else is ignored.
type docxParser struct{}

// documentXML mirrors the parts of word/document.xml we read.
type documentXML struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

func (p *docxParser) Parse(ctx context.Context, data []byte) ([]Unit, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("not a zip container: %w", core.ErrParseFailure)
	}

	content, err := readZipFile(reader, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("missing document part: %w", core.ErrParseFailure)
	}

	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("malformed document xml: %v: %w", err, core.ErrParseFailure)
	}

	var b strings.Builder
	for _, para := range doc.Body.Paragraphs {
		for _, run := range para.Runs {
			for _, t := range run.Text {
				b.WriteString(t.Content)
			}
		}
		b.WriteByte('\n')
	}

	text := normalizeText(b.String())
	if text == "" {
		return nil, fmt.Errorf("no text content: %w", core.ErrParseFailure)
	}
	return []Unit{{Text: text}}, nil
}

// readZipFile reads one named entry from a zip archive.
func readZipFile(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("entry %s not found", name)
}
