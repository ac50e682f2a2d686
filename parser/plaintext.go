package parser

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/halcyard/fuselage/core"
)

// plaintextParser handles .txt files as a single unit.
type plaintextParser struct{}

func (p *plaintextParser) Parse(ctx context.Context, data []byte) ([]Unit, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("not valid utf-8: %w", core.ErrParseFailure)
	}

	text := normalizeText(string(data))
	if text == "" {
		return nil, fmt.Errorf("no text content: %w", core.ErrParseFailure)
	}

	return []Unit{{Text: text}}, nil
}

// markdownParser handles .md/.markdown files, splitting on level 1-3
// headings so each section becomes its own unit.
type markdownParser struct{}

func (p *markdownParser) Parse(ctx context.Context, data []byte) ([]Unit, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("not valid utf-8: %w", core.ErrParseFailure)
	}

	var units []Unit
	var section strings.Builder
	heading := ""

	flush := func() {
		text := normalizeText(section.String())
		section.Reset()
		if text == "" {
			return
		}
		unit := Unit{Text: text}
		if heading != "" {
			unit.Tags = map[string]string{"section": heading}
		}
		units = append(units, unit)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if h, ok := headingText(line); ok {
			flush()
			heading = h
			section.WriteString(h)
			section.WriteByte('\n')
			continue
		}
		section.WriteString(line)
		section.WriteByte('\n')
	}
	flush()

	if len(units) == 0 {
		return nil, fmt.Errorf("no text content: %w", core.ErrParseFailure)
	}
	return units, nil
}

// headingText returns the title of a level 1-3 markdown heading line.
func headingText(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"### ", "## ", "# "} {
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)), true
		}
	}
	return "", false
}
