// Copyright 2025 Halcyard Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package parser converts raw document bytes into logical text units.
//
// Dispatch is by lowercase file extension over a closed registry. Each
// parser yields one Unit per logical division of the source: a page, a
// worksheet, a heading section or a row batch. Unit tags become chunk
// metadata downstream.
package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/halcyard/fuselage/core"
)

// Unit is one logical division of a parsed document.
type Unit struct {
	Text string
	// Tags describe where the unit came from, e.g. "page", "sheet",
	// "section", "row".
	Tags map[string]string
}

// Parser extracts text units from one document format.
type Parser interface {
	// Parse decodes the raw bytes into ordered units.
	// Returns core.ErrParseFailure when the bytes cannot be decoded or
	// decode to no text at all.
	Parse(ctx context.Context, data []byte) ([]Unit, error)
}

// registry maps lowercase extensions (with dot) to parsers.
var registry = map[string]Parser{
	".txt":      &plaintextParser{},
	".md":       &markdownParser{},
	".markdown": &markdownParser{},
	".csv":      &tableParser{separator: ','},
	".tsv":      &tableParser{separator: '\t'},
	".pdf":      &pdfParser{},
	".docx":     &docxParser{},
	".xlsx":     &xlsxParser{},
}

// ForExtension returns the parser for a lowercase file extension.
// Returns core.ErrUnsupportedFormat for extensions outside the registry.
func ForExtension(ext string) (Parser, error) {
	p, ok := registry[strings.ToLower(ext)]
	if !ok {
		return nil, fmt.Errorf("extension %q: %w", ext, core.ErrUnsupportedFormat)
	}
	return p, nil
}

// Supported reports whether an extension has a registered parser.
func Supported(ext string) bool {
	_, ok := registry[strings.ToLower(ext)]
	return ok
}

// SupportedExtensions returns the registered extensions, unordered.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(registry))
	for ext := range registry {
		exts = append(exts, ext)
	}
	return exts
}

// normalizeText collapses runs of whitespace into single spaces and
// preserves paragraph breaks as single newlines.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lines := strings.Split(text, "\n")
	wrote := false
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if wrote {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(fields, " "))
		wrote = true
	}
	return b.String()
}
