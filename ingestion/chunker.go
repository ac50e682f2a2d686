package ingestion

import (
	"strings"

	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/parser"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is how many characters consecutive chunks share.
	DefaultChunkOverlap = 100

	// boundaryBackoff is how far a window end may step back to land on a
	// word boundary.
	boundaryBackoff = 100
)

// Chunker splits parsed units into overlapping windows of normalized text.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. Non-positive size or overlap fall back to
// the defaults; overlap is clamped below size so windows always advance.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Chunker{size: size, overlap: overlap}
}

// ChunkUnits converts parser units into chunks for one document. Sequence
// indexes are assigned across units in order. Unit tags and the source
// filename propagate into chunk metadata; spans are character offsets
// within the unit's text.
func (c *Chunker) ChunkUnits(owner core.OwnerID, docID core.ID, filename string, units []parser.Unit) []*core.Chunk {
	var chunks []*core.Chunk
	seq := 0

	for _, unit := range units {
		runes := []rune(unit.Text)
		for _, span := range c.split(runes) {
			text := strings.TrimSpace(string(runes[span.start:span.end]))
			if text == "" {
				continue
			}

			metadata := make(map[string]string, len(unit.Tags)+1)
			for k, v := range unit.Tags {
				metadata[k] = v
			}
			metadata["source_file"] = filename

			chunks = append(chunks, &core.Chunk{
				DocumentId: docID,
				Owner:      owner,
				Seq:        seq,
				Text:       text,
				SpanStart:  span.start,
				SpanEnd:    span.end,
				Metadata:   metadata,
			})
			seq++
		}
	}
	return chunks
}

type span struct {
	start, end int
}

// split produces overlapping windows over text. A window end near a space
// backs off to it so words are not cut where avoidable.
func (c *Chunker) split(text []rune) []span {
	if len(text) == 0 {
		return nil
	}
	if len(text) <= c.size {
		return []span{{0, len(text)}}
	}

	var spans []span
	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			spans = append(spans, span{start, len(text)})
			break
		}

		// Back off to the previous word boundary when one is near.
		boundary := end
		for boundary > end-boundaryBackoff && boundary > start+1 {
			if text[boundary-1] == ' ' || text[boundary-1] == '\n' {
				end = boundary
				break
			}
			boundary--
		}

		spans = append(spans, span{start, end})

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return spans
}
