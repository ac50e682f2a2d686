package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/halcyard/fuselage/ai"
	"github.com/halcyard/fuselage/core"
	"github.com/halcyard/fuselage/storage"
)

const (
	// DefaultTopK is the result count when the request doesn't set one.
	DefaultTopK = 4
	// DefaultOverfetch multiplies top-k for each sub-search so filtering
	// and fusion have candidates to work with.
	DefaultOverfetch = 4
	// DefaultJoinTimeout bounds how long the engine waits for the slower
	// sub-search once results are due.
	DefaultJoinTimeout = 300 * time.Millisecond

	// DefaultSemanticWeight and DefaultLexicalWeight balance the two
	// signals when the request doesn't override them.
	DefaultSemanticWeight = 0.5
	DefaultLexicalWeight  = 0.5
)

// Engine answers hybrid retrieval queries: concurrent semantic and lexical
// sub-searches, hard metadata filtering, min-max score fusion.
type Engine struct {
	chunks      storage.ChunkRepository
	embeddings  storage.EmbeddingIndex
	lexical     storage.LexicalIndex
	embedder    ai.Embedder
	topK        int
	overfetch   int
	joinTimeout time.Duration
	semWeight   float64
	lexWeight   float64
	monitor     SearchMonitor
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithTopK sets the default result count.
func WithTopK(k int) Option {
	return func(e *Engine) error {
		if k > 0 {
			e.topK = k
		}
		return nil
	}
}

// WithOverfetch sets the sub-search overfetch factor.
func WithOverfetch(factor int) Option {
	return func(e *Engine) error {
		if factor > 0 {
			e.overfetch = factor
		}
		return nil
	}
}

// WithJoinTimeout sets how long the engine waits for the slower signal.
func WithJoinTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d > 0 {
			e.joinTimeout = d
		}
		return nil
	}
}

// WithWeights sets the default fusion weights.
func WithWeights(semantic, lexical float64) Option {
	return func(e *Engine) error {
		if semantic < 0 || lexical < 0 || semantic+lexical == 0 {
			return ErrInvalidWeights
		}
		e.semWeight = semantic
		e.lexWeight = lexical
		return nil
	}
}

// WithMonitor sets the search monitor.
// Default is a no-op monitor.
func WithMonitor(monitor SearchMonitor) Option {
	return func(e *Engine) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		e.monitor = monitor
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a new query engine.
func NewEngine(
	chunks storage.ChunkRepository,
	embeddings storage.EmbeddingIndex,
	lexical storage.LexicalIndex,
	provider ai.Provider,
	opts ...Option,
) (*Engine, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embeddings == nil {
		return nil, ErrEmbeddingIndexRequired
	}
	if lexical == nil {
		return nil, ErrLexicalIndexRequired
	}
	if provider == nil {
		return nil, ErrProviderRequired
	}

	e := &Engine{
		chunks:      chunks,
		embeddings:  embeddings,
		lexical:     lexical,
		embedder:    provider.Embedder(),
		topK:        DefaultTopK,
		overfetch:   DefaultOverfetch,
		joinTimeout: DefaultJoinTimeout,
		semWeight:   DefaultSemanticWeight,
		lexWeight:   DefaultLexicalWeight,
		monitor:     &noopMonitor{},
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// signalResult carries one sub-search's outcome across the join.
type signalResult struct {
	matches []core.IndexMatch
	err     error
}

// Query runs one retrieval call. The read path never mutates any index.
func (e *Engine) Query(ctx context.Context, req *core.QueryRequest) (*core.RetrievalResult, error) {
	if req == nil {
		return nil, core.ErrEmptyQuery
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := core.ValidateOwner(req.Owner); err != nil {
		return nil, err
	}

	queryText := strings.TrimSpace(req.Text)
	if queryText == "" {
		return nil, core.ErrEmptyQuery
	}

	// Filter keys validate against the owner's registry, fail closed: an
	// unknown key is an error, never silently zero matches.
	if len(req.Filter) > 0 {
		known, err := e.chunks.MetadataKeys(ctx, req.Owner)
		if err != nil {
			return nil, err
		}
		for key := range req.Filter {
			if strings.TrimSpace(key) == "" || !known[key] {
				return nil, fmt.Errorf("unknown filter key %q: %w", key, core.ErrInvalidFilter)
			}
		}
	}

	semWeight, lexWeight, err := e.resolveWeights(req)
	if err != nil {
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = e.topK
	}
	fetchK := topK * e.overfetch

	e.monitor.Start(req)

	semCh := make(chan signalResult, 1)
	lexCh := make(chan signalResult, 1)

	go func() {
		vector, err := e.embedder.EmbedText(ctx, queryText)
		if err != nil {
			semCh <- signalResult{err: err}
			return
		}
		matches, err := e.embeddings.Search(ctx, req.Owner, vector, fetchK)
		semCh <- signalResult{matches: matches, err: err}
	}()

	go func() {
		matches, err := e.lexical.Search(ctx, req.Owner, queryText, fetchK)
		lexCh <- signalResult{matches: matches, err: err}
	}()

	sem, lex, err := e.joinSignals(ctx, semCh, lexCh)
	if err != nil {
		return nil, err
	}
	e.monitor.AfterSemanticSearch(sem.matches)
	e.monitor.AfterLexicalSearch(lex.matches)

	if sem.err != nil && lex.err != nil {
		return nil, fmt.Errorf("%w: semantic: %v; lexical: %v", ErrAllSignalsFailed, sem.err, lex.err)
	}
	if sem.err != nil {
		e.logger.Warn("semantic signal degraded", "err", sem.err)
		e.monitor.SignalDegraded("semantic", sem.err)
		sem.matches = nil
	}
	if lex.err != nil {
		e.logger.Warn("lexical signal degraded", "err", lex.err)
		e.monitor.SignalDegraded("lexical", lex.err)
		lex.matches = nil
	}

	// Hydrate the candidate union once; candidates whose chunk vanished
	// under a concurrent delete drop out here.
	chunks, err := e.hydrate(ctx, sem.matches, lex.matches)
	if err != nil {
		return nil, err
	}

	semKept := filterMatches(sem.matches, chunks, req.Filter)
	lexKept := filterMatches(lex.matches, chunks, req.Filter)
	e.monitor.AfterFilter(len(semKept), len(lexKept))

	result := fuse(semKept, lexKept, chunks, semWeight, lexWeight, topK)
	e.monitor.Finish(result)
	return result, nil
}

// resolveWeights applies per-request weight overrides over the defaults.
func (e *Engine) resolveWeights(req *core.QueryRequest) (float64, float64, error) {
	semWeight := e.semWeight
	lexWeight := e.lexWeight
	if req.SemanticWeight != nil {
		semWeight = *req.SemanticWeight
	}
	if req.LexicalWeight != nil {
		lexWeight = *req.LexicalWeight
	}
	if semWeight < 0 || lexWeight < 0 || semWeight+lexWeight == 0 {
		return 0, 0, fmt.Errorf("semantic=%v lexical=%v: %w", semWeight, lexWeight, ErrInvalidWeights)
	}
	return semWeight, lexWeight, nil
}

// joinSignals waits up to joinTimeout for both sub-searches. Once the
// window closes, the engine proceeds as soon as either signal is in; a
// signal that misses the join is treated as a degraded (errored) signal.
func (e *Engine) joinSignals(ctx context.Context, semCh, lexCh <-chan signalResult) (sem, lex signalResult, err error) {
	timer := time.NewTimer(e.joinTimeout)
	defer timer.Stop()

	semDone, lexDone := false, false
	timedOut := false

	for !(semDone && lexDone) {
		if timedOut && (semDone || lexDone) {
			break
		}
		select {
		case r := <-semCh:
			sem = r
			semDone = true
		case r := <-lexCh:
			lex = r
			lexDone = true
		case <-timer.C:
			timedOut = true
		case <-ctx.Done():
			return sem, lex, ctx.Err()
		}
	}

	if !semDone {
		sem = signalResult{err: fmt.Errorf("semantic search missed %v join window", e.joinTimeout)}
	}
	if !lexDone {
		lex = signalResult{err: fmt.Errorf("lexical search missed %v join window", e.joinTimeout)}
	}
	return sem, lex, nil
}

// hydrate loads the chunks behind all candidate IDs. Missing chunks are
// silently absent from the returned map.
func (e *Engine) hydrate(ctx context.Context, sem, lex []core.IndexMatch) (map[core.ID]*core.Chunk, error) {
	seen := make(map[core.ID]bool, len(sem)+len(lex))
	var ids []core.ID
	for _, match := range sem {
		if !seen[match.ChunkId] {
			seen[match.ChunkId] = true
			ids = append(ids, match.ChunkId)
		}
	}
	for _, match := range lex {
		if !seen[match.ChunkId] {
			seen[match.ChunkId] = true
			ids = append(ids, match.ChunkId)
		}
	}
	if len(ids) == 0 {
		return map[core.ID]*core.Chunk{}, nil
	}

	chunks, err := e.chunks.GetChunks(ctx, ids...)
	if err != nil {
		return nil, err
	}

	byID := make(map[core.ID]*core.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.Id] = chunk
	}
	return byID, nil
}

// filterMatches keeps matches whose chunk exists and passes the hard
// metadata gate: every filter pair must match exactly.
func filterMatches(matches []core.IndexMatch, chunks map[core.ID]*core.Chunk, filter map[string]string) []core.IndexMatch {
	if len(matches) == 0 {
		return nil
	}
	kept := make([]core.IndexMatch, 0, len(matches))
	for _, match := range matches {
		chunk, ok := chunks[match.ChunkId]
		if !ok {
			continue
		}
		if matchesFilter(chunk.Metadata, filter) {
			kept = append(kept, match)
		}
	}
	return kept
}

func matchesFilter(metadata, filter map[string]string) bool {
	for key, want := range filter {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

// fuse normalizes each signal within its candidate pool, combines scores
// under the weights, deduplicates, sorts and truncates.
func fuse(sem, lex []core.IndexMatch, chunks map[core.ID]*core.Chunk, semWeight, lexWeight float64, topK int) *core.RetrievalResult {
	semNorm := normalize(sem)
	lexNorm := normalize(lex)

	byID := make(map[core.ID]*core.ScoredChunk, len(semNorm)+len(lexNorm))
	for id, score := range semNorm {
		byID[id] = &core.ScoredChunk{
			Chunk:         chunks[id],
			DocumentId:    chunks[id].DocumentId,
			SemanticScore: score,
		}
	}
	for id, score := range lexNorm {
		if entry, ok := byID[id]; ok {
			// A chunk found by both signals contributes one entry whose
			// normalized scores combine under the weights.
			entry.LexicalScore = score
			continue
		}
		byID[id] = &core.ScoredChunk{
			Chunk:        chunks[id],
			DocumentId:   chunks[id].DocumentId,
			LexicalScore: score,
		}
	}

	scored := make([]*core.ScoredChunk, 0, len(byID))
	for _, entry := range byID {
		entry.FusedScore = semWeight*entry.SemanticScore + lexWeight*entry.LexicalScore
		scored = append(scored, entry)
	}

	slices.SortFunc(scored, func(a, b *core.ScoredChunk) int {
		if a.FusedScore > b.FusedScore {
			return -1
		}
		if a.FusedScore < b.FusedScore {
			return 1
		}
		if a.Chunk.Seq != b.Chunk.Seq {
			return a.Chunk.Seq - b.Chunk.Seq
		}
		switch {
		case a.Chunk.Id < b.Chunk.Id:
			return -1
		case a.Chunk.Id > b.Chunk.Id:
			return 1
		}
		return 0
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return &core.RetrievalResult{Chunks: scored}
}

// normalize min-max scales scores within one signal's candidate pool.
// A pool with no score spread maps to a uniform 1.0.
func normalize(matches []core.IndexMatch) map[core.ID]float64 {
	if len(matches) == 0 {
		return nil
	}

	lo, hi := matches[0].Score, matches[0].Score
	for _, match := range matches[1:] {
		if match.Score < lo {
			lo = match.Score
		}
		if match.Score > hi {
			hi = match.Score
		}
	}

	normalized := make(map[core.ID]float64, len(matches))
	for _, match := range matches {
		if hi == lo {
			normalized[match.ChunkId] = 1.0
			continue
		}
		normalized[match.ChunkId] = (match.Score - lo) / (hi - lo)
	}
	return normalized
}
