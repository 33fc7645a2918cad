package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"dossier/internal/index"
	"dossier/internal/models"
	"dossier/internal/providers"
)

// overFetchFactor widens the vector search so lexical re-ranking has
// candidates to promote past the raw similarity cut.
const overFetchFactor = 3

type Options struct {
	TopK         int
	MinScore     float64
	LexicalBoost float64
	EmbedDim     int
}

// Engine runs hybrid retrieval: semantic search over the broad layer,
// a lexical boost for exact token matches (acronyms, figures, product
// names that embeddings blur), then resolution of each hit to its best
// citation-layer span.
type Engine struct {
	index    index.Index
	embedder providers.EmbeddingProvider
	opts     Options
}

func NewEngine(idx index.Index, embedder providers.EmbeddingProvider, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &Engine{index: idx, embedder: embedder, opts: opts}
}

func (e *Engine) Retrieve(ctx context.Context, query string, scope index.Scope) ([]models.Evidence, error) {
	vectors, _, err := e.embedder.Embed(ctx, providers.EmbedRequest{
		Operation: "embed_query",
		Inputs:    []string{query},
		Dimension: e.opts.EmbedDim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding provider returned no vector")
	}

	hits, err := e.index.Search(ctx, models.LayerSemantic, vectors[0], e.opts.TopK*overFetchFactor, scope)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	queryTokens := exactTokens(query)
	type scored struct {
		index.Result
		combined float64
	}
	rescored := make([]scored, 0, len(hits))
	for _, h := range hits {
		boost := 0.0
		if e.opts.LexicalBoost > 0 {
			boost = e.opts.LexicalBoost * float64(countMatches(queryTokens, h.Chunk.Text))
		}
		rescored = append(rescored, scored{Result: h, combined: h.Score + boost})
	}
	sort.SliceStable(rescored, func(i, j int) bool {
		if rescored[i].combined != rescored[j].combined {
			return rescored[i].combined > rescored[j].combined
		}
		if rescored[i].Chunk.ChunkIndex != rescored[j].Chunk.ChunkIndex {
			return rescored[i].Chunk.ChunkIndex < rescored[j].Chunk.ChunkIndex
		}
		return rescored[i].Chunk.ChunkID < rescored[j].Chunk.ChunkID
	})

	out := make([]models.Evidence, 0, e.opts.TopK)
	citationCache := map[string][]models.Chunk{}
	for _, h := range rescored {
		if h.combined < e.opts.MinScore {
			continue
		}
		ev := models.Evidence{
			SemanticChunkID: h.Chunk.ChunkID,
			DocumentID:      h.Chunk.DocumentID,
			DocumentName:    h.DocumentName,
			Text:            h.Chunk.Text,
			Score:           clamp01(h.combined),
			PageNumber:      h.Chunk.PageNumber,
			BoundingBox:     h.Chunk.BoundingBox,
		}
		spans, ok := citationCache[h.Chunk.DocumentID]
		if !ok {
			spans, err = e.index.ListChunks(ctx, h.Chunk.DocumentID, models.LayerCitation)
			if err != nil {
				return nil, fmt.Errorf("load citation spans: %w", err)
			}
			citationCache[h.Chunk.DocumentID] = spans
		}
		if span, found := bestSpan(h.Chunk.Text, spans); found {
			ev.ChunkID = span.ChunkID
			ev.PageNumber = span.PageNumber
			ev.BoundingBox = span.BoundingBox
		} else {
			ev.ChunkID = h.Chunk.ChunkID
			ev.ApproxLocator = true
		}
		out = append(out, ev)
		if len(out) == e.opts.TopK {
			break
		}
	}
	return out, nil
}

// bestSpan picks the citation-layer chunk most contained in the semantic
// chunk's text. The citation span's locator wins whenever any span
// overlaps at all.
func bestSpan(semanticText string, spans []models.Chunk) (models.Chunk, bool) {
	best := -1
	var bestScore float64
	lower := strings.ToLower(semanticText)
	for i, s := range spans {
		st := strings.ToLower(strings.TrimSpace(s.Text))
		if st == "" {
			continue
		}
		var score float64
		if strings.Contains(lower, st) {
			score = 1.0 + float64(len(st))/float64(len(lower)+1)
		} else {
			tokens := exactTokens(s.Text)
			if len(tokens) == 0 {
				continue
			}
			score = float64(countMatches(tokens, semanticText)) / float64(len(tokens))
			if score < 0.5 {
				continue
			}
		}
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 {
		return models.Chunk{}, false
	}
	return spans[best], true
}

// exactTokens keeps tokens where verbatim match matters: numbers,
// all-caps acronyms, and anything mixing letters with digits.
func exactTokens(text string) []string {
	out := make([]string, 0, 8)
	for _, tok := range strings.Fields(text) {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if tok == "" {
			continue
		}
		if hasDigit(tok) || isAcronym(tok) {
			out = append(out, strings.ToLower(tok))
		}
	}
	return out
}

func countMatches(tokens []string, text string) int {
	if len(tokens) == 0 {
		return 0
	}
	haystack := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		haystack[strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})] = true
	}
	n := 0
	for _, t := range tokens {
		if haystack[t] {
			n++
		}
	}
	return n
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func isAcronym(s string) bool {
	if len(s) < 2 || len(s) > 8 {
		return false
	}
	for _, r := range s {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
