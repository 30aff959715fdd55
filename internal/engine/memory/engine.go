package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/utafrali/search-gateway/internal/domain"
	"github.com/utafrali/search-gateway/internal/engine"
	"github.com/utafrali/search-gateway/internal/query"
)

// Name is the backend name reported in logs, metrics and errors.
const Name = "memory"

// Engine is an in-memory implementation of engine.Backend. It evaluates the
// same typed query the remote engines receive, with whitespace tokenization
// and term-count scoring. Thread-safe via sync.RWMutex.
type Engine struct {
	mu       sync.RWMutex
	products map[string]domain.ProductHit
}

// New creates an in-memory engine holding the given documents.
func New(products ...domain.ProductHit) *Engine {
	e := &Engine{products: make(map[string]domain.ProductHit, len(products))}
	e.Index(products...)
	return e
}

// LoadFile creates an engine seeded from a JSON array of documents.
func LoadFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memory engine: read seed file: %w", err)
	}
	var products []domain.ProductHit
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("memory engine: decode seed file: %w", err)
	}
	for i, p := range products {
		if p.ID == "" {
			return nil, fmt.Errorf("memory engine: document %d has no id", i)
		}
	}
	return New(products...), nil
}

// Index adds or replaces documents by ID.
func (e *Engine) Index(products ...domain.ProductHit) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range products {
		e.products[p.ID] = p
	}
}

// Len returns the number of indexed documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.products)
}

// Name implements engine.Backend.
func (e *Engine) Name() string { return Name }

// Ping always succeeds.
func (e *Engine) Ping(_ context.Context) error { return nil }

type scored struct {
	product domain.ProductHit
	score   float64
}

// Search evaluates the query against the in-memory index.
func (e *Engine) Search(ctx context.Context, req *query.Request) (*engine.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.TransportError(Name, "search", err)
	}

	e.mu.RLock()
	matched := make([]scored, 0)
	for _, p := range e.products {
		score, ok := matchScore(p, req)
		if !ok || !matchesFilters(p, req.Filters) {
			continue
		}
		matched = append(matched, scored{product: p, score: score})
	}
	e.mu.RUnlock()

	asc := req.Sort == domain.SortAsc
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			if asc {
				return matched[i].score < matched[j].score
			}
			return matched[i].score > matched[j].score
		}
		return matched[i].product.ID < matched[j].product.ID
	})

	resp := &engine.Response{TotalHits: uint64(len(matched))}

	offset := min(req.From, len(matched))
	end := min(offset+req.Size, len(matched))
	resp.Hits = make([]domain.ProductHit, 0, end-offset)
	for _, m := range matched[offset:end] {
		resp.Hits = append(resp.Hits, m.product)
	}

	if len(req.Aggregations) > 0 {
		resp.Aggregations = make(map[string][]engine.Bucket, len(req.Aggregations))
		for _, agg := range req.Aggregations {
			resp.Aggregations[agg.Name] = termsBuckets(matched, agg)
		}
	}

	return resp, nil
}

// matchScore reports whether p matches the query clause and its relevance score.
func matchScore(p domain.ProductHit, req *query.Request) (float64, bool) {
	switch {
	case req.MultiMatch != nil:
		return crossFieldsScore(p, req.MultiMatch)
	case req.Match != nil:
		tokens := tokenize(req.Match.Query)
		if len(tokens) == 0 {
			return 0, false
		}
		n := countTokens(tokenize(fieldValue(p, req.Match.Field)), tokens)
		return float64(n), n > 0
	default:
		return 1, true
	}
}

// crossFieldsScore treats the fields as one combined field: with the "and"
// operator every query token must appear in at least one field.
func crossFieldsScore(p domain.ProductHit, mm *query.MultiMatch) (float64, bool) {
	tokens := tokenize(mm.Query)
	if len(tokens) == 0 {
		return 0, false
	}

	fieldTokens := make([][]string, len(mm.Fields))
	for i, f := range mm.Fields {
		fieldTokens[i] = tokenize(fieldValue(p, f))
	}

	found := 0
	for _, tok := range tokens {
		for _, ft := range fieldTokens {
			if contains(ft, tok) {
				found++
				break
			}
		}
	}
	if mm.Operator == query.OperatorAnd && found < len(tokens) {
		return 0, false
	}
	if found == 0 {
		return 0, false
	}

	scores := make([]float64, len(fieldTokens))
	for i, ft := range fieldTokens {
		scores[i] = float64(countTokens(ft, tokens))
	}
	return query.CrossFieldScore(scores, mm.TieBreaker), true
}

func matchesFilters(p domain.ProductHit, filters []query.TermsFilter) bool {
	for _, f := range filters {
		v := fieldValue(p, f.Field)
		if !contains(f.Values, v) {
			return false
		}
	}
	return true
}

func termsBuckets(matched []scored, agg query.TermsAggregation) []engine.Bucket {
	counts := make(map[string]uint64)
	for _, m := range matched {
		if v := fieldValue(m.product, agg.Field); v != "" {
			counts[v]++
		}
	}

	buckets := make([]engine.Bucket, 0, len(counts))
	for k, n := range counts {
		buckets = append(buckets, engine.Bucket{Key: k, DocCount: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].DocCount != buckets[j].DocCount {
			return buckets[i].DocCount > buckets[j].DocCount
		}
		return buckets[i].Key < buckets[j].Key
	})
	if agg.Size > 0 && len(buckets) > agg.Size {
		buckets = buckets[:agg.Size]
	}
	return buckets
}

func fieldValue(p domain.ProductHit, field string) string {
	switch field {
	case "id":
		return p.ID
	case "title":
		return p.Title
	case "category":
		return p.Category
	case "entity":
		return p.Entity
	default:
		return ""
	}
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

func countTokens(haystack, tokens []string) int {
	n := 0
	for _, h := range haystack {
		if contains(tokens, h) {
			n++
		}
	}
	return n
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
