package query

import (
	"encoding/json"

	"github.com/utafrali/search-gateway/internal/domain"
)

// Query types and operators understood by the engines.
const (
	TypeCrossFields = "cross_fields"
	OperatorAnd     = "and"
)

// MultiMatch is a term matched across several fields as one combined field.
type MultiMatch struct {
	Query      string
	Fields     []string
	Type       string
	Operator   string
	TieBreaker float64
}

// Match is a single-field full-text match.
type Match struct {
	Field string
	Query string
}

// TermsFilter restricts results to documents whose field equals one of Values.
type TermsFilter struct {
	Field  string
	Values []string
}

// TermsAggregation counts documents per distinct value of Field.
type TermsAggregation struct {
	Name  string
	Field string
	Size  int
}

// Request is an engine query. Exactly one of MultiMatch or Match is set.
// Source renders it to the JSON DSL shared by Elasticsearch and OpenSearch.
type Request struct {
	MultiMatch     *MultiMatch
	Match          *Match
	Filters        []TermsFilter
	Aggregations   []TermsAggregation
	Size           int
	From           int
	Sort           domain.SortOrder
	TrackTotalHits bool
}

// Source constructs the query DSL as a map.
func (r *Request) Source() map[string]interface{} {
	body := map[string]interface{}{
		"size": r.Size,
		"from": r.From,
	}

	switch {
	case r.MultiMatch != nil:
		boolQuery := map[string]interface{}{
			"must": []interface{}{
				map[string]interface{}{"multi_match": r.MultiMatch.source()},
			},
		}
		if len(r.Filters) > 0 {
			filters := make([]interface{}, 0, len(r.Filters))
			for _, f := range r.Filters {
				filters = append(filters, map[string]interface{}{
					"terms": map[string]interface{}{f.Field: f.Values},
				})
			}
			boolQuery["filter"] = filters
		}
		body["query"] = map[string]interface{}{"bool": boolQuery}
	case r.Match != nil:
		body["query"] = map[string]interface{}{
			"match": map[string]interface{}{
				r.Match.Field: map[string]interface{}{"query": r.Match.Query},
			},
		}
	default:
		body["query"] = map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	if r.Sort != "" {
		body["sort"] = []interface{}{
			map[string]interface{}{"_score": map[string]interface{}{"order": r.Sort.Lower()}},
		}
	}

	if len(r.Aggregations) > 0 {
		aggs := make(map[string]interface{}, len(r.Aggregations))
		for _, a := range r.Aggregations {
			aggs[a.Name] = map[string]interface{}{
				"terms": map[string]interface{}{"field": a.Field, "size": a.Size},
			}
		}
		body["aggs"] = aggs
	}

	if r.TrackTotalHits {
		body["track_total_hits"] = true
	}

	return body
}

func (m *MultiMatch) source() map[string]interface{} {
	return map[string]interface{}{
		"query":       m.Query,
		"fields":      m.Fields,
		"type":        m.Type,
		"operator":    m.Operator,
		"tie_breaker": m.TieBreaker,
	}
}

// MarshalJSON encodes the request as its DSL body.
func (r *Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Source())
}

// AggregationNames returns the names of the requested aggregations in order.
func (r *Request) AggregationNames() []string {
	names := make([]string, 0, len(r.Aggregations))
	for _, a := range r.Aggregations {
		names = append(names, a.Name)
	}
	return names
}
