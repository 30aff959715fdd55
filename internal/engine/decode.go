package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/utafrali/search-gateway/internal/domain"
)

// searchResponse is the structure used to decode engine search responses.
type searchResponse struct {
	Hits struct {
		Total json.RawMessage `json:"total"`
		Hits  []struct {
			ID     string            `json:"_id"`
			Source domain.ProductHit `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []struct {
			Key         json.RawMessage `json:"key"`
			KeyAsString *string         `json:"key_as_string"`
			DocCount    uint64          `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

// errorResponse is used to decode engine error responses.
type errorResponse struct {
	Error struct {
		Type      string `json:"type"`
		Reason    string `json:"reason"`
		RootCause []struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"root_cause"`
	} `json:"error"`
	Status int `json:"status"`
}

// DecodeResponse decodes a successful search response body.
func DecodeResponse(backend string, body io.Reader) (*Response, error) {
	var raw searchResponse
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, &domain.SearchBackendError{
			Backend: backend, Op: "search", Kind: domain.KindMalformed,
			Reason: "decode response", Err: err,
		}
	}

	total, err := decodeTotal(raw.Hits.Total)
	if err != nil {
		return nil, &domain.SearchBackendError{
			Backend: backend, Op: "search", Kind: domain.KindMalformed,
			Reason: "decode hits.total", Err: err,
		}
	}

	resp := &Response{
		TotalHits: total,
		Hits:      make([]domain.ProductHit, 0, len(raw.Hits.Hits)),
	}
	for _, hit := range raw.Hits.Hits {
		p := hit.Source
		if p.ID == "" {
			p.ID = hit.ID
		}
		resp.Hits = append(resp.Hits, p)
	}

	if raw.Aggregations != nil {
		resp.Aggregations = make(map[string][]Bucket, len(raw.Aggregations))
		for name, agg := range raw.Aggregations {
			buckets := make([]Bucket, 0, len(agg.Buckets))
			for _, b := range agg.Buckets {
				buckets = append(buckets, Bucket{
					Key:      BucketKey(b.Key, b.KeyAsString),
					DocCount: b.DocCount,
				})
			}
			resp.Aggregations[name] = buckets
		}
	}

	return resp, nil
}

// decodeTotal accepts both {"value":N} and the legacy bare number.
func decodeTotal(raw json.RawMessage) (uint64, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	if raw[0] == '{' {
		var obj struct {
			Value uint64 `json:"value"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return 0, err
		}
		return obj.Value, nil
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// BucketKey normalizes an aggregation bucket key to a string:
// key_as_string when present, a JSON string as-is, otherwise the literal text.
func BucketKey(key json.RawMessage, keyAsString *string) string {
	if keyAsString != nil {
		return *keyAsString
	}
	var s string
	if err := json.Unmarshal(key, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(key))
}

// DecodeError converts a non-2xx engine response into a SearchBackendError.
func DecodeError(backend, op string, status int, body io.Reader) *domain.SearchBackendError {
	be := &domain.SearchBackendError{
		Backend: backend,
		Op:      op,
		Kind:    domain.KindEngine,
		Status:  status,
	}

	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		be.Reason = fmt.Sprintf("unexpected status %d", status)
		return be
	}

	var errResp errorResponse
	if decErr := json.Unmarshal(data, &errResp); decErr == nil && errResp.Error.Type != "" {
		be.Reason = errResp.Error.Type + ": " + errResp.Error.Reason
		if len(errResp.Error.RootCause) > 0 && errResp.Error.RootCause[0].Reason != errResp.Error.Reason {
			be.Reason += " (" + errResp.Error.RootCause[0].Reason + ")"
		}
		return be
	}

	be.Reason = fmt.Sprintf("unexpected status %d", status)
	if text := strings.TrimSpace(string(data)); text != "" && len(text) <= 256 {
		be.Reason += ": " + text
	}
	return be
}

// TransportError classifies a failure to obtain any response from the engine.
func TransportError(backend, op string, err error) *domain.SearchBackendError {
	kind := domain.KindUnreachable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = domain.KindTimeout
	}
	return &domain.SearchBackendError{Backend: backend, Op: op, Kind: kind, Err: err}
}
