package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/search-gateway/internal/cache"
	"github.com/utafrali/search-gateway/internal/domain"
	"github.com/utafrali/search-gateway/internal/event"
	"github.com/utafrali/search-gateway/internal/service"
	"github.com/utafrali/search-gateway/pkg/httputil"
	"github.com/utafrali/search-gateway/pkg/pagination"
	"github.com/utafrali/search-gateway/pkg/validator"
)

// maxBodyBytes bounds the size of a query request body.
const maxBodyBytes = 1 << 20

// ComplexQuerier runs filtered, faceted queries.
type ComplexQuerier interface {
	ComplexQuery(ctx context.Context, req *domain.ComplexQueryRequest) service.Result
}

// SimpleQuerier runs single-field title queries.
type SimpleQuerier interface {
	SimpleQuery(ctx context.Context, term string) service.Result
}

// SearchHandler handles HTTP requests for the query endpoints.
type SearchHandler struct {
	complex   ComplexQuerier
	simple    SimpleQuerier
	publisher event.Publisher
	limits    pagination.Limits
	logger    *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(complex ComplexQuerier, simple SimpleQuerier, publisher event.Publisher, limits pagination.Limits, logger *slog.Logger) *SearchHandler {
	if publisher == nil {
		publisher = event.NoopPublisher{}
	}
	return &SearchHandler{
		complex:   complex,
		simple:    simple,
		publisher: publisher,
		limits:    limits,
		logger:    logger,
	}
}

// --- Request DTOs ---

// ComplexQueryRequest is the JSON request body of POST /query.
type ComplexQueryRequest struct {
	QueryTerm *string           `json:"queryTerm" validate:"required"`
	Filters   map[string]string `json:"filters"`
	Order     string            `json:"order"`
	Size      *int              `json:"size" validate:"omitempty,gte=0"`
	From      *int              `json:"from" validate:"omitempty,gte=0"`
}

// --- Handlers ---

// ComplexQuery handles POST /query
func (h *SearchHandler) ComplexQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body ComplexQueryRequest
	if err := validator.DecodeAndValidate(r, &body); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	req, err := h.toDomain(&body)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	start := time.Now()
	res := h.complex.ComplexQuery(r.Context(), req)

	if h.publishing() {
		key := res.CacheKey
		if key == "" {
			key = cache.Key(req)
		}
		filterFields := make([]string, 0, len(body.Filters))
		for field := range body.Filters {
			filterFields = append(filterFields, field)
		}
		sort.Strings(filterFields)

		h.publisher.QueryExecuted(r.Context(), queryEvent(res, start, event.QueryExecuted{
			QueryKey:     key,
			Kind:         event.SubjectComplexQuery,
			Term:         req.Term(),
			FilterFields: filterFields,
			SortOrder:    string(req.SortOrder()),
			Size:         req.Size(),
			From:         req.From(),
		}))
	}

	h.writeResult(w, res)
}

// SimpleQuery handles GET /query/{term}
func (h *SearchHandler) SimpleQuery(w http.ResponseWriter, r *http.Request) {
	// chi matches on RawPath when the path carried escapes that Path cannot
	// represent, and the parameter is then still escaped.
	term := chi.URLParam(r, "term")
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(term); err == nil {
			term = unescaped
		}
	}

	start := time.Now()
	res := h.simple.SimpleQuery(r.Context(), term)

	if h.publishing() {
		h.publisher.QueryExecuted(r.Context(), queryEvent(res, start, event.QueryExecuted{
			Kind: event.SubjectSimpleQuery,
			Term: term,
		}))
	}

	h.writeResult(w, res)
}

// toDomain converts the DTO into a validated domain request.
func (h *SearchHandler) toDomain(body *ComplexQueryRequest) (*domain.ComplexQueryRequest, error) {
	order, err := domain.ParseSortOrder(body.Order)
	if err != nil {
		return nil, err
	}

	window, err := pagination.Resolve(body.Size, body.From, h.limits)
	if err != nil {
		return nil, domain.InvalidRequest(err.Error())
	}

	return domain.NewComplexQueryRequest(*body.QueryTerm, body.Filters, order, window.Size, window.From)
}

func (h *SearchHandler) publishing() bool {
	_, noop := h.publisher.(event.NoopPublisher)
	return !noop
}

// writeResult answers 200 with the response, or 204 when the result is the
// degraded fallback.
func (h *SearchHandler) writeResult(w http.ResponseWriter, res service.Result) {
	if res.Degraded {
		httputil.WriteNoContent(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res.Response)
}

func queryEvent(res service.Result, start time.Time, data event.QueryExecuted) event.QueryExecuted {
	data.Degraded = res.Degraded
	data.CacheHit = res.Cached
	data.DurationMs = time.Since(start).Milliseconds()
	if res.Response != nil {
		data.TotalHits = res.Response.TotalHits()
		data.HitCount = len(res.Response.Products())
	}
	return data
}
