package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/search-gateway/pkg/kafka"
	"github.com/utafrali/search-gateway/pkg/logger"
)

// TopicQueryExecuted is the default query-log topic.
const TopicQueryExecuted = "search.query.executed"

// EventTypeQueryExecuted is the event type of every query-log entry.
const EventTypeQueryExecuted = "search.query.executed"

// Event subjects: complex queries are keyed by their cache key, simple
// queries by their term.
const (
	SubjectComplexQuery = "complex_query"
	SubjectSimpleQuery  = "simple_query"
)

// SourceSearchGateway identifies events originating from this service.
const SourceSearchGateway = "search-gateway"

// QueryExecuted is the payload of a query-log event. Filter values are
// omitted.
type QueryExecuted struct {
	QueryKey     string   `json:"query_key"`
	Kind         string   `json:"kind"`
	Term         string   `json:"term"`
	FilterFields []string `json:"filter_fields,omitempty"`
	SortOrder    string   `json:"sort_order,omitempty"`
	Size         int      `json:"size"`
	From         int      `json:"from"`
	TotalHits    uint64   `json:"total_hits"`
	HitCount     int      `json:"hit_count"`
	Degraded     bool     `json:"degraded"`
	CacheHit     bool     `json:"cache_hit"`
	DurationMs   int64    `json:"duration_ms"`
}

// Publisher records executed queries.
type Publisher interface {
	QueryExecuted(ctx context.Context, data QueryExecuted)
}

// EventWriter publishes an event envelope to a topic. It is satisfied by
// *kafka.Producer.
type EventWriter interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// KafkaPublisher writes query-log events to Kafka.
type KafkaPublisher struct {
	writer EventWriter
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher writing to topic.
func NewKafkaPublisher(writer EventWriter, topic string, logger *slog.Logger) *KafkaPublisher {
	if topic == "" {
		topic = TopicQueryExecuted
	}
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

// QueryExecuted publishes a search.query.executed event. Failures are logged
// and never returned to the caller.
func (p *KafkaPublisher) QueryExecuted(ctx context.Context, data QueryExecuted) {
	if err := p.publish(ctx, data); err != nil {
		logger.WithContext(ctx, p.logger).WarnContext(ctx, "query log publish failed",
			slog.String("topic", p.topic),
			slog.String("term", data.Term),
			slog.String("error", err.Error()),
		)
	}
}

func (p *KafkaPublisher) publish(ctx context.Context, data QueryExecuted) error {
	key, subject := data.QueryKey, SubjectComplexQuery
	if data.Kind == SubjectSimpleQuery {
		subject = SubjectSimpleQuery
	}
	if key == "" {
		key = data.Term
	}

	evt, err := kafka.NewEvent(EventTypeQueryExecuted, key, subject, SourceSearchGateway, data,
		kafka.WithCorrelationID(logger.CorrelationIDFromContext(ctx)))
	if err != nil {
		return err
	}

	// The request may finish before an async write is queued.
	if err := p.writer.Publish(context.WithoutCancel(ctx), p.topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", EventTypeQueryExecuted, err)
	}
	return nil
}

// NoopPublisher discards every event.
type NoopPublisher struct{}

// QueryExecuted implements Publisher.
func (NoopPublisher) QueryExecuted(context.Context, QueryExecuted) {}
