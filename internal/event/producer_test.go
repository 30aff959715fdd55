package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/search-gateway/pkg/kafka"
	"github.com/utafrali/search-gateway/pkg/logger"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingWriter struct {
	mu     sync.Mutex
	topics []string
	events []*kafka.Event
	ctxErr error
	err    error
}

func (w *recordingWriter) Publish(ctx context.Context, topic string, evt *kafka.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.topics = append(w.topics, topic)
	w.events = append(w.events, evt)
	w.ctxErr = ctx.Err()
	return w.err
}

func TestKafkaPublisher_ComplexQuery(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisher(w, "", newTestLogger())

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	p.QueryExecuted(ctx, QueryExecuted{
		QueryKey:     "search:complex:abc",
		Kind:         SubjectComplexQuery,
		Term:         "laptop",
		FilterFields: []string{"category"},
		SortOrder:    "DESC",
		Size:         10,
		TotalHits:    3,
		HitCount:     3,
		DurationMs:   12,
	})

	require.Len(t, w.events, 1)
	assert.Equal(t, TopicQueryExecuted, w.topics[0])

	evt := w.events[0]
	assert.Equal(t, EventTypeQueryExecuted, evt.Type)
	assert.Equal(t, "search:complex:abc", evt.Key)
	assert.Equal(t, SubjectComplexQuery, evt.Subject)
	assert.Equal(t, SourceSearchGateway, evt.Producer)
	assert.Equal(t, "corr-1", evt.CorrelationID)
	assert.NotEmpty(t, evt.ID)

	var data QueryExecuted
	require.NoError(t, evt.DecodePayload(&data))
	assert.Equal(t, "laptop", data.Term)
	assert.Equal(t, []string{"category"}, data.FilterFields)
	assert.Equal(t, uint64(3), data.TotalHits)
	assert.NotContains(t, string(evt.Payload), "electronics")
}

func TestKafkaPublisher_SimpleQueryKeyedByTerm(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisher(w, "custom.topic", newTestLogger())

	p.QueryExecuted(context.Background(), QueryExecuted{Kind: SubjectSimpleQuery, Term: "phone"})

	require.Len(t, w.events, 1)
	assert.Equal(t, "custom.topic", w.topics[0])
	assert.Equal(t, "phone", w.events[0].Key)
	assert.Equal(t, SubjectSimpleQuery, w.events[0].Subject)
}

func TestKafkaPublisher_IgnoresCallerCancellation(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisher(w, "", newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.QueryExecuted(ctx, QueryExecuted{Term: "laptop"})

	require.Len(t, w.events, 1)
	assert.NoError(t, w.ctxErr)
}

func TestKafkaPublisher_ErrorIsSwallowed(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := NewKafkaPublisher(w, "", newTestLogger())

	assert.NotPanics(t, func() {
		p.QueryExecuted(context.Background(), QueryExecuted{Term: "laptop"})
	})
	assert.Len(t, w.events, 1)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NotPanics(t, func() {
		p.QueryExecuted(context.Background(), QueryExecuted{Term: "laptop"})
	})
}
