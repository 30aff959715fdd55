package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type queryPayload struct {
	Term      string `json:"term"`
	TotalHits uint64 `json:"totalHits"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Event ---

func TestNewEvent_Envelope(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	payload := queryPayload{Term: "laptop", TotalHits: 3}

	event, err := NewEvent("search.query.executed", "search:complex:abc", "complex_query", "search-gateway", payload,
		OccurredAt(at), WithCorrelationID("corr-xyz"))
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "search.query.executed", event.Type)
	assert.Equal(t, "search:complex:abc", event.Key)
	assert.Equal(t, "complex_query", event.Subject)
	assert.Equal(t, "search-gateway", event.Producer)
	assert.Equal(t, SchemaVersion, event.SchemaVersion)
	assert.Equal(t, "corr-xyz", event.CorrelationID)
	assert.Equal(t, time.UTC, event.OccurredAt.Location())
	assert.True(t, at.Equal(event.OccurredAt))

	var got queryPayload
	require.NoError(t, event.DecodePayload(&got))
	assert.Equal(t, payload, got)
}

func TestNewEvent_Defaults(t *testing.T) {
	a, err := NewEvent("t", "k", "s", "svc", nil)
	require.NoError(t, err)
	b, err := NewEvent("t", "k", "s", "svc", nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Empty(t, a.CorrelationID)
	assert.WithinDuration(t, time.Now().UTC(), a.OccurredAt, 2*time.Second)
}

func TestNewEvent_UnencodablePayload(t *testing.T) {
	_, err := NewEvent("search.query.executed", "k", "s", "svc", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode search.query.executed payload")
}

func TestEvent_EncodeDecode(t *testing.T) {
	original, err := NewEvent("search.query.executed", "k", "simple_query", "search-gateway",
		queryPayload{Term: "x"}, WithCorrelationID("corr-abc"))
	require.NoError(t, err)

	b, err := original.Encode()
	require.NoError(t, err)

	restored, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.CorrelationID, restored.CorrelationID)
	assert.JSONEq(t, string(original.Payload), string(restored.Payload))

	_, err = Decode([]byte(`{broken`))
	assert.Error(t, err)
}

// --- Message ---

func TestMessage_Headers(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	event, err := NewEvent("search.query.executed", "agg-1", "complex_query", "search-gateway", nil,
		WithCorrelationID("corr-1"))
	require.NoError(t, err)

	msg, err := Message(ctx, "search.query.executed", event)
	require.NoError(t, err)

	carrier := NewHeaderCarrier(&msg.Headers)
	assert.Equal(t, "search.query.executed", msg.Topic)
	assert.Equal(t, []byte("agg-1"), msg.Key)
	assert.Equal(t, "search.query.executed", carrier.Get("event_type"))
	assert.Equal(t, "search-gateway", carrier.Get("producer"))
	assert.Equal(t, "corr-1", carrier.Get("correlation_id"))
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", carrier.Get("traceparent"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
}

func TestMessage_NoCorrelationID(t *testing.T) {
	event, err := NewEvent("t", "1", "x", "svc", nil)
	require.NoError(t, err)

	msg, err := Message(context.Background(), "topic", event)
	require.NoError(t, err)
	assert.Empty(t, NewHeaderCarrier(&msg.Headers).Get("correlation_id"))
}

// --- HeaderCarrier ---

func TestHeaderCarrier_SetGetKeys(t *testing.T) {
	headers := []kafka.Header{{Key: "existing", Value: []byte("v1")}}
	carrier := NewHeaderCarrier(&headers)

	assert.Equal(t, "v1", carrier.Get("existing"))
	assert.Empty(t, carrier.Get("missing"))

	carrier.Set("new", "v2")
	carrier.Set("existing", "updated")

	assert.Equal(t, "updated", carrier.Get("existing"))
	assert.Equal(t, "v2", carrier.Get("new"))
	assert.ElementsMatch(t, []string{"existing", "new"}, carrier.Keys())
	assert.Len(t, headers, 2)
}

// --- Producer ---

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"broker1:9092", "broker2:9092"})

	assert.Len(t, cfg.Brokers, 2)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.True(t, cfg.Async)
}

func TestNewProducer_CloseWithoutBroker(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), nil)
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestProducer_CompletionCountsOutcome(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), testLogger())
	defer p.Close()

	p.completion([]kafka.Message{{Topic: "completion-ok"}, {Topic: "completion-ok"}}, nil)
	p.completion([]kafka.Message{{Topic: "completion-fail"}}, errors.New("leader not available"))

	assert.Equal(t, 2.0, testutil.ToFloat64(producerMessages.WithLabelValues("completion-ok", outcomeDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(producerMessages.WithLabelValues("completion-fail", outcomeFailed)))
	assert.Zero(t, testutil.ToFloat64(producerMessages.WithLabelValues("completion-ok", outcomeFailed)))
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}

func TestPingBrokers_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := PingBrokers(ctx, []string{"127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all brokers unreachable")
}
