package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/gje4/vercel-bigcommerce/pkg/logger"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// --- Event tests ---

type runPayload struct {
	RunID      string   `json:"run_id"`
	ProductIDs []string `json:"product_ids"`
}

func TestNewEvent_Fields(t *testing.T) {
	data := runPayload{RunID: "run-1", ProductIDs: []string{"101", "102"}}
	event, err := NewEvent("pipeline.run.completed", "run-1", "pipeline_run", "storefront-pipeline", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "pipeline.run.completed", event.EventType)
	assert.Equal(t, "run-1", event.AggregateID)
	assert.Equal(t, "pipeline_run", event.AggregateType)
	assert.Equal(t, "storefront-pipeline", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)
	assert.NotNil(t, event.Metadata)

	var decoded runPayload
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, data, decoded)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("test.event", "agg-1", "test", "svc", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test.event")
}

func TestNewEventFromContext_CarriesCorrelationID(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "corr-42")
	event, err := NewEventFromContext(ctx, "pipeline.run.failed", "run-2", "pipeline_run", "svc", nil)
	require.NoError(t, err)
	assert.Equal(t, "corr-42", event.CorrelationID)

	event, err = NewEventFromContext(context.Background(), "pipeline.run.failed", "run-2", "pipeline_run", "svc", nil)
	require.NoError(t, err)
	assert.Empty(t, event.CorrelationID)
	assert.Empty(t, event.Metadata)
}

func TestNewEventFromContext_CopiesStage(t *testing.T) {
	ctx := logger.WithStage(logger.WithRunID(context.Background(), "run-2"), "publish")
	event, err := NewEventFromContext(ctx, "pipeline.run.failed", "run-2", "pipeline_run", "svc", nil)
	require.NoError(t, err)
	assert.Equal(t, "publish", event.Metadata[MetadataStage])
	assert.NotContains(t, event.Metadata, MetadataRunID, "run id equal to the aggregate id is not repeated")

	ctx = logger.WithRunID(context.Background(), "run-7")
	event, err = NewEventFromContext(ctx, "pipeline.run.failed", "batch-1", "pipeline_batch", "svc", nil)
	require.NoError(t, err)
	assert.Equal(t, "run-7", event.Metadata[MetadataRunID])
}

func TestEvent_MarshalUnmarshal(t *testing.T) {
	original, err := NewEvent("pipeline.run.completed", "run-3", "pipeline_run", "svc", map[string]int{"created": 2})
	require.NoError(t, err)
	original.CorrelationID = "corr-abc"
	original.WithMetadata(MetadataStage, "done").WithMetadata("idempotency_key", "")

	raw, err := original.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, "corr-abc", restored.CorrelationID)
	assert.Equal(t, "done", restored.Metadata[MetadataStage])
	assert.NotContains(t, restored.Metadata, "idempotency_key")
	assert.JSONEq(t, string(original.Data), string(restored.Data))
}

func TestEvent_WithMetadata_NilMetadataMap(t *testing.T) {
	event := &Event{EventID: "test-id"}
	event.WithMetadata("key", "value")
	assert.Equal(t, "value", event.Metadata["key"])
}

func TestUnmarshalEvent_InvalidJSON(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{broken json`))
	require.Error(t, err)

	_, err = UnmarshalEvent([]byte(`{"event_id":"x","data":{}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing event_type")

	event := &Event{Data: json.RawMessage(`not valid json`)}
	var target map[string]string
	require.Error(t, event.UnmarshalData(&target))
}

// --- Topic tests ---

func TestTopic(t *testing.T) {
	tests := []struct {
		domain, action, want string
	}{
		{"pipeline.run", "completed", "storefront.pipeline.run.completed"},
		{"pipeline.run", "failed", "storefront.pipeline.run.failed"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Topic(tt.domain, tt.action))
		})
	}
}

// --- Producer tests ---

func TestDefaultProducerConfig(t *testing.T) {
	brokers := []string{"broker1:9092", "broker2:9092"}
	cfg := DefaultProducerConfig(brokers)

	assert.Equal(t, brokers, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.False(t, cfg.Async)
}

func TestProducer_Publish_WritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, []string{"localhost:9092"}, nil)

	event, err := NewEvent("pipeline.run.completed", "run-9", "pipeline_run", "svc", nil)
	require.NoError(t, err)
	event.CorrelationID = "corr-9"

	topic := Topic("pipeline.run", "completed")
	before := testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic))

	require.NoError(t, p.Publish(context.Background(), topic, event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, "run-9", string(msg.Key))
	assert.Equal(t, "pipeline.run.completed", headerValue(msg, "event_type"))
	assert.Equal(t, "svc", headerValue(msg, "source"))
	assert.Equal(t, "corr-9", headerValue(msg, "correlation_id"))

	restored, err := UnmarshalEvent(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, restored.EventID)

	assert.Equal(t, before+1, testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic)))
}

func TestProducer_Publish_InjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, nil)
	event, err := NewEvent("pipeline.run.failed", "run-1", "pipeline_run", "svc", nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, Topic("pipeline.run", "failed"), event))
	require.Len(t, w.msgs, 1)
	assert.Contains(t, headerValue(w.msgs[0], "traceparent"), span.SpanContext().TraceID().String())
}

func TestProducer_Publish_WriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, nil, nil)

	topic := Topic("pipeline.run", "failed")
	before := testutil.ToFloat64(ProducerPublishErrors.WithLabelValues(topic))

	event, err := NewEvent("pipeline.run.failed", "run-1", "pipeline_run", "svc", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), topic, event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Equal(t, before+1, testutil.ToFloat64(ProducerPublishErrors.WithLabelValues(topic)))
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, nil)
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewProducer_DoesNotDial(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), nil)
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}
