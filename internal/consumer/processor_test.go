package consumer

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/wellness/internal/events"
	"example.com/wellness/internal/syncer"
)

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := []byte(`{"pass_id":"p-1","from":"2025-06-10","to":"2025-06-11","days":["2025-06-11"]}`)
	msg := kafka.Message{
		Topic:     "wellness.events",
		Partition: 0,
		Offset:    10,
		Time:      time.Now().UTC(),
		Key:       []byte("p-1"),
		Value:     payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.TypeDataUpdated)},
			{Key: "pass_id", Value: []byte("p-1")},
		},
	}

	reader := &stubReader{messages: []kafka.Message{msg}, after: contextCanceled}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, events.TypeDataUpdated, handler.last.EventType)
	require.Equal(t, "p-1", handler.last.PassID)
	require.Equal(t, "p-1", handler.last.Key)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := kafka.Message{
		Topic:  "wellness.commands",
		Offset: 20,
		Time:   time.Now().UTC(),
		Value:  []byte(`{"reason":"manual"}`),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.TypeSyncRequested)},
		},
	}

	reader := &stubReader{messages: []kafka.Message{msg}, after: contextCanceled}
	handler := &stubHandler{err: errors.New("boom")}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	const topic = "wellness.malformed"
	before := decodeErrors(t, topic)

	reader := &stubReader{
		messages: []kafka.Message{
			{Topic: topic, Offset: 1, Value: []byte(`{}`)},
			{Topic: topic, Offset: 2, Value: []byte(`not json`), Headers: []kafka.Header{{Key: "event_type", Value: []byte(events.TypeDataUpdated)}}},
		},
		after: contextCanceled,
	}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, handler.calls)
	require.Equal(t, 2, reader.commitCalls)
	require.Equal(t, before+2, decodeErrors(t, topic))
}

func decodeErrors(t *testing.T, topic string) float64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, decodeErrorCounter.WithLabelValues(topic).Write(metric))
	return metric.GetCounter().GetValue()
}

func TestRouterDispatchesByEventType(t *testing.T) {
	var order []string
	router := NewRouter(log.New(testWriter{t}, "", 0)).
		On(events.TypeSyncRequested, HandlerFunc(func(context.Context, Message) error {
			order = append(order, "log")
			return nil
		})).
		On(events.TypeSyncRequested, HandlerFunc(func(context.Context, Message) error {
			order = append(order, "sync")
			return nil
		}))

	require.NoError(t, router.Handle(context.Background(), Message{EventType: events.TypeSyncRequested}))
	require.Equal(t, []string{"log", "sync"}, order)

	require.NoError(t, router.Handle(context.Background(), Message{EventType: "unknown"}))
	require.Len(t, order, 2)
}

type stubSyncer struct {
	from, to time.Time
	result   syncer.Result
	err      error
	calls    int
}

func (s *stubSyncer) Sync(_ context.Context, from, to time.Time) (syncer.Result, error) {
	s.calls++
	s.from, s.to = from, to
	return s.result, s.err
}

func newSyncHandler(t *testing.T, s Syncer) *SyncHandler {
	h := NewSyncHandler(s, 7, time.UTC, log.New(testWriter{t}, "", 0))
	h.now = func() time.Time { return time.Date(2025, time.June, 12, 15, 0, 0, 0, time.UTC) }
	return h
}

func TestSyncHandlerDefaultsToLookback(t *testing.T) {
	s := &stubSyncer{result: syncer.Result{PassID: "p"}}
	h := newSyncHandler(t, s)

	require.NoError(t, h.Handle(context.Background(), Message{Payload: []byte(`{"reason":"schedule"}`)}))
	require.Equal(t, time.Date(2025, time.June, 6, 0, 0, 0, 0, time.UTC), s.from)
	require.Equal(t, time.Date(2025, time.June, 12, 0, 0, 0, 0, time.UTC), s.to)
}

func TestSyncHandlerUsesRequestedRange(t *testing.T) {
	s := &stubSyncer{}
	h := newSyncHandler(t, s)

	require.NoError(t, h.Handle(context.Background(), Message{Payload: []byte(`{"from":"2025-05-01","to":"2025-05-03"}`)}))
	require.Equal(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), s.from)
	require.Equal(t, time.Date(2025, time.May, 3, 0, 0, 0, 0, time.UTC), s.to)

	require.Error(t, h.Handle(context.Background(), Message{Payload: []byte(`{"from":"2025-05-04","to":"2025-05-03"}`)}))
	require.Error(t, h.Handle(context.Background(), Message{Payload: []byte(`{"from":"May 4"}`)}))
	require.Equal(t, 1, s.calls)
}

func TestSyncHandlerSkippedPassIsHandled(t *testing.T) {
	h := newSyncHandler(t, &stubSyncer{result: syncer.Result{Skipped: true}})
	require.NoError(t, h.Handle(context.Background(), Message{Payload: []byte(`{}`)}))

	h = newSyncHandler(t, &stubSyncer{err: errors.New("store down")})
	require.Error(t, h.Handle(context.Background(), Message{Payload: []byte(`{}`)}))
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
