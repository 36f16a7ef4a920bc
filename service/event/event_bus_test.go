package event

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"dingtalk-sync-service/service/models"
	"dingtalk-sync-service/testutil"

	dapr "github.com/dapr/go-sdk/client"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sampleEvent() models.DingTalkSyncEvent {
	return models.DingTalkSyncEvent{
		Event:     "post_sync",
		ConfigID:  "default",
		Operation: "sync_users",
		Stats:     map[string]interface{}{"user_count": 3},
		Timestamp: time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestEventBus_FanOut(t *testing.T) {
	first := new(testutil.MockEventSink)
	second := new(testutil.MockEventSink)
	event := sampleEvent()

	first.On("Publish", mock.Anything, event).Return(nil).Once()
	first.On("Close").Return(nil).Once()
	first.On("Name").Return("first").Maybe()
	second.On("Publish", mock.Anything, event).Return(errors.New("broker down")).Once()
	second.On("Close").Return(nil).Once()
	second.On("Name").Return("second").Maybe()

	bus := NewEventBus(4, first, second)
	bus.Observe(context.Background(), event)
	require.NoError(t, bus.Close())

	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestEventBus_CloseIsIdempotent(t *testing.T) {
	sink := new(testutil.MockEventSink)
	sink.On("Close").Return(nil).Once()
	sink.On("Name").Return("sink").Maybe()

	bus := NewEventBus(1, sink)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	bus.Observe(context.Background(), sampleEvent())
	sink.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestEventBus_NoSinks(t *testing.T) {
	bus := NewEventBus(0)
	bus.Observe(context.Background(), sampleEvent())
	assert.Empty(t, bus.SinkNames())
	assert.NoError(t, bus.Close())
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_Publish(t *testing.T) {
	writer := &fakeWriter{}
	sink := &KafkaSink{topic: "dingtalk-sync", writer: writer}

	require.NoError(t, sink.Publish(context.Background(), sampleEvent()))
	require.Len(t, writer.messages, 1)

	message := writer.messages[0]
	assert.Equal(t, "default", string(message.Key))
	assert.Equal(t, "kafka:dingtalk-sync", sink.Name())

	var decoded models.DingTalkSyncEvent
	require.NoError(t, json.Unmarshal(message.Value, &decoded))
	assert.Equal(t, "sync_users", decoded.Operation)
	assert.EqualValues(t, 3, decoded.Stats["user_count"])

	headers := map[string]string{}
	for _, header := range message.Headers {
		headers[header.Key] = string(header.Value)
	}
	assert.Equal(t, "post_sync", headers["event"])

	writer.err = errors.New("leader not available")
	err := sink.Publish(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "leader not available")

	require.NoError(t, sink.Close())
	assert.True(t, writer.closed)
}

type fakeDapr struct {
	pubsub string
	topic  string
	data   interface{}
	closed bool
}

func (d *fakeDapr) PublishEvent(ctx context.Context, pubsubName, topicName string, data interface{}, opts ...dapr.PublishEventOption) error {
	d.pubsub, d.topic, d.data = pubsubName, topicName, data
	return nil
}

func (d *fakeDapr) Close() {
	d.closed = true
}

func TestDaprSink_Publish(t *testing.T) {
	client := &fakeDapr{}
	sink := &DaprSink{pubsubName: "pubsub", topic: "dingtalk-sync", client: client}

	require.NoError(t, sink.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, "pubsub", client.pubsub)
	assert.Equal(t, "dingtalk-sync", client.topic)
	assert.Contains(t, string(client.data.([]byte)), `"config_id":"default"`)
	assert.Equal(t, "dapr:pubsub/dingtalk-sync", sink.Name())

	require.NoError(t, sink.Close())
	assert.True(t, client.closed)
}

func TestMQTTSink_EventTopic(t *testing.T) {
	sink := newMQTTSinkWithClient(nil, "dingtalk/sync/")
	assert.Equal(t, "mqtt:dingtalk/sync", sink.Name())
	assert.Equal(t, "dingtalk/sync/default/post_sync", sink.EventTopic(sampleEvent()))
}
