/*
 * @module service/event/event_bus
 * @description 同步事件总线，订阅同步钩子并异步推送到各事件通道
 * @architecture 事件驱动架构 - 观察者模式
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 同步钩子 -> 事件队列 -> 逐个推送到Kafka/MQTT/Dapr
 * @rules 推送失败只记录日志，不影响同步；队列满时丢弃事件并告警
 * @dependencies log/slog
 * @refs service/dingtalk/dingtalk_sync/hooks.go
 */

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dingtalk-sync-service/service/models"
)

const (
	// DefaultQueueSize 事件队列默认容量
	DefaultQueueSize = 256
	// DefaultPublishTimeout 单次推送超时时间
	DefaultPublishTimeout = 5 * time.Second
)

// Sink 同步事件推送通道
type Sink interface {
	Name() string
	Publish(ctx context.Context, event models.DingTalkSyncEvent) error
	Close() error
}

// EventBus 同步事件总线
type EventBus struct {
	sinks   []Sink
	queue   chan models.DingTalkSyncEvent
	timeout time.Duration
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

// NewEventBus 创建事件总线并启动推送协程
func NewEventBus(queueSize int, sinks ...Sink) *EventBus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	bus := &EventBus{
		sinks:   sinks,
		queue:   make(chan models.DingTalkSyncEvent, queueSize),
		timeout: DefaultPublishTimeout,
	}
	bus.wg.Add(1)
	go bus.run()
	return bus
}

// SinkNames 返回已注册的通道名称
func (b *EventBus) SinkNames() []string {
	names := make([]string, 0, len(b.sinks))
	for _, sink := range b.sinks {
		names = append(names, sink.Name())
	}
	return names
}

// Observe 作为同步钩子观察者入队事件，不阻塞同步流程
func (b *EventBus) Observe(ctx context.Context, event models.DingTalkSyncEvent) {
	if len(b.sinks) == 0 {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- event:
	default:
		slog.Warn("同步事件队列已满，丢弃事件", "event", event.Event, "config_id", event.ConfigID, "operation", event.Operation)
	}
}

func (b *EventBus) run() {
	defer b.wg.Done()
	for event := range b.queue {
		b.dispatch(event)
	}
}

func (b *EventBus) dispatch(event models.DingTalkSyncEvent) {
	for _, sink := range b.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		if err := sink.Publish(ctx, event); err != nil {
			slog.Error("同步事件推送失败",
				"sink", sink.Name(),
				"event", event.Event,
				"config_id", event.ConfigID,
				"operation", event.Operation,
				"error", err)
		}
		cancel()
	}
}

// Close 推送完队列中剩余事件后关闭所有通道
func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()

	var firstErr error
	for _, sink := range b.sinks {
		if err := sink.Close(); err != nil {
			slog.Error("关闭同步事件通道失败", "sink", sink.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// encodeEvent 序列化事件载荷
func encodeEvent(event models.DingTalkSyncEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("序列化同步事件失败: %w", err)
	}
	return payload, nil
}
