/*
 * @module service/event/kafka_sink
 * @description Kafka同步事件通道
 * @architecture 适配器模式 - 封装kafka-go生产者
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 事件 -> JSON -> Kafka消息(key=config_id)
 * @rules 同一配置的事件使用相同消息key，保证分区内有序
 * @dependencies github.com/segmentio/kafka-go
 * @refs service/event/event_bus.go
 */

package event

import (
	"context"
	"fmt"
	"time"

	"dingtalk-sync-service/service/models"

	"github.com/segmentio/kafka-go"
)

// messageWriter kafka.Writer 的最小接口
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink Kafka事件通道
type KafkaSink struct {
	topic  string
	writer messageWriter
}

// NewKafkaSink 创建Kafka事件通道
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaSink{topic: topic, writer: writer}
}

// Name 通道名称
func (s *KafkaSink) Name() string {
	return "kafka:" + s.topic
}

// Publish 发送同步事件
func (s *KafkaSink) Publish(ctx context.Context, event models.DingTalkSyncEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}

	message := kafka.Message{
		Key:   []byte(event.ConfigID),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.Event)},
			{Key: "operation", Value: []byte(event.Operation)},
		},
	}
	if err := s.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("发送Kafka消息失败: %w", err)
	}
	return nil
}

// Close 关闭生产者
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
