package event

import (
	"context"
	"fmt"

	"dingtalk-sync-service/service/models"

	dapr "github.com/dapr/go-sdk/client"
)

// daprPublisher dapr客户端的发布接口
type daprPublisher interface {
	PublishEvent(ctx context.Context, pubsubName, topicName string, data interface{}, opts ...dapr.PublishEventOption) error
	Close()
}

// DaprSink 通过Dapr pub/sub组件推送同步事件
type DaprSink struct {
	pubsubName string
	topic      string
	client     daprPublisher
}

// NewDaprSink 连接本地 Dapr sidecar 并创建事件通道
func NewDaprSink(pubsubName, topic string) (*DaprSink, error) {
	client, err := dapr.NewClient()
	if err != nil {
		return nil, fmt.Errorf("创建Dapr客户端失败: %w", err)
	}
	return &DaprSink{pubsubName: pubsubName, topic: topic, client: client}, nil
}

// Name 通道名称
func (s *DaprSink) Name() string {
	return "dapr:" + s.pubsubName + "/" + s.topic
}

// Publish 发布同步事件
func (s *DaprSink) Publish(ctx context.Context, event models.DingTalkSyncEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := s.client.PublishEvent(ctx, s.pubsubName, s.topic, payload,
		dapr.PublishEventWithContentType("application/json")); err != nil {
		return fmt.Errorf("发布Dapr事件失败: %w", err)
	}
	return nil
}

// Close 关闭客户端
func (s *DaprSink) Close() error {
	s.client.Close()
	return nil
}
