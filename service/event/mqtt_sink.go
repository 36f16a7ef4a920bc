/*
 * @module service/event/mqtt_sink
 * @description MQTT同步事件通道
 * @architecture 适配器模式 - 封装paho MQTT客户端
 * @documentReference ai_docs/dingtalk_sync.md
 * @stateFlow 连接Broker -> 事件 -> JSON -> 发布到 {topic}/{config_id}/{event}
 * @rules QoS 1，不保留消息；断线由客户端自动重连
 * @dependencies github.com/eclipse/paho.mqtt.golang
 * @refs service/event/event_bus.go
 */

package event

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dingtalk-sync-service/service/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions MQTT通道配置
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

// MQTTSink MQTT事件通道
type MQTTSink struct {
	topic  string
	client mqtt.Client
}

// NewMQTTSink 连接Broker并创建MQTT事件通道
func NewMQTTSink(options MQTTOptions) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(options.Broker)
	clientID := options.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("dingtalk-sync-%d", time.Now().UnixNano())
	}
	opts.SetClientID(clientID)
	if options.Username != "" {
		opts.SetUsername(options.Username)
		opts.SetPassword(options.Password)
	}
	opts.SetCleanSession(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		slog.Info("MQTT事件通道已连接", "broker", options.Broker)
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		slog.Warn("MQTT事件通道连接断开", "broker", options.Broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("连接MQTT Broker失败: %w", token.Error())
	}
	return newMQTTSinkWithClient(client, options.Topic), nil
}

func newMQTTSinkWithClient(client mqtt.Client, topic string) *MQTTSink {
	return &MQTTSink{topic: strings.TrimSuffix(topic, "/"), client: client}
}

// Name 通道名称
func (s *MQTTSink) Name() string {
	return "mqtt:" + s.topic
}

// EventTopic 事件发布主题
func (s *MQTTSink) EventTopic(event models.DingTalkSyncEvent) string {
	return fmt.Sprintf("%s/%s/%s", s.topic, event.ConfigID, event.Event)
}

// Publish 发布同步事件
func (s *MQTTSink) Publish(ctx context.Context, event models.DingTalkSyncEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}

	token := s.client.Publish(s.EventTopic(event), 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("发布MQTT消息超时: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("发布MQTT消息失败: %w", err)
	}
	return nil
}

// Close 断开连接
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
