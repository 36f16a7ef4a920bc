package dingtalk_sync

import (
	"context"
	"log/slog"
	"sync"

	"dingtalk-sync-service/service/models"
)

// Observer 同步钩子观察者，pre_sync/post_sync/sync_failed 三类事件
type Observer func(ctx context.Context, event models.DingTalkSyncEvent)

// Hooks 同步钩子，观察者异常不影响同步本身
type Hooks struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewHooks 创建同步钩子
func NewHooks() *Hooks {
	return &Hooks{}
}

// Subscribe 注册观察者
func (h *Hooks) Subscribe(observer Observer) {
	if h == nil || observer == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, observer)
}

// Emit 按注册顺序通知观察者
func (h *Hooks) Emit(ctx context.Context, event models.DingTalkSyncEvent) {
	if h == nil {
		return
	}
	h.mu.RLock()
	observers := append([]Observer(nil), h.observers...)
	h.mu.RUnlock()

	for _, observer := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("同步钩子执行异常", "event", event.Event, "operation", event.Operation, "panic", r)
				}
			}()
			observer(ctx, event)
		}()
	}
}
