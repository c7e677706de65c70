package services

import (
	"context"

	"github.com/Gopher0727/GroupChat/internal/events"
)

// Broadcaster 事件发布, 由推送中心实现; 必须不阻塞调用方
type Broadcaster interface {
	Publish(ctx context.Context, ev events.Event)
}

// IDGenerator 生成规范形式的字符串 ID
type IDGenerator interface {
	NextString() (string, error)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(context.Context, events.Event) {}

func orNop(b Broadcaster) Broadcaster {
	if b == nil {
		return nopBroadcaster{}
	}
	return b
}
