package service

import (
	"context"

	"github.com/d60-Lab/clipvote/internal/queue"
)

// EventApplier 把一批排队事件落入关系库。实现必须满足至少一次投递下的
// 幂等性：同一事件应用两遍不得产生第二份副作用。
type EventApplier interface {
	Apply(ctx context.Context, events []queue.Event) *ApplyResult
}

// ApplyResult 按事件归类的应用结果。数据库层面的失败记在 Failed 里
// 由调用方决定重试或进死信，不在这里中断整批。
type ApplyResult struct {
	Succeeded []queue.Event
	Failed    []FailedEvent
}

type FailedEvent struct {
	Event queue.Event
	Err   error
}

func (r *ApplyResult) ok(ev queue.Event)             { r.Succeeded = append(r.Succeeded, ev) }
func (r *ApplyResult) fail(ev queue.Event, err error) { r.Failed = append(r.Failed, FailedEvent{Event: ev, Err: err}) }
