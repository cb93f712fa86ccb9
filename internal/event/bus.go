// Package event 进程内变更通知。
//
// 发布在业务事务提交之后进行，订阅者收到通知后应重新读取数据；
// 同一变更可能被通知多次，订阅者需要保证重复处理无副作用。
package event

import (
	"context"
	"log"
	"sync"
)

const (
	TypeBalanceChanged    = "balance_changed"
	TypePaymentSettled    = "payment_settled"
	TypeGenerationCreated = "generation_created"
)

type Event struct {
	Type      string
	AccountID string
	RefID     string
	Balance   int64
}

type Handler func(ctx context.Context, e Event)

// Publisher 业务层只依赖发布能力
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe 注册订阅者，返回取消订阅函数
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// Publish 同步通知所有订阅者；单个订阅者 panic 不影响其他订阅者和发布方
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		dispatch(ctx, h, e)
	}
}

func dispatch(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[EventBus] 订阅者处理 %s 事件 panic: %v", e.Type, r)
		}
	}()
	h(ctx, e)
}
