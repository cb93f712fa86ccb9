package lock

import (
	"context"
	"sync"
)

// Unlock 释放已获取的锁，可重复调用
type Unlock func()

// Locker 按 key 互斥。owner 仅用于追踪锁的持有者
type Locker interface {
	Acquire(ctx context.Context, key, owner string) (Unlock, error)
}

func AccountKey(accountID string) string {
	return "account:" + accountID
}

func PaymentKey(paymentID string) string {
	return "payment:" + paymentID
}

// LocalLocker 进程内按 key 加锁，key 无人使用时回收
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key, _ string) (Unlock, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *LocalLocker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
