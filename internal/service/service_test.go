package service

import (
	"context"
	"sync"
	"testing"

	"imagepay/internal/config"
	"imagepay/internal/event"
	"imagepay/internal/infrastructure/lock"
	"imagepay/internal/model"
	"imagepay/internal/provider"
	"imagepay/internal/repository"
	"imagepay/internal/repository/memory"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	err   error
	// hook 在返回前执行，用于模拟调用期间的并发操作
	hook func(ctx context.Context)
}

func (p *fakeProvider) Generate(ctx context.Context, req provider.Request) (*provider.Image, error) {
	p.mu.Lock()
	p.calls++
	hook, err := p.hook, p.err
	p.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &provider.Image{URL: "data:image/png;base64,AAAA", Model: "fake-model"}, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type eventRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *eventRecorder) handle(_ context.Context, e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) ofType(typ string) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	cfg        *config.Config
	store      repository.Store
	events     *eventRecorder
	provider   *fakeProvider
	keys       *provider.KeyRing
	identity   *IdentityService
	ledger     *LedgerService
	payments   *PaymentService
	generation *GenerationService
	analytics  *AnalyticsService
}

type envOption func(*testEnv)

func withStore(wrap func(repository.Store) repository.Store) envOption {
	return func(e *testEnv) { e.store = wrap(e.store) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	return newTestEnvWithLocker(t, lock.NewLocalLocker(), opts...)
}

func newTestEnvWithLocker(t *testing.T, locker lock.Locker, opts ...envOption) *testEnv {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Business.AdminEmail = "admin@example.com"

	env := &testEnv{
		cfg:      cfg,
		store:    memory.New(),
		events:   &eventRecorder{},
		provider: &fakeProvider{},
		keys:     provider.NewKeyRing("server-key"),
	}
	for _, opt := range opts {
		opt(env)
	}

	bus := event.NewBus()
	bus.Subscribe(env.events.handle)

	env.identity = NewIdentityService(env.store, cfg)
	env.ledger = NewLedgerService(env.store, locker, bus, cfg)
	env.payments = NewPaymentService(env.store, locker, env.ledger, bus, cfg)
	env.generation = NewGenerationService(env.store, env.ledger, env.provider, env.keys, bus, cfg)
	env.analytics = NewAnalyticsService(env.store)
	return env
}

func (e *testEnv) register(t *testing.T, email string) *model.Account {
	t.Helper()
	account, err := e.identity.Register(context.Background(), email, "pw", "User "+email)
	require.NoError(t, err)
	return account
}

func (e *testEnv) balance(t *testing.T, accountID string) int64 {
	t.Helper()
	account, err := e.store.Accounts().GetByID(context.Background(), accountID)
	require.NoError(t, err)
	return account.Credits
}

func (e *testEnv) pendingTopics(t *testing.T) map[string]int {
	t.Helper()
	msgs, err := e.store.Outbox().GetPendingMessages(context.Background(), 1000)
	require.NoError(t, err)
	topics := make(map[string]int)
	for _, m := range msgs {
		topics[m.Topic]++
	}
	return topics
}
