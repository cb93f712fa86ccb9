package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"imagepay/internal/config"
	"imagepay/internal/event"
	"imagepay/internal/handler"
	"imagepay/internal/infrastructure/cache"
	"imagepay/internal/infrastructure/database"
	"imagepay/internal/infrastructure/lock"
	"imagepay/internal/infrastructure/mq"
	"imagepay/internal/job"
	"imagepay/internal/provider"
	"imagepay/internal/repository"
	"imagepay/internal/repository/gormstore"
	"imagepay/internal/repository/memory"
	"imagepay/internal/service"
	"imagepay/pkg/idgen"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env 不存在时只使用环境变量
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("读取 .env 失败: %v", err)
	}

	cfg := config.LoadConfig("config/config.yaml")

	idgen.Init(1)

	var store repository.Store
	switch cfg.Storage.Driver {
	case config.StorageDriverMySQL:
		store = gormstore.New(database.InitMySQL(&cfg.MySQL))
	default:
		store = memory.New()
		log.Println("使用内存存储，重启后数据丢失")
	}

	var (
		locker   lock.Locker
		sessions cache.SessionStore
	)
	if cfg.Redis.Enabled {
		redisClient := cache.InitRedis(&cfg.Redis)
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient)
		sessions = cache.NewRedisSessionStore(redisClient, cfg.Server.SessionTTL)
	} else {
		locker = lock.NewLocalLocker()
		sessions = cache.NewMemorySessionStore(cfg.Server.SessionTTL)
	}

	var publisher mq.Publisher = mq.LogPublisher{}
	if cfg.Kafka.Enabled {
		publisher = mq.InitKafka(&cfg.Kafka)
	}
	defer publisher.Close()

	var imageProvider provider.Provider
	switch cfg.Provider.Driver {
	case config.ProviderDriverGemini:
		imageProvider = provider.NewGeminiProvider(cfg.Provider.Endpoint, cfg.Provider.Model, &http.Client{})
	default:
		imageProvider = provider.StubProvider{Model: cfg.Provider.Model}
	}
	keys := provider.NewKeyRing(cfg.Provider.APIKey)

	bus := event.NewBus()
	bus.Subscribe(func(_ context.Context, e event.Event) {
		log.Printf("[Event] %s: accountID=%s, ref=%s, balance=%d", e.Type, e.AccountID, e.RefID, e.Balance)
	})

	outboxSender := job.NewOutboxSender(store, publisher, cfg.Business.MaxRetryCount)

	ledger := service.NewLedgerService(store, locker, bus, cfg)
	identity := service.NewIdentityService(store, cfg)
	h := handler.NewHandler(handler.Services{
		Identity:   identity,
		Ledger:     ledger,
		Payments:   service.NewPaymentService(store, locker, ledger, bus, cfg),
		Generation: service.NewGenerationService(store, ledger, imageProvider, keys, bus, cfg),
		Analytics:  service.NewAnalyticsService(store),
		Outbox:     outboxSender,
	}, sessions, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go outboxSender.Start(ctx)

	reconcileJob := job.NewReconcileJob(store, cfg.Business.ReconcileInterval)
	go reconcileJob.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.SetupRouter(h),
	}

	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	// 请求处理完后停止后台任务，并投递剩余消息
	cancel()
	outboxSender.Flush(shutdownCtx)

	log.Println("服务已关闭")
}
