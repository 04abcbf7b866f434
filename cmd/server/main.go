package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/content"
	"helpdesk/backend/internal/health"
	"helpdesk/backend/internal/imap"
	"helpdesk/backend/internal/ingest"
	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/monitoring"
	"helpdesk/backend/internal/scheduler"
	"helpdesk/backend/internal/service"
	"helpdesk/backend/internal/storage"
	"helpdesk/backend/internal/storage/filesystem"
	"helpdesk/backend/internal/storage/memory"
	redisstore "helpdesk/backend/internal/storage/redis"
	sqlstore "helpdesk/backend/internal/storage/sql"
	httptransport "helpdesk/backend/internal/transport/http"
	"helpdesk/backend/internal/websocket"
)

// main 启动邮件摄取与帮助台 API 的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting helpdesk server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 存储层：配了数据库用 SQL，否则内存存储（开发环境）
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 附件 blob 存储
	blobs, err := filesystem.NewStore(cfg.Storage.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize attachment storage: %v", err))
	}
	log.Info("attachment storage initialized", zap.String("path", cfg.Storage.Path))

	// 同步锁：配了 Redis 用分布式锁，否则进程内锁
	var (
		locker      scheduler.Locker
		redisHealth health.RedisChecker
	)
	if cfg.Redis.Address != "" {
		syncLocker, err := redisstore.NewSyncLocker(&cfg.Redis, log)
		if err != nil {
			panic(fmt.Sprintf("failed to connect to Redis: %v", err))
		}
		defer syncLocker.Close()
		locker = syncLocker
		redisHealth = syncLocker
	} else {
		locker = scheduler.NewLocalLocker()
		log.Info("using in-process sync locks (no Redis configured)")
	}

	// 监控
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	healthChecker := health.NewHealthChecker(store, redisHealth, log)

	// WebSocket Hub（同步通知的广播端）
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, cfg.JWT.Secret, log)

	// 摄取管线
	normalizer := content.NewNormalizer(cfg.Sync.URIBase)
	manager := imap.NewManager(imap.DialAccount, log)
	defer manager.Close()
	engine := ingest.NewEngine(store, blobs, normalizer, log)
	orchestrator := ingest.NewOrchestrator(manager, engine, store, wsHub, metrics, log)

	sched := scheduler.New(orchestrator, store, locker, scheduler.Config{
		Interval:       cfg.Sync.Interval,
		AccountTimeout: cfg.Sync.AccountTimeout,
		Workers:        cfg.Sync.Workers,
	}, log)

	// 服务层
	accountService := service.NewAccountService(store, imap.DialAccount)
	conversationService := service.NewConversationService(store)
	spamService := service.NewSpamService(store, log)
	emailService := service.NewEmailService(store, &cfg.SMTP, log)

	// HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:              cfg,
		AccountService:      accountService,
		ConversationService: conversationService,
		SpamService:         spamService,
		EmailService:        emailService,
		Scheduler:           sched,
		WebSocketHub:        wsHub,
		BlobStore:           blobs,
		HealthChecker:       healthChecker,
		MetricsRegistry:     registry,
		Logger:              log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		log.Info("starting sync scheduler",
			zap.Duration("interval", cfg.Sync.Interval),
			zap.Int("workers", cfg.Sync.Workers),
		)
		sched.Start(groupCtx)
		<-groupCtx.Done()
		sched.Stop()
		log.Info("sync scheduler stopped")
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
