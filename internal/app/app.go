package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gonglijing/clinisense/internal/auth"
	"github.com/gonglijing/clinisense/internal/cache"
	"github.com/gonglijing/clinisense/internal/circuit"
	"github.com/gonglijing/clinisense/internal/config"
	"github.com/gonglijing/clinisense/internal/dashboard"
	"github.com/gonglijing/clinisense/internal/database"
	"github.com/gonglijing/clinisense/internal/graceful"
	"github.com/gonglijing/clinisense/internal/handlers"
	"github.com/gonglijing/clinisense/internal/live"
	"github.com/gonglijing/clinisense/internal/logger"
	"github.com/gonglijing/clinisense/internal/notify"
	"github.com/gonglijing/clinisense/internal/upstream"
)

const shutdownTimeout = 30 * time.Second

// ServiceName 日志中的服务名
const ServiceName = "clinisense"

// SetupLogging 按配置初始化全局日志，返回日志文件（可为空）
func SetupLogging(cfg *config.Config) (io.Closer, error) {
	logger.Configure(cfg.LogLevel, cfg.LogFormat, ServiceName)
	if cfg.LogFile == "" {
		return nil, nil
	}
	return logger.InitFileOutput(cfg.LogFile, 0)
}

// newUpstream 带熔断的上游客户端
func newUpstream(cfg *config.Config, log *zap.Logger) (*upstream.Client, *circuit.CircuitBreaker) {
	breaker := circuit.NewCircuitBreaker(&circuit.Config{
		Name:             "upstream",
		FailureThreshold: cfg.BreakerFailures,
		RecoveryTimeout:  cfg.BreakerReset,
		IsFailure:        upstream.IsTransportFailure,
		Logger:           log,
	})
	client := upstream.New(upstream.Options{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
		Breaker: breaker,
		Logger:  log,
	})
	return client, breaker
}

// Run boots the application and blocks until shutdown completes.
func Run(cfg *config.Config) error {
	if logFile, err := SetupLogging(cfg); err != nil {
		return fmt.Errorf("log file: %w", err)
	} else if logFile != nil {
		defer logFile.Close()
	}
	defer func() { _ = logger.Sync() }()

	log := logger.L()
	log.Info("starting", zap.Stringer("config", cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	kv, err := cache.Open(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	store, err := database.Open(ctx, cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return err
	}

	api, breaker := newUpstream(cfg, log)
	authManager := auth.NewJWTManager(loadOrGenerateSecretKey(cfg.SessionSecret, secretKeyFile), cfg.SessionTTL, kv, api, log)

	dash := dashboard.New(dashboard.Options{
		Source: api,
		Cache:  kv,
		Store:  store,
		TTL:    cfg.PollInterval,
		Logger: log,
	})
	if cfg.APIServiceToken != "" {
		dash.Pin(dashboard.ScopeOf(auth.ServiceSession(cfg.APIServiceToken)))
	}

	hub := live.NewHub(originChecker(cfg.GetAllowedOrigins()), log)
	go hub.Run()

	publisher := notify.New(notify.Config{
		Broker:   cfg.MQTTBroker,
		Topic:    cfg.MQTTTopic,
		ClientID: cfg.MQTTClientID,
	}, log)

	poller := dashboard.NewPoller(dash, cfg.PollInterval, hub, publisher, log)
	if err := poller.Start(); err != nil {
		return err
	}

	retention := database.NewRetention(store, 0, 0)
	retention.Start()

	checks := map[string]handlers.Check{"database": store.Ping}
	if pinger, ok := kv.(interface{ Ping(context.Context) error }); ok {
		checks["cache"] = pinger.Ping
	}

	h := handlers.NewHandler(handlers.Deps{
		Auth:      authManager,
		Upstream:  api,
		Dashboard: dash,
		Live:      hub,
		Breaker:   breaker,
		Checks:    checks,
		LoginRate: cfg.LoginRatePerMinute,
		Logger:    log,
	})

	router := buildRouter(h, authManager)
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      buildHandlerChain(cfg, router, log),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Named("http")),
	}

	gracefulMgr := graceful.NewGracefulShutdown(shutdownTimeout, log)
	gracefulMgr.SetHTTPServer(server)
	registerShutdown(gracefulMgr, poller, hub, publisher, retention, store, kv)
	gracefulMgr.Start()

	err = serve(server, cfg, log)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", zap.Error(err))
		gracefulMgr.Trigger()
		gracefulMgr.Wait()
		return fmt.Errorf("server error: %w", err)
	}

	gracefulMgr.Wait()
	return nil
}

// serve TLS 优先级：1) 自动证书 2) 指定证书 3) HTTP
func serve(server *http.Server, cfg *config.Config, log *zap.Logger) error {
	switch {
	case cfg.TLSAuto && cfg.TLSDomain != "":
		return listenAndServeWithAutoCert(server, cfg, log)
	case cfg.TLSCertFile != "" && cfg.TLSKeyFile != "":
		log.Info("listening (https)", zap.String("addr", cfg.ListenAddr), zap.String("cert", cfg.TLSCertFile))
		return server.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	default:
		log.Info("listening (http)", zap.String("addr", cfg.ListenAddr))
		return server.ListenAndServe()
	}
}

func registerShutdown(g *graceful.GracefulShutdown, poller *dashboard.Poller, hub *live.Hub,
	publisher notify.AlertPublisher, retention *database.Retention, store *database.Store, kv cache.KVStore) {
	g.Add("poller", func(ctx context.Context) error {
		return poller.Stop()
	})
	g.Add("websocket hub", func(ctx context.Context) error {
		hub.Stop()
		return nil
	})
	g.Add("mqtt", func(ctx context.Context) error {
		publisher.Close()
		return nil
	})
	g.Add("retention", func(ctx context.Context) error {
		retention.Stop()
		return nil
	})
	g.Add("database", func(ctx context.Context) error {
		return store.Close()
	})
	if closer, ok := kv.(io.Closer); ok {
		g.Add("cache", func(ctx context.Context) error {
			return closer.Close()
		})
	}
}

// FetchSummary 用服务令牌拉取一次全局汇总，不启动 HTTP 服务与后台任务
func FetchSummary(ctx context.Context, cfg *config.Config) (dashboard.Summary, error) {
	if cfg.APIServiceToken == "" {
		return dashboard.Summary{}, errors.New("API_SERVICE_TOKEN is required")
	}
	log := logger.L()
	api, _ := newUpstream(cfg, log)
	dash := dashboard.New(dashboard.Options{Source: api, Cache: cache.NewMemoryKVStore(), Logger: log})

	snap, err := dash.Refresh(ctx, dashboard.ScopeOf(auth.ServiceSession(cfg.APIServiceToken)))
	if err != nil {
		return dashboard.Summary{}, err
	}
	return snap.Summary(), nil
}
