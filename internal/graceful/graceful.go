package graceful

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownFunc 关闭函数类型
type ShutdownFunc func(ctx context.Context) error

type step struct {
	name string
	fn   ShutdownFunc
}

// GracefulShutdown 优雅关闭管理器：先停 HTTP 服务，再按注册顺序执行关闭步骤
type GracefulShutdown struct {
	timeout    time.Duration
	steps      []step
	httpServer *http.Server
	notifyChan chan os.Signal
	once       sync.Once
	wg         sync.WaitGroup
	log        *zap.Logger
}

// NewGracefulShutdown 创建优雅关闭管理器
func NewGracefulShutdown(timeout time.Duration, log *zap.Logger) *GracefulShutdown {
	if log == nil {
		log = zap.NewNop()
	}
	return &GracefulShutdown{
		timeout:    timeout,
		notifyChan: make(chan os.Signal, 1),
		log:        log.Named("graceful"),
	}
}

// Add 注册关闭步骤
func (g *GracefulShutdown) Add(name string, f ShutdownFunc) {
	g.steps = append(g.steps, step{name: name, fn: f})
}

// SetHTTPServer 设置HTTP服务器
func (g *GracefulShutdown) SetHTTPServer(srv *http.Server) {
	g.httpServer = srv
}

// Start 监听 SIGINT/SIGTERM
func (g *GracefulShutdown) Start() {
	signal.Notify(g.notifyChan, syscall.SIGINT, syscall.SIGTERM)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		sig := <-g.notifyChan
		signal.Stop(g.notifyChan)
		g.log.Info("shutdown requested", zap.Stringer("signal", sig))
		g.Shutdown()
	}()
}

// Trigger 不等信号直接开始关闭，例如监听失败时
func (g *GracefulShutdown) Trigger() {
	select {
	case g.notifyChan <- syscall.SIGTERM:
	default:
	}
}

// Shutdown 执行关闭，只执行一次
func (g *GracefulShutdown) Shutdown() {
	g.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()

		if g.httpServer != nil {
			g.log.Info("shutting down http server")
			if err := g.httpServer.Shutdown(ctx); err != nil {
				g.log.Warn("http server shutdown", zap.Error(err))
			}
		}

		for i, s := range g.steps {
			g.log.Info("shutdown step", zap.Int("step", i+1), zap.Int("of", len(g.steps)), zap.String("name", s.name))
			if err := s.fn(ctx); err != nil {
				g.log.Warn("shutdown step failed", zap.String("name", s.name), zap.Error(err))
			}
		}

		g.log.Info("graceful shutdown completed")
	})
}

// Wait 等待关闭完成
func (g *GracefulShutdown) Wait() {
	g.wg.Wait()
}

// WithTimeout 创建带超时的上下文
func (g *GracefulShutdown) WithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.timeout)
}
