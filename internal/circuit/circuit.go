package circuit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState 熔断器状态
type CircuitState int

const (
	Closed   CircuitState = iota // 关闭状态，正常运行
	Open                         // 打开状态，拒绝请求
	HalfOpen                     // 半开状态，尝试恢复
)

// String 返回状态字符串
func (s CircuitState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	Name             string
	FailureThreshold int           // 窗口内失败次数阈值
	FailureWindow    time.Duration // 失败计数时间窗口
	SuccessThreshold int           // 半开状态下恢复所需的成功次数
	RecoveryTimeout  time.Duration // 打开后多久进入半开
	// IsFailure 判断错误是否计入失败；为空时所有非 nil 错误都计入
	IsFailure func(error) bool
	Logger    *zap.Logger
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Name:             "upstream",
		FailureThreshold: 5,
		FailureWindow:    time.Minute,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
	}
}

// CircuitBreaker 熔断器
type CircuitBreaker struct {
	mu          sync.Mutex
	cfg         Config
	state       CircuitState
	failures    []time.Time
	halfOpenOK  int
	probing     bool
	openedAt    time.Time
	now         func() time.Time
	log         *zap.Logger
	requests    int64
	failureHits int64
	rejected    int64
}

// NewCircuitBreaker 创建熔断器，零值字段取默认配置
func NewCircuitBreaker(cfg *Config) *CircuitBreaker {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = def.FailureWindow
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = def.RecoveryTimeout
	}
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &CircuitBreaker{cfg: c, state: Closed, now: time.Now, log: log.With(zap.String("breaker", c.Name))}
}

// Execute 执行受保护的函数；熔断打开时直接返回 *CircuitOpenError。
// 调用方 ctx 已取消或超时的结果不计入统计。
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.allow()
	if err != nil {
		return err
	}
	err = fn(ctx)
	if err != nil && ctx.Err() != nil {
		cb.release(probe)
		return err
	}
	cb.record(err, probe)
	return err
}

// allow 半开状态同一时刻只放行一个探测请求
func (cb *CircuitBreaker) allow() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	cb.advanceLocked()
	switch cb.state {
	case Open:
		cb.rejected++
		return false, &CircuitOpenError{Name: cb.cfg.Name, RetryAfter: cb.retryAfterLocked()}
	case HalfOpen:
		if cb.probing {
			cb.rejected++
			return false, &CircuitOpenError{Name: cb.cfg.Name, RetryAfter: 0}
		}
		cb.probing = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) release(probe bool) {
	if !probe {
		return
	}
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) record(err error, probe bool) {
	failed := err != nil
	if failed && cb.cfg.IsFailure != nil {
		failed = cb.cfg.IsFailure(err)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := cb.now()
	if probe {
		cb.probing = false
	}
	// 半开期间只有探测请求的结果有效
	if cb.state == HalfOpen && !probe {
		return
	}

	if !failed {
		if cb.state == HalfOpen {
			cb.halfOpenOK++
			if cb.halfOpenOK >= cb.cfg.SuccessThreshold {
				cb.transitionLocked(Closed, now)
			}
		}
		return
	}

	cb.failureHits++
	switch cb.state {
	case HalfOpen:
		cb.transitionLocked(Open, now)
	case Closed:
		cb.failures = append(cb.failures, now)
		cb.pruneLocked(now)
		if len(cb.failures) >= cb.cfg.FailureThreshold {
			cb.transitionLocked(Open, now)
		}
	}
}

// advanceLocked 打开超过恢复时间后进入半开
func (cb *CircuitBreaker) advanceLocked() {
	if cb.state == Open && cb.now().Sub(cb.openedAt) >= cb.cfg.RecoveryTimeout {
		cb.transitionLocked(HalfOpen, cb.now())
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState, now time.Time) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.halfOpenOK = 0
	cb.probing = false
	cb.failures = cb.failures[:0]
	if to == Open {
		cb.openedAt = now
	}
	cb.log.Info("circuit breaker state changed", zap.Stringer("from", from), zap.Stringer("to", to))
}

func (cb *CircuitBreaker) pruneLocked(now time.Time) {
	windowStart := now.Add(-cb.cfg.FailureWindow)
	kept := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	cb.failures = kept
}

func (cb *CircuitBreaker) retryAfterLocked() time.Duration {
	if cb.state != Open {
		return 0
	}
	d := cb.cfg.RecoveryTimeout - cb.now().Sub(cb.openedAt)
	if d < 0 {
		return 0
	}
	return d
}

// State 获取当前状态
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceLocked()
	return cb.state
}

// Reset 重置熔断器
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = Closed
	cb.failures = cb.failures[:0]
	cb.halfOpenOK = 0
	cb.probing = false
}

// Stats 统计信息，用于 /metrics
type Stats struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Requests   int64  `json:"requests"`
	Failures   int64  `json:"failures"`
	Rejected   int64  `json:"rejected"`
	RetryAfter string `json:"retry_after,omitempty"`
}

// Stats 获取统计信息
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceLocked()
	s := Stats{
		Name:     cb.cfg.Name,
		State:    cb.state.String(),
		Requests: cb.requests,
		Failures: cb.failureHits,
		Rejected: cb.rejected,
	}
	if d := cb.retryAfterLocked(); d > 0 {
		s.RetryAfter = d.String()
	}
	return s
}

// CircuitOpenError 熔断器打开错误
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return "circuit breaker " + e.Name + " is open, retry after " + e.RetryAfter.String()
}
