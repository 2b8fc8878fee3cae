package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginLimiter 登录限流：每个 IP 每分钟 perMinute 次，允许同样大小的突发
type LoginLimiter struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	perMinute int
	swept     time.Time
	now       func() time.Time
}

// NewLoginLimiter perMinute <= 0 时不限流
func NewLoginLimiter(perMinute int) *LoginLimiter {
	return &LoginLimiter{
		entries:   make(map[string]*limiterEntry),
		perMinute: perMinute,
		now:       time.Now,
	}
}

// Allow 检查是否允许请求
func (l *LoginLimiter) Allow(ip string) bool {
	if l == nil || l.perMinute <= 0 {
		return true
	}
	if ip == "" {
		ip = "unknown"
	}
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.swept) > limiterIdle {
		l.sweepLocked(now)
	}
	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)}
		l.entries[ip] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Cleanup 清理长时间未出现的 IP
func (l *LoginLimiter) Cleanup() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(l.now())
}

func (l *LoginLimiter) sweepLocked(now time.Time) int {
	l.swept = now
	cutoff := now.Add(-limiterIdle)
	removed := 0
	for ip, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, ip)
			removed++
		}
	}
	return removed
}

// clientIP 取 RemoteAddr 的主机部分；X-Forwarded-For 由 ProxyHeaders 中间件处理
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
