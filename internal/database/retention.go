package database

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Prune 删除早于 cutoff 的快照与审计记录
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ms := cutoff.UnixMilli()
	var total int64
	for _, query := range []string{
		"DELETE FROM snapshots WHERE fetched_at < ?",
		"DELETE FROM alert_actions WHERE acted_at < ?",
	} {
		result, err := s.exec(ctx, query, ms)
		if err != nil {
			return total, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Retention 定期清理过期数据
type Retention struct {
	store    *Store
	keep     time.Duration
	interval time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// DefaultRetention 默认保留 30 天
const DefaultRetention = 30 * 24 * time.Hour

// NewRetention keep 为保留时长，interval<=0 时默认 6 小时
func NewRetention(store *Store, keep, interval time.Duration) *Retention {
	if keep <= 0 {
		keep = DefaultRetention
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Retention{store: store, keep: keep, interval: interval}
}

// Start 启动清理任务，重复调用无效果
func (r *Retention) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopChan != nil {
		return
	}
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(r.stopChan, r.done)
}

// Stop 停止清理任务
func (r *Retention) Stop() {
	r.mu.Lock()
	stop, done := r.stopChan, r.done
	r.stopChan, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (r *Retention) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.store.log.Info("retention cleanup started", zap.Duration("interval", r.interval), zap.Duration("keep", r.keep))
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			n, err := r.store.Prune(ctx, time.Now().Add(-r.keep))
			cancel()
			if err != nil {
				r.store.log.Error("retention cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				r.store.log.Info("retention cleanup", zap.Int64("deleted", n))
			}
		case <-stop:
			r.store.log.Info("retention cleanup stopped")
			return
		}
	}
}
