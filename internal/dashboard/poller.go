package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/gonglijing/clinisense/internal/errors"
	"github.com/gonglijing/clinisense/internal/models"
)

// 推送消息类型
const (
	MessageSummary = "summary"
	MessageAlert   = "alert"
)

// Broadcaster 向某个范围的浏览器连接推送消息
type Broadcaster interface {
	Broadcast(scope, kind string, payload interface{})
}

// AlertEvent 新出现的活动报警
type AlertEvent struct {
	Scope      string    `json:"scope"`
	Alert      AlertRow  `json:"alert"`
	DetectedAt time.Time `json:"detected_at"`
}

// AlertPublisher 新报警外发（MQTT）
type AlertPublisher interface {
	PublishAlert(ctx context.Context, ev AlertEvent) error
}

// Poller 后台轮询：单 goroutine 顺序刷新各范围，轮询之间不重叠
type Poller struct {
	svc      *Service
	interval time.Duration
	hub      Broadcaster
	pub      AlertPublisher
	tracker  *alertTracker
	log      *zap.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPoller hub 与 pub 可为空
func NewPoller(svc *Service, interval time.Duration, hub Broadcaster, pub AlertPublisher, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = defaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		svc:      svc,
		interval: interval,
		hub:      hub,
		pub:      pub,
		tracker:  newAlertTracker(),
		log:      log.Named("poller"),
	}
}

// Start 启动轮询
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("poller is already running")
	}
	p.running = true
	p.stopChan = make(chan struct{})

	p.wg.Add(1)
	go p.run(p.stopChan)

	p.log.Info("poller started", zap.Duration("interval", p.interval))
	return nil
}

// Stop 停止轮询并等待当前一轮结束
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller is not running")
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("poller stopped")
	return nil
}

// IsRunning 是否运行中
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) run(stop <-chan struct{}) {
	defer p.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce 刷新所有跟踪中的范围
func (p *Poller) PollOnce(ctx context.Context) {
	for _, scope := range p.svc.Scopes() {
		if ctx.Err() != nil {
			return
		}
		p.pollScope(ctx, scope)
	}
}

func (p *Poller) pollScope(ctx context.Context, scope Scope) {
	snap, err := p.svc.Refresh(ctx, scope)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeUnauthorized {
			p.log.Warn("scope token rejected, dropping scope", zap.String("scope", scope.Key))
			p.svc.Forget(scope.Key)
			p.tracker.forget(scope.Key)
		}
		return
	}

	if p.hub != nil {
		p.hub.Broadcast(scope.Key, MessageSummary, snap.Summary())
	}

	// 降级数据不参与新报警识别
	if _, failed := snap.Errors[SectionAlerts]; failed {
		return
	}
	fresh := p.tracker.observe(scope.Key, snap.ActiveAlerts())
	if len(fresh) == 0 {
		return
	}

	wanted := make(map[models.ID]struct{}, len(fresh))
	for _, id := range fresh {
		wanted[id] = struct{}{}
	}
	now := time.Now().UTC()
	for _, row := range snap.AlertRows() {
		if _, ok := wanted[row.ID]; !ok {
			continue
		}
		ev := AlertEvent{Scope: scope.Key, Alert: row, DetectedAt: now}
		if p.hub != nil {
			p.hub.Broadcast(scope.Key, MessageAlert, ev)
		}
		if p.pub != nil && p.tracker.shouldPublish(row.ID, now) {
			if err := p.pub.PublishAlert(ctx, ev); err != nil {
				p.log.Warn("publish alert failed", zap.String("alert_id", row.ID.String()), zap.Error(err))
			}
		}
	}
	p.log.Info("new active alerts", zap.String("scope", scope.Key), zap.Int("count", len(fresh)))
}
