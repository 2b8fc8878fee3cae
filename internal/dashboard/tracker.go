package dashboard

import (
	"sync"
	"time"

	"github.com/gonglijing/clinisense/internal/models"
)

const defaultPublishMemory = 24 * time.Hour

// alertTracker 记录每个范围已知的活动报警，识别新出现的报警。
// 规则：
// 1) 范围第一次被观察时只建立基线，不产生新报警
// 2) 之后出现在活动列表而不在基线中的报警视为新报警
// 3) 离开活动列表的报警从基线移除
type alertTracker struct {
	mu        sync.Mutex
	seen      map[string]map[models.ID]struct{}
	published map[models.ID]time.Time
	memory    time.Duration
}

func newAlertTracker() *alertTracker {
	return &alertTracker{
		seen:      make(map[string]map[models.ID]struct{}),
		published: make(map[models.ID]time.Time),
		memory:    defaultPublishMemory,
	}
}

// observe 更新范围基线并返回新出现的活动报警 ID，保持输入顺序
func (t *alertTracker) observe(scope string, active []models.Alert) []models.ID {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := make(map[models.ID]struct{}, len(active))
	for _, a := range active {
		current[a.ID] = struct{}{}
	}

	prev, known := t.seen[scope]
	t.seen[scope] = current
	if !known {
		return nil
	}

	var fresh []models.ID
	emitted := make(map[models.ID]struct{})
	for _, a := range active {
		if _, ok := prev[a.ID]; ok {
			continue
		}
		if _, ok := emitted[a.ID]; ok {
			continue
		}
		emitted[a.ID] = struct{}{}
		fresh = append(fresh, a.ID)
	}
	return fresh
}

// shouldPublish 同一报警只外发一次（多个范围可能同时看到它）
func (t *alertTracker) shouldPublish(id models.ID, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, at := range t.published {
		if now.Sub(at) > t.memory {
			delete(t.published, key)
		}
	}
	if _, ok := t.published[id]; ok {
		return false
	}
	t.published[id] = now
	return true
}

// forget 移除范围基线
func (t *alertTracker) forget(scope string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, scope)
}
