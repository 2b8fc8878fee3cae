package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/gonglijing/clinisense/internal/cache"
	"github.com/gonglijing/clinisense/internal/database"
	apperrors "github.com/gonglijing/clinisense/internal/errors"
	"github.com/gonglijing/clinisense/internal/models"
	"github.com/gonglijing/clinisense/internal/pipeline"
)

const (
	defaultTTL           = 30 * time.Second
	defaultKeepLastGood  = 24 * time.Hour
	defaultFetchTimeout  = 20 * time.Second
	defaultScopeIdle     = 30 * time.Minute
	hierarchyConcurrency = 4
)

var allSections = []string{SectionSensors, SectionAlerts, SectionHierarchy}

// Options 看板服务参数
type Options struct {
	Source Source
	Cache  cache.KVStore
	// Store 可为空，为空时只用缓存做降级
	Store *database.Store
	// TTL 新鲜缓存时长，一般等于轮询周期
	TTL          time.Duration
	KeepLastGood time.Duration
	FetchTimeout time.Duration
	// ScopeIdle 超过该时长未访问的范围不再被后台轮询
	ScopeIdle time.Duration
	Logger    *zap.Logger
}

// Service 看板读模型：拉取、缓存、降级、报警处理
type Service struct {
	source       Source
	cache        cache.KVStore
	store        *database.Store
	ttl          time.Duration
	keepLastGood time.Duration
	fetchTimeout time.Duration
	scopeIdle    time.Duration
	log          *zap.Logger
	now          func() time.Time

	group singleflight.Group

	mu     sync.Mutex
	scopes map[string]trackedScope
}

type trackedScope struct {
	scope    Scope
	lastSeen time.Time
	pinned   bool
}

// New 创建看板服务
func New(opts Options) *Service {
	s := &Service{
		source:       opts.Source,
		cache:        opts.Cache,
		store:        opts.Store,
		ttl:          opts.TTL,
		keepLastGood: opts.KeepLastGood,
		fetchTimeout: opts.FetchTimeout,
		scopeIdle:    opts.ScopeIdle,
		log:          opts.Logger,
		now:          time.Now,
		scopes:       make(map[string]trackedScope),
	}
	if s.cache == nil {
		s.cache = cache.NewMemoryKVStore()
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.keepLastGood <= 0 {
		s.keepLastGood = defaultKeepLastGood
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = defaultFetchTimeout
	}
	if s.scopeIdle <= 0 {
		s.scopeIdle = defaultScopeIdle
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("dashboard")
	return s
}

// Load 读取快照：新鲜缓存优先，否则拉取上游。只有上游拒绝会话时返回错误
func (s *Service) Load(ctx context.Context, scope Scope) (*Snapshot, error) {
	s.Track(scope)
	return s.load(ctx, scope, false)
}

// Refresh 忽略新鲜缓存强制拉取，供后台轮询使用
func (s *Service) Refresh(ctx context.Context, scope Scope) (*Snapshot, error) {
	return s.load(ctx, scope, true)
}

func (s *Service) load(ctx context.Context, scope Scope, force bool) (*Snapshot, error) {
	key := scope.Key
	if force {
		key += "#refresh"
	}
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.build(fetchCtx, scope, force), nil
	})
	if err != nil {
		return nil, err
	}
	snap := v.(*Snapshot)
	for _, code := range snap.errCodes {
		// 会话失效需要重新登录，不做降级
		if code == apperrors.ErrCodeUnauthorized {
			return snap, apperrors.ErrUnauthorized
		}
	}
	return snap, nil
}

type sectionResult struct {
	fetchedAt time.Time
	stale     bool
	err       error
}

func (s *Service) build(ctx context.Context, scope Scope, force bool) *Snapshot {
	snap := &Snapshot{
		Scope:      scope.Key,
		Errors:     make(map[string]string),
		errCodes:   make(map[string]apperrors.ErrorCode),
		userScoped: scope.UserID != "",
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make(map[string]sectionResult, len(allSections))
	)
	record := func(section string, r sectionResult) {
		mu.Lock()
		results[section] = r
		mu.Unlock()
	}

	g.Go(func() error {
		list, r := loadSection(ctx, s, scope, SectionSensors, force, func(ctx context.Context) (models.SensorList, error) {
			sensors, err := s.source.ListSensors(ctx, scope.Token, scope.UserID)
			return models.SensorList(sensors), err
		})
		snap.Sensors = list
		record(SectionSensors, r)
		return nil
	})
	g.Go(func() error {
		alerts, r := loadSection(ctx, s, scope, SectionAlerts, force, func(ctx context.Context) ([]models.Alert, error) {
			return s.source.ListAlerts(ctx, scope.Token, scope.UserID)
		})
		snap.Alerts = alerts
		record(SectionAlerts, r)
		return nil
	})
	g.Go(func() error {
		h, r := loadSection(ctx, s, scope, SectionHierarchy, force, func(ctx context.Context) (pipeline.Hierarchy, error) {
			return s.fetchHierarchy(ctx, scope.Token)
		})
		snap.Hierarchy = h
		record(SectionHierarchy, r)
		return nil
	})
	_ = g.Wait()

	for _, section := range allSections {
		r := results[section]
		if r.stale {
			snap.Stale = true
		}
		if r.err != nil {
			snap.Errors[section] = errorMessage(r.err)
			snap.errCodes[section] = apperrors.CodeOf(r.err)
		}
		if !r.fetchedAt.IsZero() && (snap.FetchedAt.IsZero() || r.fetchedAt.Before(snap.FetchedAt)) {
			snap.FetchedAt = r.fetchedAt
		}
	}
	return snap
}

func errorMessage(err error) string {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.Message
	}
	return err.Error()
}

// fetchHierarchy 诊所→楼层→科室，逐层并发拉取
func (s *Service) fetchHierarchy(ctx context.Context, token string) (pipeline.Hierarchy, error) {
	clinics, err := s.source.ListClinics(ctx, token)
	if err != nil {
		return pipeline.Hierarchy{}, err
	}

	floorsByClinic := make([][]models.Floor, len(clinics))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hierarchyConcurrency)
	for i, c := range clinics {
		g.Go(func() error {
			floors, err := s.source.ListFloors(gctx, token, c.ID)
			if err != nil {
				return err
			}
			for j := range floors {
				if floors[j].ClinicID == "" {
					floors[j].ClinicID = c.ID
				}
			}
			floorsByClinic[i] = floors
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pipeline.Hierarchy{}, err
	}
	var floors []models.Floor
	for _, list := range floorsByClinic {
		floors = append(floors, list...)
	}

	servicesByFloor := make([][]models.Service, len(floors))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(hierarchyConcurrency)
	for i, f := range floors {
		g.Go(func() error {
			services, err := s.source.ListServices(gctx, token, f.ID)
			if err != nil {
				return err
			}
			for j := range services {
				if services[j].FloorID == "" {
					services[j].FloorID = f.ID
				}
			}
			servicesByFloor[i] = services
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pipeline.Hierarchy{}, err
	}
	var services []models.Service
	for _, list := range servicesByFloor {
		services = append(services, list...)
	}

	return pipeline.Hierarchy{Clinics: clinics, Floors: floors, Services: services}, nil
}

type cachedSection struct {
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

func freshKey(scope, section string) string    { return "snapshot:" + scope + ":" + section }
func lastGoodKey(scope, section string) string { return "lastgood:" + scope + ":" + section }

// loadSection 单个分段：新鲜缓存 → 上游 → 上次成功的缓存 → 数据库
func loadSection[T any](ctx context.Context, s *Service, scope Scope, section string, force bool, fetch func(context.Context) (T, error)) (T, sectionResult) {
	if !force {
		if v, at, ok := readSection[T](ctx, s, freshKey(scope.Key, section)); ok {
			return v, sectionResult{fetchedAt: at}
		}
	}

	v, err := fetch(ctx)
	if err == nil {
		at := s.now().UTC()
		s.saveSection(ctx, scope.Key, section, v, at)
		return v, sectionResult{fetchedAt: at}
	}

	s.log.Warn("section fetch failed",
		zap.String("scope", scope.Key), zap.String("section", section), zap.Error(err))

	if v, at, ok := readSection[T](ctx, s, lastGoodKey(scope.Key, section)); ok {
		return v, sectionResult{fetchedAt: at, stale: true, err: err}
	}
	if s.store != nil {
		snap, dbErr := s.store.LoadSnapshot(ctx, scope.Key, section)
		if dbErr == nil {
			var stored T
			if jsonErr := json.Unmarshal(snap.Payload, &stored); jsonErr == nil {
				return stored, sectionResult{fetchedAt: snap.FetchedAt, stale: true, err: err}
			}
		} else if !errors.Is(dbErr, database.ErrNoSnapshot) {
			s.log.Warn("snapshot load failed", zap.String("scope", scope.Key), zap.Error(dbErr))
		}
	}
	var zero T
	return zero, sectionResult{err: err}
}

func readSection[T any](ctx context.Context, s *Service, key string) (T, time.Time, bool) {
	var (
		zero   T
		cached cachedSection
	)
	if err := cache.GetJSON(ctx, s.cache, key, &cached); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return zero, time.Time{}, false
	}
	var v T
	if err := json.Unmarshal(cached.Payload, &v); err != nil {
		s.log.Warn("cache decode failed", zap.String("key", key), zap.Error(err))
		return zero, time.Time{}, false
	}
	return v, cached.FetchedAt, true
}

func (s *Service) saveSection(ctx context.Context, scope, section string, v interface{}, at time.Time) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.Error("encode section failed", zap.String("section", section), zap.Error(err))
		return
	}
	entry := cachedSection{Payload: payload, FetchedAt: at}
	if err := cache.SetJSON(ctx, s.cache, freshKey(scope, section), entry, s.ttl); err != nil {
		s.log.Warn("cache write failed", zap.String("scope", scope), zap.Error(err))
	}
	if err := cache.SetJSON(ctx, s.cache, lastGoodKey(scope, section), entry, s.keepLastGood); err != nil {
		s.log.Warn("cache write failed", zap.String("scope", scope), zap.Error(err))
	}
	if s.store != nil {
		if err := s.store.SaveSnapshot(ctx, database.Snapshot{Scope: scope, Kind: section, Payload: payload, FetchedAt: at}); err != nil {
			s.log.Warn("snapshot save failed", zap.String("scope", scope), zap.Error(err))
		}
	}
}

// Invalidate 删除指定范围的新鲜缓存，下次读取全量重拉
func (s *Service) Invalidate(ctx context.Context, scopeKeys ...string) {
	keys := make([]string, 0, len(scopeKeys)*len(allSections))
	for _, scope := range scopeKeys {
		for _, section := range allSections {
			keys = append(keys, freshKey(scope, section))
		}
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.Warn("cache invalidate failed", zap.Strings("scopes", scopeKeys), zap.Error(err))
	}
}

// InvalidateAll 失效所有已知范围（增删改会影响其他用户的视图）
func (s *Service) InvalidateAll(ctx context.Context) {
	keys := []string{"admin"}
	for _, t := range s.Scopes() {
		if t.Key != "admin" {
			keys = append(keys, t.Key)
		}
	}
	s.Invalidate(ctx, keys...)
}

// Track 记录最近访问的范围，后台轮询只刷新这些范围；常驻范围保留原令牌
func (s *Service) Track(scope Scope) {
	if scope.Token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.scopes[scope.Key]
	if !t.pinned {
		t.scope = scope
	}
	t.lastSeen = s.now()
	s.scopes[scope.Key] = t
}

// Pin 常驻范围（服务令牌），不会因空闲被移除
func (s *Service) Pin(scope Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope.Key] = trackedScope{scope: scope, lastSeen: s.now(), pinned: true}
}

// Forget 登出后不再轮询该范围
func (s *Service) Forget(scopeKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.scopes[scopeKey]; ok && !t.pinned {
		delete(s.scopes, scopeKey)
	}
}

// Scopes 当前需要轮询的范围，顺带清理空闲范围
func (s *Service) Scopes() []Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]Scope, 0, len(s.scopes))
	for key, t := range s.scopes {
		if !t.pinned && now.Sub(t.lastSeen) > s.scopeIdle {
			delete(s.scopes, key)
			continue
		}
		out = append(out, t.scope)
	}
	return out
}

// ApplyAlertAction 处理报警：按状态机校验，写回上游，记录审计，失效缓存
func (s *Service) ApplyAlertAction(ctx context.Context, scope Scope, actor models.ID, alertID models.ID, action pipeline.AlertAction) (models.Alert, error) {
	snap, err := s.Load(ctx, scope)
	if err != nil {
		return models.Alert{}, err
	}
	current, ok := snap.FindAlert(alertID)
	if !ok {
		if _, failed := snap.Errors[SectionAlerts]; failed {
			return models.Alert{}, apperrors.NewNetworkError(errors.New(snap.Errors[SectionAlerts]))
		}
		return models.Alert{}, apperrors.ErrNotFound
	}

	change, err := pipeline.PlanTransition(current.Statut, action, s.now())
	if err != nil {
		return models.Alert{}, apperrors.NewErrorWithErr(apperrors.ErrCodeInvalidTransition, "Invalid alert transition", err)
	}

	patch := models.AlertStatusPatch{
		Statut:         change.Statut,
		DateResolution: change.DateResolution.Format(time.RFC3339),
	}
	updated, err := s.source.UpdateAlertStatus(ctx, scope.Token, alertID, patch)
	if err != nil {
		return models.Alert{}, err
	}
	if updated.ID == "" {
		updated = current
		updated.Statut = change.Statut
		updated.DateResolution = models.NewTimestamp(change.DateResolution)
	}

	if s.store != nil {
		audit := &database.AlertAction{
			AlertID:    alertID.String(),
			SensorID:   current.SensorID.String(),
			Action:     string(action),
			FromStatus: current.Statut,
			ToStatus:   change.Statut,
			UserID:     actor.String(),
			ActedAt:    change.DateResolution,
		}
		if err := s.store.RecordAlertAction(ctx, audit); err != nil {
			s.log.Error("record alert action failed", zap.String("alert_id", alertID.String()), zap.Error(err))
		}
	}
	s.InvalidateAll(ctx)

	s.log.Info("alert action applied",
		zap.String("alert_id", alertID.String()), zap.String("action", string(action)),
		zap.String("from", current.Statut), zap.String("to", change.Statut), zap.String("user_id", actor.String()))
	return updated, nil
}

// AlertHistory 报警处理记录
func (s *Service) AlertHistory(ctx context.Context, alertID models.ID, limit int) ([]*database.AlertAction, error) {
	if s.store == nil {
		return nil, nil
	}
	list, err := s.store.ListAlertActions(ctx, alertID.String(), limit)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeDatabaseError, "Database error")
	}
	return list, nil
}
