package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Snapshot kinds
const (
	KindSensors   = "sensors"
	KindAlerts    = "alerts"
	KindHierarchy = "hierarchy"
)

// Snapshot 某个可见范围最近一次成功拉取的原始数据
type Snapshot struct {
	Scope     string
	Kind      string
	Payload   []byte
	FetchedAt time.Time
}

// SaveSnapshot 覆盖写入快照
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.exec(ctx,
		`INSERT INTO snapshots (scope, kind, payload, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (scope, kind) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		snap.Scope, snap.Kind, string(snap.Payload), snap.FetchedAt.UnixMilli(),
	)
	return err
}

// LoadSnapshot 读取快照，不存在时返回 ErrNoSnapshot
func (s *Store) LoadSnapshot(ctx context.Context, scope, kind string) (Snapshot, error) {
	var (
		payload string
		fetched int64
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT payload, fetched_at FROM snapshots WHERE scope = ? AND kind = ?`),
		scope, kind,
	).Scan(&payload, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Scope:     scope,
		Kind:      kind,
		Payload:   []byte(payload),
		FetchedAt: time.UnixMilli(fetched).UTC(),
	}, nil
}

// DeleteSnapshots 删除某个范围的全部快照
func (s *Store) DeleteSnapshots(ctx context.Context, scope string) error {
	_, err := s.exec(ctx, "DELETE FROM snapshots WHERE scope = ?", scope)
	return err
}
