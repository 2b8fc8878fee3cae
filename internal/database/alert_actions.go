package database

import (
	"context"
	"database/sql"
	"time"
)

// AlertAction 报警处理审计记录
type AlertAction struct {
	ID         int64     `json:"id"`
	AlertID    string    `json:"alert_id"`
	SensorID   string    `json:"sensor_id"`
	Action     string    `json:"action"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	UserID     string    `json:"user_id"`
	ActedAt    time.Time `json:"acted_at"`
}

const alertActionColumns = `id, alert_id, COALESCE(sensor_id, ''), action, COALESCE(from_status, ''), to_status, COALESCE(user_id, ''), acted_at`

// RecordAlertAction 写入一条审计记录
func (s *Store) RecordAlertAction(ctx context.Context, a *AlertAction) error {
	if a.ActedAt.IsZero() {
		a.ActedAt = time.Now().UTC()
	}
	args := []any{a.AlertID, a.SensorID, a.Action, a.FromStatus, a.ToStatus, a.UserID, a.ActedAt.UnixMilli()}
	query := `INSERT INTO alert_actions (alert_id, sensor_id, action, from_status, to_status, user_id, acted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	if s.driver == DriverPostgres {
		return s.db.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&a.ID)
	}
	result, err := s.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	a.ID, err = result.LastInsertId()
	return err
}

// ListAlertActions 某条报警的处理记录（最新在前）
func (s *Store) ListAlertActions(ctx context.Context, alertID string, limit int) ([]*AlertAction, error) {
	return queryList(ctx, s,
		`SELECT `+alertActionColumns+` FROM alert_actions WHERE alert_id = ? ORDER BY acted_at DESC, id DESC LIMIT ?`,
		[]any{alertID, limit}, scanAlertAction)
}

// RecentAlertActions 最近的处理记录
func (s *Store) RecentAlertActions(ctx context.Context, limit int) ([]*AlertAction, error) {
	return queryList(ctx, s,
		`SELECT `+alertActionColumns+` FROM alert_actions ORDER BY acted_at DESC, id DESC LIMIT ?`,
		[]any{limit}, scanAlertAction)
}

func scanAlertAction(rows *sql.Rows) (*AlertAction, error) {
	a := &AlertAction{}
	var acted int64
	if err := rows.Scan(&a.ID, &a.AlertID, &a.SensorID, &a.Action, &a.FromStatus, &a.ToStatus, &a.UserID, &acted); err != nil {
		return nil, err
	}
	a.ActedAt = time.UnixMilli(acted).UTC()
	return a, nil
}
