package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// AlertAction 操作员对报警的处理动作
type AlertAction string

const (
	ActionResolve AlertAction = "resolve"
	ActionIgnore  AlertAction = "ignore"
)

// ParseAlertAction 解析动作名
func ParseAlertAction(raw string) (AlertAction, bool) {
	switch AlertAction(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionResolve:
		return ActionResolve, true
	case ActionIgnore:
		return ActionIgnore, true
	}
	return "", false
}

// TransitionError 非法状态迁移
type TransitionError struct {
	From   AlertState
	Action AlertAction
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s alert in state %s", e.Action, e.From)
}

// Transition 报警状态机：只允许 active→resolved 与 active→ignored，后两者为终态
func Transition(current AlertState, action AlertAction) (AlertState, error) {
	if current != AlertActive {
		return current, &TransitionError{From: current, Action: action}
	}
	switch action {
	case ActionResolve:
		return AlertResolved, nil
	case ActionIgnore:
		return AlertIgnored, nil
	default:
		return current, &TransitionError{From: current, Action: action}
	}
}

// StatusChange 一次状态迁移写回上游的内容
type StatusChange struct {
	From           AlertState
	To             AlertState
	Statut         string
	DateResolution time.Time
}

// PlanTransition 根据上游 statut 计算迁移结果，date_resolution 取 now
func PlanTransition(statut string, action AlertAction, now time.Time) (StatusChange, error) {
	from := ParseAlertState(statut)
	to, err := Transition(from, action)
	if err != nil {
		return StatusChange{}, err
	}
	return StatusChange{
		From:           from,
		To:             to,
		Statut:         to.WireStatus(),
		DateResolution: now.UTC(),
	}, nil
}
