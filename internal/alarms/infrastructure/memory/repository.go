package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	alarms "greenhouse-cloud/internal/alarms/domain"
)

// AlarmRepository is an in-memory store used by tests.
type AlarmRepository struct {
	mu         sync.RWMutex
	nextRuleID int64
	nextID     int64
	rules      map[int64]*alarms.Rule
	alarms     []alarms.Alarm
}

// NewAlarmRepository constructs an empty repository.
func NewAlarmRepository() *AlarmRepository {
	return &AlarmRepository{rules: make(map[int64]*alarms.Rule)}
}

// CreateRule inserts a rule.
func (r *AlarmRepository) CreateRule(_ context.Context, rule *alarms.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rules {
		if existing.DeviceID == rule.DeviceID && existing.SensorType == rule.SensorType {
			return alarms.ErrValidation
		}
	}
	r.nextRuleID++
	rule.ID = r.nextRuleID
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	stored := *rule
	r.rules[rule.ID] = &stored
	return nil
}

// ListRules returns rules for a device.
func (r *AlarmRepository) ListRules(_ context.Context, deviceID string, enabledOnly bool) ([]alarms.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []alarms.Rule
	for _, rule := range r.rules {
		if rule.DeviceID != deviceID {
			continue
		}
		if enabledOnly && !rule.Enabled {
			continue
		}
		result = append(result, *rule)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SensorType < result[j].SensorType })
	return result, nil
}

// DeleteRule removes a rule scoped to a device.
func (r *AlarmRepository) DeleteRule(_ context.Context, deviceID string, ruleID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[ruleID]
	if !ok || rule.DeviceID != deviceID {
		return false, nil
	}
	delete(r.rules, ruleID)
	return true, nil
}

// RecordAlarm stores a raised alarm.
func (r *AlarmRepository) RecordAlarm(_ context.Context, alarm *alarms.Alarm) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	alarm.ID = r.nextID
	r.alarms = append(r.alarms, *alarm)
	return nil
}

// ListAlarms returns alarms for a device, newest first.
func (r *AlarmRepository) ListAlarms(_ context.Context, deviceID string, limit int) ([]alarms.Alarm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []alarms.Alarm
	for _, alarm := range r.alarms {
		if alarm.DeviceID == deviceID {
			result = append(result, alarm)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RaisedAt.After(result[j].RaisedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
