package alarms

import (
	"context"
	"time"
)

// Direction says which bound a reading crossed.
const (
	DirectionAbove = "above"
	DirectionBelow = "below"
)

// Rule is an owner-defined threshold for one sensor type of a device. A nil
// bound is unchecked.
type Rule struct {
	ID         int64
	DeviceID   string
	SensorType string
	Min        *float64
	Max        *float64
	Enabled    bool
	CreatedAt  time.Time
}

// Alarm records a reading that crossed a rule bound.
type Alarm struct {
	ID         int64
	RuleID     int64
	DeviceID   string
	SensorType string
	Value      float64
	Threshold  float64
	Direction  string
	RaisedAt   time.Time
}

// Evaluate checks a value against the rule bounds. The returned alarm is nil
// when the value is in range or the rule is disabled.
func (r Rule) Evaluate(value float64, at time.Time) *Alarm {
	if !r.Enabled {
		return nil
	}
	if r.Min != nil && value < *r.Min {
		return &Alarm{
			RuleID:     r.ID,
			DeviceID:   r.DeviceID,
			SensorType: r.SensorType,
			Value:      value,
			Threshold:  *r.Min,
			Direction:  DirectionBelow,
			RaisedAt:   at,
		}
	}
	if r.Max != nil && value > *r.Max {
		return &Alarm{
			RuleID:     r.ID,
			DeviceID:   r.DeviceID,
			SensorType: r.SensorType,
			Value:      value,
			Threshold:  *r.Max,
			Direction:  DirectionAbove,
			RaisedAt:   at,
		}
	}
	return nil
}

// Repository persists rules and raised alarms.
type Repository interface {
	CreateRule(ctx context.Context, rule *Rule) error
	// ListRules returns rules for a device, all of them when enabledOnly is
	// false.
	ListRules(ctx context.Context, deviceID string, enabledOnly bool) ([]Rule, error)
	// DeleteRule removes a rule by id scoped to the device. Returns false when
	// no row matched.
	DeleteRule(ctx context.Context, deviceID string, ruleID int64) (bool, error)
	RecordAlarm(ctx context.Context, alarm *Alarm) error
	// ListAlarms returns alarms for a device, newest first, capped at limit.
	ListAlarms(ctx context.Context, deviceID string, limit int) ([]Alarm, error)
}
