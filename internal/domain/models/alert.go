package models

import "time"

type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

type Alert struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	AssetSymbol string     `json:"asset_symbol"`
	Condition   Condition  `json:"condition"`
	TargetPrice float64    `json:"target_price"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
}

// Triggered applies inclusive boundaries: above fires at >=, below at <=.
func (a Alert) Triggered(price float64) bool {
	switch a.Condition {
	case ConditionAbove:
		return price >= a.TargetPrice
	case ConditionBelow:
		return price <= a.TargetPrice
	}
	return false
}

// AlertEvent is emitted exactly once per triggered alert.
type AlertEvent struct {
	EventID     string    `json:"event_id"`
	AlertID     int64     `json:"alert_id"`
	UserID      int64     `json:"user_id"`
	AssetSymbol string    `json:"asset_symbol"`
	Condition   Condition `json:"condition"`
	TargetPrice float64   `json:"target_price"`
	ActualPrice float64   `json:"actual_price"`
	TriggeredAt time.Time `json:"triggered_at"`
}
