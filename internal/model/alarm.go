// Package model holds the wire and domain types shared across the alarm
// pipeline: alarms, house/soundbox/soundpost configuration, localization,
// the test-alarm schedule, and the persisted play records.
package model

import "time"

// AlarmKey identifies an alarm across its raise/clear lifecycle.
type AlarmKey struct {
	HouseCode  string
	TargetName string
}

// Alarm is an immutable-after-creation farm-alarm event, raise or clear.
type Alarm struct {
	HouseCode  string `json:"-"`
	TenantID   *string `json:"TenantId,omitempty"`
	FarmID     *string `json:"FarmId,omitempty"`
	TargetName string  `json:"TargetName"`
	AlarmItem  string  `json:"AlarmItem"`
	Content    string  `json:"Content"`
	AlarmType  string  `json:"AlarmType"`

	// Timestamp is the producer's wall-clock time for the event.
	Timestamp time.Time `json:"TimeStamp"`
	// ReceivedTime is stamped by the ingress act-alarm handler on receipt;
	// never serialized in.
	ReceivedTime time.Time `json:"-"`

	IsAlarm     bool `json:"IsAlarm"`
	IsTest      bool `json:"-"`
	IsConfirmed bool `json:"-"`

	DayAge *uint32 `json:"DayAge,omitempty"`

	// TestPlanTime/TestTime are set only on synthetic test alarms.
	TestPlanTime *time.Time `json:"-"`
	TestTime     *time.Time `json:"-"`
}

// Key returns the alarm's identity key.
func (a Alarm) Key() AlarmKey {
	return AlarmKey{HouseCode: a.HouseCode, TargetName: a.TargetName}
}

// NewTestAlarm synthesizes a default test alarm, mirroring the original
// prototype's Default impl for test triggers (house and target "test",
// content "test OK", is_test=true, is_alarm=true).
func NewTestAlarm(now time.Time) Alarm {
	return Alarm{
		HouseCode:    "test",
		TargetName:   "test",
		AlarmItem:    "test",
		Content:      "test OK",
		AlarmType:    "test",
		Timestamp:    now,
		ReceivedTime: now,
		IsAlarm:      true,
		IsTest:       true,
		TestPlanTime: &now,
	}
}

// AlarmStatus is the gating decision for an alarm about to be played.
type AlarmStatus int

const (
	StatusPlayable AlarmStatus = iota
	StatusCanceled
	StatusPaused
)

func (s AlarmStatus) String() string {
	switch s {
	case StatusPlayable:
		return "playable"
	case StatusCanceled:
		return "canceled"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}
