package alarmstate

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/model"
)

func newTestService() *Service {
	return New(Options{
		DefaultLanguage: "zh-CN",
		Log:             zerolog.Nop(),
	})
}

func TestSetAlarm_NewRaiseBecomesOngoing(t *testing.T) {
	s := newTestService()
	a := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(100, 0)}

	if got := s.SetAlarm(a); !got {
		t.Fatal("SetAlarm on new raise should return true")
	}
	if !s.IsOngoingAlarmExist() {
		t.Fatal("expected ongoing alarm after raise")
	}
}

func TestSetAlarm_OnlyGreatestTimestampSurvives(t *testing.T) {
	s := newTestService()
	older := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(100, 0)}
	newer := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(200, 0)}

	s.SetAlarm(older)
	if got := s.SetAlarm(newer); !got {
		t.Fatal("newer raise over older stored entry should return true")
	}
	if got := s.SetAlarm(older); got {
		t.Fatal("stale raise after newer entry already stored should return false")
	}

	s.mu.RLock()
	stored := s.ongoing[newer.Key()]
	s.mu.RUnlock()
	if stored.Timestamp != newer.Timestamp {
		t.Fatalf("stored entry timestamp = %v, want %v", stored.Timestamp, newer.Timestamp)
	}
}

func TestSetAlarm_ClearRemoves(t *testing.T) {
	s := newTestService()
	raise := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(100, 0)}
	clear := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: false, Timestamp: time.Unix(101, 0)}

	s.SetAlarm(raise)
	if got := s.SetAlarm(clear); got {
		t.Fatal("clear must never return true")
	}
	if s.IsOngoingAlarmExist() {
		t.Fatal("expected ongoing set empty after clear")
	}
}

func TestSetAlarm_ClearBeforeRaiseBuffered(t *testing.T) {
	s := newTestService()
	clear := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: false, Timestamp: time.Unix(50, 0)}
	s.SetAlarm(clear)

	s.mu.RLock()
	_, buffered := s.unmappedCancel[clear.Key()]
	s.mu.RUnlock()
	if !buffered {
		t.Fatal("clear arriving before any raise should be buffered in unmappedCancel")
	}
}

func TestGetAlarmStatus_CanceledWhenAbsent(t *testing.T) {
	s := newTestService()
	a := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(1, 0)}
	if got := s.GetAlarmStatus(a); got != model.StatusCanceled {
		t.Fatalf("GetAlarmStatus = %v, want Canceled", got)
	}
}

func TestGetAlarmStatus_CanceledWhenStoredIsNewer(t *testing.T) {
	s := newTestService()
	newer := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(200, 0)}
	s.SetAlarm(newer)

	stale := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(100, 0)}
	if got := s.GetAlarmStatus(stale); got != model.StatusCanceled {
		t.Fatalf("GetAlarmStatus = %v, want Canceled", got)
	}
}

func TestGetAlarmStatus_PausedWhenEmptyHouseDisabled(t *testing.T) {
	s := newTestService()
	s.SetHouses([]model.House{{Code: "H1", Name: "House1", Enabled: false, IsEmptyMode: true}})

	a := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(1, 0)}
	s.SetAlarm(a)

	if got := s.GetAlarmStatus(a); got != model.StatusPaused {
		t.Fatalf("GetAlarmStatus = %v, want Paused", got)
	}
}

func TestGetAlarmStatus_PlayableWhenEmptyHouseEnabled(t *testing.T) {
	s := newTestService()
	s.SetHouses([]model.House{{Code: "H1", Name: "House1", Enabled: true, IsEmptyMode: true}})

	a := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(1, 0)}
	s.SetAlarm(a)

	if got := s.GetAlarmStatus(a); got != model.StatusPlayable {
		t.Fatalf("GetAlarmStatus = %v, want Playable (is_empty_mode AND NOT enabled is false here)", got)
	}
}

func TestConfirmAlarms_MutatesStoredEntryInPlace(t *testing.T) {
	s := newTestService()
	a := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(1, 0)}
	s.SetAlarm(a)

	s.ConfirmAlarms([]model.AlarmConfirm{{HouseCode: "H1", TargetName: "T", IsConfirmed: true}})

	if got := s.GetAlarmStatus(a); got != model.StatusPaused {
		t.Fatalf("GetAlarmStatus after confirm = %v, want Paused", got)
	}
}

func TestGetAlarmContent_DefaultLanguage(t *testing.T) {
	s := newTestService()
	s.SetHouses([]model.House{{Code: "H1", Name: "9200"}})

	a := &model.Alarm{HouseCode: "H1", AlarmItem: "T1", Content: "... STATUS"}
	got, err := s.GetAlarmContent(a)
	if err != nil {
		t.Fatalf("GetAlarmContent: %v", err)
	}
	if want := "[9200] T1 STATUS"; got != want {
		t.Fatalf("GetAlarmContent = %q, want %q", got, want)
	}
}

func TestGetAlarmContent_UnknownHouseErrors(t *testing.T) {
	s := newTestService()
	a := &model.Alarm{HouseCode: "missing", AlarmItem: "T1", Content: "x OK"}
	if _, err := s.GetAlarmContent(a); err == nil {
		t.Fatal("expected error for unknown house")
	}
}

func TestNextFireTime_UnsetIsNone(t *testing.T) {
	s := newTestService()
	if _, ok := s.NextFireTime(time.Now()); ok {
		t.Fatal("expected no next fire time with no crontab set")
	}
}

func TestNextFireTime_SevenFieldExpressionDropsYear(t *testing.T) {
	s := newTestService()
	s.SetCrontab("*/1 * * * * * *")
	if _, ok := s.NextFireTime(time.Now()); !ok {
		t.Fatal("expected a parsed schedule for the seven-field test expression")
	}
}
