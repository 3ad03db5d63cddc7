package ingress

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/alarmstate"
	"github.com/snarg/alarm-player/internal/model"
)

type fakeCanceller struct {
	testCanceled bool
	allCanceled  bool
}

func (f *fakeCanceller) CancelTestPlay() { f.testCanceled = true }
func (f *fakeCanceller) CancelPlay()     { f.allCanceled = true }

func TestActAlarmHandler_MatchesAlarmAndRepubSuffixes(t *testing.T) {
	h := &ActAlarmHandler{}
	cases := map[string]bool{
		"ap/H1/alarm":          true,
		"ap/H1/repub_alarms":   true,
		"ap/H1/farm_config":    false,
	}
	for topic, want := range cases {
		if got := h.Match(topic); got != want {
			t.Errorf("Match(%q) = %v, want %v", topic, got, want)
		}
	}
}

func TestActAlarmHandler_StampsHouseCodeAndCancelsTestPlay(t *testing.T) {
	actCh := make(chan *model.Alarm, 1)
	canceller := &fakeCanceller{}
	h := &ActAlarmHandler{ActCh: actCh, Player: canceller}

	payload := []byte(`{"TargetName":"T","AlarmItem":"I","Content":"c OK","TimeStamp":"2025-01-01T00:00:00Z","AlarmType":"x","IsAlarm":true}`)
	if err := h.Handle(context.Background(), "ap/H1/alarm", payload); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	select {
	case a := <-actCh:
		if a.HouseCode != "ap" {
			t.Errorf("HouseCode = %q, want first topic segment %q", a.HouseCode, "ap")
		}
		if a.ReceivedTime.IsZero() {
			t.Error("ReceivedTime should be stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for act channel send")
	}

	if !canceller.testCanceled {
		t.Error("expected CancelTestPlay to be invoked on act-alarm arrival")
	}
}

func TestFarmConfigHandler_PauseCancelsPlay(t *testing.T) {
	svc := alarmstate.New(alarmstate.Options{DefaultLanguage: "zh-CN", Log: zerolog.Nop()})
	canceller := &fakeCanceller{}
	h := &FarmConfigHandler{Service: svc, Player: canceller}

	if err := h.Handle(context.Background(), "ap/farm_config", []byte(`{"pause":true}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !canceller.allCanceled {
		t.Error("expected CancelPlay to be invoked when pause=true")
	}
}

func TestRouter_DispatchesToFirstMatchingHandler(t *testing.T) {
	svc := alarmstate.New(alarmstate.Options{DefaultLanguage: "zh-CN", Log: zerolog.Nop()})
	r := NewRouter(zerolog.Nop(),
		&HouseSetHandler{Service: svc},
		&ConfirmHandler{Service: svc},
	)

	r.Dispatch(context.Background(), "ap/houses", []byte(`[{"code":"H1","name":"House1","enabled":false,"isEmptyMode":true}]`))

	svc.SetAlarm(&model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(1, 0)})
	status := svc.GetAlarmStatus(&model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(1, 0)})
	if status != model.StatusPaused {
		t.Fatalf("status = %v, want Paused after houses dispatch of an empty, disabled house", status)
	}
}

func TestRouter_NoMatchLogsAndDoesNotPanic(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	r.Dispatch(context.Background(), "ap/unknown", []byte(`{}`))
}
