package testsched

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/alarmstate"
	"github.com/snarg/alarm-player/internal/model"
)

func TestTestScheduler_PlayNowDiscardedWhenOngoingAlarmExists(t *testing.T) {
	svc := alarmstate.New(alarmstate.Options{DefaultLanguage: "zh-CN", Log: zerolog.Nop()})
	svc.SetAlarm(&model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(1, 0)})

	sched := New(svc, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configCh := make(chan model.CrontabMessage, 1)
	testCh := make(chan *model.Alarm, 1)
	go sched.Run(ctx, configCh, testCh)

	configCh <- model.CrontabMessage{PlayNow: true}

	select {
	case <-testCh:
		t.Fatal("no test alarm should be emitted when an ongoing alarm exists")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTestScheduler_PlayNowEmitsWhenNoOngoingAlarm(t *testing.T) {
	svc := alarmstate.New(alarmstate.Options{DefaultLanguage: "zh-CN", Log: zerolog.Nop()})
	sched := New(svc, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configCh := make(chan model.CrontabMessage, 1)
	testCh := make(chan *model.Alarm, 1)
	go sched.Run(ctx, configCh, testCh)

	configCh <- model.CrontabMessage{PlayNow: true}

	select {
	case a := <-testCh:
		if !a.IsTest {
			t.Fatal("expected a synthetic test alarm")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for play-now test alarm")
	}
}

func TestTestScheduler_CrontabTicksEmitTestAlarms(t *testing.T) {
	svc := alarmstate.New(alarmstate.Options{DefaultLanguage: "zh-CN", Log: zerolog.Nop()})
	sched := New(svc, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configCh := make(chan model.CrontabMessage, 1)
	testCh := make(chan *model.Alarm, 4)
	go sched.Run(ctx, configCh, testCh)

	crontab := "*/1 * * * * * *"
	dur := uint32(10)
	configCh <- model.CrontabMessage{Crontab: &crontab, Duration: &dur}

	select {
	case a := <-testCh:
		if !a.IsTest {
			t.Fatal("expected a synthetic test alarm from the cron tick")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for cron-scheduled test alarm")
	}
}

func TestTestScheduler_IdleWithoutCrontab(t *testing.T) {
	svc := alarmstate.New(alarmstate.Options{DefaultLanguage: "zh-CN", Log: zerolog.Nop()})
	sched := New(svc, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configCh := make(chan model.CrontabMessage)
	testCh := make(chan *model.Alarm, 1)
	go sched.Run(ctx, configCh, testCh)

	select {
	case <-testCh:
		t.Fatal("no crontab set: scheduler should remain idle")
	case <-time.After(150 * time.Millisecond):
	}
}
