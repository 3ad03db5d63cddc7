package gate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/alarmstate"
	"github.com/snarg/alarm-player/internal/model"
)

func newGate(t *testing.T) (*Gate, *alarmstate.Service) {
	t.Helper()
	svc := alarmstate.New(alarmstate.Options{DefaultLanguage: "zh-CN", Log: zerolog.Nop()})
	g := New(svc, Options{RetryCheckInterval: 20 * time.Millisecond, Log: zerolog.Nop()})
	return g, svc
}

func TestGate_ImmediateEmitWhenDelayElapsed(t *testing.T) {
	g, _ := newGate(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	actCh := make(chan *model.Alarm, 1)
	testCh := make(chan *model.Alarm, 1)
	playCh := make(chan *model.Alarm, 1)

	go g.Run(ctx, actCh, testCh, playCh)

	a := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true,
		Timestamp: time.Unix(1, 0), ReceivedTime: time.Now().Add(-time.Hour)}
	actCh <- a

	select {
	case got := <-playCh:
		if got.Key() != a.Key() {
			t.Fatalf("got %+v, want %+v", got.Key(), a.Key())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for immediate emit")
	}
}

func TestGate_TestAlarmWithheldWhileOngoingAlarmExists(t *testing.T) {
	g, svc := newGate(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	actCh := make(chan *model.Alarm, 1)
	testCh := make(chan *model.Alarm, 1)
	playCh := make(chan *model.Alarm, 1)

	svc.SetAlarm(&model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(1, 0)})

	go g.Run(ctx, actCh, testCh, playCh)

	testCh <- &model.Alarm{HouseCode: "test", TargetName: "test", IsAlarm: true, IsTest: true}

	select {
	case <-playCh:
		t.Fatal("test alarm should not be emitted while an ongoing alarm exists")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGate_TestAlarmEmittedWhenNoOngoingAlarm(t *testing.T) {
	g, _ := newGate(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	actCh := make(chan *model.Alarm, 1)
	testCh := make(chan *model.Alarm, 1)
	playCh := make(chan *model.Alarm, 1)

	go g.Run(ctx, actCh, testCh, playCh)

	testAlarm := &model.Alarm{HouseCode: "test", TargetName: "test", IsAlarm: true, IsTest: true}
	testCh <- testAlarm

	select {
	case got := <-playCh:
		if !got.IsTest {
			t.Fatal("expected the test alarm to be emitted")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for test alarm emission")
	}
}

func TestGate_ActAlarmTakesPriorityOverPendingTest(t *testing.T) {
	g, svc := newGate(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	actCh := make(chan *model.Alarm, 1)
	testCh := make(chan *model.Alarm, 1)
	playCh := make(chan *model.Alarm, 2)

	svc.SetAlarm(&model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(1, 0)})

	go g.Run(ctx, actCh, testCh, playCh)

	testCh <- &model.Alarm{HouseCode: "test", TargetName: "test", IsAlarm: true, IsTest: true}
	time.Sleep(10 * time.Millisecond)

	act := &model.Alarm{HouseCode: "H2", TargetName: "T2", IsAlarm: true,
		Timestamp: time.Unix(2, 0), ReceivedTime: time.Now().Add(-time.Hour)}
	actCh <- act

	select {
	case got := <-playCh:
		if got.IsTest {
			t.Fatal("act alarm should be emitted before the withheld test alarm")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for act alarm emission")
	}
}
