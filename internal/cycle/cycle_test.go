package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/alarmstate"
	"github.com/snarg/alarm-player/internal/model"
)

func TestCycle_DedupByIdentityKey(t *testing.T) {
	c := New(nil, time.Second, zerolog.Nop())
	a1 := &model.Alarm{HouseCode: "H1", TargetName: "T"}
	a2 := &model.Alarm{HouseCode: "H1", TargetName: "T"}

	c.push(a1)
	c.push(a2)

	if got := c.Len(); got != 1 {
		t.Fatalf("queue length = %d, want 1 (no duplicate identity keys)", got)
	}
}

func TestCycle_EmptyTickDoesNotEmit(t *testing.T) {
	svc := alarmstate.New(alarmstate.Options{DefaultLanguage: "zh-CN", Log: zerolog.Nop()})
	c := New(svc, 20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inputCh := make(chan *model.Alarm)
	playCh := make(chan *model.Alarm, 1)
	go c.Run(ctx, inputCh, playCh)

	select {
	case <-playCh:
		t.Fatal("expected no emission from an empty queue")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCycle_CanceledHeadIsDropped(t *testing.T) {
	svc := alarmstate.New(alarmstate.Options{DefaultLanguage: "zh-CN", Log: zerolog.Nop()})
	c := New(svc, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inputCh := make(chan *model.Alarm, 1)
	playCh := make(chan *model.Alarm, 1)
	go c.Run(ctx, inputCh, playCh)

	// No matching ongoing entry exists in svc, so GetAlarmStatus is Canceled.
	inputCh <- &model.Alarm{HouseCode: "H1", TargetName: "T", Timestamp: time.Unix(1, 0)}

	select {
	case <-playCh:
		t.Fatal("canceled alarm should be dropped, not emitted")
	case <-time.After(150 * time.Millisecond):
	}
	if got := c.Len(); got != 0 {
		t.Fatalf("queue length = %d, want 0 after dropping canceled head", got)
	}
}

func TestCycle_PlayableHeadEmitsAfterInterval(t *testing.T) {
	svc := alarmstate.New(alarmstate.Options{DefaultLanguage: "zh-CN", Log: zerolog.Nop()})
	c := New(svc, 20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &model.Alarm{HouseCode: "H1", TargetName: "T", IsAlarm: true, Timestamp: time.Unix(1, 0)}
	svc.SetAlarm(a)

	inputCh := make(chan *model.Alarm, 1)
	playCh := make(chan *model.Alarm, 1)
	go c.Run(ctx, inputCh, playCh)

	inputCh <- a

	select {
	case got := <-playCh:
		if got.Key() != a.Key() {
			t.Fatalf("got %+v, want %+v", got.Key(), a.Key())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for playable head to emit")
	}
}
