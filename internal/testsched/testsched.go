// Package testsched implements the Test Scheduler: it applies live crontab
// reconfiguration, emits synthetic test alarms on cron ticks, and handles
// immediate "play now" triggers.
package testsched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/alarmstate"
	"github.com/snarg/alarm-player/internal/model"
)

type TestScheduler struct {
	service *alarmstate.Service
	log     zerolog.Logger
}

func New(service *alarmstate.Service, log zerolog.Logger) *TestScheduler {
	return &TestScheduler{service: service, log: log}
}

// Run consumes configCh for live crontab reconfiguration and play-now
// triggers, and emits synthetic test alarms to testAlarmCh on each cron
// tick, until ctx is canceled.
func (t *TestScheduler) Run(ctx context.Context, configCh <-chan model.CrontabMessage, testAlarmCh chan<- *model.Alarm) {
	for {
		var timer *time.Timer
		var wake <-chan time.Time
		if nextFire, ok := t.service.NextFireTime(time.Now()); ok {
			d := time.Until(nextFire)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			wake = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case cfg, ok := <-configCh:
			if timer != nil {
				timer.Stop()
			}
			if !ok {
				return
			}
			if !t.applyConfig(ctx, cfg, testAlarmCh) {
				return
			}

		case <-wake:
			now := time.Now().UTC()
			a := model.NewTestAlarm(now)
			if !t.emit(ctx, &a, testAlarmCh) {
				return
			}
		}
	}
}

// applyConfig handles one config-channel message. Returns false only on
// ctx cancellation mid-emit.
func (t *TestScheduler) applyConfig(ctx context.Context, cfg model.CrontabMessage, testAlarmCh chan<- *model.Alarm) bool {
	if cfg.PlayNow {
		if t.service.IsOngoingAlarmExist() {
			if err := t.service.PublishOngoingAlarmResult(); err != nil {
				t.log.Warn().Err(err).Msg("failed to publish ongoing-alarm result")
			}
			return true
		}
		now := time.Now().UTC()
		a := model.NewTestAlarm(now)
		return t.emit(ctx, &a, testAlarmCh)
	}

	if cfg.Duration != nil {
		t.service.SetTestPlayDuration(*cfg.Duration)
	}
	if cfg.Crontab != nil {
		t.service.SetCrontab(*cfg.Crontab)
	}
	return true
}

func (t *TestScheduler) emit(ctx context.Context, a *model.Alarm, testAlarmCh chan<- *model.Alarm) bool {
	select {
	case <-ctx.Done():
		return false
	case testAlarmCh <- a:
		return true
	}
}
