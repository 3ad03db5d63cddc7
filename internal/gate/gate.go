// Package gate implements the Real-Time Gate: it merges the act-alarm and
// test-alarm channels with act-priority, applies the configured play
// delay, and emits to the player's play channel.
package gate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/alarmstate"
	"github.com/snarg/alarm-player/internal/metrics"
	"github.com/snarg/alarm-player/internal/model"
)

// Options configures a Gate.
type Options struct {
	// RetryCheckInterval is how often a held test alarm re-checks whether
	// the ongoing-alarm condition has cleared, or whether the next cron
	// fire time would preempt it.
	RetryCheckInterval time.Duration
	Log                zerolog.Logger
}

type Gate struct {
	service *alarmstate.Service
	opts    Options
}

func New(service *alarmstate.Service, opts Options) *Gate {
	if opts.RetryCheckInterval <= 0 {
		opts.RetryCheckInterval = time.Second
	}
	return &Gate{service: service, opts: opts}
}

// Run merges actCh and testCh into playCh until ctx is canceled.
func (g *Gate) Run(ctx context.Context, actCh, testCh <-chan *model.Alarm, playCh chan<- *model.Alarm) {
	var pendingTest *model.Alarm

	for {
		// Act alarms always take priority: drain one non-blockingly before
		// considering anything else.
		select {
		case <-ctx.Done():
			return
		case a, ok := <-actCh:
			if !ok {
				return
			}
			if !g.processAct(ctx, a, playCh) {
				return
			}
			continue
		default:
		}

		if pendingTest != nil {
			if g.service.IsOngoingAlarmExist() {
				if g.abandonRetry() {
					metrics.GateDecisionsTotal.WithLabelValues("abandon").Inc()
					g.opts.Log.Debug().Msg("abandoning held test alarm: next cron fire would preempt it")
					pendingTest = nil
					continue
				}
				timer := time.NewTimer(g.opts.RetryCheckInterval)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				case a, ok := <-actCh:
					timer.Stop()
					if !ok {
						return
					}
					if !g.processAct(ctx, a, playCh) {
						return
					}
				case t, ok := <-testCh:
					timer.Stop()
					if !ok {
						return
					}
					metrics.GateDecisionsTotal.WithLabelValues("replace").Inc()
					pendingTest = t
				}
				continue
			}

			select {
			case <-ctx.Done():
				return
			case playCh <- pendingTest:
				metrics.GateDecisionsTotal.WithLabelValues("emit_test").Inc()
				pendingTest = nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case a, ok := <-actCh:
			if !ok {
				return
			}
			if !g.processAct(ctx, a, playCh) {
				return
			}
		case t, ok := <-testCh:
			if !ok {
				return
			}
			// Drain-and-replace: a newer test alarm simply overwrites any
			// earlier one still waiting for the ongoing condition to clear.
			if pendingTest != nil {
				metrics.GateDecisionsTotal.WithLabelValues("replace").Inc()
			}
			pendingTest = t
		}
	}
}

// processAct applies an act alarm to the state service and, once emittable,
// sleeps out any remaining play delay before sending to playCh. Returns
// false only when ctx was canceled mid-suspension.
func (g *Gate) processAct(ctx context.Context, a *model.Alarm, playCh chan<- *model.Alarm) bool {
	if became := g.service.SetAlarm(a); !became {
		return true
	}

	delay := g.service.GetPlayDelay()
	playTime := a.ReceivedTime.Add(delay)
	if now := time.Now(); playTime.After(now) {
		timer := time.NewTimer(playTime.Sub(now))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
	}

	select {
	case <-ctx.Done():
		return false
	case playCh <- a:
	}
	return true
}

// abandonRetry reports whether the next scheduled cron fire would land
// before (or at) the next retry check, meaning a fresh test alarm is about
// to supersede the one currently held — so the held one should be dropped
// rather than fired stale.
func (g *Gate) abandonRetry() bool {
	nextCheck := time.Now().Add(g.opts.RetryCheckInterval)
	nextFire, ok := g.service.NextFireTime(time.Now())
	if !ok {
		return false
	}
	return !nextCheck.Before(nextFire)
}
