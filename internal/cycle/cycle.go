// Package cycle implements the Cycle Repeater: a plain ordered queue,
// deduplicated by identity key, that periodically re-emits non-canceled
// alarms back to the player.
package cycle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/alarmstate"
	"github.com/snarg/alarm-player/internal/metrics"
	"github.com/snarg/alarm-player/internal/model"
)

type Cycle struct {
	service       *alarmstate.Service
	checkInterval time.Duration
	log           zerolog.Logger

	mu    sync.Mutex
	queue []*model.Alarm
	keys  map[model.AlarmKey]struct{}
}

func New(service *alarmstate.Service, checkInterval time.Duration, log zerolog.Logger) *Cycle {
	return &Cycle{
		service:       service,
		checkInterval: checkInterval,
		log:           log,
		keys:          make(map[model.AlarmKey]struct{}),
	}
}

// push appends a to the queue unless its identity key is already present.
func (c *Cycle) push(a *model.Alarm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := a.Key()
	if _, exists := c.keys[key]; exists {
		return
	}
	c.keys[key] = struct{}{}
	c.queue = append(c.queue, a)
	metrics.CycleQueueDepth.Set(float64(len(c.queue)))
}

// popHead removes and returns the head of the queue, if any.
func (c *Cycle) popHead() (*model.Alarm, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	a := c.queue[0]
	c.queue = c.queue[1:]
	delete(c.keys, a.Key())
	metrics.CycleQueueDepth.Set(float64(len(c.queue)))
	return a, true
}

// Len reports the current queue length, for metrics/tests.
func (c *Cycle) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Run concurrently accepts new inputs and ticks the replay loop until ctx
// is canceled. Popping the head does not re-append it: the player's own
// forward-to-cycle step reinserts after a play, so emit never re-queues.
func (c *Cycle) Run(ctx context.Context, inputCh <-chan *model.Alarm, playCh chan<- *model.Alarm) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-inputCh:
			if !ok {
				return
			}
			c.push(a)
			continue
		default:
		}

		a, ok := c.popHead()
		if !ok {
			if !c.sleepOrAccept(ctx, inputCh, c.checkInterval) {
				return
			}
			continue
		}

		if c.service.GetAlarmStatus(a) == model.StatusCanceled {
			continue
		}

		if !c.sleepOrAccept(ctx, inputCh, c.checkInterval) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case playCh <- a:
		}
	}
}

// sleepOrAccept waits out d while still draining inputCh into the queue.
// Returns false only on ctx cancellation (or inputCh close).
func (c *Cycle) sleepOrAccept(ctx context.Context, inputCh <-chan *model.Alarm, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case a, ok := <-inputCh:
			if !ok {
				return false
			}
			c.push(a)
		}
	}
}
