// Package player is the dual-sink playback coordinator: for every alarm
// handed to it by the real-time gate or the cycle repeater, it renders
// content, drives the soundbox and soundpost sinks concurrently, brackets
// the attempt with a recording, persists the outcome, and forwards
// non-terminal alarms on to the cycle repeater.
package player

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/alarmstate"
	"github.com/snarg/alarm-player/internal/metrics"
	"github.com/snarg/alarm-player/internal/model"
	"github.com/snarg/alarm-player/internal/player/soundbox"
	"github.com/snarg/alarm-player/internal/player/soundpost"
	"github.com/snarg/alarm-player/internal/recorder"
)

// boxLoopGap is the fixed pause between consecutive soundbox repetitions
// during an alarm playback. Test playbacks use the play interval instead.
const boxLoopGap = 10 * time.Second

// Options configures a Player. All fields are required except Log.
type Options struct {
	Service   *alarmstate.Service
	Soundbox  *soundbox.Player
	Soundpost *soundpost.Client
	Recorder  *recorder.Recorder

	PlayMode model.PlayMode

	AlarmMediaURL  string
	TestMediaURL   string
	AlarmMediaPath string
	TestMediaPath  string

	AlarmDuration time.Duration

	Log zerolog.Logger
}

// Player is the dual-sink coordinator. It implements the ingress package's
// TestPlayCanceller and PlayCanceller interfaces.
type Player struct {
	service   *alarmstate.Service
	box       *soundbox.Player
	post      *soundpost.Client
	recorder  *recorder.Recorder

	playMode model.PlayMode

	alarmMediaURL  string
	testMediaURL   string
	alarmMediaPath string
	testMediaPath  string

	alarmDuration time.Duration

	testCancel  cancelSlot
	alarmCancel cancelSlot
	terminated  atomic.Bool

	log zerolog.Logger
}

func New(opts Options) *Player {
	return &Player{
		service:        opts.Service,
		box:            opts.Soundbox,
		post:           opts.Soundpost,
		recorder:       opts.Recorder,
		playMode:       opts.PlayMode,
		alarmMediaURL:  opts.AlarmMediaURL,
		testMediaURL:   opts.TestMediaURL,
		alarmMediaPath: opts.AlarmMediaPath,
		testMediaPath:  opts.TestMediaPath,
		alarmDuration:  opts.AlarmDuration,
		log:            opts.Log,
	}
}

// CancelTestPlay stops a held test playback only, with reason "alarm
// arrived". A concurrent alarm playback, if any, is unaffected.
func (p *Player) CancelTestPlay() {
	p.testCancel.cancel(model.CancelAlarmArrived)
}

// CancelPlay stops whatever is currently playing, test or alarm, without
// preventing the coordinator from accepting further work.
func (p *Player) CancelPlay() {
	p.testCancel.cancel(model.CancelTerminated)
	p.alarmCancel.cancel(model.CancelTerminated)
}

// TerminatePlay stops whatever is currently playing and marks the
// coordinator terminated: Run drops every subsequent alarm without acting
// on it. Used during shutdown only.
func (p *Player) TerminatePlay() {
	p.terminated.Store(true)
	p.CancelPlay()
}

// Run consumes alarms from playCh until ctx is canceled or playCh closes,
// forwarding paused and playable (post-playback) alarms on to cycleCh.
func (p *Player) Run(ctx context.Context, playCh <-chan *model.Alarm, cycleCh chan<- *model.Alarm) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-playCh:
			if !ok {
				return
			}
			if p.terminated.Load() {
				continue
			}
			p.handle(ctx, a, cycleCh)
		}
	}
}

func (p *Player) handle(ctx context.Context, a *model.Alarm, cycleCh chan<- *model.Alarm) {
	if a.IsTest {
		p.playTest(ctx, a)
		return
	}

	switch p.service.GetAlarmStatus(a) {
	case model.StatusCanceled:
		return
	case model.StatusPaused:
		forward(ctx, cycleCh, a)
	case model.StatusPlayable:
		p.playAlarm(ctx, a)
		forward(ctx, cycleCh, a)
	}
}

func forward(ctx context.Context, cycleCh chan<- *model.Alarm, a *model.Alarm) {
	select {
	case cycleCh <- a:
	case <-ctx.Done():
	}
}

func (p *Player) playTest(ctx context.Context, a *model.Alarm) {
	box := p.service.GetSoundbox()
	posts := p.service.GetSoundposts()
	duration := uint64(p.service.GetTestPlayDuration())
	gap := p.service.GetPlayIntervalSecs()

	var content soundpost.Content
	if p.playMode == model.PlayModeTTS {
		content = soundpost.TTSContent("test alarm")
	} else {
		content = soundpost.URLContent(p.testMediaURL)
	}

	speed := posts.Speed
	result := p.play(ctx, "test", &p.testCancel, uuid.NewString(), box.Enabled, p.testMediaPath, posts, content, &speed, box.Volume,
		soundpost.SpeechLoop{Duration: duration, Times: 1, Gap: gap}, 1, time.Duration(gap)*time.Second)

	if err := p.service.TestPlayRecord(ctx, a, result); err != nil {
		p.log.Error().Err(err).Msg("failed to persist test play record")
	}
}

func (p *Player) playAlarm(ctx context.Context, a *model.Alarm) {
	box := p.service.GetSoundbox()
	posts := p.service.GetSoundposts()

	var content soundpost.Content
	if p.playMode == model.PlayModeTTS {
		text, err := p.service.GetAlarmContent(a)
		if err != nil {
			p.log.Warn().Err(err).Str("house_code", a.HouseCode).Str("target_name", a.TargetName).
				Msg("skipping alarm playback: content render failed")
			return
		}
		content = soundpost.TTSContent(text)
	} else {
		content = soundpost.URLContent(p.alarmMediaURL)
	}

	speed := posts.Speed
	result := p.play(ctx, "alarm", &p.alarmCancel, uuid.NewString(), box.Enabled, p.alarmMediaPath, posts, content, &speed, box.Volume,
		soundpost.SpeechLoop{Duration: uint64(p.alarmDuration.Seconds()), Times: 1, Gap: 10}, 1, boxLoopGap)

	if err := p.service.PlayRecord(ctx, a, result); err != nil {
		p.log.Error().Err(err).Msg("failed to persist play record")
	}
}

// play drives the soundbox and soundpost sinks concurrently under a single
// recording, returning once both finish, the caller cancels via slot, or
// ctx is done.
func (p *Player) play(
	ctx context.Context,
	kind string,
	slot *cancelSlot,
	id string,
	boxEnabled bool,
	boxMediaPath string,
	posts model.PostConfig,
	content soundpost.Content,
	speed *uint8,
	volume uint8,
	loop soundpost.SpeechLoop,
	boxTimes uint32,
	boxGap time.Duration,
) model.PlayResult {
	cancelCh := slot.arm()
	defer slot.disarm(cancelCh)

	playCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	if err := p.recorder.Start(id); err != nil {
		p.log.Warn().Err(err).Str("id", id).Msg("recorder start failed")
	}

	var wg sync.WaitGroup
	var hasError atomic.Bool
	var timedOut atomic.Bool

	if boxEnabled && boxMediaPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.box.Play(playCtx, id, boxMediaPath, soundbox.Loop{Times: boxTimes, Gap: boxGap}); err != nil {
				p.log.Warn().Err(err).Str("id", id).Msg("soundbox playback failed")
				hasError.Store(true)
			}
		}()
	}

	if len(posts.DeviceIDs) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			finished, err := p.post.Play(playCtx, posts.DeviceIDs, content, speed, volume, loop)
			if err != nil {
				p.log.Warn().Err(err).Str("id", id).Msg("soundpost playback failed")
				hasError.Store(true)
				return
			}
			if !finished {
				timedOut.Store(true)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	resultType := model.ResultNormal
	select {
	case <-done:
		if timedOut.Load() {
			resultType = model.ResultTimeout
		}
	case reason := <-cancelCh:
		cancelFn()
		<-done
		if reason == model.CancelAlarmArrived {
			resultType = model.ResultCanceledAlarmArrived
		} else {
			resultType = model.ResultCanceledTerminated
		}
	}

	if err := p.recorder.Stop(ctx); err != nil {
		p.log.Warn().Err(err).Str("id", id).Msg("recorder stop failed")
	}

	metrics.PlayResultsTotal.WithLabelValues(kind, resultType.String()).Inc()
	return model.PlayResult{ID: id, HasError: hasError.Load(), ResultType: resultType}
}
