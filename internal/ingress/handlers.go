package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/snarg/alarm-player/internal/alarmstate"
	"github.com/snarg/alarm-player/internal/model"
)

// TestPlayCanceller is the narrow slice of the player's cancellation
// surface the act-alarm handler needs: instructing any in-flight test
// playback to stop because a real alarm has arrived.
type TestPlayCanceller interface {
	CancelTestPlay()
}

// PlayCanceller additionally covers terminating whatever playback is
// currently in flight, used when the farm is paused.
type PlayCanceller interface {
	CancelPlay()
}

// ActAlarmHandler owns the "alarm" and "repub_alarms" topic suffixes.
type ActAlarmHandler struct {
	ActCh  chan<- *model.Alarm
	Player TestPlayCanceller
}

func (h *ActAlarmHandler) Name() string { return "act_alarm" }

func (h *ActAlarmHandler) Match(topic string) bool {
	return hasSuffix(topic, "alarm") || hasSuffix(topic, "repub_alarms")
}

func (h *ActAlarmHandler) Handle(ctx context.Context, topic string, payload []byte) error {
	var a model.Alarm
	if err := json.Unmarshal(payload, &a); err != nil {
		return fmt.Errorf("ingress: decode alarm payload: %w", err)
	}
	a.ReceivedTime = time.Now().UTC()
	a.HouseCode = houseCodeFromTopic(topic)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case h.ActCh <- &a:
	}

	if h.Player != nil {
		h.Player.CancelTestPlay()
	}
	return nil
}

// CrontabHandler owns the "crontab" topic suffix.
type CrontabHandler struct {
	ConfigCh chan<- model.CrontabMessage
}

func (h *CrontabHandler) Name() string { return "crontab" }

func (h *CrontabHandler) Match(topic string) bool { return hasSuffix(topic, "crontab") }

func (h *CrontabHandler) Handle(ctx context.Context, topic string, payload []byte) error {
	var cfg model.CrontabMessage
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return fmt.Errorf("ingress: decode crontab payload: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case h.ConfigCh <- cfg:
	}
	return nil
}

// ConfirmHandler owns the "confirm" topic suffix.
type ConfirmHandler struct {
	Service *alarmstate.Service
}

func (h *ConfirmHandler) Name() string { return "confirm" }

func (h *ConfirmHandler) Match(topic string) bool { return hasSuffix(topic, "confirm") }

func (h *ConfirmHandler) Handle(_ context.Context, _ string, payload []byte) error {
	var entries []model.AlarmConfirm
	if err := json.Unmarshal(payload, &entries); err != nil {
		return fmt.Errorf("ingress: decode confirm payload: %w", err)
	}
	h.Service.ConfirmAlarms(entries)
	return nil
}

// FarmConfigHandler owns the "farm_config" topic suffix.
type FarmConfigHandler struct {
	Service *alarmstate.Service
	Player  PlayCanceller
}

func (h *FarmConfigHandler) Name() string { return "farm_config" }

func (h *FarmConfigHandler) Match(topic string) bool { return hasSuffix(topic, "farm_config") }

func (h *FarmConfigHandler) Handle(_ context.Context, _ string, payload []byte) error {
	var cfg model.FarmConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return fmt.Errorf("ingress: decode farm_config payload: %w", err)
	}

	if cfg.Pause != nil {
		h.Service.SetPause(*cfg.Pause)
		if *cfg.Pause && h.Player != nil {
			h.Player.CancelPlay()
		}
	}
	if cfg.Lang != nil {
		h.Service.SetLanguage(*cfg.Lang)
	}
	if cfg.EnableBox != nil {
		h.Service.SetSoundbox(model.BoxConfig{Enabled: *cfg.EnableBox, Volume: 50})
	}
	return nil
}

// HouseSetHandler owns the "houses" topic suffix.
type HouseSetHandler struct {
	Service *alarmstate.Service
}

func (h *HouseSetHandler) Name() string { return "houses" }

func (h *HouseSetHandler) Match(topic string) bool { return hasSuffix(topic, "houses") }

func (h *HouseSetHandler) Handle(_ context.Context, _ string, payload []byte) error {
	var houses []model.House
	if err := json.Unmarshal(payload, &houses); err != nil {
		return fmt.Errorf("ingress: decode houses payload: %w", err)
	}
	h.Service.SetHouses(houses)
	return nil
}

// SoundPostsHandler owns the "sound_posts" topic suffix.
type SoundPostsHandler struct {
	Service *alarmstate.Service
}

func (h *SoundPostsHandler) Name() string { return "sound_posts" }

func (h *SoundPostsHandler) Match(topic string) bool { return hasSuffix(topic, "sound_posts") }

func (h *SoundPostsHandler) Handle(_ context.Context, _ string, payload []byte) error {
	var patch model.SoundPostsPatch
	if err := json.Unmarshal(payload, &patch); err != nil {
		return fmt.Errorf("ingress: decode sound_posts payload: %w", err)
	}
	if patch.DeviceIDs == nil {
		return nil
	}
	speed := uint8(50)
	if patch.Speed != nil {
		speed = *patch.Speed
	}
	h.Service.SetSoundposts(model.PostConfig{DeviceIDs: patch.DeviceIDs, Speed: speed})
	return nil
}
