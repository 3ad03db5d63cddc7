// Package alarmstate is the single-owner state aggregate: the ongoing-alarm
// set, house/soundpost/soundbox/language configuration, the crontab-driven
// test schedule, and the gating predicates every other component reads.
//
// Every exposed method is either a pure snapshot read or a self-contained
// mutation; no method suspends while holding the lock.
package alarmstate

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/broker"
	"github.com/snarg/alarm-player/internal/database"
	"github.com/snarg/alarm-player/internal/metrics"
	"github.com/snarg/alarm-player/internal/model"
)

// TopicCrontabResult is the broker topic test-result confirmations publish
// on, per the external interface contract.
const TopicCrontabResult = "ap/test_alarm/crontab/result"

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Service is the shared alarm state aggregate, guarded by a single
// sync.RWMutex.
type Service struct {
	mu sync.RWMutex

	ongoing        map[model.AlarmKey]*model.Alarm
	unmappedCancel map[model.AlarmKey]*model.Alarm
	confirmed      map[model.AlarmKey]bool

	houses     map[string]model.House // keyed by house code
	soundbox   model.BoxConfig
	soundposts model.PostConfig

	language        string
	defaultLanguage string
	localization    model.Localization

	pause bool

	crontab      string
	cronSchedule cron.Schedule

	testPlayDuration uint32
	playDelay        time.Duration
	playIntervalSecs uint64

	db     *database.DB
	broker *broker.Client
	log    zerolog.Logger
}

// Options configures the scalar defaults a Service starts with; these are
// typically sourced from internal/config.
type Options struct {
	DefaultLanguage  string
	PlayDelay        time.Duration
	TestPlayDuration uint32
	PlayIntervalSecs uint64
	DB               *database.DB
	Broker           *broker.Client
	Log              zerolog.Logger
}

func New(opts Options) *Service {
	return &Service{
		ongoing:          make(map[model.AlarmKey]*model.Alarm),
		unmappedCancel:   make(map[model.AlarmKey]*model.Alarm),
		confirmed:        make(map[model.AlarmKey]bool),
		houses:           make(map[string]model.House),
		localization:     make(model.Localization),
		language:         opts.DefaultLanguage,
		defaultLanguage:  opts.DefaultLanguage,
		playDelay:        opts.PlayDelay,
		testPlayDuration: opts.TestPlayDuration,
		playIntervalSecs: opts.PlayIntervalSecs,
		db:               opts.DB,
		broker:           opts.Broker,
		log:              opts.Log,
	}
}

// SetAlarm applies a raise or clear to the ongoing-alarm set. It returns
// true iff a becomes a new ongoing alarm: the key was absent, or the
// stored entry was strictly older and a is a raise. Clears never return
// true. Out-of-order alarms (older timestamp than stored) are rejected.
func (s *Service) SetAlarm(a *model.Alarm) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { metrics.OngoingAlarmsGauge.Set(float64(len(s.ongoing))) }()

	key := a.Key()
	existing, ok := s.ongoing[key]

	if !a.IsAlarm {
		if !ok {
			// Clear arrived before its matching raise: buffer for bootstrap
			// reconciliation.
			s.unmappedCancel[key] = a
			return false
		}
		if a.Timestamp.Before(existing.Timestamp) {
			s.log.Warn().
				Str("house_code", key.HouseCode).Str("target_name", key.TargetName).
				Time("clear_ts", a.Timestamp).Time("stored_ts", existing.Timestamp).
				Msg("rejecting out-of-order clear")
			return false
		}
		delete(s.ongoing, key)
		return false
	}

	if !ok || a.Timestamp.After(existing.Timestamp) {
		s.ongoing[key] = a
		return true
	}

	s.log.Warn().
		Str("house_code", key.HouseCode).Str("target_name", key.TargetName).
		Time("raise_ts", a.Timestamp).Time("stored_ts", existing.Timestamp).
		Msg("rejecting out-of-order raise")
	return false
}

// GetAlarmStatus classifies a for playback.
func (s *Service) GetAlarmStatus(a *model.Alarm) model.AlarmStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.ongoing[a.Key()]
	canceled := (!ok && !a.IsTest) || (ok && entry.Timestamp.After(a.Timestamp))
	if canceled {
		return model.StatusCanceled
	}

	house, hasHouse := s.houses[a.HouseCode]
	paused := s.pause || a.IsConfirmed || (hasHouse && house.IsEmptyMode && !house.Enabled)
	if paused {
		return model.StatusPaused
	}
	return model.StatusPlayable
}

// IsOngoingAlarmExist reports whether the ongoing-alarm set is nonempty.
func (s *Service) IsOngoingAlarmExist() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ongoing) > 0
}

// NextFireTime evaluates the current crontab's next upcoming instant in
// UTC, or false if no crontab is set or it failed to parse.
func (s *Service) NextFireTime(now time.Time) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cronSchedule == nil {
		return time.Time{}, false
	}
	return s.cronSchedule.Next(now.UTC()), true
}

func (s *Service) GetPlayDelay() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playDelay
}

func (s *Service) GetTestPlayDuration() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.testPlayDuration
}

func (s *Service) GetPlayIntervalSecs() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playIntervalSecs
}

func (s *Service) GetSoundbox() model.BoxConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.soundbox
}

func (s *Service) GetSoundposts() model.PostConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.soundposts
}

func (s *Service) SetHouses(houses []model.House) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[string]model.House, len(houses))
	for _, h := range houses {
		m[h.Code] = h
	}
	s.houses = m
}

func (s *Service) SetSoundposts(cfg model.PostConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.soundposts = cfg
}

func (s *Service) SetSoundbox(cfg model.BoxConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.soundbox = cfg
}

func (s *Service) SetLanguage(lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = lang
}

func (s *Service) SetPause(pause bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pause = pause
}

func (s *Service) SetTestPlayDuration(seconds uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testPlayDuration = seconds
}

// SetCrontab parses and installs a new crontab expression. An empty string
// clears the schedule. A parse failure logs and leaves the schedule unset.
func (s *Service) SetCrontab(expr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.crontab = expr
	if expr == "" {
		s.cronSchedule = nil
		return
	}
	schedule, err := parseCrontab(expr)
	if err != nil {
		s.log.Warn().Err(err).Str("crontab", expr).Msg("invalid crontab expression, schedule left unset")
		s.cronSchedule = nil
		return
	}
	s.cronSchedule = schedule
}

// ConfirmAlarms marks matching ongoing-alarm entries confirmed in place, so
// every holder of the same *Alarm (cycle queue, in-flight playback) observes
// the update on its next status check.
func (s *Service) ConfirmAlarms(entries []model.AlarmConfirm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		key := model.AlarmKey{HouseCode: e.HouseCode, TargetName: e.TargetName}
		s.confirmed[key] = e.IsConfirmed
		if a, ok := s.ongoing[key]; ok {
			a.IsConfirmed = e.IsConfirmed
		}
	}
}
