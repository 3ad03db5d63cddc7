// Package config loads the alarm-player TOML configuration file, applies
// AP__-prefixed environment overrides, and layers CLI flag overrides on
// top, in that precedence order (file < env < CLI).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type DatabaseConfig struct {
	URL string `toml:"url"`
}

type TracingConfig struct {
	Level string `toml:"level"`
}

type MQTTConfig struct {
	ClientID     string `toml:"client_id"`
	Broker       string `toml:"broker"`
	Port         int    `toml:"port"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	KeepAlive    int    `toml:"keep_alive"`
	CleanSession bool   `toml:"clean_session"`
	TopicAlarms  string `toml:"topic_alarms"`
	TopicTest    string `toml:"topic_test"`
	TopicSpeeker string `toml:"topic_speeker"`
}

type AlarmConfig struct {
	AscIntervalSecs         uint64 `toml:"asc_interval_secs"`
	CycleIntervalSecs       uint64 `toml:"cycle_interval_secs"`
	PlayIntervalSecs        uint64 `toml:"play_interval_secs"`
	PlayDelaySecs           uint64 `toml:"play_delay_secs"`
	DefaultTestPlayDuration uint64 `toml:"default_test_play_duration"`
	TestMinDuration         uint64 `toml:"test_min_duration"`
	AlarmMinDuration        uint64 `toml:"alarm_min_duration"`
	SpeechMinDuration       uint64 `toml:"speech_min_duration"`
	EmptyScheduleSecs       uint64 `toml:"empty_schedule_secs"`
	InitURL                 string `toml:"init_url"`
	DefaultLanguage         string `toml:"default_language"`
	LocalizationPath        string `toml:"localization_path"`
}

type QueueConfig struct {
	ActAlarmSize     int `toml:"act_alarm_size"`
	TestAlarmSize    int `toml:"test_alarm_size"`
	CycleAlarmSize   int `toml:"cycle_alarm_size"`
	RealtimePlaySize int `toml:"realtime_play_size"`
	CyclePlaySize    int `toml:"cycle_play_size"`
}

type SoundboxConfig struct {
	AlarmMediaPath string `toml:"alarm_media_path"`
	TestMediaPath  string `toml:"test_media_path"`
}

type SoundpostConfig struct {
	APIHost       string `toml:"api_host"`
	APILoginToken string `toml:"api_login_token"`
	AlarmMediaURL string `toml:"alarm_media_url"`
	TestMediaURL  string `toml:"test_media_url"`
	PlayMode      string `toml:"play_mode"`
	WSUsername    string `toml:"ws_username"`
	WSPassword    string `toml:"ws_password"`
}

type RecorderConfig struct {
	RecordStoragePath string `toml:"record_storage_path"`
	RecordLinkPath    string `toml:"record_link_path"`
}

// HTTPConfig is the ambient operational HTTP server: /healthz and /metrics.
// It has no counterpart in the external interface contract; it exists
// purely for operability.
type HTTPConfig struct {
	Addr           string  `toml:"addr"`
	RateLimitRPS   float64 `toml:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst"`
}

type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Tracing   TracingConfig   `toml:"tracing"`
	MQTT      MQTTConfig      `toml:"mqtt"`
	Alarm     AlarmConfig     `toml:"alarm"`
	Queue     QueueConfig     `toml:"queue"`
	Soundbox  SoundboxConfig  `toml:"soundbox"`
	Soundpost SoundpostConfig `toml:"soundpost"`
	Recorder  RecorderConfig  `toml:"recorder"`
	HTTP      HTTPConfig      `toml:"http"`
}

// Overrides carries CLI-flag-sourced values, applied last.
type Overrides struct {
	ConfigPath      string
	LocalizationDir string
}

func defaults() Config {
	return Config{
		Tracing: TracingConfig{Level: "info"},
		MQTT: MQTTConfig{
			ClientID:     "alarm-player",
			Broker:       "127.0.0.1",
			Port:         1883,
			KeepAlive:    30,
			CleanSession: true,
			TopicAlarms:  "alarm",
			TopicTest:    "crontab",
			TopicSpeeker: "sound_posts",
		},
		Alarm: AlarmConfig{
			AscIntervalSecs:         30,
			CycleIntervalSecs:       60,
			PlayIntervalSecs:        10,
			PlayDelaySecs:           0,
			DefaultTestPlayDuration: 10,
			TestMinDuration:         5,
			AlarmMinDuration:        5,
			SpeechMinDuration:       3,
			EmptyScheduleSecs:       3600,
			DefaultLanguage:         "zh-CN",
			LocalizationPath:        "localization",
		},
		Queue: QueueConfig{
			ActAlarmSize:     64,
			TestAlarmSize:    8,
			CycleAlarmSize:   64,
			RealtimePlaySize: 16,
			CyclePlaySize:    16,
		},
		Soundpost: SoundpostConfig{PlayMode: "music"},
		HTTP:      HTTPConfig{Addr: ":8089", RateLimitRPS: 20, RateLimitBurst: 40},
	}
}

// Load reads the TOML file at overrides.ConfigPath (default "config.toml"),
// applies AP__-prefixed environment overrides, then CLI overrides.
func Load(overrides Overrides) (*Config, error) {
	path := overrides.ConfigPath
	if path == "" {
		path = "config.toml"
	}

	cfg := defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if overrides.LocalizationDir != "" {
		cfg.Alarm.LocalizationPath = overrides.LocalizationDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays AP__SECTION_FIELD environment variables onto cfg,
// mirroring the prefix "AP", prefix-separator "__" convention of the
// original prototype's config loader.
func applyEnv(cfg *Config) {
	str(&cfg.Database.URL, "AP__DATABASE_URL")
	str(&cfg.Tracing.Level, "AP__TRACING_LEVEL")

	str(&cfg.MQTT.ClientID, "AP__MQTT_CLIENT_ID")
	str(&cfg.MQTT.Broker, "AP__MQTT_BROKER")
	intv(&cfg.MQTT.Port, "AP__MQTT_PORT")
	str(&cfg.MQTT.Username, "AP__MQTT_USERNAME")
	str(&cfg.MQTT.Password, "AP__MQTT_PASSWORD")
	intv(&cfg.MQTT.KeepAlive, "AP__MQTT_KEEP_ALIVE")
	boolv(&cfg.MQTT.CleanSession, "AP__MQTT_CLEAN_SESSION")

	u64v(&cfg.Alarm.AscIntervalSecs, "AP__ALARM_ASC_INTERVAL_SECS")
	u64v(&cfg.Alarm.CycleIntervalSecs, "AP__ALARM_CYCLE_INTERVAL_SECS")
	u64v(&cfg.Alarm.PlayIntervalSecs, "AP__ALARM_PLAY_INTERVAL_SECS")
	u64v(&cfg.Alarm.PlayDelaySecs, "AP__ALARM_PLAY_DELAY_SECS")
	u64v(&cfg.Alarm.DefaultTestPlayDuration, "AP__ALARM_DEFAULT_TEST_PLAY_DURATION")
	str(&cfg.Alarm.InitURL, "AP__ALARM_INIT_URL")
	str(&cfg.Alarm.DefaultLanguage, "AP__ALARM_DEFAULT_LANGUAGE")
	str(&cfg.Alarm.LocalizationPath, "AP__ALARM_LOCALIZATION_PATH")

	str(&cfg.Soundpost.APIHost, "AP__SOUNDPOST_API_HOST")
	str(&cfg.Soundpost.APILoginToken, "AP__SOUNDPOST_API_LOGIN_TOKEN")
	str(&cfg.Soundpost.WSUsername, "AP__SOUNDPOST_WS_USERNAME")
	str(&cfg.Soundpost.WSPassword, "AP__SOUNDPOST_WS_PASSWORD")
	str(&cfg.Soundpost.PlayMode, "AP__SOUNDPOST_PLAY_MODE")

	str(&cfg.Recorder.RecordStoragePath, "AP__RECORDER_RECORD_STORAGE_PATH")
	str(&cfg.Recorder.RecordLinkPath, "AP__RECORDER_RECORD_LINK_PATH")

	str(&cfg.HTTP.Addr, "AP__HTTP_ADDR")
	f64v(&cfg.HTTP.RateLimitRPS, "AP__HTTP_RATE_LIMIT_RPS")
	intv(&cfg.HTTP.RateLimitBurst, "AP__HTTP_RATE_LIMIT_BURST")
}

// f64v overlays a float64 environment variable onto dst, ignoring unparsable values.
func f64v(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}

func str(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func intv(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func u64v(dst *uint64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func boolv(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate checks required fields are present and enumerations are valid.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url is required")
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt.broker is required")
	}
	switch strings.ToLower(c.Soundpost.PlayMode) {
	case "music", "tts":
	default:
		return fmt.Errorf("config: soundpost.play_mode must be music or tts, got %q", c.Soundpost.PlayMode)
	}
	return nil
}
