package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/alarmstate"
	"github.com/snarg/alarm-player/internal/broker"
	"github.com/snarg/alarm-player/internal/config"
	"github.com/snarg/alarm-player/internal/cycle"
	"github.com/snarg/alarm-player/internal/database"
	"github.com/snarg/alarm-player/internal/gate"
	"github.com/snarg/alarm-player/internal/httpapi"
	"github.com/snarg/alarm-player/internal/ingress"
	"github.com/snarg/alarm-player/internal/metrics"
	"github.com/snarg/alarm-player/internal/model"
	"github.com/snarg/alarm-player/internal/player"
	"github.com/snarg/alarm-player/internal/player/soundbox"
	"github.com/snarg/alarm-player/internal/player/soundpost"
	"github.com/snarg/alarm-player/internal/recorder"
	"github.com/snarg/alarm-player/internal/testsched"
	"github.com/snarg/alarm-player/internal/wsrelay"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var logLevel string
	var showVersion bool
	flag.StringVar(&overrides.ConfigPath, "config", "", "Path to config.toml (default: config.toml)")
	flag.StringVar(&overrides.LocalizationDir, "localization", "", "Path to localization directory (overrides alarm.localization_path)")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides tracing.level)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	if logLevel != "" {
		cfg.Tracing.Level = logLevel
	}

	level, err := zerolog.ParseLevel(cfg.Tracing.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Str("log_level", level.String()).
		Msg("alarm-player starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.Database.URL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema initialization failed")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed (run ALTER TABLE manually or grant ALTER privileges)")
	}

	mqttLog := log.With().Str("component", "mqtt").Logger()
	mqttClient, err := broker.Connect(broker.Options{
		Broker:       cfg.MQTT.Broker,
		Port:         cfg.MQTT.Port,
		ClientID:     cfg.MQTT.ClientID,
		Username:     cfg.MQTT.Username,
		Password:     cfg.MQTT.Password,
		KeepAlive:    cfg.MQTT.KeepAlive,
		CleanSession: cfg.MQTT.CleanSession,
		Topics:       []string{"#"},
		Log:          mqttLog,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
	}
	defer mqttClient.Close()

	stateLog := log.With().Str("component", "alarmstate").Logger()
	service := alarmstate.New(alarmstate.Options{
		DefaultLanguage:  cfg.Alarm.DefaultLanguage,
		PlayDelay:        time.Duration(cfg.Alarm.PlayDelaySecs) * time.Second,
		TestPlayDuration: uint32(cfg.Alarm.DefaultTestPlayDuration),
		PlayIntervalSecs: cfg.Alarm.PlayIntervalSecs,
		DB:               db,
		Broker:           mqttClient,
		Log:              stateLog,
	})

	if err := service.Init(cfg.Alarm.LocalizationPath); err != nil {
		log.Fatal().Err(err).Msg("failed to load localization tables")
	}

	bootstrapBrokerState(ctx, db, service, log)

	if cfg.Alarm.InitURL != "" {
		restyClient := resty.New().SetTimeout(10 * time.Second)
		if err := service.InitAlarmSet(ctx, restyClient, cfg.Alarm.InitURL); err != nil {
			log.Fatal().Err(err).Msg("failed to bootstrap ongoing-alarm set from inventory snapshot")
		}
	}

	playMode := model.PlayModeMusic
	if cfg.Soundpost.PlayMode == "tts" {
		playMode = model.PlayModeTTS
	}

	recorderInst := recorder.New(cfg.Recorder.RecordStoragePath, cfg.Recorder.RecordLinkPath,
		log.With().Str("component", "recorder").Logger())
	soundboxInst := soundbox.New(log.With().Str("component", "soundbox").Logger())
	soundpostInst := soundpost.New(cfg.Soundpost.APIHost, cfg.Soundpost.APILoginToken,
		log.With().Str("component", "soundpost").Logger())

	playerInst := player.New(player.Options{
		Service:        service,
		Soundbox:       soundboxInst,
		Soundpost:      soundpostInst,
		Recorder:       recorderInst,
		PlayMode:       playMode,
		AlarmMediaURL:  cfg.Soundpost.AlarmMediaURL,
		TestMediaURL:   cfg.Soundpost.TestMediaURL,
		AlarmMediaPath: cfg.Soundbox.AlarmMediaPath,
		TestMediaPath:  cfg.Soundbox.TestMediaPath,
		AlarmDuration:  time.Duration(cfg.Alarm.AlarmMinDuration) * time.Second,
		Log:            log.With().Str("component", "player").Logger(),
	})

	actCh := make(chan *model.Alarm, cfg.Queue.ActAlarmSize)
	testCh := make(chan *model.Alarm, cfg.Queue.TestAlarmSize)
	cycleInputCh := make(chan *model.Alarm, cfg.Queue.CycleAlarmSize)
	realtimePlayCh := make(chan *model.Alarm, cfg.Queue.RealtimePlaySize)
	cyclePlayCh := make(chan *model.Alarm, cfg.Queue.CyclePlaySize)
	mergedPlayCh := make(chan *model.Alarm, cfg.Queue.RealtimePlaySize+cfg.Queue.CyclePlaySize)
	configCh := make(chan model.CrontabMessage, 8)

	router := ingress.NewRouter(log.With().Str("component", "ingress").Logger(),
		&ingress.ActAlarmHandler{ActCh: actCh, Player: playerInst},
		&ingress.CrontabHandler{ConfigCh: configCh},
		&ingress.ConfirmHandler{Service: service},
		&ingress.FarmConfigHandler{Service: service, Player: playerInst},
		&ingress.HouseSetHandler{Service: service},
		&ingress.SoundPostsHandler{Service: service},
	)
	mqttClient.SetMessageHandler(func(topic string, payload []byte) {
		router.Dispatch(ctx, topic, payload)
	})

	gateInst := gate.New(service, gate.Options{
		RetryCheckInterval: time.Second,
		Log:                log.With().Str("component", "gate").Logger(),
	})
	cycleInst := cycle.New(service, time.Duration(cfg.Alarm.CycleIntervalSecs)*time.Second,
		log.With().Str("component", "cycle").Logger())
	testSchedInst := testsched.New(service, log.With().Str("component", "testsched").Logger())

	wsLog := log.With().Str("component", "wsrelay").Logger()
	relay := wsrelay.New(wsrelay.Options{
		APIHost:  cfg.Soundpost.APIHost,
		Username: cfg.Soundpost.WSUsername,
		Password: cfg.Soundpost.WSPassword,
		Broker:   mqttClient,
		Log:      wsLog,
	})

	go gateInst.Run(ctx, actCh, testCh, realtimePlayCh)
	go cycleInst.Run(ctx, cycleInputCh, cyclePlayCh)
	go testSchedInst.Run(ctx, configCh, testCh)
	go mergePlayChannels(ctx, realtimePlayCh, cyclePlayCh, mergedPlayCh)
	go playerInst.Run(ctx, mergedPlayCh, cycleInputCh)
	go relay.Run(ctx)
	go sampleChannelDepths(ctx, map[string]chan *model.Alarm{
		"act_alarm":     actCh,
		"test_alarm":    testCh,
		"cycle_alarm":   cycleInputCh,
		"realtime_play": realtimePlayCh,
		"cycle_play":    cyclePlayCh,
		"merged_play":   mergedPlayCh,
	})

	httpLog := log.With().Str("component", "http").Logger()
	httpServer := httpapi.NewServer(httpapi.Options{
		Addr:           cfg.HTTP.Addr,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		DB:             db,
		Broker:         mqttClient,
		Service:        service,
		StartTime:      startTime,
		Log:            httpLog,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	log.Info().
		Str("listen", cfg.HTTP.Addr).
		Str("version", version).
		Dur("startup_ms", time.Since(startTime)).
		Msg("alarm-player ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	playerInst.TerminatePlay()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("alarm-player stopped")
}

// sampleChannelDepths periodically publishes each named channel's buffered
// length to the channel_depth gauge, until ctx is canceled.
func sampleChannelDepths(ctx context.Context, channels map[string]chan *model.Alarm) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, ch := range channels {
				metrics.ChannelDepth.WithLabelValues(name).Set(float64(len(ch)))
			}
		}
	}
}

// mergePlayChannels fans real-time and cycle-repeater play requests into a
// single channel the player consumes, giving real-time requests priority
// whenever both are ready.
func mergePlayChannels(ctx context.Context, realtimeCh, cycleCh <-chan *model.Alarm, out chan<- *model.Alarm) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-realtimeCh:
			if !ok {
				return
			}
			select {
			case out <- a:
			case <-ctx.Done():
				return
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case a, ok := <-realtimeCh:
			if !ok {
				return
			}
			select {
			case out <- a:
			case <-ctx.Done():
				return
			}
		case a, ok := <-cycleCh:
			if !ok {
				return
			}
			select {
			case out <- a:
			case <-ctx.Done():
				return
			}
		}
	}
}

// bootstrapBrokerState seeds the state aggregate from the bootstrap
// configuration tables before any broker traffic or inventory snapshot is
// applied, so the first alarm handled already sees correct house, pause,
// language, soundbox, soundpost, and test-schedule state.
func bootstrapBrokerState(ctx context.Context, db *database.DB, service *alarmstate.Service, log zerolog.Logger) {
	houses, err := db.LoadHouses(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load houses")
	} else {
		service.SetHouses(houses)
	}

	farmCfg, err := db.LoadFarmConfig(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load farm config")
	} else if farmCfg != nil {
		service.SetSoundbox(model.BoxConfig{Enabled: farmCfg.BoxEnabled, Volume: farmCfg.LocalVolume})
		service.SetPause(farmCfg.Pause)
		if farmCfg.Language != "" {
			service.SetLanguage(farmCfg.Language)
		}
	}

	posts, err := db.LoadSoundposts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load soundposts")
	} else {
		service.SetSoundposts(posts)
	}

	testCfg, err := db.LoadTestAlarmConfig(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load test alarm config")
	} else if testCfg != nil {
		service.SetTestPlayDuration(testCfg.Duration)
		service.SetCrontab(testCfg.Crontab)
	}
}
