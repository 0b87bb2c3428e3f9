package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"location-spoof-guard/internal/alerting"
	"location-spoof-guard/internal/config"
	"location-spoof-guard/internal/guard"
	"location-spoof-guard/internal/oracle"
	"location-spoof-guard/internal/service"
	"location-spoof-guard/internal/source"
	"location-spoof-guard/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() *source.MQTTSource {
	return source.New(source.Options{
		BrokerURL:      a.Config.MQTT.BrokerURL,
		ClientID:       a.Config.MQTT.ClientID,
		FixTopic:       a.Config.MQTT.FixTopic,
		AccelTopic:     a.Config.MQTT.AccelTopic,
		NMEATopic:      a.Config.MQTT.NMEATopic,
		ConnectTimeout: a.Config.MQTT.ConnectTimeout,
	}, a.Logger)
}

func (a *App) newOracle() *oracle.HTTPOracle {
	return oracle.New(oracle.Options{
		URL:     a.Config.Oracle.URL,
		Timeout: a.Config.Oracle.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring session until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; audit persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	src := a.newSource()
	defer src.Close()

	var fraudStore storage.FraudEventStore
	var sampleStore storage.PositionSampleStore
	if store != nil {
		fraudStore = store
		sampleStore = store
	}

	fraudSink := &service.FraudFanout{
		Notifier: a.newNotifier(),
		Store:    fraudStore,
		Device:   a.Config.MQTT.ClientID,
		Logger:   a.Logger,
	}
	updateSink := &service.UpdateRecorder{
		Store:  sampleStore,
		Logger: a.Logger,
	}

	gcfg, err := service.GuardConfig(a.Config)
	if err != nil {
		return err
	}
	g := guard.New(gcfg, src, src, a.newOracle(), fraudSink, updateSink, a.Logger)
	svc := service.New(g, a.Logger)

	a.Logger.Info().Msg("starting location guard")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("guard terminated with error")
		return err
	}

	a.Logger.Info().Msg("location guard stopped")
	return nil
}

// ExportOptions hold parameters for exporting accepted fixes.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions configure the simulate command.
type SimulateOptions struct {
	Scenario string
}
