package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/listup/publisher/internal/common"
	"github.com/listup/publisher/internal/interfaces"
	"github.com/listup/publisher/internal/services/assets"
	"github.com/listup/publisher/internal/services/control"
	"github.com/listup/publisher/internal/services/poster"
	"github.com/listup/publisher/internal/services/scheduler"
	"github.com/listup/publisher/internal/services/session"
	"github.com/listup/publisher/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	AssetResolver  interfaces.AssetResolver
	Poster         interfaces.Poster
	Scheduler      *scheduler.Service
	ControlService interfaces.ControlService
}

// New wires the application together
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	resolver, err := assets.NewResolver(config.Images, config.Facebook.UserAgent, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize asset resolver: %w", err)
	}

	selectors, err := poster.LoadSelectors(config.Publisher.SelectorsFile)
	if err != nil {
		// Defaults still apply; a broken overrides file should be visible
		// but not fatal
		logger.Warn().Err(err).Msg("Selector overrides not loaded, using defaults")
	}

	machine := poster.NewMachine(poster.Config{
		ComposerURL:        config.Facebook.ComposerURL,
		StageTimeout:       common.ParseDurationOr(config.Publisher.StageTimeout, 30*time.Second),
		ConfirmURLPattern:  config.Publisher.ConfirmURLPattern,
		ConfirmSelector:    config.Publisher.ConfirmSelector,
		AllowPartialImages: config.Publisher.AllowPartialImages,
	}, selectors, logger)

	sessionFactory := func() (interfaces.SessionManager, error) {
		return session.NewManager(config.Facebook, config.Session, logger)
	}

	schedulerService := scheduler.NewService(
		config.Publisher,
		storageManager.ListingStorage(),
		resolver,
		machine,
		sessionFactory,
		logger,
	)

	controlService := control.NewService(storageManager.ListingStorage(), schedulerService, logger)

	return &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		AssetResolver:  resolver,
		Poster:         machine,
		Scheduler:      schedulerService,
		ControlService: controlService,
	}, nil
}

// Start launches the scheduler
func (a *App) Start() error {
	return a.Scheduler.Start()
}

// Close shuts everything down in dependency order
func (a *App) Close() {
	a.Scheduler.Stop()
	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close storage cleanly")
	}
}
