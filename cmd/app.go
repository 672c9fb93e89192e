package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"mspro-labs/coffee-finder/internal/airtable"
	"mspro-labs/coffee-finder/internal/config"
	"mspro-labs/coffee-finder/internal/db"
	"mspro-labs/coffee-finder/internal/directory"
	"mspro-labs/coffee-finder/internal/dynamo"
	"mspro-labs/coffee-finder/internal/logging"
	"mspro-labs/coffee-finder/internal/shops"
	"mspro-labs/coffee-finder/internal/telemetry"
)

// app bundles what every subcommand needs: config, logger and the
// resources to release on exit.
type app struct {
	env     config.AppConfig
	cfg     *config.ServiceConfig
	logger  zerolog.Logger
	closers []func()
}

func newApp() (*app, error) {
	// 1. Config: env first, then YAML tunables
	env, err := config.GetAppConfig()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if configPath != "" {
		env.ConfigPath = configPath
	}
	cfg, err := config.LoadServiceConfig(env.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Apply(env)

	// 2. Logging
	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &app{env: env, cfg: cfg, logger: logger, closers: []func(){cleanup}}, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openTable connects the configured storage backend.
func (a *app) openTable(ctx context.Context) (shops.Table, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendAirtable:
		client, err := airtable.NewClient(a.env.AirtableAPIKey, a.cfg.Storage.AirtableURL, a.env.AirtableBaseID, a.cfg.Storage.Table)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.BackendDynamoDB:
		table := a.env.DynamoDBTable
		if table == "" {
			table = a.cfg.Storage.Table
		}
		t, err := dynamo.NewFromEnv(ctx, table)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		database, err := db.Connect(a.env.DBPath)
		if err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		a.closers = append(a.closers, func() { database.Close() })
		return db.NewShopTable(database), nil
	}
}

func (a *app) shopService(ctx context.Context, metrics telemetry.Collector) (*shops.Service, error) {
	table, err := a.openTable(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Str("backend", a.cfg.Storage.Backend).Msg("storage ready")
	return shops.NewService(table, metrics, a.logger), nil
}

func (a *app) directory(metrics telemetry.Collector) (*directory.Directory, error) {
	s := a.cfg.Search
	if a.env.FoursquareKey == "" {
		a.logger.Warn().Msg("FOURSQUARE_API_KEY is not set; place searches will be rejected")
	}
	if a.env.UnsplashKey == "" {
		a.logger.Warn().Msg("UNSPLASH_ACCESS_KEY is not set; photo searches will be rejected")
	}
	places := directory.NewFoursquareClient(a.env.FoursquareKey, s.FoursquareURL, s.HTTPTimeout.Duration)
	photos := directory.NewUnsplashClient(a.env.UnsplashKey, s.UnsplashURL, s.HTTPTimeout.Duration)
	return directory.New(places, photos, s, metrics, a.logger)
}
