package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends understood by the shop table factory.
const (
	BackendSQLite   = "sqlite"
	BackendAirtable = "airtable"
	BackendDynamoDB = "dynamodb"
)

// AppConfig holds infrastructure config and secrets from env vars.
type AppConfig struct {
	DBPath         string
	ConfigPath     string // Path to the YAML config file
	Port           string
	StorageBackend string
	LogLevel       string

	AirtableAPIKey string
	AirtableBaseID string
	FoursquareKey  string
	UnsplashKey    string
	DynamoDBTable  string
}

// ServiceConfig holds tunables read from YAML.
type ServiceConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Search   SearchConfig   `yaml:"search"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Detail   DetailConfig   `yaml:"detail"`
	Tasks    TasksConfig    `yaml:"tasks"`
	Sessions SessionsConfig `yaml:"sessions"`
}

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

type SearchConfig struct {
	DefaultLatLong     string   `yaml:"default_lat_long"`
	Limit              int      `yaml:"limit"`
	Query              string   `yaml:"query"`
	PhotoQuery         string   `yaml:"photo_query"`
	PhotoCount         int      `yaml:"photo_count"`
	PlaceholderAddress string   `yaml:"placeholder_address"`
	FallbackImageURL   string   `yaml:"fallback_image_url"`
	FoursquareURL      string   `yaml:"foursquare_url"`
	UnsplashURL        string   `yaml:"unsplash_url"`
	HTTPTimeout        Duration `yaml:"http_timeout"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"`
	Table       string `yaml:"table"`
	AirtableURL string `yaml:"airtable_url"`
}

type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format"`
	Loki   LokiConfig `yaml:"loki"`
}

type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

type DetailConfig struct {
	WaitForShops Duration `yaml:"wait_for_shops"`
}

type TasksConfig struct {
	Workers int `yaml:"workers"`
	Buffer  int `yaml:"buffer"`
}

// SessionsConfig bounds the in-memory visitor sessions. Zero disables a limit.
type SessionsConfig struct {
	IdleTTL       Duration `yaml:"idle_ttl"`
	Max           int      `yaml:"max"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// Duration accepts "500ms"-style strings in YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// GetAppConfig reads basic infrastructure settings from environment variables.
// Values from .env.local and .env are loaded first without overriding the real environment.
func GetAppConfig() (AppConfig, error) {
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := AppConfig{
		DBPath:         os.Getenv("DB_PATH"),
		ConfigPath:     os.Getenv("CONFIG_PATH"),
		Port:           os.Getenv("PORT"),
		StorageBackend: strings.ToLower(os.Getenv("STORAGE_BACKEND")),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		AirtableAPIKey: os.Getenv("AIRTABLE_API_KEY"),
		AirtableBaseID: os.Getenv("AIRTABLE_BASE_ID"),
		FoursquareKey:  os.Getenv("FOURSQUARE_API_KEY"),
		UnsplashKey:    os.Getenv("UNSPLASH_ACCESS_KEY"),
		DynamoDBTable:  os.Getenv("DYNAMODB_TABLE"),
	}

	// Set defaults if not provided
	if cfg.DBPath == "" {
		cfg.DBPath = "./local-data/coffee-stores.db"
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = "config.yaml"
	}

	switch cfg.StorageBackend {
	case "", BackendSQLite, BackendAirtable, BackendDynamoDB:
	default:
		return AppConfig{}, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	return cfg, nil
}

// Defaults returns the configuration used when no YAML file is present.
func Defaults() ServiceConfig {
	return ServiceConfig{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  Duration{5 * time.Second},
			WriteTimeout: Duration{15 * time.Second},
		},
		Search: SearchConfig{
			DefaultLatLong:     "43.24907161731134,-2.940153717330441",
			Limit:              6,
			Query:              "cafe",
			PhotoQuery:         "coffee shop",
			PhotoCount:         30,
			PlaceholderAddress: "No address specified",
			FallbackImageURL:   "https://images.unsplash.com/photo-1498804103079-a6351b050096?ixlib=rb-1.2.1&auto=format&fit=crop&w=2468&q=80",
			FoursquareURL:      "https://api.foursquare.com/v3/places/search",
			UnsplashURL:        "https://api.unsplash.com/search/photos",
			HTTPTimeout:        Duration{10 * time.Second},
		},
		Storage: StorageConfig{
			Backend:     BackendSQLite,
			Table:       "coffee-stores",
			AirtableURL: "https://api.airtable.com/v0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Detail: DetailConfig{WaitForShops: Duration{500 * time.Millisecond}},
		Tasks:  TasksConfig{Workers: 2, Buffer: 64},
		Sessions: SessionsConfig{
			IdleTTL:       Duration{30 * time.Minute},
			Max:           10000,
			SweepInterval: Duration{time.Minute},
		},
	}
}

// LoadServiceConfig reads the YAML file on top of Defaults. A missing file is not an error.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file at '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Apply lets env settings override the YAML ones.
func (c *ServiceConfig) Apply(app AppConfig) {
	if app.StorageBackend != "" {
		c.Storage.Backend = app.StorageBackend
	}
	if app.LogLevel != "" {
		c.Logging.Level = app.LogLevel
	}
	if app.Port != "" {
		c.Server.Addr = ":" + app.Port
	}
}

func (c *ServiceConfig) validate() error {
	if c.Search.Limit <= 0 {
		return fmt.Errorf("search.limit must be positive, got %d", c.Search.Limit)
	}
	if c.Search.PhotoCount < 0 {
		return fmt.Errorf("search.photo_count must not be negative, got %d", c.Search.PhotoCount)
	}
	if c.Tasks.Workers <= 0 {
		return fmt.Errorf("tasks.workers must be positive, got %d", c.Tasks.Workers)
	}
	if c.Sessions.Max < 0 {
		return fmt.Errorf("sessions.max must not be negative, got %d", c.Sessions.Max)
	}
	switch c.Storage.Backend {
	case BackendSQLite, BackendAirtable, BackendDynamoDB:
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}
