package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/viralforge/fieldcapture/internal/application"
	"github.com/viralforge/fieldcapture/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config is the resolved backend configuration.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int
	Location *time.Location

	StorageDriver string
	DatabaseURL   string
	MaxDBConns    int32
	RedisURL      string
	KafkaBrokers  []string
	KafkaTopics   map[string]string

	Capture       domain.ValidationConfig
	BcryptCost    int
	BlocksTTL     time.Duration
	MaxSampleRows int

	SeedBlocks []string
	SeedUsers  []application.SeedUser
}

// configFile mirrors configs/default.yaml.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
		Timezone string `yaml:"timezone"`
	} `yaml:"service"`
	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	Dependencies struct {
		PostgresURL  string            `yaml:"postgres_url"`
		MaxDBConns   int32             `yaml:"max_db_conns"`
		RedisURL     string            `yaml:"redis_url"`
		KafkaBrokers []string          `yaml:"kafka_brokers"`
		KafkaTopics  map[string]string `yaml:"kafka_topics"`
	} `yaml:"dependencies"`
	Capture struct {
		Defaults      *domain.Defaults              `yaml:"defaults"`
		Validation    map[domain.Field]domain.Range `yaml:"validation"`
		MaxSampleRows int                           `yaml:"max_sample_rows"`
	} `yaml:"capture"`
	Security struct {
		BcryptCost int `yaml:"bcrypt_cost"`
	} `yaml:"security"`
	Cache struct {
		BlocksTTLSeconds int `yaml:"blocks_ttl_seconds"`
	} `yaml:"cache"`
	Seed struct {
		Blocks []string `yaml:"blocks"`
		Users  []struct {
			UserID string `yaml:"user_id"`
			PIN    string `yaml:"pin"`
			Role   string `yaml:"role"`
		} `yaml:"users"`
	} `yaml:"seed"`
}

func defaultCaptureDocument() domain.ConfigDocument {
	return domain.ConfigDocument{
		Defaults: domain.Defaults{NAltura: 5, NCompleto: 3},
		Validation: map[domain.Field]domain.Range{
			domain.FieldAltura:     {Min: 0, Max: 500},
			domain.FieldEstructura: {Min: 0, Max: 300},
			domain.FieldDiametro:   {Min: 0, Max: 80},
		},
	}
}

// LoadConfig resolves defaults, then the YAML file, then env overrides. A
// missing file is not an error; a malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:     "field-capture",
		HTTPPort:      8080,
		GRPCPort:      9090,
		StorageDriver: StoragePostgres,
		MaxDBConns:    10,
		BcryptCost:    12,
		BlocksTTL:     5 * time.Minute,
		MaxSampleRows: 500,
		KafkaTopics: map[string]string{
			domain.EventSessionSubmitted: "field.session.submitted",
			domain.EventSessionReplaced:  "field.session.replaced",
		},
	}
	timezone := "America/Guayaquil"
	capture := defaultCaptureDocument()

	raw, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: read config file: %v", domain.ErrConfig, err)
	}
	if err == nil {
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Config{}, fmt.Errorf("%w: parse config file: %v", domain.ErrConfig, err)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Service.Timezone != "" {
			timezone = f.Service.Timezone
		}
		if f.Storage.Driver != "" {
			cfg.StorageDriver = f.Storage.Driver
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.MaxDBConns > 0 {
			cfg.MaxDBConns = f.Dependencies.MaxDBConns
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
		}
		for event, topic := range f.Dependencies.KafkaTopics {
			cfg.KafkaTopics[event] = topic
		}
		if f.Capture.Defaults != nil {
			capture.Defaults = *f.Capture.Defaults
		}
		// A validation block replaces the defaults wholesale so a partial
		// table is caught below instead of silently merged.
		if f.Capture.Validation != nil {
			capture.Validation = f.Capture.Validation
		}
		if f.Capture.MaxSampleRows > 0 {
			cfg.MaxSampleRows = f.Capture.MaxSampleRows
		}
		if f.Security.BcryptCost > 0 {
			cfg.BcryptCost = f.Security.BcryptCost
		}
		if f.Cache.BlocksTTLSeconds > 0 {
			cfg.BlocksTTL = time.Duration(f.Cache.BlocksTTLSeconds) * time.Second
		}
		cfg.SeedBlocks = f.Seed.Blocks
		for _, u := range f.Seed.Users {
			cfg.SeedUsers = append(cfg.SeedUsers, application.SeedUser{UserID: u.UserID, PIN: u.PIN, Role: u.Role})
		}
	}

	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	timezone = envOrDefault("SERVICE_TIMEZONE", timezone)
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(envOrDefault("STORAGE_DRIVER", cfg.StorageDriver)))
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.BlocksTTL = time.Duration(envInt("BLOCKS_TTL_SECONDS", int(cfg.BlocksTTL.Seconds()))) * time.Second
	cfg.SeedBlocks = envCSV("SEED_BLOCKS", cfg.SeedBlocks)

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Config{}, fmt.Errorf("%w: timezone %q: %v", domain.ErrConfig, timezone, err)
	}
	cfg.Location = loc

	switch cfg.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("%w: missing DB_URL/POSTGRES_URL", domain.ErrConfig)
		}
	default:
		return Config{}, fmt.Errorf("%w: unknown storage driver %q", domain.ErrConfig, cfg.StorageDriver)
	}

	cfg.Capture, err = domain.NewValidationConfig(capture)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ClientConfig is the resolved terminal client configuration.
type ClientConfig struct {
	BackendURL     string
	RequestTimeout time.Duration
	LogFile        string
	LogLevel       string
}

type clientConfigFile struct {
	Backend struct {
		URL              string `yaml:"url"`
		RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	} `yaml:"backend"`
	Log struct {
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// LoadClientConfig follows the same order as LoadConfig. A missing backend
// URL stops startup.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := ClientConfig{
		RequestTimeout: 30 * time.Second,
		LogLevel:       "info",
	}

	raw, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return ClientConfig{}, fmt.Errorf("%w: read config file: %v", domain.ErrConfig, err)
	}
	if err == nil {
		var f clientConfigFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return ClientConfig{}, fmt.Errorf("%w: parse config file: %v", domain.ErrConfig, err)
		}
		if f.Backend.URL != "" {
			cfg.BackendURL = f.Backend.URL
		}
		if f.Backend.RequestTimeoutMS > 0 {
			cfg.RequestTimeout = time.Duration(f.Backend.RequestTimeoutMS) * time.Millisecond
		}
		if f.Log.File != "" {
			cfg.LogFile = f.Log.File
		}
		if f.Log.Level != "" {
			cfg.LogLevel = f.Log.Level
		}
	}

	cfg.BackendURL = strings.TrimSpace(envOrDefault("BACKEND_URL", cfg.BackendURL))
	cfg.RequestTimeout = time.Duration(envInt("REQUEST_TIMEOUT_MS", int(cfg.RequestTimeout.Milliseconds()))) * time.Millisecond
	cfg.LogFile = envOrDefault("LOG_FILE", cfg.LogFile)
	cfg.LogLevel = strings.ToLower(envOrDefault("LOG_LEVEL", cfg.LogLevel))

	if cfg.BackendURL == "" {
		return ClientConfig{}, fmt.Errorf("%w: falta BACKEND_URL", domain.ErrConfig)
	}
	if cfg.RequestTimeout <= 0 {
		return ClientConfig{}, fmt.Errorf("%w: request timeout must be positive", domain.ErrConfig)
	}
	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt falls back on empty or invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
