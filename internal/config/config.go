package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultDataRoot        = "data"
	DefaultJWTExpiresIn    = "24h"
	DefaultStoreDriver     = "memory"
	DefaultStorageDriver   = "localfs"
	DefaultBoltPath        = "data/chatsync.db"
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "chatsync"
	DefaultPGSSLMode       = "disable"
	DefaultMongoURI        = "mongodb://127.0.0.1:27017"
	DefaultMongoDatabase   = "chatsync"
	DefaultMediaMaxBytes   = 64 << 20
	DefaultRecordingsDir   = "data/Audio"
	DefaultRetention       = "24h"
	DefaultPruneSchedule   = "@hourly"
	DefaultCallTokenTTL    = "1h"
	DefaultCloudinaryBase  = "https://api.cloudinary.com"
	DefaultPublicMediaPath = "/media"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Mongo    MongoConfig    `toml:"mongo"`
	Bolt     BoltConfig     `toml:"bolt"`
	Storage  StorageConfig  `toml:"storage"`
	Media    MediaConfig    `toml:"media"`
	Audio    AudioConfig    `toml:"audio"`
	Calling  CallingConfig  `toml:"calling"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// StoreConfig selects the document store driver.
type StoreConfig struct {
	Driver string `toml:"driver" validate:"required,oneof=memory bolt postgres mongo"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the connection string used by pgx and migrate.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type MongoConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

type BoltConfig struct {
	Path string `toml:"path"`
}

// StorageConfig selects where uploaded media goes.
type StorageConfig struct {
	Driver     string           `toml:"driver" validate:"required,oneof=cloudinary localfs gridfs"`
	Cloudinary CloudinaryConfig `toml:"cloudinary"`
	Local      LocalConfig      `toml:"local"`
}

type CloudinaryConfig struct {
	BaseURL       string `toml:"base_url"`
	CloudName     string `toml:"cloud_name"`
	APIKey        string `toml:"api_key"`
	APISecret     string `toml:"api_secret"`
	UploadPreset  string `toml:"upload_preset"`
	AllowUnsigned bool   `toml:"allow_unsigned"`
}

type LocalConfig struct {
	DataRoot      string `toml:"data_root"`
	PublicBaseURL string `toml:"public_base_url"`
}

type MediaConfig struct {
	MaxBytes int64 `toml:"max_bytes" validate:"gt=0"`
}

type AudioConfig struct {
	RecordingsDir string `toml:"recordings_dir" validate:"required"`
	Retention     string `toml:"retention"`
	PruneSchedule string `toml:"prune_schedule"`
}

// CallingConfig holds the LiveKit credentials used for call handoff.
type CallingConfig struct {
	URL       string `toml:"url"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	TokenTTL  string `toml:"token_ttl"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Store: StoreConfig{
			Driver: DefaultStoreDriver,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Mongo: MongoConfig{
			URI:      DefaultMongoURI,
			Database: DefaultMongoDatabase,
		},
		Bolt: BoltConfig{
			Path: DefaultBoltPath,
		},
		Storage: StorageConfig{
			Driver: DefaultStorageDriver,
			Cloudinary: CloudinaryConfig{
				BaseURL: DefaultCloudinaryBase,
			},
			Local: LocalConfig{
				DataRoot:      DefaultDataRoot,
				PublicBaseURL: DefaultPublicMediaPath,
			},
		},
		Media: MediaConfig{
			MaxBytes: DefaultMediaMaxBytes,
		},
		Audio: AudioConfig{
			RecordingsDir: DefaultRecordingsDir,
			Retention:     DefaultRetention,
			PruneSchedule: DefaultPruneSchedule,
		},
		Calling: CallingConfig{
			TokenTTL: DefaultCallTokenTTL,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks field constraints and the driver specific settings that
// struct tags cannot express.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, value := range map[string]string{
		"auth.jwt_expires_in": cfg.Auth.JWTExpiresIn,
		"audio.retention":     cfg.Audio.Retention,
		"calling.token_ttl":   cfg.Calling.TokenTTL,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid config: %s: %w", name, err)
		}
	}
	if cfg.Storage.Driver == "cloudinary" {
		c := cfg.Storage.Cloudinary
		if c.CloudName == "" {
			return fmt.Errorf("invalid config: storage.cloudinary.cloud_name is required")
		}
		signed := c.APIKey != "" && c.APISecret != ""
		if !signed && !(c.AllowUnsigned && c.UploadPreset != "") {
			return fmt.Errorf("invalid config: cloudinary needs api_key and api_secret, or upload_preset with allow_unsigned")
		}
	}
	if cfg.Storage.Driver == "gridfs" && cfg.Store.Driver != "mongo" && cfg.Mongo.URI == "" {
		return fmt.Errorf("invalid config: gridfs storage needs mongo.uri")
	}
	return nil
}

// Duration parses value, falling back when it is empty or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
