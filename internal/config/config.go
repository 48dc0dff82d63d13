// Package config loads pipeline configuration from defaults, an optional
// YAML file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingConfig is returned when required settings are absent.
var ErrMissingConfig = errors.New("missing required configuration")

// Defaults.
const (
	DefaultArtist         = "Charlie Puth"
	DefaultTimezone       = "America/New_York"
	DefaultBucket         = "spotify-fetch-data"
	DefaultDBName         = "initial_db"
	DefaultDBPort         = 5432
	DefaultTable          = "artist_data"
	DefaultAddr           = "127.0.0.1:8080"
	DefaultConcurrency    = 1
	DefaultRequestTimeout = 30 * time.Second
	DefaultRunTimeout     = 15 * time.Minute
)

// Config holds all pipeline settings.
type Config struct {
	SpotifyID     string `yaml:"-"`
	SpotifySecret string `yaml:"-"`

	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig locates the destination table.
type DatabaseConfig struct {
	User     string `yaml:"-"`
	Password string `yaml:"-"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	Table    string `yaml:"table"`
}

// StorageConfig selects the snapshot store. A non-empty Dir uses the local
// filesystem instead of S3.
type StorageConfig struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Dir      string `yaml:"dir"`
}

// PipelineConfig tunes the fetch and load runs.
type PipelineConfig struct {
	DefaultArtist    string        `yaml:"default_artist"`
	Timezone         string        `yaml:"timezone"`
	LoadKey          string        `yaml:"load_key"`
	Concurrency      int           `yaml:"concurrency"`
	SkipFailedAlbums bool          `yaml:"skip_failed_albums"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	RunTimeout       time.Duration `yaml:"run_timeout"`
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Port:  DefaultDBPort,
			Name:  DefaultDBName,
			Table: DefaultTable,
		},
		Storage: StorageConfig{
			Bucket: DefaultBucket,
		},
		Pipeline: PipelineConfig{
			DefaultArtist:  DefaultArtist,
			Timezone:       DefaultTimezone,
			Concurrency:    DefaultConcurrency,
			RequestTimeout: DefaultRequestTimeout,
			RunTimeout:     DefaultRunTimeout,
		},
		Server: ServerConfig{
			Addr: DefaultAddr,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment. Required values are not checked
// here; see RequireSpotify and RequireDatabase.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings with any environment variables that are set.
func (c *Config) applyEnv() error {
	setString(&c.SpotifyID, "SPOTIFY_ID")
	setString(&c.SpotifySecret, "SPOTIFY_SECRET")

	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.Table, "DB_TABLE")

	setString(&c.Storage.Bucket, "S3_BUCKET")
	setString(&c.Storage.Endpoint, "S3_ENDPOINT")
	setString(&c.Storage.Region, "AWS_REGION")
	setString(&c.Storage.Dir, "STORAGE_DIR")

	setString(&c.Pipeline.DefaultArtist, "CATALOG_ETL_ARTIST")
	setString(&c.Pipeline.Timezone, "CATALOG_ETL_TIMEZONE")
	setString(&c.Pipeline.LoadKey, "CATALOG_ETL_LOAD_KEY")
	setString(&c.Server.Addr, "CATALOG_ETL_ADDR")

	if err := setInt(&c.Database.Port, "DB_PORT"); err != nil {
		return err
	}
	if err := setInt(&c.Pipeline.Concurrency, "CATALOG_ETL_CONCURRENCY"); err != nil {
		return err
	}
	if err := setDuration(&c.Pipeline.RequestTimeout, "CATALOG_ETL_REQUEST_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.Pipeline.RunTimeout, "CATALOG_ETL_RUN_TIMEOUT"); err != nil {
		return err
	}
	return nil
}

// RequireSpotify checks the settings the fetch pipeline needs.
func (c *Config) RequireSpotify() error {
	return requireAll(map[string]string{
		"SPOTIFY_ID":     c.SpotifyID,
		"SPOTIFY_SECRET": c.SpotifySecret,
	})
}

// RequireDatabase checks the settings the load pipeline needs.
func (c *Config) RequireDatabase() error {
	return requireAll(map[string]string{
		"DB_USER":     c.Database.User,
		"DB_PASSWORD": c.Database.Password,
		"DB_HOST":     c.Database.Host,
	})
}

// Location returns the time zone snapshot dates are computed in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Pipeline.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Pipeline.Timezone, err)
	}
	return loc, nil
}

// DatabaseURL builds a PostgreSQL connection URL. DB_HOST may carry its own
// port, which then wins over Database.Port.
func (c *Config) DatabaseURL() string {
	host := c.Database.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, strconv.Itoa(c.Database.Port))
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Database.User, c.Database.Password),
		Host:   host,
		Path:   "/" + c.Database.Name,
	}
	return u.String()
}

// requireAll returns ErrMissingConfig naming every empty value.
func requireAll(values map[string]string) error {
	var missing []string
	for name, v := range values {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%w: set %s", ErrMissingConfig, strings.Join(missing, ", "))
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) error {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", env, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, env string) error {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", env, err)
	}
	*dst = d
	return nil
}
