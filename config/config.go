// Package config loads the service configuration from the environment,
// optionally seeded by a YAML file named in CONFIG_FILE.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

const (
	DriverTables = "aztables"
	DriverSQLite = "sqlite"
)

type Config struct {
	Debug       bool          `yaml:"debug"`
	Port        string        `yaml:"port"`
	StoreDriver string        `yaml:"storeDriver"`
	Tables      TablesConfig  `yaml:"tables"`
	SQLitePath  string        `yaml:"sqlitePath"`
	Redis       RedisConfig   `yaml:"redis"`
	Auth        AuthConfig    `yaml:"auth"`
	BodyLimit   int64         `yaml:"bodyLimit"`
	ReadTimeout time.Duration `yaml:"readTimeout"`
}

// TablesConfig names the Azure storage resources.
type TablesConfig struct {
	ConnectionString string `yaml:"connectionString"`
	Tasks            string `yaml:"tasks"`
	Members          string `yaml:"members"`
	Projects         string `yaml:"projects"`
	ActivityQueue    string `yaml:"activityQueue"`
}

type RedisConfig struct {
	ConnectionString string        `yaml:"connectionString"`
	UpdatesChannel   string        `yaml:"updatesChannel"`
	CacheTTL         time.Duration `yaml:"cacheTTL"`
	DeduperTTL       time.Duration `yaml:"deduperTTL"`
}

type AuthConfig struct {
	Domain      string        `yaml:"domain"`
	Audience    string        `yaml:"audience"`
	TestMode    bool          `yaml:"testMode"`
	TestSecret  string        `yaml:"testSecret"`
	JWKSRefresh time.Duration `yaml:"jwksRefresh"`
}

func defaults() Config {
	return Config{
		Port:        "8080",
		StoreDriver: DriverTables,
		Tables: TablesConfig{
			Tasks:         "Tasks",
			Members:       "Members",
			Projects:      "Projects",
			ActivityQueue: "task-activity",
		},
		SQLitePath: "workboard.db",
		Redis: RedisConfig{
			UpdatesChannel: "board-updates",
			CacheTTL:       5 * time.Minute,
			DeduperTTL:     24 * time.Hour,
		},
		Auth:        AuthConfig{JWKSRefresh: time.Hour},
		BodyLimit:   1 << 20,
		ReadTimeout: 30 * time.Second,
	}
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup. Values from the
// environment override the ones read from CONFIG_FILE.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	cfg := defaults()
	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	env := envReader{lookup: lookup}
	env.flag("DEBUG", &cfg.Debug)
	env.str("PORT", &cfg.Port)
	env.str("FUNCTIONS_CUSTOMHANDLER_PORT", &cfg.Port)
	env.str("STORE_DRIVER", &cfg.StoreDriver)
	env.str("STORAGE_CONNECTION_STRING", &cfg.Tables.ConnectionString)
	env.str("TASKS_TABLE", &cfg.Tables.Tasks)
	env.str("MEMBERS_TABLE", &cfg.Tables.Members)
	env.str("PROJECTS_TABLE", &cfg.Tables.Projects)
	env.str("ACTIVITY_QUEUE", &cfg.Tables.ActivityQueue)
	env.str("SQLITE_PATH", &cfg.SQLitePath)
	env.str("REDIS_CONNECTION_STRING", &cfg.Redis.ConnectionString)
	env.str("BOARD_UPDATES_CHANNEL", &cfg.Redis.UpdatesChannel)
	env.dur("CACHE_TTL", &cfg.Redis.CacheTTL)
	env.dur("DEDUPER_TTL", &cfg.Redis.DeduperTTL)
	env.str("AUTH0_DOMAIN", &cfg.Auth.Domain)
	env.str("AUTH0_AUDIENCE", &cfg.Auth.Audience)
	if v, ok := lookup("AUTH0_TEST_MODE"); ok {
		cfg.Auth.TestMode = v == "1" || strings.EqualFold(v, "true")
	}
	env.str("TEST_JWT_SECRET", &cfg.Auth.TestSecret)
	env.dur("JWKS_CACHE_TTL", &cfg.Auth.JWKSRefresh)
	env.num("REQUEST_BODY_LIMIT", &cfg.BodyLimit)
	env.dur("READ_TIMEOUT", &cfg.ReadTimeout)
	if env.err != nil {
		return Config{}, env.err
	}
	return cfg, cfg.Validate()
}

// Validate reports missing or contradictory settings.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverTables:
		if c.Tables.ConnectionString == "" || c.Tables.Tasks == "" || c.Tables.Members == "" || c.Tables.Projects == "" {
			errs = append(errs, errors.New("missing storage config"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("missing SQLITE_PATH"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	switch {
	case c.Auth.TestMode && c.Auth.TestSecret == "":
		errs = append(errs, errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1"))
	case !c.Auth.TestMode && (c.Auth.Domain == "" || c.Auth.Audience == ""):
		errs = append(errs, errors.New("missing Auth0 config"))
	}
	if c.Redis.CacheTTL <= 0 || c.Redis.DeduperTTL <= 0 {
		errs = append(errs, errors.New("redis TTLs must be greater than zero"))
	}
	if c.BodyLimit <= 0 {
		errs = append(errs, errors.New("REQUEST_BODY_LIMIT must be greater than zero"))
	}
	return errors.Join(errs...)
}

// ListenAddr is the address the HTTP server binds to.
func (c Config) ListenAddr() string {
	return ":" + c.Port
}

// RedisOptions parses either a redis:// URL or the Azure style
// "host:port,password=...,ssl=true" connection string.
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("invalid redis connection string")
	}
	return opts, nil
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (r *envReader) flag(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = b
}

func (r *envReader) num(key string, dst *int64) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = n
}

func (r *envReader) dur(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = d
}

func (r *envReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
