package config

import (
	"errors"
	"time"
)

// EnvPrefix prefixes every environment override, e.g. FLUXPOOL_SERVER_ADDR
const EnvPrefix = "FLUXPOOL"

// AppConfig is the configuration of the fluxpool binary.
//
// Durations are strings ("5s") in YAML and nanoseconds in JSON.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
	Events  EventsConfig  `yaml:"events" json:"events"`
}

// ServerConfig configures the static file server and its worker pool
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	Root string `yaml:"root" json:"root"`
	// Name is sent in the Server header.
	Name string `yaml:"name" json:"name"`

	Workers  int `yaml:"workers" json:"workers"`
	MaxQueue int `yaml:"max_queue" json:"max_queue"`
	// MaxConns caps connections held by the server; 0 means unlimited.
	MaxConns int `yaml:"max_conns" json:"max_conns"`

	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	StartupTimeout  time.Duration `yaml:"startup_timeout" json:"startup_timeout"`
	// RetryAfter is advertised on 503 replies when the queue is full.
	RetryAfter time.Duration `yaml:"retry_after" json:"retry_after"`

	TLS TLSConfig `yaml:"tls" json:"tls"`
}

// TLSConfig enables TLS when both files are set
type TLSConfig struct {
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// Enabled reports whether a certificate pair is configured
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	// Access logs one line per response.
	Access bool `yaml:"access" json:"access"`
}

// MetricsConfig configures the admin listener serving Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`

	Auth AdminAuthConfig `yaml:"auth" json:"auth"`
}

// AdminAuthConfig protects the admin listener (except /live) with either a
// bearer JWT or basic auth. Both empty leaves it open.
type AdminAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" json:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer" json:"jwt_issuer"`

	Username string `yaml:"username" json:"username"`
	// PasswordHash is a bcrypt hash; generate one with -hash-password.
	PasswordHash string `yaml:"password_hash" json:"password_hash"`
}

type TracingConfig struct {
	Exporter    string  `yaml:"exporter" json:"exporter"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate" json:"sample_rate"`
	Environment string  `yaml:"environment" json:"environment"`
}

// EventsConfig configures the access-event sinks. An empty NATS URL or
// database driver disables that sink.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url" json:"nats_url"`
	Subject string `yaml:"subject" json:"subject"`

	// DBDriver is sqlite3, postgres or pgx.
	DBDriver string `yaml:"db_driver" json:"db_driver"`
	DBDSN    string `yaml:"db_dsn" json:"db_dsn"`
	DBTable  string `yaml:"db_table" json:"db_table"`
}

// DefaultAppConfig returns the configuration used when no file is given
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Addr:            ":8080",
			Root:            ".",
			Name:            "fluxpool",
			Workers:         10,
			MaxQueue:        1000,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			StartupTimeout:  5 * time.Second,
			RetryAfter:      time.Second,
		},
		Log: LogConfig{Level: "info"},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Exporter:   "none",
			SampleRate: 1,
		},
		Events: EventsConfig{
			Subject: "fluxpool.access",
			DBTable: "access_log",
		},
	}
}

// Validate checks the configuration before the server is built
func (c *AppConfig) Validate() error {
	return Validate(c,
		RequiredFields("Server.Addr", "Server.Root"),
		RangeValidator("Server.Workers", 1, 4096),
		RangeValidator("Server.MaxQueue", 1, 1<<20),
		RangeValidator("Server.MaxConns", 0, 1<<20),
		OneOfValidator("Log.Level", "", "debug", "info", "warn", "warning", "error"),
		OneOfValidator("Tracing.Exporter", "", "none", "stdout", "zipkin"),
		RangeValidator("Tracing.SampleRate", 0, 1),
		OneOfValidator("Events.DBDriver", "", "sqlite3", "postgres", "pgx"),
		ValidatorFunc(func(interface{}) error {
			if c.Tracing.Exporter == "zipkin" && c.Tracing.Endpoint == "" {
				return errors.New("tracing.endpoint is required for the zipkin exporter")
			}
			if c.Metrics.Enabled && c.Metrics.Addr == "" {
				return errors.New("metrics.addr is required when metrics are enabled")
			}
			if c.Events.DBDriver != "" && c.Events.DBDSN == "" {
				return errors.New("events.db_dsn is required when events.db_driver is set")
			}
			auth := c.Metrics.Auth
			if auth.JWTSecret != "" && auth.Username != "" {
				return errors.New("metrics.auth: configure jwt_secret or username, not both")
			}
			if (auth.Username == "") != (auth.PasswordHash == "") {
				return errors.New("metrics.auth needs both username and password_hash")
			}
			if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
				return errors.New("server.tls needs both cert_file and key_file")
			}
			return nil
		}),
	)
}

// LoadApp builds the effective configuration: defaults, then the file at
// path (skipped when empty), then FLUXPOOL_* environment overrides. The
// result is validated.
func LoadApp(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	var err error
	if path != "" {
		err = LoadWithEnv(path, EnvPrefix, &cfg)
	} else {
		err = ApplyEnvOverrides(EnvPrefix, &cfg)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
