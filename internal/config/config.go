package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	CoTrip     CoTripConfig     `yaml:"cotrip" mapstructure:"cotrip"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Normalize  NormalizeConfig  `yaml:"normalize" mapstructure:"normalize"`
	Sink       SinkConfig       `yaml:"sink" mapstructure:"sink"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// CoTripConfig holds the incidents API credentials and the feature allowlist.
type CoTripConfig struct {
	Token           string `yaml:"token" mapstructure:"token"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	AllowPoint      bool   `yaml:"allow_point" mapstructure:"allow_point"`
	AllowLineString bool   `yaml:"allow_linestring" mapstructure:"allow_linestring"`
	AllowPolygon    bool   `yaml:"allow_polygon" mapstructure:"allow_polygon"`
	Verbose         bool   `yaml:"verbose" mapstructure:"verbose"`
	Profile         string `yaml:"profile" mapstructure:"profile"`
	Timezone        string `yaml:"timezone" mapstructure:"timezone"`
}

// FetchConfig controls paging, pacing and retry against the API.
type FetchConfig struct {
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	MaxPages         int     `yaml:"max_pages" mapstructure:"max_pages"`
	RequestsPerSec   float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// NormalizeConfig configures the normalizer worker pool.
type NormalizeConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// SinkConfig selects and configures submission targets.
type SinkConfig struct {
	Targets   []string        `yaml:"targets" mapstructure:"targets"`
	File      FileSinkConfig  `yaml:"file" mapstructure:"file"`
	Webhook   WebhookConfig   `yaml:"webhook" mapstructure:"webhook"`
	SQLite    SQLiteConfig    `yaml:"sqlite" mapstructure:"sqlite"`
	Postgres  PostgresConfig  `yaml:"postgres" mapstructure:"postgres"`
	Shapefile ShapefileConfig `yaml:"shapefile" mapstructure:"shapefile"`
	XLSX      XLSXConfig      `yaml:"xlsx" mapstructure:"xlsx"`
	FTP       FTPConfig       `yaml:"ftp" mapstructure:"ftp"`
}

// FileSinkConfig writes GeoJSON to a path; "-" is stdout.
type FileSinkConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// WebhookConfig posts GeoJSON to an HTTP endpoint.
type WebhookConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SQLiteConfig holds the local archive path.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig holds the PostGIS connection and target table.
type PostgresConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// ShapefileConfig holds the shapefile output directory.
type ShapefileConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// XLSXConfig holds the spreadsheet report path.
type XLSXConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// FTPConfig holds the upload target. URL is ftp://host[:port]/path/file.geojson.
type FTPConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures run alerts. An empty WebhookURL disables them.
type MonitoringConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	MinFeatures int    `yaml:"min_features" mapstructure:"min_features"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INCIDENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("cotrip.token", "INCIDENT_COTRIP_TOKEN", "COTRIP_TOKEN"); err != nil {
		return nil, eris.Wrap(err, "config: bind token env")
	}

	// Defaults
	v.SetDefault("cotrip.base_url", "https://data.cotrip.org/")
	v.SetDefault("cotrip.allow_point", true)
	v.SetDefault("cotrip.allow_linestring", true)
	v.SetDefault("cotrip.allow_polygon", true)
	v.SetDefault("cotrip.verbose", false)
	v.SetDefault("cotrip.profile", "full")
	v.SetDefault("cotrip.timezone", "America/Denver")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.initial_backoff_ms", 500)
	v.SetDefault("fetch.max_backoff_ms", 30000)
	v.SetDefault("fetch.max_pages", 0)
	v.SetDefault("fetch.requests_per_sec", 5)
	v.SetDefault("normalize.workers", 4)
	v.SetDefault("sink.targets", []string{"file"})
	v.SetDefault("sink.file.path", "-")
	v.SetDefault("sink.webhook.timeout_secs", 30)
	v.SetDefault("sink.sqlite.path", "incidents.db")
	v.SetDefault("sink.postgres.table", "incident_features")
	v.SetDefault("sink.shapefile.dir", "shapefiles")
	v.SetDefault("sink.xlsx.path", "incidents.xlsx")
	v.SetDefault("sink.ftp.user", "anonymous")
	v.SetDefault("sink.ftp.password", "anonymous@")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.min_features", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Sink.Targets = splitTargets(cfg.Sink.Targets)

	return &cfg, nil
}

// splitTargets accepts both a YAML list and a comma separated env value.
func splitTargets(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, strings.ToLower(part))
			}
		}
	}
	return out
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
