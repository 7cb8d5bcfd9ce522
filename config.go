package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of all environment variables read by the service.
const EnvPrefix = "BGQL"

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit          string         `yaml:"git_commit" envconfig:"BGQL_GIT_COMMIT"`
	GitTag             string         `yaml:"git_tag" envconfig:"BGQL_GIT_TAG"`
	BuildTime          string         `yaml:"build_time" envconfig:"BGQL_BUILD_TIME"`
	IsProduction       bool           `yaml:"is_production" envconfig:"BGQL_IS_PRODUCTION"`
	LogLevel           zapcore.Level  `yaml:"log_level" envconfig:"BGQL_LOG_LEVEL"`
	LogFolder          string         `yaml:"log_folder" envconfig:"BGQL_LOG_FOLDER"`
	LogMaxSize         int            `yaml:"log_max_size" envconfig:"BGQL_LOG_MAX_SIZE"`
	ProfilerEnable     bool           `yaml:"profiler_enable" envconfig:"BGQL_PROFILER_ENABLE"`
	OpsEndpointsEnable bool           `yaml:"ops_endpoints_enable" envconfig:"BGQL_OPS_ENDPOINTS_ENABLE"`
	Server             ServerConfig   `yaml:"server"`
	GraphQL            GraphQLConfig  `yaml:"graphql"`
	Postgres           PostgresConfig `yaml:"postgres"`
	Redis              RedisConfig    `yaml:"redis"`
	BoltDB             BoltDBConfig   `yaml:"boltdb"`
	Events             EventsConfig   `yaml:"events"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"BGQL_SERVER_HOST"`
	Port            string        `yaml:"port" envconfig:"BGQL_SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"BGQL_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"BGQL_SERVER_WRITE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"BGQL_SERVER_REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"BGQL_SERVER_SHUTDOWN_TIMEOUT"`
}

type GraphQLConfig struct {
	Path           string `yaml:"path" envconfig:"BGQL_GRAPHQL_PATH"`
	GraphiQL       bool   `yaml:"graphiql" envconfig:"BGQL_GRAPHQL_GRAPHIQL"`
	MaxDepth       int    `yaml:"max_depth" envconfig:"BGQL_GRAPHQL_MAX_DEPTH"`
	MaxParallelism int    `yaml:"max_parallelism" envconfig:"BGQL_GRAPHQL_MAX_PARALLELISM"`
}

type PostgresConfig struct {
	Driver          string        `yaml:"driver" envconfig:"BGQL_POSTGRES_DRIVER"`
	Host            string        `yaml:"host" envconfig:"BGQL_POSTGRES_HOST"`
	Port            string        `yaml:"port" envconfig:"BGQL_POSTGRES_PORT"`
	Username        string        `yaml:"username" envconfig:"BGQL_POSTGRES_USERNAME"`
	Password        string        `yaml:"password" envconfig:"BGQL_POSTGRES_PASSWORD" json:"-"`
	Database        string        `yaml:"database" envconfig:"BGQL_POSTGRES_DATABASE"`
	SSLMode         string        `yaml:"sslmode" envconfig:"BGQL_POSTGRES_SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"BGQL_POSTGRES_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"BGQL_POSTGRES_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"BGQL_POSTGRES_CONN_MAX_LIFETIME"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" envconfig:"BGQL_POSTGRES_CONNECT_TIMEOUT"`
	AutoMigrate     bool          `yaml:"auto_migrate" envconfig:"BGQL_POSTGRES_AUTO_MIGRATE"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"BGQL_REDIS_HOST"`
	Port          string        `yaml:"port" envconfig:"BGQL_REDIS_PORT"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"BGQL_REDIS_DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"BGQL_REDIS_READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"BGQL_REDIS_WRITE_TIMEOUT"`
	PoolSize      int           `yaml:"pool_size" envconfig:"BGQL_REDIS_POOL_SIZE"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"BGQL_REDIS_POOL_TIMEOUT"`
	Username      string        `yaml:"username" envconfig:"BGQL_REDIS_USERNAME"`
	Password      string        `yaml:"password" envconfig:"BGQL_REDIS_PASSWORD" json:"-"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"BGQL_REDIS_DATABASE_INDEX"`
}

type BoltDBConfig struct {
	FilePath   string        `yaml:"filepath" envconfig:"BGQL_BOLTDB_FILE_PATH"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"BGQL_BOLTDB_TIMEOUT"`
	BucketName string        `yaml:"bucket_name" envconfig:"BGQL_BOLTDB_BUCKET_NAME"`
}

// EventsConfig drives the optional change feed. When disabled
// neither redis nor boltdb are contacted at all.
type EventsConfig struct {
	Enabled   bool   `yaml:"enabled" envconfig:"BGQL_EVENTS_ENABLED"`
	QueueName string `yaml:"queue_name" envconfig:"BGQL_EVENTS_QUEUE_NAME"`
}

// DSN builds the connection string understood by both lib/pq and pgx.
func (pc *PostgresConfig) DSN() string {
	q := url.Values{}
	q.Set("sslmode", pc.SSLMode)
	if pc.ConnectTimeout > 0 {
		q.Set("connect_timeout", fmt.Sprintf("%d", int(pc.ConnectTimeout.Seconds())))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(pc.Username, pc.Password),
		Host:     pc.Host + ":" + pc.Port,
		Path:     "/" + pc.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	if err = yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and overrides the matching config fields.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	if len(config.Postgres.Host) == 0 || len(config.Postgres.Port) == 0 {
		return errors.New("make sure to set valid postgres address and port in configuration file")
	}

	switch config.Postgres.Driver {
	case "":
		config.Postgres.Driver = DriverPQ
	case DriverPQ, DriverPGX:
	default:
		return fmt.Errorf("unsupported postgres driver %q", config.Postgres.Driver)
	}

	if config.Postgres.ConnectTimeout <= 0 {
		config.Postgres.ConnectTimeout = 5 * time.Second
	}

	if config.Postgres.SSLMode == "" {
		config.Postgres.SSLMode = "disable"
	}

	if config.Events.Enabled && (len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0) {
		return errors.New("make sure to set valid redis address and port when events are enabled")
	}

	if config.Events.QueueName == "" {
		config.Events.QueueName = DefaultEventsQueue
	}

	if config.GraphQL.Path == "" {
		config.GraphQL.Path = "/graphql"
	}

	if config.LogMaxSize <= 0 {
		config.LogMaxSize = 10
	}

	if config.LogFolder == "" {
		config.LogFolder = "./logs"
	}

	return nil
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data. The dotenv file is optional.
func LoadAndInitConfigs(gitCommit, gitTag, buildTime string) (*Config, error) {
	config, err := LoadConfigFile("./config.yml")
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %w", err)
	}

	err = godotenv.Load("./config.env")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return config, fmt.Errorf("failed to set environment configurations: %w", err)
	}

	err = LoadConfigEnvs(EnvPrefix, config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %w", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %w", err)
	}
	return config, nil
}
