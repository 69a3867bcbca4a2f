package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration settings for the download service.
//
// Fields:
// - Env: The current environment (e.g., local, dev, prod).
// - Port: The port for the monitoring server.
// - Workers: The number of concurrent fetch operations (admission gate width).
// - Retries: The attempt budget for each postal code's initial request.
// - BatchSize: The number of resolved postal codes between flushes.
// - RequestTimeout: The per-request timeout for OneMap API calls.
// - RateLimit: Requests per second against the OneMap API, 0 disables limiting.
// - RangeStart, RangeEnd: The numeric postal code range [start, end).
// - OutputDir, OutputFile: Where the dataset CSV and error log are written.
// - SinkType: The storage backend, "csv" or "postgres".
// - Database: Configuration settings for the PostgreSQL database.
type Config struct {
	Env            string
	Port           int
	Workers        int
	Retries        int
	BatchSize      int
	RequestTimeout time.Duration
	RateLimit      int
	RangeStart     int
	RangeEnd       int
	OutputDir      string
	OutputFile     string
	SinkType       string
	Database       PostgresConfig
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string // Host is the database server address.
	Port     string // Port is the database server port.
	User     string // User is the database user.
	Password string // Password is the database user's password.
	Name     string // Name is the name of the database.
}

// OutputPath returns the full path of the dataset CSV. When no explicit file
// name is configured it defaults to onemap_DDMMYYYY.csv inside the output
// directory, matching the historical naming of the dataset snapshots.
func (c *Config) OutputPath() string {
	file := c.OutputFile
	if file == "" {
		file = "onemap_" + time.Now().Format("02012006") + ".csv"
	}
	return filepath.Join(c.OutputDir, file)
}

// ErrorLogPath returns the path of the append-only error log.
func (c *Config) ErrorLogPath() string {
	return filepath.Join(c.OutputDir, "error_log.txt")
}

// MustLoad loads the configuration from the environment and returns a Config.
// It panics when a value cannot be parsed.
func MustLoad() *Config {
	_ = godotenv.Load()

	healthPort, err := strconv.Atoi(setDefaultEnv("ONEMAP_HEALTH_PORT", "8080"))
	if err != nil {
		panic("failed to parse port for monitoring server from configuration")
	}

	workers, err := strconv.Atoi(setDefaultEnv("ONEMAP_WORKERS", "20"))
	if err != nil {
		panic("failed to parse workers from configuration, must be an integer type")
	}

	retries, err := strconv.Atoi(setDefaultEnv("ONEMAP_RETRIES", "3"))
	if err != nil {
		panic("failed to parse retries from configuration, must be an integer type")
	}

	batchSize, err := strconv.Atoi(setDefaultEnv("ONEMAP_BATCH_SIZE", "1000"))
	if err != nil {
		panic("failed to parse batch size from configuration, must be an integer type")
	}

	timeout, err := time.ParseDuration(setDefaultEnv("ONEMAP_REQUEST_TIMEOUT", "60s"))
	if err != nil {
		panic("failed to parse request timeout from configuration")
	}

	rateLimit, err := strconv.Atoi(setDefaultEnv("ONEMAP_RATE_LIMIT", "0"))
	if err != nil {
		panic("failed to parse rate limit from configuration, must be an integer type")
	}

	rangeStart, err := strconv.Atoi(setDefaultEnv("ONEMAP_RANGE_START", "10000"))
	if err != nil {
		panic("failed to parse range start from configuration, must be an integer type")
	}

	rangeEnd, err := strconv.Atoi(setDefaultEnv("ONEMAP_RANGE_END", "830000"))
	if err != nil {
		panic("failed to parse range end from configuration, must be an integer type")
	}

	return &Config{
		Env:            setDefaultEnv("ONEMAP_ENV", "production"),
		Port:           healthPort,
		Workers:        workers,
		Retries:        retries,
		BatchSize:      batchSize,
		RequestTimeout: timeout,
		RateLimit:      rateLimit,
		RangeStart:     rangeStart,
		RangeEnd:       rangeEnd,
		OutputDir:      setDefaultEnv("ONEMAP_OUTPUT_DIR", "data"),
		OutputFile:     os.Getenv("ONEMAP_OUTPUT_FILE"),
		SinkType:       setDefaultEnv("ONEMAP_SINK", "csv"),
		Database: PostgresConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     os.Getenv("DB_PORT"),
			User:     os.Getenv("DB_USERNAME"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
		},
	}
}

func setDefaultEnv(key, override string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = override
	}

	return value
}
