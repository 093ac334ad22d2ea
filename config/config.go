package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	loadOnce  sync.Once
	loadedCfg *Config
	loadErr   error
)

type Config struct {
	Analyzer    AnalyzerConfig    `yaml:"analyzer"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Storage     StorageConfig     `yaml:"storage"`
	Textract    TextractConfig    `yaml:"textract"`
	Redis       RedisConfig       `yaml:"redis"`
	Worker      WorkerConfig      `yaml:"worker"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// WorkerConfig configures the asynq server. CleanupSchedule is a cron spec
// for the storage cleanup task; empty disables it.
type WorkerConfig struct {
	Concurrency     int            `yaml:"concurrency"`
	MaxRetry        int            `yaml:"maxRetry"`
	ProcessTimeout  time.Duration  `yaml:"processTimeout"`
	Queues          map[string]int `yaml:"queues"`
	CleanupSchedule string         `yaml:"cleanupSchedule"`
	RetentionPeriod time.Duration  `yaml:"retentionPeriod"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MaxUploadSize   int64         `yaml:"maxUploadSize"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type LogConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"outputPaths"`
}

// Default returns the configuration used before any file or environment
// override is applied.
func Default() *Config {
	return &Config{
		Analyzer: AnalyzerConfig{
			Backend:        BackendDocIntel,
			ProjectName:    "function-to-content",
			APIVersion:     "2024-07-31-preview",
			PollInterval:   2 * time.Second,
			MaxAttempts:    60,
			RequestTimeout: 2 * time.Minute,
		},
		Storage: StorageConfig{
			Type:           StorageTypeS3,
			IncomingPrefix: "incoming/",
			ResultPrefix:   "results/",
		},
		Textract: TextractConfig{
			MinConfidence: 80.0,
			FeatureTypes:  []string{"TABLES", "FORMS"},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Worker: WorkerConfig{
			Concurrency:    10,
			MaxRetry:       3,
			ProcessTimeout: 30 * time.Minute,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			CleanupSchedule: "@every 1h",
			RetentionPeriod: 24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			MaxUploadSize:   50 * 1024 * 1024,
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout", "logs/app.log"},
		},
	}
}

// Get loads the configuration once per process.
func Get() (*Config, error) {
	loadOnce.Do(func() {
		loadedCfg, loadErr = Load()
	})
	return loadedCfg, loadErr
}

// Load reads .env, then the YAML file named by CONFIG_FILE, then applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges a YAML file into cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() error {
	c.Credentials.applyEnv()

	envString("REDIS_ADDR", &c.Redis.Addr)
	envString("REDIS_PASSWORD", &c.Redis.Password)
	envString("SERVER_ADDR", &c.Server.Addr)
	envString("WORKER_CLEANUP_SCHEDULE", &c.Worker.CleanupSchedule)
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_ENCODING", &c.Log.Encoding)
	envList("LOG_OUTPUT_PATHS", &c.Log.OutputPaths)

	return firstErr(
		c.Analyzer.applyEnv(),
		c.Storage.applyEnv(),
		c.Textract.applyEnv(),
		envInt("REDIS_DB", &c.Redis.DB),
		envInt("WORKER_CONCURRENCY", &c.Worker.Concurrency),
		envInt("WORKER_MAX_RETRY", &c.Worker.MaxRetry),
		envDuration("WORKER_PROCESS_TIMEOUT", &c.Worker.ProcessTimeout),
		envDuration("WORKER_RETENTION_PERIOD", &c.Worker.RetentionPeriod),
		envInt64("SERVER_MAX_UPLOAD_SIZE", &c.Server.MaxUploadSize),
	)
}

func (c *Config) Validate() error {
	if err := c.Analyzer.validate(); err != nil {
		return err
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if c.Analyzer.Backend == BackendTextract && c.Storage.Type != StorageTypeS3 {
		return fmt.Errorf("textract backend requires s3 storage")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be positive")
	}
	return nil
}

// loadDotEnv loads .env from the working directory, falling back to the
// project root.
func loadDotEnv() {
	if path := os.Getenv("ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			log.Printf("Warning: env file not found at %s", path)
		}
		return
	}
	if err := godotenv.Load(); err == nil {
		return
	}

	_, filename, _, _ := runtime.Caller(0)
	rootDir := filepath.Dir(filepath.Dir(filename))
	envPath := filepath.Join(rootDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: .env file not found at %s, falling back to environment variables", envPath)
	}
}
