package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgchart/pkg/logging"
)

const Production = "production"

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist, looking in the working directory first
// and then in the nearest parent holding a go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	root := moduleRoot()
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
			continue
		}
		if root == "" || filepath.IsAbs(file) {
			continue
		}
		if candidate := filepath.Join(root, file); fs.FileExists(candidate) {
			existingFiles = append(existingFiles, candidate)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

func moduleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"orgchart"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

type RateLimitOptions struct {
	Enabled bool   `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	Rate    string `env:"RATE_LIMIT_RATE" envDefault:"600-M"`
}

// OpsGuardOptions protects the metrics endpoint outside development.
type OpsGuardOptions struct {
	Enabled       bool   `env:"OPS_GUARD_ENABLED" envDefault:"false"`
	CIDRs         string `env:"OPS_GUARD_CIDRS" envDefault:""`
	Token         string `env:"OPS_GUARD_TOKEN" envDefault:""`
	BasicAuthUser string `env:"OPS_GUARD_BASIC_AUTH_USER" envDefault:""`
	BasicAuthPass string `env:"OPS_GUARD_BASIC_AUTH_PASS" envDefault:""`
}

type Configuration struct {
	Database   DatabaseOptions
	Prometheus PrometheusOptions
	RateLimit  RateLimitOptions
	OpsGuard   OpsGuardOptions

	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"LOG_FORMAT" envDefault:"text"`
	LogPath          string `env:"LOG_PATH" envDefault:""`

	// Storage backend for the editing session (memory|sqlite|postgres).
	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"orgchart.db"`

	// Optional YAML file replacing the built-in level catalog.
	LevelCatalogPath string `env:"LEVEL_CATALOG_PATH" envDefault:""`
	// Case-insensitive substring marking the root position when no level says so.
	RootKeyword string `env:"ROOT_KEYWORD" envDefault:"ceo"`

	ServerAddr      string   `env:"SERVER_ADDR" envDefault:"localhost:3200"`
	MaxUploadSize   int64    `env:"MAX_UPLOAD_SIZE" envDefault:"33554432"`
	RequestIDHeader string   `env:"REQUEST_ID_HEADER" envDefault:"X-Request-Id"`
	RealIPHeader    string   `env:"REAL_IP_HEADER" envDefault:"X-Real-Ip"`
	CorsOrigins     []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

// Load reads configuration from envFiles and the environment without touching the
// process-wide singleton.
func Load(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && len(envFiles) > 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogFormat, c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

func (c *Configuration) validateStore() error {
	backend := strings.ToLower(strings.TrimSpace(c.StoreBackend))
	if backend == "" {
		backend = StoreSQLite
	}
	switch backend {
	case StoreMemory, StoreSQLite, StorePostgres:
	default:
		return fmt.Errorf("invalid STORE_BACKEND=%q (expected memory|sqlite|postgres)", c.StoreBackend)
	}
	c.StoreBackend = backend

	if backend == StoreSQLite && strings.TrimSpace(c.SQLitePath) == "" {
		return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND=sqlite")
	}

	c.RootKeyword = strings.ToLower(strings.TrimSpace(c.RootKeyword))
	if c.RootKeyword == "" {
		c.RootKeyword = "ceo"
	}
	return nil
}

func (c *Configuration) validateLogging() error {
	format := strings.ToLower(strings.TrimSpace(c.LogFormat))
	if format == "" {
		format = logging.FormatText
	}
	switch format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("invalid LOG_FORMAT=%q (expected text|json)", c.LogFormat)
	}
	c.LogFormat = format
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
