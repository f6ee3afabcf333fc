package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// TelegramConfig Telegram bot settings
type TelegramConfig struct {
	Token string `yaml:"token" validate:"required"`

	// Empty lists allow every chat / user.
	AllowedChats  []int64       `yaml:"allowed_chats"`
	AllowedUsers  []string      `yaml:"allowed_users"`
	UpdateTimeout int           `yaml:"update_timeout" validate:"gte=0"` // long-poll seconds
	HTTPTimeout   time.Duration `yaml:"http_timeout"`

	FailureLogDir string `yaml:"failure_log_dir"`
	// Daily failure logs older than this are removed.
	FailureLogRetention time.Duration `yaml:"failure_log_retention"`
}

// InstagramConfig Instagram account used for lookups
type InstagramConfig struct {
	Username    string `yaml:"username" validate:"required_without=SessionFile"`
	Password    string `yaml:"password" validate:"required_without=SessionFile"`
	SessionFile string `yaml:"session_file"` // exported goinsta session
	FeedLimit   int    `yaml:"feed_limit" validate:"gte=1,lte=10"`
}

// CacheConfig lookup cache; Redis when RedisAddr is set, in-memory otherwise
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"gte=0"`
	TTL           time.Duration `yaml:"ttl"`
}

// RelayConfig bridge and worker settings
type RelayConfig struct {
	Workers        int           `yaml:"workers" validate:"gte=1"`
	QueueSize      int           `yaml:"queue_size" validate:"gte=1"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DialogTimeout  time.Duration `yaml:"dialog_timeout"`
	CancelKeywords []string      `yaml:"cancel_keywords"`
}

// APIConfig HTTP API; disabled when ListenAddr is empty
type APIConfig struct {
	ListenAddr   string   `yaml:"listen_addr"`
	WhitelistIPs []string `yaml:"whitelist_ips"`
}

// Config full configuration
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Instagram InstagramConfig `yaml:"instagram"`
	Cache     CacheConfig     `yaml:"cache"`
	Relay     RelayConfig     `yaml:"relay"`
	API       APIConfig       `yaml:"api"`
	LogLevel  string          `yaml:"log_level"`
}

// LoadConfig reads, defaults, merges env vars and validates the YAML config.
func LoadConfig(filePath string) (*Config, error) {
	startTime := time.Now()

	data, err := os.ReadFile(filePath)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"time":   time.Now().Format("2006-01-02 15:04:05"),
			"method": "LoadConfig",
			"took":   time.Since(startTime),
		}).Errorf("Failed to read config: %v", err)
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logrus.WithFields(logrus.Fields{
			"time":   time.Now().Format("2006-01-02 15:04:05"),
			"method": "LoadConfig",
			"took":   time.Since(startTime),
		}).Errorf("Failed to unmarshal config: %v", err)
		return nil, err
	}

	cfg.setDefaults()
	cfg.mergeEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err == nil {
			logrus.SetLevel(level)
		} else {
			logrus.Warnf("Invalid log level %q, using info", cfg.LogLevel)
		}
	}

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "LoadConfig",
		"took":   time.Since(startTime),
	}).Info("Config loaded")
	return &cfg, nil
}

// Validate checks struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Telegram.UpdateTimeout == 0 {
		c.Telegram.UpdateTimeout = 60
	}
	if c.Telegram.HTTPTimeout == 0 {
		c.Telegram.HTTPTimeout = 90 * time.Second // must exceed the long-poll timeout
	}
	if c.Telegram.FailureLogDir == "" {
		c.Telegram.FailureLogDir = "."
	}
	if c.Telegram.FailureLogRetention == 0 {
		c.Telegram.FailureLogRetention = 30 * 24 * time.Hour
	}

	if c.Instagram.FeedLimit == 0 {
		c.Instagram.FeedLimit = 5
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = 10 * time.Minute
	}

	if c.Relay.Workers == 0 {
		c.Relay.Workers = 4
	}
	if c.Relay.QueueSize == 0 {
		c.Relay.QueueSize = 100
	}
	if c.Relay.RequestTimeout == 0 {
		c.Relay.RequestTimeout = 30 * time.Second
	}
	if c.Relay.DialogTimeout == 0 {
		c.Relay.DialogTimeout = 5 * time.Minute
	}
	if len(c.Relay.CancelKeywords) == 0 {
		c.Relay.CancelKeywords = []string{"cancel", "取消"}
	}
}

func (c *Config) mergeEnvVars() {
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		c.Telegram.Token = token
	}

	if user := os.Getenv("INSTAGRAM_USERNAME"); user != "" {
		c.Instagram.Username = user
	}
	if pass := os.Getenv("INSTAGRAM_PASSWORD"); pass != "" {
		c.Instagram.Password = pass
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Cache.RedisAddr = addr
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.Cache.RedisDB = n
		}
	}

	if addr := os.Getenv("API_LISTEN_ADDR"); addr != "" {
		c.API.ListenAddr = addr
	}
}
