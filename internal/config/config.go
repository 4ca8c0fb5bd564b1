package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	DBHost      string
	DBPort      string
	DBUsername  string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	Port        string
	Timezone    string

	MenuURL               string
	UserAgent             string
	ConnectTimeout        time.Duration
	ReadTimeout           time.Duration
	MaxConcurrentRequests int
	CookieFile            string
	CookieKeyBase64       string
	PollInterval          time.Duration
	DefaultName           string
	APIToken              string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("BBS2CH_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	connectTimeout, err := getDurationOrDefault("BBS2CH_CONNECT_TIMEOUT", 20*time.Second)
	if err != nil {
		return nil, err
	}
	readTimeout, err := getDurationOrDefault("BBS2CH_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	pollInterval, err := getDurationOrDefault("BBS2CH_POLL_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	maxConcurrent, err := strconv.Atoi(getEnvOrDefault("BBS2CH_MAX_CONCURRENT_REQUESTS", "4"))
	if err != nil {
		return nil, fmt.Errorf("BBS2CH_MAX_CONCURRENT_REQUESTS is not a number: %w", err)
	}

	config := &Config{
		Environment: env,
		DBHost:      getEnvOrDefault("BBS2CH_DB_HOST", "localhost"),
		DBPort:      getEnvOrDefault("BBS2CH_DB_PORT", "5432"),
		DBUsername:  getEnvOrDefault("BBS2CH_DB_USER", "bbs2ch"),
		DBPassword:  os.Getenv("BBS2CH_DB_PASSWORD"),
		DBName:      getEnvOrDefault("BBS2CH_DB_NAME", "bbs2ch"),
		DBSSLMode:   getEnvOrDefault("BBS2CH_DB_SSLMODE", "disable"),
		Port:        getEnvOrDefault("PORT", "8080"),
		Timezone:    getEnvOrDefault("TZ", "UTC"),

		MenuURL:               getEnvOrDefault("BBS2CH_MENU_URL", "http://menu.2ch.net/bbsmenu.html"),
		UserAgent:             getEnvOrDefault("BBS2CH_USER_AGENT", "Monazilla/1.00 (bbs2ch/1.0)"),
		ConnectTimeout:        connectTimeout,
		ReadTimeout:           readTimeout,
		MaxConcurrentRequests: maxConcurrent,
		CookieFile:            getEnvOrDefault("BBS2CH_COOKIE_FILE", "cookie.json"),
		CookieKeyBase64:       os.Getenv("BBS2CH_COOKIE_KEY_BASE64"),
		PollInterval:          pollInterval,
		DefaultName:           getEnvOrDefault("BBS2CH_DEFAULT_NAME", "名無しさん"),
		APIToken:              os.Getenv("BBS2CH_API_TOKEN"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("BBS2CH_DB_PASSWORD is required")
	}

	u, err := url.Parse(c.MenuURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BBS2CH_MENU_URL must be an http:// or https:// URL")
	}

	if c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 {
		return fmt.Errorf("BBS2CH_CONNECT_TIMEOUT and BBS2CH_READ_TIMEOUT must be positive")
	}

	if c.ReadTimeout > c.ConnectTimeout {
		return fmt.Errorf("BBS2CH_READ_TIMEOUT must not exceed BBS2CH_CONNECT_TIMEOUT")
	}

	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("BBS2CH_MAX_CONCURRENT_REQUESTS must be positive")
	}

	if c.CookieKeyBase64 != "" {
		key, err := base64.StdEncoding.DecodeString(c.CookieKeyBase64)
		if err != nil {
			return fmt.Errorf("BBS2CH_COOKIE_KEY_BASE64 is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("BBS2CH_COOKIE_KEY_BASE64 must decode to 32 bytes, got %d", len(key))
		}
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUsername, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s is not a duration: %w", key, err)
	}
	return d, nil
}
