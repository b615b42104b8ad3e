package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli"
	"github.com/vaughan0/go-ini"
)

type Config struct {
	Token    string
	Managers []int64

	DatabaseURL string

	ListenAddress string
	ListenPort    string

	CronSecond int
	Multiuser  bool

	UserAgent   string
	HTTPTimeout time.Duration

	// R_PROXY applies to feed fetches, T_PROXY to messenger API calls.
	RProxy             string
	TProxy             string
	ProxyBypassDomains []string
	ProxyBypassPrivate bool

	LogLevel string
}

const defaultUserAgent = "feedwire/1.0 (+https://github.com/feedwire/feedwire)"

func defaultConfig() *Config {
	return &Config{
		ListenAddress: "127.0.0.1",
		ListenPort:    "8080",
		CronSecond:    0,
		Multiuser:     true,
		UserAgent:     defaultUserAgent,
		HTTPTimeout:   90 * time.Second,
		LogLevel:      "info",
	}
}

func loadConfigFile(path string) (ini.File, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %v", err)
	}

	file, err := ini.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %v", err)
	}

	return file, nil
}

// LoadConfig layers settings: built-in defaults, then the ini file when one
// exists, then environment variables, then CLI flags.
func LoadConfig(c *cli.Context) (*Config, error) {
	config := defaultConfig()

	path := c.GlobalString("config")
	if _, err := os.Stat(path); err == nil {
		conf, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := config.applyFile(conf); err != nil {
			return nil, err
		}
	} else if c.GlobalIsSet("config") {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyFlags(c)

	if config.DatabaseURL == "" {
		return nil, errors.New("missing database URL: set DATABASE_URL or [database] url")
	}
	if config.CronSecond < 0 || config.CronSecond > 59 {
		return nil, fmt.Errorf("cron_second must be within [0, 59], got %d", config.CronSecond)
	}

	return config, nil
}

func (config *Config) applyFile(conf ini.File) error {
	if v, ok := conf.Get("bot", "token"); ok {
		config.Token = v
	}
	if v, ok := conf.Get("bot", "managers"); ok {
		managers, err := parseManagers(v)
		if err != nil {
			return err
		}
		config.Managers = managers
	}
	if v, ok := conf.Get("bot", "multiuser"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("bad multiuser value: %v", err)
		}
		config.Multiuser = b
	}

	if v, ok := conf.Get("database", "url"); ok {
		config.DatabaseURL = v
	}

	if v, ok := conf.Get("server", "address"); ok {
		config.ListenAddress = v
	}
	if v, ok := conf.Get("server", "port"); ok {
		config.ListenPort = v
	}

	if v, ok := conf.Get("monitor", "cron_second"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("bad cron_second value: %v", err)
		}
		config.CronSecond = n
	}
	if v, ok := conf.Get("monitor", "user_agent"); ok {
		config.UserAgent = v
	}
	if v, ok := conf.Get("monitor", "http_timeout"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("bad http_timeout value: %v", err)
		}
		config.HTTPTimeout = d
	}

	if v, ok := conf.Get("proxy", "r_proxy"); ok {
		config.RProxy = v
	}
	if v, ok := conf.Get("proxy", "t_proxy"); ok {
		config.TProxy = v
	}
	if v, ok := conf.Get("proxy", "bypass_domains"); ok {
		config.ProxyBypassDomains = splitCommaList(v)
	}
	if v, ok := conf.Get("proxy", "bypass_private"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("bad bypass_private value: %v", err)
		}
		config.ProxyBypassPrivate = b
	}

	if v, ok := conf.Get("log", "level"); ok {
		config.LogLevel = v
	}

	return nil
}

func (config *Config) applyEnv() error {
	if v := os.Getenv("TOKEN"); v != "" {
		config.Token = v
	}
	if v := os.Getenv("MANAGER"); v != "" {
		managers, err := parseManagers(v)
		if err != nil {
			return err
		}
		config.Managers = managers
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.DatabaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		config.ListenPort = v
	}
	if v := os.Getenv("CRON_SECOND"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("bad CRON_SECOND value: %v", err)
		}
		config.CronSecond = n
	}
	if v := os.Getenv("MULTIUSER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("bad MULTIUSER value: %v", err)
		}
		config.Multiuser = b
	}
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("bad HTTP_TIMEOUT value: %v", err)
		}
		config.HTTPTimeout = d
	}
	if v := os.Getenv("R_PROXY"); v != "" {
		config.RProxy = v
	}
	if v := os.Getenv("T_PROXY"); v != "" {
		config.TProxy = v
	}
	if v := os.Getenv("PROXY_BYPASS_DOMAINS"); v != "" {
		config.ProxyBypassDomains = splitCommaList(v)
	}
	if v := os.Getenv("PROXY_BYPASS_PRIVATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("bad PROXY_BYPASS_PRIVATE value: %v", err)
		}
		config.ProxyBypassPrivate = b
	}
	if v := os.Getenv("DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("bad DEBUG value: %v", err)
		}
		if b {
			config.LogLevel = "debug"
		}
	}
	return nil
}

func (config *Config) applyFlags(c *cli.Context) {
	if c.IsSet("address") {
		config.ListenAddress = c.String("address")
	}
	if c.IsSet("port") {
		config.ListenPort = c.String("port")
	}
	if c.IsSet("cron-second") {
		config.CronSecond = c.Int("cron-second")
	}
	if c.IsSet("log-level") {
		config.LogLevel = c.String("log-level")
	}
	if c.IsSet("database") {
		config.DatabaseURL = c.String("database")
	}
}

func parseManagers(raw string) ([]int64, error) {
	var managers []int64
	for _, field := range splitCommaList(raw) {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad manager id %q: %v", field, err)
		}
		managers = append(managers, id)
	}
	return managers, nil
}

func splitCommaList(raw string) []string {
	var out []string
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field != "" {
			out = append(out, field)
		}
	}
	return out
}
