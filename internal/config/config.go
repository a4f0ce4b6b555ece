package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	REST      RESTConfig      `yaml:"rest"`
	WS        WSConfig        `yaml:"ws"`
	Exec      ExecConfig      `yaml:"exec"`
	State     StateConfig     `yaml:"state"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Users     []UserConfig    `yaml:"users"`

	// Credentials are read from the environment only.
	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RESTConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RecvWindow int64         `yaml:"recv_window"`
}

type WSConfig struct {
	PublicURL      string        `yaml:"public_url"`
	PrivateURL     string        `yaml:"private_url"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	Reconnect      *bool         `yaml:"reconnect"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	ReconnectMax   time.Duration `yaml:"reconnect_max"`
	PublicTopics   []string      `yaml:"public_topics"`
	PrivateTopics  []string      `yaml:"private_topics"`
	PrivateEnabled *bool         `yaml:"private_enabled"`
}

func (w WSConfig) ReconnectValue() bool {
	return w.Reconnect == nil || *w.Reconnect
}

func (w WSConfig) PrivateEnabledValue() bool {
	return w.PrivateEnabled == nil || *w.PrivateEnabled
}

type ExecConfig struct {
	Category     string        `yaml:"category"`
	OrderTimeout time.Duration `yaml:"order_timeout"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type UserConfig struct {
	Name       string           `yaml:"name"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

type StrategyConfig struct {
	Name       string `yaml:"name"`
	Instrument string `yaml:"instrument"`
	Active     bool   `yaml:"active"`
	Mode       string `yaml:"mode"`
	Position   string `yaml:"position"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://api.bybit.com"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.REST.RecvWindow == 0 {
		cfg.REST.RecvWindow = 5000
	}
	if cfg.WS.PublicURL == "" {
		cfg.WS.PublicURL = "wss://stream.bybit.com/v5/public/linear"
	}
	if cfg.WS.PrivateURL == "" {
		cfg.WS.PrivateURL = "wss://stream.bybit.com/v5/private?max_alive_time=1000m"
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 20 * time.Second
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = time.Second
	}
	if cfg.WS.ReconnectMax == 0 {
		cfg.WS.ReconnectMax = time.Minute
	}
	if len(cfg.WS.PublicTopics) == 0 {
		cfg.WS.PublicTopics = tickerTopics(cfg.Users)
	}
	if len(cfg.WS.PrivateTopics) == 0 {
		cfg.WS.PrivateTopics = []string{"wallet"}
	}
	if cfg.Exec.Category == "" {
		cfg.Exec.Category = "linear"
	}
	if cfg.Exec.OrderTimeout == 0 {
		cfg.Exec.OrderTimeout = 10 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/bybit-exec-bot.db"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/signal"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	for i := range cfg.Users {
		for j := range cfg.Users[i].Strategies {
			st := &cfg.Users[i].Strategies[j]
			if st.Mode == "" {
				st.Mode = "simulate"
			}
			if st.Position == "" {
				st.Position = "0"
			}
		}
	}
}

// tickerTopics derives one ticker subscription per configured instrument.
func tickerTopics(users []UserConfig) []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, user := range users {
		for _, st := range user.Strategies {
			instrument := strings.ToUpper(strings.TrimSpace(st.Instrument))
			if instrument == "" {
				continue
			}
			if _, ok := seen[instrument]; ok {
				continue
			}
			seen[instrument] = struct{}{}
			topics = append(topics, "tickers."+instrument)
		}
	}
	return topics
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("BYBIT_API_KEY")); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("BYBIT_API_SECRET")); v != "" {
		cfg.APISecret = v
	}
	if v := strings.TrimSpace(os.Getenv("BYBIT_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("BYBIT_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("BYBIT_TIMESCALE_DSN")); v != "" {
		cfg.Timescale.DSN = v
	}
}

func validate(cfg *Config) error {
	if cfg.REST.Timeout < 0 {
		return errors.New("rest.timeout must be >= 0")
	}
	if cfg.REST.RecvWindow < 0 {
		return errors.New("rest.recv_window must be >= 0")
	}
	if cfg.WS.PingInterval < 0 {
		return errors.New("ws.ping_interval must be >= 0")
	}
	if cfg.WS.ReconnectDelay < 0 || cfg.WS.ReconnectMax < 0 {
		return errors.New("ws reconnect delays must be >= 0")
	}
	if cfg.WS.ReconnectMax < cfg.WS.ReconnectDelay {
		return errors.New("ws.reconnect_max must be >= ws.reconnect_delay")
	}
	if cfg.Exec.OrderTimeout < 0 {
		return errors.New("exec.order_timeout must be >= 0")
	}
	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Webhook.Path != "" && !strings.HasPrefix(cfg.Webhook.Path, "/") {
		return errors.New("webhook.path must start with /")
	}
	if cfg.Webhook.Enabled && cfg.Webhook.Path == cfg.Metrics.Path {
		return errors.New("webhook.path and metrics.path must differ")
	}
	if cfg.Telegram.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	if cfg.Timescale.QueueSize < 0 {
		return errors.New("timescale.queue_size must be >= 0")
	}
	users := make(map[string]struct{}, len(cfg.Users))
	for _, user := range cfg.Users {
		if strings.TrimSpace(user.Name) == "" {
			return errors.New("users[].name is required")
		}
		if _, dup := users[user.Name]; dup {
			return fmt.Errorf("duplicate user %q", user.Name)
		}
		users[user.Name] = struct{}{}
		names := make(map[string]struct{}, len(user.Strategies))
		for _, st := range user.Strategies {
			if strings.TrimSpace(st.Name) == "" {
				return fmt.Errorf("user %q: strategy name is required", user.Name)
			}
			if _, dup := names[st.Name]; dup {
				return fmt.Errorf("user %q: duplicate strategy %q", user.Name, st.Name)
			}
			names[st.Name] = struct{}{}
			if strings.TrimSpace(st.Instrument) == "" {
				return fmt.Errorf("user %q strategy %q: instrument is required", user.Name, st.Name)
			}
		}
	}
	return nil
}
