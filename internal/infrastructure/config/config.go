package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go-realtime-gateway/internal/infrastructure/logger"
)

// EnvPrefix namespaces environment overrides, e.g. REALTIME_BROKER_URL.
const EnvPrefix = "REALTIME"

type Config struct {
	Server ServerConfig  `mapstructure:"server"`
	Hub    HubConfig     `mapstructure:"hub"`
	Broker BrokerConfig  `mapstructure:"broker"`
	Auth   AuthConfig    `mapstructure:"auth"`
	Log    logger.Config `mapstructure:"log"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type HubConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	FanoutWorkers     int           `mapstructure:"fanout_workers"`
}

// BrokerConfig points the bridge at an MQTT broker. An empty URL disables
// the bridge.
type BrokerConfig struct {
	URL            string        `mapstructure:"url"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Topics         []string      `mapstructure:"topics"`
	QoS            byte          `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	SpiffeSocket   string        `mapstructure:"spiffe_socket"`
}

type AuthConfig struct {
	Tokens []TokenEntry `mapstructure:"tokens"`
}

// TokenEntry is a list item rather than a map key because viper lowercases
// map keys.
type TokenEntry struct {
	Token     string `mapstructure:"token"`
	Principal string `mapstructure:"principal"`
}

// TokenTable flattens Tokens into credential -> principal.
func (a AuthConfig) TokenTable() map[string]string {
	out := make(map[string]string, len(a.Tokens))
	for _, e := range a.Tokens {
		out[e.Token] = e.Principal
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("hub.heartbeat_interval", 30*time.Second)
	v.SetDefault("hub.write_timeout", 5*time.Second)
	v.SetDefault("hub.send_buffer", 64)
	v.SetDefault("hub.fanout_workers", 32)

	v.SetDefault("broker.url", "")
	v.SetDefault("broker.client_id", "")
	v.SetDefault("broker.username", "")
	v.SetDefault("broker.password", "")
	v.SetDefault("broker.topics", []string{"price/#", "odds/#", "trades/#", "scores/#"})
	v.SetDefault("broker.qos", 0)
	v.SetDefault("broker.connect_timeout", 10*time.Second)
	v.SetDefault("broker.spiffe_socket", "")

	lc := logger.NewDefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.output", lc.Output)
	v.SetDefault("log.file_path", lc.FilePath)
	v.SetDefault("log.max_size", lc.MaxSize)
	v.SetDefault("log.max_backups", lc.MaxBackups)
	v.SetDefault("log.max_age", lc.MaxAge)
	v.SetDefault("log.compress", lc.Compress)
	v.SetDefault("log.fields", lc.Fields)
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and REALTIME_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set")
	}
	if c.Hub.HeartbeatInterval <= 0 {
		return fmt.Errorf("hub.heartbeat_interval must be positive, got %s", c.Hub.HeartbeatInterval)
	}
	if c.Hub.WriteTimeout <= 0 {
		return fmt.Errorf("hub.write_timeout must be positive, got %s", c.Hub.WriteTimeout)
	}
	if c.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub.send_buffer must be positive, got %d", c.Hub.SendBuffer)
	}
	if c.Broker.QoS > 2 {
		return fmt.Errorf("broker.qos must be 0, 1 or 2, got %d", c.Broker.QoS)
	}
	return nil
}

// BrokerEnabled reports whether the broker bridge should run.
func (c *Config) BrokerEnabled() bool {
	return c.Broker.URL != ""
}
