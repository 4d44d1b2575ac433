package config

import (
	"github.com/BurntSushi/toml"
	"github.com/jd3nn1s/seanboard"
	"github.com/jd3nn1s/seanboard/forwarder"
	"github.com/jd3nn1s/seanboard/rediscache"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"io"
	"os"
	"strings"
	"time"
)

// environment overrides
const (
	KeyAddress  = "SEANBOARD_ADDRESS"
	KeyLogLevel = "SEANBOARD_LOG_LEVEL"
)

const (
	DefaultLogLevel  = "info"
	DefaultHTTPAddr  = ":8080"
	DefaultInterface = "can0"
	DefaultRedisAddr = "localhost:6379"
)

// Duration reads TOML strings such as "500ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	Address  string `toml:"address"`
	Identity string `toml:"identity"`
	LogLevel string `toml:"log_level"`

	Poller PollerConfig `toml:"poller"`
	HTTP   HTTPConfig   `toml:"http"`
	UDP    UDPConfig    `toml:"udp"`
	CANBus CANBusConfig `toml:"canbus"`
	Redis  RedisConfig  `toml:"redis"`
}

type PollerConfig struct {
	ConnectTimeout Duration `toml:"connect_timeout"`
	TickInterval   Duration `toml:"tick_interval"`
	MaxBackoff     Duration `toml:"max_backoff"`
}

type HTTPConfig struct {
	Enabled   bool   `toml:"enabled"`
	Addr      string `toml:"addr"`
	Advertise bool   `toml:"advertise"`
}

type UDPConfig struct {
	Enabled bool   `toml:"enabled"`
	Server  string `toml:"server"`
	Port    int    `toml:"port"`
}

type CANBusConfig struct {
	Enabled   bool   `toml:"enabled"`
	Interface string `toml:"interface"`
}

type RedisConfig struct {
	Enabled  bool     `toml:"enabled"`
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	Prefix   string   `toml:"prefix"`
	TTL      Duration `toml:"ttl"`
}

// Load reads a TOML file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return finish(&Config{})
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open file %s", path)
	}
	defer file.Close()
	return LoadFromReader(file)
}

func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load configuration")
	}
	for _, key := range md.Undecoded() {
		log.WithField("key", key.String()).Warn("unknown configuration key")
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(KeyAddress); ok {
		c.Address = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(KeyLogLevel); ok {
		c.LogLevel = strings.TrimSpace(v)
	}
}

func (c *Config) applyDefaults() {
	if c.Identity == "" {
		c.Identity = seanboard.DefaultIdentity
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Poller.ConnectTimeout.Duration == 0 {
		c.Poller.ConnectTimeout.Duration = seanboard.DefaultConnectTimeout
	}
	if c.Poller.TickInterval.Duration == 0 {
		c.Poller.TickInterval.Duration = seanboard.DefaultTickInterval
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.CANBus.Interface == "" {
		c.CANBus.Interface = DefaultInterface
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = rediscache.DefaultPrefix
	}
	if c.Redis.TTL.Duration == 0 {
		c.Redis.TTL.Duration = rediscache.DefaultTTL
	}
}

func (c *Config) validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	if c.Poller.ConnectTimeout.Duration < 0 {
		return errors.New("poller.connect_timeout must be positive")
	}
	if c.Poller.TickInterval.Duration < 0 {
		return errors.New("poller.tick_interval must not be negative")
	}
	if c.Poller.MaxBackoff.Duration < 0 {
		return errors.New("poller.max_backoff must not be negative")
	}
	if c.UDP.Enabled {
		if c.UDP.Server == "" {
			return errors.New("udp.server is required")
		}
		if c.UDP.Port <= 0 || c.UDP.Port > 65535 {
			return errors.Errorf("udp.port %d out of range", c.UDP.Port)
		}
	}
	if c.Redis.TTL.Duration < 0 {
		return errors.New("redis.ttl must not be negative")
	}
	return nil
}

func (c *Config) Policy() seanboard.Policy {
	return seanboard.Policy{
		ConnectTimeout: c.Poller.ConnectTimeout.Duration,
		TickInterval:   c.Poller.TickInterval.Duration,
		MaxBackoff:     c.Poller.MaxBackoff.Duration,
	}
}

func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

func (c *Config) UDPForwarder() forwarder.UDPConfig {
	return forwarder.UDPConfig{
		Server: c.UDP.Server,
		Port:   c.UDP.Port,
	}
}

func (c *Config) RedisCache() rediscache.Config {
	return rediscache.Config{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Prefix:   c.Redis.Prefix,
		TTL:      c.Redis.TTL.Duration,
	}
}
