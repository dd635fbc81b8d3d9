// Package config loads the TOML configuration of dapserver and getdap.
//
// A server file looks like:
//
//	listen  = "0.0.0.0:9090"
//	timeout = "5s"
//	etcd    = ["127.0.0.1:2379"]
//
//	[[datasets]]
//	name = "test.1"
//	kind = "all"
//	[datasets.options]
//	series = true
//	sleep  = "10ms"
//
// Unknown keys are rejected.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"mini-dap/codec"
	"mini-dap/loadbalance"
	"mini-dap/protocol"
	"mini-dap/sim"
)

var ErrInvalid = errors.New("invalid configuration")

// Dataset publishes one synthetic dataset.
type Dataset struct {
	Name string `toml:"name"`
	Kind string `toml:"kind"`
	// Options is decoded into sim.Options.
	Options map[string]any `toml:"options"`
}

// SimOptions decodes the dataset's options table.
func (d Dataset) SimOptions() (sim.Options, error) {
	opts, err := sim.DecodeOptions(d.Options)
	return opts, errors.Wrapf(err, "dataset %q", d.Name)
}

type ServerConfig struct {
	Listen    string `toml:"listen"`
	Advertise string `toml:"advertise"` // address registered for clients; defaults to the listener's

	Timeout       time.Duration `toml:"timeout"`        // whole-request deadline, 0 disables
	RequestBudget time.Duration `toml:"request_budget"` // time allowed for reading values, 0 is unbounded
	RateLimit     float64       `toml:"rate_limit"`     // requests per second, 0 disables
	RateBurst     int           `toml:"rate_burst"`
	MaxBody       uint32        `toml:"max_body"`

	Etcd     []string `toml:"etcd"`
	LeaseTTL int64    `toml:"lease_ttl"`

	MetricsListen string `toml:"metrics_listen"`
	LogLevel      string `toml:"log_level"`

	Datasets []Dataset `toml:"datasets"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Listen:   "127.0.0.1:9090",
		Timeout:  30 * time.Second,
		MaxBody:  protocol.DefaultMaxBodyLen,
		LeaseTTL: 10,
		LogLevel: "info",
	}
}

// LoadServerConfig reads path over DefaultServerConfig and validates the result.
func LoadServerConfig(path string) (ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServerConfig{}, errors.Wrap(err, "load server config")
	}
	return ParseServerConfig(string(data))
}

func ParseServerConfig(data string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := decode(data, &cfg); err != nil {
		return ServerConfig{}, errors.Wrap(err, "parse server config")
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func (c *ServerConfig) Validate() error {
	c.Listen = strings.TrimSpace(c.Listen)
	if c.Listen == "" {
		return errors.Wrap(ErrInvalid, "listen address is required")
	}
	if c.Timeout < 0 || c.RequestBudget < 0 {
		return errors.Wrap(ErrInvalid, "timeouts must not be negative")
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.Wrap(ErrInvalid, "rate limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		c.RateBurst = 1
	}
	if c.MaxBody == 0 {
		c.MaxBody = protocol.DefaultMaxBodyLen
	}
	if c.LeaseTTL <= 0 {
		return errors.Wrapf(ErrInvalid, "lease_ttl %d", c.LeaseTTL)
	}
	c.Etcd = normalize(c.Etcd)

	if len(c.Datasets) == 0 {
		return errors.Wrap(ErrInvalid, "no datasets configured")
	}
	seen := make(map[string]bool, len(c.Datasets))
	for i := range c.Datasets {
		d := &c.Datasets[i]
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return errors.Wrapf(ErrInvalid, "dataset %d has no name", i)
		}
		if seen[d.Name] {
			return errors.Wrapf(ErrInvalid, "dataset %q listed twice", d.Name)
		}
		seen[d.Name] = true
		if d.Kind == "" {
			d.Kind = "all"
		}
		if _, err := d.SimOptions(); err != nil {
			return errors.Wrap(ErrInvalid, err.Error())
		}
	}
	return nil
}

type ClientConfig struct {
	Server string   `toml:"server"` // direct address, used when Etcd is empty
	Etcd   []string `toml:"etcd"`

	Codec      string        `toml:"codec"`
	PoolSize   int           `toml:"pool_size"`
	Balancer   string        `toml:"balancer"`
	Timeout    time.Duration `toml:"timeout"`
	Retries    int           `toml:"retries"`
	RetryDelay time.Duration `toml:"retry_delay"`
	Heartbeat  time.Duration `toml:"heartbeat"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Server:     "127.0.0.1:9090",
		Codec:      "binary",
		PoolSize:   4,
		Balancer:   "consistent_hash",
		Timeout:    30 * time.Second,
		Retries:    2,
		RetryDelay: 100 * time.Millisecond,
		Heartbeat:  30 * time.Second,
	}
}

// LoadClientConfig reads path over DefaultClientConfig. An empty path yields
// the defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	if path == "" {
		cfg := DefaultClientConfig()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ClientConfig{}, errors.Wrap(err, "load client config")
	}
	return ParseClientConfig(string(data))
}

func ParseClientConfig(data string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := decode(data, &cfg); err != nil {
		return ClientConfig{}, errors.Wrap(err, "parse client config")
	}
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func (c *ClientConfig) Validate() error {
	c.Server = strings.TrimSpace(c.Server)
	c.Etcd = normalize(c.Etcd)
	if c.Server == "" && len(c.Etcd) == 0 {
		return errors.Wrap(ErrInvalid, "either server or etcd is required")
	}
	if _, err := codec.Parse(c.Codec); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if _, err := loadbalance.New(c.Balancer); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if c.PoolSize <= 0 {
		return errors.Wrapf(ErrInvalid, "pool_size %d", c.PoolSize)
	}
	if c.Timeout < 0 || c.Retries < 0 || c.RetryDelay < 0 || c.Heartbeat < 0 {
		return errors.Wrap(ErrInvalid, "timeouts and retries must not be negative")
	}
	return nil
}

func decode(data string, v any) error {
	meta, err := toml.Decode(data, v)
	if err != nil {
		return err
	}
	// options tables are free-form and checked by sim.DecodeOptions
	var unknown []string
	for _, k := range meta.Undecoded() {
		if len(k) >= 2 && k[0] == "datasets" && k[1] == "options" {
			continue
		}
		unknown = append(unknown, k.String())
	}
	if len(unknown) > 0 {
		return errors.Wrapf(ErrInvalid, "unknown keys: %s", strings.Join(unknown, ", "))
	}
	return nil
}

func normalize(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
