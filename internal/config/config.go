package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bromq-dev/fixhdr/pkg/packet"
)

type Config struct {
	// Log configures the log level (debug, info, warn, error) and output
	// format (text or json).
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	// Limits applied by the inspector on top of the decoder rules.
	Limits struct {
		// MaxRemainingLength rejects larger frames. 0 means the protocol maximum.
		MaxRemainingLength uint32 `yaml:"max_remaining_length"`
		// RejectEmpty lists packet type names (e.g. PUBLISH) whose remaining
		// length must not be 0.
		RejectEmpty []string `yaml:"reject_empty"`
	} `yaml:"limits"`

	// Redis optionally streams every record to a Redis server, in the form
	// "host:port". If Addr is empty, Redis is not used.
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
		MaxLen    int64  `yaml:"max_len"`
	} `yaml:"redis"`

	// Journal optionally persists every record to a bolt file, or a badger
	// directory when Backend is "badger". If Path is empty, no journal is kept.
	Journal struct {
		Path       string `yaml:"path"`
		Backend    string `yaml:"backend"`
		Term       uint64 `yaml:"term"`
		MaxEntries uint64 `yaml:"max_entries"`
	} `yaml:"journal"`

	// NATS optionally publishes every record to subjects under Subject
	// (default "fixhdr"). If URL is empty, NATS is not used.
	NATS struct {
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`

	// GRPC Address optionally serves the decoder over gRPC.
	// If empty, no server is started.
	GRPC struct {
		Address      string `yaml:"address"`
		MaxFrameSize int    `yaml:"max_frame_size"`
	} `yaml:"grpc"`

	// Stats periodically logs counters. Interval defaults to 10s.
	Stats struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"stats"`

	rejectEmpty map[packet.Type]bool
	level       slog.Level
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	c := &Config{}
	_ = c.validate()
	return c
}

// Load reads a YAML configuration file. An empty path returns Default().
func Load(fPath string) (*Config, error) {
	if fPath == "" {
		return Default(), nil
	}

	f, err := os.Open(fPath)
	if err != nil {
		return nil, errors.New("error opening config file: " + err.Error())
	}
	defer f.Close()

	c := &Config{}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.New("error reading config file: " + err.Error())
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate re-applies defaults and checks values, for callers that changed
// fields after Load.
func (c *Config) Validate() error {
	return c.validate()
}

// RejectEmpty returns the packet types listed in limits.reject_empty.
func (c *Config) RejectEmpty() map[packet.Type]bool {
	return c.rejectEmpty
}

// SlogLevel returns the parsed log level.
func (c *Config) SlogLevel() slog.Level {
	return c.level
}

func (c *Config) validate() error {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if err := c.level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "":
		c.Log.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (expected text or json)", c.Log.Format)
	}

	if c.Limits.MaxRemainingLength > packet.MaxRemainingLength {
		return fmt.Errorf("max_remaining_length %d exceeds %d", c.Limits.MaxRemainingLength, packet.MaxRemainingLength)
	}

	c.rejectEmpty = make(map[packet.Type]bool, len(c.Limits.RejectEmpty))
	for _, name := range c.Limits.RejectEmpty {
		t, ok := lookupType(name)
		if !ok {
			return fmt.Errorf("unknown packet type %q in reject_empty", name)
		}
		c.rejectEmpty[t] = true
	}

	if c.Redis.Addr != "" {
		if !strings.Contains(c.Redis.Addr, ":") {
			c.Redis.Addr += ":6379" // if just ip/host specified
		}
		if c.Redis.MaxLen < 0 {
			return errors.New("redis max_len must not be negative")
		}
	}

	switch c.Journal.Backend {
	case "":
		c.Journal.Backend = "bolt"
	case "bolt", "badger":
	default:
		return fmt.Errorf("invalid journal backend %q (expected bolt or badger)", c.Journal.Backend)
	}

	if c.NATS.URL != "" && c.NATS.Subject == "" {
		c.NATS.Subject = "fixhdr"
	}

	if c.GRPC.Address != "" {
		if !strings.Contains(c.GRPC.Address, ":") {
			c.GRPC.Address += ":7950"
		}
		if c.GRPC.MaxFrameSize < 0 {
			return errors.New("grpc max_frame_size must not be negative")
		}
	}

	if c.Stats.Interval < 0 {
		return errors.New("stats interval must not be negative")
	}
	if c.Stats.Interval == 0 {
		c.Stats.Interval = 10 * time.Second
	}

	return nil
}

// lookupType resolves a case-insensitive packet type name. RESERVED is
// never a valid answer.
func lookupType(name string) (packet.Type, bool) {
	for t := packet.TypeConnect; t <= packet.TypeAuth; t++ {
		if strings.EqualFold(t.String(), name) {
			return t, true
		}
	}
	return 0, false
}
