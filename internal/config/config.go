// Package config loads bgpmon-filter's configuration: a flat key=value
// file (spec §6.1), overlaid by environment variables, overlaid by CLI
// flags — the same knadh/koanf layering the teacher's config package uses,
// adapted to this program's flat file grammar instead of YAML.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config mirrors spec §6.1's configuration table one field per key; the
// flat shape matches the flat file grammar, unlike the teacher's
// section-nested Config.
type Config struct {
	ConfigFile    string `koanf:"config_file"`
	Server        string `koanf:"server"`
	Port          int    `koanf:"port"`
	ListeningPort int    `koanf:"listening_port"`
	PrefixFile    string `koanf:"prefix_file"`
	OutputFile    string `koanf:"output_file"`
	LogFile       string `koanf:"log_file"`
	LogLevel      int    `koanf:"log_level"`
	Debug         bool   `koanf:"debug"`
	Daemonize     bool   `koanf:"daemonize"`
	Stdout        bool   `koanf:"stdout"`

	// SubscriberQueueLength resolves the Open Question in spec.md §9:
	// the bound on every subscriber's fanout queue.
	SubscriberQueueLength int `koanf:"subscriber_queue_length"`

	KafkaBrokers       string `koanf:"kafka_brokers"`
	KafkaTopic         string `koanf:"kafka_topic"`
	KafkaTLS           bool   `koanf:"kafka_tls"`
	KafkaSASLMechanism string `koanf:"kafka_sasl_mechanism"`
	KafkaSASLUsername  string `koanf:"kafka_sasl_username"`
	KafkaSASLPassword  string `koanf:"kafka_sasl_password"`

	AuditDSN             string `koanf:"audit_dsn"`
	AuditBatchSize       int    `koanf:"audit_batch_size"`
	AuditFlushIntervalMs int    `koanf:"audit_flush_interval_ms"`
	AuditStoreRaw        bool   `koanf:"audit_store_raw"`
	AuditCompressRaw     bool   `koanf:"audit_compress_raw"`
	AuditRetentionDays   int    `koanf:"audit_retention_days"`

	HTTPListen string `koanf:"http_listen"`
}

func defaults() *Config {
	return &Config{
		ConfigFile:            "/usr/local/etc/bgpmon-filter.conf",
		Server:                "127.0.0.1",
		Port:                  50001,
		ListeningPort:         60000,
		PrefixFile:            "/usr/local/etc/bgpmon-filter-prefixes.conf",
		LogLevel:              7,
		SubscriberQueueLength: 1024,
		AuditBatchSize:        500,
		AuditFlushIntervalMs:  500,
		AuditCompressRaw:      true,
		AuditRetentionDays:    30,
		HTTPListen:            ":8090",
	}
}

// Flags registers every configuration key as an equivalently named CLI
// flag, per spec §6.1 ("all keys are overridable by equivalently named CLI
// flags"). Call before fs.Parse, then pass fs to Load.
func Flags(fs *pflag.FlagSet) {
	d := defaults()
	fs.String("config_file", d.ConfigFile, "path to the configuration file")
	fs.String("server", d.Server, "upstream BGP monitor host")
	fs.Int("port", d.Port, "upstream BGP monitor TCP port")
	fs.Int("listening_port", d.ListeningPort, "local subscriber listening port")
	fs.String("prefix_file", d.PrefixFile, "rule file path")
	fs.String("output_file", d.OutputFile, "append target for matching messages; empty disables")
	fs.String("log_file", d.LogFile, "log output path; empty logs to stderr")
	fs.Int("log_level", d.LogLevel, "syslog-style log level, 0-7")
	fs.Bool("debug", d.Debug, "enable debug logging")
	fs.Bool("daemonize", d.Daemonize, "unused: daemonization is out of scope")
	fs.Bool("stdout", d.Stdout, "echo matching messages to stdout")
	fs.Int("subscriber_queue_length", d.SubscriberQueueLength, "per-subscriber fanout queue length")
	fs.String("kafka_brokers", d.KafkaBrokers, "comma-separated Kafka broker list; enables the Kafka sink")
	fs.String("kafka_topic", d.KafkaTopic, "Kafka topic for matched messages")
	fs.Bool("kafka_tls", d.KafkaTLS, "enable TLS to the Kafka broker")
	fs.String("kafka_sasl_mechanism", d.KafkaSASLMechanism, "\"\" or PLAIN, SCRAM-SHA-256, SCRAM-SHA-512")
	fs.String("kafka_sasl_username", d.KafkaSASLUsername, "Kafka SASL username")
	fs.String("kafka_sasl_password", d.KafkaSASLPassword, "Kafka SASL password")
	fs.String("audit_dsn", d.AuditDSN, "Postgres DSN; enables the audit sink")
	fs.Int("audit_batch_size", d.AuditBatchSize, "audit rows per batch insert")
	fs.Int("audit_flush_interval_ms", d.AuditFlushIntervalMs, "max delay before a partial audit batch flushes")
	fs.Bool("audit_store_raw", d.AuditStoreRaw, "persist raw XML alongside the audit row")
	fs.Bool("audit_compress_raw", d.AuditCompressRaw, "zstd-compress the raw XML before storing")
	fs.Int("audit_retention_days", d.AuditRetentionDays, "drop daily audit partitions older than this many days")
	fs.String("http_listen", d.HTTPListen, "health/metrics HTTP listener address; empty disables it")
}

// Load layers defaults, then the file at configFile (if non-empty), then
// BGPMON_FILTER_* environment variables, then fs's CLI flags — the same
// file→env→flag precedence the teacher's Load uses, with a flat-key
// parser standing in for YAML.
func Load(configFile string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	cfg := defaults()

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), flatKVParser{}); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configFile, err)
		}
	}

	if err := k.Load(env.Provider("BGPMON_FILTER_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "BGPMON_FILTER_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return nil, fmt.Errorf("loading flag config: %w", err)
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the invariants the supervisor's fatal-at-startup list
// (spec §4.7) depends on already holding before it acts on them.
func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("config: server is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range [1,65535]", c.Port)
	}
	if c.ListeningPort <= 0 || c.ListeningPort > 65535 {
		return fmt.Errorf("config: listening_port %d out of range [1,65535]", c.ListeningPort)
	}
	if c.PrefixFile == "" {
		return fmt.Errorf("config: prefix_file is required")
	}
	if c.LogLevel < 0 || c.LogLevel > 7 {
		return fmt.Errorf("config: log_level %d out of range [0,7]", c.LogLevel)
	}
	if c.SubscriberQueueLength <= 0 {
		return fmt.Errorf("config: subscriber_queue_length must be > 0 (got %d)", c.SubscriberQueueLength)
	}
	if c.KafkaBrokers != "" && c.KafkaTopic == "" {
		return fmt.Errorf("config: kafka_topic is required when kafka_brokers is set")
	}
	if c.AuditDSN != "" {
		if c.AuditBatchSize <= 0 {
			return fmt.Errorf("config: audit_batch_size must be > 0 (got %d)", c.AuditBatchSize)
		}
		if c.AuditFlushIntervalMs <= 0 {
			return fmt.Errorf("config: audit_flush_interval_ms must be > 0 (got %d)", c.AuditFlushIntervalMs)
		}
		if c.AuditRetentionDays <= 0 {
			return fmt.Errorf("config: audit_retention_days must be > 0 (got %d)", c.AuditRetentionDays)
		}
	}
	return nil
}

// KafkaBrokerList splits the comma-separated KafkaBrokers key, matching
// how the teacher's Load splits its own comma-separated env overrides.
func (c *Config) KafkaBrokerList() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	return strings.Split(c.KafkaBrokers, ",")
}

// shutdownGrace bounds how long the supervisor waits for goroutines to
// drain on graceful shutdown before giving up. Not a configuration key —
// spec §4.7 doesn't name one — but supervisor needs a single place to
// read it from.
const shutdownGrace = 10 * time.Second

func ShutdownGrace() time.Duration { return shutdownGrace }
