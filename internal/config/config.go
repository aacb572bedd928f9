package config

import (
	"os"

	"codeberg.org/voss/memguard/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultInterval       = 5
	defaultThrottleWindow = 5
	defaultWarningMB      = 60
	defaultCriticalMB     = 100
	defaultEmergencyMB    = 140
	defaultHistorySize    = 120
	defaultSampler        = "system"
	defaultJournalDB      = "/var/lib/memguard/journal.db"
)

type Config struct {
	Interval       int    `mapstructure:"interval"`        // seconds between samples
	ThrottleWindow int    `mapstructure:"throttle_window"` // seconds between repeated same-tier actions
	WarningMB      int    `mapstructure:"warning_mb"`
	CriticalMB     int    `mapstructure:"critical_mb"`
	EmergencyMB    int    `mapstructure:"emergency_mb"`
	HistorySize    int    `mapstructure:"history_size"`
	Sampler        string `mapstructure:"sampler"` // "system" or "heap"
	Monitor        bool   `mapstructure:"monitor"` // observe and journal, never mitigate
	GCNudge        bool   `mapstructure:"gc_nudge"`
	Journal        bool   `mapstructure:"journal"`
	JournalDB      string `mapstructure:"journal_db"`
	LogLevel       string `mapstructure:"log_level"`
}

func Load() (*Config, error) {
	return LoadWithArgs(os.Args[1:])
}

// LoadWithArgs loads configuration from file, environment and the given
// command line arguments, in increasing order of precedence.
func LoadWithArgs(args []string) (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("throttle_window", defaultThrottleWindow)
	v.SetDefault("warning_mb", defaultWarningMB)
	v.SetDefault("critical_mb", defaultCriticalMB)
	v.SetDefault("emergency_mb", defaultEmergencyMB)
	v.SetDefault("history_size", defaultHistorySize)
	v.SetDefault("sampler", defaultSampler)
	v.SetDefault("journal_db", defaultJournalDB)
	v.SetDefault("log_level", DefaultLogLevel)

	flags := pflag.NewFlagSet("memguard", pflag.ContinueOnError)
	flags.Int("interval", defaultInterval, "Seconds between memory samples")
	flags.Int("throttle-window", defaultThrottleWindow, "Seconds before the same pressure tier may fire again")
	flags.Int("warning-mb", defaultWarningMB, "Warning pressure threshold in MB")
	flags.Int("critical-mb", defaultCriticalMB, "Critical pressure threshold in MB")
	flags.Int("emergency-mb", defaultEmergencyMB, "Emergency pressure threshold in MB")
	flags.String("sampler", defaultSampler, "Memory sampler: system or heap")
	flags.Bool("monitor", false, "Only monitor and journal, never mitigate")
	flags.Bool("gc-nudge", false, "Run a GC pass on warning-tier pressure")
	flags.Bool("journal", false, "Record pressure events to the journal database")
	flags.String("journal-db", defaultJournalDB, "Path to the journal database")
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warning or error")
	if err := flags.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	// Flags use dashes, config keys use underscores
	flags.Visit(func(f *pflag.Flag) {
		key := f.Name
		switch key {
		case "throttle-window":
			key = "throttle_window"
		case "warning-mb":
			key = "warning_mb"
		case "critical-mb":
			key = "critical_mb"
		case "emergency-mb":
			key = "emergency_mb"
		case "gc-nudge":
			key = "gc_nudge"
		case "journal-db":
			key = "journal_db"
		case "log-level":
			key = "log_level"
		}
		v.Set(key, f.Value.String())
	})

	if path := os.Getenv("MEMGUARD_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName("memguard")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.ThrottleWindow <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidInterval, "throttle window must be positive")
	}
	if c.HistorySize <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "history size must be positive")
	}
	if c.WarningMB <= 0 || c.WarningMB >= c.CriticalMB || c.CriticalMB >= c.EmergencyMB {
		return errFactory.WithData(errors.ErrInvalidThresholds, struct {
			Warning   int
			Critical  int
			Emergency int
		}{c.WarningMB, c.CriticalMB, c.EmergencyMB})
	}
	if c.Sampler != "system" && c.Sampler != "heap" {
		return errFactory.WithData(errors.ErrInvalidConfig, c.Sampler)
	}
	if c.Journal && c.JournalDB == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "journal enabled without a database path")
	}
	switch c.LogLevel {
	case "debug", "info", "warning", "warn", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}
