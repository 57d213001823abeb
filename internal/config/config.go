// Package config handles configuration loading using viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"firestige.xyz/udptool/internal/core"
	"firestige.xyz/udptool/internal/log"
	"firestige.xyz/udptool/internal/pacer"
	"firestige.xyz/udptool/internal/sink"
)

// DefaultPort is used for both the destination and the receive port.
const DefaultPort = 33333

// Config is the full configuration. Each command only validates the
// sections it uses.
type Config struct {
	Log     log.Config    `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tx      TxConfig      `mapstructure:"tx"`
	Rx      RxConfig      `mapstructure:"rx"`
	Analyze AnalyzeConfig `mapstructure:"analyze"`
}

// MetricsConfig contains Prometheus metrics settings. An empty Listen
// disables the server.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
	Path   string `mapstructure:"path"`
}

// ─── Transmit ───

type TxConfig struct {
	SourceIP   string `mapstructure:"sip"`
	SourcePort int    `mapstructure:"sport"`
	DestIP     string `mapstructure:"dip"`
	DestPort   int    `mapstructure:"dport"`

	Sizes  []pacer.Distribution `mapstructure:"size"`
	Delays []pacer.Distribution `mapstructure:"delay"`
	// Bandwidth in Mbit/s, 0 = unset
	Bandwidth float64 `mapstructure:"bandwidth"`
	PLoss     float64 `mapstructure:"p_loss"`
	// Seed for size draws and simulated loss; 0 seeds from the clock
	Seed  int64  `mapstructure:"seed"`
	Count uint64 `mapstructure:"count"`

	Verbose       bool               `mapstructure:"verbose"`
	DisplayEvery  time.Duration      `mapstructure:"display_every"`
	AverageWindow int                `mapstructure:"avg_window"`
	MaxWindow     int                `mapstructure:"max_window"`
	LogFile       sink.LogFileConfig `mapstructure:"log_file"`

	NoCheck      bool `mapstructure:"no_check"`
	TOS          int  `mapstructure:"tos"`
	TTL          int  `mapstructure:"ttl"`
	SocketBuffer int  `mapstructure:"socket_buffer"`
}

// PacerConfig converts the transmit section into pacer inputs.
func (c TxConfig) PacerConfig() pacer.Config {
	return pacer.Config{
		Sizes:           c.Sizes,
		Delays:          c.Delays,
		Bandwidth:       c.Bandwidth * 1e6,
		LossProbability: c.PLoss,
	}
}

// Source is the local bind address, empty when none was configured.
func (c TxConfig) Source() string {
	if c.SourceIP == "" && c.SourcePort == 0 {
		return ""
	}
	return joinHostPort(c.SourceIP, c.SourcePort)
}

func (c TxConfig) Destination() string {
	return joinHostPort(c.DestIP, c.DestPort)
}

// ─── Receive ───

type RxConfig struct {
	SourceIP   string `mapstructure:"sip"`
	SourcePort int    `mapstructure:"sport"`
	Count      uint64 `mapstructure:"count"`

	AverageWindow int `mapstructure:"avg_window"`
	MaxWindow     int `mapstructure:"max_window"`
	MissWindow    int `mapstructure:"miss_window"`
	// BufferSize is the largest datagram read in one call
	BufferSize   int  `mapstructure:"rx_buffer_size"`
	SocketBuffer int  `mapstructure:"socket_buffer"`
	NoCheck      bool `mapstructure:"no_check"`

	DisplayEvery  time.Duration      `mapstructure:"display_every"`
	DetailedEvery time.Duration      `mapstructure:"detailed_every"`
	LogFile       sink.LogFileConfig `mapstructure:"log_file"`
	ReportFile    string             `mapstructure:"report_file"`
	PcapFile      string             `mapstructure:"pcap_file"`
}

func (c RxConfig) Address() string {
	return joinHostPort(c.SourceIP, c.SourcePort)
}

// ─── Offline analysis ───

type AnalyzeConfig struct {
	File string `mapstructure:"file"`
	// Port filters the capture on UDP destination port; 0 keeps all
	Port int `mapstructure:"port"`
}

func joinHostPort(host string, port int) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// ─── Loading ───

// flagKeys maps flag names whose key differs from the snake_case name.
var flagKeys = map[string]string{
	"log-file": "log_file.filename",
}

// globalFlags maps command-independent flags to their keys.
var globalFlags = map[string]string{
	"log-level":      "log.level",
	"metrics-listen": "metrics.listen",
}

// Load reads the optional config file at path, applies UDPTOOL_ environment
// overrides and the changed flags of fs. Flags other than the global ones
// are bound under section ("tx", "rx" or "analyze"). Flags listed in skip
// are left to the caller.
func Load(path, section string, fs *pflag.FlagSet, skip ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("UDPTOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := bindFlags(v, section, fs, skip); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", core.ErrConfigInvalid, err)
	}
	return &cfg, nil
}

// decodeHook replaces viper's default so that comma-separated distribution
// specs are not split into lists.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

func bindFlags(v *viper.Viper, section string, fs *pflag.FlagSet, skip []string) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		for _, s := range skip {
			if f.Name == s {
				return
			}
		}
		key, ok := globalFlags[f.Name]
		if !ok {
			if f.Name == "config" || f.Name == "help" || section == "" {
				return
			}
			suffix, mapped := flagKeys[f.Name]
			if !mapped {
				suffix = strings.ReplaceAll(f.Name, "-", "_")
			}
			key = section + "." + suffix
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pattern", log.DefaultPattern)
	v.SetDefault("log.time", log.DefaultTime)
	v.SetDefault("log.file.filename", "")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.compress", false)

	// Metrics defaults
	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.path", "/metrics")

	// Transmit defaults
	v.SetDefault("tx.sip", "")
	v.SetDefault("tx.sport", 0)
	v.SetDefault("tx.dip", "")
	v.SetDefault("tx.dport", DefaultPort)
	v.SetDefault("tx.size", []string{})
	v.SetDefault("tx.delay", []string{})
	v.SetDefault("tx.bandwidth", 0.0)
	v.SetDefault("tx.p_loss", 0.0)
	v.SetDefault("tx.seed", 0)
	v.SetDefault("tx.count", 0)
	v.SetDefault("tx.verbose", false)
	v.SetDefault("tx.display_every", "1s")
	v.SetDefault("tx.avg_window", 10000)
	v.SetDefault("tx.max_window", 10000)
	v.SetDefault("tx.log_file.filename", "tx.log")
	v.SetDefault("tx.log_file.max_size", 0)
	v.SetDefault("tx.log_file.max_backups", 0)
	v.SetDefault("tx.log_file.compress", false)
	v.SetDefault("tx.no_check", false)
	v.SetDefault("tx.tos", -1)
	v.SetDefault("tx.ttl", 0)
	v.SetDefault("tx.socket_buffer", 0)

	// Receive defaults
	v.SetDefault("rx.sip", "0.0.0.0")
	v.SetDefault("rx.sport", DefaultPort)
	v.SetDefault("rx.count", 0)
	v.SetDefault("rx.avg_window", 10000)
	v.SetDefault("rx.max_window", 10000)
	v.SetDefault("rx.miss_window", 50)
	v.SetDefault("rx.rx_buffer_size", 65536)
	v.SetDefault("rx.socket_buffer", 0)
	v.SetDefault("rx.no_check", false)
	v.SetDefault("rx.display_every", "1s")
	v.SetDefault("rx.detailed_every", "0s")
	v.SetDefault("rx.log_file.filename", "rx.log")
	v.SetDefault("rx.log_file.max_size", 0)
	v.SetDefault("rx.log_file.max_backups", 0)
	v.SetDefault("rx.log_file.compress", false)
	v.SetDefault("rx.report_file", "")
	v.SetDefault("rx.pcap_file", "")

	// Offline analysis defaults
	v.SetDefault("analyze.file", "")
	v.SetDefault("analyze.port", DefaultPort)
}
