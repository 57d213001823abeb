package config

import (
	"errors"
	"fmt"
	"net/url"

	"firestige.xyz/udptool/internal/core"
	"firestige.xyz/udptool/internal/pacer"
)

// Commands select which sections ValidateAndApplyDefaults checks.
const (
	CommandTx      = "tx"
	CommandRx      = "rx"
	CommandAnalyze = "analyze"
	CommandPlan    = "plan"
)

// Plan defaults when no size, delay or bandwidth is configured.
var (
	DefaultSize  = pacer.Dirac(1472)
	DefaultDelay = pacer.Dirac(1)
)

// ValidateAndApplyDefaults validates the sections used by command. All
// errors wrap core.ErrConfigInvalid.
func (cfg *Config) ValidateAndApplyDefaults(command string) error {
	if err := cfg.Log.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	if cfg.Metrics.Listen != "" && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Path != "" {
		if _, err := url.ParseRequestURI(cfg.Metrics.Path); err != nil {
			return fmt.Errorf("%w: invalid metrics path %q", core.ErrConfigInvalid, cfg.Metrics.Path)
		}
	}

	switch command {
	case CommandTx:
		return cfg.Tx.validate()
	case CommandPlan:
		if len(cfg.Tx.Sizes) == 0 && len(cfg.Tx.Delays) == 0 && cfg.Tx.Bandwidth == 0 {
			cfg.Tx.Sizes = []pacer.Distribution{DefaultSize}
			cfg.Tx.Delays = []pacer.Distribution{DefaultDelay}
		}
		_, err := pacer.Validate(cfg.Tx.PacerConfig())
		return err
	case CommandRx:
		if err := validPort("rx.sport", cfg.Rx.SourcePort, false); err != nil {
			return err
		}
		return cfg.Rx.validateAnalysis()
	case CommandAnalyze:
		if cfg.Analyze.File == "" {
			return fmt.Errorf("%w: analyze.file is required", core.ErrConfigInvalid)
		}
		if err := validPort("analyze.port", cfg.Analyze.Port, true); err != nil {
			return err
		}
		return cfg.Rx.validateAnalysis()
	default:
		return fmt.Errorf("%w: unknown command %q", core.ErrConfigInvalid, command)
	}
}

func (c *TxConfig) validate() error {
	var errs []error
	if c.DestIP == "" {
		errs = append(errs, fmt.Errorf("%w: no destination IP", core.ErrConfigInvalid))
	}
	if err := validPort("tx.dport", c.DestPort, false); err != nil {
		errs = append(errs, err)
	}
	if err := validPort("tx.sport", c.SourcePort, true); err != nil {
		errs = append(errs, err)
	}
	if c.TOS < -1 || c.TOS > 255 {
		errs = append(errs, fmt.Errorf("%w: tos %d outside [0,255]", core.ErrConfigInvalid, c.TOS))
	}
	if c.TTL < 0 || c.TTL > 255 {
		errs = append(errs, fmt.Errorf("%w: ttl %d outside [0,255]", core.ErrConfigInvalid, c.TTL))
	}
	if c.AverageWindow <= 0 || c.MaxWindow <= 0 {
		errs = append(errs, fmt.Errorf("%w: window sizes must be positive", core.ErrConfigInvalid))
	}
	if c.DisplayEvery <= 0 {
		errs = append(errs, fmt.Errorf("%w: display interval must be positive", core.ErrConfigInvalid))
	}
	if _, err := pacer.Validate(c.PacerConfig()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *RxConfig) validateAnalysis() error {
	var errs []error
	if c.AverageWindow <= 0 || c.MaxWindow <= 0 || c.MissWindow <= 0 {
		errs = append(errs, fmt.Errorf("%w: window sizes must be positive", core.ErrConfigInvalid))
	}
	if c.BufferSize < 1 {
		errs = append(errs, fmt.Errorf("%w: rx buffer size must be positive", core.ErrConfigInvalid))
	}
	if c.DisplayEvery <= 0 {
		errs = append(errs, fmt.Errorf("%w: display interval must be positive", core.ErrConfigInvalid))
	}
	if c.DetailedEvery < 0 {
		errs = append(errs, fmt.Errorf("%w: detailed interval must not be negative", core.ErrConfigInvalid))
	}
	return errors.Join(errs...)
}

func validPort(name string, port int, allowZero bool) error {
	if port < 0 || port > 65535 || (port == 0 && !allowZero) {
		return fmt.Errorf("%w: %s %d outside [1,65535]", core.ErrConfigInvalid, name, port)
	}
	return nil
}
