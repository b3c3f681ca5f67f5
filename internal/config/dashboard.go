package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	ActivitySourceSessionLogs = "session_logs"
	ActivitySourceAppLog      = "app_log"

	JoinKeyComposite = "composite"
	JoinKeyName      = "name"
)

// DashboardConfig carries the tunables of the reporting pipeline.
type DashboardConfig struct {
	Modes              map[string][]string `mapstructure:"modes"`
	ActivityWindowDays int                 `mapstructure:"activityWindowDays"`
	ActivitySource     string              `mapstructure:"activitySource"`
	UnderThreshold     float64             `mapstructure:"underThreshold"`
	OverThreshold      float64             `mapstructure:"overThreshold"`
	LicenseCacheTTL    time.Duration       `mapstructure:"licenseCacheTTL"`
	LoadWindowDays     int                 `mapstructure:"loadWindowDays"`
	ExpiryHorizonDays  int                 `mapstructure:"expiryHorizonDays"`
	TopPerformers      int                 `mapstructure:"topPerformers"`
	JoinKey            string              `mapstructure:"joinKey"`
	Currencies         []string            `mapstructure:"currencies"`
}

func DefaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		Modes: map[string][]string{
			"relay": {"REL"},
			"user":  {"SUB", "USR", "USR_LIC"},
		},
		ActivityWindowDays: 14,
		ActivitySource:     ActivitySourceSessionLogs,
		UnderThreshold:     0.7,
		OverThreshold:      1.0,
		LicenseCacheTTL:    5 * time.Minute,
		LoadWindowDays:     365,
		ExpiryHorizonDays:  30,
		TopPerformers:      3,
		JoinKey:            JoinKeyComposite,
		Currencies:         []string{"GBP", "USD", "EUR", "CAD", "AUD", "JPY", "CHF", "SEK", "NOK", "DKK"},
	}
}

// ActivityWindow returns the trailing window used by the activity aggregators.
func (c DashboardConfig) ActivityWindow() time.Duration {
	return time.Duration(c.ActivityWindowDays) * 24 * time.Hour
}

// ProductCodes returns the product codes of a dashboard mode, nil for the unrestricted mode.
func (c DashboardConfig) ProductCodes(mode string) []string {
	return c.Modes[strings.ToLower(strings.TrimSpace(mode))]
}

func (c DashboardConfig) CurrencyAllowed(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, item := range c.Currencies {
		if strings.EqualFold(item, code) {
			return true
		}
	}
	return false
}

type DashboardConfigHolder struct {
	current atomic.Value // holds DashboardConfig
}

// NewStaticDashboardConfigHolder returns a holder that never reloads.
func NewStaticDashboardConfigHolder(cfg DashboardConfig) *DashboardConfigHolder {
	holder := &DashboardConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewDashboardConfigHolder(log *zap.Logger) (*DashboardConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("dashboard.config")

	v := viper.New()

	v.SetConfigName("dashboard")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/licenseboard/config")
	v.AddConfigPath("/etc/licenseboard")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DASHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDashboardDefaults(v, DefaultDashboardConfig())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Info("dashboard config file not found, using defaults")
	}

	cfg, err := decodeDashboardConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &DashboardConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeDashboardConfig(v)
		if err != nil {
			log.Warn("invalid dashboard config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("dashboard config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *DashboardConfigHolder) Get() DashboardConfig {
	return h.current.Load().(DashboardConfig)
}

func setDashboardDefaults(v *viper.Viper, defaults DashboardConfig) {
	for mode, codes := range defaults.Modes {
		v.SetDefault("dashboard.modes."+mode, codes)
	}
	v.SetDefault("dashboard.activityWindowDays", defaults.ActivityWindowDays)
	v.SetDefault("dashboard.activitySource", defaults.ActivitySource)
	v.SetDefault("dashboard.underThreshold", defaults.UnderThreshold)
	v.SetDefault("dashboard.overThreshold", defaults.OverThreshold)
	v.SetDefault("dashboard.licenseCacheTTL", defaults.LicenseCacheTTL)
	v.SetDefault("dashboard.loadWindowDays", defaults.LoadWindowDays)
	v.SetDefault("dashboard.expiryHorizonDays", defaults.ExpiryHorizonDays)
	v.SetDefault("dashboard.topPerformers", defaults.TopPerformers)
	v.SetDefault("dashboard.joinKey", defaults.JoinKey)
	v.SetDefault("dashboard.currencies", defaults.Currencies)
}

func decodeDashboardConfig(v *viper.Viper) (DashboardConfig, error) {
	var cfg DashboardConfig
	if err := v.UnmarshalKey("dashboard", &cfg); err != nil {
		return DashboardConfig{}, err
	}
	cfg = normalizeDashboardConfig(cfg)
	if err := ValidateDashboardConfig(cfg); err != nil {
		return DashboardConfig{}, err
	}
	return cfg, nil
}

func normalizeDashboardConfig(cfg DashboardConfig) DashboardConfig {
	modes := make(map[string][]string, len(cfg.Modes))
	for mode, codes := range cfg.Modes {
		normalized := make([]string, 0, len(codes))
		for _, code := range codes {
			if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
				normalized = append(normalized, code)
			}
		}
		modes[strings.ToLower(strings.TrimSpace(mode))] = normalized
	}
	cfg.Modes = modes

	currencies := make([]string, 0, len(cfg.Currencies))
	for _, code := range cfg.Currencies {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			currencies = append(currencies, code)
		}
	}
	cfg.Currencies = currencies
	cfg.ActivitySource = strings.ToLower(strings.TrimSpace(cfg.ActivitySource))
	cfg.JoinKey = strings.ToLower(strings.TrimSpace(cfg.JoinKey))
	return cfg
}

func ValidateDashboardConfig(cfg DashboardConfig) error {
	if len(cfg.Modes["relay"]) == 0 || len(cfg.Modes["user"]) == 0 {
		return errors.New("dashboard.modes must define relay and user product codes")
	}
	if cfg.ActivityWindowDays <= 0 {
		return errors.New("dashboard.activityWindowDays must be positive")
	}
	switch cfg.ActivitySource {
	case ActivitySourceSessionLogs, ActivitySourceAppLog:
	default:
		return fmt.Errorf("dashboard.activitySource %q is not supported", cfg.ActivitySource)
	}
	if cfg.UnderThreshold <= 0 || cfg.OverThreshold < cfg.UnderThreshold {
		return errors.New("dashboard thresholds must satisfy 0 < under <= over")
	}
	if cfg.LicenseCacheTTL < 0 {
		return errors.New("dashboard.licenseCacheTTL cannot be negative")
	}
	if cfg.LoadWindowDays <= 0 {
		return errors.New("dashboard.loadWindowDays must be positive")
	}
	if cfg.TopPerformers <= 0 {
		return errors.New("dashboard.topPerformers must be positive")
	}
	switch cfg.JoinKey {
	case JoinKeyComposite, JoinKeyName:
	default:
		return fmt.Errorf("dashboard.joinKey %q is not supported", cfg.JoinKey)
	}
	if len(cfg.Currencies) == 0 {
		return errors.New("dashboard.currencies cannot be empty")
	}
	return nil
}
