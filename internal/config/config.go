// Package config loads the orchestrator configuration from an optional TOML
// file with DROIDBG_* environment overrides. The result is an explicit
// struct handed to the orchestrator at construction; nothing here is
// process-global or mutable after load.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/loykin/droidbg/internal/logger"
	"github.com/spf13/viper"
)

// Timeouts are the default deadlines per blocking operation. Every value is
// caller-overridable per invocation; these are the documented defaults.
type Timeouts struct {
	DeviceReady time.Duration `mapstructure:"device_ready"` // round-trip probe bound
	DeviceWait  time.Duration `mapstructure:"device_wait"`  // emulator boot wait
	AppStart    time.Duration `mapstructure:"app_start"`    // pid poll after launch intent
	Resolve     time.Duration `mapstructure:"resolve"`      // library base poll
	Command     time.Duration `mapstructure:"command"`      // per bridge invocation
}

// History selects the scenario-run history sink.
type History struct {
	Type  string `mapstructure:"type"`  // sqlite|postgres|clickhouse, empty disables
	DSN   string `mapstructure:"dsn"`   // sink-specific connection string
	Table string `mapstructure:"table"` // clickhouse table name
}

// UI holds the fixed coordinates for the input choreography.
type UI struct {
	URLFieldX int `mapstructure:"url_field_x"`
	URLFieldY int `mapstructure:"url_field_y"`
}

// Config is the full orchestrator configuration.
type Config struct {
	Package      string        `mapstructure:"package"`       // app package identifier
	Activity     string        `mapstructure:"activity"`      // main activity name
	ServerPath   string        `mapstructure:"server_path"`   // debug server path on device
	Library      string        `mapstructure:"library"`       // target library filename
	Port         int           `mapstructure:"port"`          // debug server listen/forward port
	ADBPath      string        `mapstructure:"adb_path"`      // bridge binary, default adb
	Serial       string        `mapstructure:"serial"`        // pin to one device serial
	EmulatorPath string        `mapstructure:"emulator_path"` // emulator binary
	AVD          string        `mapstructure:"avd"`           // emulator image name to boot
	LLDBPath     string        `mapstructure:"lldb_path"`     // host debugger binary
	DebugWait    bool          `mapstructure:"debug_wait"`    // launch the app suspended (am start -D)
	MetricsAddr  string        `mapstructure:"metrics_addr"`  // optional /metrics listen addr
	Timeouts     Timeouts      `mapstructure:"timeouts"`
	History      History       `mapstructure:"history"`
	UI           UI            `mapstructure:"ui"`
	Log          logger.Config `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so environment-only overrides are visible
	// to Unmarshal.
	v.SetDefault("package", "")
	v.SetDefault("activity", "")
	v.SetDefault("library", "")
	v.SetDefault("serial", "")
	v.SetDefault("avd", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("debug_wait", false)
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.table", "scenario_history")
	v.SetDefault("log.dir", "")
	v.SetDefault("server_path", "/data/local/tmp/lldb-server")
	v.SetDefault("port", 5039)
	v.SetDefault("adb_path", "adb")
	v.SetDefault("emulator_path", "emulator")
	v.SetDefault("lldb_path", "lldb")
	v.SetDefault("timeouts.device_ready", 5*time.Second)
	v.SetDefault("timeouts.device_wait", 120*time.Second)
	v.SetDefault("timeouts.app_start", 10*time.Second)
	v.SetDefault("timeouts.resolve", 30*time.Second)
	v.SetDefault("timeouts.command", 30*time.Second)
	v.SetDefault("history.type", "")
	v.SetDefault("ui.url_field_x", 500)
	v.SetDefault("ui.url_field_y", 180)
	v.SetDefault("log.level", "info")
}

// Load reads path (optional; empty means env/defaults only) and applies
// DROIDBG_* environment overrides, e.g. DROIDBG_PACKAGE or
// DROIDBG_TIMEOUTS_RESOLVE.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DROIDBG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks cross-field constraints; per-scenario requirements (a
// package name for launch, a library for resolve) are enforced by the
// scenarios that need them.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.History.Type {
	case "", "sqlite", "postgres", "clickhouse":
	default:
		return fmt.Errorf("unknown history type %q", c.History.Type)
	}
	return nil
}
