package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the boot-time configuration. Loaded once from YAML, then
// overridden by environment variables and CLI flags; never mutated after
// startup.
type Config struct {
	LogLevel    int    `yaml:"log_level"`
	CANDevice   string `yaml:"can_device"`
	VehicleType string `yaml:"vehicle_type"` // combustion or electric
	TickMS      int    `yaml:"tick_ms"`

	ABS struct {
		Variant      uint8 `yaml:"variant"`       // cluster-specific, one of 2/3/4
		Transmission uint8 `yaml:"transmission"`  // 0x630 byte 0
		WheelSize    uint8 `yaml:"wheel_size"`    // 0x630 bytes 6-7
		DynamicDSC   bool  `yaml:"dynamic_dsc"`   // transmit live 0x212
	} `yaml:"abs"`

	Immobilizer struct {
		RelockTimeoutMS int `yaml:"relock_timeout_ms"`
	} `yaml:"immobilizer"`

	Safety struct {
		CANTimeoutMS    int    `yaml:"can_timeout_ms"`
		TimeoutFailsafe bool   `yaml:"timeout_failsafe"`
		WatchdogDevice  string `yaml:"watchdog_device"` // empty disables the hardware watchdog
	} `yaml:"safety"`

	Combustion struct {
		TargetTempTenths  int16 `yaml:"target_temp_tenths"`
		InitialTempTenths int16 `yaml:"initial_temp_tenths"`
	} `yaml:"combustion"`

	Electric struct {
		IdleTimeoutCycles uint32 `yaml:"idle_timeout_cycles"`
	} `yaml:"electric"`

	Redis struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"redis"`

	UIBridge struct {
		Enabled bool   `yaml:"enabled"`
		Port    string `yaml:"port"`
		Baud    int    `yaml:"baud"`
		PushMS  int    `yaml:"push_ms"`
	} `yaml:"ui_bridge"`
}

// DefaultConfig matches a stock manual combustion car on can0.
func DefaultConfig() Config {
	var cfg Config
	cfg.LogLevel = int(LogLevelInfo)
	cfg.CANDevice = "can0"
	cfg.VehicleType = "combustion"
	cfg.TickMS = 100

	cfg.ABS.Variant = 4
	cfg.ABS.Transmission = 8
	cfg.ABS.WheelSize = 106

	cfg.Immobilizer.RelockTimeoutMS = 5000

	cfg.Safety.CANTimeoutMS = 500
	cfg.Safety.TimeoutFailsafe = true

	cfg.Redis.Addr = "127.0.0.1:6379"

	cfg.UIBridge.Port = "/dev/ttyS1"
	cfg.UIBridge.Baud = 115200
	cfg.UIBridge.PushMS = 50

	return cfg
}

// LoadConfig reads the YAML file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error; defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config %s: %v", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %v", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, cfg.validate()
}

// applyEnvOverrides lets deployment units retarget the service without
// editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PCM_CAN_DEVICE"); v != "" {
		cfg.CANDevice = v
	}
	if v := os.Getenv("PCM_VEHICLE_TYPE"); v != "" {
		cfg.VehicleType = v
	}
	if v := os.Getenv("PCM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PCM_LOG_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LogLevel = n
		}
	}
}

func (c *Config) validate() error {
	if c.LogLevel < int(LogLevelNone) || c.LogLevel > int(LogLevelDebug) {
		return fmt.Errorf("invalid log level %d", c.LogLevel)
	}
	if c.TickMS <= 0 {
		return fmt.Errorf("invalid tick period %d ms", c.TickMS)
	}
	if c.VehicleType != "combustion" && c.VehicleType != "ice" &&
		c.VehicleType != "electric" && c.VehicleType != "ev" {
		return fmt.Errorf("invalid vehicle type %q", c.VehicleType)
	}
	return nil
}

// TickPeriod returns the control loop period as a duration.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

// RelockTimeout returns the immobilizer relock timeout as a duration.
func (c *Config) RelockTimeout() time.Duration {
	return time.Duration(c.Immobilizer.RelockTimeoutMS) * time.Millisecond
}

// CANTimeout returns the bus silence limit as a duration.
func (c *Config) CANTimeout() time.Duration {
	return time.Duration(c.Safety.CANTimeoutMS) * time.Millisecond
}

// UIPushPeriod returns the UI bridge push interval as a duration.
func (c *Config) UIPushPeriod() time.Duration {
	return time.Duration(c.UIBridge.PushMS) * time.Millisecond
}
