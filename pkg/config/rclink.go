package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v2"

	"rclink/pkg/input"
)

const DefaultConfigPath = "rclink.toml"

const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"

	InputJoystick = "joystick"
	InputKeyboard = "keyboard"
	InputMock     = "mock"

	MotorLog    = "log"
	MotorSerial = "serial"
)

type Config struct {
	Link       LinkConfig       `toml:"link" yaml:"link"`
	Controller ControllerConfig `toml:"controller" yaml:"controller"`
	Transport  TransportConfig  `toml:"transport" yaml:"transport"`
	Hub        HubConfig        `toml:"hub" yaml:"hub"`
	Telemetry  TelemetryConfig  `toml:"telemetry" yaml:"telemetry"`
	Layouts    []input.Layout   `toml:"layouts" yaml:"layouts"`
	configPath string           `toml:"-" yaml:"-"`
}

type LinkConfig struct {
	Timeout string `toml:"timeout" yaml:"timeout"`
}

type ControllerConfig struct {
	Input           string  `toml:"input" yaml:"input"`
	JoystickIndex   int     `toml:"joystick_index" yaml:"joystick_index"`
	Layout          string  `toml:"layout,omitempty" yaml:"layout,omitempty"`
	Deadband        float64 `toml:"deadband" yaml:"deadband"`
	Period          string  `toml:"period" yaml:"period"`
	MinInterval     string  `toml:"min_interval" yaml:"min_interval"`
	ChangeThreshold int     `toml:"change_threshold" yaml:"change_threshold"`
	ConnectAttempts int     `toml:"connect_attempts" yaml:"connect_attempts"`
	ConnectBackoff  string  `toml:"connect_backoff" yaml:"connect_backoff"`
}

type TransportConfig struct {
	Kind       string `toml:"kind" yaml:"kind"`
	Addr       string `toml:"addr" yaml:"addr"`
	SerialPort string `toml:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	SerialBaud int    `toml:"serial_baud" yaml:"serial_baud"`
}

type HubConfig struct {
	Name              string `toml:"name" yaml:"name"`
	Listen            string `toml:"listen" yaml:"listen"`
	Motor             string `toml:"motor" yaml:"motor"`
	MotorPort         string `toml:"motor_port,omitempty" yaml:"motor_port,omitempty"`
	MotorBaud         int    `toml:"motor_baud" yaml:"motor_baud"`
	Tick              string `toml:"tick" yaml:"tick"`
	AdvertiseInterval string `toml:"advertise_interval" yaml:"advertise_interval"`
}

type TelemetryConfig struct {
	Enabled      bool   `toml:"enabled" yaml:"enabled"`
	Addr         string `toml:"addr" yaml:"addr"`
	Secret       string `toml:"secret,omitempty" yaml:"secret,omitempty"`
	EventLog     string `toml:"event_log,omitempty" yaml:"event_log,omitempty"`
	SkipCommands bool   `toml:"skip_commands" yaml:"skip_commands"`
}

func Default() Config {
	return Config{
		Link: LinkConfig{Timeout: "2s"},
		Controller: ControllerConfig{
			Input:           InputJoystick,
			JoystickIndex:   -1,
			Deadband:        input.DefaultDeadband,
			Period:          "50ms",
			MinInterval:     "50ms",
			ChangeThreshold: 5,
			ConnectAttempts: 3,
			ConnectBackoff:  "1s",
		},
		Transport: TransportConfig{
			Kind:       TransportTCP,
			Addr:       "127.0.0.1:7411",
			SerialBaud: 115200,
		},
		Hub: HubConfig{
			Name:              "SPIKE_RC",
			Listen:            "0.0.0.0:7411",
			Motor:             MotorLog,
			MotorBaud:         9600,
			Tick:              "20ms",
			AdvertiseInterval: "1s",
		},
		Telemetry: TelemetryConfig{
			Addr: "127.0.0.1:8765",
		},
		Layouts: input.DefaultLayouts(),
	}
}

func Load(path string) (Config, error) {
	cfg, exists, err := LoadOrDefault(path)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, os.ErrNotExist
	}
	return cfg, nil
}

// LoadOrDefault reads path and reports whether it existed. A missing file yields Default.
// Paths ending in .yaml or .yml are read as YAML, everything else as TOML.
func LoadOrDefault(path string) (Config, bool, error) {
	cfg := Default()
	cfg.configPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.normalize()
			return cfg, false, nil
		}
		return Config{}, false, fmt.Errorf("read config: %w", err)
	}

	// Layouts from the file replace the built-in table instead of merging into it.
	cfg.Layouts = nil
	if isYAML(path) {
		err = yaml.UnmarshalStrict(data, &cfg)
	} else {
		err = toml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, true, fmt.Errorf("parse config: %w", err)
	}
	cfg.configPath = path
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, true, err
	}
	return cfg, true, nil
}

func (cfg *Config) Save(path string) error {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = toml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	cfg.configPath = path
	return nil
}

func (cfg *Config) ConfigPath() string {
	return cfg.configPath
}

func (cfg *Config) Validate() error {
	durations := map[string]string{
		"link.timeout":               cfg.Link.Timeout,
		"controller.period":          cfg.Controller.Period,
		"controller.min_interval":    cfg.Controller.MinInterval,
		"controller.connect_backoff": cfg.Controller.ConnectBackoff,
		"hub.tick":                   cfg.Hub.Tick,
		"hub.advertise_interval":     cfg.Hub.AdvertiseInterval,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if d < 0 || (d == 0 && key != "controller.min_interval") {
			return fmt.Errorf("%s must be positive: %s", key, value)
		}
	}

	switch cfg.Controller.Input {
	case InputJoystick, InputKeyboard, InputMock:
	default:
		return fmt.Errorf("controller.input unknown: %q", cfg.Controller.Input)
	}
	if cfg.Controller.Deadband < 0 || cfg.Controller.Deadband >= 1 {
		return fmt.Errorf("controller.deadband out of range: %v", cfg.Controller.Deadband)
	}
	if cfg.Controller.ChangeThreshold < 0 || cfg.Controller.ChangeThreshold > 200 {
		return fmt.Errorf("controller.change_threshold out of range: %d", cfg.Controller.ChangeThreshold)
	}
	if cfg.Controller.ConnectAttempts <= 0 {
		return fmt.Errorf("controller.connect_attempts must be positive: %d", cfg.Controller.ConnectAttempts)
	}

	switch cfg.Transport.Kind {
	case TransportTCP:
		if cfg.Transport.Addr == "" {
			return fmt.Errorf("transport.addr is required for tcp")
		}
	case TransportSerial:
		if cfg.Transport.SerialPort == "" {
			return fmt.Errorf("transport.serial_port is required for serial")
		}
	default:
		return fmt.Errorf("transport.kind unknown: %q", cfg.Transport.Kind)
	}

	switch cfg.Hub.Motor {
	case MotorLog:
	case MotorSerial:
		if cfg.Hub.MotorPort == "" {
			return fmt.Errorf("hub.motor_port is required for serial motors")
		}
	default:
		return fmt.Errorf("hub.motor unknown: %q", cfg.Hub.Motor)
	}

	seen := make(map[string]struct{}, len(cfg.Layouts))
	for _, l := range cfg.Layouts {
		if err := l.Validate(); err != nil {
			return err
		}
		key := strings.ToLower(l.Name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("duplicate layout name: %s", l.Name)
		}
		seen[key] = struct{}{}
	}
	if cfg.Controller.Layout != "" {
		if _, ok := input.LayoutByName(cfg.Controller.Layout, cfg.Layouts); !ok {
			return fmt.Errorf("controller.layout %q is not defined", cfg.Controller.Layout)
		}
	}
	return nil
}

func (cfg *Config) normalize() {
	def := Default()

	if cfg.Link.Timeout == "" {
		cfg.Link.Timeout = def.Link.Timeout
	}

	cfg.Controller.Input = strings.ToLower(strings.TrimSpace(cfg.Controller.Input))
	if cfg.Controller.Input == "" {
		cfg.Controller.Input = def.Controller.Input
	}
	if cfg.Controller.Period == "" {
		cfg.Controller.Period = def.Controller.Period
	}
	if cfg.Controller.MinInterval == "" {
		cfg.Controller.MinInterval = def.Controller.MinInterval
	}
	if cfg.Controller.ConnectAttempts == 0 {
		cfg.Controller.ConnectAttempts = def.Controller.ConnectAttempts
	}
	if cfg.Controller.ConnectBackoff == "" {
		cfg.Controller.ConnectBackoff = def.Controller.ConnectBackoff
	}

	cfg.Transport.Kind = strings.ToLower(strings.TrimSpace(cfg.Transport.Kind))
	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = def.Transport.Kind
	}
	if cfg.Transport.Addr == "" {
		cfg.Transport.Addr = def.Transport.Addr
	}
	if cfg.Transport.SerialBaud <= 0 {
		cfg.Transport.SerialBaud = def.Transport.SerialBaud
	}

	if cfg.Hub.Name == "" {
		cfg.Hub.Name = def.Hub.Name
	}
	if cfg.Hub.Listen == "" {
		cfg.Hub.Listen = def.Hub.Listen
	}
	cfg.Hub.Motor = strings.ToLower(strings.TrimSpace(cfg.Hub.Motor))
	if cfg.Hub.Motor == "" {
		cfg.Hub.Motor = def.Hub.Motor
	}
	if cfg.Hub.MotorBaud <= 0 {
		cfg.Hub.MotorBaud = def.Hub.MotorBaud
	}
	if cfg.Hub.Tick == "" {
		cfg.Hub.Tick = def.Hub.Tick
	}
	if cfg.Hub.AdvertiseInterval == "" {
		cfg.Hub.AdvertiseInterval = def.Hub.AdvertiseInterval
	}

	if cfg.Telemetry.Addr == "" {
		cfg.Telemetry.Addr = def.Telemetry.Addr
	}

	if len(cfg.Layouts) == 0 {
		cfg.Layouts = def.Layouts
	}
	for i := range cfg.Layouts {
		if cfg.Layouts[i].TriggerRange == "" {
			cfg.Layouts[i].TriggerRange = input.TriggerSigned
		}
	}

	if cfg.configPath == "" {
		cfg.configPath = DefaultConfigPath
	}
}

// Durations are validated before use; a value that still fails to parse falls back to zero.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (c LinkConfig) TimeoutDuration() time.Duration { return duration(c.Timeout) }

func (c ControllerConfig) PeriodDuration() time.Duration { return duration(c.Period) }

func (c ControllerConfig) MinIntervalDuration() time.Duration { return duration(c.MinInterval) }

func (c ControllerConfig) ConnectBackoffDuration() time.Duration { return duration(c.ConnectBackoff) }

func (c HubConfig) TickDuration() time.Duration { return duration(c.Tick) }

func (c HubConfig) AdvertiseIntervalDuration() time.Duration { return duration(c.AdvertiseInterval) }

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
