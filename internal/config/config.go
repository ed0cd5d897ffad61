package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes is the largest config file Load accepts.
const MaxConfigFileBytes = 1 << 20 // 1 MiB

// DriveConfig holds the configuration for the carousel drive motor.
// Type selects a concrete implementation ("stepper" or "dcmotor");
// the pin fields of the unused variant are ignored.
type DriveConfig struct {
	Type string `yaml:"type"` // "stepper" or "dcmotor"

	// Stepper pins (BCM)
	StepPin   int `yaml:"step_pin"`
	DirPin    int `yaml:"dir_pin"`
	EnablePin int `yaml:"enable_pin"` // driver ENABLE pin. 0 = not used. Active LOW.

	// DC motor pins (BCM)
	ForwardPin  int `yaml:"forward_pin"`
	BackwardPin int `yaml:"backward_pin"`
	SpeedPin    int `yaml:"speed_pin"` // PWM speed control

	StepsPerRev   int     `yaml:"steps_per_rev"`
	Microstepping int     `yaml:"microstepping"`
	GearRatio     float64 `yaml:"gear_ratio"` // motor revolutions per tray revolution

	// Step pulse half-cycle widths in microseconds.
	// A full step interval is twice the pulse width.
	PulseWidthUs    int `yaml:"pulse_width_us"`
	MinPulseWidthUs int `yaml:"min_pulse_width_us"`
	MaxPulseWidthUs int `yaml:"max_pulse_width_us"`

	// DC motor speed model
	Speed         int     `yaml:"speed"`           // PWM duty 0-255
	DegreesPerSec float64 `yaml:"degrees_per_sec"` // estimated tray speed at full duty
	MinMoveMs     int     `yaml:"min_move_ms"`     // shortest timed run
	MaxMoveMs     int     `yaml:"max_move_ms"`     // longest timed run
}

// ServoConfig describes the pill gate servo.
type ServoConfig struct {
	Pin             int `yaml:"pin"`               // GPIO pin (PWM)
	MinPulseUs      int `yaml:"min_pulse_us"`      // mechanical minimum pulse width
	MaxPulseUs      int `yaml:"max_pulse_us"`      // mechanical maximum pulse width
	EndMarginUs     int `yaml:"end_margin_us"`     // kept clear of both mechanical ends
	SweepStepUs     int `yaml:"sweep_step_us"`     // increment per sweep step
	StepDelayMs     int `yaml:"step_delay_ms"`     // pause between sweep steps
	MovementDelayMs int `yaml:"movement_delay_ms"` // settle after a full sweep
}

// MagnetConfig describes the pickup electromagnet.
type MagnetConfig struct {
	Pin               int `yaml:"pin"`
	ActivateDelayMs   int `yaml:"activate_delay_ms"`   // field stabilization after energizing
	DeactivateDelayMs int `yaml:"deactivate_delay_ms"` // release settle after de-energizing
}

// LedConfig describes the green ready indicator.
type LedConfig struct {
	Pin int `yaml:"pin"`
}

// SensorsConfig holds the input pin assignment.
type SensorsConfig struct {
	HomeSwitchPin  int `yaml:"home_switch_pin"` // pull-up input, active LOW
	PillSensorPin  int `yaml:"pill_sensor_pin"` // IR detector, active LOW
	EncoderPinA    int `yaml:"encoder_pin_a"`
	EncoderPinB    int `yaml:"encoder_pin_b"`
	PollIntervalMs int `yaml:"poll_interval_ms"` // switch wait polling interval
}

// DetectionConfig bounds the pill detection window.
type DetectionConfig struct {
	WindowMs        int `yaml:"window_ms"`
	CheckIntervalMs int `yaml:"check_interval_ms"`
}

// HomingConfig tunes the homing retry/escalation behavior.
type HomingConfig struct {
	RetryAttempts      int     `yaml:"retry_attempts"`
	BaseTimeoutMs      int     `yaml:"base_timeout_ms"`
	TimeoutIncrementMs int     `yaml:"timeout_increment_ms"` // added per retry
	DelayDecrementUs   int     `yaml:"delay_decrement_us"`   // subtracted from the step interval per retry
	SettleMs           int     `yaml:"settle_ms"`            // after the switch is found
	BackoffDeg         float64 `yaml:"backoff_deg"`          // reverse nudge when starting on the switch
	DislodgeDeg        float64 `yaml:"dislodge_deg"`         // forward nudge between failed attempts
	RetryPauseMs       int     `yaml:"retry_pause_ms"`       // between failed attempts
	NudgeSettleMs      int     `yaml:"nudge_settle_ms"`      // after either nudge
	AfterHomeMs        int     `yaml:"after_home_ms"`        // after startup homing completes
}

// DispenseConfig tunes the dispense retry loop.
type DispenseConfig struct {
	MaxAttempts       int   `yaml:"max_attempts"`
	BetweenAttemptsMs int   `yaml:"between_attempts_ms"`
	BetweenPillsMs    int   `yaml:"between_pills_ms"`
	AfterMoveMs       int   `yaml:"after_move_ms"`
	AutoHome          *bool `yaml:"auto_home"` // re-home after a successful dispense (default true)
}

// CarouselConfig describes the compartment layout.
type CarouselConfig struct {
	Compartments int       `yaml:"compartments"`  // 0 = derive from positions_deg
	PositionsDeg []float64 `yaml:"positions_deg"` // absolute angle of each compartment from home
}

// CommandConfig describes the serial command channel.
// An empty port disables it.
type CommandConfig struct {
	SerialPort       string `yaml:"serial_port"` // e.g., "/dev/ttyUSB0"
	BaudRate         int    `yaml:"baud_rate"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"` // before reopening a lost port
	ReadTimeoutMs    int    `yaml:"read_timeout_ms"`
}

// WebConfig is optional: the bench diagnostic HTTP monitor.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // e.g., ":8080"
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Drive     DriveConfig     `yaml:"drive"`
	Servo     ServoConfig     `yaml:"servo"`
	Magnet    MagnetConfig    `yaml:"magnet"`
	Led       LedConfig       `yaml:"led"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	Detection DetectionConfig `yaml:"detection"`
	Homing    HomingConfig    `yaml:"homing"`
	Dispense  DispenseConfig  `yaml:"dispense"`
	Carousel  CarouselConfig  `yaml:"carousel"`
	Command   CommandConfig   `yaml:"command"`
	Web       *WebConfig      `yaml:"web,omitempty"` // optional
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// ValidateConfigPath checks that a config path points into a configs/
// directory and carries the .yaml extension. It rejects traversal
// attempts that resolve outside configs/.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension, got %q", filepath.Ext(path))
	}
	clean := filepath.Clean(path)
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config file must live in a configs/ directory, got %q", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Drive validation and defaults
	if cfg.Drive.Type == "" {
		cfg.Drive.Type = "stepper"
	}
	if cfg.Drive.Type != "stepper" && cfg.Drive.Type != "dcmotor" {
		return nil, fmt.Errorf("drive.type must be \"stepper\" or \"dcmotor\", got %q", cfg.Drive.Type)
	}
	if cfg.Drive.StepsPerRev <= 0 {
		cfg.Drive.StepsPerRev = 200
	}
	if cfg.Drive.Microstepping <= 0 {
		cfg.Drive.Microstepping = 1
	}
	if cfg.Drive.GearRatio <= 0 {
		cfg.Drive.GearRatio = 1.0
	}
	if cfg.Drive.PulseWidthUs <= 0 {
		cfg.Drive.PulseWidthUs = 15000
	}
	if cfg.Drive.MinPulseWidthUs <= 0 {
		cfg.Drive.MinPulseWidthUs = 10000
	}
	if cfg.Drive.MaxPulseWidthUs <= 0 {
		cfg.Drive.MaxPulseWidthUs = 50000
	}
	if cfg.Drive.MinPulseWidthUs > cfg.Drive.PulseWidthUs {
		return nil, fmt.Errorf("drive.min_pulse_width_us (%d) must be <= pulse_width_us (%d)",
			cfg.Drive.MinPulseWidthUs, cfg.Drive.PulseWidthUs)
	}
	if cfg.Drive.PulseWidthUs > cfg.Drive.MaxPulseWidthUs {
		return nil, fmt.Errorf("drive.pulse_width_us (%d) must be <= max_pulse_width_us (%d)",
			cfg.Drive.PulseWidthUs, cfg.Drive.MaxPulseWidthUs)
	}
	if cfg.Drive.Speed <= 0 || cfg.Drive.Speed > 255 {
		cfg.Drive.Speed = 255
	}
	if cfg.Drive.DegreesPerSec <= 0 {
		cfg.Drive.DegreesPerSec = 60
	}
	if cfg.Drive.MinMoveMs <= 0 {
		cfg.Drive.MinMoveMs = 100
	}
	if cfg.Drive.MaxMoveMs <= 0 {
		cfg.Drive.MaxMoveMs = 5000
	}
	if cfg.Drive.MinMoveMs > cfg.Drive.MaxMoveMs {
		return nil, fmt.Errorf("drive.min_move_ms (%d) must be <= max_move_ms (%d)",
			cfg.Drive.MinMoveMs, cfg.Drive.MaxMoveMs)
	}

	// Servo validation and defaults
	if cfg.Servo.MinPulseUs <= 0 {
		cfg.Servo.MinPulseUs = 150
	}
	if cfg.Servo.MaxPulseUs <= 0 {
		cfg.Servo.MaxPulseUs = 2100
	}
	if cfg.Servo.MinPulseUs >= cfg.Servo.MaxPulseUs {
		return nil, fmt.Errorf("servo.min_pulse_us (%d) must be < max_pulse_us (%d)",
			cfg.Servo.MinPulseUs, cfg.Servo.MaxPulseUs)
	}
	if cfg.Servo.EndMarginUs < 0 {
		return nil, fmt.Errorf("servo.end_margin_us must be >= 0, got %d", cfg.Servo.EndMarginUs)
	}
	if 2*cfg.Servo.EndMarginUs >= cfg.Servo.MaxPulseUs-cfg.Servo.MinPulseUs {
		return nil, fmt.Errorf("servo.end_margin_us (%d) leaves no travel between %d and %d",
			cfg.Servo.EndMarginUs, cfg.Servo.MinPulseUs, cfg.Servo.MaxPulseUs)
	}
	if cfg.Servo.SweepStepUs <= 0 {
		cfg.Servo.SweepStepUs = 60
	}
	if cfg.Servo.StepDelayMs <= 0 {
		cfg.Servo.StepDelayMs = 1
	}
	if cfg.Servo.MovementDelayMs <= 0 {
		cfg.Servo.MovementDelayMs = 500
	}

	// Magnet defaults
	if cfg.Magnet.ActivateDelayMs <= 0 {
		cfg.Magnet.ActivateDelayMs = 200
	}
	if cfg.Magnet.DeactivateDelayMs <= 0 {
		cfg.Magnet.DeactivateDelayMs = 200
	}

	// Sensor defaults
	if cfg.Sensors.PollIntervalMs <= 0 {
		cfg.Sensors.PollIntervalMs = 10
	}

	// Detection defaults
	if cfg.Detection.WindowMs <= 0 {
		cfg.Detection.WindowMs = 2000
	}
	if cfg.Detection.CheckIntervalMs <= 0 {
		cfg.Detection.CheckIntervalMs = 10
	}

	// Homing validation and defaults
	if cfg.Homing.RetryAttempts <= 0 {
		cfg.Homing.RetryAttempts = 3
	}
	if cfg.Homing.BaseTimeoutMs <= 0 {
		cfg.Homing.BaseTimeoutMs = 10000
	}
	if cfg.Homing.TimeoutIncrementMs < 0 {
		return nil, fmt.Errorf("homing.timeout_increment_ms must be >= 0, got %d", cfg.Homing.TimeoutIncrementMs)
	}
	if cfg.Homing.DelayDecrementUs < 0 {
		return nil, fmt.Errorf("homing.delay_decrement_us must be >= 0, got %d", cfg.Homing.DelayDecrementUs)
	}
	if cfg.Homing.SettleMs <= 0 {
		cfg.Homing.SettleMs = 100
	}
	if cfg.Homing.BackoffDeg < 0 || cfg.Homing.DislodgeDeg < 0 {
		return nil, fmt.Errorf("homing nudge angles must be >= 0")
	}
	if cfg.Homing.BackoffDeg == 0 {
		cfg.Homing.BackoffDeg = 10
	}
	if cfg.Homing.DislodgeDeg == 0 {
		cfg.Homing.DislodgeDeg = 5
	}
	if cfg.Homing.RetryPauseMs <= 0 {
		cfg.Homing.RetryPauseMs = 500
	}
	if cfg.Homing.NudgeSettleMs <= 0 {
		cfg.Homing.NudgeSettleMs = 200
	}
	if cfg.Homing.AfterHomeMs <= 0 {
		cfg.Homing.AfterHomeMs = 1000
	}

	// Dispense defaults
	if cfg.Dispense.MaxAttempts <= 0 {
		cfg.Dispense.MaxAttempts = 3
	}
	if cfg.Dispense.BetweenAttemptsMs <= 0 {
		cfg.Dispense.BetweenAttemptsMs = 2000
	}
	if cfg.Dispense.BetweenPillsMs <= 0 {
		cfg.Dispense.BetweenPillsMs = 1000
	}
	if cfg.Dispense.AfterMoveMs <= 0 {
		cfg.Dispense.AfterMoveMs = 200
	}

	// Carousel validation
	if len(cfg.Carousel.PositionsDeg) == 0 {
		return nil, fmt.Errorf("carousel.positions_deg must list at least one compartment")
	}
	if cfg.Carousel.Compartments == 0 {
		cfg.Carousel.Compartments = len(cfg.Carousel.PositionsDeg)
	}
	if cfg.Carousel.Compartments != len(cfg.Carousel.PositionsDeg) {
		return nil, fmt.Errorf("carousel.compartments (%d) does not match positions_deg length (%d)",
			cfg.Carousel.Compartments, len(cfg.Carousel.PositionsDeg))
	}

	// Command channel defaults
	if cfg.Command.BaudRate <= 0 {
		cfg.Command.BaudRate = 115200
	}
	if cfg.Command.ReconnectDelayMs <= 0 {
		cfg.Command.ReconnectDelayMs = 500
	}
	if cfg.Command.ReadTimeoutMs <= 0 {
		cfg.Command.ReadTimeoutMs = 500
	}

	return &cfg, nil
}

// TotalStepsPerRotation returns the number of step units per full tray
// rotation, truncated toward zero.
func (c *Config) TotalStepsPerRotation() int64 {
	return int64(float64(c.Drive.StepsPerRev*c.Drive.Microstepping) * c.Drive.GearRatio)
}

// StepInterval returns the base duration of one full step (both pulse
// half-cycles).
func (c *Config) StepInterval() time.Duration {
	return time.Duration(2*c.Drive.PulseWidthUs) * time.Microsecond
}

// MinStepInterval returns the fastest safe full-step duration.
func (c *Config) MinStepInterval() time.Duration {
	return time.Duration(2*c.Drive.MinPulseWidthUs) * time.Microsecond
}

// MaxStepInterval returns the slowest safe full-step duration.
func (c *Config) MaxStepInterval() time.Duration {
	return time.Duration(2*c.Drive.MaxPulseWidthUs) * time.Microsecond
}

// MinMoveDuration returns the shortest timed DC motor run.
func (c *Config) MinMoveDuration() time.Duration {
	return time.Duration(c.Drive.MinMoveMs) * time.Millisecond
}

// MaxMoveDuration returns the longest timed DC motor run.
func (c *Config) MaxMoveDuration() time.Duration {
	return time.Duration(c.Drive.MaxMoveMs) * time.Millisecond
}

// ServoStepDelay returns the pause between servo sweep increments.
func (c *Config) ServoStepDelay() time.Duration {
	return time.Duration(c.Servo.StepDelayMs) * time.Millisecond
}

// ServoMovementDelay returns the settle time after a full servo sweep.
func (c *Config) ServoMovementDelay() time.Duration {
	return time.Duration(c.Servo.MovementDelayMs) * time.Millisecond
}

// MagnetActivateDelay returns the electromagnet stabilization time.
func (c *Config) MagnetActivateDelay() time.Duration {
	return time.Duration(c.Magnet.ActivateDelayMs) * time.Millisecond
}

// MagnetDeactivateDelay returns the electromagnet release settle time.
func (c *Config) MagnetDeactivateDelay() time.Duration {
	return time.Duration(c.Magnet.DeactivateDelayMs) * time.Millisecond
}

// SensorPollInterval returns the switch wait polling interval.
func (c *Config) SensorPollInterval() time.Duration {
	return time.Duration(c.Sensors.PollIntervalMs) * time.Millisecond
}

// DetectionWindow returns the pill detection window per attempt.
func (c *Config) DetectionWindow() time.Duration {
	return time.Duration(c.Detection.WindowMs) * time.Millisecond
}

// DetectionCheckInterval returns the IR sensor polling interval.
func (c *Config) DetectionCheckInterval() time.Duration {
	return time.Duration(c.Detection.CheckIntervalMs) * time.Millisecond
}

// HomingBaseTimeout returns how long the first homing attempt may seek.
func (c *Config) HomingBaseTimeout() time.Duration {
	return time.Duration(c.Homing.BaseTimeoutMs) * time.Millisecond
}

// HomingTimeoutIncrement returns the extra seek time granted per retry.
func (c *Config) HomingTimeoutIncrement() time.Duration {
	return time.Duration(c.Homing.TimeoutIncrementMs) * time.Millisecond
}

// HomingDelayDecrement returns the step interval reduction per retry.
func (c *Config) HomingDelayDecrement() time.Duration {
	return time.Duration(c.Homing.DelayDecrementUs) * time.Microsecond
}

// HomingSettle returns the pause after the home switch is found.
func (c *Config) HomingSettle() time.Duration {
	return time.Duration(c.Homing.SettleMs) * time.Millisecond
}

// HomingRetryPause returns the pause between failed homing attempts.
func (c *Config) HomingRetryPause() time.Duration {
	return time.Duration(c.Homing.RetryPauseMs) * time.Millisecond
}

// HomingNudgeSettle returns the pause after a homing nudge move.
func (c *Config) HomingNudgeSettle() time.Duration {
	return time.Duration(c.Homing.NudgeSettleMs) * time.Millisecond
}

// AfterHomeDelay returns the pause after startup homing completes.
func (c *Config) AfterHomeDelay() time.Duration {
	return time.Duration(c.Homing.AfterHomeMs) * time.Millisecond
}

// BetweenAttempts returns the pause between failed dispense attempts.
func (c *Config) BetweenAttempts() time.Duration {
	return time.Duration(c.Dispense.BetweenAttemptsMs) * time.Millisecond
}

// BetweenPills returns the pause between pills of a multi-pill request.
func (c *Config) BetweenPills() time.Duration {
	return time.Duration(c.Dispense.BetweenPillsMs) * time.Millisecond
}

// AfterMove returns the settle time after a compartment move.
func (c *Config) AfterMove() time.Duration {
	return time.Duration(c.Dispense.AfterMoveMs) * time.Millisecond
}

// AutoHomeAfterDispense reports whether a successful dispense triggers
// a re-homing cycle. Defaults to true when unset.
func (c *Config) AutoHomeAfterDispense() bool {
	if c.Dispense.AutoHome == nil {
		return true
	}
	return *c.Dispense.AutoHome
}

// SerialReconnectDelay returns the pause before reopening a lost port.
func (c *Config) SerialReconnectDelay() time.Duration {
	return time.Duration(c.Command.ReconnectDelayMs) * time.Millisecond
}

// SerialReadTimeout returns the serial read poll timeout.
func (c *Config) SerialReadTimeout() time.Duration {
	return time.Duration(c.Command.ReadTimeoutMs) * time.Millisecond
}
