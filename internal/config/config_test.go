package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Write the file under a real configs/ directory.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Should not panic; error or success is OS-dependent, but must not crash.
	_ = ValidateConfigPath(long)
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		wantErr bool
	}{
		{"con fig.yaml", false},
		{"café.yaml", false},
	}
	for _, tc := range cases {
		path := filepath.Join(cfgDir, tc.name)
		err := ValidateConfigPath(path)
		if tc.wantErr && err == nil {
			t.Errorf("expected error for %q, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tc.name, err)
		}
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
drive:
  type: "stepper"
  step_pin: 20
  dir_pin: 21
  enable_pin: 16
  steps_per_rev: 200
  microstepping: 16
  gear_ratio: 1.0
  pulse_width_us: 15000
  min_pulse_width_us: 10000
  max_pulse_width_us: 50000
servo:
  pin: 12
  min_pulse_us: 150
  max_pulse_us: 2100
  end_margin_us: 50
  sweep_step_us: 60
  step_delay_ms: 1
  movement_delay_ms: 500
magnet:
  pin: 25
  activate_delay_ms: 200
  deactivate_delay_ms: 200
led:
  pin: 24
sensors:
  home_switch_pin: 26
  pill_sensor_pin: 19
detection:
  window_ms: 2000
  check_interval_ms: 10
homing:
  retry_attempts: 3
  base_timeout_ms: 10000
  timeout_increment_ms: 5000
  delay_decrement_us: 5000
  settle_ms: 100
  backoff_deg: 10
  dislodge_deg: 5
  retry_pause_ms: 500
  nudge_settle_ms: 200
  after_home_ms: 1000
dispense:
  max_attempts: 3
  between_attempts_ms: 2000
  between_pills_ms: 1000
  after_move_ms: 200
carousel:
  compartments: 5
  positions_deg: [0, 72, 144, 216, 288]
command:
  serial_port: "/dev/ttyUSB0"
  baud_rate: 115200
defaults:
  debug_level: 0
  mock_gpio: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Drive.Type != "stepper" {
		t.Errorf("drive.type = %q, want %q", cfg.Drive.Type, "stepper")
	}
	if cfg.Drive.StepPin != 20 {
		t.Errorf("drive.step_pin = %d, want 20", cfg.Drive.StepPin)
	}
	if cfg.Drive.Microstepping != 16 {
		t.Errorf("drive.microstepping = %d, want 16", cfg.Drive.Microstepping)
	}
	if cfg.Servo.MaxPulseUs != 2100 {
		t.Errorf("servo.max_pulse_us = %d, want 2100", cfg.Servo.MaxPulseUs)
	}
	if cfg.Magnet.Pin != 25 {
		t.Errorf("magnet.pin = %d, want 25", cfg.Magnet.Pin)
	}
	if cfg.Sensors.HomeSwitchPin != 26 {
		t.Errorf("sensors.home_switch_pin = %d, want 26", cfg.Sensors.HomeSwitchPin)
	}
	if cfg.Carousel.Compartments != 5 {
		t.Errorf("carousel.compartments = %d, want 5", cfg.Carousel.Compartments)
	}
	if len(cfg.Carousel.PositionsDeg) != 5 || cfg.Carousel.PositionsDeg[1] != 72 {
		t.Errorf("carousel.positions_deg = %v, want [0 72 144 216 288]", cfg.Carousel.PositionsDeg)
	}
	if cfg.Command.SerialPort != "/dev/ttyUSB0" {
		t.Errorf("command.serial_port = %q, want /dev/ttyUSB0", cfg.Command.SerialPort)
	}
	if !cfg.Defaults.MockGPIO {
		t.Error("defaults.mock_gpio = false, want true")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	yaml := `
carousel:
  positions_deg: [0, 90, 180, 270]
`
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Drive.Type != "stepper" {
		t.Errorf("drive.type default = %q, want stepper", cfg.Drive.Type)
	}
	if cfg.Drive.StepsPerRev != 200 {
		t.Errorf("steps_per_rev default = %d, want 200", cfg.Drive.StepsPerRev)
	}
	if cfg.Drive.Microstepping != 1 {
		t.Errorf("microstepping default = %d, want 1", cfg.Drive.Microstepping)
	}
	if cfg.Drive.PulseWidthUs != 15000 {
		t.Errorf("pulse_width_us default = %d, want 15000", cfg.Drive.PulseWidthUs)
	}
	if cfg.Homing.RetryAttempts != 3 {
		t.Errorf("homing.retry_attempts default = %d, want 3", cfg.Homing.RetryAttempts)
	}
	if cfg.Homing.BaseTimeoutMs != 10000 {
		t.Errorf("homing.base_timeout_ms default = %d, want 10000", cfg.Homing.BaseTimeoutMs)
	}
	if cfg.Homing.BackoffDeg != 10 {
		t.Errorf("homing.backoff_deg default = %v, want 10", cfg.Homing.BackoffDeg)
	}
	if cfg.Homing.DislodgeDeg != 5 {
		t.Errorf("homing.dislodge_deg default = %v, want 5", cfg.Homing.DislodgeDeg)
	}
	if cfg.Dispense.MaxAttempts != 3 {
		t.Errorf("dispense.max_attempts default = %d, want 3", cfg.Dispense.MaxAttempts)
	}
	if cfg.Detection.WindowMs != 2000 {
		t.Errorf("detection.window_ms default = %d, want 2000", cfg.Detection.WindowMs)
	}
	if cfg.Servo.MinPulseUs != 150 || cfg.Servo.MaxPulseUs != 2100 {
		t.Errorf("servo pulse defaults = %d/%d, want 150/2100", cfg.Servo.MinPulseUs, cfg.Servo.MaxPulseUs)
	}
	if cfg.Command.BaudRate != 115200 {
		t.Errorf("command.baud_rate default = %d, want 115200", cfg.Command.BaudRate)
	}
	if cfg.Carousel.Compartments != 4 {
		t.Errorf("carousel.compartments = %d, want 4 (derived from positions)", cfg.Carousel.Compartments)
	}
}

func TestLoad_MissingCarousel(t *testing.T) {
	yaml := `
drive:
  type: "stepper"
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for missing carousel.positions_deg, got nil")
	}
}

func TestLoad_CompartmentsMismatch(t *testing.T) {
	yaml := `
carousel:
  compartments: 6
  positions_deg: [0, 72, 144, 216, 288]
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for compartments/positions mismatch, got nil")
	}
}

func TestLoad_BadDriveType(t *testing.T) {
	yaml := `
drive:
  type: "brushless"
carousel:
  positions_deg: [0, 90]
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown drive type, got nil")
	}
}

func TestLoad_PulseWidthOrdering(t *testing.T) {
	t.Run("min_above_base", func(t *testing.T) {
		yaml := `
drive:
  pulse_width_us: 15000
  min_pulse_width_us: 20000
carousel:
  positions_deg: [0, 90]
`
		path := writeConfig(t, yaml)
		if _, err := Load(path); err == nil {
			t.Error("expected error for min_pulse_width_us > pulse_width_us, got nil")
		}
	})

	t.Run("base_above_max", func(t *testing.T) {
		yaml := `
drive:
  pulse_width_us: 60000
  max_pulse_width_us: 50000
carousel:
  positions_deg: [0, 90]
`
		path := writeConfig(t, yaml)
		if _, err := Load(path); err == nil {
			t.Error("expected error for pulse_width_us > max_pulse_width_us, got nil")
		}
	})
}

func TestLoad_ServoPulseRangeInverted(t *testing.T) {
	yaml := `
servo:
  min_pulse_us: 2100
  max_pulse_us: 150
carousel:
  positions_deg: [0, 90]
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for min_pulse_us >= max_pulse_us, got nil")
	}
}

func TestLoad_ServoMarginTooWide(t *testing.T) {
	yaml := `
servo:
  min_pulse_us: 1000
  max_pulse_us: 1200
  end_margin_us: 100
carousel:
  positions_deg: [0, 90]
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error when end margins leave no travel, got nil")
	}
}

func TestLoad_NegativeHomingNudge(t *testing.T) {
	yaml := `
homing:
  backoff_deg: -1
carousel:
  positions_deg: [0, 90]
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for negative nudge angle, got nil")
	}
}

func TestLoad_NegativeTimeoutIncrement(t *testing.T) {
	yaml := `
homing:
  timeout_increment_ms: -500
carousel:
  positions_deg: [0, 90]
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for negative timeout increment, got nil")
	}
}

func TestLoad_AutoHome(t *testing.T) {
	t.Run("defaults_to_true", func(t *testing.T) {
		path := writeConfig(t, "carousel:\n  positions_deg: [0, 90]\n")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !cfg.AutoHomeAfterDispense() {
			t.Error("AutoHomeAfterDispense() = false, want true by default")
		}
	})

	t.Run("explicit_false_sticks", func(t *testing.T) {
		yaml := `
dispense:
  auto_home: false
carousel:
  positions_deg: [0, 90]
`
		path := writeConfig(t, yaml)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.AutoHomeAfterDispense() {
			t.Error("AutoHomeAfterDispense() = true, want false when set")
		}
	})
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for empty config (carousel missing), got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
carousel:
  positions_deg: [0, 90]
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "nonexistent.yaml")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

// ---------- Helper methods ----------

func TestConfig_TotalStepsPerRotation(t *testing.T) {
	cases := []struct {
		name          string
		stepsPerRev   int
		microstepping int
		gearRatio     float64
		want          int64
	}{
		{"plain", 200, 1, 1.0, 200},
		{"microstepped", 200, 16, 1.0, 3200},
		{"geared", 200, 16, 2.5, 8000},
		{"fractional_truncates", 200, 1, 1.0015, 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Drive: DriveConfig{
				StepsPerRev:   tc.stepsPerRev,
				Microstepping: tc.microstepping,
				GearRatio:     tc.gearRatio,
			}}
			if got := cfg.TotalStepsPerRotation(); got != tc.want {
				t.Errorf("TotalStepsPerRotation() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestConfig_StepIntervals(t *testing.T) {
	cfg := &Config{Drive: DriveConfig{
		PulseWidthUs:    15000,
		MinPulseWidthUs: 10000,
		MaxPulseWidthUs: 50000,
	}}
	if got := cfg.StepInterval(); got != 30*time.Millisecond {
		t.Errorf("StepInterval() = %v, want 30ms (both half-cycles)", got)
	}
	if got := cfg.MinStepInterval(); got != 20*time.Millisecond {
		t.Errorf("MinStepInterval() = %v, want 20ms", got)
	}
	if got := cfg.MaxStepInterval(); got != 100*time.Millisecond {
		t.Errorf("MaxStepInterval() = %v, want 100ms", got)
	}
}

func TestConfig_HomingDurations(t *testing.T) {
	cfg := &Config{Homing: HomingConfig{
		BaseTimeoutMs:      10000,
		TimeoutIncrementMs: 5000,
		DelayDecrementUs:   5000,
		SettleMs:           100,
		RetryPauseMs:       500,
		NudgeSettleMs:      200,
		AfterHomeMs:        1000,
	}}
	if got := cfg.HomingBaseTimeout(); got != 10*time.Second {
		t.Errorf("HomingBaseTimeout() = %v, want 10s", got)
	}
	if got := cfg.HomingTimeoutIncrement(); got != 5*time.Second {
		t.Errorf("HomingTimeoutIncrement() = %v, want 5s", got)
	}
	if got := cfg.HomingDelayDecrement(); got != 5*time.Millisecond {
		t.Errorf("HomingDelayDecrement() = %v, want 5ms", got)
	}
	if got := cfg.HomingSettle(); got != 100*time.Millisecond {
		t.Errorf("HomingSettle() = %v, want 100ms", got)
	}
	if got := cfg.HomingRetryPause(); got != 500*time.Millisecond {
		t.Errorf("HomingRetryPause() = %v, want 500ms", got)
	}
	if got := cfg.HomingNudgeSettle(); got != 200*time.Millisecond {
		t.Errorf("HomingNudgeSettle() = %v, want 200ms", got)
	}
	if got := cfg.AfterHomeDelay(); got != time.Second {
		t.Errorf("AfterHomeDelay() = %v, want 1s", got)
	}
}

func TestConfig_DispenseDurations(t *testing.T) {
	cfg := &Config{
		Dispense:  DispenseConfig{BetweenAttemptsMs: 2000, BetweenPillsMs: 1000, AfterMoveMs: 200},
		Detection: DetectionConfig{WindowMs: 2000, CheckIntervalMs: 10},
	}
	if got := cfg.BetweenAttempts(); got != 2*time.Second {
		t.Errorf("BetweenAttempts() = %v, want 2s", got)
	}
	if got := cfg.BetweenPills(); got != time.Second {
		t.Errorf("BetweenPills() = %v, want 1s", got)
	}
	if got := cfg.AfterMove(); got != 200*time.Millisecond {
		t.Errorf("AfterMove() = %v, want 200ms", got)
	}
	if got := cfg.DetectionWindow(); got != 2*time.Second {
		t.Errorf("DetectionWindow() = %v, want 2s", got)
	}
	if got := cfg.DetectionCheckInterval(); got != 10*time.Millisecond {
		t.Errorf("DetectionCheckInterval() = %v, want 10ms", got)
	}
}

func TestConfig_ActuatorDurations(t *testing.T) {
	cfg := &Config{
		Servo:  ServoConfig{StepDelayMs: 1, MovementDelayMs: 500},
		Magnet: MagnetConfig{ActivateDelayMs: 200, DeactivateDelayMs: 250},
	}
	if got := cfg.ServoStepDelay(); got != time.Millisecond {
		t.Errorf("ServoStepDelay() = %v, want 1ms", got)
	}
	if got := cfg.ServoMovementDelay(); got != 500*time.Millisecond {
		t.Errorf("ServoMovementDelay() = %v, want 500ms", got)
	}
	if got := cfg.MagnetActivateDelay(); got != 200*time.Millisecond {
		t.Errorf("MagnetActivateDelay() = %v, want 200ms", got)
	}
	if got := cfg.MagnetDeactivateDelay(); got != 250*time.Millisecond {
		t.Errorf("MagnetDeactivateDelay() = %v, want 250ms", got)
	}
}

func TestConfig_SerialDurations(t *testing.T) {
	cfg := &Config{Command: CommandConfig{ReconnectDelayMs: 500, ReadTimeoutMs: 250}}
	if got := cfg.SerialReconnectDelay(); got != 500*time.Millisecond {
		t.Errorf("SerialReconnectDelay() = %v, want 500ms", got)
	}
	if got := cfg.SerialReadTimeout(); got != 250*time.Millisecond {
		t.Errorf("SerialReadTimeout() = %v, want 250ms", got)
	}
}
