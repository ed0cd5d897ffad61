package debug

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (homing result, dispense totals)
	LevelLive    = 2 // Live info (moves, pills detected, commands)
	LevelVerbose = 3 // Verbose (attempt schedules, position math)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	level  int
	sink   io.Writer = os.Stdout
	logger *zap.SugaredLogger
)

// newLogger builds a console-encoded zap logger writing to w.
// The level gate lives in this package, so the zap core itself
// accepts everything at Info.
func newLogger(w io.Writer) *zap.SugaredLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.LevelKey = "" // our own [INFO]/[LIVE]/... tags carry the level
	encCfg.CallerKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.InfoLevel,
	)
	return zap.New(core).Named("PillGo").Sugar()
}

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (homing result, dispense totals, stats)
// 2 = live info (movements, pills detected, commands received)
// 3 = verbose (attempt schedules, deltas, position math)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	level = debugLevel
	if level > LevelOff {
		logger = newLogger(sink)
	}
}

// SetOutput redirects all debug output to w. Call during startup,
// before other goroutines start logging.
func SetOutput(w io.Writer) {
	sink = w
	if level > LevelOff {
		logger = newLogger(w)
	}
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Infof("[INFO] "+format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if level >= LevelOff && logger != nil {
		logger.Infof("═══════════════════════════════════════")
		logger.Infof("  %s", title)
		logger.Infof("═══════════════════════════════════════")
	}
}

// Carousel prints important carousel layout info (level 1).
func Carousel(compartments int, stepsPerRotation int64) {
	if level >= LevelInfo && logger != nil {
		logger.Infof("[INFO] Carousel: %d compartments over %d steps per rotation", compartments, stepsPerRotation)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.Infof("[LIVE] "+format, args...)
	}
}

// Move prints a motor movement (level 2).
func Move(motor string, steps int64, direction string) {
	if level >= LevelLive && logger != nil {
		logger.Infof("[LIVE] Motor %s: %d steps (%s)", motor, steps, direction)
	}
}

// Pill prints a pill detection (level 2).
func Pill(count int) {
	if level >= LevelLive && logger != nil {
		logger.Infof("[LIVE] Pill detected (count=%d)", count)
	}
}

// Attempt prints the start of a retry attempt (level 2).
func Attempt(what string, num, total int) {
	if level >= LevelLive && logger != nil {
		logger.Infof("[LIVE] Starting %s attempt %d/%d", what, num, total)
	}
}

// Command prints a received command (level 2).
func Command(raw string) {
	if level >= LevelLive && logger != nil {
		logger.Infof("[LIVE] Command received: %q", raw)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Infof("[VERBOSE] "+format, args...)
	}
}

// Print prints a level 3 message (alias for Verbose).
func Print(format string, args ...interface{}) {
	Verbose(format, args...)
}

// Printf is an alias for Print for compatibility.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// Println prints a level 3 message followed by a newline.
func Println(args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Info(args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Infof("[VERBOSE] %s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Infof("  %s", name)
		logger.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		logger.Infof("[VERBOSE] Step %d: %s", num, description)
	}
}

// Value prints a named value in formatted form (level 3).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Infof("[INFO]   %s = %v", name, value)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Infof("[TRACE] "+format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Infof("[GPIO] %s pin=%d value=%v", operation, pin, value)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		logger.Infof("[ERROR] %v", err)
	}
}

// Fmt is a helper function that returns a formatted string
// only if debug is enabled (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if level > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
