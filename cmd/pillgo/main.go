package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cjeanneret/PillGo/internal/command"
	"github.com/cjeanneret/PillGo/internal/config"
	"github.com/cjeanneret/PillGo/internal/debug"
	"github.com/cjeanneret/PillGo/internal/hw/drive"
	"github.com/cjeanneret/PillGo/internal/hw/gpio"
	"github.com/cjeanneret/PillGo/internal/hw/led"
	"github.com/cjeanneret/PillGo/internal/hw/magnet"
	"github.com/cjeanneret/PillGo/internal/hw/sensors"
	"github.com/cjeanneret/PillGo/internal/hw/servo"
	"github.com/cjeanneret/PillGo/internal/logic/dispense"
	"github.com/cjeanneret/PillGo/internal/logic/homing"
	"github.com/cjeanneret/PillGo/internal/logic/position"
	"github.com/cjeanneret/PillGo/internal/web"
)

func main() {
	// CLI flags
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	mockGPIO := flag.Bool("mock", false, "force mock GPIO regardless of config")
	debugLevel := flag.Int("debug", -1, "override debug level 0-4 (-1 = use config)")
	calibrate := flag.Bool("calibrate", false, "time one tray rotation and exit")
	oneShot := flag.String("cmd", "", "run a single command line and exit (e.g. DISPENSE:2:1)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *mockGPIO {
		cfg.Defaults.MockGPIO = true
	}
	if *debugLevel >= 0 {
		cfg.Defaults.DebugLevel = *debugLevel
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)

	// Tee the debug output into the web live feed before anything logs.
	var broadcaster *web.LogBroadcaster
	if cfg.Web != nil && cfg.Web.Enabled {
		broadcaster = web.NewLogBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)

	// Initialize GPIO driver
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize carousel drive
	debug.Step(2, "Initializing carousel drive")
	motor, err := newMotorFromConfig(gpioDriver, cfg)
	if err != nil {
		log.Fatalf("init drive failed: %v", err)
	}
	defer func() {
		if err := motor.Close(); err != nil {
			log.Printf("closing drive failed: %v", err)
		}
	}()
	debug.PrintStruct("Drive config", cfg.Drive)

	// Initialize sensors
	debug.Step(3, "Initializing sensors")
	sens, err := sensors.NewManager(gpioDriver, sensors.Config{
		HomeSwitchPin: cfg.Sensors.HomeSwitchPin,
		PillSensorPin: cfg.Sensors.PillSensorPin,
		EncoderPinA:   cfg.Sensors.EncoderPinA,
		EncoderPinB:   cfg.Sensors.EncoderPinB,
		PollInterval:  cfg.SensorPollInterval(),
	})
	if err != nil {
		log.Fatalf("init sensors failed: %v", err)
	}

	// Initialize pill gate servo
	debug.Step(4, "Initializing pill gate servo")
	gate := servo.New(gpioDriver, servo.Config{
		Pin:         cfg.Servo.Pin,
		MinPulseUs:  cfg.Servo.MinPulseUs,
		MaxPulseUs:  cfg.Servo.MaxPulseUs,
		EndMarginUs: cfg.Servo.EndMarginUs,
		SweepStepUs: cfg.Servo.SweepStepUs,
		StepDelay:   cfg.ServoStepDelay(),
	})

	// Initialize pickup magnet
	debug.Step(5, "Initializing pickup magnet")
	mag := magnet.NewGPIOMagnet(gpioDriver, magnet.Config{
		Pin:             cfg.Magnet.Pin,
		ActivateDelay:   cfg.MagnetActivateDelay(),
		DeactivateDelay: cfg.MagnetDeactivateDelay(),
	})

	// Initialize status LED
	debug.Step(6, "Initializing status LED")
	light := led.New(gpioDriver, cfg.Led.Pin)

	// Wire control logic
	debug.Step(7, "Wiring control logic")
	tracker := position.NewTracker(cfg)
	homer := homing.NewEngine(cfg, motor, gate, sens, tracker)
	engine := dispense.NewEngine(cfg, motor, gate, mag, sens, tracker, homer)
	dispatcher := command.NewDispatcher(engine, homer, light)

	if *calibrate {
		if _, err := engine.CalibrateRotationTiming(); err != nil {
			log.Fatalf("calibration failed: %v", err)
		}
		return
	}

	// One-shot mode: the engine homes itself before moving, so the
	// command runs against a freshly referenced tray.
	if *oneShot != "" {
		fmt.Println(dispatcher.OnCommand(*oneShot))
		return
	}

	// Reference the tray before accepting commands. A failed startup
	// homing is not fatal: the dispenser stays up, the LED stays dark,
	// and a HOME command can retry once the jam is cleared.
	debug.Section("Startup Homing")
	homed, err := homer.Home()
	if err != nil {
		log.Fatalf("startup homing failed: %v", err)
	}
	if homed {
		if err := light.On(); err != nil {
			debug.Error(err)
		}
		time.Sleep(cfg.AfterHomeDelay())
	} else {
		debug.Info("Startup homing did not find the switch, waiting for HOME command")
	}

	// Start command channels
	serialRunning := false
	if cfg.Command.SerialPort != "" {
		ch := command.NewSerialChannel(command.SerialConfig{
			Device:         cfg.Command.SerialPort,
			Baud:           cfg.Command.BaudRate,
			ReadTimeout:    cfg.SerialReadTimeout(),
			ReconnectDelay: cfg.SerialReconnectDelay(),
		}, dispatcher)
		go func() {
			if err := ch.Run(ctx); err != nil {
				log.Printf("serial channel: %v", err)
			}
		}()
		serialRunning = true
	}

	if broadcaster != nil {
		srv := web.NewServer(cfg.Web.Addr, broadcaster, statusSnapshot(homer, tracker, engine), dispatcher.OnCommand)
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	if !serialRunning {
		debug.Info("No command channel configured, exiting")
		return
	}

	<-ctx.Done()
}

// statusSnapshot assembles the advisory snapshot served by the web
// monitor. It reads engine state without serializing against a running
// command; the STATUS command is the authoritative read.
func statusSnapshot(homer *homing.Engine, tracker *position.Tracker, engine *dispense.Engine) web.StatusFunc {
	return func() web.Status {
		return web.Status{
			Homed:           homer.Homed(),
			Compartment:     tracker.Compartment(),
			PositionSteps:   tracker.PositionSteps(),
			PositionDegrees: tracker.PositionDegrees(),
			Counts:          engine.Counts(),
			TotalDispensed:  engine.TotalDispensed(),
		}
	}
}

// newMotorFromConfig selects a drive implementation based on configuration.
func newMotorFromConfig(g gpio.Driver, cfg *config.Config) (drive.Motor, error) {
	dc := drive.Config{
		StepPin:          cfg.Drive.StepPin,
		DirPin:           cfg.Drive.DirPin,
		EnablePin:        cfg.Drive.EnablePin,
		ForwardPin:       cfg.Drive.ForwardPin,
		BackwardPin:      cfg.Drive.BackwardPin,
		SpeedPin:         cfg.Drive.SpeedPin,
		StepsPerRotation: cfg.TotalStepsPerRotation(),
		StepInterval:     cfg.StepInterval(),
		MinStepInterval:  cfg.MinStepInterval(),
		MaxStepInterval:  cfg.MaxStepInterval(),
		Speed:            cfg.Drive.Speed,
		DegreesPerSec:    cfg.Drive.DegreesPerSec,
		MinMove:          cfg.MinMoveDuration(),
		MaxMove:          cfg.MaxMoveDuration(),
	}

	switch cfg.Drive.Type {
	case "stepper":
		return drive.NewStepper(g, dc), nil
	case "dcmotor":
		return drive.NewDCMotor(g, dc), nil
	default:
		return nil, fmt.Errorf("unsupported drive type: %s", cfg.Drive.Type)
	}
}
