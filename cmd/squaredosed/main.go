// squaredosed is the composition root: it loads configuration, opens
// the persistence store, constructs every subsystem with its own
// explicitly-passed Store/Clock/Logger handle (never a package-level
// global), wires the scheduler/dose-log cyclic dependency through a
// post-construction setter, starts the background task fabric and
// HTTP/WebSocket server, and shuts everything down cleanly on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/squaredose/doser/controller"
	"github.com/squaredose/doser/controller/api"
	"github.com/squaredose/doser/controller/modules/doselog"
	"github.com/squaredose/doser/controller/modules/dosinghead"
	"github.com/squaredose/doser/controller/modules/motor"
	"github.com/squaredose/doser/controller/modules/reservoir"
	"github.com/squaredose/doser/controller/modules/schedule"
	"github.com/squaredose/doser/controller/modules/wifi"
	"github.com/squaredose/doser/controller/tasks"
	"github.com/squaredose/doser/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfgPath := "squaredose.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := controller.OpenBoltStore(cfg.BoltPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if info, err := os.Stat(cfg.BoltPath); err == nil {
		logger.Info("opened store", "path", cfg.BoltPath, "size", humanize.Bytes(uint64(info.Size())))
	}

	clock := controller.NewRealClock()

	actuator, err := buildActuator(cfg, logger)
	if err != nil {
		return fmt.Errorf("build actuator: %w", err)
	}

	var heads [api.HeadCount]*dosinghead.Head
	for i := range heads {
		h, err := dosinghead.New(i, store, clock, actuator)
		if err != nil {
			return fmt.Errorf("init dosing head %d: %w", i, err)
		}
		heads[i] = h
	}

	schedStore, err := schedule.NewStore(store)
	if err != nil {
		return fmt.Errorf("init schedule store: %w", err)
	}
	var dispensers [4]schedule.Dispenser
	for i, h := range heads {
		dispensers[i] = h
	}
	schedMgr, err := schedule.NewManager(schedStore, dispensers, clock, logger)
	if err != nil {
		return fmt.Errorf("init schedule manager: %w", err)
	}

	logStore, err := doselog.NewStore(store)
	if err != nil {
		return fmt.Errorf("init dose log store: %w", err)
	}
	logMgr := doselog.NewManager(logStore, clock)
	schedMgr.SetLogManager(logMgr)

	reservoirMgr, err := reservoir.NewManager(store)
	if err != nil {
		return fmt.Errorf("init reservoir manager: %w", err)
	}
	schedMgr.SetReservoirManager(reservoirMgr)

	hardwareID, err := loadOrCreateHardwareID(store)
	if err != nil {
		return fmt.Errorf("load hardware id: %w", err)
	}
	radio := buildRadio(cfg)
	wifiSup, err := wifi.New(store, clock, radio, hardwareID, logger.Info)
	if err != nil {
		return fmt.Errorf("init wifi supervisor: %w", err)
	}
	if err := wifiSup.Boot(); err != nil {
		logger.Warn("wifi boot did not reach STA, remaining in AP", "error", err)
	}

	fabric := tasks.New(clock, logger, schedMgr, wifiSup, time.Duration(cfg.KeepAliveSecs)*time.Second)

	retentionCron, err := tasks.StartLogRetention(clock, logger, logMgr)
	if err != nil {
		return fmt.Errorf("start log retention: %w", err)
	}
	defer retentionCron.Stop()

	server := api.NewServer(heads, actuator, schedMgr, logMgr, wifiSup, reservoirMgr, clock, logger, fabric)
	router := mux.NewRouter()
	server.LoadAPI(router)

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := fabric.Run(ctx); err != nil {
			errCh <- fmt.Errorf("task fabric: %w", err)
		}
	}()

	if ok, _ := daemon.SdNotify(false, daemon.SdNotifyReady); ok {
		logger.Info("notified systemd ready")
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("subsystem failed, shutting down", "error", err)
	}

	daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func buildActuator(cfg config.Config, logger *slog.Logger) (motor.Actuator, error) {
	if cfg.DevMode {
		logger.Info("running with simulated motor actuator (devMode)")
		return motor.NewSimActuator(), nil
	}

	offsets := []int{cfg.Motor.StandbyLine}
	for _, h := range cfg.Motor.Heads {
		offsets = append(offsets, h.In1, h.In2, h.PWM)
	}
	lines, err := motor.OpenGPIOLines(cfg.GPIOChip, offsets)
	if err != nil {
		return nil, err
	}

	var specs [motor.HeadCount]motor.PinSpec
	for i, h := range cfg.Motor.Heads {
		specs[i] = motor.PinSpec{In1: h.In1, In2: h.In2, PWM: h.PWM}
	}
	return motor.NewGPIOActuatorFromSpecs(cfg.GPIOChip, specs, cfg.Motor.StandbyLine, lines), nil
}

func buildRadio(cfg config.Config) wifi.Radio {
	// The simulated radio is used whatever cfg.DevMode says: this
	// repository has no Radio implementation that drives a real network
	// interface. It lets the Wi-Fi supervisor's state machine run end to
	// end.
	return wifi.NewSimRadio()
}

const hardwareIDNamespace = "device"
const hardwareIDKey = "hardwareId"

// loadOrCreateHardwareID persists a random 6-byte identifier on first
// boot and reuses it afterward, standing in for the ESP32 eFuse MAC
// the original firmware derives its AP SSID from.
func loadOrCreateHardwareID(store controller.Store) ([6]byte, error) {
	if err := store.CreateBucket(hardwareIDNamespace); err != nil {
		return [6]byte{}, err
	}
	raw, ok, err := store.GetBytes(hardwareIDNamespace, hardwareIDKey)
	if err != nil {
		return [6]byte{}, err
	}
	if ok && len(raw) == 6 {
		var id [6]byte
		copy(id[:], raw)
		return id, nil
	}
	var id [6]byte
	if _, err := rand.Read(id[:]); err != nil {
		return [6]byte{}, err
	}
	if err := store.PutBytes(hardwareIDNamespace, hardwareIDKey, id[:]); err != nil {
		return [6]byte{}, err
	}
	return id, nil
}
