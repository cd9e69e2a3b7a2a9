package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"pcm-emulator/pcm"

	"github.com/go-redis/redis/v8"
)

// App owns the process-level wiring: config to components, component
// lifetimes, shutdown order. All vehicle behavior lives in the pcm package.
type App struct {
	log *LeveledLogger

	redis     *redis.Client
	telemetry *Telemetry
	uibridge  *UIBridge

	transport *pcm.SocketCANTransport
	watchdog  pcm.Watchdog
	sched     *pcm.Scheduler

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

func NewApp(cfg Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		log: NewLeveledLogger(
			log.New(os.Stderr, fmt.Sprintf("%s: ", ProjectName), log.LstdFlags),
			LogLevel(cfg.LogLevel)),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}

	profileType, err := pcm.ParseProfileType(cfg.VehicleType)
	if err != nil {
		cancel()
		return nil, err
	}
	app.log.Info("Selected vehicle profile: %s", profileType)

	// Hardware watchdog first: if the loop never starts, the board resets
	// rather than sitting silent with the cluster dark.
	app.watchdog = pcm.NopWatchdog{}
	if cfg.Safety.WatchdogDevice != "" {
		wd, err := pcm.OpenFileWatchdog(cfg.Safety.WatchdogDevice)
		if err != nil {
			cancel()
			return nil, err
		}
		app.watchdog = wd
		app.log.Info("Hardware watchdog armed on %s", cfg.Safety.WatchdogDevice)
	}

	app.transport, err = pcm.NewSocketCANTransport(cfg.CANDevice, app.log)
	if err != nil {
		app.watchdog.Close()
		cancel()
		return nil, err
	}
	app.log.Info("CAN transport up on %s", cfg.CANDevice)

	absCfg := pcm.ABSConfig{
		Variant:          cfg.ABS.Variant,
		TransmissionByte: cfg.ABS.Transmission,
		WheelSizeByte:    cfg.ABS.WheelSize,
		Electric:         profileType == pcm.ProfileElectric,
		DynamicDSC:       cfg.ABS.DynamicDSC,
	}

	throttle := &ThrottleInput{}
	faults := pcm.NewFaultStore(app.log)

	profile := pcm.NewVehicleProfile(profileType, pcm.ProfileConfig{
		TargetTempTenths:  cfg.Combustion.TargetTempTenths,
		InitialTempTenths: cfg.Combustion.InitialTempTenths,
		IdleTimeoutCycles: cfg.Electric.IdleTimeoutCycles,
	}, app.log)

	safety := pcm.NewSafetySupervisor(pcm.SafetyConfig{
		CANTimeout:      cfg.CANTimeout(),
		TimeoutFailsafe: cfg.Safety.TimeoutFailsafe,
	}, app.watchdog, app.log, time.Now())

	app.sched = pcm.NewScheduler(
		pcm.SchedulerConfig{
			CyclePeriod: cfg.TickPeriod(),
			Throttle:    throttle,
		},
		app.transport,
		pcm.NewImmobilizer(cfg.RelockTimeout(), app.log),
		pcm.NewWheelSpeedProcessor(app.log),
		profile,
		pcm.NewABSEmulator(absCfg, app.log),
		safety,
		faults,
		pcm.NewOBDServer(faults, app.log),
		app.log,
	)

	if cfg.Redis.Enabled {
		if err := app.connectRedis(cfg, throttle, faults); err != nil {
			app.transport.Close()
			app.watchdog.Close()
			cancel()
			return nil, err
		}
	}

	go func() {
		defer close(app.loopDone)
		app.sched.Run(app.ctx)
	}()

	if cfg.UIBridge.Enabled {
		app.uibridge, err = NewUIBridge(cfg.UIBridge.Port, cfg.UIBridge.Baud,
			cfg.UIPushPeriod(), app.sched, app.log)
		if err != nil {
			app.Destroy()
			return nil, err
		}
	}

	return app, nil
}

func (app *App) connectRedis(cfg Config, throttle *ThrottleInput, faults *pcm.FaultStore) error {
	app.redis = redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	connectCtx, connectCancel := context.WithTimeout(app.ctx, 5*time.Second)
	defer connectCancel()

	app.log.Info("Connecting to Redis at %s...", cfg.Redis.Addr)
	if err := app.redis.Ping(connectCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %v", err)
	}

	app.telemetry = NewTelemetry(app.log, app.redis, app.sched, throttle)
	faults.SetListener(app.telemetry.FaultChanged)
	app.log.Info("Telemetry component initialized")

	go app.redisHealthCheck()
	return nil
}

func (app *App) redisHealthCheck() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(app.ctx, 2*time.Second)
			if err := app.redis.Ping(ctx).Err(); err != nil {
				app.log.Warn("Redis health check failed: %v", err)
			}
			cancel()
		}
	}
}

func (app *App) Destroy() {
	app.log.Info("Shutting down...")

	if app.cancel != nil {
		app.cancel()
	}
	if app.loopDone != nil {
		<-app.loopDone
	}

	if app.uibridge != nil {
		app.uibridge.Destroy()
		app.log.Info("UI bridge shutdown complete")
	}

	if app.telemetry != nil {
		app.telemetry.Destroy()
		app.log.Info("Telemetry shutdown complete")
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.log.Warn("Error closing Redis connection: %v", err)
		}
	}

	if app.transport != nil {
		if err := app.transport.Close(); err != nil {
			app.log.Warn("Error closing CAN transport: %v", err)
		}
	}

	if app.watchdog != nil {
		if err := app.watchdog.Close(); err != nil {
			app.log.Warn("Error closing watchdog: %v", err)
		}
	}

	app.log.Info("Shutdown complete")
}
