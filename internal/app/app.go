package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"depthview/internal/capture"
	"depthview/internal/config"
	"depthview/internal/driver"
	"depthview/internal/eventbus"
	"depthview/internal/recorder"
	"depthview/internal/runtime/supervisor"
	"depthview/internal/storage"
	"depthview/internal/task/scheduler"
	logx "depthview/pkg/logx"
	"depthview/pkg/systemd"
)

// App wires the capture source, the display schedule and the driver loop.
//
// The display action runs on the scheduler's own supervisor so a halted
// display schedule leaves the driver loop running. Everything else runs on
// the app supervisor, where the first error stops the app.
type App struct {
	cfgm *config.ConfigManager
	rt   config.Runtime

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	sup      *supervisor.Supervisor
	schedSup *supervisor.Supervisor
	sched    *scheduler.Service

	capture *capture.Synthetic
	sink    sinkHandle
	driver  *driver.Loop

	store storage.Store
	rec   *recorder.Recorder

	notify *systemd.Notifier
	wd     *watchdog
}

const (
	captureRestartMin  = 250 * time.Millisecond
	captureRestartMax  = 5 * time.Second
	captureMaxRestarts = 5
)

type Option func(*options)

type options struct {
	out io.Writer
}

// WithOutput redirects the driver lines (default stdout).
func WithOutput(w io.Writer) Option { return func(o *options) { o.out = w } }

// New loads the config at cfgPath (defaults when missing) and builds every
// component. Nothing runs until Start.
func New(cfgPath string, opts ...Option) (*App, error) {
	o := options{out: os.Stdout}
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	rt, err := validateConfig(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg.Logging))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	appLog := log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	src, err := capture.NewSynthetic(mapCaptureConfig(rt), capture.WithLogger(log.With(logx.String("comp", "capture"))))
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	var a *App
	sink, err := newSink(rt, appLog, func() any { return a.Diagnostics() })
	if err != nil {
		return nil, err
	}

	loop, err := driver.New(src,
		driver.WithTick(rt.DriverTick),
		driver.WithWriter(o.out),
		driver.WithBus(bus),
		driver.WithLogger(log.With(logx.String("comp", "driver"))),
	)
	if err != nil {
		return nil, err
	}

	a = &App{
		cfgm:    cfgm,
		rt:      rt,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		capture: src,
		sink:    sink,
		driver:  loop,
		notify:  systemd.New(rt.SystemdNotify),
	}
	a.wd = &watchdog{notify: a.notify, loop: loop}

	// Storage (optional)
	if sc, enabled := mapStorageConfig(rt); enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = sink.sink.Close()
			return nil, err
		}
		rec, err := recorder.New(bus, st, log.With(logx.String("comp", "recorder")))
		if err != nil {
			_ = st.Close()
			_ = sink.sink.Close()
			return nil, err
		}
		a.store, a.rec = st, rec
		appLog.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("session", rec.Session()))
	}
	return a, nil
}

// Done is closed when the app supervisor context is cancelled (fatal error
// or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Scheduler exposes the schedule registry for diagnostics.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Diagnostics is a point-in-time view of the running app, served on
// GET /status by the web sink.
type Diagnostics struct {
	Capture    capture.Metadata    `json:"capture"`
	DriverTick time.Duration       `json:"driver_tick"`
	Ticks      uint64              `json:"ticks"`
	Supervisor supervisor.Snapshot `json:"supervisor"`
	Scheduler  scheduler.Snapshot  `json:"scheduler"`
}

func (a *App) Diagnostics() Diagnostics {
	d := Diagnostics{
		Capture:    a.capture.Metadata(),
		DriverTick: a.driver.Tick(),
		Ticks:      a.driver.Ticks(),
		Supervisor: a.sup.Snapshot(),
	}
	if a.sched != nil {
		d.Scheduler = a.sched.Snapshot()
	}
	return d
}

// Start launches the background work and returns. The driver loop is not
// started here; the caller runs it with Run.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	schedLog := a.log.With(logx.String("comp", "scheduler"))
	a.schedSup = supervisor.New(a.sup.Context(), supervisor.WithLogger(schedLog))
	a.sched = scheduler.New(scheduler.Config{Timezone: a.rt.Timezone}, a.schedSup, schedLog, a.bus)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := validateConfig(cfg)
		return err
	})

	// A failing source is restarted like a reconnecting device; after too
	// many attempts the app gives up.
	a.sup.GoRestart("capture", a.capture.Run,
		supervisor.WithRestartBackoff(captureRestartMin, captureRestartMax),
		supervisor.WithMaxRestarts(captureMaxRestarts),
	)
	if a.sink.serve != nil {
		a.sup.Go("display."+a.sink.kind, a.sink.serve)
	}
	if a.rec != nil {
		a.sup.Go("recorder", a.rec.Run)
	}

	if err := a.registerDisplay(a.rt); err != nil {
		return err
	}
	if err := a.registerWatchdog(a.rt); err != nil {
		a.log.Warn("watchdog not scheduled", logx.Err(err))
	}
	a.sched.Start(a.sup.Context())

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if sent, err := a.notify.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started",
		logx.String("sink", a.sink.kind),
		logx.Duration("display_interval", a.rt.DisplayInterval),
		logx.Duration("driver_tick", a.rt.DriverTick),
	)
	return nil
}

// Run drives the metadata loop on the calling goroutine until ctx is done or
// the app supervisor stops.
func (a *App) Run(ctx context.Context) error {
	if a.sup == nil {
		return fmt.Errorf("app: Run before Start")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(a.sup.Context(), cancel)
	defer stop()
	return a.driver.Run(ctx)
}

// ShutdownTimeout is the bound for Stop from the current config.
func (a *App) ShutdownTimeout() time.Duration {
	if cfg := a.cfgm.Get(); cfg != nil {
		if rt, err := cfg.Resolve(); err == nil {
			return rt.ShutdownTimeout
		}
	}
	return config.DefaultShutdownTimeout
}

// Stop shuts everything down in order, giving up on any step that outlives
// ctx. It never waits longer than ctx allows.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := a.notify.Stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	// Cancel first so loops start unwinding while we step through.
	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, a.sched.Stop)
	a.step(ctx, "scheduler.supervisor", time.Second, a.schedSup.Stop)
	a.step(ctx, "display.sink", time.Second, func(context.Context) error { return a.sink.sink.Close() })
	// Waiting here lets the recorder drain before its store closes.
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max and by ctx's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		// fn must honor stepCtx; if it does not, it is left behind.
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
