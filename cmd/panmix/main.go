// Command panmix is the per-device volume and balance mixer daemon.
// Run with --mock to use a simulated audio system (no PulseAudio required).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/micro-nova/panmix/internal/api"
	"github.com/micro-nova/panmix/internal/auth"
	"github.com/micro-nova/panmix/internal/config"
	"github.com/micro-nova/panmix/internal/devices"
	"github.com/micro-nova/panmix/internal/dispatch"
	"github.com/micro-nova/panmix/internal/events"
	"github.com/micro-nova/panmix/internal/identity"
	"github.com/micro-nova/panmix/internal/logging"
	"github.com/micro-nova/panmix/internal/maintenance"
	"github.com/micro-nova/panmix/internal/metrics"
	"github.com/micro-nova/panmix/internal/osaudio"
	"github.com/micro-nova/panmix/internal/prefs"
	"github.com/micro-nova/panmix/internal/zeroconf"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("panmix exited", "err", err)
		cancel()
		os.Exit(1)
	}
}

// run starts the daemon and blocks until ctx is done. Every component it
// builds is closed before it returns, including on startup errors.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("panmix", flag.ContinueOnError)
	var (
		mock    = fs.Bool("mock", false, "use a simulated audio system (no PulseAudio required)")
		addr    = fs.String("addr", "127.0.0.1:8640", "HTTP listen address")
		cfgDir  = fs.String("config-dir", "", "config directory (default: ~/.config/panmix)")
		debug   = fs.Bool("debug", false, "enable debug logging")
		logFile = fs.String("log-file", "", "also write logs to this rotating file")
		mdns    = fs.Bool("mdns", false, "advertise the HTTP API over mDNS")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	// Configure logging
	logger, err := logging.Setup(logging.Options{Debug: *debug, LogFile: *logFile})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer logger.Close()

	// Resolve config directory
	if *cfgDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("determine home directory: %w", err)
		}
		*cfgDir = filepath.Join(home, ".config", "panmix")
	}
	if err := os.MkdirAll(*cfgDir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	behavior, err := config.LoadBehavior(*cfgDir)
	if err != nil {
		slog.Warn("invalid behaviour file, using defaults", "err", err)
	}

	// Auth service, before anything that must be flushed on exit
	authSvc, err := auth.NewService(*cfgDir)
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}
	defer authSvc.Close()

	// Audio backend
	var svc osaudio.Service
	if *mock {
		slog.Info("using simulated audio system")
		svc = osaudio.NewDemoSim()
	} else {
		pulse, err := osaudio.NewPulse()
		if err != nil {
			return fmt.Errorf("connect to PulseAudio: %w", err)
		}
		svc = pulse
	}
	defer svc.Close()

	m := metrics.New()
	bus := events.NewBus()
	disp := dispatch.New()
	defer disp.Stop()

	// Preferences
	store := config.NewJSONStore(*cfgDir)
	store.OnSave(m.Saved)
	prefSvc := prefs.NewService(store, devices.NewStateReader(svc), prefs.Options{
		AutoSaveDelay: behavior.AutoSaveDelay(),
	})
	defer prefSvc.Close()

	// Devices
	opts := devices.Options{
		VolumeDebounce: behavior.VolumeDebounce(),
		GracePeriod:    behavior.GracePeriod(),
		PanDebounce:    behavior.PanDebounce(),
		Metrics:        m,
	}
	tracker := prefs.NewTracker(nil)
	names := devices.NewNameCache(svc)
	filter := devices.NewFilter(prefSvc, names)
	monitor := devices.NewMonitor(svc, disp, filter, names, tracker, bus, opts)
	defer monitor.Close()
	ctrl := devices.NewEndpointController(monitor, behavior.MaxOSWritesPerSecond, m)
	editor := devices.NewEditor(prefSvc, tracker, ctrl, monitor)

	// External edits to the preferences file
	watcher, err := config.NewWatcher(store, func() {
		if flipped := prefSvc.Reload(); len(flipped) > 0 {
			slog.Info("preferences file changed externally", "hidden_changed", flipped)
			monitor.Refresh()
		}
	})
	if err != nil {
		slog.Warn("cannot watch preferences file", "err", err)
	} else {
		defer watcher.Close()
	}

	router := api.NewRouter(api.Deps{
		Monitor: monitor,
		Editor:  editor,
		Prefs:   prefSvc,
		Hidden:  filter,
		Events:  bus,
		Metrics: m,
		Auth:    authSvc.Middleware,
	})
	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout (needed for SSE)
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("panmix listening", "addr", *addr, "mock", *mock, "config", *cfgDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	backups := maintenance.New(store.Path(), filepath.Join(*cfgDir, "backups"), nil)
	g.Go(func() error {
		backups.Start(gctx)
		return nil
	})

	if *mdns {
		id := identity.Get()
		zc := zeroconf.New(id.Instance, listenPort(*addr), id.Version, !authSvc.IsOpenMode())
		g.Go(func() error {
			if err := zc.Start(gctx); err != nil {
				slog.Warn("zeroconf failed", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutCancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Warn("server shutdown error", "err", err)
		}
		return nil
	})

	err = g.Wait()

	// Deferred: monitor, preferences flush, dispatcher, backend.
	slog.Info("shutdown complete")
	return err
}

// listenPort extracts the port from a listen address, defaulting to 80.
func listenPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 80
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 80
	}
	return n
}
