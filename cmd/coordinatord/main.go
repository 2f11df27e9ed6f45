package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/fleetforge/coordinator/internal/api"
	"github.com/fleetforge/coordinator/internal/changefeed"
	"github.com/fleetforge/coordinator/internal/config"
	"github.com/fleetforge/coordinator/internal/dashboard"
	"github.com/fleetforge/coordinator/internal/dispatch"
	"github.com/fleetforge/coordinator/internal/eligibility"
	"github.com/fleetforge/coordinator/internal/health"
	"github.com/fleetforge/coordinator/internal/instance"
	"github.com/fleetforge/coordinator/internal/lock"
	"github.com/fleetforge/coordinator/internal/metrics"
	"github.com/fleetforge/coordinator/internal/natsbridge"
	"github.com/fleetforge/coordinator/internal/reaper"
	"github.com/fleetforge/coordinator/internal/store"
	"github.com/fleetforge/coordinator/internal/taskflow"
)

// Version is overwritten at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to coordinator config file")
	reapOnly := flag.Bool("reap-only", false, "Run a single reap sweep and exit, or install a cron schedule when reaper.schedule is set")
	status := flag.Bool("status", false, "Show status of the running instance")
	stop := flag.Bool("stop", false, "Stop the running instance gracefully")
	forceStop := flag.Bool("force-stop", false, "Force kill the running instance")
	flag.Parse()

	basePath, err := getBasePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to determine base path: %v\n", err)
		os.Exit(1)
	}
	if !filepath.IsAbs(*configPath) {
		*configPath = filepath.Join(basePath, *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Defaults()
		} else {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	}

	pidFilePath := filepath.Join(basePath, "data", "coordinatord.pid")

	if *status {
		showInstanceStatus(pidFilePath)
		return
	}
	if *stop || *forceStop {
		stopInstance(pidFilePath, *forceStop)
		return
	}

	if err := os.MkdirAll(filepath.Join(basePath, "data"), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		os.Exit(1)
	}

	if !filepath.IsAbs(cfg.Store.DBPath) {
		cfg.Store.DBPath = filepath.Join(basePath, cfg.Store.DBPath)
	}
	s, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if *reapOnly {
		runReapOnly(s, cfg)
		return
	}

	port := listenPort(cfg.HTTP.ListenAddr)
	instanceMgr := instance.NewManager(pidFilePath, port)
	if err := instanceMgr.AcquireLock(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to acquire instance lock: %v\n", err)
		os.Exit(1)
	}
	defer instanceMgr.ReleaseLock()

	metricsReg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(metricsReg)

	rp := reaper.New(s, cfg.Reaper.GetStaleThreshold(), cfg.Reaper.GetSweepInterval())
	rp.SetMetrics(metricsRegistry)

	el := eligibility.New(s, cfg.Dispatch.GetActiveAgentWindow())
	dp := dispatch.New(el, rp, dispatch.DefaultPollInterval)
	dp.SetMetrics(metricsRegistry)

	ar := lock.New(s)
	ar.SetMetrics(metricsRegistry)

	fl := taskflow.New(s, el)
	cf := changefeed.New(s)

	prober := health.New(s, cfg.Health.GetProbeInterval())
	prober.SetMetrics(metricsRegistry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go rp.Run(ctx)
	go prober.Run(ctx)

	router := mux.NewRouter()
	handler := api.New(s, el, fl, dp, ar, cf)
	handler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	httpServer := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: router}
	httpErr := make(chan error, 1)
	go func() { httpErr <- httpServer.ListenAndServe() }()
	fmt.Printf("coordinatord: HTTP API listening on %s\n", cfg.HTTP.ListenAddr)

	var dash *dashboard.Dashboard
	var dashServer *http.Server
	if cfg.Dashboard.Enabled {
		dashboard.AllowedOrigins = cfg.Dashboard.AllowedOrigins
		dash = dashboard.New(cf)
		dash.SetPollInterval(cfg.Dashboard.GetPollInterval())
		go dash.Run(ctx)

		dashRouter := mux.NewRouter()
		dashRouter.HandleFunc("/ws", dash.HandleWebSocket)
		dashServer = &http.Server{Addr: cfg.Dashboard.ListenAddr, Handler: dashRouter}
		go func() { httpErr <- dashServer.ListenAndServe() }()
		fmt.Printf("coordinatord: dashboard websocket listening on %s/ws\n", cfg.Dashboard.ListenAddr)
	}

	var embeddedNATS *natsbridge.EmbeddedServer
	natsURL := cfg.NATS.URL
	if cfg.NATS.Enabled {
		if natsURL == "" {
			embeddedNATS, err = natsbridge.NewEmbeddedServer(natsbridge.EmbeddedServerConfig{})
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to create embedded NATS server: %v\n", err)
				os.Exit(1)
			}
			if err := embeddedNATS.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to start embedded NATS server: %v\n", err)
				os.Exit(1)
			}
			natsURL = embeddedNATS.URL()
			defer embeddedNATS.Shutdown()
		}

		natsClient, err := natsbridge.NewClient(natsURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to NATS at %s: %v\n", natsURL, err)
			os.Exit(1)
		}
		defer natsClient.Close()

		bridge := natsbridge.New(natsClient, s, el, fl, dp, ar, cf)
		if err := bridge.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start NATS bridge: %v\n", err)
			os.Exit(1)
		}
		defer bridge.Stop()
		fmt.Printf("coordinatord: NATS bridge connected to %s\n", natsURL)
	}

	if err := instanceMgr.WritePIDFile(os.Getpid(), basePath, Version); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write PID file: %v\n", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-httpErr:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		}
	case sig := <-shutdown:
		fmt.Printf("coordinatord: shutting down (%s)\n", sig)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	if dashServer != nil {
		dashServer.Shutdown(shutdownCtx)
	}
	fmt.Println("coordinatord: stopped")
}

func runReapOnly(s store.Store, cfg *config.Config) {
	if cfg.Reaper.Schedule == "" {
		count, err := reaper.New(s, cfg.Reaper.GetStaleThreshold(), cfg.Reaper.GetSweepInterval()).Reap(time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "reap failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("reaped %d stale lock(s)\n", count)
		return
	}

	rp := reaper.New(s, cfg.Reaper.GetStaleThreshold(), cfg.Reaper.GetSweepInterval())
	c := cron.New()
	if _, err := c.AddFunc(cfg.Reaper.Schedule, func() {
		count, err := rp.Reap(time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "scheduled reap failed: %v\n", err)
			return
		}
		if count > 0 {
			fmt.Printf("scheduled reap reclaimed %d stale lock(s)\n", count)
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid reaper schedule %q: %v\n", cfg.Reaper.Schedule, err)
		os.Exit(1)
	}

	c.Start()
	defer c.Stop()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	fmt.Printf("reap-only: running schedule %q until interrupted\n", cfg.Reaper.Schedule)
	<-shutdown
}

func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

func getBasePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return os.Getwd()
	}
	dir := filepath.Dir(exe)
	if filepath.Base(dir) == "exe" || filepath.Base(filepath.Dir(dir)) == "go-build" {
		return os.Getwd()
	}
	if filepath.Base(dir) == "bin" {
		return filepath.Dir(dir), nil
	}
	return dir, nil
}

func showInstanceStatus(pidFilePath string) {
	data, err := instance.ReadPIDFile(pidFilePath)
	if err != nil {
		fmt.Println("no coordinatord instance is currently running")
		return
	}
	running := instance.IsProcessRunning(data.PID)
	fmt.Printf("instance:  %s\n", statusLabel(running))
	fmt.Printf("  pid:     %d\n", data.PID)
	fmt.Printf("  port:    %d\n", data.Port)
	fmt.Printf("  started: %s (%s ago)\n", data.StartedAt.Format(time.RFC3339), time.Since(data.StartedAt).Round(time.Second))
	fmt.Printf("  version: %s\n", data.Version)
}

func statusLabel(running bool) string {
	if running {
		return "RUNNING"
	}
	return "STALE (process not found)"
}

func stopInstance(pidFilePath string, force bool) {
	data, err := instance.ReadPIDFile(pidFilePath)
	if err != nil {
		fmt.Println("no coordinatord instance is currently running")
		return
	}
	if !instance.IsProcessRunning(data.PID) {
		fmt.Println("stale PID file; no process to stop")
		os.Remove(pidFilePath)
		return
	}

	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	proc, err := os.FindProcess(data.PID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to find process %d: %v\n", data.PID, err)
		os.Exit(1)
	}
	if err := proc.Signal(sig); err != nil {
		fmt.Fprintf(os.Stderr, "failed to signal process %d: %v\n", data.PID, err)
		os.Exit(1)
	}

	if instance.WaitForPortToBeAvailable(data.Port, 5*time.Second) {
		fmt.Println("instance stopped")
	} else {
		fmt.Println("warning: instance may still be shutting down")
	}
}
