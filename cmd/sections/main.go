// Command sections reads a rotating range sensor, splits each revolution
// into fixed angular sectors and hands the completed sections to the
// configured sinks: a SQLite recorder, an MQTT publisher and the live
// monitor on the admin HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/lidar.sections/internal/config"
	"github.com/banshee-data/lidar.sections/internal/lidar/serialdriver"
	"github.com/banshee-data/lidar.sections/internal/monitoring"
	"github.com/banshee-data/lidar.sections/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to the JSON config file (default: "+config.DefaultConfigPath+" if present)")
	driver      = flag.String("driver", "", "Device driver: serial, udp or pcap (overrides config)")
	listen      = flag.String("listen", "", "Admin HTTP listen address (overrides config)")
	dbFile      = flag.String("db", "", "Path to the SQLite database file (overrides config)")
	mqttBroker  = flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883 (overrides config)")
	diagLog     = flag.Bool("diag", false, "Log per-run diagnostics to stderr")
	traceLog    = flag.String("trace-log", "", "Write per-section trace lines to this file")
	listPorts   = flag.Bool("list-ports", false, "List serial ports and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listPorts {
		ports, err := serialdriver.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	closeLogs, err := setupLogging(*diagLog, *traceLog)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer closeLogs()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg, *driver, *listen, *dbFile, *mqttBroker)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitoring.Opsf("sections %s starting with %s driver", version.String(), cfg.GetDriver())
	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("sections: %v", err)
	}
	monitoring.Opsf("graceful shutdown complete")
}

// loadConfig reads path, or the default config file when path is empty and
// the file exists. With neither, every setting takes its default.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return &config.Config{}, nil
		}
		path = config.DefaultConfigPath
	}
	return config.Load(path)
}

// applyFlags lets non-empty command line values override the file.
func applyFlags(cfg *config.Config, driver, listen, dbFile, mqttBroker string) {
	if driver != "" {
		cfg.Driver = &driver
	}
	if listen != "" {
		cfg.AdminListen = &listen
	}
	if dbFile != "" {
		cfg.SQLitePath = &dbFile
	}
	if mqttBroker != "" {
		cfg.MQTTBroker = &mqttBroker
	}
}

func setupLogging(diag bool, tracePath string) (func(), error) {
	w := monitoring.LogWriters{Ops: os.Stderr}
	if diag {
		w.Diag = os.Stderr
	}
	closeFn := func() {}
	if tracePath != "" {
		f, err := os.OpenFile(tracePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace log: %w", err)
		}
		w.Trace = f
		closeFn = func() { _ = f.Close() }
	}
	monitoring.SetLogWriters(w)
	return closeFn, nil
}

// serveAdmin runs the admin server until ctx is done.
func serveAdmin(ctx context.Context, addr string, mux *http.ServeMux) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		monitoring.Opsf("admin server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Opsf("admin server shutdown error: %v", err)
	}
	return nil
}
