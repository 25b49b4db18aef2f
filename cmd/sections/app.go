package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/lidar.sections/internal/config"
	"github.com/banshee-data/lidar.sections/internal/lidar/monitor"
	"github.com/banshee-data/lidar.sections/internal/lidar/network"
	"github.com/banshee-data/lidar.sections/internal/lidar/publish"
	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
	"github.com/banshee-data/lidar.sections/internal/lidar/serialdriver"
	"github.com/banshee-data/lidar.sections/internal/lidar/storage/sqlite"
	"github.com/banshee-data/lidar.sections/internal/lidar/supervisor"
	"github.com/banshee-data/lidar.sections/internal/monitoring"
)

// app holds the sinks and admin routes shared by every driver.
type app struct {
	cfg     *config.Config
	mux     *http.ServeMux
	monitor *monitor.Monitor
	sinks   []supervisor.Sink
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp opens the configured sinks for devices with maxDir units per turn.
func newApp(cfg *config.Config, maxDir uint16) (*app, error) {
	a := &app{cfg: cfg, mux: http.NewServeMux(), monitor: monitor.New(maxDir)}
	a.sinks = append(a.sinks, a.monitor)

	if path := cfg.GetSQLitePath(); path != "" {
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open section database: %w", err)
		}
		a.closers = append(a.closers, func() { db.Close() })
		rec := sqlite.NewRecorder(db)
		if err := rec.AttachAdminRoutes(a.mux); err != nil {
			a.close()
			return nil, err
		}
		a.sinks = append(a.sinks, rec)
		monitoring.Opsf("recording sections to %s", path)
	}

	if broker := cfg.GetMQTTBroker(); broker != "" {
		client, err := publish.Connect(broker, cfg.GetMQTTClientID(), 10*time.Second)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { client.Disconnect(250) })
		a.sinks = append(a.sinks, publish.New(client, cfg.GetMQTTTopic(), 0, time.Second))
	}
	return a, nil
}

// run builds the model for the configured driver and supervises it until
// ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	switch cfg.GetDriver() {
	case config.DriverUDP:
		model := network.Model{
			Addrs:  cfg.UDPAddrs,
			RcvBuf: cfg.GetUDPRcvBuf(),
		}
		if addr := cfg.GetForwardAddr(); addr != "" {
			fwd, err := network.NewPacketForwarder(addr, time.Minute)
			if err != nil {
				return err
			}
			defer fwd.Close()
			fwd.Start(ctx)
			model.Forwarder = fwd
		}
		return supervise[*network.Driver](ctx, cfg, model)
	case config.DriverPCAP:
		model := network.ReplayModel{Files: cfg.PCAPFiles, UDPPort: cfg.GetPCAPUDPPort()}
		return supervise[*network.ReplayDriver](ctx, cfg, model)
	default:
		model := serialdriver.Model{Options: cfg.GetSerialOptions()}
		if ports := cfg.SerialPorts; len(ports) > 0 {
			model.Enumerate = func() ([]string, error) { return ports, nil }
		}
		return supervise[*serialdriver.Driver](ctx, cfg, model)
	}
}

func supervise[D sections.Driver](ctx context.Context, cfg *config.Config, model sections.Model[D]) error {
	a, err := newApp(cfg, model.MaxDir())
	if err != nil {
		return err
	}
	defer a.close()

	sup := supervisor.New(model, a.sinks,
		supervisor.WithBackoff(cfg.GetReopenBackoff()),
		supervisor.WithMaxOpens(cfg.GetMaxOpens()),
	)
	sup.SetFilter(cfg.Filter())
	a.monitor.AttachRoutes(a.mux, func() any { return sup.Status() })
	a.monitor.Stats().Start(ctx, cfg.GetStatsInterval())

	g, ctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(ctx)
	g.Go(func() error {
		defer cancelRun()
		return sup.Run(runCtx)
	})
	g.Go(func() error {
		return serveAdmin(runCtx, cfg.GetAdminListen(), a.mux)
	})
	return g.Wait()
}
