package main

import (
	"context"
	"flag"
	"github.com/jd3nn1s/seanboard"
	"github.com/jd3nn1s/seanboard/canbus"
	"github.com/jd3nn1s/seanboard/config"
	"github.com/jd3nn1s/seanboard/dashboard"
	"github.com/jd3nn1s/seanboard/discovery"
	"github.com/jd3nn1s/seanboard/forwarder"
	"github.com/jd3nn1s/seanboard/hub"
	"github.com/jd3nn1s/seanboard/metrics"
	"github.com/jd3nn1s/seanboard/rediscache"
	log "github.com/sirupsen/logrus"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

var configFile = flag.String("config", "", "path to TOML configuration")
var address = flag.String("address", "", "robot address, host or host:port")
var testMode = flag.Bool("testmode", false, "generate test data instead of connecting to the robot")
var printTelemetry = flag.Bool("print-telemetry", false, "print telemetry to stdout")
var tui = flag.Bool("tui", false, "show the terminal dashboard")
var logFile = flag.String("log-file", "", "write logs to this file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("unable to load configuration: ", err)
	}
	if *address != "" {
		cfg.Address = *address
	}
	log.SetLevel(cfg.Level())
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatal("unable to open log file: ", err)
		}
		defer f.Close()
		log.SetOutput(f)
	} else if *tui {
		// the dashboard owns the terminal
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target := seanboard.NewTargetAddress(cfg.Address)

	var store seanboard.Store = seanboard.NewNetworkTablesStore()
	if *testMode {
		log.Info("test mode, generating telemetry")
		store = seanboard.NewSimStore()
	}

	obs := metrics.NewPromObserver(nil)
	var sinks []seanboard.SnapshotSink
	var closers []func()

	if *printTelemetry {
		sinks = append(sinks, seanboard.NewLogSink("stdout"))
	}

	if cfg.HTTP.Enabled {
		h := hub.New(target.Set)
		sinks = append(sinks, h)

		mux := http.NewServeMux()
		mux.Handle("/ws", h)
		mux.Handle("/metrics", metrics.Handler(nil))
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.WithField("addr", cfg.HTTP.Addr).Info("serving websocket and metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithField("err", err).Error("http server failed")
			}
		}()
		closers = append(closers, func() {
			_ = h.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})

		if cfg.HTTP.Advertise {
			adv := discovery.NewAdvertiser("", httpPort(cfg.HTTP.Addr), "/ws")
			if err := adv.Start(); err != nil {
				log.WithField("err", err).Warn("unable to advertise service")
			} else {
				closers = append(closers, adv.Stop)
			}
		}
	}

	if cfg.UDP.Enabled {
		fwder, err := forwarder.NewUDPForwarder(cfg.UDPForwarder())
		if err != nil {
			log.Fatal("unable to load UDP forwarder: ", err)
		}
		go fwder.Start(ctx)
		sinks = append(sinks, fwder)
		closers = append(closers, func() {
			_ = fwder.Close()
		})
	}

	if cfg.CANBus.Enabled {
		link := canbus.NewLink(cfg.CANBus.Interface)
		go func() {
			if err := seanboard.Retry(ctx, link); err != nil && err != context.Canceled {
				log.WithField("err", err).Error("can bus stopped")
			}
		}()
		sinks = append(sinks, link)
		closers = append(closers, func() {
			_ = link.Close()
		})
	}

	if cfg.Redis.Enabled {
		cache, err := rediscache.New(ctx, cfg.RedisCache())
		if err != nil {
			log.Fatal("unable to connect to redis: ", err)
		}
		sinks = append(sinks, cache)
		closers = append(closers, func() {
			_ = cache.Close()
		})
	}

	var dash *dashboard.Dashboard
	if *tui {
		dash = dashboard.New(target)
		sinks = append(sinks, dash)
	}

	if len(sinks) == 0 {
		log.Fatal("no telemetry sinks enabled, use -print-telemetry, -tui or enable one in the configuration")
	}

	// the bridge stops once every sink has detached
	bridge := seanboard.NewBridge(store, target, seanboard.NewFanout(obs, sinks...),
		seanboard.WithPolicy(cfg.Policy()),
		seanboard.WithIdentity(cfg.Identity),
		seanboard.WithObserver(obs))
	if err := bridge.Start(ctx); err != nil {
		log.Fatal("unable to start bridge: ", err)
	}

	if dash != nil {
		go func() {
			<-ctx.Done()
			dash.Stop()
		}()
		if err := dash.Run(); err != nil {
			log.WithField("err", err).Error("dashboard failed")
		}
		stop()
	} else {
		select {
		case <-ctx.Done():
		case <-bridge.Done():
		}
	}

	log.Info("shutting down")
	bridge.Stop()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func httpPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(portStr)
	return port
}
