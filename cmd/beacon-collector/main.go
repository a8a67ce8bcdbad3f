package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mkohara/beacon/internal/collector"
	"github.com/mkohara/beacon/pkg/logging"
)

func main() {
	cfg := collector.ParseCfg()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	c, err := collector.New(cfg)
	if err != nil {
		slog.Error("collector startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer c.Close()

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: c.Handler(),
	}

	if cfg.Advertise {
		ad, err := logging.Advertise(cfg.Instance, portFromAddr(cfg.Addr))
		if err != nil {
			slog.Warn("mDNS advertisement failed", slog.String("error", err.Error()))
		} else {
			defer ad.Close()
			slog.Info("advertising collector", slog.String("instance", cfg.Instance), slog.String("type", logging.ServiceType))
		}
	}

	go func() {
		slog.Info("collector listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", slog.String("error", err.Error()))
	}
}

// portFromAddr extracts the port from a listen address for the mDNS
// registration, defaulting to the standard collector port.
func portFromAddr(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 9400
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 9400
	}
	return port
}
