// Command fileshare-server exposes a shared directory over the file
// exchange protocol until it receives SIGINT or SIGTERM.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fileshare/config"
	"github.com/opd-ai/fileshare/server"
)

// shutdownGrace bounds how long outstanding sessions may finish their
// current command after a termination signal.
const shutdownGrace = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	dir := flag.String("dir", "", "shared directory (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dir != "" {
		cfg.Server.SharedDir = *dir
	}

	level, _ := logrus.ParseLevel(cfg.Logging.Level)
	logrus.SetLevel(level)
	if cfg.Logging.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	srv, err := server.New(server.Options{
		Addr:        cfg.Server.Addr,
		Dir:         cfg.Server.SharedDir,
		MaxSessions: cfg.Server.MaxSessions,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create server")
	}

	if err := srv.Start(); err != nil {
		logrus.WithError(err).Fatal("Failed to start server")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	logrus.WithField("signal", received.String()).Info("Shutdown signal received")
	if err := srv.Shutdown(shutdownGrace); err != nil {
		logrus.WithError(err).Warn("Shutdown was not fully graceful")
		os.Exit(1)
	}
}
