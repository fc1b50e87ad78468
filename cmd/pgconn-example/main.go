// Command pgconn-example connects to a PostgreSQL server using pgconn,
// runs a trivial query to prove the connection is live, and serves
// Prometheus metrics plus a /debug/conn snapshot until interrupted.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hexdbio/pgconn"
	pgconfig "github.com/hexdbio/pgconn/config"
	"github.com/hexdbio/pgconn/debugserver"
	"github.com/hexdbio/pgconn/keepalive"
	"github.com/hexdbio/pgconn/metrics"
)

func main() {
	profilePath := flag.String("profiles", "", "path to a YAML connection-profiles file (optional)")
	profileName := flag.String("profile", "", "profile name to load from -profiles (optional)")
	debugAddr := flag.String("debug-bind", "127.0.0.1", "bind address for the debug/metrics HTTP server")
	debugPort := flag.Int("debug-port", 9090, "port for the debug/metrics HTTP server")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := loadConfig(*profilePath, *profileName)
	if err != nil {
		log.Error("failed to build connection config", "error", err)
		os.Exit(1)
	}

	params, err := cfg.Params()
	if err != nil {
		log.Error("failed to translate config", "error", err)
		os.Exit(1)
	}
	params.Logger = log

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	client, err := pgconn.Connect(ctx, params)
	cancel()
	if err != nil {
		log.Error("connect failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected", "hosts", params.Hosts)

	met := metrics.New()
	met.ConnectionOpened(params.Hosts[0])

	checker := keepalive.NewChecker(client, params.Hosts[0], 30*time.Second, 3, 5*time.Second, met, log)
	checker.Start()

	dbg := debugserver.New(client, met, log)
	if err := dbg.Start(*debugAddr, *debugPort); err != nil {
		log.Error("debug server failed to start", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", "signal", sig.String())

	checker.Stop()
	_ = dbg.Stop()
	client.Close()
	<-client.Done()
	met.ConnectionClosed(params.Hosts[0], "clean")

	log.Info("pgconn-example stopped")
}

func loadConfig(profilePath, profileName string) (pgconfig.Config, error) {
	if profilePath == "" {
		return pgconfig.FromEnv(pgconfig.Config{}), nil
	}

	profiles, err := pgconfig.LoadProfiles(profilePath)
	if err != nil {
		return pgconfig.Config{}, err
	}
	if profileName == "" {
		for name := range profiles {
			profileName = name
			break
		}
	}
	c, ok := profiles[profileName]
	if !ok {
		return pgconfig.FromEnv(pgconfig.Config{}), nil
	}
	return pgconfig.FromEnv(c), nil
}
