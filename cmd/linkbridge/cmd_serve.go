package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/linkbridge/internal/bridge"
	"github.com/user/linkbridge/internal/config"
	"github.com/user/linkbridge/internal/effects"
	"github.com/user/linkbridge/internal/room"
	"github.com/user/linkbridge/internal/scheduler"
	"github.com/user/linkbridge/internal/session"
	"github.com/user/linkbridge/internal/translate"
	"github.com/user/linkbridge/internal/types"
	"github.com/user/linkbridge/internal/webhook"
)

var (
	namesPath   string
	catalogPath string
)

func init() {
	serveCmd.Flags().StringVar(&namesPath, "names", "", "TOML name translation tables (default: built in)")
	serveCmd.Flags().StringVar(&catalogPath, "catalog", "", "TOML effect catalog (default: built in)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

const pidFileName = "linkbridge.pid"

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, pidFileName)
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func loadNames(path string) (*translate.Translator, error) {
	if path == "" {
		return translate.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read name tables: %w", err)
	}
	return translate.Parse(data)
}

func loadCatalog(path string) (*effects.Catalog, error) {
	if path == "" {
		return effects.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read effect catalog: %w", err)
	}
	return effects.ParseCatalog(data)
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func coreOptions(cfg *config.Config) bridge.Options {
	return bridge.Options{
		DataDir:      cfg.DataDir,
		Endpoint:     types.NewEndpointKey(cfg.Server.Host, cfg.Server.Port),
		PollInterval: millis(cfg.Timing.PollMs),
		TrapCooldown: millis(cfg.Timing.TrapCooldownMs),
		PoolKey:      cfg.Pool.Key,
		DeathEffect:  cfg.Links.DeathEffect,
		RingStatus:   cfg.Links.RingStatus,
		DeathLink:    cfg.Links.DeathLink,
		TrapLink:     cfg.Links.TrapLink,
		RingLink:     cfg.Links.RingLink,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	names, err := loadNames(namesPath)
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}

	// The game talks to us over the local HTTP surface, so the feed is both
	// the applier and the character view.
	feed := webhook.NewFeed(0)
	core := bridge.New(coreOptions(cfg), feed, feed, names, catalog)
	runner := bridge.NewRunner(core, bridge.RunnerOptions{
		Tick: millis(cfg.Timing.TickMs),
		Session: session.Options{
			URL:      cfg.SessionURL(),
			Slot:     cfg.Server.Slot,
			Password: cfg.Server.Password,
			Game:     cfg.Server.Game,
		},
		Room: room.Options{
			URL:  cfg.Room.URL,
			Room: cfg.Room.Room,
			Peer: types.PeerID(cfg.Room.PeerID),
		},
	})
	ctl := bridge.NewControl(runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runner.Run(gctx)
	})

	sched := scheduler.New(scheduler.Job{
		Name:     "housekeeping",
		Schedule: cfg.Housekeeping.Schedule,
		Run:      ctl.Housekeep,
	})
	sched.Start(gctx)
	defer sched.Stop()

	if cfg.HTTP.Enabled {
		httpServer := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           webhook.NewServer(ctl, feed),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("webhook server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("webhook server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return httpServer.Close()
		})
	} else {
		slog.Warn("webhook server disabled, game hooks cannot reach the bridge")
	}

	slog.Info("linkbridge started",
		"data_dir", cfg.DataDir,
		"endpoint", cfg.Endpoint(),
		"slot", cfg.Server.Slot,
		"room", cfg.Room.Room,
		"room_url", cfg.Room.URL,
		"peer", string(runner.PeerID()),
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-gctx.Done():
			cancel()
			return g.Wait()
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				if err := reexec(ctl, cfg.DataDir, pidPath); err != nil {
					slog.Error("restart failed", "error", err)
				}
				continue
			}
			slog.Info("shutting down", "signal", sig)
			cancel()
			return g.Wait()
		}
	}
}

// reexec flushes the checkpoint and replaces the process image. It only
// returns on failure.
func reexec(ctl bridge.Control, dataDir, pidPath string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := ctl.Housekeep(flushCtx); err != nil {
		slog.Warn("checkpoint flush before restart failed", "error", err)
	}
	cancel()

	os.Remove(pidPath)
	if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
		if _, writeErr := writePIDFile(dataDir); writeErr != nil {
			slog.Error("failed to re-write PID file", "error", writeErr)
		}
		return fmt.Errorf("re-exec: %w", err)
	}
	return nil
}
