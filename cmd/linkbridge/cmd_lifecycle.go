package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
)

var errNoDaemon = errors.New("no running daemon")

var stopWait time.Duration

func init() {
	stopCmd.Flags().DurationVar(&stopWait, "wait", 10*time.Second, "wait for the checkpoint flush and exit (0 to return at once)")
	rootCmd.AddCommand(stopCmd, restartCmd, statusCmd)
}

// daemon is a live `linkbridge serve` process found through its PID file.
type daemon struct {
	pid  int
	proc *os.Process
}

// findDaemon reads the PID file at path. A file left behind by a crashed
// daemon reports errNoDaemon.
func findDaemon(path string) (*daemon, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNoDaemon
	}
	if err != nil {
		return nil, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return nil, fmt.Errorf("corrupt PID file %s", path)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", pid, err)
	}
	d := &daemon{pid: pid, proc: proc}
	if !d.alive() {
		return nil, fmt.Errorf("%w (stale PID %d)", errNoDaemon, pid)
	}
	return d, nil
}

func daemonPIDPath() string {
	return filepath.Join(loadConfig().DataDir, pidFileName)
}

func (d *daemon) alive() bool {
	return d.proc.Signal(syscall.Signal(0)) == nil
}

func (d *daemon) signal(sig syscall.Signal) error {
	if err := d.proc.Signal(sig); err != nil {
		return fmt.Errorf("send %v to %d: %w", sig, d.pid, err)
	}
	return nil
}

// waitExit polls until the process is gone or ctx ends.
func (d *daemon) waitExit(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0
	return backoff.Retry(func() error {
		if d.alive() {
			return fmt.Errorf("daemon %d still running", d.pid)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := findDaemon(daemonPIDPath())
		if err != nil {
			return err
		}
		if err := d.signal(syscall.SIGTERM); err != nil {
			return err
		}
		if stopWait <= 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to daemon (PID %d).\n", d.pid)
			return nil
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), stopWait)
		defer cancel()
		if err := d.waitExit(ctx); err != nil {
			return fmt.Errorf("daemon %d did not exit within %s", d.pid, stopWait)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon (PID %d) stopped.\n", d.pid)
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Flush the checkpoint and re-exec the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := findDaemon(daemonPIDPath())
		if err != nil {
			return err
		}
		if err := d.signal(syscall.SIGHUP); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGHUP to daemon (PID %d) for restart.\n", d.pid)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon runs and, with the HTTP surface on, its bridge state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		out := cmd.OutOrStdout()
		d, err := findDaemon(filepath.Join(cfg.DataDir, pidFileName))
		if errors.Is(err, errNoDaemon) {
			fmt.Fprintln(out, "not running")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "running (PID %d)\n", d.pid)
		if !cfg.HTTP.Enabled {
			return nil
		}
		return printState(cmd.Context(), out, "http://"+cfg.HTTP.Listen+"/api/state")
	},
}

func printState(ctx context.Context, out io.Writer, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("query bridge state: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query bridge state: %s", resp.Status)
	}
	_, err = io.Copy(out, resp.Body)
	return err
}
