package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"storydub/internal/apiclient"
)

const pollInterval = 200 * time.Millisecond

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	Bind       string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// Launch starts a detached storydub serve process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"serve"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if bind := strings.TrimSpace(opts.Bind); bind != "" {
		args = append(args, "--bind", bind)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForReady polls the status endpoint until the daemon answers.
func WaitForReady(ctx context.Context, client *apiclient.Client, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		status, err := client.Status(ctx)
		if err == nil && status.Running {
			return status.PID, nil
		}
		if err == nil {
			err = errors.New("daemon not running yet")
		}
		lastErr = err
		if sleepErr := sleep(ctx, pollInterval); sleepErr != nil {
			return 0, sleepErr
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return 0, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers at the
// client's address.
func EnsureStarted(ctx context.Context, client *apiclient.Client, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if running, pid, err := ProcessInfo(ctx, client); err == nil && running {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	pid, err := WaitForReady(ctx, client, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, Launched: true, PID: pid}, nil
}

// Stop asks the daemon process to terminate and waits for its API to go
// away. It reports false when no daemon was running.
func Stop(ctx context.Context, client *apiclient.Client, timeout time.Duration) (bool, error) {
	running, pid, err := ProcessInfo(ctx, client)
	if err != nil {
		return false, err
	}
	if !running {
		return false, nil
	}
	if pid <= 0 {
		return true, errors.New("daemon did not report a pid")
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return true, fmt.Errorf("signal daemon %d: %w", pid, err)
	}
	return true, WaitForShutdown(ctx, client, timeout)
}

// WaitForShutdown waits for the daemon API to stop answering.
func WaitForShutdown(ctx context.Context, client *apiclient.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		running, _, err := ProcessInfo(ctx, client)
		if err == nil && !running {
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("daemon still running")
		}
		if sleepErr := sleep(ctx, pollInterval); sleepErr != nil {
			return sleepErr
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for shutdown")
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// ProcessInfo returns whether the daemon API is reachable and the daemon
// PID when available.
func ProcessInfo(ctx context.Context, client *apiclient.Client) (bool, int, error) {
	status, err := client.Status(ctx)
	if err != nil {
		if errors.Is(err, apiclient.ErrUnavailable) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return true, status.PID, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
