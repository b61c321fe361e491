package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"storydub/internal/api"
	"storydub/internal/apiclient"
	"storydub/internal/daemonctl"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the storydub daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			addr, err := ctx.apiAddress()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.configPath(),
				Bind:       addr,
			}, 15*time.Second)
			if err != nil {
				return err
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d) at %s\n", result.PID, client.BaseURL())
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the storydub daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client, err := ctx.client()
			if err != nil {
				return err
			}
			stopped, err := daemonctl.Stop(cmd.Context(), client, time.Minute)
			if err != nil {
				return err
			}
			if !stopped {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and preflight status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, status)
				}
				stdout := cmd.OutOrStdout()
				renderStatus(stdout, status, shouldColorize(stdout))
				return nil
			})
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func renderStatus(out io.Writer, status api.Status, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	daemonKind := statusError
	if status.Running {
		daemonKind = statusOK
	}
	fmt.Fprintln(out, renderStatusLine("Running", daemonKind, fmt.Sprintf("%s (pid %d)", yesNo(status.Running), status.PID), colorize))
	if started := api.ParseTime(status.StartedAt); !started.IsZero() {
		fmt.Fprintln(out, renderStatusLine("Uptime", statusInfo, humanAge(started), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Workers", statusInfo,
		fmt.Sprintf("%d running, %d queued of %d (pool %d)", status.Workers.Running, status.Workers.Queued, status.Workers.Capacity, status.Workers.Workers),
		colorize))
	fmt.Fprintln(out, renderStatusLine("Job store", statusInfo, status.JobDBPath, colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, dep := range status.Dependencies {
		fmt.Fprintln(out, dependencyLine(dep, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Preflight", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, check := range status.Preflight {
		kind := statusOK
		if !check.Passed {
			kind = statusWarn
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := jobCountRows(status.JobCounts)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No jobs yet")
		return
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func dependencyLine(dep api.DependencyStatus, colorize bool) string {
	if dep.Available {
		return renderStatusLine(dep.Name, statusOK, fmt.Sprintf("Ready (command: %s)", dep.Command), colorize)
	}
	kind := statusError
	if dep.Optional {
		kind = statusWarn
	}
	detail := dep.Detail
	if detail == "" {
		detail = "not found"
	}
	return renderStatusLine(dep.Name, kind, detail, colorize)
}

func jobCountRows(counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for key, n := range counts {
		if n > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{titleCase(key), strconv.Itoa(counts[key])})
	}
	return rows
}
