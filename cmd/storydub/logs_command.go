package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storydub/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log of the current run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if lines < 0 {
				return fmt.Errorf("--lines must be zero or positive")
			}
			path := currentLogPath(cfg.Paths.LogDir)
			out := cmd.OutOrStdout()

			snapshot, offset, err := logs.Snapshot(path, lines)
			if err != nil {
				return err
			}
			for _, line := range snapshot {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(snapshot) == 0 && lines > 0 {
					fmt.Fprintf(out, "No log output at %s\n", path)
				}
				return nil
			}

			followCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return logs.Follow(followCtx, path, offset, 250*time.Millisecond, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	return cmd
}

func currentLogPath(logDir string) string {
	return filepath.Join(logDir, "storydub.log")
}
