package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"storydub/internal/cachestore"
)

const defaultPruneAge = 30 * 24 * time.Hour

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the stage artifact cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd.Context(), ctx, func(store *cachestore.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				printCacheStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
}

func printCacheStats(out io.Writer, stats []cachestore.StageStats) {
	if len(stats) == 0 {
		fmt.Fprintln(out, "Cache is empty")
		return
	}
	rows := make([][]string, 0, len(stats)+1)
	var entries int
	var total int64
	for _, st := range stats {
		rows = append(rows, []string{st.Stage, strconv.Itoa(st.Entries), humanBytes(st.Bytes)})
		entries += st.Entries
		total += st.Bytes
	}
	rows = append(rows, []string{"total", strconv.Itoa(entries), humanBytes(total)})
	fmt.Fprintln(out, renderTable([]string{"Stage", "Entries", "Size"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var stage string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached artifacts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd.Context(), ctx, func(store *cachestore.Store) error {
				entries, err := store.List(cmd.Context(), stage)
				if err != nil {
					return err
				}
				if limit > 0 && len(entries) > limit {
					entries = entries[:limit]
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No cached artifacts")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, art := range entries {
					rows = append(rows, []string{
						art.Key.Stage,
						shortID(art.Key.Fingerprint),
						dashIfEmpty(art.Key.Language),
						humanBytes(art.SizeBytes),
						humanAge(art.LastUsedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Stage", "Fingerprint", "Lang", "Size", "Last used"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Only list artifacts of this stage")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries to show (0 for all)")
	return cmd
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete artifacts not used recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withCache(cmd.Context(), ctx, func(store *cachestore.Store) error {
				result, err := store.Prune(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				if result.Entries == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No cache entries pruned")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries (%s)\n", result.Entries, humanBytes(result.Bytes))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", defaultPruneAge, "Remove artifacts unused for this long")
	return cmd
}

// withCache opens the cache index directly; the daemon may be running since
// sqlite runs in WAL mode.
func withCache(cmdCtx context.Context, ctx *commandContext, fn func(*cachestore.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	store, err := cachestore.Open(cmdCtx, cfg.Paths.CacheDir)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()
	return fn(store)
}
