package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"storydub/internal/api"
	"storydub/internal/apiclient"
	"storydub/internal/config"
	"storydub/internal/services/ytdlp"
)

func newDubCommand(ctx *commandContext) *cobra.Command {
	var req api.DubRequest
	var follow bool

	cmd := &cobra.Command{
		Use:   "dub <url-or-file>",
		Short: "Dub a video into another language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := strings.TrimSpace(args[0])
			if ytdlp.IsURL(source) {
				req.URL = source
			} else {
				path, err := config.ExpandPath(source)
				if err != nil {
					return fmt.Errorf("resolve %q: %w", source, err)
				}
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("inspect %q: %w", path, err)
				}
				req.FilePath = path
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				ack, err := client.SubmitDub(cmd.Context(), req)
				if err != nil {
					return err
				}
				return reportSubmitted(cmd, ctx, client, ack, follow)
			})
		},
	}

	cmd.Flags().StringVarP(&req.TargetLang, "to", "t", "", "Target language code, e.g. hi-IN")
	cmd.Flags().StringVarP(&req.SourceLang, "from", "f", "", "Source language code (default en-IN)")
	cmd.Flags().StringVar(&req.Speaker, "speaker", "", "Voice to narrate with")
	cmd.Flags().IntVar(&req.Workers, "workers", 0, "Parallel chunk workers (default 4)")
	cmd.Flags().BoolVar(&follow, "follow", false, "Stream progress until the job finishes")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newStoryCommand(ctx *commandContext) *cobra.Command {
	var req api.StoryRequest
	var textFile string
	var follow bool

	cmd := &cobra.Command{
		Use:   "story [text]",
		Short: "Narrate a story as a short illustrated video",
		Long: "Narrate a story as a short illustrated video.\n\n" +
			"Pass the story text as an argument, read it from --file, or pick a\n" +
			"public-domain story with --theme and an optional --keyword.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				req.Text = args[0]
			}
			if textFile != "" {
				data, err := os.ReadFile(textFile)
				if err != nil {
					return fmt.Errorf("read story file: %w", err)
				}
				req.Text = string(data)
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				ack, err := client.SubmitStory(cmd.Context(), req)
				if err != nil {
					return err
				}
				return reportSubmitted(cmd, ctx, client, ack, follow)
			})
		},
	}

	cmd.Flags().StringVarP(&req.TargetLang, "to", "t", "", "Narration language code, e.g. hi-IN")
	cmd.Flags().StringVar(&textFile, "file", "", "Read the story text from a file")
	cmd.Flags().StringVar(&req.Theme, "theme", "", "Pick a story from a theme collection")
	cmd.Flags().StringVar(&req.Keyword, "keyword", "", "Filter theme stories by keyword")
	cmd.Flags().StringVar(&req.Speaker, "speaker", "", "Voice to narrate with")
	cmd.Flags().StringVar(&req.Mood, "mood", "", "Narration mood (default, calm, dramatic, excited, funny)")
	cmd.Flags().BoolVar(&req.Publish, "publish", false, "Upload the finished short to YouTube")
	cmd.Flags().IntVar(&req.Workers, "workers", 0, "Parallel scene workers (default 4)")
	cmd.Flags().BoolVar(&follow, "follow", false, "Stream progress until the job finishes")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func reportSubmitted(cmd *cobra.Command, ctx *commandContext, client *apiclient.Client, ack api.SubmitResponse, follow bool) error {
	if ctx.jsonOutput() && !follow {
		return writeJSON(cmd, ack)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s\n", ack.JobID)
	if !follow {
		return nil
	}
	return followJob(cmd, client, ack.JobID)
}
