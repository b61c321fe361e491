package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"storydub/internal/api"
	"storydub/internal/apiclient"
)

// errJobFailed makes `follow` exit non-zero when the job fails.
var errJobFailed = errors.New("job failed")

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"list"},
		Short:   "List jobs, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				list, err := client.List(cmd.Context())
				if err != nil {
					return err
				}
				list = filterJobs(list, status)
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.JobList{Jobs: list})
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprintln(out, renderJobTable(list))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show jobs with this status")
	return cmd
}

func filterJobs(list []api.Job, status string) []api.Job {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return list
	}
	out := make([]api.Job, 0, len(list))
	for _, job := range list {
		if job.Status == status {
			out = append(out, job)
		}
	}
	return out
}

func renderJobTable(list []api.Job) string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			shortID(job.JobID),
			job.Kind,
			titleCase(job.Status),
			stageLabel(job),
			dashIfEmpty(job.TargetLang),
			truncate(dashIfEmpty(job.Source), 40),
			humanAge(api.ParseTime(job.CreatedAt)),
		})
	}
	return renderTable(
		[]string{"ID", "Kind", "Status", "Stage", "Lang", "Source", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func stageLabel(job api.Job) string {
	if job.Stage == "" {
		return "-"
	}
	return fmt.Sprintf("%d %s", job.StageIndex+1, job.Stage)
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job with its recent progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				job, err := client.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				renderJob(cmd.OutOrStdout(), job, lines)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Progress lines to show (0 for all)")
	return cmd
}

func renderJob(out io.Writer, job api.Job, lines int) {
	fields := [][2]string{
		{"Job", job.JobID},
		{"Kind", job.Kind},
		{"Status", titleCase(job.Status)},
		{"Stage", stageLabel(job)},
		{"Source", dashIfEmpty(job.Source)},
		{"Language", dashIfEmpty(job.TargetLang)},
		{"Created", humanAge(api.ParseTime(job.CreatedAt))},
		{"Updated", humanAge(api.ParseTime(job.UpdatedAt))},
	}
	if job.OutputPath != "" {
		fields = append(fields, [2]string{"Output", job.OutputPath})
	}
	if job.PublishID != "" {
		fields = append(fields, [2]string{"Published", job.PublishID})
	}
	if job.Error != "" {
		fields = append(fields, [2]string{"Error", job.Error})
	}
	for _, field := range fields {
		fmt.Fprintf(out, "%-10s %s\n", field[0]+":", field[1])
	}

	progress := job.Progress
	if lines > 0 && len(progress) > lines {
		progress = progress[len(progress)-lines:]
	}
	if len(progress) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Progress:")
	for _, line := range progress {
		fmt.Fprintf(out, "  %s\n", line)
	}
}

func newFollowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "follow <job-id>",
		Short: "Stream a job's progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				return followJob(cmd, client, args[0])
			})
		},
	}
}

func followJob(cmd *cobra.Command, client *apiclient.Client, id string) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	outcome, err := client.Follow(cmd.Context(), id, func(ev apiclient.Event) error {
		switch ev.Type {
		case "error":
			line := "! " + ev.Data
			if colorize {
				line = text.FgYellow.Sprint(line)
			}
			fmt.Fprintln(out, line)
		case "done":
		default:
			fmt.Fprintln(out, ev.Data)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if outcome != "completed" {
		return fmt.Errorf("%w: %s", errJobFailed, id)
	}
	fmt.Fprintf(out, "Job %s completed\n", id)
	return nil
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				job, err := client.Cancel(cmd.Context(), args[0])
				if err != nil {
					var apiErr *apiclient.APIError
					if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
						return fmt.Errorf("job %s already finished", args[0])
					}
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job %s\n", job.JobID)
				return nil
			})
		},
	}
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download the finished video of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return ctx.withClient(func(client *apiclient.Client) error {
				target := strings.TrimSpace(output)
				if target == "" {
					job, err := client.Get(cmd.Context(), id)
					if err != nil {
						return err
					}
					target = filepath.Base(job.OutputPath)
					if job.OutputPath == "" {
						target = id + ".mp4"
					}
				}
				n, err := downloadTo(cmd, client, id, target)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", target, humanBytes(n))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (defaults to the artifact name)")
	return cmd
}

// downloadTo writes into a partial file and renames it into place once the
// transfer finishes.
func downloadTo(cmd *cobra.Command, client *apiclient.Client, id, target string) (int64, error) {
	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	partial := target + ".part"
	file, err := os.Create(partial)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", partial, err)
	}
	n, err := client.Download(cmd.Context(), id, file)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(partial)
		return n, err
	}
	if err := os.Rename(partial, target); err != nil {
		_ = os.Remove(partial)
		return n, fmt.Errorf("finalize %s: %w", target, err)
	}
	return n, nil
}
