package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"accession/internal/api"
	"accession/internal/apiclient"
	"accession/internal/daemon"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Inspect or run the ingest daemon",
	}
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	return daemonCmd
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, batch manager, and collaborator health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDaemon(func(client *apiclient.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				writeLines(out, daemonStatusLines(status, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemon.Run(cmd.Context(), cfg, daemon.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	return cmd
}

func daemonStatusLines(status api.DaemonStatus, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)
	if status.Running {
		detail := fmt.Sprintf("Running (pid %d)", status.PID)
		if status.StartedAt != "" {
			detail += ", started " + relativeTime(status.StartedAt)
		}
		lines = append(lines, renderStatusLine("accessiond", statusOK, detail, colorize))
	} else {
		lines = append(lines, renderStatusLine("accessiond", statusWarn, "Stopped", colorize))
	}
	lines = append(lines, renderStatusLine("Queue database", statusInfo, status.QueueDBPath, colorize))

	wf := status.Workflow
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Batches", colorize)...)
	lines = append(lines, renderStatusLine("Auto start", statusInfo, yesNo(wf.AutoStart), colorize))
	active := "none"
	if len(wf.ActiveBatches) > 0 {
		active = strings.Join(wf.ActiveBatches, ", ")
	}
	lines = append(lines, renderStatusLine("Draining", statusInfo,
		fmt.Sprintf("%s (%d/%d slots)", active, len(wf.ActiveBatches), wf.MaxConcurrent), colorize))
	if wf.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, wf.LastError, colorize))
	}
	bg := status.Background
	lines = append(lines, renderStatusLine("Background tasks", statusInfo,
		fmt.Sprintf("%d active, %s done, %s failed", bg.Active, humanize.Comma(bg.Completed), humanize.Comma(bg.Failed)), colorize))

	if len(wf.Health) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Health", colorize)...)
		for _, h := range wf.Health {
			if h.Ready {
				lines = append(lines, renderStatusLine(h.Name, statusOK, "Ready", colorize))
				continue
			}
			lines = append(lines, renderStatusLine(h.Name, statusError, h.Detail, colorize))
		}
	}
	return lines
}
