package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"accession/internal/api"
	"accession/internal/apiclient"
	"accession/internal/queueaccess"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Enqueue, start, and inspect batches",
	}

	batchCmd.AddCommand(newBatchEnqueueCommand(ctx))
	batchCmd.AddCommand(newBatchStartCommand(ctx))
	batchCmd.AddCommand(newBatchStatusCommand(ctx))

	return batchCmd
}

func newBatchEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <batch> [package...]",
		Short: "Queue a batch; without packages the batch folder is read from the QA service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, packages := args[0], args[1:]
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				resp, err := access.Enqueue(cmd.Context(), batch, packages)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Queued %d packages in %s\n", len(resp.Records), resp.Batch)
				if !access.Remote() {
					fmt.Fprintln(out, "Daemon not running; the batch starts once accessiond is up")
				}
				return nil
			})
		},
	}
}

func newBatchStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start <batch>",
		Short: "Force-start a batch on the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDaemon(func(client *apiclient.Client) error {
				resp, err := client.StartBatch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if resp.Started {
					fmt.Fprintf(cmd.OutOrStdout(), "Started %s\n", resp.Batch)
				}
				return nil
			})
		},
	}
}

func newBatchStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <batch>",
		Short: "Show batch progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				detail, err := access.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if detail == nil {
					return fmt.Errorf("batch %s not found", args[0])
				}
				if asJSON {
					return writeJSON(cmd, detail.Batch)
				}
				out := cmd.OutOrStdout()
				writeLines(out, batchSummaryLines(detail, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderBatchDetail(cmd *cobra.Command, detail *api.BatchDetail) {
	out := cmd.OutOrStdout()
	writeLines(out, batchSummaryLines(detail, shouldColorize(out)))
	fmt.Fprintln(out)
	fmt.Fprint(out, renderTable(out,
		[]string{"ID", "Package", "Status", "Outcome", "Files", "Micro-service", "Updated", "Error"},
		buildRecordRows(detail.Records),
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
	))
}

func batchSummaryLines(detail *api.BatchDetail, colorize bool) []string {
	b := detail.Batch
	lines := renderSectionHeader(b.Batch, colorize)

	kind, state := statusInfo, "Queued"
	switch {
	case b.Failed > 0:
		kind, state = statusError, "Halted"
	case b.Total > 0 && b.Succeeded == b.Total:
		kind, state = statusOK, "Complete"
	case b.Running:
		kind, state = statusInfo, "Draining"
	}
	lines = append(lines, renderStatusLine("State", kind, state, colorize))
	progress := fmt.Sprintf("%d/%d complete, %d pending, %d in flight", b.Succeeded, b.Total, b.Pending, b.InFlight)
	lines = append(lines, renderStatusLine("Progress", statusInfo, progress, colorize))
	if size := batchSize(detail.Records); size != "" {
		lines = append(lines, renderStatusLine("Size", statusInfo, size, colorize))
	}
	if b.Error != "" {
		lines = append(lines, renderStatusLine("Error", statusError, b.Error, colorize))
	}
	lines = append(lines, renderStatusLine("Updated", statusInfo, relativeTime(b.UpdatedAt), colorize))
	return lines
}

func buildRecordRows(records []api.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		files := ""
		if rec.FileCount > 0 {
			files = strconv.Itoa(rec.FileCount)
		}
		rows = append(rows, []string{
			strconv.FormatInt(rec.ID, 10),
			rec.Package,
			rec.Status,
			rec.Outcome,
			files,
			rec.MicroService,
			relativeTime(rec.UpdatedAt),
			truncate(rec.Error, 60),
		})
	}
	return rows
}

func batchSize(records []api.Record) string {
	for _, rec := range records {
		if rec.BatchSize != "" {
			return rec.BatchSize
		}
	}
	return ""
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
