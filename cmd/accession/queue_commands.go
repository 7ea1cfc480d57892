package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"accession/internal/api"
	"accession/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the ingest queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batches in the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				batches, err := access.Batches(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, batches)
				}
				out := cmd.OutOrStdout()
				if len(batches) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"Batch", "Total", "Pending", "In flight", "Done", "Failed", "Last status", "Running", "Updated"},
					buildBatchRows(batches),
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <batch>",
		Short: "Show the records of one batch",
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
					return writeJSON(cmd, detail)
				}
				renderBatchDetail(cmd, detail)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [batch]",
		Short: "Remove a batch (or, with --all, every record) from the queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var batch string
			if len(args) == 1 {
				batch = args[0]
			}
			if batch == "" && !all {
				return errors.New("name a batch or pass --all")
			}
			if batch != "" && all {
				return errors.New("--all cannot be combined with a batch name")
			}
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				resp, err := access.Clear(cmd.Context(), batch)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if batch == "" {
					fmt.Fprintf(out, "Cleared %d queue records\n", resp.Removed)
					return nil
				}
				fmt.Fprintf(out, "Cleared %d records of %s\n", resp.Removed, batch)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Clear every batch")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show record counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				stats, err := access.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderTable(out, []string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				if !access.Remote() {
					fmt.Fprintln(out, "(daemon not running; read from queue database)")
				}
				return nil
			})
		},
	}
}

func buildBatchRows(batches []api.Batch) [][]string {
	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, []string{
			b.Batch,
			strconv.Itoa(b.Total),
			strconv.Itoa(b.Pending),
			strconv.Itoa(b.InFlight),
			strconv.Itoa(b.Succeeded),
			strconv.Itoa(b.Failed),
			b.LastStatus,
			yesNo(b.Running),
			relativeTime(b.UpdatedAt),
		})
	}
	return rows
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	statuses := make([]string, 0, len(stats))
	for status, count := range stats {
		if count > 0 {
			statuses = append(statuses, status)
		}
	}
	sort.Strings(statuses)
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		rows = append(rows, []string{status, strconv.Itoa(stats[status])})
	}
	return rows
}
