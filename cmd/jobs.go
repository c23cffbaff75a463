package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect ingestion job history",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent ingestion jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		jobs, err := st.ListJobs(ctx, jobsLimit)
		if err != nil {
			return err
		}

		for _, j := range jobs {
			fmt.Printf("%d\t%s\t%s\ttotal=%d success=%d failure=%d\t%s\n",
				j.ID, j.SourceFile, j.Status, j.TotalRecords, j.SuccessCount, j.FailureCount,
				j.StartedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return nil
	},
}

var jobsErrorsCmd = &cobra.Command{
	Use:   "errors <job-id>",
	Short: "List failed staging rows for a job, with raw payloads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		jobID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid job id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListJobErrors(ctx, jobID, jobsLimit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, e := range entries {
			var payload map[string]string
			_ = json.Unmarshal(e.RawPayload, &payload)
			if err := enc.Encode(map[string]any{
				"staging_id":    e.ID,
				"error_message": e.ErrorMessage,
				"raw_payload":   payload,
				"processed_at":  e.ProcessedAt,
			}); err != nil {
				return eris.Wrap(err, "encode staging row")
			}
		}
		return nil
	},
}

func init() {
	jobsCmd.PersistentFlags().IntVar(&jobsLimit, "limit", 20, "maximum rows to list")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsErrorsCmd)
	rootCmd.AddCommand(jobsCmd)
}
