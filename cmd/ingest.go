package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arogya-labs/warehouse-cli/internal/ingest"
)

var ingestFiles []string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest patient-visit files into the warehouse",
	Long:  "Each file runs as one ingestion job. Multiple files run as concurrent jobs; rows within a job are always processed in file order.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		pipeline := ingest.New(st)

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Ingest.MaxConcurrentFiles)

		for _, path := range ingestFiles {
			path := path
			g.Go(func() error {
				content, err := os.ReadFile(path)
				if err != nil {
					return eris.Wrapf(err, "read %s", path)
				}

				summary, err := pipeline.Run(ctx, content, filepath.Base(path))
				if err != nil {
					return eris.Wrapf(err, "ingest %s", path)
				}

				zap.L().Info("ingest complete",
					zap.String("file", path),
					zap.Int64("job_id", summary.JobID),
					zap.Int("success", summary.SuccessCount),
					zap.Int("failure", summary.FailureCount),
					zap.String("status", string(summary.Status)),
				)
				return nil
			})
		}

		return g.Wait()
	},
}

func init() {
	ingestCmd.Flags().StringArrayVar(&ingestFiles, "file", nil, "path to CSV/XLSX file (repeatable, required)")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}
