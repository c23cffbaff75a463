package ingest

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/arogya-labs/warehouse-cli/internal/model"
	"github.com/arogya-labs/warehouse-cli/internal/store"
	"github.com/arogya-labs/warehouse-cli/internal/tabular"
)

// Pipeline runs one upload end to end: parse, validate the column contract,
// then process rows strictly in file order. In-order processing is what makes
// intra-job dimension deduplication hold: a row must observe the dimension
// rows created by earlier rows of the same job.
type Pipeline struct {
	store store.Store
}

// New creates a Pipeline over the given store.
func New(s store.Store) *Pipeline {
	return &Pipeline{store: s}
}

// Run ingests one file as one job and returns the job summary.
//
// Format and schema errors fail the upload before a job row exists. Row-level
// validation and storage errors are absorbed into the staging ledger and the
// counts. Errors writing the ledger itself mean the store is unreachable and
// abort the job.
func (p *Pipeline) Run(ctx context.Context, content []byte, filename string) (*model.JobSummary, error) {
	table, err := tabular.Read(content, filename)
	if err != nil {
		return nil, err
	}
	if err := tabular.ValidateColumns(table); err != nil {
		return nil, err
	}

	jobID, err := p.store.CreateJob(ctx, filename)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: create job")
	}

	total := table.Len()
	success, failure := 0, 0

	for i := 0; i < total; i++ {
		row := table.Row(i)

		payload, err := json.Marshal(row.Map())
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: marshal row %d payload", i+1)
		}
		stagingID, err := p.store.CreateStagingRow(ctx, jobID, filename, payload)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: stage row %d", i+1)
		}

		if rowErr := p.processRow(ctx, row); rowErr != nil {
			failure++
			zap.L().Warn("row failed",
				zap.Int64("job_id", jobID),
				zap.Int("row", i+1),
				zap.Error(rowErr),
			)
			if err := p.store.FinishStagingRow(ctx, stagingID, model.StagingStatusFailed, rowErr.Error()); err != nil {
				return nil, eris.Wrapf(err, "ingest: finalize staging row %d", i+1)
			}
			continue
		}

		success++
		if err := p.store.FinishStagingRow(ctx, stagingID, model.StagingStatusProcessed, ""); err != nil {
			return nil, eris.Wrapf(err, "ingest: finalize staging row %d", i+1)
		}
	}

	status := model.JobStatusCompleted
	if success == 0 && total > 0 {
		status = model.JobStatusFailed
	}

	if err := p.store.FinishJob(ctx, jobID, total, success, failure, status); err != nil {
		return nil, eris.Wrap(err, "ingest: finish job")
	}

	zap.L().Info("ingestion job finished",
		zap.Int64("job_id", jobID),
		zap.String("source_file", filename),
		zap.Int("total_records", total),
		zap.Int("success_count", success),
		zap.Int("failure_count", failure),
		zap.String("status", string(status)),
	)

	return &model.JobSummary{
		JobID:        jobID,
		TotalRecords: total,
		SuccessCount: success,
		FailureCount: failure,
		Status:       status,
	}, nil
}

// processRow validates one row and, inside a single transaction, resolves its
// dimensions and writes the visit fact. The per-row transaction means a failed
// row leaves no partial dimension writes behind.
func (p *Pipeline) processRow(ctx context.Context, row tabular.Row) error {
	rec, err := Normalize(row)
	if err != nil {
		return err
	}

	return p.store.InTx(ctx, func(tx store.Store) error {
		keys, err := NewResolver(tx).Resolve(ctx, rec)
		if err != nil {
			return err
		}

		_, err = tx.CreateVisit(ctx, model.VisitFact{
			PatientID:       keys.PatientID,
			DoctorID:        keys.DoctorID,
			HospitalID:      keys.HospitalID,
			DiseaseID:       keys.DiseaseID,
			DateID:          keys.DateID,
			VisitType:       rec.VisitType,
			Diagnosis:       rec.Diagnosis,
			TotalCost:       rec.TotalCost,
			PaymentMethod:   rec.PaymentMethod,
			DurationMinutes: rec.DurationMinutes,
			Status:          "Completed",
		})
		if err != nil {
			return eris.Wrap(err, "ingest: insert visit fact")
		}
		return nil
	})
}
