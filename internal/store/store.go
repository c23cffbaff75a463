// Package store provides the persistence layer for the warehouse: dimension
// and fact tables plus the ingestion job and staging audit ledger, backed by
// PostgreSQL or SQLite.
package store

import (
	"context"

	"github.com/arogya-labs/warehouse-cli/internal/model"
)

// Store is the persistence interface consumed by the ingestion pipeline.
// Find methods report a miss with ok=false rather than an error.
type Store interface {
	// Dimensions
	FindPatientID(ctx context.Context, phone, email string) (int64, bool, error)
	CreatePatient(ctx context.Context, p model.Patient) (int64, error)
	FindHospitalID(ctx context.Context, name, state string) (int64, bool, error)
	CreateHospital(ctx context.Context, h model.Hospital) (int64, error)
	FindDoctorID(ctx context.Context, name string, hospitalID int64) (int64, bool, error)
	CreateDoctor(ctx context.Context, d model.Doctor) (int64, error)
	FindDiseaseID(ctx context.Context, name string) (int64, bool, error)
	CreateDisease(ctx context.Context, d model.Disease) (int64, error)
	HasDate(ctx context.Context, dateID int) (bool, error)
	CreateDate(ctx context.Context, d model.DateDimension) error

	// Facts
	CreateVisit(ctx context.Context, v model.VisitFact) (int64, error)

	// Job/staging ledger
	CreateJob(ctx context.Context, sourceFile string) (int64, error)
	FinishJob(ctx context.Context, jobID int64, total, success, failure int, status model.JobStatus) error
	CreateStagingRow(ctx context.Context, jobID int64, sourceFile string, payload []byte) (int64, error)
	FinishStagingRow(ctx context.Context, stagingID int64, status model.StagingStatus, errMsg string) error
	GetJob(ctx context.Context, jobID int64) (*model.IngestionJob, error)
	ListJobs(ctx context.Context, limit int) ([]model.IngestionJob, error)
	ListJobErrors(ctx context.Context, jobID int64, limit int) ([]model.StagingRow, error)

	// InTx runs fn against a transaction-scoped view of the store. A non-nil
	// error from fn rolls the transaction back and is returned unchanged.
	InTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
