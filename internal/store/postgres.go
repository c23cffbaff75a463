package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/arogya-labs/warehouse-cli/internal/db"
	"github.com/arogya-labs/warehouse-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. A transaction-scoped view
// created by InTx shares the same query methods over the transaction.
type PostgresStore struct {
	pool db.Pool
	q    db.Querier
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, q: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

// The natural-key UNIQUE constraints on hospitals, doctors, and diseases are
// what bounds the cross-job dedup race: two concurrent jobs creating the same
// entity make one insert fail, which is recorded as that row's failure.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS patients (
	patient_id   BIGSERIAL PRIMARY KEY,
	patient_name TEXT NOT NULL,
	age          INTEGER NOT NULL,
	gender       TEXT NOT NULL,
	phone        TEXT,
	email        TEXT,
	address      TEXT,
	city         TEXT,
	state        TEXT,
	pincode      TEXT
);

CREATE INDEX IF NOT EXISTS idx_patients_phone ON patients(phone);
CREATE INDEX IF NOT EXISTS idx_patients_email ON patients(email);

CREATE TABLE IF NOT EXISTS hospitals (
	hospital_id      BIGSERIAL PRIMARY KEY,
	hospital_name    TEXT NOT NULL,
	hospital_type    TEXT NOT NULL,
	address          TEXT,
	city             TEXT,
	state            TEXT NOT NULL,
	pincode          TEXT,
	phone            TEXT,
	email            TEXT,
	beds_count       INTEGER NOT NULL DEFAULT 100,
	established_year INTEGER NOT NULL DEFAULT 2000,
	UNIQUE (hospital_name, state)
);

CREATE TABLE IF NOT EXISTS doctors (
	doctor_id        BIGSERIAL PRIMARY KEY,
	doctor_name      TEXT NOT NULL,
	specialization   TEXT NOT NULL,
	qualification    TEXT NOT NULL,
	experience_years INTEGER NOT NULL DEFAULT 5,
	hospital_id      BIGINT NOT NULL REFERENCES hospitals(hospital_id),
	phone            TEXT,
	email            TEXT,
	consultation_fee DOUBLE PRECISION NOT NULL DEFAULT 500,
	UNIQUE (doctor_name, hospital_id)
);

CREATE TABLE IF NOT EXISTS diseases (
	disease_id       BIGSERIAL PRIMARY KEY,
	disease_name     TEXT NOT NULL UNIQUE,
	disease_category TEXT NOT NULL,
	severity_level   TEXT NOT NULL,
	description      TEXT
);

CREATE TABLE IF NOT EXISTS date_dimension (
	date_id    INTEGER PRIMARY KEY,
	full_date  DATE NOT NULL,
	day        INTEGER NOT NULL,
	month      INTEGER NOT NULL,
	year       INTEGER NOT NULL,
	quarter    INTEGER NOT NULL,
	month_name TEXT NOT NULL,
	day_name   TEXT NOT NULL,
	is_weekend BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS patient_visits (
	visit_id               BIGSERIAL PRIMARY KEY,
	patient_id             BIGINT NOT NULL REFERENCES patients(patient_id),
	doctor_id              BIGINT NOT NULL REFERENCES doctors(doctor_id),
	hospital_id            BIGINT NOT NULL REFERENCES hospitals(hospital_id),
	disease_id             BIGINT REFERENCES diseases(disease_id),
	visit_date_id          INTEGER NOT NULL REFERENCES date_dimension(date_id),
	visit_type             TEXT NOT NULL,
	diagnosis              TEXT,
	treatment_id           BIGINT,
	medication_id          BIGINT,
	medication_quantity    INTEGER,
	total_cost             DOUBLE PRECISION NOT NULL,
	payment_method         TEXT NOT NULL,
	visit_duration_minutes INTEGER,
	status                 TEXT NOT NULL DEFAULT 'Completed'
);

CREATE INDEX IF NOT EXISTS idx_patient_visits_date ON patient_visits(visit_date_id);
CREATE INDEX IF NOT EXISTS idx_patient_visits_hospital ON patient_visits(hospital_id);

CREATE TABLE IF NOT EXISTS ingestion_jobs (
	job_id        BIGSERIAL PRIMARY KEY,
	job_type      TEXT NOT NULL DEFAULT 'PATIENT_VISITS',
	source_file   TEXT NOT NULL,
	total_records INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'PROCESSING',
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS staging_patient_visits (
	staging_id    BIGSERIAL PRIMARY KEY,
	job_id        BIGINT NOT NULL REFERENCES ingestion_jobs(job_id),
	source_file   TEXT NOT NULL,
	raw_payload   JSONB NOT NULL,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	error_message TEXT,
	processed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_staging_job_status ON staging_patient_visits(job_id, status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.q.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// InTx runs fn against a transaction-scoped view of the store.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return eris.New("postgres: nested transaction")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{q: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

func (s *PostgresStore) FindPatientID(ctx context.Context, phone, email string) (int64, bool, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`SELECT patient_id FROM patients
		 WHERE (phone <> '' AND phone = $1) OR (email <> '' AND email = $2)
		 LIMIT 1`,
		phone, email,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "postgres: find patient")
	}
	return id, true, nil
}

func (s *PostgresStore) CreatePatient(ctx context.Context, p model.Patient) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`INSERT INTO patients (patient_name, age, gender, phone, email, address, city, state, pincode)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING patient_id`,
		p.Name, p.Age, p.Gender, p.Phone, p.Email, p.Address, p.City, p.State, p.Pincode,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert patient")
	}
	return id, nil
}

func (s *PostgresStore) FindHospitalID(ctx context.Context, name, state string) (int64, bool, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`SELECT hospital_id FROM hospitals WHERE hospital_name = $1 AND state = $2 LIMIT 1`,
		name, state,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "postgres: find hospital")
	}
	return id, true, nil
}

func (s *PostgresStore) CreateHospital(ctx context.Context, h model.Hospital) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`INSERT INTO hospitals
		 (hospital_name, hospital_type, address, city, state, pincode, phone, email, beds_count, established_year)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING hospital_id`,
		h.Name, h.Type, h.Address, h.City, h.State, h.Pincode, h.Phone, h.Email, h.BedsCount, h.EstablishedYear,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert hospital")
	}
	return id, nil
}

func (s *PostgresStore) FindDoctorID(ctx context.Context, name string, hospitalID int64) (int64, bool, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`SELECT doctor_id FROM doctors WHERE doctor_name = $1 AND hospital_id = $2 LIMIT 1`,
		name, hospitalID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "postgres: find doctor")
	}
	return id, true, nil
}

func (s *PostgresStore) CreateDoctor(ctx context.Context, d model.Doctor) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`INSERT INTO doctors
		 (doctor_name, specialization, qualification, experience_years, hospital_id, phone, email, consultation_fee)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING doctor_id`,
		d.Name, d.Specialization, d.Qualification, d.ExperienceYears, d.HospitalID, d.Phone, d.Email, d.ConsultationFee,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert doctor")
	}
	return id, nil
}

func (s *PostgresStore) FindDiseaseID(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`SELECT disease_id FROM diseases WHERE disease_name = $1 LIMIT 1`,
		name,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "postgres: find disease")
	}
	return id, true, nil
}

func (s *PostgresStore) CreateDisease(ctx context.Context, d model.Disease) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`INSERT INTO diseases (disease_name, disease_category, severity_level, description)
		 VALUES ($1, $2, $3, $4)
		 RETURNING disease_id`,
		d.Name, d.Category, d.Severity, d.Description,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert disease")
	}
	return id, nil
}

func (s *PostgresStore) HasDate(ctx context.Context, dateID int) (bool, error) {
	var id int
	err := s.q.QueryRow(ctx,
		`SELECT date_id FROM date_dimension WHERE date_id = $1`,
		dateID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: find date")
	}
	return true, nil
}

func (s *PostgresStore) CreateDate(ctx context.Context, d model.DateDimension) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO date_dimension
		 (date_id, full_date, day, month, year, quarter, month_name, day_name, is_weekend)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.FullDate, d.Day, d.Month, d.Year, d.Quarter, d.MonthName, d.DayName, d.IsWeekend,
	)
	return eris.Wrap(err, "postgres: insert date")
}

func (s *PostgresStore) CreateVisit(ctx context.Context, v model.VisitFact) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`INSERT INTO patient_visits
		 (patient_id, doctor_id, hospital_id, disease_id, visit_date_id, visit_type,
		  diagnosis, treatment_id, medication_id, medication_quantity, total_cost,
		  payment_method, visit_duration_minutes, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NULL, NULL, $8, $9, $10, $11)
		 RETURNING visit_id`,
		v.PatientID, v.DoctorID, v.HospitalID, v.DiseaseID, v.DateID, v.VisitType,
		v.Diagnosis, v.TotalCost, v.PaymentMethod, v.DurationMinutes, v.Status,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert visit")
	}
	return id, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, sourceFile string) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`INSERT INTO ingestion_jobs (job_type, source_file, status)
		 VALUES ('PATIENT_VISITS', $1, $2)
		 RETURNING job_id`,
		sourceFile, string(model.JobStatusProcessing),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert job")
	}
	return id, nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, jobID int64, total, success, failure int, status model.JobStatus) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE ingestion_jobs
		 SET total_records = $1, success_count = $2, failure_count = $3, status = $4, completed_at = now()
		 WHERE job_id = $5`,
		total, success, failure, string(status), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish job %d", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %d", jobID)
	}
	return nil
}

func (s *PostgresStore) CreateStagingRow(ctx context.Context, jobID int64, sourceFile string, payload []byte) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`INSERT INTO staging_patient_visits (job_id, source_file, raw_payload, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING staging_id`,
		jobID, sourceFile, payload, string(model.StagingStatusPending),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert staging row")
	}
	return id, nil
}

func (s *PostgresStore) FinishStagingRow(ctx context.Context, stagingID int64, status model.StagingStatus, errMsg string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE staging_patient_visits
		 SET status = $1, error_message = NULLIF($2, ''), processed_at = now()
		 WHERE staging_id = $3`,
		string(status), errMsg, stagingID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish staging row %d", stagingID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("staging row not found: %d", stagingID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID int64) (*model.IngestionJob, error) {
	var j model.IngestionJob
	err := s.q.QueryRow(ctx,
		`SELECT job_id, job_type, source_file, total_records, success_count, failure_count, status, started_at, completed_at
		 FROM ingestion_jobs WHERE job_id = $1`,
		jobID,
	).Scan(&j.ID, &j.JobType, &j.SourceFile, &j.TotalRecords, &j.SuccessCount, &j.FailureCount, &j.Status, &j.StartedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %d", jobID)
	}
	return &j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, limit int) ([]model.IngestionJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.Query(ctx,
		`SELECT job_id, job_type, source_file, total_records, success_count, failure_count, status, started_at, completed_at
		 FROM ingestion_jobs ORDER BY job_id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.IngestionJob
	for rows.Next() {
		var j model.IngestionJob
		if err := rows.Scan(&j.ID, &j.JobType, &j.SourceFile, &j.TotalRecords, &j.SuccessCount, &j.FailureCount, &j.Status, &j.StartedAt, &j.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) ListJobErrors(ctx context.Context, jobID int64, limit int) ([]model.StagingRow, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.q.Query(ctx,
		`SELECT staging_id, job_id, source_file, raw_payload, status, error_message, processed_at
		 FROM staging_patient_visits
		 WHERE job_id = $1 AND status = $2
		 ORDER BY staging_id
		 LIMIT $3`,
		jobID, string(model.StagingStatusFailed), limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list errors for job %d", jobID)
	}
	defer rows.Close()

	var entries []model.StagingRow
	for rows.Next() {
		var e model.StagingRow
		var errMsg *string
		if err := rows.Scan(&e.ID, &e.JobID, &e.SourceFile, &e.RawPayload, &e.Status, &errMsg, &e.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan staging row")
		}
		if errMsg != nil {
			e.ErrorMessage = *errMsg
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list errors iterate")
}
