package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/arogya-labs/warehouse-cli/internal/model"
)

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite, for local use and
// end-to-end tests.
type SQLiteStore struct {
	db *sql.DB
	q  sqlQuerier
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS patients (
	patient_id   INTEGER PRIMARY KEY AUTOINCREMENT,
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
	hospital_id      INTEGER PRIMARY KEY AUTOINCREMENT,
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
	doctor_id        INTEGER PRIMARY KEY AUTOINCREMENT,
	doctor_name      TEXT NOT NULL,
	specialization   TEXT NOT NULL,
	qualification    TEXT NOT NULL,
	experience_years INTEGER NOT NULL DEFAULT 5,
	hospital_id      INTEGER NOT NULL REFERENCES hospitals(hospital_id),
	phone            TEXT,
	email            TEXT,
	consultation_fee REAL NOT NULL DEFAULT 500,
	UNIQUE (doctor_name, hospital_id)
);

CREATE TABLE IF NOT EXISTS diseases (
	disease_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	disease_name     TEXT NOT NULL UNIQUE,
	disease_category TEXT NOT NULL,
	severity_level   TEXT NOT NULL,
	description      TEXT
);

CREATE TABLE IF NOT EXISTS date_dimension (
	date_id    INTEGER PRIMARY KEY,
	full_date  DATETIME NOT NULL,
	day        INTEGER NOT NULL,
	month      INTEGER NOT NULL,
	year       INTEGER NOT NULL,
	quarter    INTEGER NOT NULL,
	month_name TEXT NOT NULL,
	day_name   TEXT NOT NULL,
	is_weekend BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS patient_visits (
	visit_id               INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id             INTEGER NOT NULL REFERENCES patients(patient_id),
	doctor_id              INTEGER NOT NULL REFERENCES doctors(doctor_id),
	hospital_id            INTEGER NOT NULL REFERENCES hospitals(hospital_id),
	disease_id             INTEGER REFERENCES diseases(disease_id),
	visit_date_id          INTEGER NOT NULL REFERENCES date_dimension(date_id),
	visit_type             TEXT NOT NULL,
	diagnosis              TEXT,
	treatment_id           INTEGER,
	medication_id          INTEGER,
	medication_quantity    INTEGER,
	total_cost             REAL NOT NULL,
	payment_method         TEXT NOT NULL,
	visit_duration_minutes INTEGER,
	status                 TEXT NOT NULL DEFAULT 'Completed'
);

CREATE INDEX IF NOT EXISTS idx_patient_visits_date ON patient_visits(visit_date_id);
CREATE INDEX IF NOT EXISTS idx_patient_visits_hospital ON patient_visits(hospital_id);

CREATE TABLE IF NOT EXISTS ingestion_jobs (
	job_id        INTEGER PRIMARY KEY AUTOINCREMENT,
	job_type      TEXT NOT NULL DEFAULT 'PATIENT_VISITS',
	source_file   TEXT NOT NULL,
	total_records INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'PROCESSING',
	started_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at  DATETIME
);

CREATE TABLE IF NOT EXISTS staging_patient_visits (
	staging_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id        INTEGER NOT NULL REFERENCES ingestion_jobs(job_id),
	source_file   TEXT NOT NULL,
	raw_payload   TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	error_message TEXT,
	processed_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_staging_job_status ON staging_patient_visits(job_id, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InTx runs fn against a transaction-scoped view of the store.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		return eris.New("sqlite: nested transaction")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	if err := fn(&SQLiteStore{q: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func (s *SQLiteStore) insert(ctx context.Context, wrap, query string, args ...any) (int64, error) {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, wrap)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, wrap)
	}
	return id, nil
}

func (s *SQLiteStore) findID(ctx context.Context, wrap, query string, args ...any) (int64, bool, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, wrap)
	}
	return id, true, nil
}

func (s *SQLiteStore) FindPatientID(ctx context.Context, phone, email string) (int64, bool, error) {
	return s.findID(ctx, "sqlite: find patient",
		`SELECT patient_id FROM patients
		 WHERE (phone <> '' AND phone = ?) OR (email <> '' AND email = ?)
		 LIMIT 1`,
		phone, email,
	)
}

func (s *SQLiteStore) CreatePatient(ctx context.Context, p model.Patient) (int64, error) {
	return s.insert(ctx, "sqlite: insert patient",
		`INSERT INTO patients (patient_name, age, gender, phone, email, address, city, state, pincode)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Age, p.Gender, p.Phone, p.Email, p.Address, p.City, p.State, p.Pincode,
	)
}

func (s *SQLiteStore) FindHospitalID(ctx context.Context, name, state string) (int64, bool, error) {
	return s.findID(ctx, "sqlite: find hospital",
		`SELECT hospital_id FROM hospitals WHERE hospital_name = ? AND state = ? LIMIT 1`,
		name, state,
	)
}

func (s *SQLiteStore) CreateHospital(ctx context.Context, h model.Hospital) (int64, error) {
	return s.insert(ctx, "sqlite: insert hospital",
		`INSERT INTO hospitals
		 (hospital_name, hospital_type, address, city, state, pincode, phone, email, beds_count, established_year)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.Name, h.Type, h.Address, h.City, h.State, h.Pincode, h.Phone, h.Email, h.BedsCount, h.EstablishedYear,
	)
}

func (s *SQLiteStore) FindDoctorID(ctx context.Context, name string, hospitalID int64) (int64, bool, error) {
	return s.findID(ctx, "sqlite: find doctor",
		`SELECT doctor_id FROM doctors WHERE doctor_name = ? AND hospital_id = ? LIMIT 1`,
		name, hospitalID,
	)
}

func (s *SQLiteStore) CreateDoctor(ctx context.Context, d model.Doctor) (int64, error) {
	return s.insert(ctx, "sqlite: insert doctor",
		`INSERT INTO doctors
		 (doctor_name, specialization, qualification, experience_years, hospital_id, phone, email, consultation_fee)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Name, d.Specialization, d.Qualification, d.ExperienceYears, d.HospitalID, d.Phone, d.Email, d.ConsultationFee,
	)
}

func (s *SQLiteStore) FindDiseaseID(ctx context.Context, name string) (int64, bool, error) {
	return s.findID(ctx, "sqlite: find disease",
		`SELECT disease_id FROM diseases WHERE disease_name = ? LIMIT 1`,
		name,
	)
}

func (s *SQLiteStore) CreateDisease(ctx context.Context, d model.Disease) (int64, error) {
	return s.insert(ctx, "sqlite: insert disease",
		`INSERT INTO diseases (disease_name, disease_category, severity_level, description)
		 VALUES (?, ?, ?, ?)`,
		d.Name, d.Category, d.Severity, d.Description,
	)
}

func (s *SQLiteStore) HasDate(ctx context.Context, dateID int) (bool, error) {
	_, ok, err := s.findID(ctx, "sqlite: find date",
		`SELECT date_id FROM date_dimension WHERE date_id = ?`,
		dateID,
	)
	return ok, err
}

func (s *SQLiteStore) CreateDate(ctx context.Context, d model.DateDimension) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO date_dimension
		 (date_id, full_date, day, month, year, quarter, month_name, day_name, is_weekend)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.FullDate, d.Day, d.Month, d.Year, d.Quarter, d.MonthName, d.DayName, d.IsWeekend,
	)
	return eris.Wrap(err, "sqlite: insert date")
}

func (s *SQLiteStore) CreateVisit(ctx context.Context, v model.VisitFact) (int64, error) {
	var diseaseID any
	if v.DiseaseID != nil {
		diseaseID = *v.DiseaseID
	}
	var duration any
	if v.DurationMinutes != nil {
		duration = *v.DurationMinutes
	}
	return s.insert(ctx, "sqlite: insert visit",
		`INSERT INTO patient_visits
		 (patient_id, doctor_id, hospital_id, disease_id, visit_date_id, visit_type,
		  diagnosis, treatment_id, medication_id, medication_quantity, total_cost,
		  payment_method, visit_duration_minutes, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, ?, ?, ?, ?)`,
		v.PatientID, v.DoctorID, v.HospitalID, diseaseID, v.DateID, v.VisitType,
		v.Diagnosis, v.TotalCost, v.PaymentMethod, duration, v.Status,
	)
}

func (s *SQLiteStore) CreateJob(ctx context.Context, sourceFile string) (int64, error) {
	return s.insert(ctx, "sqlite: insert job",
		`INSERT INTO ingestion_jobs (job_type, source_file, status)
		 VALUES ('PATIENT_VISITS', ?, ?)`,
		sourceFile, string(model.JobStatusProcessing),
	)
}

func (s *SQLiteStore) FinishJob(ctx context.Context, jobID int64, total, success, failure int, status model.JobStatus) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE ingestion_jobs
		 SET total_records = ?, success_count = ?, failure_count = ?, status = ?, completed_at = ?
		 WHERE job_id = ?`,
		total, success, failure, string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish job %d", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) CreateStagingRow(ctx context.Context, jobID int64, sourceFile string, payload []byte) (int64, error) {
	return s.insert(ctx, "sqlite: insert staging row",
		`INSERT INTO staging_patient_visits (job_id, source_file, raw_payload, status)
		 VALUES (?, ?, ?, ?)`,
		jobID, sourceFile, string(payload), string(model.StagingStatusPending),
	)
}

func (s *SQLiteStore) FinishStagingRow(ctx context.Context, stagingID int64, status model.StagingStatus, errMsg string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE staging_patient_visits
		 SET status = ?, error_message = NULLIF(?, ''), processed_at = ?
		 WHERE staging_id = ?`,
		string(status), errMsg, time.Now().UTC(), stagingID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish staging row %d", stagingID)
	}
	return checkRowsAffected(res, "staging row", stagingID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID int64) (*model.IngestionJob, error) {
	var j model.IngestionJob
	var status string
	err := s.q.QueryRowContext(ctx,
		`SELECT job_id, job_type, source_file, total_records, success_count, failure_count, status, started_at, completed_at
		 FROM ingestion_jobs WHERE job_id = ?`,
		jobID,
	).Scan(&j.ID, &j.JobType, &j.SourceFile, &j.TotalRecords, &j.SuccessCount, &j.FailureCount, &status, &j.StartedAt, &j.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %d", jobID)
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]model.IngestionJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT job_id, job_type, source_file, total_records, success_count, failure_count, status, started_at, completed_at
		 FROM ingestion_jobs ORDER BY job_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.IngestionJob
	for rows.Next() {
		var j model.IngestionJob
		var status string
		if err := rows.Scan(&j.ID, &j.JobType, &j.SourceFile, &j.TotalRecords, &j.SuccessCount, &j.FailureCount, &status, &j.StartedAt, &j.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		j.Status = model.JobStatus(status)
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) ListJobErrors(ctx context.Context, jobID int64, limit int) ([]model.StagingRow, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT staging_id, job_id, source_file, raw_payload, status, error_message, processed_at
		 FROM staging_patient_visits
		 WHERE job_id = ? AND status = ?
		 ORDER BY staging_id
		 LIMIT ?`,
		jobID, string(model.StagingStatusFailed), limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list errors for job %d", jobID)
	}
	defer rows.Close()

	var entries []model.StagingRow
	for rows.Next() {
		var e model.StagingRow
		var status string
		var payload string
		var errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.JobID, &e.SourceFile, &payload, &status, &errMsg, &e.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan staging row")
		}
		e.RawPayload = []byte(payload)
		e.Status = model.StagingStatus(status)
		e.ErrorMessage = errMsg.String
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list errors iterate")
}

func checkRowsAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %d", kind, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", kind, id)
	}
	return nil
}
