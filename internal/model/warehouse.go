// Package model defines the warehouse entities shared by the ingestion
// pipeline, the store layer, and the API surface.
package model

import "time"

// JobStatus represents the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// StagingStatus represents the lifecycle state of a staged input row.
type StagingStatus string

const (
	StagingStatusPending   StagingStatus = "PENDING"
	StagingStatusProcessed StagingStatus = "PROCESSED"
	StagingStatusFailed    StagingStatus = "FAILED"
)

// Patient is a dimension row matched by phone or email.
type Patient struct {
	ID      int64  `json:"patient_id"`
	Name    string `json:"patient_name"`
	Age     int    `json:"age"`
	Gender  string `json:"gender"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Pincode string `json:"pincode,omitempty"`
}

// Hospital is a dimension row matched by (name, state).
type Hospital struct {
	ID              int64  `json:"hospital_id"`
	Name            string `json:"hospital_name"`
	Type            string `json:"hospital_type"`
	Address         string `json:"address,omitempty"`
	City            string `json:"city,omitempty"`
	State           string `json:"state"`
	Pincode         string `json:"pincode,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Email           string `json:"email,omitempty"`
	BedsCount       int    `json:"beds_count"`
	EstablishedYear int    `json:"established_year"`
}

// Doctor is a dimension row owned by exactly one hospital, matched by
// (name, hospital_id).
type Doctor struct {
	ID              int64   `json:"doctor_id"`
	Name            string  `json:"doctor_name"`
	Specialization  string  `json:"specialization"`
	Qualification   string  `json:"qualification"`
	ExperienceYears int     `json:"experience_years"`
	HospitalID      int64   `json:"hospital_id"`
	Phone           string  `json:"phone,omitempty"`
	Email           string  `json:"email,omitempty"`
	ConsultationFee float64 `json:"consultation_fee"`
}

// Disease is a dimension row matched by name.
type Disease struct {
	ID          int64  `json:"disease_id"`
	Name        string `json:"disease_name"`
	Category    string `json:"disease_category"`
	Severity    string `json:"severity_level"`
	Description string `json:"description,omitempty"`
}

// DateDimension is one row per calendar date, keyed by the date formatted as
// an 8-digit integer (2024-05-15 -> 20240515).
type DateDimension struct {
	ID        int       `json:"date_id"`
	FullDate  time.Time `json:"full_date"`
	Day       int       `json:"day"`
	Month     int       `json:"month"`
	Year      int       `json:"year"`
	Quarter   int       `json:"quarter"`
	MonthName string    `json:"month_name"`
	DayName   string    `json:"day_name"`
	IsWeekend bool      `json:"is_weekend"`
}

// DateID derives the dimension key for a calendar date.
func DateID(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// NewDateDimension builds the full dimension row for a calendar date.
func NewDateDimension(t time.Time) DateDimension {
	wd := t.Weekday()
	return DateDimension{
		ID:        DateID(t),
		FullDate:  t,
		Day:       t.Day(),
		Month:     int(t.Month()),
		Year:      t.Year(),
		Quarter:   (int(t.Month())-1)/3 + 1,
		MonthName: t.Month().String(),
		DayName:   wd.String(),
		IsWeekend: wd == time.Saturday || wd == time.Sunday,
	}
}

// VisitFact is one row per successfully ingested visit record. DiseaseID is
// nullable; treatment and medication fields are never populated by file-based
// ingestion.
type VisitFact struct {
	ID              int64   `json:"visit_id"`
	PatientID       int64   `json:"patient_id"`
	DoctorID        int64   `json:"doctor_id"`
	HospitalID      int64   `json:"hospital_id"`
	DiseaseID       *int64  `json:"disease_id,omitempty"`
	DateID          int     `json:"visit_date_id"`
	VisitType       string  `json:"visit_type"`
	Diagnosis       string  `json:"diagnosis,omitempty"`
	TotalCost       float64 `json:"total_cost"`
	PaymentMethod   string  `json:"payment_method"`
	DurationMinutes *int    `json:"visit_duration_minutes,omitempty"`
	Status          string  `json:"status"`
}

// StagingRow captures one input row and its processing outcome for audit.
type StagingRow struct {
	ID           int64         `json:"staging_id"`
	JobID        int64         `json:"job_id"`
	SourceFile   string        `json:"source_file"`
	RawPayload   []byte        `json:"raw_payload"`
	Status       StagingStatus `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ProcessedAt  *time.Time    `json:"processed_at,omitempty"`
}

// IngestionJob is one row per upload, aggregating staging outcomes.
type IngestionJob struct {
	ID           int64      `json:"job_id"`
	JobType      string     `json:"job_type"`
	SourceFile   string     `json:"source_file"`
	TotalRecords int        `json:"total_records"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	Status       JobStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// JobSummary is the synchronous result returned to the upload caller.
type JobSummary struct {
	JobID        int64     `json:"job_id"`
	TotalRecords int       `json:"total_records"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	Status       JobStatus `json:"status"`
}
