// Package ingest implements the batch ETL pipeline for patient-visit uploads:
// per-row normalization and validation, dimension find-or-create resolution,
// fact insertion, and the job/staging audit ledger.
package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/arogya-labs/warehouse-cli/internal/tabular"
)

// RowError marks a per-row validation failure. Row errors are recorded in the
// staging ledger and never abort the job.
type RowError struct {
	Reason string
}

func (e *RowError) Error() string { return e.Reason }

func rowErrorf(format string, args ...any) *RowError {
	return &RowError{Reason: fmt.Sprintf(format, args...)}
}

var visitTypeCanonical = map[string]string{
	"opd":       "OPD",
	"emergency": "Emergency",
	"ipd":       "IPD",
	"follow-up": "Follow-up",
}

var paymentMethodCanonical = map[string]string{
	"cash":      "Cash",
	"insurance": "Insurance",
	"card":      "Card",
	"upi":       "UPI",
}

var validGenders = map[string]bool{
	"male":   true,
	"female": true,
	"other":  true,
}

// visitDateLayouts is tried in order; the first layout that parses wins.
var visitDateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2006/01/02",
}

var titleCaser = cases.Title(language.English)

// Record is a fully normalized and validated input row, ready for dimension
// resolution and fact insertion.
type Record struct {
	PatientName string
	Age         int
	Gender      string
	Phone       string
	Email       string
	Address     string
	City        string
	State       string
	Pincode     string

	DoctorName      string
	Specialization  string
	Qualification   string
	ExperienceYears int
	ConsultationFee float64

	HospitalName    string
	HospitalType    string
	HospitalAddress string
	HospitalCity    string
	HospitalState   string
	HospitalPincode string
	HospitalPhone   string
	HospitalEmail   string
	BedsCount       int
	EstablishedYear int

	DiseaseName string
	Diagnosis   string

	VisitType       string
	VisitDate       time.Time
	TotalCost       float64
	PaymentMethod   string
	DurationMinutes *int
}

// ParseVisitDate parses a raw visit date against the fixed layout list.
func ParseVisitDate(value string) (time.Time, error) {
	for _, layout := range visitDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, rowErrorf("invalid visit_date: %s", value)
}

// Normalize validates one row against the controlled vocabularies and builds
// the typed Record. Validation short-circuits on the first failing rule.
func Normalize(row tabular.Row) (*Record, error) {
	gender := row.Get("gender")
	if !validGenders[strings.ToLower(gender)] {
		return nil, rowErrorf("invalid gender %q; must be Male, Female, or Other", gender)
	}

	visitType, ok := visitTypeCanonical[strings.ToLower(row.Get("visit_type"))]
	if !ok {
		return nil, rowErrorf("invalid visit_type %q; must be OPD/Emergency/IPD/Follow-up", row.Get("visit_type"))
	}

	payment, ok := paymentMethodCanonical[strings.ToLower(row.Get("payment_method"))]
	if !ok {
		return nil, rowErrorf("invalid payment_method %q; must be Cash/Insurance/Card/UPI", row.Get("payment_method"))
	}

	rawCost := row.Get("total_cost")
	if rawCost == "" {
		return nil, rowErrorf("total_cost is required")
	}
	totalCost, err := strconv.ParseFloat(rawCost, 64)
	if err != nil {
		return nil, rowErrorf("invalid total_cost: %s", rawCost)
	}

	visitDate, err := ParseVisitDate(row.Get("visit_date"))
	if err != nil {
		return nil, err
	}

	age, err := strconv.Atoi(row.Get("age"))
	if err != nil {
		return nil, rowErrorf("invalid age: %s", row.Get("age"))
	}

	experience, err := optionalInt(row.Get("experience_years"), 5)
	if err != nil {
		return nil, rowErrorf("invalid experience_years: %s", row.Get("experience_years"))
	}
	fee, err := optionalFloat(row.Get("consultation_fee"), 500)
	if err != nil {
		return nil, rowErrorf("invalid consultation_fee: %s", row.Get("consultation_fee"))
	}
	beds, err := optionalInt(row.Get("beds_count"), 100)
	if err != nil {
		return nil, rowErrorf("invalid beds_count: %s", row.Get("beds_count"))
	}
	established, err := optionalInt(row.Get("established_year"), 2000)
	if err != nil {
		return nil, rowErrorf("invalid established_year: %s", row.Get("established_year"))
	}

	var duration *int
	if raw := row.Get("visit_duration_minutes"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			return nil, rowErrorf("invalid visit_duration_minutes: %s", raw)
		}
		duration = &d
	}

	rec := &Record{
		PatientName: row.Get("patient_name"),
		Age:         age,
		Gender:      titleCaser.String(strings.ToLower(gender)),
		Phone:       row.Get("phone"),
		Email:       row.Get("email"),
		Address:     row.Get("address"),
		City:        row.Get("city"),
		State:       row.Get("state"),
		Pincode:     row.Get("pincode"),

		DoctorName:      row.Get("doctor_name"),
		Specialization:  fallback(row.Get("specialization"), "General Medicine"),
		Qualification:   fallback(row.Get("qualification"), "MBBS"),
		ExperienceYears: experience,
		ConsultationFee: fee,

		HospitalName:    row.Get("hospital_name"),
		HospitalType:    fallback(row.Get("hospital_type"), "Private"),
		HospitalAddress: fallback(row.Get("hospital_address"), row.Get("address")),
		HospitalCity:    fallback(row.Get("hospital_city"), row.Get("city")),
		HospitalState:   fallback(row.Get("hospital_state"), row.Get("state")),
		HospitalPincode: fallback(row.Get("hospital_pincode"), row.Get("pincode")),
		HospitalPhone:   row.Get("hospital_phone"),
		HospitalEmail:   row.Get("hospital_email"),
		BedsCount:       beds,
		EstablishedYear: established,

		DiseaseName: row.Get("disease_name"),
		Diagnosis:   row.Get("diagnosis"),

		VisitType:       visitType,
		VisitDate:       visitDate,
		TotalCost:       totalCost,
		PaymentMethod:   payment,
		DurationMinutes: duration,
	}
	return rec, nil
}

func fallback(value, alt string) string {
	if value == "" {
		return alt
	}
	return value
}

func optionalInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func optionalFloat(raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}
