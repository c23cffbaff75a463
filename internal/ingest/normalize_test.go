package ingest

import (
	"bytes"
	"encoding/csv"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arogya-labs/warehouse-cli/internal/tabular"
)

// baseRow is a fully valid input row; tests override single fields.
func baseRow() map[string]string {
	return map[string]string{
		"patient_name":   "Rajesh Sharma",
		"age":            "45",
		"gender":         "male",
		"city":           "Mumbai",
		"state":          "Maharashtra",
		"doctor_name":    "Dr. Priya Nair",
		"specialization": "Cardiology",
		"hospital_name":  "Apollo Hospitals Mumbai",
		"hospital_type":  "Private",
		"hospital_state": "Maharashtra",
		"visit_type":     "opd",
		"visit_date":     "2024-05-15",
		"total_cost":     "2500",
		"payment_method": "upi",
	}
}

func rowFromMap(t *testing.T, m map[string]string) tabular.Row {
	t.Helper()

	cols := make([]string, 0, len(m))
	for col := range m {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	values := make([]string, len(cols))
	for i, col := range cols {
		values[i] = m[col]
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write(cols))
	require.NoError(t, w.Write(values))
	w.Flush()

	table, err := tabular.Read(buf.Bytes(), "test.csv")
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	return table.Row(0)
}

func TestNormalize_Valid(t *testing.T) {
	rec, err := Normalize(rowFromMap(t, baseRow()))
	require.NoError(t, err)

	assert.Equal(t, "Rajesh Sharma", rec.PatientName)
	assert.Equal(t, 45, rec.Age)
	assert.Equal(t, "Male", rec.Gender)
	assert.Equal(t, "OPD", rec.VisitType)
	assert.Equal(t, "UPI", rec.PaymentMethod)
	assert.Equal(t, 2500.0, rec.TotalCost)
	assert.Equal(t, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), rec.VisitDate)
	assert.Nil(t, rec.DurationMinutes)
}

func TestNormalize_GenderCanonicalization(t *testing.T) {
	for raw, want := range map[string]string{
		"male": "Male", "FEMALE": "Female", "Other": "Other", "MaLe": "Male",
	} {
		row := baseRow()
		row["gender"] = raw
		rec, err := Normalize(rowFromMap(t, row))
		require.NoError(t, err, "gender %q", raw)
		assert.Equal(t, want, rec.Gender)
	}
}

func TestNormalize_InvalidGender(t *testing.T) {
	row := baseRow()
	row["gender"] = "Unknown"

	_, err := Normalize(rowFromMap(t, row))
	require.Error(t, err)

	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Contains(t, rowErr.Reason, "invalid gender")
}

func TestNormalize_VisitTypeCanonicalization(t *testing.T) {
	for raw, want := range map[string]string{
		"opd": "OPD", "EMERGENCY": "Emergency", "Ipd": "IPD", "follow-up": "Follow-up", "FOLLOW-UP": "Follow-up",
	} {
		row := baseRow()
		row["visit_type"] = raw
		rec, err := Normalize(rowFromMap(t, row))
		require.NoError(t, err, "visit_type %q", raw)
		assert.Equal(t, want, rec.VisitType)
	}
}

func TestNormalize_InvalidVisitType(t *testing.T) {
	row := baseRow()
	row["visit_type"] = "walk-in"

	_, err := Normalize(rowFromMap(t, row))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid visit_type")
}

func TestNormalize_PaymentMethodCanonicalization(t *testing.T) {
	for raw, want := range map[string]string{
		"cash": "Cash", "INSURANCE": "Insurance", "Card": "Card", "upi": "UPI",
	} {
		row := baseRow()
		row["payment_method"] = raw
		rec, err := Normalize(rowFromMap(t, row))
		require.NoError(t, err, "payment_method %q", raw)
		assert.Equal(t, want, rec.PaymentMethod)
	}
}

func TestNormalize_InvalidPaymentMethod(t *testing.T) {
	row := baseRow()
	row["payment_method"] = "cheque"

	_, err := Normalize(rowFromMap(t, row))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid payment_method")
}

func TestNormalize_MissingTotalCost(t *testing.T) {
	row := baseRow()
	row["total_cost"] = ""

	_, err := Normalize(rowFromMap(t, row))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total_cost is required")
}

func TestNormalize_UnparseableTotalCost(t *testing.T) {
	row := baseRow()
	row["total_cost"] = "two thousand"

	_, err := Normalize(rowFromMap(t, row))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid total_cost")
}

func TestNormalize_InvalidAge(t *testing.T) {
	row := baseRow()
	row["age"] = "forty"

	_, err := Normalize(rowFromMap(t, row))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid age")
}

func TestNormalize_ShortCircuitsOnFirstFailure(t *testing.T) {
	row := baseRow()
	row["gender"] = "Unknown"
	row["visit_type"] = "walk-in"
	row["total_cost"] = ""

	_, err := Normalize(rowFromMap(t, row))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid gender")
	assert.NotContains(t, err.Error(), "visit_type")
}

func TestNormalize_Defaults(t *testing.T) {
	rec, err := Normalize(rowFromMap(t, baseRow()))
	require.NoError(t, err)

	assert.Equal(t, "MBBS", rec.Qualification)
	assert.Equal(t, 5, rec.ExperienceYears)
	assert.Equal(t, 500.0, rec.ConsultationFee)
	assert.Equal(t, 100, rec.BedsCount)
	assert.Equal(t, 2000, rec.EstablishedYear)
}

func TestNormalize_HospitalStateFallsBackToPatientState(t *testing.T) {
	row := baseRow()
	row["hospital_state"] = ""
	row["state"] = "Kerala"

	rec, err := Normalize(rowFromMap(t, row))
	require.NoError(t, err)
	assert.Equal(t, "Kerala", rec.HospitalState)
}

func TestNormalize_DurationMinutes(t *testing.T) {
	row := baseRow()
	row["visit_duration_minutes"] = "30"

	rec, err := Normalize(rowFromMap(t, row))
	require.NoError(t, err)
	require.NotNil(t, rec.DurationMinutes)
	assert.Equal(t, 30, *rec.DurationMinutes)
}

func TestParseVisitDate_AcceptedFormats(t *testing.T) {
	want := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2024-05-15", "15-05-2024", "15/05/2024", "2024/05/15"} {
		got, err := ParseVisitDate(raw)
		require.NoError(t, err, "date %q", raw)
		assert.Equal(t, want, got, "date %q", raw)
	}
}

func TestParseVisitDate_InvalidMonth(t *testing.T) {
	_, err := ParseVisitDate("15-13-2024")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid visit_date: 15-13-2024")
}

func TestParseVisitDate_Garbage(t *testing.T) {
	_, err := ParseVisitDate("yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid visit_date")
}
