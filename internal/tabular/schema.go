package tabular

import (
	"fmt"
	"strings"
)

// RequiredColumns is the fixed column contract for patient-visit uploads.
// Extra columns are ignored; missing columns fail the whole upload.
var RequiredColumns = []string{
	"patient_name",
	"age",
	"gender",
	"city",
	"state",
	"doctor_name",
	"specialization",
	"hospital_name",
	"hospital_type",
	"hospital_state",
	"visit_type",
	"visit_date",
	"total_cost",
	"payment_method",
}

// SchemaError reports every required column missing from an upload.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// ValidateColumns checks the table header against RequiredColumns. It returns
// a *SchemaError listing all missing columns, so callers fail the upload
// before any row is processed.
func ValidateColumns(t *Table) error {
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := t.colIdx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// TemplateCSV returns a one-row CSV template for the upload format, offered
// for download by the API layer.
func TemplateCSV() []byte {
	header := []string{
		"patient_name", "age", "gender", "phone", "email", "address", "city", "state", "pincode",
		"doctor_name", "specialization", "hospital_name", "hospital_type", "hospital_state",
		"visit_type", "visit_date", "total_cost", "payment_method", "diagnosis",
	}
	sample := []string{
		"Rajesh Sharma", "45", "Male", "+91-9876543210", "rajesh.sharma@email.com", "123 MG Road Andheri",
		"Mumbai", "Maharashtra", "400053", "Dr. Priya Nair", "Cardiology", "Apollo Hospitals Mumbai",
		"Private", "Maharashtra", "OPD", "2024-05-15", "2500", "UPI", "Routine heart checkup",
	}
	var b strings.Builder
	b.WriteString(strings.Join(header, ","))
	b.WriteByte('\n')
	b.WriteString(strings.Join(sample, ","))
	b.WriteByte('\n')
	return []byte(b.String())
}
