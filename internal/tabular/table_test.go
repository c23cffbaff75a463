package tabular

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			cell := row.AddCell()
			cell.SetString(cellData)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestRead_CSV(t *testing.T) {
	content := []byte("name,age,city\nAsha,34,Pune\nRavi,41,Delhi\n")

	table, err := Read(content, "visits.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age", "city"}, table.Header())
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "Asha", table.Row(0).Get("name"))
	assert.Equal(t, "41", table.Row(1).Get("age"))
}

func TestRead_CSVUppercaseExtension(t *testing.T) {
	table, err := Read([]byte("a,b\n1,2\n"), "VISITS.CSV")
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
}

func TestRead_XLSX(t *testing.T) {
	content := createTestXLSX(t, [][]string{
		{"name", "age"},
		{"Asha", "34"},
		{"Ravi", "41"},
	})

	table, err := Read(content, "visits.xlsx")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, table.Header())
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "Ravi", table.Row(1).Get("name"))
}

func TestRead_UnsupportedExtension(t *testing.T) {
	_, err := Read([]byte("whatever"), "visits.txt")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRead_NoExtension(t *testing.T) {
	_, err := Read([]byte("a,b\n"), "visits")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRead_EmptyCSV(t *testing.T) {
	_, err := Read([]byte(""), "visits.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

func TestRow_GetTrimsAndToleratesShortRecords(t *testing.T) {
	content := []byte("name,age,city\n  Asha  ,34\n")

	table, err := Read(content, "v.csv")
	require.NoError(t, err)

	row := table.Row(0)
	assert.Equal(t, "Asha", row.Get("name"))
	assert.Equal(t, "", row.Get("city")) // record shorter than header
	assert.Equal(t, "", row.Get("missing_column"))
	assert.True(t, row.Has("city"))
	assert.False(t, row.Has("missing_column"))
}

func TestRow_Map(t *testing.T) {
	table, err := Read([]byte("a,b\n1, 2 \n"), "v.csv")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, table.Row(0).Map())
}
