package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset(columns int) Dataset {
	headers := make([]string, columns)
	row := map[string]string{}
	for i := range headers {
		headers[i] = string(rune('A' + i))
		row[headers[i]] = "1.50"
	}
	return Dataset{Headers: headers, Rows: []map[string]string{row}, Notes: []string{"Overloaded instructors: 0"}}
}

func TestCSVExporterRendersHeaderOrder(t *testing.T) {
	data := Dataset{
		Headers: []string{"Instructor", "Executed"},
		Rows:    []map[string]string{{"Executed": "12.00", "Instructor": "inst-1"}},
	}
	out, err := NewCSVExporter().Render(data, "ignored")
	require.NoError(t, err)
	assert.Equal(t, "Instructor,Executed\ninst-1,12.00\n", string(out))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{}, "")
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}

func TestPDFExporterProducesDocument(t *testing.T) {
	for _, columns := range []int{3, 11} {
		out, err := NewPDFExporter().Render(sampleDataset(columns), "Horas por instructor 2025-03")
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	}
}
