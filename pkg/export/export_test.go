package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	data := Dataset{Title: "Proposals", Headers: []string{"id", "status", "notes"}}
	data.AddRow("a-1", "APPROVED", "looks good, thanks")
	data.AddRow("a-2", "PENDING")
	return data
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("xlsx")
	require.Error(t, err)
}

func TestCSVExporterQuotesAndPads(t *testing.T) {
	out, err := Render(FormatCSV, sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "id,status,notes\na-1,APPROVED,\"looks good, thanks\"\na-2,PENDING,\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterProducesDocument(t *testing.T) {
	data := sampleDataset()
	for i := 0; i < 80; i++ {
		data.AddRow("row", "REJECTED", "a very long note that will not fit inside a single narrow column of the table")
	}
	out, err := Render(FormatPDF, data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}
