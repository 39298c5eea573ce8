package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func rosterDataset() Dataset {
	return Dataset{
		Title:    "Chess Club",
		Subtitle: "Monday 3:30 PM - 4:30 PM",
		Headers:  []string{"Student", "Grade", "Absent"},
		Rows: []map[string]string{
			{"Student": "adams, Bob", "Grade": "4", "Absent": ""},
			{"Student": "Smith, Ann", "Grade": "5", "Absent": "VC ABSENT"},
		},
		Marked: map[int]bool{1: true},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(rosterDataset())
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(out, utf8BOM))
	lines := strings.Split(strings.TrimSpace(string(out[len(utf8BOM):])), "\r\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student,Grade,Absent", lines[0])
	assert.Equal(t, "\"adams, Bob\",4,", lines[1])
	assert.Equal(t, "\"Smith, Ann\",5,VC ABSENT", lines[2])
}

func TestCSVExporterNeutralizesFormulas(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"Student", "Notes"},
		Rows:    []map[string]string{{"Student": "=HYPERLINK(\"x\")", "Notes": "needs pickup"}},
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), "\"'=HYPERLINK(\"\"x\"\")\",needs pickup")
}

func TestExportersRequireHeaders(t *testing.T) {
	for _, exp := range []Exporter{NewCSVExporter(), NewPDFExporter(), NewXLSXExporter()} {
		_, err := exp.Render(Dataset{})
		assert.Error(t, err, exp.Extension())
	}
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(rosterDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter().Render(rosterDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	title, err := f.GetCellValue(sheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Chess Club", title)

	header, err := f.GetCellValue(sheetName, "A4")
	require.NoError(t, err)
	assert.Equal(t, "Student", header)

	last, err := f.GetCellValue(sheetName, "C6")
	require.NoError(t, err)
	assert.Equal(t, "VC ABSENT", last)
}
