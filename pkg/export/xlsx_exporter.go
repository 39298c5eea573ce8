package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Roster"

// XLSXExporter renders datasets into a single-sheet workbook.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *XLSXExporter) Extension() string { return "xlsx" }

// Render writes the title rows, a styled header and one line per dataset row.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	lastCol := colName(len(data.Headers) - 1)
	if err := f.SetColWidth(sheetName, "A", lastCol, 20); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	markedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FCE4E4"}, Pattern: 1},
	})

	row := 1
	if data.Title != "" {
		_ = f.SetCellValue(sheetName, cell("A", row), data.Title)
		_ = f.SetCellStyle(sheetName, cell("A", row), cell("A", row), titleStyle)
		row++
	}
	if data.Subtitle != "" {
		_ = f.SetCellValue(sheetName, cell("A", row), data.Subtitle)
		row++
	}
	if row > 1 {
		row++
	}

	for i, h := range data.Headers {
		_ = f.SetCellValue(sheetName, cell(colName(i), row), h)
	}
	_ = f.SetCellStyle(sheetName, cell("A", row), cell(lastCol, row), headerStyle)
	row++

	for i, record := range data.Rows {
		for j, h := range data.Headers {
			if err := f.SetCellValue(sheetName, cell(colName(j), row), record[h]); err != nil {
				return nil, fmt.Errorf("write xlsx cell: %w", err)
			}
		}
		if data.Marked[i] {
			_ = f.SetCellStyle(sheetName, cell("A", row), cell(lastCol, row), markedStyle)
		}
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
