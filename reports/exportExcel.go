package reports

import (
	"github.com/xuri/excelize/v2"
)

const (
	defaultSheetName = "Sheet1"
	XlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type ExcelExporter interface {
	GetCellValues() []interface{}
}

// exportExcel writes headings to row 1 and one row per exporter below it.
func exportExcel(sheetName string, data []ExcelExporter, headings ...string) (*excelize.File, error) {
	f := excelize.NewFile()
	if sheetName != defaultSheetName {
		if err := f.SetSheetName(defaultSheetName, sheetName); err != nil {
			f.Close()
			return nil, err
		}
	}

	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			f.Close()
			return nil, err
		}
	}

	rowNo := 2
	for _, d := range data {
		for i, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(i+1, rowNo)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, err
			}
		}
		rowNo++
	}

	if len(headings) > 0 {
		if err := f.SetPanes(sheetName, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}
