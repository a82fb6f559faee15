package reports

import (
	"github.com/mmdatafocus/prodanalysis_backend/workflow"
	"github.com/xuri/excelize/v2"
)

const DeviationSheetName = "Deviations"

var deviationHeadings = []string{
	"ProductionDate", "HourIndex", "HourStart", "WorkCenter", "Product",
	"PlanQty", "ActualQty", "DeviationQty", "Status", "EscalationLevel",
	"CreatedAt", "AcknowledgedAt", "ClosedAt", "AgeMinutes",
}

type deviationRow workflow.DeviationEventListItem

func (r deviationRow) GetCellValues() []interface{} {
	return []interface{}{
		r.ProductionDate,
		r.HourIndex,
		r.HourStart,
		r.WorkCenterName,
		r.ProductName,
		r.PlanQty,
		r.ActualQty,
		r.DeviationQty,
		string(r.Status),
		r.CurrentEscalationLevel,
		r.CreatedAt.Format(timestampLayout),
		formatOptionalTime(r.AcknowledgedAt),
		formatOptionalTime(r.ClosedAt),
		r.AgeMinutes,
	}
}

// ExportDeviationsXlsx renders the deviation list in list order. The caller closes the file.
func ExportDeviationsXlsx(items []workflow.DeviationEventListItem) (*excelize.File, error) {
	rows := make([]ExcelExporter, 0, len(items))
	for _, it := range items {
		rows = append(rows, deviationRow(it))
	}
	return exportExcel(DeviationSheetName, rows, deviationHeadings...)
}
