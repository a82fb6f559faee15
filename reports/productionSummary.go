package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const SummarySheetName = "Summary"

type ProductionSummaryItem struct {
	ProductionDayId     uuid.UUID                  `json:"production_day_id"`
	Date                string                     `json:"date"`
	WorkCenterName      string                     `json:"work_center_name"`
	ProductName         string                     `json:"product_name"`
	TaktSec             int                        `json:"takt_sec"`
	PlanPerHour         int                        `json:"plan_per_hour"`
	PlanShift           int                        `json:"plan_shift"`
	ActualShift         int                        `json:"actual_shift"`
	DeviationShift      int                        `json:"deviation_shift"`
	DowntimeMinutes     int                        `json:"downtime_minutes"`
	DeviationEvents     int                        `json:"deviation_events"`
	OpenDeviationEvents int                        `json:"open_deviation_events"`
	MaxEscalationLevel  int                        `json:"max_escalation_level"`
	Status              models.ProductionDayStatus `json:"status"`
}

var summaryHeadings = []string{
	"Date", "WorkCenter", "Product", "TaktSec", "PlanPerHour",
	"PlanShift", "ActualShift", "DeviationShift", "DowntimeMinutes",
	"DeviationEvents", "OpenDeviationEvents", "MaxEscalationLevel", "Status",
}

func (it ProductionSummaryItem) GetCellValues() []interface{} {
	return []interface{}{
		it.Date,
		it.WorkCenterName,
		it.ProductName,
		it.TaktSec,
		it.PlanPerHour,
		it.PlanShift,
		it.ActualShift,
		it.DeviationShift,
		it.DowntimeMinutes,
		it.DeviationEvents,
		it.OpenDeviationEvents,
		it.MaxEscalationLevel,
		string(it.Status),
	}
}

// ProductionSummary returns one shift total per production day in the range,
// ordered by date, work center name and product name.
func ProductionSummary(ctx context.Context, db *gorm.DB, r DateRange) ([]ProductionSummaryItem, error) {
	query := db.WithContext(ctx).
		Model(&models.ProductionDay{}).
		Joins("JOIN work_centers ON work_centers.id = production_days.work_center_id").
		Joins("JOIN products ON products.id = production_days.product_id").
		Where("production_days.date >= ? AND production_days.date <= ?", r.From, r.To)
	if r.WorkCenterId != nil {
		query = query.Where("production_days.work_center_id = ?", *r.WorkCenterId)
	}

	var days []models.ProductionDay
	if err := query.
		Order("production_days.date ASC").
		Order("work_centers.name ASC").
		Order("products.name ASC").
		Find(&days).Error; err != nil {
		return nil, err
	}
	items := make([]ProductionSummaryItem, 0, len(days))
	if len(days) == 0 {
		return items, nil
	}

	dayIds := make([]uuid.UUID, 0, len(days))
	workCenterIds := make([]uuid.UUID, 0, len(days))
	productIds := make([]uuid.UUID, 0, len(days))
	for _, d := range days {
		dayIds = append(dayIds, d.ID)
		workCenterIds = append(workCenterIds, d.WorkCenterId)
		productIds = append(productIds, d.ProductId)
	}

	totals, err := models.SumProductionDayTotals(ctx, db, dayIds)
	if err != nil {
		return nil, err
	}
	downtime, err := models.SumDowntimeByDay(ctx, db, dayIds)
	if err != nil {
		return nil, err
	}
	deviations, err := models.SumDeviationStatsByDay(ctx, db, dayIds)
	if err != nil {
		return nil, err
	}
	names, err := models.LookupNames(ctx, db, workCenterIds, productIds, nil)
	if err != nil {
		return nil, fmt.Errorf("lookup names: %w", err)
	}

	for _, d := range days {
		t := totals[d.ID]
		stats := deviations[d.ID]
		items = append(items, ProductionSummaryItem{
			ProductionDayId:     d.ID,
			Date:                d.Date,
			WorkCenterName:      names.WorkCenter(d.WorkCenterId),
			ProductName:         names.Product(d.ProductId),
			TaktSec:             d.TaktSec,
			PlanPerHour:         d.PlanPerHour,
			PlanShift:           t.PlanQty,
			ActualShift:         t.ActualQty,
			DeviationShift:      t.Deviation(),
			DowntimeMinutes:     downtime[d.ID],
			DeviationEvents:     stats.Total,
			OpenDeviationEvents: stats.NonClosed,
			MaxEscalationLevel:  stats.MaxEscalationLevel,
			Status:              d.Status,
		})
	}
	return items, nil
}

// ExportProductionSummaryCsv renders the summary with a report header block,
// starting with a UTF-8 BOM.
func ExportProductionSummaryCsv(ctx context.Context, db *gorm.DB, r DateRange) ([]byte, error) {
	items, err := ProductionSummary(ctx, db, r)
	if err != nil {
		return nil, err
	}
	workCenter, err := r.workCenterLabel(ctx, db)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(utf8Bom)
	w := csv.NewWriter(&buf)

	records := [][]string{
		{"Report", "Production Summary"},
		{"From", r.From},
		{"To", r.To},
		{"WorkCenter", workCenter},
		{},
		summaryHeadings,
	}
	for _, it := range items {
		values := it.GetCellValues()
		record := make([]string, 0, len(values))
		for _, v := range values {
			record = append(record, fmt.Sprint(v))
		}
		records = append(records, record)
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportProductionSummaryXlsx renders the summary rows on one sheet. The caller closes the file.
func ExportProductionSummaryXlsx(items []ProductionSummaryItem) (*excelize.File, error) {
	rows := make([]ExcelExporter, 0, len(items))
	for _, it := range items {
		rows = append(rows, it)
	}
	return exportExcel(SummarySheetName, rows, summaryHeadings...)
}
