package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type ParetoItem struct {
	DowntimeReasonId  uuid.UUID       `json:"downtime_reason_id"`
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	TotalMinutes      int             `json:"total_minutes"`
	Percent           decimal.Decimal `json:"percent"`
	CumulativePercent decimal.Decimal `json:"cumulative_percent"`
}

// DowntimePareto ranks downtime reasons by booked minutes. Percentages are of
// the range total, rounded to 2 places; the cumulative share accumulates the
// unrounded values. No bookings give an empty list.
func DowntimePareto(ctx context.Context, db *gorm.DB, r DateRange) ([]ParetoItem, int, error) {
	rows, err := models.SumDowntimeByReason(ctx, db, r.From, r.To, r.WorkCenterId)
	if err != nil {
		return nil, 0, err
	}
	total := 0
	for _, row := range rows {
		total += row.TotalMinutes
	}
	items := make([]ParetoItem, 0, len(rows))
	if total <= 0 {
		return items, 0, nil
	}

	totalDec := decimal.NewFromInt(int64(total))
	cumulative := decimal.Zero
	for _, row := range rows {
		pct := decimal.NewFromInt(int64(row.TotalMinutes)).Mul(hundred).Div(totalDec)
		cumulative = cumulative.Add(pct)
		items = append(items, ParetoItem{
			DowntimeReasonId:  row.DowntimeReasonId,
			Code:              row.Code,
			Name:              row.Name,
			TotalMinutes:      row.TotalMinutes,
			Percent:           pct.Round(2),
			CumulativePercent: cumulative.Round(2),
		})
	}
	return items, total, nil
}

// ExportParetoCsv renders the downtime Pareto with a report header block. The
// output starts with a UTF-8 BOM.
func ExportParetoCsv(ctx context.Context, db *gorm.DB, r DateRange) ([]byte, error) {
	items, total, err := DowntimePareto(ctx, db, r)
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
		{"Report", "Pareto Downtime"},
		{"From", r.From},
		{"To", r.To},
		{"WorkCenter", workCenter},
		{"TotalMinutes", strconv.Itoa(total)},
		{},
		{"Reason", "Minutes", "Percent", "CumPercent"},
	}
	for _, it := range items {
		records = append(records, []string{
			it.Name,
			strconv.Itoa(it.TotalMinutes),
			it.Percent.String(),
			it.CumulativePercent.String(),
		})
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
