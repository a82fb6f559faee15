package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"gorm.io/gorm"
)

const (
	CsvContentType  = "text/csv; charset=utf-8"
	timestampLayout = "2006-01-02 15:04"
)

var utf8Bom = []byte{0xEF, 0xBB, 0xBF}

// ExportProductionDayCsv renders a production day as a day header block followed
// by one row per hour. The output starts with a UTF-8 BOM and can be fed back to
// the CSV import.
func ExportProductionDayCsv(ctx context.Context, db *gorm.DB, productionDayId uuid.UUID) ([]byte, error) {
	detail, err := models.GetProductionDay(ctx, db, productionDayId)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(utf8Bom)
	w := csv.NewWriter(&buf)

	records := [][]string{
		{"ProductionDayId", "Date", "WorkCenter", "Product", "ShiftStart", "ShiftEnd"},
		{detail.ID.String(), detail.Date, detail.WorkCenterName, detail.ProductName, detail.ShiftStart, detail.ShiftEnd},
		{},
		{"HourIndex", "HourStart", "PlanQty", "ActualQty", "Comment"},
	}
	for _, h := range detail.Hours {
		records = append(records, []string{
			strconv.Itoa(h.HourIndex),
			h.HourStart,
			strconv.Itoa(h.PlanQty),
			strconv.Itoa(h.ActualQty),
			utils.DereferencePtr(h.Comment, ""),
		})
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timestampLayout)
}
