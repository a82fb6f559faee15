package reports

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"gorm.io/gorm"
)

const allWorkCenters = "All"

// DateRange selects production days from From to To inclusive, optionally of
// one work center.
type DateRange struct {
	From         string
	To           string
	WorkCenterId *uuid.UUID
}

// NewDateRange validates both dates and swaps them when given in reverse.
func NewDateRange(from string, to string, workCenterId *uuid.UUID) (DateRange, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	fromDate, err := time.Parse(models.DateLayout, from)
	if err != nil {
		return DateRange{}, utils.InvalidInput("from %q is not yyyy-mm-dd", from)
	}
	toDate, err := time.Parse(models.DateLayout, to)
	if err != nil {
		return DateRange{}, utils.InvalidInput("to %q is not yyyy-mm-dd", to)
	}
	if toDate.Before(fromDate) {
		from, to = to, from
	}
	return DateRange{From: from, To: to, WorkCenterId: workCenterId}, nil
}

// workCenterLabel is the work center name shown in report headers, "All" when unfiltered or unknown.
func (r DateRange) workCenterLabel(ctx context.Context, db *gorm.DB) (string, error) {
	if r.WorkCenterId == nil {
		return allWorkCenters, nil
	}
	names, err := models.LookupNames(ctx, db, []uuid.UUID{*r.WorkCenterId}, nil, nil)
	if err != nil {
		return "", err
	}
	if name := names.WorkCenter(*r.WorkCenterId); name != "" {
		return name, nil
	}
	return allWorkCenters, nil
}

// FileSuffix renders the range for attachment names, e.g. 20260301_20260331_wc.
func (r DateRange) FileSuffix() string {
	suffix := strings.ReplaceAll(r.From, "-", "") + "_" + strings.ReplaceAll(r.To, "-", "")
	if r.WorkCenterId != nil {
		suffix += "_wc"
	}
	return suffix
}
