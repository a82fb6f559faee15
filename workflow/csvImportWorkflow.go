package workflow

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/config"
	"github.com/mmdatafocus/prodanalysis_backend/metrics"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	csvColumnHourIndex = "HourIndex"
	csvColumnActualQty = "ActualQty"
	csvColumnComment   = "Comment"
	csvImportLockTTL   = 2 * time.Minute
	maxCsvLineSize     = 1 << 20
)

// ErrImportInProgress is returned while another import of the same production day holds the lock.
var ErrImportInProgress = errors.New("csv import already in progress for this production day")

type CsvImportResult struct {
	UpdatedRows int      `json:"updated_rows"`
	SkippedRows int      `json:"skipped_rows"`
	Errors      []string `json:"errors"`
}

func (r *CsvImportResult) skip(lineNo int, format string, args ...any) {
	r.SkippedRows++
	r.Errors = append(r.Errors, fmt.Sprintf("Line %d: ", lineNo)+fmt.Sprintf(format, args...))
	metrics.CsvImportRowsTotal.WithLabelValues("error").Inc()
}

type csvColumns struct {
	hourIndex int
	actualQty int
	comment   int
}

// ImportProductionDayCsv applies the ActualQty/Comment columns of a CSV export
// to the hourly records of a production day. Lines before the one containing
// "HourIndex" are ignored. Each row commits on its own, so a bad row is reported
// as "Line N: ..." and counted as skipped without affecting the others.
func (s *DeviationService) ImportProductionDayCsv(ctx context.Context, productionDayId uuid.UUID, r io.Reader, userId uuid.UUID) (*CsvImportResult, error) {
	if userId == uuid.Nil {
		return nil, utils.InvalidInput("user id is required")
	}

	lock, err := obtainImportLock(ctx, productionDayId)
	if err != nil {
		return nil, err
	}
	defer func() {
		if lock == nil {
			return
		}
		if releaseErr := lock.Release(context.Background()); releaseErr != nil {
			s.Logger.WithFields(logrus.Fields{
				"field":             "ImportProductionDayCsv",
				"production_day_id": productionDayId,
			}).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}()

	_, hours, err := models.FetchProductionDayHours(ctx, s.DB, productionDayId)
	if err != nil {
		return nil, err
	}

	lines, err := readCsvLines(r)
	if err != nil {
		return nil, err
	}

	result := &CsvImportResult{Errors: []string{}}

	headerIndex := findHeaderLine(lines, csvColumnHourIndex)
	if headerIndex < 0 {
		return nil, utils.InvalidInput("CSV must contain an '%s' header", csvColumnHourIndex)
	}
	if headerIndex+1 >= len(lines) {
		return result, nil
	}
	header, err := parseCsvLine(lines[headerIndex])
	if err != nil {
		return nil, utils.InvalidInput("header line: %v", err)
	}
	cols := csvColumns{
		hourIndex: findColumn(header, csvColumnHourIndex),
		actualQty: findColumn(header, csvColumnActualQty),
		comment:   findColumn(header, csvColumnComment),
	}
	if cols.hourIndex < 0 {
		return nil, utils.InvalidInput("CSV must contain '%s' column", csvColumnHourIndex)
	}
	if cols.actualQty < 0 {
		return nil, utils.InvalidInput("CSV must contain '%s' column", csvColumnActualQty)
	}

	for i := headerIndex + 1; i < len(lines); i++ {
		lineNo := i + 1
		if strings.TrimSpace(lines[i]) == "" {
			result.SkippedRows++
			metrics.CsvImportRowsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		row, err := parseCsvLine(lines[i])
		if err != nil {
			result.skip(lineNo, "unreadable row: %v.", err)
			continue
		}
		if cols.hourIndex >= len(row) {
			result.skip(lineNo, "missing HourIndex.")
			continue
		}
		hourIndex, err := strconv.Atoi(row[cols.hourIndex])
		if err != nil {
			result.skip(lineNo, "invalid HourIndex '%s'.", row[cols.hourIndex])
			continue
		}
		hr, ok := hours[hourIndex]
		if !ok {
			result.skip(lineNo, "HourIndex %d not found for this production day.", hourIndex)
			continue
		}
		actualText := ""
		if cols.actualQty < len(row) {
			actualText = row[cols.actualQty]
		}
		actual, err := strconv.Atoi(actualText)
		if err != nil || actual < 0 {
			result.skip(lineNo, "invalid ActualQty '%s'.", actualText)
			continue
		}
		var comment *string
		if cols.comment >= 0 && cols.comment < len(row) {
			comment = utils.TrimmedOrNil(&row[cols.comment])
		}

		changed, err := s.importRow(ctx, hr.ID, actual, comment, userId)
		if err != nil {
			config.LogError(s.Logger, "DeviationService", "ImportProductionDayCsv", fmt.Sprintf("line %d", lineNo), hr.ID, err)
			result.skip(lineNo, "%v.", err)
			continue
		}
		if changed {
			result.UpdatedRows++
			metrics.CsvImportRowsTotal.WithLabelValues("updated").Inc()
		} else {
			result.SkippedRows++
			metrics.CsvImportRowsTotal.WithLabelValues("skipped").Inc()
		}
	}

	s.Logger.WithFields(logrus.Fields{
		"field":             "ImportProductionDayCsv",
		"production_day_id": productionDayId,
		"updated":           result.UpdatedRows,
		"skipped":           result.SkippedRows,
		"errors":            len(result.Errors),
	}).Info("csv import finished")
	return result, nil
}

func (s *DeviationService) importRow(ctx context.Context, hourlyRecordId uuid.UUID, actual int, comment *string, userId uuid.UUID) (bool, error) {
	now := s.Clock.Now()
	changed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hr, err := models.FetchHourlyRecordForUpdate(ctx, tx, hourlyRecordId)
		if err != nil {
			return err
		}
		// plan is not part of the import; only actual and comment count as a change
		changed = hr.Actual() != actual || !utils.StringPtrEqual(hr.Comment, comment)
		if _, err := models.ApplyHourlyValues(ctx, tx, hr, hr.PlanQty, actual, comment, userId, now); err != nil {
			return err
		}
		_, err = ReconcileDeviation(ctx, tx, hr, userId, now)
		return err
	})
	return changed, err
}

// obtainImportLock returns nil without redis; imports then rely on row locks only.
func obtainImportLock(ctx context.Context, productionDayId uuid.UUID) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	lock, err := locker.Obtain(ctx, utils.ImportLockKey(productionDayId.String()), csvImportLockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrImportInProgress
	}
	if err != nil {
		config.GetLogger().WithFields(logrus.Fields{
			"field":             "ImportProductionDayCsv",
			"production_day_id": productionDayId,
		}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		return nil, nil
	}
	return lock, nil
}

func readCsvLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCsvLineSize)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(lines) == 0 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, utils.InvalidInput("csv exceeds %d bytes", tooLarge.Limit)
		}
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, utils.InvalidInput("csv line exceeds %d bytes", maxCsvLineSize)
		}
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return lines, nil
}

func findHeaderLine(lines []string, mustContain string) int {
	needle := strings.ToLower(mustContain)
	for i, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if strings.Contains(strings.ToLower(t), needle) {
			return i
		}
	}
	return -1
}

func findColumn(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// parseCsvLine splits one physical line; quoted fields may contain commas.
func parseCsvLine(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	record, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []string{""}, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	return record, nil
}
