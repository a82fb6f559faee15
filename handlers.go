package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/config"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/reports"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"github.com/mmdatafocus/prodanalysis_backend/workflow"
	"github.com/sirupsen/logrus"
)

const maxImportSize = 10 << 20

type api struct {
	logger  *logrus.Logger
	options config.DeviationOptions
	clock   utils.Clock
	service atomic.Pointer[workflow.DeviationService]
}

func newAPI(logger *logrus.Logger, options config.DeviationOptions, clock utils.Clock) *api {
	return &api{logger: logger, options: options, clock: clock}
}

func (a *api) setService(s *workflow.DeviationService) { a.service.Store(s) }

func (a *api) ready() bool { return a.service.Load() != nil }

func (a *api) deviations() *workflow.DeviationService { return a.service.Load() }

// respondError maps engine errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrImportInProgress), errors.Is(err, models.ErrProductionDayClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathId(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func actingUser(c *gin.Context) uuid.UUID {
	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	return userId
}

// optionalQueryId parses an optional uuid query parameter.
func optionalQueryId(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, utils.InvalidInput("%s %q is not a uuid", name, raw)
	}
	return &id, nil
}

func optionalQueryString(c *gin.Context, name string) *string {
	if v := strings.TrimSpace(c.Query(name)); v != "" {
		return &v
	}
	return nil
}

func listFilterFromQuery(c *gin.Context) (workflow.ListDeviationFilter, error) {
	var (
		filter workflow.ListDeviationFilter
		err    error
	)
	filter.Date = optionalQueryString(c, "date")
	if filter.WorkCenterId, err = optionalQueryId(c, "workCenterId"); err != nil {
		return filter, err
	}
	if raw := strings.TrimSpace(c.Query("includeClosed")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, utils.InvalidInput("includeClosed %q is not a boolean", raw)
		}
		filter.IncludeClosed = v
	}
	return filter, nil
}

func (a *api) listDeviations(c *gin.Context) {
	filter, err := listFilterFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := a.deviations().List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (a *api) exportDeviations(c *gin.Context) {
	filter, err := listFilterFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := a.deviations().List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	f, err := reports.ExportDeviationsXlsx(items)
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", reports.XlsxContentType)
	c.Header("Content-Disposition", "attachment; filename=deviations.xlsx")
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		config.LogError(a.logger, "server", "exportDeviations", "write xlsx", nil, err)
	}
}

func (a *api) getDeviation(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	detail, err := a.deviations().Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (a *api) acknowledgeDeviation(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	applied, err := a.deviations().Acknowledge(c.Request.Context(), id, actingUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "applied": applied})
}

type closeDeviationRequest struct {
	Note *string `json:"note"`
}

func (a *api) closeDeviation(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req closeDeviationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	applied, err := a.deviations().Close(c.Request.Context(), id, actingUser(c), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "applied": applied})
}

func (a *api) createProductionDay(c *gin.Context) {
	var input models.NewProductionDay
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	svc := a.deviations()
	day, err := models.CreateProductionDay(c.Request.Context(), svc.DB, &input, actingUser(c), svc.Clock.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, day)
}

func (a *api) getProductionDay(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	detail, err := models.GetProductionDay(c.Request.Context(), a.deviations().DB, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type updateHourlyActualRequest struct {
	ActualQty *int    `json:"actual_qty"`
	Comment   *string `json:"comment"`
}

func (a *api) updateHourlyActual(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req updateHourlyActualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	changed, err := a.deviations().UpdateHourlyActual(c.Request.Context(), workflow.UpdateHourlyActualInput{
		HourlyRecordId: id,
		ActualQty:      req.ActualQty,
		Comment:        req.Comment,
	}, actingUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "changed": changed})
}

// importProductionDay accepts a multipart "file" field or the raw CSV as body.
func (a *api) importProductionDay(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var body io.Reader
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fh.Size > maxImportSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", maxImportSize)})
			return
		}
		file, err := fh.Open()
		if err != nil {
			respondError(c, err)
			return
		}
		defer file.Close()
		body = file
	} else {
		body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize)
	}

	result, err := a.deviations().ImportProductionDayCsv(c.Request.Context(), id, body, actingUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *api) exportProductionDay(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	data, err := reports.ExportProductionDayCsv(c.Request.Context(), a.deviations().DB, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=production-day-%s.csv", id))
	c.Data(http.StatusOK, reports.CsvContentType, data)
}

func (a *api) listProductionDays(c *gin.Context) {
	var (
		filter models.ProductionDayFilter
		err    error
	)
	filter.Date = optionalQueryString(c, "date")
	if filter.WorkCenterId, err = optionalQueryId(c, "workCenterId"); err != nil {
		respondError(c, err)
		return
	}
	if raw := optionalQueryString(c, "status"); raw != nil {
		status := models.ProductionDayStatus(*raw)
		if !status.IsValid() {
			respondError(c, utils.InvalidInput("status %q is not Active or Closed", *raw))
			return
		}
		filter.Status = &status
	}
	items, err := models.ListProductionDays(c.Request.Context(), a.deviations().DB, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (a *api) listDowntimeReasons(c *gin.Context) {
	reasons, err := models.ListActiveDowntimeReasons(c.Request.Context(), a.deviations().DB)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reasons)
}

func (a *api) listHourlyDowntimes(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	rows, err := models.ListHourlyDowntimes(c.Request.Context(), a.deviations().DB, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (a *api) upsertHourlyDowntime(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.UpsertHourlyDowntime
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	input.HourlyRecordId = id
	svc := a.deviations()
	if err := models.UpsertHourlyDowntimeMinutes(c.Request.Context(), svc.DB, &input, actingUser(c), svc.Clock.Now()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) deleteHourlyDowntime(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	reasonId, err := uuid.Parse(c.Param("reasonId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reason id"})
		return
	}
	if err := models.DeleteHourlyDowntime(c.Request.Context(), a.deviations().DB, id, reasonId); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func dateRangeFromQuery(c *gin.Context) (reports.DateRange, error) {
	workCenterId, err := optionalQueryId(c, "workCenterId")
	if err != nil {
		return reports.DateRange{}, err
	}
	return reports.NewDateRange(c.Query("from"), c.Query("to"), workCenterId)
}

func (a *api) getPareto(c *gin.Context) {
	r, err := dateRangeFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}
	items, _, err := reports.DowntimePareto(c.Request.Context(), a.deviations().DB, r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (a *api) exportPareto(c *gin.Context) {
	r, err := dateRangeFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := reports.ExportParetoCsv(c.Request.Context(), a.deviations().DB, r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=pareto_%s.csv", r.FileSuffix()))
	c.Data(http.StatusOK, reports.CsvContentType, data)
}

func (a *api) getProductionSummary(c *gin.Context) {
	r, err := dateRangeFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := reports.ProductionSummary(c.Request.Context(), a.deviations().DB, r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (a *api) exportProductionSummaryCsv(c *gin.Context) {
	r, err := dateRangeFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := reports.ExportProductionSummaryCsv(c.Request.Context(), a.deviations().DB, r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=summary_%s.csv", r.FileSuffix()))
	c.Data(http.StatusOK, reports.CsvContentType, data)
}

func (a *api) exportProductionSummaryXlsx(c *gin.Context) {
	r, err := dateRangeFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := reports.ProductionSummary(c.Request.Context(), a.deviations().DB, r)
	if err != nil {
		respondError(c, err)
		return
	}
	f, err := reports.ExportProductionSummaryXlsx(items)
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", reports.XlsxContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=summary_%s.xlsx", r.FileSuffix()))
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		config.LogError(a.logger, "server", "exportProductionSummaryXlsx", "write xlsx", nil, err)
	}
}
