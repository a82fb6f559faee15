package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultShiftStart = "08:00"
	DefaultShiftEnd   = "16:00"
	ShiftHours        = 8
	MaxTaktSec        = 3600
	DateLayout        = "2006-01-02"
	HourLayout        = "15:04"
)

// ErrProductionDayClosed rejects edits to a day that was closed.
var ErrProductionDayClosed = errors.New("production day is closed")

type ProductionDay struct {
	ID              uuid.UUID           `gorm:"type:char(36);primary_key" json:"id"`
	Date            string              `gorm:"size:10;not null;index:uniq_production_day_slot,unique,priority:1" json:"date"`
	WorkCenterId    uuid.UUID           `gorm:"type:char(36);not null;index:uniq_production_day_slot,unique,priority:2" json:"work_center_id"`
	WorkCenter      *WorkCenter         `gorm:"foreignKey:WorkCenterId" json:"work_center,omitempty"`
	ProductId       uuid.UUID           `gorm:"type:char(36);not null" json:"product_id"`
	Product         *Product            `gorm:"foreignKey:ProductId" json:"product,omitempty"`
	ShiftStart      string              `gorm:"size:5;not null;index:uniq_production_day_slot,unique,priority:3" json:"shift_start"`
	ShiftEnd        string              `gorm:"size:5;not null" json:"shift_end"`
	TaktSec         int                 `gorm:"not null" json:"takt_sec"`
	PlanPerHour     int                 `gorm:"not null" json:"plan_per_hour"`
	Status          ProductionDayStatus `gorm:"size:20;not null" json:"status"`
	CreatedAt       time.Time           `gorm:"autoCreateTime:false" json:"created_at"`
	CreatedByUserId uuid.UUID           `gorm:"type:char(36);not null" json:"created_by_user_id"`
	HourlyRecords   []HourlyRecord      `gorm:"foreignKey:ProductionDayId;constraint:OnDelete:CASCADE" json:"hourly_records,omitempty"`
}

func (d *ProductionDay) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

type NewProductionDay struct {
	Date         string    `json:"date" validate:"required,datetime=2006-01-02"`
	WorkCenterId uuid.UUID `json:"work_center_id" validate:"required"`
	ProductId    uuid.UUID `json:"product_id" validate:"required"`
	TaktSec      int       `json:"takt_sec" validate:"gte=1,lte=3600"`
}

// PlanPerHour is the whole number of parts one takt fits into an hour.
func PlanPerHour(taktSec int) int {
	if taktSec <= 0 {
		return 0
	}
	return MaxTaktSec / taktSec
}

func (input *NewProductionDay) validate(ctx context.Context, db *gorm.DB) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := validateReferenceExists[WorkCenter](ctx, db, input.WorkCenterId); err != nil {
		return err
	}
	if err := validateReferenceExists[Product](ctx, db, input.ProductId); err != nil {
		return err
	}

	var count int64
	if err := db.WithContext(ctx).Model(&ProductionDay{}).
		Where("date = ? AND work_center_id = ? AND shift_start = ?", input.Date, input.WorkCenterId, DefaultShiftStart).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return utils.InvalidInput("production day %s already exists for this work center and shift", input.Date)
	}
	return nil
}

func validateReferenceExists[T any](ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	var count int64
	if err := db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return utils.InvalidInput("%s %s not found", utils.GetTypeName[T](), id)
	}
	return nil
}

// CreateProductionDay creates the day with one hourly record per shift hour.
// Hourly actuals start at 0.
func CreateProductionDay(ctx context.Context, db *gorm.DB, input *NewProductionDay, userId uuid.UUID, now time.Time) (*ProductionDay, error) {
	if err := input.validate(ctx, db); err != nil {
		return nil, err
	}

	shiftStart, err := time.Parse(HourLayout, DefaultShiftStart)
	if err != nil {
		return nil, err
	}
	planPerHour := PlanPerHour(input.TaktSec)

	day := ProductionDay{
		Date:            input.Date,
		WorkCenterId:    input.WorkCenterId,
		ProductId:       input.ProductId,
		ShiftStart:      DefaultShiftStart,
		ShiftEnd:        DefaultShiftEnd,
		TaktSec:         input.TaktSec,
		PlanPerHour:     planPerHour,
		Status:          ProductionDayStatusActive,
		CreatedAt:       now,
		CreatedByUserId: userId,
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&day).Error; err != nil {
			return err
		}
		records := make([]HourlyRecord, 0, ShiftHours)
		for i := 0; i < ShiftHours; i++ {
			zero := 0
			records = append(records, HourlyRecord{
				ProductionDayId: day.ID,
				HourIndex:       i,
				HourStart:       shiftStart.Add(time.Duration(i) * time.Hour).Format(HourLayout),
				PlanQty:         planPerHour,
				ActualQty:       &zero,
				UpdatedAt:       now,
				UpdatedByUserId: &userId,
			})
		}
		if err := tx.Omit(clause.Associations).Create(&records).Error; err != nil {
			return err
		}
		day.HourlyRecords = records
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &day, nil
}

type HourlyRecordDetail struct {
	ID                  uuid.UUID `json:"id"`
	HourIndex           int       `json:"hour_index"`
	HourStart           string    `json:"hour_start"`
	PlanQty             int       `json:"plan_qty"`
	ActualQty           int       `json:"actual_qty"`
	DeviationQty        int       `json:"deviation_qty"`
	Comment             *string   `json:"comment"`
	DowntimeMinutes     int       `json:"downtime_minutes"`
	CumulativePlan      int       `json:"cumulative_plan"`
	CumulativeActual    int       `json:"cumulative_actual"`
	CumulativeDeviation int       `json:"cumulative_deviation"`
}

type ProductionDayDetail struct {
	ProductionDay
	WorkCenterName    string               `json:"work_center_name"`
	ProductName       string               `json:"product_name"`
	Hours             []HourlyRecordDetail `json:"hours"`
	PlanTotal         int                  `json:"plan_total"`
	ActualTotal       int                  `json:"actual_total"`
	DeviationTotal    int                  `json:"deviation_total"`
	DowntimeTotal     int                  `json:"downtime_total"`
	AttainmentPercent decimal.Decimal      `json:"attainment_percent"`
}

// AttainmentPercent is actual/plan in percent rounded to 2 places; zero when nothing was planned.
func AttainmentPercent(actual int, plan int) decimal.Decimal {
	if plan <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(actual)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(plan))).
		Round(2)
}

func GetProductionDay(ctx context.Context, db *gorm.DB, id uuid.UUID) (*ProductionDayDetail, error) {
	var day ProductionDay
	err := db.WithContext(ctx).
		Preload("HourlyRecords", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("hour_index ASC")
		}).
		Where("id = ?", id).
		Take(&day).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("production day", id)
		}
		return nil, err
	}

	names, err := LookupNames(ctx, db, []uuid.UUID{day.WorkCenterId}, []uuid.UUID{day.ProductId}, nil)
	if err != nil {
		return nil, fmt.Errorf("lookup names: %w", err)
	}
	downtime, err := SumDowntimeByHour(ctx, db, day.ID)
	if err != nil {
		return nil, fmt.Errorf("sum downtime: %w", err)
	}

	detail := ProductionDayDetail{
		WorkCenterName: names.WorkCenter(day.WorkCenterId),
		ProductName:    names.Product(day.ProductId),
		Hours:          make([]HourlyRecordDetail, 0, len(day.HourlyRecords)),
	}
	for _, hr := range day.HourlyRecords {
		actual := hr.Actual()
		detail.PlanTotal += hr.PlanQty
		detail.ActualTotal += actual
		detail.DowntimeTotal += downtime[hr.ID]
		detail.Hours = append(detail.Hours, HourlyRecordDetail{
			ID:                  hr.ID,
			HourIndex:           hr.HourIndex,
			HourStart:           hr.HourStart,
			PlanQty:             hr.PlanQty,
			ActualQty:           actual,
			DeviationQty:        actual - hr.PlanQty,
			Comment:             hr.Comment,
			DowntimeMinutes:     downtime[hr.ID],
			CumulativePlan:      detail.PlanTotal,
			CumulativeActual:    detail.ActualTotal,
			CumulativeDeviation: detail.ActualTotal - detail.PlanTotal,
		})
	}
	detail.DeviationTotal = detail.ActualTotal - detail.PlanTotal
	detail.AttainmentPercent = AttainmentPercent(detail.ActualTotal, detail.PlanTotal)
	day.HourlyRecords = nil
	detail.ProductionDay = day
	return &detail, nil
}

// FetchProductionDayHours returns the hourly records keyed by hour index.
func FetchProductionDayHours(ctx context.Context, db *gorm.DB, dayId uuid.UUID) (*ProductionDay, map[int]HourlyRecord, error) {
	var day ProductionDay
	if err := db.WithContext(ctx).Where("id = ?", dayId).Take(&day).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, utils.NotFound("production day", dayId)
		}
		return nil, nil, err
	}
	var records []HourlyRecord
	if err := db.WithContext(ctx).Where("production_day_id = ?", dayId).Order("hour_index ASC").Find(&records).Error; err != nil {
		return nil, nil, err
	}
	byHour := make(map[int]HourlyRecord, len(records))
	for _, r := range records {
		byHour[r.HourIndex] = r
	}
	day.HourlyRecords = records
	return &day, byHour, nil
}

type ProductionDayFilter struct {
	Date         *string
	WorkCenterId *uuid.UUID
	Status       *ProductionDayStatus
}

type ProductionDayListItem struct {
	ID                  uuid.UUID           `json:"id"`
	Date                string              `json:"date"`
	WorkCenterId        uuid.UUID           `json:"work_center_id"`
	WorkCenterName      string              `json:"work_center_name"`
	ProductId           uuid.UUID           `json:"product_id"`
	ProductName         string              `json:"product_name"`
	TaktSec             int                 `json:"takt_sec"`
	PlanPerHour         int                 `json:"plan_per_hour"`
	Status              ProductionDayStatus `json:"status"`
	CumulativeDeviation int                 `json:"cumulative_deviation"`
}

// ListProductionDays returns days newest first, then by work center name, with
// the deviation accumulated over all their hours.
func ListProductionDays(ctx context.Context, db *gorm.DB, filter ProductionDayFilter) ([]ProductionDayListItem, error) {
	query := db.WithContext(ctx).
		Model(&ProductionDay{}).
		Joins("JOIN work_centers ON work_centers.id = production_days.work_center_id")
	if filter.Date != nil {
		if _, err := time.Parse(DateLayout, *filter.Date); err != nil {
			return nil, utils.InvalidInput("date %q is not yyyy-mm-dd", *filter.Date)
		}
		query = query.Where("production_days.date = ?", *filter.Date)
	}
	if filter.WorkCenterId != nil {
		query = query.Where("production_days.work_center_id = ?", *filter.WorkCenterId)
	}
	if filter.Status != nil {
		query = query.Where("production_days.status = ?", *filter.Status)
	}

	var days []ProductionDay
	if err := query.
		Order("production_days.date DESC").
		Order("work_centers.name ASC").
		Find(&days).Error; err != nil {
		return nil, err
	}

	items := make([]ProductionDayListItem, 0, len(days))
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
	totals, err := SumProductionDayTotals(ctx, db, dayIds)
	if err != nil {
		return nil, err
	}
	names, err := LookupNames(ctx, db, workCenterIds, productIds, nil)
	if err != nil {
		return nil, fmt.Errorf("lookup names: %w", err)
	}

	for _, d := range days {
		t := totals[d.ID]
		items = append(items, ProductionDayListItem{
			ID:                  d.ID,
			Date:                d.Date,
			WorkCenterId:        d.WorkCenterId,
			WorkCenterName:      names.WorkCenter(d.WorkCenterId),
			ProductId:           d.ProductId,
			ProductName:         names.Product(d.ProductId),
			TaktSec:             d.TaktSec,
			PlanPerHour:         d.PlanPerHour,
			Status:              d.Status,
			CumulativeDeviation: t.Deviation(),
		})
	}
	return items, nil
}

// ProductionDayTotals is the shift total of a production day; a missing actual counts as 0.
type ProductionDayTotals struct {
	PlanQty   int
	ActualQty int
}

func (t ProductionDayTotals) Deviation() int {
	return t.ActualQty - t.PlanQty
}

func SumProductionDayTotals(ctx context.Context, db *gorm.DB, productionDayIds []uuid.UUID) (map[uuid.UUID]ProductionDayTotals, error) {
	totals := make(map[uuid.UUID]ProductionDayTotals, len(productionDayIds))
	if len(productionDayIds) == 0 {
		return totals, nil
	}
	var rows []struct {
		ProductionDayId uuid.UUID
		PlanQty         int
		ActualQty       int
	}
	err := db.WithContext(ctx).
		Model(&HourlyRecord{}).
		Select("production_day_id, SUM(plan_qty) AS plan_qty, SUM(COALESCE(actual_qty, 0)) AS actual_qty").
		Where("production_day_id IN ?", productionDayIds).
		Group("production_day_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		totals[r.ProductionDayId] = ProductionDayTotals{PlanQty: r.PlanQty, ActualQty: r.ActualQty}
	}
	return totals, nil
}
