// seed-dev creates reference data, the default downtime reasons and one
// production day for local development. It is idempotent for reference data
// (matched by name, reasons by code); the production day is skipped when it
// already exists.
//
// Usage:
//
//	DB_DRIVER=sqlite DB_SQLITE_PATH=prodanalysis.db go run ./cmd/seed-dev -date 2026-10-18
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/prodanalysis_backend/config"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
)

// code, name
var defaultDowntimeReasons = [][2]string{
	{"BRKDWN", "Breakdown"},
	{"SETUP", "Setup"},
	{"TOOL", "Tool change"},
	{"MAT", "Material shortage"},
	{"QUAL", "Quality issue"},
	{"NOOP", "No operator"},
	{"MAINT", "Maintenance"},
	{"QC", "Waiting for QC"},
	{"POWER", "Power outage"},
	{"OTHER", "Other"},
}

func main() {
	date := flag.String("date", time.Now().UTC().Format(models.DateLayout), "Production date (YYYY-MM-DD)")
	workCenterName := flag.String("work-center", "Line 1", "Work center name")
	productName := flag.String("product", "Part A", "Product name")
	userName := flag.String("user", "Dev Master", "Display name of the seeding user")
	takt := flag.Int("takt", 60, "Takt time in seconds (1..3600)")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}

	wc := models.WorkCenter{Name: strings.TrimSpace(*workCenterName), IsActive: utils.NewTrue()}
	if err := db.WithContext(ctx).Where("name = ?", wc.Name).FirstOrCreate(&wc).Error; err != nil {
		fmt.Fprintf(os.Stderr, "work center: %v\n", err)
		os.Exit(1)
	}
	product := models.Product{Name: strings.TrimSpace(*productName), IsActive: utils.NewTrue()}
	if err := db.WithContext(ctx).Where("name = ?", product.Name).FirstOrCreate(&product).Error; err != nil {
		fmt.Fprintf(os.Stderr, "product: %v\n", err)
		os.Exit(1)
	}
	user := models.AppUser{DisplayName: strings.TrimSpace(*userName), Role: models.UserRoleMaster, IsActive: utils.NewTrue()}
	if err := db.WithContext(ctx).Where("display_name = ?", user.DisplayName).FirstOrCreate(&user).Error; err != nil {
		fmt.Fprintf(os.Stderr, "user: %v\n", err)
		os.Exit(1)
	}

	for _, r := range defaultDowntimeReasons {
		reason := models.DowntimeReason{Code: r[0], Name: r[1], IsActive: utils.NewTrue()}
		if err := db.WithContext(ctx).Where("code = ?", reason.Code).FirstOrCreate(&reason).Error; err != nil {
			fmt.Fprintf(os.Stderr, "downtime reason %s: %v\n", r[0], err)
			os.Exit(1)
		}
	}

	day, err := models.CreateProductionDay(ctx, db, &models.NewProductionDay{
		Date:         *date,
		WorkCenterId: wc.ID,
		ProductId:    product.ID,
		TaktSec:      *takt,
	}, user.ID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, utils.ErrInvalidInput) {
			fmt.Fprintf(os.Stderr, "production day skipped: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "production day: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("production_day_id=%s plan_per_hour=%d\n", day.ID, day.PlanPerHour)
	}
	fmt.Printf("work_center_id=%s product_id=%s user_id=%s\n", wc.ID, product.ID, user.ID)
}
