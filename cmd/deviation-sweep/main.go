// deviation-sweep runs escalation outside the API process: once by default, or
// as a standalone worker with -loop (set DEVIATION_WORKER_ENABLED=false on the API then).
//
// Usage:
//
//	DB_DRIVER=sqlite DB_SQLITE_PATH=prodanalysis.db go run ./cmd/deviation-sweep -migrate
//	go run ./cmd/deviation-sweep -threshold-minutes 45 -push-url http://localhost:9091
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmdatafocus/prodanalysis_backend/config"
	"github.com/mmdatafocus/prodanalysis_backend/metrics"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"github.com/mmdatafocus/prodanalysis_backend/workflow"
	"github.com/prometheus/client_golang/prometheus/push"
)

func main() {
	migrate := flag.Bool("migrate", false, "Run AutoMigrate before sweeping")
	threshold := flag.Int("threshold-minutes", 0, "Override DEVIATION_ESCALATION_MINUTES")
	loop := flag.Bool("loop", false, "Keep running on DEVIATION_WORKER_INTERVAL_SECONDS until interrupted")
	pushURL := flag.String("push-url", "", "Optional: Pushgateway URL to push metrics to after a single sweep")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	if *migrate {
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
			os.Exit(1)
		}
	}

	options := config.LoadDeviationOptions()
	if *threshold > 0 {
		options.EscalationMinutes = *threshold
	}
	worker := workflow.NewEscalationWorker(db, logger, options, utils.SystemClock())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *loop {
		worker.Run(ctx)
		return
	}

	promoted, err := worker.RunOnce(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("promoted=%d threshold_minutes=%d\n", promoted, options.ThresholdMinutes())

	if *pushURL != "" {
		if err := push.New(*pushURL, "deviation_sweep").Gatherer(metrics.Registry).Push(); err != nil {
			fmt.Fprintf(os.Stderr, "push metrics failed: %v\n", err)
			os.Exit(1)
		}
	}
}
