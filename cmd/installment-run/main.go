package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mmdatafocus/rta_backend/config"
	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/store"
	"github.com/mmdatafocus/rta_backend/workflow"
)

func main() {
	asOfStr := flag.String("as-of", "", "Optional: business date (YYYY-MM-DD). Defaults to today in INSTALLMENT_TIMEZONE.")
	maxRows := flag.Int("max-rows", 0, "Optional: stop after this many registrations (default INSTALLMENT_MAX_ROWS)")
	maxRuntime := flag.Duration("max-runtime", 0, "Optional: stop after this long, e.g. 5m (default INSTALLMENT_MAX_RUNTIME_SECONDS)")
	registrationID := flag.String("registration-id", "", "Optional: process a single registration instead of the due batch")
	noRedis := flag.Bool("no-redis", false, "Skip the redis run lock")
	verbose := flag.Bool("v", false, "Print every registration outcome")
	flag.Parse()

	settings := config.LoadEngineSettings()
	asOf, err := businessDate(*asOfStr, settings.InstallmentTimezone)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	var locker workflow.RunLocker
	if !*noRedis {
		config.ConnectRedisWithRetry()
		locker = workflow.RedisRunLocker()
	}

	services := workflow.NewServices(store.NewGormStore(db), config.GetLogger(), settings, locker)

	if id := strings.TrimSpace(*registrationID); id != "" {
		result, err := services.Scheduler.ProcessInstallment(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "registration %s: %v\n", id, err)
			os.Exit(1)
		}
		printResult(*result)
		return
	}

	report, err := services.Scheduler.RunDueInstallments(ctx, asOf, workflow.RunOptions{
		MaxRows:    *maxRows,
		MaxRuntime: *maxRuntime,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "installment run failed: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		for _, r := range report.Results {
			printResult(r)
		}
	}
	fmt.Printf("run=%s as_of=%s processed=%d failed=%d skipped=%d deferred=%d stop=%s elapsed=%s\n",
		report.RunId, report.AsOf.Format(models.DateLayout),
		report.Processed, report.Failed, report.Skipped, report.Deferred, report.StopReason,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	if report.Failed > 0 {
		os.Exit(2)
	}
}

func businessDate(raw, timezone string) (time.Time, error) {
	if raw = strings.TrimSpace(raw); raw != "" {
		d, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid as-of date: %v", err)
		}
		return d, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %v", timezone, err)
	}
	local := time.Now().In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC), nil
}

func printResult(r workflow.InstallmentResult) {
	line := fmt.Sprintf("%s %s %s", r.RegistrationId, r.Kind, r.Status)
	if r.Transaction != nil {
		line += " txn=" + r.Transaction.TransactionId
	}
	if r.Err != nil {
		line += " err=" + r.Err.Error()
	}
	fmt.Println(line)
}
