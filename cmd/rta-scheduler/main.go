package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mmdatafocus/rta_backend/config"
	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/store"
	"github.com/mmdatafocus/rta_backend/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	runNow := flag.Bool("run-now", false, "Process due installments once at startup before waiting for the schedule")
	noRedis := flag.Bool("no-redis", false, "Skip redis (no alias cache, no run lock)")
	noDispatcher := flag.Bool("no-dispatcher", false, "Do not publish ledger events from the outbox")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Info("no .env file found, reading configuration from environment")
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if !*noRedis {
		config.ConnectRedisWithRetry()
	}

	if os.Getenv("SKIP_MIGRATIONS") != "true" {
		models.MigrateTable()
	}

	logger := config.GetLogger()
	settings := config.LoadEngineSettings()
	st := store.NewGormStore(db)

	var locker workflow.RunLocker
	if !*noRedis {
		locker = workflow.RedisRunLocker()
	}
	services := workflow.NewServices(st, logger, settings, locker)

	driver := workflow.NewCronDriver(services.Scheduler)
	if err := driver.Start(sigCtx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	dispatcherCtx, cancelDispatcher := context.WithCancel(sigCtx)
	dispatcherDone := make(chan struct{})
	if *noDispatcher {
		close(dispatcherDone)
	} else {
		publisher, err := config.NewPubSubPublisherFromEnv()
		if err != nil {
			logger.WithError(err).Warn("ledger event publisher unavailable; outbox dispatcher disabled")
			close(dispatcherDone)
		} else {
			go func() {
				defer close(dispatcherDone)
				workflow.NewOutboxDispatcher(st, publisher, logger).Run(dispatcherCtx)
			}()
		}
	}

	if *runNow {
		report := driver.RunOnce(sigCtx)
		if report != nil {
			logger.WithFields(logrus.Fields{
				"run_id":    report.RunId,
				"processed": report.Processed,
				"failed":    report.Failed,
				"skipped":   report.Skipped,
				"deferred":  report.Deferred,
			}).Info("startup installment run finished")
		}
	}

	<-sigCtx.Done()
	logger.Info("shutting down scheduler")

	cancelDispatcher()
	select {
	case <-driver.Stop().Done():
	case <-time.After(30 * time.Second):
		logger.Warn("installment run still in progress at shutdown")
	}
	<-dispatcherDone

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
