package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/rta_backend/config"
	"github.com/mmdatafocus/rta_backend/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronDriver triggers RunDueInstallments on the configured schedule.
type CronDriver struct {
	Scheduler *Scheduler
	Schedule  string
	TimeZone  string
	Options   RunOptions

	cron *cron.Cron
	loc  *time.Location
}

func NewCronDriver(s *Scheduler) *CronDriver {
	settings := s.ledger().Settings
	return &CronDriver{
		Scheduler: s,
		Schedule:  settings.InstallmentCron,
		TimeZone:  settings.InstallmentTimezone,
		Options: RunOptions{
			MaxRows:    settings.InstallmentMaxRows,
			MaxRuntime: settings.InstallmentMaxRun,
		},
	}
}

// Start schedules the batch and returns immediately. The job stops when ctx is done.
func (d *CronDriver) Start(ctx context.Context) error {
	defaults := config.DefaultEngineSettings()
	if d.Schedule == "" {
		d.Schedule = defaults.InstallmentCron
	}
	if d.TimeZone == "" {
		d.TimeZone = defaults.InstallmentTimezone
	}
	loc, err := time.LoadLocation(d.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid timezone for installment cron: %v", err)
	}
	d.loc = loc

	d.cron = cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := d.cron.AddFunc(d.Schedule, func() { d.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule installment cron job: %v", err)
	}
	d.cron.Start()
	d.Scheduler.ledger().Logger.WithFields(logrus.Fields{
		"field":    "CronDriver",
		"schedule": d.Schedule,
		"timezone": d.TimeZone,
	}).Info("installment cron started")

	go func() {
		<-ctx.Done()
		<-d.Stop().Done()
	}()
	return nil
}

// Stop prevents further runs; the returned context is done when a running batch finishes.
func (d *CronDriver) Stop() context.Context {
	if d.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return d.cron.Stop()
}

// RunOnce processes installments due today in the driver's time zone.
func (d *CronDriver) RunOnce(ctx context.Context) *RunReport {
	loc := d.loc
	if loc == nil {
		loc = time.UTC
	}
	local := time.Now().In(loc)
	asOf := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	report, err := d.Scheduler.RunDueInstallments(ctx, asOf, d.Options)
	if err != nil {
		config.LogError(d.Scheduler.ledger().Logger, "CronDriver", "RunOnce", "installment run failed", asOf.Format(models.DateLayout), err)
		return report
	}
	return report
}
