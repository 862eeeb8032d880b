package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	installmentRunLockKey = "lock:installment-run"
	duePageSize           = 100
)

var ErrRunInProgress = errors.New("installment run already in progress")

// RunLocker is satisfied by *redislock.Client.
type RunLocker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// RunOptions bound a batch run. Zero values fall back to the engine settings.
type RunOptions struct {
	MaxRows    int
	MaxRuntime time.Duration
}

type StopReason string

const (
	StopCompleted  StopReason = "completed"
	StopMaxRows    StopReason = "max_rows"
	StopMaxRuntime StopReason = "max_runtime"
	StopCancelled  StopReason = "cancelled"
)

// RunReport is the per-registration outcome of one batch run. Registrations
// left untouched by a cap are counted in Deferred and picked up next run.
type RunReport struct {
	RunId      string
	AsOf       time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []InstallmentResult
	Processed  int
	Failed     int
	Skipped    int
	Deferred   int64
	StopReason StopReason
}

func (o RunOptions) withDefaults(s *Scheduler) RunOptions {
	if o.MaxRows <= 0 {
		o.MaxRows = s.ledger().Settings.InstallmentMaxRows
	}
	if o.MaxRuntime <= 0 {
		o.MaxRuntime = s.ledger().Settings.InstallmentMaxRun
	}
	return o
}

// RunDueInstallments processes every registration due on or before asOf, each
// in its own unit of work. A failed registration never affects the others.
// Each registration is visited at most once per run.
func (s *Scheduler) RunDueInstallments(ctx context.Context, asOf time.Time, opts RunOptions) (*RunReport, error) {
	opts = opts.withDefaults(s)
	runId := uuid.NewString()
	ctx = utils.SetRunIdInContext(ctx, runId)
	ctx, _ = utils.EnsureCorrelationId(ctx)
	logger := s.ledger().log(ctx, logrus.Fields{"field": "InstallmentRun", "as_of": asOf.Format(models.DateLayout)})

	if s.Locker != nil {
		lock, err := s.Locker.Obtain(ctx, installmentRunLockKey, opts.MaxRuntime+time.Minute, nil)
		switch {
		case errors.Is(err, redislock.ErrNotObtained):
			return nil, models.ConcurrencyError(ErrRunInProgress, "%s", runId)
		case err != nil:
			logger.Warn("run guard unavailable, continuing without it: " + err.Error())
		default:
			defer func() { _ = lock.Release(context.Background()) }()
		}
	}

	report := &RunReport{
		RunId:     runId,
		AsOf:      models.DateOnly(asOf),
		StartedAt: time.Now().UTC(),
	}
	deadline := report.StartedAt.Add(opts.MaxRuntime)
	afterId := 0

	stop := func() StopReason {
		switch {
		case ctx.Err() != nil:
			return StopCancelled
		case len(report.Results) >= opts.MaxRows:
			return StopMaxRows
		case time.Now().UTC().After(deadline):
			return StopMaxRuntime
		}
		return ""
	}

loop:
	for {
		if reason := stop(); reason != "" {
			report.StopReason = reason
			break
		}
		limit := opts.MaxRows - len(report.Results)
		if limit > duePageSize {
			limit = duePageSize
		}
		due, err := s.ledger().Store.ListDueRegistrations(ctx, asOf, afterId, limit)
		if err != nil {
			return report, err
		}
		if len(due) == 0 {
			report.StopReason = StopCompleted
			break
		}
		for i := range due {
			if reason := stop(); reason != "" {
				report.StopReason = reason
				break loop
			}
			reg := due[i]
			afterId = reg.ID
			report.Results = append(report.Results, s.runDue(ctx, &reg, asOf))
		}
	}

	for _, r := range report.Results {
		switch r.Status {
		case InstallmentProcessed:
			report.Processed++
		case InstallmentFailed:
			report.Failed++
		case InstallmentSkipped:
			report.Skipped++
		}
	}
	if report.StopReason != StopCompleted {
		// count with a fresh context so a cancelled run still reports its backlog
		deferred, err := s.ledger().Store.CountDueRegistrations(context.WithoutCancel(ctx), asOf, afterId)
		if err != nil {
			logger.Warn("failed to count deferred registrations: " + err.Error())
		}
		report.Deferred = deferred
	}
	report.FinishedAt = time.Now().UTC()

	logger.WithFields(logrus.Fields{
		"run_id":    runId,
		"processed": report.Processed,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
		"deferred":  report.Deferred,
		"stop":      report.StopReason,
	}).Info("installment run finished")
	return report, nil
}

func (s *Scheduler) runDue(ctx context.Context, reg *models.Registration, asOf time.Time) InstallmentResult {
	result, err := s.runInstallment(ctx, reg, &asOf)
	switch {
	case err == nil:
		return *result
	case errors.Is(err, errNotDue), errors.Is(err, models.ErrRegistrationNotActive):
		return InstallmentResult{RegistrationId: reg.RegistrationId, Kind: reg.Kind, Status: InstallmentSkipped, Err: err}
	default:
		return InstallmentResult{RegistrationId: reg.RegistrationId, Kind: reg.Kind, Status: InstallmentFailed, Err: err}
	}
}
