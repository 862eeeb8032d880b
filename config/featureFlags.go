package config

import (
	"os"
	"strings"
	"time"
)

// ExitLoadPolicy selects how exit load is charged on redemptions.
type ExitLoadPolicy string

const (
	// ExitLoadHoldingPeriod charges the load only on units held fewer than the scheme's exit load period.
	ExitLoadHoldingPeriod ExitLoadPolicy = "holding_period"
	// ExitLoadFlat charges the load on the whole redemption whenever the scheme defines one.
	ExitLoadFlat ExitLoadPolicy = "flat"
)

// EngineSettings groups the tunables of the ledger, scheduler and gains calculator.
type EngineSettings struct {
	LockRetries          int
	LockRetryBackoff     time.Duration
	UnitOfWorkTimeout    time.Duration
	ExitLoadPolicy       ExitLoadPolicy
	InstallmentCron      string
	InstallmentTimezone  string
	InstallmentMaxRows   int
	InstallmentMaxRun    time.Duration
	CapitalGainsPageSize int
}

func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		LockRetries:          3,
		LockRetryBackoff:     50 * time.Millisecond,
		UnitOfWorkTimeout:    30 * time.Second,
		ExitLoadPolicy:       ExitLoadHoldingPeriod,
		InstallmentCron:      "30 9 * * *",
		InstallmentTimezone:  "Asia/Kolkata",
		InstallmentMaxRows:   500,
		InstallmentMaxRun:    10 * time.Minute,
		CapitalGainsPageSize: 500,
	}
}

// LoadEngineSettings reads overrides from env:
// - LEDGER_LOCK_RETRIES, LEDGER_LOCK_BACKOFF_MS, LEDGER_UNIT_TIMEOUT_SECONDS (0 disables)
// - EXIT_LOAD_POLICY=holding_period|flat
// - INSTALLMENT_CRON, INSTALLMENT_TIMEZONE, INSTALLMENT_MAX_ROWS, INSTALLMENT_MAX_RUNTIME_SECONDS
// - CAPITAL_GAINS_PAGE_SIZE
func LoadEngineSettings() EngineSettings {
	s := DefaultEngineSettings()
	s.LockRetries = intFromEnv("LEDGER_LOCK_RETRIES", s.LockRetries)
	s.LockRetryBackoff = time.Duration(intFromEnv("LEDGER_LOCK_BACKOFF_MS", int(s.LockRetryBackoff/time.Millisecond))) * time.Millisecond

	s.UnitOfWorkTimeout = time.Duration(intFromEnv("LEDGER_UNIT_TIMEOUT_SECONDS", int(s.UnitOfWorkTimeout/time.Second))) * time.Second

	switch ExitLoadPolicy(strings.ToLower(strings.TrimSpace(os.Getenv("EXIT_LOAD_POLICY")))) {
	case ExitLoadFlat:
		s.ExitLoadPolicy = ExitLoadFlat
	case ExitLoadHoldingPeriod:
		s.ExitLoadPolicy = ExitLoadHoldingPeriod
	}

	if v := strings.TrimSpace(os.Getenv("INSTALLMENT_CRON")); v != "" {
		s.InstallmentCron = v
	}
	if v := strings.TrimSpace(os.Getenv("INSTALLMENT_TIMEZONE")); v != "" {
		s.InstallmentTimezone = v
	}
	s.InstallmentMaxRows = intFromEnv("INSTALLMENT_MAX_ROWS", s.InstallmentMaxRows)
	s.InstallmentMaxRun = time.Duration(intFromEnv("INSTALLMENT_MAX_RUNTIME_SECONDS", int(s.InstallmentMaxRun/time.Second))) * time.Second
	s.CapitalGainsPageSize = intFromEnv("CAPITAL_GAINS_PAGE_SIZE", s.CapitalGainsPageSize)
	return s
}
