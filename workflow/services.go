package workflow

import (
	"github.com/mmdatafocus/rta_backend/config"
	"github.com/mmdatafocus/rta_backend/store"
	"github.com/sirupsen/logrus"
)

// Services wires the ledger components over one store.
type Services struct {
	Ledger       *Ledger
	Engine       *Engine
	Scheduler    *Scheduler
	CapitalGains *CapitalGainsCalculator
}

func NewServices(st store.Store, logger *logrus.Logger, settings config.EngineSettings, locker RunLocker) *Services {
	ledger := NewLedger(st, logger, settings)
	engine := NewEngine(ledger)
	return &Services{
		Ledger:       ledger,
		Engine:       engine,
		Scheduler:    NewScheduler(engine, locker),
		CapitalGains: NewCapitalGainsCalculator(ledger),
	}
}

// RedisRunLocker returns the process redis lock client, or nil when redis is not connected.
func RedisRunLocker() RunLocker {
	if l := config.GetRedisLock(); l != nil {
		return l
	}
	return nil
}
