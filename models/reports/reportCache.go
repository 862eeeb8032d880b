package reports

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/rta_backend/config"
	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/utils"
	"github.com/mmdatafocus/rta_backend/workflow"
	"github.com/sirupsen/logrus"
)

func reportCacheEnabled() bool {
	v := strings.TrimSpace(os.Getenv("ENABLE_REPORT_CACHE"))
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

func reportCacheTTL() time.Duration {
	// Env: REPORT_CACHE_TTL_SECONDS (default 120s)
	ttl := 120
	if v := strings.TrimSpace(os.Getenv("REPORT_CACHE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = n
		}
	}
	return time.Duration(ttl) * time.Second
}

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

func logSlowReport(ctx context.Context, name string, started time.Time, extra logrus.Fields) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	extra["field"] = "Reports"
	extra["report"] = name
	extra["ms"] = d.Milliseconds()
	extra["correlation_id"] = cid
	config.GetLogger().WithFields(extra).Warn("slow report")
}

func capitalGainsCacheKey(investorId string, period *models.DateRange) string {
	if period == nil {
		return "CapitalGains:" + investorId + ":all"
	}
	return fmt.Sprintf("CapitalGains:%s:%s:%s", investorId, period.From.Format(models.DateLayout), period.To.Format(models.DateLayout))
}

// InvestorCapitalGains computes the investor's gains, served from Redis when
// ENABLE_REPORT_CACHE is on and a fresh copy exists.
func InvestorCapitalGains(ctx context.Context, calc *workflow.CapitalGainsCalculator, investorId string, period *models.DateRange) (*workflow.InvestorCapitalGains, error) {
	started := time.Now()
	key := capitalGainsCacheKey(investorId, period)
	if reportCacheEnabled() {
		var cached workflow.InvestorCapitalGains
		if ok, err := config.GetRedisObject(key, &cached); err == nil && ok {
			return &cached, nil
		}
	}
	result, err := calc.CalculateForInvestor(ctx, investorId, period)
	if err != nil {
		return nil, err
	}
	if reportCacheEnabled() {
		_ = config.SetRedisObject(key, result, reportCacheTTL())
	}
	logSlowReport(ctx, "capital_gains", started, logrus.Fields{"investor_id": investorId, "folios": len(result.Folios)})
	return result, nil
}
