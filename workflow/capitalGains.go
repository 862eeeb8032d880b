package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/rta_backend/config"
	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/store"
	"github.com/mmdatafocus/rta_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const daysPerYear = 365

// GainSlice is one purchase lot, or part of one, matched against a redemption.
type GainSlice struct {
	RedemptionTransactionId string
	PurchaseTransactionId   string
	PurchaseDate            time.Time
	RedemptionDate          time.Time
	Units                   decimal.Decimal
	PurchaseNav             decimal.Decimal
	RedemptionNav           decimal.Decimal
	CostBasis               decimal.Decimal
	Proceeds                decimal.Decimal
	Gain                    decimal.Decimal
	HoldingDays             int
	LongTerm                bool
}

type FolioCapitalGains struct {
	FolioNumber   string
	InvestorId    string
	SchemeId      string
	SchemeName    string
	SchemeType    models.SchemeType
	ShortTermGain decimal.Decimal
	LongTermGain  decimal.Decimal
	TotalGain     decimal.Decimal
	ShortTerm     []GainSlice
	LongTerm      []GainSlice
	// OpenLots are the lots still unconsumed after the full history.
	OpenLots []models.TaxLot
}

type InvestorCapitalGains struct {
	InvestorId    string
	Period        *models.DateRange
	Folios        []FolioCapitalGains
	ShortTermGain decimal.Decimal
	LongTermGain  decimal.Decimal
	TotalGain     decimal.Decimal
}

// CapitalGainsCalculator matches redemptions against purchase lots first in,
// first out. It only reads the transaction log.
type CapitalGainsCalculator struct {
	Ledger *Ledger
}

func NewCapitalGainsCalculator(ledger *Ledger) *CapitalGainsCalculator {
	return &CapitalGainsCalculator{Ledger: ledger}
}

// CalculateForFolio reports gains of the folio's redemptions. When period is
// set only redemptions dated inside it are reported; the lot queue is still
// built from the whole history.
func (c *CapitalGainsCalculator) CalculateForFolio(ctx context.Context, folioNumber string, period *models.DateRange) (*FolioCapitalGains, error) {
	ctx, _ = utils.EnsureCorrelationId(ctx)
	ctx, span := tracer.Start(ctx, "CapitalGainsCalculator.CalculateForFolio")
	defer span.End()

	folio, err := c.Ledger.Store.FolioByNumber(ctx, folioNumber)
	if err != nil {
		return nil, err
	}
	scheme, err := c.Ledger.Store.SchemeById(ctx, folio.SchemeId)
	if err != nil {
		return nil, err
	}
	result := &FolioCapitalGains{
		FolioNumber:   folio.FolioNumber,
		InvestorId:    folio.InvestorId,
		SchemeId:      scheme.SchemeId,
		SchemeName:    scheme.Name,
		SchemeType:    scheme.SchemeType,
		ShortTermGain: decimal.Zero,
		LongTermGain:  decimal.Zero,
		TotalGain:     decimal.Zero,
	}
	longTermDays := scheme.SchemeType.LongTermYears() * daysPerYear

	pageSize := c.Ledger.Settings.CapitalGainsPageSize
	if pageSize <= 0 {
		pageSize = config.DefaultEngineSettings().CapitalGainsPageSize
	}
	lots := &models.LotQueue{}
	var cursor store.Cursor
	for {
		page, err := c.Ledger.Store.ListCompletedTransactions(ctx, folioNumber, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		for i := range page {
			txn := &page[i]
			consumed, err := lots.ApplyTransaction(txn)
			if err != nil {
				c.Ledger.log(ctx, logrus.Fields{
					"field":          "CapitalGainsCalculator",
					"folio_number":   folioNumber,
					"transaction_id": txn.TransactionId,
					"units":          txn.Units.String(),
				}).Error("redemption cannot be matched against purchase lots: " + err.Error())
				span.RecordError(err)
				return nil, err
			}
			if len(consumed) == 0 || (period != nil && !period.Contains(txn.TransactionDate)) {
				continue
			}
			for _, s := range consumed {
				slice := gainSlice(txn, s, longTermDays)
				if slice.LongTerm {
					result.LongTerm = append(result.LongTerm, slice)
					result.LongTermGain = result.LongTermGain.Add(slice.Gain)
				} else {
					result.ShortTerm = append(result.ShortTerm, slice)
					result.ShortTermGain = result.ShortTermGain.Add(slice.Gain)
				}
			}
		}
		if len(page) < pageSize {
			break
		}
		cursor = store.CursorAfter(&page[len(page)-1])
	}
	result.TotalGain = result.ShortTermGain.Add(result.LongTermGain)
	result.OpenLots = lots.Lots()
	return result, nil
}

func gainSlice(redemption *models.Transaction, s models.LotSlice, longTermDays int) GainSlice {
	cost := models.RoundMoney(s.Units.Mul(s.Nav))
	proceeds := models.RoundMoney(s.Units.Mul(redemption.NavPerUnit))
	held := models.HoldingDays(s.PurchaseDate, redemption.TransactionDate)
	return GainSlice{
		RedemptionTransactionId: redemption.TransactionId,
		PurchaseTransactionId:   s.TransactionId,
		PurchaseDate:            s.PurchaseDate,
		RedemptionDate:          redemption.TransactionDate,
		Units:                   s.Units,
		PurchaseNav:             s.Nav,
		RedemptionNav:           redemption.NavPerUnit,
		CostBasis:               cost,
		Proceeds:                proceeds,
		Gain:                    proceeds.Sub(cost),
		HoldingDays:             held,
		LongTerm:                held >= longTermDays,
	}
}

// CalculateForInvestor runs the folio calculation for each of the investor's
// folios, closed ones included, and keeps those with reported redemptions.
func (c *CapitalGainsCalculator) CalculateForInvestor(ctx context.Context, investorId string, period *models.DateRange) (*InvestorCapitalGains, error) {
	ctx, _ = utils.EnsureCorrelationId(ctx)
	folios, err := c.Ledger.Store.FoliosByInvestor(ctx, investorId)
	if err != nil {
		return nil, err
	}
	result := &InvestorCapitalGains{
		InvestorId:    investorId,
		Period:        period,
		ShortTermGain: decimal.Zero,
		LongTermGain:  decimal.Zero,
		TotalGain:     decimal.Zero,
	}
	for _, f := range folios {
		gains, err := c.CalculateForFolio(ctx, f.FolioNumber, period)
		if err != nil {
			return nil, err
		}
		if len(gains.ShortTerm) == 0 && len(gains.LongTerm) == 0 {
			continue
		}
		result.Folios = append(result.Folios, *gains)
		result.ShortTermGain = result.ShortTermGain.Add(gains.ShortTermGain)
		result.LongTermGain = result.LongTermGain.Add(gains.LongTermGain)
	}
	result.TotalGain = result.ShortTermGain.Add(result.LongTermGain)
	return result, nil
}
