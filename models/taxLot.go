package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxLot is the unconsumed remainder of one unit-adding transaction.
type TaxLot struct {
	TransactionId  string
	PurchaseDate   time.Time
	UnitsRemaining decimal.Decimal
	Nav            decimal.Decimal
}

// LotSlice is the part of a lot matched against a redemption.
type LotSlice struct {
	TransactionId string
	PurchaseDate  time.Time
	Units         decimal.Decimal
	Nav           decimal.Decimal
}

// LotQueue holds purchase lots oldest first.
type LotQueue struct {
	lots  []TaxLot
	total decimal.Decimal
}

func (q *LotQueue) Push(lot TaxLot) {
	q.lots = append(q.lots, lot)
	q.total = q.total.Add(lot.UnitsRemaining)
}

// PushTransaction adds a lot for a unit-adding transaction; other types are ignored.
func (q *LotQueue) PushTransaction(t *Transaction) {
	if !t.Type.AddsUnits() || !t.Units.IsPositive() {
		return
	}
	q.Push(TaxLot{
		TransactionId:  t.TransactionId,
		PurchaseDate:   t.TransactionDate,
		UnitsRemaining: t.Units,
		Nav:            t.NavPerUnit,
	})
}

func (q *LotQueue) TotalUnits() decimal.Decimal {
	return q.total
}

// Lots returns a copy of the remaining lots, oldest first.
func (q *LotQueue) Lots() []TaxLot {
	out := make([]TaxLot, len(q.lots))
	copy(out, q.lots)
	return out
}

// Match returns the FIFO slices that would satisfy units without consuming them.
func (q *LotQueue) Match(units decimal.Decimal) ([]LotSlice, error) {
	if units.GreaterThan(q.total) {
		return nil, IntegrityError(ErrLotUnderflow, "need %s units, lots hold %s", units.StringFixed(UnitPlaces), q.total.StringFixed(UnitPlaces))
	}
	var slices []LotSlice
	need := units
	for i := 0; need.IsPositive() && i < len(q.lots); i++ {
		lot := q.lots[i]
		take := decimal.Min(lot.UnitsRemaining, need)
		slices = append(slices, LotSlice{
			TransactionId: lot.TransactionId,
			PurchaseDate:  lot.PurchaseDate,
			Units:         take,
			Nav:           lot.Nav,
		})
		need = need.Sub(take)
	}
	return slices, nil
}

// Consume removes units from the front of the queue, splitting the last lot
// touched when it holds more than needed.
func (q *LotQueue) Consume(units decimal.Decimal) ([]LotSlice, error) {
	slices, err := q.Match(units)
	if err != nil {
		return nil, err
	}
	for _, s := range slices {
		head := &q.lots[0]
		head.UnitsRemaining = head.UnitsRemaining.Sub(s.Units)
		if !head.UnitsRemaining.IsPositive() {
			q.lots = q.lots[1:]
		}
	}
	q.total = q.total.Sub(units)
	return slices, nil
}

// ApplyTransaction feeds one completed transaction into the queue and returns
// the slices consumed when it removes units.
func (q *LotQueue) ApplyTransaction(t *Transaction) ([]LotSlice, error) {
	switch {
	case t.Type.AddsUnits():
		q.PushTransaction(t)
	case t.Type.RemovesUnits():
		return q.Consume(t.AbsUnits())
	}
	return nil, nil
}
