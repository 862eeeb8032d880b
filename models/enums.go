package models

type TransactionType string

const (
	TransactionTypeFreshPurchase      TransactionType = "fresh_purchase"
	TransactionTypeAdditionalPurchase TransactionType = "additional_purchase"
	TransactionTypeSip                TransactionType = "sip"
	TransactionTypeRedemption         TransactionType = "redemption"
	TransactionTypeSwp                TransactionType = "swp"
	TransactionTypeSwitchRedemption   TransactionType = "switch_redemption"
	TransactionTypeSwitchPurchase     TransactionType = "switch_purchase"
	TransactionTypeStpRedemption      TransactionType = "stp_redemption"
	TransactionTypeStpPurchase        TransactionType = "stp_purchase"
	TransactionTypeIdcwPayout         TransactionType = "idcw_payout"
	TransactionTypeIdcwReinvestment   TransactionType = "idcw_reinvestment"

	// non-financial, recorded for the audit trail only
	TransactionTypeKycUpdate           TransactionType = "kyc_update"
	TransactionTypeBankMandate         TransactionType = "bank_mandate"
	TransactionTypeNomineeRegistration TransactionType = "nominee_registration"
	TransactionTypeAddressUpdate       TransactionType = "address_update"
	TransactionTypeContactUpdate       TransactionType = "contact_update"
)

// IsDebit reports whether the investor pays money in (units are allotted).
func (t TransactionType) IsDebit() bool {
	switch t {
	case TransactionTypeFreshPurchase, TransactionTypeAdditionalPurchase, TransactionTypeSip,
		TransactionTypeSwitchPurchase, TransactionTypeStpPurchase, TransactionTypeIdcwReinvestment:
		return true
	}
	return false
}

// IsCredit reports whether money is paid out to the investor or to another scheme.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionTypeRedemption, TransactionTypeSwp, TransactionTypeSwitchRedemption,
		TransactionTypeStpRedemption, TransactionTypeIdcwPayout:
		return true
	}
	return false
}

func (t TransactionType) IsFinancial() bool {
	return t.IsDebit() || t.IsCredit()
}

// AddsUnits is true for every debit type; each such transaction opens a tax lot.
func (t TransactionType) AddsUnits() bool {
	return t.IsDebit()
}

// RemovesUnits excludes idcw_payout, which pays cash without extinguishing units.
func (t TransactionType) RemovesUnits() bool {
	return t.IsCredit() && t != TransactionTypeIdcwPayout
}

// IsPaired is true for the two legs of a switch or STP.
func (t TransactionType) IsPaired() bool {
	switch t {
	case TransactionTypeSwitchRedemption, TransactionTypeSwitchPurchase,
		TransactionTypeStpRedemption, TransactionTypeStpPurchase:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

type PaymentMode string

const (
	PaymentModeNetBanking   PaymentMode = "net_banking"
	PaymentModeUpi          PaymentMode = "upi"
	PaymentModeDebitMandate PaymentMode = "debit_mandate"
	PaymentModeNeft         PaymentMode = "neft"
	PaymentModeRtgs         PaymentMode = "rtgs"
	PaymentModeCheque       PaymentMode = "cheque"
	// PaymentModeInternal marks money moved between folios (switch, STP).
	PaymentModeInternal PaymentMode = "internal"
)

func (p PaymentMode) IsValid() bool {
	switch p {
	case PaymentModeNetBanking, PaymentModeUpi, PaymentModeDebitMandate, PaymentModeNeft,
		PaymentModeRtgs, PaymentModeCheque, PaymentModeInternal:
		return true
	}
	return false
}

// IdcwOption is how an income distribution reaches the investor.
type IdcwOption string

const (
	IdcwOptionPayout       IdcwOption = "payout"
	IdcwOptionReinvestment IdcwOption = "reinvestment"
)

func (o IdcwOption) IsValid() bool {
	return o == IdcwOptionPayout || o == IdcwOptionReinvestment
}

func (o IdcwOption) TransactionType() TransactionType {
	if o == IdcwOptionReinvestment {
		return TransactionTypeIdcwReinvestment
	}
	return TransactionTypeIdcwPayout
}

type FolioStatus string

const (
	FolioStatusActive FolioStatus = "active"
	FolioStatusClosed FolioStatus = "closed"
)

type SchemeType string

const (
	SchemeTypeEquity      SchemeType = "equity"
	SchemeTypeDebt        SchemeType = "debt"
	SchemeTypeHybrid      SchemeType = "hybrid"
	SchemeTypeMoneyMarket SchemeType = "money_market"
)

// LongTermYears is the minimum holding period, in years, for a gain to be long-term.
func (s SchemeType) LongTermYears() int {
	if s == SchemeTypeEquity {
		return 1
	}
	return 3
}

type MandateStatus string

const (
	MandateStatusActive   MandateStatus = "active"
	MandateStatusInactive MandateStatus = "inactive"
	MandateStatusExpired  MandateStatus = "expired"
)

type PlanKind string

const (
	PlanKindSip PlanKind = "sip"
	PlanKindSwp PlanKind = "swp"
	PlanKindStp PlanKind = "stp"
)

type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}

type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusPaused    PlanStatus = "paused"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusCancelled PlanStatus = "cancelled"
)

func (s PlanStatus) IsTerminal() bool {
	return s == PlanStatusCompleted || s == PlanStatusCancelled
}
