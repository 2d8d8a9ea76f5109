// Package models contains the models for the Reference Data API
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	TransparencyCalculationsTableName = "transparency_calculations"
	EquityTransparencyTableName       = "transparency_equity_details"
	NonEquityTransparencyTableName    = "transparency_non_equity_details"
	DebtTransparencyTableName         = "transparency_debt_details"
	FutureTransparencyTableName       = "transparency_future_details"
)

// CalculationType selects the transparency subtype schema.
type CalculationType string

const (
	CalculationEquity    CalculationType = "EQUITY"
	CalculationNonEquity CalculationType = "NON_EQUITY"
)

// Valid reports whether t is EQUITY or NON_EQUITY.
func (t CalculationType) Valid() bool {
	return t == CalculationEquity || t == CalculationNonEquity
}

// TransparencyCalculation is a per-instrument, per-period snapshot of
// aggregate trading statistics. Period snapshots are immutable upstream, so
// re-attachment replaces the whole row and its subtype details.
type TransparencyCalculation struct {
	ID                uint             `gorm:"primaryKey;autoIncrement" json:"-"`
	InstrumentID      string           `gorm:"size:36;uniqueIndex:idx_calc_instr_type_period;index" json:"instrument_id"`
	Instrument        *Instrument      `gorm:"foreignKey:InstrumentID;constraint:OnDelete:CASCADE" json:"-"`
	CalculationType   CalculationType  `gorm:"size:16;uniqueIndex:idx_calc_instr_type_period" json:"calculation_type"`
	PeriodStart       time.Time        `gorm:"uniqueIndex:idx_calc_instr_type_period" json:"period_start"`
	PeriodEnd         time.Time        `gorm:"uniqueIndex:idx_calc_instr_type_period" json:"period_end"`
	TotalTransactions *int64           `json:"total_transactions,omitempty"`
	TotalVolume       *decimal.Decimal `gorm:"type:decimal(24,2)" json:"total_volume,omitempty"`
	LiquidityFlag     *bool            `json:"liquidity_flag,omitempty"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"-"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`

	EquityDetail    *EquityTransparencyDetail    `gorm:"foreignKey:CalculationID;constraint:OnDelete:CASCADE" json:"equity_detail,omitempty"`
	NonEquityDetail *NonEquityTransparencyDetail `gorm:"foreignKey:CalculationID;constraint:OnDelete:CASCADE" json:"non_equity_detail,omitempty"`
}

func (TransparencyCalculation) TableName() string {
	return TransparencyCalculationsTableName
}

// EquityTransparencyDetail is the one-to-one EQUITY subtype row.
type EquityTransparencyDetail struct {
	CalculationID        uint             `gorm:"primaryKey" json:"-"`
	AvgDailyTurnover     *decimal.Decimal `gorm:"type:decimal(24,2)" json:"avg_daily_turnover,omitempty"`
	AvgDailyTransactions *decimal.Decimal `gorm:"type:decimal(18,2)" json:"avg_daily_transactions,omitempty"`
	AvgTransactionValue  *decimal.Decimal `gorm:"type:decimal(24,2)" json:"avg_transaction_value,omitempty"`
	LargeInScale         *decimal.Decimal `gorm:"type:decimal(24,2)" json:"large_in_scale,omitempty"`
	StandardMarketSize   *decimal.Decimal `gorm:"type:decimal(24,2)" json:"standard_market_size,omitempty"`
	MostRelevantMarket   *string          `gorm:"size:8" json:"most_relevant_market,omitempty"`
}

func (EquityTransparencyDetail) TableName() string {
	return EquityTransparencyTableName
}

// NonEquityTransparencyDetail is the one-to-one NON_EQUITY subtype row, which
// itself has at most one debt or future sub-detail.
type NonEquityTransparencyDetail struct {
	CalculationID uint             `gorm:"primaryKey" json:"-"`
	PreTradeLIS   *decimal.Decimal `gorm:"type:decimal(24,2)" json:"pre_trade_lis,omitempty"`
	PostTradeLIS  *decimal.Decimal `gorm:"type:decimal(24,2)" json:"post_trade_lis,omitempty"`
	PreTradeSSTI  *decimal.Decimal `gorm:"type:decimal(24,2)" json:"pre_trade_ssti,omitempty"`
	PostTradeSSTI *decimal.Decimal `gorm:"type:decimal(24,2)" json:"post_trade_ssti,omitempty"`

	DebtDetail   *DebtTransparencyDetail   `gorm:"foreignKey:CalculationID;constraint:OnDelete:CASCADE" json:"debt_detail,omitempty"`
	FutureDetail *FutureTransparencyDetail `gorm:"foreignKey:CalculationID;constraint:OnDelete:CASCADE" json:"future_detail,omitempty"`
}

func (NonEquityTransparencyDetail) TableName() string {
	return NonEquityTransparencyTableName
}

// DebtTransparencyDetail is the DEBT sub-detail under NON_EQUITY.
type DebtTransparencyDetail struct {
	CalculationID uint    `gorm:"primaryKey" json:"-"`
	BondType      *string `gorm:"size:16" json:"bond_type,omitempty"`
	IsLiquid      *bool   `json:"is_liquid,omitempty"`
}

func (DebtTransparencyDetail) TableName() string {
	return DebtTransparencyTableName
}

// FutureTransparencyDetail is the FUTURE sub-detail under NON_EQUITY.
type FutureTransparencyDetail struct {
	CalculationID  uint    `gorm:"primaryKey" json:"-"`
	SettlementType *string `gorm:"size:8" json:"settlement_type,omitempty"`
	UnderlyingType *string `gorm:"size:16" json:"underlying_type,omitempty"`
}

func (FutureTransparencyDetail) TableName() string {
	return FutureTransparencyTableName
}
