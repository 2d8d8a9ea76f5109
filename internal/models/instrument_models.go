// Package models contains the models for the Reference Data API
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var (
	InstrumentsTableName        = "instruments"
	EquityDetailsTableName      = "instrument_equity_details"
	DebtDetailsTableName        = "instrument_debt_details"
	FutureDetailsTableName      = "instrument_future_details"
	IdentifierMappingsTableName = "identifier_mappings"
)

// InstrumentType tags an instrument with its asset-class schema.
type InstrumentType string

const (
	InstrumentTypeEquity InstrumentType = "EQUITY"
	InstrumentTypeDebt   InstrumentType = "DEBT"
	InstrumentTypeFuture InstrumentType = "FUTURE"
)

// Valid reports whether t is a member of the closed instrument-type set.
func (t InstrumentType) Valid() bool {
	switch t {
	case InstrumentTypeEquity, InstrumentTypeDebt, InstrumentTypeFuture:
		return true
	}
	return false
}

// Instrument is the polymorphic base record. Exactly one type-specific detail
// row exists per instrument, matching InstrumentType.
type Instrument struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	InstrumentType InstrumentType `gorm:"size:16;index" json:"instrument_type"`
	ISIN           *string        `gorm:"size:12;uniqueIndex" json:"isin,omitempty"`
	Symbol         *string        `gorm:"size:32;index" json:"symbol,omitempty"`
	FullName       string         `json:"full_name"`
	ShortName      string         `json:"short_name"`
	Currency       string         `gorm:"size:3" json:"currency"`
	CFICode        string         `gorm:"size:6" json:"cfi_code"`
	// LegalEntityLEI is a weak reference, the entity row may not exist yet
	LegalEntityLEI *string        `gorm:"size:20;index" json:"legal_entity_lei,omitempty"`
	Attributes     datatypes.JSON `gorm:"type:jsonb" json:"attributes,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"-"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	EquityDetail *EquityDetail `gorm:"foreignKey:InstrumentID;constraint:OnDelete:CASCADE" json:"equity_detail,omitempty"`
	DebtDetail   *DebtDetail   `gorm:"foreignKey:InstrumentID;constraint:OnDelete:CASCADE" json:"debt_detail,omitempty"`
	FutureDetail *FutureDetail `gorm:"foreignKey:InstrumentID;constraint:OnDelete:CASCADE" json:"future_detail,omitempty"`
}

// TableName specifies the table name for the Instrument model
func (Instrument) TableName() string {
	return InstrumentsTableName
}

// EquityDetail carries the EQUITY attribute set, shared primary key with the
// instrument.
type EquityDetail struct {
	InstrumentID      string           `gorm:"primaryKey;size:36" json:"-"`
	SharesOutstanding *int64           `json:"shares_outstanding,omitempty"`
	MarketCap         *decimal.Decimal `gorm:"type:decimal(24,2)" json:"market_cap,omitempty"`
	VotingRights      *int             `json:"voting_rights,omitempty"`
	DividendCurrency  *string          `gorm:"size:3" json:"dividend_currency,omitempty"`
	TradingVenue      *string          `gorm:"size:8" json:"trading_venue,omitempty"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"-"`
}

func (EquityDetail) TableName() string {
	return EquityDetailsTableName
}

// DebtDetail carries the DEBT attribute set.
type DebtDetail struct {
	InstrumentID          string           `gorm:"primaryKey;size:36" json:"-"`
	NominalValue          *decimal.Decimal `gorm:"type:decimal(24,4)" json:"nominal_value,omitempty"`
	NominalCurrency       *string          `gorm:"size:3" json:"nominal_currency,omitempty"`
	MaturityDate          *time.Time       `json:"maturity_date,omitempty"`
	FixedRate             *decimal.Decimal `gorm:"type:decimal(12,6)" json:"fixed_rate,omitempty"`
	FloatingRateReference *string          `gorm:"size:32" json:"floating_rate_reference,omitempty"`
	FloatingRateTermUnit  *string          `gorm:"size:8" json:"floating_rate_term_unit,omitempty"`
	FloatingRateTermValue *int             `json:"floating_rate_term_value,omitempty"`
	FloatingRateSpreadBps *int             `json:"floating_rate_spread_bps,omitempty"`
	Seniority             *string          `gorm:"size:16" json:"seniority,omitempty"`
	UpdatedAt             time.Time        `gorm:"autoUpdateTime" json:"-"`
}

func (DebtDetail) TableName() string {
	return DebtDetailsTableName
}

// CommodityCategory selects which commodity attribute sub-object is populated
// on a future detail. Derived from the product-classification field.
type CommodityCategory string

const (
	CommodityAgricultural CommodityCategory = "AGRI"
	CommodityEnergy       CommodityCategory = "NRGY"
	CommodityMetals       CommodityCategory = "METL"
)

// AgriculturalAttributes is the AGRI commodity sub-object.
type AgriculturalAttributes struct {
	BaseProduct        string `json:"base_product"`
	SubProduct         string `json:"sub_product,omitempty"`
	FurtherSubProduct  string `json:"further_sub_product,omitempty"`
	SeasonalityProfile string `json:"seasonality_profile,omitempty"`
}

// EnergyAttributes is the NRGY commodity sub-object.
type EnergyAttributes struct {
	BaseProduct       string `json:"base_product"`
	SubProduct        string `json:"sub_product,omitempty"`
	LoadType          string `json:"load_type,omitempty"`
	DeliveryPoint     string `json:"delivery_point,omitempty"`
	TransmissionBasis string `json:"transmission_basis,omitempty"`
}

// MetalAttributes is the METL commodity sub-object.
type MetalAttributes struct {
	BaseProduct string `json:"base_product"`
	SubProduct  string `json:"sub_product,omitempty"`
	Purity      string `json:"purity,omitempty"`
	DeliveryLot string `json:"delivery_lot,omitempty"`
}

// FutureDetail carries the FUTURE attribute set. At most one commodity
// sub-object is non-nil, selected by ProductCategory.
type FutureDetail struct {
	InstrumentID     string                  `gorm:"primaryKey;size:36" json:"-"`
	ExpiryDate       *time.Time              `json:"expiry_date,omitempty"`
	SettlementMethod *string                 `gorm:"size:8" json:"settlement_method,omitempty"`
	ContractSize     *decimal.Decimal        `gorm:"type:decimal(24,4)" json:"contract_size,omitempty"`
	PriceMultiplier  *decimal.Decimal        `gorm:"type:decimal(18,6)" json:"price_multiplier,omitempty"`
	UnderlyingISIN   *string                 `gorm:"size:12" json:"underlying_isin,omitempty"`
	ProductCategory  *CommodityCategory      `gorm:"size:8" json:"product_category,omitempty"`
	Agricultural     *AgriculturalAttributes `gorm:"type:jsonb;serializer:json" json:"agricultural,omitempty"`
	Energy           *EnergyAttributes       `gorm:"type:jsonb;serializer:json" json:"energy,omitempty"`
	Metals           *MetalAttributes        `gorm:"type:jsonb;serializer:json" json:"metals,omitempty"`
	UpdatedAt        time.Time               `gorm:"autoUpdateTime" json:"-"`
}

func (FutureDetail) TableName() string {
	return FutureDetailsTableName
}

// IdentifierMapping maps an ISIN to one external security identifier.
// ExternalID is globally unique when present; an ISIN may have many mappings.
// Owned by the instrument, cascade-deleted with it.
type IdentifierMapping struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"-"`
	InstrumentID string         `gorm:"size:36;index" json:"-"`
	Instrument   *Instrument    `gorm:"foreignKey:InstrumentID;constraint:OnDelete:CASCADE" json:"-"`
	ISIN         string         `gorm:"size:12;index" json:"isin"`
	ExternalID   *string        `gorm:"size:12;uniqueIndex" json:"external_id,omitempty"`
	IDType       string         `gorm:"size:16;default:FIGI" json:"id_type"`
	Attributes   datatypes.JSON `gorm:"type:jsonb" json:"attributes,omitempty"`
	ObservedAt   time.Time      `gorm:"index" json:"observed_at"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"-"`
}

func (IdentifierMapping) TableName() string {
	return IdentifierMappingsTableName
}
