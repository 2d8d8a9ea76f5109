// Package service contains the service layer for the Reference Data API
package service

import (
	"time"

	"github.com/finref/refdataapi/internal/models"
	"github.com/finref/refdataapi/internal/repository"
	"github.com/finref/refdataapi/pkg/apperrors"
	"github.com/finref/refdataapi/pkg/utils/zaplogger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AttachCalculationInput carries one per-instrument, per-period calculation
// snapshot. Exactly one subtype block must match CalculationType; under
// NON_EQUITY at most one of the debt/future sub-details may be present.
type AttachCalculationInput struct {
	InstrumentID      string                              `json:"instrument_id"`
	CalculationType   models.CalculationType              `json:"calculation_type"`
	PeriodStart       time.Time                           `json:"period_start"`
	PeriodEnd         time.Time                           `json:"period_end"`
	TotalTransactions *int64                              `json:"total_transactions,omitempty"`
	TotalVolume       *decimal.Decimal                    `json:"total_volume,omitempty"`
	LiquidityFlag     *bool                               `json:"liquidity_flag,omitempty"`
	Equity            *models.EquityTransparencyDetail    `json:"equity,omitempty"`
	NonEquity         *models.NonEquityTransparencyDetail `json:"non_equity,omitempty"`
}

// TransparencyService attaches calculation snapshots to instruments.
type TransparencyService struct {
	repo        *repository.TransparencyRepository
	instruments *repository.InstrumentRepository
}

// NewTransparencyService creates a new transparency service
func NewTransparencyService(db *gorm.DB) *TransparencyService {
	return &TransparencyService{
		repo:        repository.NewTransparencyRepository(db),
		instruments: repository.NewInstrumentRepository(db),
	}
}

// Attach creates or replaces the calculation for the instrument and period.
// Replacement is a full replace, calculation outputs are period-immutable
// snapshots from upstream.
func (s *TransparencyService) Attach(input AttachCalculationInput) (*models.TransparencyCalculation, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}

	// surfaces not-found for dangling instrument ids
	if _, err := s.instruments.GetByID(input.InstrumentID); err != nil {
		return nil, err
	}

	calc := &models.TransparencyCalculation{
		InstrumentID:      input.InstrumentID,
		CalculationType:   input.CalculationType,
		PeriodStart:       input.PeriodStart,
		PeriodEnd:         input.PeriodEnd,
		TotalTransactions: input.TotalTransactions,
		TotalVolume:       input.TotalVolume,
		LiquidityFlag:     input.LiquidityFlag,
	}
	if input.CalculationType == models.CalculationEquity {
		calc.EquityDetail = input.Equity
	} else {
		calc.NonEquityDetail = input.NonEquity
	}

	if err := s.repo.Replace(calc); err != nil {
		return nil, err
	}

	zaplogger.Info("Transparency calculation attached", zaplogger.Fields{
		"instrument_id":    calc.InstrumentID,
		"calculation_type": string(calc.CalculationType),
		"period_start":     calc.PeriodStart.Format("2006-01-02"),
	})
	return calc, nil
}

// ForInstrument returns the calculations attached to the instrument.
func (s *TransparencyService) ForInstrument(instrumentID string) ([]models.TransparencyCalculation, error) {
	if _, err := s.instruments.GetByID(instrumentID); err != nil {
		return nil, err
	}
	return s.repo.ForInstrument(instrumentID)
}

func (s *TransparencyService) validate(input AttachCalculationInput) error {
	if input.InstrumentID == "" {
		return &apperrors.ValidationError{Field: "instrument_id", Message: "required"}
	}
	if !input.CalculationType.Valid() {
		return &apperrors.ValidationError{Field: "calculation_type", Message: "must be EQUITY or NON_EQUITY"}
	}
	if input.PeriodStart.IsZero() || input.PeriodEnd.IsZero() {
		return &apperrors.ValidationError{Field: "period", Message: "period_start and period_end are required"}
	}
	if !input.PeriodEnd.After(input.PeriodStart) {
		return &apperrors.ValidationError{Field: "period", Message: "period_end must follow period_start"}
	}
	if input.CalculationType == models.CalculationEquity {
		if input.NonEquity != nil {
			return &apperrors.ValidationError{Field: "non_equity", Message: "not allowed for EQUITY calculations"}
		}
	} else {
		if input.Equity != nil {
			return &apperrors.ValidationError{Field: "equity", Message: "not allowed for NON_EQUITY calculations"}
		}
		if input.NonEquity != nil && input.NonEquity.DebtDetail != nil && input.NonEquity.FutureDetail != nil {
			return &apperrors.ValidationError{Field: "non_equity", Message: "at most one of debt_detail and future_detail"}
		}
	}
	return nil
}
