// Package repository contains the repository layer for the Reference Data API
package repository

import (
	"errors"
	"fmt"

	"github.com/finref/refdataapi/internal/models"
	"github.com/finref/refdataapi/pkg/apperrors"
	"gorm.io/gorm"
)

// InstrumentRepository is the database repository for instruments and their
// type-specific detail rows.
type InstrumentRepository struct {
	DB *gorm.DB
}

// NewInstrumentRepository creates a new instrument repository
func NewInstrumentRepository(db *gorm.DB) *InstrumentRepository {
	return &InstrumentRepository{DB: db}
}

// preloaded returns the query with all detail associations attached.
func (r *InstrumentRepository) preloaded(tx *gorm.DB) *gorm.DB {
	return tx.Preload("EquityDetail").Preload("DebtDetail").Preload("FutureDetail")
}

// GetByID returns the instrument with its detail row.
func (r *InstrumentRepository) GetByID(id string) (*models.Instrument, error) {
	var instrument models.Instrument
	err := r.preloaded(r.DB).Where("id = ?", id).First(&instrument).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("instrument %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &instrument, nil
}

// GetByISIN returns the instrument holding the ISIN, at most one exists.
func (r *InstrumentRepository) GetByISIN(isin string) (*models.Instrument, error) {
	var instrument models.Instrument
	err := r.preloaded(r.DB).Where("isin = ?", isin).First(&instrument).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("instrument with isin %s: %w", isin, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &instrument, nil
}

// Create inserts the instrument and its detail row in one transaction.
func (r *InstrumentRepository) Create(instrument *models.Instrument) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(instrument).Error
	})
}

// Update saves the instrument and its detail row in one transaction.
func (r *InstrumentRepository) Update(instrument *models.Instrument) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(instrument).Error; err != nil {
			return err
		}
		if instrument.EquityDetail != nil {
			if err := tx.Save(instrument.EquityDetail).Error; err != nil {
				return err
			}
		}
		if instrument.DebtDetail != nil {
			if err := tx.Save(instrument.DebtDetail).Error; err != nil {
				return err
			}
		}
		if instrument.FutureDetail != nil {
			if err := tx.Save(instrument.FutureDetail).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the instrument; detail rows and identifier mappings cascade.
func (r *InstrumentRepository) Delete(id string) error {
	result := r.DB.Where("id = ?", id).Delete(&models.Instrument{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("instrument %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// QueryInstrumentsParams is the parameters for the instrument query endpoint
type QueryInstrumentsParams struct {
	InstrumentType string `query:"instrument_type"`
	Symbol         string `query:"symbol"`
	Currency       string `query:"currency"`
	CFICode        string `query:"cfi_code"`
	LegalEntityLEI string `query:"lei"`
}

// Query filters the instruments table.
func (r *InstrumentRepository) Query(params QueryInstrumentsParams) ([]models.Instrument, error) {
	query := r.DB.Model(&models.Instrument{})

	if params.InstrumentType != "" {
		query = query.Where("instrument_type = ?", params.InstrumentType)
	}
	if params.Symbol != "" {
		query = query.Where("symbol LIKE ?", params.Symbol)
	}
	if params.Currency != "" {
		query = query.Where("currency = ?", params.Currency)
	}
	if params.CFICode != "" {
		query = query.Where("cfi_code LIKE ?", params.CFICode+"%")
	}
	if params.LegalEntityLEI != "" {
		query = query.Where("legal_entity_lei = ?", params.LegalEntityLEI)
	}

	var instruments []models.Instrument
	if err := r.preloaded(query).Find(&instruments).Error; err != nil {
		return nil, err
	}
	return instruments, nil
}

// Count returns the number of instrument rows.
func (r *InstrumentRepository) Count() (int64, error) {
	var count int64
	err := r.DB.Model(&models.Instrument{}).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get instruments record count: %v", err)
	}
	return count, nil
}
