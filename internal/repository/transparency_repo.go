// Package repository contains the repository layer for the Reference Data API
package repository

import (
	"errors"

	"github.com/finref/refdataapi/internal/models"
	"gorm.io/gorm"
)

// TransparencyRepository is the database repository for transparency
// calculation snapshots.
type TransparencyRepository struct {
	DB *gorm.DB
}

// NewTransparencyRepository creates a new transparency repository
func NewTransparencyRepository(db *gorm.DB) *TransparencyRepository {
	return &TransparencyRepository{DB: db}
}

// Replace removes any calculation for the same (instrument, type, period) and
// inserts calc with its subtype rows. Period snapshots are immutable upstream
// so this is a full replace, never a merge.
func (r *TransparencyRepository) Replace(calc *models.TransparencyCalculation) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.TransparencyCalculation
		err := tx.Where("instrument_id = ? AND calculation_type = ? AND period_start = ? AND period_end = ?",
			calc.InstrumentID, calc.CalculationType, calc.PeriodStart, calc.PeriodEnd).First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil {
			if err := r.deleteCalculation(tx, existing.ID); err != nil {
				return err
			}
		}
		return tx.Create(calc).Error
	})
}

// deleteCalculation removes a calculation row and its subtype rows explicitly,
// independent of the store's cascade support.
func (r *TransparencyRepository) deleteCalculation(tx *gorm.DB, calcID uint) error {
	if err := tx.Where("calculation_id = ?", calcID).Delete(&models.DebtTransparencyDetail{}).Error; err != nil {
		return err
	}
	if err := tx.Where("calculation_id = ?", calcID).Delete(&models.FutureTransparencyDetail{}).Error; err != nil {
		return err
	}
	if err := tx.Where("calculation_id = ?", calcID).Delete(&models.EquityTransparencyDetail{}).Error; err != nil {
		return err
	}
	if err := tx.Where("calculation_id = ?", calcID).Delete(&models.NonEquityTransparencyDetail{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.TransparencyCalculation{}, calcID).Error
}

// ForInstrument returns all calculations attached to the instrument with
// subtype rows preloaded.
func (r *TransparencyRepository) ForInstrument(instrumentID string) ([]models.TransparencyCalculation, error) {
	var calcs []models.TransparencyCalculation
	err := r.DB.
		Preload("EquityDetail").
		Preload("NonEquityDetail").
		Preload("NonEquityDetail.DebtDetail").
		Preload("NonEquityDetail.FutureDetail").
		Where("instrument_id = ?", instrumentID).
		Order("period_start ASC").
		Find(&calcs).Error
	if err != nil {
		return nil, err
	}
	return calcs, nil
}
