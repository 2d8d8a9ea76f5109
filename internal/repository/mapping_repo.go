// Package repository contains the repository layer for the Reference Data API
package repository

import (
	"errors"
	"fmt"

	"github.com/finref/refdataapi/internal/models"
	"github.com/finref/refdataapi/pkg/apperrors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MappingRepository is the database repository for identifier mappings. It
// enforces global uniqueness of non-null external identifiers, both through
// the unique index and through the latest-observed-wins upsert.
type MappingRepository struct {
	DB *gorm.DB
}

// NewMappingRepository creates a new mapping repository
func NewMappingRepository(db *gorm.DB) *MappingRepository {
	return &MappingRepository{DB: db}
}

// Upsert inserts the mapping, or when a row with the same external id already
// exists, keeps whichever of the two has the later ObservedAt and discards the
// other. Ties keep the pre-existing row, so retries are idempotent. Rows with
// a null external id are exempt from uniqueness and always inserted as new.
// Returns the surviving mapping.
func (r *MappingRepository) Upsert(mapping *models.IdentifierMapping) (*models.IdentifierMapping, error) {
	if mapping.ExternalID == nil {
		if err := r.DB.Create(mapping).Error; err != nil {
			return nil, fmt.Errorf("failed to insert mapping for isin %s: %w", mapping.ISIN, err)
		}
		return mapping, nil
	}

	var surviving *models.IdentifierMapping
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.IdentifierMapping
		err := tx.Where("external_id = ?", *mapping.ExternalID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// a conflicting insert must not raise a unique violation, that
			// would abort the whole transaction on Postgres
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "external_id"}},
				DoNothing: true,
			}).Create(mapping)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				surviving = mapping
				return nil
			}
			// a concurrent upsert won the insert race, fall back to the
			// comparison path against its row
			if ferr := tx.Where("external_id = ?", *mapping.ExternalID).First(&existing).Error; ferr != nil {
				return ferr
			}
			return r.resolve(tx, &existing, mapping, &surviving)
		}
		if err != nil {
			return err
		}
		return r.resolve(tx, &existing, mapping, &surviving)
	})
	if err != nil {
		return nil, err
	}
	return surviving, nil
}

// resolve applies latest-ObservedAt-wins between the stored row and the
// incoming mapping, updating the stored row in place when the incoming one is
// newer so the unique index is never violated, not even transiently.
func (r *MappingRepository) resolve(tx *gorm.DB, existing, incoming *models.IdentifierMapping, surviving **models.IdentifierMapping) error {
	if incoming.ObservedAt.After(existing.ObservedAt) {
		existing.InstrumentID = incoming.InstrumentID
		existing.ISIN = incoming.ISIN
		existing.IDType = incoming.IDType
		existing.Attributes = incoming.Attributes
		existing.ObservedAt = incoming.ObservedAt
		if err := tx.Save(existing).Error; err != nil {
			return err
		}
	}
	*surviving = existing
	return nil
}

// ForISIN returns all current mappings for the ISIN.
func (r *MappingRepository) ForISIN(isin string) ([]models.IdentifierMapping, error) {
	var mappings []models.IdentifierMapping
	if err := r.DB.Where("isin = ?", isin).Find(&mappings).Error; err != nil {
		return nil, err
	}
	return mappings, nil
}

// ForInstrument returns all mappings owned by the instrument.
func (r *MappingRepository) ForInstrument(instrumentID string) ([]models.IdentifierMapping, error) {
	var mappings []models.IdentifierMapping
	if err := r.DB.Where("instrument_id = ?", instrumentID).Find(&mappings).Error; err != nil {
		return nil, err
	}
	return mappings, nil
}

// ByExternalID returns the mapping holding the external identifier.
func (r *MappingRepository) ByExternalID(externalID string) (*models.IdentifierMapping, error) {
	var mapping models.IdentifierMapping
	err := r.DB.Where("external_id = ?", externalID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("mapping %s: %w", externalID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}
