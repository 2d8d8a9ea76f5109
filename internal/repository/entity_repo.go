// Package repository contains the repository layer for the Reference Data API
package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/finref/refdataapi/internal/models"
	"github.com/finref/refdataapi/pkg/apperrors"
	"gorm.io/gorm"
)

// EntityRepository is the database repository for legal entities, their
// ownership relationships and reporting exceptions.
type EntityRepository struct {
	DB *gorm.DB
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(db *gorm.DB) *EntityRepository {
	return &EntityRepository{DB: db}
}

// GetEntity returns the legal entity with addresses and registration.
func (r *EntityRepository) GetEntity(lei string) (*models.LegalEntity, error) {
	var entity models.LegalEntity
	err := r.DB.Preload("Addresses").Preload("Registration").Where("lei = ?", lei).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("legal entity %s: %w", lei, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// UpsertEntity creates or updates the entity row and replaces its address and
// registration records in one transaction.
func (r *EntityRepository) UpsertEntity(entity *models.LegalEntity) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		addresses := entity.Addresses
		registration := entity.Registration
		entity.Addresses = nil
		entity.Registration = nil

		if err := tx.Save(entity).Error; err != nil {
			return err
		}

		if len(addresses) > 0 {
			if err := tx.Where("lei = ?", entity.LEI).Delete(&models.EntityAddress{}).Error; err != nil {
				return err
			}
			for i := range addresses {
				addresses[i].ID = 0
				addresses[i].LEI = entity.LEI
			}
			if err := tx.Create(&addresses).Error; err != nil {
				return err
			}
		}
		if registration != nil {
			registration.LEI = entity.LEI
			if err := tx.Save(registration).Error; err != nil {
				return err
			}
		}

		entity.Addresses = addresses
		entity.Registration = registration
		return nil
	})
}

// SetRelationship upserts the unique (parent, child, type) edge and removes
// any reporting exception of the same type for the child, keeping the
// relationship/exception exclusivity invariant inside one transaction.
func (r *EntityRepository) SetRelationship(rel *models.EntityRelationship) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lei = ? AND exception_type = ?", rel.ChildLEI, rel.RelationshipType.ExceptionType()).
			Delete(&models.RelationshipException{}).Error; err != nil {
			return err
		}

		var existing models.EntityRelationship
		err := tx.Where("parent_lei = ? AND child_lei = ? AND relationship_type = ?",
			rel.ParentLEI, rel.ChildLEI, rel.RelationshipType).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(rel).Error
		}
		if err != nil {
			return err
		}

		rel.ID = existing.ID
		return tx.Save(rel).Error
	})
}

// SetException upserts the unique (entity, type) exception row and removes
// any relationship edge of the corresponding type where the entity is the
// child, inside one transaction.
func (r *EntityRepository) SetException(exc *models.RelationshipException) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("child_lei = ? AND relationship_type = ?", exc.LEI, exc.ExceptionType.RelationshipType()).
			Delete(&models.EntityRelationship{}).Error; err != nil {
			return err
		}

		var existing models.RelationshipException
		err := tx.Where("lei = ? AND exception_type = ?", exc.LEI, exc.ExceptionType).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(exc).Error
		}
		if err != nil {
			return err
		}

		exc.ID = existing.ID
		return tx.Save(exc).Error
	})
}

// RelationshipsFromParent returns the edges of the given type where lei is
// the parent.
func (r *EntityRepository) RelationshipsFromParent(lei string, relType models.RelationshipType) ([]models.EntityRelationship, error) {
	var rels []models.EntityRelationship
	err := r.DB.Where("parent_lei = ? AND relationship_type = ?", lei, relType).Find(&rels).Error
	return rels, err
}

// RelationshipsToChild returns the edges of the given type where lei is the
// child. At most one exists per type.
func (r *EntityRepository) RelationshipsToChild(lei string, relType models.RelationshipType) ([]models.EntityRelationship, error) {
	var rels []models.EntityRelationship
	err := r.DB.Where("child_lei = ? AND relationship_type = ?", lei, relType).Find(&rels).Error
	return rels, err
}

// GetException returns the (entity, type) exception row if present.
func (r *EntityRepository) GetException(lei string, excType models.ExceptionType) (*models.RelationshipException, error) {
	var exc models.RelationshipException
	err := r.DB.Where("lei = ? AND exception_type = ?", lei, excType).First(&exc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("exception %s/%s: %w", lei, excType, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &exc, nil
}

// ExceptionsFor returns all exceptions filed for the entity.
func (r *EntityRepository) ExceptionsFor(lei string) ([]models.RelationshipException, error) {
	var excs []models.RelationshipException
	err := r.DB.Where("lei = ?", lei).Find(&excs).Error
	return excs, err
}

// StaleEntities returns entities not refreshed since the cutoff, used by the
// scheduled registry sweep.
func (r *EntityRepository) StaleEntities(cutoff time.Time, limit int) ([]models.LegalEntity, error) {
	var entities []models.LegalEntity
	err := r.DB.Where("updated_at < ?", cutoff).Order("updated_at ASC").Limit(limit).Find(&entities).Error
	return entities, err
}

// HasEntity reports whether the entity row exists.
func (r *EntityRepository) HasEntity(lei string) (bool, error) {
	var count int64
	err := r.DB.Model(&models.LegalEntity{}).Where("lei = ?", lei).Count(&count).Error
	return count > 0, err
}
