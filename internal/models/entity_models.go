// Package models contains the models for the Reference Data API
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	LegalEntitiesTableName          = "legal_entities"
	EntityAddressesTableName        = "legal_entity_addresses"
	EntityRegistrationsTableName    = "legal_entity_registrations"
	EntityRelationshipsTableName    = "entity_relationships"
	RelationshipExceptionsTableName = "relationship_exceptions"
)

// RelationshipType is the ownership edge type.
type RelationshipType string

const (
	RelationshipDirect   RelationshipType = "DIRECT"
	RelationshipUltimate RelationshipType = "ULTIMATE"
)

// Valid reports whether t is DIRECT or ULTIMATE.
func (t RelationshipType) Valid() bool {
	return t == RelationshipDirect || t == RelationshipUltimate
}

// ExceptionType returns the reporting-exception type corresponding to the
// relationship type.
func (t RelationshipType) ExceptionType() ExceptionType {
	if t == RelationshipUltimate {
		return ExceptionUltimateParent
	}
	return ExceptionDirectParent
}

// ExceptionType is the reporting-exception counterpart of a relationship type.
type ExceptionType string

const (
	ExceptionDirectParent   ExceptionType = "DIRECT_PARENT"
	ExceptionUltimateParent ExceptionType = "ULTIMATE_PARENT"
)

// RelationshipType returns the relationship type this exception excludes.
func (t ExceptionType) RelationshipType() RelationshipType {
	if t == ExceptionUltimateParent {
		return RelationshipUltimate
	}
	return RelationshipDirect
}

// Valid reports whether t is a known exception type.
func (t ExceptionType) Valid() bool {
	return t == ExceptionDirectParent || t == ExceptionUltimateParent
}

// AddressType distinguishes the zero-or-one address rows per entity.
type AddressType string

const (
	AddressLegal        AddressType = "LEGAL"
	AddressHeadquarters AddressType = "HEADQUARTERS"
)

// LegalEntity is keyed by its 20-character registry identifier.
type LegalEntity struct {
	LEI          string    `gorm:"primaryKey;size:20" json:"lei"`
	Name         string    `json:"name"`
	Jurisdiction string    `gorm:"size:8" json:"jurisdiction"`
	LegalForm    string    `gorm:"size:32" json:"legal_form"`
	Status       string    `gorm:"size:16" json:"status"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Addresses    []EntityAddress     `gorm:"foreignKey:LEI;references:LEI;constraint:OnDelete:CASCADE" json:"addresses,omitempty"`
	Registration *EntityRegistration `gorm:"foreignKey:LEI;references:LEI;constraint:OnDelete:CASCADE" json:"registration,omitempty"`
}

// TableName specifies the table name for the LegalEntity model
func (LegalEntity) TableName() string {
	return LegalEntitiesTableName
}

// EntityAddress is one address row, at most one per (entity, address type).
type EntityAddress struct {
	ID          uint        `gorm:"primaryKey;autoIncrement" json:"-"`
	LEI         string      `gorm:"size:20;uniqueIndex:idx_entity_address_type" json:"-"`
	AddressType AddressType `gorm:"size:16;uniqueIndex:idx_entity_address_type" json:"address_type"`
	Line1       string      `json:"line1"`
	Line2       string      `json:"line2,omitempty"`
	City        string      `json:"city"`
	Region      string      `gorm:"size:8" json:"region,omitempty"`
	Country     string      `gorm:"size:2" json:"country"`
	PostalCode  string      `gorm:"size:16" json:"postal_code,omitempty"`
}

func (EntityAddress) TableName() string {
	return EntityAddressesTableName
}

// EntityRegistration is the zero-or-one registration record per entity.
type EntityRegistration struct {
	LEI                string     `gorm:"primaryKey;size:20" json:"-"`
	RegistrationStatus string     `gorm:"size:16" json:"registration_status"`
	InitialDate        *time.Time `json:"initial_date,omitempty"`
	LastUpdateDate     *time.Time `json:"last_update_date,omitempty"`
	NextRenewalDate    *time.Time `json:"next_renewal_date,omitempty"`
	ManagingLOU        string     `gorm:"size:20" json:"managing_lou"`
}

func (EntityRegistration) TableName() string {
	return EntityRegistrationsTableName
}

// EntityRelationship is a directed parent->child ownership edge. Uniqueness on
// (parent, child, type); both endpoints cascade-delete with their entity.
type EntityRelationship struct {
	ID               uint             `gorm:"primaryKey;autoIncrement" json:"-"`
	ParentLEI        string           `gorm:"size:20;uniqueIndex:idx_rel_parent_child_type;index" json:"parent_lei"`
	ChildLEI         string           `gorm:"size:20;uniqueIndex:idx_rel_parent_child_type;index" json:"child_lei"`
	RelationshipType RelationshipType `gorm:"size:16;uniqueIndex:idx_rel_parent_child_type" json:"relationship_type"`
	Status           string           `gorm:"size:16;default:ACTIVE" json:"status"`
	PeriodStart      time.Time        `json:"period_start"`
	PeriodEnd        *time.Time       `json:"period_end,omitempty"`
	OwnershipPercent *decimal.Decimal `gorm:"type:decimal(7,4)" json:"ownership_percent,omitempty"`
	LastUpdatedAt    time.Time        `gorm:"autoUpdateTime" json:"last_updated_at"`

	Parent *LegalEntity `gorm:"foreignKey:ParentLEI;references:LEI;constraint:OnDelete:CASCADE" json:"-"`
	Child  *LegalEntity `gorm:"foreignKey:ChildLEI;references:LEI;constraint:OnDelete:CASCADE" json:"-"`
}

func (EntityRelationship) TableName() string {
	return EntityRelationshipsTableName
}

// RelationshipException records that an entity reports no parent of the given
// type. At most one row per (entity, exception type); mutually exclusive with
// a relationship edge of the corresponding type.
type RelationshipException struct {
	ID               uint          `gorm:"primaryKey;autoIncrement" json:"-"`
	LEI              string        `gorm:"size:20;uniqueIndex:idx_exception_entity_type;index" json:"lei"`
	ExceptionType    ExceptionType `gorm:"size:20;uniqueIndex:idx_exception_entity_type" json:"exception_type"`
	Reason           string        `gorm:"size:32" json:"reason"`
	Category         string        `gorm:"size:32" json:"category,omitempty"`
	ClaimedParentLEI *string       `gorm:"size:20" json:"claimed_parent_lei,omitempty"`
	ClaimedParent    *string       `json:"claimed_parent,omitempty"`
	LastUpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"last_updated_at"`

	Entity *LegalEntity `gorm:"foreignKey:LEI;references:LEI;constraint:OnDelete:CASCADE" json:"-"`
}

func (RelationshipException) TableName() string {
	return RelationshipExceptionsTableName
}
