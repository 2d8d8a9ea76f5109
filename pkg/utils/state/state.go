// Package state persists key/value watermarks used by ingestion jobs.
package state

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var StateTableName = "_refdata_state"

// StateEntry is one watermark row.
type StateEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (StateEntry) TableName() string {
	return StateTableName
}

// State reads and writes watermark entries.
type State struct {
	db *gorm.DB
}

func NewState(db *gorm.DB) (*State, error) {

	err := db.AutoMigrate(&StateEntry{})
	if err != nil {
		return nil, err
	}

	return &State{db: db}, nil
}

// Get returns the value for key, or empty string when the key is absent.
func (s *State) Get(key string) (string, error) {
	var entry StateEntry
	result := s.db.Where("key = ?", key).First(&entry)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", result.Error
	}
	return entry.Value, nil
}

// Set creates or updates the entry for key.
func (s *State) Set(key, value string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var entry StateEntry
		result := tx.Where("key = ?", key).First(&entry)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				entry = StateEntry{Key: key, Value: value}
				return tx.Create(&entry).Error
			}
			return result.Error
		}
		entry.Value = value
		return tx.Save(&entry).Error
	})
}

// Delete removes the entry for key.
func (s *State) Delete(key string) error {
	return s.db.Where("key = ?", key).Delete(&StateEntry{}).Error
}
