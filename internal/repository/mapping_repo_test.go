package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/finref/refdataapi/internal/models"
	"github.com/finref/refdataapi/pkg/apperrors"
)

func strPtr(s string) *string { return &s }

func seedInstrument(t *testing.T, db *gorm.DB, isin string) *models.Instrument {
	t.Helper()
	instrument := &models.Instrument{
		ID:             uuid.NewString(),
		InstrumentType: models.InstrumentTypeEquity,
		ISIN:           strPtr(isin),
		FullName:       "Test Instrument " + isin,
		Currency:       "SEK",
	}
	require.NoError(t, db.Create(instrument).Error)
	return instrument
}

func TestMappingUpsertInsertsNewMapping(t *testing.T) {
	db := newTestDB(t)
	repo := NewMappingRepository(db)
	instrument := seedInstrument(t, db, "SE0000195646")

	observed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	surviving, err := repo.Upsert(&models.IdentifierMapping{
		InstrumentID: instrument.ID,
		ISIN:         "SE0000195646",
		ExternalID:   strPtr("BBG000BQXJJ1"),
		IDType:       "FIGI",
		ObservedAt:   observed,
	})
	require.NoError(t, err)
	assert.Equal(t, "BBG000BQXJJ1", *surviving.ExternalID)

	mappings, err := repo.ForISIN("SE0000195646")
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.True(t, mappings[0].ObservedAt.Equal(observed))
}

func TestMappingUpsertLatestObservedWins(t *testing.T) {
	db := newTestDB(t)
	repo := NewMappingRepository(db)
	older := seedInstrument(t, db, "SE0000195646")
	newer := seedInstrument(t, db, "SE0000108656")

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	_, err := repo.Upsert(&models.IdentifierMapping{
		InstrumentID: older.ID,
		ISIN:         *older.ISIN,
		ExternalID:   strPtr("BBG000BQXJJ1"),
		ObservedAt:   t0,
	})
	require.NoError(t, err)

	surviving, err := repo.Upsert(&models.IdentifierMapping{
		InstrumentID: newer.ID,
		ISIN:         *newer.ISIN,
		ExternalID:   strPtr("BBG000BQXJJ1"),
		ObservedAt:   t1,
	})
	require.NoError(t, err)

	// exactly one row holds the external id, pointing at the newer observation
	var count int64
	require.NoError(t, db.Model(&models.IdentifierMapping{}).Where("external_id = ?", "BBG000BQXJJ1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, newer.ID, surviving.InstrumentID)
	assert.Equal(t, *newer.ISIN, surviving.ISIN)
	assert.True(t, surviving.ObservedAt.Equal(t1))
}

func TestMappingUpsertOlderObservationDiscarded(t *testing.T) {
	db := newTestDB(t)
	repo := NewMappingRepository(db)
	current := seedInstrument(t, db, "SE0000195646")
	stale := seedInstrument(t, db, "SE0000108656")

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	_, err := repo.Upsert(&models.IdentifierMapping{
		InstrumentID: current.ID,
		ISIN:         *current.ISIN,
		ExternalID:   strPtr("BBG000BQXJJ1"),
		ObservedAt:   t1,
	})
	require.NoError(t, err)

	// a late-arriving record observed before the stored one loses
	surviving, err := repo.Upsert(&models.IdentifierMapping{
		InstrumentID: stale.ID,
		ISIN:         *stale.ISIN,
		ExternalID:   strPtr("BBG000BQXJJ1"),
		ObservedAt:   t0,
	})
	require.NoError(t, err)
	assert.Equal(t, current.ID, surviving.InstrumentID)

	var count int64
	require.NoError(t, db.Model(&models.IdentifierMapping{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMappingUpsertTieKeepsExistingRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewMappingRepository(db)
	first := seedInstrument(t, db, "SE0000195646")
	second := seedInstrument(t, db, "SE0000108656")

	observed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := repo.Upsert(&models.IdentifierMapping{
		InstrumentID: first.ID,
		ISIN:         *first.ISIN,
		ExternalID:   strPtr("BBG000BQXJJ1"),
		ObservedAt:   observed,
	})
	require.NoError(t, err)

	surviving, err := repo.Upsert(&models.IdentifierMapping{
		InstrumentID: second.ID,
		ISIN:         *second.ISIN,
		ExternalID:   strPtr("BBG000BQXJJ1"),
		ObservedAt:   observed,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, surviving.InstrumentID)
}

func TestMappingUpsertNullExternalIDAlwaysInserts(t *testing.T) {
	db := newTestDB(t)
	repo := NewMappingRepository(db)
	instrument := seedInstrument(t, db, "SE0000195646")

	for i := 0; i < 3; i++ {
		_, err := repo.Upsert(&models.IdentifierMapping{
			InstrumentID: instrument.ID,
			ISIN:         *instrument.ISIN,
			ObservedAt:   time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	mappings, err := repo.ForInstrument(instrument.ID)
	require.NoError(t, err)
	assert.Len(t, mappings, 3)
}

func TestMappingUpsertRecoversLostInsertRace(t *testing.T) {
	db := newTestDB(t)
	repo := NewMappingRepository(db)
	winner := seedInstrument(t, db, "SE0000195646")
	loser := seedInstrument(t, db, "SE0000108656")

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	// slip a competing row in after the existence check but before the
	// insert, the way a concurrent upsert would
	raced := false
	err := db.Callback().Create().Before("gorm:create").Register("competing_upsert", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != models.IdentifierMappingsTableName {
			return
		}
		raced = true
		tx.Session(&gorm.Session{NewDB: true}).Create(&models.IdentifierMapping{
			InstrumentID: winner.ID,
			ISIN:         *winner.ISIN,
			ExternalID:   strPtr("BBG000BQXJJ1"),
			ObservedAt:   t0,
		})
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Callback().Create().Remove("competing_upsert"))
	})

	surviving, err := repo.Upsert(&models.IdentifierMapping{
		InstrumentID: loser.ID,
		ISIN:         *loser.ISIN,
		ExternalID:   strPtr("BBG000BQXJJ1"),
		ObservedAt:   t1,
	})
	require.NoError(t, err)
	require.True(t, raced)

	// the lost insert degrades to the comparison path, the later
	// observation still wins and uniqueness holds
	assert.Equal(t, loser.ID, surviving.InstrumentID)
	assert.True(t, surviving.ObservedAt.Equal(t1))

	var count int64
	require.NoError(t, db.Model(&models.IdentifierMapping{}).Where("external_id = ?", "BBG000BQXJJ1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMappingUpsertConcurrentConflictingUpserts(t *testing.T) {
	db := newTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	repo := NewMappingRepository(db)
	older := seedInstrument(t, db, "SE0000195646")
	newer := seedInstrument(t, db, "SE0000108656")

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	var g errgroup.Group
	g.Go(func() error {
		_, err := repo.Upsert(&models.IdentifierMapping{
			InstrumentID: older.ID,
			ISIN:         *older.ISIN,
			ExternalID:   strPtr("BBG000BQXJJ1"),
			ObservedAt:   t0,
		})
		return err
	})
	g.Go(func() error {
		_, err := repo.Upsert(&models.IdentifierMapping{
			InstrumentID: newer.ID,
			ISIN:         *newer.ISIN,
			ExternalID:   strPtr("BBG000BQXJJ1"),
			ObservedAt:   t1,
		})
		return err
	})
	require.NoError(t, g.Wait())

	// regardless of arrival order, one row survives with the later
	// observation
	var rows []models.IdentifierMapping
	require.NoError(t, db.Where("external_id = ?", "BBG000BQXJJ1").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, newer.ID, rows[0].InstrumentID)
	assert.True(t, rows[0].ObservedAt.Equal(t1))
}

func TestMappingByExternalID(t *testing.T) {
	db := newTestDB(t)
	repo := NewMappingRepository(db)
	instrument := seedInstrument(t, db, "SE0000195646")

	_, err := repo.Upsert(&models.IdentifierMapping{
		InstrumentID: instrument.ID,
		ISIN:         *instrument.ISIN,
		ExternalID:   strPtr("BBG000BQXJJ1"),
		ObservedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	mapping, err := repo.ByExternalID("BBG000BQXJJ1")
	require.NoError(t, err)
	assert.Equal(t, instrument.ID, mapping.InstrumentID)

	_, err = repo.ByExternalID("BBG000000000")
	assert.True(t, apperrors.IsNotFound(err))
}
