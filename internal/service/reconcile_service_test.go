package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finref/refdataapi/internal/models"
	"github.com/finref/refdataapi/internal/repository"
	"github.com/finref/refdataapi/pkg/apperrors"
)

func TestReconcileCreatesEquityInstrument(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)

	record := models.SourceRecord{
		Type:       models.InstrumentTypeEquity,
		ISIN:       strPtr("SE0000108656"),
		ObservedAt: time.Now().UTC(),
		Fields: map[string]interface{}{
			"full_name":          "Example Industries AB",
			"short_name":         "EXMPL",
			"symbol":             "EXM",
			"currency":           "SEK",
			"cfi_code":           "ESVUFR",
			"shares_outstanding": float64(1_000_000),
			"market_cap":         "12500000.50",
			"trading_venue":      "XSTO",
		},
	}

	instrument, err := svc.Reconcile(record)
	require.NoError(t, err)
	assert.NotEmpty(t, instrument.ID)
	assert.Equal(t, models.InstrumentTypeEquity, instrument.InstrumentType)

	stored, err := repository.NewInstrumentRepository(db).GetByISIN("SE0000108656")
	require.NoError(t, err)
	assert.Equal(t, "Example Industries AB", stored.FullName)
	require.NotNil(t, stored.EquityDetail)
	require.NotNil(t, stored.EquityDetail.SharesOutstanding)
	assert.Equal(t, int64(1_000_000), *stored.EquityDetail.SharesOutstanding)
	require.NotNil(t, stored.EquityDetail.MarketCap)
	assert.Equal(t, "12500000.5", stored.EquityDetail.MarketCap.String())
	assert.Nil(t, stored.DebtDetail)
	assert.Nil(t, stored.FutureDetail)
}

func TestReconcileUpdatesExistingByISIN(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)

	first := models.SourceRecord{
		Type: models.InstrumentTypeEquity,
		ISIN: strPtr("SE0000108656"),
		Fields: map[string]interface{}{
			"full_name": "Example Industries AB",
			"currency":  "SEK",
		},
	}
	created, err := svc.Reconcile(first)
	require.NoError(t, err)

	second := models.SourceRecord{
		Type: models.InstrumentTypeEquity,
		ISIN: strPtr("SE0000108656"),
		Fields: map[string]interface{}{
			"full_name": "Example Industries Aktiebolag",
		},
	}
	updated, err := svc.Reconcile(second)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	var count int64
	require.NoError(t, db.Model(&models.Instrument{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	stored, err := repository.NewInstrumentRepository(db).GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Example Industries Aktiebolag", stored.FullName)
	// untouched columns survive the partial update
	assert.Equal(t, "SEK", stored.Currency)
}

func TestReconcileRejectsTypeMismatch(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)

	_, err := svc.Reconcile(models.SourceRecord{
		Type:   models.InstrumentTypeEquity,
		ISIN:   strPtr("SE0000108656"),
		Fields: map[string]interface{}{"full_name": "Example Industries AB"},
	})
	require.NoError(t, err)

	_, err = svc.Reconcile(models.SourceRecord{
		Type:   models.InstrumentTypeDebt,
		ISIN:   strPtr("SE0000108656"),
		Fields: map[string]interface{}{"nominal_currency": "SEK"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	var mismatch *apperrors.TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "EQUITY", mismatch.StoredType)
	assert.Equal(t, "DEBT", mismatch.RecordType)
}

func TestReconcileValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)

	tests := []struct {
		name   string
		record models.SourceRecord
	}{
		{"unknown type", models.SourceRecord{Type: "SWAP", ISIN: strPtr("SE0000108656")}},
		{"no identifiers", models.SourceRecord{Type: models.InstrumentTypeEquity}},
		{"short isin", models.SourceRecord{Type: models.InstrumentTypeEquity, ISIN: strPtr("SE00")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Reconcile(tt.record)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestReconcileMergesAttributeBag(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)

	_, err := svc.Reconcile(models.SourceRecord{
		Type: models.InstrumentTypeEquity,
		ISIN: strPtr("SE0000108656"),
		Fields: map[string]interface{}{
			"full_name":    "Example Industries AB",
			"issuer_notes": "first batch",
		},
	})
	require.NoError(t, err)

	// a later record with different unknown fields must not discard the first
	instrument, err := svc.Reconcile(models.SourceRecord{
		Type: models.InstrumentTypeEquity,
		ISIN: strPtr("SE0000108656"),
		Fields: map[string]interface{}{
			"listing_tier": "LARGE_CAP",
		},
	})
	require.NoError(t, err)

	var bag map[string]interface{}
	require.NoError(t, json.Unmarshal(instrument.Attributes, &bag))
	assert.Equal(t, "first batch", bag["issuer_notes"])
	assert.Equal(t, "LARGE_CAP", bag["listing_tier"])
}

func TestReconcileCommoditySwitchClearsPreviousSubObject(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)

	_, err := svc.Reconcile(models.SourceRecord{
		Type: models.InstrumentTypeFuture,
		ISIN: strPtr("DE000C21EMZ4"),
		Fields: map[string]interface{}{
			"full_name":                "Power Base Future",
			"product_category":         "NRGY",
			"commodity_base_product":   "ELEC",
			"commodity_delivery_point": "DE_LU",
		},
	})
	require.NoError(t, err)

	instrument, err := svc.Reconcile(models.SourceRecord{
		Type: models.InstrumentTypeFuture,
		ISIN: strPtr("DE000C21EMZ4"),
		Fields: map[string]interface{}{
			"product_category":       "METL",
			"commodity_base_product": "PRME",
			"commodity_purity":       "99.99",
		},
	})
	require.NoError(t, err)

	stored, err := repository.NewInstrumentRepository(db).GetByID(instrument.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FutureDetail)
	require.NotNil(t, stored.FutureDetail.ProductCategory)
	assert.Equal(t, models.CommodityMetals, *stored.FutureDetail.ProductCategory)
	require.NotNil(t, stored.FutureDetail.Metals)
	assert.Equal(t, "99.99", stored.FutureDetail.Metals.Purity)
	assert.Nil(t, stored.FutureDetail.Energy)
	assert.Nil(t, stored.FutureDetail.Agricultural)
}

func TestReconcileUnknownCommodityCategoryRejected(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)

	_, err := svc.Reconcile(models.SourceRecord{
		Type: models.InstrumentTypeFuture,
		ISIN: strPtr("DE000C21EMZ4"),
		Fields: map[string]interface{}{
			"product_category": "FRGT",
		},
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestReconcileForwardsExternalIDToMappingStore(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)

	instrument, err := svc.Reconcile(models.SourceRecord{
		Type:       models.InstrumentTypeEquity,
		ISIN:       strPtr("SE0000108656"),
		ObservedAt: time.Now().UTC(),
		Fields: map[string]interface{}{
			"full_name":   "Example Industries AB",
			"external_id": "BBG000BQXJJ1",
		},
	})
	require.NoError(t, err)

	mappings, err := repository.NewMappingRepository(db).ForInstrument(instrument.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "BBG000BQXJJ1", *mappings[0].ExternalID)
	assert.Equal(t, "FIGI", mappings[0].IDType)
}

func TestReconcileIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)

	record := models.SourceRecord{
		Type:       models.InstrumentTypeDebt,
		ISIN:       strPtr("XS2010028699"),
		ObservedAt: time.Now().UTC(),
		Fields: map[string]interface{}{
			"full_name":     "Example 2.5% 2031",
			"nominal_value": "1000",
			"fixed_rate":    "2.5",
			"maturity_date": "2031-06-15",
			"external_id":   "BBG00PNV2FM7",
		},
	}

	first, err := svc.Reconcile(record)
	require.NoError(t, err)
	second, err := svc.Reconcile(record)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var instrumentCount, mappingCount int64
	require.NoError(t, db.Model(&models.Instrument{}).Count(&instrumentCount).Error)
	require.NoError(t, db.Model(&models.IdentifierMapping{}).Count(&mappingCount).Error)
	assert.Equal(t, int64(1), instrumentCount)
	assert.Equal(t, int64(1), mappingCount)
}

func TestReconcileBatchPartialSuccess(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)

	records := []models.SourceRecord{
		{
			Type:   models.InstrumentTypeEquity,
			ISIN:   strPtr("SE0000108656"),
			Fields: map[string]interface{}{"full_name": "Example Industries AB"},
		},
		{
			// invalid, neither isin nor instrument id
			Type:   models.InstrumentTypeEquity,
			Fields: map[string]interface{}{"full_name": "Orphan Record"},
		},
		{
			Type:   models.InstrumentTypeDebt,
			ISIN:   strPtr("XS2010028699"),
			Fields: map[string]interface{}{"full_name": "Example 2.5% 2031"},
		},
	}

	result, err := svc.ReconcileBatch(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Rejected)

	assert.Equal(t, "OK", result.Outcomes[0].Status)
	assert.Equal(t, "REJECTED", result.Outcomes[1].Status)
	assert.NotEmpty(t, result.Outcomes[1].Error)
	assert.Equal(t, "OK", result.Outcomes[2].Status)
}

func TestReconcileBatchCanceledContext(t *testing.T) {
	db := newTestDB(t)
	svc := NewReconcileService(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ReconcileBatch(ctx, []models.SourceRecord{
		{Type: models.InstrumentTypeEquity, ISIN: strPtr("SE0000108656"), Fields: map[string]interface{}{}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
