// Package service contains the service layer for the Reference Data API
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finref/refdataapi/internal/models"
	"github.com/finref/refdataapi/internal/repository"
	"github.com/finref/refdataapi/pkg/apperrors"
	"github.com/finref/refdataapi/pkg/utils/zaplogger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// batchConcurrency bounds the workers applying a reconciliation batch.
const batchConcurrency = 4

// baseFieldNames are source columns promoted to typed columns on the base
// instrument row. Everything else lands in the attribute bag.
var baseFieldNames = map[string]bool{
	"full_name": true, "short_name": true, "symbol": true,
	"currency": true, "cfi_code": true, "lei": true,
	"external_id": true, "external_id_type": true,
}

// typedFieldNames lists, per instrument type, the source columns consumed by
// the detail row.
var typedFieldNames = map[models.InstrumentType]map[string]bool{
	models.InstrumentTypeEquity: {
		"shares_outstanding": true, "market_cap": true, "voting_rights": true,
		"dividend_currency": true, "trading_venue": true,
	},
	models.InstrumentTypeDebt: {
		"nominal_value": true, "nominal_currency": true, "maturity_date": true,
		"fixed_rate": true, "floating_rate_reference": true,
		"floating_rate_term_unit": true, "floating_rate_term_value": true,
		"floating_rate_spread_bps": true, "seniority": true,
	},
	models.InstrumentTypeFuture: {
		"expiry_date": true, "settlement_method": true, "contract_size": true,
		"price_multiplier": true, "underlying_isin": true, "product_category": true,
		"commodity_base_product": true, "commodity_sub_product": true,
		"commodity_further_sub_product": true, "commodity_seasonality_profile": true,
		"commodity_load_type": true, "commodity_delivery_point": true,
		"commodity_transmission_basis": true, "commodity_purity": true,
		"commodity_delivery_lot": true,
	},
}

// RecordOutcome is the per-record result of a batch reconciliation.
type RecordOutcome struct {
	Index        int    `json:"index"`
	InstrumentID string `json:"instrument_id,omitempty"`
	ISIN         string `json:"isin,omitempty"`
	Status       string `json:"status"` // OK or REJECTED
	Error        string `json:"error,omitempty"`
}

// BatchResult reports partial success per record, a rejected record never
// aborts the remainder of the batch.
type BatchResult struct {
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Rejected  int             `json:"rejected"`
	Outcomes  []RecordOutcome `json:"outcomes"`
}

// ReconcileService merges normalized source records into the polymorphic
// instrument model.
type ReconcileService struct {
	db          *gorm.DB
	instruments *repository.InstrumentRepository
	mappings    *repository.MappingRepository
}

// NewReconcileService creates a new reconciliation service
func NewReconcileService(db *gorm.DB) *ReconcileService {
	return &ReconcileService{
		db:          db,
		instruments: repository.NewInstrumentRepository(db),
		mappings:    repository.NewMappingRepository(db),
	}
}

// Reconcile creates or updates the instrument described by the record. The
// record is located by ISIN, or by its stable identifier when ISIN is absent.
// A record whose type tag differs from the stored type is rejected.
func (s *ReconcileService) Reconcile(record models.SourceRecord) (*models.Instrument, error) {
	if err := validateRecord(record); err != nil {
		return nil, err
	}

	instrument, err := s.locate(record)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}

	created := instrument == nil
	if created {
		instrument = &models.Instrument{
			ID:             newInstrumentID(record),
			InstrumentType: record.Type,
			ISIN:           record.ISIN,
		}
	} else if instrument.InstrumentType != record.Type {
		return nil, &apperrors.TypeMismatchError{
			InstrumentID: instrument.ID,
			StoredType:   string(instrument.InstrumentType),
			RecordType:   string(record.Type),
		}
	}

	if err := s.applyBaseFields(instrument, record); err != nil {
		return nil, err
	}
	if err := s.applyDetailFields(instrument, record); err != nil {
		return nil, err
	}

	if created {
		err = s.instruments.Create(instrument)
	} else {
		err = s.instruments.Update(instrument)
	}
	if err != nil {
		return nil, err
	}

	if err := s.upsertMappingFromRecord(instrument, record); err != nil {
		return nil, err
	}

	s.notifyEvent(instrument, created)
	return instrument, nil
}

// ReconcileBatch applies the records with bounded concurrency and reports a
// per-record outcome. Only storage unavailability aborts the batch.
func (s *ReconcileService) ReconcileBatch(ctx context.Context, records []models.SourceRecord) (*BatchResult, error) {
	result := &BatchResult{
		Total:    len(records),
		Outcomes: make([]RecordOutcome, len(records)),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i := range records {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			record := records[i]
			outcome := RecordOutcome{Index: i}
			if record.ISIN != nil {
				outcome.ISIN = *record.ISIN
			}

			instrument, err := s.Reconcile(record)
			switch {
			case err == nil:
				outcome.Status = "OK"
				outcome.InstrumentID = instrument.ID
			case apperrors.IsConflict(err) || apperrors.IsValidation(err) || apperrors.IsNotFound(err):
				outcome.Status = "REJECTED"
				outcome.Error = err.Error()
			default:
				// storage failure, abort the batch
				return err
			}
			result.Outcomes[i] = outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch aborted: %w", err)
	}

	for _, o := range result.Outcomes {
		if o.Status == "OK" {
			result.Succeeded++
		} else {
			result.Rejected++
		}
	}

	zaplogger.Info("Reconciliation batch applied", zaplogger.Fields{
		"total":     result.Total,
		"succeeded": result.Succeeded,
		"rejected":  result.Rejected,
	})
	return result, nil
}

// locate finds the stored instrument for the record, by ISIN first.
func (s *ReconcileService) locate(record models.SourceRecord) (*models.Instrument, error) {
	if record.ISIN != nil {
		instrument, err := s.instruments.GetByISIN(*record.ISIN)
		if err == nil {
			return instrument, nil
		}
		if !apperrors.IsNotFound(err) {
			return nil, err
		}
	}
	if record.InstrumentID != "" {
		return s.instruments.GetByID(record.InstrumentID)
	}
	return nil, fmt.Errorf("no instrument located: %w", apperrors.ErrNotFound)
}

// applyBaseFields sets recognized base columns and merges everything
// unrecognized into the attribute bag without discarding previously stored
// unknown fields.
func (s *ReconcileService) applyBaseFields(instrument *models.Instrument, record models.SourceRecord) error {
	fields := record.Fields
	if v, ok := fieldString(fields, "full_name"); ok {
		instrument.FullName = v
	}
	if v, ok := fieldString(fields, "short_name"); ok {
		instrument.ShortName = v
	}
	if v, ok := fieldString(fields, "symbol"); ok {
		instrument.Symbol = &v
	}
	if v, ok := fieldString(fields, "currency"); ok {
		instrument.Currency = v
	}
	if v, ok := fieldString(fields, "cfi_code"); ok {
		instrument.CFICode = v
	}
	if v, ok := fieldString(fields, "lei"); ok {
		instrument.LegalEntityLEI = &v
	}

	recognized := typedFieldNames[record.Type]
	unrecognized := make(map[string]interface{})
	for name, value := range fields {
		if baseFieldNames[name] || recognized[name] {
			continue
		}
		unrecognized[name] = value
	}
	if len(unrecognized) == 0 {
		return nil
	}

	bag := make(map[string]interface{})
	if len(instrument.Attributes) > 0 {
		if err := json.Unmarshal(instrument.Attributes, &bag); err != nil {
			return fmt.Errorf("failed to read attribute bag for %s: %v", instrument.ID, err)
		}
	}
	for name, value := range unrecognized {
		bag[name] = value
	}
	raw, err := json.Marshal(bag)
	if err != nil {
		return fmt.Errorf("failed to write attribute bag for %s: %v", instrument.ID, err)
	}
	instrument.Attributes = datatypes.JSON(raw)
	return nil
}

// applyDetailFields populates the detail row matching the record type.
func (s *ReconcileService) applyDetailFields(instrument *models.Instrument, record models.SourceRecord) error {
	switch record.Type {
	case models.InstrumentTypeEquity:
		return s.applyEquityFields(instrument, record.Fields)
	case models.InstrumentTypeDebt:
		return s.applyDebtFields(instrument, record.Fields)
	case models.InstrumentTypeFuture:
		return s.applyFutureFields(instrument, record.Fields)
	}
	return &apperrors.ValidationError{Field: "instrument_type", Message: "unknown type " + string(record.Type)}
}

func (s *ReconcileService) applyEquityFields(instrument *models.Instrument, fields map[string]interface{}) error {
	detail := instrument.EquityDetail
	if detail == nil {
		detail = &models.EquityDetail{InstrumentID: instrument.ID}
		instrument.EquityDetail = detail
	}
	if v, ok := fieldInt64(fields, "shares_outstanding"); ok {
		detail.SharesOutstanding = &v
	}
	if v, ok := fieldDecimal(fields, "market_cap"); ok {
		detail.MarketCap = &v
	}
	if v, ok := fieldInt(fields, "voting_rights"); ok {
		detail.VotingRights = &v
	}
	if v, ok := fieldString(fields, "dividend_currency"); ok {
		detail.DividendCurrency = &v
	}
	if v, ok := fieldString(fields, "trading_venue"); ok {
		detail.TradingVenue = &v
	}
	return nil
}

func (s *ReconcileService) applyDebtFields(instrument *models.Instrument, fields map[string]interface{}) error {
	detail := instrument.DebtDetail
	if detail == nil {
		detail = &models.DebtDetail{InstrumentID: instrument.ID}
		instrument.DebtDetail = detail
	}
	if v, ok := fieldDecimal(fields, "nominal_value"); ok {
		detail.NominalValue = &v
	}
	if v, ok := fieldString(fields, "nominal_currency"); ok {
		detail.NominalCurrency = &v
	}
	if v, ok := fieldTime(fields, "maturity_date"); ok {
		detail.MaturityDate = &v
	}
	if v, ok := fieldDecimal(fields, "fixed_rate"); ok {
		detail.FixedRate = &v
	}
	if v, ok := fieldString(fields, "floating_rate_reference"); ok {
		detail.FloatingRateReference = &v
	}
	if v, ok := fieldString(fields, "floating_rate_term_unit"); ok {
		detail.FloatingRateTermUnit = &v
	}
	if v, ok := fieldInt(fields, "floating_rate_term_value"); ok {
		detail.FloatingRateTermValue = &v
	}
	if v, ok := fieldInt(fields, "floating_rate_spread_bps"); ok {
		detail.FloatingRateSpreadBps = &v
	}
	if v, ok := fieldString(fields, "seniority"); ok {
		detail.Seniority = &v
	}
	return nil
}

func (s *ReconcileService) applyFutureFields(instrument *models.Instrument, fields map[string]interface{}) error {
	detail := instrument.FutureDetail
	if detail == nil {
		detail = &models.FutureDetail{InstrumentID: instrument.ID}
		instrument.FutureDetail = detail
	}
	if v, ok := fieldTime(fields, "expiry_date"); ok {
		detail.ExpiryDate = &v
	}
	if v, ok := fieldString(fields, "settlement_method"); ok {
		detail.SettlementMethod = &v
	}
	if v, ok := fieldDecimal(fields, "contract_size"); ok {
		detail.ContractSize = &v
	}
	if v, ok := fieldDecimal(fields, "price_multiplier"); ok {
		detail.PriceMultiplier = &v
	}
	if v, ok := fieldString(fields, "underlying_isin"); ok {
		detail.UnderlyingISIN = &v
	}
	if v, ok := fieldString(fields, "product_category"); ok {
		return s.applyCommodityFields(detail, models.CommodityCategory(v), fields)
	}
	return nil
}

// applyCommodityFields populates the sub-object for the selected category and
// clears the others, keeping exactly one active sub-object per detail row.
func (s *ReconcileService) applyCommodityFields(detail *models.FutureDetail, category models.CommodityCategory, fields map[string]interface{}) error {
	detail.Agricultural = nil
	detail.Energy = nil
	detail.Metals = nil

	base, _ := fieldString(fields, "commodity_base_product")
	sub, _ := fieldString(fields, "commodity_sub_product")

	switch category {
	case models.CommodityAgricultural:
		attrs := &models.AgriculturalAttributes{BaseProduct: base, SubProduct: sub}
		attrs.FurtherSubProduct, _ = fieldString(fields, "commodity_further_sub_product")
		attrs.SeasonalityProfile, _ = fieldString(fields, "commodity_seasonality_profile")
		detail.Agricultural = attrs
	case models.CommodityEnergy:
		attrs := &models.EnergyAttributes{BaseProduct: base, SubProduct: sub}
		attrs.LoadType, _ = fieldString(fields, "commodity_load_type")
		attrs.DeliveryPoint, _ = fieldString(fields, "commodity_delivery_point")
		attrs.TransmissionBasis, _ = fieldString(fields, "commodity_transmission_basis")
		detail.Energy = attrs
	case models.CommodityMetals:
		attrs := &models.MetalAttributes{BaseProduct: base, SubProduct: sub}
		attrs.Purity, _ = fieldString(fields, "commodity_purity")
		attrs.DeliveryLot, _ = fieldString(fields, "commodity_delivery_lot")
		detail.Metals = attrs
	default:
		return &apperrors.ValidationError{Field: "product_category", Message: "unknown category " + string(category)}
	}

	detail.ProductCategory = &category
	return nil
}

// upsertMappingFromRecord forwards an embedded external identifier to the
// mapping store.
func (s *ReconcileService) upsertMappingFromRecord(instrument *models.Instrument, record models.SourceRecord) error {
	externalID, ok := fieldString(record.Fields, "external_id")
	if !ok || record.ISIN == nil {
		return nil
	}
	idType, _ := fieldString(record.Fields, "external_id_type")
	if idType == "" {
		idType = "FIGI"
	}
	observedAt := record.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	_, err := s.mappings.Upsert(&models.IdentifierMapping{
		InstrumentID: instrument.ID,
		ISIN:         *record.ISIN,
		ExternalID:   &externalID,
		IDType:       idType,
		ObservedAt:   observedAt,
	})
	return err
}

// notifyEvent emits a reconciliation event over the Postgres channel for the
// publish bridge. Best effort, it never fails the reconcile.
func (s *ReconcileService) notifyEvent(instrument *models.Instrument, created bool) {
	action := "updated"
	if created {
		action = "created"
	}
	payload, err := json.Marshal(map[string]interface{}{
		"instrument_id": instrument.ID,
		"isin":          instrument.ISIN,
		"type":          instrument.InstrumentType,
		"action":        action,
	})
	if err != nil {
		return
	}
	if err := s.db.Exec("SELECT pg_notify(?, ?)", PostgresChannel, string(payload)).Error; err != nil {
		zaplogger.Debug("Failed to notify reconcile event", zaplogger.Fields{"error": err.Error()})
	}
}

func validateRecord(record models.SourceRecord) error {
	if !record.Type.Valid() {
		return &apperrors.ValidationError{Field: "instrument_type", Message: "must be one of EQUITY, DEBT, FUTURE"}
	}
	if record.ISIN == nil && record.InstrumentID == "" {
		return &apperrors.ValidationError{Field: "isin", Message: "record carries neither isin nor instrument_id"}
	}
	if record.ISIN != nil && len(*record.ISIN) != 12 {
		return &apperrors.ValidationError{Field: "isin", Message: "must be 12 characters"}
	}
	return nil
}

func newInstrumentID(record models.SourceRecord) string {
	if record.InstrumentID != "" {
		return record.InstrumentID
	}
	return uuid.NewString()
}

// field accessors tolerate the type looseness of decoded JSON batches.

func fieldString(fields map[string]interface{}, key string) (string, bool) {
	v, ok := fields[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func fieldInt64(fields map[string]interface{}, key string) (int64, bool) {
	v, ok := fields[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func fieldInt(fields map[string]interface{}, key string) (int, bool) {
	v, ok := fieldInt64(fields, key)
	return int(v), ok
}

func fieldDecimal(fields map[string]interface{}, key string) (decimal.Decimal, bool) {
	v, ok := fields[key]
	if !ok || v == nil {
		return decimal.Zero, false
	}
	switch n := v.(type) {
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	}
	return decimal.Zero, false
}

func fieldTime(fields map[string]interface{}, key string) (time.Time, bool) {
	v, ok := fieldString(fields, key)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
