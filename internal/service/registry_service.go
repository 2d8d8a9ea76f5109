// Package service contains the service layer for the Reference Data API
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/finref/refdataapi/internal/models"
	"github.com/finref/refdataapi/internal/repository"
	"github.com/finref/refdataapi/pkg/apperrors"
	"github.com/finref/refdataapi/pkg/resilient"
	"github.com/finref/refdataapi/pkg/utils/zaplogger"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const leiCacheKeyPrefix = "refdata:lei:"

// RegistryRecord is the normalized payload of one legal-entity registry
// lookup: the entity itself plus its reported relationships and exceptions.
type RegistryRecord struct {
	LEI          string                 `json:"lei"`
	Name         string                 `json:"name"`
	Jurisdiction string                 `json:"jurisdiction"`
	LegalForm    string                 `json:"legal_form"`
	Status       string                 `json:"status"`
	Addresses    []RegistryAddress      `json:"addresses,omitempty"`
	Registration *RegistryRegistration  `json:"registration,omitempty"`
	Parents      []RegistryRelationship `json:"parents,omitempty"`
	Exceptions   []RegistryException    `json:"exceptions,omitempty"`
}

// RegistryAddress is one address block in a registry payload.
type RegistryAddress struct {
	AddressType string `json:"address_type"`
	Line1       string `json:"line1"`
	Line2       string `json:"line2,omitempty"`
	City        string `json:"city"`
	Region      string `json:"region,omitempty"`
	Country     string `json:"country"`
	PostalCode  string `json:"postal_code,omitempty"`
}

// RegistryRegistration is the registration block in a registry payload.
type RegistryRegistration struct {
	Status          string     `json:"status"`
	InitialDate     *time.Time `json:"initial_date,omitempty"`
	LastUpdateDate  *time.Time `json:"last_update_date,omitempty"`
	NextRenewalDate *time.Time `json:"next_renewal_date,omitempty"`
	ManagingLOU     string     `json:"managing_lou"`
}

// RegistryRelationship is one reported parent edge; the record's entity is
// the child.
type RegistryRelationship struct {
	ParentLEI        string     `json:"parent_lei"`
	RelationshipType string     `json:"relationship_type"`
	Status           string     `json:"status"`
	PeriodStart      time.Time  `json:"period_start"`
	PeriodEnd        *time.Time `json:"period_end,omitempty"`
	OwnershipPercent *string    `json:"ownership_percent,omitempty"`
}

// RegistryException is one reported parent exception.
type RegistryException struct {
	ExceptionType    string  `json:"exception_type"`
	Reason           string  `json:"reason"`
	Category         string  `json:"category,omitempty"`
	ClaimedParentLEI *string `json:"claimed_parent_lei,omitempty"`
	ClaimedParent    *string `json:"claimed_parent,omitempty"`
}

// RegistryService fetches legal-entity records from the LEI registry through
// the resilient call client and reconciles them into the store.
type RegistryService struct {
	entities    *repository.EntityRepository
	client      *resilient.Client
	httpClient  *http.Client
	baseURL     string
	redisClient *redis.Client
	cacheTTL    time.Duration
}

// NewRegistryService creates a new registry service. redisClient may be nil,
// in which case lookups always hit the network.
func NewRegistryService(db *gorm.DB, redisClient *redis.Client, baseURL string, cacheTTL time.Duration) *RegistryService {
	return &RegistryService{
		entities:    repository.NewEntityRepository(db),
		client:      resilient.New(resilient.DefaultConfig()),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
	}
}

// WithClient replaces the resilient client, used to tighten retry policy.
func (s *RegistryService) WithClient(client *resilient.Client) *RegistryService {
	s.client = client
	return s
}

// FetchRecord returns the registry record for the LEI, from cache when fresh.
func (s *RegistryService) FetchRecord(ctx context.Context, lei string) (*RegistryRecord, error) {
	if cached := s.cacheGet(ctx, lei); cached != nil {
		return cached, nil
	}

	var record *RegistryRecord
	err := s.client.Call(ctx, "registry.FetchRecord", func(ctx context.Context) error {
		fetched, err := s.fetchOnce(ctx, lei)
		if err != nil {
			return err
		}
		record = fetched
		return nil
	})
	if err != nil {
		var statusErr *resilient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("registry record %s: %w", lei, apperrors.ErrNotFound)
		}
		return nil, err
	}

	s.cacheSet(ctx, record)
	return record, nil
}

// RefreshEntity fetches the registry record and upserts the entity, its
// relationships and its exceptions.
func (s *RegistryService) RefreshEntity(ctx context.Context, lei string) (*models.LegalEntity, error) {
	record, err := s.FetchRecord(ctx, lei)
	if err != nil {
		return nil, err
	}

	entity := &models.LegalEntity{
		LEI:          record.LEI,
		Name:         record.Name,
		Jurisdiction: record.Jurisdiction,
		LegalForm:    record.LegalForm,
		Status:       record.Status,
	}
	for _, addr := range record.Addresses {
		entity.Addresses = append(entity.Addresses, models.EntityAddress{
			AddressType: models.AddressType(addr.AddressType),
			Line1:       addr.Line1,
			Line2:       addr.Line2,
			City:        addr.City,
			Region:      addr.Region,
			Country:     addr.Country,
			PostalCode:  addr.PostalCode,
		})
	}
	if record.Registration != nil {
		entity.Registration = &models.EntityRegistration{
			RegistrationStatus: record.Registration.Status,
			InitialDate:        record.Registration.InitialDate,
			LastUpdateDate:     record.Registration.LastUpdateDate,
			NextRenewalDate:    record.Registration.NextRenewalDate,
			ManagingLOU:        record.Registration.ManagingLOU,
		}
	}

	if err := s.entities.UpsertEntity(entity); err != nil {
		return nil, err
	}

	for _, parent := range record.Parents {
		rel := &models.EntityRelationship{
			ParentLEI:        parent.ParentLEI,
			ChildLEI:         record.LEI,
			RelationshipType: models.RelationshipType(parent.RelationshipType),
			Status:           parent.Status,
			PeriodStart:      parent.PeriodStart,
			PeriodEnd:        parent.PeriodEnd,
		}
		if parent.OwnershipPercent != nil {
			if pct, err := decimal.NewFromString(*parent.OwnershipPercent); err == nil {
				rel.OwnershipPercent = &pct
			}
		}
		if !rel.RelationshipType.Valid() {
			zaplogger.Warn("Skipping relationship with unknown type", zaplogger.Fields{
				"lei":  record.LEI,
				"type": parent.RelationshipType,
			})
			continue
		}
		// registry payloads are untrusted, a record must not own itself
		if parent.ParentLEI == record.LEI || len(parent.ParentLEI) != 20 {
			zaplogger.Warn("Skipping malformed relationship edge", zaplogger.Fields{
				"lei":        record.LEI,
				"parent_lei": parent.ParentLEI,
			})
			continue
		}
		// the parent endpoint must exist for the edge's FK
		if err := s.ensureEntityStub(parent.ParentLEI); err != nil {
			return nil, err
		}
		if err := s.entities.SetRelationship(rel); err != nil {
			return nil, err
		}
	}

	for _, exc := range record.Exceptions {
		row := &models.RelationshipException{
			LEI:              record.LEI,
			ExceptionType:    models.ExceptionType(exc.ExceptionType),
			Reason:           exc.Reason,
			Category:         exc.Category,
			ClaimedParentLEI: exc.ClaimedParentLEI,
			ClaimedParent:    exc.ClaimedParent,
		}
		if !row.ExceptionType.Valid() {
			zaplogger.Warn("Skipping exception with unknown type", zaplogger.Fields{
				"lei":  record.LEI,
				"type": exc.ExceptionType,
			})
			continue
		}
		if err := s.entities.SetException(row); err != nil {
			return nil, err
		}
	}

	return s.entities.GetEntity(record.LEI)
}

// ensureEntityStub creates a bare entity row for a parent seen only as a
// relationship endpoint; a later refresh fills it in.
func (s *RegistryService) ensureEntityStub(lei string) error {
	exists, err := s.entities.HasEntity(lei)
	if err != nil || exists {
		return err
	}
	return s.entities.UpsertEntity(&models.LegalEntity{LEI: lei, Status: "PENDING"})
}

func (s *RegistryService) fetchOnce(ctx context.Context, lei string) (*RegistryRecord, error) {
	url := fmt.Sprintf("%s/api/lei-records/%s", s.baseURL, lei)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &resilient.StatusError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var record RegistryRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry record: %v", err)
	}
	return &record, nil
}

func (s *RegistryService) cacheGet(ctx context.Context, lei string) *RegistryRecord {
	if s.redisClient == nil {
		return nil
	}
	raw, err := s.redisClient.Get(ctx, leiCacheKeyPrefix+lei).Bytes()
	if err != nil {
		return nil
	}
	var record RegistryRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil
	}
	return &record
}

func (s *RegistryService) cacheSet(ctx context.Context, record *RegistryRecord) {
	if s.redisClient == nil {
		return
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := s.redisClient.Set(ctx, leiCacheKeyPrefix+record.LEI, raw, s.cacheTTL).Err(); err != nil {
		zaplogger.Debug("Failed to cache registry record", zaplogger.Fields{"error": err.Error()})
	}
}
