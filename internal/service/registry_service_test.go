package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finref/refdataapi/internal/models"
	"github.com/finref/refdataapi/pkg/apperrors"
	"github.com/finref/refdataapi/pkg/resilient"
)

// fastClient removes the backoff sleeps so retry tests run instantly.
func fastClient() *resilient.Client {
	return resilient.New(resilient.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	})
}

func registryServer(t *testing.T, records map[string]RegistryRecord) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lei := r.URL.Path[len("/api/lei-records/"):]
		record, ok := records[lei]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(record))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchRecord(t *testing.T) {
	child := leiFor("CHLD")
	server := registryServer(t, map[string]RegistryRecord{
		child: {LEI: child, Name: "Example Funding AB", Jurisdiction: "SE", Status: "ACTIVE"},
	})

	svc := NewRegistryService(newTestDB(t), nil, server.URL, time.Minute).WithClient(fastClient())

	record, err := svc.FetchRecord(context.Background(), child)
	require.NoError(t, err)
	assert.Equal(t, "Example Funding AB", record.Name)
}

func TestFetchRecordNotFound(t *testing.T) {
	server := registryServer(t, nil)
	svc := NewRegistryService(newTestDB(t), nil, server.URL, time.Minute).WithClient(fastClient())

	_, err := svc.FetchRecord(context.Background(), leiFor("MISS"))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestFetchRecordRetriesServerErrors(t *testing.T) {
	child := leiFor("CHLD")
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RegistryRecord{LEI: child, Name: "Example Funding AB"})
	}))
	t.Cleanup(server.Close)

	svc := NewRegistryService(newTestDB(t), nil, server.URL, time.Minute).WithClient(fastClient())

	record, err := svc.FetchRecord(context.Background(), child)
	require.NoError(t, err)
	assert.Equal(t, child, record.LEI)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchRecordExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	svc := NewRegistryService(newTestDB(t), nil, server.URL, time.Minute).WithClient(fastClient())

	_, err := svc.FetchRecord(context.Background(), leiFor("BUSY"))
	require.Error(t, err)
	class, ok := resilient.IsExhausted(err)
	require.True(t, ok)
	assert.Equal(t, resilient.ClassRateLimited, class)
}

func TestRefreshEntityUpsertsGraph(t *testing.T) {
	db := newTestDB(t)
	child, parent := leiFor("CHLD"), leiFor("PRNT")
	pct := "100.0000"
	server := registryServer(t, map[string]RegistryRecord{
		child: {
			LEI:          child,
			Name:         "Example Funding AB",
			Jurisdiction: "SE",
			Status:       "ACTIVE",
			Addresses: []RegistryAddress{
				{AddressType: "LEGAL", Line1: "Storgatan 1", City: "Stockholm", Country: "SE"},
			},
			Registration: &RegistryRegistration{Status: "ISSUED", ManagingLOU: leiFor("LOU1")},
			Parents: []RegistryRelationship{
				{
					ParentLEI:        parent,
					RelationshipType: "DIRECT",
					Status:           "ACTIVE",
					PeriodStart:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
					OwnershipPercent: &pct,
				},
			},
			Exceptions: []RegistryException{
				{ExceptionType: "ULTIMATE_PARENT", Reason: "NO_KNOWN_PERSON"},
			},
		},
	})

	svc := NewRegistryService(db, nil, server.URL, time.Minute).WithClient(fastClient())

	entity, err := svc.RefreshEntity(context.Background(), child)
	require.NoError(t, err)
	assert.Equal(t, "Example Funding AB", entity.Name)
	require.Len(t, entity.Addresses, 1)
	require.NotNil(t, entity.Registration)

	// the parent endpoint got a stub row for the edge
	rels := NewRelationshipService(db, nil)
	result, err := rels.Hierarchy(context.Background(), child, models.RelationshipDirect, TraversalUp, 0)
	require.NoError(t, err)
	require.Len(t, result.Nodes, 2)
	assert.Equal(t, parent, result.Nodes[1].LEI)
	require.NotNil(t, result.Nodes[1].Relationship)
	require.NotNil(t, result.Nodes[1].Relationship.OwnershipPercent)

	excs, err := rels.Exceptions(child)
	require.NoError(t, err)
	require.Len(t, excs, 1)
	assert.Equal(t, models.ExceptionUltimateParent, excs[0].ExceptionType)
}

func TestRefreshEntitySkipsSelfReferentialParent(t *testing.T) {
	db := newTestDB(t)
	child := leiFor("SELF")
	server := registryServer(t, map[string]RegistryRecord{
		child: {
			LEI:    child,
			Name:   "Example Funding AB",
			Status: "ACTIVE",
			Parents: []RegistryRelationship{
				{
					ParentLEI:        child,
					RelationshipType: "DIRECT",
					PeriodStart:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				},
				{
					ParentLEI:        "SHORT",
					RelationshipType: "DIRECT",
					PeriodStart:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				},
			},
		},
	})

	svc := NewRegistryService(db, nil, server.URL, time.Minute).WithClient(fastClient())

	_, err := svc.RefreshEntity(context.Background(), child)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.EntityRelationship{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRefreshEntitySkipsUnknownRelationshipTypes(t *testing.T) {
	db := newTestDB(t)
	child := leiFor("CHLD")
	server := registryServer(t, map[string]RegistryRecord{
		child: {
			LEI:    child,
			Name:   "Example Funding AB",
			Status: "ACTIVE",
			Parents: []RegistryRelationship{
				{
					ParentLEI:        leiFor("PRNT"),
					RelationshipType: "BRANCH",
					PeriodStart:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				},
			},
		},
	})

	svc := NewRegistryService(db, nil, server.URL, time.Minute).WithClient(fastClient())

	_, err := svc.RefreshEntity(context.Background(), child)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.EntityRelationship{}).Count(&count).Error)
	assert.Zero(t, count)
}
