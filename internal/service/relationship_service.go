// Package service contains the service layer for the Reference Data API
package service

import (
	"context"
	"time"

	"github.com/finref/refdataapi/internal/models"
	"github.com/finref/refdataapi/internal/repository"
	"github.com/finref/refdataapi/pkg/apperrors"
	"github.com/finref/refdataapi/pkg/resilient"
	"github.com/finref/refdataapi/pkg/utils/zaplogger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefaultMaxDepth bounds hierarchy traversals when the caller gives none.
const DefaultMaxDepth = 10

// TraversalDirection selects which way a hierarchy walk follows edges.
type TraversalDirection string

const (
	TraversalDown TraversalDirection = "DOWN" // parent -> children
	TraversalUp   TraversalDirection = "UP"   // child -> parents
)

// EntityFetcher resolves an entity not yet present in the store, normally the
// registry service behind the resilient call client.
type EntityFetcher interface {
	RefreshEntity(ctx context.Context, lei string) (*models.LegalEntity, error)
}

// HierarchyNode is one resolved entity in a traversal.
type HierarchyNode struct {
	LEI          string                     `json:"lei"`
	Name         string                     `json:"name,omitempty"`
	Depth        int                        `json:"depth"`
	Relationship *models.EntityRelationship `json:"relationship,omitempty"`
}

// HierarchyResult is the outcome of a bounded traversal. Partial is set when
// registry fetches for unresolved nodes failed; resolved nodes are still
// returned.
type HierarchyResult struct {
	Root       string                  `json:"root"`
	Type       models.RelationshipType `json:"relationship_type"`
	Direction  TraversalDirection      `json:"direction"`
	Nodes      []HierarchyNode         `json:"nodes"`
	Partial    bool                    `json:"partial"`
	Unresolved []string                `json:"unresolved,omitempty"`
}

// RelationshipService builds and queries the legal-entity ownership graph.
type RelationshipService struct {
	entities *repository.EntityRepository
	fetcher  EntityFetcher
}

// NewRelationshipService creates a new relationship service. fetcher may be
// nil, in which case unresolved entities stay unresolved.
func NewRelationshipService(db *gorm.DB, fetcher EntityFetcher) *RelationshipService {
	return &RelationshipService{
		entities: repository.NewEntityRepository(db),
		fetcher:  fetcher,
	}
}

// SetRelationship upserts the unique (parent, child, type) edge, clearing any
// exception of the same type for the child.
func (s *RelationshipService) SetRelationship(parentLEI, childLEI string, relType models.RelationshipType, periodStart time.Time, periodEnd *time.Time, ownershipPct *decimal.Decimal) (*models.EntityRelationship, error) {
	if !relType.Valid() {
		return nil, &apperrors.ValidationError{Field: "relationship_type", Message: "must be DIRECT or ULTIMATE"}
	}
	if parentLEI == childLEI {
		return nil, &apperrors.ValidationError{Field: "parent_lei", Message: "self-referential relationship"}
	}
	if len(parentLEI) != 20 || len(childLEI) != 20 {
		return nil, &apperrors.ValidationError{Field: "lei", Message: "must be 20 characters"}
	}
	if periodStart.IsZero() {
		return nil, &apperrors.ValidationError{Field: "period_start", Message: "required"}
	}

	rel := &models.EntityRelationship{
		ParentLEI:        parentLEI,
		ChildLEI:         childLEI,
		RelationshipType: relType,
		Status:           "ACTIVE",
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		OwnershipPercent: ownershipPct,
	}
	if err := s.entities.SetRelationship(rel); err != nil {
		return nil, err
	}
	return rel, nil
}

// SetException upserts the unique (entity, type) exception row, clearing any
// relationship edge of the corresponding type.
func (s *RelationshipService) SetException(lei string, excType models.ExceptionType, reason, category string, claimedParentLEI, claimedParent *string) (*models.RelationshipException, error) {
	if !excType.Valid() {
		return nil, &apperrors.ValidationError{Field: "exception_type", Message: "must be DIRECT_PARENT or ULTIMATE_PARENT"}
	}
	if len(lei) != 20 {
		return nil, &apperrors.ValidationError{Field: "lei", Message: "must be 20 characters"}
	}
	if reason == "" {
		return nil, &apperrors.ValidationError{Field: "reason", Message: "required"}
	}

	exc := &models.RelationshipException{
		LEI:              lei,
		ExceptionType:    excType,
		Reason:           reason,
		Category:         category,
		ClaimedParentLEI: claimedParentLEI,
		ClaimedParent:    claimedParent,
	}
	if err := s.entities.SetException(exc); err != nil {
		return nil, err
	}
	return exc, nil
}

// Hierarchy walks the relationship graph from root, following edges of the
// requested type in the requested direction, bounded by maxDepth. Visited
// nodes are never expanded twice, so cyclic source data terminates. The ctx
// is checked between depth levels. Registry failures on unresolved nodes
// degrade the result to partial instead of discarding it.
func (s *RelationshipService) Hierarchy(ctx context.Context, root string, relType models.RelationshipType, direction TraversalDirection, maxDepth int) (*HierarchyResult, error) {
	if !relType.Valid() {
		return nil, &apperrors.ValidationError{Field: "relationship_type", Message: "must be DIRECT or ULTIMATE"}
	}
	if direction != TraversalDown && direction != TraversalUp {
		direction = TraversalDown
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	result := &HierarchyResult{
		Root:      root,
		Type:      relType,
		Direction: direction,
	}

	rootEntity, err := s.resolve(ctx, root, result)
	if err != nil {
		return nil, err
	}
	node := HierarchyNode{LEI: root, Depth: 0}
	if rootEntity != nil {
		node.Name = rootEntity.Name
	}
	result.Nodes = append(result.Nodes, node)

	visited := map[string]bool{root: true}
	frontier := []string{root}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next []string
		for _, lei := range frontier {
			edges, err := s.edges(lei, relType, direction)
			if err != nil {
				return nil, err
			}
			for i := range edges {
				edge := edges[i]
				neighbor := edge.ChildLEI
				if direction == TraversalUp {
					neighbor = edge.ParentLEI
				}
				// cycle guard
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true

				entity, err := s.resolve(ctx, neighbor, result)
				if err != nil {
					return nil, err
				}
				node := HierarchyNode{LEI: neighbor, Depth: depth, Relationship: &edge}
				if entity != nil {
					node.Name = entity.Name
				}
				result.Nodes = append(result.Nodes, node)
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	return result, nil
}

// edges returns the outgoing edges of lei for the traversal direction.
func (s *RelationshipService) edges(lei string, relType models.RelationshipType, direction TraversalDirection) ([]models.EntityRelationship, error) {
	if direction == TraversalUp {
		return s.entities.RelationshipsToChild(lei, relType)
	}
	return s.entities.RelationshipsFromParent(lei, relType)
}

// resolve loads the entity from the store, fetching it from the registry when
// absent. A rate-limited or exhausted fetch marks the result partial and
// returns nil; any other fetch failure also degrades rather than aborting,
// since the node set already gathered is still useful.
func (s *RelationshipService) resolve(ctx context.Context, lei string, result *HierarchyResult) (*models.LegalEntity, error) {
	entity, err := s.entities.GetEntity(lei)
	if err == nil {
		return entity, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}
	if s.fetcher == nil {
		result.Partial = true
		result.Unresolved = append(result.Unresolved, lei)
		return nil, nil
	}

	entity, err = s.fetcher.RefreshEntity(ctx, lei)
	if err != nil {
		fields := zaplogger.Fields{"lei": lei, "error": err.Error()}
		if class, ok := resilient.IsExhausted(err); ok {
			fields["classification"] = string(class)
		}
		zaplogger.Warn("Hierarchy node unresolved, continuing with partial result", fields)
		result.Partial = true
		result.Unresolved = append(result.Unresolved, lei)
		return nil, nil
	}
	return entity, nil
}

// Exceptions returns the exceptions filed for the entity.
func (s *RelationshipService) Exceptions(lei string) ([]models.RelationshipException, error) {
	return s.entities.ExceptionsFor(lei)
}
