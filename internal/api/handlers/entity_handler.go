// Package handlers contains the handlers for the API
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/finref/refdataapi/internal/models"
	"github.com/finref/refdataapi/internal/repository"
	"github.com/finref/refdataapi/internal/service"
	"github.com/finref/refdataapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EntityHandler serves legal entities, their relationship graph and
// reporting exceptions.
type EntityHandler struct {
	DB                  *gorm.DB
	EntityRepo          *repository.EntityRepository
	RegistryService     *service.RegistryService
	RelationshipService *service.RelationshipService
}

func NewEntityHandler(db *gorm.DB, registryService *service.RegistryService) *EntityHandler {
	return &EntityHandler{
		DB:                  db,
		EntityRepo:          repository.NewEntityRepository(db),
		RegistryService:     registryService,
		RelationshipService: service.NewRelationshipService(db, registryService),
	}
}

// GetEntity returns the legal entity with addresses and registration
func (h *EntityHandler) GetEntity(c echo.Context) error {
	lei := c.Param("lei")

	entity, err := h.EntityRepo.GetEntity(lei)
	if err != nil {
		return response.MappedErrorResponse(c, err)
	}
	return response.SuccessResponse(c, entity)
}

// RefreshEntity fetches the entity from the registry and reconciles it
func (h *EntityHandler) RefreshEntity(c echo.Context) error {
	lei := c.Param("lei")

	entity, err := h.RegistryService.RefreshEntity(c.Request().Context(), lei)
	if err != nil {
		return response.MappedErrorResponse(c, err)
	}
	return response.SuccessResponse(c, entity)
}

// GetHierarchy walks the ownership graph from the entity
func (h *EntityHandler) GetHierarchy(c echo.Context) error {
	lei := c.Param("lei")

	relType := models.RelationshipType(c.QueryParam("type"))
	if relType == "" {
		relType = models.RelationshipDirect
	}
	direction := service.TraversalDirection(c.QueryParam("direction"))
	maxDepth := 0
	if depthStr := c.QueryParam("depth"); depthStr != "" {
		d, err := strconv.Atoi(depthStr)
		if err != nil {
			return response.ErrorResponse(c, http.StatusBadRequest, "InputException", "`depth` must be an integer")
		}
		maxDepth = d
	}

	result, err := h.RelationshipService.Hierarchy(c.Request().Context(), lei, relType, direction, maxDepth)
	if err != nil {
		return response.MappedErrorResponse(c, err)
	}
	return response.SuccessResponse(c, result)
}

// SetRelationshipRequest is the request body for the SetRelationship endpoint
type SetRelationshipRequest struct {
	ParentLEI        string           `json:"parent_lei"`
	ChildLEI         string           `json:"child_lei"`
	RelationshipType string           `json:"relationship_type"`
	PeriodStart      time.Time        `json:"period_start"`
	PeriodEnd        *time.Time       `json:"period_end,omitempty"`
	OwnershipPercent *decimal.Decimal `json:"ownership_percent,omitempty"`
}

// SetRelationship upserts a parent-child ownership edge
func (h *EntityHandler) SetRelationship(c echo.Context) error {
	var req SetRelationshipRequest
	if err := c.Bind(&req); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, "InputException", "Invalid request body")
	}

	rel, err := h.RelationshipService.SetRelationship(
		req.ParentLEI, req.ChildLEI,
		models.RelationshipType(req.RelationshipType),
		req.PeriodStart, req.PeriodEnd, req.OwnershipPercent,
	)
	if err != nil {
		return response.MappedErrorResponse(c, err)
	}
	return response.SuccessResponse(c, rel)
}

// SetExceptionRequest is the request body for the SetException endpoint
type SetExceptionRequest struct {
	LEI              string  `json:"lei"`
	ExceptionType    string  `json:"exception_type"`
	Reason           string  `json:"reason"`
	Category         string  `json:"category,omitempty"`
	ClaimedParentLEI *string `json:"claimed_parent_lei,omitempty"`
	ClaimedParent    *string `json:"claimed_parent,omitempty"`
}

// SetException upserts a reporting exception for an entity
func (h *EntityHandler) SetException(c echo.Context) error {
	var req SetExceptionRequest
	if err := c.Bind(&req); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, "InputException", "Invalid request body")
	}

	exc, err := h.RelationshipService.SetException(
		req.LEI, models.ExceptionType(req.ExceptionType),
		req.Reason, req.Category, req.ClaimedParentLEI, req.ClaimedParent,
	)
	if err != nil {
		return response.MappedErrorResponse(c, err)
	}
	return response.SuccessResponse(c, exc)
}

// GetExceptions returns the exceptions filed for an entity
func (h *EntityHandler) GetExceptions(c echo.Context) error {
	lei := c.Param("lei")

	excs, err := h.RelationshipService.Exceptions(lei)
	if err != nil {
		return response.MappedErrorResponse(c, err)
	}
	return response.SuccessResponse(c, excs)
}
