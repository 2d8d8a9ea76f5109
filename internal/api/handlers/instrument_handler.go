// Package handlers contains the handlers for the API
package handlers

import (
	"net/http"
	"time"

	"github.com/finref/refdataapi/internal/models"
	"github.com/finref/refdataapi/internal/repository"
	"github.com/finref/refdataapi/internal/service"
	"github.com/finref/refdataapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// InstrumentHandler serves instrument read models and the batch
// reconciliation endpoint.
type InstrumentHandler struct {
	DB               *gorm.DB
	ReconcileService *service.ReconcileService
	InstrumentRepo   *repository.InstrumentRepository
	MappingRepo      *repository.MappingRepository
}

func NewInstrumentHandler(db *gorm.DB) *InstrumentHandler {
	return &InstrumentHandler{
		DB:               db,
		ReconcileService: service.NewReconcileService(db),
		InstrumentRepo:   repository.NewInstrumentRepository(db),
		MappingRepo:      repository.NewMappingRepository(db),
	}
}

// ReconcileBatchResponseData is the response data for the ReconcileBatch endpoint
type ReconcileBatchResponseData struct {
	Timestamp string               `json:"timestamp"`
	Result    *service.BatchResult `json:"result"`
}

// ReconcileBatch applies a batch of normalized source records
func (h *InstrumentHandler) ReconcileBatch(c echo.Context) error {
	var records []models.SourceRecord
	if err := c.Bind(&records); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, "InputException", "Invalid request body")
	}
	if len(records) == 0 {
		return response.ErrorResponse(c, http.StatusBadRequest, "InputException", "No records provided")
	}

	result, err := h.ReconcileService.ReconcileBatch(c.Request().Context(), records)
	if err != nil {
		return response.ErrorResponse(c, http.StatusInternalServerError, "ServerException", err.Error())
	}

	responseData := ReconcileBatchResponseData{
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
		Result:    result,
	}

	return response.SuccessResponse(c, responseData)
}

// QueryInstruments queries the instruments table
func (h *InstrumentHandler) QueryInstruments(c echo.Context) error {
	var params repository.QueryInstrumentsParams
	if err := c.Bind(&params); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, "InputException", "Invalid query parameters")
	}

	instruments, err := h.InstrumentRepo.Query(params)
	if err != nil {
		return response.MappedErrorResponse(c, err)
	}
	return response.SuccessResponse(c, instruments)
}

// GetInstrumentByISIN returns the instrument holding the ISIN
func (h *InstrumentHandler) GetInstrumentByISIN(c echo.Context) error {
	isin := c.Param("isin")
	if isin == "" {
		return response.ErrorResponse(c, http.StatusBadRequest, "InputException", "No `isin` provided")
	}

	instrument, err := h.InstrumentRepo.GetByISIN(isin)
	if err != nil {
		return response.MappedErrorResponse(c, err)
	}
	return response.SuccessResponse(c, instrument)
}

// GetInstrumentMappings returns the identifier mappings owned by the instrument
func (h *InstrumentHandler) GetInstrumentMappings(c echo.Context) error {
	id := c.Param("id")

	// surface not-found for unknown instrument ids
	if _, err := h.InstrumentRepo.GetByID(id); err != nil {
		return response.MappedErrorResponse(c, err)
	}

	mappings, err := h.MappingRepo.ForInstrument(id)
	if err != nil {
		return response.MappedErrorResponse(c, err)
	}
	return response.SuccessResponse(c, mappings)
}
