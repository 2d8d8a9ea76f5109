// Package handlers contains the handlers for the API
package handlers

import (
	"net/http"

	"github.com/finref/refdataapi/internal/service"
	"github.com/finref/refdataapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// TransparencyHandler serves transparency calculation snapshots.
type TransparencyHandler struct {
	DB                  *gorm.DB
	TransparencyService *service.TransparencyService
}

func NewTransparencyHandler(db *gorm.DB) *TransparencyHandler {
	return &TransparencyHandler{
		DB:                  db,
		TransparencyService: service.NewTransparencyService(db),
	}
}

// AttachCalculation creates or replaces the calculation for an instrument and period
func (h *TransparencyHandler) AttachCalculation(c echo.Context) error {
	var input service.AttachCalculationInput
	if err := c.Bind(&input); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, "InputException", "Invalid request body")
	}

	calc, err := h.TransparencyService.Attach(input)
	if err != nil {
		return response.MappedErrorResponse(c, err)
	}
	return response.SuccessResponse(c, calc)
}

// GetCalculations returns the calculations attached to an instrument
func (h *TransparencyHandler) GetCalculations(c echo.Context) error {
	id := c.Param("id")

	calcs, err := h.TransparencyService.ForInstrument(id)
	if err != nil {
		return response.MappedErrorResponse(c, err)
	}
	return response.SuccessResponse(c, calcs)
}
