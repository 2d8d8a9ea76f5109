// Package response contains response utility functions and types
package response

import (
	"net/http"

	"github.com/finref/refdataapi/pkg/apperrors"
	"github.com/labstack/echo/v4"
)

// Response represents the standard API response structure
type Response struct {
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	ErrorType string      `json:"error_type,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// SuccessResponse sends a successful JSON response
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Status: "success",
		Data:   data,
	})
}

// ErrorResponse sends an error JSON response
func ErrorResponse(c echo.Context, httpStatus int, errorType, message string) error {
	return c.JSON(httpStatus, Response{
		Status:    "error",
		ErrorType: errorType,
		Message:   message,
	})
}

// MappedErrorResponse maps a service error to the response envelope using the
// apperrors taxonomy.
func MappedErrorResponse(c echo.Context, err error) error {
	switch {
	case apperrors.IsNotFound(err):
		return ErrorResponse(c, http.StatusNotFound, "NotFoundException", err.Error())
	case apperrors.IsConflict(err):
		return ErrorResponse(c, http.StatusConflict, "ConflictException", err.Error())
	case apperrors.IsValidation(err):
		return ErrorResponse(c, http.StatusBadRequest, "InputException", err.Error())
	default:
		return ErrorResponse(c, http.StatusInternalServerError, "ServerException", err.Error())
	}
}
