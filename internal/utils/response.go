package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"medexam-assistant-server/internal/services"
)

// ResponseData represents the structure of a standard API response.
type ResponseData struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details string      `json:"details,omitempty"`
}

// Error labels used in the error field of failed responses.
const (
	ErrValidation   = "Validation error"
	ErrUnauthorized = "Unauthorized"
	ErrForbidden    = "Forbidden"
	ErrInternal     = "Internal server error"
)

// Success sends a standard success response.
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, ResponseData{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Created sends a standard resource created response.
func Created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, ResponseData{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends a standard error response.
func Error(c *gin.Context, statusCode int, errorLabel, message string) {
	c.JSON(statusCode, ResponseData{
		Success: false,
		Error:   errorLabel,
		Message: message,
	})
}

// BadRequest sends a 400 Bad Request error response.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, ErrValidation, message)
}

// Unauthorized sends a 401 Unauthorized error response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, ErrUnauthorized, message)
}

// Forbidden sends a 403 Forbidden error response.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, ErrForbidden, message)
}

// NotFound sends a 404 Not Found error response.
func NotFound(c *gin.Context, errorLabel, message string) {
	Error(c, http.StatusNotFound, errorLabel, message)
}

// Conflict sends a 409 Conflict error response.
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, services.CodeConflict, message)
}

// InternalServerError sends a 500 response echoing err as details.
func InternalServerError(c *gin.Context, message string, err error) {
	resp := ResponseData{
		Success: false,
		Error:   ErrInternal,
		Message: message,
	}
	if err != nil {
		resp.Details = err.Error()
	}
	c.JSON(http.StatusInternalServerError, resp)
}

// RespondError maps a service error onto the matching status code. message is
// used for server-side failures, which echo the cause in details.
func RespondError(c *gin.Context, err error, message string) {
	var appErr *services.AppError
	if !errors.As(err, &appErr) {
		InternalServerError(c, message, err)
		return
	}

	switch appErr.Kind {
	case services.KindValidation:
		BadRequest(c, appErr.Message)
	case services.KindNotFound:
		NotFound(c, services.CodeNotFound, appErr.Message)
	case services.KindConflict:
		Conflict(c, appErr.Message)
	case services.KindDatabase:
		c.JSON(http.StatusInternalServerError, ResponseData{
			Success: false,
			Error:   services.CodeDatabase,
			Message: message,
			Details: appErr.Error(),
		})
	default:
		InternalServerError(c, message, err)
	}
}
