package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dispatch-ext/backend/pkg/apperr"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// Message sends a 200 JSON response carrying only a message.
func Message(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, Body{Success: true, Message: msg})
}

// OKWithMessage sends a 200 JSON response with data and a message.
func OKWithMessage(c *gin.Context, data interface{}, msg string) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data, Message: msg})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err})
}

// Error renders err using its apperr kind. Errors outside the taxonomy never leak their text.
func Error(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := "Internal server error"
	if e, ok := apperr.As(err); ok && e.Message != "" {
		msg = e.Message
	}
	c.JSON(status, Body{Success: false, Error: msg})
}

// Abort renders err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
