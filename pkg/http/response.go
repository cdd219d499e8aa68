package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope every endpoint writes. The transport status is
// always 200; the application status lives in the body so streaming clients
// can multiplex errors and data over one connection.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListDataResponse wraps list endpoints with a total for paging clients.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

func reply(c echo.Context, status int, data interface{}) error {
	return c.JSON(http.StatusOK, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return reply(c, http.StatusOK, data)
}

func CreatedResponse(c echo.Context, data interface{}) error {
	return reply(c, http.StatusCreated, data)
}

func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return reply(c, http.StatusOK, &ListDataResponse{Rows: rows, Total: total})
}

// BadRequestResponse writes the validation failures collected by
// ReadAndValidateRequest.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return reply(c, http.StatusBadRequest, data)
}

// AppErrorResponse unwraps an AppError and writes it under its own status.
// Anything else is masked as a 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return reply(c, appErr.Status, []*AppError{appErr})
	}
	return reply(c, http.StatusInternalServerError, "Something went wrong")
}
