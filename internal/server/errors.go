package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/trend-radar/internal/orchestrator"
)

// ErrRunActive indicates the run is already executing in this process
var ErrRunActive = errors.New("run is already executing")

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validation *ErrValidation
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrRunExists), errors.Is(err, ErrRunActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
