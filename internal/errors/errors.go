package errors

import "net/http"

// APIError is the error shape every handler and service returns. Status
// drives the HTTP response code; Code and Message form the JSON body the
// client sees; Internal carries the wrapped cause for server-side logs only.
type APIError struct {
	Status   int    `json:"-"`
	Code     string `json:"error"`
	Message  string `json:"message"`
	Internal error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the original error
func (e *APIError) Unwrap() error {
	return e.Internal
}

func New(status int, code, message string, err error) *APIError {
	return &APIError{
		Status:   status,
		Code:     code,
		Message:  message,
		Internal: err,
	}
}

func BadRequest(code, message string, err error) *APIError {
	return New(http.StatusBadRequest, code, message, err)
}

func Unauthorized(message string, err error) *APIError {
	return New(http.StatusUnauthorized, "No autorizado", message, err)
}

func Forbidden(message string, err error) *APIError {
	return New(http.StatusForbidden, "Acceso denegado", message, err)
}

func NotFound(code, message string, err error) *APIError {
	return New(http.StatusNotFound, code, message, err)
}

func ServiceUnavailable(message string, err error) *APIError {
	return New(http.StatusServiceUnavailable, "Servicio no disponible", message, err)
}

func Internal(err error) *APIError {
	return New(http.StatusInternalServerError, "Error interno", "Error interno del servidor", err)
}

// NewValidationError wraps binding/validator failures from gin
func NewValidationError(err error) *APIError {
	return New(http.StatusBadRequest, "Datos inválidos", "El cuerpo de la petición no es válido", err)
}
