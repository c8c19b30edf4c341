package api

import (
	"net/http"

	"genescore/internal/errors"
)

// statusOf maps an AppError code to an HTTP status
func statusOf(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeConflict:
		return http.StatusConflict
	case errors.CodeValidationError, errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeRecomputeFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func bodyOf(err error) errorBody {
	return errorBody{Error: err.Error(), Code: errors.GetCode(err)}
}
