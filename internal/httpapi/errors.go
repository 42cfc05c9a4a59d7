package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/queryreg/engine/internal/queryerr"
)

// errorResponse is the JSON body written for any non-2xx response.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Query   string `json:"query,omitempty"`
}

// statusFor maps an engine error Code to an HTTP status.
func statusFor(code queryerr.Code) int {
	switch code {
	case queryerr.CodeQueryNotFound:
		return http.StatusNotFound
	case queryerr.CodeValidationErr:
		return http.StatusBadRequest
	case queryerr.CodeDefinitionErr:
		return http.StatusBadRequest
	case queryerr.CodeSecurityErr:
		return http.StatusForbidden
	case queryerr.CodeTimeoutErr:
		return http.StatusRequestTimeout
	case queryerr.CodeExecutionErr:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := queryerr.CodeOf(err)
	resp := errorResponse{Code: string(code), Message: err.Error()}
	if qe, ok := err.(*queryerr.Error); ok {
		resp.Query = qe.QueryName
	}
	writeJSON(w, statusFor(code), resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
