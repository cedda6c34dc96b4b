package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"tradejournal/pkg/tradejournal"
)

// ErrorResponse represents an error API response with structured information.
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type quotaExceededData struct {
	Plan    string    `json:"plan"`
	Limit   int       `json:"limit"`
	Used    int       `json:"used"`
	Month   string    `json:"month"`
	ResetAt time.Time `json:"reset_at"`
}

type degradedData struct {
	Analysis *tradejournal.Analysis `json:"analysis"`
	Attempts int                    `json:"attempts"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeErrorResponse writes err with the HTTP status of its error code.
// Quota refusals and degraded analyses carry their details in data.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	code := tradejournal.CodeOf(err)
	if code == "" {
		code = tradejournal.ErrCodeInternal
	}
	status := mapErrorCodeToHTTPStatus(code)
	response := ErrorResponse{
		Code:      status,
		Message:   err.Error(),
		ErrorCode: string(code),
		RequestID: requestID(r),
	}

	var quotaErr *tradejournal.QuotaExceededError
	var degradedErr *tradejournal.AnalysisDegradedError
	switch {
	case errors.As(err, &quotaErr):
		response.Data = quotaExceededData{
			Plan:    quotaErr.Plan,
			Limit:   quotaErr.Limit,
			Used:    quotaErr.Used,
			Month:   quotaErr.Month,
			ResetAt: quotaErr.ResetAt,
		}
	case errors.As(err, &degradedErr):
		response.Message = "analysis completed with errors"
		response.Data = degradedData{Analysis: degradedErr.Analysis, Attempts: degradedErr.Attempts}
	}
	if status == http.StatusInternalServerError {
		// Storage and internal failures are logged, not echoed.
		response.Message = http.StatusText(status)
	}

	if lw, ok := w.(interface{ SetErrorMessage(string) }); ok {
		lw.SetErrorMessage(err.Error())
	}
	writeJSON(w, status, response)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeErrorResponse(w, r, tradejournal.NewError(tradejournal.ErrCodeInvalidInput, message))
}

// mapErrorCodeToHTTPStatus maps business error codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code tradejournal.ErrorCode) int {
	switch code {
	case tradejournal.ErrCodeInvalidInput, tradejournal.ErrCodeSchemaViolation:
		return http.StatusBadRequest
	case tradejournal.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case tradejournal.ErrCodeNotFound, tradejournal.ErrCodeUserNotFound, tradejournal.ErrCodeTradeNotFound:
		return http.StatusNotFound
	case tradejournal.ErrCodeConflict:
		return http.StatusConflict
	case tradejournal.ErrCodeQuotaExceeded:
		return http.StatusTooManyRequests
	case tradejournal.ErrCodeAnalysisDegraded, tradejournal.ErrCodeProviderError:
		return http.StatusBadGateway
	case tradejournal.ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	case tradejournal.ErrCodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	return middleware.GetReqID(r.Context())
}
