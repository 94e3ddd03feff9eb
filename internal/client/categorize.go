package client

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/kjstillabower/uv-alert-service/internal/parser"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (upstreamErrorsTotal).
const (
	ErrorCategoryTimeout        ErrorCategory = "timeout"
	ErrorCategoryNetwork        ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey  ErrorCategory = "invalid_api_key"
	ErrorCategoryQuotaExhausted ErrorCategory = "quota_exhausted"
	ErrorCategoryCircuitOpen    ErrorCategory = "circuit_open"
	ErrorCategoryUpstream4xx    ErrorCategory = "upstream_4xx"
	ErrorCategoryUpstream5xx    ErrorCategory = "upstream_5xx"
	ErrorCategoryParsing        ErrorCategory = "parsing"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}

	switch {
	case errors.Is(err, ErrQuotaExhausted):
		return ErrorCategoryQuotaExhausted
	case errors.Is(err, ErrCircuitOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryInvalidAPIKey
	case errors.Is(err, ErrTransport):
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	case errors.Is(err, ErrUpstreamFailure):
		var herr *HTTPError
		if errors.As(err, &herr) && herr.StatusCode >= 400 && herr.StatusCode < 500 {
			return ErrorCategoryUpstream4xx
		}
		return ErrorCategoryUpstream5xx
	}

	var perr *parser.Error
	if errors.As(err, &perr) {
		return ErrorCategoryParsing
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return ErrorCategoryNetwork
	}
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") {
		return ErrorCategoryParsing
	}
	return ErrorCategoryUnknown
}
