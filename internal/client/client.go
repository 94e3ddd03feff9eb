package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kjstillabower/uv-alert-service/internal/circuitbreaker"
	"github.com/kjstillabower/uv-alert-service/internal/observability"
)

// DefaultTimeout bounds a single upstream call.
const DefaultTimeout = 15 * time.Second

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 1 << 20

// Fetcher issues a single GET with query parameters. Implemented by AccuWeatherClient
// and by test doubles.
type Fetcher interface {
	Request(ctx context.Context, baseURL string, params map[string]string) (Response, error)
}

var (
	ErrTransport       = errors.New("transport failure")
	ErrQuotaExhausted  = errors.New("quota exhausted")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrCircuitOpen     = circuitbreaker.ErrOpen
)

// HTTPError is the failure returned by Request. StatusCode is 0 when no
// response was received. Err wraps one of the package sentinels.
type HTTPError struct {
	StatusCode int
	Err        error
}

func (e *HTTPError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("accuweather: HTTP %d: %v", e.StatusCode, e.Err)
	}
	return "accuweather: " + e.Err.Error()
}

func (e *HTTPError) Unwrap() error { return e.Err }

// Response is a raw successful upstream response.
type Response struct {
	StatusCode int
	Body       []byte
}

// AccuWeatherClient performs exactly one GET per Request; it never retries.
type AccuWeatherClient struct {
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewAccuWeatherClient returns a client whose calls are each bounded by timeout
// (DefaultTimeout when timeout <= 0).
func NewAccuWeatherClient(timeout time.Duration) *AccuWeatherClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &AccuWeatherClient{
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetCircuitBreaker puts cb in front of every upstream call. Pass nil to disable.
func (c *AccuWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// BreakerFailure reports whether err should count against the circuit breaker:
// transport failures and 5xx responses do, client errors do not.
func BreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.StatusCode == 0 || herr.StatusCode >= 500
	}
	return true
}

// Request performs one GET against baseURL with params encoded per RFC 3986.
func (c *AccuWeatherClient) Request(ctx context.Context, baseURL string, params map[string]string) (Response, error) {
	endpoint := EndpointFromContext(ctx)

	var resp Response
	call := func() error {
		var err error
		resp, err = c.do(ctx, endpoint, baseURL, params)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Call(call)
		if err == circuitbreaker.ErrOpen {
			err = &HTTPError{Err: ErrCircuitOpen}
		}
	} else {
		err = call()
	}

	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
		return Response{}, err
	}
	return resp, nil
}

func (c *AccuWeatherClient) do(ctx context.Context, endpoint, baseURL string, params map[string]string) (Response, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, BuildURL(baseURL, params), nil)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return Response{}, &HTTPError{Err: fmt.Errorf("%w: build request: %w", ErrTransport, err)}
	}
	req.Header.Set("Accept", "application/json")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		return Response{}, &HTTPError{Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}
	defer httpResp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))

	status := statusLabel(httpResp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.UpstreamDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := statusError(httpResp.StatusCode); err != nil {
		return Response{}, &HTTPError{StatusCode: httpResp.StatusCode, Err: err}
	}
	if readErr != nil {
		return Response{}, &HTTPError{StatusCode: httpResp.StatusCode, Err: fmt.Errorf("%w: read body: %w", ErrTransport, readErr)}
	}
	return Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}

// statusError maps a non-2xx status to a sentinel. 503 is how AccuWeather
// signals an exhausted API allowance.
func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusServiceUnavailable:
		return ErrQuotaExhausted
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrInvalidAPIKey
	default:
		return ErrUpstreamFailure
	}
}

// BuildURL appends the encoded query to baseURL.
func BuildURL(baseURL string, params map[string]string) string {
	query := EncodeQuery(params)
	if query == "" {
		return baseURL
	}
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + query
}

// EncodeQuery renders params as key=value pairs joined by "&", sorted by key.
// Keys and values are percent-encoded leaving only ALPHA / DIGIT / "-._~" as is.
func EncodeQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(PercentEncode(k))
		b.WriteByte('=')
		b.WriteString(PercentEncode(params[k]))
	}
	return b.String()
}

// PercentEncode escapes every byte outside the RFC 3986 unreserved set.
func PercentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

type endpointKey struct{}

// WithEndpoint tags ctx with the upstream endpoint name used as a metric label.
func WithEndpoint(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, endpointKey{}, name)
}

// EndpointFromContext returns the endpoint tag, or "unknown".
func EndpointFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(endpointKey{}).(string); ok && name != "" {
		return name
	}
	return "unknown"
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusServiceUnavailable {
		return "quota_exhausted"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
