package webhook

import (
	"net/http"
	"time"
)

// Result describes a single delivery attempt.
type Result struct {
	StatusCode int
	Duration   time.Duration
	// RetryAfter is the endpoint's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

type sendOptions struct {
	timeout    time.Duration
	headers    map[string]string
	httpClient *http.Client
	secret     string
	deliveryID string
	breaker    *CircuitBreaker
}

func defaultSendOptions() *sendOptions {
	return &sendOptions{
		timeout: 10 * time.Second,
		headers: make(map[string]string),
	}
}

// SendOption configures a single Send call.
type SendOption func(*sendOptions)

// WithTimeout sets the HTTP request timeout. Default is 10 seconds.
func WithTimeout(timeout time.Duration) SendOption {
	return func(o *sendOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithHeader adds a custom request header.
func WithHeader(key, value string) SendOption {
	return func(o *sendOptions) {
		if key != "" && value != "" {
			o.headers[key] = value
		}
	}
}

// WithSignature enables HMAC-SHA256 request signing with the given secret.
func WithSignature(secret string) SendOption {
	return func(o *sendOptions) {
		o.secret = secret
	}
}

// WithDeliveryID sets X-Notify-ID. Receivers use it for idempotency, so
// retries of the same delivery should reuse the same id.
func WithDeliveryID(id string) SendOption {
	return func(o *sendOptions) {
		o.deliveryID = id
	}
}

// WithHTTPClient overrides the sender's client for one request.
func WithHTTPClient(client *http.Client) SendOption {
	return func(o *sendOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithBreaker guards the request with cb.
func WithBreaker(cb *CircuitBreaker) SendOption {
	return func(o *sendOptions) {
		o.breaker = cb
	}
}
