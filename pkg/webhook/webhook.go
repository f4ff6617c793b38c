package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const userAgent = "notifykit-webhook/1.0"

// Sender delivers webhook payloads. Safe for concurrent use.
type Sender struct {
	client *http.Client
	now    func() time.Time
}

// NewSender creates a sender with a pooled HTTP client.
func NewSender() *Sender {
	return &Sender{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		now: time.Now,
	}
}

// NewSenderWithClient creates a sender that uses client.
func NewSenderWithClient(client *http.Client) *Sender {
	if client == nil {
		return NewSender()
	}
	return &Sender{client: client, now: time.Now}
}

// Send POSTs data to webhookURL once. data is sent as-is when it is a
// []byte or json.RawMessage and JSON-encoded otherwise.
func (s *Sender) Send(ctx context.Context, webhookURL string, data any, opts ...SendOption) (Result, error) {
	payload, err := encodePayload(data)
	if err != nil {
		return Result{}, err
	}
	if err := validateInputs(webhookURL, payload); err != nil {
		return Result{}, err
	}

	options := defaultSendOptions()
	for _, opt := range opts {
		opt(options)
	}

	client := s.client
	if options.httpClient != nil {
		client = options.httpClient
	}

	if options.breaker != nil && !options.breaker.Allow() {
		return Result{}, fmt.Errorf("%w: %w", ErrTemporaryFailure, ErrCircuitOpen)
	}

	res, err := s.attempt(ctx, client, webhookURL, payload, options)

	if options.breaker != nil {
		// 4xx responses mean the endpoint is up; only outages trip the breaker.
		if err == nil || IsPermanent(err) {
			options.breaker.RecordSuccess()
		} else {
			options.breaker.RecordFailure()
		}
	}

	return res, err
}

func encodePayload(data any) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case nil:
		return nil, fmt.Errorf("%w: payload cannot be nil", ErrInvalidPayload)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return payload, nil
}

func validateInputs(webhookURL string, payload []byte) error {
	if webhookURL == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}

	if len(payload) == 0 {
		return fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	return nil
}

func (s *Sender) attempt(ctx context.Context, client *http.Client, webhookURL string, payload []byte, options *sendOptions) (Result, error) {
	start := time.Now()
	res := Result{}

	reqCtx, cancel := context.WithTimeout(ctx, options.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range options.headers {
		req.Header.Set(k, v)
	}

	if options.secret != "" {
		id := options.deliveryID
		if id == "" {
			id = uuid.New().String()
		}
		sig, err := Sign(options.secret, payload, id, s.now())
		if err != nil {
			return res, err
		}
		sig.Apply(req.Header)
	} else if options.deliveryID != "" {
		req.Header.Set(HeaderID, options.deliveryID)
	}

	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("%w: %w: %w", ErrTemporaryFailure, ErrTimeout, err)
		}
		return res, fmt.Errorf("%w: %w", ErrTemporaryFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	res.StatusCode = resp.StatusCode
	res.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), s.now())

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return res, nil
	}

	msg := fmt.Sprintf("webhook returned status %d", resp.StatusCode)
	if len(body) > 0 {
		bodyStr := strings.ReplaceAll(string(body), "\n", " ")
		if len(bodyStr) > 200 {
			bodyStr = bodyStr[:200] + "..."
		}
		msg += ": " + bodyStr
	}

	if IsPermanentStatus(resp.StatusCode) {
		return res, fmt.Errorf("%w: %s", ErrPermanentFailure, msg)
	}
	return res, fmt.Errorf("%w: %s", ErrTemporaryFailure, msg)
}

// IsPermanentStatus reports whether an HTTP status means retrying cannot
// help. Client errors are permanent except 408, 425 and 429.
func IsPermanentStatus(statusCode int) bool {
	if statusCode < 400 || statusCode >= 500 {
		return false
	}
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	default:
		return true
	}
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
