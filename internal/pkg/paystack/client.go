package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultBaseURL = "https://api.paystack.co"
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

var (
	// ErrNotConfigured is returned when the secret key is absent
	ErrNotConfigured = errors.New("paystack: secret key is not configured")

	// ErrMissingAuthorizationURL is returned when initialize succeeds without a redirect URL
	ErrMissingAuthorizationURL = errors.New("paystack: response has no authorization_url")
)

// GatewayError describes a failed call to the Paystack API
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := "paystack " + e.Op + " failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Config holds Paystack API configuration
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
	RetryMax  int
}

// Client represents Paystack payment gateway client
type Client struct {
	httpClient *retryablehttp.Client
	config     Config
}

// Metadata is the custom payload attached to a transaction at initialization
type Metadata struct {
	UserID string `json:"userId,omitempty"`
	Plan   string `json:"plan,omitempty"`
}

// UnmarshalJSON accepts an object, a JSON-encoded object string, or an empty value.
// Paystack echoes metadata back in whichever shape the merchant sent it.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*m = Metadata{}
		return nil
	}

	if trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return err
		}
		encoded = strings.TrimSpace(encoded)
		if encoded == "" {
			*m = Metadata{}
			return nil
		}
		trimmed = []byte(encoded)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		// Non-object metadata carries nothing we can trust
		*m = Metadata{}
		return nil
	}

	*m = Metadata{
		UserID: firstString(raw, "userId", "user_id"),
		Plan:   firstString(raw, "plan"),
	}
	return nil
}

func firstString(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

// InitializeRequest represents a transaction initialization request
type InitializeRequest struct {
	Email       string   `json:"email"`
	Amount      int64    `json:"amount"`
	Currency    string   `json:"currency,omitempty"`
	Reference   string   `json:"reference,omitempty"`
	CallbackURL string   `json:"callback_url,omitempty"`
	Metadata    Metadata `json:"metadata"`
}

// InitializeResponse is the data of a successful initialization
type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Transaction is the charge state reported by verify and by webhooks
type Transaction struct {
	ID              int64      `json:"id"`
	Reference       string     `json:"reference"`
	Status          string     `json:"status"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	PaidAt          *time.Time `json:"paid_at"`
	Channel         string     `json:"channel"`
	GatewayResponse string     `json:"gateway_response"`
	Metadata        Metadata   `json:"metadata"`
	Customer        Customer   `json:"customer"`
}

// Customer is the payer attached to a transaction
type Customer struct {
	Email string `json:"email"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NewClient creates new Paystack API client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{l: log.Logger.With().Str("component", "paystack").Logger()}

	return &Client{httpClient: rc, config: cfg}
}

// Configured reports whether the client has a secret key
func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.config.SecretKey) != ""
}

// InitializeTransaction creates a charge and returns the checkout URL
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("validation error: amount must be > 0")
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("validation error: email must be non-empty")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode paystack request: %w", err)
	}

	data, err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", payload)
	if err != nil {
		return nil, err
	}

	var out InitializeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &GatewayError{Op: "initialize", StatusCode: http.StatusOK, Err: fmt.Errorf("decode data: %w", err)}
	}
	if strings.TrimSpace(out.AuthorizationURL) == "" {
		return nil, &GatewayError{Op: "initialize", StatusCode: http.StatusOK, Err: ErrMissingAuthorizationURL}
	}
	if out.Reference == "" {
		out.Reference = req.Reference
	}
	return &out, nil
}

// VerifyTransaction fetches the current state of a charge
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("validation error: reference must be non-empty")
	}

	data, err := c.do(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}

	var out Transaction
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &GatewayError{Op: "verify", StatusCode: http.StatusOK, Err: fmt.Errorf("decode data: %w", err)}
	}
	if out.Reference == "" {
		out.Reference = reference
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (json.RawMessage, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path

	var reqBody interface{}
	if body != nil {
		reqBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.config.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: string(raw), Err: fmt.Errorf("non-2xx status")}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: string(raw), Err: fmt.Errorf("decode response: %w", err)}
	}
	if !env.Status {
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: string(raw), Err: fmt.Errorf("provider rejected request: %s", env.Message)}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: string(raw), Err: fmt.Errorf("response has no data")}
	}

	return env.Data, nil
}

// leveledLogger routes retryablehttp logs into zerolog
type leveledLogger struct {
	l zerolog.Logger
}

func (z leveledLogger) Error(msg string, kv ...interface{}) { z.emit(z.l.Error(), msg, kv) }
func (z leveledLogger) Info(msg string, kv ...interface{})  { z.emit(z.l.Info(), msg, kv) }
func (z leveledLogger) Debug(msg string, kv ...interface{}) { z.emit(z.l.Debug(), msg, kv) }
func (z leveledLogger) Warn(msg string, kv ...interface{})  { z.emit(z.l.Warn(), msg, kv) }

func (z leveledLogger) emit(event *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		// Request objects carry the Authorization header
		if _, isReq := kv[i+1].(*http.Request); isReq {
			continue
		}
		event = event.Interface(key, kv[i+1])
	}
	event.Msg(msg)
}
