package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"pipeline-crm/internal/features/deal"

	"go.uber.org/zap"
)

// Supported provider identifiers. Anything else is rejected before I/O.
const (
	ProviderAirtable = "airtable"
	ProviderNotion   = "notion"
)

// ErrUnknownProvider is returned by the factory for identifiers outside the
// supported set.
var ErrUnknownProvider = errors.New("unsupported provider")

// SupportedProviders returns the fixed provider enumeration.
func SupportedProviders() []string {
	return []string{ProviderAirtable, ProviderNotion}
}

// IsSupported reports whether provider is in the supported set.
func IsSupported(provider string) bool {
	return provider == ProviderAirtable || provider == ProviderNotion
}

// Config holds everything a connector instance needs. A fresh connector is
// built per sync call; nothing in here is shared process-wide.
type Config struct {
	APIToken  string
	BaseID    string // external container id (Airtable base / Notion database)
	TableName string

	// APIBase overrides the provider endpoint, used by tests.
	APIBase string
	// Throttle overrides the inter-request delay. Zero keeps the
	// provider default.
	Throttle time.Duration
	// HTTPClient overrides the transport. Nil uses http.DefaultClient.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// TestResult is the outcome of a connection check. TestConnection never
// returns an error; failures are reported through Success/Message.
type TestResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	TableName   string `json:"table_name,omitempty"`
	RecordCount int    `json:"record_count,omitempty"`
}

// PushResult aggregates a best-effort export pass.
type PushResult struct {
	RecordsCreated int
	RecordsUpdated int
	Errors         []string
}

// Connector is the capability set every provider adapter implements.
// FetchRecords returns records already translated to the local field shape.
type Connector interface {
	TestConnection(ctx context.Context) *TestResult
	FetchRecords(ctx context.Context, mapping FieldMapping) ([]map[string]any, error)
	PushRecords(ctx context.Context, deals []deal.Deal, mapping FieldMapping) (*PushResult, error)
}

// Factory builds a connector for a provider. The sync service holds one so
// tests can substitute a stub.
type Factory func(provider string, cfg Config) (Connector, error)

// New is the default factory, keyed on the provider identifier.
func New(provider string, cfg Config) (Connector, error) {
	switch provider {
	case ProviderAirtable:
		return NewAirtableConnector(cfg), nil
	case ProviderNotion:
		return NewNotionConnector(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// HTTPError carries the status code of a failed provider call so callers
// can map it to a user-facing message.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// doJSON performs one JSON request against a provider API. A response with
// status >= 400 becomes an *HTTPError. out may be nil to discard the body.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// toFloat coerces a provider value to float64. ok is false when the value
// cannot be interpreted as a number.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// coerceAmount enforces the amount-to-number rule on a local-shaped record:
// a present but non-numeric amount becomes nil rather than failing the record.
func coerceAmount(local map[string]any) {
	v, ok := local[deal.FieldAmount]
	if !ok || v == nil {
		return
	}
	if f, numeric := toFloat(v); numeric {
		local[deal.FieldAmount] = f
	} else {
		local[deal.FieldAmount] = nil
	}
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func clientOrDefault(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}
