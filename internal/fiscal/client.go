package fiscal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"go.uber.org/zap"
)

// successCode is the authority's response code for an accepted invoice.
const successCode = "100"

// identifierFields are the response keys that may carry the issued fiscal id, in lookup order.
var identifierFields = []string{
	"InvoiceNumber",
	"invoiceNumber",
	"invoice_number",
	"FiscalInvoiceNumber",
	"fiscal_id",
}

var codeFields = []string{"Code", "code", "ResponseCode", "responseCode"}

var messageFields = []string{"Response", "response", "Message", "message", "Error", "error", "Errors", "errors"}

// Response is an accepted submission.
type Response struct {
	FiscalID   string
	Code       string
	Message    string
	Raw        string
	StatusCode int
}

type Client struct {
	httpClient *http.Client
	logger     logger.ZapLogger
	sleep      func(ctx context.Context, d time.Duration) error
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = sleep }
}

func NewClient(log logger.ZapLogger, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		logger:     log,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type httpResult struct {
	status int
	body   []byte
}

// Submit posts the payload, retrying transport failures with exponential backoff.
// Any returned error is a *Error.
func (c *Client) Submit(ctx context.Context, p *Payload, env EnvironmentConfig) (*Response, error) {
	if err := env.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalid, Message: "invalid environment", Err: err}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, &Error{Kind: KindInvalid, Message: "failed to encode payload", Err: err}
	}

	attempts := env.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := c.post(ctx, env, body)
		if err == nil {
			return interpret(p.InvoiceNumber, res)
		}
		lastErr = err

		c.logger.Warn("fiscal submission transport failure",
			zap.String("invoice_number", p.InvoiceNumber),
			zap.String("environment", env.Name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)

		if attempt == attempts || ctx.Err() != nil {
			break
		}
		if err := c.sleep(ctx, backoff(env.BackoffBase, attempt)); err != nil {
			break
		}
	}

	return nil, &Error{
		Kind:    KindTransport,
		Message: fmt.Sprintf("fiscal authority unreachable after %d attempt(s)", attempts),
		Err:     lastErr,
	}
}

// Probe checks that the authority endpoint answers at all. Any HTTP response other
// than a gateway failure counts as reachable.
func (c *Client) Probe(ctx context.Context, env EnvironmentConfig) error {
	ctx, cancel := context.WithTimeout(ctx, env.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, env.BaseURL, nil)
	if err != nil {
		return &Error{Kind: KindTransport, Message: "failed to build probe", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Message: "probe failed", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if isGatewayFailure(resp.StatusCode) {
		return &Error{Kind: KindTransport, Message: "probe got gateway failure", StatusCode: resp.StatusCode}
	}
	return nil
}

// post performs one attempt. A non-nil error is always a transport failure.
func (c *Client) post(ctx context.Context, env EnvironmentConfig, body []byte) (*httpResult, error) {
	ctx, cancel := context.WithTimeout(ctx, env.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if env.Token != "" {
		req.Header.Set("Authorization", "Bearer "+env.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// A gateway failure proves the authority itself never saw the request.
	if isGatewayFailure(resp.StatusCode) {
		return nil, fmt.Errorf("gateway responded %d", resp.StatusCode)
	}

	return &httpResult{status: resp.StatusCode, body: data}, nil
}

// interpret turns a received response into an accepted Response or a rejection.
func interpret(submitted string, res *httpResult) (*Response, error) {
	raw := string(res.body)

	fields := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(res.body))
	dec.UseNumber()
	decodeErr := dec.Decode(&fields)

	if res.status < 200 || res.status > 299 {
		msg := firstString(fields, messageFields)
		if msg == "" {
			msg = http.StatusText(res.status)
		}
		return nil, &Error{Kind: KindProtocol, Message: msg, StatusCode: res.status, Raw: raw}
	}
	if decodeErr != nil {
		return nil, &Error{Kind: KindProtocol, Message: "unparseable response", StatusCode: res.status, Raw: raw, Err: decodeErr}
	}

	code := firstString(fields, codeFields)
	msg := firstString(fields, messageFields)
	if code != "" && code != successCode {
		if msg == "" {
			msg = "rejected with code " + code
		}
		return nil, &Error{Kind: KindProtocol, Message: msg, StatusCode: res.status, Raw: raw}
	}

	id := firstString(fields, identifierFields)
	if id == "" {
		return nil, &Error{Kind: KindProtocol, Message: "no fiscal identifier in response", StatusCode: res.status, Raw: raw}
	}
	if id == strings.TrimSpace(submitted) {
		return nil, &Error{
			Kind:       KindEchoAnomaly,
			Message:    "authority echoed invoice number " + id + " instead of issuing a fiscal id",
			StatusCode: res.status,
			Raw:        raw,
		}
	}

	return &Response{
		FiscalID:   id,
		Code:       code,
		Message:    msg,
		Raw:        raw,
		StatusCode: res.status,
	}, nil
}

func firstString(fields map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || v == nil {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		if len(t) == 0 {
			return ""
		}
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func isGatewayFailure(status int) bool {
	return status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return base << (attempt - 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
