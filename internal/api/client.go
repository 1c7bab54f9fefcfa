package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BotCoder254/calemly-go-sdk/pkg/logging"
)

const (
	defaultTimeout     = 20 * time.Second
	defaultMaxRetries  = 2
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 12 * time.Second
	defaultJitterMax   = 350 * time.Millisecond
	defaultUserAgent   = "calemly-go-sdk/0.1"

	headerEmbedKey    = "X-Calemly-Embed-Key"
	headerEmbedOrigin = "X-Calemly-Embed-Origin"
)

// ConnectivityChecker reports whether the host currently has network
// connectivity. When it says no, calls fail immediately with an
// OFFLINE error instead of burning the retry budget.
type ConnectivityChecker interface {
	Online() bool
}

// Config controls how the scheduling API client behaves.
type Config struct {
	BaseURL     string
	EmbedKey    string
	EmbedOrigin string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	JitterMax   time.Duration
	HTTPClient  *http.Client
	Logger      *logging.Logger
	Metrics     *Metrics
	Checker     ConnectivityChecker
	UserAgent   string
}

// Client wraps the Calemly scheduling API with a uniform retry and
// error-normalization contract.
type Client struct {
	baseURL     string
	embedKey    string
	embedOrigin string
	httpClient  *http.Client
	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration
	jitterMax   time.Duration
	logger      *logging.Logger
	metrics     *Metrics
	checker     ConnectivityChecker
	userAgent   string

	// now and jitter are swapped out by tests.
	now    func() time.Time
	jitter func(max time.Duration) time.Duration
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("api: base URL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	if cfg.MaxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}
	backoffCap := cfg.BackoffCap
	if backoffCap <= 0 {
		backoffCap = defaultBackoffCap
	}
	jitterMax := cfg.JitterMax
	if jitterMax < 0 {
		jitterMax = 0
	} else if jitterMax == 0 {
		jitterMax = defaultJitterMax
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:     baseURL,
		embedKey:    cfg.EmbedKey,
		embedOrigin: cfg.EmbedOrigin,
		httpClient:  httpClient,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		jitterMax:   jitterMax,
		logger:      logger.Component("api"),
		metrics:     cfg.Metrics,
		checker:     cfg.Checker,
		userAgent:   userAgent,
		now:         time.Now,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}, nil
}

// ListEventTypes returns the bookable event types for the configured
// embed key.
func (c *Client) ListEventTypes(ctx context.Context) ([]EventType, error) {
	var out struct {
		EventTypes []EventType `json:"event_types"`
	}
	if err := c.invoke(ctx, "list_event_types", http.MethodGet, "/v1/embed/event-types", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.EventTypes, nil
}

// GetEventTypeBySlug fetches one event type by its URL slug, optionally
// scoped to an organization.
func (c *Client) GetEventTypeBySlug(ctx context.Context, slug, org string) (*EventType, error) {
	if strings.TrimSpace(slug) == "" {
		return nil, errors.New("api: event type slug required")
	}
	q := url.Values{}
	if org != "" {
		q.Set("org", org)
	}
	var out EventType
	path := "/v1/event-types/" + url.PathEscape(slug)
	if err := c.invoke(ctx, "get_event_type", http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SlotQuery selects an availability window.
type SlotQuery struct {
	EventTypeID string
	From        string // YYYY-MM-DD, inclusive
	To          string // YYYY-MM-DD, inclusive
	Timezone    string
}

// GetSlots fetches available slots grouped by calendar date.
func (c *Client) GetSlots(ctx context.Context, query SlotQuery) (SlotMap, error) {
	if strings.TrimSpace(query.EventTypeID) == "" {
		return nil, errors.New("api: event type id required")
	}
	q := url.Values{}
	q.Set("from", query.From)
	q.Set("to", query.To)
	q.Set("timezone", query.Timezone)
	var out struct {
		Slots SlotMap `json:"slots"`
	}
	path := "/v1/event-types/" + url.PathEscape(query.EventTypeID) + "/slots"
	if err := c.invoke(ctx, "get_slots", http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

// CreateBooking submits a booking. Retries (network/5xx/429 only) are
// safe because the payload carries a client request id the backend can
// deduplicate on.
func (c *Client) CreateBooking(ctx context.Context, req CreateBookingRequest) (*ConfirmedBooking, error) {
	var out ConfirmedBooking
	if err := c.invoke(ctx, "create_booking", http.MethodPost, "/v1/bookings", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBooking re-fetches a confirmed booking, used to poll for a late
// meeting link.
func (c *Client) GetBooking(ctx context.Context, id string) (*ConfirmedBooking, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("api: booking id required")
	}
	var out ConfirmedBooking
	if err := c.invoke(ctx, "get_booking", http.MethodGet, "/v1/bookings/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TemplateQuery identifies the returning guest whose templates to load.
type TemplateQuery struct {
	ContactToken string
	Email        string
	Phone        string
}

// ListTemplates fetches recent saved templates for a returning guest.
func (c *Client) ListTemplates(ctx context.Context, query TemplateQuery) ([]Template, error) {
	q := url.Values{}
	if query.ContactToken != "" {
		q.Set("contact_token", query.ContactToken)
	}
	if query.Email != "" {
		q.Set("email", query.Email)
	}
	if query.Phone != "" {
		q.Set("phone", query.Phone)
	}
	var out struct {
		Templates []Template `json:"templates"`
	}
	if err := c.invoke(ctx, "list_templates", http.MethodGet, "/v1/templates", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Templates, nil
}

// GetPreferences fetches saved guest preferences.
func (c *Client) GetPreferences(ctx context.Context, contactToken string) (*Preferences, error) {
	q := url.Values{}
	q.Set("contact_token", contactToken)
	var out Preferences
	if err := c.invoke(ctx, "get_preferences", http.MethodGet, "/v1/preferences", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearPreferences deletes a guest's saved preferences ("forget me").
func (c *Client) ClearPreferences(ctx context.Context, contactToken string) error {
	q := url.Values{}
	q.Set("contact_token", contactToken)
	return c.invoke(ctx, "clear_preferences", http.MethodDelete, "/v1/preferences", q, nil, nil)
}

// AutoSuggestSlot asks the backend for the single best slot for an
// event type.
func (c *Client) AutoSuggestSlot(ctx context.Context, eventTypeID, timezone string) (*Slot, error) {
	if strings.TrimSpace(eventTypeID) == "" {
		return nil, errors.New("api: event type id required")
	}
	q := url.Values{}
	q.Set("timezone", timezone)
	var out struct {
		Slot *Slot `json:"slot"`
	}
	path := "/v1/event-types/" + url.PathEscape(eventTypeID) + "/auto-suggest"
	if err := c.invoke(ctx, "auto_suggest", http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Slot, nil
}

// GetConflictSuggestions fetches up to limit ranked alternative slots
// near a desired time after a SLOT_CONFLICT.
func (c *Client) GetConflictSuggestions(ctx context.Context, eventTypeID string, desired time.Time, limit int) ([]SuggestedSlot, error) {
	if strings.TrimSpace(eventTypeID) == "" {
		return nil, errors.New("api: event type id required")
	}
	if limit <= 0 {
		limit = 5
	}
	q := url.Values{}
	q.Set("desired", desired.UTC().Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(limit))
	var out struct {
		Suggestions []SuggestedSlot `json:"suggestions"`
	}
	path := "/v1/event-types/" + url.PathEscape(eventTypeID) + "/conflict-suggestions"
	if err := c.invoke(ctx, "conflict_suggestions", http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

// SubmitSuggestionFeedback reports suggestion acceptance. Callers treat
// this as best-effort.
func (c *Client) SubmitSuggestionFeedback(ctx context.Context, fb SuggestionFeedback) error {
	return c.invoke(ctx, "suggestion_feedback", http.MethodPost, "/v1/suggestions/feedback", nil, fb, nil)
}

// GetPaymentInfo reports payment-provider availability for an event type.
func (c *Client) GetPaymentInfo(ctx context.Context, eventTypeID string) (*PaymentInfo, error) {
	if strings.TrimSpace(eventTypeID) == "" {
		return nil, errors.New("api: event type id required")
	}
	var out PaymentInfo
	path := "/v1/event-types/" + url.PathEscape(eventTypeID) + "/payment-info"
	if err := c.invoke(ctx, "payment_info", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StripeIntentRequest asks the backend to create a payment intent for
// an event type's price.
type StripeIntentRequest struct {
	EventTypeID string `json:"event_type_id"`
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
}

// CreateStripeIntent creates a Stripe payment intent via the backend.
func (c *Client) CreateStripeIntent(ctx context.Context, req StripeIntentRequest) (*StripeIntent, error) {
	var out StripeIntent
	if err := c.invoke(ctx, "stripe_intent", http.MethodPost, "/v1/payments/stripe/intents", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PayPalOrderRequest asks the backend to create a PayPal order.
type PayPalOrderRequest struct {
	EventTypeID string `json:"event_type_id"`
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	ReturnURL   string `json:"return_url,omitempty"`
	CancelURL   string `json:"cancel_url,omitempty"`
}

// CreatePayPalOrder creates a PayPal order and returns its approval URL.
func (c *Client) CreatePayPalOrder(ctx context.Context, req PayPalOrderRequest) (*PayPalOrder, error) {
	var out PayPalOrder
	if err := c.invoke(ctx, "paypal_order", http.MethodPost, "/v1/payments/paypal/orders", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CapturePayPalOrder captures an approved PayPal order. Idempotent on
// the backend by order id.
func (c *Client) CapturePayPalOrder(ctx context.Context, orderID string) (*PayPalCapture, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, errors.New("api: paypal order id required")
	}
	var out PayPalCapture
	path := "/v1/payments/paypal/orders/" + url.PathEscape(orderID) + "/capture"
	if err := c.invoke(ctx, "paypal_capture", http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IssueWidgetToken fetches a short-lived signed widget token for the
// configured embed key.
func (c *Client) IssueWidgetToken(ctx context.Context) (*WidgetToken, error) {
	var out WidgetToken
	if err := c.invoke(ctx, "widget_token", http.MethodPost, "/v1/embed/token", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// invoke performs one logical API call: offline check, request build,
// bounded retry loop, error normalization.
func (c *Client) invoke(ctx context.Context, operation, method, path string, query url.Values, body, out any) error {
	if c.checker != nil && !c.checker.Online() {
		c.metrics.ObserveRequest(operation, "offline")
		return OfflineError()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal %s body: %w", operation, err)
		}
	}

	fullURL := c.buildURL(path, query)
	started := c.now()
	defer func() {
		c.metrics.ObserveLatency(operation, c.now().Sub(started).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return fmt.Errorf("api: build %s request: %w", operation, err)
		}
		c.setHeaders(req, payload != nil)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = &Error{Code: CodeGeneric, Message: fmt.Sprintf("network error: %v", err)}
			if attempt == c.maxRetries {
				c.metrics.ObserveRequest(operation, "network_error")
				return lastErr
			}
			c.metrics.ObserveRetry(operation, "network")
			c.logRetry(operation, attempt, 0, err)
			if sleepErr := c.sleep(ctx, c.backoff(attempt)); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("api: read %s response: %w", operation, readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.metrics.ObserveRequest(operation, "ok")
			if out == nil || len(data) == 0 {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("api: decode %s response: %w", operation, err)
			}
			return nil
		}

		var parsed errorBody
		_ = json.Unmarshal(data, &parsed)
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		apiErr := normalizeError(resp.StatusCode, parsed, retryAfter)

		if attempt < c.maxRetries && apiErr.Retryable() {
			lastErr = apiErr
			delay := c.backoff(attempt)
			trigger := "server_error"
			if apiErr.Code == CodeRateLimited {
				trigger = "rate_limited"
				if apiErr.RetryAfter > 0 {
					delay = apiErr.RetryAfter
				}
			}
			c.metrics.ObserveRetry(operation, trigger)
			c.logRetry(operation, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		c.metrics.ObserveRequest(operation, "error")
		return apiErr
	}

	if lastErr != nil {
		return lastErr
	}
	return &Error{Code: CodeGeneric, Message: "request failed without response"}
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.embedKey != "" {
		req.Header.Set(headerEmbedKey, c.embedKey)
	}
	if c.embedOrigin != "" {
		req.Header.Set(headerEmbedOrigin, c.embedOrigin)
	}
}

func (c *Client) buildURL(path string, query url.Values) string {
	full := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		full = full + "?" + query.Encode()
	}
	return full
}

// backoff computes min(base * 2^attempt, cap) plus bounded jitter.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.backoffBase << uint(attempt)
	if delay > c.backoffCap || delay <= 0 {
		delay = c.backoffCap
	}
	return delay + c.jitter(c.jitterMax)
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(operation string, attempt, status int, err error) {
	c.logger.Warn("scheduling api retry",
		"operation", operation,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
