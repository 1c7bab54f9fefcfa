package api

import (
	"time"

	"github.com/BotCoder254/calemly-go-sdk/internal/forms"
)

// RefundPolicy is the cancellation/refund tier attached to a paid event type.
type RefundPolicy string

const (
	RefundFlexible RefundPolicy = "flexible"
	RefundModerate RefundPolicy = "moderate"
	RefundStrict   RefundPolicy = "strict"
	RefundNone     RefundPolicy = "none"
)

// EventType is a bookable meeting definition. Instances are immutable
// once loaded and replaced wholesale on re-fetch.
type EventType struct {
	ID              string         `json:"id"`
	Slug            string         `json:"slug"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	DurationMinutes int            `json:"duration_minutes"`
	Timezone        string         `json:"timezone"`
	RequiresPayment bool           `json:"requires_payment"`
	PaymentEnabled  bool           `json:"payment_enabled"`
	PriceCents      int64          `json:"price_cents"`
	Currency        string         `json:"currency"`
	RefundPolicy    RefundPolicy   `json:"refund_policy,omitempty"`
	FormSchema      *forms.Schema  `json:"form_schema,omitempty"`
	BriefTemplate   *BriefTemplate `json:"brief_template,omitempty"`
	Host            *Host          `json:"host,omitempty"`
}

// Host is the meeting owner's public metadata.
type Host struct {
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// BriefTemplate is a pre-booking acknowledgement screen (policies,
// checklist, consents) an event type may require.
type BriefTemplate struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Body      string   `json:"body,omitempty"`
	Checklist []string `json:"checklist,omitempty"`
	Consents  []string `json:"consents,omitempty"`
}

// Slot is a bookable time interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// LocalStart/LocalEnd are optional display variants in the
	// requesting timezone, passed through untouched.
	LocalStart string `json:"local_start,omitempty"`
	LocalEnd   string `json:"local_end,omitempty"`

	// Pending marks a slot referenced by an in-flight submission.
	// Client-side only, never serialized to the API.
	Pending bool `json:"-"`
}

// SlotMap groups slots by calendar date ("2006-01-02"), each date's
// slots ordered by start time.
type SlotMap map[string][]Slot

// SuggestedSlot is a ranked conflict-recovery alternative.
type SuggestedSlot struct {
	Slot       Slot    `json:"slot"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Template is a previously saved guest profile reusable for fast
// rebooking. Fetched, never created client-side.
type Template struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	Phone     string         `json:"phone,omitempty"`
	Notes     string         `json:"notes,omitempty"`
	Answers   map[string]any `json:"answers,omitempty"`
	IsDefault bool           `json:"is_default"`
	UpdatedAt time.Time      `json:"updated_at,omitempty"`
}

// ConfirmedBooking is the server-returned record of a successful
// creation call. Immutable.
type ConfirmedBooking struct {
	ID              string    `json:"id"`
	EventTypeID     string    `json:"event_type_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	GuestName       string    `json:"guest_name"`
	GuestEmail      string    `json:"guest_email"`
	GuestPhone      string    `json:"guest_phone,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	MeetingURL      string    `json:"meeting_url,omitempty"`
	PaymentStatus   string    `json:"payment_status,omitempty"`
	PaymentProvider string    `json:"payment_provider,omitempty"`
	PaymentAmount   int64     `json:"payment_amount,omitempty"`
	PaymentCurrency string    `json:"payment_currency,omitempty"`
}

// SourceAttribution ties a booking back to the embed that produced it.
type SourceAttribution struct {
	EmbedOrigin       string `json:"embed_origin,omitempty"`
	TrackingSessionID string `json:"tracking_session_id,omitempty"`
	ContactToken      string `json:"contact_token,omitempty"`
}

// CreateBookingRequest is the submission payload.
type CreateBookingRequest struct {
	EventTypeID     string         `json:"event_type_id"`
	Start           time.Time      `json:"start"`
	End             time.Time      `json:"end"`
	Timezone        string         `json:"timezone"`
	Name            string         `json:"name"`
	Email           string         `json:"email"`
	Phone           string         `json:"phone,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	Answers         map[string]any `json:"answers,omitempty"`
	Honeypot        string         `json:"website,omitempty"`
	ClientRequestID string         `json:"client_request_id"`

	Source SourceAttribution `json:"source"`

	TemplateID       string `json:"template_id,omitempty"`
	TemplateUsed     bool   `json:"template_used,omitempty"`
	TemplateModified bool   `json:"template_modified,omitempty"`
	SavePreferences  bool   `json:"save_preferences,omitempty"`
	SetDefault       bool   `json:"set_default,omitempty"`

	// Payment confirmation ids, set only on post-payment creation.
	StripePaymentIntentID string `json:"stripe_payment_intent_id,omitempty"`
	PayPalOrderID         string `json:"paypal_order_id,omitempty"`
	PayPalCaptureID       string `json:"paypal_capture_id,omitempty"`

	// WidgetToken is the signed embed credential, when configured.
	WidgetToken string `json:"widget_token,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// PaymentInfo reports which providers are live for an event type.
type PaymentInfo struct {
	StripeEnabled  bool   `json:"stripe_enabled"`
	PayPalEnabled  bool   `json:"paypal_enabled"`
	PublishableKey string `json:"publishable_key,omitempty"`
	PriceCents     int64  `json:"price_cents"`
	Currency       string `json:"currency"`
}

// StripeIntent is the client-side handle for a Stripe payment.
type StripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
}

// PayPalOrder is the client-side handle for a PayPal redirect flow.
type PayPalOrder struct {
	OrderID     string `json:"order_id"`
	ApprovalURL string `json:"approval_url"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// PayPalCapture is the result of capturing an approved order.
type PayPalCapture struct {
	OrderID   string `json:"order_id"`
	CaptureID string `json:"capture_id"`
	Status    string `json:"status"`
}

// SuggestionFeedback reports whether a guest accepted a ranked
// alternative after a conflict. Best-effort telemetry.
type SuggestionFeedback struct {
	EventTypeID   string    `json:"event_type_id"`
	OriginalStart time.Time `json:"original_start"`
	ChosenStart   time.Time `json:"chosen_start,omitempty"`
	Accepted      bool      `json:"accepted"`
	Rank          int       `json:"rank,omitempty"`
	Confidence    float64   `json:"confidence,omitempty"`
}

// WidgetToken is a short-lived signed credential proving the submission
// originated from an authorized embed context.
type WidgetToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Preferences is a guest's saved booking preferences keyed by contact
// token, email or phone.
type Preferences struct {
	Templates []Template `json:"templates"`
	DefaultID string     `json:"default_id,omitempty"`
}
