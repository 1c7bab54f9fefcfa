package booking

import (
	"context"
	"time"

	"github.com/BotCoder254/calemly-go-sdk/internal/api"
	"github.com/BotCoder254/calemly-go-sdk/internal/forms"
)

// Step is the orchestrator's coarse state machine position.
type Step string

const (
	StepSelectEvent Step = "SELECT_EVENT"
	StepSelectTime  Step = "SELECT_TIME"
	StepConfirm     Step = "CONFIRM"
	StepSuccess     Step = "SUCCESS"
)

// PaymentProvider selects the pre-payment path for paid event types.
type PaymentProvider string

const (
	ProviderStripe PaymentProvider = "stripe"
	ProviderPayPal PaymentProvider = "paypal"
)

// Draft is the guest-entered data prior to submission.
type Draft struct {
	Name    string
	Email   string
	Phone   string
	Notes   string
	Answers forms.Answers

	// Honeypot is a bot-trap field expected to stay empty.
	Honeypot string

	SavePreferences bool
	SetDefault      bool
}

// Flags are the UI-facing loading indicators.
type Flags struct {
	Initializing  bool
	LoadingSlots  bool
	FetchingEvent bool
	Submitting    bool
	AutoFinding   bool
}

// State is an immutable snapshot of the orchestrator, handed to
// presentation components and OnChange subscribers.
type State struct {
	Step  Step
	Flags Flags

	EventTypes []api.EventType
	EventType  *api.EventType
	Org        string

	Slots        api.SlotMap
	SelectedSlot *api.Slot

	Draft            Draft
	Templates        []api.Template
	ActiveTemplate   *api.Template
	TemplateModified bool

	Confirmed *api.ConfirmedBooking

	Err                 *api.Error
	Alternatives        []api.Slot
	Suggestions         []api.SuggestedSlot
	TemplateSuggestions []api.Template

	// PaymentMessage carries non-error payment notices, e.g. the
	// "payment cancelled, no charge" message after a PayPal cancel.
	PaymentMessage string

	StripeClientSecret string
	PaymentProvider    PaymentProvider

	UserTimezone     string
	CalendarTimezone string
}

// CallbackContext accompanies success/error callbacks so hosts can log
// or redirect without reading widget state.
type CallbackContext struct {
	EventType *api.EventType
	Slot      *api.Slot
}

// BeforeBookHook may inspect and mutate the submission payload. A
// false return vetoes the submission.
type BeforeBookHook func(ctx context.Context, req *api.CreateBookingRequest) bool

// SuccessCallback is invoked after a booking is confirmed.
type SuccessCallback func(booking *api.ConfirmedBooking, cbCtx CallbackContext)

// ErrorCallback is invoked with the normalized error after a
// submission fails.
type ErrorCallback func(err *api.Error, cbCtx CallbackContext)

// PendingPayPalBooking is the durable snapshot persisted before
// redirecting to the PayPal approval page and consumed exactly once on
// return. It deliberately freezes the payload: live widget state may
// have moved on by the time the guest comes back.
type PendingPayPalBooking struct {
	OrderID   string                   `json:"order_id"`
	Request   api.CreateBookingRequest `json:"request"`
	Slot      api.Slot                 `json:"slot"`
	EventType api.EventType            `json:"event_type"`
	Timezone  string                   `json:"timezone"`
	CreatedAt time.Time                `json:"created_at"`
}
