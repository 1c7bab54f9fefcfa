// Package booking implements the client-side booking orchestration
// core: the step state machine, slot availability cache, conflict
// recovery, payment initiation, and PayPal-return resumption. It owns
// all widget state; presentation layers read State snapshots and call
// the action methods.
package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BotCoder254/calemly-go-sdk/internal/api"
	"github.com/BotCoder254/calemly-go-sdk/internal/config"
	"github.com/BotCoder254/calemly-go-sdk/internal/identity"
	"github.com/BotCoder254/calemly-go-sdk/internal/storage"
	"github.com/BotCoder254/calemly-go-sdk/pkg/logging"
)

// SchedulingAPI is the remote-capability surface the orchestrator
// consumes. *api.Client satisfies it; tests substitute fakes.
type SchedulingAPI interface {
	ListEventTypes(ctx context.Context) ([]api.EventType, error)
	GetEventTypeBySlug(ctx context.Context, slug, org string) (*api.EventType, error)
	GetSlots(ctx context.Context, query api.SlotQuery) (api.SlotMap, error)
	CreateBooking(ctx context.Context, req api.CreateBookingRequest) (*api.ConfirmedBooking, error)
	GetBooking(ctx context.Context, id string) (*api.ConfirmedBooking, error)
	ListTemplates(ctx context.Context, query api.TemplateQuery) ([]api.Template, error)
	ClearPreferences(ctx context.Context, contactToken string) error
	AutoSuggestSlot(ctx context.Context, eventTypeID, timezone string) (*api.Slot, error)
	GetConflictSuggestions(ctx context.Context, eventTypeID string, desired time.Time, limit int) ([]api.SuggestedSlot, error)
	SubmitSuggestionFeedback(ctx context.Context, fb api.SuggestionFeedback) error
	GetPaymentInfo(ctx context.Context, eventTypeID string) (*api.PaymentInfo, error)
	CreateStripeIntent(ctx context.Context, req api.StripeIntentRequest) (*api.StripeIntent, error)
	CreatePayPalOrder(ctx context.Context, req api.PayPalOrderRequest) (*api.PayPalOrder, error)
	CapturePayPalOrder(ctx context.Context, orderID string) (*api.PayPalCapture, error)
}

// TokenSource supplies the signed widget token merged into submission
// payloads when configured.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ErrSubmitInFlight is returned when Submit is triggered while a prior
// submission is still pending. The first submission proceeds; callers
// should simply disable the submit control on the Submitting flag.
var ErrSubmitInFlight = errors.New("booking: a submission is already in flight")

const maxConflictSuggestions = 5

// Options wires an Orchestrator. API and Config are required.
type Options struct {
	API      SchedulingAPI
	Config   *config.Config
	Identity *identity.Manager

	// SessionStore persists the pending-PayPal snapshot across a full
	// page navigation. Defaults to an in-memory store.
	SessionStore storage.Store
	Navigator    Navigator
	Logger       *logging.Logger

	// TokenSource is consulted when Config.AutoWidgetToken is set or a
	// custom provider was configured.
	TokenSource TokenSource

	// ProvidedEventType pins the widget to a pre-fetched event type,
	// bypassing the initial fetch entirely.
	ProvidedEventType *api.EventType

	BeforeBook BeforeBookHook
	OnSuccess  SuccessCallback
	OnError    ErrorCallback
	OnChange   func(State)
}

// Orchestrator drives the multi-step booking flow. All state mutations
// happen under one mutex; network calls never hold it, and completions
// are tagged with a generation counter so results from a superseded
// event-type context are discarded.
type Orchestrator struct {
	apiClient SchedulingAPI
	cfg       *config.Config
	ident     *identity.Manager
	session   storage.Store
	nav       Navigator
	logger    *logging.Logger
	tokens    TokenSource

	beforeBook BeforeBookHook
	onSuccess  SuccessCallback
	onError    ErrorCallback
	onChange   func(State)

	mu sync.Mutex

	step  Step
	flags Flags

	eventTypes []api.EventType
	current    *api.EventType
	provided   bool // event type supplied at construction

	slots    api.SlotMap
	selected *api.Slot
	cache    *slotCache

	draft            Draft
	templates        []api.Template
	activeTemplate   *api.Template
	templateModified bool

	confirmed *api.ConfirmedBooking

	errState            *api.Error
	alternatives        []api.Slot
	suggestions         []api.SuggestedSlot
	templateSuggestions []api.Template
	paymentMessage      string

	paymentProvider    PaymentProvider
	stripeClientSecret string
	pendingSubmission  *api.CreateBookingRequest

	// generation invalidates in-flight loads for a superseded event
	// context; paypalHandled is the once-per-load resumption guard.
	generation    uint64
	paypalHandled bool

	now func() time.Time
}

// New constructs an Orchestrator. The initial step is SELECT_TIME when
// an event type or slug was supplied, SELECT_EVENT otherwise.
func New(opts Options) (*Orchestrator, error) {
	if opts.API == nil {
		return nil, errors.New("booking: scheduling API is required")
	}
	if opts.Config == nil {
		return nil, errors.New("booking: config is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	session := opts.SessionStore
	if session == nil {
		session = storage.NewMemory()
	}
	ident := opts.Identity
	if ident == nil {
		ident = identity.NewManager(session, storage.NewMemory(), logger)
	}
	nav := opts.Navigator
	if nav == nil {
		nav = NewMemoryNavigator("")
	}

	o := &Orchestrator{
		apiClient:       opts.API,
		cfg:             opts.Config,
		ident:           ident,
		session:         session,
		nav:             nav,
		logger:          logger.Component("booking"),
		tokens:          opts.TokenSource,
		beforeBook:      opts.BeforeBook,
		onSuccess:       opts.OnSuccess,
		onError:         opts.OnError,
		onChange:        opts.OnChange,
		cache:           newSlotCache(opts.Config.SlotCacheTTL),
		paymentProvider: ProviderStripe,
		draft:           Draft{Answers: make(map[string]any)},
		now:             time.Now,
	}

	if opts.ProvidedEventType != nil {
		et := *opts.ProvidedEventType
		o.current = &et
		o.provided = true
	}
	if o.current != nil || o.cfg.SingleEvent() {
		o.step = StepSelectTime
	} else {
		o.step = StepSelectEvent
	}
	return o, nil
}

// Initialize loads the widget's starting data. The PayPal-return
// resumption check runs first and, when a resumable return is
// detected, replaces normal initialization for this load cycle.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if handled := o.maybeResumePayPal(ctx); handled {
		return nil
	}

	o.mu.Lock()
	o.flags.Initializing = true
	current := o.current
	o.mu.Unlock()
	o.notify()

	defer func() {
		o.mu.Lock()
		o.flags.Initializing = false
		o.mu.Unlock()
		o.notify()
	}()

	switch {
	case current != nil:
		return o.enterSelectTime(ctx, current, false)
	case o.cfg.SingleEvent():
		et, err := o.fetchEventType(ctx, o.cfg.EventSlug)
		if err != nil {
			return err
		}
		return o.enterSelectTime(ctx, et, false)
	default:
		return o.loadEventTypes(ctx)
	}
}

func (o *Orchestrator) loadEventTypes(ctx context.Context) error {
	types, err := o.apiClient.ListEventTypes(ctx)
	if err != nil {
		o.setError(api.AsError(err))
		return err
	}
	o.mu.Lock()
	o.eventTypes = types
	o.step = StepSelectEvent
	o.mu.Unlock()
	o.notify()
	return nil
}

func (o *Orchestrator) fetchEventType(ctx context.Context, slug string) (*api.EventType, error) {
	o.mu.Lock()
	o.flags.FetchingEvent = true
	o.mu.Unlock()
	o.notify()

	et, err := o.apiClient.GetEventTypeBySlug(ctx, slug, o.cfg.EventOrg)

	o.mu.Lock()
	o.flags.FetchingEvent = false
	o.mu.Unlock()
	o.notify()

	if err != nil {
		o.setError(api.AsError(err))
		return nil, err
	}
	return et, nil
}

// SelectEvent transitions SELECT_EVENT -> SELECT_TIME for the event
// type with the given id, fetching full details by slug when the
// listed entry lacked them.
func (o *Orchestrator) SelectEvent(ctx context.Context, eventTypeID string) error {
	o.mu.Lock()
	var chosen *api.EventType
	for i := range o.eventTypes {
		if o.eventTypes[i].ID == eventTypeID {
			et := o.eventTypes[i]
			chosen = &et
			break
		}
	}
	o.mu.Unlock()

	if chosen == nil {
		return errors.New("booking: unknown event type id")
	}

	// Listings may omit the form schema; hydrate before confirming.
	if chosen.FormSchema == nil && chosen.Slug != "" {
		full, err := o.fetchEventType(ctx, chosen.Slug)
		if err != nil {
			return err
		}
		chosen = full
	}
	return o.enterSelectTime(ctx, chosen, false)
}

// enterSelectTime makes et the current event type and loads its slots
// and templates. Entering always clears slots, selection, active
// template, and any pending error state.
func (o *Orchestrator) enterSelectTime(ctx context.Context, et *api.EventType, forceRefresh bool) error {
	o.mu.Lock()
	o.generation++
	gen := o.generation
	o.current = et
	o.slots = nil
	o.selected = nil
	o.activeTemplate = nil
	o.templateModified = false
	o.clearErrorLocked()
	o.confirmed = nil
	o.stripeClientSecret = ""
	o.pendingSubmission = nil
	o.step = StepSelectTime
	o.mu.Unlock()
	o.notify()

	// Slot and template loads are independent; each applies only if
	// this event context is still current when it completes.
	err := o.loadSlots(ctx, gen, forceRefresh)
	o.loadTemplates(ctx, gen)
	return err
}

// LoadSlots fetches (or serves from cache) the current availability
// window. force bypasses the cache.
func (o *Orchestrator) LoadSlots(ctx context.Context, force bool) error {
	o.mu.Lock()
	gen := o.generation
	o.mu.Unlock()
	return o.loadSlots(ctx, gen, force)
}

func (o *Orchestrator) loadSlots(ctx context.Context, gen uint64, force bool) error {
	o.mu.Lock()
	if o.current == nil || o.generation != gen {
		o.mu.Unlock()
		return nil
	}
	eventTypeID := o.current.ID
	timezone := o.userTimezoneLocked()
	from, to := o.windowLocked()
	key := slotCacheKey(eventTypeID, from, to, timezone)

	if !force {
		if cached, ok := o.cache.get(key, o.now()); ok {
			o.slots = cached
			o.mu.Unlock()
			o.notify()
			return nil
		}
	}
	o.flags.LoadingSlots = true
	o.mu.Unlock()
	o.notify()

	slots, err := o.apiClient.GetSlots(ctx, api.SlotQuery{
		EventTypeID: eventTypeID,
		From:        from,
		To:          to,
		Timezone:    timezone,
	})

	o.mu.Lock()
	o.flags.LoadingSlots = false
	if o.generation != gen {
		// A newer event context took over while we were in flight.
		o.mu.Unlock()
		o.notify()
		return nil
	}
	if err != nil {
		o.mu.Unlock()
		o.notify()
		o.setError(api.AsError(err))
		return err
	}
	o.slots = slots
	o.cache.put(key, slots, o.now())
	o.mu.Unlock()
	o.notify()
	return nil
}

// SelectSlot marks the slot starting at start as the guest's choice.
func (o *Orchestrator) SelectSlot(start time.Time) error {
	o.mu.Lock()
	slot, ok := findSlot(o.slots, start)
	if !ok {
		o.mu.Unlock()
		return errors.New("booking: slot not available")
	}
	o.selected = &slot
	o.mu.Unlock()
	o.notify()
	return nil
}

// ConfirmSlot transitions SELECT_TIME -> CONFIRM. No-op without a
// selected slot.
func (o *Orchestrator) ConfirmSlot() {
	o.mu.Lock()
	if o.step == StepSelectTime && o.selected != nil {
		o.step = StepConfirm
	}
	o.mu.Unlock()
	o.notify()
}

// Back steps CONFIRM -> SELECT_TIME. Disabled when only one event type
// is offerable; single-event embeds have nowhere to step back to.
func (o *Orchestrator) Back() {
	o.mu.Lock()
	if o.step == StepConfirm && o.selectableEventsLocked() > 1 {
		o.step = StepSelectTime
	}
	o.mu.Unlock()
	o.notify()
}

// Restart leaves SUCCESS: back to SELECT_TIME with a forced slot
// refresh when the embed is pinned to one event, otherwise back to
// SELECT_EVENT.
func (o *Orchestrator) Restart(ctx context.Context) error {
	o.mu.Lock()
	if o.step != StepSuccess {
		o.mu.Unlock()
		return nil
	}
	pinned := o.provided || o.cfg.SingleEvent() || len(o.eventTypes) <= 1
	current := o.current
	o.confirmed = nil
	o.mu.Unlock()

	if pinned && current != nil {
		return o.enterSelectTime(ctx, current, true)
	}

	o.mu.Lock()
	o.generation++
	o.current = nil
	o.slots = nil
	o.selected = nil
	o.activeTemplate = nil
	o.templateModified = false
	o.clearErrorLocked()
	o.step = StepSelectEvent
	o.mu.Unlock()
	o.notify()
	return nil
}

// AutoFindSlot asks the backend for the single best slot and selects it.
func (o *Orchestrator) AutoFindSlot(ctx context.Context) error {
	o.mu.Lock()
	if o.current == nil {
		o.mu.Unlock()
		return errors.New("booking: no event type selected")
	}
	eventTypeID := o.current.ID
	timezone := o.userTimezoneLocked()
	o.flags.AutoFinding = true
	o.mu.Unlock()
	o.notify()

	slot, err := o.apiClient.AutoSuggestSlot(ctx, eventTypeID, timezone)

	o.mu.Lock()
	o.flags.AutoFinding = false
	if err != nil {
		o.mu.Unlock()
		o.notify()
		o.setError(api.AsError(err))
		return err
	}
	if slot != nil {
		o.selected = slot
	}
	o.mu.Unlock()
	o.notify()
	return nil
}

// UpdateDraft applies fn to the guest draft. Editing a field while a
// template is active marks the template as modified.
func (o *Orchestrator) UpdateDraft(fn func(*Draft)) {
	o.mu.Lock()
	fn(&o.draft)
	if o.activeTemplate != nil {
		o.templateModified = true
	}
	o.mu.Unlock()
	o.notify()
}

// SetPaymentProvider selects the pre-payment path for paid events.
func (o *Orchestrator) SetPaymentProvider(p PaymentProvider) {
	o.mu.Lock()
	o.paymentProvider = p
	o.mu.Unlock()
	o.notify()
}

// ClearError dismisses the current error and recovery state.
func (o *Orchestrator) ClearError() {
	o.mu.Lock()
	o.clearErrorLocked()
	o.mu.Unlock()
	o.notify()
}

// State returns an immutable snapshot of the orchestrator.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() State {
	s := State{
		Step:                o.step,
		Flags:               o.flags,
		EventTypes:          append([]api.EventType(nil), o.eventTypes...),
		Org:                 o.cfg.EventOrg,
		Slots:               o.slots,
		Draft:               o.draft,
		Templates:           append([]api.Template(nil), o.templates...),
		TemplateModified:    o.templateModified,
		Confirmed:           o.confirmed,
		Err:                 o.errState,
		Alternatives:        append([]api.Slot(nil), o.alternatives...),
		Suggestions:         append([]api.SuggestedSlot(nil), o.suggestions...),
		TemplateSuggestions: append([]api.Template(nil), o.templateSuggestions...),
		PaymentMessage:      o.paymentMessage,
		StripeClientSecret:  o.stripeClientSecret,
		PaymentProvider:     o.paymentProvider,
		UserTimezone:        o.userTimezoneLocked(),
	}
	if o.current != nil {
		et := *o.current
		s.EventType = &et
		s.CalendarTimezone = et.Timezone
	}
	if o.selected != nil {
		slot := *o.selected
		s.SelectedSlot = &slot
	}
	if o.activeTemplate != nil {
		tpl := *o.activeTemplate
		s.ActiveTemplate = &tpl
	}
	return s
}

func (o *Orchestrator) notify() {
	if o.onChange == nil {
		return
	}
	o.onChange(o.State())
}

func (o *Orchestrator) setError(err *api.Error) {
	o.mu.Lock()
	o.errState = err
	o.alternatives = err.Alternatives
	o.templateSuggestions = err.Suggestions
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) clearErrorLocked() {
	o.errState = nil
	o.alternatives = nil
	o.suggestions = nil
	o.templateSuggestions = nil
	o.paymentMessage = ""
}

func (o *Orchestrator) selectableEventsLocked() int {
	if o.provided || o.cfg.SingleEvent() {
		return 1
	}
	return len(o.eventTypes)
}

func (o *Orchestrator) userTimezoneLocked() string {
	if o.cfg.Timezone != "" {
		return o.cfg.Timezone
	}
	if o.current != nil && o.current.Timezone != "" {
		return o.current.Timezone
	}
	return "UTC"
}

// windowLocked returns the availability window as inclusive dates.
func (o *Orchestrator) windowLocked() (from, to string) {
	days := o.cfg.SlotWindowDays
	if days <= 0 {
		days = 7
	}
	start := o.now().UTC()
	end := start.AddDate(0, 0, days-1)
	return start.Format("2006-01-02"), end.Format("2006-01-02")
}
