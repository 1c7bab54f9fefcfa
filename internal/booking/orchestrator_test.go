package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BotCoder254/calemly-go-sdk/internal/api"
	"github.com/BotCoder254/calemly-go-sdk/internal/config"
	"github.com/BotCoder254/calemly-go-sdk/pkg/logging"
)

var slotBase = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// fakeAPI implements SchedulingAPI with per-method hooks and call
// counters. Unset hooks return benign defaults.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	listEventTypesFn     func(ctx context.Context) ([]api.EventType, error)
	getEventTypeFn       func(ctx context.Context, slug, org string) (*api.EventType, error)
	getSlotsFn           func(ctx context.Context, query api.SlotQuery) (api.SlotMap, error)
	createBookingFn      func(ctx context.Context, req api.CreateBookingRequest) (*api.ConfirmedBooking, error)
	getBookingFn         func(ctx context.Context, id string) (*api.ConfirmedBooking, error)
	listTemplatesFn      func(ctx context.Context, query api.TemplateQuery) ([]api.Template, error)
	clearPreferencesFn   func(ctx context.Context, contactToken string) error
	autoSuggestFn        func(ctx context.Context, eventTypeID, timezone string) (*api.Slot, error)
	conflictSuggestFn    func(ctx context.Context, eventTypeID string, desired time.Time, limit int) ([]api.SuggestedSlot, error)
	suggestionFeedbackFn func(ctx context.Context, fb api.SuggestionFeedback) error
	paymentInfoFn        func(ctx context.Context, eventTypeID string) (*api.PaymentInfo, error)
	stripeIntentFn       func(ctx context.Context, req api.StripeIntentRequest) (*api.StripeIntent, error)
	paypalOrderFn        func(ctx context.Context, req api.PayPalOrderRequest) (*api.PayPalOrder, error)
	paypalCaptureFn      func(ctx context.Context, orderID string) (*api.PayPalCapture, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: make(map[string]int)}
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeAPI) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) ListEventTypes(ctx context.Context) ([]api.EventType, error) {
	f.record("ListEventTypes")
	if f.listEventTypesFn != nil {
		return f.listEventTypesFn(ctx)
	}
	return []api.EventType{testEventType("et_1", "intro-call"), testEventType("et_2", "deep-dive")}, nil
}

func (f *fakeAPI) GetEventTypeBySlug(ctx context.Context, slug, org string) (*api.EventType, error) {
	f.record("GetEventTypeBySlug")
	if f.getEventTypeFn != nil {
		return f.getEventTypeFn(ctx, slug, org)
	}
	et := testEventType("et_1", slug)
	return &et, nil
}

func (f *fakeAPI) GetSlots(ctx context.Context, query api.SlotQuery) (api.SlotMap, error) {
	f.record("GetSlots")
	if f.getSlotsFn != nil {
		return f.getSlotsFn(ctx, query)
	}
	return testSlots(), nil
}

func (f *fakeAPI) CreateBooking(ctx context.Context, req api.CreateBookingRequest) (*api.ConfirmedBooking, error) {
	f.record("CreateBooking")
	if f.createBookingFn != nil {
		return f.createBookingFn(ctx, req)
	}
	return &api.ConfirmedBooking{
		ID:          "bk_1",
		EventTypeID: req.EventTypeID,
		Start:       req.Start,
		End:         req.End,
		GuestName:   req.Name,
		GuestEmail:  req.Email,
	}, nil
}

func (f *fakeAPI) GetBooking(ctx context.Context, id string) (*api.ConfirmedBooking, error) {
	f.record("GetBooking")
	if f.getBookingFn != nil {
		return f.getBookingFn(ctx, id)
	}
	return &api.ConfirmedBooking{ID: id}, nil
}

func (f *fakeAPI) ListTemplates(ctx context.Context, query api.TemplateQuery) ([]api.Template, error) {
	f.record("ListTemplates")
	if f.listTemplatesFn != nil {
		return f.listTemplatesFn(ctx, query)
	}
	return nil, nil
}

func (f *fakeAPI) ClearPreferences(ctx context.Context, contactToken string) error {
	f.record("ClearPreferences")
	if f.clearPreferencesFn != nil {
		return f.clearPreferencesFn(ctx, contactToken)
	}
	return nil
}

func (f *fakeAPI) AutoSuggestSlot(ctx context.Context, eventTypeID, timezone string) (*api.Slot, error) {
	f.record("AutoSuggestSlot")
	if f.autoSuggestFn != nil {
		return f.autoSuggestFn(ctx, eventTypeID, timezone)
	}
	slot := api.Slot{Start: slotBase, End: slotBase.Add(30 * time.Minute)}
	return &slot, nil
}

func (f *fakeAPI) GetConflictSuggestions(ctx context.Context, eventTypeID string, desired time.Time, limit int) ([]api.SuggestedSlot, error) {
	f.record("GetConflictSuggestions")
	if f.conflictSuggestFn != nil {
		return f.conflictSuggestFn(ctx, eventTypeID, desired, limit)
	}
	return nil, nil
}

func (f *fakeAPI) SubmitSuggestionFeedback(ctx context.Context, fb api.SuggestionFeedback) error {
	f.record("SubmitSuggestionFeedback")
	if f.suggestionFeedbackFn != nil {
		return f.suggestionFeedbackFn(ctx, fb)
	}
	return nil
}

func (f *fakeAPI) GetPaymentInfo(ctx context.Context, eventTypeID string) (*api.PaymentInfo, error) {
	f.record("GetPaymentInfo")
	if f.paymentInfoFn != nil {
		return f.paymentInfoFn(ctx, eventTypeID)
	}
	return &api.PaymentInfo{StripeEnabled: true, PayPalEnabled: true}, nil
}

func (f *fakeAPI) CreateStripeIntent(ctx context.Context, req api.StripeIntentRequest) (*api.StripeIntent, error) {
	f.record("CreateStripeIntent")
	if f.stripeIntentFn != nil {
		return f.stripeIntentFn(ctx, req)
	}
	return &api.StripeIntent{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil
}

func (f *fakeAPI) CreatePayPalOrder(ctx context.Context, req api.PayPalOrderRequest) (*api.PayPalOrder, error) {
	f.record("CreatePayPalOrder")
	if f.paypalOrderFn != nil {
		return f.paypalOrderFn(ctx, req)
	}
	return &api.PayPalOrder{OrderID: "ord_1", ApprovalURL: "https://paypal.example/approve/ord_1"}, nil
}

func (f *fakeAPI) CapturePayPalOrder(ctx context.Context, orderID string) (*api.PayPalCapture, error) {
	f.record("CapturePayPalOrder")
	if f.paypalCaptureFn != nil {
		return f.paypalCaptureFn(ctx, orderID)
	}
	return &api.PayPalCapture{OrderID: orderID, CaptureID: "cap_1", Status: "COMPLETED"}, nil
}

func testEventType(id, slug string) api.EventType {
	return api.EventType{
		ID:              id,
		Slug:            slug,
		Name:            "Intro Call",
		DurationMinutes: 30,
		Timezone:        "UTC",
	}
}

func testSlots() api.SlotMap {
	return api.SlotMap{
		"2026-03-02": {
			{Start: slotBase, End: slotBase.Add(30 * time.Minute)},
			{Start: slotBase.Add(time.Hour), End: slotBase.Add(90 * time.Minute)},
		},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		APIBaseURL:     "https://api.example.com",
		EmbedKey:       "ek_test",
		EmbedOrigin:    "https://host.example.com",
		SlotCacheTTL:   45 * time.Second,
		SlotWindowDays: 7,
	}
}

func newTestOrchestrator(t *testing.T, fake *fakeAPI, mutate func(*Options)) *Orchestrator {
	t.Helper()
	opts := Options{
		API:    fake,
		Config: testConfig(),
		Logger: logging.Discard(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	o, err := New(opts)
	require.NoError(t, err)
	return o
}

func fillDraft(o *Orchestrator) {
	o.UpdateDraft(func(d *Draft) {
		d.Name = "Ada Lovelace"
		d.Email = "ada@example.com"
	})
}

func TestInitializeListsEventTypes(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, nil)

	require.NoError(t, o.Initialize(context.Background()))

	s := o.State()
	assert.Equal(t, StepSelectEvent, s.Step)
	assert.Len(t, s.EventTypes, 2)
	assert.Equal(t, 1, fake.callCount("ListEventTypes"))
	assert.Equal(t, 0, fake.callCount("GetSlots"))
}

func TestSingleEventSkipsSelection(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
	})

	require.NoError(t, o.Initialize(context.Background()))

	s := o.State()
	assert.Equal(t, StepSelectTime, s.Step)
	require.NotNil(t, s.EventType)
	assert.Equal(t, "intro-call", s.EventType.Slug)
	assert.Equal(t, 1, fake.callCount("GetEventTypeBySlug"))
	assert.Equal(t, 1, fake.callCount("GetSlots"))
}

func TestSelectEventHydratesDetails(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, nil)
	require.NoError(t, o.Initialize(context.Background()))

	require.NoError(t, o.SelectEvent(context.Background(), "et_2"))

	s := o.State()
	assert.Equal(t, StepSelectTime, s.Step)
	// Listing entries carry no form schema, so the full record is
	// fetched by slug before entering time selection.
	assert.Equal(t, 1, fake.callCount("GetEventTypeBySlug"))
	assert.NotEmpty(t, s.Slots)
}

func TestSelectEventUnknownID(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, nil)
	require.NoError(t, o.Initialize(context.Background()))

	err := o.SelectEvent(context.Background(), "et_missing")
	assert.Error(t, err)
	assert.Equal(t, StepSelectEvent, o.State().Step)
}

func TestSlotCacheServesRepeatLoads(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
	})
	require.NoError(t, o.Initialize(context.Background()))
	require.Equal(t, 1, fake.callCount("GetSlots"))

	require.NoError(t, o.LoadSlots(context.Background(), false))
	require.NoError(t, o.LoadSlots(context.Background(), false))
	assert.Equal(t, 1, fake.callCount("GetSlots"), "cached window must not refetch")

	require.NoError(t, o.LoadSlots(context.Background(), true))
	assert.Equal(t, 2, fake.callCount("GetSlots"), "force bypasses the cache")
}

func TestSlotCacheExpires(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
	})
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return current }

	require.NoError(t, o.Initialize(context.Background()))
	require.Equal(t, 1, fake.callCount("GetSlots"))

	current = current.Add(46 * time.Second)
	require.NoError(t, o.LoadSlots(context.Background(), false))
	assert.Equal(t, 2, fake.callCount("GetSlots"))
}

func TestSuccessfulBookingInvalidatesSlotCache(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
	})
	require.NoError(t, o.Initialize(context.Background()))
	require.Equal(t, 1, fake.callCount("GetSlots"))

	require.NoError(t, o.SelectSlot(slotBase))
	o.ConfirmSlot()
	fillDraft(o)
	require.NoError(t, o.Submit(context.Background()))
	require.Equal(t, StepSuccess, o.State().Step)

	// The cached window for this event type was dropped on booking, so
	// the next load hits the network even within the TTL.
	require.NoError(t, o.LoadSlots(context.Background(), false))
	assert.Equal(t, 2, fake.callCount("GetSlots"))
}

func TestStaleSlotLoadDiscarded(t *testing.T) {
	fake := newFakeAPI()
	fake.getEventTypeFn = func(ctx context.Context, slug, org string) (*api.EventType, error) {
		if slug == "deep-dive" {
			return &api.EventType{ID: "et_2", Slug: slug, Name: "Deep Dive", DurationMinutes: 60, Timezone: "UTC"}, nil
		}
		et := testEventType("et_1", slug)
		return &et, nil
	}
	staleStarted := make(chan struct{})
	release := make(chan struct{})
	freshDay := slotBase.AddDate(0, 0, 1)
	fake.getSlotsFn = func(ctx context.Context, query api.SlotQuery) (api.SlotMap, error) {
		if query.EventTypeID == "et_1" {
			close(staleStarted)
			<-release
			return testSlots(), nil
		}
		return api.SlotMap{
			freshDay.Format("2006-01-02"): {{Start: freshDay, End: freshDay.Add(time.Hour)}},
		}, nil
	}
	o := newTestOrchestrator(t, fake, nil)
	require.NoError(t, o.Initialize(context.Background()))

	// First selection's slot fetch stalls in flight.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = o.SelectEvent(context.Background(), "et_1")
	}()
	<-staleStarted

	// Switching event types supersedes the stalled load.
	require.NoError(t, o.SelectEvent(context.Background(), "et_2"))
	close(release)
	wg.Wait()

	s := o.State()
	require.NotNil(t, s.EventType)
	assert.Equal(t, "et_2", s.EventType.ID)
	dayKey := freshDay.Format("2006-01-02")
	require.Contains(t, s.Slots, dayKey, "the newer event context keeps its own slots")
	for _, daySlots := range s.Slots {
		for _, slot := range daySlots {
			assert.False(t, slot.Start.Equal(slotBase), "a superseded load must not land")
		}
	}
}

func TestRestartSingleEventReturnsToTimeSelection(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
	})
	require.NoError(t, o.Initialize(context.Background()))
	require.Equal(t, 1, fake.callCount("GetSlots"))

	require.NoError(t, o.SelectSlot(slotBase))
	o.ConfirmSlot()
	fillDraft(o)
	require.NoError(t, o.Submit(context.Background()))
	require.Equal(t, StepSuccess, o.State().Step)

	require.NoError(t, o.Restart(context.Background()))

	s := o.State()
	assert.Equal(t, StepSelectTime, s.Step)
	assert.Nil(t, s.Confirmed)
	assert.Equal(t, 2, fake.callCount("GetSlots"), "pinned restart forces a slot refresh")
}

func TestConfirmRequiresSelectedSlot(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
	})
	require.NoError(t, o.Initialize(context.Background()))

	o.ConfirmSlot()
	assert.Equal(t, StepSelectTime, o.State().Step)

	require.NoError(t, o.SelectSlot(slotBase))
	o.ConfirmSlot()
	assert.Equal(t, StepConfirm, o.State().Step)
}

func TestSelectSlotUnknownStart(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
	})
	require.NoError(t, o.Initialize(context.Background()))

	err := o.SelectSlot(slotBase.Add(7 * time.Hour))
	assert.Error(t, err)
	assert.Nil(t, o.State().SelectedSlot)
}

func TestBackDisabledForSingleEvent(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
	})
	require.NoError(t, o.Initialize(context.Background()))
	require.NoError(t, o.SelectSlot(slotBase))
	o.ConfirmSlot()

	o.Back()
	assert.Equal(t, StepConfirm, o.State().Step)
}

func TestBackReturnsToTimeSelection(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, nil)
	require.NoError(t, o.Initialize(context.Background()))
	require.NoError(t, o.SelectEvent(context.Background(), "et_1"))
	require.NoError(t, o.SelectSlot(slotBase))
	o.ConfirmSlot()
	require.Equal(t, StepConfirm, o.State().Step)

	o.Back()
	assert.Equal(t, StepSelectTime, o.State().Step)
}

func TestRestartMultiEventReturnsToSelection(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, nil)
	require.NoError(t, o.Initialize(context.Background()))
	require.NoError(t, o.SelectEvent(context.Background(), "et_1"))
	require.NoError(t, o.SelectSlot(slotBase))
	o.ConfirmSlot()
	fillDraft(o)
	require.NoError(t, o.Submit(context.Background()))

	require.NoError(t, o.Restart(context.Background()))
	s := o.State()
	assert.Equal(t, StepSelectEvent, s.Step)
	assert.Nil(t, s.EventType)
	assert.Nil(t, s.Confirmed)
}

func TestAutoFindSlotSelects(t *testing.T) {
	fake := newFakeAPI()
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
	})
	require.NoError(t, o.Initialize(context.Background()))

	require.NoError(t, o.AutoFindSlot(context.Background()))
	s := o.State()
	require.NotNil(t, s.SelectedSlot)
	assert.True(t, s.SelectedSlot.Start.Equal(slotBase))
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	fake := newFakeAPI()
	var mu sync.Mutex
	var steps []Step
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
		opts.OnChange = func(s State) {
			mu.Lock()
			steps = append(steps, s.Step)
			mu.Unlock()
		}
	})
	require.NoError(t, o.Initialize(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, steps)
	assert.Equal(t, StepSelectTime, steps[len(steps)-1])
}

func TestApplyTemplateFillsDraft(t *testing.T) {
	fake := newFakeAPI()
	fake.listTemplatesFn = func(ctx context.Context, query api.TemplateQuery) ([]api.Template, error) {
		return []api.Template{{
			ID:    "tpl_1",
			Name:  "Ada Lovelace",
			Email: "ada@example.com",
			Phone: "+1 555 0100",
			Answers: map[string]any{
				"company": "Analytical Engines Ltd",
			},
		}}, nil
	}
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
	})
	require.NoError(t, o.Initialize(context.Background()))

	require.NoError(t, o.ApplyTemplate("tpl_1"))
	s := o.State()
	assert.Equal(t, "Ada Lovelace", s.Draft.Name)
	assert.Equal(t, "ada@example.com", s.Draft.Email)
	assert.Equal(t, "Analytical Engines Ltd", s.Draft.Answers["company"])
	require.NotNil(t, s.ActiveTemplate)
	assert.False(t, s.TemplateModified)

	// Editing any field marks the applied template as modified.
	o.UpdateDraft(func(d *Draft) { d.Notes = "bring the punch cards" })
	assert.True(t, o.State().TemplateModified)
}

func TestForgetPreferences(t *testing.T) {
	fake := newFakeAPI()
	fake.listTemplatesFn = func(ctx context.Context, query api.TemplateQuery) ([]api.Template, error) {
		return []api.Template{{ID: "tpl_1", Name: "Ada", Email: "ada@example.com"}}, nil
	}
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
	})
	require.NoError(t, o.Initialize(context.Background()))
	require.Len(t, o.State().Templates, 1)

	require.NoError(t, o.ForgetPreferences(context.Background()))
	assert.Empty(t, o.State().Templates)
	assert.Equal(t, 1, fake.callCount("ClearPreferences"))
}

func TestPollMeetingLink(t *testing.T) {
	fake := newFakeAPI()
	var polls int
	fake.getBookingFn = func(ctx context.Context, id string) (*api.ConfirmedBooking, error) {
		polls++
		booking := &api.ConfirmedBooking{ID: id}
		if polls >= 2 {
			booking.MeetingURL = "https://meet.example.com/bk_1"
		}
		return booking, nil
	}
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
	})
	require.NoError(t, o.Initialize(context.Background()))
	require.NoError(t, o.SelectSlot(slotBase))
	o.ConfirmSlot()
	fillDraft(o)
	require.NoError(t, o.Submit(context.Background()))

	o.PollMeetingLink(context.Background(), 5, time.Millisecond)

	s := o.State()
	require.NotNil(t, s.Confirmed)
	assert.Equal(t, "https://meet.example.com/bk_1", s.Confirmed.MeetingURL)
	assert.Equal(t, 2, polls)
}
