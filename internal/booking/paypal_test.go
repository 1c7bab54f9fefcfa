package booking

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BotCoder254/calemly-go-sdk/internal/api"
	"github.com/BotCoder254/calemly-go-sdk/internal/storage"
)

const embedPage = "https://host.example.com/book"

func paidEventFake() *fakeAPI {
	fake := newFakeAPI()
	fake.getEventTypeFn = func(ctx context.Context, slug, org string) (*api.EventType, error) {
		et := testEventType("et_1", slug)
		et.RequiresPayment = true
		et.PaymentEnabled = true
		et.PriceCents = 5000
		et.Currency = "usd"
		return &et, nil
	}
	return fake
}

func TestPayPalRedirectPersistsPendingBooking(t *testing.T) {
	fake := paidEventFake()
	session := storage.NewMemory()
	nav := NewMemoryNavigator(embedPage)
	o := readyOrchestrator(t, fake, func(opts *Options) {
		opts.SessionStore = session
		opts.Navigator = nav
	})
	o.SetPaymentProvider(ProviderPayPal)

	require.NoError(t, o.Submit(context.Background()))

	assert.Equal(t, 1, fake.callCount("CreatePayPalOrder"))
	assert.Equal(t, 0, fake.callCount("CreateBooking"))

	visited := nav.Visited()
	require.Len(t, visited, 1)
	assert.Equal(t, "https://paypal.example/approve/ord_1", visited[0])

	raw, err := session.Get(context.Background(), keyPendingPayPal)
	require.NoError(t, err)
	assert.Contains(t, raw, `"order_id":"ord_1"`)
}

func TestPayPalOrderCarriesCallbackURLs(t *testing.T) {
	fake := paidEventFake()
	var captured api.PayPalOrderRequest
	fake.paypalOrderFn = func(ctx context.Context, req api.PayPalOrderRequest) (*api.PayPalOrder, error) {
		captured = req
		return &api.PayPalOrder{OrderID: "ord_1", ApprovalURL: "https://paypal.example/approve/ord_1"}, nil
	}
	o := readyOrchestrator(t, fake, func(opts *Options) {
		opts.Navigator = NewMemoryNavigator(embedPage)
	})
	o.SetPaymentProvider(ProviderPayPal)

	require.NoError(t, o.Submit(context.Background()))

	assert.Equal(t, embedPage, captured.ReturnURL)
	cancel, err := url.Parse(captured.CancelURL)
	require.NoError(t, err)
	assert.Equal(t, "true", cancel.Query().Get("cancelled"))
}

// startPayPalAndReturn runs the redirect half of the flow and returns
// the shared session store, simulating the guest leaving for PayPal.
func startPayPalAndReturn(t *testing.T, fake *fakeAPI) storage.Store {
	t.Helper()
	session := storage.NewMemory()
	o := readyOrchestrator(t, fake, func(opts *Options) {
		opts.SessionStore = session
		opts.Navigator = NewMemoryNavigator(embedPage)
	})
	o.SetPaymentProvider(ProviderPayPal)
	require.NoError(t, o.Submit(context.Background()))
	return session
}

func TestPayPalReturnResumesBooking(t *testing.T) {
	fake := paidEventFake()
	var captured api.CreateBookingRequest
	fake.createBookingFn = func(ctx context.Context, req api.CreateBookingRequest) (*api.ConfirmedBooking, error) {
		captured = req
		return &api.ConfirmedBooking{ID: "bk_1", PaymentStatus: "paid", PaymentProvider: "paypal"}, nil
	}
	session := startPayPalAndReturn(t, fake)

	// The guest approves on PayPal and lands back with callback params.
	nav := NewMemoryNavigator(embedPage + "?token=ord_1&PayerID=PAYER7")
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
		opts.SessionStore = session
		opts.Navigator = nav
	})
	require.NoError(t, o.Initialize(context.Background()))

	assert.Equal(t, 1, fake.callCount("CapturePayPalOrder"))
	assert.Equal(t, 1, fake.callCount("CreateBooking"))
	assert.Equal(t, "ord_1", captured.PayPalOrderID)
	assert.Equal(t, "cap_1", captured.PayPalCaptureID)
	assert.NotEmpty(t, captured.ClientRequestID)

	s := o.State()
	assert.Equal(t, StepSuccess, s.Step)
	require.NotNil(t, s.Confirmed)
	assert.Equal(t, "bk_1", s.Confirmed.ID)

	// Callback params are stripped exactly once so a reload does not
	// re-trigger resumption.
	replaced := nav.Replaced()
	require.Len(t, replaced, 1)
	clean, err := url.Parse(replaced[0])
	require.NoError(t, err)
	assert.Empty(t, clean.Query().Get("token"))
	assert.Empty(t, clean.Query().Get("PayerID"))

	// The pending snapshot is consumed.
	_, err = session.Get(context.Background(), keyPendingPayPal)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPayPalResumptionRunsOnce(t *testing.T) {
	fake := paidEventFake()
	session := startPayPalAndReturn(t, fake)

	nav := NewMemoryNavigator(embedPage + "?token=ord_1&PayerID=PAYER7")
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
		opts.SessionStore = session
		opts.Navigator = nav
	})
	require.NoError(t, o.Initialize(context.Background()))
	require.Equal(t, 1, fake.callCount("CapturePayPalOrder"))

	require.NoError(t, o.Initialize(context.Background()))
	assert.Equal(t, 1, fake.callCount("CapturePayPalOrder"), "a second load cycle must not re-capture")
	assert.Equal(t, 1, fake.callCount("CreateBooking"))
}

func TestPayPalCancelledReturn(t *testing.T) {
	fake := paidEventFake()
	session := startPayPalAndReturn(t, fake)

	nav := NewMemoryNavigator(embedPage + "?cancelled=true")
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
		opts.SessionStore = session
		opts.Navigator = nav
	})
	require.NoError(t, o.Initialize(context.Background()))

	assert.Equal(t, 0, fake.callCount("CapturePayPalOrder"))
	assert.Equal(t, 0, fake.callCount("CreateBooking"))

	s := o.State()
	assert.Nil(t, s.Err)
	assert.Contains(t, s.PaymentMessage, "not been charged")

	_, err := session.Get(context.Background(), keyPendingPayPal)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	replaced := nav.Replaced()
	require.Len(t, replaced, 1)
	clean, perr := url.Parse(replaced[0])
	require.NoError(t, perr)
	assert.Empty(t, clean.Query().Get("cancelled"))
}

func TestPayPalReturnWithoutPendingBooking(t *testing.T) {
	fake := paidEventFake()

	nav := NewMemoryNavigator(embedPage + "?token=ord_9&PayerID=PAYER7")
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
		opts.Navigator = nav
	})
	require.NoError(t, o.Initialize(context.Background()))

	assert.Equal(t, 0, fake.callCount("CapturePayPalOrder"))
	s := o.State()
	require.NotNil(t, s.Err)
	assert.Contains(t, s.Err.Message, "expired")
	require.Len(t, nav.Replaced(), 1)
}

func TestPayPalTransientCaptureFailureKeepsPending(t *testing.T) {
	fake := paidEventFake()
	fake.paypalCaptureFn = func(ctx context.Context, orderID string) (*api.PayPalCapture, error) {
		return nil, &api.Error{Code: api.CodeGeneric, Message: "gateway timeout", Status: 504}
	}
	session := startPayPalAndReturn(t, fake)

	nav := NewMemoryNavigator(embedPage + "?token=ord_1&PayerID=PAYER7")
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
		opts.SessionStore = session
		opts.Navigator = nav
	})
	require.NoError(t, o.Initialize(context.Background()))

	require.NotNil(t, o.State().Err)
	assert.Equal(t, 0, fake.callCount("CreateBooking"))

	// The snapshot survives so a later load can retry the capture.
	_, err := session.Get(context.Background(), keyPendingPayPal)
	assert.NoError(t, err)
}

func TestPayPalDefinitiveCaptureFailureClearsPending(t *testing.T) {
	fake := paidEventFake()
	fake.paypalCaptureFn = func(ctx context.Context, orderID string) (*api.PayPalCapture, error) {
		return nil, &api.Error{Code: api.CodeGeneric, Message: "order voided", Status: 422}
	}
	session := startPayPalAndReturn(t, fake)

	nav := NewMemoryNavigator(embedPage + "?token=ord_1&PayerID=PAYER7")
	o := newTestOrchestrator(t, fake, func(opts *Options) {
		opts.Config.EventSlug = "intro-call"
		opts.SessionStore = session
		opts.Navigator = nav
	})
	require.NoError(t, o.Initialize(context.Background()))

	_, err := session.Get(context.Background(), keyPendingPayPal)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
