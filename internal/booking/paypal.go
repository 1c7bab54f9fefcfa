package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"go.opentelemetry.io/otel/attribute"

	"github.com/BotCoder254/calemly-go-sdk/internal/api"
	"github.com/BotCoder254/calemly-go-sdk/internal/storage"
)

const keyPendingPayPal = "pending_paypal_booking"

// startPayPalFlow creates a PayPal order, persists a frozen submission
// snapshot for the post-approval return, and navigates to the approval
// page. The booking itself is created on return, after capture.
func (o *Orchestrator) startPayPalFlow(ctx context.Context, et *api.EventType, slot api.Slot, req api.CreateBookingRequest) error {
	ctx, span := tracer.Start(ctx, "booking.paypal_order")
	defer span.End()
	span.SetAttributes(attribute.Int64("calemly.amount_cents", et.PriceCents))

	returnURL, cancelURL := o.callbackURLs()
	order, err := o.apiClient.CreatePayPalOrder(ctx, api.PayPalOrderRequest{
		EventTypeID: et.ID,
		Email:       req.Email,
		Name:        req.Name,
		ReturnURL:   returnURL,
		CancelURL:   cancelURL,
	})
	if err != nil {
		apiErr := api.AsError(err)
		o.setError(apiErr)
		o.invokeError(apiErr, et, &slot)
		return err
	}

	req.PayPalOrderID = order.OrderID
	o.persistPendingPayPal(ctx, PendingPayPalBooking{
		OrderID:   order.OrderID,
		Request:   req,
		Slot:      slot,
		EventType: *et,
		Timezone:  req.Timezone,
		CreatedAt: o.now(),
	})

	if err := o.nav.Navigate(order.ApprovalURL); err != nil {
		o.clearPendingPayPal(ctx)
		apiErr := &api.Error{Code: api.CodeGeneric, Message: "could not open the PayPal approval page"}
		o.setError(apiErr)
		o.invokeError(apiErr, et, &slot)
		return err
	}
	return nil
}

// callbackURLs derives the PayPal return and cancel URLs from the
// current page so the guest lands back on the embedding page.
func (o *Orchestrator) callbackURLs() (returnURL, cancelURL string) {
	u := o.nav.CurrentURL()
	if u == nil {
		return "", ""
	}
	returnURL = u.String()

	cancel := *u
	q := cancel.Query()
	q.Set("cancelled", "true")
	cancel.RawQuery = q.Encode()
	return returnURL, cancel.String()
}

// maybeResumePayPal inspects the current URL for PayPal callback
// parameters and, when present, completes or cancels the interrupted
// submission. It runs at most once per load cycle and reports whether
// it consumed the callback.
func (o *Orchestrator) maybeResumePayPal(ctx context.Context) bool {
	o.mu.Lock()
	if o.paypalHandled {
		o.mu.Unlock()
		return false
	}
	o.mu.Unlock()

	u := o.nav.CurrentURL()
	if u == nil {
		return false
	}
	q := u.Query()
	orderToken := q.Get("token")
	cancelled := q.Get("cancelled") == "true"
	if orderToken == "" && !cancelled {
		return false
	}

	o.mu.Lock()
	o.paypalHandled = true
	o.mu.Unlock()

	defer o.stripCallbackParams(u)

	if cancelled {
		o.clearPendingPayPal(ctx)
		o.mu.Lock()
		o.clearErrorLocked()
		o.paymentMessage = "Payment was cancelled. You have not been charged."
		o.mu.Unlock()
		o.notify()
		o.logger.Info("paypal approval cancelled by guest")
		return true
	}

	pending, err := o.loadPendingPayPal(ctx)
	if err != nil || pending == nil || pending.OrderID != orderToken {
		// The snapshot is gone or belongs to a different order. The
		// approval cannot be tied to a submission, so ask the guest to
		// start over. No capture happened, so no charge either.
		o.clearPendingPayPal(ctx)
		o.setError(&api.Error{
			Code:    api.CodeGeneric,
			Message: "Your payment session expired before the booking could be completed. Please pick a time and try again. You have not been charged.",
		})
		o.logger.Warn("paypal return without matching pending booking", "order_id", orderToken)
		return true
	}

	o.resumePayPalBooking(ctx, pending)
	return true
}

// resumePayPalBooking captures the approved order and creates the
// booking from the frozen snapshot. The snapshot is kept only when the
// capture failed transiently, so a reload can try again.
func (o *Orchestrator) resumePayPalBooking(ctx context.Context, pending *PendingPayPalBooking) {
	ctx, span := tracer.Start(ctx, "booking.paypal_resume")
	defer span.End()
	span.SetAttributes(attribute.String("calemly.paypal_order_id", pending.OrderID))

	o.mu.Lock()
	et := pending.EventType
	slot := pending.Slot
	o.current = &et
	o.selected = &slot
	o.step = StepConfirm
	o.flags.Submitting = true
	o.mu.Unlock()
	o.notify()

	capture, err := o.apiClient.CapturePayPalOrder(ctx, pending.OrderID)
	if err != nil {
		apiErr := api.AsError(err)
		if !apiErr.Retryable() {
			o.clearPendingPayPal(ctx)
		}
		o.mu.Lock()
		o.flags.Submitting = false
		o.mu.Unlock()
		o.setError(apiErr)
		o.invokeError(apiErr, &et, &slot)
		o.logger.Error("paypal capture failed", "order_id", pending.OrderID, "error", err)
		return
	}

	req := pending.Request
	req.PayPalCaptureID = capture.CaptureID

	if err := o.createBooking(ctx, req, &et, slot); err != nil {
		// The charge went through but the booking did not. Keep the
		// snapshot for transient failures so a reload retries with the
		// same client request id and capture.
		if !api.AsError(err).Retryable() {
			o.clearPendingPayPal(ctx)
		}
		return
	}
	o.clearPendingPayPal(ctx)
}

// stripCallbackParams removes the PayPal callback parameters from the
// page URL in place so a reload does not re-trigger resumption.
func (o *Orchestrator) stripCallbackParams(u *url.URL) {
	clean := *u
	q := clean.Query()
	q.Del("token")
	q.Del("PayerID")
	q.Del("cancelled")
	clean.RawQuery = q.Encode()
	if err := o.nav.ReplaceURL(clean.String()); err != nil {
		o.logger.Debug("failed to strip callback params", "error", err)
	}
}

func (o *Orchestrator) persistPendingPayPal(ctx context.Context, pending PendingPayPalBooking) {
	raw, err := json.Marshal(pending)
	if err != nil {
		return
	}
	if err := o.session.Set(ctx, keyPendingPayPal, string(raw), 0); err != nil {
		// Degraded storage: the redirect still proceeds, resumption
		// will report an expired session instead.
		o.logger.Warn("failed to persist pending paypal booking", "error", err)
	}
}

func (o *Orchestrator) loadPendingPayPal(ctx context.Context) (*PendingPayPalBooking, error) {
	raw, err := o.session.Get(ctx, keyPendingPayPal)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var pending PendingPayPalBooking
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return nil, err
	}
	return &pending, nil
}

func (o *Orchestrator) clearPendingPayPal(ctx context.Context) {
	if err := o.session.Delete(ctx, keyPendingPayPal); err != nil && !errors.Is(err, storage.ErrNotFound) {
		o.logger.Debug("failed to clear pending paypal booking", "error", err)
	}
}
