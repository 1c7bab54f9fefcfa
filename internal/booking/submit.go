package booking

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/BotCoder254/calemly-go-sdk/internal/api"
	"github.com/BotCoder254/calemly-go-sdk/internal/forms"
	"github.com/BotCoder254/calemly-go-sdk/internal/identity"
)

var tracer = otel.Tracer("calemly.internal.booking")

// Submit runs the full submission flow for the current draft: local
// validation, payload assembly, the before-book hook, then either the
// payment branch or direct booking creation. At most one submission
// may be in flight at a time.
func (o *Orchestrator) Submit(ctx context.Context) error {
	o.mu.Lock()
	if o.flags.Submitting {
		o.mu.Unlock()
		return ErrSubmitInFlight
	}
	if o.current == nil || o.selected == nil {
		o.mu.Unlock()
		err := &api.Error{
			Code:    api.CodeValidation,
			Message: "select a time before booking",
		}
		o.setError(err)
		return err
	}
	et := *o.current
	slot := *o.selected
	draft := o.draft
	provider := o.paymentProvider
	o.flags.Submitting = true
	o.clearErrorLocked()
	o.mu.Unlock()
	o.notify()

	finished := false
	defer func() {
		if finished {
			return
		}
		o.mu.Lock()
		o.flags.Submitting = false
		o.mu.Unlock()
		o.notify()
	}()

	ctx, span := tracer.Start(ctx, "booking.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("calemly.event_type_id", et.ID),
		attribute.String("calemly.slot_start", slot.Start.String()),
	)

	if err := o.validateDraft(&et, draft); err != nil {
		o.setError(err)
		o.invokeError(err, &et, &slot)
		return err
	}

	req := o.buildRequest(ctx, &et, slot, draft)

	if token, err := o.resolveToken(ctx); err != nil {
		apiErr := api.AsError(err)
		o.setError(apiErr)
		o.invokeError(apiErr, &et, &slot)
		return err
	} else if token != "" {
		req.WidgetToken = token
	}

	if o.beforeBook != nil && !o.beforeBook(ctx, &req) {
		err := &api.Error{
			Code:    api.CodeBookingCancelled,
			Message: "booking was cancelled before submission",
		}
		o.setError(err)
		o.invokeError(err, &et, &slot)
		return err
	}

	if et.RequiresPayment && et.PaymentEnabled {
		switch provider {
		case ProviderPayPal:
			return o.startPayPalFlow(ctx, &et, slot, req)
		default:
			return o.startStripeFlow(ctx, &et, slot, req)
		}
	}

	finished = true
	return o.createBooking(ctx, req, &et, slot)
}

// validateDraft performs all local checks. Failures never reach the
// network layer.
func (o *Orchestrator) validateDraft(et *api.EventType, draft Draft) *api.Error {
	fieldErrors := make(map[string]string)
	if draft.Name == "" {
		fieldErrors["name"] = "enter your name"
	}
	if draft.Email == "" {
		fieldErrors["email"] = "enter your email"
	} else if !forms.ValidEmail(draft.Email) {
		fieldErrors["email"] = "enter a valid email address"
	}
	if draft.Phone != "" && !forms.ValidPhone(draft.Phone) {
		fieldErrors["phone"] = "enter a valid phone number"
	}
	if draft.Honeypot != "" {
		fieldErrors["website"] = "submission rejected"
	}
	if et.FormSchema != nil {
		result := forms.Validate(et.FormSchema, draft.Answers)
		for id, msg := range result.Errors {
			fieldErrors[id] = msg
		}
	}
	if len(fieldErrors) == 0 {
		return nil
	}
	return &api.Error{
		Code:        api.CodeValidation,
		Message:     "please correct the highlighted fields",
		FieldErrors: fieldErrors,
	}
}

// buildRequest assembles the submission payload: draft fields, the
// per-scope client request id, and source attribution.
func (o *Orchestrator) buildRequest(ctx context.Context, et *api.EventType, slot api.Slot, draft Draft) api.CreateBookingRequest {
	o.mu.Lock()
	timezone := o.userTimezoneLocked()
	var templateID string
	templateUsed := false
	templateModified := o.templateModified
	if o.activeTemplate != nil {
		templateID = o.activeTemplate.ID
		templateUsed = true
	}
	o.mu.Unlock()

	return api.CreateBookingRequest{
		EventTypeID: et.ID,
		Start:       slot.Start,
		End:         slot.End,
		Timezone:    timezone,
		Name:        draft.Name,
		Email:       draft.Email,
		Phone:       draft.Phone,
		Notes:       draft.Notes,
		Answers:     draft.Answers,
		Honeypot:    draft.Honeypot,
		ClientRequestID: o.ident.ClientRequestID(ctx, identity.Scope{
			EventTypeID: et.ID,
			SlotStart:   slot.Start,
			SlotEnd:     slot.End,
			Email:       draft.Email,
		}),
		Source: api.SourceAttribution{
			EmbedOrigin:       o.cfg.EmbedOrigin,
			TrackingSessionID: o.ident.TrackingSessionID(ctx),
			ContactToken:      o.ident.ContactToken(ctx),
		},
		TemplateID:       templateID,
		TemplateUsed:     templateUsed,
		TemplateModified: templateModified,
		SavePreferences:  draft.SavePreferences,
		SetDefault:       draft.SetDefault,
	}
}

func (o *Orchestrator) resolveToken(ctx context.Context) (string, error) {
	if o.tokens == nil {
		return "", nil
	}
	return o.tokens.Token(ctx)
}

// startStripeFlow requests a payment intent and stashes its client
// secret for the payment UI. The booking is created only after
// ConfirmStripePayment.
func (o *Orchestrator) startStripeFlow(ctx context.Context, et *api.EventType, slot api.Slot, req api.CreateBookingRequest) error {
	ctx, span := tracer.Start(ctx, "booking.stripe_intent")
	defer span.End()
	span.SetAttributes(attribute.Int64("calemly.amount_cents", et.PriceCents))

	intent, err := o.apiClient.CreateStripeIntent(ctx, api.StripeIntentRequest{
		EventTypeID: et.ID,
		Email:       req.Email,
		Name:        req.Name,
	})
	if err != nil {
		apiErr := api.AsError(err)
		o.setError(apiErr)
		o.invokeError(apiErr, et, &slot)
		return err
	}

	o.mu.Lock()
	o.stripeClientSecret = intent.ClientSecret
	o.pendingSubmission = &req
	o.mu.Unlock()
	o.notify()
	return nil
}

// ConfirmStripePayment is called by the payment UI after Stripe
// confirms the charge; it creates the booking with the payment intent
// id attached. If confirmation failed, the caller simply does not call
// this and the guest may retry; no booking exists yet.
func (o *Orchestrator) ConfirmStripePayment(ctx context.Context, paymentIntentID string) error {
	o.mu.Lock()
	if o.pendingSubmission == nil || o.current == nil || o.selected == nil {
		o.mu.Unlock()
		err := &api.Error{
			Code:    api.CodeValidation,
			Message: "no payment in progress",
		}
		o.setError(err)
		return err
	}
	req := *o.pendingSubmission
	et := *o.current
	slot := *o.selected
	o.pendingSubmission = nil
	o.stripeClientSecret = ""
	o.flags.Submitting = true
	o.mu.Unlock()
	o.notify()

	req.StripePaymentIntentID = paymentIntentID
	return o.createBooking(ctx, req, &et, slot)
}

// createBooking is the shared creation path for free, post-Stripe, and
// post-PayPal submissions. It optimistically marks the target slot
// pending, reverts on failure, and on success removes the slot,
// stores the confirmed booking, and enters SUCCESS.
func (o *Orchestrator) createBooking(ctx context.Context, req api.CreateBookingRequest, et *api.EventType, slot api.Slot) error {
	ctx, span := tracer.Start(ctx, "booking.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("calemly.event_type_id", et.ID),
		attribute.String("calemly.client_request_id", req.ClientRequestID),
	)

	o.mu.Lock()
	o.flags.Submitting = true
	o.slots = setSlotPending(o.slots, slot, true)
	o.mu.Unlock()
	o.notify()

	confirmed, err := o.apiClient.CreateBooking(ctx, req)

	if err != nil {
		o.mu.Lock()
		o.slots = setSlotPending(o.slots, slot, false)
		o.flags.Submitting = false
		o.mu.Unlock()
		o.notify()
		o.handleBookingError(ctx, api.AsError(err), et, slot)
		return err
	}

	o.mu.Lock()
	o.slots = removeSlot(o.slots, slot)
	o.confirmed = confirmed
	o.selected = nil
	o.activeTemplate = nil
	o.templateModified = false
	o.clearErrorLocked()
	o.step = StepSuccess
	o.flags.Submitting = false
	o.cache.invalidateEvent(et.ID)
	o.mu.Unlock()
	o.notify()

	o.logger.Info("booking confirmed",
		"booking_id", confirmed.ID,
		"event_type_id", et.ID,
		"start", slot.Start,
	)
	if o.onSuccess != nil {
		o.onSuccess(confirmed, CallbackContext{EventType: et, Slot: &slot})
	}
	return nil
}

// handleBookingError stores the normalized error and runs the
// code-specific recovery: conflict suggestions for SLOT_CONFLICT,
// template suggestions for template errors.
func (o *Orchestrator) handleBookingError(ctx context.Context, apiErr *api.Error, et *api.EventType, slot api.Slot) {
	o.setError(apiErr)

	if apiErr.Code == api.CodeSlotConflict {
		o.loadConflictSuggestions(ctx, et, slot, apiErr.Alternatives)
	}

	o.invokeError(apiErr, et, &slot)
}

// loadConflictSuggestions fetches ranked alternatives near the desired
// time; when the suggestion service fails or returns nothing, it
// synthesizes a ranking from the inline alternatives with descending
// confidence (75, 65, ... floored at 40).
func (o *Orchestrator) loadConflictSuggestions(ctx context.Context, et *api.EventType, slot api.Slot, alternatives []api.Slot) {
	suggestions, err := o.apiClient.GetConflictSuggestions(ctx, et.ID, slot.Start, maxConflictSuggestions)
	if err != nil || len(suggestions) == 0 {
		if err != nil {
			o.logger.Debug("conflict suggestion service unavailable", "error", err)
		}
		suggestions = synthesizeSuggestions(alternatives)
	}
	o.mu.Lock()
	o.suggestions = suggestions
	o.mu.Unlock()
	o.notify()
}

// synthesizeSuggestions ranks inline conflict alternatives when no
// suggestion service result is available.
func synthesizeSuggestions(alternatives []api.Slot) []api.SuggestedSlot {
	if len(alternatives) == 0 {
		return nil
	}
	out := make([]api.SuggestedSlot, 0, len(alternatives))
	confidence := 75.0
	for _, slot := range alternatives {
		out = append(out, api.SuggestedSlot{Slot: slot, Confidence: confidence})
		confidence -= 10
		if confidence < 40 {
			confidence = 40
		}
	}
	return out
}

// AcceptSuggestion selects a ranked alternative after a conflict,
// clears the error state, and reports acceptance feedback in the
// background. Feedback failures never block or surface.
func (o *Orchestrator) AcceptSuggestion(ctx context.Context, suggestion api.SuggestedSlot, rank int) {
	o.mu.Lock()
	var original api.Slot
	if o.selected != nil {
		original = *o.selected
	}
	slot := suggestion.Slot
	o.selected = &slot
	var eventTypeID string
	if o.current != nil {
		eventTypeID = o.current.ID
	}
	o.clearErrorLocked()
	o.mu.Unlock()
	o.notify()

	go func() {
		fb := api.SuggestionFeedback{
			EventTypeID:   eventTypeID,
			OriginalStart: original.Start,
			ChosenStart:   slot.Start,
			Accepted:      true,
			Rank:          rank,
			Confidence:    suggestion.Confidence,
		}
		if err := o.apiClient.SubmitSuggestionFeedback(context.WithoutCancel(ctx), fb); err != nil {
			o.logger.Debug("suggestion feedback dropped", "error", err)
		}
	}()
}

// AcceptAlternative selects a plain inline alternative slot and clears
// the error state. No feedback is reported: no suggestion service was
// involved.
func (o *Orchestrator) AcceptAlternative(slot api.Slot) {
	o.mu.Lock()
	o.selected = &slot
	o.clearErrorLocked()
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) invokeError(err *api.Error, et *api.EventType, slot *api.Slot) {
	if o.onError == nil {
		return
	}
	o.onError(err, CallbackContext{EventType: et, Slot: slot})
}
