package booking

import (
	"context"
	"errors"
	"time"

	"github.com/BotCoder254/calemly-go-sdk/internal/api"
	"github.com/BotCoder254/calemly-go-sdk/internal/forms"
)

// loadTemplates fetches saved templates for the returning guest keyed
// by contact token. Template loading is best-effort: failures are
// logged and the flow continues with an empty list.
func (o *Orchestrator) loadTemplates(ctx context.Context, gen uint64) {
	token := o.ident.ContactToken(ctx)
	if token == "" {
		return
	}

	templates, err := o.apiClient.ListTemplates(ctx, api.TemplateQuery{ContactToken: token})
	if err != nil {
		o.logger.Debug("template fetch failed", "error", err)
		return
	}

	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return
	}
	o.templates = templates
	o.mu.Unlock()
	o.notify()
}

// ApplyTemplate copies a saved template into the draft, overwriting the
// contact fields and answers. The template counts as unmodified until
// the guest edits a field.
func (o *Orchestrator) ApplyTemplate(templateID string) error {
	o.mu.Lock()
	defer func() {
		o.mu.Unlock()
		o.notify()
	}()

	for i := range o.templates {
		if o.templates[i].ID != templateID {
			continue
		}
		tpl := o.templates[i]
		o.activeTemplate = &tpl
		o.templateModified = false

		answers := make(forms.Answers, len(tpl.Answers))
		for k, v := range tpl.Answers {
			answers[k] = v
		}
		o.draft.Name = tpl.Name
		o.draft.Email = tpl.Email
		o.draft.Phone = tpl.Phone
		o.draft.Notes = tpl.Notes
		o.draft.Answers = answers
		return nil
	}
	return errors.New("booking: unknown template id")
}

// ClearTemplate detaches the active template without touching the
// draft the guest already sees.
func (o *Orchestrator) ClearTemplate() {
	o.mu.Lock()
	o.activeTemplate = nil
	o.templateModified = false
	o.mu.Unlock()
	o.notify()
}

// ForgetPreferences deletes the guest's saved templates server-side and
// drops them locally.
func (o *Orchestrator) ForgetPreferences(ctx context.Context) error {
	token := o.ident.ContactToken(ctx)
	if err := o.apiClient.ClearPreferences(ctx, token); err != nil {
		o.setError(api.AsError(err))
		return err
	}
	o.mu.Lock()
	o.templates = nil
	o.activeTemplate = nil
	o.templateModified = false
	o.mu.Unlock()
	o.notify()
	return nil
}

// PollMeetingLink refreshes the confirmed booking until its meeting URL
// appears or attempts run out. Used after success for conferencing
// backends that attach the link asynchronously. Failures are swallowed;
// the link simply stays absent.
func (o *Orchestrator) PollMeetingLink(ctx context.Context, attempts int, interval time.Duration) {
	o.mu.Lock()
	confirmed := o.confirmed
	o.mu.Unlock()
	if confirmed == nil || confirmed.MeetingURL != "" {
		return
	}

	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		booking, err := o.apiClient.GetBooking(ctx, confirmed.ID)
		if err != nil {
			o.logger.Debug("meeting link poll failed", "booking_id", confirmed.ID, "error", err)
			continue
		}
		if booking.MeetingURL == "" {
			continue
		}

		o.mu.Lock()
		if o.confirmed != nil && o.confirmed.ID == booking.ID {
			o.confirmed = booking
		}
		o.mu.Unlock()
		o.notify()
		return
	}
}
