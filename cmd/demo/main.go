// Command demo runs the SDK against an in-process fake scheduling
// backend: it lists event types, picks one, loads slots, fills a guest
// draft, and books the first available slot. Prometheus metrics for the
// API client are served on /metrics while the demo runs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BotCoder254/calemly-go-sdk/internal/api"
	"github.com/BotCoder254/calemly-go-sdk/internal/booking"
	"github.com/BotCoder254/calemly-go-sdk/internal/config"
	"github.com/BotCoder254/calemly-go-sdk/internal/widgettoken"
	"github.com/BotCoder254/calemly-go-sdk/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, os.Stdout)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		logger.Error("failed to bind demo backend", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	backend := newFakeBackend()
	srv := &http.Server{Handler: backend.router(reg)}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("demo backend error", "error", serveErr)
		}
	}()
	defer srv.Close()

	baseURL := "http://" + ln.Addr().String()
	logger.Info("demo backend listening", "url", baseURL, "metrics", baseURL+"/metrics")

	cfg.APIBaseURL = baseURL
	if cfg.EmbedKey == "" {
		cfg.EmbedKey = "ek_demo"
	}
	if cfg.EmbedOrigin == "" {
		cfg.EmbedOrigin = "https://demo.calemly.dev"
	}

	client, err := api.New(api.Config{
		BaseURL:     cfg.APIBaseURL,
		EmbedKey:    cfg.EmbedKey,
		EmbedOrigin: cfg.EmbedOrigin,
		Timeout:     cfg.RequestTimeout,
		MaxRetries:  cfg.MaxRetries,
		Logger:      logger,
		Metrics:     api.NewMetrics(reg),
	})
	if err != nil {
		logger.Error("failed to build API client", "error", err)
		os.Exit(1)
	}

	tokens := widgettoken.New(widgettoken.APIIssuer{Client: client}, nil, logger)

	orchestrator, err := booking.New(booking.Options{
		API:         client,
		Config:      cfg,
		Logger:      logger,
		TokenSource: tokens,
		OnChange: func(s booking.State) {
			logger.Debug("state changed", "step", s.Step, "loading_slots", s.Flags.LoadingSlots)
		},
		OnSuccess: func(confirmed *api.ConfirmedBooking, cbCtx booking.CallbackContext) {
			logger.Info("booking confirmed via callback", "booking_id", confirmed.ID)
		},
	})
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	if runErr := runScriptedFlow(orchestrator, logger); runErr != nil {
		logger.Error("demo flow failed", "error", runErr)
		os.Exit(1)
	}

	resp, err := http.Get(baseURL + "/metrics")
	if err == nil {
		defer resp.Body.Close()
		logger.Info("metrics endpoint responded", "status", resp.StatusCode)
	}
}

func runScriptedFlow(o *booking.Orchestrator, logger *logging.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := o.Initialize(ctx); err != nil {
		return fmt.Errorf("demo: initialize: %w", err)
	}

	s := o.State()
	logger.Info("event types loaded", "count", len(s.EventTypes))
	if len(s.EventTypes) == 0 {
		return fmt.Errorf("demo: backend returned no event types")
	}
	if err := o.SelectEvent(ctx, s.EventTypes[0].ID); err != nil {
		return fmt.Errorf("demo: select event: %w", err)
	}

	s = o.State()
	var first *api.Slot
	for _, daySlots := range s.Slots {
		for i := range daySlots {
			if first == nil || daySlots[i].Start.Before(first.Start) {
				slot := daySlots[i]
				first = &slot
			}
		}
	}
	if first == nil {
		return fmt.Errorf("demo: no slots available")
	}
	logger.Info("selecting earliest slot", "start", first.Start)

	if err := o.SelectSlot(first.Start); err != nil {
		return fmt.Errorf("demo: select slot: %w", err)
	}
	o.ConfirmSlot()

	o.UpdateDraft(func(d *booking.Draft) {
		d.Name = "Demo Guest"
		d.Email = "guest@example.com"
		d.Notes = "booked by cmd/demo"
	})

	if err := o.Submit(ctx); err != nil {
		return fmt.Errorf("demo: submit: %w", err)
	}

	s = o.State()
	if s.Confirmed == nil {
		return fmt.Errorf("demo: no confirmed booking in state")
	}
	logger.Info("booking complete",
		"booking_id", s.Confirmed.ID,
		"start", s.Confirmed.Start,
		"step", s.Step,
	)

	o.PollMeetingLink(ctx, 3, 50*time.Millisecond)
	if link := o.State().Confirmed.MeetingURL; link != "" {
		logger.Info("meeting link ready", "url", link)
	}
	return nil
}

// fakeBackend is a minimal in-memory scheduling service speaking the
// wire protocol the client expects.
type fakeBackend struct {
	mu       sync.Mutex
	events   []api.EventType
	bookings map[string]*api.ConfirmedBooking
	booked   map[string]bool // event id | RFC3339 start
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		events: []api.EventType{
			{
				ID:              "et_intro",
				Slug:            "intro-call",
				Name:            "Intro Call",
				Description:     "A 30 minute introduction",
				DurationMinutes: 30,
				Timezone:        "UTC",
			},
			{
				ID:              "et_deep",
				Slug:            "deep-dive",
				Name:            "Deep Dive",
				DurationMinutes: 60,
				Timezone:        "UTC",
			},
		},
		bookings: make(map[string]*api.ConfirmedBooking),
		booked:   make(map[string]bool),
	}
}

func (b *fakeBackend) router(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/v1/embed/event-types", b.listEventTypes)
	r.Get("/v1/event-types/{slug}", b.getEventType)
	r.Get("/v1/event-types/{id}/slots", b.getSlots)
	r.Post("/v1/bookings", b.createBooking)
	r.Get("/v1/bookings/{id}", b.getBooking)
	r.Get("/v1/templates", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"templates": []api.Template{}})
	})
	r.Post("/v1/embed/token", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, api.WidgetToken{
			Token:     "demo." + uuid.NewString(),
			ExpiresAt: time.Now().Add(10 * time.Minute),
		})
	})
	return r
}

func (b *fakeBackend) listEventTypes(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"event_types": b.events})
}

func (b *fakeBackend) getEventType(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, et := range b.events {
		if et.Slug == slug || et.ID == slug {
			writeJSON(w, http.StatusOK, et)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "event type not found"})
}

func (b *fakeBackend) getSlots(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()

	var duration time.Duration
	for _, et := range b.events {
		if et.ID == eventID {
			duration = time.Duration(et.DurationMinutes) * time.Minute
		}
	}
	if duration == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "event type not found"})
		return
	}

	// Two business-hour slots per day for the coming week.
	slots := make(api.SlotMap)
	day := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	for i := 0; i < 7; i++ {
		date := day.AddDate(0, 0, i)
		for _, hour := range []int{10, 15} {
			start := date.Add(time.Duration(hour) * time.Hour)
			if b.booked[eventID+"|"+start.Format(time.RFC3339)] {
				continue
			}
			key := date.Format("2006-01-02")
			slots[key] = append(slots[key], api.Slot{Start: start, End: start.Add(duration)})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (b *fakeBackend) createBooking(w http.ResponseWriter, r *http.Request) {
	var req api.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed payload"})
		return
	}
	if req.Honeypot != "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "rejected"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	slotKey := req.EventTypeID + "|" + req.Start.UTC().Format(time.RFC3339)
	if b.booked[slotKey] {
		// Same client request id means a retried submission, not a
		// conflict: return the original booking.
		for _, existing := range b.bookings {
			if strings.HasPrefix(existing.ID, "bk_") && existing.Start.Equal(req.Start) && existing.GuestEmail == req.Email {
				writeJSON(w, http.StatusOK, existing)
				return
			}
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"message": "slot already booked",
			"code":    "SLOT_CONFLICT",
		})
		return
	}

	confirmed := &api.ConfirmedBooking{
		ID:          "bk_" + uuid.NewString()[:8],
		EventTypeID: req.EventTypeID,
		Start:       req.Start,
		End:         req.End,
		GuestName:   req.Name,
		GuestEmail:  req.Email,
		MeetingURL:  "https://meet.calemly.dev/" + uuid.NewString()[:8],
	}
	b.booked[slotKey] = true
	b.bookings[confirmed.ID] = confirmed
	writeJSON(w, http.StatusCreated, confirmed)
}

func (b *fakeBackend) getBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if bk, ok := b.bookings[id]; ok {
		writeJSON(w, http.StatusOK, bk)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "booking not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
