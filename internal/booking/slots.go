package booking

import (
	"strings"
	"time"

	"github.com/BotCoder254/calemly-go-sdk/internal/api"
)

// slotCache memoizes availability fetches keyed by
// (event type id, window start, window end, timezone).
type slotCache struct {
	ttl     time.Duration
	entries map[string]slotCacheEntry
}

type slotCacheEntry struct {
	slots     api.SlotMap
	expiresAt time.Time
}

func newSlotCache(ttl time.Duration) *slotCache {
	return &slotCache{
		ttl:     ttl,
		entries: make(map[string]slotCacheEntry),
	}
}

func slotCacheKey(eventTypeID, from, to, timezone string) string {
	return strings.Join([]string{eventTypeID, from, to, timezone}, "|")
}

func (c *slotCache) get(key string, now time.Time) (api.SlotMap, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.slots, true
}

func (c *slotCache) put(key string, slots api.SlotMap, now time.Time) {
	c.entries[key] = slotCacheEntry{slots: slots, expiresAt: now.Add(c.ttl)}
}

// invalidateEvent drops every cached window for an event type. Called
// after a successful booking so the just-booked slot is never
// re-offered from stale cache.
func (c *slotCache) invalidateEvent(eventTypeID string) {
	prefix := eventTypeID + "|"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// setSlotPending returns a copy of the slot map with the matching
// slot's pending flag set. Copy-on-write: callers may hold references
// to the previous map.
func setSlotPending(slots api.SlotMap, target api.Slot, pending bool) api.SlotMap {
	out := make(api.SlotMap, len(slots))
	for date, daySlots := range slots {
		copied := make([]api.Slot, len(daySlots))
		copy(copied, daySlots)
		for i := range copied {
			if copied[i].Start.Equal(target.Start) && copied[i].End.Equal(target.End) {
				copied[i].Pending = pending
			}
		}
		out[date] = copied
	}
	return out
}

// removeSlot returns a copy of the slot map without the target slot.
// Empty date buckets are dropped.
func removeSlot(slots api.SlotMap, target api.Slot) api.SlotMap {
	out := make(api.SlotMap, len(slots))
	for date, daySlots := range slots {
		kept := make([]api.Slot, 0, len(daySlots))
		for _, slot := range daySlots {
			if slot.Start.Equal(target.Start) && slot.End.Equal(target.End) {
				continue
			}
			kept = append(kept, slot)
		}
		if len(kept) > 0 {
			out[date] = kept
		}
	}
	return out
}

// findSlot locates a slot by start time in the map.
func findSlot(slots api.SlotMap, start time.Time) (api.Slot, bool) {
	for _, daySlots := range slots {
		for _, slot := range daySlots {
			if slot.Start.Equal(start) {
				return slot, true
			}
		}
	}
	return api.Slot{}, false
}
