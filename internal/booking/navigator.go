package booking

import (
	"net/url"
	"sync"
)

// Navigator abstracts the host environment's notion of "the current
// page": reading its URL, navigating away (PayPal approval redirect),
// and rewriting the URL without adding a history entry (stripping
// callback parameters after resumption).
type Navigator interface {
	// CurrentURL returns the current page URL, or nil when the host
	// has no page concept.
	CurrentURL() *url.URL
	// Navigate performs a full navigation away from the widget.
	Navigate(rawURL string) error
	// ReplaceURL rewrites the current URL in place, replacing history
	// state rather than pushing a new entry.
	ReplaceURL(rawURL string) error
}

// MemoryNavigator is an in-process Navigator for tests, demos, and
// hosts without a real navigation surface.
type MemoryNavigator struct {
	mu       sync.Mutex
	current  *url.URL
	visited  []string
	replaced []string
}

// NewMemoryNavigator starts at rawURL (may be empty).
func NewMemoryNavigator(rawURL string) *MemoryNavigator {
	n := &MemoryNavigator{}
	if rawURL != "" {
		if u, err := url.Parse(rawURL); err == nil {
			n.current = u
		}
	}
	return n
}

func (n *MemoryNavigator) CurrentURL() *url.URL {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return nil
	}
	clone := *n.current
	return &clone
}

func (n *MemoryNavigator) Navigate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.current = u
	n.visited = append(n.visited, rawURL)
	n.mu.Unlock()
	return nil
}

func (n *MemoryNavigator) ReplaceURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.current = u
	n.replaced = append(n.replaced, rawURL)
	n.mu.Unlock()
	return nil
}

// Visited returns every full navigation performed, oldest first.
func (n *MemoryNavigator) Visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visited...)
}

// Replaced returns every in-place URL rewrite, oldest first.
func (n *MemoryNavigator) Replaced() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.replaced...)
}
