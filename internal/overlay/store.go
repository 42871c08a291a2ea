package overlay

import (
	"context"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
)

// Store keeps the latest text of each slot and serves it over HTTP.
// Slots that are not refreshed within the TTL expire.
type Store struct {
	cache       *cache.Cache
	defaultSlot string
}

var (
	_ Publisher    = (*Store)(nil)
	_ http.Handler = (*Store)(nil)
)

// NewStore creates a store. Requests without a slot parameter read
// defaultSlot.
func NewStore(ttl time.Duration, defaultSlot string) *Store {
	return &Store{
		cache:       cache.New(ttl, 2*ttl),
		defaultSlot: defaultSlot,
	}
}

func (s *Store) Name() string { return "store" }

func (s *Store) Publish(_ context.Context, slot, text string) error {
	s.cache.Set(slot, text, cache.DefaultExpiration)

	return nil
}

// Get returns the text of slot.
func (s *Store) Get(slot string) (string, bool) {
	v, ok := s.cache.Get(slot)
	if !ok {
		return "", false
	}

	text, ok := v.(string)

	return text, ok
}

func (s *Store) Close() error {
	s.cache.Flush()

	return nil
}

// ServeHTTP writes the text of the slot named by the "slot" query
// parameter.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	slot := r.URL.Query().Get("slot")
	if slot == "" {
		slot = s.defaultSlot
	}

	text, ok := s.Get(slot)
	if !ok {
		http.Error(w, "no overlay for slot "+slot, http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write([]byte(text))
}
