package backend

import (
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sumup/ucheckout"
)

// idempotencyTTL is how long a charge result is replayed for its key.
const idempotencyTTL = 24 * time.Hour

type idempotencyEntry struct {
	fingerprint [sha256.Size]byte
	result      json.RawMessage
	created     time.Time
}

// idempotencyStore replays charge results keyed by the Idempotency-Key header
// so a redelivered request cannot charge twice.
type idempotencyStore struct {
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]*idempotencyEntry
}

func newIdempotencyStore(clock func() time.Time) *idempotencyStore {
	return &idempotencyStore{clock: clock, entries: make(map[string]*idempotencyEntry)}
}

// begin claims key for req. It returns the stored result when the same
// request already completed, or an error when the key is in flight or was
// used with different parameters. A nil result and nil error mean the caller
// owns the key and must call complete or abandon.
func (s *idempotencyStore) begin(key string, req ucheckout.ChargeRequest) (json.RawMessage, *Error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewInvalidRequestError("unable to fingerprint request")
	}
	fingerprint := sha256.Sum256(body)
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		if now.Sub(e.created) > idempotencyTTL {
			delete(s.entries, k)
		}
	}
	e, ok := s.entries[key]
	if !ok {
		s.entries[key] = &idempotencyEntry{fingerprint: fingerprint, created: now}
		return nil, nil
	}
	if e.fingerprint != fingerprint {
		return nil, NewHTTPError(http.StatusConflict, InvalidRequest, IdempotencyConflict,
			"Idempotency-Key was already used with different parameters")
	}
	if e.result == nil {
		return nil, NewHTTPError(http.StatusConflict, InvalidRequest, DuplicateRequest,
			"a request with this Idempotency-Key is in progress", WithRetryAfter(time.Second))
	}
	return e.result, nil
}

func (s *idempotencyStore) complete(key string, result json.RawMessage) {
	if key == "" {
		return
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.result = result
	}
}

func (s *idempotencyStore) abandon(key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}
