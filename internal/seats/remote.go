package seats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Remote fetches and caches seat distributions per term from the local
// government service:
//
//	GET {base}/terms/{id}/seats        -> {"allocations":[{"party_id":1,"seats":10}]}
//	GET {base}/terms/effective?at=...  -> {"term_id":3}, 404 when none
type Remote struct {
	baseURL string
	mu      sync.RWMutex
	cache   map[uint]termSeats // term id -> distribution
	ttl     time.Duration
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

type termSeats struct {
	seats     map[uint]uint // party id -> seats
	fetchedAt time.Time
}

func NewRemote(baseURL string, ttl time.Duration, logger *slog.Logger) *Remote {
	if baseURL == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute // Distributions change once per term
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		cache:   map[uint]termSeats{},
		ttl:     ttl,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With("module", "seats", "layer", "adapter"),
		now:     time.Now,
	}
}

func (r *Remote) SeatCap(ctx context.Context, partyID, termID uint) (uint, bool, error) {
	// Fast path: cached and fresh
	r.mu.RLock()
	entry, ok := r.cache[termID]
	fresh := ok && r.now().Sub(entry.fetchedAt) <= r.ttl
	r.mu.RUnlock()

	if !fresh {
		var err error
		entry, err = r.refresh(ctx, termID)
		if err != nil {
			return 0, false, err
		}
	}
	seats, ok := entry.seats[partyID]
	return seats, ok, nil
}

func (r *Remote) refresh(ctx context.Context, termID uint) (termSeats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Double-check under lock
	if entry, ok := r.cache[termID]; ok && r.now().Sub(entry.fetchedAt) <= r.ttl {
		return entry, nil
	}

	seats, err := r.fetchTermSeats(ctx, termID)
	if err != nil {
		if stale, ok := r.cache[termID]; ok {
			r.logger.Warn("seat distribution refresh failed, serving stale copy",
				"event", "seats_remote_refresh_failed",
				"term_id", termID,
				"error", err.Error(),
			)
			return stale, nil
		}
		return termSeats{}, fmt.Errorf("fetch seats of term %d: %w", termID, err)
	}
	entry := termSeats{seats: seats, fetchedAt: r.now()}
	r.cache[termID] = entry
	r.logger.Debug("seat distribution cached",
		"event", "seats_remote_refreshed",
		"term_id", termID,
		"parties", len(seats),
	)
	return entry, nil
}

type seatsResp struct {
	Allocations []struct {
		PartyID uint `json:"party_id"`
		Seats   uint `json:"seats"`
	} `json:"allocations"`
}

func (r *Remote) fetchTermSeats(ctx context.Context, termID uint) (map[uint]uint, error) {
	var payload seatsResp
	found, err := r.getJSON(ctx, fmt.Sprintf("%s/terms/%d/seats", r.baseURL, termID), &payload)
	if err != nil {
		return nil, err
	}
	seats := make(map[uint]uint, len(payload.Allocations))
	if !found {
		return seats, nil
	}
	for _, a := range payload.Allocations {
		seats[a.PartyID] = a.Seats
	}
	return seats, nil
}

type effectiveTermResp struct {
	TermID uint `json:"term_id"`
}

// ResolveEffectiveTerm asks the service which term applies; the answer
// depends on the clock and is not cached.
func (r *Remote) ResolveEffectiveTerm(ctx context.Context, sessionID *uint, at time.Time) (uint, bool, error) {
	q := url.Values{}
	q.Set("at", at.UTC().Format(time.RFC3339))
	if sessionID != nil {
		q.Set("session", strconv.FormatUint(uint64(*sessionID), 10))
	}
	var payload effectiveTermResp
	found, err := r.getJSON(ctx, r.baseURL+"/terms/effective?"+q.Encode(), &payload)
	if err != nil {
		return 0, false, fmt.Errorf("resolve effective term: %w", err)
	}
	if !found || payload.TermID == 0 {
		return 0, false, nil
	}
	return payload.TermID, true, nil
}

func (r *Remote) getJSON(ctx context.Context, u string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}
