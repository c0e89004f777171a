package transport

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Response headers carrying the server's view of consumed weight.
var weightHeaders = []string{"X-MBX-USED-WEIGHT-1M", "X-MBX-USED-WEIGHT"}

// weightTracker mirrors the per-minute request weight the server
// reports, so callers can observe how close they run to the budget.
type weightTracker struct {
	mu      sync.Mutex
	used    int
	resetAt time.Time
	clock   clock.Clock
}

func newWeightTracker(clk clock.Clock) *weightTracker {
	if clk == nil {
		clk = clock.New()
	}
	return &weightTracker{clock: clk}
}

// record updates the tracker from response headers. The server value
// is authoritative for the current minute window.
func (w *weightTracker) record(h http.Header) {
	for _, name := range weightHeaders {
		raw := h.Get(name)
		if raw == "" {
			continue
		}
		used, err := strconv.Atoi(raw)
		if err != nil {
			return
		}
		w.mu.Lock()
		w.used = used
		w.resetAt = w.clock.Now().Truncate(time.Minute).Add(time.Minute)
		w.mu.Unlock()
		return
	}
}

// usage returns the weight consumed in the current minute window.
func (w *weightTracker) usage() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.resetAt.IsZero() && w.clock.Now().After(w.resetAt) {
		w.used = 0
	}
	return w.used
}
