package fetcher

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kraklabs/crawlcache-core/internal/rategovernor"
)

// breakerFailureThreshold/breakerOpenTimeout/breakerHalfOpenProbes size
// the per-host gobreaker.CircuitBreaker: a host that fails
// breakerFailureThreshold consecutive requests trips open for
// breakerOpenTimeout before a single probe request
// (breakerHalfOpenProbes) is allowed through to test recovery.
const (
	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
	breakerHalfOpenProbes   = 1
)

// hostBreakers lazily creates one gobreaker.CircuitBreaker per host
// and, when a non-nil rategovernor.Backoff is configured, forwards
// every Open/Closed transition into it — a tripped breaker puts the
// host's domain into the Rate Governor's cool-down on top of the
// circuit's own fail-fast behavior, so the Priority Queue stops
// leasing that domain's URLs instead of just the Fetcher failing them
// fast one at a time.
type hostBreakers struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	backoff  *rategovernor.Backoff
}

func newHostBreakers(backoff *rategovernor.Backoff) *hostBreakers {
	return &hostBreakers{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		backoff:  backoff,
	}
}

func (h *hostBreakers) forHost(host string) *gobreaker.CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cb, ok := h.breakers[host]; ok {
		return cb
	}

	settings := gobreaker.Settings{
		Name:        host,
		MaxRequests: breakerHalfOpenProbes,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
	}
	if h.backoff != nil {
		settings.OnStateChange = func(name string, from gobreaker.State, to gobreaker.State) {
			switch to {
			case gobreaker.StateOpen:
				h.backoff.RecordFailure(name)
			case gobreaker.StateClosed:
				h.backoff.RecordSuccess(name)
			}
		}
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	h.breakers[host] = cb
	return cb
}
