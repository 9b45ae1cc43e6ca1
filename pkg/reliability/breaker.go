package reliability

import (
	"sync"
	"time"

	"anistream/pkg/logger"
)

// State is the circuit breaker state for one provider.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Defaults per provider record.
const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
)

// record is the breaker state for one provider name. Records are created
// lazily on first use and live for the process lifetime.
type record struct {
	state        State
	failures     int
	lastFailure  time.Time
	lastAttempt  time.Time
	trialPending bool // HalfOpen admits exactly one trial call
	lastLatency  time.Duration
}

// Breaker holds one circuit record per provider name. Go runs callers on
// real threads, so unlike a cooperative single-threaded runtime every
// read-modify-write here is guarded by the mutex.
type Breaker struct {
	mu           sync.Mutex
	records      map[string]*record
	threshold    int
	resetTimeout time.Duration
	now          func() time.Time
}

// NewBreaker builds a breaker registry. Non-positive arguments fall back to
// the defaults (threshold 5, reset 30s).
func NewBreaker(threshold int, resetTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}
	return &Breaker{
		records:      make(map[string]*record),
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

func (b *Breaker) get(name string) *record {
	r, ok := b.records[name]
	if !ok {
		r = &record{}
		b.records[name] = r
	}
	return r
}

// Allow reports whether a call to name may proceed. Reading an Open record
// past its reset timeout transitions it to HalfOpen and admits exactly that
// one trial; every other caller is rejected with ErrCircuitOpen until the
// trial's outcome is recorded.
func (b *Breaker) Allow(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.get(name)
	r.lastAttempt = b.now()
	switch r.state {
	case Closed:
		return nil
	case Open:
		if b.now().Sub(r.lastFailure) > b.resetTimeout {
			r.state = HalfOpen
			r.trialPending = true
			logger.Info("circuit half-open, admitting trial call", "provider", name)
			return nil
		}
		return ErrCircuitOpen
	default: // HalfOpen
		if r.trialPending {
			return ErrCircuitOpen
		}
		r.trialPending = true
		return nil
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (b *Breaker) RecordSuccess(name string, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.get(name)
	if r.state != Closed {
		logger.Info("circuit closed", "provider", name)
	}
	r.state = Closed
	r.failures = 0
	r.trialPending = false
	r.lastLatency = latency
}

// RecordFailure increments the failure count, trips the circuit at the
// threshold, and reopens it when a half-open trial fails.
func (b *Breaker) RecordFailure(name string, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.get(name)
	r.lastLatency = latency
	now := b.now()
	if r.state == HalfOpen {
		r.state = Open
		r.lastFailure = now
		r.trialPending = false
		logger.Warn("circuit reopened after failed trial", "provider", name)
		return
	}
	r.failures++
	r.lastFailure = now
	if r.state == Closed && r.failures >= b.threshold {
		r.state = Open
		logger.Warn("circuit opened", "provider", name, "consecutive_failures", r.failures)
	}
}

// Abandon releases an admitted call whose outcome was never observed because
// the caller gave up mid-flight. A pending half-open trial goes back to Open
// so a later Allow past the reset timeout admits a fresh trial; an abandoned
// call is evidence of nothing, so the failure count and lastFailure stay.
func (b *Breaker) Abandon(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.records[name]
	if !ok || r.state != HalfOpen {
		return
	}
	r.state = Open
	r.trialPending = false
	logger.Info("circuit trial abandoned, reopening", "provider", name)
}

// IsOpen reports whether calls to name would currently be rejected, without
// mutating the record (no HalfOpen transition).
func (b *Breaker) IsOpen(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.records[name]
	if !ok {
		return false
	}
	return r.state == Open && b.now().Sub(r.lastFailure) <= b.resetTimeout
}

// RecordSnapshot is a point-in-time copy of one provider's breaker record.
type RecordSnapshot struct {
	Provider            string        `json:"provider"`
	State               string        `json:"state"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	LastFailure         time.Time     `json:"lastFailure,omitzero"`
	LastAttempt         time.Time     `json:"lastAttempt,omitzero"`
	LastLatency         time.Duration `json:"-"`
	LastLatencyMs       int64         `json:"lastLatencyMs"`
}

// Snapshot returns a copy of every record, independent of in-flight calls.
func (b *Breaker) Snapshot() []RecordSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordSnapshot, 0, len(b.records))
	for name, r := range b.records {
		out = append(out, RecordSnapshot{
			Provider:            name,
			State:               r.state.String(),
			ConsecutiveFailures: r.failures,
			LastFailure:         r.lastFailure,
			LastAttempt:         r.lastAttempt,
			LastLatency:         r.lastLatency,
			LastLatencyMs:       r.lastLatency.Milliseconds(),
		})
	}
	return out
}
