package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/VDIOps/CitrixMonMCP/global"
)

// WaitPolicy controls what happens when a second query arrives for a
// tenant that already has one in flight.
type WaitPolicy int

const (
	// WaitBlock waits indefinitely for the in-flight query to finish.
	// This is the default: the service itself bounds query duration,
	// so waiting is bounded in practice.
	WaitBlock WaitPolicy = iota

	// WaitTimeout waits up to a configured maximum, then fails with BusyError
	WaitTimeout

	// WaitReject fails immediately with BusyError if a query is in flight
	WaitReject
)

// gateSlot is the per-tenant state: a one-permit semaphore plus the time
// the permit was last released.
type gateSlot struct {
	sem chan struct{}

	mu           sync.Mutex
	lastReleased time.Time
}

// RateGate enforces the service's "one concurrent query per tenant"
// limit. All requests acquire a permit before touching the network.
// Waiting callers for one tenant never block traffic for another.
type RateGate struct {
	policy  WaitPolicy
	maxWait time.Duration
	logger  global.Logger

	mu    sync.Mutex
	slots map[string]*gateSlot
}

// GateOption defines a configuration option for the RateGate
type GateOption func(*RateGate)

// WithWaitPolicy sets the admission policy for queued callers
func WithWaitPolicy(policy WaitPolicy) GateOption {
	return func(g *RateGate) {
		g.policy = policy
	}
}

// WithMaxWait sets the queue-time ceiling for the WaitTimeout policy
func WithMaxWait(d time.Duration) GateOption {
	return func(g *RateGate) {
		g.maxWait = d
	}
}

// WithGateLogger sets the logger for the rate gate
func WithGateLogger(logger global.Logger) GateOption {
	return func(g *RateGate) {
		g.logger = logger
	}
}

// NewRateGate creates a new RateGate
func NewRateGate(opts ...GateOption) *RateGate {
	g := &RateGate{
		policy:  WaitBlock,
		maxWait: 30 * time.Second,
		slots:   make(map[string]*gateSlot),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// slot returns the per-tenant slot, creating it on first use
func (g *RateGate) slot(tenantID string) *gateSlot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.slots[tenantID]
	if !ok {
		s = &gateSlot{sem: make(chan struct{}, 1)}
		g.slots[tenantID] = s
	}
	return s
}

// WithPermit runs fn while holding the tenant's single permit. The
// permit is released on every exit path, including panics and caller
// cancellation during the wait (in which case fn never runs and the
// context error is returned).
func (g *RateGate) WithPermit(ctx context.Context, tenantID string, fn func() error) error {
	s := g.slot(tenantID)

	start := time.Now()
	switch g.policy {
	case WaitReject:
		select {
		case s.sem <- struct{}{}:
		default:
			if g.logger != nil {
				g.logger.Debugf("Rejecting query for tenant %s: another query in flight", tenantID)
			}
			return &BusyError{Tenant: tenantID}
		}

	case WaitTimeout:
		timer := time.NewTimer(g.maxWait)
		defer timer.Stop()
		select {
		case s.sem <- struct{}{}:
		case <-timer.C:
			return &BusyError{Tenant: tenantID, Waited: time.Since(start)}
		case <-ctx.Done():
			return ctx.Err()
		}

	default: // WaitBlock
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if waited := time.Since(start); waited > 100*time.Millisecond && g.logger != nil {
		g.logger.Debugf("Query for tenant %s waited %v for its permit", tenantID, waited)
	}

	defer func() {
		s.mu.Lock()
		s.lastReleased = time.Now()
		s.mu.Unlock()
		<-s.sem
	}()

	return fn()
}

// InFlight reports whether a query currently holds the tenant's permit
func (g *RateGate) InFlight(tenantID string) bool {
	return len(g.slot(tenantID).sem) > 0
}

// LastReleased returns when the tenant's permit was last released; the
// zero time if it never has been.
func (g *RateGate) LastReleased(tenantID string) time.Time {
	s := g.slot(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReleased
}
