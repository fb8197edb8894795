// Package confirm manages pending execution requests awaiting a
// time-bounded human decision. Each request resolves exactly once: to
// approved, denied, or timed out. A decision arriving after the timeout
// has fired is rejected and the recorded state stands.
package confirm

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// DefaultTimeout bounds how long a request waits for a decision when no
// other timeout is configured.
const DefaultTimeout = 30 * time.Second

// Decision is the outcome of one confirmation request.
type Decision int

const (
	DecisionDenied Decision = iota
	DecisionApproved
	DecisionTimedOut
)

func (d Decision) String() string {
	switch d {
	case DecisionApproved:
		return "approved"
	case DecisionTimedOut:
		return "timed_out"
	default:
		return "denied"
	}
}

// Request describes one pending execution awaiting confirmation.
type Request struct {
	ID          string    `json:"id"`
	Command     string    `json:"command"`
	Args        []string  `json:"args,omitempty"`
	Risk        RiskLevel `json:"risk"`
	RequestedAt time.Time `json:"requested_at"`

	// Timeout overrides the broker's decision window for this request
	// when positive.
	Timeout time.Duration `json:"-"`
}

// Notifier surfaces a newly pending request to the external approval
// channel, for example a terminal prompt or an operator session.
type Notifier interface {
	Notify(req Request)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(req Request)

func (f NotifierFunc) Notify(req Request) { f(req) }

// ErrNotPending is returned when a decision targets a request that was
// never registered or has already resolved.
var ErrNotPending = errors.New("confirmation request is not pending")

type pendingRequest struct {
	req     Request
	decided chan Decision
	timer   *time.Timer
}

// Broker tracks outstanding requests. Concurrent requests are independent;
// resolving one never touches another.
type Broker struct {
	timeout  time.Duration
	notifier Notifier

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// NewBroker builds a broker with the given default timeout (DefaultTimeout
// when zero). notifier may be nil.
func NewBroker(timeout time.Duration, notifier Notifier) *Broker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Broker{
		timeout:  timeout,
		notifier: notifier,
		pending:  make(map[string]*pendingRequest),
	}
}

// Timeout returns the broker's default decision window.
func (b *Broker) Timeout() time.Duration {
	return b.timeout
}

// Await registers req, surfaces it to the notifier, and blocks the calling
// workflow until a decision or the timeout arrives. Context cancellation
// resolves the request as denied and discards its timer.
func (b *Broker) Await(ctx context.Context, req Request) Decision {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}
	p := &pendingRequest{
		req: req,
		// Buffered so the resolving side never blocks on delivery.
		decided: make(chan Decision, 1),
	}

	timeout := b.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	b.mu.Lock()
	b.pending[req.ID] = p
	p.timer = time.AfterFunc(timeout, func() {
		_ = b.resolve(req.ID, DecisionTimedOut)
	})
	b.mu.Unlock()

	if b.notifier != nil {
		b.notifier.Notify(req)
	}

	select {
	case d := <-p.decided:
		return d
	case <-ctx.Done():
		_ = b.resolve(req.ID, DecisionDenied)
		// Either our denial or a concurrent resolution won; the channel
		// holds exactly one value either way.
		return <-p.decided
	}
}

// Approve delivers an approval for id.
func (b *Broker) Approve(id string) error {
	return b.resolve(id, DecisionApproved)
}

// Deny delivers a denial for id.
func (b *Broker) Deny(id string) error {
	return b.resolve(id, DecisionDenied)
}

// Resolve delivers an approve or deny decision for id.
func (b *Broker) Resolve(id string, approve bool) error {
	if approve {
		return b.Approve(id)
	}
	return b.Deny(id)
}

// resolve removes the request under the lock, so at most one caller ever
// delivers a decision. Stopping the timer here means a cancelled request
// leaves no orphaned timer to fire late.
func (b *Broker) resolve(id string, d Decision) error {
	b.mu.Lock()
	p, ok := b.pending[id]
	if !ok {
		b.mu.Unlock()
		return ErrNotPending
	}
	delete(b.pending, id)
	p.timer.Stop()
	b.mu.Unlock()

	p.decided <- d
	return nil
}

// Pending lists outstanding requests, oldest first.
func (b *Broker) Pending() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Request, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}
