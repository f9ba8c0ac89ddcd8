package peer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/vidmesh/vidmesh/internal/util"
)

// Purpose distinguishes renegotiation tasks. Cleanup tasks follow track
// removal and request an ICE restart; regular tasks follow track adds and
// replacements.
type Purpose string

const (
	PurposeRegular Purpose = "regular"
	PurposeCleanup Purpose = "cleanup"
)

var (
	// ErrStableTimeout means the link never left a mid-negotiation
	// signaling state within the poll bound.
	ErrStableTimeout = errors.New("signaling state did not reach stable")
	// ErrAnswerTimeout means the remote never answered the offer. It is a
	// soft failure: the task clears and the next track change retries.
	ErrAnswerTimeout = errors.New("timed out waiting for answer")
)

// Timing bounds every suspension point of a renegotiation task. Tests
// substitute short values.
type Timing struct {
	StableInterval time.Duration // poll interval for the stable-state wait
	StableAttempts int           // poll attempts before giving up
	AnswerTimeout  time.Duration // bound on waiting for the matching answer
	RetryBackoff   time.Duration // delay between whole-task retries
	Attempts       int           // whole-task attempts before terminal failure
}

// DefaultTiming returns the production bounds.
func DefaultTiming() Timing {
	return Timing{
		StableInterval: 300 * time.Millisecond,
		StableAttempts: 17,
		AnswerTimeout:  13 * time.Second,
		RetryBackoff:   1200 * time.Millisecond,
		Attempts:       3,
	}
}

type taskKey struct {
	remote  string
	purpose Purpose
}

// Coordinator serializes renegotiation per (remote, purpose) key. At most
// one task is outstanding per key; a request against an occupied key is
// dropped, not queued — track application happens before the request, so
// the in-flight task will reflect the final track state when it runs.
// This exclusivity is what prevents offer/answer glare when local track
// changes arrive in bursts.
type Coordinator struct {
	timing    Timing
	send      func(remote string, offer webrtc.SessionDescription) error
	onFailure func(remote string)

	mu      sync.Mutex
	tasks   map[taskKey]struct{}
	waiters map[taskKey]chan string // in-flight tasks awaiting their answer SDP
}

// NewCoordinator creates a coordinator. send transmits an offer to a remote
// identity via the signaling router; onFailure reports a terminal per-peer
// negotiation failure (may be nil).
func NewCoordinator(timing Timing, send func(remote string, offer webrtc.SessionDescription) error, onFailure func(remote string)) *Coordinator {
	return &Coordinator{
		timing:    timing,
		send:      send,
		onFailure: onFailure,
		tasks:     make(map[taskKey]struct{}),
		waiters:   make(map[taskKey]chan string),
	}
}

// Request starts a renegotiation task for the link unless one with the
// same key is already outstanding. Returns whether the request was
// accepted. The task runs in the background and is cancelled by the
// link's context on teardown.
func (c *Coordinator) Request(link *Link, purpose Purpose) bool {
	key := taskKey{remote: link.Remote(), purpose: purpose}

	c.mu.Lock()
	if _, busy := c.tasks[key]; busy {
		c.mu.Unlock()
		util.LogDebug("renegotiation %s/%s already in flight, dropping request", key.remote, purpose)
		return false
	}
	c.tasks[key] = struct{}{}
	c.mu.Unlock()

	go c.run(link, purpose, key)
	return true
}

// Outstanding reports whether a task for the key is in flight.
func (c *Coordinator) Outstanding(remote string, purpose Purpose) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.tasks[taskKey{remote: remote, purpose: purpose}]
	return busy
}

// DeliverAnswer hands an inbound answer to a task waiting on it. The wire
// does not say which purpose's offer the answer matches, so when tasks of
// both purposes are in flight for the remote, the regular one claims it
// and the cleanup one retries after its soft timeout. Returns false when
// no task is waiting — the caller then applies the answer directly to the
// link (initial negotiation), or ignores it if the link is gone.
func (c *Coordinator) DeliverAnswer(remote, sdp string) bool {
	c.mu.Lock()
	var ch chan string
	for _, purpose := range []Purpose{PurposeRegular, PurposeCleanup} {
		key := taskKey{remote: remote, purpose: purpose}
		if w, ok := c.waiters[key]; ok {
			ch = w
			delete(c.waiters, key)
			break
		}
	}
	c.mu.Unlock()

	if ch == nil {
		return false
	}
	select {
	case ch <- sdp:
	default:
	}
	return true
}

// Drop discards any answer waiters for the remote. Task goroutines
// themselves stop via the link context; Drop just makes sure a late
// answer for a torn-down peer finds nobody waiting.
func (c *Coordinator) Drop(remote string) {
	c.mu.Lock()
	delete(c.waiters, taskKey{remote: remote, purpose: PurposeRegular})
	delete(c.waiters, taskKey{remote: remote, purpose: PurposeCleanup})
	c.mu.Unlock()
}

// run executes the whole-task retry loop, always releasing the key.
func (c *Coordinator) run(link *Link, purpose Purpose, key taskKey) {
	defer func() {
		c.mu.Lock()
		delete(c.tasks, key)
		c.mu.Unlock()
	}()

	ctx := link.Context()

	for attempt := 1; attempt <= c.timing.Attempts; attempt++ {
		err := c.runOnce(link, purpose)
		if err == nil {
			util.LogDebug("renegotiation %s/%s complete", key.remote, purpose)
			return
		}
		if errors.Is(err, ErrAnswerTimeout) {
			// Soft: clear the task without declaring the peer failed. The
			// next track-change event will renegotiate.
			util.LogWarning("renegotiation %s/%s: %v", key.remote, purpose, err)
			return
		}
		if ctx.Err() != nil {
			return // link torn down mid-task
		}

		util.LogWarning("renegotiation %s/%s attempt %d/%d failed: %v",
			key.remote, purpose, attempt, c.timing.Attempts, err)

		if attempt < c.timing.Attempts {
			select {
			case <-time.After(c.timing.RetryBackoff):
			case <-ctx.Done():
				return
			}
		}
	}

	util.LogError("renegotiation with %s failed terminally", key.remote)
	link.MarkFailed()
	if c.onFailure != nil {
		c.onFailure(key.remote)
	}
}

// runOnce performs one offer/answer exchange.
func (c *Coordinator) runOnce(link *Link, purpose Purpose) error {
	ctx := link.Context()

	// 1. Wait for the link to be renegotiable.
	if err := c.waitStable(link); err != nil {
		return err
	}

	// 2. Fresh offer; ICE restart only for cleanup.
	offer, err := link.CreateOffer(purpose == PurposeCleanup)
	if err != nil {
		return err
	}

	key := taskKey{remote: link.Remote(), purpose: purpose}
	ch := make(chan string, 1)
	c.mu.Lock()
	c.waiters[key] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.waiters[key] == ch {
			delete(c.waiters, key)
		}
		c.mu.Unlock()
	}()

	if err := c.send(link.Remote(), offer); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}

	// 3. Bounded wait for the matching answer.
	select {
	case sdp := <-ch:
		return link.ApplyRemoteAnswer(sdp)
	case <-time.After(c.timing.AnswerTimeout):
		return ErrAnswerTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitStable polls the signaling state with a bounded number of attempts.
func (c *Coordinator) waitStable(link *Link) error {
	ctx := link.Context()
	for i := 0; i < c.timing.StableAttempts; i++ {
		if link.SignalingState() == webrtc.SignalingStateStable {
			return nil
		}
		select {
		case <-time.After(c.timing.StableInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w (state %s)", ErrStableTimeout, link.SignalingState())
}
