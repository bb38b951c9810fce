// Package ratelimit implements the fixed-window request limiter guarding the
// trigger and read endpoints.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Class groups endpoints that share a limit.
type Class string

const (
	ClassGeneral   Class = "general"
	ClassManual    Class = "manual"
	ClassScheduled Class = "scheduled"
)

// Limit allows Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits per endpoint class. Callers may pass their own Limit to Check.
var DefaultLimits = map[Class]Limit{
	ClassGeneral:   {Requests: 100, Window: time.Minute},
	ClassManual:    {Requests: 1, Window: time.Minute},
	ClassScheduled: {Requests: 5, Window: time.Minute},
}

// LimitFor returns the default limit of class, falling back to the general class.
func LimitFor(class Class) Limit {
	if l, ok := DefaultLimits[class]; ok {
		return l
	}
	return DefaultLimits[ClassGeneral]
}

// Window is the state of one key's counter after a hit.
type Window struct {
	Count     int
	ResetTime time.Time
	Allowed   bool
}

// Store keeps fixed-window counters. Implementations must be safe for concurrent use.
type Store interface {
	// Hit starts a fresh window when none exists or the current one has reset, then
	// increments the counter only if it is below limit.
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error)
}

// Decision is the outcome of a Check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
	// RetryAfter is set only when the request is rejected.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

var ErrInvalidLimit = errors.New("rate limit must allow at least one request per positive window")

// Limiter applies fixed-window limits keyed by endpoint class and client identity.
type Limiter struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Key builds the counter key for a client on an endpoint class.
func Key(class Class, clientID string) string {
	return string(class) + ":" + clientID
}

func (l *Limiter) Check(ctx context.Context, clientID string, class Class, limit Limit) (Decision, error) {
	if limit.Requests <= 0 || limit.Window <= 0 {
		return Decision{}, ErrInvalidLimit
	}
	if clientID == "" {
		clientID = UnknownClient
	}
	now := l.now()
	w, err := l.store.Hit(ctx, Key(class, clientID), limit.Requests, limit.Window, now)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit store: %w", err)
	}

	d := Decision{
		Allowed:   w.Allowed,
		Limit:     limit.Requests,
		Remaining: limit.Requests - w.Count,
		ResetTime: w.ResetTime,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !w.Allowed {
		d.RetryAfter = w.ResetTime.Sub(now)
		if d.RetryAfter <= 0 {
			d.RetryAfter = time.Second
		}
	}
	return d, nil
}
