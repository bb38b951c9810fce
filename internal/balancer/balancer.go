// Package balancer picks the category for the next daily record so that usage
// converges toward an even split over a lookback window.
package balancer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/dailyquote/internal/content"
)

const (
	DefaultLookbackDays = 30
	perturbation        = 0.3
)

// Reader is the slice of content.Store the balancer needs.
type Reader interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]content.Record, error)
}

// Rand is the randomness source. *rand.Rand satisfies it; when injecting one,
// callers must serialize access themselves since *rand.Rand is not goroutine safe.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

type Balancer struct {
	store  Reader
	logger zerolog.Logger
	rnd    Rand
	now    func() time.Time
	strict bool
}

type Option func(*Balancer)

// WithRand injects the randomness source.
func WithRand(r Rand) Option {
	return func(b *Balancer) { b.rnd = r }
}

// WithClock sets the time source used to compute "today".
func WithClock(now func() time.Time) Option {
	return func(b *Balancer) { b.now = now }
}

// Strict disables the uniform fallback: store errors are returned to the caller.
func Strict() Option {
	return func(b *Balancer) { b.strict = true }
}

func New(store Reader, logger zerolog.Logger, opts ...Option) *Balancer {
	b := &Balancer{
		store:  store,
		logger: logger,
		rnd:    globalRand{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SelectNext returns the category for the next record. lookbackDays <= 0 uses
// DefaultLookbackDays.
func (b *Balancer) SelectNext(ctx context.Context, lookbackDays int) (content.Category, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	today := content.Date(b.now())
	records, err := b.store.ListBetween(ctx, today.AddDate(0, 0, -lookbackDays), today)
	if err != nil {
		if b.strict {
			return "", fmt.Errorf("load category history: %w", err)
		}
		picked := content.Categories[b.rnd.IntN(len(content.Categories))]
		b.logger.Warn().Err(err).Str("category", string(picked)).Msg("category history unavailable, picking uniformly")
		return picked, nil
	}

	counts := Tally(records)
	picked := Pick(counts, b.rnd)
	b.logger.Debug().
		Str("category", string(picked)).
		Int("history", len(records)).
		Msg("category selected")
	return picked, nil
}

// Tally counts records per category. Every known category is present in the
// result; records with unknown categories are ignored.
func Tally(records []content.Record) map[content.Category]int {
	counts := make(map[content.Category]int, len(content.Categories))
	for _, c := range content.Categories {
		counts[c] = 0
	}
	for _, r := range records {
		if _, ok := counts[r.Category]; ok {
			counts[r.Category]++
		}
	}
	return counts
}

// Weights computes the perturbed draw weight of each category, in
// content.Categories order. Under-represented categories weigh more.
func Weights(counts map[content.Category]int, rnd Rand) []float64 {
	total := 0
	for _, c := range content.Categories {
		total += counts[c]
	}
	expected := float64(total) / float64(len(content.Categories))

	weights := make([]float64, len(content.Categories))
	for i, c := range content.Categories {
		w := max(expected-float64(counts[c]), 0) + 1
		w += w * perturbation * rnd.Float64()
		weights[i] = w
	}
	return weights
}

// Pick performs the weighted draw. If the threshold falls past every bucket it
// returns the least used category, first in canonical order on ties.
func Pick(counts map[content.Category]int, rnd Rand) content.Category {
	weights := Weights(counts, rnd)
	var sum float64
	for _, w := range weights {
		sum += w
	}
	threshold := rnd.Float64() * sum
	var cumulative float64
	for i, w := range weights {
		cumulative += w
		if threshold < cumulative {
			return content.Categories[i]
		}
	}
	return leastUsed(counts)
}

func leastUsed(counts map[content.Category]int) content.Category {
	best := content.Categories[0]
	for _, c := range content.Categories[1:] {
		if counts[c] < counts[best] {
			best = c
		}
	}
	return best
}
