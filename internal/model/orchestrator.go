package model

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds everything the orchestrator needs at construction time.
// There is no ambient state: variant lists, budgets and the clock are all
// explicit so tests can inject fakes.
type Config struct {
	// Variants is the ordered candidate list; priority ties keep their
	// configured order.
	Variants []Variant
	// DefaultCooldown applies when a rate-limit response carries no
	// machine-readable retry delay.
	DefaultCooldown time.Duration
	// MaxAttempts is the global attempt ceiling per logical call. It bounds
	// worst-case latency under cascading failures.
	MaxAttempts int
	// Retry bounds the same-variant backoff loop for transient errors.
	Retry RetryConfig
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns an orchestrator config with the given variants and
// the standard budgets.
func DefaultConfig(variants []Variant) Config {
	return Config{
		Variants:        variants,
		DefaultCooldown: 60 * time.Second,
		MaxAttempts:     6,
		Retry:           DefaultRetryConfig(),
	}
}

// Orchestrator owns an ordered list of model variants and routes each logical
// call to the first eligible one, absorbing rate limits via per-variant
// cooldowns and transient faults via same-variant backoff. Variants are tried
// strictly sequentially; the orchestrator never races calls against each
// other, since concurrent calls to multiple paid variants would waste quota
// and produce ambiguous results.
type Orchestrator struct {
	cfg       Config
	variants  []Variant
	client    Client
	cooldowns *CooldownTracker
	now       func() time.Time
	log       zerolog.Logger
}

// NewOrchestrator wires an orchestrator from explicit configuration.
func NewOrchestrator(cfg Config, client Client, log zerolog.Logger) (*Orchestrator, error) {
	if len(cfg.Variants) == 0 {
		return nil, fmt.Errorf("at least one model variant is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 6
	}
	if cfg.DefaultCooldown <= 0 {
		cfg.DefaultCooldown = 60 * time.Second
	}
	if cfg.Retry.TransientAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		cfg:       cfg,
		variants:  sortVariants(cfg.Variants),
		client:    client,
		cooldowns: NewCooldownTracker(now),
		now:       now,
		log:       log.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// Cooldowns exposes the tracker for diagnostics.
func (o *Orchestrator) Cooldowns() *CooldownTracker {
	return o.cooldowns
}

// Call performs one logical model call, trying variants in priority order
// until success, variant exhaustion, or the attempt ceiling. Backoff waits
// are interruptible through ctx.
func (o *Orchestrator) Call(ctx context.Context, req Request) (*Response, error) {
	needVision := len(req.ImagePNG) > 0
	candidates := o.variants
	if needVision {
		candidates = visionVariants(o.variants)
		if len(candidates) == 0 {
			return nil, &CallError{
				Class: ClassNonRetryable,
				Err:   fmt.Errorf("no vision-capable variant configured for image request"),
			}
		}
	}

	tried := make(map[string]bool, len(candidates))

	current, ok := o.selectVariant(candidates, tried)
	if !ok {
		earliest := o.cooldowns.EarliestResume(candidates)
		o.log.Warn().Time("earliest_resume", earliest).Msg("all variants cooling down")
		return nil, &AllCoolingDownError{EarliestResume: earliest}
	}

	attempts := 0
	transientStreak := 0
	var lastErr error
	var earliestResume time.Time

	for attempts < o.cfg.MaxAttempts {
		attempts++
		start := o.now()
		resp, err := o.client.Complete(ctx, current, req)
		latency := o.now().Sub(start)

		if err == nil {
			o.log.Debug().
				Str("variant", current.Name).
				Int("attempt", attempts).
				Dur("latency", latency).
				Msg("model call succeeded")
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		ce := AsCallError(err)
		lastErr = err
		o.log.Warn().
			Str("variant", current.Name).
			Str("class", string(ce.Class)).
			Int("attempt", attempts).
			Dur("latency", latency).
			Err(ce.Err).
			Msg("model call failed")

		switch ce.Class {
		case ClassNonRetryable:
			// A configuration-level fault; retrying other variants
			// cannot fix it.
			return nil, err

		case ClassRateLimited:
			delay := ce.RetryAfter
			if delay <= 0 {
				delay = o.cfg.DefaultCooldown
			}
			resumeAt := o.now().Add(delay)
			o.cooldowns.MarkCooldown(current.Name, resumeAt)
			if earliestResume.IsZero() || resumeAt.Before(earliestResume) {
				earliestResume = resumeAt
			}
			tried[current.Name] = true
			transientStreak = 0

			// The point of fallback is to avoid waiting: move straight
			// to the next eligible variant.
			next, ok := o.selectVariant(candidates, tried)
			if !ok {
				return nil, &ExhaustedError{Attempts: attempts, EarliestResume: earliestResume, LastErr: lastErr}
			}
			o.log.Info().Str("from", current.Name).Str("to", next.Name).Msg("falling over after rate limit")
			current = next

		case ClassTransient:
			transientStreak++
			if transientStreak >= o.cfg.Retry.TransientAttempts {
				// This variant looks unhealthy right now; try the next
				// one without cooling it down.
				tried[current.Name] = true
				transientStreak = 0
				next, ok := o.selectVariant(candidates, tried)
				if !ok {
					return nil, &ExhaustedError{Attempts: attempts, EarliestResume: earliestResume, LastErr: lastErr}
				}
				o.log.Info().Str("from", current.Name).Str("to", next.Name).Msg("falling over after repeated transient errors")
				current = next
				continue
			}
			if attempts >= o.cfg.MaxAttempts {
				// No budget left for another attempt; skip the wait.
				continue
			}
			delay := backoffDelay(transientStreak-1, o.cfg.Retry)
			o.log.Debug().Str("variant", current.Name).Dur("delay", delay).Msg("backing off before retrying same variant")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, &ExhaustedError{Attempts: attempts, EarliestResume: earliestResume, LastErr: lastErr}
}

// selectVariant returns the highest-priority candidate that is eligible per
// the cooldown tracker and has not been tried during this call. Selection is
// strictly deterministic.
func (o *Orchestrator) selectVariant(candidates []Variant, tried map[string]bool) (Variant, bool) {
	for _, v := range candidates {
		if tried[v.Name] {
			continue
		}
		if o.cooldowns.IsEligible(v.Name) {
			return v, true
		}
	}
	return Variant{}, false
}

// visionVariants filters down to variants that accept image input.
func visionVariants(variants []Variant) []Variant {
	out := make([]Variant, 0, len(variants))
	for _, v := range variants {
		if v.Vision {
			out = append(out, v)
		}
	}
	return out
}
