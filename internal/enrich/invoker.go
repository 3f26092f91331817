// Package enrich derives structured insights from a transcript with one
// generative-model call, retried with exponential backoff on throttling.
package enrich

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/anatolykoptev/go_ytledger/internal/engine"
)

const (
	defaultAttempts = 5
	backoffUnit     = 10 * time.Second
	slowCall        = 90 * time.Second
)

// Request is one model invocation.
type Request struct {
	Prompt      string
	ModelID     string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Model is a generative-model endpoint returning the reply text.
type Model interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// Settings are the per-call model parameters.
type Settings struct {
	ModelID     string
	FallbackID  string // used after an oversized-input error; empty makes that error terminal
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Invoker runs the attempt loop around a Model.
type Invoker struct {
	model    Model
	settings Settings
	attempts int
	sleeper  func(time.Duration)
	jitter   func() float64
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(inv *Invoker) {
		if n > 0 {
			inv.attempts = n
		}
	}
}

// WithSleeper overrides how backoff sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(inv *Invoker) { inv.sleeper = sleeper }
}

// WithJitter overrides the [0,1) jitter source.
func WithJitter(jitter func() float64) Option {
	return func(inv *Invoker) {
		if jitter != nil {
			inv.jitter = jitter
		}
	}
}

func NewInvoker(model Model, settings Settings, opts ...Option) *Invoker {
	inv := &Invoker{
		model:    model,
		settings: settings,
		attempts: defaultAttempts,
		jitter:   rand.Float64,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Backoff is the delay after a failed attempt: (2^attempt + jitter) * 10s.
func Backoff(attempt int, jitter float64) time.Duration {
	return time.Duration((math.Pow(2, float64(attempt)) + jitter) * float64(backoffUnit))
}

// Enrich returns the parsed insights, or false when every attempt failed or
// the failure is terminal for this transcript. The caller retries next run.
func (inv *Invoker) Enrich(ctx context.Context, transcript string) (*Insights, bool) {
	prompt := BuildPrompt(transcript)
	modelID := inv.settings.ModelID

	for attempt := range inv.attempts {
		if ctx.Err() != nil {
			return nil, false
		}
		engine.IncrModelCalls()
		var reply string
		err := engine.TrackOperation(ctx, "enrich: model call", slowCall, func(ctx context.Context) error {
			var err error
			reply, err = inv.model.Invoke(ctx, Request{
				Prompt:      prompt,
				ModelID:     modelID,
				MaxTokens:   inv.settings.MaxTokens,
				Temperature: inv.settings.Temperature,
				TopP:        inv.settings.TopP,
			})
			return err
		})
		if err == nil {
			insights, perr := ParseReply(reply)
			if perr == nil {
				return insights, true
			}
			slog.Warn("enrich: no valid JSON in reply",
				slog.Int("attempt", attempt),
				slog.String("reply", engine.Snippet(reply)))
			engine.IncrModelErrors()
			continue
		}

		engine.IncrModelErrors()
		switch Classify(err) {
		case KindOversized:
			if inv.settings.FallbackID == "" || modelID == inv.settings.FallbackID {
				slog.Warn("enrich: input too long, skipping",
					slog.String("model", modelID), slog.Any("error", err))
				return nil, false
			}
			slog.Info("enrich: input too long, switching model",
				slog.String("from", modelID), slog.String("to", inv.settings.FallbackID))
			modelID = inv.settings.FallbackID
			if !inv.sleep(ctx, Backoff(attempt, inv.jitter())) {
				return nil, false
			}
		case KindThrottled:
			engine.IncrModelThrottled()
			delay := Backoff(attempt, inv.jitter())
			slog.Info("enrich: throttled, backing off",
				slog.Int("attempt", attempt), slog.Duration("delay", delay))
			if !inv.sleep(ctx, delay) {
				return nil, false
			}
		default:
			slog.Warn("enrich: model call failed",
				slog.Int("attempt", attempt), slog.Any("error", err))
		}
	}
	slog.Warn("enrich: max attempts reached", slog.Int("attempts", inv.attempts))
	return nil, false
}

// sleep waits for d and reports whether ctx is still live.
func (inv *Invoker) sleep(ctx context.Context, d time.Duration) bool {
	if inv.sleeper != nil {
		inv.sleeper(d)
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
