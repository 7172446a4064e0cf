package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/promptmux/promptmux/logging"
)

// ErrCircuitOpen is returned by a Breaker that is failing fast. Agents
// treat it like any other capability failure, so a tripped platform is
// retried and recovered through the normal task result path.
var ErrCircuitOpen = errors.New("platform circuit open")

// Compile-time interface check.
var _ Capability = (*Breaker)(nil)

// BreakerOptions configure a Breaker.
type BreakerOptions struct {
	// Name labels the breaker in logs and error messages.
	Name string

	// MaxFailures is the consecutive-failure count that opens the circuit.
	MaxFailures uint32

	// OpenTimeout is how long the circuit stays open before one probe call
	// is let through.
	OpenTimeout time.Duration

	// Interval is the cyclic period for clearing failure counts while
	// closed. Zero keeps counts until the circuit opens.
	Interval time.Duration

	// Logger receives state-change warnings.
	Logger logging.Logger
}

// Breaker decorates a Capability with a circuit breaker. After MaxFailures
// consecutive SendPrompt failures it fails fast with ErrCircuitOpen instead
// of reaching the platform, preventing retry storms against an outage.
//
// Only the blocking exchange is protected. Wrapping a streaming capability
// hides its streaming surface.
type Breaker struct {
	inner   Capability
	breaker *gobreaker.CircuitBreaker[*Response]
	name    string
}

// NewBreaker wraps inner with a circuit breaker.
func NewBreaker(inner Capability, optFns ...func(o *BreakerOptions)) *Breaker {
	opts := BreakerOptions{
		Name:        "platform",
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
		Interval:    60 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1, // one probe in half-open state
		Interval:    opts.Interval,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Breaker{
		inner:   inner,
		breaker: cb,
		name:    opts.Name,
	}
}

// Initialize implements Capability, delegating to the wrapped capability.
func (b *Breaker) Initialize(ctx context.Context) (*Session, error) {
	return b.inner.Initialize(ctx)
}

// SendPrompt implements Capability. Calls are routed through the breaker.
func (b *Breaker) SendPrompt(ctx context.Context, prompt string, optFns ...func(o *SendOptions)) (*Response, error) {
	resp, err := b.breaker.Execute(func() (*Response, error) {
		return b.inner.SendPrompt(ctx, prompt, optFns...)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
		}

		return nil, err
	}

	return resp, nil
}

// SwitchModel implements Capability.
func (b *Breaker) SwitchModel(modelID string) {
	b.inner.SwitchModel(modelID)
}

// Close implements Capability.
func (b *Breaker) Close() error {
	return b.inner.Close()
}

// State returns the current breaker state for monitoring.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}

// Counts returns the breaker failure and success counts.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.breaker.Counts()
}
