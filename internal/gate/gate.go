// Package gate bounds concurrent reconciliation runs. EDGAR's fair-access
// policy makes concurrent pipelines against the same rate budget pointless,
// so the serving layer admits one run at a time and differentiates callers
// only by how long they are willing to queue.
package gate

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	apperrors "edgar-reconciliation-service/pkg/errors"
	"edgar-reconciliation-service/pkg/logger"
)

// Tier classifies a caller by queueing patience
type Tier string

const (
	// TierAnonymous callers never queue: the slot is free or the request
	// bounces immediately.
	TierAnonymous Tier = "anonymous"
	TierStandard  Tier = "standard"
	TierPremium   Tier = "premium"
)

// IsValid checks if the tier is known
func (t Tier) IsValid() bool {
	switch t {
	case TierAnonymous, TierStandard, TierPremium:
		return true
	default:
		return false
	}
}

// Config holds the per-tier wait budgets
type Config struct {
	StandardWait time.Duration `json:"standard_wait"`
	PremiumWait  time.Duration `json:"premium_wait"`
}

// DefaultConfig returns the default wait budgets
func DefaultConfig() *Config {
	return &Config{
		StandardWait: 10 * time.Second,
		PremiumWait:  2 * time.Minute,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.StandardWait < 0 || c.PremiumWait < 0 {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig,
			"gate waits", "negative wait budget", nil)
	}
	if c.PremiumWait < c.StandardWait {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig,
			"gate waits", "premium wait shorter than standard", nil)
	}
	return nil
}

// Gate is the single-slot admission control for reconciliation runs
type Gate struct {
	slot   *semaphore.Weighted
	config *Config
	logger logger.Logger
}

// New creates a Gate
func New(config *Config, log logger.Logger) (*Gate, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Gate{
		slot:   semaphore.NewWeighted(1),
		config: config,
		logger: log.WithComponent("gate"),
	}, nil
}

// Acquire claims the run slot for a caller of the given tier. Anonymous
// callers fail immediately when the slot is busy; the other tiers wait up to
// their configured budget. The returned release function must be called
// exactly once when the run finishes.
func (g *Gate) Acquire(ctx context.Context, tier Tier) (release func(), err error) {
	if !tier.IsValid() {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig,
			"tier", string(tier), nil)
	}

	if tier == TierAnonymous {
		if !g.slot.TryAcquire(1) {
			g.logger.WithField("tier", tier).Debug("Run slot busy, anonymous caller bounced")
			return nil, apperrors.GateError(apperrors.CodeSlotBusy, string(tier), nil)
		}
		return g.releaseFunc(), nil
	}

	wait := g.config.StandardWait
	if tier == TierPremium {
		wait = g.config.PremiumWait
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if err := g.slot.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.GateError(apperrors.CodeRequestCancelled, string(tier), ctx.Err())
		}
		g.logger.WithFields(logger.Fields{
			"tier": tier,
			"wait": wait.String(),
		}).Warn("Run slot not freed within the tier's wait budget")
		return nil, apperrors.GateError(apperrors.CodeSlotTimeout, string(tier), err)
	}
	return g.releaseFunc(), nil
}

func (g *Gate) releaseFunc() func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.slot.Release(1)
	}
}
