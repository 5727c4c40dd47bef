package pool

import (
	"time"

	"LiqPool/internal/domain/models"
)

// Rejection reasons returned by the registry and manager.
const (
	ReasonCapacity         = "capacity"
	ReasonDuplicate        = "duplicate"
	ReasonScheduleFailed   = "schedule_failed"
	ReasonBelowMinStrength = "below_min_strength"
	ReasonNotFound         = "not_found"
	ReasonNotActive        = "not_active"
	ReasonOutOfRange       = "out_of_range"
	ReasonInvalid          = "invalid"
)

// ResolutionPolicy is the per-resolution pool policy.
type ResolutionPolicy struct {
	TTL          time.Duration `yaml:"ttl" validate:"gt=0"`
	HitTolerance float64       `yaml:"hit_tolerance" validate:"gte=0"`
	Capacity     int           `yaml:"capacity" validate:"gte=0"`
}

// RegistryOption configures Registry.
type RegistryOption func(*RegistryConfig)

// RegistryConfig holds registry configuration.
type RegistryConfig struct {
	// Capacity caps live pools per resolution; zero means DefaultCapacity.
	Capacity      map[models.Resolution]int
	DefaultCap    int
	GracePeriod   time.Duration
	SweepInterval time.Duration
	Wheel         WheelConfig
}

// WithCapacity sets the live-pool cap of one resolution.
func WithCapacity(res models.Resolution, n int) RegistryOption {
	return func(c *RegistryConfig) {
		if c.Capacity == nil {
			c.Capacity = make(map[models.Resolution]int)
		}
		c.Capacity[res] = n
	}
}

// WithDefaultCapacity sets the cap for resolutions without an explicit one.
func WithDefaultCapacity(n int) RegistryOption {
	return func(c *RegistryConfig) {
		c.DefaultCap = n
	}
}

// WithGracePeriod sets how long expired pools stay queryable.
func WithGracePeriod(d time.Duration) RegistryOption {
	return func(c *RegistryConfig) {
		c.GracePeriod = d
	}
}

// WithSweepInterval throttles the purge sweep run by ExpireDue.
func WithSweepInterval(d time.Duration) RegistryOption {
	return func(c *RegistryConfig) {
		c.SweepInterval = d
	}
}

// WithWheel sizes the timing wheel.
func WithWheel(cfg WheelConfig) RegistryOption {
	return func(c *RegistryConfig) {
		c.Wheel = cfg
	}
}

func (c RegistryConfig) capacity(res models.Resolution) int {
	if n, ok := c.Capacity[res]; ok && n > 0 {
		return n
	}
	return c.DefaultCap
}
