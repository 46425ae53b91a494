package throttle

import (
	"errors"
	"fmt"
	"time"
)

// Policy tunes exponential cool-down.
//
// After Threshold free failures, every further failure sets
// cooldown = Base * 2^min(count-Threshold, ExponentCap), capped at MaxCooldown.
// A record with no failure for Window (or until its cool-down ends, if later)
// expires entirely.
type Policy struct {
	Threshold   int
	Base        time.Duration
	ExponentCap int
	MaxCooldown time.Duration
	Window      time.Duration
}

var errInvalidPolicy = errors.New("throttle: invalid policy")

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:   4,
		Base:        time.Second,
		ExponentCap: 10,
		MaxCooldown: 15 * time.Minute,
		Window:      time.Hour,
	}
}

func (p Policy) Validate() error {
	switch {
	case p.Threshold < 0:
		return fmt.Errorf("%w: threshold must be >= 0", errInvalidPolicy)
	case p.Base <= 0:
		return fmt.Errorf("%w: base must be > 0", errInvalidPolicy)
	case p.ExponentCap < 0 || p.ExponentCap > 30:
		return fmt.Errorf("%w: exponent cap must be within [0,30]", errInvalidPolicy)
	case p.MaxCooldown < p.Base:
		return fmt.Errorf("%w: max cooldown must be >= base", errInvalidPolicy)
	case p.Window <= 0:
		return fmt.Errorf("%w: window must be > 0", errInvalidPolicy)
	}
	return nil
}

// Cooldown returns the wait imposed after count consecutive failures.
func (p Policy) Cooldown(count int) time.Duration {
	if count <= p.Threshold {
		return 0
	}
	exp := min(count-p.Threshold, p.ExponentCap)
	cd := p.Base
	for i := 0; i < exp; i++ {
		cd *= 2
		if cd >= p.MaxCooldown {
			return p.MaxCooldown
		}
	}
	return min(cd, p.MaxCooldown)
}

// ttl is how long a record stays alive after a failure at now.
func (p Policy) ttl(now, cooldownUntil time.Time) time.Duration {
	return max(p.Window, cooldownUntil.Sub(now))
}
