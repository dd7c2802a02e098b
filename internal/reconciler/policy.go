package reconciler

import "github.com/kaoriishige/adtown-ishige-sub000/pkg/config"

// PolicyFromConfig reads the static trial policy from billing configuration.
func PolicyFromConfig(cfg config.BillingConfig) Policy {
	return Policy{
		TrialPeriod:              cfg.TrialPeriod,
		ServiceAvailabilityStart: cfg.ServiceAvailabilityStart.UTC(),
	}
}
