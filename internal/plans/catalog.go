// Package plans exposes the static per-service, per-cycle plan catalog.
package plans

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/config"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
)

// zeroDecimalCurrencies have no minor unit on the payment platform.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
}

// Plan is one purchasable (service type, billing cycle) combination.
type Plan struct {
	ServiceType enums.ServiceType
	Cycle       enums.BillingCycle
	Method      enums.PaymentMethod
	PlanID      string
	Price       decimal.Decimal
	Currency    string
}

// MinorUnits returns the price in the smallest currency unit.
func (p Plan) MinorUnits() int64 {
	if zeroDecimalCurrencies[p.Currency] {
		return p.Price.Round(0).IntPart()
	}
	return p.Price.Shift(2).Round(0).IntPart()
}

// MethodForCycle returns the payment method a billing cycle is settled with.
func MethodForCycle(cycle enums.BillingCycle) enums.PaymentMethod {
	switch cycle {
	case enums.BillingCycleAnnualInvoice:
		return enums.PaymentMethodInvoice
	case enums.BillingCycleMonthly, enums.BillingCycleAnnual:
		return enums.PaymentMethodCard
	default:
		return enums.PaymentMethodNone
	}
}

type planKey struct {
	service enums.ServiceType
	cycle   enums.BillingCycle
}

// Catalog is immutable after construction.
type Catalog struct {
	plans map[planKey]Plan
}

// NewCatalog builds the catalog from configuration. Every configured plan id
// must name a known service type and billing cycle; prices are optional.
func NewCatalog(cfg config.BillingConfig) (*Catalog, error) {
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "JPY"
	}
	c := &Catalog{plans: map[planKey]Plan{}}
	for rawKey, planID := range cfg.PlanIDs {
		svc, cycle, err := parseKey(rawKey)
		if err != nil {
			return nil, err
		}
		planID = strings.TrimSpace(planID)
		if planID == "" {
			continue
		}
		price := decimal.Zero
		if rawPrice, ok := cfg.PlanPrices[config.PlanKey(string(svc), string(cycle))]; ok && strings.TrimSpace(rawPrice) != "" {
			price, err = decimal.NewFromString(strings.TrimSpace(rawPrice))
			if err != nil {
				return nil, fmt.Errorf("plan price %s: %w", rawKey, err)
			}
			if price.IsNegative() {
				return nil, fmt.Errorf("plan price %s must not be negative", rawKey)
			}
		}
		c.plans[planKey{svc, cycle}] = Plan{
			ServiceType: svc,
			Cycle:       cycle,
			Method:      MethodForCycle(cycle),
			PlanID:      planID,
			Price:       price,
			Currency:    currency,
		}
	}
	return c, nil
}

func parseKey(raw string) (enums.ServiceType, enums.BillingCycle, error) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(raw)), ".", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("plan key %q must look like <service>.<cycle>", raw)
	}
	svc, err := enums.ParseServiceType(parts[0])
	if err != nil {
		return "", "", err
	}
	cycle, err := enums.ParseBillingCycle(parts[1])
	if err != nil {
		return "", "", err
	}
	if cycle == enums.BillingCycleNone {
		return "", "", fmt.Errorf("plan key %q has no billing cycle", raw)
	}
	return svc, cycle, nil
}

// Lookup returns the plan for the pair, if configured.
func (c *Catalog) Lookup(svc enums.ServiceType, cycle enums.BillingCycle) (Plan, bool) {
	if c == nil {
		return Plan{}, false
	}
	p, ok := c.plans[planKey{svc, cycle}]
	return p, ok
}

// List returns every plan ordered by service type and cycle.
func (c *Catalog) List() []Plan {
	if c == nil {
		return nil
	}
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ServiceType != out[j].ServiceType {
			return out[i].ServiceType < out[j].ServiceType
		}
		return out[i].Cycle < out[j].Cycle
	})
	return out
}
