package billing

import (
	"time"

	"github.com/saas/backend/internal/domain/shared"
)

// Plan is the billing cadence of a subscription
type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

// ParsePlan validates a plan name
func ParsePlan(name string) (Plan, error) {
	switch Plan(name) {
	case PlanMonthly, PlanYearly:
		return Plan(name), nil
	default:
		return "", shared.NewDomainError(shared.CodeInvalidInput, "Plan must be monthly or yearly")
	}
}

// PeriodEnd returns the end of one billing period starting at from
func (p Plan) PeriodEnd(from time.Time) time.Time {
	if p == PlanYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
