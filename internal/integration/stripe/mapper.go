package stripe

import (
	"errors"
	"fmt"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
)

// ErrPriceNotConfigured для плана и периода не задан Price ID
var ErrPriceNotConfigured = errors.New("stripe price is not configured")

// PlanPrices Price ID плана для каждого периода оплаты.
type PlanPrices struct {
	Month string `mapstructure:"month"`
	Year  string `mapstructure:"year"`
}

// PriceTable отображает платные планы в Price ID Stripe.
type PriceTable map[domain.Plan]PlanPrices

// PriceID возвращает Price ID плана. Бесплатный план оформить нельзя.
func (t PriceTable) PriceID(plan domain.Plan, interval domain.BillingInterval) (string, error) {
	if plan == domain.DefaultPlan {
		return "", fmt.Errorf("%w: plan %s is free", domain.ErrInvalidInput, plan)
	}

	prices, ok := t[plan]
	if !ok {
		return "", fmt.Errorf("%w: plan %s", ErrPriceNotConfigured, plan)
	}

	id := prices.Month
	if interval == domain.BillingIntervalYear {
		id = prices.Year
	}
	if id == "" {
		return "", fmt.Errorf("%w: plan %s, interval %s", ErrPriceNotConfigured, plan, interval)
	}
	return id, nil
}

// PlanForPrice обратный поиск плана и периода по Price ID.
func (t PriceTable) PlanForPrice(priceID string) (domain.Plan, domain.BillingInterval, bool) {
	for plan, prices := range t {
		switch priceID {
		case "":
		case prices.Month:
			return plan, domain.BillingIntervalMonth, true
		case prices.Year:
			return plan, domain.BillingIntervalYear, true
		}
	}
	return "", "", false
}
