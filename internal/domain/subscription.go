package domain

import (
	"strings"
	"time"
)

// SubscriptionStatus статус подписки
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
)

// ParseSubscriptionStatus переводит статус Stripe в локальный. Отображение тотальное:
// неизвестные значения дают Active, чтобы не терять события при изменениях API.
func ParseSubscriptionStatus(s string) SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trialing":
		return SubscriptionStatusTrialing
	case "active":
		return SubscriptionStatusActive
	case "past_due":
		return SubscriptionStatusPastDue
	case "canceled":
		return SubscriptionStatusCanceled
	case "unpaid":
		return SubscriptionStatusUnpaid
	case "incomplete":
		return SubscriptionStatusIncomplete
	case "incomplete_expired":
		return SubscriptionStatusIncompleteExpired
	default:
		return SubscriptionStatusActive
	}
}

// Plan тарифный план
type Plan string

const (
	PlanFreeTrial    Plan = "FreeTrial"
	PlanProfessional Plan = "Professional"
	PlanBusiness     Plan = "Business"
	PlanEnterprise   Plan = "Enterprise"
)

// DefaultPlan бесплатный план, на который возвращается тенант после отмены.
const DefaultPlan = PlanFreeTrial

// ParsePlan разбирает план из метаданных без учета регистра. Пустое или неизвестное значение дает DefaultPlan.
func ParsePlan(s string) Plan {
	for _, p := range []Plan{PlanFreeTrial, PlanProfessional, PlanBusiness, PlanEnterprise} {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p
		}
	}
	return DefaultPlan
}

// HasTrial планы с 14-дневным пробным периодом при оформлении.
func (p Plan) HasTrial() bool {
	return p == PlanProfessional || p == PlanBusiness
}

// BillingInterval период оплаты
type BillingInterval string

const (
	BillingIntervalMonth BillingInterval = "month"
	BillingIntervalYear  BillingInterval = "year"
)

// ParseBillingInterval "year" дает Year, все остальное Month.
func ParseBillingInterval(s string) BillingInterval {
	if strings.EqualFold(strings.TrimSpace(s), "year") {
		return BillingIntervalYear
	}
	return BillingIntervalMonth
}

// Months длительность периода в месяцах.
func (i BillingInterval) Months() int {
	if i == BillingIntervalYear {
		return 12
	}
	return 1
}

// Subscription локальная запись подписки тенанта. Одна на тенанта,
// StripeSubscriptionID уникален среди всех тенантов.
type Subscription struct {
	ID                   int64              `json:"id" db:"id"`
	TenantID             string             `json:"tenant_id" db:"tenant_id"`
	StripeCustomerID     string             `json:"stripe_customer_id" db:"stripe_customer_id"`
	StripeSubscriptionID string             `json:"stripe_subscription_id" db:"stripe_subscription_id"`
	StripePriceID        string             `json:"stripe_price_id" db:"stripe_price_id"`
	Plan                 Plan               `json:"plan" db:"plan"`
	Status               SubscriptionStatus `json:"status" db:"status"`
	Amount               float64            `json:"amount" db:"amount"`
	Currency             string             `json:"currency" db:"currency"`
	Interval             BillingInterval    `json:"interval" db:"billing_interval"`
	CurrentPeriodStart   time.Time          `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd     time.Time          `json:"current_period_end" db:"current_period_end"`
	CancelAt             *time.Time         `json:"cancel_at,omitempty" db:"cancel_at"`
	CanceledAt           *time.Time         `json:"canceled_at,omitempty" db:"canceled_at"`
	TrialStart           *time.Time         `json:"trial_start,omitempty" db:"trial_start"`
	TrialEnd             *time.Time         `json:"trial_end,omitempty" db:"trial_end"`
	CreatedAt            time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at" db:"updated_at"`
}
