package domain

// Tenant фирма-пользователь, владелец дашбордов и подписки.
type Tenant struct {
	ID               string `json:"id" db:"id"`
	Email            string `json:"email" db:"email"`
	StripeCustomerID string `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	CurrentPlan      Plan   `json:"current_plan" db:"current_plan"`
}
