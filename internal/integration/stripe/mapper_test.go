package stripe

import (
	"testing"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceTable_PriceID(t *testing.T) {
	prices := testPrices()

	id, err := prices.PriceID(domain.PlanProfessional, domain.BillingIntervalMonth)
	require.NoError(t, err)
	assert.Equal(t, "price_pro_month", id)

	id, err = prices.PriceID(domain.PlanProfessional, domain.BillingIntervalYear)
	require.NoError(t, err)
	assert.Equal(t, "price_pro_year", id)

	_, err = prices.PriceID(domain.PlanEnterprise, domain.BillingIntervalYear)
	assert.ErrorIs(t, err, ErrPriceNotConfigured)

	_, err = prices.PriceID(domain.PlanFreeTrial, domain.BillingIntervalMonth)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPriceTable_PlanForPrice(t *testing.T) {
	prices := testPrices()

	plan, interval, ok := prices.PlanForPrice("price_biz_year")
	require.True(t, ok)
	assert.Equal(t, domain.PlanBusiness, plan)
	assert.Equal(t, domain.BillingIntervalYear, interval)

	_, _, ok = prices.PlanForPrice("")
	assert.False(t, ok)

	_, _, ok = prices.PlanForPrice("price_unknown")
	assert.False(t, ok)
}
