package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMargin(t *testing.T) {
	tests := []struct {
		name    string
		profit  float64
		revenue float64
		want    float64
	}{
		{name: "zero revenue", profit: 250, revenue: 0, want: 0},
		{name: "zero revenue with loss", profit: -250, revenue: 0, want: 0},
		{name: "forty percent", profit: 400, revenue: 1000, want: 40},
		{name: "rounds to one decimal", profit: 1, revenue: 3, want: 33.3},
		{name: "loss", profit: -150, revenue: 1000, want: -15},
		{name: "negative revenue is not zeroed", profit: -50, revenue: -200, want: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Margin(tt.profit, tt.revenue), 1e-9)
		})
	}
}

func TestNewSnapshot(t *testing.T) {
	syncedAt := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	snap := NewSnapshot(5000, NewProfitLoss(1000, 600), 120, 300, syncedAt)

	assert.Equal(t, 5000.0, snap.CashBalance)
	assert.Equal(t, 1000.0, snap.Revenue)
	assert.Equal(t, 600.0, snap.Expenses)
	assert.Equal(t, 400.0, snap.Profit)
	assert.Equal(t, 120.0, snap.TaxesDue)
	assert.Equal(t, 300.0, snap.OutstandingInvoices)
	assert.Equal(t, 40.0, snap.Margin)
	assert.Equal(t, syncedAt, snap.SyncedAt)
}
