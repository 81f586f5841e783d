package domain

import (
	"math"
	"time"
)

// Snapshot набор финансовых показателей одного цикла синхронизации.
// Создается через NewSnapshot и после этого не меняется.
type Snapshot struct {
	CashBalance         float64   `json:"cash_balance"`
	Revenue             float64   `json:"revenue"`
	Expenses            float64   `json:"expenses"`
	Profit              float64   `json:"profit"`
	TaxesDue            float64   `json:"taxes_due"`
	OutstandingInvoices float64   `json:"outstanding_invoices"`
	Margin              float64   `json:"margin"`
	SyncedAt            time.Time `json:"synced_at"`
}

// ProfitLoss итоги отчета о прибылях и убытках.
type ProfitLoss struct {
	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`
	Profit   float64 `json:"profit"`
}

// NewProfitLoss считает прибыль как revenue - expenses.
func NewProfitLoss(revenue, expenses float64) ProfitLoss {
	return ProfitLoss{Revenue: revenue, Expenses: expenses, Profit: revenue - expenses}
}

// NewSnapshot собирает снимок и вычисляет маржу.
func NewSnapshot(cash float64, pl ProfitLoss, taxes, invoices float64, syncedAt time.Time) *Snapshot {
	return &Snapshot{
		CashBalance:         cash,
		Revenue:             pl.Revenue,
		Expenses:            pl.Expenses,
		Profit:              pl.Profit,
		TaxesDue:            taxes,
		OutstandingInvoices: invoices,
		Margin:              Margin(pl.Profit, pl.Revenue),
		SyncedAt:            syncedAt,
	}
}

// Margin profit/revenue*100 с округлением до одного знака; 0 при нулевой выручке.
func Margin(profit, revenue float64) float64 {
	if revenue == 0 {
		return 0
	}
	return math.Round(profit/revenue*1000) / 10
}
