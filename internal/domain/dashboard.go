package domain

import "time"

// DateRangeType период отчета на дашборде
type DateRangeType string

const (
	DateRangeThisMonth  DateRangeType = "this_month"
	DateRangeLastMonth  DateRangeType = "last_month"
	DateRangeYearToDate DateRangeType = "year_to_date"
	DateRangeCustom     DateRangeType = "custom"
)

// DashboardConfig настройки виджетов дашборда. Каждый флаг включает один запрос к QuickBooks.
type DashboardConfig struct {
	DashboardID             int64         `json:"dashboard_id" db:"dashboard_id"`
	DateRange               DateRangeType `json:"date_range" db:"date_range"`
	CustomStartDate         *time.Time    `json:"custom_start_date,omitempty" db:"custom_start_date"`
	CustomEndDate           *time.Time    `json:"custom_end_date,omitempty" db:"custom_end_date"`
	ShowCashBalance         bool          `json:"show_cash_balance" db:"show_cash_balance"`
	ShowProfit              bool          `json:"show_profit" db:"show_profit"`
	ShowTaxesDue            bool          `json:"show_taxes_due" db:"show_taxes_due"`
	ShowOutstandingInvoices bool          `json:"show_outstanding_invoices" db:"show_outstanding_invoices"`
}

// DefaultDashboardConfig все виджеты включены, период текущий месяц.
func DefaultDashboardConfig(dashboardID int64) DashboardConfig {
	return DashboardConfig{
		DashboardID:             dashboardID,
		DateRange:               DateRangeThisMonth,
		ShowCashBalance:         true,
		ShowProfit:              true,
		ShowTaxesDue:            true,
		ShowOutstandingInvoices: true,
	}
}

// DateRange интервал отчета [Start, End].
type DateRange struct {
	Start time.Time
	End   time.Time
}

// DateRangeFor вычисляет интервал отчета относительно now.
// Custom без обеих дат трактуется как текущий месяц.
func DateRangeFor(cfg DashboardConfig, now time.Time) DateRange {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	switch cfg.DateRange {
	case DateRangeLastMonth:
		return DateRange{Start: firstOfMonth.AddDate(0, -1, 0), End: firstOfMonth.AddDate(0, 0, -1)}
	case DateRangeYearToDate:
		return DateRange{Start: time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), End: now}
	case DateRangeCustom:
		if cfg.CustomStartDate != nil && cfg.CustomEndDate != nil {
			return DateRange{Start: *cfg.CustomStartDate, End: *cfg.CustomEndDate}
		}
	}
	return DateRange{Start: firstOfMonth, End: now}
}
