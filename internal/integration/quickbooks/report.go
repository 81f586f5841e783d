package quickbooks

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
)

// SectionKind класс секции отчета P&L
type SectionKind int

const (
	SectionOther SectionKind = iota
	SectionIncome
	SectionExpense
)

// ClassifySection относит секцию к доходам или расходам по подстроке заголовка без учета регистра.
// Income и Revenue проверяются раньше Expense и Cost.
func ClassifySection(header string) SectionKind {
	h := strings.ToLower(header)
	switch {
	case strings.Contains(h, "income"), strings.Contains(h, "revenue"):
		return SectionIncome
	case strings.Contains(h, "expense"), strings.Contains(h, "cost"):
		return SectionExpense
	default:
		return SectionOther
	}
}

// ParseProfitLoss суммирует итоги секций верхнего уровня. Секции без заголовка
// (Gross Profit, Net Income) и без числового итога пропускаются. Расходы берутся по модулю.
func ParseProfitLoss(report map[string]any) domain.ProfitLoss {
	var revenue, expenses float64

	for _, row := range getSlice(report, "Rows", "Row") {
		if _, ok := getValue(row, "Header"); !ok {
			continue
		}

		headerText := ""
		if cols := getSlice(row, "Header", "ColData"); len(cols) > 0 {
			headerText = getStringValue(cols[0], "value")
		}

		summary := getSlice(row, "Summary", "ColData")
		if len(summary) < 2 {
			continue
		}
		raw, _ := getValue(summary[1], "value")
		amount, ok := toFloat64(raw)
		if !ok {
			continue
		}

		switch ClassifySection(headerText) {
		case SectionIncome:
			revenue += amount
		case SectionExpense:
			expenses += math.Abs(amount)
		}
	}

	return domain.NewProfitLoss(revenue, expenses)
}

// SumQueryField суммирует числовое поле сущностей из ответа query API.
// Пустой результат и отсутствующие поля дают 0.
func SumQueryField(resp map[string]any, entity, field string, abs bool) float64 {
	var total float64
	for _, item := range getSlice(resp, "QueryResponse", entity) {
		v, _ := getValue(item, field)
		amount, ok := toFloat64(v)
		if !ok {
			continue
		}
		if abs {
			amount = math.Abs(amount)
		}
		total += amount
	}
	return total
}

// ParseCompanyName читает CompanyInfo.CompanyName. Отсутствующее поле дает "".
func ParseCompanyName(resp map[string]any) string {
	return getStringValue(resp, "CompanyInfo", "CompanyName")
}

func getValue(v any, path ...string) (any, bool) {
	for _, key := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = m[key]; !ok {
			return nil, false
		}
	}
	return v, true
}

func getStringValue(v any, path ...string) string {
	val, ok := getValue(v, path...)
	if !ok {
		return ""
	}
	s, _ := val.(string)
	return s
}

func getSlice(v any, path ...string) []any {
	val, ok := getValue(v, path...)
	if !ok {
		return nil
	}
	s, _ := val.([]any)
	return s
}

// toFloat64 принимает числа и строки с числами, как их отдает Intuit в отчетах.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
