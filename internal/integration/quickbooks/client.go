package quickbooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/resilience"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	cashAccountsQuery = "SELECT * FROM Account WHERE AccountType IN ('Bank', 'Other Current Asset') " +
		"AND AccountSubType IN ('CashOnHand', 'Checking', 'Savings')"
	taxAccountsQuery    = "SELECT * FROM Account WHERE AccountType = 'Other Current Liability' AND Name LIKE '%tax%'"
	openInvoicesQuery   = "SELECT * FROM Invoice WHERE Balance != '0'"
	reportDateLayout    = "2006-01-02"
	maxResponseBodySize = 10 << 20
)

// Client клиент бухгалтерского API QuickBooks. Все запросы идут через политику
// класса outbound_api и общий ограничитель частоты.
type Client struct {
	baseURL string
	http    *http.Client
	policy  *resilience.Policy
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient создает новый клиент API
func NewClient(cfg Config, policy *resilience.Policy, log *logger.Logger) *Client {
	cfg = cfg.withDefaults()

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.RequestsPerMinute / 10
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), burst)
	}

	return &Client{
		baseURL: cfg.APIBaseURL,
		http:    cfg.HTTPClient,
		policy:  policy,
		limiter: limiter,
		log:     log.With("component", "quickbooks_api"),
	}
}

// CashBalance сумма CurrentBalance по денежным счетам.
func (c *Client) CashBalance(ctx context.Context, accessToken, realmID string) (float64, error) {
	resp, err := c.query(ctx, accessToken, realmID, cashAccountsQuery)
	if err != nil {
		return 0, fmt.Errorf("cash balance: %w", err)
	}
	return SumQueryField(resp, "Account", "CurrentBalance", false), nil
}

// TaxLiability сумма модулей балансов налоговых обязательств.
func (c *Client) TaxLiability(ctx context.Context, accessToken, realmID string) (float64, error) {
	resp, err := c.query(ctx, accessToken, realmID, taxAccountsQuery)
	if err != nil {
		return 0, fmt.Errorf("tax liability: %w", err)
	}
	return SumQueryField(resp, "Account", "CurrentBalance", true), nil
}

// OutstandingInvoices сумма ненулевых балансов счетов к оплате.
func (c *Client) OutstandingInvoices(ctx context.Context, accessToken, realmID string) (float64, error) {
	resp, err := c.query(ctx, accessToken, realmID, openInvoicesQuery)
	if err != nil {
		return 0, fmt.Errorf("outstanding invoices: %w", err)
	}
	return SumQueryField(resp, "Invoice", "Balance", false), nil
}

// ProfitLoss загружает отчет ProfitAndLoss за период и сводит его к выручке и расходам.
func (c *Client) ProfitLoss(ctx context.Context, accessToken, realmID string, period domain.DateRange) (domain.ProfitLoss, error) {
	params := url.Values{}
	params.Set("start_date", period.Start.Format(reportDateLayout))
	params.Set("end_date", period.End.Format(reportDateLayout))

	resp, err := c.get(ctx, accessToken, companyPath(realmID, "reports/ProfitAndLoss"), params)
	if err != nil {
		return domain.ProfitLoss{}, fmt.Errorf("profit and loss: %w", err)
	}

	pl := ParseProfitLoss(resp)
	c.log.Debugw("Profit and loss calculated", "realmID", realmID, "revenue", pl.Revenue, "expenses", pl.Expenses, "profit", pl.Profit)
	return pl, nil
}

// CompanyName название компании. Отсутствующее поле дает "" без ошибки.
func (c *Client) CompanyName(ctx context.Context, accessToken, realmID string) (string, error) {
	resp, err := c.get(ctx, accessToken, companyPath(realmID, "companyinfo/"+url.PathEscape(realmID)), url.Values{})
	if err != nil {
		return "", fmt.Errorf("company info: %w", err)
	}
	return ParseCompanyName(resp), nil
}

func (c *Client) query(ctx context.Context, accessToken, realmID, statement string) (map[string]any, error) {
	params := url.Values{}
	params.Set("query", statement)
	return c.get(ctx, accessToken, companyPath(realmID, "query"), params)
}

func (c *Client) get(ctx context.Context, accessToken, path string, params url.Values) (map[string]any, error) {
	params.Set("minorversion", minorVersion)
	endpoint := c.baseURL + path + "?" + params.Encode()

	return resilience.Execute(ctx, c.policy, resilience.ClassOutboundAPI, func(ctx context.Context) (map[string]any, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
		if err != nil {
			return nil, resilience.Transient(fmt.Errorf("read response body: %w", err))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.log.Warnw("QuickBooks API returned error status", "path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
			svcErr := domain.NewExternalServiceError("quickbooks", strconv.Itoa(resp.StatusCode), http.StatusText(resp.StatusCode), resp.StatusCode, nil)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, resilience.Transient(svcErr)
			}
			return nil, svcErr
		}

		var out map[string]any
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedProviderResponse, err)
		}
		return out, nil
	})
}

func companyPath(realmID, rest string) string {
	return "/v3/company/" + url.PathEscape(realmID) + "/" + rest
}
