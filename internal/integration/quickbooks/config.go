package quickbooks

import (
	"net/http"
	"time"
)

// Адреса Intuit
const (
	AuthURL              = "https://appcenter.intuit.com/connect/oauth2"
	TokenURL             = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	SandboxAPIBaseURL    = "https://sandbox-quickbooks.api.intuit.com"
	ProductionAPIBaseURL = "https://quickbooks.api.intuit.com"

	// AccountingScope доступ к бухгалтерским данным компании
	AccountingScope = "com.intuit.quickbooks.accounting"

	minorVersion = "65"
)

// Config конфигурация интеграции с QuickBooks
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	AuthURL    string
	TokenURL   string
	APIBaseURL string

	// RequestsPerMinute ограничение исходящих запросов к API на процесс. 0 без ограничения.
	RequestsPerMinute int

	// HTTPClient транспорт для токенов и API. По умолчанию http.Client с таймаутом 30s.
	HTTPClient *http.Client
}

// APIBaseURLFor возвращает хост API для окружения Intuit.
func APIBaseURLFor(environment string) string {
	if environment == "Production" || environment == "production" {
		return ProductionAPIBaseURL
	}
	return SandboxAPIBaseURL
}

func (c Config) withDefaults() Config {
	if c.AuthURL == "" {
		c.AuthURL = AuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = TokenURL
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = SandboxAPIBaseURL
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{AccountingScope}
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}
