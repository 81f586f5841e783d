package quickbooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/metrics"
	"github.com/Dhoini/steadybooks-integration/internal/repository"
	"github.com/Dhoini/steadybooks-integration/internal/resilience"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	// RefreshMargin токен обновляется, если до истечения осталось не больше этого запаса.
	RefreshMargin = 5 * time.Minute

	// UnknownCompany имя компании, если Intuit его не вернул.
	UnknownCompany = "Unknown Company"

	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 100 * 24 * time.Hour
	stateSeparator         = ":"
)

// TokenManager управляет жизненным циклом OAuth-токенов QuickBooks:
// ссылка авторизации, обмен кода, обновление перед истечением.
type TokenManager struct {
	oauth   *oauth2.Config
	http    *http.Client
	api     *Client
	store   repository.ConnectionStore
	policy  *resilience.Policy
	metrics metrics.SyncMetrics
	group   singleflight.Group
	log     *logger.Logger
	now     func() time.Time
}

// NewTokenManager создает менеджер токенов.
func NewTokenManager(
	cfg Config,
	api *Client,
	store repository.ConnectionStore,
	policy *resilience.Policy,
	m metrics.SyncMetrics,
	log *logger.Logger,
) *TokenManager {
	cfg = cfg.withDefaults()
	if m == nil {
		m = metrics.Nop{}
	}

	return &TokenManager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		http:    cfg.HTTPClient,
		api:     api,
		store:   store,
		policy:  policy,
		metrics: m,
		log:     log.With("component", "quickbooks_oauth"),
		now:     time.Now,
	}
}

// NewCSRFState возвращает непредсказуемое значение для защиты callback от CSRF.
func NewCSRFState() string {
	return uuid.NewString()
}

// BuildAuthorizationURL строит ссылку на страницу согласия Intuit. state имеет вид
// "<correlationID>:<csrfState>", чтобы callback нашел нужный дашборд.
func (m *TokenManager) BuildAuthorizationURL(correlationID, csrfState string) string {
	return m.oauth.AuthCodeURL(correlationID + stateSeparator + csrfState)
}

// ParseState разбирает state из callback. Требуется ровно один разделитель и непустой correlationID.
func ParseState(state string) (correlationID, csrfState string, err error) {
	parts := strings.Split(state, stateSeparator)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", domain.ErrInvalidState
	}
	return parts[0], parts[1], nil
}

// ExchangeCodeForTokens обменивает код авторизации на пару токенов. Не повторяется:
// код одноразовый.
func (m *TokenManager) ExchangeCodeForTokens(ctx context.Context, code, realmID string) (domain.TokenSet, error) {
	tok, err := m.oauth.Exchange(m.clientContext(ctx), code)
	if err != nil {
		m.log.Errorw("QuickBooks code exchange failed", "realmID", realmID, "error", err)
		return domain.TokenSet{}, m.oauthError("exchange", CodeOAuthExchangeFailed, err)
	}

	set, err := m.tokenSet(tok, "")
	if err != nil {
		return domain.TokenSet{}, m.oauthError("exchange", CodeOAuthExchangeFailed, err)
	}

	m.log.Infow("QuickBooks authorization code exchanged", "realmID", realmID)
	return set, nil
}

// EnsureFreshToken обновляет токен связи, если до истечения меньше RefreshMargin.
// При успехе оба токена и оба срока заменяются и сохраняются вместе. При неудаче связь
// помечается Expired, а ошибка совпадает с ErrReconnectRequired: повторять обновление
// в том же цикле нельзя. Параллельные вызовы для одного дашборда делят один запрос.
func (m *TokenManager) EnsureFreshToken(ctx context.Context, conn *domain.Connection) error {
	if m.fresh(conn) {
		return nil
	}

	key := strconv.FormatInt(conn.DashboardID, 10)
	v, err, shared := m.group.Do(key, func() (interface{}, error) {
		return m.refresh(ctx, conn)
	})
	if err != nil {
		if errors.Is(err, ErrTokenRefreshFailed) {
			conn.MarkHealth(domain.ConnectionStatusExpired, ReconnectMessage, m.now().UTC())
		}
		return err
	}

	if shared {
		conn.ApplyTokens(v.(domain.TokenSet), m.now().UTC())
	}
	return nil
}

func (m *TokenManager) refresh(ctx context.Context, conn *domain.Connection) (domain.TokenSet, error) {
	if latest, err := m.store.LoadConnection(ctx, conn.DashboardID); err == nil && latest.RefreshToken != "" && m.fresh(latest) {
		set := tokenSetOf(latest)
		conn.ApplyTokens(set, m.now().UTC())
		return set, nil
	}

	if conn.RefreshToken == "" {
		m.metrics.IncTokenRefresh("failure")
		return domain.TokenSet{}, m.oauthError("refresh", CodeTokenRefreshFailed, errors.New("no refresh token"))
	}

	tok, err := resilience.Execute(ctx, m.policy, resilience.ClassOutboundAPI, func(ctx context.Context) (*oauth2.Token, error) {
		src := m.oauth.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: conn.RefreshToken})
		tok, err := src.Token()
		if err != nil {
			return nil, classifyTokenError(err)
		}
		return tok, nil
	})
	if err != nil {
		m.metrics.IncTokenRefresh("failure")
		m.log.Errorw("QuickBooks token refresh failed", "dashboardID", conn.DashboardID, "realmID", conn.RealmID, "error", err)
		return domain.TokenSet{}, m.oauthError("refresh", CodeTokenRefreshFailed, err)
	}

	set, err := m.tokenSet(tok, conn.RefreshToken)
	if err != nil {
		m.metrics.IncTokenRefresh("failure")
		return domain.TokenSet{}, m.oauthError("refresh", CodeTokenRefreshFailed, err)
	}

	conn.ApplyTokens(set, m.now().UTC())
	if err := m.store.SaveConnection(ctx, conn); err != nil {
		m.metrics.IncTokenRefresh("failure")
		m.log.Errorw("Failed to persist refreshed tokens", "dashboardID", conn.DashboardID, "error", err)
		return domain.TokenSet{}, fmt.Errorf("persist refreshed tokens: %w", err)
	}

	m.metrics.IncTokenRefresh("success")
	m.log.Infow("QuickBooks tokens refreshed", "dashboardID", conn.DashboardID, "expiresAt", set.AccessTokenExpiresAt)
	return set, nil
}

// FetchCompanyName читает название компании свежим access token.
func (m *TokenManager) FetchCompanyName(ctx context.Context, accessToken, realmID string) (string, error) {
	return m.api.CompanyName(ctx, accessToken, realmID)
}

// Connect завершает OAuth callback: обменивает код, узнает название компании
// и сохраняет активную связь дашборда.
func (m *TokenManager) Connect(ctx context.Context, dashboardID int64, code, realmID string) (*domain.Connection, error) {
	set, err := m.ExchangeCodeForTokens(ctx, code, realmID)
	if err != nil {
		return nil, err
	}

	name, err := m.FetchCompanyName(ctx, set.AccessToken, realmID)
	if err != nil {
		m.log.Warnw("Failed to fetch QuickBooks company name", "realmID", realmID, "error", err)
	}
	if name == "" {
		name = UnknownCompany
	}

	now := m.now().UTC()
	conn, err := m.store.LoadConnection(ctx, dashboardID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		conn = &domain.Connection{DashboardID: dashboardID, ConnectedAt: now}
	case err != nil:
		return nil, fmt.Errorf("load connection: %w", err)
	}

	conn.RealmID = realmID
	conn.CompanyName = name
	conn.IsActive = true
	conn.ConnectedAt = now
	conn.ApplyTokens(set, now)
	conn.MarkHealth(domain.ConnectionStatusConnected, "", now)

	if err := m.store.SaveConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}

	m.log.Infow("QuickBooks connected", "dashboardID", dashboardID, "realmID", realmID, "company", name)
	return conn, nil
}

func (m *TokenManager) fresh(conn *domain.Connection) bool {
	return conn.AccessToken != "" && conn.AccessTokenExpiresAt.Sub(m.now()) > RefreshMargin
}

func (m *TokenManager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.http)
}

// tokenSet переводит ответ токен-эндпоинта в TokenSet. Сроки считаются от текущего момента.
func (m *TokenManager) tokenSet(tok *oauth2.Token, previousRefresh string) (domain.TokenSet, error) {
	if tok == nil || tok.AccessToken == "" {
		return domain.TokenSet{}, fmt.Errorf("%w: missing access_token", ErrMalformedProviderResponse)
	}

	now := m.now().UTC()
	accessExpiry := tok.Expiry.UTC()
	if tok.Expiry.IsZero() {
		accessExpiry = now.Add(defaultAccessTokenTTL)
	}

	refreshTTL := defaultRefreshTokenTTL
	if secs, ok := toFloat64(tok.Extra("x_refresh_token_expires_in")); ok && secs > 0 {
		refreshTTL = time.Duration(secs) * time.Second
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = previousRefresh
	}
	if refreshToken == "" {
		return domain.TokenSet{}, fmt.Errorf("%w: missing refresh_token", ErrMalformedProviderResponse)
	}

	return domain.TokenSet{
		AccessToken:           tok.AccessToken,
		RefreshToken:          refreshToken,
		AccessTokenExpiresAt:  accessExpiry,
		RefreshTokenExpiresAt: now.Add(refreshTTL),
	}, nil
}

func (m *TokenManager) oauthError(op string, code ErrorCode, err error) error {
	oe := &OAuthError{Op: op, Code: code, Err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		oe.StatusCode = re.Response.StatusCode
	}
	if errors.Is(err, ErrMalformedProviderResponse) {
		oe.Malformed = true
	}
	return oe
}

// classifyTokenError помечает 429 и 5xx токен-эндпоинта как временные. Прочие отказы
// Intuit окончательны, ошибки разбора ответа считаются некорректным ответом.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil && (re.Response.StatusCode == http.StatusTooManyRequests || re.Response.StatusCode >= 500) {
			return resilience.Transient(err)
		}
		return err
	}
	if resilience.IsTransient(err) {
		return err
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || strings.Contains(err.Error(), "oauth2: cannot") || strings.Contains(err.Error(), "missing access_token") {
		return fmt.Errorf("%w: %v", ErrMalformedProviderResponse, err)
	}
	return err
}

func tokenSetOf(conn *domain.Connection) domain.TokenSet {
	return domain.TokenSet{
		AccessToken:           conn.AccessToken,
		RefreshToken:          conn.RefreshToken,
		AccessTokenExpiresAt:  conn.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: conn.RefreshTokenExpiresAt,
	}
}
