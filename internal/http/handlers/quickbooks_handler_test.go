package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/domain"
	"github.com/Dhoini/steadybooks-integration/internal/integration/quickbooks"
	"github.com/Dhoini/steadybooks-integration/internal/repository"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeConnector struct {
	store    repository.ConnectionStore
	err      error
	connects int
}

func (f *fakeConnector) BuildAuthorizationURL(correlationID, csrfState string) string {
	return "https://appcenter.test/connect?state=" + url.QueryEscape(correlationID+":"+csrfState)
}

func (f *fakeConnector) Connect(ctx context.Context, dashboardID int64, code, realmID string) (*domain.Connection, error) {
	f.connects++
	if f.err != nil {
		return nil, f.err
	}
	now := time.Now().UTC()
	conn := &domain.Connection{
		DashboardID: dashboardID,
		RealmID:     realmID,
		CompanyName: "Acme Books",
		AccessToken: "access-" + code,
		IsActive:    true,
		ConnectedAt: now,
	}
	conn.MarkHealth(domain.ConnectionStatusConnected, "", now)
	if err := f.store.SaveConnection(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

type QuickBooksHandlerSuite struct {
	suite.Suite
	store     *repository.MemoryStore
	states    *repository.MemoryOAuthStateStore
	connector *fakeConnector
	router    *gin.Engine
}

func (s *QuickBooksHandlerSuite) SetupTest() {
	s.store = repository.NewMemoryStore()
	s.states = repository.NewMemoryOAuthStateStore()
	s.connector = &fakeConnector{store: s.store}

	h := NewQuickBooksHandler(s.connector, s.states, s.store, logger.NewNop())
	s.router = newTestRouter()
	s.router.GET("/dashboards/:dashboard_id/quickbooks/connect", h.Connect)
	s.router.GET("/dashboards/:dashboard_id/quickbooks", h.Status)
	s.router.DELETE("/dashboards/:dashboard_id/quickbooks", h.Disconnect)
	s.router.GET("/quickbooks/callback", h.Callback)
}

// startConnect возвращает state из выданной ссылки авторизации.
func (s *QuickBooksHandlerSuite) startConnect(dashboardID int64) string {
	w := serve(s.router, http.MethodGet, fmt.Sprintf("/dashboards/%d/quickbooks/connect", dashboardID), nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var body struct {
		AuthorizationURL string `json:"authorization_url"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	u, err := url.Parse(body.AuthorizationURL)
	s.Require().NoError(err)
	return u.Query().Get("state")
}

func (s *QuickBooksHandlerSuite) callback(query url.Values) int {
	return serve(s.router, http.MethodGet, "/quickbooks/callback?"+query.Encode(), nil, nil).Code
}

func (s *QuickBooksHandlerSuite) TestConnectAndCallback() {
	state := s.startConnect(7)

	w := serve(s.router, http.MethodGet, "/quickbooks/callback?"+url.Values{
		"code": {"auth-code"}, "state": {state}, "realmId": {"realm-9"},
	}.Encode(), nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "Acme Books")

	conn, err := s.store.LoadConnection(context.Background(), 7)
	s.Require().NoError(err)
	s.Equal("realm-9", conn.RealmID)
	s.Equal(domain.ConnectionStatusConnected, conn.Status)
}

func (s *QuickBooksHandlerSuite) TestCallbackStateIsSingleUse() {
	state := s.startConnect(7)
	q := url.Values{"code": {"auth-code"}, "state": {state}, "realmId": {"realm-9"}}

	s.Equal(http.StatusOK, s.callback(q))
	s.Equal(http.StatusBadRequest, s.callback(q))
	s.Equal(1, s.connector.connects)
}

func (s *QuickBooksHandlerSuite) TestCallbackRejectsMismatchedDashboard() {
	state := s.startConnect(7)
	_, csrf, err := quickbooks.ParseState(state)
	s.Require().NoError(err)

	s.Equal(http.StatusBadRequest, s.callback(url.Values{
		"code": {"auth-code"}, "state": {"8:" + csrf}, "realmId": {"realm-9"},
	}))
	s.Zero(s.connector.connects)
}

func (s *QuickBooksHandlerSuite) TestCallbackRejectsBadInput() {
	s.Equal(http.StatusBadRequest, s.callback(url.Values{"error": {"access_denied"}}))
	s.Equal(http.StatusBadRequest, s.callback(url.Values{"error": {"invalid_scope"}}))
	s.Equal(http.StatusBadRequest, s.callback(url.Values{"code": {"c"}, "realmId": {"r"}}))
	s.Equal(http.StatusBadRequest, s.callback(url.Values{"code": {"c"}, "state": {"no-separator"}, "realmId": {"r"}}))
	s.Equal(http.StatusBadRequest, s.callback(url.Values{"code": {"c"}, "state": {"7:unknown"}, "realmId": {"r"}}))
	s.Zero(s.connector.connects)
}

func (s *QuickBooksHandlerSuite) TestCallbackExchangeFailure() {
	s.connector.err = fmt.Errorf("exchange: %w", quickbooks.ErrOAuthExchangeFailed)
	state := s.startConnect(7)

	s.Equal(http.StatusBadGateway, s.callback(url.Values{
		"code": {"auth-code"}, "state": {state}, "realmId": {"realm-9"},
	}))
}

func (s *QuickBooksHandlerSuite) TestStatusHidesTokens() {
	state := s.startConnect(7)
	s.Require().Equal(http.StatusOK, s.callback(url.Values{
		"code": {"auth-code"}, "state": {state}, "realmId": {"realm-9"},
	}))

	w := serve(s.router, http.MethodGet, "/dashboards/7/quickbooks", nil, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"status":"connected"`)
	s.NotContains(w.Body.String(), "access-auth-code")

	w = serve(s.router, http.MethodGet, "/dashboards/99/quickbooks", nil, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *QuickBooksHandlerSuite) TestDisconnect() {
	state := s.startConnect(7)
	s.Require().Equal(http.StatusOK, s.callback(url.Values{
		"code": {"auth-code"}, "state": {state}, "realmId": {"realm-9"},
	}))

	w := serve(s.router, http.MethodDelete, "/dashboards/7/quickbooks", nil, nil)
	s.Equal(http.StatusNoContent, w.Code)

	conn, err := s.store.LoadConnection(context.Background(), 7)
	s.Require().NoError(err)
	s.Equal(domain.ConnectionStatusDisconnected, conn.Status)
	s.Empty(conn.AccessToken)

	w = serve(s.router, http.MethodDelete, "/dashboards/99/quickbooks", nil, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func TestQuickBooksHandlerSuite(t *testing.T) {
	suite.Run(t, new(QuickBooksHandlerSuite))
}

func TestDashboardIDValidation(t *testing.T) {
	h := NewQuickBooksHandler(&fakeConnector{}, repository.NewMemoryOAuthStateStore(), repository.NewMemoryStore(), logger.NewNop())
	router := newTestRouter()
	router.GET("/dashboards/:dashboard_id/quickbooks/connect", h.Connect)

	for _, id := range []string{"abc", "0", "-3"} {
		w := serve(router, http.MethodGet, "/dashboards/"+id+"/quickbooks/connect", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, id)
	}
	w := serve(router, http.MethodGet, "/dashboards/5/quickbooks/connect", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
}
