package domain

import "time"

// ConnectionStatus состояние связи с QuickBooks
type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusExpired      ConnectionStatus = "expired"
	ConnectionStatusError        ConnectionStatus = "error"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// Connection представляет авторизованную связь дашборда с компанией в QuickBooks.
// Токены никогда не логируются и не отдаются наружу.
type Connection struct {
	ID                    int64            `json:"id" db:"id"`
	DashboardID           int64            `json:"dashboard_id" db:"dashboard_id"`
	RealmID               string           `json:"realm_id" db:"realm_id"`
	CompanyName           string           `json:"company_name" db:"company_name"`
	AccessToken           string           `json:"-" db:"access_token"`
	RefreshToken          string           `json:"-" db:"refresh_token"`
	AccessTokenExpiresAt  time.Time        `json:"access_token_expires_at" db:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time        `json:"refresh_token_expires_at" db:"refresh_token_expires_at"`
	IsActive              bool             `json:"is_active" db:"is_active"`
	Status                ConnectionStatus `json:"status" db:"status"`
	LastError             *string          `json:"last_error,omitempty" db:"last_error"`
	LastSyncAt            *time.Time       `json:"last_sync_at,omitempty" db:"last_sync_at"`
	ConnectedAt           time.Time        `json:"connected_at" db:"connected_at"`
	ModifiedAt            time.Time        `json:"modified_at" db:"modified_at"`
}

// TokenSet результат обмена кода или обновления токена.
// Оба токена и оба срока всегда заменяются вместе.
type TokenSet struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
}

// ApplyTokens атомарно заменяет оба токена и оба срока действия.
func (c *Connection) ApplyTokens(t TokenSet, now time.Time) {
	c.AccessToken = t.AccessToken
	c.RefreshToken = t.RefreshToken
	c.AccessTokenExpiresAt = t.AccessTokenExpiresAt
	c.RefreshTokenExpiresAt = t.RefreshTokenExpiresAt
	c.ModifiedAt = now
}

// MarkHealth выставляет статус и причину. Пустая причина очищает LastError.
func (c *Connection) MarkHealth(status ConnectionStatus, reason string, now time.Time) {
	c.Status = status
	if reason == "" {
		c.LastError = nil
	} else {
		c.LastError = &reason
	}
	c.ModifiedAt = now
}

// Disconnect логически выводит связь из эксплуатации: токены очищаются, запись остается.
func (c *Connection) Disconnect(now time.Time) {
	c.ApplyTokens(TokenSet{}, now)
	c.IsActive = false
	c.MarkHealth(ConnectionStatusDisconnected, "", now)
}

// Usable сообщает, можно ли синхронизировать данные через эту связь.
func (c *Connection) Usable() bool {
	return c != nil && c.IsActive && c.Status != ConnectionStatusDisconnected
}

// LastErrorString возвращает текст последней ошибки или пустую строку.
func (c *Connection) LastErrorString() string {
	if c.LastError == nil {
		return ""
	}
	return *c.LastError
}
