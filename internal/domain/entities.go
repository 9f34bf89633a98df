package domain

import "time"

// AuthPayload описывает непроверенные данные Telegram Login Widget.
// Поле Hash никогда не входит в подписываемый набор.
type AuthPayload struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

// AuthenticatedUser — результат успешной проверки авторизации.
type AuthenticatedUser struct {
	AuthPayload
	BotName string `json:"bot_name"`
}

// MessageEntity описывает оформление участка текста сообщения.
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
}

// ChannelMessage представляет сообщение канала после нормализации.
type ChannelMessage struct {
	MessageID int64           `json:"message_id"`
	Date      int64           `json:"date"`
	Text      string          `json:"text"`
	Entities  []MessageEntity `json:"entities,omitempty"`
}

// ValidEntities проверяет, что каждая сущность укладывается в границы
// текста. Сущности с нарушенными границами не обрезаются: сообщение
// целиком считается некорректным.
func (m ChannelMessage) ValidEntities() bool {
	n := len([]rune(m.Text))
	for _, e := range m.Entities {
		if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > n {
			return false
		}
	}
	return true
}

// CachedMessages — слот кэша сообщений канала.
type CachedMessages struct {
	Messages  []ChannelMessage `json:"messages"`
	FetchedAt time.Time        `json:"fetched_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Fresh сообщает, не истёк ли срок годности слота.
func (c CachedMessages) Fresh(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}

// Severity задаёт уровень важности отчёта об ошибке.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid проверяет, что уровень входит в допустимый набор.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ErrorReport — структурированный отчёт об ошибке для внешнего хранилища.
type ErrorReport struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Stack     string         `json:"stack,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  Severity       `json:"severity"`
	Source    string         `json:"source"`
}
