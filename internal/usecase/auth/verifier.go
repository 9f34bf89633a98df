package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"tg-reviews-api/internal/domain"
)

// Verifier проверяет подпись Telegram Login Widget.
// Ключ подписи — SHA-256 от токена бота, схема HMAC-SHA256.
type Verifier struct {
	secret []byte
}

// NewVerifier создаёт верификатор из токена бота.
func NewVerifier(botToken string) (*Verifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("токен бота: %w", ErrConfiguration)
	}
	secret := sha256.Sum256([]byte(botToken))
	return &Verifier{secret: secret[:]}, nil
}

// CheckString строит каноничную строку проверки: все подписанные поля
// (кроме hash), отсортированные по имени, в виде строк "key=value",
// соединённых через \n без завершающего перевода строки. Пустые
// необязательные поля в строку не входят.
func CheckString(p domain.AuthPayload) string {
	fields := map[string]string{
		"id":         strconv.FormatInt(p.ID, 10),
		"first_name": p.FirstName,
		"auth_date":  strconv.FormatInt(p.AuthDate, 10),
	}
	if p.LastName != "" {
		fields["last_name"] = p.LastName
	}
	if p.Username != "" {
		fields["username"] = p.Username
	}
	if p.PhotoURL != "" {
		fields["photo_url"] = p.PhotoURL
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}
	return strings.Join(pairs, "\n")
}

// Sign возвращает hex-подпись полезной нагрузки. Используется в тестах
// и при генерации контрольных значений.
func (v *Verifier) Sign(p domain.AuthPayload) string {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(CheckString(p)))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify сравнивает подпись полезной нагрузки с переданным hash.
// Сравнение выполняется в константное время.
func (v *Verifier) Verify(p domain.AuthPayload) error {
	expected, err := hex.DecodeString(p.Hash)
	if err != nil {
		return fmt.Errorf("hash не является hex-строкой: %w", ErrInvalidSignature)
	}
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(CheckString(p)))
	if !hmac.Equal(h.Sum(nil), expected) {
		return ErrInvalidSignature
	}
	return nil
}
