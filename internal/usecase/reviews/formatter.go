package reviews

import (
	"html"
	"sort"

	"tg-reviews-api/internal/domain"
)

// FormatMessage подставляет семантическую разметку вместо сущностей
// сообщения. Замены идут от наибольшего offset к наименьшему, чтобы
// уже выполненные подстановки не сдвигали границы следующих — этот
// порядок обязателен. Сущности с выходом за границы текста должны быть
// отброшены раньше, здесь они не перепроверяются.
func FormatMessage(text string, entities []domain.MessageEntity) string {
	if text == "" || len(entities) == 0 {
		return text
	}

	ordered := make([]domain.MessageEntity, len(entities))
	copy(ordered, entities)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Offset > ordered[j].Offset })

	runes := []rune(text)
	formatted := text
	for _, e := range ordered {
		span := string(runes[e.Offset : e.Offset+e.Length])
		var replacement string
		switch e.Type {
		case "bold":
			replacement = "<strong>" + span + "</strong>"
		case "italic":
			replacement = "<em>" + span + "</em>"
		case "underline":
			replacement = "<u>" + span + "</u>"
		case "code":
			replacement = "<code>" + span + "</code>"
		case "pre":
			replacement = "<pre>" + span + "</pre>"
		case "text_link":
			if e.URL == "" {
				continue
			}
			replacement = `<a href="` + html.EscapeString(e.URL) + `" target="_blank" rel="noopener noreferrer">` + span + "</a>"
		case "url":
			replacement = `<a href="` + html.EscapeString(span) + `" target="_blank" rel="noopener noreferrer">` + span + "</a>"
		default:
			continue
		}
		formatted = replaceAt(formatted, e.Offset, e.Length, replacement)
	}

	return formatted
}

// replaceAt заменяет участок в руническом смещении offset длиной length.
func replaceAt(text string, offset, length int, replacement string) string {
	runes := []rune(text)
	return string(runes[:offset]) + replacement + string(runes[offset+length:])
}
