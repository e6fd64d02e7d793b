package outreach

import (
	"fmt"
	"strings"
)

// issueDescriptions maps audit issue codes to the wording used in the
// message body. Unknown codes pass through verbatim.
var issueDescriptions = map[string]string{
	"no_robots_txt":          "отсутствует файл robots.txt",
	"robots_disallow_all":    "все страницы запрещены к индексации",
	"no_sitemap_in_robots":   "нет ссылки на sitemap в robots.txt",
	"empty_meta_title":       "пустые meta title",
	"empty_meta_description": "пустые meta description",
	"no_h1":                  "отсутствуют заголовки H1",
	"multiple_h1":            "несколько заголовков H1 на странице",
}

const bodyTemplate = `Здравствуйте!

Я проанализировал ваш сайт %s и обнаружил несколько SEO проблем, которые могут негативно влиять на позиции в поисковых системах.

Основные проблемы:
- %s

Эти проблемы могут снижать видимость вашего сайта в поисковых системах и уменьшать органический трафик.

Я могу помочь исправить эти проблемы и улучшить SEO вашего сайта. Готов обсудить детали и предложить конкретные решения.

С уважением,
SEO специалист`

// Message is one generated outreach draft.
type Message struct {
	Subject string
	Text    string
}

// Generate builds a deterministic outreach draft from the domain, the
// audit issue codes (top 3 are spelled out) and the optional score. The
// same inputs always produce the same message.
func Generate(domain string, issues []string, score *int) Message {
	top := issues
	if len(top) > 3 {
		top = top[:3]
	}
	described := make([]string, 0, len(top))
	for _, issue := range top {
		if desc, ok := issueDescriptions[issue]; ok {
			described = append(described, desc)
		} else {
			described = append(described, issue)
		}
	}

	issuesText := strings.Join(described, ", ")
	if rest := len(issues) - 3; rest > 0 {
		issuesText += fmt.Sprintf(" и еще %d проблем", rest)
	}

	var subject string
	switch {
	case score != nil && *score < 50:
		subject = fmt.Sprintf("Критические SEO проблемы на %s", domain)
	case score != nil && *score < 70:
		subject = fmt.Sprintf("SEO проблемы на %s - можно улучшить", domain)
	default:
		subject = fmt.Sprintf("Рекомендации по SEO для %s", domain)
	}

	return Message{
		Subject: subject,
		Text:    fmt.Sprintf(bodyTemplate, domain, issuesText),
	}
}
