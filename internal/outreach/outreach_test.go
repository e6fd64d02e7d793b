package outreach

import (
	"strings"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestGenerate_SubjectThresholds(t *testing.T) {
	tests := []struct {
		name  string
		score *int
		want  string
	}{
		{"critical below 50", intPtr(42), "Критические SEO проблемы на acme.ru"},
		{"improvable below 70", intPtr(65), "SEO проблемы на acme.ru - можно улучшить"},
		{"recommendations at 70", intPtr(70), "Рекомендации по SEO для acme.ru"},
		{"recommendations without score", nil, "Рекомендации по SEO для acme.ru"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Generate("acme.ru", []string{"no_h1"}, tt.score)
			if msg.Subject != tt.want {
				t.Errorf("Subject = %q, want %q", msg.Subject, tt.want)
			}
		})
	}
}

func TestGenerate_TopThreeIssuesWithTail(t *testing.T) {
	issues := []string{"no_robots_txt", "empty_meta_title", "no_h1", "multiple_h1", "no_sitemap_in_robots"}
	msg := Generate("acme.ru", issues, intPtr(55))

	if !strings.Contains(msg.Text, "отсутствует файл robots.txt") {
		t.Error("first issue description missing")
	}
	if !strings.Contains(msg.Text, "отсутствуют заголовки H1") {
		t.Error("third issue description missing")
	}
	if strings.Contains(msg.Text, "несколько заголовков H1") {
		t.Error("fourth issue spelled out, want only top 3")
	}
	if !strings.Contains(msg.Text, "и еще 2 проблем") {
		t.Errorf("tail count missing from:\n%s", msg.Text)
	}
}

func TestGenerate_UnknownIssuePassesThrough(t *testing.T) {
	msg := Generate("acme.ru", []string{"mystery_code"}, nil)
	if !strings.Contains(msg.Text, "mystery_code") {
		t.Error("unknown issue code dropped")
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	issues := []string{"no_h1", "empty_meta_title"}
	a := Generate("acme.ru", issues, intPtr(60))
	b := Generate("acme.ru", issues, intPtr(60))
	if a != b {
		t.Error("same inputs produced different messages")
	}
}
