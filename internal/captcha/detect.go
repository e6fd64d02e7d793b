// Package captcha implements the challenge/solve/resubmit bypass cycle:
// detect an image or token challenge on a blocked page, obtain a solution
// from a vision model or a third-party token service, and replay the
// originating form with it.
package captcha

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/leadharvest/leadharvest/internal/domain"
)

var (
	siteKeyAttrRe   = regexp.MustCompile(`(?i)data-sitekey=["']([^"']+)["']`)
	siteKeyInlineRe = regexp.MustCompile(`(?i)sitekey["\s:]+["']([^"']+)["']`)
	actionAttrRe    = regexp.MustCompile(`(?i)data-action=["']([^"']+)["']`)
	dataURIRe       = regexp.MustCompile(`base64,([A-Za-z0-9+/=]+)`)
	captchaSrcRe    = regexp.MustCompile(`(?i)captcha|showcaptcha|/checkcaptcha|/simplecaptcha`)
	captchaAttrRe   = regexp.MustCompile(`(?i)captcha|capcha`)
)

// Detect extracts a challenge from a blocked page. Token challenges win
// over image challenges when both are present, since a sitekey is
// unambiguous while image heuristics are not. Returns
// domain.ErrNoChallenge when the page carries neither.
func Detect(body []byte, pageURL string) (*domain.Challenge, error) {
	html := string(body)

	if sitekey, action, version := extractSiteKey(html); sitekey != "" {
		return &domain.Challenge{
			Kind:    domain.ChallengeToken,
			SiteKey: sitekey,
			PageURL: pageURL,
			Action:  action,
			Version: version,
		}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse blocked page: %w", err)
	}

	src := findCaptchaImageSrc(doc)
	if src == "" {
		return nil, domain.ErrNoChallenge
	}

	ch := &domain.Challenge{Kind: domain.ChallengeImage, PageURL: pageURL}

	if strings.HasPrefix(src, "data:") {
		m := dataURIRe.FindStringSubmatch(src)
		if m == nil {
			return nil, domain.ErrNoChallenge
		}
		ch.ImageB64 = m[1]
		return ch, nil
	}

	resolved, err := resolveImageURL(src, pageURL)
	if err != nil {
		return nil, fmt.Errorf("resolve captcha image url: %w", err)
	}
	ch.ImageURL = resolved
	return ch, nil
}

// extractSiteKey pulls a reCAPTCHA-style sitekey out of the page, plus the
// v3 action tag when present. Version defaults to v2; a data-action
// attribute marks v3.
func extractSiteKey(html string) (sitekey, action, version string) {
	version = "v2"

	if m := siteKeyAttrRe.FindStringSubmatch(html); m != nil {
		sitekey = m[1]
	} else if m := siteKeyInlineRe.FindStringSubmatch(html); m != nil {
		sitekey = m[1]
	}

	if m := actionAttrRe.FindStringSubmatch(html); m != nil {
		action = m[1]
		version = "v3"
	}
	return sitekey, action, version
}

func findCaptchaImageSrc(doc *goquery.Document) string {
	var src string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		imgSrc, ok := s.Attr("src")
		if !ok || imgSrc == "" {
			return true
		}
		id := s.AttrOr("id", "")
		class := s.AttrOr("class", "")
		if captchaSrcRe.MatchString(imgSrc) || captchaAttrRe.MatchString(id) || captchaAttrRe.MatchString(class) {
			src = strings.TrimSpace(imgSrc)
			return false
		}
		return true
	})
	return src
}

func resolveImageURL(src, pageURL string) (string, error) {
	if strings.HasPrefix(src, "//") {
		return "https:" + src, nil
	}
	if strings.HasPrefix(src, "http") {
		return src, nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
