package denylist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/leadharvest/leadharvest/internal/db"
	"github.com/leadharvest/leadharvest/internal/domain"
)

// store is the consumer interface for deny-list reads (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Repo loads owner deny-lists from the store and combines them with the
// compiled-in seed list. A List is read-only for the duration of a job.
type Repo struct {
	store store
}

// New creates a deny-list repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func ownerKey(ownerID string) string { return domain.KeyPrefix + "denylist:" + ownerID }

// ForOwner returns the seed list unioned with the owner's custom entries.
// A missing owner entry is not an error; the seed list still applies.
func (r *Repo) ForOwner(ctx context.Context, ownerID string) (*List, error) {
	entries := make([]string, 0, len(seedDomains))
	entries = append(entries, seedDomains...)

	if ownerID != "" {
		data, err := r.store.Get(ctx, ownerKey(ownerID))
		switch {
		case errors.Is(err, db.ErrKeyNotFound):
			// no custom entries
		case err != nil:
			return nil, fmt.Errorf("get denylist %s: %w", ownerID, err)
		default:
			var custom []string
			if err := json.Unmarshal(data, &custom); err != nil {
				return nil, fmt.Errorf("get denylist %s: decode: %w", ownerID, err)
			}
			entries = append(entries, custom...)
		}
	}

	return NewList(entries), nil
}

// SaveOwner replaces the owner's custom entries.
func (r *Repo) SaveOwner(ctx context.Context, ownerID string, entries []string) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("save denylist %s: encode: %w", ownerID, err)
	}
	if err := r.store.Set(ctx, ownerKey(ownerID), data); err != nil {
		return fmt.Errorf("save denylist %s: %w", ownerID, err)
	}
	return nil
}

// List answers deny-list membership with subdomain-aware matching.
type List struct {
	entries []string
}

// NewList builds a list from raw entries, normalizing each one.
func NewList(entries []string) *List {
	normalized := make([]string, 0, len(entries))
	for _, e := range entries {
		if n := domain.NormalizeDomain(e); n != "" {
			normalized = append(normalized, n)
		}
	}
	return &List{entries: normalized}
}

// Contains reports whether the domain is denied. Matching is exact or
// subdomain in either direction: "sub.example.com" matches a listed
// "example.com", and a listed "cdn.example.com" matches "example.com".
func (l *List) Contains(d string) bool {
	nd := domain.NormalizeDomain(d)
	if nd == "" {
		return false
	}
	for _, entry := range l.entries {
		if nd == entry ||
			strings.HasSuffix(nd, "."+entry) ||
			strings.HasSuffix(entry, "."+nd) {
			return true
		}
	}
	return false
}

// Len returns the number of entries, seed included.
func (l *List) Len() int { return len(l.entries) }

// seedDomains keeps search engines, social networks, marketplaces and
// aggregators out of the persisted results, so only end-customer sites
// survive filtering.
var seedDomains = []string{
	"mail.ru", "dzen.ru", "wikipedia.org", "ozon.ru", "ya.ru",
	"youtube.com", "avito.ru", "wildberries.ru", "telegram.org",
	"twitch.tv", "whatsapp.com", "gosuslugi.ru", "vkvideo.ru",
	"dns-shop.ru", "rbc.ru", "msn.com", "ria.ru", "sportbox.ru",
	"google.com", "drive2.ru", "lenta.ru", "ficbook.net", "hh.ru",
	"instagram.com", "aliexpress.ru", "knigavuhe.org",
	"drom.ru", "duckduckgo.com", "rambler.ru", "mos.ru",
	"yandex.com", "tiktok.com", "2gis.ru", "tbank.ru",
	"sports.ru", "kp.ru", "championat.com", "russianfood.com",
	"author.today", "weather.com", "vseinstrumenti.ru",
	"chatgpt.com", "mts.ru", "deepseek.com", "ixbt.com",
	"nspk.ru", "reddit.com", "yaplakal.com", "consultant.ru",
	"rustore.ru", "habr.com", "github.com", "e1.ru",
	"microsoft.com", "livejournal.com", "ivi.ru",
	"sberbank.ru", "gazeta.ru",
	// search engines beyond the providers themselves
	"yandex.ru", "google.ru", "bing.com", "baidu.com",
	"ecosia.org", "qwant.com", "ask.com", "yahoo.com",
	// aggregators and catalogues
	"otzovik.com", "irecommend.ru", "zoon.ru", "flamp.ru",
	"spravkaru.net", "all.biz", "prodoctorov.ru", "docdoc.ru",
	"napopravku.ru", "b2b-center.ru", "tiu.ru",
	"satom.ru", "deal.by", "yell.com", "hotline.ua",
}
