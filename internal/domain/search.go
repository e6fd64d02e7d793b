package domain

import "time"

// Status is the lifecycle state of a Search.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ContactStatus is the enrichment outcome for a domain group.
type ContactStatus string

const (
	ContactFound      ContactStatus = "found"
	ContactNone       ContactStatus = "no_contacts"
	ContactFailed     ContactStatus = "failed"
	ContactUnresolved ContactStatus = ""
)

// Search is one acquisition request. Created once, mutated only by the
// job state machine, never deleted by the pipeline.
type Search struct {
	ID          string            `json:"id"`
	OwnerID     string            `json:"owner_id"`
	Query       string            `json:"query"`
	Provider    string            `json:"provider"`
	NumResults  int               `json:"num_results"`
	Status      Status            `json:"status"`
	ResultCount int               `json:"result_count"`
	Config      map[string]string `json:"config,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
}

// SetError stashes a failure into the config map so it is never silently
// dropped. A fresh map is written each time; callers may share the old one.
func (s *Search) SetError(msg, tag string) {
	cfg := make(map[string]string, len(s.Config)+2)
	for k, v := range s.Config {
		cfg[k] = v
	}
	cfg["error"] = msg
	cfg["error_type"] = tag
	s.Config = cfg
}

// SearchHit is one parsed organic result as produced by a provider,
// before persistence.
type SearchHit struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	Domain   string `json:"domain"`
}

// SearchResult is a persisted hit plus its enrichment fields. Positions are
// contiguous starting at 1 within a search; enrichment fields are applied
// uniformly to every result sharing a domain.
type SearchResult struct {
	SearchID        string            `json:"search_id"`
	Position        int               `json:"position"`
	Title           string            `json:"title"`
	URL             string            `json:"url"`
	Snippet         string            `json:"snippet,omitempty"`
	Domain          string            `json:"domain,omitempty"`
	Phone           string            `json:"phone,omitempty"`
	Email           string            `json:"email,omitempty"`
	ContactStatus   ContactStatus     `json:"contact_status,omitempty"`
	SEOScore        *int              `json:"seo_score,omitempty"`
	OutreachSubject string            `json:"outreach_subject,omitempty"`
	OutreachText    string            `json:"outreach_text,omitempty"`
	ExtraData       map[string]string `json:"extra_data,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Enrichment is the domain-level update applied uniformly to all results
// sharing a domain within one search.
type Enrichment struct {
	Phone           string
	Email           string
	ContactStatus   ContactStatus
	SEOScore        *int
	OutreachSubject string
	OutreachText    string
	ExtraData       map[string]string
}
